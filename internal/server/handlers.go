package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/schema"
	"github.com/conduit-lang/transmute/internal/store"
)

// SchemaRequest asks for the schema of a list of values.
type SchemaRequest struct {
	Values []any `json:"values"`
}

// SchemaResponse carries the inferred schema in both representations.
type SchemaResponse struct {
	Schema     *schema.Schema     `json:"schema"`
	JSONSchema *jsonschema.Schema `json:"json_schema"`
}

// AnalyzeRequest is an example set plus filtering choices. Threshold wins
// over Preset.
type AnalyzeRequest struct {
	Name      string            `json:"name,omitempty"`
	Examples  []pattern.Example `json:"examples"`
	Threshold *float64          `json:"threshold,omitempty"`
	Preset    string            `json:"preset,omitempty"`
}

// AnalyzeResponse is the filtered analysis of an example set.
type AnalyzeResponse struct {
	RunID    string                         `json:"run_id,omitempty"`
	Result   *filter.FilteredParsedExamples `json:"result"`
	Summary  string                         `json:"summary"`
	Warnings []string                       `json:"warnings"`
}

// ValidateRequest is source to check plus optional rule overrides.
type ValidateRequest struct {
	Source     string            `json:"source"`
	Severities map[string]string `json:"severities,omitempty"`
	Disabled   []string          `json:"disabled,omitempty"`
}

// ValidateResponse wraps the validation report.
type ValidateResponse struct {
	RunID  string                       `json:"run_id,omitempty"`
	Cached bool                         `json:"cached"`
	Result *constraint.ValidationResult `json:"result"`
}

// GenerateRequest is an analysis request plus naming for the generated type.
type GenerateRequest struct {
	AnalyzeRequest
	PackageName string `json:"package_name,omitempty"`
	TypeName    string `json:"type_name,omitempty"`
}

// GenerateResponse is the outcome of the generation loop.
type GenerateResponse struct {
	RunID   string            `json:"run_id,omitempty"`
	Outcome *generate.Outcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": filter.Presets(),
		"default": filter.DefaultPreset,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	var req SchemaRequest
	if !s.decode(w, r, &req) {
		return
	}

	values := make([]any, len(req.Values))
	for i, v := range req.Values {
		values[i] = schema.Normalize(v)
	}
	sch, err := schema.Infer(values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SchemaResponse{Schema: sch, JSONSchema: sch.JSONSchema()})
}

// analyze parses and filters req. It is shared by the analyze and generate
// handlers.
func (s *Server) analyze(req AnalyzeRequest) (*filter.FilteredParsedExamples, error) {
	threshold, err := filter.Resolve(req.Threshold, req.Preset)
	if err != nil {
		return nil, err
	}
	parsed, err := s.deps.Parser.Parse(req.Examples)
	if err != nil {
		return nil, err
	}
	return filter.Apply(parsed, threshold)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	filtered, err := s.analyze(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := AnalyzeResponse{
		Result:   filtered,
		Summary:  filter.FormatSummary(filtered),
		Warnings: filter.GenerateWarnings(filtered, s.deps.Warnings),
	}
	resp.RunID = s.record(r.Context(), &store.Run{
		Kind:       store.KindAnalyze,
		ExampleSet: req.Name,
		Threshold:  &filtered.Threshold,
		Patterns:   len(filtered.Patterns),
		Included:   len(filtered.Included),
	}, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}

	override, err := overrideConfig(req.Severities, req.Disabled)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	result, hit := s.deps.Validator.Validate(r.Context(), req.Source, override)
	resp := ValidateResponse{Cached: hit, Result: result}
	resp.RunID = s.record(r.Context(), &store.Run{
		Kind:  store.KindValidate,
		Valid: &result.Valid,
	}, result)

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, resp)
}

func overrideConfig(severities map[string]string, disabled []string) (*constraint.Config, error) {
	if len(severities) == 0 && len(disabled) == 0 {
		return nil, nil
	}
	cfg := constraint.Config{Disabled: disabled}
	for key, name := range severities {
		sev, err := constraint.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("severities.%s: %w", key, err)
		}
		cfg = cfg.WithSeverity(key, sev)
	}
	return &cfg, nil
}

// loop builds a generation loop for req, or reports why it cannot.
func (s *Server) loop(req GenerateRequest, observer generate.Observer) (*generate.Loop, error) {
	if s.deps.Generator == nil {
		return nil, errGeneratorUnavailable
	}
	l := &generate.Loop{
		Generator:   s.deps.Generator,
		Enforcer:    s.deps.Validator.Enforcer(),
		MaxAttempts: s.deps.MaxAttempts,
		PackageName: s.deps.PackageName,
		TypeName:    s.deps.TypeName,
		Logger:      s.logger,
		Observer:    observer,
	}
	if req.PackageName != "" {
		l.PackageName = req.PackageName
	}
	if req.TypeName != "" {
		l.TypeName = req.TypeName
	}
	return l, nil
}

var errGeneratorUnavailable = errors.New("code generation is not configured")

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	l, err := s.loop(req, nil)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	filtered, err := s.analyze(req.AnalyzeRequest)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	outcome, err := l.Run(r.Context(), filtered)
	if outcome == nil {
		s.fail(w, r, err)
		return
	}

	resp := GenerateResponse{Outcome: outcome}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status, _ = statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
	}
	valid := outcome.State == generate.StateAccept
	resp.RunID = s.record(r.Context(), &store.Run{
		Kind:       store.KindGenerate,
		ExampleSet: req.Name,
		Threshold:  &filtered.Threshold,
		Patterns:   len(filtered.Patterns),
		Included:   len(filtered.Included),
		Valid:      &valid,
	}, outcome)
	writeJSON(w, status, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "run history is not enabled")
		return
	}

	opts := store.ListOptions{Kind: store.Kind(r.URL.Query().Get("kind"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	runs, err := s.deps.Store.List(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "run history is not enabled")
		return
	}

	run, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, r, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
		case errors.Is(err, io.EOF):
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body is empty")
		default:
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

// record stores a run when history is enabled and returns its ID. Storage
// failures are logged, never surfaced to the caller.
func (s *Server) record(ctx context.Context, run *store.Run, result any) string {
	if s.deps.Store == nil {
		return ""
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("encode run result", zap.Error(err))
		return ""
	}
	run.Result = data
	if err := s.deps.Store.Save(ctx, run); err != nil {
		s.logger.Warn("record run", zap.String("kind", string(run.Kind)), zap.Error(err))
		return ""
	}
	return run.ID
}
