package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/store"
)

const weatherFile = "../../examples/testdata/weather.yaml"

const cleanSource = `package transform

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/pkg/extractor"
)

type RecordExtractor struct {
	extractor.Base
}

var _ extractor.Extractor = (*RecordExtractor)(nil)

//transmute:inject
func NewRecordExtractor(logger *zap.Logger) *RecordExtractor {
	return &RecordExtractor{Base: extractor.NewBase("record", logger)}
}

func (e *RecordExtractor) Extract(ctx context.Context, input map[string]any) (map[string]any, error) {
	v, err := extractor.Lookup(input, "main.temp")
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	extractor.Set(out, "temperature_c", v)
	return out, nil
}
`

const execSource = `package transform

import "os/exec"

func Run() { _ = exec.Command("true").Run() }
`

// writeConfig writes a transmute.yaml with quiet logging plus extra.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transmute.yaml")
	content := "log:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// fakeClaude answers every completion with src in a go fence.
func fakeClaude(t *testing.T, src string) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": "```go\n" + src + "```"}},
		"stop_reason": "end_turn",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func generatorConfig(url string) string {
	return fmt.Sprintf("generator:\n  api_key: test-key\n  base_url: %s\n  max_retries: 0\n", url)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"version", "infer", "analyze", "presets", "validate", "generate", "serve", "lsp", "history", "hash-key"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "log-level", "no-color"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Transmute version: dev")
	assert.Contains(t, out, "Go version: go")
}

func TestPresetsCommand(t *testing.T) {
	out, _, err := execute(t, "presets")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "PRESET"))
	assert.True(t, strings.HasPrefix(lines[1], "─"))
	for i, name := range filter.PresetNames() {
		assert.True(t, strings.HasPrefix(lines[i+2], name), "row %d", i)
	}
	assert.Contains(t, out, "aggressive")
	assert.Regexp(t, `balanced\s+0\.70\s+yes`, out)

	out, _, err = execute(t, "presets", "--json")
	require.NoError(t, err)
	var got struct {
		Presets map[string]float64 `json:"presets"`
		Default string             `json:"default"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filter.Presets(), got.Presets)
	assert.Equal(t, filter.DefaultPreset, got.Default)
}

func TestInferCommand(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := execute(t, "--config", cfg, "infer", weatherFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Input schema (weather, 2 examples)")
	assert.Contains(t, out, "Output schema")

	out, _, err = execute(t, "--config", cfg, "infer", weatherFile, "--json")
	require.NoError(t, err)
	var got struct {
		Name  string `json:"name"`
		Input struct {
			JSONSchema map[string]any `json:"json_schema"`
		} `json:"input"`
		Output struct {
			JSONSchema map[string]any `json:"json_schema"`
		} `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "weather", got.Name)
	assert.Equal(t, "object", got.Input.JSONSchema["type"])
	assert.Contains(t, got.Output.JSONSchema["properties"], "city")
}

func TestInferCommand_MissingFile(t *testing.T) {
	_, _, err := execute(t, "--config", writeConfig(t, ""), "infer", "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestAnalyzeCommand(t *testing.T) {
	out, _, err := execute(t, "--config", writeConfig(t, ""), "analyze", weatherFile)
	require.NoError(t, err)

	assert.Contains(t, out, "weather ("+weatherFile+")")
	assert.Contains(t, out, "Confidence threshold: 0.70")
	assert.Contains(t, out, "city <- name")
}

func TestAnalyzeCommand_ThresholdSources(t *testing.T) {
	tests := []struct {
		name   string
		config string
		args   []string
		want   float64
	}{
		{name: "config default", want: 0.7},
		{name: "config preset", config: "analysis:\n  preset: strict\n", want: 0.9},
		{name: "preset flag", config: "analysis:\n  preset: strict\n", args: []string{"--preset", "aggressive"}, want: 0.6},
		{name: "threshold beats preset", args: []string{"--preset", "strict", "--threshold", "0.55"}, want: 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", writeConfig(t, tt.config), "analyze", weatherFile, "--json"}, tt.args...)
			out, _, err := execute(t, args...)
			require.NoError(t, err)

			var got []struct {
				Name   string `json:"name"`
				Result struct {
					Threshold float64          `json:"confidence_threshold"`
					Included  []map[string]any `json:"included_patterns"`
				} `json:"result"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			require.Len(t, got, 1)
			assert.Equal(t, "weather", got[0].Name)
			assert.InDelta(t, tt.want, got[0].Result.Threshold, 1e-9)
			assert.NotEmpty(t, got[0].Result.Included)
		})
	}
}

func TestAnalyzeCommand_UnknownPreset(t *testing.T) {
	_, stderr, err := execute(t, "--config", writeConfig(t, ""), "analyze", weatherFile, "--preset", "balancd")
	require.ErrorIs(t, err, filter.ErrUnknownPreset)
	assert.Contains(t, stderr, "UNKNOWN PRESET")
	assert.Contains(t, stderr, "Did you mean: balanced?")
}

func TestAnalyzeCommand_InvalidThreshold(t *testing.T) {
	for _, bad := range []string{"1.5", "NaN"} {
		_, _, err := execute(t, "--config", writeConfig(t, ""), "analyze", weatherFile, "--threshold", bad)
		assert.ErrorIs(t, err, filter.ErrThresholdRange, "threshold %s", bad)
	}
}

func TestValidateCommand(t *testing.T) {
	cfg := writeConfig(t, "")
	clean := writeFile(t, "clean.go", cleanSource)
	bad := writeFile(t, "bad.go", execSource)

	out, _, err := execute(t, "--config", cfg, "validate", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+clean)

	out, _, err = execute(t, "--config", cfg, "validate", clean, bad)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "1 of 2 file(s)")
	assert.Contains(t, out, bad+":3: error")
	assert.Contains(t, out, "os/exec")
}

func TestValidateCommand_JSON(t *testing.T) {
	bad := writeFile(t, "bad.go", execSource)

	out, _, err := execute(t, "--config", writeConfig(t, ""), "validate", bad, "--json")
	require.ErrorIs(t, err, ErrValidationFailed)

	var got []struct {
		File   string `json:"file"`
		Cached bool   `json:"cached"`
		Result struct {
			Valid      bool             `json:"valid"`
			Violations []map[string]any `json:"violations"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, bad, got[0].File)
	assert.False(t, got[0].Cached)
	assert.False(t, got[0].Result.Valid)
	assert.NotEmpty(t, got[0].Result.Violations)
}

func TestValidateCommand_Overrides(t *testing.T) {
	cfg := writeConfig(t, "")
	bad := writeFile(t, "bad.go", execSource)

	_, _, err := execute(t, "--config", cfg, "validate", bad, "--disable", "imports,security,interface,dependency-injection")
	assert.NoError(t, err)

	_, _, err = execute(t, "--config", cfg, "validate", bad, "--severity", "import-allowlist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want rule=level")

	_, _, err = execute(t, "--config", cfg, "validate", bad, "--severity", "imports=fatal")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidationFailed)

	_, stderr, _ := execute(t, "--config", cfg, "validate", bad, "--disable", "secruity")
	assert.Contains(t, stderr, `"secruity" matches no rule`)
	assert.Contains(t, stderr, "security")
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parseOverrides(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = parseOverrides([]string{"structured-logging=error"}, []string{"complexity"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"complexity"}, cfg.Disabled)
	assert.Contains(t, cfg.Severities, "structured-logging")

	_, err = parseOverrides([]string{"=error"}, nil)
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	srv := fakeClaude(t, cleanSource)
	cfg := writeConfig(t, generatorConfig(srv.URL))

	out, _, err := execute(t, "--config", cfg, "generate", weatherFile)
	require.NoError(t, err)
	assert.Equal(t, cleanSource, out)

	target := filepath.Join(t.TempDir(), "extractor.go")
	out, stderr, err := execute(t, "--config", cfg, "generate", weatherFile, "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "wrote "+target+" (1 attempt(s))")

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, cleanSource, string(written))
}

func TestGenerateCommand_Exhausted(t *testing.T) {
	srv := fakeClaude(t, execSource)
	cfg := writeConfig(t, generatorConfig(srv.URL))

	out, stderr, err := execute(t, "--config", cfg, "generate", weatherFile, "--max-attempts", "2")
	require.ErrorIs(t, err, generate.ErrAttemptsExhausted)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "candidate:3: error")
}

func TestGenerateCommand_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, _, err := execute(t, "--config", writeConfig(t, ""), "generate", weatherFile)
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "runs.db")
	cfg := writeConfig(t, "store:\n  driver: sqlite3\n  dsn: "+dsn+"\n")

	_, _, err := execute(t, "--config", cfg, "analyze", weatherFile)
	require.NoError(t, err)
	_, _, err = execute(t, "--config", cfg, "validate", writeFile(t, "clean.go", cleanSource))
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfg, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "EXAMPLE SET")
	assert.Contains(t, out, "analyze")
	assert.Contains(t, out, "weather")
	assert.Contains(t, out, "validate")

	out, _, err = execute(t, "--config", cfg, "history", "--kind", "analyze", "--json")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, store.KindAnalyze, runs[0].Kind)
	assert.Equal(t, "weather", runs[0].ExampleSet)

	out, _, err = execute(t, "--config", cfg, "history", "show", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "Threshold:")
	assert.Contains(t, out, `"confidence_threshold": 0.7`)

	_, _, err = execute(t, "--config", cfg, "history", "show", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, _, err = execute(t, "--config", cfg, "history", "prune", "--older-than", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	_, _, err := execute(t, "--config", writeConfig(t, ""), "history")
	assert.ErrorIs(t, err, errHistoryDisabled)
}

func TestHashKeyCommand(t *testing.T) {
	out, _, err := execute(t, "hash-key", "k3y")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("k3y")))
}

func TestFormatValid(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, "-", formatValid(nil))
	assert.Equal(t, "yes", formatValid(&yes))
	assert.Equal(t, "no", formatValid(&no))
}

func TestPresetCompletion(t *testing.T) {
	out, _, err := execute(t, "__complete", "analyze", "--preset", "")
	require.NoError(t, err)
	for _, name := range filter.PresetNames() {
		assert.Contains(t, out, name)
	}
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestValidateCommand_Watch(t *testing.T) {
	cfg := writeConfig(t, "")
	file := writeFile(t, "extractor.go", execSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out, errOut syncBuffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--no-color", "--config", cfg, "validate", "--watch", file})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "watching 1 file(s)")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "os/exec")

	require.NoError(t, os.WriteFile(file, []byte(cleanSource), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "✓ "+file)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
