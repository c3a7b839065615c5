package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/filter"
)

// DefaultMaxAttempts bounds generation attempts when Loop.MaxAttempts is unset.
const DefaultMaxAttempts = 3

var (
	// ErrAttemptsExhausted is returned when no attempt produced valid code.
	ErrAttemptsExhausted = errors.New("generation attempts exhausted")

	// ErrNoPatterns is returned when there is nothing to generate.
	ErrNoPatterns = errors.New("no included patterns to generate code for")
)

// State is a step of the generation loop.
type State string

const (
	StateGenerate State = "generate"
	StateValidate State = "validate"
	StateRetry    State = "retry"
	StateAccept   State = "accept"
	StateFail     State = "fail"
)

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateAccept || s == StateFail
}

// Attempt records one generate/validate round.
type Attempt struct {
	Number   int                          `json:"number"`
	Source   string                       `json:"source"`
	Result   *constraint.ValidationResult `json:"result,omitempty"`
	Error    string                       `json:"error,omitempty"`
	Duration time.Duration                `json:"duration"`
}

// Outcome is the result of a completed loop.
type Outcome struct {
	State    State                        `json:"state"`
	Source   string                       `json:"source,omitempty"`
	Result   *constraint.ValidationResult `json:"result,omitempty"`
	Attempts []Attempt                    `json:"attempts"`
}

// Event reports a state transition to an Observer.
type Event struct {
	State   State                        `json:"state"`
	Attempt int                          `json:"attempt"`
	Result  *constraint.ValidationResult `json:"result,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

// Observer receives loop events. It is called synchronously.
type Observer func(Event)

// Loop runs generate → validate → accept | retry | fail. Attempts run one at
// a time and each candidate is fully validated before the next is requested.
type Loop struct {
	Generator   Generator
	Enforcer    *constraint.Enforcer
	MaxAttempts int
	PackageName string
	TypeName    string
	Logger      *zap.Logger
	Observer    Observer
}

// Run generates code for the included patterns of filtered. On success the
// outcome is in StateAccept. When every attempt fails validation the outcome
// is in StateFail and the error wraps ErrAttemptsExhausted. A generator error
// or context cancellation stops the loop immediately.
func (l *Loop) Run(ctx context.Context, filtered *filter.FilteredParsedExamples) (*Outcome, error) {
	if filtered == nil || len(filtered.Included) == 0 {
		return nil, ErrNoPatterns
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	req := Request{
		PackageName:  l.PackageName,
		TypeName:     l.TypeName,
		InputSchema:  filtered.InputSchema,
		OutputSchema: filtered.OutputSchema,
		Patterns:     filtered.Included,
		Excluded:     filtered.Excluded,
	}
	if req.PackageName == "" {
		req.PackageName = "transform"
	}
	if req.TypeName == "" {
		req.TypeName = "RecordExtractor"
	}

	out := &Outcome{State: StateGenerate, Attempts: []Attempt{}}
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			out.State = StateFail
			l.emit(Event{State: StateFail, Attempt: n - 1, Error: err.Error()})
			return out, err
		}

		req.Attempt = n
		l.emit(Event{State: StateGenerate, Attempt: n})
		start := time.Now()
		src, err := l.Generator.Generate(ctx, req)
		if err != nil {
			out.Attempts = append(out.Attempts, Attempt{Number: n, Error: err.Error(), Duration: time.Since(start)})
			out.State = StateFail
			l.emit(Event{State: StateFail, Attempt: n, Error: err.Error()})
			logger.Warn("generation failed", zap.Int("attempt", n), zap.Error(err))
			return out, fmt.Errorf("attempt %d: %w", n, err)
		}

		l.emit(Event{State: StateValidate, Attempt: n})
		result := l.Enforcer.Validate(src)
		out.Attempts = append(out.Attempts, Attempt{Number: n, Source: src, Result: result, Duration: time.Since(start)})
		out.Source, out.Result = src, result
		logger.Info("candidate validated",
			zap.Int("attempt", n),
			zap.Bool("valid", result.Valid),
			zap.Int("errors", result.ErrorsCount),
			zap.Int("warnings", result.WarningsCount),
		)

		if result.Valid {
			out.State = StateAccept
			l.emit(Event{State: StateAccept, Attempt: n, Result: result})
			return out, nil
		}
		if n >= maxAttempts {
			out.State = StateFail
			l.emit(Event{State: StateFail, Attempt: n, Result: result})
			return out, fmt.Errorf("%w after %d attempts: %s", ErrAttemptsExhausted, n, result.Summary())
		}

		out.State = StateRetry
		l.emit(Event{State: StateRetry, Attempt: n, Result: result})
		req.Feedback = result.Errors()
	}
}

func (l *Loop) emit(e Event) {
	if l.Observer != nil {
		l.Observer(e)
	}
}
