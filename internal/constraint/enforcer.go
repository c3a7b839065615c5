// Package constraint validates generated Go source against a fixed set of
// architectural and security rules. Rules are independent, hold no state and
// report problems as Violations rather than errors.
package constraint

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/batch"
)

// Rule checks one property of a parsed source file.
type Rule interface {
	// Name identifies the rule in configuration (severity overrides and
	// disabled lists).
	Name() string

	// Check returns the violations found in f. It must not modify f.
	Check(f *SourceFile, cfg Config) []Violation
}

// DefaultRules returns the built-in rules in reporting order.
func DefaultRules() []Rule {
	return []Rule{
		InterfaceRule{},
		InjectionRule{},
		TypeHintRule{},
		ImportRule{},
		ComplexityRule{},
		SecurityRule{},
		LoggingRule{},
	}
}

// Enforcer runs a set of rules over source text.
type Enforcer struct {
	cfg    Config
	rules  []Rule
	logger *zap.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithRules replaces the rule set.
func WithRules(rules ...Rule) Option {
	return func(e *Enforcer) {
		e.rules = append([]Rule(nil), rules...)
	}
}

// WithRule appends a rule to the rule set.
func WithRule(r Rule) Option {
	return func(e *Enforcer) {
		e.rules = append(e.rules, r)
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enforcer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEnforcer creates an enforcer with the default rules.
func NewEnforcer(cfg Config, opts ...Option) *Enforcer {
	e := &Enforcer{
		cfg:    cfg.clone(),
		rules:  DefaultRules(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a copy of the enforcer's configuration.
func (e *Enforcer) Config() Config {
	return e.cfg.clone()
}

// Rules returns the registered rules.
func (e *Enforcer) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Validate checks source with the enforcer's configuration.
func (e *Enforcer) Validate(source string) *ValidationResult {
	return e.validate("", source, e.cfg)
}

// ValidateWith checks source with override merged over the enforcer's
// configuration. A nil override behaves like Validate.
func (e *Enforcer) ValidateWith(source string, override *Config) *ValidationResult {
	cfg := e.cfg
	if override != nil {
		cfg = cfg.Merge(*override)
	}
	return e.validate("", source, cfg)
}

// ValidateFile is Validate with a file name used in parse positions.
func (e *Enforcer) ValidateFile(name, source string) *ValidationResult {
	return e.validate(name, source, e.cfg)
}

// ValidateBatch validates independent sources concurrently. Results keep the
// order of sources.
func (e *Enforcer) ValidateBatch(ctx context.Context, sources []string, concurrency int) ([]*ValidationResult, error) {
	return batch.Map(ctx, sources, concurrency, func(_ context.Context, _ int, src string) (*ValidationResult, error) {
		return e.Validate(src), nil
	})
}

func (e *Enforcer) validate(name, source string, cfg Config) *ValidationResult {
	file, err := ParseSource(name, source)
	if err != nil {
		e.logger.Debug("source failed to parse", zap.Error(err))
		return NewValidationResult([]Violation{{
			RuleID:     RuleSyntaxError,
			Severity:   Error,
			Message:    "source is not valid Go: " + syntaxMessage(err),
			Line:       syntaxLine(err),
			Suggestion: "return a complete Go file starting with a package clause",
		}})
	}

	var violations []Violation
	for _, rule := range e.rules {
		if cfg.disabled(rule.Name()) {
			continue
		}
		found := rule.Check(file, cfg)
		for _, v := range found {
			if cfg.disabled(v.RuleID) {
				continue
			}
			v.Severity = cfg.severity(v.RuleID, rule.Name(), v.Severity)
			violations = append(violations, v)
		}
		e.logger.Debug("rule checked",
			zap.String("rule", rule.Name()),
			zap.Int("violations", len(found)),
		)
	}

	result := NewValidationResult(violations)
	e.logger.Debug("validation complete",
		zap.Bool("valid", result.Valid),
		zap.Int("errors", result.ErrorsCount),
		zap.Int("warnings", result.WarningsCount),
	)
	return result
}
