package constraint

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanSource = `package weather

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/pkg/extractor"
)

type WeatherExtractor struct {
	extractor.Base
}

var _ extractor.Extractor = (*WeatherExtractor)(nil)

//transmute:inject
func NewWeatherExtractor(logger *zap.Logger) *WeatherExtractor {
	return &WeatherExtractor{Base: extractor.NewBase("weather", logger)}
}

func (e *WeatherExtractor) Extract(ctx context.Context, input map[string]any) (map[string]any, error) {
	temp, err := extractor.Lookup(input, "main.temp")
	if err != nil {
		return nil, err
	}
	e.Logger().Debug("extracted", zap.Any("temp", temp))
	return map[string]any{"temperature_c": temp}, nil
}
`

func ruleIDs(r *ValidationResult) []string {
	ids := []string{}
	for _, v := range r.Violations {
		ids = append(ids, v.RuleID)
	}
	return ids
}

func TestValidate_CleanSource(t *testing.T) {
	r := NewEnforcer(DefaultConfig()).Validate(cleanSource)

	assert.True(t, r.Valid)
	assert.Empty(t, r.Violations, "unexpected: %v", r.Violations)
}

func TestValidate_SyntaxErrorShortCircuits(t *testing.T) {
	src := "package broken\n\nimport \"os/exec\"\n\nfunc run() {\n\tx := )\n\texec.Command(\"rm\")\n}\n"
	r := NewEnforcer(DefaultConfig()).Validate(src)

	require.Len(t, r.Violations, 1)
	v := r.Violations[0]
	assert.Equal(t, RuleSyntaxError, v.RuleID)
	assert.Equal(t, Error, v.Severity)
	assert.Equal(t, 6, v.Line)
	assert.False(t, r.Valid)
	assert.Equal(t, 1, r.ErrorsCount)
	assert.Zero(t, r.WarningsCount)
}

func TestValidate_NotGo(t *testing.T) {
	r := NewEnforcer(DefaultConfig()).Validate("def extract(data):\n    return data\n")
	require.Len(t, r.Violations, 1)
	assert.Equal(t, RuleSyntaxError, r.Violations[0].RuleID)
}

func TestValidate_SeverityOverride(t *testing.T) {
	src := `package p

import "fmt"

func Hello() {
	fmt.Println("hi")
}
`
	base := NewEnforcer(DefaultConfig())
	r := base.Validate(src)
	require.Equal(t, []string{RuleStructuredLogging}, ruleIDs(r))
	assert.True(t, r.Valid)

	byID := base.ValidateWith(src, &Config{Severities: map[string]Severity{RuleStructuredLogging: Error}})
	assert.False(t, byID.Valid)

	byName := base.ValidateWith(src, &Config{Severities: map[string]Severity{"logging": Error}})
	assert.False(t, byName.Valid)

	// rule ID takes precedence over rule name
	both := base.ValidateWith(src, &Config{Severities: map[string]Severity{
		"logging":             Error,
		RuleStructuredLogging: Warning,
	}})
	assert.True(t, both.Valid)

	// the enforcer's own config is untouched by overrides
	assert.True(t, base.Validate(src).Valid)
}

func TestValidate_DisabledRules(t *testing.T) {
	src := `package p

import "fmt"

func Hello(v any) {
	fmt.Println(v)
}
`
	e := NewEnforcer(DefaultConfig().WithDisabled("logging"))
	assert.Equal(t, []string{RuleTypeAnnotation}, ruleIDs(e.Validate(src)))

	e = NewEnforcer(DefaultConfig().WithDisabled(RuleTypeAnnotation))
	assert.Equal(t, []string{RuleStructuredLogging}, ruleIDs(e.Validate(src)))
}

func TestValidate_OrderIndependent(t *testing.T) {
	src := `package p

import (
	"fmt"
	"os/exec"
)

type BadExtractor struct{}

func Run(name string) {
	fmt.Println(name)
	exec.Command(name).Run()
}
`
	forward := NewEnforcer(DefaultConfig()).Validate(src)

	rules := DefaultRules()
	for i, j := 0, len(rules)-1; i < j; i, j = i+1, j-1 {
		rules[i], rules[j] = rules[j], rules[i]
	}
	reversed := NewEnforcer(DefaultConfig(), WithRules(rules...)).Validate(src)

	assert.ElementsMatch(t, forward.Violations, reversed.Violations)
	assert.Equal(t, forward.ErrorsCount, reversed.ErrorsCount)
	assert.Equal(t, forward.WarningsCount, reversed.WarningsCount)
}

type bannedWordRule struct{}

func (bannedWordRule) Name() string { return "banned-word" }

func (bannedWordRule) Check(f *SourceFile, _ Config) []Violation {
	if strings.Contains(f.Source, "HACK") {
		return []Violation{{RuleID: "banned-word", Severity: Error, Message: "HACK marker left in code"}}
	}
	return nil
}

func TestValidate_CustomRule(t *testing.T) {
	e := NewEnforcer(DefaultConfig(), WithRule(bannedWordRule{}))
	r := e.Validate(cleanSource + "\n// HACK skip validation\n")

	assert.Equal(t, []string{"banned-word"}, ruleIDs(r))
	assert.Len(t, e.Rules(), 8)
}

func TestValidateBatch(t *testing.T) {
	sources := []string{cleanSource, "package", cleanSource}
	results, err := NewEnforcer(DefaultConfig()).ValidateBatch(context.Background(), sources, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.True(t, results[2].Valid)
}

func TestValidationResult_Report(t *testing.T) {
	r := NewValidationResult([]Violation{
		{RuleID: RuleImportAllowlist, Severity: Error, Message: "m1", Line: 3, Suggestion: "s1"},
		{RuleID: "file-level", Severity: Warning, Message: "m2"},
	})

	data, err := r.Report()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["valid"])
	assert.Equal(t, 1.0, decoded["errors_count"])
	assert.Equal(t, 1.0, decoded["warnings_count"])

	violations := decoded["violations"].([]any)
	require.Len(t, violations, 2)
	first := violations[0].(map[string]any)
	assert.Equal(t, "file-level", first["rule_id"])
	assert.Nil(t, first["line"])
	second := violations[1].(map[string]any)
	assert.Equal(t, "error", second["severity"])
	assert.Equal(t, 3.0, second["line"])

	var back ValidationResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Violations, back.Violations)
}

func TestValidationResult_Derived(t *testing.T) {
	empty := NewValidationResult(nil)
	assert.True(t, empty.Valid)
	assert.NotNil(t, empty.Violations)

	warn := NewValidationResult([]Violation{{RuleID: "x", Severity: Warning}})
	assert.True(t, warn.Valid)
	assert.Equal(t, "valid: 0 error(s), 1 warning(s)", warn.Summary())
	assert.Empty(t, warn.Feedback())

	bad := NewValidationResult([]Violation{{RuleID: "x", Severity: Error, Message: "boom", Line: 2, Suggestion: "fix it"}})
	assert.False(t, bad.Valid)
	assert.Contains(t, bad.Feedback(), "line 2 [error] x: boom")
	assert.Contains(t, bad.Feedback(), "fix: fix it")
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("Warning")
	require.NoError(t, err)
	assert.Equal(t, Warning, s)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestConfig_MergeDoesNotMutate(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(Config{
		MaxCyclomatic: 3,
		DeniedImports: map[string]string{"reflect": "no reflection"},
	})

	assert.Equal(t, 3, merged.MaxCyclomatic)
	assert.Equal(t, 10, base.MaxCyclomatic)
	assert.Contains(t, merged.DeniedImports, "reflect")
	assert.NotContains(t, base.DeniedImports, "reflect")
	assert.Contains(t, merged.DeniedImports, "os/exec")
}

func TestRuleIDs_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range RuleIDs() {
		assert.False(t, seen[id], "duplicate rule ID %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 12)
}
