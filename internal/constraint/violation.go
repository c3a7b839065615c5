package constraint

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity represents the severity level of a violation
type Severity int

const (
	Warning Severity = iota
	Error
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity converts "warning" or "error" into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	default:
		return Error, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalJSON implements json.Marshaler for Severity
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Severity
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Rule IDs reported in violations.
const (
	RuleSyntaxError          = "syntax-error"
	RuleInterfaceConformance = "interface-conformance"
	RuleDependencyInjection  = "dependency-injection"
	RuleTypeAnnotation       = "type-annotation"
	RuleImportAllowlist      = "import-allowlist"
	RuleCyclomaticComplexity = "complexity-cyclomatic"
	RuleFunctionLength       = "complexity-function-length"
	RuleTypeLength           = "complexity-type-length"
	RuleDynamicExec          = "security-dynamic-exec"
	RuleHardcodedCredential  = "security-hardcoded-credential"
	RuleSQLInjection         = "security-sql-injection"
	RuleStructuredLogging    = "structured-logging"
)

// RuleIDs lists every rule ID in reporting order.
func RuleIDs() []string {
	return []string{
		RuleSyntaxError,
		RuleInterfaceConformance,
		RuleDependencyInjection,
		RuleTypeAnnotation,
		RuleImportAllowlist,
		RuleCyclomaticComplexity,
		RuleFunctionLength,
		RuleTypeLength,
		RuleDynamicExec,
		RuleHardcodedCredential,
		RuleSQLInjection,
		RuleStructuredLogging,
	}
}

// Violation is one constraint failure. Line is 1-based; zero means the
// violation is not tied to a line.
type Violation struct {
	RuleID     string
	Severity   Severity
	Message    string
	Line       int
	Suggestion string
}

// IsError reports whether the violation has error severity.
func (v Violation) IsError() bool {
	return v.Severity == Error
}

// String renders the violation on one line.
func (v Violation) String() string {
	loc := "-"
	if v.Line > 0 {
		loc = fmt.Sprintf("line %d", v.Line)
	}
	return fmt.Sprintf("%s [%s] %s: %s", loc, v.Severity, v.RuleID, v.Message)
}

// MarshalJSON implements json.Marshaler. A zero line is written as null.
func (v Violation) MarshalJSON() ([]byte, error) {
	var line *int
	if v.Line > 0 {
		l := v.Line
		line = &l
	}
	return json.Marshal(struct {
		RuleID     string   `json:"rule_id"`
		Severity   Severity `json:"severity"`
		Message    string   `json:"message"`
		Line       *int     `json:"line"`
		Suggestion string   `json:"suggestion"`
	}{
		RuleID:     v.RuleID,
		Severity:   v.Severity,
		Message:    v.Message,
		Line:       line,
		Suggestion: v.Suggestion,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Violation) UnmarshalJSON(data []byte) error {
	var raw struct {
		RuleID     string   `json:"rule_id"`
		Severity   Severity `json:"severity"`
		Message    string   `json:"message"`
		Line       *int     `json:"line"`
		Suggestion string   `json:"suggestion"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Violation{
		RuleID:     raw.RuleID,
		Severity:   raw.Severity,
		Message:    raw.Message,
		Suggestion: raw.Suggestion,
	}
	if raw.Line != nil {
		v.Line = *raw.Line
	}
	return nil
}

// ValidationResult aggregates the violations found in one code unit.
type ValidationResult struct {
	Valid         bool        `json:"valid"`
	ErrorsCount   int         `json:"errors_count"`
	WarningsCount int         `json:"warnings_count"`
	Violations    []Violation `json:"violations"`
}

// NewValidationResult builds a result and derives its counts. Violations are
// ordered by line, keeping rule order for violations on the same line.
func NewValidationResult(violations []Violation) *ValidationResult {
	vs := make([]Violation, len(violations))
	copy(vs, violations)
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Line < vs[j].Line
	})

	r := &ValidationResult{Violations: vs}
	for _, v := range vs {
		if v.IsError() {
			r.ErrorsCount++
		} else {
			r.WarningsCount++
		}
	}
	r.Valid = r.ErrorsCount == 0
	return r
}

// Errors returns the error-severity violations.
func (r *ValidationResult) Errors() []Violation {
	return r.filter(Error)
}

// Warnings returns the warning-severity violations.
func (r *ValidationResult) Warnings() []Violation {
	return r.filter(Warning)
}

func (r *ValidationResult) filter(s Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == s {
			out = append(out, v)
		}
	}
	return out
}

// Report renders the result as an indented JSON report.
func (r *ValidationResult) Report() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Summary returns a one-line count summary.
func (r *ValidationResult) Summary() string {
	status := "valid"
	if !r.Valid {
		status = "invalid"
	}
	return fmt.Sprintf("%s: %d error(s), %d warning(s)", status, r.ErrorsCount, r.WarningsCount)
}

// Feedback formats error violations as plain text suitable for another
// generation attempt.
func (r *ValidationResult) Feedback() string {
	var b strings.Builder
	for _, v := range r.Errors() {
		b.WriteString("- ")
		b.WriteString(v.String())
		if v.Suggestion != "" {
			b.WriteString("\n  fix: ")
			b.WriteString(v.Suggestion)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
