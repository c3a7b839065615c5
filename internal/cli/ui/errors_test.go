package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/transmute/internal/constraint"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name:     "context and problem",
			opts:     ErrorOptions{Context: "bad input", Problem: "Example 2 has no output."},
			contains: []string{"✗ BAD INPUT\n", "   Example 2 has no output.\n"},
		},
		{
			name:     "problem only",
			opts:     ErrorOptions{Level: ErrorLevelWarning, Problem: "low confidence"},
			contains: []string{"⚠ low confidence\n"},
		},
		{
			name:     "suggestions",
			opts:     ErrorOptions{Problem: "x", Suggestions: []string{"strict", "balanced"}},
			contains: []string{"Did you mean: strict, balanced?"},
		},
		{
			name:     "help commands",
			opts:     ErrorOptions{Level: ErrorLevelInfo, Problem: "x", HelpCommands: []string{"List presets: transmute presets"}},
			contains: []string{"ℹ x", "→ List presets: transmute presets"},
		},
		{
			name:     "consequence",
			opts:     ErrorOptions{Problem: "x", Consequence: "nothing was written"},
			contains: []string{"\n   nothing was written\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestUnknownPresetError(t *testing.T) {
	out := UnknownPresetError("balansed", []string{"strict", "balanced", "exploratory"}, true)

	assert.Contains(t, out, "UNKNOWN PRESET")
	assert.Contains(t, out, `"balansed"`)
	assert.Contains(t, out, "Did you mean: balanced?")
	assert.Contains(t, out, "transmute presets")
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "done", true)
	assert.Equal(t, "✓ done\n", buf.String())
}

func TestFormatViolation(t *testing.T) {
	v := constraint.Violation{
		RuleID:     constraint.RuleImportAllowlist,
		Severity:   constraint.Error,
		Message:    `import "os/exec" is not on the allow-list`,
		Line:       3,
		Suggestion: "remove it",
	}
	assert.Equal(t,
		"x.go:3: error [import-allowlist] import \"os/exec\" is not on the allow-list\n    remove it",
		FormatViolation("x.go", v, true))

	v.Line = 0
	v.Suggestion = ""
	v.Severity = constraint.Warning
	assert.Equal(t,
		"x.go: warning [import-allowlist] import \"os/exec\" is not on the allow-list",
		FormatViolation("x.go", v, true))
}
