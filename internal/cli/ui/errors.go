package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/transmute/internal/constraint"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

func levelStyle(level ErrorLevel) (header, body *color.Color, symbol string) {
	switch level {
	case ErrorLevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠"
	case ErrorLevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "✗"
	}
}

// FormatError creates a standardized error message with suggestions and help
// commands.
//
// Example output:
//
//	✗ UNKNOWN PRESET: balansed
//	   No threshold preset is named "balansed".
//
//	   Did you mean: balanced?
//
//	   → List presets: transmute presets
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header, body, symbol := levelStyle(opts.Level)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	if opts.NoColor {
		for _, c := range []*color.Color{header, body, cyan, yellow} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		if opts.Problem != "" {
			body.Fprintf(&b, "   %s\n", opts.Problem)
		}
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		body.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelWarning,
		Problem: message,
		NoColor: noColor,
	})
}

// UnknownPresetError reports a preset name that does not exist.
func UnknownPresetError(name string, known []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "UNKNOWN PRESET",
		Problem:      fmt.Sprintf("No threshold preset is named %q.", name),
		Suggestions:  FindSimilar(name, known, nil),
		HelpCommands: []string{"List presets: transmute presets"},
		NoColor:      noColor,
	})
}

// ConfigError reports an unusable configuration.
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"View config: cat transmute.yaml",
			"Get help: transmute --help",
		},
		NoColor: noColor,
	})
}

// FormatViolation renders one violation as a single colored line, prefixed
// with its location.
//
//	extractor.go:3: error [import-allowlist] import "os/exec" is not on the allow-list
func FormatViolation(file string, v constraint.Violation, noColor bool) string {
	sev := color.New(color.FgYellow, color.Bold)
	if v.IsError() {
		sev = color.New(color.FgRed, color.Bold)
	}
	gray := color.New(color.FgHiBlack)
	if noColor {
		sev.DisableColor()
		gray.DisableColor()
	}

	loc := file
	if v.Line > 0 {
		loc = fmt.Sprintf("%s:%d", file, v.Line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s %s", loc, sev.Sprint(v.Severity), gray.Sprintf("[%s]", v.RuleID), v.Message)
	if v.Suggestion != "" {
		b.WriteString("\n    ")
		b.WriteString(gray.Sprint(v.Suggestion))
	}
	return b.String()
}
