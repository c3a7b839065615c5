package constraint

import (
	"fmt"
	"go/ast"
	"strings"
)

// LoggingRule flags console printing and the standard library logger in
// favour of the structured zap logger.
type LoggingRule struct{}

func (LoggingRule) Name() string { return "logging" }

func (LoggingRule) Check(f *SourceFile, _ Config) []Violation {
	var out []Violation
	ast.Inspect(f.File, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}

		var what string
		if id, ok := call.Fun.(*ast.Ident); ok && (id.Name == "print" || id.Name == "println") {
			what = id.Name
		} else if pkg, fn, ok := f.qualifiedCall(call); ok {
			switch {
			case pkg == "fmt" && strings.HasPrefix(fn, "Print"):
				what = "fmt." + fn
			case pkg == "fmt" && strings.HasPrefix(fn, "Fprint") && len(call.Args) > 0 &&
				(f.isPackageSelector(call.Args[0], "os", "Stdout") || f.isPackageSelector(call.Args[0], "os", "Stderr")):
				what = "fmt." + fn + " to " + exprString(call.Args[0])
			case pkg == "log" && (strings.HasPrefix(fn, "Print") || strings.HasPrefix(fn, "Fatal") || strings.HasPrefix(fn, "Panic")):
				what = "log." + fn
			}
		}
		if what == "" {
			return true
		}

		out = append(out, Violation{
			RuleID:     RuleStructuredLogging,
			Severity:   Warning,
			Message:    fmt.Sprintf("%s writes unstructured output", what),
			Line:       f.Line(call.Pos()),
			Suggestion: `log through the injected *zap.Logger, e.g. logger.Info("message", zap.String("key", value))`,
		})
		return true
	})
	return out
}
