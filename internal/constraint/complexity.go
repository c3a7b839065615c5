package constraint

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
)

// ComplexityRule limits cyclomatic complexity, function length and type
// length. Values past the limit are warnings; past HardMultiple times the
// limit they are errors.
type ComplexityRule struct{}

func (ComplexityRule) Name() string { return "complexity" }

func (r ComplexityRule) Check(f *SourceFile, cfg Config) []Violation {
	var out []Violation

	typeLines := map[string]int{}
	typeLine := map[string]int{}
	for _, ts := range f.structTypes() {
		typeLines[ts.Name.Name] = f.Lines(ts)
		typeLine[ts.Name.Name] = f.Line(ts.Pos())
	}

	for _, fn := range f.funcs() {
		if fn.Body == nil {
			continue
		}
		name := fn.Name.Name
		if recv := receiverType(fn); recv != "" {
			name = recv + "." + name
			if _, ok := typeLines[recv]; ok {
				typeLines[recv] += f.Lines(fn)
			}
		}

		if c := Cyclomatic(fn); c > cfg.MaxCyclomatic {
			out = append(out, Violation{
				RuleID:     RuleCyclomaticComplexity,
				Severity:   r.severity(c, cfg.MaxCyclomatic, cfg.HardMultiple),
				Message:    fmt.Sprintf("function %s has cyclomatic complexity %d (limit %d)", name, c, cfg.MaxCyclomatic),
				Line:       f.Line(fn.Pos()),
				Suggestion: "split the function into smaller helpers",
			})
		}
		if n := f.Lines(fn); n > cfg.MaxFunctionLines {
			out = append(out, Violation{
				RuleID:     RuleFunctionLength,
				Severity:   r.severity(n, cfg.MaxFunctionLines, cfg.HardMultiple),
				Message:    fmt.Sprintf("function %s is %d lines long (limit %d)", name, n, cfg.MaxFunctionLines),
				Line:       f.Line(fn.Pos()),
				Suggestion: "extract parts of the function body into helpers",
			})
		}
	}

	names := make([]string, 0, len(typeLines))
	for name := range typeLines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n := typeLines[name]
		if n <= cfg.MaxTypeLines {
			continue
		}
		out = append(out, Violation{
			RuleID:     RuleTypeLength,
			Severity:   r.severity(n, cfg.MaxTypeLines, cfg.HardMultiple),
			Message:    fmt.Sprintf("type %s and its methods span %d lines (limit %d)", name, n, cfg.MaxTypeLines),
			Line:       typeLine[name],
			Suggestion: "move unrelated behaviour into a separate type",
		})
	}
	return out
}

func (ComplexityRule) severity(value, limit int, multiple float64) Severity {
	if multiple > 0 && float64(value) > float64(limit)*multiple {
		return Error
	}
	return Warning
}

// Cyclomatic returns the cyclomatic complexity of a function: one plus the
// number of decision points, including those in nested function literals.
func Cyclomatic(fn *ast.FuncDecl) int {
	c := 1
	ast.Inspect(fn, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if x.List != nil {
				c++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}
