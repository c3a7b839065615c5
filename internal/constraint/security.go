package constraint

import (
	"fmt"
	"go/ast"
	"go/token"
	"regexp"
	"strconv"
	"strings"
)

var (
	credentialName = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|password|passwd|pwd|token|access[_-]?key|private[_-]?key|credential)`)

	// envVarName matches values that name an environment variable rather
	// than holding a secret.
	envVarName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
)

// execCalls lists process and code execution entry points by import path.
var execCalls = map[string]map[string]bool{
	"os/exec": {"Command": true, "CommandContext": true},
	"os":      {"StartProcess": true},
	"syscall": {"Exec": true, "ForkExec": true, "StartProcess": true},
	"plugin":  {"Open": true},
	"unsafe":  {"Pointer": true},
}

// reflectCalls are method calls that invoke code chosen at run time. They are
// checked only in files importing reflect.
var reflectCalls = map[string]bool{"Call": true, "CallSlice": true, "MethodByName": true}

// queryMethods maps query-execution method names to the index of their SQL
// argument.
var queryMethods = map[string]int{
	"Query":           0,
	"QueryRow":        0,
	"Exec":            0,
	"Prepare":         0,
	"Queryx":          0,
	"QueryRowx":       0,
	"NamedExec":       0,
	"NamedQuery":      0,
	"Raw":             0,
	"QueryContext":    1,
	"QueryRowContext": 1,
	"ExecContext":     1,
	"PrepareContext":  1,
	"QueryxContext":   1,
}

// SecurityRule flags process execution, hardcoded credentials and SQL built
// by string interpolation.
type SecurityRule struct{}

func (SecurityRule) Name() string { return "security" }

func (r SecurityRule) Check(f *SourceFile, _ Config) []Violation {
	var out []Violation
	out = append(out, r.dynamicExec(f)...)
	out = append(out, r.credentials(f)...)
	for _, fn := range f.funcs() {
		if fn.Body != nil {
			out = append(out, sqlInjection(f, fn.Body)...)
		}
	}
	for _, lit := range f.declFuncLits() {
		out = append(out, sqlInjection(f, lit.Body)...)
	}
	return out
}

func (SecurityRule) dynamicExec(f *SourceFile) []Violation {
	var out []Violation
	usesReflect := f.hasImport("reflect")
	ast.Inspect(f.File, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		var msg string
		if pkg, fn, ok := f.qualifiedCall(call); ok {
			switch {
			case pkg == "unsafe" && execCalls[pkg][fn]:
				msg = "conversion to unsafe.Pointer bypasses type safety"
			case execCalls[pkg][fn]:
				msg = fmt.Sprintf("call to %s.%s executes external code", pkg, fn)
			}
		} else if sel, ok := call.Fun.(*ast.SelectorExpr); ok && usesReflect && reflectCalls[sel.Sel.Name] {
			msg = fmt.Sprintf("reflective %s invokes a method chosen at run time", sel.Sel.Name)
		}
		if msg == "" {
			return true
		}
		out = append(out, Violation{
			RuleID:     RuleDynamicExec,
			Severity:   Error,
			Message:    msg,
			Line:       f.Line(call.Pos()),
			Suggestion: "transform the input in-process with statically typed code",
		})
		return true
	})
	return out
}

func (SecurityRule) credentials(f *SourceFile) []Violation {
	var out []Violation
	report := func(name string, value ast.Expr) {
		lit, ok := value.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING || !credentialName.MatchString(name) {
			return
		}
		s, err := strconv.Unquote(lit.Value)
		if err != nil || len(s) < 4 || envVarName.MatchString(s) {
			return
		}
		out = append(out, Violation{
			RuleID:     RuleHardcodedCredential,
			Severity:   Error,
			Message:    fmt.Sprintf("%s is assigned a hardcoded credential", name),
			Line:       f.Line(lit.Pos()),
			Suggestion: fmt.Sprintf("read the value from the environment, e.g. os.Getenv(%q)", envKey(name)),
		})
	}

	ast.Inspect(f.File, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.ValueSpec:
			for i, name := range x.Names {
				if i < len(x.Values) {
					report(name.Name, x.Values[i])
				}
			}
		case *ast.AssignStmt:
			if len(x.Lhs) != len(x.Rhs) {
				return true
			}
			for i, lhs := range x.Lhs {
				if name := assignedName(lhs); name != "" {
					report(name, x.Rhs[i])
				}
			}
		case *ast.KeyValueExpr:
			if key, ok := x.Key.(*ast.Ident); ok {
				report(key.Name, x.Value)
			}
			if key, ok := x.Key.(*ast.BasicLit); ok && key.Kind == token.STRING {
				if s, err := strconv.Unquote(key.Value); err == nil {
					report(s, x.Value)
				}
			}
		}
		return true
	})
	return out
}

func assignedName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	case *ast.IndexExpr:
		if lit, ok := x.Index.(*ast.BasicLit); ok && lit.Kind == token.STRING {
			s, _ := strconv.Unquote(lit.Value)
			return s
		}
	}
	return ""
}

// envKey converts an identifier such as apiKey into API_KEY.
func envKey(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := name[i-1]
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
		}
		if r == '-' {
			r = '_'
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// sqlInjection runs two passes over a function body. The first marks local
// variables holding interpolated strings, following copies and +=, and string
// builders written with non-literal data. The second flags query calls whose
// SQL argument is interpolated inline or is a marked variable.
func sqlInjection(f *SourceFile, body *ast.BlockStmt) []Violation {
	tainted := map[string]bool{}

	ast.Inspect(body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.CallExpr:
			if b := writtenBuilder(f, x); b != "" {
				tainted[b] = true
			}
		case *ast.AssignStmt:
			if x.Tok == token.ADD_ASSIGN {
				for i, lhs := range x.Lhs {
					if id, ok := lhs.(*ast.Ident); ok && i < len(x.Rhs) && !isStringLit(x.Rhs[i]) {
						tainted[id.Name] = true
					}
				}
				return true
			}
			if len(x.Lhs) != len(x.Rhs) {
				return true
			}
			for i, lhs := range x.Lhs {
				if id, ok := lhs.(*ast.Ident); ok && interpolated(f, x.Rhs[i], tainted) {
					tainted[id.Name] = true
				}
			}
		case *ast.ValueSpec:
			for i, name := range x.Names {
				if i < len(x.Values) && interpolated(f, x.Values[i], tainted) {
					tainted[name.Name] = true
				}
			}
		}
		return true
	})

	var out []Violation
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		idx, ok := queryMethods[sel.Sel.Name]
		if !ok || idx >= len(call.Args) {
			return true
		}
		if _, isPkg := f.ImportPath(identName(sel.X)); isPkg {
			return true
		}

		arg := unparen(call.Args[idx])
		var msg string
		switch {
		case isTainted(arg, tainted):
			msg = fmt.Sprintf("%s is called with %s, which holds a query built by string interpolation",
				sel.Sel.Name, identName(arg))
		case interpolated(f, arg, tainted):
			msg = fmt.Sprintf("%s is called with a query built by string interpolation", sel.Sel.Name)
		default:
			return true
		}
		out = append(out, Violation{
			RuleID:     RuleSQLInjection,
			Severity:   Error,
			Message:    msg,
			Line:       f.Line(call.Pos()),
			Suggestion: "use placeholders ($1 or ?) and pass values as query arguments",
		})
		return true
	})
	return out
}

// interpolated reports whether e builds a string from non-literal parts:
// fmt.Sprintf with arguments, fmt.Sprint or Sprintln of a non-literal,
// strings.Join of anything but literals, String on a marked builder, or a +
// chain mixing a literal with other operands. Marked variables count as
// non-literal operands.
func interpolated(f *SourceFile, e ast.Expr, tainted map[string]bool) bool {
	e = unparen(e)
	switch x := e.(type) {
	case *ast.Ident:
		return tainted[x.Name]
	case *ast.CallExpr:
		pkg, fn, ok := f.qualifiedCall(x)
		if !ok {
			sel, isSel := x.Fun.(*ast.SelectorExpr)
			return isSel && sel.Sel.Name == "String" && len(x.Args) == 0 && isTainted(sel.X, tainted)
		}
		switch {
		case pkg == "fmt" && fn == "Sprintf":
			return len(x.Args) > 1
		case pkg == "fmt" && (fn == "Sprint" || fn == "Sprintln"):
			return anyDynamic(x.Args)
		case pkg == "strings" && fn == "Join":
			return len(x.Args) > 0 && !literalSlice(x.Args[0])
		}
		return false
	case *ast.BinaryExpr:
		if x.Op != token.ADD {
			return false
		}
		operands := concatOperands(x)
		hasLit, hasDynamic := false, false
		for _, op := range operands {
			if isStringLit(op) {
				hasLit = true
				continue
			}
			if _, isNum := op.(*ast.BasicLit); isNum {
				continue
			}
			hasDynamic = true
			if isTainted(op, tainted) {
				return true
			}
		}
		return hasLit && hasDynamic
	}
	return false
}

// writtenBuilder returns the builder variable a call writes non-literal data
// to: b.WriteString(x), b.Write(x), b.WriteByte(x), b.WriteRune(x), or
// fmt.Fprint, Fprintf and Fprintln into &b.
func writtenBuilder(f *SourceFile, call *ast.CallExpr) string {
	if pkg, fn, ok := f.qualifiedCall(call); ok {
		if pkg != "fmt" || len(call.Args) < 2 {
			return ""
		}
		dst, ok := unparen(call.Args[0]).(*ast.UnaryExpr)
		if !ok || dst.Op != token.AND {
			return ""
		}
		args := call.Args[1:]
		switch fn {
		case "Fprintf":
			args = args[1:]
		case "Fprint", "Fprintln":
		default:
			return ""
		}
		if len(args) == 0 || !anyDynamic(args) {
			return ""
		}
		return identName(dst.X)
	}

	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || len(call.Args) != 1 {
		return ""
	}
	switch sel.Sel.Name {
	case "WriteString", "Write", "WriteByte", "WriteRune":
	default:
		return ""
	}
	if !anyDynamic(call.Args) {
		return ""
	}
	if id, ok := unparen(sel.X).(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// anyDynamic reports whether any expression is not a basic literal.
func anyDynamic(exprs []ast.Expr) bool {
	for _, e := range exprs {
		if _, ok := unparen(e).(*ast.BasicLit); !ok {
			return true
		}
	}
	return false
}

// literalSlice reports whether e is a composite literal of string literals.
func literalSlice(e ast.Expr) bool {
	lit, ok := unparen(e).(*ast.CompositeLit)
	if !ok {
		return false
	}
	for _, elt := range lit.Elts {
		if !isStringLit(elt) {
			return false
		}
	}
	return true
}

func concatOperands(e ast.Expr) []ast.Expr {
	e = unparen(e)
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op == token.ADD {
		return append(concatOperands(b.X), concatOperands(b.Y)...)
	}
	return []ast.Expr{e}
}

func isTainted(e ast.Expr, tainted map[string]bool) bool {
	id, ok := unparen(e).(*ast.Ident)
	return ok && tainted[id.Name]
}

func isStringLit(e ast.Expr) bool {
	lit, ok := unparen(e).(*ast.BasicLit)
	return ok && lit.Kind == token.STRING
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
