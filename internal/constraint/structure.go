package constraint

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// InterfaceRule requires extractor types to declare conformance to the
// extractor interface, either with a compile-time assertion or by embedding
// the base type.
type InterfaceRule struct{}

func (InterfaceRule) Name() string { return "interface" }

func (InterfaceRule) Check(f *SourceFile, cfg Config) []Violation {
	asserted := assertedTypes(f, lastName(cfg.RequiredInterface))

	var out []Violation
	for _, ts := range f.structTypes() {
		name := ts.Name.Name
		if !cfg.isExtractor(name) || asserted[name] || embeds(ts, cfg.BaseType) {
			continue
		}
		out = append(out, Violation{
			RuleID:   RuleInterfaceConformance,
			Severity: Error,
			Message: fmt.Sprintf("type %s does not declare that it implements %s",
				name, cfg.RequiredInterface),
			Line: f.Line(ts.Pos()),
			Suggestion: fmt.Sprintf("add `var _ %s = (*%s)(nil)` or embed %s",
				cfg.RequiredInterface, name, cfg.BaseType),
		})
	}
	return out
}

// assertedTypes collects types named in top-level `var _ Iface = ...`
// assertions.
func assertedTypes(f *SourceFile, iface string) map[string]bool {
	out := map[string]bool{}
	for _, decl := range f.File.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			if vs.Type == nil || lastName(exprString(vs.Type)) != iface {
				continue
			}
			for i, n := range vs.Names {
				if n.Name != "_" || i >= len(vs.Values) {
					continue
				}
				if t := assertedType(vs.Values[i]); t != "" {
					out[t] = true
				}
			}
		}
	}
	return out
}

// assertedType extracts T from (*T)(nil), &T{}, T{} and new(T).
func assertedType(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.CallExpr:
		if id, ok := x.Fun.(*ast.Ident); ok && id.Name == "new" && len(x.Args) == 1 {
			return identName(x.Args[0])
		}
		fun := x.Fun
		if p, ok := fun.(*ast.ParenExpr); ok {
			fun = p.X
		}
		if star, ok := fun.(*ast.StarExpr); ok {
			return identName(star.X)
		}
	case *ast.UnaryExpr:
		if x.Op == token.AND {
			return assertedType(x.X)
		}
	case *ast.CompositeLit:
		return identName(x.Type)
	}
	return ""
}

func identName(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func embeds(ts *ast.TypeSpec, base string) bool {
	if base == "" {
		return false
	}
	st := ts.Type.(*ast.StructType)
	for _, field := range st.Fields.List {
		if len(field.Names) > 0 {
			continue
		}
		if lastName(exprString(field.Type)) == lastName(base) {
			return true
		}
	}
	return false
}

// InjectionRule requires constructors of designated types to carry the
// injection directive so the wiring layer can supply their dependencies.
type InjectionRule struct{}

func (InjectionRule) Name() string { return "dependency-injection" }

func (InjectionRule) Check(f *SourceFile, cfg Config) []Violation {
	ctors := map[string]*ast.FuncDecl{}
	for _, fn := range f.funcs() {
		if fn.Recv == nil && strings.HasPrefix(fn.Name.Name, "New") {
			ctors[strings.TrimPrefix(fn.Name.Name, "New")] = fn
		}
	}

	var out []Violation
	for _, ts := range f.structTypes() {
		name := ts.Name.Name
		if !cfg.injectable(name) {
			continue
		}
		ctor, ok := ctors[name]
		if !ok {
			out = append(out, Violation{
				RuleID:     RuleDependencyInjection,
				Severity:   Warning,
				Message:    fmt.Sprintf("type %s has no constructor New%s", name, name),
				Line:       f.Line(ts.Pos()),
				Suggestion: fmt.Sprintf("add %s\nfunc New%s(logger *zap.Logger) *%s", cfg.InjectDirective, name, name),
			})
			continue
		}
		if hasDirective(ctor.Doc, cfg.InjectDirective) {
			continue
		}
		out = append(out, Violation{
			RuleID:     RuleDependencyInjection,
			Severity:   Error,
			Message:    fmt.Sprintf("constructor New%s is missing the %s directive", name, cfg.InjectDirective),
			Line:       f.Line(ctor.Pos()),
			Suggestion: fmt.Sprintf("add `%s` on the line above func New%s", cfg.InjectDirective, name),
		})
	}
	return out
}

func hasDirective(doc *ast.CommentGroup, directive string) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == directive {
			return true
		}
	}
	return false
}

// TypeHintRule flags parameters and results typed as the empty interface.
type TypeHintRule struct{}

func (TypeHintRule) Name() string { return "type-hints" }

func (TypeHintRule) Check(f *SourceFile, _ Config) []Violation {
	var out []Violation
	check := func(fn string, fields *ast.FieldList, kind string) {
		if fields == nil {
			return
		}
		for _, field := range fields.List {
			if !isEmptyInterface(field.Type) {
				continue
			}
			what := kind
			if len(field.Names) > 0 {
				what = fmt.Sprintf("%s %s", kind, field.Names[0].Name)
			}
			out = append(out, Violation{
				RuleID:     RuleTypeAnnotation,
				Severity:   Warning,
				Message:    fmt.Sprintf("%s of %s is untyped (%s)", what, fn, exprString(field.Type)),
				Line:       f.Line(field.Pos()),
				Suggestion: "declare a concrete type or a narrow interface",
			})
		}
	}

	for _, fn := range f.funcs() {
		name := fn.Name.Name
		if recv := receiverType(fn); recv != "" {
			name = recv + "." + name
		}
		check(name, fn.Type.Params, "parameter")
		check(name, fn.Type.Results, "result")
	}
	return out
}

func isEmptyInterface(e ast.Expr) bool {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name == "any"
	case *ast.InterfaceType:
		return t.Methods == nil || len(t.Methods.List) == 0
	case *ast.Ellipsis:
		return isEmptyInterface(t.Elt)
	}
	return false
}

// ImportRule enforces the import allow-list.
type ImportRule struct{}

func (ImportRule) Name() string { return "imports" }

func (ImportRule) Check(f *SourceFile, cfg Config) []Violation {
	var out []Violation
	for _, spec := range f.File.Imports {
		p := strings.Trim(spec.Path.Value, "`\"")
		if reason, denied := cfg.DeniedImports[p]; denied {
			out = append(out, Violation{
				RuleID:     RuleImportAllowlist,
				Severity:   Error,
				Message:    fmt.Sprintf("import %q is not permitted: %s", p, reason),
				Line:       f.Line(spec.Pos()),
				Suggestion: "remove the import; extractors operate on the input value only",
			})
			continue
		}
		if cfg.importAllowed(p) {
			continue
		}
		out = append(out, Violation{
			RuleID:     RuleImportAllowlist,
			Severity:   Error,
			Message:    fmt.Sprintf("import %q is not on the allow-list", p),
			Line:       f.Line(spec.Pos()),
			Suggestion: "use only: " + strings.Join(cfg.AllowedImports, ", "),
		})
	}
	return out
}
