package constraint

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"path"
	"strconv"
	"strings"
)

// SourceFile is a parsed code unit handed to every rule.
type SourceFile struct {
	Name   string
	Source string
	Fset   *token.FileSet
	File   *ast.File

	// imports maps the local package name to its import path
	imports map[string]string
}

// ParseSource parses Go source text. The returned error is a
// scanner.ErrorList when the text is not valid Go.
func ParseSource(name, source string) (*SourceFile, error) {
	if name == "" {
		name = "generated.go"
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, source, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	sf := &SourceFile{
		Name:    name,
		Source:  source,
		Fset:    fset,
		File:    file,
		imports: make(map[string]string),
	}
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		local := importName(p)
		if spec.Name != nil {
			if spec.Name.Name == "_" || spec.Name.Name == "." {
				continue
			}
			local = spec.Name.Name
		}
		sf.imports[local] = p
	}
	return sf, nil
}

// Line returns the 1-based line of pos.
func (f *SourceFile) Line(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return f.Fset.Position(pos).Line
}

// Lines returns the number of lines spanned by a node.
func (f *SourceFile) Lines(n ast.Node) int {
	return f.Line(n.End()) - f.Line(n.Pos()) + 1
}

// ImportPath resolves a local package name to its import path.
func (f *SourceFile) ImportPath(local string) (string, bool) {
	p, ok := f.imports[local]
	return p, ok
}

// hasImport reports whether the file imports path under any name.
func (f *SourceFile) hasImport(path string) bool {
	for _, spec := range f.File.Imports {
		if p, err := strconv.Unquote(spec.Path.Value); err == nil && p == path {
			return true
		}
	}
	return false
}

// qualifiedCall matches calls of the form pkg.Func where pkg resolves to an
// imported package. It returns the import path and function name.
func (f *SourceFile) qualifiedCall(call *ast.CallExpr) (string, string, bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", "", false
	}
	id, ok := sel.X.(*ast.Ident)
	if !ok {
		return "", "", false
	}
	p, ok := f.imports[id.Name]
	if !ok {
		return "", "", false
	}
	return p, sel.Sel.Name, true
}

// isPackageSelector reports whether expr is pkgPath.name, e.g. os.Stdout.
func (f *SourceFile) isPackageSelector(expr ast.Expr, pkgPath, name string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != name {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && f.imports[id.Name] == pkgPath
}

// syntaxLine extracts the first line reported by a parse error.
func syntaxLine(err error) int {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Pos.Line
	}
	var single *scanner.Error
	if errors.As(err, &single) {
		return single.Pos.Line
	}
	return 0
}

func syntaxMessage(err error) string {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Msg
	}
	return err.Error()
}

// importName guesses the package name of an import path: the last element,
// skipping major version suffixes and trimming gopkg.in style versions.
func importName(p string) string {
	base := path.Base(p)
	if len(base) > 1 && base[0] == 'v' && isDigits(base[1:]) {
		base = path.Base(path.Dir(p))
	}
	if i := strings.Index(base, ".v"); i > 0 {
		base = base[:i]
	}
	return strings.ReplaceAll(base, "-", "")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func exprString(e ast.Expr) string {
	return types.ExprString(e)
}

// lastName strips a package qualifier and pointer from a type expression
// string: "*extractor.Base" becomes "Base".
func lastName(s string) string {
	s = strings.TrimPrefix(s, "*")
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// receiverType returns the base type name of a method receiver.
func receiverType(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	t := fn.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch x := t.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.IndexExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			return id.Name
		}
	case *ast.IndexListExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// structTypes returns the struct type specs declared at the top level.
func (f *SourceFile) structTypes() []*ast.TypeSpec {
	var out []*ast.TypeSpec
	for _, decl := range f.File.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			if _, ok := ts.Type.(*ast.StructType); ok {
				out = append(out, ts)
			}
		}
	}
	return out
}

// funcs returns the top-level function and method declarations.
func (f *SourceFile) funcs() []*ast.FuncDecl {
	var out []*ast.FuncDecl
	for _, decl := range f.File.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			out = append(out, fn)
		}
	}
	return out
}

// declFuncLits returns the outermost function literals in package-level
// declarations, such as var handler = func(...) {...}.
func (f *SourceFile) declFuncLits() []*ast.FuncLit {
	var out []*ast.FuncLit
	for _, decl := range f.File.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		ast.Inspect(gen, func(n ast.Node) bool {
			lit, ok := n.(*ast.FuncLit)
			if !ok {
				return true
			}
			out = append(out, lit)
			return false
		})
	}
	return out
}
