package core

import (
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestServiceStructContract(t *testing.T) {
	pkg := loadCorePackage(t)

	obj := pkg.Types.Scope().Lookup("Service")
	if obj == nil {
		t.Fatalf("Service type not found in package")
	}
	named, ok := obj.Type().(*types.Named)
	if !ok {
		t.Fatalf("Service is not a named type")
	}
	structType, ok := named.Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("Service is not a struct")
	}

	qualifier := func(p *types.Package) string {
		if p == nil {
			return ""
		}
		return p.Path()
	}
	fields := make(map[string]string, structType.NumFields())
	for i := 0; i < structType.NumFields(); i++ {
		field := structType.Field(i)
		fields[field.Name()] = types.TypeString(field.Type(), qualifier)
	}

	required := map[string]string{
		"store":       "spacecore/pkg/domain.PersistentStore",
		"projections": "*spacecore/internal/projection.Writer",
		"logger":      "*go.uber.org/zap.Logger",
		"metrics":     "spacecore/internal/core.MetricsRecorder",
		"tracer":      "spacecore/internal/core.Tracer",
		"clock":       "func() time.Time",
	}

	var problems []string
	for name, want := range required {
		got, ok := fields[name]
		if !ok {
			problems = append(problems, "missing field "+name)
			continue
		}
		if got != want {
			problems = append(problems, fmt.Sprintf("%s: want %s, got %s", name, want, got))
		}
	}
	if len(problems) > 0 {
		t.Fatalf("service struct contract violated: %s", strings.Join(problems, "; "))
	}
}

// TestMutatingMethodsAreInstrumented checks that every exported Service
// method returning a Result flows through instrument, which is what wires
// tracing, metrics, and view regeneration. Delegating to another Service
// method that returns a Result counts, since the delegate is checked too.
func TestMutatingMethodsAreInstrumented(t *testing.T) {
	pkg := loadCorePackage(t)
	serviceFile := findFile(t, pkg, "service.go")

	delegates := map[string]bool{"instrument": true}
	for _, decl := range serviceFile.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil {
			continue
		}
		if _, isService := serviceReceiverName(fn); isService && methodReturnsResult(fn) {
			delegates[fn.Name.Name] = true
		}
	}

	var violations []string
	for _, decl := range serviceFile.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || fn.Body == nil {
			continue
		}
		recvName, isService := serviceReceiverName(fn)
		if !isService || !ast.IsExported(fn.Name.Name) {
			continue
		}
		if !methodReturnsResult(fn) {
			continue
		}
		if methodCallsDelegate(fn, recvName, delegates) {
			continue
		}
		pos := pkg.Fset.Position(fn.Pos())
		violations = append(violations, fmt.Sprintf("%s:%d %s", filepath.Base(pos.Filename), pos.Line, fn.Name.Name))
	}
	if len(violations) > 0 {
		t.Fatalf("service methods returning Result must delegate to instrument:\n%s", strings.Join(violations, "\n"))
	}
}

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()

	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode:  packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
			Tests: true,
		}
		pkgs, err := packages.Load(cfg, "spacecore/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "spacecore/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})

	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

func findFile(t *testing.T, pkg *packages.Package, target string) *ast.File {
	t.Helper()
	for _, file := range pkg.Syntax {
		pos := pkg.Fset.Position(file.Pos())
		if filepath.Base(pos.Filename) == target {
			return file
		}
	}
	t.Fatalf("failed to locate %s in package", target)
	return nil
}

func serviceReceiverName(fn *ast.FuncDecl) (string, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return "", false
	}
	recv := fn.Recv.List[0]
	var ident *ast.Ident
	switch expr := recv.Type.(type) {
	case *ast.StarExpr:
		if inner, ok := expr.X.(*ast.Ident); ok {
			ident = inner
		}
	case *ast.Ident:
		ident = expr
	}
	if ident == nil || ident.Name != "Service" {
		return "", false
	}
	if len(recv.Names) == 0 {
		return "", false
	}
	return recv.Names[0].Name, true
}

func methodReturnsResult(fn *ast.FuncDecl) bool {
	if fn.Type.Results == nil {
		return false
	}
	for _, res := range fn.Type.Results.List {
		if ident, ok := res.Type.(*ast.Ident); ok && ident.Name == "Result" {
			return true
		}
	}
	return false
}

func methodCallsDelegate(fn *ast.FuncDecl, recvName string, delegates map[string]bool) bool {
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == recvName &&
			sel.Sel.Name != fn.Name.Name && delegates[sel.Sel.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}
