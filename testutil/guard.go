// Package testutil holds architecture guards shared by package tests: they fail a
// test when a package imports something its layer must not depend on.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency runs `go list -deps pattern` and fails when any
// dependency matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, string(out))
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	report(t, "forbidden transitive dependency", reason, viols)
}

// AssertNoDirectImports parses the non-test Go files of dir and fails when an
// import matches forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "forbidden direct import", reason, viols)
}

// InternalImportForbidden matches import paths below an internal/ directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// DomainImportForbidden matches the domain package itself.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// PrefixImportForbidden matches each prefix and everything below it.
func PrefixImportForbidden(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImports(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			if path := strings.Trim(imp.Path.Value, `"`); forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, what, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s (%s):\n%s", what, reason, strings.Join(viols, "\n"))
	}
}
