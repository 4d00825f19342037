package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "tbtr/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/pkg/domain@v1.2.3", true},
		{"domain child", DomainImportForbidden, "tbtr/pkg/domain/sub", false},
		{"domain lookalike", DomainImportForbidden, "tbtr/pkg/domainutil", false},
		{"internal", InternalImportForbidden, "tbtr/internal/replace", true},
		{"internal tail", InternalImportForbidden, "tbtr/internal", false},
		{"pkg", InternalImportForbidden, "tbtr/pkg/domain", false},
		{"prefix exact", PrefixImportForbidden("tbtr/internal/core"), "tbtr/internal/core", true},
		{"prefix child", PrefixImportForbidden("tbtr/internal/infra"), "tbtr/internal/infra/blob/s3", true},
		{"prefix sibling", PrefixImportForbidden("tbtr/internal/core"), "tbtr/internal/coredump", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.in); got != tc.want {
				t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDirectImports(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.go":      "package tmp\nimport (\n\t\"fmt\"\n\t\"tbtr/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Service\n",
		"a_test.go": "package tmp\nimport \"tbtr/internal/world\"\n",
		"b.go":      "package tmp\nimport \"strings\"\nvar _ = strings.Contains\n",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	viols, err := directImports(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "tbtr/internal/core (in a.go)" {
		t.Fatalf("expected only the non-test internal import, got %v", viols)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "nothing forbidden")

	rec := &recorder{}
	report(rec, "forbidden direct import", "layering", viols)
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "a.go") {
		t.Fatalf("unexpected report %q", rec.msg)
	}
	if _, err := directImports(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestTransitiveDependency(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ntbtr/pkg/domain\n\ntbtr/internal/core\n"), nil
	}
	AssertNoTransitiveDependency(t, ".", PrefixImportForbidden("github.com/aws"), "no cloud sdk")
}
