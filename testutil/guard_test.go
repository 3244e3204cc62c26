package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		fn   func(string) bool
		in   string
		want bool
	}{
		{NonStandardImport, "encoding/json", false},
		{NonStandardImport, "github.com/google/uuid", true},
		{NonStandardImport, "familytree/pkg/domain", true},
		{InternalImport, "familytree/internal/core", true},
		{InternalImport, "familytree/pkg/domain", false},
		{InfraImport, "familytree/internal/infra/blob/s3", true},
		{InfraImport, "familytree/internal/blob", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Fatalf("predicate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

type captureFatal struct{ msg string }

func (c *captureFatal) Fatalf(format string, args ...any) { c.msg = fmt.Sprintf(format, args...) }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"familytree/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Option\n")
	write("a_test.go", "package tmp\nimport \"familytree/internal/infra/blob/s3\"\n")

	viols, err := directImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "familytree/internal/core (in a.go)" {
		t.Fatalf("violations = %v", viols)
	}
	AssertNoDirectImports(t, dir, InfraImport, "test files are skipped")

	capture := &captureFatal{}
	failIfViolations(capture, "direct imports", "layering", viols)
	if !strings.Contains(capture.msg, "layering") {
		t.Fatalf("unexpected failure message %q", capture.msg)
	}
	write("broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMatchLinesAndGoListSeam(t *testing.T) {
	got := matchLines("fmt\n familytree/internal/core \n\n", InternalImport)
	if len(got) != 1 || got[0] != "familytree/internal/core" {
		t.Fatalf("matchLines = %v", got)
	}
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })
	goListDeps = func(string) ([]byte, error) { return []byte("fmt\nfamilytree/pkg/domain\n"), nil }
	AssertNoTransitiveDependency(t, ".", InternalImport, "stubbed deps")
	goListDeps = func(string) ([]byte, error) { return nil, errors.New("no go") }
	if _, err := goListDeps("."); err == nil {
		t.Fatalf("stub should fail")
	}
}
