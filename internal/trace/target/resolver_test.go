package target_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwatch/gwatch/internal/trace/target"
)

// TestResolve_MissingMapping exercises the boundary where elf.Open succeeds
// (a real, non-stripped ELF is required for that) but /proc/<pid>/maps has
// no mapping for the path passed in. We get a real ELF by copying this test
// binary's own bytes to a path under a tempdir: the copy opens fine as an
// ELF, but its tempdir path can never appear in any process's maps, since
// nothing was ever exec'd from there.
func TestResolve_MissingMapping(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine test executable path: %v", err)
	}

	selfBytes, err := os.ReadFile(self)
	if err != nil {
		t.Skipf("cannot read test executable %q: %v", self, err)
	}

	unmappedCopy := filepath.Join(t.TempDir(), "copy-not-in-any-maps")
	if err := os.WriteFile(unmappedCopy, selfBytes, 0o755); err != nil {
		t.Fatalf("writing ELF copy: %v", err)
	}

	_, err = target.Resolve(unmappedCopy, "anything", os.Getpid())

	var resErr *target.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Resolve returned %v, want a *target.ResolutionError", err)
	}
	if resErr.Kind != target.MissingMapping {
		t.Fatalf("ResolutionError.Kind = %v, want %v", resErr.Kind, target.MissingMapping)
	}
}

func TestErrorKind_String(t *testing.T) {
	cases := []struct {
		kind target.ErrorKind
		want string
	}{
		{target.MissingLoadSegment, "MissingLoadSegment"},
		{target.MissingMapping, "MissingMapping"},
		{target.SymbolNotFound, "SymbolNotFound"},
		{target.UnsupportedSize, "UnsupportedSize"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestResolutionError_Error(t *testing.T) {
	err := &target.ResolutionError{Kind: target.SymbolNotFound, Msg: "counter not found"}
	got := err.Error()
	want := "resolution: SymbolNotFound: counter not found"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
