package ops

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/ctxpack/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../bundle.txt"},
		{"deep traversal", "../../etc/bundle.txt"},
		{"mid-path traversal", "out/../../etc/bundle.txt"},
		{"absolute with traversal", root + "/../bundle.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidatePath(tc.path, root, PathCheckWrite, true)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_RelativeResolvesUnderRoot(t *testing.T) {
	root := t.TempDir()

	got, err := ValidatePath("out/bundle.md", root, PathCheckWrite, false)
	if err != nil {
		t.Fatalf("ValidatePath failed: %v", err)
	}
	if want := filepath.Join(root, "out", "bundle.md"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestValidatePath_OutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "bundle.txt")

	if _, err := ValidatePath(outside, root, PathCheckWrite, false); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for path outside root, got: %v", err)
	}
	got, err := ValidatePath(outside, root, PathCheckWrite, true)
	if err != nil {
		t.Fatalf("allowOutside should accept %s: %v", outside, err)
	}
	if got != outside {
		t.Errorf("path = %q, want %q", got, outside)
	}
}

func TestValidatePath_ReadMissing(t *testing.T) {
	root := t.TempDir()

	_, err := ValidatePath("missing.tmpl", root, PathCheckRead, false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestValidatePath_Directory(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := ValidatePath("sub", root, PathCheckWrite, false); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for a directory, got: %v", err)
	}
}

func TestValidatePath_SymlinkFileRejected(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		// allowOutside does not relax symlink checks
		if _, err := ValidatePath(link, root, mode, true); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest for symlink, got: %v", mode, err)
		}
	}
}

func TestValidatePath_SymlinkedDirectoryRejected(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	if err := os.Symlink(elsewhere, filepath.Join(root, "out")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := ValidatePath("out/bundle.txt", root, PathCheckWrite, false)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for symlinked directory, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a/b.txt", false},
		{"..", true},
		{"a/../b", true},
		{"a..b/c", false},
		{"..hidden", false},
	}
	for _, tt := range tests {
		if got := containsTraversal(tt.path); got != tt.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWriteFileAtomic_PreservesOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := writeFileAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.NewInternal(os.ErrClosed)
	})
	if !errors.Is(err, errors.ErrInternal) {
		t.Fatalf("expected ErrInternal, got: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("content = %q, want original preserved", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
