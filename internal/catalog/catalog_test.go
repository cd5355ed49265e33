package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/ctxpack/internal/errors"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func ignoreDirs(dirs ...string) IgnoreFunc {
	return func(p string) bool {
		for _, d := range dirs {
			if p == d+"/" {
				return true
			}
		}
		return false
	}
}

func TestScan_SkipReasons(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.py", []byte("print('a')\n"))
	writeFile(t, root, "src/b.go", []byte("package b\n"))
	writeFile(t, root, "node_modules/x/index.js", []byte("x"))
	writeFile(t, root, "node_modules/y/index.js", []byte("y"))
	writeFile(t, root, "logo.png", []byte("not really a png"))
	writeFile(t, root, "blob.dat", []byte{0x7f, 'E', 'L', 'F', 0, 1, 2})
	writeFile(t, root, "big.txt", []byte(strings.Repeat("a", 2048)))
	if err := os.MkdirAll(filepath.Join(root, "empty", "nested"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cat, err := Scan(root, ignoreDirs("node_modules"), 1024, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	files := cat.Files()
	want := []string{"src/a.py", "src/b.go"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Fatalf("Files() = %v, want %v", files, want)
	}

	if cat.Skipped[SkipIgnored] != 1 {
		t.Errorf("Skipped[ignored] = %d, want 1 (directory counted once)", cat.Skipped[SkipIgnored])
	}
	if cat.Skipped[SkipBinary] != 2 {
		t.Errorf("Skipped[binary] = %d, want 2", cat.Skipped[SkipBinary])
	}
	if cat.Skipped[SkipTooLarge] != 1 {
		t.Errorf("Skipped[too_large] = %d, want 1", cat.Skipped[SkipTooLarge])
	}

	for _, d := range cat.Dirs() {
		if strings.HasPrefix(d, "empty") {
			t.Errorf("empty directory %q must not appear", d)
		}
	}
	if len(cat.Dirs()) != 1 || cat.Dirs()[0] != "src" {
		t.Errorf("Dirs() = %v, want [src]", cat.Dirs())
	}

	var sawIgnoredDir bool
	for _, e := range cat.Excluded {
		if e.Path == "node_modules/" && e.IsIgnored {
			sawIgnoredDir = true
		}
		if e.Path == "blob.dat" && !e.IsBinary {
			t.Error("blob.dat should be marked binary in Excluded")
		}
	}
	if !sawIgnoredDir {
		t.Error("Excluded should record the pruned directory")
	}
}

func TestScan_OrderIsFullPathLexicographic(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"a/x.go", "a-b/x.go", "a.go", "b/c/d.go", "B.md"} {
		writeFile(t, root, rel, []byte("x"))
	}

	cat, err := Scan(root, nil, 0, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	got := cat.Files()
	want := []string{"B.md", "a-b/x.go", "a.go", "a/x.go", "b/c/d.go"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Files() = %v, want %v", got, want)
	}
	wantDirs := []string{"a", "a-b", "b", "b/c"}
	if strings.Join(cat.Dirs(), ",") != strings.Join(wantDirs, ",") {
		t.Errorf("Dirs() = %v, want %v", cat.Dirs(), wantDirs)
	}
}

func TestScan_IdempotentAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.go", []byte("package one"))
	writeFile(t, root, "pkg/two.go", []byte("package pkg"))

	first, err := Scan(root, nil, 0, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	second, err := Scan(root, nil, 0, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("entry count changed between scans")
	}
	for i := range first.Entries {
		if first.Entries[i].Signature() != second.Entries[i].Signature() {
			t.Errorf("signature for %s changed without a write", first.Entries[i].Path)
		}
	}
}

func TestScan_RootErrors(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing"), nil, 0, nil); !errors.Is(err, errors.ErrIO) {
		t.Errorf("missing root: err = %v, want IO_ERROR", err)
	}

	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Scan(file, nil, 0, nil); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("file root: err = %v, want INVALID_REQUEST", err)
	}
}

func TestScan_UnreadableDirRecorded(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.go", []byte("package ok"))
	writeFile(t, root, "locked/secret.go", []byte("package locked"))
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	cat, err := Scan(root, nil, 0, nil)
	if err != nil {
		t.Fatalf("Scan() should continue past unreadable paths, got %v", err)
	}
	if len(cat.Errors) != 1 || cat.Errors[0].Code != errors.ErrIO {
		t.Fatalf("Errors = %v, want one IO_ERROR", cat.Errors)
	}
	if _, ok := cat.Lookup("ok.go"); !ok {
		t.Error("readable file should still be catalogued")
	}
}

func TestCatalog_ReadAndSignature(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.go", []byte("package pkg\n"))

	cat, err := Scan(root, nil, 0, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	data, err := cat.Read("pkg/a.go")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "package pkg\n" {
		t.Errorf("Read() = %q", data)
	}

	sig, ok := cat.Signature("pkg/a.go")
	if !ok || sig.Size != int64(len("package pkg\n")) {
		t.Errorf("Signature() = %+v, %v", sig, ok)
	}

	if _, err := cat.Read("nope.go"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Read(unknown) err = %v, want NOT_FOUND", err)
	}
	if _, ok := cat.Signature("nope.go"); ok {
		t.Error("Signature(unknown) should report false")
	}
}

func TestCatalog_Under(t *testing.T) {
	cat := New("/p", []Entry{
		{Path: "src/a.py"}, {Path: "src/sub/b.py"}, {Path: "src-old/c.py"}, {Path: "tests/c.py"},
	})

	got := cat.Under("src")
	want := []string{"src/a.py", "src/sub/b.py"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Under(src) = %v, want %v", got, want)
	}
	if len(cat.Under("")) != 4 {
		t.Errorf("Under(\"\") should return every file")
	}
	if len(cat.Under("docs")) != 0 {
		t.Errorf("Under(docs) should be empty")
	}
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"ascii", []byte("hello world\n"), false},
		{"nul", []byte("abc\x00def"), true},
		{"utf8", []byte("こんにちは世界、テキストです\n"), false},
		{"control heavy", []byte{1, 2, 3, 4, 5, 'a', 'b'}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBinary(tt.data); got != tt.want {
				t.Errorf("isBinary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		head string
		want string
	}{
		{"main.go", "", "go"},
		{"src/App.TSX", "", "typescript"},
		{"Makefile", "", "makefile"},
		{"deploy/Dockerfile.prod", "", "dockerfile"},
		{"bin/tool", "#!/usr/bin/env python3\nimport sys\n", "python"},
		{"bin/run", "#!/bin/bash\n", "shell"},
		{"bin/legacy", "#!/usr/bin/python3.11\n", "python"},
		{"NOTES", "plain text", ""},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path, []byte(tt.head)); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"go", []string{"go.mod"}, "go"},
		{"python", []string{"pyproject.toml", "Makefile"}, "python"},
		{"typescript", []string{"package.json", "tsconfig.json"}, "typescript"},
		{"javascript", []string{"package.json"}, "javascript"},
		{"cpp by glob", []string{"main.cpp"}, "cpp"},
		{"unknown", []string{"notes.txt"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, f := range tt.files {
				writeFile(t, root, f, []byte("x"))
			}
			if got := DetectProjectType(root); got != tt.want {
				t.Errorf("DetectProjectType() = %q, want %q", got, tt.want)
			}
		})
	}
}
