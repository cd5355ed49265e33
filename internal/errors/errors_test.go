package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestPackError_Error(t *testing.T) {
	err := &PackError{
		Code:    ErrNotFound,
		Message: "snapshot not found",
	}

	expected := "NOT_FOUND: snapshot not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewIO(t *testing.T) {
	err := NewIO("src/a.py", fs.ErrPermission)

	if err.Code != ErrIO {
		t.Errorf("Code = %q, want %q", err.Code, ErrIO)
	}
	if err.Details["path"] != "src/a.py" {
		t.Errorf("Details[path] = %v, want %q", err.Details["path"], "src/a.py")
	}
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("NewIO should wrap the underlying cause")
	}
	if !err.Warning() {
		t.Error("IO_ERROR should be a warning")
	}
}

func TestNewStaleSelection(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"none", nil, "selection references a path that no longer exists"},
		{"one", []string{"gone.go"}, "path no longer exists: gone.go"},
		{"many", []string{"a.go", "b.go"}, "2 selected paths no longer exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStaleSelection(tt.paths...)
			if err.Message != tt.want {
				t.Errorf("Message = %q, want %q", err.Message, tt.want)
			}
			if err.Code != ErrStaleSelection {
				t.Errorf("Code = %q, want %q", err.Code, ErrStaleSelection)
			}
		})
	}
}

func TestNewPatternSyntax(t *testing.T) {
	err := NewPatternSyntax("src/[")

	if err.Code != ErrPatternSyntax {
		t.Errorf("Code = %q, want %q", err.Code, ErrPatternSyntax)
	}
	if err.Details["pattern"] != "src/[" {
		t.Errorf("Details[pattern] = %v, want %q", err.Details["pattern"], "src/[")
	}
	if err.Fatal() {
		t.Error("PATTERN_SYNTAX should not be fatal")
	}
}

func TestNewInvariantViolation_IsFatal(t *testing.T) {
	err := NewInvariantViolation("src", "dir state included but child excluded")

	if !err.Fatal() {
		t.Error("INVARIANT_VIOLATION must be fatal")
	}
	if err.Warning() {
		t.Error("INVARIANT_VIOLATION must not be a warning")
	}
}

func TestNewVersionMismatch(t *testing.T) {
	err := NewVersionMismatch(".ctxpack/selection.json", 0, 1)

	if err.Code != ErrVersionMismatch {
		t.Errorf("Code = %q, want %q", err.Code, ErrVersionMismatch)
	}
	if err.Details["version"] != 0 || err.Details["expected_version"] != 1 {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestNewTokenizerTimeout(t *testing.T) {
	cause := fmt.Errorf("deadline")
	err := NewTokenizerTimeout("main.go", "claude", cause)

	if err.Details["model"] != "claude" {
		t.Errorf("Details[model] = %v, want claude", err.Details["model"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("timeout error should wrap its cause")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching", NewNotFound("x"), ErrNotFound, true},
		{"different code", NewNotFound("x"), ErrInvalidRequest, false},
		{"wrapped", fmt.Errorf("restore: %w", NewNotFound("x")), ErrNotFound, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewUnknownModel("mistral"))

	pErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() should find the PackError")
	}
	if pErr.Code != ErrUnknownModel {
		t.Errorf("Code = %q, want %q", pErr.Code, ErrUnknownModel)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As() should return false for plain errors")
	}
}
