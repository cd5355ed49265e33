package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a ctxpack error code.
type ErrorCode string

const (
	ErrIO                 ErrorCode = "IO_ERROR"                     // unreadable path; recorded, work continues
	ErrStaleSelection     ErrorCode = "STALE_SELECTION"              // selection names a vanished path
	ErrTokenizerTimeout   ErrorCode = "TOKENIZER_TIMEOUT"            // count unknown, not fatal
	ErrVersionMismatch    ErrorCode = "PERSISTENCE_VERSION_MISMATCH" // state reset to empty
	ErrPatternSyntax      ErrorCode = "PATTERN_SYNTAX"               // glob rejected, selection unchanged
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION"          // programming error, fatal
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrUnknownModel       ErrorCode = "UNKNOWN_MODEL"
	ErrNameAlreadyExists  ErrorCode = "NAME_ALREADY_EXISTS"
	ErrInternal           ErrorCode = "INTERNAL"
)

// PackError represents a structured error with code, message and details.
type PackError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *PackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PackError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error signals a broken internal invariant
// rather than a recoverable condition.
func (e *PackError) Fatal() bool {
	return e.Code == ErrInvariantViolation || e.Code == ErrInternal
}

// Warning reports whether the error is informational: the operation
// completed (or was a no-op) and the caller should only surface it.
func (e *PackError) Warning() bool {
	switch e.Code {
	case ErrStaleSelection, ErrTokenizerTimeout, ErrVersionMismatch, ErrIO:
		return true
	}
	return false
}

// NewIO creates an error for an unreadable file or directory.
func NewIO(path string, err error) *PackError {
	msg := fmt.Sprintf("cannot read %s", path)
	if err != nil {
		msg = fmt.Sprintf("cannot read %s: %v", path, err)
	}
	return &PackError{
		Code:    ErrIO,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewStaleSelection creates a warning for selection entries whose paths
// are no longer present in the catalog.
func NewStaleSelection(paths ...string) *PackError {
	msg := "selection references a path that no longer exists"
	if len(paths) == 1 {
		msg = fmt.Sprintf("path no longer exists: %s", paths[0])
	} else if len(paths) > 1 {
		msg = fmt.Sprintf("%d selected paths no longer exist", len(paths))
	}
	return &PackError{
		Code:    ErrStaleSelection,
		Message: msg,
		Details: map[string]any{"paths": paths},
	}
}

// NewTokenizerTimeout creates an error for a tokenizer call that did not
// finish in time. The affected count is reported as unknown.
func NewTokenizerTimeout(path, model string, err error) *PackError {
	return &PackError{
		Code:    ErrTokenizerTimeout,
		Message: fmt.Sprintf("token count for %s (%s) timed out", path, model),
		Details: map[string]any{"path": path, "model": model},
		Err:     err,
	}
}

// NewVersionMismatch creates an error for a persisted selection written by
// an incompatible schema version.
func NewVersionMismatch(path string, got, want int) *PackError {
	return &PackError{
		Code:    ErrVersionMismatch,
		Message: fmt.Sprintf("selection file %s has version %d (want %d); starting with an empty selection", path, got, want),
		Details: map[string]any{"path": path, "version": got, "expected_version": want},
	}
}

// NewCorruptSelection creates a warning for a persisted selection that is
// not valid JSON. Reported as PERSISTENCE_VERSION_MISMATCH; the selection
// starts empty and is rewritten on the next save.
func NewCorruptSelection(path string, err error) *PackError {
	return &PackError{
		Code:    ErrVersionMismatch,
		Message: fmt.Sprintf("selection file %s is not valid JSON; starting with an empty selection", path),
		Details: map[string]any{"path": path, "reason": "malformed"},
		Err:     err,
	}
}

// NewPatternSyntax creates an error for a malformed glob pattern.
func NewPatternSyntax(pattern string) *PackError {
	return &PackError{
		Code:    ErrPatternSyntax,
		Message: fmt.Sprintf("invalid glob pattern %q", pattern),
		Details: map[string]any{"pattern": pattern},
	}
}

// NewInvariantViolation creates a fatal error for a broken tri-state invariant.
func NewInvariantViolation(path, msg string) *PackError {
	return &PackError{
		Code:    ErrInvariantViolation,
		Message: fmt.Sprintf("%s: %s", path, msg),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidRequest creates an error for invalid request parameters.
func NewInvalidRequest(msg string) *PackError {
	return &PackError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewNotFound creates an error for a missing snapshot, path or file.
func NewNotFound(identifier string) *PackError {
	return &PackError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewUnknownModel creates an error for a model id without a registered tokenizer.
func NewUnknownModel(model string) *PackError {
	return &PackError{
		Code:    ErrUnknownModel,
		Message: fmt.Sprintf("no tokenizer registered for model %q", model),
		Details: map[string]any{"model": model},
	}
}

// NewNameAlreadyExists creates an error for snapshot name collisions.
func NewNameAlreadyExists(name string) *PackError {
	return &PackError{
		Code:    ErrNameAlreadyExists,
		Message: fmt.Sprintf("snapshot %q already exists for this project", name),
		Details: map[string]any{"name": name},
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *PackError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PackError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a PackError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PackError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As extracts a PackError from err's chain.
func As(err error) (*PackError, bool) {
	var pErr *PackError
	if stderrors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}
