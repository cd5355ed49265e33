// Package ops implements the request-level operations shared by the CLI and
// the MCP server. Each operation takes its dependencies explicitly (an open
// session, the snapshot database) plus an Input struct, and returns an
// Output struct ready to be encoded as JSON.
package ops

import (
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/session"
)

// Pagination limits
const (
	DefaultSnapshotLimit = 20
	MaxSnapshotLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Warning is a non-fatal problem reported alongside a result.
type Warning struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func toWarnings(errs []*errors.PackError) []Warning {
	if len(errs) == 0 {
		return nil
	}
	out := make([]Warning, 0, len(errs))
	for _, e := range errs {
		out = append(out, Warning{Code: string(e.Code), Message: e.Message, Details: e.Details})
	}
	return out
}

// splitWarning separates warning-class errors (stale paths and the like)
// from real failures.
func splitWarning(err error) (*errors.PackError, error) {
	if err == nil {
		return nil, nil
	}
	if pErr, ok := errors.As(err); ok && pErr.Warning() {
		return pErr, nil
	}
	return nil, err
}

// ChangeOutput is the result of any selection mutation.
type ChangeOutput struct {
	Included []string          `json:"included"`
	Excluded []string          `json:"excluded"`
	Summary  selection.Summary `json:"summary"`
	Saved    bool              `json:"saved"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

func newChangeOutput(s *session.Session, change selection.Change) *ChangeOutput {
	out := &ChangeOutput{
		Included: change.Included,
		Excluded: change.Excluded,
		Summary:  s.Tree.Summary(),
	}
	if out.Included == nil {
		out.Included = []string{}
	}
	if out.Excluded == nil {
		out.Excluded = []string{}
	}
	return out
}

// persist saves the selection when it has unsaved changes.
func persist(s *session.Session) (bool, error) {
	if !s.Dirty() {
		return false, nil
	}
	if err := s.Save(); err != nil {
		return false, err
	}
	return true, nil
}
