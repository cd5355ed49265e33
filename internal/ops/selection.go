package ops

import (
	"bytes"
	"context"
	"sort"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/render"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/session"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	MaxDepth int  // 0: unlimited
	Collapse bool // hide children of uniform directories
	NoTree   bool // omit the rendered tree
}

// StatusOutput describes the current selection.
type StatusOutput struct {
	Root        string            `json:"root"`
	ProjectType string            `json:"project_type,omitempty"`
	StateFile   string            `json:"state_file"`
	Fresh       bool              `json:"fresh"`
	Dirty       bool              `json:"dirty"`
	Summary     selection.Summary `json:"summary"`
	Included    []string          `json:"included"`
	Tree        string            `json:"tree,omitempty"`
	Warnings    []Warning         `json:"warnings,omitempty"`
}

// Status reports the selection without changing it.
func Status(s *session.Session, input StatusInput) (*StatusOutput, error) {
	out := &StatusOutput{
		Root:        s.Root,
		ProjectType: s.ProjectType,
		StateFile:   s.StatePath(),
		Fresh:       s.Fresh(),
		Dirty:       s.Dirty(),
		Summary:     s.Tree.Summary(),
		Included:    s.Tree.Included(),
		Warnings:    toWarnings(s.Warnings),
	}
	if out.Included == nil {
		out.Included = []string{}
	}
	if !input.NoTree {
		var buf bytes.Buffer
		if err := render.StatusTree(&buf, s.Tree.Root(), render.StatusOptions{
			MaxDepth: input.MaxDepth,
			Collapse: input.Collapse,
		}); err != nil {
			return nil, err
		}
		out.Tree = buf.String()
	}
	return out, nil
}

// ScanOutput summarizes the catalog.
type ScanOutput struct {
	Root        string                     `json:"root"`
	ProjectType string                     `json:"project_type,omitempty"`
	Files       int                        `json:"files"`
	TotalSize   int64                      `json:"total_size"`
	Skipped     map[catalog.SkipReason]int `json:"skipped"`
	Excluded    []string                   `json:"excluded,omitempty"`
	Warnings    []Warning                  `json:"warnings,omitempty"`
}

// Scan reports what the catalog holds and what it skipped. Verbose lists
// every skipped path.
func Scan(s *session.Session, verbose bool) *ScanOutput {
	out := &ScanOutput{
		Root:        s.Root,
		ProjectType: s.ProjectType,
		Files:       s.Catalog.Len(),
		TotalSize:   s.Catalog.TotalSize(),
		Skipped:     s.Catalog.Skipped,
		Warnings:    toWarnings(s.Catalog.Errors),
	}
	if verbose {
		for _, e := range s.Catalog.Excluded {
			out.Excluded = append(out.Excluded, e.Path)
		}
		sort.Strings(out.Excluded)
	}
	return out
}

// ToggleInput contains parameters for the Toggle operation.
type ToggleInput struct {
	Paths []string // files or directories, relative to the root
}

// Toggle flips each path and saves the selection.
func Toggle(s *session.Session, input ToggleInput) (*ChangeOutput, error) {
	if len(input.Paths) == 0 {
		return nil, errors.NewInvalidRequest("at least one path is required")
	}
	change, err := s.Toggle(input.Paths...)
	warning, err := splitWarning(err)
	if err != nil {
		return nil, err
	}
	return finishChange(s, change, warning)
}

// PatternInput contains parameters for the ApplyPatterns operation.
type PatternInput struct {
	Ops []selection.PatternOp
}

// ApplyPatterns applies include/exclude globs in order and saves the
// selection. A malformed glob fails the whole call with PATTERN_SYNTAX.
func ApplyPatterns(s *session.Session, input PatternInput) (*ChangeOutput, error) {
	if len(input.Ops) == 0 {
		return nil, errors.NewInvalidRequest("at least one pattern is required")
	}
	change, err := s.ApplyPatterns(input.Ops)
	if err != nil {
		return nil, err
	}
	return finishChange(s, change, nil)
}

// Patterns builds pattern ops that all share one action.
func Patterns(action selection.Action, globs ...string) []selection.PatternOp {
	out := make([]selection.PatternOp, 0, len(globs))
	for _, g := range globs {
		out = append(out, selection.PatternOp{Pattern: g, Action: action})
	}
	return out
}

func finishChange(s *session.Session, change selection.Change, warning *errors.PackError) (*ChangeOutput, error) {
	out := newChangeOutput(s, change)
	if warning != nil {
		out.Warnings = toWarnings([]*errors.PackError{warning})
	}
	saved, err := persist(s)
	if err != nil {
		return nil, err
	}
	out.Saved = saved
	return out, nil
}

// RefreshOutput is the result of the Refresh operation.
type RefreshOutput struct {
	Files    int               `json:"files"`
	Stale    []string          `json:"stale"`
	Summary  selection.Summary `json:"summary"`
	Saved    bool              `json:"saved"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// Refresh rescans the project, drops included files that vanished and
// saves the result.
func Refresh(ctx context.Context, s *session.Session) (*RefreshOutput, error) {
	stale, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if stale == nil {
		stale = []string{}
	}
	saved, err := persist(s)
	if err != nil {
		return nil, err
	}
	return &RefreshOutput{
		Files:    s.Catalog.Len(),
		Stale:    stale,
		Summary:  s.Tree.Summary(),
		Saved:    saved,
		Warnings: toWarnings(s.Catalog.Errors),
	}, nil
}
