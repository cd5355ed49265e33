package ops

import (
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/session"
	"github.com/hpungsan/ctxpack/internal/suggest"
)

// SuggestInput contains parameters for the Suggest operation.
type SuggestInput struct {
	Limit int  // default: config suggest_limit
	Apply bool // include every suggestion
}

// SuggestOutput contains the result of the Suggest operation.
type SuggestOutput struct {
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Applied     *ChangeOutput        `json:"applied,omitempty"`
}

// Suggest proposes files related to the selection and, with Apply,
// includes them.
func Suggest(s *session.Session, input SuggestInput) (*SuggestOutput, error) {
	out := &SuggestOutput{Suggestions: s.Suggest(input.Limit)}
	if !input.Apply || len(out.Suggestions) == 0 {
		return out, nil
	}

	paths := s.Tree.Included()
	for _, sg := range out.Suggestions {
		paths = append(paths, sg.Path)
	}
	change, stale, err := s.Restore(paths)
	if err != nil {
		return nil, err
	}
	var warning *errors.PackError
	if len(stale) > 0 {
		warning = errors.NewStaleSelection(stale...)
	}
	applied, err := finishChange(s, change, warning)
	if err != nil {
		return nil, err
	}
	out.Applied = applied
	return out, nil
}
