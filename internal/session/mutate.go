package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/state"
)

// Toggle flips each path in turn. Unknown paths are skipped and reported
// together as one STALE_SELECTION warning alongside the accumulated change.
func (s *Session) Toggle(paths ...string) (selection.Change, error) {
	var total selection.Change
	var stale []string
	for _, p := range paths {
		change, err := s.Tree.Toggle(p)
		if err != nil {
			if errors.Is(err, errors.ErrStaleSelection) {
				stale = append(stale, p)
				continue
			}
			return total, err
		}
		total = merge(total, change)
	}
	if err := s.afterMutation(total); err != nil {
		return total, err
	}
	if len(stale) > 0 {
		return total, errors.NewStaleSelection(stale...)
	}
	return total, nil
}

// ApplyPatterns applies include/exclude globs in order, last one winning.
// On PATTERN_SYNTAX nothing changes.
func (s *Session) ApplyPatterns(ops []selection.PatternOp) (selection.Change, error) {
	change, err := s.Tree.ApplyPatterns(ops)
	if err != nil {
		return change, err
	}
	return change, s.afterMutation(change)
}

// Restore replaces the selection with exactly paths. Paths that are no
// longer catalogued are returned as stale and otherwise ignored.
func (s *Session) Restore(paths []string) (selection.Change, []string, error) {
	change, stale := s.Tree.SetIncluded(paths)
	return change, stale, s.afterMutation(change)
}

func (s *Session) afterMutation(change selection.Change) error {
	if err := s.Tree.Verify(); err != nil {
		s.logger.Error("Selection invariant broken", zap.Error(err))
		return err
	}
	if !change.Empty() {
		s.dirty = true
		s.logger.Debug("Selection changed",
			zap.Int("included", len(change.Included)),
			zap.Int("excluded", len(change.Excluded)),
		)
	}
	return nil
}

func merge(a, b selection.Change) selection.Change {
	return selection.Change{
		Included: append(a.Included, b.Included...),
		Excluded: append(a.Excluded, b.Excluded...),
	}
}

// Refresh rescans the project and rebuilds the tree from the current
// selection, keeping included files that still exist. Files that appeared
// since the last scan are auto-included when a configured glob matches.
// Cached token counts for vanished files are evicted; changed files
// recount on next use because their signature no longer matches.
func (s *Session) Refresh(ctx context.Context) ([]string, error) {
	current := s.Tree.Serialize()
	known := make(map[string]bool, s.Catalog.Len())
	for _, p := range s.Catalog.Files() {
		known[p] = true
	}
	if err := s.scan(ctx); err != nil {
		return nil, err
	}

	added, err := selection.NewMatches(s.Catalog, known, s.Config.Include)
	if err != nil {
		return nil, err
	}
	tree, stale, err := selection.Build(s.Catalog, state.Selection{
		Version:       state.CurrentVersion,
		IncludedPaths: append(current.IncludedPaths, added...),
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.dirty = true
		s.logger.Debug("New files auto-included", zap.Strings("paths", added))
	}
	s.Ledger.Reserve(s.ledgerNeed())
	for _, p := range s.Ledger.Paths() {
		if _, ok := s.Catalog.Lookup(p); !ok {
			s.Ledger.Evict(p)
		}
	}
	tree.SetEvictor(s.Ledger)
	s.Tree = tree

	if len(stale) > 0 {
		s.dirty = true
		s.warn(errors.NewStaleSelection(stale...))
	}
	return stale, nil
}
