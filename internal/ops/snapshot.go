package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/ctxpack/internal/db"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/session"
	"github.com/hpungsan/ctxpack/internal/state"
)

// SnapshotSummary describes a stored snapshot without its path list.
type SnapshotSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
	Model     string `json:"model,omitempty"`
	Tokens    *int   `json:"tokens,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func summarize(s *db.Snapshot) SnapshotSummary {
	return SnapshotSummary{
		ID:        s.ID,
		Name:      s.Name,
		FileCount: s.FileCount,
		Model:     s.Model,
		Tokens:    s.Tokens,
		CreatedAt: s.CreatedAt,
	}
}

// SnapshotStoreInput contains parameters for the SnapshotStore operation.
type SnapshotStoreInput struct {
	Name       string // required, unique per project (case-insensitive)
	WithTokens bool   // record the token total for the session model
}

// SnapshotStore saves the current selection under a name.
func SnapshotStore(ctx context.Context, database *sql.DB, s *session.Session, input SnapshotStoreInput) (*SnapshotSummary, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}

	sel := s.Tree.Serialize()
	snap := &db.Snapshot{
		ProjectRoot:   s.Root,
		Name:          input.Name,
		StateVersion:  sel.Version,
		IncludedPaths: sel.IncludedPaths,
	}
	if input.WithTokens {
		report, err := s.Tokens(ctx, "")
		if err != nil {
			return nil, err
		}
		snap.Model = report.Model
		tokens := report.Total.Tokens
		snap.Tokens = &tokens
	}
	if err := db.Insert(database, snap); err != nil {
		return nil, err
	}
	out := summarize(snap)
	return &out, nil
}

// SnapshotListInput contains parameters for the SnapshotList operation.
type SnapshotListInput struct {
	Limit  int // default: 20, max: 100
	Offset int
}

// SnapshotListOutput contains the result of the SnapshotList operation.
type SnapshotListOutput struct {
	Items      []SnapshotSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// SnapshotList lists the project's snapshots, newest first.
func SnapshotList(database *sql.DB, s *session.Session, input SnapshotListInput) (*SnapshotListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	if limit > MaxSnapshotLimit {
		limit = MaxSnapshotLimit
	}
	offset := max(input.Offset, 0)

	// One extra row tells us whether another page exists.
	rows, err := db.ListByProject(database, s.Root, limit+1, offset)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	items := make([]SnapshotSummary, 0, len(rows))
	for i := range rows {
		items = append(items, summarize(&rows[i]))
	}
	return &SnapshotListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
		},
		Sort: "created_at_desc",
	}, nil
}

// SnapshotRef addresses a snapshot by id or name.
type SnapshotRef struct {
	Ref string
}

// SnapshotRestoreOutput contains the result of the SnapshotRestore operation.
type SnapshotRestoreOutput struct {
	Snapshot SnapshotSummary `json:"snapshot"`
	Stale    []string        `json:"stale"`
	ChangeOutput
}

// SnapshotRestore replaces the selection with a snapshot's. Files that no
// longer exist are reported as stale and skipped.
func SnapshotRestore(database *sql.DB, s *session.Session, input SnapshotRef) (*SnapshotRestoreOutput, error) {
	snap, err := resolveSnapshot(database, s, input)
	if err != nil {
		return nil, err
	}
	if snap.StateVersion != state.CurrentVersion {
		return nil, errors.NewVersionMismatch(snap.Name, snap.StateVersion, state.CurrentVersion)
	}

	change, stale, err := s.Restore(snap.IncludedPaths)
	if err != nil {
		return nil, err
	}
	var warning *errors.PackError
	if len(stale) > 0 {
		warning = errors.NewStaleSelection(stale...)
	} else {
		stale = []string{}
	}
	changed, err := finishChange(s, change, warning)
	if err != nil {
		return nil, err
	}
	return &SnapshotRestoreOutput{
		Snapshot:     summarize(snap),
		Stale:        stale,
		ChangeOutput: *changed,
	}, nil
}

// SnapshotDeleteOutput contains the result of the SnapshotDelete operation.
type SnapshotDeleteOutput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

// SnapshotDelete soft-deletes a snapshot; its name becomes free again.
func SnapshotDelete(database *sql.DB, s *session.Session, input SnapshotRef) (*SnapshotDeleteOutput, error) {
	snap, err := resolveSnapshot(database, s, input)
	if err != nil {
		return nil, err
	}
	if err := db.SoftDelete(database, snap.ID); err != nil {
		return nil, err
	}
	return &SnapshotDeleteOutput{ID: snap.ID, Name: snap.Name, Deleted: true}, nil
}

func resolveSnapshot(database *sql.DB, s *session.Session, input SnapshotRef) (*db.Snapshot, error) {
	ref := strings.TrimSpace(input.Ref)
	if ref == "" {
		return nil, errors.NewInvalidRequest("snapshot id or name is required")
	}
	snap, err := db.Resolve(database, s.Root, ref)
	if err != nil {
		return nil, err
	}
	// ids are global; never act on another project's snapshot
	if snap.ProjectRoot != s.Root {
		return nil, errors.NewNotFound(ref)
	}
	return snap, nil
}
