package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// Snapshot is a named copy of a project's selection.
type Snapshot struct {
	ID            string   `json:"id"`
	ProjectRoot   string   `json:"project_root"`
	Name          string   `json:"name"`
	StateVersion  int      `json:"state_version"`
	IncludedPaths []string `json:"included_paths"`
	FileCount     int      `json:"file_count"`
	Model         string   `json:"model,omitempty"`
	Tokens        *int     `json:"tokens,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	DeletedAt     *int64   `json:"deleted_at,omitempty"`
}

// NewID returns a fresh, time-ordered snapshot id.
func NewID() string {
	return ulid.Make().String()
}

// NormalizeName trims and lowercases a snapshot name for uniqueness checks.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Insert stores a new snapshot. ID and CreatedAt are filled in when empty.
func Insert(db *sql.DB, s *Snapshot) error {
	name := NormalizeName(s.Name)
	if name == "" {
		return errors.NewInvalidRequest("snapshot name is required")
	}
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	if s.IncludedPaths == nil {
		s.IncludedPaths = []string{}
	}
	s.Name = name
	s.FileCount = len(s.IncludedPaths)

	data, err := json.Marshal(s.IncludedPaths)
	if err != nil {
		return errors.NewInternal(err)
	}

	var tokens sql.NullInt64
	if s.Tokens != nil {
		tokens = sql.NullInt64{Int64: int64(*s.Tokens), Valid: true}
	}

	query := `
		INSERT INTO snapshots (
			id, project_root, name, state_version, included_json,
			file_count, model, tokens, created_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = db.Exec(query,
		s.ID, s.ProjectRoot, s.Name, s.StateVersion, string(data),
		s.FileCount, toNullString(s.Model), tokens, s.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewNameAlreadyExists(s.Name)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const selectColumns = `
	SELECT id, project_root, name, state_version, included_json,
		file_count, model, tokens, created_at, deleted_at
	FROM snapshots
`

// GetByID retrieves a snapshot by its ULID, ignoring deleted ones.
func GetByID(db *sql.DB, id string) (*Snapshot, error) {
	row := db.QueryRow(selectColumns+" WHERE id = ? AND deleted_at IS NULL", id)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// GetByName retrieves a project's snapshot by normalized name.
func GetByName(db *sql.DB, projectRoot, name string) (*Snapshot, error) {
	name = NormalizeName(name)
	row := db.QueryRow(selectColumns+" WHERE project_root = ? AND name = ? AND deleted_at IS NULL", projectRoot, name)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(name)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// Resolve finds a snapshot by id or, failing that, by name within projectRoot.
func Resolve(db *sql.DB, projectRoot, idOrName string) (*Snapshot, error) {
	if _, err := ulid.ParseStrict(idOrName); err == nil {
		s, err := GetByID(db, idOrName)
		if err == nil || !errors.Is(err, errors.ErrNotFound) {
			return s, err
		}
	}
	return GetByName(db, projectRoot, idOrName)
}

// ListByProject returns a project's snapshots, newest first.
func ListByProject(db *sql.DB, projectRoot string, limit, offset int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(selectColumns+`
		WHERE project_root = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, projectRoot, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SoftDelete marks a snapshot as deleted by setting deleted_at. The name
// becomes available again.
func SoftDelete(db *sql.DB, id string) error {
	result, err := db.Exec(`
		UPDATE snapshots
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		s         Snapshot
		included  string
		model     sql.NullString
		tokens    sql.NullInt64
		deletedAt sql.NullInt64
	)
	err := row.Scan(
		&s.ID, &s.ProjectRoot, &s.Name, &s.StateVersion, &included,
		&s.FileCount, &model, &tokens, &s.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if model.Valid {
		s.Model = model.String
	}
	if tokens.Valid {
		n := int(tokens.Int64)
		s.Tokens = &n
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Int64
	}
	if err := json.Unmarshal([]byte(included), &s.IncludedPaths); err != nil {
		return nil, err
	}
	return &s, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
