package db

import (
	"database/sql"
	"testing"

	"github.com/hpungsan/ctxpack/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSnapshot(project, name string, paths ...string) *Snapshot {
	return &Snapshot{
		ProjectRoot:   project,
		Name:          name,
		StateVersion:  1,
		IncludedPaths: paths,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	db := openTestDB(t)

	tokens := 1234
	s := newTestSnapshot("/work/app", "  Auth Flow ", "src/auth.go", "src/session.go")
	s.Model = "claude"
	s.Tokens = &tokens

	if err := Insert(db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if s.ID == "" {
		t.Fatal("Insert did not assign an ID")
	}
	if s.CreatedAt == 0 {
		t.Error("Insert did not set CreatedAt")
	}

	got, err := GetByID(db, s.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "auth flow" {
		t.Errorf("Name = %q, want %q", got.Name, "auth flow")
	}
	if got.ProjectRoot != "/work/app" {
		t.Errorf("ProjectRoot = %q, want /work/app", got.ProjectRoot)
	}
	if got.FileCount != 2 || len(got.IncludedPaths) != 2 || got.IncludedPaths[1] != "src/session.go" {
		t.Errorf("IncludedPaths = %v (count %d)", got.IncludedPaths, got.FileCount)
	}
	if got.Model != "claude" {
		t.Errorf("Model = %q, want claude", got.Model)
	}
	if got.Tokens == nil || *got.Tokens != 1234 {
		t.Errorf("Tokens = %v, want 1234", got.Tokens)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", *got.DeletedAt)
	}
}

func TestInsert_EmptySelection(t *testing.T) {
	db := openTestDB(t)

	s := newTestSnapshot("/p", "empty")
	if err := Insert(db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := GetByID(db, s.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IncludedPaths == nil || len(got.IncludedPaths) != 0 {
		t.Errorf("IncludedPaths = %#v, want empty non-nil", got.IncludedPaths)
	}
	if got.Tokens != nil {
		t.Errorf("Tokens = %v, want nil", *got.Tokens)
	}
}

func TestInsert_RequiresName(t *testing.T) {
	db := openTestDB(t)

	err := Insert(db, newTestSnapshot("/p", "   "))
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Insert with blank name should return ErrInvalidRequest, got: %v", err)
	}
}

func TestInsert_NameAlreadyExists(t *testing.T) {
	db := openTestDB(t)

	if err := Insert(db, newTestSnapshot("/p", "base")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	err := Insert(db, newTestSnapshot("/p", "BASE"))
	if !errors.Is(err, errors.ErrNameAlreadyExists) {
		t.Errorf("duplicate Insert should return ErrNameAlreadyExists, got: %v", err)
	}

	// same name in another project is fine
	if err := Insert(db, newTestSnapshot("/other", "base")); err != nil {
		t.Errorf("Insert in other project failed: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(db, "nonexistent")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID should return ErrNotFound, got: %v", err)
	}
}

func TestGetByName(t *testing.T) {
	db := openTestDB(t)

	s := newTestSnapshot("/p", "review", "a.go")
	if err := Insert(db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByName(db, "/p", " Review ")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("ID = %q, want %q", got.ID, s.ID)
	}

	if _, err := GetByName(db, "/other", "review"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByName in other project should return ErrNotFound, got: %v", err)
	}
}

func TestResolve(t *testing.T) {
	db := openTestDB(t)

	s := newTestSnapshot("/p", "nightly", "a.go")
	if err := Insert(db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for _, key := range []string{s.ID, "nightly", "NIGHTLY"} {
		got, err := Resolve(db, "/p", key)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", key, err)
		}
		if got.ID != s.ID {
			t.Errorf("Resolve(%q).ID = %q, want %q", key, got.ID, s.ID)
		}
	}

	if _, err := Resolve(db, "/p", NewID()); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Resolve(unknown id) should return ErrNotFound, got: %v", err)
	}
}

func TestListByProject(t *testing.T) {
	db := openTestDB(t)

	for i, name := range []string{"one", "two", "three"} {
		s := newTestSnapshot("/p", name)
		s.CreatedAt = int64(1000 + i)
		if err := Insert(db, s); err != nil {
			t.Fatalf("Insert(%s) failed: %v", name, err)
		}
	}
	if err := Insert(db, newTestSnapshot("/other", "x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	list, err := ListByProject(db, "/p", 0, 0)
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	var names []string
	for _, s := range list {
		names = append(names, s.Name)
	}
	want := []string{"three", "two", "one"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	page, err := ListByProject(db, "/p", 1, 1)
	if err != nil {
		t.Fatalf("ListByProject page failed: %v", err)
	}
	if len(page) != 1 || page[0].Name != "two" {
		t.Errorf("page = %v, want [two]", page)
	}

	empty, err := ListByProject(db, "/nowhere", 10, 0)
	if err != nil {
		t.Fatalf("ListByProject empty failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty = %#v, want empty non-nil", empty)
	}
}

func TestSoftDelete(t *testing.T) {
	db := openTestDB(t)

	s := newTestSnapshot("/p", "gone")
	if err := Insert(db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(db, s.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := GetByID(db, s.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID after delete should return ErrNotFound, got: %v", err)
	}
	if err := SoftDelete(db, s.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second SoftDelete should return ErrNotFound, got: %v", err)
	}

	// the name is free again
	if err := Insert(db, newTestSnapshot("/p", "gone")); err != nil {
		t.Errorf("re-Insert after delete failed: %v", err)
	}
}
