package core

import (
	"context"
	"path/filepath"
	"testing"

	"grampscore/internal/infra/persistence/sqlite"
	"grampscore/pkg/domain"
)

func openSQLiteDB(t *testing.T, path string, opts ...Option) (*Database, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	db, err := Open(context.Background(), store, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db, store
}

func TestSQLiteDatabaseReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.db")
	db, _ := openSQLiteDB(t, path)
	p := person("Ann", "Smith", domain.GenderFemale)
	mustAdd(t, db, p)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, _ := openSQLiteDB(t, path)
	defer reopened.Close()
	got := mustPerson(t, reopened, p.Handle)
	if got == nil || got.PrimaryName.Surname != "Smith" || got.GrampsID != "I0000" {
		t.Fatalf("reopened person = %+v", got)
	}
	if reopened.GuessGender("Ann") != domain.GenderFemale {
		t.Fatal("statistics not rebuilt on open")
	}
}

func TestRepairDuplicateHandles(t *testing.T) {
	ctx := context.Background()
	db, store := openSQLiteDB(t, filepath.Join(t.TempDir(), "family.db"))
	defer db.Close()
	p := person("Ann", "Smith", domain.GenderFemale)
	mustAdd(t, db, p)

	if _, err := store.DB().ExecContext(ctx,
		`INSERT INTO records(kind, handle, gramps_id, sort_key, payload)
		 SELECT kind, handle, gramps_id, sort_key, payload FROM records WHERE handle = ?`, p.Handle); err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	var rows int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&rows); err != nil || rows != 2 {
		t.Fatalf("expected 2 rows before repair, got %d (%v)", rows, err)
	}

	removed, err := db.RepairDuplicateHandles(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if removed[domain.EntityPerson] != 1 {
		t.Fatalf("removed = %v", removed)
	}
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected 1 row after repair, got %d (%v)", rows, err)
	}
	if db.UndoDepth() != 0 {
		t.Fatal("repair must clear undo history")
	}
	if got := mustPerson(t, db, p.Handle); got == nil {
		t.Fatal("person lost by repair")
	}
}

func TestRepairDuplicateHandlesWithoutSupport(t *testing.T) {
	db, _ := newTestDB(t)
	removed, err := db.RepairDuplicateHandles(context.Background())
	if err != nil || len(removed) != 0 {
		t.Fatalf("memory backend repair = %v, %v", removed, err)
	}
}
