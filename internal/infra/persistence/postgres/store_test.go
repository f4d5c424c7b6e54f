package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"grampscore/internal/infra/persistence/postgres/testutil"
	"grampscore/pkg/domain"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}

func family(handle, id string) *domain.Record {
	return &domain.Record{Kind: domain.EntityFamily, Handle: handle, GrampsID: id, SortKey: id, Data: []byte(`{"handle":"` + handle + `"}`)}
}

func TestNewStoreAppliesDDL(t *testing.T) {
	_, conn := newStubStore(t)
	var sawTable, sawIndex bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS records") {
			sawTable = true
		}
		if strings.Contains(stmt, "CREATE INDEX IF NOT EXISTS records_kind_idx") {
			sawIndex = true
		}
	}
	if !sawTable || !sawIndex {
		t.Fatalf("expected ddl to be applied, got %v", conn.Execs)
	}
}

func TestStoreApplyGetCursor(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	if err := store.Apply(ctx, []domain.Mutation{
		{Kind: domain.EntityFamily, Handle: "f1", Record: family("f1", "F0000")},
		{Kind: domain.EntityFamily, Handle: "f2", Record: family("f2", "F0001")},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := store.Apply(ctx, []domain.Mutation{
		{Kind: domain.EntityFamily, Handle: "f1", Record: family("f1", "F0009")},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n := len(conn.Rows); n != 2 {
		t.Fatalf("expected upsert to replace the row, got %d rows", n)
	}
	got, err := store.Get(ctx, domain.EntityFamily, "f1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.GrampsID != "F0009" {
		t.Fatalf("unexpected record %+v", got)
	}
	missing, err := store.Get(ctx, domain.EntityPerson, "f1")
	if err != nil || missing != nil {
		t.Fatalf("expected miss across kinds, got %+v %v", missing, err)
	}
	count := 0
	if err := store.Cursor(ctx, domain.EntityFamily, func(domain.Record) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 families, got %d", count)
	}
	if err := store.Apply(ctx, []domain.Mutation{{Kind: domain.EntityFamily, Handle: "f2"}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Get(ctx, domain.EntityFamily, "f2"); got != nil {
		t.Fatalf("expected f2 deleted")
	}
}

func TestStoreApplyRollsBackOnFailure(t *testing.T) {
	store, conn := newStubStore(t)
	conn.FailCommit = true
	err := store.Apply(context.Background(), []domain.Mutation{{Kind: domain.EntityNote, Handle: "n", Record: family("n", "N0000")}})
	var se *domain.StorageError
	if !errors.As(err, &se) || se.Op != "commit" {
		t.Fatalf("expected commit StorageError, got %v", err)
	}
	if conn.Rollbacks == 0 {
		t.Fatalf("expected rollback after failed commit")
	}
}

func TestStoreClassifiesCorruptionAsFatal(t *testing.T) {
	store, conn := newStubStore(t)
	conn.QueryErr = &pgconn.PgError{Code: "XX001", Message: "invalid page in block"}
	_, err := store.Get(context.Background(), domain.EntityPerson, "h")
	if !domain.IsFatalStorage(err) {
		t.Fatalf("expected fatal storage error, got %v", err)
	}
	conn.QueryErr = &pgconn.PgError{Code: "57014", Message: "canceling statement"}
	_, err = store.Get(context.Background(), domain.EntityPerson, "h")
	if err == nil || domain.IsFatalStorage(err) {
		t.Fatalf("expected recoverable storage error, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping failure")
	}
}
