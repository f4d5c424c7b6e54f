// Package postgres implements the record backend on PostgreSQL through the
// pgx database/sql driver. The embedded DDL bundle is applied on startup.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"grampscore/db/schema"
	"grampscore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the backend interface.
var _ domain.Backend = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/grampscore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one row per record keyed by "<kind>/<handle>". The primary key
// rules out duplicate handles, so no duplicate repair is offered.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and applies the embedded DDL.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDL(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applyDDL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema.SplitStatements(schema.Postgres) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func recordKey(kind domain.EntityType, handle string) string {
	return string(kind) + "/" + handle
}

// Get implements domain.Backend.
func (s *Store) Get(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT gramps_id, sort_key, payload FROM records WHERE record_key = $1`, recordKey(kind, handle))
	rec := domain.Record{Kind: kind, Handle: handle}
	var payload []byte
	if err := row.Scan(&rec.GrampsID, &rec.SortKey, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("get", kind, handle, err)
	}
	rec.Data = payload
	return &rec, nil
}

// Cursor implements domain.Backend.
func (s *Store) Cursor(ctx context.Context, kind domain.EntityType, fn func(domain.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, gramps_id, sort_key, payload FROM records WHERE kind = $1 ORDER BY handle`, string(kind))
	if err != nil {
		return storageError("cursor", kind, "", err)
	}
	var recs []domain.Record
	for rows.Next() {
		rec := domain.Record{Kind: kind}
		var payload []byte
		if err := rows.Scan(&rec.Handle, &rec.GrampsID, &rec.SortKey, &payload); err != nil {
			_ = rows.Close()
			return storageError("cursor", kind, "", err)
		}
		rec.Data = payload
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return storageError("cursor", kind, "", err)
	}
	_ = rows.Close()
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements domain.Backend inside one SQL transaction.
func (s *Store) Apply(ctx context.Context, mutations []domain.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin", "", "", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, m := range mutations {
		key := recordKey(m.Kind, m.Handle)
		if m.Record == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE record_key = $1`, key); err != nil {
				return storageError("delete", m.Kind, m.Handle, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records(record_key, kind, handle, gramps_id, sort_key, payload) VALUES($1,$2,$3,$4,$5,$6) ON CONFLICT(record_key) DO UPDATE SET gramps_id=EXCLUDED.gramps_id, sort_key=EXCLUDED.sort_key, payload=EXCLUDED.payload`,
			key, string(m.Kind), m.Handle, m.Record.GrampsID, m.Record.SortKey, []byte(m.Record.Data)); err != nil {
			return storageError("upsert", m.Kind, m.Handle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit", "", "", err)
	}
	committed = true
	return nil
}

// Close implements domain.Backend.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func storageError(op string, kind domain.EntityType, handle string, err error) error {
	return &domain.StorageError{Op: op, Kind: kind, Handle: handle, Fatal: isCorruption(err), Err: err}
}

// isCorruption matches the data_corrupted and index_corrupted error classes.
func isCorruption(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "XX001" || pgErr.Code == "XX002"
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
