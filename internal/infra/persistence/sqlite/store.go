// Package sqlite implements the record backend on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"

	"grampscore/db/migrations"
	"grampscore/pkg/domain"
)

var (
	_ domain.Backend           = (*Store)(nil)
	_ domain.DuplicateRepairer = (*Store)(nil)
)

// Store persists one row per record in the records table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and applies the
// embedded migrations. The special path ":memory:" opens a private in-memory
// database.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "grampscore.db"
	}
	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite path: %w", err)
		}
		dsn = "file:" + filepath.ToSlash(abs)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("initialise migrate driver: %w", err)
	}
	source, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	defer func() { _ = source.Close() }()
	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Get implements domain.Backend. When duplicate rows exist the newest wins.
func (s *Store) Get(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT gramps_id, sort_key, payload FROM records WHERE kind = ? AND handle = ? ORDER BY rowid DESC LIMIT 1`,
		string(kind), handle)
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

// Cursor implements domain.Backend. Rows are buffered before fn is called so
// that fn may issue further queries on the single connection.
func (s *Store) Cursor(ctx context.Context, kind domain.EntityType, fn func(domain.Record) error) error {
	recs, err := s.scan(ctx, kind)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scan(ctx context.Context, kind domain.EntityType) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, gramps_id, sort_key, payload FROM records WHERE kind = ? ORDER BY handle, rowid`, string(kind))
	if err != nil {
		return nil, storageError("cursor", kind, "", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Record
	for rows.Next() {
		rec := domain.Record{Kind: kind}
		var payload []byte
		if err := rows.Scan(&rec.Handle, &rec.GrampsID, &rec.SortKey, &payload); err != nil {
			return nil, storageError("cursor", kind, "", err)
		}
		rec.Data = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("cursor", kind, "", err)
	}
	return out, nil
}

// Apply implements domain.Backend inside one SQL transaction.
func (s *Store) Apply(ctx context.Context, mutations []domain.Mutation) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin", "", "", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, m := range mutations {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND handle = ?`, string(m.Kind), m.Handle); err != nil {
			return storageError("delete", m.Kind, m.Handle, err)
		}
		if m.Record == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records(kind, handle, gramps_id, sort_key, payload) VALUES(?, ?, ?, ?, ?)`,
			string(m.Kind), m.Handle, m.Record.GrampsID, m.Record.SortKey, []byte(m.Record.Data)); err != nil {
			return storageError("insert", m.Kind, m.Handle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit", "", "", err)
	}
	return nil
}

// RepairDuplicates keeps the newest row for every (kind, handle) pair and
// deletes the others. It returns the number of rows removed per kind.
func (s *Store) RepairDuplicates(ctx context.Context) (map[domain.EntityType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) - COUNT(DISTINCT handle) FROM records GROUP BY kind`)
	if err != nil {
		return nil, storageError("repair", "", "", err)
	}
	removed := make(map[domain.EntityType]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			_ = rows.Close()
			return nil, storageError("repair", "", "", err)
		}
		if n > 0 {
			removed[domain.EntityType(kind)] = n
		}
	}
	_ = rows.Close()
	if len(removed) == 0 {
		return removed, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE rowid NOT IN (SELECT MAX(rowid) FROM records GROUP BY kind, handle)`); err != nil {
		return nil, storageError("repair", "", "", err)
	}
	return removed, nil
}

// Close implements domain.Backend.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func storageError(op string, kind domain.EntityType, handle string, err error) error {
	return &domain.StorageError{Op: op, Kind: kind, Handle: handle, Fatal: isCorruption(err), Err: err}
}

// isCorruption reports whether SQLite flagged the file as damaged.
func isCorruption(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}
