package core

import (
	"context"
	"errors"
	"fmt"

	"grampscore/internal/infra/persistence/memory"
	"grampscore/internal/infra/persistence/postgres"
	"grampscore/internal/infra/persistence/sqlite"
	"grampscore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and locates a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenBackend constructs the backend described by cfg. An empty driver
// selects sqlite.
func OpenBackend(ctx context.Context, cfg StorageConfig) (domain.Backend, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres driver requires a DSN")
		}
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenStorage opens the backend described by cfg and a database over it.
func OpenStorage(ctx context.Context, cfg StorageConfig, opts ...Option) (*Database, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db, err := Open(ctx, backend, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return db, nil
}

// RepairDuplicateHandles removes rows stored more than once under the same
// handle, keeping the newest, and reindexes. It works directly on the
// backend, below the transaction layer, so no transaction may be open and
// the undo history is cleared. Backends that cannot hold duplicates report
// nothing.
func (d *Database) RepairDuplicateHandles(ctx context.Context) (removed map[domain.EntityType]int, err error) {
	if d.opts.readOnly {
		return nil, domain.ErrReadOnly
	}
	if !d.writer.TryLock() {
		return nil, domain.ErrTransactionActive
	}
	defer d.writer.Unlock()
	ctx, done := d.observe(ctx, "repair_duplicate_handles")
	defer func() { done(err) }()

	repairer, ok := d.backend.(domain.DuplicateRepairer)
	if !ok {
		return map[domain.EntityType]int{}, nil
	}
	removed, err = repairer.RepairDuplicates(ctx)
	if err != nil {
		return nil, storageError("repair", "", "", err)
	}
	total := 0
	for kind, n := range removed {
		total += n
		if n > 0 {
			d.opts.logger.Warn("duplicate handles removed", "kind", kind, "rows", n)
		}
	}
	if total == 0 {
		return removed, nil
	}
	if err := d.reindex(ctx); err != nil {
		return removed, err
	}
	d.mu.Lock()
	d.history.clear()
	d.mu.Unlock()
	d.RequestRebuild()
	return removed, nil
}
