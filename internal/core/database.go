// Package core implements the genealogical database: a handle indexed object
// store over a pluggable backend, transactional CRUD with Gramps ID
// allocation, bounded undo/redo history and change notifications.
package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"grampscore/pkg/domain"
)

type indexEntry struct {
	grampsID string
	sortKey  string
}

// kindIndex holds the handle and Gramps ID indexes for one object type.
// byID keeps every holder of an ID so that duplicates read from a damaged
// backend remain visible to the checker.
type kindIndex struct {
	byHandle map[string]indexEntry
	byID     map[string][]string
}

func newKindIndex() *kindIndex {
	return &kindIndex{
		byHandle: make(map[string]indexEntry),
		byID:     make(map[string][]string),
	}
}

func (ix *kindIndex) put(rec *domain.Record) {
	ix.drop(rec.Handle)
	ix.byHandle[rec.Handle] = indexEntry{grampsID: rec.GrampsID, sortKey: rec.SortKey}
	if rec.GrampsID != "" {
		ix.byID[rec.GrampsID] = append(ix.byID[rec.GrampsID], rec.Handle)
	}
}

func (ix *kindIndex) drop(handle string) {
	entry, ok := ix.byHandle[handle]
	if !ok {
		return
	}
	delete(ix.byHandle, handle)
	if entry.grampsID == "" {
		return
	}
	holders := slices.DeleteFunc(ix.byID[entry.grampsID], func(h string) bool { return h == handle })
	if len(holders) == 0 {
		delete(ix.byID, entry.grampsID)
		return
	}
	ix.byID[entry.grampsID] = holders
}

// Database is the genealogical object store. All reads are safe for
// concurrent use; writes go through a single open transaction at a time.
type Database struct {
	opts    options
	backend domain.Backend

	// writer is held from Begin until Commit or Abort.
	writer sync.Mutex

	mu      sync.RWMutex
	index   map[domain.EntityType]*kindIndex
	owners  map[string]domain.EntityType
	cache   *lru.Cache[domain.Ref, *domain.Record]
	active  *Txn
	history *history
	ids     map[domain.EntityType]*idAllocator
	stats   *Stats
	closed  bool

	// gen advances whenever committed state replaces cached records, so a
	// backend read that raced a commit is not cached.
	gen uint64

	bus       *signalBus
	callbacks callbacks
}

// Open indexes the contents of backend and returns a database over it.
func Open(ctx context.Context, backend domain.Backend, opts ...Option) (*Database, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cache, err := lru.New[domain.Ref, *domain.Record](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("record cache: %w", err)
	}
	d := &Database{
		opts:    o,
		backend: backend,
		index:   make(map[domain.EntityType]*kindIndex),
		owners:  make(map[string]domain.EntityType),
		cache:   cache,
		history: newHistory(o.undoLimit),
		ids:     make(map[domain.EntityType]*idAllocator),
		stats:   newStats(),
		bus:     newSignalBus(),
	}
	for _, kind := range domain.EntityTypes() {
		d.index[kind] = newKindIndex()
		d.ids[kind] = newIDAllocator(kind, o.idFormats[kind])
	}

	ctx, done := d.observe(ctx, "open")
	err = d.reindex(ctx)
	done(err)
	if err != nil {
		return nil, err
	}
	d.opts.logger.Info("database opened", "read_only", o.readOnly, "undo_limit", o.undoLimit)
	return d, nil
}

// reindex rebuilds indexes and statistics from the backend.
func (d *Database) reindex(ctx context.Context) error {
	index := make(map[domain.EntityType]*kindIndex, len(d.index))
	owners := make(map[string]domain.EntityType)
	stats := newStats()
	for _, kind := range domain.EntityTypes() {
		ix := newKindIndex()
		index[kind] = ix
		err := d.backend.Cursor(ctx, kind, func(rec domain.Record) error {
			if owner, ok := owners[rec.Handle]; ok && owner != kind {
				d.opts.logger.Warn("handle stored under two object types", "handle", rec.Handle, "kind", kind, "owner", owner)
				return nil
			}
			if _, dup := ix.byHandle[rec.Handle]; dup {
				d.opts.logger.Warn("duplicate handle in backend", "kind", kind, "handle", rec.Handle)
			}
			ix.put(&rec)
			owners[rec.Handle] = kind
			obj, err := domain.Decode(&rec)
			if err != nil {
				d.opts.logger.Warn("undecodable record", "kind", kind, "handle", rec.Handle, "error", err)
				return nil
			}
			stats.add(obj)
			return nil
		})
		if err != nil {
			return storageError("cursor", kind, "", err)
		}
		for id, holders := range ix.byID {
			if len(holders) > 1 {
				d.opts.logger.Warn("duplicate gramps id", "kind", kind, "gramps_id", id, "holders", len(holders))
			}
		}
	}
	d.mu.Lock()
	d.index = index
	d.owners = owners
	d.stats = stats
	d.cache.Purge()
	d.gen++
	d.mu.Unlock()
	return nil
}

// Close releases the backend. An open transaction is aborted first.
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	tx := d.active
	d.mu.Unlock()
	if tx != nil {
		tx.Abort()
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.backend.Close()
}

// ReadOnly reports whether the database rejects mutations.
func (d *Database) ReadOnly() bool { return d.opts.readOnly }

// Backend exposes the underlying persistence backend.
func (d *Database) Backend() domain.Backend { return d.backend }

// Logger returns the configured logger.
func (d *Database) Logger() Logger { return d.opts.logger }

// Clock returns the time source used for change stamps.
func (d *Database) Clock() Clock { return d.opts.clock }

// Object returns the object stored under handle, or nil when absent.
func (d *Database) Object(ctx context.Context, kind domain.EntityType, handle string) (domain.Object, error) {
	rec, err := d.record(ctx, kind, handle)
	if err != nil || rec == nil {
		return nil, err
	}
	return domain.Decode(rec)
}

// ObjectFromGrampsID returns the object holding id, or nil when absent. When
// several objects share the ID the earliest indexed holder wins.
func (d *Database) ObjectFromGrampsID(ctx context.Context, kind domain.EntityType, id string) (domain.Object, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	d.mu.RLock()
	holders := d.index[kind].byID[id]
	var handle string
	if len(holders) > 0 {
		handle = holders[0]
	}
	d.mu.RUnlock()
	if handle == "" {
		return nil, nil
	}
	return d.Object(ctx, kind, handle)
}

// Handles lists the handles of kind. With sorted set the handles are ordered
// by the natural sort key of each object using locale-aware collation;
// otherwise they are ordered by handle.
func (d *Database) Handles(_ context.Context, kind domain.EntityType, sorted bool) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	d.mu.RLock()
	ix := d.index[kind]
	handles := slices.Sorted(maps.Keys(ix.byHandle))
	var keys map[string]string
	if sorted {
		keys = make(map[string]string, len(handles))
		for _, h := range handles {
			keys[h] = ix.byHandle[h].sortKey
		}
	}
	d.mu.RUnlock()
	if sorted {
		sortByKey(handles, keys)
	}
	return handles, nil
}

func sortByKey(handles []string, keys map[string]string) {
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(handles, func(i, j int) bool {
		return col.CompareString(keys[handles[i]], keys[handles[j]]) < 0
	})
}

// HasHandle reports whether an object of kind is stored under handle.
func (d *Database) HasHandle(_ context.Context, kind domain.EntityType, handle string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[kind].byHandle[handle]
	return ok, nil
}

// HasGrampsID reports whether any object of kind holds id.
func (d *Database) HasGrampsID(kind domain.EntityType, id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ix, ok := d.index[kind]
	return ok && len(ix.byID[id]) > 0
}

// Count returns the number of objects of kind.
func (d *Database) Count(_ context.Context, kind domain.EntityType) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index[kind].byHandle), nil
}

// KindOf returns the type owning handle.
func (d *Database) KindOf(handle string) (domain.EntityType, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kind, ok := d.owners[handle]
	return kind, ok
}

// DuplicateGrampsIDs returns, per Gramps ID held by more than one object of
// kind, the holders in index order.
func (d *Database) DuplicateGrampsIDs(kind domain.EntityType) map[string][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]string)
	ix, ok := d.index[kind]
	if !ok {
		return out
	}
	for id, holders := range ix.byID {
		if len(holders) > 1 {
			out[id] = slices.Clone(holders)
		}
	}
	return out
}

// FindNextGrampsID previews the ID the next Add of kind would allocate.
func (d *Database) FindNextGrampsID(kind domain.EntityType) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	ix := d.index[kind]
	return d.ids[kind].peek(func(id string) bool { return len(ix.byID[id]) > 0 }), nil
}

// record resolves a handle through the open transaction, the index, the
// cache and finally the backend. The returned record is owned by the caller.
func (d *Database) record(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	if handle == "" {
		return nil, nil
	}
	key := domain.Ref{Kind: kind, Handle: handle}
	d.mu.RLock()
	if d.active != nil {
		if rec, ok := d.active.pending[key]; ok {
			d.mu.RUnlock()
			return rec.Clone(), nil
		}
	}
	_, exists := d.index[kind].byHandle[handle]
	gen := d.gen
	d.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	if rec, ok := d.cache.Get(key); ok {
		return rec.Clone(), nil
	}
	rec, err := d.backend.Get(ctx, kind, handle)
	if err != nil {
		return nil, storageError("get", kind, handle, err)
	}
	if rec == nil {
		return nil, nil
	}
	d.mu.Lock()
	if d.gen == gen {
		d.cache.Add(key, rec.Clone())
	}
	d.mu.Unlock()
	return rec, nil
}

// applyIndexLocked moves the index from c.Before to c.After. Callers hold d.mu.
func (d *Database) applyIndexLocked(c domain.Change) {
	ix := d.index[c.Kind]
	if c.Before != nil {
		ix.drop(c.Handle)
		delete(d.owners, c.Handle)
	}
	if c.After != nil {
		ix.put(c.After)
		d.owners[c.Handle] = c.Kind
	}
}

// settleLocked makes committed after-images visible to the cache and the
// statistics. Callers hold d.mu.
func (d *Database) settleLocked(changes []domain.Change) {
	d.gen++
	for _, c := range changes {
		key := domain.Ref{Kind: c.Kind, Handle: c.Handle}
		if c.After == nil {
			d.cache.Remove(key)
		} else {
			d.cache.Add(key, c.After.Clone())
		}
		d.stats.apply(c)
	}
}

func (d *Database) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := d.opts.tracer.Start(ctx, op)
	return ctx, func(err error) {
		span.End(err)
		d.opts.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
}

func storageError(op string, kind domain.EntityType, handle string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StorageError{Op: op, Kind: kind, Handle: handle, Fatal: domain.IsFatalStorage(err), Err: err}
}

func isNilObject(obj domain.Object) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

var _ domain.Reader = (*Database)(nil)
