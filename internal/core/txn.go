package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"grampscore/pkg/domain"
)

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database closed")

// Txn is the single open write transaction of a Database. Every write records
// the before and after image of the touched record, in order. Changes become
// visible to readers of the same database immediately and reach the backend
// atomically on Commit.
//
// A Txn is not safe for concurrent use.
type Txn struct {
	db          *Database
	description string
	batch       bool
	started     time.Time
	changes     []domain.Change
	// pending overlays the backend; a nil record is a removal.
	pending map[domain.Ref]*domain.Record
	closed  bool
}

// Begin opens a transaction. Only one transaction may be open at a time; a
// second Begin fails with domain.ErrTransactionActive instead of waiting.
func (d *Database) Begin(ctx context.Context, description string) (*Txn, error) {
	return d.begin(ctx, description, false)
}

// BeginBatch opens a batch transaction. Batch transactions bypass the undo
// history and clear it on commit, and subscribers receive one rebuild
// notification per touched type instead of per-record notifications.
func (d *Database) BeginBatch(ctx context.Context, description string) (*Txn, error) {
	return d.begin(ctx, description, true)
}

func (d *Database) begin(ctx context.Context, description string, batch bool) (*Txn, error) {
	if d.opts.readOnly {
		return nil, domain.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.writer.TryLock() {
		return nil, domain.ErrTransactionActive
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.writer.Unlock()
		return nil, ErrClosed
	}
	tx := &Txn{
		db:          d,
		description: description,
		batch:       batch,
		started:     d.opts.clock.Now(),
		pending:     make(map[domain.Ref]*domain.Record),
	}
	d.active = tx
	d.mu.Unlock()
	d.opts.logger.Debug("transaction begin", "description", description, "batch", batch)
	return tx, nil
}

// RunInTransaction runs fn inside a new transaction. The transaction is
// committed when fn returns nil and aborted otherwise.
func (d *Database) RunInTransaction(ctx context.Context, description string, fn func(*Txn) error) error {
	return d.run(ctx, description, false, fn)
}

// RunInBatch is RunInTransaction for a batch transaction.
func (d *Database) RunInBatch(ctx context.Context, description string, fn func(*Txn) error) error {
	return d.run(ctx, description, true, fn)
}

func (d *Database) run(ctx context.Context, description string, batch bool, fn func(*Txn) error) error {
	tx, err := d.begin(ctx, description, batch)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Description returns the human readable label of the transaction.
func (tx *Txn) Description() string { return tx.description }

// SetDescription relabels the transaction before it is committed.
func (tx *Txn) SetDescription(description string) { tx.description = description }

// Batch reports whether this is a batch transaction.
func (tx *Txn) Batch() bool { return tx.batch }

// Len returns the number of recorded changes.
func (tx *Txn) Len() int { return len(tx.changes) }

// Changes returns the recorded changes in order.
func (tx *Txn) Changes() []domain.Change { return slices.Clone(tx.changes) }

// Database returns the database the transaction writes to.
func (tx *Txn) Database() *Database { return tx.db }

func (tx *Txn) usable() error {
	if tx == nil || tx.closed {
		return domain.ErrTransactionClosed
	}
	return nil
}

// SaveOption adjusts a single Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	changeTime time.Time
}

// WithChangeTime stamps the object with t instead of the current time.
func WithChangeTime(t time.Time) SaveOption {
	return func(o *saveOptions) { o.changeTime = t }
}

// Add stores a new object. A missing handle is generated and a missing Gramps
// ID is allocated from the configured template. The object is updated in
// place and its handle returned.
func (tx *Txn) Add(ctx context.Context, obj domain.Object) (handle string, err error) {
	if err := tx.usable(); err != nil {
		return "", err
	}
	if isNilObject(obj) {
		return "", errors.New("add: nil object")
	}
	kind := obj.EntityType()
	ctx, done := tx.db.observe(ctx, "add_"+string(kind))
	defer func() { done(err) }()

	base := obj.Core()
	if base.Handle == "" {
		base.Handle = newHandle()
	}
	if err := tx.save(ctx, obj, saveOptions{}); err != nil {
		return "", err
	}
	return base.Handle, nil
}

// Save writes obj under its handle, replacing any stored version. Saving a
// nil object or an object without a handle does nothing. An empty Gramps ID
// is allocated; an ID already held by another object of the same type is
// rejected with domain.ErrDuplicateGrampsID, and a handle owned by another
// type with domain.ErrHandleConflict.
func (tx *Txn) Save(ctx context.Context, obj domain.Object, opts ...SaveOption) (err error) {
	if err := tx.usable(); err != nil {
		return err
	}
	if isNilObject(obj) {
		tx.db.opts.logger.Debug("save of nil object ignored", "transaction", tx.description)
		return nil
	}
	kind := obj.EntityType()
	if obj.Core().Handle == "" {
		tx.db.opts.logger.Warn("save of object without handle ignored", "kind", kind, "gramps_id", obj.Core().GrampsID)
		return nil
	}
	ctx, done := tx.db.observe(ctx, "commit_"+string(kind))
	defer func() { done(err) }()

	var so saveOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}
	return tx.save(ctx, obj, so)
}

func (tx *Txn) save(ctx context.Context, obj domain.Object, so saveOptions) error {
	d := tx.db
	kind := obj.EntityType()
	base := obj.Core()

	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.owners[base.Handle]; ok && owner != kind {
		return fmt.Errorf("%w: %s belongs to a %s", domain.ErrHandleConflict, base.Handle, owner)
	}
	ix := d.index[kind]
	if base.GrampsID == "" {
		base.GrampsID = d.ids[kind].allocate(func(id string) bool { return len(ix.byID[id]) > 0 })
	} else if current, ok := ix.byHandle[base.Handle]; !ok || current.grampsID != base.GrampsID {
		if slices.ContainsFunc(ix.byID[base.GrampsID], func(h string) bool { return h != base.Handle }) {
			return fmt.Errorf("%w: %s %s", domain.ErrDuplicateGrampsID, kind, base.GrampsID)
		}
	}
	stamp := so.changeTime
	if stamp.IsZero() {
		stamp = d.opts.clock.Now()
	}
	base.Change = stamp.Unix()

	after, err := domain.Encode(obj)
	if err != nil {
		return err
	}
	before, err := tx.currentLocked(ctx, kind, base.Handle)
	if err != nil {
		return err
	}
	tx.recordLocked(domain.Change{Kind: kind, Handle: base.Handle, Before: before, After: after})
	return nil
}

// Remove deletes the object stored under handle. Removing an absent object
// does nothing. References held by other objects are left for the integrity
// checker to scrub.
func (tx *Txn) Remove(ctx context.Context, kind domain.EntityType, handle string) (err error) {
	if err := tx.usable(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	ctx, done := tx.db.observe(ctx, "remove_"+string(kind))
	defer func() { done(err) }()

	d := tx.db
	d.mu.Lock()
	defer d.mu.Unlock()
	before, err := tx.currentLocked(ctx, kind, handle)
	if err != nil || before == nil {
		return err
	}
	tx.recordLocked(domain.Change{Kind: kind, Handle: handle, Before: before})
	return nil
}

// currentLocked returns the state of a record as seen by this transaction.
func (tx *Txn) currentLocked(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	d := tx.db
	key := domain.Ref{Kind: kind, Handle: handle}
	if rec, ok := tx.pending[key]; ok {
		return rec, nil
	}
	if _, ok := d.index[kind].byHandle[handle]; !ok {
		return nil, nil
	}
	if rec, ok := d.cache.Get(key); ok {
		return rec.Clone(), nil
	}
	rec, err := d.backend.Get(ctx, kind, handle)
	if err != nil {
		return nil, storageError("get", kind, handle, err)
	}
	return rec, nil
}

func (tx *Txn) recordLocked(c domain.Change) {
	tx.changes = append(tx.changes, c)
	tx.pending[domain.Ref{Kind: c.Kind, Handle: c.Handle}] = c.After
	tx.db.applyIndexLocked(c)
}

// Commit writes every recorded change to the backend in one batch, records
// the transaction for undo and notifies subscribers. An empty transaction
// commits without touching the backend or the history. When the backend
// rejects the batch the in-memory state is rolled back and a
// *domain.StorageError is returned.
func (tx *Txn) Commit(ctx context.Context) (err error) {
	if err := tx.usable(); err != nil {
		return err
	}
	d := tx.db
	ctx, done := d.observe(ctx, "transaction_commit")
	defer func() { done(err) }()

	if len(tx.changes) == 0 {
		tx.close()
		d.opts.logger.Debug("empty transaction committed", "description", tx.description)
		return nil
	}

	mutations := make([]domain.Mutation, len(tx.changes))
	for i, c := range tx.changes {
		mutations[i] = c.Mutation()
	}
	if err := d.backend.Apply(ctx, mutations); err != nil {
		tx.rollback()
		err = storageError("commit", "", "", err)
		d.opts.logger.Error("transaction commit failed", "description", tx.description, "records", len(tx.changes), "error", err)
		return err
	}

	entry := &historyEntry{description: tx.description, changes: tx.changes, committed: d.opts.clock.Now()}
	d.mu.Lock()
	d.settleLocked(tx.changes)
	if tx.batch {
		d.history.clear()
	} else if evicted := d.history.record(entry); evicted != nil {
		d.opts.logger.Debug("undo history full, oldest entry dropped", "description", evicted.description)
	}
	undoDesc, redoDesc := d.history.describe()
	d.active = nil
	d.mu.Unlock()
	tx.closed = true
	d.writer.Unlock()

	d.opts.logger.Info("transaction committed", "description", tx.description, "records", len(tx.changes), "batch", tx.batch)
	if tx.batch {
		d.bus.emit(rebuildNotifications(tx.changes))
	} else {
		d.bus.emit(changeNotifications(tx.changes))
	}
	d.callbacks.fire(undoDesc, redoDesc)
	return nil
}

// Abort discards every recorded change. Aborting a closed transaction does
// nothing, so Abort is safe to defer.
func (tx *Txn) Abort() {
	if tx == nil || tx.closed {
		return
	}
	if len(tx.changes) > 0 {
		tx.db.opts.logger.Info("transaction aborted", "description", tx.description, "records", len(tx.changes))
	}
	tx.rollback()
}

// rollback reverts the index by replaying before-images in reverse and
// releases the writer lock.
func (tx *Txn) rollback() {
	d := tx.db
	d.mu.Lock()
	for i := len(tx.changes) - 1; i >= 0; i-- {
		d.applyIndexLocked(tx.changes[i].Inverse())
	}
	d.mu.Unlock()
	tx.close()
}

func (tx *Txn) close() {
	d := tx.db
	d.mu.Lock()
	if d.active == tx {
		d.active = nil
	}
	d.mu.Unlock()
	tx.closed = true
	d.writer.Unlock()
}

// Object reads through the transaction. Equivalent to Database.Object while
// the transaction is open.
func (tx *Txn) Object(ctx context.Context, kind domain.EntityType, handle string) (domain.Object, error) {
	return tx.db.Object(ctx, kind, handle)
}

func (tx *Txn) ObjectFromGrampsID(ctx context.Context, kind domain.EntityType, id string) (domain.Object, error) {
	return tx.db.ObjectFromGrampsID(ctx, kind, id)
}

func (tx *Txn) Handles(ctx context.Context, kind domain.EntityType, sorted bool) ([]string, error) {
	return tx.db.Handles(ctx, kind, sorted)
}

func (tx *Txn) HasHandle(ctx context.Context, kind domain.EntityType, handle string) (bool, error) {
	return tx.db.HasHandle(ctx, kind, handle)
}

func (tx *Txn) Count(ctx context.Context, kind domain.EntityType) (int, error) {
	return tx.db.Count(ctx, kind)
}

func newHandle() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ domain.Reader = (*Txn)(nil)
