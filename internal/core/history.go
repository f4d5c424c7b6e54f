package core

import (
	"context"
	"sync"
	"time"

	"grampscore/pkg/domain"
)

type historyEntry struct {
	description string
	changes     []domain.Change
	committed   time.Time
}

// ring is a fixed capacity stack that silently drops its oldest element
// when full.
type ring struct {
	buf   []*historyEntry
	start int
	n     int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]*historyEntry, capacity)}
}

// push adds e on top and returns the entry evicted to make room, if any.
func (r *ring) push(e *historyEntry) *historyEntry {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return nil
	}
	evicted := r.buf[r.start]
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
	return evicted
}

func (r *ring) peek() *historyEntry {
	if r.n == 0 {
		return nil
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)]
}

func (r *ring) pop() *historyEntry {
	if r.n == 0 {
		return nil
	}
	i := (r.start + r.n - 1) % len(r.buf)
	e := r.buf[i]
	r.buf[i] = nil
	r.n--
	return e
}

func (r *ring) clear() {
	clear(r.buf)
	r.start, r.n = 0, 0
}

// history pairs the bounded undo ring with the redo stack. Redo entries only
// ever come from undo, so the redo stack never outgrows the ring.
type history struct {
	undo *ring
	redo []*historyEntry
}

func newHistory(limit int) *history {
	return &history{undo: newRing(limit)}
}

// record pushes a freshly committed transaction. New work invalidates redo.
func (h *history) record(e *historyEntry) *historyEntry {
	h.redo = nil
	return h.undo.push(e)
}

func (h *history) clear() {
	h.undo.clear()
	h.redo = nil
}

func (h *history) peekRedo() *historyEntry {
	if len(h.redo) == 0 {
		return nil
	}
	return h.redo[len(h.redo)-1]
}

func (h *history) popRedo() *historyEntry {
	e := h.peekRedo()
	if e != nil {
		h.redo[len(h.redo)-1] = nil
		h.redo = h.redo[:len(h.redo)-1]
	}
	return e
}

// describe returns the descriptions of the next undo and redo candidates.
func (h *history) describe() (undo, redo string) {
	if e := h.undo.peek(); e != nil {
		undo = e.description
	}
	if e := h.peekRedo(); e != nil {
		redo = e.description
	}
	return undo, redo
}

type callbacks struct {
	mu   sync.Mutex
	undo func(description string)
	redo func(description string)
}

func (c *callbacks) fire(undoDesc, redoDesc string) {
	c.mu.Lock()
	undo, redo := c.undo, c.redo
	c.mu.Unlock()
	if undo != nil {
		undo(undoDesc)
	}
	if redo != nil {
		redo(redoDesc)
	}
}

// SetUndoCallback registers fn to be told the description of the transaction
// that Undo would revert next, or "" when there is nothing to undo. It fires
// after every commit, undo and redo.
func (d *Database) SetUndoCallback(fn func(description string)) {
	d.callbacks.mu.Lock()
	d.callbacks.undo = fn
	d.callbacks.mu.Unlock()
}

// SetRedoCallback is SetUndoCallback for Redo.
func (d *Database) SetRedoCallback(fn func(description string)) {
	d.callbacks.mu.Lock()
	d.callbacks.redo = fn
	d.callbacks.mu.Unlock()
}

// UndoDepth returns the number of transactions that can be undone.
func (d *Database) UndoDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history.undo.n
}

// RedoDepth returns the number of transactions that can be redone.
func (d *Database) RedoDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.history.redo)
}

// Undo reverts the most recent committed transaction by restoring each
// record's before-image, last change first. It returns false when there is
// nothing to undo. Undo fails with domain.ErrReadOnly on a read-only
// database and domain.ErrTransactionActive while a transaction is open.
func (d *Database) Undo(ctx context.Context) (ok bool, err error) {
	if d.opts.readOnly {
		return false, domain.ErrReadOnly
	}
	if !d.writer.TryLock() {
		return false, domain.ErrTransactionActive
	}
	defer d.writer.Unlock()
	ctx, done := d.observe(ctx, "undo")
	defer func() { done(err) }()

	d.mu.RLock()
	closed, entry := d.closed, d.history.undo.peek()
	d.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if entry == nil {
		return false, nil
	}
	replay := make([]domain.Change, 0, len(entry.changes))
	for i := len(entry.changes) - 1; i >= 0; i-- {
		replay = append(replay, entry.changes[i].Inverse())
	}
	if err := d.replay(ctx, "undo", replay); err != nil {
		return false, err
	}

	d.mu.Lock()
	d.history.undo.pop()
	d.history.redo = append(d.history.redo, entry)
	undoDesc, redoDesc := d.history.describe()
	d.mu.Unlock()

	d.opts.logger.Info("transaction undone", "description", entry.description, "records", len(entry.changes))
	d.bus.emit(changeNotifications(replay))
	d.callbacks.fire(undoDesc, redoDesc)
	return true, nil
}

// Redo re-applies the most recently undone transaction. Any new commit
// discards the redo stack.
func (d *Database) Redo(ctx context.Context) (ok bool, err error) {
	if d.opts.readOnly {
		return false, domain.ErrReadOnly
	}
	if !d.writer.TryLock() {
		return false, domain.ErrTransactionActive
	}
	defer d.writer.Unlock()
	ctx, done := d.observe(ctx, "redo")
	defer func() { done(err) }()

	d.mu.RLock()
	closed, entry := d.closed, d.history.peekRedo()
	d.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if entry == nil {
		return false, nil
	}
	if err := d.replay(ctx, "redo", entry.changes); err != nil {
		return false, err
	}

	d.mu.Lock()
	d.history.popRedo()
	d.history.undo.push(entry)
	undoDesc, redoDesc := d.history.describe()
	d.mu.Unlock()

	d.opts.logger.Info("transaction redone", "description", entry.description, "records", len(entry.changes))
	d.bus.emit(changeNotifications(entry.changes))
	d.callbacks.fire(undoDesc, redoDesc)
	return true, nil
}

// replay writes changes to the backend and then to the index, cache and
// statistics. The caller holds the writer lock.
func (d *Database) replay(ctx context.Context, op string, changes []domain.Change) error {
	mutations := make([]domain.Mutation, len(changes))
	for i, c := range changes {
		mutations[i] = c.Mutation()
	}
	if err := d.backend.Apply(ctx, mutations); err != nil {
		err = storageError(op, "", "", err)
		d.opts.logger.Error(op+" failed", "error", err)
		return err
	}
	d.mu.Lock()
	for _, c := range changes {
		d.applyIndexLocked(c)
	}
	d.settleLocked(changes)
	d.mu.Unlock()
	return nil
}
