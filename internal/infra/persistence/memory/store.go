// Package memory provides an in-memory backend used for tests and ephemeral
// databases. State can be exported to and restored from a JSON snapshot.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"grampscore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the backend interface.
var _ domain.Backend = (*Store)(nil)

// Snapshot is the serializable state of a Store, grouped by kind.
type Snapshot struct {
	Records map[domain.EntityType][]domain.Record `json:"records"`
}

// Store keeps records in per-kind maps.
type Store struct {
	mu      sync.RWMutex
	buckets map[domain.EntityType]map[string]domain.Record
	closed  bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{buckets: newBuckets()}
}

func newBuckets() map[domain.EntityType]map[string]domain.Record {
	b := make(map[domain.EntityType]map[string]domain.Record, len(domain.EntityTypes()))
	for _, kind := range domain.EntityTypes() {
		b[kind] = make(map[string]domain.Record)
	}
	return b
}

func (s *Store) bucket(kind domain.EntityType) (map[string]domain.Record, error) {
	b, ok := s.buckets[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	return b, nil
}

// Get implements domain.Backend.
func (s *Store) Get(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	b, err := s.bucket(kind)
	if err != nil {
		return nil, err
	}
	rec, ok := b[handle]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Cursor implements domain.Backend. Records are visited in handle order over
// a copy of the bucket, so fn may call back into the store.
func (s *Store) Cursor(ctx context.Context, kind domain.EntityType, fn func(domain.Record) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errClosed
	}
	b, err := s.bucket(kind)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	recs := make([]domain.Record, 0, len(b))
	for _, rec := range b {
		recs = append(recs, *rec.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].Handle < recs[j].Handle })
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements domain.Backend. Mutations are validated before any of
// them is applied so a rejected batch leaves the store untouched.
func (s *Store) Apply(ctx context.Context, mutations []domain.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, m := range mutations {
		if _, err := s.bucket(m.Kind); err != nil {
			return err
		}
		if m.Handle == "" {
			return fmt.Errorf("mutation for %s without handle", m.Kind)
		}
	}
	for _, m := range mutations {
		b := s.buckets[m.Kind]
		if m.Record == nil {
			delete(b, m.Handle)
			continue
		}
		rec := m.Record.Clone()
		rec.Kind, rec.Handle = m.Kind, m.Handle
		b[m.Handle] = *rec
	}
	return nil
}

// Close implements domain.Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ExportState returns a deep copy of the stored records.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Records: make(map[domain.EntityType][]domain.Record, len(s.buckets))}
	for kind, b := range s.buckets {
		recs := make([]domain.Record, 0, len(b))
		for _, rec := range b {
			recs = append(recs, *rec.Clone())
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Handle < recs[j].Handle })
		snap.Records[kind] = recs
	}
	return snap
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	snapshot = migrateSnapshot(snapshot)
	buckets := newBuckets()
	for kind, recs := range snapshot.Records {
		for _, rec := range recs {
			buckets[kind][rec.Handle] = *rec.Clone()
		}
	}
	s.mu.Lock()
	s.buckets = buckets
	s.mu.Unlock()
}

// migrateSnapshot drops entries that cannot be addressed: unknown kinds,
// empty handles and records whose embedded kind disagrees with their bucket.
// When a handle appears twice the later entry wins.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{Records: make(map[domain.EntityType][]domain.Record, len(snapshot.Records))}
	for kind, recs := range snapshot.Records {
		if !kind.Valid() {
			continue
		}
		pos := make(map[string]int, len(recs))
		var kept []domain.Record
		for _, rec := range recs {
			if rec.Handle == "" {
				continue
			}
			if rec.Kind == "" {
				rec.Kind = kind
			}
			if rec.Kind != kind {
				continue
			}
			if i, ok := pos[rec.Handle]; ok {
				kept[i] = rec
				continue
			}
			pos[rec.Handle] = len(kept)
			kept = append(kept, rec)
		}
		out.Records[kind] = kept
	}
	return out
}

// WriteSnapshot encodes the current state as JSON.
func (s *Store) WriteSnapshot(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.ExportState()); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the current state with a JSON snapshot.
func (s *Store) ReadSnapshot(r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s.ImportState(snap)
	return nil
}

var errClosed = fmt.Errorf("memory store closed")
