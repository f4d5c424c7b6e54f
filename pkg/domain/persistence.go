package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record is the serialized form of a primary object as held by a backend.
// GrampsID and SortKey are denormalized from Data so that indexes can be
// rebuilt without decoding every payload.
type Record struct {
	Kind     EntityType      `json:"kind"`
	Handle   string          `json:"handle"`
	GrampsID string          `json:"gramps_id"`
	SortKey  string          `json:"sort_key"`
	Data     json.RawMessage `json:"data"`
}

// Clone returns a deep copy of r. A nil record clones to nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Data = cloneRawMessage(r.Data)
	return &cp
}

// Key returns the kind and handle pair identifying the record.
func (r *Record) Key() Ref { return Ref{Kind: r.Kind, Handle: r.Handle} }

// Mutation is one write applied by Backend.Apply. A nil Record deletes the
// stored object under Kind and Handle.
type Mutation struct {
	Kind   EntityType
	Handle string
	Record *Record
}

// Backend is the persistence contract: handle keyed random access, sequential
// iteration per kind and atomic batch writes.
type Backend interface {
	// Get returns the stored record or nil when absent.
	Get(ctx context.Context, kind EntityType, handle string) (*Record, error)
	// Cursor calls fn for every stored record of kind until fn returns an error.
	Cursor(ctx context.Context, kind EntityType, fn func(Record) error) error
	// Apply writes all mutations atomically, in order.
	Apply(ctx context.Context, mutations []Mutation) error
	Close() error
}

// DuplicateRepairer is implemented by backends whose tables can end up with
// more than one row for the same handle. It runs below the transactional layer.
type DuplicateRepairer interface {
	RepairDuplicates(ctx context.Context) (map[EntityType]int, error)
}

// Reader is the read contract shared by the database, its transactions and
// the privacy proxy. Absence is reported as a nil object and a nil error.
type Reader interface {
	Object(ctx context.Context, kind EntityType, handle string) (Object, error)
	ObjectFromGrampsID(ctx context.Context, kind EntityType, id string) (Object, error)
	Handles(ctx context.Context, kind EntityType, sorted bool) ([]string, error)
	HasHandle(ctx context.Context, kind EntityType, handle string) (bool, error)
	Count(ctx context.Context, kind EntityType) (int, error)
}

// FromHandle fetches a typed object through r. T is a pointer to one of the
// primary object types, for example FromHandle[*Person](ctx, db, h).
func FromHandle[T Object](ctx context.Context, r Reader, handle string) (T, error) {
	var zero T
	obj, err := r.Object(ctx, zero.EntityType(), handle)
	if err != nil || obj == nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrWrongKind, handle, obj)
	}
	return typed, nil
}

// FromGrampsID fetches a typed object by its Gramps ID.
func FromGrampsID[T Object](ctx context.Context, r Reader, id string) (T, error) {
	var zero T
	obj, err := r.ObjectFromGrampsID(ctx, zero.EntityType(), id)
	if err != nil || obj == nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrWrongKind, id, obj)
	}
	return typed, nil
}

// Encode serializes o into a storage record.
func Encode(o Object) (*Record, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", o.EntityType(), err)
	}
	base := o.Core()
	return &Record{
		Kind:     o.EntityType(),
		Handle:   base.Handle,
		GrampsID: base.GrampsID,
		SortKey:  o.SortKey(),
		Data:     data,
	}, nil
}

// Decode materializes the object held by a storage record.
func Decode(r *Record) (Object, error) {
	obj, err := NewObject(r.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Data, obj); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", r.Kind, r.Handle, err)
	}
	return obj, nil
}
