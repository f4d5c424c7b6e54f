package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly is returned by mutating operations on a read-only database.
	ErrReadOnly = errors.New("database is read-only")
	// ErrTransactionActive is returned when a second writer tries to begin.
	ErrTransactionActive = errors.New("a transaction is already open")
	// ErrTransactionClosed is returned when a committed or aborted transaction is reused.
	ErrTransactionClosed = errors.New("transaction already closed")
	// ErrHandleConflict is returned when a handle is already owned by another kind.
	ErrHandleConflict = errors.New("handle is used by another object type")
	// ErrDuplicateGrampsID is returned when a Gramps ID is held by another object.
	ErrDuplicateGrampsID = errors.New("gramps id already in use")
	ErrWrongKind         = errors.New("object has unexpected type")
	ErrUnknownKind       = errors.New("unknown object type")
	// ErrAncestorLoop is matched by AncestorLoopError.
	ErrAncestorLoop = errors.New("person is their own ancestor")
)

// AncestorLoopError reports a cycle in the parent graph.
type AncestorLoopError struct {
	Handle   string
	GrampsID string
}

func (e *AncestorLoopError) Error() string {
	id := e.GrampsID
	if id == "" {
		id = e.Handle
	}
	return fmt.Sprintf("%s: %s", ErrAncestorLoop, id)
}

func (e *AncestorLoopError) Is(target error) bool { return target == ErrAncestorLoop }

// StorageError wraps a backend failure. Fatal errors mean the storage engine
// reported corruption: the current operation failed and the caller should
// run a repair before retrying. Non-fatal errors may be retried as is.
type StorageError struct {
	Op     string
	Kind   EntityType
	Handle string
	Fatal  bool
	Err    error
}

func (e *StorageError) Error() string {
	msg := "storage " + e.Op
	if e.Kind != "" {
		msg += " " + string(e.Kind)
	}
	if e.Handle != "" {
		msg += " " + e.Handle
	}
	if e.Fatal {
		msg += " (fatal)"
	}
	return msg + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsFatalStorage reports whether err carries a fatal StorageError.
func IsFatalStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Fatal
}
