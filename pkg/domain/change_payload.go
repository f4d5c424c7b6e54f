package domain

import "encoding/json"

// Action describes what a Change did to a record.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is one entry of a transaction log: the serialized state of a record
// immediately before and after a single commit or removal. A nil Before marks
// a newly created record; a nil After marks a removal.
type Change struct {
	Kind   EntityType `json:"kind"`
	Handle string     `json:"handle"`
	Before *Record    `json:"before,omitempty"`
	After  *Record    `json:"after,omitempty"`
}

// Action classifies the change.
func (c Change) Action() Action {
	switch {
	case c.Before == nil:
		return ActionAdd
	case c.After == nil:
		return ActionDelete
	}
	return ActionUpdate
}

// Inverse returns the change that reverts c.
func (c Change) Inverse() Change {
	return Change{Kind: c.Kind, Handle: c.Handle, Before: c.After, After: c.Before}
}

// Mutation returns the backend write that applies c.
func (c Change) Mutation() Mutation {
	return Mutation{Kind: c.Kind, Handle: c.Handle, Record: c.After}
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
