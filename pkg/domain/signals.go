package domain

// SignalAction is the suffix of a change notification.
type SignalAction string

const (
	SignalAdd     SignalAction = "add"
	SignalUpdate  SignalAction = "update"
	SignalDelete  SignalAction = "delete"
	SignalRebuild SignalAction = "rebuild"
)

// Signal names a change notification such as "person-add".
type Signal string

// SignalName builds the notification name for kind and action.
func SignalName(kind EntityType, action SignalAction) Signal {
	return Signal(string(kind) + "-" + string(action))
}

// Notification is delivered to subscribers. Handles is empty for rebuild.
type Notification struct {
	Signal  Signal
	Kind    EntityType
	Action  SignalAction
	Handles []string
}
