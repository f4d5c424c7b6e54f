package core

import (
	"slices"
	"sync"

	"grampscore/pkg/domain"
)

// Listener receives change notifications. Listeners run synchronously on the
// goroutine that committed, after all database locks are released, so they
// may read from the database but must not block for long.
type Listener func(domain.Notification)

type subscription struct {
	id      int
	signals map[domain.Signal]struct{}
	fn      Listener
}

type signalBus struct {
	mu   sync.RWMutex
	next int
	subs []subscription
}

func newSignalBus() *signalBus { return &signalBus{} }

// Subscribe registers fn for the given signals, or for every signal when none
// are named. The returned function cancels the subscription.
func (d *Database) Subscribe(fn Listener, signals ...domain.Signal) (cancel func()) {
	b := d.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := subscription{id: b.next, fn: fn}
	if len(signals) > 0 {
		sub.signals = make(map[domain.Signal]struct{}, len(signals))
		for _, s := range signals {
			sub.signals[s] = struct{}{}
		}
	}
	b.subs = append(b.subs, sub)
	id := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// RequestRebuild tells every subscriber to reload all object types.
func (d *Database) RequestRebuild() {
	out := make([]domain.Notification, 0, len(domain.EntityTypes()))
	for _, kind := range domain.EntityTypes() {
		out = append(out, rebuildNotification(kind))
	}
	d.bus.emit(out)
}

func (b *signalBus) emit(notes []domain.Notification) {
	if len(notes) == 0 {
		return
	}
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, n := range notes {
		for _, s := range subs {
			if s.signals != nil {
				if _, ok := s.signals[n.Signal]; !ok {
					continue
				}
			}
			s.fn(n)
		}
	}
}

func signalAction(a domain.Action) domain.SignalAction {
	switch a {
	case domain.ActionAdd:
		return domain.SignalAdd
	case domain.ActionDelete:
		return domain.SignalDelete
	}
	return domain.SignalUpdate
}

// changeNotifications yields one notification per change, in order.
func changeNotifications(changes []domain.Change) []domain.Notification {
	out := make([]domain.Notification, 0, len(changes))
	for _, c := range changes {
		action := signalAction(c.Action())
		out = append(out, domain.Notification{
			Signal:  domain.SignalName(c.Kind, action),
			Kind:    c.Kind,
			Action:  action,
			Handles: []string{c.Handle},
		})
	}
	return out
}

// rebuildNotifications yields one rebuild per touched type.
func rebuildNotifications(changes []domain.Change) []domain.Notification {
	touched := make(map[domain.EntityType]bool)
	for _, c := range changes {
		touched[c.Kind] = true
	}
	var out []domain.Notification
	for _, kind := range domain.EntityTypes() {
		if touched[kind] {
			out = append(out, rebuildNotification(kind))
		}
	}
	return out
}

func rebuildNotification(kind domain.EntityType) domain.Notification {
	return domain.Notification{
		Signal: domain.SignalName(kind, domain.SignalRebuild),
		Kind:   kind,
		Action: domain.SignalRebuild,
	}
}
