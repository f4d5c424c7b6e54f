package check

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"grampscore/pkg/domain"
)

// eventRefs drops event references that do not resolve and corrects the
// type of events used as someone's birth or death.
type eventRefs struct{}

func (eventRefs) Name() string { return "event_refs" }

func (eventRefs) Run(ctx context.Context, s *Session) error {
	want := make(map[string]domain.EventType)
	conflicts := make(map[string]bool)
	expect := func(handle string, t domain.EventType) {
		if prev, ok := want[handle]; ok && prev != t {
			conflicts[handle] = true
			return
		}
		want[handle] = t
	}

	err := s.each(ctx, domain.EntityPerson, func(obj domain.Object) error {
		p := obj.(*domain.Person)
		changed := false
		for _, slot := range []struct {
			ref  **domain.EventRef
			kind domain.EventType
		}{{&p.BirthRef, domain.EventBirth}, {&p.DeathRef, domain.EventDeath}} {
			if *slot.ref == nil {
				continue
			}
			ok, err := s.Exists(ctx, domain.EntityEvent, (*slot.ref).Ref)
			if err != nil {
				return err
			}
			if !ok {
				s.Correct(BrokenEventRef, p, fmt.Sprintf("%s event %s not found", slot.kind, (*slot.ref).Ref))
				*slot.ref = nil
				changed = true
				continue
			}
			expect((*slot.ref).Ref, slot.kind)
		}
		refs, dropped, err := s.liveEventRefs(ctx, p.EventRefs)
		if err != nil {
			return err
		}
		for _, h := range dropped {
			s.Correct(BrokenEventRef, p, fmt.Sprintf("event %s not found", h))
		}
		p.EventRefs = refs
		if changed || len(dropped) > 0 {
			return s.Save(ctx, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.each(ctx, domain.EntityFamily, func(obj domain.Object) error {
		f := obj.(*domain.Family)
		refs, dropped, err := s.liveEventRefs(ctx, f.EventRefs)
		if err != nil || len(dropped) == 0 {
			return err
		}
		for _, h := range dropped {
			s.Correct(BrokenEventRef, f, fmt.Sprintf("event %s not found", h))
		}
		f.EventRefs = refs
		return s.Save(ctx, f)
	})
	if err != nil {
		return err
	}

	handles := make([]string, 0, len(want))
	for h := range want {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		if conflicts[h] {
			s.opts.logger.Warn("event used as both birth and death, type left alone", "event", h)
			continue
		}
		ev, err := domain.FromHandle[*domain.Event](ctx, s.tx, h)
		if err != nil {
			return err
		}
		if ev == nil || ev.Type == want[h] {
			continue
		}
		s.Correct(EventTypeFixed, ev, fmt.Sprintf("type %q set to %q", ev.Type, want[h]))
		ev.Type = want[h]
		if err := s.Save(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) liveEventRefs(ctx context.Context, refs []domain.EventRef) (kept []domain.EventRef, dropped []string, err error) {
	kept = refs[:0]
	for _, r := range refs {
		ok, err := s.Exists(ctx, domain.EntityEvent, r.Ref)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			dropped = append(dropped, r.Ref)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped, nil
}

// placeRefs clears place handles on events and LDS ordinances that do not
// resolve, along with LDS family handles.
type placeRefs struct{}

func (placeRefs) Name() string { return "place_refs" }

func (placeRefs) Run(ctx context.Context, s *Session) error {
	err := s.each(ctx, domain.EntityEvent, func(obj domain.Object) error {
		ev := obj.(*domain.Event)
		if ev.Place == "" {
			return nil
		}
		ok, err := s.Exists(ctx, domain.EntityPlace, ev.Place)
		if err != nil || ok {
			return err
		}
		s.Correct(BrokenPlaceRef, ev, fmt.Sprintf("place %s not found", ev.Place))
		ev.Place = ""
		return s.Save(ctx, ev)
	})
	if err != nil {
		return err
	}
	lds := func(obj domain.Object) error {
		var ords []domain.LdsOrd
		switch o := obj.(type) {
		case *domain.Person:
			ords = o.LdsOrds
		case *domain.Family:
			ords = o.LdsOrds
		}
		changed := false
		for i := range ords {
			ord := &ords[i]
			if ord.Place != "" {
				ok, err := s.Exists(ctx, domain.EntityPlace, ord.Place)
				if err != nil {
					return err
				}
				if !ok {
					s.Correct(BrokenPlaceRef, obj, fmt.Sprintf("LDS %s place %s not found", ord.Type, ord.Place))
					ord.Place = ""
					changed = true
				}
			}
			if ord.Family != "" {
				ok, err := s.Exists(ctx, domain.EntityFamily, ord.Family)
				if err != nil {
					return err
				}
				if !ok {
					s.Correct(BrokenFamilyRef, obj, fmt.Sprintf("LDS %s family %s not found", ord.Type, ord.Family))
					ord.Family = ""
					changed = true
				}
			}
		}
		if changed {
			return s.Save(ctx, obj)
		}
		return nil
	}
	for _, kind := range []domain.EntityType{domain.EntityPerson, domain.EntityFamily} {
		if err := s.each(ctx, kind, lds); err != nil {
			return err
		}
	}
	return nil
}

// objectRefs strips citations, note, media, repository and association
// references that do not resolve, from every primary object and its
// embedded structures.
type objectRefs struct{}

func (objectRefs) Name() string { return "object_refs" }

func (objectRefs) Run(ctx context.Context, s *Session) error {
	for _, kind := range domain.EntityTypes() {
		if kind == domain.EntityNote {
			continue
		}
		if err := s.each(ctx, kind, func(obj domain.Object) error {
			return s.scrub(ctx, obj)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) scrub(ctx context.Context, obj domain.Object) error {
	var firstErr error
	changed := false
	live := func(kind domain.EntityType, handle string, corr Kind) bool {
		if firstErr != nil {
			return true
		}
		ok, err := s.Exists(ctx, kind, handle)
		if err != nil {
			firstErr = err
			return true
		}
		if !ok {
			s.Correct(corr, obj, fmt.Sprintf("%s %s not found", kind, handle))
			changed = true
		}
		return ok
	}
	domain.Walk(obj, domain.Visitor{
		Sources: func(l *[]domain.SourceRef) {
			*l = slices.DeleteFunc(*l, func(r domain.SourceRef) bool {
				return !live(domain.EntitySource, r.Ref, BrokenSourceRef)
			})
		},
		Notes: func(l *[]string) {
			*l = slices.DeleteFunc(*l, func(h string) bool {
				return !live(domain.EntityNote, h, BrokenNoteRef)
			})
		},
		Media: func(l *[]domain.MediaRef) {
			*l = slices.DeleteFunc(*l, func(r domain.MediaRef) bool {
				return !live(domain.EntityMedia, r.Ref, BrokenMediaRef)
			})
		},
	})
	switch o := obj.(type) {
	case *domain.Source:
		o.RepoRefs = slices.DeleteFunc(o.RepoRefs, func(r domain.RepoRef) bool {
			return !live(domain.EntityRepository, r.Ref, BrokenRepositoryRef)
		})
	case *domain.Person:
		o.Associations = slices.DeleteFunc(o.Associations, func(r domain.PersonRef) bool {
			return !live(domain.EntityPerson, r.Ref, BrokenPersonRef)
		})
	}
	if firstErr != nil {
		return firstErr
	}
	if changed {
		return s.Save(ctx, obj)
	}
	return nil
}
