// Package proxy provides read-only views of a database that hide
// information from its consumers.
package proxy

import (
	"context"
	"slices"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"grampscore/pkg/domain"
)

// PrivateSurname replaces the surname of a person whose primary name is private.
const PrivateSurname = "Private"

// Private hides every object, embedded record and reference marked private.
// Private objects read as absent and are left out of enumeration; public
// objects are returned as sanitized copies in which no reference leads to a
// private or missing object. The proxy keeps no state and never writes.
type Private struct {
	db domain.Reader
}

// NewPrivate wraps db.
func NewPrivate(db domain.Reader) *Private {
	return &Private{db: db}
}

// Object returns a sanitized copy of the object, or nil when it is absent
// or private.
func (p *Private) Object(ctx context.Context, kind domain.EntityType, handle string) (domain.Object, error) {
	obj, err := p.db.Object(ctx, kind, handle)
	if err != nil || obj == nil || obj.Core().Private {
		return nil, err
	}
	return p.sanitize(ctx, obj)
}

// ObjectFromGrampsID is Object keyed by Gramps ID.
func (p *Private) ObjectFromGrampsID(ctx context.Context, kind domain.EntityType, id string) (domain.Object, error) {
	obj, err := p.db.ObjectFromGrampsID(ctx, kind, id)
	if err != nil || obj == nil || obj.Core().Private {
		return nil, err
	}
	return p.sanitize(ctx, obj)
}

// Handles lists the handles of public objects of kind. Sorted order follows
// the sort keys of the sanitized objects, so a redacted name sorts as shown.
func (p *Private) Handles(ctx context.Context, kind domain.EntityType, sorted bool) ([]string, error) {
	handles, err := p.db.Handles(ctx, kind, false)
	if err != nil {
		return nil, err
	}
	out := handles[:0:0]
	var keys map[string]string
	if sorted {
		keys = make(map[string]string, len(handles))
	}
	for _, h := range handles {
		obj, err := p.db.Object(ctx, kind, h)
		if err != nil {
			return nil, err
		}
		if obj == nil || obj.Core().Private {
			continue
		}
		out = append(out, h)
		if !sorted {
			continue
		}
		clean, err := p.sanitize(ctx, obj)
		if err != nil {
			return nil, err
		}
		keys[h] = clean.SortKey()
	}
	if sorted {
		col := collate.New(language.Und, collate.IgnoreCase)
		sort.SliceStable(out, func(i, j int) bool {
			return col.CompareString(keys[out[i]], keys[out[j]]) < 0
		})
	}
	return out, nil
}

// HasHandle reports whether a public object of kind is stored under handle.
func (p *Private) HasHandle(ctx context.Context, kind domain.EntityType, handle string) (bool, error) {
	obj, err := p.db.Object(ctx, kind, handle)
	if err != nil {
		return false, err
	}
	return obj != nil && !obj.Core().Private, nil
}

// Count returns the number of public objects of kind.
func (p *Private) Count(ctx context.Context, kind domain.EntityType) (int, error) {
	handles, err := p.Handles(ctx, kind, false)
	return len(handles), err
}

// visibility memoizes public-object checks for one sanitize call.
type visibility struct {
	ctx  context.Context
	db   domain.Reader
	memo map[domain.Ref]bool
	err  error
}

func (v *visibility) public(kind domain.EntityType, handle string) bool {
	if handle == "" || v.err != nil {
		return false
	}
	key := domain.Ref{Kind: kind, Handle: handle}
	if ok, seen := v.memo[key]; seen {
		return ok
	}
	obj, err := v.db.Object(v.ctx, kind, handle)
	if err != nil {
		v.err = err
		return false
	}
	ok := obj != nil && !obj.Core().Private
	v.memo[key] = ok
	return ok
}

func (p *Private) sanitize(ctx context.Context, obj domain.Object) (domain.Object, error) {
	rec, err := domain.Encode(obj)
	if err != nil {
		return nil, err
	}
	cp, err := domain.Decode(rec)
	if err != nil {
		return nil, err
	}
	v := &visibility{ctx: ctx, db: p.db, memo: make(map[domain.Ref]bool)}

	domain.Walk(cp, domain.Visitor{
		Sources: func(l *[]domain.SourceRef) {
			*l = slices.DeleteFunc(*l, func(r domain.SourceRef) bool {
				return r.Private || !v.public(domain.EntitySource, r.Ref)
			})
		},
		Notes: func(l *[]string) {
			*l = slices.DeleteFunc(*l, func(h string) bool { return !v.public(domain.EntityNote, h) })
		},
		Media: func(l *[]domain.MediaRef) {
			*l = slices.DeleteFunc(*l, func(r domain.MediaRef) bool {
				return r.Private || !v.public(domain.EntityMedia, r.Ref)
			})
		},
		Attributes: func(l *[]domain.Attribute) {
			*l = slices.DeleteFunc(*l, func(a domain.Attribute) bool { return a.Private })
		},
	})

	switch o := cp.(type) {
	case *domain.Person:
		sanitizePerson(o, v)
	case *domain.Family:
		sanitizeFamily(o, v)
	case *domain.Event:
		if !v.public(domain.EntityPlace, o.Place) {
			o.Place = ""
		}
	case *domain.Place:
		o.URLs = publicURLs(o.URLs)
	case *domain.Source:
		o.RepoRefs = slices.DeleteFunc(o.RepoRefs, func(r domain.RepoRef) bool {
			return r.Private || !v.public(domain.EntityRepository, r.Ref)
		})
	case *domain.Repository:
		o.Addresses = publicAddresses(o.Addresses)
		o.URLs = publicURLs(o.URLs)
	}
	if v.err != nil {
		return nil, v.err
	}
	return cp, nil
}

func sanitizePerson(p *domain.Person, v *visibility) {
	if p.PrimaryName.Private {
		p.PrimaryName = domain.Name{Surname: PrivateSurname, Type: p.PrimaryName.Type}
	}
	p.AlternateNames = slices.DeleteFunc(p.AlternateNames, func(n domain.Name) bool { return n.Private })
	p.BirthRef = publicEventRef(p.BirthRef, v)
	p.DeathRef = publicEventRef(p.DeathRef, v)
	p.EventRefs = publicEventRefs(p.EventRefs, v)
	p.ParentFamilies = slices.DeleteFunc(p.ParentFamilies, func(h string) bool { return !v.public(domain.EntityFamily, h) })
	p.Families = slices.DeleteFunc(p.Families, func(h string) bool { return !v.public(domain.EntityFamily, h) })
	p.Addresses = publicAddresses(p.Addresses)
	p.URLs = publicURLs(p.URLs)
	p.LdsOrds = publicLdsOrds(p.LdsOrds, v)
	p.Associations = slices.DeleteFunc(p.Associations, func(r domain.PersonRef) bool {
		return r.Private || !v.public(domain.EntityPerson, r.Ref)
	})
}

func sanitizeFamily(f *domain.Family, v *visibility) {
	if !v.public(domain.EntityPerson, f.FatherHandle) {
		f.FatherHandle = ""
	}
	if !v.public(domain.EntityPerson, f.MotherHandle) {
		f.MotherHandle = ""
	}
	f.ChildRefs = slices.DeleteFunc(f.ChildRefs, func(r domain.ChildRef) bool {
		return r.Private || !v.public(domain.EntityPerson, r.Ref)
	})
	f.EventRefs = publicEventRefs(f.EventRefs, v)
	f.LdsOrds = publicLdsOrds(f.LdsOrds, v)
}

func publicEventRef(r *domain.EventRef, v *visibility) *domain.EventRef {
	if r == nil || r.Private || !v.public(domain.EntityEvent, r.Ref) {
		return nil
	}
	return r
}

func publicEventRefs(refs []domain.EventRef, v *visibility) []domain.EventRef {
	return slices.DeleteFunc(refs, func(r domain.EventRef) bool {
		return r.Private || !v.public(domain.EntityEvent, r.Ref)
	})
}

func publicLdsOrds(ords []domain.LdsOrd, v *visibility) []domain.LdsOrd {
	ords = slices.DeleteFunc(ords, func(o domain.LdsOrd) bool { return o.Private })
	for i := range ords {
		if !v.public(domain.EntityPlace, ords[i].Place) {
			ords[i].Place = ""
		}
		if !v.public(domain.EntityFamily, ords[i].Family) {
			ords[i].Family = ""
		}
	}
	return ords
}

func publicAddresses(l []domain.Address) []domain.Address {
	return slices.DeleteFunc(l, func(a domain.Address) bool { return a.Private })
}

func publicURLs(l []domain.URL) []domain.URL {
	return slices.DeleteFunc(l, func(u domain.URL) bool { return u.Private })
}

var _ domain.Reader = (*Private)(nil)
