package domain

// Ref identifies a primary object by kind and handle.
type Ref struct {
	Kind   EntityType `json:"kind"`
	Handle string     `json:"handle"`
}

// Visitor receives pointers to the reference lists embedded in an object.
// Nested lists are visited before the list that contains them, so a callback
// may filter the slice it receives in place.
type Visitor struct {
	Sources    func(*[]SourceRef)
	Notes      func(*[]string)
	Media      func(*[]MediaRef)
	Attributes func(*[]Attribute)
}

func (v *Visitor) sources(l *[]SourceRef) {
	for i := range *l {
		v.notes(&(*l)[i].Notes)
	}
	if v.Sources != nil {
		v.Sources(l)
	}
}

func (v *Visitor) notes(l *[]string) {
	if v.Notes != nil {
		v.Notes(l)
	}
}

func (v *Visitor) attributes(l *[]Attribute) {
	for i := range *l {
		v.sources(&(*l)[i].Sources)
		v.notes(&(*l)[i].Notes)
	}
	if v.Attributes != nil {
		v.Attributes(l)
	}
}

func (v *Visitor) media(l *[]MediaRef) {
	for i := range *l {
		v.attributes(&(*l)[i].Attributes)
		v.sources(&(*l)[i].Sources)
		v.notes(&(*l)[i].Notes)
	}
	if v.Media != nil {
		v.Media(l)
	}
}

func (v *Visitor) eventRef(r *EventRef) {
	v.attributes(&r.Attributes)
	v.sources(&r.Sources)
	v.notes(&r.Notes)
}

func (v *Visitor) eventRefs(l []EventRef) {
	for i := range l {
		v.eventRef(&l[i])
	}
}

func (v *Visitor) name(n *Name) {
	v.sources(&n.Sources)
	v.notes(&n.Notes)
}

func (v *Visitor) addresses(l []Address) {
	for i := range l {
		v.sources(&l[i].Sources)
		v.notes(&l[i].Notes)
	}
}

func (v *Visitor) ldsOrds(l []LdsOrd) {
	for i := range l {
		v.sources(&l[i].Sources)
		v.notes(&l[i].Notes)
	}
}

// Walk visits every embedded reference list of o.
func Walk(o Object, v Visitor) {
	switch obj := o.(type) {
	case *Person:
		v.name(&obj.PrimaryName)
		for i := range obj.AlternateNames {
			v.name(&obj.AlternateNames[i])
		}
		if obj.BirthRef != nil {
			v.eventRef(obj.BirthRef)
		}
		if obj.DeathRef != nil {
			v.eventRef(obj.DeathRef)
		}
		v.eventRefs(obj.EventRefs)
		v.addresses(obj.Addresses)
		v.ldsOrds(obj.LdsOrds)
		for i := range obj.Associations {
			v.sources(&obj.Associations[i].Sources)
			v.notes(&obj.Associations[i].Notes)
		}
		v.media(&obj.Media)
		v.attributes(&obj.Attributes)
		v.sources(&obj.Sources)
		v.notes(&obj.Notes)
	case *Family:
		for i := range obj.ChildRefs {
			v.sources(&obj.ChildRefs[i].Sources)
			v.notes(&obj.ChildRefs[i].Notes)
		}
		v.eventRefs(obj.EventRefs)
		v.ldsOrds(obj.LdsOrds)
		v.media(&obj.Media)
		v.attributes(&obj.Attributes)
		v.sources(&obj.Sources)
		v.notes(&obj.Notes)
	case *Event:
		v.media(&obj.Media)
		v.attributes(&obj.Attributes)
		v.sources(&obj.Sources)
		v.notes(&obj.Notes)
	case *Place:
		v.media(&obj.Media)
		v.sources(&obj.Sources)
		v.notes(&obj.Notes)
	case *Source:
		for i := range obj.RepoRefs {
			v.notes(&obj.RepoRefs[i].Notes)
		}
		v.media(&obj.Media)
		v.notes(&obj.Notes)
	case *Media:
		v.attributes(&obj.Attributes)
		v.sources(&obj.Sources)
		v.notes(&obj.Notes)
	case *Repository:
		v.addresses(obj.Addresses)
		v.notes(&obj.Notes)
	}
}

type refSet struct {
	seen map[Ref]struct{}
	out  []Ref
}

func (s *refSet) add(kind EntityType, handle string) {
	if handle == "" {
		return
	}
	r := Ref{Kind: kind, Handle: handle}
	if s.seen == nil {
		s.seen = make(map[Ref]struct{})
	}
	if _, ok := s.seen[r]; ok {
		return
	}
	s.seen[r] = struct{}{}
	s.out = append(s.out, r)
}

func (s *refSet) walk(o Object) {
	Walk(o, Visitor{
		Sources: func(l *[]SourceRef) {
			for _, r := range *l {
				s.add(EntitySource, r.Ref)
			}
		},
		Notes: func(l *[]string) {
			for _, h := range *l {
				s.add(EntityNote, h)
			}
		},
		Media: func(l *[]MediaRef) {
			for _, r := range *l {
				s.add(EntityMedia, r.Ref)
			}
		},
	})
}

func (s *refSet) lds(l []LdsOrd) {
	for _, o := range l {
		s.add(EntityPlace, o.Place)
		s.add(EntityFamily, o.Family)
	}
}

func (p *Person) References() []Ref {
	var s refSet
	for _, h := range p.ParentFamilies {
		s.add(EntityFamily, h)
	}
	for _, h := range p.Families {
		s.add(EntityFamily, h)
	}
	if p.BirthRef != nil {
		s.add(EntityEvent, p.BirthRef.Ref)
	}
	if p.DeathRef != nil {
		s.add(EntityEvent, p.DeathRef.Ref)
	}
	for _, r := range p.EventRefs {
		s.add(EntityEvent, r.Ref)
	}
	for _, r := range p.Associations {
		s.add(EntityPerson, r.Ref)
	}
	s.lds(p.LdsOrds)
	s.walk(p)
	return s.out
}

func (f *Family) References() []Ref {
	var s refSet
	s.add(EntityPerson, f.FatherHandle)
	s.add(EntityPerson, f.MotherHandle)
	for _, r := range f.ChildRefs {
		s.add(EntityPerson, r.Ref)
	}
	for _, r := range f.EventRefs {
		s.add(EntityEvent, r.Ref)
	}
	s.lds(f.LdsOrds)
	s.walk(f)
	return s.out
}

func (e *Event) References() []Ref {
	var s refSet
	s.add(EntityPlace, e.Place)
	s.walk(e)
	return s.out
}

func (p *Place) References() []Ref {
	var s refSet
	s.walk(p)
	return s.out
}

func (src *Source) References() []Ref {
	var s refSet
	for _, r := range src.RepoRefs {
		s.add(EntityRepository, r.Ref)
	}
	s.walk(src)
	return s.out
}

func (m *Media) References() []Ref {
	var s refSet
	s.walk(m)
	return s.out
}

func (r *Repository) References() []Ref {
	var s refSet
	s.walk(r)
	return s.out
}

func (*Note) References() []Ref { return nil }

// ReferencesHandle reports whether o points at the given object.
func ReferencesHandle(o Object, kind EntityType, handle string) bool {
	for _, r := range o.References() {
		if r.Kind == kind && r.Handle == handle {
			return true
		}
	}
	return false
}
