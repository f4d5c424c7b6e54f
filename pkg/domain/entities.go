// Package domain defines the genealogical primary objects, their embedded
// value types, and the persistence contracts shared by grampscore backends.
package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies the type of primary object stored in the database.
type EntityType string

// Supported primary object types. The string values double as storage kinds
// and as the prefix of change notifications ("person-add", ...).
const (
	EntityPerson     EntityType = "person"
	EntityFamily     EntityType = "family"
	EntityEvent      EntityType = "event"
	EntityPlace      EntityType = "place"
	EntitySource     EntityType = "source"
	EntityMedia      EntityType = "media"
	EntityRepository EntityType = "repository"
	EntityNote       EntityType = "note"
)

// EntityTypes lists every primary object type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityPerson, EntityFamily, EntityEvent, EntityPlace,
		EntitySource, EntityMedia, EntityRepository, EntityNote,
	}
}

// Valid reports whether t names a known primary object type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityFamily, EntityEvent, EntityPlace,
		EntitySource, EntityMedia, EntityRepository, EntityNote:
		return true
	}
	return false
}

// ParseEntityType maps a user supplied name to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return t, nil
}

// Base carries the identity and bookkeeping fields common to every primary object.
type Base struct {
	Handle   string `json:"handle"`
	GrampsID string `json:"gramps_id"`
	// Change is the unix time of the last commit.
	Change  int64 `json:"change"`
	Private bool  `json:"private,omitempty"`
}

// Core returns the embedded Base for generic access.
func (b *Base) Core() *Base { return b }

// Object is implemented by every primary object type.
//
// EntityType must not dereference its receiver so that it can be called on a
// typed nil pointer.
type Object interface {
	EntityType() EntityType
	Core() *Base
	// SortKey is the natural ordering key used by sorted handle enumeration.
	SortKey() string
	// References lists every primary object this one points at.
	References() []Ref
}

// Person is an individual in the family tree.
type Person struct {
	Base
	Gender         Gender     `json:"gender"`
	PrimaryName    Name       `json:"primary_name"`
	AlternateNames []Name     `json:"alternate_names,omitempty"`
	BirthRef       *EventRef  `json:"birth_ref,omitempty"`
	DeathRef       *EventRef  `json:"death_ref,omitempty"`
	EventRefs      []EventRef `json:"event_refs,omitempty"`
	// ParentFamilies holds families in which the person is a child.
	ParentFamilies []string `json:"parent_families,omitempty"`
	// Families holds families in which the person is a spouse.
	Families     []string    `json:"families,omitempty"`
	Media        []MediaRef  `json:"media,omitempty"`
	Addresses    []Address   `json:"addresses,omitempty"`
	Attributes   []Attribute `json:"attributes,omitempty"`
	URLs         []URL       `json:"urls,omitempty"`
	LdsOrds      []LdsOrd    `json:"lds_ords,omitempty"`
	Sources      []SourceRef `json:"sources,omitempty"`
	Notes        []string    `json:"notes,omitempty"`
	Associations []PersonRef `json:"associations,omitempty"`
	Marker       string      `json:"marker,omitempty"`
}

func (*Person) EntityType() EntityType { return EntityPerson }

// SortKey orders people by surname, then first name. A person with neither
// sorts under the empty key.
func (p *Person) SortKey() string {
	surname := strings.TrimSpace(p.PrimaryName.Surname)
	first := strings.TrimSpace(p.PrimaryName.FirstName)
	if first == "" {
		return surname
	}
	return surname + ", " + first
}

// MainParentFamily returns the first parent family handle, or "".
func (p *Person) MainParentFamily() string {
	if len(p.ParentFamilies) == 0 {
		return ""
	}
	return p.ParentFamilies[0]
}

// Family joins up to two parents and their children.
type Family struct {
	Base
	FatherHandle string        `json:"father_handle,omitempty"`
	MotherHandle string        `json:"mother_handle,omitempty"`
	Type         FamilyRelType `json:"type"`
	ChildRefs    []ChildRef    `json:"child_refs,omitempty"`
	EventRefs    []EventRef    `json:"event_refs,omitempty"`
	Media        []MediaRef    `json:"media,omitempty"`
	Attributes   []Attribute   `json:"attributes,omitempty"`
	LdsOrds      []LdsOrd      `json:"lds_ords,omitempty"`
	Sources      []SourceRef   `json:"sources,omitempty"`
	Notes        []string      `json:"notes,omitempty"`
	Marker       string        `json:"marker,omitempty"`
}

func (*Family) EntityType() EntityType { return EntityFamily }

func (f *Family) SortKey() string { return f.GrampsID }

// HasChild reports whether handle appears in the child reference list.
func (f *Family) HasChild(handle string) bool {
	for _, ref := range f.ChildRefs {
		if ref.Ref == handle {
			return true
		}
	}
	return false
}

// ChildHandles returns the child handles in list order.
func (f *Family) ChildHandles() []string {
	out := make([]string, 0, len(f.ChildRefs))
	for _, ref := range f.ChildRefs {
		out = append(out, ref.Ref)
	}
	return out
}

// Event is something that happened at a date and place.
type Event struct {
	Base
	Type        EventType   `json:"type"`
	Date        Date        `json:"date"`
	Place       string      `json:"place,omitempty"`
	Description string      `json:"description,omitempty"`
	Sources     []SourceRef `json:"sources,omitempty"`
	Media       []MediaRef  `json:"media,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	Notes       []string    `json:"notes,omitempty"`
}

func (*Event) EntityType() EntityType { return EntityEvent }

func (e *Event) SortKey() string { return e.GrampsID }

// Place is a geographic location.
type Place struct {
	Base
	Title        string      `json:"title"`
	MainLocation Location    `json:"main_location"`
	AltLocations []Location  `json:"alt_locations,omitempty"`
	Latitude     string      `json:"latitude,omitempty"`
	Longitude    string      `json:"longitude,omitempty"`
	Media        []MediaRef  `json:"media,omitempty"`
	URLs         []URL       `json:"urls,omitempty"`
	Sources      []SourceRef `json:"sources,omitempty"`
	Notes        []string    `json:"notes,omitempty"`
}

func (*Place) EntityType() EntityType { return EntityPlace }

func (p *Place) SortKey() string { return p.Title }

// Source is a document or record that supports genealogical claims.
type Source struct {
	Base
	Title    string            `json:"title"`
	Author   string            `json:"author,omitempty"`
	PubInfo  string            `json:"pub_info,omitempty"`
	Abbrev   string            `json:"abbrev,omitempty"`
	RepoRefs []RepoRef         `json:"repo_refs,omitempty"`
	Media    []MediaRef        `json:"media,omitempty"`
	Notes    []string          `json:"notes,omitempty"`
	DataMap  map[string]string `json:"data_map,omitempty"`
}

func (*Source) EntityType() EntityType { return EntitySource }

func (s *Source) SortKey() string { return s.Title }

// Media describes an external file such as a photo or scanned document.
type Media struct {
	Base
	Path        string      `json:"path"`
	MimeType    string      `json:"mime_type,omitempty"`
	Description string      `json:"description,omitempty"`
	Date        Date        `json:"date"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	Sources     []SourceRef `json:"sources,omitempty"`
	Notes       []string    `json:"notes,omitempty"`
}

func (*Media) EntityType() EntityType { return EntityMedia }

func (m *Media) SortKey() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Path
}

// Repository is an archive or library holding sources.
type Repository struct {
	Base
	Name      string         `json:"name"`
	Type      RepositoryType `json:"type"`
	Addresses []Address      `json:"addresses,omitempty"`
	URLs      []URL          `json:"urls,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
}

func (*Repository) EntityType() EntityType { return EntityRepository }

func (r *Repository) SortKey() string { return r.Name }

// Note is free text attached to other objects. Notes are leaves.
type Note struct {
	Base
	Text   string     `json:"text"`
	Format NoteFormat `json:"format"`
	Type   string     `json:"type,omitempty"`
}

func (*Note) EntityType() EntityType { return EntityNote }

func (n *Note) SortKey() string { return n.GrampsID }

// NewObject returns an empty object of the given kind.
func NewObject(kind EntityType) (Object, error) {
	switch kind {
	case EntityPerson:
		return &Person{}, nil
	case EntityFamily:
		return &Family{}, nil
	case EntityEvent:
		return &Event{}, nil
	case EntityPlace:
		return &Place{}, nil
	case EntitySource:
		return &Source{}, nil
	case EntityMedia:
		return &Media{}, nil
	case EntityRepository:
		return &Repository{}, nil
	case EntityNote:
		return &Note{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

var (
	_ Object = (*Person)(nil)
	_ Object = (*Family)(nil)
	_ Object = (*Event)(nil)
	_ Object = (*Place)(nil)
	_ Object = (*Source)(nil)
	_ Object = (*Media)(nil)
	_ Object = (*Repository)(nil)
	_ Object = (*Note)(nil)
)
