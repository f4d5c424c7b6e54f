package domain

// Name is one of a person's names.
type Name struct {
	Private    bool        `json:"private,omitempty"`
	FirstName  string      `json:"first_name,omitempty"`
	Surname    string      `json:"surname,omitempty"`
	Prefix     string      `json:"prefix,omitempty"`
	Suffix     string      `json:"suffix,omitempty"`
	Title      string      `json:"title,omitempty"`
	Patronymic string      `json:"patronymic,omitempty"`
	CallName   string      `json:"call_name,omitempty"`
	Nick       string      `json:"nick,omitempty"`
	Type       NameType    `json:"type,omitempty"`
	Date       Date        `json:"date"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Notes      []string    `json:"notes,omitempty"`
}

// IsEmpty reports whether the name carries no displayable text.
func (n Name) IsEmpty() bool {
	return n.FirstName == "" && n.Surname == "" && n.Prefix == "" && n.Suffix == "" &&
		n.Title == "" && n.Patronymic == "" && n.CallName == "" && n.Nick == ""
}

// EventRef links a person or family to an event in a given role.
type EventRef struct {
	Private    bool          `json:"private,omitempty"`
	Ref        string        `json:"ref"`
	Role       EventRoleType `json:"role,omitempty"`
	Attributes []Attribute   `json:"attributes,omitempty"`
	Sources    []SourceRef   `json:"sources,omitempty"`
	Notes      []string      `json:"notes,omitempty"`
}

// IsPrimary reports whether the referencing object is the principal of the event.
func (r EventRef) IsPrimary() bool {
	return r.Role == "" || r.Role == RolePrimary
}

// ChildRef links a family to one of its children.
type ChildRef struct {
	Private   bool         `json:"private,omitempty"`
	Ref       string       `json:"ref"`
	FatherRel ChildRelType `json:"father_rel,omitempty"`
	MotherRel ChildRelType `json:"mother_rel,omitempty"`
	Sources   []SourceRef  `json:"sources,omitempty"`
	Notes     []string     `json:"notes,omitempty"`
}

// SourceRef cites a source.
type SourceRef struct {
	Private    bool     `json:"private,omitempty"`
	Ref        string   `json:"ref"`
	Page       string   `json:"page,omitempty"`
	Confidence int      `json:"confidence,omitempty"`
	Date       Date     `json:"date"`
	Notes      []string `json:"notes,omitempty"`
}

// MediaRef attaches a media object, optionally to a region of it.
type MediaRef struct {
	Private    bool        `json:"private,omitempty"`
	Ref        string      `json:"ref"`
	Rect       [4]int      `json:"rect"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Notes      []string    `json:"notes,omitempty"`
}

// RepoRef points a source at the repository holding it.
type RepoRef struct {
	Private    bool     `json:"private,omitempty"`
	Ref        string   `json:"ref"`
	CallNumber string   `json:"call_number,omitempty"`
	MediaType  string   `json:"media_type,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

// PersonRef is an association between two people (godfather, witness, ...).
type PersonRef struct {
	Private  bool        `json:"private,omitempty"`
	Ref      string      `json:"ref"`
	Relation string      `json:"relation,omitempty"`
	Sources  []SourceRef `json:"sources,omitempty"`
	Notes    []string    `json:"notes,omitempty"`
}

// Location is a postal or administrative location.
type Location struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Parish     string `json:"parish,omitempty"`
	County     string `json:"county,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Address is a dated residence or contact address.
type Address struct {
	Private  bool        `json:"private,omitempty"`
	Location Location    `json:"location"`
	Date     Date        `json:"date"`
	Sources  []SourceRef `json:"sources,omitempty"`
	Notes    []string    `json:"notes,omitempty"`
}

// Attribute is a typed key/value fact.
type Attribute struct {
	Private bool          `json:"private,omitempty"`
	Type    AttributeType `json:"type"`
	Value   string        `json:"value"`
	Sources []SourceRef   `json:"sources,omitempty"`
	Notes   []string      `json:"notes,omitempty"`
}

// URL is a web or e-mail link.
type URL struct {
	Private     bool    `json:"private,omitempty"`
	Path        string  `json:"path"`
	Description string  `json:"description,omitempty"`
	Type        URLType `json:"type,omitempty"`
}

// LdsOrd records a Latter-day Saints ordinance.
type LdsOrd struct {
	Private bool        `json:"private,omitempty"`
	Type    string      `json:"type"`
	Date    Date        `json:"date"`
	Temple  string      `json:"temple,omitempty"`
	Status  string      `json:"status,omitempty"`
	Place   string      `json:"place,omitempty"`
	Family  string      `json:"family,omitempty"`
	Sources []SourceRef `json:"sources,omitempty"`
	Notes   []string    `json:"notes,omitempty"`
}
