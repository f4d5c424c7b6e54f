package domain

// Gender of a person.
type Gender string

const (
	GenderUnknown Gender = "unknown"
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// Known reports whether the gender is male or female.
func (g Gender) Known() bool { return g == GenderMale || g == GenderFemale }

// EventType classifies events. Values outside the standard set are custom types.
type EventType string

// Standard event types.
const (
	EventBirth        EventType = "Birth"
	EventDeath        EventType = "Death"
	EventBaptism      EventType = "Baptism"
	EventChristening  EventType = "Christening"
	EventBurial       EventType = "Burial"
	EventCremation    EventType = "Cremation"
	EventCauseOfDeath EventType = "Cause Of Death"
	EventMarriage     EventType = "Marriage"
	EventDivorce      EventType = "Divorce"
	EventEngagement   EventType = "Engagement"
	EventCensus       EventType = "Census"
	EventResidence    EventType = "Residence"
	EventOccupation   EventType = "Occupation"
	EventImmigration  EventType = "Immigration"
	EventEmigration   EventType = "Emigration"
	EventProbate      EventType = "Probate"
	EventWill         EventType = "Will"
	EventUnknown      EventType = "Unknown"
)

var standardEventTypes = map[EventType]struct{}{
	EventBirth: {}, EventDeath: {}, EventBaptism: {}, EventChristening: {}, EventBurial: {},
	EventCremation: {}, EventCauseOfDeath: {}, EventMarriage: {}, EventDivorce: {},
	EventEngagement: {}, EventCensus: {}, EventResidence: {}, EventOccupation: {},
	EventImmigration: {}, EventEmigration: {}, EventProbate: {}, EventWill: {}, EventUnknown: {},
}

// IsCustom reports whether t is a user defined event type.
func (t EventType) IsCustom() bool {
	if t == "" {
		return false
	}
	_, ok := standardEventTypes[t]
	return !ok
}

// IsDeathIndicator reports whether the event implies the person is dead.
func (t EventType) IsDeathIndicator() bool {
	return t == EventBurial || t == EventCremation || t == EventCauseOfDeath
}

// FamilyRelType is the relationship between the parents of a family.
type FamilyRelType string

const (
	FamilyMarried    FamilyRelType = "Married"
	FamilyUnmarried  FamilyRelType = "Unmarried"
	FamilyCivilUnion FamilyRelType = "Civil Union"
	FamilyUnknown    FamilyRelType = "Unknown"
)

// IsCustom reports whether t is a user defined relationship type.
func (t FamilyRelType) IsCustom() bool {
	switch t {
	case "", FamilyMarried, FamilyUnmarried, FamilyCivilUnion, FamilyUnknown:
		return false
	}
	return true
}

// ChildRelType describes how a child relates to one parent.
type ChildRelType string

const (
	ChildBirth     ChildRelType = "Birth"
	ChildAdopted   ChildRelType = "Adopted"
	ChildStepchild ChildRelType = "Stepchild"
	ChildSponsored ChildRelType = "Sponsored"
	ChildFoster    ChildRelType = "Foster"
	ChildUnknown   ChildRelType = "Unknown"
)

// IsCustom reports whether t is a user defined child relationship.
func (t ChildRelType) IsCustom() bool {
	switch t {
	case "", ChildBirth, ChildAdopted, ChildStepchild, ChildSponsored, ChildFoster, ChildUnknown:
		return false
	}
	return true
}

// EventRoleType is the role a referencing object plays in an event.
type EventRoleType string

const (
	RolePrimary EventRoleType = "Primary"
	RoleWitness EventRoleType = "Witness"
	RoleFamily  EventRoleType = "Family"
	RoleUnknown EventRoleType = "Unknown"
)

// NameType classifies names.
type NameType string

const (
	NameBirth   NameType = "Birth Name"
	NameAKA     NameType = "Also Known As"
	NameMarried NameType = "Married Name"
	NameUnknown NameType = "Unknown"
)

// IsCustom reports whether t is a user defined name type.
func (t NameType) IsCustom() bool {
	switch t {
	case "", NameBirth, NameAKA, NameMarried, NameUnknown:
		return false
	}
	return true
}

// AttributeType names an attribute. Values outside the standard set are custom.
type AttributeType string

const (
	AttrCaste         AttributeType = "Caste"
	AttrDescription   AttributeType = "Description"
	AttrIDNumber      AttributeType = "Identification Number"
	AttrNationality   AttributeType = "National Origin"
	AttrChildren      AttributeType = "Number of Children"
	AttrSSN           AttributeType = "Social Security Number"
	AttrNickname      AttributeType = "Nickname"
	AttrOccupation    AttributeType = "Occupation"
	AttrAge           AttributeType = "Age"
	AttrFatherAge     AttributeType = "Father Age"
	AttrMotherAge     AttributeType = "Mother Age"
	AttrWitness       AttributeType = "Witness"
	AttrCause         AttributeType = "Cause"
	AttrAgency        AttributeType = "Agency"
	AttrNobilityTitle AttributeType = "Nobility Title"
)

// IsCustom reports whether t is a user defined attribute type.
func (t AttributeType) IsCustom() bool {
	switch t {
	case "", AttrCaste, AttrDescription, AttrIDNumber, AttrNationality, AttrChildren, AttrSSN,
		AttrNickname, AttrOccupation, AttrAge, AttrFatherAge, AttrMotherAge, AttrWitness,
		AttrCause, AttrAgency, AttrNobilityTitle:
		return false
	}
	return true
}

// URLType classifies links.
type URLType string

const (
	URLEmail   URLType = "E-mail"
	URLWeb     URLType = "Web Home"
	URLSearch  URLType = "Web Search"
	URLFTP     URLType = "FTP"
	URLUnknown URLType = "Unknown"
)

// IsCustom reports whether t is a user defined URL type.
func (t URLType) IsCustom() bool {
	switch t {
	case "", URLEmail, URLWeb, URLSearch, URLFTP, URLUnknown:
		return false
	}
	return true
}

// RepositoryType classifies repositories.
type RepositoryType string

const (
	RepoLibrary   RepositoryType = "Library"
	RepoCemetery  RepositoryType = "Cemetery"
	RepoChurch    RepositoryType = "Church"
	RepoArchive   RepositoryType = "Archive"
	RepoAlbum     RepositoryType = "Album"
	RepoWebSite   RepositoryType = "Web site"
	RepoBookstore RepositoryType = "Bookstore"
	RepoSafe      RepositoryType = "Safe"
	RepoUnknown   RepositoryType = "Unknown"
)

// IsCustom reports whether t is a user defined repository type.
func (t RepositoryType) IsCustom() bool {
	switch t {
	case "", RepoLibrary, RepoCemetery, RepoChurch, RepoArchive, RepoAlbum,
		RepoWebSite, RepoBookstore, RepoSafe, RepoUnknown:
		return false
	}
	return true
}

// NoteFormat tells renderers whether whitespace in a note is significant.
type NoteFormat string

const (
	NoteFlowed       NoteFormat = "flowed"
	NotePreformatted NoteFormat = "preformatted"
)
