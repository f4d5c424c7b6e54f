package core

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"grampscore/pkg/domain"
)

// Vocabulary names a family of user definable types.
type Vocabulary string

const (
	VocabEventType      Vocabulary = "event_type"
	VocabFamilyRelation Vocabulary = "family_relation"
	VocabChildRelation  Vocabulary = "child_relation"
	VocabAttribute      Vocabulary = "attribute"
	VocabURL            Vocabulary = "url"
	VocabRepository     Vocabulary = "repository"
	VocabName           Vocabulary = "name"
)

// GenderCounts tallies people sharing a first name by gender.
type GenderCounts struct {
	Male    int
	Female  int
	Unknown int
}

// Stats holds statistics derived from the stored objects. They are kept up
// to date incrementally from the changes the database applies.
type Stats struct {
	genders  map[string]GenderCounts
	surnames map[string]int
	types    map[Vocabulary]map[string]int
}

func newStats() *Stats {
	return &Stats{
		genders:  make(map[string]GenderCounts),
		surnames: make(map[string]int),
		types:    make(map[Vocabulary]map[string]int),
	}
}

func (s *Stats) add(obj domain.Object)    { s.tally(obj, 1) }
func (s *Stats) remove(obj domain.Object) { s.tally(obj, -1) }

func (s *Stats) apply(c domain.Change) {
	if c.Before != nil {
		if obj, err := domain.Decode(c.Before); err == nil {
			s.remove(obj)
		}
	}
	if c.After != nil {
		if obj, err := domain.Decode(c.After); err == nil {
			s.add(obj)
		}
	}
}

// firstNameKey reduces a first name to the token used for gender guessing.
func firstNameKey(first string) string {
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (s *Stats) tally(obj domain.Object, delta int) {
	switch o := obj.(type) {
	case *domain.Person:
		if key := firstNameKey(o.PrimaryName.FirstName); key != "" {
			gc := s.genders[key]
			switch o.Gender {
			case domain.GenderMale:
				gc.Male += delta
			case domain.GenderFemale:
				gc.Female += delta
			default:
				gc.Unknown += delta
			}
			if gc == (GenderCounts{}) {
				delete(s.genders, key)
			} else {
				s.genders[key] = gc
			}
		}
		for _, n := range append([]domain.Name{o.PrimaryName}, o.AlternateNames...) {
			bump(s.surnames, strings.TrimSpace(n.Surname), delta)
			if n.Type.IsCustom() {
				s.customType(VocabName, string(n.Type), delta)
			}
		}
		s.urls(o.URLs, delta)
	case *domain.Family:
		if o.Type.IsCustom() {
			s.customType(VocabFamilyRelation, string(o.Type), delta)
		}
		for _, c := range o.ChildRefs {
			if c.FatherRel.IsCustom() {
				s.customType(VocabChildRelation, string(c.FatherRel), delta)
			}
			if c.MotherRel.IsCustom() {
				s.customType(VocabChildRelation, string(c.MotherRel), delta)
			}
		}
	case *domain.Event:
		if o.Type.IsCustom() {
			s.customType(VocabEventType, string(o.Type), delta)
		}
	case *domain.Place:
		s.urls(o.URLs, delta)
	case *domain.Repository:
		if o.Type.IsCustom() {
			s.customType(VocabRepository, string(o.Type), delta)
		}
		s.urls(o.URLs, delta)
	}
	domain.Walk(obj, domain.Visitor{Attributes: func(l *[]domain.Attribute) {
		for _, a := range *l {
			if a.Type.IsCustom() {
				s.customType(VocabAttribute, string(a.Type), delta)
			}
		}
	}})
}

func (s *Stats) urls(urls []domain.URL, delta int) {
	for _, u := range urls {
		if u.Type.IsCustom() {
			s.customType(VocabURL, string(u.Type), delta)
		}
	}
}

func (s *Stats) customType(v Vocabulary, value string, delta int) {
	m := s.types[v]
	if m == nil {
		m = make(map[string]int)
		s.types[v] = m
	}
	bump(m, value, delta)
}

func bump(m map[string]int, key string, delta int) {
	if key == "" {
		return
	}
	if n := m[key] + delta; n > 0 {
		m[key] = n
	} else {
		delete(m, key)
	}
}

func collated(keys []string) []string {
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(keys, func(i, j int) bool { return col.CompareString(keys[i], keys[j]) < 0 })
	return keys
}

// GenderCounts returns the gender tally for people whose first name starts
// with the same token as firstName.
func (d *Database) GenderCounts(firstName string) GenderCounts {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats.genders[firstNameKey(firstName)]
}

// GuessGender suggests a gender for a new person from the genders of
// existing people with the same first name. A clear majority is required.
func (d *Database) GuessGender(firstName string) domain.Gender {
	d.mu.RLock()
	gc, ok := d.stats.genders[firstNameKey(firstName)]
	d.mu.RUnlock()
	if !ok {
		return domain.GenderUnknown
	}
	if gc.Unknown == 0 {
		if gc.Male > 0 && gc.Female == 0 {
			return domain.GenderMale
		}
		if gc.Female > 0 && gc.Male == 0 {
			return domain.GenderFemale
		}
	}
	switch {
	case gc.Male > 2*gc.Female+gc.Unknown:
		return domain.GenderMale
	case gc.Female > 2*gc.Male+gc.Unknown:
		return domain.GenderFemale
	}
	return domain.GenderUnknown
}

// Surnames lists every surname in use, collated.
func (d *Database) Surnames() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.stats.surnames))
	for s := range d.stats.surnames {
		out = append(out, s)
	}
	d.mu.RUnlock()
	return collated(out)
}

// CustomTypes lists the user defined values in use for v, collated.
func (d *Database) CustomTypes(v Vocabulary) []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.stats.types[v]))
	for s := range d.stats.types[v] {
		out = append(out, s)
	}
	d.mu.RUnlock()
	return collated(out)
}
