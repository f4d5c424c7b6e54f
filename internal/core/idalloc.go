package core

import (
	"fmt"
	"regexp"
	"strings"

	"grampscore/pkg/domain"
)

var defaultIDPrefixes = map[domain.EntityType]string{
	domain.EntityPerson:     "I",
	domain.EntityFamily:     "F",
	domain.EntityEvent:      "E",
	domain.EntityPlace:      "P",
	domain.EntitySource:     "S",
	domain.EntityMedia:      "O",
	domain.EntityRepository: "R",
	domain.EntityNote:       "N",
}

// idTemplate accepts exactly one integer verb with optional zero padding.
var idTemplate = regexp.MustCompile(`^[^%]*%0?\d*d[^%]*$`)

// DefaultIDFormat returns the stock template for kind, for example "I%04d".
func DefaultIDFormat(kind domain.EntityType) string {
	return defaultIDPrefixes[kind] + "%04d"
}

// NormalizeIDFormat validates template. A bare prefix such as "P" gets the
// four digit counter appended; anything else that is not a single integer
// verb falls back to the default for kind.
func NormalizeIDFormat(kind domain.EntityType, template string) string {
	t := strings.TrimSpace(template)
	switch {
	case t == "":
		return DefaultIDFormat(kind)
	case !strings.Contains(t, "%"):
		return t + "%04d"
	case idTemplate.MatchString(t):
		return t
	}
	return DefaultIDFormat(kind)
}

// idAllocator hands out Gramps IDs by walking a counter upward and skipping
// IDs already taken. The counter never moves back, so deleted IDs are not
// reissued within a session.
type idAllocator struct {
	format string
	next   int
}

func newIDAllocator(kind domain.EntityType, template string) *idAllocator {
	return &idAllocator{format: NormalizeIDFormat(kind, template)}
}

func (a *idAllocator) allocate(taken func(string) bool) string {
	for {
		id := fmt.Sprintf(a.format, a.next)
		a.next++
		if !taken(id) {
			return id
		}
	}
}

func (a *idAllocator) peek(taken func(string) bool) string {
	for n := a.next; ; n++ {
		if id := fmt.Sprintf(a.format, n); !taken(id) {
			return id
		}
	}
}

// IDFormat returns the Gramps ID template in effect for kind.
func (d *Database) IDFormat(kind domain.EntityType) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.ids[kind]; ok {
		return a.format
	}
	return ""
}
