package check

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"grampscore/pkg/domain"
)

// Kind classifies a correction made by the checker.
type Kind string

const (
	BrokenParentLink     Kind = "broken_parent_link"
	MissingSpouseLink    Kind = "missing_spouse_link"
	BrokenChildLink      Kind = "broken_child_link"
	MissingChildLink     Kind = "missing_child_link"
	DuplicateChildRef    Kind = "duplicate_child_ref"
	StaleParentFamily    Kind = "stale_parent_family"
	StaleSpouseFamily    Kind = "stale_spouse_family"
	RelationshipType     Kind = "relationship_type"
	ParentsSwapped       Kind = "parents_swapped"
	EmptyFamily          Kind = "empty_family"
	DuplicateSpouse      Kind = "duplicate_spouse"
	BrokenEventRef       Kind = "broken_event_ref"
	EventTypeFixed       Kind = "event_type"
	BrokenPlaceRef       Kind = "broken_place_ref"
	BrokenFamilyRef      Kind = "broken_family_ref"
	BrokenSourceRef      Kind = "broken_source_ref"
	BrokenRepositoryRef  Kind = "broken_repository_ref"
	BrokenMediaRef       Kind = "broken_media_ref"
	BrokenNoteRef        Kind = "broken_note_ref"
	BrokenPersonRef      Kind = "broken_person_ref"
	DuplicateGrampsID    Kind = "duplicate_gramps_id"
	MissingMediaRemoved  Kind = "missing_media_removed"
	MissingMediaReplaced Kind = "missing_media_replaced"
)

// Kinds lists every correction kind in report order.
func Kinds() []Kind {
	return []Kind{
		BrokenParentLink, MissingSpouseLink, BrokenChildLink, MissingChildLink, DuplicateChildRef,
		StaleParentFamily, StaleSpouseFamily, RelationshipType, ParentsSwapped, EmptyFamily,
		DuplicateSpouse, BrokenEventRef, EventTypeFixed, BrokenPlaceRef, BrokenFamilyRef,
		BrokenSourceRef, BrokenRepositoryRef, BrokenMediaRef, BrokenNoteRef, BrokenPersonRef,
		DuplicateGrampsID, MissingMediaRemoved, MissingMediaReplaced,
	}
}

var summaries = map[Kind]string{
	BrokenParentLink:     "broken parent links were removed",
	MissingSpouseLink:    "spouse family links were restored",
	BrokenChildLink:      "references to missing children were removed",
	MissingChildLink:     "parent family links were restored on children",
	DuplicateChildRef:    "duplicate child references were removed",
	StaleParentFamily:    "parent family links not confirmed by the family were removed",
	StaleSpouseFamily:    "spouse family links not confirmed by the family were removed",
	RelationshipType:     "family relationship types were corrected",
	ParentsSwapped:       "families had father and mother swapped",
	EmptyFamily:          "empty families were removed",
	DuplicateSpouse:      "duplicate family links were removed",
	BrokenEventRef:       "references to missing events were removed",
	EventTypeFixed:       "birth or death events had their type corrected",
	BrokenPlaceRef:       "references to missing places were removed",
	BrokenFamilyRef:      "LDS references to missing families were removed",
	BrokenSourceRef:      "citations of missing sources were removed",
	BrokenRepositoryRef:  "references to missing repositories were removed",
	BrokenMediaRef:       "references to missing media objects were removed",
	BrokenNoteRef:        "references to missing notes were removed",
	BrokenPersonRef:      "associations with missing people were removed",
	DuplicateGrampsID:    "objects sharing a Gramps ID were given a new ID",
	MissingMediaRemoved:  "media objects with missing files were removed",
	MissingMediaReplaced: "media objects were pointed at a replacement file",
}

// Correction is one repair applied to one object.
type Correction struct {
	Kind     Kind
	Object   domain.Ref
	GrampsID string
	Detail   string
}

// MissingFile is a media object whose file could not be found and was kept.
type MissingFile struct {
	Handle   string
	GrampsID string
	Path     string
}

// PassResult records how one pass went.
type PassResult struct {
	Name        string
	Corrections int
	Duration    time.Duration
}

// Report accumulates everything a run found.
type Report struct {
	Corrections []Correction
	// AncestorLoops are reported only; breaking a loop needs a human decision.
	AncestorLoops []*domain.AncestorLoopError
	MissingMedia  []MissingFile
	Passes        []PassResult
	// FamilyRounds is how many rounds the family passes needed to settle.
	FamilyRounds int
}

func (r *Report) add(c Correction) { r.Corrections = append(r.Corrections, c) }

// Total returns the number of corrections.
func (r *Report) Total() int { return len(r.Corrections) }

// Count returns the number of corrections of kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, c := range r.Corrections {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Counts returns the non-zero correction counts keyed by kind.
func (r *Report) Counts() map[Kind]int {
	out := make(map[Kind]int)
	for _, c := range r.Corrections {
		out[c.Kind]++
	}
	return out
}

// Clean reports whether the run found nothing to fix or flag.
func (r *Report) Clean() bool {
	return r.Total() == 0 && len(r.AncestorLoops) == 0 && len(r.MissingMedia) == 0
}

// String renders the summary shown after a check.
func (r *Report) String() string {
	if r.Clean() {
		return "No errors were found: the database has passed internal checks."
	}
	var b strings.Builder
	b.WriteString("Integrity check summary\n")
	counts := r.Counts()
	for _, k := range Kinds() {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(&b, "  %d %s\n", n, summaries[k])
		}
	}
	if len(r.AncestorLoops) > 0 {
		ids := make([]string, 0, len(r.AncestorLoops))
		for _, l := range r.AncestorLoops {
			ids = append(ids, displayID(l.GrampsID, l.Handle))
		}
		sort.Strings(ids)
		fmt.Fprintf(&b, "  %d people are their own ancestor: %s\n", len(ids), strings.Join(ids, ", "))
	}
	if len(r.MissingMedia) > 0 {
		fmt.Fprintf(&b, "  %d media files are missing and were kept:\n", len(r.MissingMedia))
		for _, m := range r.MissingMedia {
			fmt.Fprintf(&b, "    %s %s\n", displayID(m.GrampsID, m.Handle), m.Path)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayID(grampsID, handle string) string {
	if grampsID != "" {
		return grampsID
	}
	return handle
}
