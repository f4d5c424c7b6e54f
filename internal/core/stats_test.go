package core

import (
	"context"
	"reflect"
	"testing"

	"grampscore/pkg/domain"
)

func TestGuessGender(t *testing.T) {
	db, _ := newTestDB(t)
	mustAdd(t, db,
		person("John Henry", "Smith", domain.GenderMale),
		person("John", "Jones", domain.GenderMale),
		person("Kim", "Lee", domain.GenderFemale),
		person("Kim", "Park", domain.GenderMale),
		person("Alex", "Berg", domain.GenderMale),
		person("Alex", "Berg", domain.GenderUnknown),
	)
	cases := map[string]domain.Gender{
		"John":    domain.GenderMale,
		"John Q":  domain.GenderMale,
		"Kim":     domain.GenderUnknown,
		"Alex":    domain.GenderUnknown,
		"Unknown": domain.GenderUnknown,
	}
	for name, want := range cases {
		if got := db.GuessGender(name); got != want {
			t.Fatalf("GuessGender(%q) = %s, want %s", name, got, want)
		}
	}
	if gc := db.GenderCounts("John"); gc.Male != 2 {
		t.Fatalf("John counts = %+v", gc)
	}
}

func TestStatsFollowUndo(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	p := person("Ann", "Smith", domain.GenderFemale)
	p.Attributes = []domain.Attribute{{Type: "Blood Type", Value: "A"}}
	p.URLs = []domain.URL{{Path: "https://example.org", Type: "Blog"}}
	fam := &domain.Family{Type: "Handfasting"}
	ev := &domain.Event{Type: "Graduation"}
	mustAdd(t, db, p, fam, ev)

	if got := db.Surnames(); !reflect.DeepEqual(got, []string{"Smith"}) {
		t.Fatalf("surnames = %v", got)
	}
	checks := map[Vocabulary][]string{
		VocabAttribute:      {"Blood Type"},
		VocabURL:            {"Blog"},
		VocabFamilyRelation: {"Handfasting"},
		VocabEventType:      {"Graduation"},
	}
	for v, want := range checks {
		if got := db.CustomTypes(v); !reflect.DeepEqual(got, want) {
			t.Fatalf("%s = %v, want %v", v, got, want)
		}
	}

	if _, err := db.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := db.Surnames(); len(got) != 0 {
		t.Fatalf("surnames after undo = %v", got)
	}
	if got := db.CustomTypes(VocabAttribute); len(got) != 0 {
		t.Fatalf("attributes after undo = %v", got)
	}
	if db.GuessGender("Ann") != domain.GenderUnknown {
		t.Fatal("gender stats not reverted")
	}
}
