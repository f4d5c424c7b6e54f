package check

import (
	"context"
	"errors"
	"strings"
	"testing"

	"grampscore/internal/blob"
	"grampscore/internal/core"
	"grampscore/internal/infra/persistence/memory"
	"grampscore/pkg/domain"
)

type fixture struct {
	t  *testing.T
	db *core.Database
}

func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	db, err := core.Open(context.Background(), memory.NewStore(), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &fixture{t: t, db: db}
}

func (fx *fixture) save(objs ...domain.Object) {
	fx.t.Helper()
	ctx := context.Background()
	err := fx.db.RunInTransaction(ctx, "fixture", func(tx *core.Txn) error {
		for _, o := range objs {
			if err := tx.Save(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fx.t.Fatalf("save: %v", err)
	}
}

func (fx *fixture) remove(kind domain.EntityType, handles ...string) {
	fx.t.Helper()
	ctx := context.Background()
	err := fx.db.RunInTransaction(ctx, "remove", func(tx *core.Txn) error {
		for _, h := range handles {
			if err := tx.Remove(ctx, kind, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fx.t.Fatalf("remove: %v", err)
	}
}

func (fx *fixture) check(opts ...Option) *Report {
	fx.t.Helper()
	rep, err := New(fx.db, opts...).Run(context.Background())
	if err != nil {
		fx.t.Fatalf("check: %v", err)
	}
	return rep
}

func (fx *fixture) person(h string) *domain.Person {
	fx.t.Helper()
	p, err := domain.FromHandle[*domain.Person](context.Background(), fx.db, h)
	if err != nil {
		fx.t.Fatalf("person %s: %v", h, err)
	}
	return p
}

func (fx *fixture) family(h string) *domain.Family {
	fx.t.Helper()
	f, err := domain.FromHandle[*domain.Family](context.Background(), fx.db, h)
	if err != nil {
		fx.t.Fatalf("family %s: %v", h, err)
	}
	return f
}

func newPerson(handle string, gender domain.Gender) *domain.Person {
	return &domain.Person{Base: domain.Base{Handle: handle}, Gender: gender, PrimaryName: domain.Name{FirstName: handle}}
}

func link(handle string, father, mother *domain.Person, children ...*domain.Person) *domain.Family {
	f := &domain.Family{Base: domain.Base{Handle: handle}, Type: domain.FamilyMarried}
	if father != nil {
		f.FatherHandle = father.Handle
		father.Families = append(father.Families, handle)
	}
	if mother != nil {
		f.MotherHandle = mother.Handle
		mother.Families = append(mother.Families, handle)
	}
	for _, c := range children {
		f.ChildRefs = append(f.ChildRefs, domain.ChildRef{Ref: c.Handle})
		c.ParentFamilies = append(c.ParentFamilies, handle)
	}
	return f
}

func assertIdempotent(t *testing.T, fx *fixture, opts ...Option) {
	t.Helper()
	if again := fx.check(opts...); again.Total() != 0 {
		t.Fatalf("second run made %d corrections: %+v", again.Total(), again.Corrections)
	}
}

func TestRemovedFatherLeavesSingleParentFamilyRemoved(t *testing.T) {
	fx := newFixture(t)
	a, b := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderFemale)
	f := link("F", a, b)
	fx.save(a, b, f)
	fx.remove(domain.EntityPerson, "A")

	rep := fx.check()
	if got := rep.Count(BrokenParentLink); got != 1 {
		t.Fatalf("broken parent link corrections = %d, want 1", got)
	}
	if rep.Count(EmptyFamily) != 1 {
		t.Fatalf("expected the childless single parent family to be removed: %+v", rep.Corrections)
	}
	if fx.family("F") != nil {
		t.Fatalf("family F should be gone")
	}
	if fams := fx.person("B").Families; len(fams) != 0 {
		t.Fatalf("B still lists families %v", fams)
	}
	assertIdempotent(t, fx)
}

func TestRemovedFatherIsNulledWhenFamilyHasChildren(t *testing.T) {
	fx := newFixture(t)
	a, b, c := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderFemale), newPerson("C", domain.GenderUnknown)
	f := link("F", a, b, c)
	fx.save(a, b, c, f)
	fx.remove(domain.EntityPerson, "A")

	rep := fx.check()
	if got := rep.Count(BrokenParentLink); got != 1 {
		t.Fatalf("broken parent link corrections = %d, want 1", got)
	}
	got := fx.family("F")
	if got == nil || got.FatherHandle != "" || got.MotherHandle != "B" {
		t.Fatalf("unexpected family after check: %+v", got)
	}
	if !strings.Contains(rep.String(), "broken parent links") {
		t.Fatalf("summary missing parent link line:\n%s", rep)
	}
	assertIdempotent(t, fx)
}

func TestFamilyLinksRepairBothDirections(t *testing.T) {
	fx := newFixture(t)
	a, b := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderFemale)
	c, d := newPerson("C", domain.GenderMale), newPerson("D", domain.GenderFemale)
	f := link("F", a, b, c)
	// F lists D without D linking back, C claims G which does not list C,
	// and A has lost the spouse link to F.
	f.ChildRefs = append(f.ChildRefs, domain.ChildRef{Ref: "D"}, domain.ChildRef{Ref: "C"}, domain.ChildRef{Ref: "ghost"})
	other := &domain.Family{Base: domain.Base{Handle: "G"}, FatherHandle: "A", MotherHandle: "B", ChildRefs: []domain.ChildRef{{Ref: "D"}}}
	a.Families = []string{"G"}
	b.Families = append(b.Families, "G")
	d.ParentFamilies = []string{"G"}
	c.ParentFamilies = append(c.ParentFamilies, "G")
	fx.save(a, b, c, d, f, other)

	rep := fx.check()
	fam := fx.family("F")
	if len(fam.ChildRefs) != 2 || fam.ChildRefs[0].Ref != "C" || fam.ChildRefs[1].Ref != "D" {
		t.Fatalf("child refs = %+v", fam.ChildRefs)
	}
	if rep.Count(DuplicateChildRef) != 1 || rep.Count(BrokenChildLink) != 1 {
		t.Fatalf("child corrections: %+v", rep.Corrections)
	}
	if got := fx.person("A").Families; len(got) != 2 {
		t.Fatalf("A families = %v", got)
	}
	if got := fx.person("D").ParentFamilies; len(got) != 2 {
		t.Fatalf("D parent families = %v", got)
	}
	if got := fx.person("C").ParentFamilies; len(got) != 1 || got[0] != "F" {
		t.Fatalf("C parent families = %v", got)
	}
	if rep.Count(StaleParentFamily) != 1 || rep.Count(MissingChildLink) != 1 || rep.Count(MissingSpouseLink) != 1 {
		t.Fatalf("link corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestParentGenderReconciliation(t *testing.T) {
	fx := newFixture(t)
	m1, m2 := newPerson("M1", domain.GenderMale), newPerson("M2", domain.GenderMale)
	w, h := newPerson("W", domain.GenderFemale), newPerson("H", domain.GenderMale)
	x, y := newPerson("X", domain.GenderMale), newPerson("Y", domain.GenderFemale)
	kid1, kid2, kid3 := newPerson("K1", domain.GenderUnknown), newPerson("K2", domain.GenderUnknown), newPerson("K3", domain.GenderUnknown)
	same := link("S", m1, m2, kid1)
	swapped := link("W1", w, h, kid2)
	union := link("U", x, y, kid3)
	union.Type = domain.FamilyCivilUnion
	fx.save(m1, m2, w, h, x, y, kid1, kid2, kid3, same, swapped, union)

	rep := fx.check()
	if got := fx.family("S").Type; got != domain.FamilyCivilUnion {
		t.Fatalf("same gender family type = %s", got)
	}
	if got := fx.family("W1"); got.FatherHandle != "H" || got.MotherHandle != "W" {
		t.Fatalf("swapped family = %+v", got)
	}
	if got := fx.family("U").Type; got != domain.FamilyUnknown {
		t.Fatalf("mixed civil union type = %s", got)
	}
	if rep.Count(RelationshipType) != 2 || rep.Count(ParentsSwapped) != 1 {
		t.Fatalf("gender corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestSingleParentInWrongSlotMoves(t *testing.T) {
	fx := newFixture(t)
	w, kid := newPerson("W", domain.GenderFemale), newPerson("K", domain.GenderUnknown)
	f := link("F", w, nil, kid)
	fx.save(w, kid, f)

	rep := fx.check()
	if got := fx.family("F"); got.FatherHandle != "" || got.MotherHandle != "W" {
		t.Fatalf("family = %+v", got)
	}
	if rep.Count(ParentsSwapped) != 1 {
		t.Fatalf("corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestEmptyFamilyRemoved(t *testing.T) {
	fx := newFixture(t)
	fx.save(&domain.Family{Base: domain.Base{Handle: "E"}})
	rep := fx.check()
	if rep.Count(EmptyFamily) != 1 || fx.family("E") != nil {
		t.Fatalf("empty family not removed: %+v", rep.Corrections)
	}
}

func TestDuplicateSpousesDeduplicated(t *testing.T) {
	fx := newFixture(t)
	a, b, c := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderFemale), newPerson("C", domain.GenderUnknown)
	f := link("F", a, b, c)
	a.Families = []string{"F", "F", "F"}
	c.ParentFamilies = []string{"F", "F"}
	fx.save(a, b, c, f)

	rep := fx.check()
	if got := fx.person("A").Families; len(got) != 1 {
		t.Fatalf("A families = %v", got)
	}
	if got := fx.person("C").ParentFamilies; len(got) != 1 {
		t.Fatalf("C parent families = %v", got)
	}
	if rep.Count(DuplicateSpouse) != 2 {
		t.Fatalf("corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestEventReferencesAndTypes(t *testing.T) {
	fx := newFixture(t)
	birth := &domain.Event{Base: domain.Base{Handle: "EB"}, Type: domain.EventBaptism, Date: domain.YearDate(1900)}
	marriage := &domain.Event{Base: domain.Base{Handle: "EM"}, Type: domain.EventMarriage}
	p := newPerson("P", domain.GenderMale)
	p.BirthRef = &domain.EventRef{Ref: "EB"}
	p.DeathRef = &domain.EventRef{Ref: "gone"}
	p.EventRefs = []domain.EventRef{{Ref: "EB"}, {Ref: "gone2"}}
	q := newPerson("Q", domain.GenderFemale)
	kid := newPerson("K", domain.GenderUnknown)
	f := link("F", p, q, kid)
	f.EventRefs = []domain.EventRef{{Ref: "EM"}, {Ref: "gone3"}}
	fx.save(birth, marriage, p, q, kid, f)

	rep := fx.check()
	got := fx.person("P")
	if got.BirthRef == nil || got.DeathRef != nil || len(got.EventRefs) != 1 {
		t.Fatalf("person events = %+v %+v %+v", got.BirthRef, got.DeathRef, got.EventRefs)
	}
	if fam := fx.family("F"); len(fam.EventRefs) != 1 {
		t.Fatalf("family events = %+v", fam.EventRefs)
	}
	ev, err := domain.FromHandle[*domain.Event](context.Background(), fx.db, "EB")
	if err != nil || ev == nil || ev.Type != domain.EventBirth {
		t.Fatalf("birth event type = %v %v", ev, err)
	}
	if rep.Count(BrokenEventRef) != 3 || rep.Count(EventTypeFixed) != 1 {
		t.Fatalf("corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestEventUsedAsBirthAndDeathIsLeftAlone(t *testing.T) {
	fx := newFixture(t)
	ev := &domain.Event{Base: domain.Base{Handle: "E"}, Type: domain.EventCensus}
	p, q := newPerson("P", domain.GenderMale), newPerson("Q", domain.GenderFemale)
	p.BirthRef = &domain.EventRef{Ref: "E"}
	q.DeathRef = &domain.EventRef{Ref: "E"}
	fx.save(ev, p, q)

	rep := fx.check()
	if rep.Count(EventTypeFixed) != 0 {
		t.Fatalf("conflicting event retyped: %+v", rep.Corrections)
	}
}

func TestPlaceReferences(t *testing.T) {
	fx := newFixture(t)
	place := &domain.Place{Base: domain.Base{Handle: "PL"}, Title: "Boston"}
	ok := &domain.Event{Base: domain.Base{Handle: "E1"}, Type: domain.EventCensus, Place: "PL"}
	bad := &domain.Event{Base: domain.Base{Handle: "E2"}, Type: domain.EventCensus, Place: "nowhere"}
	p := newPerson("P", domain.GenderMale)
	p.LdsOrds = []domain.LdsOrd{{Type: "Baptism", Place: "nowhere", Family: "nofamily"}, {Type: "Endowment", Place: "PL"}}
	fx.save(place, ok, bad, p)

	rep := fx.check()
	e2, _ := domain.FromHandle[*domain.Event](context.Background(), fx.db, "E2")
	e1, _ := domain.FromHandle[*domain.Event](context.Background(), fx.db, "E1")
	if e2.Place != "" || e1.Place != "PL" {
		t.Fatalf("event places = %q %q", e1.Place, e2.Place)
	}
	ords := fx.person("P").LdsOrds
	if ords[0].Place != "" || ords[0].Family != "" || ords[1].Place != "PL" {
		t.Fatalf("lds ords = %+v", ords)
	}
	if rep.Count(BrokenPlaceRef) != 2 || rep.Count(BrokenFamilyRef) != 1 {
		t.Fatalf("corrections: %+v", rep.Counts())
	}
	assertIdempotent(t, fx)
}

func TestObjectReferencesScrubbed(t *testing.T) {
	fx := newFixture(t)
	src := &domain.Source{Base: domain.Base{Handle: "S"}, Title: "Parish register",
		RepoRefs: []domain.RepoRef{{Ref: "R"}, {Ref: "lost-repo"}}}
	repo := &domain.Repository{Base: domain.Base{Handle: "R"}, Name: "Archive"}
	note := &domain.Note{Base: domain.Base{Handle: "N"}, Text: "kept"}
	p := newPerson("P", domain.GenderMale)
	p.PrimaryName.Sources = []domain.SourceRef{{Ref: "S"}, {Ref: "lost-src", Notes: []string{"lost-note"}}}
	p.Attributes = []domain.Attribute{{Type: "Nickname", Value: "Bo", Sources: []domain.SourceRef{{Ref: "lost-src"}}}}
	p.Notes = []string{"N", "lost-note"}
	p.Media = []domain.MediaRef{{Ref: "lost-media"}}
	p.Associations = []domain.PersonRef{{Ref: "nobody", Relation: "Godfather"}}
	fx.save(src, repo, note, p)

	rep := fx.check()
	got := fx.person("P")
	if len(got.PrimaryName.Sources) != 1 || len(got.Attributes[0].Sources) != 0 {
		t.Fatalf("sources not scrubbed: %+v %+v", got.PrimaryName.Sources, got.Attributes)
	}
	if len(got.Notes) != 1 || len(got.Media) != 0 || len(got.Associations) != 0 {
		t.Fatalf("refs not scrubbed: %+v", got)
	}
	s, _ := domain.FromHandle[*domain.Source](context.Background(), fx.db, "S")
	if len(s.RepoRefs) != 1 {
		t.Fatalf("repo refs = %+v", s.RepoRefs)
	}
	want := map[Kind]int{BrokenSourceRef: 2, BrokenNoteRef: 2, BrokenMediaRef: 1, BrokenPersonRef: 1, BrokenRepositoryRef: 1}
	for k, n := range want {
		if rep.Count(k) != n {
			t.Fatalf("%s = %d, want %d (%+v)", k, rep.Count(k), n, rep.Counts())
		}
	}
	assertIdempotent(t, fx)
}

func TestDuplicateGrampsIDsRenumbered(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	var muts []domain.Mutation
	for _, h := range []string{"a", "b"} {
		rec, err := domain.Encode(&domain.Note{Base: domain.Base{Handle: h, GrampsID: "N0001"}, Text: h})
		if err != nil {
			t.Fatal(err)
		}
		muts = append(muts, domain.Mutation{Kind: domain.EntityNote, Handle: h, Record: rec})
	}
	if err := store.Apply(ctx, muts); err != nil {
		t.Fatal(err)
	}
	db, err := core.Open(ctx, store)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	fx := &fixture{t: t, db: db}

	rep := fx.check()
	if rep.Count(DuplicateGrampsID) != 1 {
		t.Fatalf("corrections: %+v", rep.Corrections)
	}
	if dups := db.DuplicateGrampsIDs(domain.EntityNote); len(dups) != 0 {
		t.Fatalf("duplicates left: %v", dups)
	}
	assertIdempotent(t, fx)
}

func TestAncestorLoopsReportedNotRepaired(t *testing.T) {
	fx := newFixture(t)
	a, b := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderMale)
	w1, w2 := newPerson("W1", domain.GenderFemale), newPerson("W2", domain.GenderFemale)
	f1 := link("F1", a, w1, b)
	f2 := link("F2", b, w2, a)
	fx.save(a, b, w1, w2, f1, f2)

	rep := fx.check()
	if rep.Total() != 0 {
		t.Fatalf("loop should not be repaired: %+v", rep.Corrections)
	}
	if len(rep.AncestorLoops) == 0 || !errors.Is(rep.AncestorLoops[0], domain.ErrAncestorLoop) {
		t.Fatalf("loops = %v", rep.AncestorLoops)
	}
	if !strings.Contains(rep.String(), "own ancestor") {
		t.Fatalf("summary = %s", rep)
	}
}

func mediaFixture(t *testing.T) (*fixture, blob.Store) {
	t.Helper()
	fx := newFixture(t)
	store := blob.NewMemory()
	if _, err := store.Put(context.Background(), "photos/here.jpg", strings.NewReader("jpeg"), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	here := &domain.Media{Base: domain.Base{Handle: "M1"}, Path: "/photos/here.jpg"}
	gone := &domain.Media{Base: domain.Base{Handle: "M2"}, Path: "photos/gone.jpg"}
	p := newPerson("P", domain.GenderMale)
	p.Media = []domain.MediaRef{{Ref: "M1"}, {Ref: "M2"}}
	fx.save(here, gone, p)
	return fx, store
}

func TestMissingMediaKept(t *testing.T) {
	fx, store := mediaFixture(t)
	rep := fx.check(WithMediaStore(store, MediaKeep))
	if rep.Total() != 0 || len(rep.MissingMedia) != 1 || rep.MissingMedia[0].Handle != "M2" {
		t.Fatalf("report = %+v", rep)
	}
	if len(fx.person("P").Media) != 2 {
		t.Fatalf("media refs changed under keep policy")
	}
}

func TestMissingMediaRemoved(t *testing.T) {
	fx, store := mediaFixture(t)
	rep := fx.check(WithMediaStore(store, MediaRemove))
	if rep.Count(MissingMediaRemoved) != 1 || rep.Count(BrokenMediaRef) != 1 {
		t.Fatalf("corrections: %+v", rep.Counts())
	}
	if refs := fx.person("P").Media; len(refs) != 1 || refs[0].Ref != "M1" {
		t.Fatalf("media refs = %+v", refs)
	}
	assertIdempotent(t, fx, WithMediaStore(store, MediaRemove))
}

func TestMissingMediaReplaced(t *testing.T) {
	fx, store := mediaFixture(t)
	if _, err := store.Put(context.Background(), "photos/found.jpg", strings.NewReader("jpeg"), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	replacer := func(_ context.Context, m *domain.Media) (string, bool) {
		return strings.Replace(m.Path, "gone", "found", 1), true
	}
	rep := fx.check(WithMediaStore(store, MediaReplace), WithReplacer(replacer))
	if rep.Count(MissingMediaReplaced) != 1 || len(rep.MissingMedia) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	m, _ := domain.FromHandle[*domain.Media](context.Background(), fx.db, "M2")
	if m.Path != "photos/found.jpg" {
		t.Fatalf("path = %q", m.Path)
	}
	assertIdempotent(t, fx, WithMediaStore(store, MediaReplace), WithReplacer(replacer))
}

type countingRecorder map[Kind]int

func (c countingRecorder) RecordCorrection(k Kind) { c[k]++ }

func TestRunIsOneUndoableTransaction(t *testing.T) {
	fx := newFixture(t)
	fx.save(&domain.Family{Base: domain.Base{Handle: "E"}})
	rec := countingRecorder{}
	rep := fx.check(WithCorrectionRecorder(rec))
	if rec[EmptyFamily] != 1 || rep.Total() != 1 {
		t.Fatalf("recorder = %v", rec)
	}
	if len(rep.Passes) == 0 || rep.FamilyRounds < 2 {
		t.Fatalf("passes = %+v rounds = %d", rep.Passes, rep.FamilyRounds)
	}
	ok, err := fx.db.Undo(context.Background())
	if err != nil || !ok {
		t.Fatalf("undo = %v %v", ok, err)
	}
	if fx.family("E") == nil {
		t.Fatalf("undo did not restore the removed family")
	}
}

func TestBatchRunClearsHistory(t *testing.T) {
	fx := newFixture(t)
	fx.save(&domain.Family{Base: domain.Base{Handle: "E"}})
	fx.check(Batch())
	if fx.db.UndoDepth() != 0 {
		t.Fatalf("undo depth = %d", fx.db.UndoDepth())
	}
}

func TestRunErrors(t *testing.T) {
	fx := newFixture(t)
	tx, err := fx.db.Begin(context.Background(), "busy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(fx.db).Run(context.Background()); !errors.Is(err, domain.ErrTransactionActive) {
		t.Fatalf("err = %v", err)
	}
	tx.Abort()

	ro := newFixture(t, core.ReadOnly())
	if _, err := New(ro.db).Run(context.Background()); !errors.Is(err, domain.ErrReadOnly) {
		t.Fatalf("read-only err = %v", err)
	}

	fx.save(&domain.Family{Base: domain.Base{Handle: "E"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(fx.db).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancel err = %v", err)
	}
	if fx.family("E") == nil {
		t.Fatalf("cancelled run wrote changes")
	}
}

func TestCleanReport(t *testing.T) {
	fx := newFixture(t)
	a, b, c := newPerson("A", domain.GenderMale), newPerson("B", domain.GenderFemale), newPerson("C", domain.GenderUnknown)
	fx.save(a, b, c, link("F", a, b, c))
	rep := fx.check()
	if !rep.Clean() || !strings.HasPrefix(rep.String(), "No errors") {
		t.Fatalf("report = %s", rep)
	}
	names := New(fx.db).Passes()
	if names[0] != "families" || names[len(names)-1] != "ancestor_loops" {
		t.Fatalf("passes = %v", names)
	}
}
