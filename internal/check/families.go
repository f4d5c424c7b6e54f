package check

import (
	"context"
	"fmt"
	"slices"
	"time"

	"grampscore/pkg/domain"
)

// familyLoop repeats the family passes until a round makes no correction.
type familyLoop struct {
	passes []Pass
}

func (familyLoop) Name() string { return "families" }

func (l familyLoop) Run(ctx context.Context, s *Session) error {
	results := make([]PassResult, len(l.passes))
	for i, p := range l.passes {
		results[i].Name = p.Name()
	}
	for round := 1; ; round++ {
		if round > s.opts.maxRounds {
			s.opts.logger.Warn("family repair did not settle", "rounds", s.opts.maxRounds)
			break
		}
		roundStart := s.report.Total()
		for i, p := range l.passes {
			if err := ctx.Err(); err != nil {
				return err
			}
			start, before := time.Now(), s.report.Total()
			err := p.Run(ctx, s)
			d := time.Since(start)
			s.observe(ctx, p.Name(), err, d)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			results[i].Duration += d
			results[i].Corrections += s.report.Total() - before
		}
		s.report.FamilyRounds = round
		if s.report.Total() == roundStart {
			break
		}
	}
	s.report.Passes = append(s.report.Passes, results...)
	return nil
}

// familyLinks makes the family and person sides of every parent and child
// link agree. Links to missing people are dropped from families, links the
// family asserts are restored on the person, and links only the person
// asserts are dropped from the person.
type familyLinks struct{}

func (familyLinks) Name() string { return "family_links" }

func (familyLinks) Run(ctx context.Context, s *Session) error {
	err := s.each(ctx, domain.EntityFamily, func(obj domain.Object) error {
		f := obj.(*domain.Family)
		changed := false
		for _, slot := range []*string{&f.FatherHandle, &f.MotherHandle} {
			if *slot == "" {
				continue
			}
			p, err := s.person(ctx, *slot)
			if err != nil {
				return err
			}
			if p == nil {
				s.Correct(BrokenParentLink, f, fmt.Sprintf("parent %s not found", *slot))
				*slot = ""
				changed = true
				continue
			}
			if !slices.Contains(p.Families, f.Handle) {
				p.Families = append(p.Families, f.Handle)
				s.Correct(MissingSpouseLink, p, "family "+f.GrampsID)
				if err := s.Save(ctx, p); err != nil {
					return err
				}
			}
		}
		seen := make(map[string]bool, len(f.ChildRefs))
		kept := f.ChildRefs[:0]
		for _, ref := range f.ChildRefs {
			if seen[ref.Ref] {
				s.Correct(DuplicateChildRef, f, "child "+ref.Ref)
				changed = true
				continue
			}
			child, err := s.person(ctx, ref.Ref)
			if err != nil {
				return err
			}
			if child == nil {
				s.Correct(BrokenChildLink, f, fmt.Sprintf("child %s not found", ref.Ref))
				changed = true
				continue
			}
			seen[ref.Ref] = true
			kept = append(kept, ref)
			if !slices.Contains(child.ParentFamilies, f.Handle) {
				child.ParentFamilies = append(child.ParentFamilies, f.Handle)
				s.Correct(MissingChildLink, child, "family "+f.GrampsID)
				if err := s.Save(ctx, child); err != nil {
					return err
				}
			}
		}
		f.ChildRefs = kept
		if changed {
			return s.Save(ctx, f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.each(ctx, domain.EntityPerson, func(obj domain.Object) error {
		p := obj.(*domain.Person)
		changed := false
		var err error
		p.ParentFamilies, err = s.filterFamilies(ctx, p.ParentFamilies, func(f *domain.Family) bool {
			return f != nil && f.HasChild(p.Handle)
		}, func(h string) {
			s.Correct(StaleParentFamily, p, "family "+h)
			changed = true
		})
		if err != nil {
			return err
		}
		p.Families, err = s.filterFamilies(ctx, p.Families, func(f *domain.Family) bool {
			return f != nil && (f.FatherHandle == p.Handle || f.MotherHandle == p.Handle)
		}, func(h string) {
			s.Correct(StaleSpouseFamily, p, "family "+h)
			changed = true
		})
		if err != nil {
			return err
		}
		if changed {
			return s.Save(ctx, p)
		}
		return nil
	})
}

func (s *Session) filterFamilies(ctx context.Context, handles []string, keep func(*domain.Family) bool, drop func(string)) ([]string, error) {
	out := handles[:0]
	for _, h := range handles {
		f, err := s.family(ctx, h)
		if err != nil {
			return nil, err
		}
		if !keep(f) {
			drop(h)
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// parentGenders reconciles the relationship type and the parent slots with
// the parents' genders. Two parents of the same known gender make a civil
// union; a civil union of different genders becomes unknown. Outside civil
// unions the father slot holds the male parent where that can be told.
type parentGenders struct{}

func (parentGenders) Name() string { return "parent_genders" }

func (parentGenders) Run(ctx context.Context, s *Session) error {
	return s.each(ctx, domain.EntityFamily, func(obj domain.Object) error {
		f := obj.(*domain.Family)
		father, err := s.person(ctx, f.FatherHandle)
		if err != nil {
			return err
		}
		mother, err := s.person(ctx, f.MotherHandle)
		if err != nil {
			return err
		}
		changed := false
		switch {
		case father != nil && mother != nil:
			fg, mg := father.Gender, mother.Gender
			if f.Type == domain.FamilyCivilUnion {
				if fg.Known() && mg.Known() && fg != mg {
					f.Type = domain.FamilyUnknown
					s.Correct(RelationshipType, f, "civil union of parents with different genders")
					changed = true
				}
			} else if fg.Known() && fg == mg {
				f.Type = domain.FamilyCivilUnion
				s.Correct(RelationshipType, f, fmt.Sprintf("both parents %s", fg))
				changed = true
			}
			if f.Type != domain.FamilyCivilUnion && (fg == domain.GenderFemale || mg == domain.GenderMale) {
				f.FatherHandle, f.MotherHandle = f.MotherHandle, f.FatherHandle
				s.Correct(ParentsSwapped, f, "father and mother swapped")
				changed = true
			}
		case father != nil && f.MotherHandle == "" && father.Gender == domain.GenderFemale:
			f.FatherHandle, f.MotherHandle = "", f.FatherHandle
			s.Correct(ParentsSwapped, f, "female father moved to mother")
			changed = true
		case mother != nil && f.FatherHandle == "" && mother.Gender == domain.GenderMale:
			f.FatherHandle, f.MotherHandle = f.MotherHandle, ""
			s.Correct(ParentsSwapped, f, "male mother moved to father")
			changed = true
		}
		if changed {
			return s.Save(ctx, f)
		}
		return nil
	})
}

// emptyFamilies removes families that carry no relationship: no parents
// and no children, or one parent and no children. The remaining parent's
// link to the family is scrubbed first.
type emptyFamilies struct{}

func (emptyFamilies) Name() string { return "empty_families" }

func (emptyFamilies) Run(ctx context.Context, s *Session) error {
	return s.each(ctx, domain.EntityFamily, func(obj domain.Object) error {
		f := obj.(*domain.Family)
		if len(f.ChildRefs) > 0 {
			return nil
		}
		var parents []string
		for _, h := range []string{f.FatherHandle, f.MotherHandle} {
			if h != "" {
				parents = append(parents, h)
			}
		}
		if len(parents) > 1 {
			return nil
		}
		for _, h := range parents {
			p, err := s.person(ctx, h)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			n := len(p.Families)
			p.Families = slices.DeleteFunc(p.Families, func(fh string) bool { return fh == f.Handle })
			if len(p.Families) != n {
				if err := s.Save(ctx, p); err != nil {
					return err
				}
			}
		}
		detail := "no parents and no children"
		if len(parents) == 1 {
			detail = "single parent and no children"
		}
		s.Correct(EmptyFamily, f, detail)
		return s.tx.Remove(ctx, domain.EntityFamily, f.Handle)
	})
}

// duplicateSpouses drops repeated family handles from a person's family
// lists, keeping the first occurrence.
type duplicateSpouses struct{}

func (duplicateSpouses) Name() string { return "duplicate_spouses" }

func (duplicateSpouses) Run(ctx context.Context, s *Session) error {
	return s.each(ctx, domain.EntityPerson, func(obj domain.Object) error {
		p := obj.(*domain.Person)
		var spouse, parent int
		p.Families, spouse = dedupe(p.Families)
		p.ParentFamilies, parent = dedupe(p.ParentFamilies)
		if spouse+parent == 0 {
			return nil
		}
		s.Correct(DuplicateSpouse, p, fmt.Sprintf("%d repeated spouse and %d repeated parent family links", spouse, parent))
		return s.Save(ctx, p)
	})
}

func dedupe(handles []string) ([]string, int) {
	seen := make(map[string]bool, len(handles))
	out := handles[:0]
	for _, h := range handles {
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out, len(handles) - len(out)
}
