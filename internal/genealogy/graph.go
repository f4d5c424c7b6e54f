// Package genealogy provides graph queries over the family tree: parents,
// children, spouses and siblings, ancestor loop detection, and the
// "probably alive" estimate used to decide what living-person privacy
// applies to. Everything reads through domain.Reader so the same helpers
// work on the database and on the privacy proxy.
package genealogy

import (
	"context"

	"grampscore/pkg/domain"
)

func family(ctx context.Context, r domain.Reader, handle string) (*domain.Family, error) {
	return domain.FromHandle[*domain.Family](ctx, r, handle)
}

func personOf(ctx context.Context, r domain.Reader, handle string) (*domain.Person, error) {
	if handle == "" {
		return nil, nil
	}
	return domain.FromHandle[*domain.Person](ctx, r, handle)
}

type collector struct {
	seen map[string]bool
	out  []*domain.Person
}

func (c *collector) add(p *domain.Person) {
	if p == nil {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[p.Handle] {
		return
	}
	c.seen[p.Handle] = true
	c.out = append(c.out, p)
}

// MainParents returns the father and mother of the person's first parent
// family. Either may be nil.
func MainParents(ctx context.Context, r domain.Reader, p *domain.Person) (father, mother *domain.Person, err error) {
	fam, err := family(ctx, r, p.MainParentFamily())
	if err != nil || fam == nil {
		return nil, nil, err
	}
	if father, err = personOf(ctx, r, fam.FatherHandle); err != nil {
		return nil, nil, err
	}
	if mother, err = personOf(ctx, r, fam.MotherHandle); err != nil {
		return nil, nil, err
	}
	return father, mother, nil
}

// Parents returns the parents from every parent family, without duplicates.
// Dangling references are skipped.
func Parents(ctx context.Context, r domain.Reader, p *domain.Person) ([]*domain.Person, error) {
	var c collector
	for _, fh := range p.ParentFamilies {
		fam, err := family(ctx, r, fh)
		if err != nil {
			return nil, err
		}
		if fam == nil {
			continue
		}
		for _, h := range []string{fam.FatherHandle, fam.MotherHandle} {
			parent, err := personOf(ctx, r, h)
			if err != nil {
				return nil, err
			}
			c.add(parent)
		}
	}
	return c.out, nil
}

// Children returns the children of every family the person is a spouse in.
func Children(ctx context.Context, r domain.Reader, p *domain.Person) ([]*domain.Person, error) {
	var c collector
	for _, fh := range p.Families {
		fam, err := family(ctx, r, fh)
		if err != nil {
			return nil, err
		}
		if fam == nil {
			continue
		}
		for _, ref := range fam.ChildRefs {
			child, err := personOf(ctx, r, ref.Ref)
			if err != nil {
				return nil, err
			}
			c.add(child)
		}
	}
	return c.out, nil
}

// Spouses returns the partners in every family the person is a spouse in.
func Spouses(ctx context.Context, r domain.Reader, p *domain.Person) ([]*domain.Person, error) {
	var c collector
	for _, fh := range p.Families {
		fam, err := family(ctx, r, fh)
		if err != nil {
			return nil, err
		}
		if fam == nil {
			continue
		}
		other := fam.FatherHandle
		if other == p.Handle {
			other = fam.MotherHandle
		}
		if other == p.Handle {
			continue
		}
		spouse, err := personOf(ctx, r, other)
		if err != nil {
			return nil, err
		}
		c.add(spouse)
	}
	return c.out, nil
}

// Siblings returns the other children of every parent family.
func Siblings(ctx context.Context, r domain.Reader, p *domain.Person) ([]*domain.Person, error) {
	c := collector{seen: map[string]bool{p.Handle: true}}
	for _, fh := range p.ParentFamilies {
		fam, err := family(ctx, r, fh)
		if err != nil {
			return nil, err
		}
		if fam == nil {
			continue
		}
		for _, ref := range fam.ChildRefs {
			sib, err := personOf(ctx, r, ref.Ref)
			if err != nil {
				return nil, err
			}
			c.add(sib)
		}
	}
	return c.out, nil
}

// parentHandles follows parent family links by handle only.
func parentHandles(ctx context.Context, r domain.Reader, p *domain.Person) ([]string, error) {
	var out []string
	for _, fh := range p.ParentFamilies {
		fam, err := family(ctx, r, fh)
		if err != nil {
			return nil, err
		}
		if fam == nil {
			continue
		}
		for _, h := range []string{fam.FatherHandle, fam.MotherHandle} {
			if h != "" {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

// FindAncestorLoops walks the parent graph of every person and reports each
// person through which the walk re-enters its own ancestry. The walk is
// iterative, so deep or cyclic trees cannot exhaust the stack.
func FindAncestorLoops(ctx context.Context, r domain.Reader) ([]*domain.AncestorLoopError, error) {
	handles, err := r.Handles(ctx, domain.EntityPerson, false)
	if err != nil {
		return nil, err
	}
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(handles))
	reported := make(map[string]bool)
	var loops []*domain.AncestorLoopError

	type frame struct {
		handle  string
		parents []string
		next    int
	}
	expand := func(h string) (*frame, error) {
		p, err := personOf(ctx, r, h)
		if err != nil || p == nil {
			return &frame{handle: h}, err
		}
		parents, err := parentHandles(ctx, r, p)
		return &frame{handle: h, parents: parents}, err
	}
	report := func(h string) error {
		if reported[h] {
			return nil
		}
		reported[h] = true
		loop := &domain.AncestorLoopError{Handle: h}
		if p, err := personOf(ctx, r, h); err != nil {
			return err
		} else if p != nil {
			loop.GrampsID = p.GrampsID
		}
		loops = append(loops, loop)
		return nil
	}

	for _, root := range handles {
		if color[root] != white {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := expand(root)
		if err != nil {
			return nil, err
		}
		color[root] = grey
		stack := []*frame{f}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next >= len(top.parents) {
				color[top.handle] = black
				stack = stack[:len(stack)-1]
				continue
			}
			parent := top.parents[top.next]
			top.next++
			switch color[parent] {
			case grey:
				if err := report(parent); err != nil {
					return nil, err
				}
			case white:
				pf, err := expand(parent)
				if err != nil {
					return nil, err
				}
				color[parent] = grey
				stack = append(stack, pf)
			}
		}
	}
	return loops, nil
}
