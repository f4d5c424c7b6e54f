package genealogy

import (
	"context"

	"grampscore/pkg/domain"
)

// AliveRules holds the thresholds used by ProbablyAlive.
type AliveRules struct {
	// MaxAge is the oldest age anyone is assumed to reach.
	MaxAge int
	// MaxSiblingAgeDiff bounds the birth year spread between siblings.
	MaxSiblingAgeDiff int
	// MinGeneration is the youngest age at which someone becomes a parent.
	MinGeneration int
	// AvgGeneration is the typical age gap between parent and child.
	AvgGeneration int
	// MaxDepth limits how far ancestors and descendants are followed.
	MaxDepth int
}

// DefaultAliveRules are the classic Gramps thresholds.
var DefaultAliveRules = AliveRules{
	MaxAge:            110,
	MaxSiblingAgeDiff: 20,
	MinGeneration:     13,
	AvgGeneration:     20,
	MaxDepth:          5,
}

// ProbablyAlive estimates whether p was alive in year using DefaultAliveRules.
func ProbablyAlive(ctx context.Context, r domain.Reader, p *domain.Person, year int) (bool, error) {
	return DefaultAliveRules.ProbablyAlive(ctx, r, p, year)
}

// ProbablyAlive estimates whether p was alive in year. Direct evidence such
// as a death, burial or a birth more than MaxAge years earlier decides
// first; otherwise the dates of siblings, descendants and ancestors are
// used to bound the birth year. With no evidence at all the person is
// presumed alive. A cycle in the ancestry yields a *domain.AncestorLoopError.
func (rules AliveRules) ProbablyAlive(ctx context.Context, r domain.Reader, p *domain.Person, year int) (bool, error) {
	if p == nil {
		return false, nil
	}
	e := estimator{rules: rules, r: r, year: year}

	if p.DeathRef != nil {
		ev, err := e.event(ctx, p.DeathRef.Ref)
		if err != nil {
			return false, err
		}
		if ev != nil {
			if y := ev.Date.Year(); y == 0 || y <= year {
				return false, nil
			}
		}
	}
	for _, ref := range p.EventRefs {
		if !ref.IsPrimary() {
			continue
		}
		ev, err := e.event(ctx, ref.Ref)
		if err != nil {
			return false, err
		}
		if ev == nil || !(ev.Type == domain.EventDeath || ev.Type.IsDeathIndicator()) {
			continue
		}
		if y := ev.Date.Year(); y == 0 || y <= year {
			return false, nil
		}
	}

	birth, err := e.birthYear(ctx, p)
	if err != nil {
		return false, err
	}
	if birth != 0 {
		if birth > year {
			return false, nil
		}
		return year-birth <= rules.MaxAge, nil
	}

	tooOld, err := e.otherEventsTooOld(ctx, p)
	if err != nil || tooOld {
		return false, err
	}
	if tooOld, err = e.siblingsTooOld(ctx, p); err != nil || tooOld {
		return false, err
	}
	if tooOld, err = e.descendantsTooOld(ctx, p, 1, map[string]bool{p.Handle: true}); err != nil || tooOld {
		return false, err
	}
	if tooOld, err = e.ancestorsTooOld(ctx, p, 1, map[string]bool{p.Handle: true}); err != nil || tooOld {
		return false, err
	}
	return true, nil
}

type estimator struct {
	rules AliveRules
	r     domain.Reader
	year  int
}

func (e estimator) event(ctx context.Context, handle string) (*domain.Event, error) {
	if handle == "" {
		return nil, nil
	}
	return domain.FromHandle[*domain.Event](ctx, e.r, handle)
}

// birthYear returns the year of the birth event, falling back to a
// baptism or christening. Zero means unknown.
func (e estimator) birthYear(ctx context.Context, p *domain.Person) (int, error) {
	if p.BirthRef != nil {
		ev, err := e.event(ctx, p.BirthRef.Ref)
		if err != nil {
			return 0, err
		}
		if ev != nil && ev.Date.Year() != 0 {
			return ev.Date.Year(), nil
		}
	}
	for _, ref := range p.EventRefs {
		if !ref.IsPrimary() {
			continue
		}
		ev, err := e.event(ctx, ref.Ref)
		if err != nil {
			return 0, err
		}
		if ev != nil && (ev.Type == domain.EventBaptism || ev.Type == domain.EventChristening) && ev.Date.Year() != 0 {
			return ev.Date.Year(), nil
		}
	}
	return 0, nil
}

// otherEventsTooOld reports whether any dated event of the person lies more
// than MaxAge years before the year of interest.
func (e estimator) otherEventsTooOld(ctx context.Context, p *domain.Person) (bool, error) {
	for _, ref := range p.EventRefs {
		ev, err := e.event(ctx, ref.Ref)
		if err != nil {
			return false, err
		}
		if ev == nil {
			continue
		}
		if y := ev.Date.Year(); y != 0 && e.year-y > e.rules.MaxAge {
			return true, nil
		}
	}
	return false, nil
}

// siblingsTooOld uses the youngest plausible birth year given each
// sibling's birth.
func (e estimator) siblingsTooOld(ctx context.Context, p *domain.Person) (bool, error) {
	sibs, err := Siblings(ctx, e.r, p)
	if err != nil {
		return false, err
	}
	for _, sib := range sibs {
		y, err := e.birthYear(ctx, sib)
		if err != nil {
			return false, err
		}
		if y != 0 && e.year-(y+e.rules.MaxSiblingAgeDiff) > e.rules.MaxAge {
			return true, nil
		}
	}
	return false, nil
}

// descendantsTooOld bounds the birth year from below by descendants: a
// person must be at least MinGeneration years older than each child.
func (e estimator) descendantsTooOld(ctx context.Context, p *domain.Person, gen int, path map[string]bool) (bool, error) {
	if gen > e.rules.MaxDepth {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	children, err := Children(ctx, e.r, p)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if path[child.Handle] {
			return false, &domain.AncestorLoopError{Handle: child.Handle, GrampsID: child.GrampsID}
		}
		y, err := e.birthYear(ctx, child)
		if err != nil {
			return false, err
		}
		if y != 0 && e.year-(y-gen*e.rules.MinGeneration) > e.rules.MaxAge {
			return true, nil
		}
		path[child.Handle] = true
		tooOld, err := e.descendantsTooOld(ctx, child, gen+1, path)
		delete(path, child.Handle)
		if err != nil || tooOld {
			return tooOld, err
		}
	}
	return false, nil
}

// ancestorsTooOld estimates the birth year as AvgGeneration years per
// generation after each dated ancestor.
func (e estimator) ancestorsTooOld(ctx context.Context, p *domain.Person, gen int, path map[string]bool) (bool, error) {
	if gen > e.rules.MaxDepth {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	parents, err := Parents(ctx, e.r, p)
	if err != nil {
		return false, err
	}
	for _, parent := range parents {
		if path[parent.Handle] {
			return false, &domain.AncestorLoopError{Handle: parent.Handle, GrampsID: parent.GrampsID}
		}
		y, err := e.birthYear(ctx, parent)
		if err != nil {
			return false, err
		}
		if y != 0 && e.year-(y+gen*e.rules.AvgGeneration) > e.rules.MaxAge {
			return true, nil
		}
		path[parent.Handle] = true
		tooOld, err := e.ancestorsTooOld(ctx, parent, gen+1, path)
		delete(path, parent.Handle)
		if err != nil || tooOld {
			return tooOld, err
		}
	}
	return false, nil
}
