package check

import (
	"context"
	"fmt"
	"sort"

	"grampscore/internal/genealogy"
	"grampscore/pkg/domain"
)

// duplicateIDs gives every later holder of a shared Gramps ID a freshly
// allocated one. The first holder in index order keeps the ID.
type duplicateIDs struct{}

func (duplicateIDs) Name() string { return "duplicate_ids" }

func (duplicateIDs) Run(ctx context.Context, s *Session) error {
	db := s.tx.Database()
	for _, kind := range domain.EntityTypes() {
		dups := db.DuplicateGrampsIDs(kind)
		ids := make([]string, 0, len(dups))
		for id := range dups {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, h := range dups[id][1:] {
				if err := ctx.Err(); err != nil {
					return err
				}
				obj, err := s.tx.Object(ctx, kind, h)
				if err != nil {
					return err
				}
				if obj == nil {
					continue
				}
				obj.Core().GrampsID = ""
				if err := s.Save(ctx, obj); err != nil {
					return err
				}
				s.Correct(DuplicateGrampsID, obj, fmt.Sprintf("%s renumbered to %s", id, obj.Core().GrampsID))
			}
		}
	}
	return nil
}

// ancestorLoops lists people who are their own ancestor. Nothing is changed.
type ancestorLoops struct{}

func (ancestorLoops) Name() string { return "ancestor_loops" }

func (ancestorLoops) Run(ctx context.Context, s *Session) error {
	loops, err := genealogy.FindAncestorLoops(ctx, s.tx)
	if err != nil {
		return err
	}
	for _, l := range loops {
		s.opts.logger.Warn("person is their own ancestor", "person", displayID(l.GrampsID, l.Handle))
	}
	s.report.AncestorLoops = loops
	return nil
}
