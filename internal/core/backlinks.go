package core

import (
	"context"

	"grampscore/pkg/domain"
)

// FindBacklinks returns every primary object that references handle, in
// type then handle order.
func (d *Database) FindBacklinks(ctx context.Context, handle string) ([]domain.Ref, error) {
	target, known := d.KindOf(handle)
	var out []domain.Ref
	for _, kind := range domain.EntityTypes() {
		handles, err := d.Handles(ctx, kind, false)
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			obj, err := d.Object(ctx, kind, h)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				continue
			}
			for _, ref := range obj.References() {
				if ref.Handle == handle && (!known || ref.Kind == target) {
					out = append(out, domain.Ref{Kind: kind, Handle: h})
					break
				}
			}
		}
	}
	return out, nil
}
