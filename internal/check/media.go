package check

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"grampscore/internal/blob"
	"grampscore/pkg/domain"
)

// mediaFiles probes the media store for the file behind every media object
// and applies the configured policy to the ones that are missing.
type mediaFiles struct{}

func (mediaFiles) Name() string { return "media_files" }

func (mediaFiles) Run(ctx context.Context, s *Session) error {
	var items []*domain.Media
	err := s.each(ctx, domain.EntityMedia, func(obj domain.Object) error {
		items = append(items, obj.(*domain.Media))
		return nil
	})
	if err != nil {
		return err
	}

	missing := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency)
	for i, m := range items {
		g.Go(func() error {
			ok, err := s.fileExists(gctx, m.Path)
			if err != nil {
				return fmt.Errorf("probe %s: %w", displayID(m.GrampsID, m.Handle), err)
			}
			missing[i] = !ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, m := range items {
		if !missing[i] {
			continue
		}
		switch s.opts.policy {
		case MediaRemove:
			s.Correct(MissingMediaRemoved, m, "file "+m.Path)
			if err := s.tx.Remove(ctx, domain.EntityMedia, m.Handle); err != nil {
				return err
			}
			continue
		case MediaReplace:
			replaced, err := s.replace(ctx, m)
			if err != nil {
				return err
			}
			if replaced {
				continue
			}
		}
		s.report.MissingMedia = append(s.report.MissingMedia, MissingFile{Handle: m.Handle, GrampsID: m.GrampsID, Path: m.Path})
	}
	return nil
}

// fileExists treats a path that cannot name a file as missing.
func (s *Session) fileExists(ctx context.Context, path string) (bool, error) {
	key, err := blob.NormalizeKey(path)
	if err != nil {
		return false, nil
	}
	return blob.Exists(ctx, s.opts.media, key)
}

func (s *Session) replace(ctx context.Context, m *domain.Media) (bool, error) {
	if s.opts.replacer == nil {
		return false, nil
	}
	path, ok := s.opts.replacer(ctx, m)
	if !ok || path == m.Path {
		return false, nil
	}
	found, err := s.fileExists(ctx, path)
	if err != nil {
		return false, err
	}
	if !found {
		s.opts.logger.Warn("replacement media file not found", "media", m.GrampsID, "path", path)
		return false, nil
	}
	s.Correct(MissingMediaReplaced, m, fmt.Sprintf("%s replaced by %s", m.Path, path))
	m.Path = path
	return true, s.Save(ctx, m)
}
