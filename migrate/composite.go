package migrate

import (
	"context"
	"fmt"

	"github.com/psc3k/tiles/errors"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/metadata"
	"github.com/psc3k/tiles/tile"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// migrateComposite migrates the inner tiles of a composite concurrently, then
// combines them in order into one document.
func (m *Migrator) migrateComposite(ctx context.Context, t *tile.Tile, warns *errors.Errors, log *zap.Logger) (*gltf.Document, error) {
	docs := make([]*gltf.Document, len(t.Tiles))
	innerWarns := make([]errors.Errors, len(t.Tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i, it := range t.Tiles {
		g.Go(func() error {
			doc, w, err := m.migrate(gctx, it)
			innerWarns[i] = w
			if err != nil {
				return fmt.Errorf("inner tile %d: %w", i, err)
			}
			docs[i] = doc
			return nil
		})
	}
	err := g.Wait()
	for i, w := range innerWarns {
		for _, e := range w {
			*warns = warns.Append(errors.Prefix(fmt.Sprintf("inner tile %d", i), e))
		}
	}
	if err != nil {
		return nil, err
	}

	doc := gltfdoc.NewDocument()
	w := gltfdoc.NewWriter(doc)
	merger := metadata.NewMerger(log)
	merger.Suffix = m.opts.SchemaSuffix
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := merger.Merge(w, d)
		if err != nil {
			return nil, fmt.Errorf("inner tile %d: %w", i, err)
		}
		if len(r.ClassRenames) > 0 || len(r.EnumRenames) > 0 {
			log.Debug("renamed metadata of inner tile",
				zap.Int("tile", i),
				zap.Any("classes", r.ClassRenames),
				zap.Any("enums", r.EnumRenames),
			)
		}
	}
	log.Debug("migrated composite", zap.Int("tiles", len(docs)))
	return doc, nil
}
