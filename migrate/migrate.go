// Package migrate converts legacy tile payloads into glTF documents carrying
// their metadata as structural metadata and feature IDs.
package migrate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/anaminus/parse"
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/errors"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/metadata"
	"github.com/psc3k/tiles/proptable"
	"github.com/psc3k/tiles/schema"
	"github.com/psc3k/tiles/tile"
	"github.com/psc3k/tiles/vmath"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// ExtBatchTableHierarchy is the batch table extension describing a class
// hierarchy of features.
const ExtBatchTableHierarchy = "3DTILES_batch_table_hierarchy"

// ExtCesiumRTC is the glTF extension holding the RTC center of a batched mesh.
const ExtCesiumRTC = "CESIUM_RTC"

// DracoDecoder decodes the Draco compressed attributes of a point cloud.
type DracoDecoder interface {
	// DecodePointCloud decodes data, returning a sequence for each of the
	// named attributes. attributes maps an attribute name to its unique ID
	// within the compressed data.
	DecodePointCloud(data []byte, attributes map[string]int) (map[string]accessor.VectorSequence, error)
}

// UnsupportedError is a warning indicating content that was not migrated.
type UnsupportedError struct {
	Name   string
	Reason string
}

func (err UnsupportedError) Error() string {
	return fmt.Sprintf("%s not migrated: %s", err.Name, err.Reason)
}

// Migrator converts legacy payloads into glTF documents.
type Migrator struct {
	opts   Options
	logger *zap.Logger
}

// New returns a Migrator configured with opts, which are validated after
// applying defaults. logger may be nil.
func New(opts Options, logger *zap.Logger) (*Migrator, error) {
	opts.applyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{opts: opts, logger: logger}, nil
}

// Migrate parses a legacy payload and converts it into a glTF document. warn
// holds problems that did not prevent the migration.
func (m *Migrator) Migrate(ctx context.Context, data []byte) (doc *gltf.Document, warn, err error) {
	t, parseWarn, err := tile.Parse(data)
	if err != nil {
		return nil, parseWarn, err
	}
	doc, warn, err = m.MigrateTile(ctx, t)
	return doc, errors.Union(parseWarn, warn), err
}

// MigrateTile converts a parsed payload into a glTF document.
func (m *Migrator) MigrateTile(ctx context.Context, t *tile.Tile) (doc *gltf.Document, warn, err error) {
	doc, warns, err := m.migrate(ctx, t)
	for _, w := range warns {
		m.logger.Warn("migration warning", zap.Stringer("format", t.Format), zap.Error(w))
	}
	return doc, warns.Return(), err
}

func (m *Migrator) migrate(ctx context.Context, t *tile.Tile) (doc *gltf.Document, warns errors.Errors, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	log := m.logger.With(zap.Stringer("format", t.Format))
	log.Debug("migrating payload")
	switch t.Format {
	case tile.FormatPNTS:
		doc, err = m.migratePoints(t, &warns, log)
	case tile.FormatB3DM:
		doc, err = m.migrateBatched(t, &warns, log)
	case tile.FormatI3DM:
		doc, err = m.migrateInstanced(t, &warns, log)
	case tile.FormatCMPT:
		doc, err = m.migrateComposite(ctx, t, &warns, log)
	default:
		err = tiles.Formatf("cannot migrate format %s", t.Format)
	}
	if err != nil {
		return nil, warns, fmt.Errorf("%s: %w", t.Format, err)
	}
	return doc, warns, nil
}

// batchTableWarnings records the parts of a batch table that are not
// migrated.
func batchTableWarnings(bt *tiles.Table, warns *errors.Errors) {
	if bt == nil {
		return
	}
	if _, ok := bt.Extensions[ExtBatchTableHierarchy]; ok {
		*warns = warns.Append(UnsupportedError{Name: ExtBatchTableHierarchy, Reason: "batch table hierarchies have no structural metadata equivalent"})
	}
}

// ignoreSemantics records feature table properties that are not known
// semantics of the format.
func ignoreSemantics(ft *tiles.Table, known map[string]bool, warns *errors.Errors) {
	for _, name := range ft.Names() {
		if !known[name] {
			*warns = warns.Append(UnsupportedError{Name: name, Reason: "unknown feature table semantic"})
		}
	}
}

// batchSchema creates the schema of a batch table. s is nil if the table has
// no properties.
func (m *Migrator) batchSchema(bt *tiles.Table) (s *schema.Schema, className string, err error) {
	if bt == nil {
		return nil, "", nil
	}
	s, err = schema.CreateSchema(m.opts.ClassName, bt)
	if err != nil || s == nil {
		return nil, "", err
	}
	return s, schema.Sanitize(m.opts.ClassName), nil
}

// attachBatchTable builds a property table with count rows from the batch
// table and attaches it to the document of w. Returns nil if the batch table
// has no properties.
func (m *Migrator) attachBatchTable(w *gltfdoc.Writer, bt *tiles.Table, count int, external map[string]proptable.Column) (*int, error) {
	s, className, err := m.batchSchema(bt)
	if err != nil || s == nil {
		return nil, err
	}
	columns, err := proptable.TableColumns(bt, count, external)
	if err != nil {
		return nil, err
	}
	pt, err := proptable.BuildPropertyTable(s, className, columns, count)
	if err != nil {
		return nil, err
	}
	i, err := metadata.AttachPropertyTable(w, pt)
	if err != nil {
		return nil, err
	}
	return gltf.Index(i), nil
}

// floatData encodes values as little-endian FLOAT32 components.
func floatData(values []float64) ([]byte, error) {
	var buf bytes.Buffer
	fw := parse.NewBinaryWriter(&buf)
	for _, v := range values {
		if fw.Number(float32(v)) {
			return nil, fw.Err()
		}
	}
	if _, err := fw.End(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flattenVec3(vs []vmath.Vec3) []float64 {
	r := make([]float64, 0, len(vs)*3)
	for _, v := range vs {
		r = append(r, v[:]...)
	}
	return r
}

func flattenVec4(vs []vmath.Vec4) []float64 {
	r := make([]float64, 0, len(vs)*4)
	for _, v := range vs {
		r = append(r, v[:]...)
	}
	return r
}

func flattenQuat(qs []vmath.Quat) []float64 {
	r := make([]float64, 0, len(qs)*4)
	for _, q := range qs {
		r = append(r, q[:]...)
	}
	return r
}

// floatAccessor writes values as a FLOAT32 accessor of type t.
func floatAccessor(w *gltfdoc.Writer, t tiles.Type, values []float64, attribute, bounds bool) (int, error) {
	data, err := floatData(values)
	if err != nil {
		return 0, err
	}
	return w.Accessor(gltfdoc.AccessorData{
		Type:          t,
		ComponentType: tiles.Float32,
		Count:         len(values) / t.Components(),
		Data:          data,
		Attribute:     attribute,
		Bounds:        bounds,
	})
}

// wrapRoots places the roots of the default scene of doc under a new node
// with the given matrix.
func wrapRoots(doc *gltf.Document, matrix vmath.Mat4) {
	roots := gltfdoc.Roots(doc)
	scene := gltfdoc.DefaultScene(doc)
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Matrix:   matrix,
		Children: roots,
	})
	scene.Nodes = []int{len(doc.Nodes) - 1}
}

// rtcMatrix returns the matrix that applies a translation in the Z-up space
// of the tile to content that is Y-up.
func rtcMatrix(center vmath.Vec3) vmath.Mat4 {
	return vmath.MulAll(vmath.ZUpToYUp, vmath.Translation(center), vmath.YUpToZUp)
}
