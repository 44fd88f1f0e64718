package proptable

import (
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
)

// FeatureIDAttribute is the name of the vertex attribute holding feature IDs.
const FeatureIDAttribute = "_FEATURE_ID_0"

// maxFloatID bounds the integers that FLOAT32 represents exactly.
const maxFloatID = 1 << 24

// FeatureIDs is the data of a feature ID vertex attribute.
type FeatureIDs struct {
	// ComponentType is the component type of Data. Vertex attributes cannot
	// hold 32-bit integers, so larger IDs are stored as FLOAT32.
	ComponentType tiles.ComponentType
	Count         int
	Data          []byte
	// FeatureCount is the number of distinct features.
	FeatureCount int
}

// NewFeatureIDs encodes feature IDs that were declared with the given
// component type. Returns a FormatError if the declared type is not UINT8,
// UINT16 or UINT32, or if an ID cannot be represented.
func NewFeatureIDs(ids []float64, declared tiles.ComponentType, featureCount int) (*FeatureIDs, error) {
	ct := declared
	switch declared {
	case tiles.Uint8, tiles.Uint16:
	case tiles.Uint32:
		ct = tiles.Float32
	default:
		return nil, tiles.Formatf("feature IDs must be UINT8, UINT16 or UINT32, got %s", declared)
	}
	w := newValueWriter()
	for i, id := range ids {
		if ct == tiles.Float32 && id > maxFloatID {
			return nil, tiles.Formatf("feature ID %v at %d exceeds the FLOAT32 integer range", id, i)
		}
		if err := w.number(ct, id); err != nil {
			return nil, err
		}
	}
	data, err := w.end()
	if err != nil {
		return nil, err
	}
	return &FeatureIDs{
		ComponentType: ct,
		Count:         len(ids),
		Data:          data,
		FeatureCount:  featureCount,
	}, nil
}

// FeatureIDsFromSequence encodes the feature IDs of a BATCH_ID sequence.
func FeatureIDsFromSequence(s accessor.ScalarSequence, featureCount int) (*FeatureIDs, error) {
	return NewFeatureIDs(s.Values(), s.ComponentType(), featureCount)
}

// SequentialFeatureIDs returns the IDs 0 to count-1, for data where each
// element is its own feature.
func SequentialFeatureIDs(count int) (*FeatureIDs, error) {
	ids := make([]float64, count)
	for i := range ids {
		ids[i] = float64(i)
	}
	ct := tiles.Uint32
	switch {
	case count <= 1<<8:
		ct = tiles.Uint8
	case count <= 1<<16:
		ct = tiles.Uint16
	}
	return NewFeatureIDs(ids, ct, count)
}
