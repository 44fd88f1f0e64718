package tile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le(t *testing.T, data ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, d := range data {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, d))
	}
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatPNTS, DetectFormat([]byte("pnts....")))
	assert.Equal(t, FormatCMPT, DetectFormat([]byte("cmpt")))
	assert.Equal(t, FormatInvalid, DetectFormat([]byte("glTF")))
	assert.Equal(t, FormatInvalid, DetectFormat([]byte("pn")))
	assert.Equal(t, "b3dm", FormatB3DM.String())
}

func TestEncodeParsePoints(t *testing.T) {
	data, err := Encode(&Tile{
		Format:             FormatPNTS,
		FeatureTableJSON:   []byte(`{"POINTS_LENGTH":2,"POSITION":{"byteOffset":0}}`),
		FeatureTableBinary: le(t, []float32{1, 2, 3, 4, 5, 6}),
		BatchTableJSON:     []byte(`{"name":["a","b"]}`),
	})
	require.NoError(t, err)
	assert.Zero(t, len(data)%alignment)
	assert.Equal(t, uint32(len(data)), binary.LittleEndian.Uint32(data[8:]))

	tl, warn, err := Parse(data)
	require.NoError(t, err)
	assert.NoError(t, warn)
	assert.Equal(t, FormatPNTS, tl.Format)
	assert.Equal(t, uint32(1), tl.Version)
	n, ok := tl.FeatureTable.Int("POINTS_LENGTH")
	require.True(t, ok)
	assert.Equal(t, 2, n)
	p, ok := tl.FeatureTable.Get("POSITION")
	require.True(t, ok)
	require.NotNil(t, p.Ref)
	assert.Len(t, tl.FeatureTableBinary, 24)
	require.NotNil(t, tl.BatchTable)
	assert.True(t, tl.BatchTable.Has("name"))
	assert.Nil(t, tl.Body)
}

func TestParseNoBatchTable(t *testing.T) {
	data, err := Encode(&Tile{Format: FormatPNTS, FeatureTableJSON: []byte(`{"POINTS_LENGTH":0}`)})
	require.NoError(t, err)
	tl, _, err := Parse(data)
	require.NoError(t, err)
	assert.Nil(t, tl.BatchTable)
}

func TestParseBatchedMesh(t *testing.T) {
	glb := append([]byte("glTF"), le(t, uint32(2), uint32(12))...)
	data, err := Encode(&Tile{
		Format:           FormatB3DM,
		FeatureTableJSON: []byte(`{"BATCH_LENGTH":3}`),
		Body:             glb,
	})
	require.NoError(t, err)
	tl, _, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, glb, tl.Body[:len(glb)])
	n, _ := tl.FeatureTable.Int("BATCH_LENGTH")
	assert.Equal(t, 3, n)
}

func TestParseLegacyBatchedMesh(t *testing.T) {
	glb := append([]byte("glTF"), le(t, uint32(2), uint32(12))...)
	batchJSON := []byte(`{"id":[1,2]} `)

	// magic, version, byteLength, batchLength, batchTableByteLength.
	legacy1 := append([]byte("b3dm"), le(t, uint32(1), uint32(20+len(batchJSON)+len(glb)), uint32(2), uint32(len(batchJSON)))...)
	legacy1 = append(append(legacy1, batchJSON...), glb...)

	// magic, version, byteLength, batchTableJSONByteLength,
	// batchTableBinaryByteLength, batchLength.
	legacy2 := append([]byte("b3dm"), le(t, uint32(1), uint32(24+len(batchJSON)+len(glb)), uint32(len(batchJSON)), uint32(0), uint32(2))...)
	legacy2 = append(append(legacy2, batchJSON...), glb...)

	for _, tt := range []struct {
		name string
		data []byte
		size int
	}{
		{"20-byte header", legacy1, 20},
		{"24-byte header", legacy2, 24},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tl, warn, err := Parse(tt.data)
			require.NoError(t, err)
			var legacy LegacyHeaderError
			require.ErrorAs(t, warn, &legacy)
			assert.Equal(t, tt.size, legacy.Size)

			n, ok := tl.FeatureTable.Int("BATCH_LENGTH")
			require.True(t, ok)
			assert.Equal(t, 2, n)
			require.NotNil(t, tl.BatchTable)
			assert.True(t, tl.BatchTable.Has("id"))
			assert.Equal(t, glb, tl.Body)
		})
	}
}

func TestParseInstancedMeshURI(t *testing.T) {
	data, err := Encode(&Tile{
		Format:           FormatI3DM,
		FeatureTableJSON: []byte(`{"INSTANCES_LENGTH":1,"POSITION":[0,0,0]}`),
		GLTFFormat:       GLTFURI,
		Body:             []byte("model.glb"),
	})
	require.NoError(t, err)
	tl, _, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, GLTFURI, tl.GLTFFormat)
	assert.Equal(t, []byte("model.glb"), tl.Body)
}

func TestParseComposite(t *testing.T) {
	data, err := Encode(&Tile{
		Format: FormatCMPT,
		Tiles: []*Tile{
			{Format: FormatPNTS, FeatureTableJSON: []byte(`{"POINTS_LENGTH":0}`)},
			{Format: FormatCMPT, Tiles: []*Tile{
				{Format: FormatPNTS, Version: 2, FeatureTableJSON: []byte(`{"POINTS_LENGTH":0}`)},
			}},
		},
	})
	require.NoError(t, err)
	tl, warn, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, tl.Tiles, 2)
	assert.Equal(t, FormatPNTS, tl.Tiles[0].Format)
	require.Len(t, tl.Tiles[1].Tiles, 1)
	assert.Equal(t, uint32(2), tl.Tiles[1].Tiles[0].Version)

	var version VersionError
	require.ErrorAs(t, warn, &version)
	assert.Contains(t, warn.Error(), "inner tile 1")
}

func TestParseErrors(t *testing.T) {
	valid, err := Encode(&Tile{Format: FormatPNTS, FeatureTableJSON: []byte(`{"POINTS_LENGTH":0}`)})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("pn")},
		{"magic", []byte("abcd0000")},
		{"truncated header", valid[:20]},
		{"byte length", valid[:len(valid)-8]},
		{"feature table", append([]byte("pnts"), le(t, uint32(1), uint32(28), uint32(64), uint32(0), uint32(0), uint32(0))...)},
		{"composite", append([]byte("cmpt"), le(t, uint32(1), uint32(16), uint32(1))...)},
		{"json", append(append([]byte("pnts"), le(t, uint32(1), uint32(36), uint32(8), uint32(0), uint32(0), uint32(0))...), []byte("{bad    ")...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.data)
			require.Error(t, err)
			var formatErr *tiles.FormatError
			var rangeErr *tiles.OutOfRangeError
			assert.True(t, errors.As(err, &formatErr) || errors.As(err, &rangeErr), err.Error())
		})
	}
}
