// Package tile parses and encodes legacy tile payloads.
package tile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/anaminus/parse"
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/errors"
)

// Format is the format of a legacy tile payload.
type Format uint8

const (
	FormatInvalid Format = iota
	FormatPNTS           // Point cloud.
	FormatB3DM           // Batched mesh.
	FormatI3DM           // Instanced mesh.
	FormatCMPT           // Composite.
	numFormats
)

var formatMagic = [numFormats]string{
	FormatPNTS: "pnts",
	FormatB3DM: "b3dm",
	FormatI3DM: "i3dm",
	FormatCMPT: "cmpt",
}

// Valid returns whether the format is valid.
func (f Format) Valid() bool {
	return FormatInvalid < f && f < numFormats
}

// Magic returns the four-byte magic of the format.
func (f Format) Magic() string {
	if !f.Valid() {
		return ""
	}
	return formatMagic[f]
}

func (f Format) String() string {
	if !f.Valid() {
		return "Invalid"
	}
	return formatMagic[f]
}

// DetectFormat returns the format of a payload from its magic.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatInvalid
	}
	for f := FormatPNTS; f < numFormats; f++ {
		if string(data[:4]) == formatMagic[f] {
			return f
		}
	}
	return FormatInvalid
}

// Header sizes.
const (
	headerSize          = 28
	i3dmHeaderSize      = 32
	cmptHeaderSize      = 16
	innerHeaderSize     = 12
	legacyB3DM1Size     = 20
	legacyB3DM2Size     = 24
	legacyHeaderMinimum = 570425344
)

// GLTFFormat is the way an instanced mesh refers to its glTF.
type GLTFFormat uint32

const (
	GLTFURI      GLTFFormat = 0 // The payload is a URI.
	GLTFEmbedded GLTFFormat = 1 // The payload is a GLB.
)

// Tile is a decoded legacy tile payload.
type Tile struct {
	Format  Format
	Version uint32

	// The raw JSON and binary parts of the feature table and batch table.
	FeatureTableJSON   []byte
	FeatureTableBinary []byte
	BatchTableJSON     []byte
	BatchTableBinary   []byte

	// FeatureTable is the parsed feature table. It is never nil for pnts,
	// b3dm and i3dm payloads.
	FeatureTable *tiles.Table
	// BatchTable is the parsed batch table, or nil if the payload has none.
	BatchTable *tiles.Table

	// GLTFFormat is the glTF format of an instanced mesh.
	GLTFFormat GLTFFormat
	// Body is the embedded GLB of a batched or instanced mesh, or the URI of
	// the glTF of an instanced mesh.
	Body []byte

	// Tiles are the inner tiles of a composite.
	Tiles []*Tile
}

// DataError describes malformed payload data at a byte offset.
type DataError struct {
	// Offset is the byte offset where the error occurred.
	Offset int64

	Cause error
}

func (err DataError) Error() string {
	var s strings.Builder
	s.WriteString("data error")
	if err.Offset >= 0 {
		s.WriteString(" at ")
		s.Write(strconv.AppendInt(nil, err.Offset, 10))
	}
	if err.Cause != nil {
		s.WriteString(": ")
		s.WriteString(err.Cause.Error())
	}
	return s.String()
}

func (err DataError) Unwrap() error {
	return err.Cause
}

// decodeError returns a FormatError describing the failure of r.
func decodeError(r *parse.BinaryReader, err error) error {
	r.Add(0, err)
	err = r.Err()
	if err != nil {
		return &tiles.FormatError{Message: "tile", Cause: DataError{Offset: r.N(), Cause: err}}
	}
	return nil
}

// LegacyHeaderError is a warning indicating that a batched mesh uses a
// deprecated header layout.
type LegacyHeaderError struct {
	// Size is the byte size of the legacy header.
	Size int
}

func (err LegacyHeaderError) Error() string {
	return fmt.Sprintf("batched mesh uses a legacy %d-byte header", err.Size)
}

// VersionError is a warning indicating an unexpected payload version.
type VersionError struct {
	Format  Format
	Version uint32
}

func (err VersionError) Error() string {
	return fmt.Sprintf("%s version %d is not 1", err.Format, err.Version)
}

// header is the common header of pnts, b3dm and i3dm payloads.
type header struct {
	magic      [4]byte
	version    uint32
	byteLength uint32
	lengths    [4]uint32
	gltfFormat uint32
}

func (h *header) readFrom(fr *parse.BinaryReader, format Format) bool {
	if fr.Bytes(h.magic[:]) {
		return true
	}
	if fr.Number(&h.version) || fr.Number(&h.byteLength) {
		return true
	}
	for i := range h.lengths {
		if fr.Number(&h.lengths[i]) {
			return true
		}
	}
	if format == FormatI3DM {
		return fr.Number(&h.gltfFormat)
	}
	return false
}

// Parse decodes a legacy tile payload. warn holds non-fatal problems, such as
// a legacy batched mesh header.
func Parse(data []byte) (t *Tile, warn, err error) {
	var warns errors.Errors
	t, err = parse1(data, &warns)
	return t, warns.Return(), err
}

func parse1(data []byte, warns *errors.Errors) (*Tile, error) {
	format := DetectFormat(data)
	if !format.Valid() {
		if len(data) < 4 {
			return nil, tiles.Formatf("payload of %d bytes is too short", len(data))
		}
		return nil, tiles.Formatf("unknown payload magic %q", data[:4])
	}
	if format == FormatCMPT {
		return parseComposite(data, warns)
	}

	fr := parse.NewBinaryReader(bytes.NewReader(data))
	var h header
	if h.readFrom(fr, format) {
		return nil, decodeError(fr, nil)
	}
	t := &Tile{Format: format, Version: h.version, GLTFFormat: GLTFFormat(h.gltfFormat)}
	if h.version != 1 {
		*warns = warns.Append(VersionError{Format: format, Version: h.version})
	}
	if int(h.byteLength) > len(data) {
		return nil, decodeError(fr, fmt.Errorf("byte length %d exceeds payload size %d", h.byteLength, len(data)))
	}
	data = data[:h.byteLength]

	size := headerSize
	ftJSON, ftBin, btJSON, btBin := h.lengths[0], h.lengths[1], h.lengths[2], h.lengths[3]
	var batchLength uint32
	legacy := false
	switch {
	case format == FormatI3DM:
		size = i3dmHeaderSize
	case format != FormatB3DM:
	case btJSON >= legacyHeaderMinimum:
		size = legacyB3DM1Size
		batchLength = ftJSON
		btJSON = ftBin
		btBin = 0
		ftJSON, ftBin = 0, 0
		legacy = true
	case btBin >= legacyHeaderMinimum:
		size = legacyB3DM2Size
		batchLength = btJSON
		btJSON = ftJSON
		btBin = ftBin
		ftJSON, ftBin = 0, 0
		legacy = true
	}
	if legacy {
		*warns = warns.Append(LegacyHeaderError{Size: size})
	}

	off := size
	section := func(n uint32) ([]byte, error) {
		if err := tiles.CheckRange(off, int(n), len(data)); err != nil {
			return nil, err
		}
		b := data[off : off+int(n)]
		off += int(n)
		return b, nil
	}
	var err error
	if t.FeatureTableJSON, err = section(ftJSON); err != nil {
		return nil, fmt.Errorf("feature table JSON: %w", err)
	}
	if t.FeatureTableBinary, err = section(ftBin); err != nil {
		return nil, fmt.Errorf("feature table binary: %w", err)
	}
	if t.BatchTableJSON, err = section(btJSON); err != nil {
		return nil, fmt.Errorf("batch table JSON: %w", err)
	}
	if t.BatchTableBinary, err = section(btBin); err != nil {
		return nil, fmt.Errorf("batch table binary: %w", err)
	}
	t.Body = data[off:]

	if legacy {
		t.FeatureTable = tiles.NewTable(nil)
		t.FeatureTable.Set("BATCH_LENGTH", tiles.Property{Value: json.Number(strconv.FormatUint(uint64(batchLength), 10))})
	} else if t.FeatureTable, err = parseTable(t.FeatureTableJSON, t.FeatureTableBinary); err != nil {
		return nil, fmt.Errorf("feature table: %w", err)
	}
	if len(trimJSON(t.BatchTableJSON)) > 0 {
		if t.BatchTable, err = parseTable(t.BatchTableJSON, t.BatchTableBinary); err != nil {
			return nil, fmt.Errorf("batch table: %w", err)
		}
	}
	if format == FormatPNTS {
		t.Body = nil
	}
	if format == FormatI3DM && t.GLTFFormat == GLTFURI {
		t.Body = trimJSON(t.Body)
	}
	return t, nil
}

// trimJSON removes the padding of a JSON section.
func trimJSON(b []byte) []byte {
	return bytes.TrimRight(b, " \t\r\n\x00")
}

func parseTable(jsonData, binary []byte) (*tiles.Table, error) {
	jsonData = trimJSON(jsonData)
	if len(jsonData) == 0 {
		return tiles.NewTable(binary), nil
	}
	return tiles.ParseTable(jsonData, binary)
}

func parseComposite(data []byte, warns *errors.Errors) (*Tile, error) {
	fr := parse.NewBinaryReader(bytes.NewReader(data))
	var magic [4]byte
	var version, byteLength, tilesLength uint32
	if fr.Bytes(magic[:]) || fr.Number(&version) || fr.Number(&byteLength) || fr.Number(&tilesLength) {
		return nil, decodeError(fr, nil)
	}
	if version != 1 {
		*warns = warns.Append(VersionError{Format: FormatCMPT, Version: version})
	}
	if int(byteLength) > len(data) {
		return nil, decodeError(fr, fmt.Errorf("byte length %d exceeds payload size %d", byteLength, len(data)))
	}
	t := &Tile{Format: FormatCMPT, Version: version}
	for i := uint32(0); i < tilesLength; i++ {
		start := int(fr.N())
		var inner [innerHeaderSize]byte
		if fr.Bytes(inner[:]) {
			return nil, decodeError(fr, fmt.Errorf("inner tile %d", i))
		}
		ir := parse.NewBinaryReader(bytes.NewReader(inner[8:]))
		var n uint32
		if ir.Number(&n) {
			return nil, decodeError(ir, nil)
		}
		if n < innerHeaderSize || start+int(n) > int(byteLength) {
			return nil, decodeError(fr, fmt.Errorf("inner tile %d has invalid byte length %d", i, n))
		}
		if fr.Bytes(make([]byte, int(n)-innerHeaderSize)) {
			return nil, decodeError(fr, nil)
		}
		var innerWarns errors.Errors
		it, err := parse1(data[start:start+int(n)], &innerWarns)
		for _, w := range innerWarns {
			*warns = warns.Append(errors.Prefix(fmt.Sprintf("inner tile %d", i), w))
		}
		if err != nil {
			return nil, fmt.Errorf("inner tile %d: %w", i, err)
		}
		t.Tiles = append(t.Tiles, it)
	}
	return t, nil
}
