package tile

import (
	"bytes"
	"encoding/json"

	"github.com/anaminus/parse"
	"github.com/psc3k/tiles"
)

const alignment = 8

func pad(b []byte, start int, fill byte) []byte {
	n := (alignment - (start+len(b))%alignment) % alignment
	if n == 0 {
		return b
	}
	r := make([]byte, len(b), len(b)+n)
	copy(r, b)
	return append(r, bytes.Repeat([]byte{fill}, n)...)
}

// tableJSON returns the raw JSON of a table section, encoding table when raw
// is empty.
func tableJSON(raw []byte, table *tiles.Table) ([]byte, error) {
	if len(raw) > 0 || table == nil || table.Len() == 0 {
		return raw, nil
	}
	return json.Marshal(table)
}

// Encode encodes t as a payload. Sections are padded so that each starts at an
// 8-byte boundary, JSON with spaces and binary data with zeros. When the raw
// JSON of a table is empty, the parsed table is encoded instead.
func Encode(t *Tile) ([]byte, error) {
	var buf bytes.Buffer
	fw := parse.NewBinaryWriter(&buf)
	if !t.Format.Valid() {
		return nil, tiles.Formatf("cannot encode format %s", t.Format)
	}
	version := t.Version
	if version == 0 {
		version = 1
	}

	if t.Format == FormatCMPT {
		var inner [][]byte
		size := cmptHeaderSize
		for i, it := range t.Tiles {
			b, err := Encode(it)
			if err != nil {
				return nil, tiles.Formatf("inner tile %d: %v", i, err)
			}
			inner = append(inner, b)
			size += len(b)
		}
		if fw.Bytes([]byte(t.Format.Magic())) ||
			fw.Number(version) ||
			fw.Number(uint32(size)) ||
			fw.Number(uint32(len(inner))) {
			return nil, fw.Err()
		}
		for _, b := range inner {
			if fw.Bytes(b) {
				return nil, fw.Err()
			}
		}
		if _, err := fw.End(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	size := headerSize
	if t.Format == FormatI3DM {
		size = i3dmHeaderSize
	}
	ftJSON, err := tableJSON(t.FeatureTableJSON, t.FeatureTable)
	if err != nil {
		return nil, err
	}
	btJSON, err := tableJSON(t.BatchTableJSON, t.BatchTable)
	if err != nil {
		return nil, err
	}
	ftBin, btBin := t.FeatureTableBinary, t.BatchTableBinary
	if len(ftBin) == 0 && t.FeatureTable != nil {
		ftBin = t.FeatureTable.Binary
	}
	if len(btBin) == 0 && t.BatchTable != nil {
		btBin = t.BatchTable.Binary
	}
	var sections [4][]byte
	off := size
	for i, s := range [4][]byte{ftJSON, ftBin, btJSON, btBin} {
		fill := byte(0)
		if i%2 == 0 {
			fill = ' '
		}
		sections[i] = pad(s, off, fill)
		off += len(sections[i])
	}
	body := t.Body
	if t.Format == FormatPNTS {
		body = nil
	}
	padded := pad(body, off, 0)
	total := off + len(padded)

	if fw.Bytes([]byte(t.Format.Magic())) || fw.Number(version) || fw.Number(uint32(total)) {
		return nil, fw.Err()
	}
	for _, s := range sections {
		if fw.Number(uint32(len(s))) {
			return nil, fw.Err()
		}
	}
	if t.Format == FormatI3DM && fw.Number(uint32(t.GLTFFormat)) {
		return nil, fw.Err()
	}
	for _, s := range sections {
		if fw.Bytes(s) {
			return nil, fw.Err()
		}
	}
	if fw.Bytes(padded) {
		return nil, fw.Err()
	}
	if _, err := fw.End(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
