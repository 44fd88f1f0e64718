package gltfdoc

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

// ExtMeshGPUInstancing is the name of the instancing extension of nodes.
const ExtMeshGPUInstancing = "EXT_mesh_gpu_instancing"

// MeshGPUInstancing is the instancing extension of a node. Attributes maps
// TRANSLATION, ROTATION, SCALE and feature ID attributes to accessors.
type MeshGPUInstancing struct {
	Attributes map[string]int `json:"attributes"`
}

// DecodeExtension decodes the extension value v into dst. Extensions read from
// a file are held as raw JSON, while those set in memory are re-encoded.
func DecodeExtension(v interface{}, dst interface{}) error {
	var data []byte
	switch v := v.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, dst)
}

// Extension decodes the extension name of exts into dst, reporting whether
// it is present.
func Extension(exts gltf.Extensions, name string, dst interface{}) (bool, error) {
	v, ok := exts[name]
	if !ok || v == nil {
		return false, nil
	}
	return true, DecodeExtension(v, dst)
}

// SetExtension sets the extension name of *exts to v, allocating the map if
// needed.
func SetExtension(exts *gltf.Extensions, name string, v interface{}) {
	if *exts == nil {
		*exts = gltf.Extensions{}
	}
	(*exts)[name] = v
}

// copyExtensions returns a shallow copy of exts.
func copyExtensions(exts gltf.Extensions) gltf.Extensions {
	if exts == nil {
		return nil
	}
	c := make(gltf.Extensions, len(exts))
	for k, v := range exts {
		c[k] = v
	}
	return c
}
