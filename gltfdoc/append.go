package gltfdoc

import (
	"encoding/json"
	"strings"

	"github.com/psc3k/tiles"
	"github.com/qmuntal/gltf"
)

// Offsets are the amounts by which the indices of an appended document were
// shifted.
type Offsets struct {
	Accessors   int
	Animations  int
	BufferViews int
	Cameras     int
	Images      int
	Materials   int
	Meshes      int
	Nodes       int
	Samplers    int
	Skins       int
	Textures    int
	// Roots holds the indices of the root nodes of the appended scene.
	Roots []int
}

// Append appends every object of src to the document of w, writing the data
// of src's buffers into the buffer of w. The root nodes of src are added to
// the default scene. Document extensions of src are not copied.
//
// The document of w is not modified if Append returns an error.
func Append(w *Writer, src *gltf.Document) (*Offsets, error) {
	dst := w.doc
	off := &Offsets{
		Accessors:   len(dst.Accessors),
		Animations:  len(dst.Animations),
		BufferViews: len(dst.BufferViews),
		Cameras:     len(dst.Cameras),
		Images:      len(dst.Images),
		Materials:   len(dst.Materials),
		Meshes:      len(dst.Meshes),
		Nodes:       len(dst.Nodes),
		Samplers:    len(dst.Samplers),
		Skins:       len(dst.Skins),
		Textures:    len(dst.Textures),
	}
	c, err := copyObjects(src, off)
	if err != nil {
		return nil, err
	}

	base := make([]int, len(src.Buffers))
	for i, b := range src.Buffers {
		base[i] = w.Append(b.Data)
	}
	for _, v := range c.views {
		v.ByteOffset += base[v.Buffer]
		v.Buffer = w.buffer
	}
	dst.BufferViews = append(dst.BufferViews, c.views...)
	dst.Accessors = append(dst.Accessors, c.accessors...)
	dst.Images = append(dst.Images, c.images...)
	dst.Samplers = append(dst.Samplers, c.samplers...)
	dst.Textures = append(dst.Textures, c.textures...)
	dst.Materials = append(dst.Materials, c.materials...)
	dst.Cameras = append(dst.Cameras, c.cameras...)
	dst.Meshes = append(dst.Meshes, c.meshes...)
	dst.Nodes = append(dst.Nodes, c.nodes...)
	dst.Skins = append(dst.Skins, c.skins...)
	dst.Animations = append(dst.Animations, c.animations...)

	for _, r := range Roots(src) {
		off.Roots = append(off.Roots, r+off.Nodes)
	}
	scene := DefaultScene(dst)
	scene.Nodes = append(scene.Nodes, off.Roots...)

	for _, e := range src.ExtensionsUsed {
		AddExtensionUsed(dst, e)
	}
	for _, e := range src.ExtensionsRequired {
		AddExtensionRequired(dst, e)
	}
	return off, nil
}

// objects holds copies of the objects of a document, with indices shifted by
// a set of offsets.
type objects struct {
	views      []*gltf.BufferView
	accessors  []*gltf.Accessor
	images     []*gltf.Image
	samplers   []*gltf.Sampler
	textures   []*gltf.Texture
	materials  []*gltf.Material
	cameras    []*gltf.Camera
	meshes     []*gltf.Mesh
	nodes      []*gltf.Node
	skins      []*gltf.Skin
	animations []*gltf.Animation
}

// copyObjects copies the objects of src, shifting their indices by off.
// Buffer views keep the index of their source buffer.
func copyObjects(src *gltf.Document, off *Offsets) (*objects, error) {
	var c objects
	for i, b := range src.Buffers {
		if b.Data == nil && b.ByteLength > 0 {
			return nil, tiles.Formatf("buffer %d is not embedded", i)
		}
	}
	for _, v := range src.BufferViews {
		if v.Buffer < 0 || v.Buffer >= len(src.Buffers) {
			return nil, tiles.Formatf("buffer view references missing buffer %d", v.Buffer)
		}
		cv := *v
		c.views = append(c.views, &cv)
	}

	for _, a := range src.Accessors {
		ca := *a
		ca.BufferView = shiftIndex(a.BufferView, off.BufferViews)
		if a.Sparse != nil {
			r, err := remap(&ca, func(m map[string]interface{}) {
				sparse, _ := m["sparse"].(map[string]interface{})
				for _, k := range []string{"indices", "values"} {
					if o, ok := sparse[k].(map[string]interface{}); ok {
						shift(o, "bufferView", off.BufferViews)
					}
				}
			})
			if err != nil {
				return nil, err
			}
			ca = *r
		}
		c.accessors = append(c.accessors, &ca)
	}

	for _, img := range src.Images {
		ci := *img
		ci.BufferView = shiftIndex(img.BufferView, off.BufferViews)
		c.images = append(c.images, &ci)
	}
	for _, s := range src.Samplers {
		cs := *s
		c.samplers = append(c.samplers, &cs)
	}
	for _, t := range src.Textures {
		ct := *t
		ct.Source = shiftIndex(t.Source, off.Images)
		ct.Sampler = shiftIndex(t.Sampler, off.Samplers)
		c.textures = append(c.textures, &ct)
	}
	for _, m := range src.Materials {
		cm, err := remap(m, func(m map[string]interface{}) {
			shiftTextures(m, off.Textures)
		})
		if err != nil {
			return nil, err
		}
		c.materials = append(c.materials, cm)
	}
	for _, cam := range src.Cameras {
		cc := *cam
		c.cameras = append(c.cameras, &cc)
	}

	for _, m := range src.Meshes {
		cm := *m
		cm.Primitives = make([]*gltf.Primitive, len(m.Primitives))
		for i, p := range m.Primitives {
			cp := *p
			cp.Attributes = shiftAttributes(p.Attributes, off.Accessors)
			cp.Indices = shiftIndex(p.Indices, off.Accessors)
			cp.Material = shiftIndex(p.Material, off.Materials)
			if p.Targets != nil {
				cp.Targets = append(p.Targets[:0:0], p.Targets...)
				for j, t := range p.Targets {
					cp.Targets[j] = shiftAttributes(t, off.Accessors)
				}
			}
			cp.Extensions = copyExtensions(p.Extensions)
			cm.Primitives[i] = &cp
		}
		c.meshes = append(c.meshes, &cm)
	}

	for _, n := range src.Nodes {
		cn := *n
		if n.Children != nil {
			cn.Children = make([]int, len(n.Children))
			for i, child := range n.Children {
				cn.Children[i] = child + off.Nodes
			}
		}
		cn.Mesh = shiftIndex(n.Mesh, off.Meshes)
		cn.Skin = shiftIndex(n.Skin, off.Skins)
		cn.Camera = shiftIndex(n.Camera, off.Cameras)
		cn.Extensions = copyExtensions(n.Extensions)
		var inst MeshGPUInstancing
		ok, err := Extension(n.Extensions, ExtMeshGPUInstancing, &inst)
		if err != nil {
			return nil, tiles.Formatf("%s: %v", ExtMeshGPUInstancing, err)
		}
		if ok {
			inst.Attributes = shiftAttributes(inst.Attributes, off.Accessors)
			cn.Extensions[ExtMeshGPUInstancing] = &inst
		}
		c.nodes = append(c.nodes, &cn)
	}

	for _, s := range src.Skins {
		cs, err := remap(s, func(m map[string]interface{}) {
			shift(m, "inverseBindMatrices", off.Accessors)
			shift(m, "skeleton", off.Nodes)
			shiftAll(m, "joints", off.Nodes)
		})
		if err != nil {
			return nil, err
		}
		c.skins = append(c.skins, cs)
	}
	for _, a := range src.Animations {
		ca, err := remap(a, func(m map[string]interface{}) {
			channels, _ := m["channels"].([]interface{})
			for _, ch := range channels {
				ch, _ := ch.(map[string]interface{})
				if target, ok := ch["target"].(map[string]interface{}); ok {
					shift(target, "node", off.Nodes)
				}
			}
			samplers, _ := m["samplers"].([]interface{})
			for _, s := range samplers {
				if s, ok := s.(map[string]interface{}); ok {
					shift(s, "input", off.Accessors)
					shift(s, "output", off.Accessors)
				}
			}
		})
		if err != nil {
			return nil, err
		}
		c.animations = append(c.animations, ca)
	}
	return &c, nil
}

// Roots returns the root nodes of the default scene of doc. Without a scene,
// every node that is not a child of another node is a root.
func Roots(doc *gltf.Document) []int {
	switch {
	case doc.Scene != nil && *doc.Scene < len(doc.Scenes):
		return doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		return doc.Scenes[0].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, c := range child {
		if !c {
			roots = append(roots, i)
		}
	}
	return roots
}

// DefaultScene returns the default scene of doc, adding one if needed.
func DefaultScene(doc *gltf.Document) *gltf.Scene {
	if doc.Scene == nil || *doc.Scene >= len(doc.Scenes) {
		if len(doc.Scenes) == 0 {
			doc.Scenes = append(doc.Scenes, &gltf.Scene{})
		}
		doc.Scene = gltf.Index(0)
	}
	return doc.Scenes[*doc.Scene]
}

func shiftIndex(i *int, off int) *int {
	if i == nil {
		return nil
	}
	return gltf.Index(*i + off)
}

func shiftAttributes(attrs map[string]int, off int) map[string]int {
	if attrs == nil {
		return nil
	}
	r := make(map[string]int, len(attrs))
	for k, v := range attrs {
		r[k] = v + off
	}
	return r
}

// remap applies fn to the JSON object form of v, returning a new value.
func remap[T any](v *T, fn func(map[string]interface{})) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	fn(m)
	if data, err = json.Marshal(m); err != nil {
		return nil, err
	}
	r := new(T)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

func shift(m map[string]interface{}, key string, off int) {
	if f, ok := m[key].(float64); ok {
		m[key] = f + float64(off)
	}
}

func shiftAll(m map[string]interface{}, key string, off int) {
	a, _ := m[key].([]interface{})
	for i, v := range a {
		if f, ok := v.(float64); ok {
			a[i] = f + float64(off)
		}
	}
}

// shiftTextures shifts the index of every texture reference within a
// material, including those of material extensions.
func shiftTextures(m map[string]interface{}, off int) {
	for k, v := range m {
		switch v := v.(type) {
		case map[string]interface{}:
			if strings.HasSuffix(k, "Texture") {
				shift(v, "index", off)
			}
			shiftTextures(v, off)
		case []interface{}:
			for _, e := range v {
				if e, ok := e.(map[string]interface{}); ok {
					shiftTextures(e, off)
				}
			}
		}
	}
}
