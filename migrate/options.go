package migrate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Ways of storing per-point properties of an unbatched point cloud.
const (
	PointPropertiesAttributes = "attributes"
	PointPropertiesTable      = "table"
)

// DefaultClassName is the name of the class created for a batch table.
const DefaultClassName = "tile"

// Options configures a Migrator.
type Options struct {
	// PointPropertiesAs selects how per-point properties of a point cloud
	// without BATCH_ID are stored: as property attributes, or as a property
	// table with one feature per point.
	PointPropertiesAs string `toml:"point_properties_as" yaml:"point_properties_as"`
	// ClassName is the name of the class created for each batch table.
	ClassName string `toml:"class_name" yaml:"class_name"`
	// SchemaSuffix, when not empty, replaces the random suffix of the
	// identifiers of merged schemas.
	SchemaSuffix string `toml:"schema_suffix" yaml:"schema_suffix"`
	// Workers is the number of inner tiles of a composite that are migrated
	// concurrently.
	Workers int `toml:"workers" yaml:"workers"`
	// BaseDir is the directory against which relative glTF URIs of instanced
	// meshes are resolved when ResolveURI is nil.
	BaseDir string `toml:"base_dir" yaml:"base_dir"`

	// ResolveURI returns the content of an external glTF referred to by an
	// instanced mesh.
	ResolveURI func(uri string) ([]byte, error) `toml:"-" yaml:"-"`
	// Draco decodes compressed point cloud attributes.
	Draco DracoDecoder `toml:"-" yaml:"-"`
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	var o Options
	o.applyDefaults()
	return o
}

func (o *Options) applyDefaults() {
	if o.PointPropertiesAs == "" {
		o.PointPropertiesAs = PointPropertiesAttributes
	}
	if o.ClassName == "" {
		o.ClassName = DefaultClassName
	}
	if o.Workers == 0 {
		o.Workers = defaultWorkers()
	}
	if o.ResolveURI == nil && o.BaseDir != "" {
		o.ResolveURI = DirResolver(o.BaseDir)
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	switch o.PointPropertiesAs {
	case PointPropertiesAttributes, PointPropertiesTable:
	default:
		return fmt.Errorf("point_properties_as must be one of: %s, %s", PointPropertiesAttributes, PointPropertiesTable)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if o.ClassName == "" {
		return fmt.Errorf("class_name must not be empty")
	}
	return nil
}

// LoadOptions reads options from a TOML or YAML file, selected by its
// extension. Unknown keys are an error. Defaults are applied to keys that the
// file leaves unset.
func LoadOptions(path string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &opts)
		if err != nil {
			return opts, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return opts, fmt.Errorf("unknown options: %s", strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&opts); err != nil && err != io.EOF {
			return opts, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return opts, fmt.Errorf("unsupported options file extension %q", ext)
	}

	if opts.BaseDir != "" && !filepath.IsAbs(opts.BaseDir) {
		opts.BaseDir = filepath.Join(filepath.Dir(path), opts.BaseDir)
	}
	opts.applyDefaults()
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// DirResolver returns a URI resolver that reads relative URIs from files
// under dir.
func DirResolver(dir string) func(string) ([]byte, error) {
	return func(uri string) ([]byte, error) {
		if strings.Contains(uri, "://") {
			return nil, fmt.Errorf("cannot resolve URI %q", uri)
		}
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(uri)))
	}
}
