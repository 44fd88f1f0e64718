// The tiles-stat command displays stats for a legacy tile payload.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/psc3k/tiles/schema"
	"github.com/psc3k/tiles/tile"
	"github.com/spf13/cobra"
)

const long = `Reads a pnts, b3dm, i3dm, or cmpt payload from INPUT, and writes to OUTPUT
statistics for the payload, including the schema inferred from its batch
table.

INPUT and OUTPUT are paths to files. If INPUT is "-" or unspecified, then stdin
is used. If OUTPUT is "-" or unspecified, then stdout is used. Warnings and
errors are written to stderr.`

var rootCmd = &cobra.Command{
	Use:          "tiles-stat [INPUT] [OUTPUT]",
	Short:        "Display stats for a legacy tile payload",
	Long:         long,
	Args:         cobra.MaximumNArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type Stats struct {
	Format  string
	Version uint32 `json:",omitempty"`

	// Length of each part of the payload.
	FeatureTableJSON   int `json:",omitempty"`
	FeatureTableBinary int `json:",omitempty"`
	BatchTableJSON     int `json:",omitempty"`
	BatchTableBinary   int `json:",omitempty"`
	Body               int `json:",omitempty"`

	// URI of the glTF of an instanced mesh.
	GLTFURI string `json:",omitempty"`

	// Feature table semantics, in declaration order.
	Semantics []string `json:",omitempty"`

	// Schema inferred from the batch table.
	Schema *schema.Schema `json:",omitempty"`

	// Errors in inferring the schema.
	SchemaError string `json:",omitempty"`

	// Stats of the inner tiles of a composite.
	Tiles []*Stats `json:",omitempty"`
}

func (s *Stats) Fill(t *tile.Tile) {
	if t == nil {
		return
	}
	s.Format = t.Format.String()
	s.Version = t.Version
	s.FeatureTableJSON = len(t.FeatureTableJSON)
	s.FeatureTableBinary = len(t.FeatureTableBinary)
	s.BatchTableJSON = len(t.BatchTableJSON)
	s.BatchTableBinary = len(t.BatchTableBinary)
	if t.Format == tile.FormatI3DM && t.GLTFFormat == tile.GLTFURI {
		s.GLTFURI = string(t.Body)
	} else {
		s.Body = len(t.Body)
	}
	s.Semantics = t.FeatureTable.Names()

	if t.BatchTable != nil {
		sc, err := schema.CreateSchema("tile", t.BatchTable)
		if err != nil {
			s.SchemaError = err.Error()
		}
		s.Schema = sc
	}

	for _, it := range t.Tiles {
		var is Stats
		is.Fill(it)
		s.Tiles = append(s.Tiles, &is)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var input io.Reader = os.Stdin
	var output io.Writer = os.Stdout

	if len(args) >= 1 && args[0] != "-" {
		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer in.Close()
		input = in
	}
	if len(args) >= 2 && args[1] != "-" {
		out, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer out.Close()
		defer func() {
			if err := out.Sync(); err != nil {
				fmt.Fprintln(os.Stderr, fmt.Errorf("sync output: %w", err))
			}
		}()
		output = out
	}

	data, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	t, warn, err := tile.Parse(data)
	if warn != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("decode warning: %w", warn))
	}
	if err != nil {
		return fmt.Errorf("decode error: %w", err)
	}

	var stats Stats
	stats.Fill(t)

	je := json.NewEncoder(output)
	je.SetEscapeHTML(false)
	je.SetIndent("", "\t")
	if err := je.Encode(stats); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}
