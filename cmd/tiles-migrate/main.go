// The tiles-migrate command converts a legacy tile payload to a GLB.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/migrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const long = `Reads a pnts, b3dm, i3dm, or cmpt payload from INPUT, and writes to OUTPUT
a GLB carrying the metadata of the payload as structural metadata.

INPUT and OUTPUT are paths to files. If INPUT is "-" or unspecified, then stdin
is used. If OUTPUT is "-" or unspecified, then stdout is used. Warnings and
errors are written to stderr.`

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "tiles-migrate [INPUT] [OUTPUT]",
	Short:        "Convert a legacy tile payload to glTF",
	Long:         long,
	Args:         cobra.MaximumNArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML or YAML options file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each migration stage")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	opts := migrate.DefaultOptions()
	if configPath != "" {
		if opts, err = migrate.LoadOptions(configPath); err != nil {
			return err
		}
	}

	var input io.Reader = os.Stdin
	if len(args) >= 1 && args[0] != "-" {
		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer in.Close()
		input = in
		// External glTFs of an instanced mesh are relative to the payload.
		if opts.ResolveURI == nil {
			opts.ResolveURI = migrate.DirResolver(filepath.Dir(args[0]))
		}
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	m, err := migrate.New(opts, logger)
	if err != nil {
		return err
	}
	doc, _, err := m.Migrate(context.Background(), data)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	glb, err := gltfdoc.EncodeBinary(doc)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var output io.Writer = os.Stdout
	if len(args) >= 2 && args[1] != "-" {
		out, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer out.Close()
		defer func() {
			if err := out.Sync(); err != nil {
				logger.Error("sync output", zap.Error(err))
			}
		}()
		output = out
	}
	if _, err := output.Write(glb); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
