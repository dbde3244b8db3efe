package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/config"
	"github.com/sells-group/geostream/internal/runscript"
	"github.com/sells-group/geostream/internal/tiles"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Write slippy-tile sharding SQL",
	Long:  "Writes SQL files that create sharding.tiles and sharding.counts, insert every tile at the given zoom and define countForTiles(). With --exec the files are run through psql in order.",
	RunE:  runTiles,
}

func init() {
	tilesCmd.Flags().Int("zoom", -1, "tile zoom level (default from tiles.zoom)")
	tilesCmd.Flags().String("out", "", "output directory (default from tiles.output_dir)")
	tilesCmd.Flags().String("user", "", "owner of the sharding tables (default from tiles.user)")
	tilesCmd.Flags().String("from", "", "limit tiles to the bounding box of this GeoJSON location")
	tilesCmd.Flags().StringSlice("count", nil, "table:column to count per tile (repeatable)")
	tilesCmd.Flags().Bool("exec", false, "run the generated files with psql")
	rootCmd.AddCommand(tilesCmd)
}

func runTiles(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if zoom, _ := cmd.Flags().GetInt("zoom"); zoom >= 0 {
		cfg.Tiles.Zoom = zoom
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Tiles.OutputDir = out
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Tiles.User = user
	}
	if counts, _ := cmd.Flags().GetStringSlice("count"); len(counts) > 0 {
		cfg.Tiles.CountSources = counts
	}
	if err := cfg.Validate("tiles"); err != nil {
		return err
	}

	printer, err := newPrinter(cfg.Tiles)
	if err != nil {
		return err
	}

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		printer.Bounds, err = sourceBounds(ctx, from)
		if err != nil {
			return err
		}
	}

	files, err := printer.Print(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}

	if exec, _ := cmd.Flags().GetBool("exec"); exec {
		return execFiles(ctx, cfg.Tiles.PsqlPath, cfg.Store.DatabaseURL, files)
	}
	return nil
}

// newPrinter builds a Printer from the tiles config section.
func newPrinter(tc config.TilesConfig) (*tiles.Printer, error) {
	counts := make([]tiles.CountSource, 0, len(tc.CountSources))
	for _, s := range tc.CountSources {
		cs, err := tiles.ParseCountSource(s)
		if err != nil {
			return nil, err
		}
		counts = append(counts, cs)
	}
	return &tiles.Printer{
		Dir:        tc.OutputDir,
		Zoom:       tc.Zoom,
		User:       tc.User,
		MaxPerFile: tc.MaxPerFile,
		Counts:     counts,
	}, nil
}

// sourceBounds streams location and returns the extent of its features.
func sourceBounds(ctx context.Context, location string) (*geom.Bounds, error) {
	s, err := summarise(ctx, location, fetchOptions(cfg.Fetch))
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: read bounds from %s", location)
	}
	if s.extent == nil {
		return nil, eris.Errorf("tiles: %s has no features", location)
	}
	return s.extent, nil
}

// execFiles runs each file through psql, stopping at the first failure. The
// psql command may carry its own arguments, e.g. "psql -h db -U osm".
func execFiles(ctx context.Context, psql, dsn string, files []string) error {
	log := zap.L().With(zap.String("component", "tiles.exec"))
	for _, f := range files {
		log.Info("executing", zap.String("file", f))
		if err := runscript.RunCommand(ctx, psql, psqlArgs(dsn, f)); err != nil {
			return eris.Wrapf(err, "tiles: execute %s", f)
		}
	}
	return nil
}

// psqlArgs builds the psql argument list for one file. An empty dsn leaves
// the connection to the PG* environment variables.
func psqlArgs(dsn, file string) []string {
	args := []string{"-v", "ON_ERROR_STOP=1", "-q", "-f", file}
	if dsn != "" {
		args = append([]string{"-d", dsn}, args...)
	}
	return args
}
