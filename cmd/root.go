package main

import (
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "geostream",
	Short:   "Streaming GeoJSON reader and loader",
	Long:    "Reads GeoJSON FeatureCollections one feature at a time from files, HTTP or FTP, loads them into PostGIS or SQLite, and prints slippy-tile sharding SQL.",
	Version: versioninfo.Short(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
