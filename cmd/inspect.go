package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geostream/internal/fetcher"
	"github.com/sells-group/geostream/internal/geojson"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <location>...",
	Short: "Summarise GeoJSON sources without loading them",
	Long:  "Streams every feature of each location and reports counts per geometry type, the property keys seen and the overall bounding box.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("inspect"); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")

		opts := fetchOptions(cfg.Fetch)
		summaries := make([]sourceSummary, 0, len(args))
		for _, location := range args {
			s, err := summarise(ctx, location, opts)
			if err != nil {
				return eris.Wrapf(err, "inspect %s", location)
			}
			summaries = append(summaries, s)
		}

		return writeSummaries(os.Stdout, format, summaries)
	},
}

func init() {
	inspectCmd.Flags().String("format", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(inspectCmd)
}

// sourceSummary describes one GeoJSON source.
type sourceSummary struct {
	Source        string           `json:"source" yaml:"source"`
	Features      int64            `json:"features" yaml:"features"`
	GeometryTypes map[string]int64 `json:"geometry_types" yaml:"geometry_types"`
	PropertyKeys  []string         `json:"property_keys" yaml:"property_keys"`
	// Bounds is [min_lon, min_lat, max_lon, max_lat], empty when there are no features.
	Bounds []float64 `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	extent *geom.Bounds
}

// summarise reads every record at location.
func summarise(ctx context.Context, location string, opts fetcher.Options) (sourceSummary, error) {
	r, err := geojson.Open(ctx, location, opts)
	if err != nil {
		return sourceSummary{}, err
	}
	s, err := summariseReader(ctx, location, r)
	if err != nil {
		return sourceSummary{}, err
	}
	zap.L().Debug("source inspected",
		zap.String("component", "inspect"),
		zap.String("source", location),
		zap.Int64("features", s.Features),
	)
	return s, nil
}

// summariseReader drains r, which is closed on return.
func summariseReader(ctx context.Context, source string, r *geojson.Reader) (sourceSummary, error) {
	defer r.Close() //nolint:errcheck

	s := sourceSummary{
		Source:        source,
		GeometryTypes: make(map[string]int64),
		PropertyKeys:  []string{},
	}
	seen := make(map[string]bool)

	for rec, err := range r.All() {
		if err != nil {
			return sourceSummary{}, err
		}
		if err := ctx.Err(); err != nil {
			return sourceSummary{}, err
		}

		s.Features++
		s.GeometryTypes[rec.Geometry.Type()]++
		for pair := rec.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if !seen[pair.Key] {
				seen[pair.Key] = true
				s.PropertyKeys = append(s.PropertyKeys, pair.Key)
			}
		}

		if s.extent == nil {
			s.extent = geom.NewBounds(geom.XY)
		}
		s.extent.Extend(rec.Geometry.ToGeom())
	}

	if s.extent != nil {
		s.Bounds = []float64{s.extent.Min(0), s.extent.Min(1), s.extent.Max(0), s.extent.Max(1)}
	}
	return s, nil
}

// writeSummaries renders summaries in the requested format.
func writeSummaries(out io.Writer, format string, summaries []sourceSummary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(summaries), "inspect: encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return eris.Wrap(err, "inspect: encode yaml")
		}
		return eris.Wrap(enc.Close(), "inspect: encode yaml")
	case "text", "":
		formatSummaries(out, summaries)
		return nil
	}
	return eris.Errorf("inspect: unknown format %q (want text, json or yaml)", format)
}

// formatSummaries writes a tabular representation of summaries to out.
func formatSummaries(out io.Writer, summaries []sourceSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tFEATURES\tTYPES\tKEYS\tBOUNDS")
	_, _ = fmt.Fprintln(w, "------\t--------\t-----\t----\t------")

	for _, s := range summaries {
		types := make([]string, 0, len(s.GeometryTypes))
		for t := range s.GeometryTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		typeList := ""
		for i, t := range types {
			if i > 0 {
				typeList += ","
			}
			typeList += fmt.Sprintf("%s=%d", t, s.GeometryTypes[t])
		}
		if typeList == "" {
			typeList = "-"
		}

		bounds := "-"
		if len(s.Bounds) == 4 {
			bounds = fmt.Sprintf("%g,%g,%g,%g", s.Bounds[0], s.Bounds[1], s.Bounds[2], s.Bounds[3])
		}

		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
			s.Source,
			s.Features,
			typeList,
			len(s.PropertyKeys),
			bounds,
		)
	}
	_ = w.Flush()
}
