package tiles

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// DefaultMaxPerFile caps the tile rows written to one INSERT file.
const DefaultMaxPerFile = 4_000_000

// CountSource is a table and geometry column counted per tile by the
// generated countForTiles() function.
type CountSource struct {
	Table  string
	Column string
}

// DefaultCountSources counts OSM ways and nodes, as imported by osmosis.
var DefaultCountSources = []CountSource{
	{Table: "public.ways", Column: "linestring"},
	{Table: "public.nodes", Column: "geom"},
}

// ParseCountSource parses "schema.table:column".
func ParseCountSource(s string) (CountSource, error) {
	table, column, ok := strings.Cut(s, ":")
	if !ok || table == "" || column == "" {
		return CountSource{}, eris.Errorf("tiles: count source %q is not table:column", s)
	}
	return CountSource{Table: table, Column: column}, nil
}

// Printer writes the SQL files that load every tile at Zoom into
// sharding.tiles and define countForTiles(), which fills sharding.counts.
type Printer struct {
	Dir        string
	Zoom       int
	User       string // owner of the sharding tables
	MaxPerFile int    // default DefaultMaxPerFile
	Bounds     *geom.Bounds
	Counts     []CountSource // default DefaultCountSources

	index int
	files []string
}

// Print writes tiles-<zoom>_<n>.sql files into Dir and returns their paths in
// execution order: the DDL file, one or more INSERT files, then the function.
func (p *Printer) Print(ctx context.Context) ([]string, error) {
	if p.Zoom < 0 || p.Zoom > MaxZoom {
		return nil, eris.Errorf("tiles: zoom %d out of range 0..%d", p.Zoom, MaxZoom)
	}
	if p.User == "" {
		return nil, eris.New("tiles: no table owner given")
	}
	if p.MaxPerFile <= 0 {
		p.MaxPerFile = DefaultMaxPerFile
	}
	if len(p.Counts) == 0 {
		p.Counts = DefaultCountSources
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "tiles: create %s", p.Dir)
	}
	p.index = 0
	p.files = nil

	log := zap.L().With(
		zap.String("component", "tiles.printer"),
		zap.Int("zoom", p.Zoom),
		zap.Int64("tiles", Count(p.Zoom, p.Bounds)),
	)
	log.Info("printing tiles")

	if err := p.writeFile(p.writeSchema); err != nil {
		return p.files, err
	}

	next, stop := iter.Pull(AllTiles(p.Zoom, p.Bounds))
	defer stop()
	tile, ok := next()
	for ok {
		if err := ctx.Err(); err != nil {
			return p.files, err
		}
		err := p.writeFile(func(w *bufio.Writer) error {
			if _, err := w.WriteString("INSERT INTO sharding.tiles(tile, bounds) VALUES\n"); err != nil {
				return err
			}
			for n := 0; ok && n < p.MaxPerFile; n++ {
				if n > 0 {
					if _, err := w.WriteString(",\n"); err != nil {
						return err
					}
				}
				if _, err := w.WriteString(tileRow(tile)); err != nil {
					return err
				}
				tile, ok = next()
			}
			_, err := w.WriteString(";\n")
			return err
		})
		if err != nil {
			return p.files, err
		}
	}

	if err := p.writeFile(p.writeCountFunction); err != nil {
		return p.files, err
	}
	log.Info("tiles printed", zap.Int("files", len(p.files)))
	return p.files, nil
}

// writeFile creates the next numbered file and fills it with body.
func (p *Printer) writeFile(body func(*bufio.Writer) error) error {
	path := filepath.Join(p.Dir, fmt.Sprintf("tiles-%d_%d.sql", p.Zoom, p.index))
	p.index++
	zap.L().Debug("generating file", zap.String("component", "tiles.printer"), zap.String("path", path))

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tiles: create %s", path)
	}
	w := bufio.NewWriter(f)
	if err := body(w); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "tiles: write %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "tiles: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "tiles: close %s", path)
	}
	p.files = append(p.files, path)
	return nil
}

func (p *Printer) writeSchema(w *bufio.Writer) error {
	owner := pgx.Identifier{p.User}.Sanitize()
	lines := []string{
		"CREATE SCHEMA IF NOT EXISTS sharding AUTHORIZATION " + owner + ";",
		"DROP TABLE IF EXISTS sharding.tiles;",
		"CREATE TABLE sharding.tiles(tile text, bounds geometry);",
		"ALTER TABLE sharding.tiles OWNER TO " + owner + ";",
		"DROP TABLE IF EXISTS sharding.counts;",
		"CREATE TABLE sharding.counts(tile text, count integer);",
		"ALTER TABLE sharding.counts OWNER TO " + owner + ";",
	}
	return writeLines(w, lines)
}

func (p *Printer) writeCountFunction(w *bufio.Writer) error {
	lines := []string{
		"CREATE OR REPLACE FUNCTION countForTiles() RETURNS void AS $$",
		"DECLARE",
		"s_tile text;",
		"s_bounds geometry;",
		"s_total integer;",
		"s_count integer;",
		"BEGIN",
		"    FOR s_tile, s_bounds IN SELECT tile, bounds FROM sharding.tiles",
		"    LOOP",
		"        s_total := 0;",
	}
	for _, c := range p.Counts {
		lines = append(lines,
			fmt.Sprintf("        SELECT count(*) INTO s_count FROM %s WHERE ST_Intersects(s_bounds, %s);", c.Table, c.Column),
			"        s_total := s_total + s_count;",
		)
	}
	lines = append(lines,
		"        INSERT INTO sharding.counts(tile, count) VALUES (s_tile, s_total);",
		"    END LOOP;",
		"    RETURN;",
		"END",
		"$$ LANGUAGE plpgsql;",
	)
	return writeLines(w, lines)
}

func writeLines(w *bufio.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// tileRow renders one VALUES tuple.
func tileRow(t Tile) string {
	b := t.Bounds()
	return fmt.Sprintf("('%s', ST_MakeEnvelope(%s,%s,%s,%s,4326))",
		t.Name(), formatDegrees(b.Min(0)), formatDegrees(b.Min(1)), formatDegrees(b.Max(0)), formatDegrees(b.Max(1)))
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
