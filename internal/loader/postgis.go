package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/db"
	"github.com/sells-group/geostream/internal/geojson"
)

var featureColumns = []string{"feature_id", "source", "geom_type", "geom", "properties"}

// Target names the destination table and how rows already in it are treated.
type Target struct {
	Schema string
	Table  string
	Mode   Mode
}

type ddl struct {
	name string
	sql  string
}

// LoadEntry is one row of the load_log table.
type LoadEntry struct {
	ID         string
	Source     string
	Status     string
	Records    int64
	Batches    int
	StartedAt  time.Time
	DurationMs int64
	Error      string
}

// Historian is implemented by sinks that keep a load log.
type Historian interface {
	History(ctx context.Context, limit int) ([]LoadEntry, error)
}

// PostGISSink writes EWKB geometries and jsonb properties to PostgreSQL with COPY.
type PostGISSink struct {
	pool   db.Pool
	target Target
}

// NewPostGISSink creates a sink for target backed by pool.
func NewPostGISSink(pool db.Pool, target Target) *PostGISSink {
	if target.Mode == "" {
		target.Mode = ModeAppend
	}
	return &PostGISSink{pool: pool, target: target}
}

func (s *PostGISSink) table() string { return db.QualifiedName(s.target.Schema, s.target.Table) }
func (s *PostGISSink) logTable() string {
	return db.QualifiedName(s.target.Schema, "load_log")
}

// Prepare creates the schema, the feature table with its indexes, and the load log.
func (s *PostGISSink) Prepare(ctx context.Context) error {
	log := zap.L().With(
		zap.String("component", "loader.postgis"),
		zap.String("table", s.target.Schema+"."+s.target.Table),
	)

	schema := pgx.Identifier{s.target.Schema}.Sanitize()
	stmts := []ddl{
		{"schema", fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)},
		{"table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			feature_id TEXT NOT NULL,
			source     TEXT NOT NULL,
			geom_type  TEXT NOT NULL,
			geom       geometry(Geometry, 4326) NOT NULL,
			properties JSONB NOT NULL DEFAULT '{}',
			loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table())},
		{"geom index", fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{"idx_" + s.target.Table + "_geom"}.Sanitize(), s.table())},
		{"source index", fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source)",
			pgx.Identifier{"idx_" + s.target.Table + "_source"}.Sanitize(), s.table())},
		{"load log", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			source      TEXT NOT NULL,
			target      TEXT NOT NULL,
			status      TEXT NOT NULL,
			records     BIGINT NOT NULL DEFAULT 0,
			batches     INTEGER NOT NULL DEFAULT 0,
			started_at  TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error       TEXT
		)`, s.logTable())},
	}
	if s.target.Mode == ModeUpsert {
		stmts = append(stmts, ddl{"upsert key", fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (source, feature_id)",
			pgx.Identifier{"uq_" + s.target.Table + "_source_feature"}.Sanitize(), s.table())})
	}

	for _, st := range stmts {
		if _, err := s.pool.Exec(ctx, st.sql); err != nil {
			return eris.Wrapf(err, "loader: create %s for %s.%s", st.name, s.target.Schema, s.target.Table)
		}
	}
	log.Debug("postgis target ready", zap.String("mode", string(s.target.Mode)))
	return nil
}

// Encode renders g as EWKB with SRID 4326.
func (s *PostGISSink) Encode(g geojson.Geometry) ([]byte, error) {
	return geojson.EncodeEWKB(g)
}

// Begin deletes the source's existing rows in replace mode.
func (s *PostGISSink) Begin(ctx context.Context, source string) error {
	if s.target.Mode != ModeReplace {
		return nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE source = $1", s.table()), source)
	if err != nil {
		return eris.Wrapf(err, "loader: clear %s from %s.%s", source, s.target.Schema, s.target.Table)
	}
	zap.L().Debug("cleared previous rows",
		zap.String("component", "loader.postgis"),
		zap.String("source", source),
		zap.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

// Write COPYs rows into the target, or merges them in upsert mode. In upsert
// mode a key repeated within the batch keeps its last row, as the SQLite sink
// does; one INSERT ... ON CONFLICT cannot touch the same row twice.
func (s *PostGISSink) Write(ctx context.Context, rows []Row) (int64, error) {
	if s.target.Mode == ModeUpsert {
		rows = lastPerKey(rows)
	}
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = []any{r.ID, r.Source, r.GeomType, r.Geometry, r.Properties}
	}

	if s.target.Mode == ModeUpsert {
		return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Schema:       s.target.Schema,
			Table:        s.target.Table,
			Columns:      featureColumns,
			ConflictKeys: []string{"source", "feature_id"},
		}, data)
	}
	return db.CopyFromSchema(ctx, s.pool, s.target.Schema, s.target.Table, featureColumns, data)
}

// RecordLoad inserts the outcome of a load into load_log.
func (s *PostGISSink) RecordLoad(ctx context.Context, stats Stats, loadErr error) error {
	status, errText := loadStatus(loadErr)
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, source, target, status, records, batches, started_at, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.logTable()),
		stats.LoadID, stats.Source, s.target.Schema+"."+s.target.Table, status,
		stats.Written, stats.Batches, stats.Started, stats.Duration.Milliseconds(), errText,
	)
	if err != nil {
		return eris.Wrap(err, "loader: record load")
	}
	return nil
}

// History returns the most recent load_log entries, newest first.
func (s *PostGISSink) History(ctx context.Context, limit int) ([]LoadEntry, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id::text, source, status, records, batches, started_at, duration_ms, COALESCE(error, '')
		FROM %s ORDER BY started_at DESC LIMIT $1`, s.logTable()),
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "loader: query load history")
	}
	defer rows.Close()

	var entries []LoadEntry
	for rows.Next() {
		var e LoadEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.Records, &e.Batches, &e.StartedAt, &e.DurationMs, &e.Error); err != nil {
			return nil, eris.Wrap(err, "loader: scan load history row")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lastPerKey drops every row whose (source, feature id) appears again later
// in rows. Surviving rows keep their relative order.
func lastPerKey(rows []Row) []Row {
	type key struct{ source, id string }
	last := make(map[key]int, len(rows))
	for i, r := range rows {
		last[key{r.Source, r.ID}] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]Row, 0, len(last))
	for i, r := range rows {
		if last[key{r.Source, r.ID}] == i {
			out = append(out, r)
		}
	}
	return out
}

func loadStatus(loadErr error) (status, errText string) {
	if loadErr == nil {
		return "complete", ""
	}
	return "failed", loadErr.Error()
}
