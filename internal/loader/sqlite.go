package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geostream/internal/geojson"
)

// SQLiteSink writes WKB geometries and JSON text properties to a SQLite file.
// The bounding box of each geometry is stored alongside for range filters.
type SQLiteSink struct {
	db     *sql.DB
	target Target
}

// NewSQLiteSink opens the database at dsn and configures WAL mode. The
// schema part of target is ignored.
func NewSQLiteSink(dsn string, target Target) (*SQLiteSink, error) {
	if target.Mode == "" {
		target.Mode = ModeAppend
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; concurrent loads queue on the pool.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteSink{db: db, target: target}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) table() string { return quoteSQLite(s.target.Table) }

// Prepare creates the feature table, its indexes and the load log.
func (s *SQLiteSink) Prepare(ctx context.Context) error {
	t := s.target.Table
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			feature_id TEXT NOT NULL,
			source     TEXT NOT NULL,
			geom_type  TEXT NOT NULL,
			geom       BLOB NOT NULL,
			properties TEXT NOT NULL DEFAULT '{}',
			min_x      REAL NOT NULL,
			min_y      REAL NOT NULL,
			max_x      REAL NOT NULL,
			max_y      REAL NOT NULL,
			loaded_at  DATETIME NOT NULL DEFAULT (datetime('now'))
		)`, s.table()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source)", quoteSQLite("idx_"+t+"_source"), s.table()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (min_x, max_x, min_y, max_y)", quoteSQLite("idx_"+t+"_bbox"), s.table()),
		`CREATE TABLE IF NOT EXISTS load_log (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			target      TEXT NOT NULL,
			status      TEXT NOT NULL,
			records     INTEGER NOT NULL DEFAULT 0,
			batches     INTEGER NOT NULL DEFAULT 0,
			started_at  DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error       TEXT
		)`,
	}
	if s.target.Mode == ModeUpsert {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (source, feature_id)",
			quoteSQLite("uq_"+t+"_source_feature"), s.table()))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: prepare %s", t)
		}
	}
	return nil
}

// Encode renders g as plain WKB; SQLite has no SRID column type.
func (s *SQLiteSink) Encode(g geojson.Geometry) ([]byte, error) {
	return geojson.EncodeWKB(g)
}

// Begin deletes the source's existing rows in replace mode.
func (s *SQLiteSink) Begin(ctx context.Context, source string) error {
	if s.target.Mode != ModeReplace {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE source = ?", s.table()), source); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s from %s", source, s.target.Table)
	}
	return nil
}

// Write inserts rows in a single transaction.
func (s *SQLiteSink) Write(ctx context.Context, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Source, r.GeomType, r.Geometry, string(r.Properties),
			r.Bounds[0], r.Bounds[1], r.Bounds[2], r.Bounds[3],
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert feature %s", r.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

func (s *SQLiteSink) insertSQL() string {
	q := fmt.Sprintf(`INSERT INTO %s (feature_id, source, geom_type, geom, properties, min_x, min_y, max_x, max_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table())
	if s.target.Mode == ModeUpsert {
		q += ` ON CONFLICT (source, feature_id) DO UPDATE SET
			geom_type = excluded.geom_type,
			geom = excluded.geom,
			properties = excluded.properties,
			min_x = excluded.min_x, min_y = excluded.min_y,
			max_x = excluded.max_x, max_y = excluded.max_y,
			loaded_at = datetime('now')`
	}
	return q
}

// RecordLoad inserts the outcome of a load into load_log.
func (s *SQLiteSink) RecordLoad(ctx context.Context, stats Stats, loadErr error) error {
	status, errText := loadStatus(loadErr)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO load_log (id, source, target, status, records, batches, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.LoadID, stats.Source, s.target.Table, status,
		stats.Written, stats.Batches, stats.Started, stats.Duration.Milliseconds(), errText,
	)
	return eris.Wrap(err, "sqlite: record load")
}

// History returns the most recent load_log entries, newest first.
func (s *SQLiteSink) History(ctx context.Context, limit int) ([]LoadEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, records, batches, started_at, duration_ms, COALESCE(error, '')
		FROM load_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query load history")
	}
	defer rows.Close() //nolint:errcheck

	var entries []LoadEntry
	for rows.Next() {
		var e LoadEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.Records, &e.Batches, &e.StartedAt, &e.DurationMs, &e.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan load history row")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate load history")
}

// CountFeatures returns the number of rows stored for source, or for every
// source when source is empty.
func (s *SQLiteSink) CountFeatures(ctx context.Context, source string) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table())
	var args []any
	if source != "" {
		q += " WHERE source = ?"
		args = append(args, source)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count features")
	}
	return n, nil
}

func quoteSQLite(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
