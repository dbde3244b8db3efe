// Package loader streams GeoJSON records into a spatial store in batches.
package loader

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/geojson"
)

const defaultBatchSize = 5000

// Mode controls how a load treats rows already present for the same source.
type Mode string

const (
	ModeAppend  Mode = "append"
	ModeReplace Mode = "replace" // delete the source's rows first
	ModeUpsert  Mode = "upsert"  // merge on (source, feature_id)
)

// ParseMode validates a mode name. Empty selects ModeAppend.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace, ModeUpsert:
		return Mode(s), nil
	}
	return "", eris.Errorf("loader: unknown mode %q (want append, replace or upsert)", s)
}

// Row is one encoded record ready for a sink.
type Row struct {
	Source     string
	ID         string // feature id, or "#<ordinal>" when the feature has none
	GeomType   string
	Geometry   []byte // encoded by the sink's Encode
	Properties []byte // JSON object text
	Bounds     [4]float64
}

// Sink is a destination for Rows. Prepare is called once before any load;
// Begin, Write and RecordLoad are called per source and must be safe for
// concurrent use across sources.
type Sink interface {
	Prepare(ctx context.Context) error
	Encode(g geojson.Geometry) ([]byte, error)
	Begin(ctx context.Context, source string) error
	Write(ctx context.Context, rows []Row) (int64, error)
	RecordLoad(ctx context.Context, stats Stats, loadErr error) error
}

// Options configures a single Load.
type Options struct {
	Source    string // label stored with every row, usually the location
	BatchSize int    // rows per Write (default 5,000)
}

// Stats summarises one Load.
type Stats struct {
	LoadID   string
	Source   string
	Records  int64
	Written  int64
	Batches  int
	Started  time.Time
	Duration time.Duration
}

// Load drains r into sink. The reader is always closed. A reader error ends
// the load; batches already written stay written. The outcome is recorded
// through sink.RecordLoad whether or not the load succeeded.
func Load(ctx context.Context, r *geojson.Reader, sink Sink, opts Options) (stats Stats, err error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	stats = Stats{
		LoadID:  uuid.New().String(),
		Source:  opts.Source,
		Started: time.Now().UTC(),
	}

	log := zap.L().With(
		zap.String("component", "loader"),
		zap.String("source", opts.Source),
		zap.String("load_id", stats.LoadID),
	)

	defer r.Close() //nolint:errcheck
	defer func() {
		stats.Duration = time.Since(stats.Started)
		if recErr := sink.RecordLoad(context.WithoutCancel(ctx), stats, err); recErr != nil {
			log.Warn("failed to record load", zap.Error(recErr))
		}
	}()

	if err = sink.Begin(ctx, opts.Source); err != nil {
		return stats, err
	}

	batch := make([]Row, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := sink.Write(ctx, batch)
		if err != nil {
			return eris.Wrapf(err, "loader: write batch %d of %s", stats.Batches, opts.Source)
		}
		stats.Written += n
		stats.Batches++
		log.Debug("batch written",
			zap.Int("batch", stats.Batches),
			zap.Int64("rows", n),
			zap.Int64("records", stats.Records),
		)
		batch = batch[:0]
		return nil
	}

	for rec, readErr := range r.All() {
		if readErr != nil {
			err = readErr
			return stats, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return stats, err
		}

		row, encErr := toRow(sink, opts.Source, stats.Records, rec)
		if encErr != nil {
			err = encErr
			return stats, err
		}
		batch = append(batch, row)
		stats.Records++

		if len(batch) >= opts.BatchSize {
			if err = flush(); err != nil {
				return stats, err
			}
		}
	}
	if err = flush(); err != nil {
		return stats, err
	}

	log.Info("source loaded",
		zap.Int64("records", stats.Records),
		zap.Int64("written", stats.Written),
		zap.Int("batches", stats.Batches),
		zap.Duration("duration", time.Since(stats.Started)),
	)
	return stats, nil
}

func toRow(sink Sink, source string, ordinal int64, rec geojson.Record) (Row, error) {
	geomBytes, err := sink.Encode(rec.Geometry)
	if err != nil {
		return Row{}, err
	}
	props, err := geojson.MarshalProperties(rec.Properties)
	if err != nil {
		return Row{}, err
	}

	id := rec.ID
	if id == "" {
		id = "#" + strconv.FormatInt(ordinal, 10)
	}

	b := rec.Geometry.Bounds()
	return Row{
		Source:     source,
		ID:         id,
		GeomType:   rec.Geometry.Type(),
		Geometry:   geomBytes,
		Properties: props,
		Bounds:     [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)},
	}, nil
}
