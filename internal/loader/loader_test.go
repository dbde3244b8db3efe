package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geostream/internal/geojson"
)

// memorySink keeps every call in memory.
type memorySink struct {
	mu       sync.Mutex
	begun    []string
	batches  [][]Row
	recorded []Stats
	loadErrs []error
	writeErr error
	failAt   int // batch number (1-based) that fails; 0 = never
}

func (m *memorySink) Prepare(context.Context) error { return nil }

func (m *memorySink) Encode(g geojson.Geometry) ([]byte, error) {
	return []byte(g.Type()), nil
}

func (m *memorySink) Begin(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun = append(m.begun, source)
	return nil
}

func (m *memorySink) Write(_ context.Context, rows []Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt > 0 && len(m.batches)+1 == m.failAt {
		return 0, m.writeErr
	}
	m.batches = append(m.batches, append([]Row(nil), rows...))
	return int64(len(rows)), nil
}

func (m *memorySink) RecordLoad(_ context.Context, stats Stats, loadErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, stats)
	m.loadErrs = append(m.loadErrs, loadErr)
	return nil
}

type trackingSource struct {
	io.Reader
	closes int
}

func (s *trackingSource) Close() error {
	s.closes++
	return nil
}

func featureDoc(n int) string {
	features := make([]string, n)
	for i := range n {
		features[i] = fmt.Sprintf(`{"type":"Feature","geometry":{"type":"Point","coordinates":[%d,%d]},"properties":{"n":%d}}`, i, -i, i)
	}
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func newReader(t *testing.T, doc string) (*geojson.Reader, *trackingSource) {
	t.Helper()
	src := &trackingSource{Reader: strings.NewReader(doc)}
	r, err := geojson.NewReader(src)
	require.NoError(t, err)
	return r, src
}

func TestLoad_Batches(t *testing.T) {
	r, src := newReader(t, featureDoc(7))
	sink := &memorySink{}

	stats, err := Load(context.Background(), r, sink, Options{Source: "parcels.geojson", BatchSize: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Records)
	assert.Equal(t, int64(7), stats.Written)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, "parcels.geojson", stats.Source)
	assert.NotEmpty(t, stats.LoadID)
	assert.Equal(t, 1, src.closes)

	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 3)
	assert.Len(t, sink.batches[2], 1)
	assert.Equal(t, []string{"parcels.geojson"}, sink.begun)

	first := sink.batches[0][0]
	assert.Equal(t, "#0", first.ID)
	assert.Equal(t, "parcels.geojson", first.Source)
	assert.Equal(t, geojson.TypePoint, first.GeomType)
	assert.Equal(t, []byte("Point"), first.Geometry)
	assert.JSONEq(t, `{"n":0}`, string(first.Properties))

	require.Len(t, sink.recorded, 1)
	assert.NoError(t, sink.loadErrs[0])
	assert.Equal(t, stats.LoadID, sink.recorded[0].LoadID)
}

func TestLoad_DefaultBatchSize(t *testing.T) {
	r, _ := newReader(t, featureDoc(10))
	sink := &memorySink{}

	stats, err := Load(context.Background(), r, sink, Options{Source: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Batches)
}

func TestLoad_EmptyCollection(t *testing.T) {
	r, src := newReader(t, featureDoc(0))
	sink := &memorySink{}

	stats, err := Load(context.Background(), r, sink, Options{Source: "empty"})
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.Zero(t, stats.Batches)
	assert.Empty(t, sink.batches)
	assert.Equal(t, 1, src.closes)
	assert.Len(t, sink.recorded, 1)
}

func TestLoad_FeatureIDAndBounds(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[` +
		`{"id":"lot-9","geometry":{"type":"LineString","coordinates":[[-3,1],[4,-2]]},"properties":{}}]}`
	r, _ := newReader(t, doc)
	sink := &memorySink{}

	_, err := Load(context.Background(), r, sink, Options{Source: "lines"})
	require.NoError(t, err)

	row := sink.batches[0][0]
	assert.Equal(t, "lot-9", row.ID)
	assert.Equal(t, [4]float64{-3, -2, 4, 1}, row.Bounds)
}

func TestLoad_ReaderErrorStopsLoad(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[` +
		`{"geometry":{"type":"Point","coordinates":[0,0]},"properties":{}},` +
		`{"geometry":{"type":"Point","coordinates":[0,0]},"properties":{}},` +
		`{"geometry":{"type":"Point","coordinates":[0,0]}}]}`
	r, src := newReader(t, doc)
	sink := &memorySink{}

	stats, err := Load(context.Background(), r, sink, Options{Source: "bad", BatchSize: 1})
	var mfe *geojson.MalformedFeatureError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, 2, mfe.Index)

	assert.Equal(t, int64(2), stats.Written, "earlier batches stay written")
	assert.Equal(t, 1, src.closes)
	require.Len(t, sink.loadErrs, 1)
	assert.Equal(t, err, sink.loadErrs[0])
}

func TestLoad_WriteError(t *testing.T) {
	r, src := newReader(t, featureDoc(5))
	sink := &memorySink{failAt: 2, writeErr: errors.New("disk full")}

	stats, err := Load(context.Background(), r, sink, Options{Source: "x", BatchSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "loader: write batch 1 of x")
	assert.Equal(t, int64(2), stats.Written)
	assert.Equal(t, 1, src.closes)
}

func TestLoad_ContextCancelled(t *testing.T) {
	r, src := newReader(t, featureDoc(3))
	sink := &memorySink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, r, sink, Options{Source: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.batches)
	assert.Equal(t, 1, src.closes)
	assert.Len(t, sink.recorded, 1)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAppend},
		{in: "append", want: ModeAppend},
		{in: "replace", want: ModeReplace},
		{in: "upsert", want: ModeUpsert},
		{in: "merge", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
