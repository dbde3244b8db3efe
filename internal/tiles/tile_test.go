package tiles

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestTile_Name(t *testing.T) {
	assert.Equal(t, "10-163-395", Tile{Z: 10, X: 163, Y: 395}.Name())
}

func TestTile_BoundsZoomZero(t *testing.T) {
	b := Tile{}.Bounds()
	assert.Equal(t, -180.0, b.Min(0))
	assert.Equal(t, 180.0, b.Max(0))
	assert.InDelta(t, -85.0511287798, b.Min(1), 1e-9)
	assert.InDelta(t, 85.0511287798, b.Max(1), 1e-9)
}

func TestTile_BoundsQuadrants(t *testing.T) {
	nw := Tile{Z: 1, X: 0, Y: 0}.Bounds()
	assert.Equal(t, -180.0, nw.Min(0))
	assert.Equal(t, 0.0, nw.Max(0))
	assert.InDelta(t, 0, nw.Min(1), 1e-12)
	assert.InDelta(t, MaxLatitude, nw.Max(1), 1e-12)

	se := Tile{Z: 1, X: 1, Y: 1}.Bounds()
	assert.Equal(t, 0.0, se.Min(0))
	assert.Equal(t, 180.0, se.Max(0))
	assert.InDelta(t, -MaxLatitude, se.Min(1), 1e-12)
}

func TestAt(t *testing.T) {
	tests := []struct {
		name     string
		z        int
		lon, lat float64
		want     Tile
	}{
		{name: "origin zoom 0", z: 0, lon: 0, lat: 0, want: Tile{0, 0, 0}},
		{name: "austin", z: 10, lon: -97.7431, lat: 30.2672, want: Tile{10, 233, 421}},
		{name: "antimeridian clamps", z: 3, lon: 180, lat: 0, want: Tile{3, 7, 4}},
		{name: "north pole clamps", z: 2, lon: -180, lat: 90, want: Tile{2, 0, 0}},
		{name: "south pole clamps", z: 2, lon: 179.9, lat: -90, want: Tile{2, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, At(tt.z, tt.lon, tt.lat))
		})
	}
}

func TestAt_CenterRoundTrip(t *testing.T) {
	for z := range 12 {
		tile := Tile{Z: z, X: (1 << z) / 3, Y: (1 << z) * 2 / 3}
		b := tile.Bounds()
		center := At(z, (b.Min(0)+b.Max(0))/2, (b.Min(1)+b.Max(1))/2)
		assert.Equal(t, tile, center, "zoom %d", z)
	}
}

func TestAllTiles_World(t *testing.T) {
	for z := range 4 {
		got := slices.Collect(AllTiles(z, nil))
		want := int(math.Pow(4, float64(z)))
		assert.Len(t, got, want)
		assert.Equal(t, int64(want), Count(z, nil))
	}
}

func TestAllTiles_Order(t *testing.T) {
	got := slices.Collect(AllTiles(1, World))
	assert.Equal(t, []Tile{{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1}}, got)
}

func TestAllTiles_Bounded(t *testing.T) {
	// Strictly inside tile 2-1-1 (lon -90..0, lat 0..66.5).
	b := geom.NewBounds(geom.XY).Set(-60, 10, -30, 40)
	got := slices.Collect(AllTiles(2, b))
	assert.Equal(t, []Tile{{2, 1, 1}}, got)
	assert.Equal(t, int64(1), Count(2, b))
}

func TestAllTiles_ExtentOnTileEdges(t *testing.T) {
	// Exactly tile 1-0-0: lon -180..0, lat 0..max.
	b := Tile{Z: 1, X: 0, Y: 0}.Bounds()
	assert.Equal(t, []Tile{{1, 0, 0}}, slices.Collect(AllTiles(1, b)))
	assert.Equal(t, int64(1), Count(1, b))

	// A single point on a corner still yields the tile it falls in.
	p := geom.NewBounds(geom.XY).Set(0, 0, 0, 0)
	assert.Equal(t, []Tile{{1, 1, 1}}, slices.Collect(AllTiles(1, p)))
}

func TestAllTiles_EarlyStop(t *testing.T) {
	var n int
	for range AllTiles(5, nil) {
		n++
		if n == 10 {
			break
		}
	}
	require.Equal(t, 10, n)
}
