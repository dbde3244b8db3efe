package geojson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

var samplePolygon = Polygon{Rings: [][]Position{
	{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
	{{2, 2}, {3, 2}, {3, 3}, {2, 2}},
}}

func TestEncodeEWKB(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
	}{
		{name: "point", g: Point{Coord: Position{Lon: -97.5, Lat: 30.25}}},
		{name: "line string", g: LineString{Coords: []Position{{0, 0}, {1, 1}}}},
		{name: "polygon", g: samplePolygon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEWKB(tt.g)
			require.NoError(t, err)

			decoded, err := ewkb.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, SRID, decoded.SRID())
			assert.Equal(t, tt.g.ToGeom().FlatCoords(), decoded.FlatCoords())
			assert.Equal(t, tt.g.ToGeom().Ends(), decoded.Ends())
		})
	}
}

func TestEncodeWKB(t *testing.T) {
	data, err := EncodeWKB(samplePolygon)
	require.NoError(t, err)

	decoded, err := wkb.Unmarshal(data)
	require.NoError(t, err)
	poly, ok := decoded.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, poly.NumLinearRings())
	assert.Equal(t, []float64{2, 2}, []float64(poly.LinearRing(1).Coord(0)))
}

func TestToGeom(t *testing.T) {
	p := Point{Coord: Position{Lon: 1.5, Lat: -2.5}}.ToGeom()
	assert.Equal(t, geom.XY, p.Layout())
	assert.Equal(t, []float64{1.5, -2.5}, p.FlatCoords())
	assert.Equal(t, SRID, p.SRID())

	poly := samplePolygon.ToGeom()
	assert.Equal(t, []int{10, 18}, poly.Ends())
}

func TestBounds(t *testing.T) {
	b := LineString{Coords: []Position{{-5, 3}, {7, -1}, {2, 9}}}.Bounds()
	assert.Equal(t, -5.0, b.Min(0))
	assert.Equal(t, -1.0, b.Min(1))
	assert.Equal(t, 7.0, b.Max(0))
	assert.Equal(t, 9.0, b.Max(1))

	pb := Point{Coord: Position{Lon: 4, Lat: 5}}.Bounds()
	assert.Equal(t, pb.Min(0), pb.Max(0))
}
