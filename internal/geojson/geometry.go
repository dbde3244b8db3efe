// Package geojson streams Features out of a GeoJSON FeatureCollection.
//
// Only Point, LineString and Polygon geometries are decoded. Top-level members
// other than "type" and "features" (such as "crs") are skipped unread.
package geojson

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geostream/internal/jsoncursor"
)

// SRID is the spatial reference of every decoded geometry (WGS 84 lon/lat).
const SRID = 4326

// Geometry type names as they appear in the "type" member.
const (
	TypePoint      = "Point"
	TypeLineString = "LineString"
	TypePolygon    = "Polygon"
)

// Position is a longitude/latitude pair in degrees.
type Position struct {
	Lon float64
	Lat float64
}

// Geometry is one of Point, LineString or Polygon.
type Geometry interface {
	// Type returns the GeoJSON type name.
	Type() string
	// ToGeom converts the geometry to a go-geom value with SRID 4326.
	ToGeom() geom.T
	// Bounds returns the bounding box of the geometry.
	Bounds() *geom.Bounds

	isGeometry()
}

// Point is a single position.
type Point struct {
	Coord Position
}

// LineString is an ordered sequence of two or more positions.
type LineString struct {
	Coords []Position
}

// Polygon is a list of closed rings. Rings[0] is the exterior boundary, any
// further rings are holes.
type Polygon struct {
	Rings [][]Position
}

func (Point) isGeometry()      {}
func (LineString) isGeometry() {}
func (Polygon) isGeometry()    {}

func (Point) Type() string      { return TypePoint }
func (LineString) Type() string { return TypeLineString }
func (Polygon) Type() string    { return TypePolygon }

func (p Point) ToGeom() geom.T {
	return geom.NewPointFlat(geom.XY, []float64{p.Coord.Lon, p.Coord.Lat}).SetSRID(SRID)
}

func (l LineString) ToGeom() geom.T {
	return geom.NewLineStringFlat(geom.XY, flatCoords(l.Coords)).SetSRID(SRID)
}

func (p Polygon) ToGeom() geom.T {
	var flat []float64
	ends := make([]int, 0, len(p.Rings))
	for _, ring := range p.Rings {
		flat = append(flat, flatCoords(ring)...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(SRID)
}

func (p Point) Bounds() *geom.Bounds      { return p.ToGeom().Bounds() }
func (l LineString) Bounds() *geom.Bounds { return l.ToGeom().Bounds() }
func (p Polygon) Bounds() *geom.Bounds    { return p.ToGeom().Bounds() }

// Properties is the property bag of a Feature, in document order.
type Properties = jsoncursor.Object

// Record is one decoded Feature.
type Record struct {
	// ID is the Feature "id" member rendered as text, empty when absent.
	ID         string
	Geometry   Geometry
	Properties *Properties
}

// flatCoords converts positions to flat lon/lat pairs for go-geom.
func flatCoords(coords []Position) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.Lon, c.Lat)
	}
	return flat
}
