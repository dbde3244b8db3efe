// Package tiles enumerates Web Mercator slippy-map tiles and prints them as
// PostGIS SQL for sharding preparation.
package tiles

import (
	"fmt"
	"iter"
	"math"

	"github.com/twpayne/go-geom"
)

// MaxZoom is the deepest zoom level accepted.
const MaxZoom = 30

// MaxLatitude is the latitude limit of the Web Mercator projection.
var MaxLatitude = math.Atan(math.Sinh(math.Pi)) * 180 / math.Pi

// World covers every tile at any zoom.
var World = geom.NewBounds(geom.XY).Set(-180, -MaxLatitude, 180, MaxLatitude)

// Tile is a slippy-map tile; Y grows southwards from 0 at the top.
type Tile struct {
	Z int
	X int
	Y int
}

// Name returns "z-x-y".
func (t Tile) Name() string {
	return fmt.Sprintf("%d-%d-%d", t.Z, t.X, t.Y)
}

// Bounds returns the lon/lat extent of the tile.
func (t Tile) Bounds() *geom.Bounds {
	n := float64(int64(1) << t.Z)
	minLon := float64(t.X)/n*360 - 180
	maxLon := float64(t.X+1)/n*360 - 180
	maxLat := tileLat(float64(t.Y), n)
	minLat := tileLat(float64(t.Y+1), n)
	return geom.NewBounds(geom.XY).Set(minLon, minLat, maxLon, maxLat)
}

func tileLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// At returns the tile at zoom z containing lon/lat. Coordinates outside the
// projection are clamped to the edge tiles.
func At(z int, lon, lat float64) Tile {
	fx, fy := position(z, lon, lat)
	hi := (1 << z) - 1
	return Tile{Z: z, X: clamp(int(math.Floor(fx)), hi), Y: clamp(int(math.Floor(fy)), hi)}
}

// position returns the fractional tile coordinates of lon/lat at zoom z.
func position(z int, lon, lat float64) (fx, fy float64) {
	n := float64(int64(1) << z)
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	latRad := lat * math.Pi / 180

	fx = (lon + 180) / 360 * n
	fy = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return fx, fy
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// span returns the inclusive tile ranges covering b. The east and south
// edges are exclusive, so an extent ending on a tile boundary does not pull
// in the neighbouring column or row.
func span(zoom int, b *geom.Bounds) (minX, maxX, minY, maxY int) {
	topLeft := At(zoom, b.Min(0), b.Max(1))
	fx, fy := position(zoom, b.Max(0), b.Min(1))
	hi := (1 << zoom) - 1
	maxX = max(topLeft.X, clamp(int(math.Ceil(fx))-1, hi))
	maxY = max(topLeft.Y, clamp(int(math.Ceil(fy))-1, hi))
	return topLeft.X, maxX, topLeft.Y, maxY
}

// AllTiles yields every tile at zoom that intersects b, column by column.
// A nil b means World.
func AllTiles(zoom int, b *geom.Bounds) iter.Seq[Tile] {
	if b == nil {
		b = World
	}
	minX, maxX, minY, maxY := span(zoom, b)
	return func(yield func(Tile) bool) {
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				if !yield(Tile{Z: zoom, X: x, Y: y}) {
					return
				}
			}
		}
	}
}

// Count returns the number of tiles AllTiles would yield.
func Count(zoom int, b *geom.Bounds) int64 {
	if b == nil {
		b = World
	}
	minX, maxX, minY, maxY := span(zoom, b)
	return int64(maxX-minX+1) * int64(maxY-minY+1)
}
