package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sells-group/geostream/internal/jsoncursor"
)

const minRingPositions = 4

// decodeGeometry reads one geometry object. Member order is not significant:
// "coordinates" is captured generically and converted once "type" is known.
func decodeGeometry(c *jsoncursor.Cursor, index int) (Geometry, error) {
	kind, err := c.Peek()
	if err != nil {
		return nil, err
	}
	if kind != jsoncursor.BeginObject {
		return nil, &MalformedGeometryError{Index: index, Reason: "geometry is a " + kind.String() + ", not an object"}
	}
	if err := c.BeginObject(); err != nil {
		return nil, err
	}

	var (
		typ       string
		hasType   bool
		coords    any
		hasCoords bool
	)
	for {
		more, err := c.More()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		name, err := c.NextName()
		if err != nil {
			return nil, err
		}
		switch name {
		case "type":
			kind, err := c.Peek()
			if err != nil {
				return nil, err
			}
			if kind != jsoncursor.String {
				return nil, &MalformedGeometryError{Index: index, Reason: "type is not a string"}
			}
			if typ, err = c.ReadString(); err != nil {
				return nil, err
			}
			hasType = true
		case "coordinates":
			if coords, err = c.Capture(); err != nil {
				return nil, err
			}
			hasCoords = true
		default:
			if err := c.Skip(); err != nil {
				return nil, err
			}
		}
	}
	if err := c.EndObject(); err != nil {
		return nil, err
	}

	if !hasType {
		return nil, &MalformedGeometryError{Index: index, Reason: "missing type"}
	}
	g, reason := buildGeometry(typ, coords, hasCoords)
	if reason != "" {
		return nil, &MalformedGeometryError{Index: index, Type: typ, Reason: reason}
	}
	return g, nil
}

// buildGeometry maps a type name and its captured coordinates to a variant.
// A non-empty reason means the pair was rejected.
func buildGeometry(typ string, coords any, hasCoords bool) (Geometry, string) {
	switch typ {
	case TypePoint, TypeLineString, TypePolygon:
	default:
		return nil, "unsupported geometry type"
	}
	if !hasCoords {
		return nil, "missing coordinates"
	}

	switch typ {
	case TypePoint:
		p, reason := toPosition(coords)
		if reason != "" {
			return nil, reason
		}
		return Point{Coord: p}, ""

	case TypeLineString:
		ps, reason := toPositions(coords)
		if reason != "" {
			return nil, reason
		}
		if len(ps) < 2 {
			return nil, fmt.Sprintf("line string has %d positions, need at least 2", len(ps))
		}
		return LineString{Coords: ps}, ""

	default:
		arr, ok := coords.([]any)
		if !ok {
			return nil, "coordinates is not an array of rings"
		}
		if len(arr) == 0 {
			return nil, "polygon has no rings"
		}
		rings := make([][]Position, 0, len(arr))
		for i, raw := range arr {
			ring, reason := toPositions(raw)
			if reason != "" {
				return nil, fmt.Sprintf("ring %d: %s", i, reason)
			}
			if len(ring) < minRingPositions {
				return nil, fmt.Sprintf("ring %d has %d positions, need at least %d", i, len(ring), minRingPositions)
			}
			if ring[0] != ring[len(ring)-1] {
				return nil, fmt.Sprintf("ring %d is not closed", i)
			}
			rings = append(rings, ring)
		}
		return Polygon{Rings: rings}, ""
	}
}

func toPositions(v any) ([]Position, string) {
	arr, ok := v.([]any)
	if !ok {
		return nil, "coordinates is not an array of positions"
	}
	out := make([]Position, 0, len(arr))
	for i, raw := range arr {
		p, reason := toPosition(raw)
		if reason != "" {
			return nil, fmt.Sprintf("position %d: %s", i, reason)
		}
		out = append(out, p)
	}
	return out, ""
}

// toPosition accepts [lon, lat] or [lon, lat, alt]; altitude is dropped.
func toPosition(v any) (Position, string) {
	arr, ok := v.([]any)
	if !ok {
		return Position{}, "position is not an array"
	}
	if len(arr) < 2 || len(arr) > 3 {
		return Position{}, fmt.Sprintf("position has %d elements, want 2 or 3", len(arr))
	}
	var vals [3]float64
	for i, raw := range arr {
		n, ok := raw.(json.Number)
		if !ok {
			return Position{}, "position element is not a number"
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return Position{}, "position element is out of range"
		}
		vals[i] = f
	}
	return Position{Lon: vals[0], Lat: vals[1]}, ""
}
