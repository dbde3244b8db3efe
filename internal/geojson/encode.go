package geojson

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// EncodeEWKB encodes g as little-endian EWKB carrying SRID 4326.
func EncodeEWKB(g Geometry) ([]byte, error) {
	data, err := ewkb.Marshal(g.ToGeom(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: encode %s as EWKB", g.Type())
	}
	return data, nil
}

// EncodeWKB encodes g as little-endian WKB without an SRID.
func EncodeWKB(g Geometry) ([]byte, error) {
	data, err := wkb.Marshal(g.ToGeom(), wkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: encode %s as WKB", g.Type())
	}
	return data, nil
}

// MarshalProperties renders a property bag as a JSON object, keeping member order.
func MarshalProperties(p *Properties) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: marshal properties")
	}
	return data, nil
}
