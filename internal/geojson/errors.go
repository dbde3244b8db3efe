package geojson

import (
	"errors"
	"fmt"

	"github.com/sells-group/geostream/internal/jsoncursor"
)

// MalformedStreamError is a byte or token level failure of the underlying stream.
type MalformedStreamError = jsoncursor.MalformedStreamError

// ErrClosed is returned when a Reader is used after Close.
var ErrClosed = errors.New("geojson: reader closed")

// MalformedDocumentError reports a top level that is not a FeatureCollection.
type MalformedDocumentError struct {
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	return "geojson: malformed document: " + e.Reason
}

// MalformedFeatureError reports a Feature that lacks a required member or has
// one of the wrong shape. Index is the zero-based position in "features".
type MalformedFeatureError struct {
	Index  int
	Reason string
}

func (e *MalformedFeatureError) Error() string {
	return fmt.Sprintf("geojson: malformed feature %d: %s", e.Index, e.Reason)
}

// MalformedGeometryError reports an unsupported geometry type or coordinates
// that do not match the declared type.
type MalformedGeometryError struct {
	Index  int
	Type   string
	Reason string
}

func (e *MalformedGeometryError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("geojson: malformed geometry in feature %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("geojson: malformed %s geometry in feature %d: %s", e.Type, e.Index, e.Reason)
}

// IterationExhaustedError is returned by Next once the features array has ended.
type IterationExhaustedError struct {
	Count int
}

func (e *IterationExhaustedError) Error() string {
	return fmt.Sprintf("geojson: iteration exhausted after %d features", e.Count)
}
