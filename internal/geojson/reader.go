package geojson

import (
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/jsoncursor"
)

// Reader yields the Features of a FeatureCollection one at a time.
//
// The Reader owns its source. The source is released exactly once: when
// HasNext reports the end of "features", when any error aborts the read, or
// when Close is called. A Reader must not be used from more than one
// goroutine at a time.
type Reader struct {
	cursor *jsoncursor.Cursor
	count  int

	err      error // first failure; every later call returns it
	done     bool
	released bool
}

// NewReader checks the document shape up to the start of the "features"
// array. If that fails, src is closed before the error is returned.
func NewReader(src io.ReadCloser) (*Reader, error) {
	r := &Reader{cursor: jsoncursor.New(src)}
	if err := r.openCollection(); err != nil {
		return nil, r.abort(err)
	}
	return r, nil
}

// openCollection positions the cursor inside the "features" array.
func (r *Reader) openCollection() error {
	c := r.cursor

	kind, err := c.Peek()
	if err != nil {
		return err
	}
	if kind != jsoncursor.BeginObject {
		return &MalformedDocumentError{Reason: "not an object"}
	}
	if err := c.BeginObject(); err != nil {
		return err
	}

	if kind, err = c.Peek(); err != nil {
		return err
	}
	if kind != jsoncursor.Name {
		return &MalformedDocumentError{Reason: "empty object"}
	}
	name, err := c.NextName()
	if err != nil {
		return err
	}
	if name != "type" {
		return &MalformedDocumentError{Reason: fmt.Sprintf("first member is %q, want \"type\"", name)}
	}
	if kind, err = c.Peek(); err != nil {
		return err
	}
	if kind != jsoncursor.String {
		return &MalformedDocumentError{Reason: "type is not a string"}
	}
	typ, err := c.ReadString()
	if err != nil {
		return err
	}
	if typ != "FeatureCollection" {
		return &MalformedDocumentError{Reason: fmt.Sprintf("type is %q, want \"FeatureCollection\"", typ)}
	}

	// Skip everything up to "features": crs, bbox, name, foreign members.
	for {
		more, err := c.More()
		if err != nil {
			return err
		}
		if !more {
			return &MalformedDocumentError{Reason: "missing features member"}
		}
		name, err := c.NextName()
		if err != nil {
			return err
		}
		if name == "features" {
			break
		}
		if err := c.Skip(); err != nil {
			return err
		}
	}

	if kind, err = c.Peek(); err != nil {
		return err
	}
	if kind != jsoncursor.BeginArray {
		return &MalformedDocumentError{Reason: "features is not an array"}
	}
	return c.BeginArray()
}

// HasNext reports whether another Feature follows. It may be called any number
// of times before Next. When it returns false the source has been released.
func (r *Reader) HasNext() (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.done {
		return false, nil
	}
	kind, err := r.cursor.Peek()
	if err != nil {
		return false, r.abort(err)
	}
	if kind != jsoncursor.EndArray {
		return true, nil
	}
	if err := r.cursor.EndArray(); err != nil {
		return false, r.abort(err)
	}
	r.done = true
	return false, r.release()
}

// Next decodes the next Feature. Calling Next when HasNext would report false
// returns an *IterationExhaustedError.
func (r *Reader) Next() (Record, error) {
	ok, err := r.HasNext()
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, &IterationExhaustedError{Count: r.count}
	}
	rec, err := r.readFeature()
	if err != nil {
		return Record{}, r.abort(err)
	}
	r.count++
	return rec, nil
}

// Close releases the source early. Closing an exhausted or failed Reader is a no-op.
func (r *Reader) Close() error {
	if r.err == nil && !r.done {
		r.err = ErrClosed
	}
	return r.release()
}

// Count returns the number of Features decoded so far.
func (r *Reader) Count() int { return r.count }

// All ranges over the remaining Features. The first error is yielded once and
// ends the sequence. Leaving the loop early closes the Reader.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		defer r.Close() //nolint:errcheck
		for {
			ok, err := r.HasNext()
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !ok {
				return
			}
			rec, err := r.Next()
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) readFeature() (Record, error) {
	c := r.cursor
	index := r.count

	kind, err := c.Peek()
	if err != nil {
		return Record{}, err
	}
	if kind != jsoncursor.BeginObject {
		return Record{}, &MalformedFeatureError{Index: index, Reason: "feature is a " + kind.String() + ", not an object"}
	}
	if err := c.BeginObject(); err != nil {
		return Record{}, err
	}

	var (
		rec                          Record
		seenGeometry, seenProperties bool
	)
	for {
		more, err := c.More()
		if err != nil {
			return Record{}, err
		}
		if !more {
			break
		}
		name, err := c.NextName()
		if err != nil {
			return Record{}, err
		}
		switch name {
		case "geometry":
			if seenGeometry {
				return Record{}, &MalformedFeatureError{Index: index, Reason: "duplicate geometry member"}
			}
			seenGeometry = true
			if rec.Geometry, err = r.readGeometry(index); err != nil {
				return Record{}, err
			}
		case "properties":
			if seenProperties {
				return Record{}, &MalformedFeatureError{Index: index, Reason: "duplicate properties member"}
			}
			seenProperties = true
			if rec.Properties, err = r.readProperties(index); err != nil {
				return Record{}, err
			}
		case "id":
			if rec.ID, err = r.readID(); err != nil {
				return Record{}, err
			}
		default:
			if err := c.Skip(); err != nil {
				return Record{}, err
			}
		}
	}
	if err := c.EndObject(); err != nil {
		return Record{}, err
	}

	if rec.Geometry == nil || rec.Properties == nil {
		return Record{}, &MalformedFeatureError{Index: index, Reason: "missing geometry or properties"}
	}
	return rec, nil
}

// readGeometry returns nil for a null geometry.
func (r *Reader) readGeometry(index int) (Geometry, error) {
	kind, err := r.cursor.Peek()
	if err != nil {
		return nil, err
	}
	if kind == jsoncursor.Null {
		return nil, r.cursor.Skip()
	}
	return decodeGeometry(r.cursor, index)
}

// readProperties returns nil for null properties.
func (r *Reader) readProperties(index int) (*Properties, error) {
	kind, err := r.cursor.Peek()
	if err != nil {
		return nil, err
	}
	switch kind {
	case jsoncursor.Null:
		return nil, r.cursor.Skip()
	case jsoncursor.BeginObject:
		v, err := r.cursor.Capture()
		if err != nil {
			return nil, err
		}
		return v.(*Properties), nil
	default:
		return nil, &MalformedFeatureError{Index: index, Reason: "properties is a " + kind.String() + ", not an object"}
	}
}

// readID renders a string or number id as text and ignores any other shape.
func (r *Reader) readID() (string, error) {
	kind, err := r.cursor.Peek()
	if err != nil {
		return "", err
	}
	switch kind {
	case jsoncursor.String:
		return r.cursor.ReadString()
	case jsoncursor.Number:
		n, err := r.cursor.ReadNumber()
		return n.String(), err
	default:
		return "", r.cursor.Skip()
	}
}

// abort records err as the terminal state and releases the source.
func (r *Reader) abort(err error) error {
	if r.err == nil {
		r.err = err
	}
	if closeErr := r.release(); closeErr != nil {
		zap.L().Debug("geojson: release after failure", zap.Error(closeErr))
	}
	return r.err
}

func (r *Reader) release() error {
	if r.released {
		return nil
	}
	r.released = true
	zap.L().Debug("geojson: releasing source",
		zap.Int("features", r.count),
		zap.Bool("exhausted", r.done),
	)
	return r.cursor.Close()
}
