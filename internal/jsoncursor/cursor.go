// Package jsoncursor provides a pull-style cursor over a JSON byte stream.
//
// A Cursor owns the underlying io.ReadCloser. Every primitive that fails at
// the token level releases the source before returning a *MalformedStreamError,
// so callers never have to clean up after a failed read.
package jsoncursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is the decoded form of a JSON object. Member order is preserved.
type Object = orderedmap.OrderedMap[string, any]

// ErrClosed is the cause reported when a primitive is called on a released cursor.
var ErrClosed = errors.New("cursor closed")

// MalformedStreamError reports a byte or token level failure: a syntax error,
// an unexpected end of input, or a token that does not fit the primitive.
type MalformedStreamError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *MalformedStreamError) Error() string {
	return fmt.Sprintf("jsoncursor: malformed stream: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *MalformedStreamError) Unwrap() error { return e.Err }

// UnexpectedTokenError is the cause of a MalformedStreamError raised when the
// next token is not the one a primitive requires.
type UnexpectedTokenError struct {
	Want Kind
	Got  Kind
}

func (e *UnexpectedTokenError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
}

type frame struct {
	delim    json.Delim
	wantName bool
}

// Cursor walks a JSON document token by token. It is not safe for concurrent use.
type Cursor struct {
	src   io.ReadCloser
	dec   *json.Decoder
	stack []frame

	peeked  json.Token
	hasPeek bool

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// New returns a cursor positioned before the first token of src.
// The cursor takes ownership of src.
func New(src io.ReadCloser) *Cursor {
	dec := json.NewDecoder(src)
	dec.UseNumber()
	return &Cursor{src: src, dec: dec}
}

// Close releases the source. It is safe to call more than once; every call
// returns the result of the first.
func (c *Cursor) Close() error {
	c.closeOnce.Do(func() {
		c.closed = true
		c.peeked, c.hasPeek = nil, false
		c.stack = nil
		if err := c.src.Close(); err != nil {
			c.closeErr = eris.Wrap(err, "jsoncursor: close source")
		}
	})
	return c.closeErr
}

// Closed reports whether the source has been released.
func (c *Cursor) Closed() bool { return c.closed }

// Depth returns the number of open objects and arrays.
func (c *Cursor) Depth() int { return len(c.stack) }

// Offset returns the input offset of the decoder.
func (c *Cursor) Offset() int64 { return c.dec.InputOffset() }

// Peek reports the kind of the next token without consuming it.
func (c *Cursor) Peek() (Kind, error) {
	if c.closed {
		return Invalid, c.fail("peek", ErrClosed)
	}
	if !c.hasPeek {
		tok, err := c.dec.Token()
		if err != nil {
			return Invalid, c.fail("peek", err)
		}
		c.peeked, c.hasPeek = tok, true
	}
	return c.kindOf(c.peeked), nil
}

// More reports whether the current object or array has another member.
func (c *Cursor) More() (bool, error) {
	kind, err := c.Peek()
	if err != nil {
		return false, err
	}
	return kind != EndObject && kind != EndArray, nil
}

// BeginObject consumes '{'.
func (c *Cursor) BeginObject() error {
	_, err := c.expect("begin object", BeginObject)
	return err
}

// EndObject consumes '}'.
func (c *Cursor) EndObject() error {
	_, err := c.expect("end object", EndObject)
	return err
}

// BeginArray consumes '['.
func (c *Cursor) BeginArray() error {
	_, err := c.expect("begin array", BeginArray)
	return err
}

// EndArray consumes ']'.
func (c *Cursor) EndArray() error {
	_, err := c.expect("end array", EndArray)
	return err
}

// NextName consumes an object member name.
func (c *Cursor) NextName() (string, error) {
	tok, err := c.expect("next name", Name)
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

// ReadString consumes a string value.
func (c *Cursor) ReadString() (string, error) {
	tok, err := c.expect("read string", String)
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

// ReadNumber consumes a number value, keeping its literal text.
func (c *Cursor) ReadNumber() (json.Number, error) {
	tok, err := c.expect("read number", Number)
	if err != nil {
		return "", err
	}
	return tok.(json.Number), nil
}

// ReadFloat consumes a number value as a float64.
func (c *Cursor) ReadFloat() (float64, error) {
	n, err := c.ReadNumber()
	if err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, c.fail("read float", err)
	}
	return f, nil
}

// Skip consumes the next value whatever its shape, including every nested
// object and array inside it.
func (c *Cursor) Skip() error {
	depth := 0
	for {
		_, kind, err := c.advance("skip")
		if err != nil {
			return err
		}
		switch kind {
		case BeginObject, BeginArray:
			depth++
		case EndObject, EndArray:
			depth--
			if depth < 0 {
				return c.fail("skip", &UnexpectedTokenError{Want: Invalid, Got: kind})
			}
		case Name:
			if depth == 0 {
				return c.fail("skip", &UnexpectedTokenError{Want: Invalid, Got: kind})
			}
			continue
		}
		if depth == 0 {
			return nil
		}
	}
}

// Capture consumes the next value and returns it in generic form: objects as
// *Object, arrays as []any, numbers as json.Number, and strings, booleans and
// null as string, bool and nil.
func (c *Cursor) Capture() (any, error) {
	tok, kind, err := c.advance("capture")
	if err != nil {
		return nil, err
	}
	switch kind {
	case BeginObject:
		obj := orderedmap.New[string, any]()
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
			v, err := c.Capture()
			if err != nil {
				return nil, err
			}
			obj.Set(name, v)
		}
		if err := c.EndObject(); err != nil {
			return nil, err
		}
		return obj, nil
	case BeginArray:
		arr := []any{}
		for {
			more, err := c.More()
			if err != nil {
				return nil, err
			}
			if !more {
				break
			}
			v, err := c.Capture()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := c.EndArray(); err != nil {
			return nil, err
		}
		return arr, nil
	case String, Number, Bool, Null:
		return tok, nil
	default:
		return nil, c.fail("capture", &UnexpectedTokenError{Want: Invalid, Got: kind})
	}
}

func (c *Cursor) expect(op string, want Kind) (json.Token, error) {
	if c.closed {
		return nil, c.fail(op, ErrClosed)
	}
	if kind, err := c.Peek(); err != nil {
		return nil, err
	} else if kind != want {
		return nil, c.fail(op, &UnexpectedTokenError{Want: want, Got: kind})
	}
	tok, _, err := c.advance(op)
	return tok, err
}

// advance consumes one token and updates the container stack.
func (c *Cursor) advance(op string) (json.Token, Kind, error) {
	if c.closed {
		return nil, Invalid, c.fail(op, ErrClosed)
	}
	var tok json.Token
	if c.hasPeek {
		tok = c.peeked
		c.peeked, c.hasPeek = nil, false
	} else {
		t, err := c.dec.Token()
		if err != nil {
			return nil, Invalid, c.fail(op, err)
		}
		tok = t
	}

	kind := c.kindOf(tok)
	switch kind {
	case BeginObject:
		c.stack = append(c.stack, frame{delim: '{', wantName: true})
	case BeginArray:
		c.stack = append(c.stack, frame{delim: '['})
	case EndObject, EndArray:
		if len(c.stack) > 0 {
			c.stack = c.stack[:len(c.stack)-1]
		}
		c.valueDone()
	case Name:
		c.stack[len(c.stack)-1].wantName = false
	default:
		c.valueDone()
	}
	return tok, kind, nil
}

func (c *Cursor) valueDone() {
	if n := len(c.stack); n > 0 && c.stack[n-1].delim == '{' {
		c.stack[n-1].wantName = true
	}
}

func (c *Cursor) kindOf(tok json.Token) Kind {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return BeginObject
		case '}':
			return EndObject
		case '[':
			return BeginArray
		default:
			return EndArray
		}
	case string:
		if n := len(c.stack); n > 0 && c.stack[n-1].delim == '{' && c.stack[n-1].wantName {
			return Name
		}
		return String
	case json.Number:
		return Number
	case bool:
		return Bool
	case nil:
		return Null
	}
	return Invalid
}

// fail releases the source and wraps err as a MalformedStreamError.
func (c *Cursor) fail(op string, err error) error {
	offset := c.Offset()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	_ = c.Close()
	return &MalformedStreamError{Op: op, Offset: offset, Err: err}
}
