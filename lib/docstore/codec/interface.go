package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrUnsupportedKey is returned by KeyID for keys without a stable encoding
var ErrUnsupportedKey = errors.New("codec: unsupported key type")

// IValueCodec converts opaque values to bytes and back.
// Engines without a native document format (memdoc, sqlite) store keys and values
// through a codec, so a value read back has the same Go type it would have when
// read from MongoDB.
type IValueCodec interface {
	// Name returns the name of the encoding (e.g. "bson")
	Name() string
	// Encode serializes v into a byte slice
	Encode(v any) ([]byte, error)
	// Decode deserializes a byte slice produced by Encode
	Decode(b []byte) (any, error)
}

// KeyID returns the canonical identity of a key under the given codec.
// Two keys are equal for an engine if their KeyIDs are equal.
//
// Numbers are compared by value (1, int32(1), int64(1) and 1.0 are one key),
// as MongoDB compares them. Map keys are rejected with ErrUnsupportedKey, Go
// encodes maps in random order. Use bson.D for document-like keys.
func KeyID(c IValueCodec, key any) (string, error) {
	key, err := canonicalKey(key)
	if err != nil {
		return "", err
	}
	b, err := c.Encode(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// canonicalKey maps integral numbers to int64 and other floats to float64
func canonicalKey(key any) (any, error) {
	if key == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), nil
		}
		return key, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f), nil
		}
		return f, nil
	case reflect.Map:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return key, nil
}
