package firestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Marker keys recognized inside payload objects.
const (
	LatitudeKey  = "_latitude"
	LongitudeKey = "_longitude"
	TimestampKey = "_timestamp"
	IntegerKey   = "_integer"
)

// MaxDepth bounds the nesting of encoded maps and arrays.
const MaxDepth = 32

var (
	// ErrDepthExceeded is returned when a payload nests deeper than MaxDepth.
	ErrDepthExceeded = errors.New("value nested too deeply")
	// ErrUnsupportedValue is returned for Go values outside the decoded-JSON shapes.
	ErrUnsupportedValue = errors.New("unsupported value type")
	// ErrInvalidTimestamp is returned when a _timestamp marker cannot be read as an instant.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidInteger is returned when an _integer marker is not an integral number.
	ErrInvalidInteger = errors.New("invalid integer")
	// ErrInvalidGeoPoint is returned when geo point markers are not numbers.
	ErrInvalidGeoPoint = errors.New("invalid geo point")
)

// GeoMarker builds the object the codec turns into a geo point.
func GeoMarker(lat, lng float64) map[string]any {
	return map[string]any{LatitudeKey: lat, LongitudeKey: lng}
}

// TimestampMarker builds the object the codec turns into a timestamp.
func TimestampMarker(s string) map[string]any {
	return map[string]any{TimestampKey: s}
}

// IntegerMarker builds the object the codec turns into an integer.
func IntegerMarker(n any) map[string]any {
	return map[string]any{IntegerKey: n}
}

// EncodeFields encodes a document's top-level field map.
func EncodeFields(doc map[string]any) (map[string]Value, error) {
	fields := make(map[string]Value, len(doc))
	for key, raw := range doc {
		v, err := encode(raw, 1)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		fields[key] = v
	}

	return fields, nil
}

// Encode converts a decoded JSON tree into a Value.
//
// Objects are inspected for markers in order: _latitude together with
// _longitude yields a geo point, _timestamp a timestamp, _integer an
// integer. Any other object becomes a map. Numbers become integers when
// integral and doubles otherwise.
func Encode(v any) (Value, error) {
	return encode(v, 0)
}

func encode(v any, depth int) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Boolean(x), nil
	case json.Number:
		return encodeNumber(x)
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	case float64:
		return encodeFloat(x), nil
	case time.Time:
		return Timestamp(x), nil
	case map[string]any:
		return encodeObject(x, depth)
	case []any:
		if depth >= MaxDepth {
			return Value{}, ErrDepthExceeded
		}

		values := make([]Value, 0, len(x))
		for i, elem := range x {
			ev, err := encode(elem, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}

			values = append(values, ev)
		}

		return Array(values...), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func encodeObject(obj map[string]any, depth int) (Value, error) {
	if depth >= MaxDepth {
		return Value{}, ErrDepthExceeded
	}

	_, hasLat := obj[LatitudeKey]
	_, hasLng := obj[LongitudeKey]

	if hasLat && hasLng {
		lat, err := toFloat(obj[LatitudeKey])
		if err != nil {
			return Value{}, fmt.Errorf("%w: latitude: %w", ErrInvalidGeoPoint, err)
		}

		lng, err := toFloat(obj[LongitudeKey])
		if err != nil {
			return Value{}, fmt.Errorf("%w: longitude: %w", ErrInvalidGeoPoint, err)
		}

		return Geo(lat, lng), nil
	}

	if raw, ok := obj[TimestampKey]; ok {
		t, err := toTime(raw)
		if err != nil {
			return Value{}, err
		}

		return Timestamp(t), nil
	}

	if raw, ok := obj[IntegerKey]; ok {
		i, err := toInteger(raw)
		if err != nil {
			return Value{}, err
		}

		return Integer(i), nil
	}

	fields := make(map[string]Value, len(obj))
	for key, raw := range obj {
		v, err := encode(raw, depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", key, err)
		}

		fields[key] = v
	}

	return Map(fields), nil
}

func encodeNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Integer(i), nil
	}

	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("%w: number %q", ErrUnsupportedValue, n.String())
	}

	return encodeFloat(f), nil
}

func encodeFloat(f float64) Value {
	if i, ok := integral(f); ok {
		return Integer(i)
	}

	return Double(f)
}

// integral reports whether f has no fractional part and fits in an int64.
func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}

	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}

	return int64(f), true
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func toInteger(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}

		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidInteger, x.String())
		}

		return toInteger(f)
	case float64:
		if i, ok := integral(x); ok {
			return i, nil
		}

		return 0, fmt.Errorf("%w: %v", ErrInvalidInteger, x)
	case string:
		i, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidInteger, x)
		}

		return i, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidInteger, v)
	}
}

// Layouts accepted for _timestamp markers. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseTimestamp(x)
	default:
		return time.Time{}, fmt.Errorf("%w: %T", ErrInvalidTimestamp, v)
	}
}

// ParseTimestamp reads s as an absolute instant.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
