// Package firestore talks to the Firestore REST API: it encodes loosely typed
// payload trees into the typed field values the API expects and issues
// document upserts and deletes.
package firestore

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind is the tag of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindGeoPoint
	KindTimestamp
	KindMap
	KindArray
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value is a single Firestore field value. The zero Value is null.
type Value struct {
	kind    Kind
	str     string
	integer int64
	double  float64
	boolean bool
	geo     GeoPoint
	ts      time.Time
	fields  map[string]Value
	values  []Value
}

func Null() Value                 { return Value{kind: KindNull} }
func String(s string) Value       { return Value{kind: KindString, str: s} }
func Integer(i int64) Value       { return Value{kind: KindInteger, integer: i} }
func Double(f float64) Value      { return Value{kind: KindDouble, double: f} }
func Boolean(b bool) Value        { return Value{kind: KindBoolean, boolean: b} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t.UTC()} }

// Geo returns a geo point value.
func Geo(lat, lng float64) Value {
	return Value{kind: KindGeoPoint, geo: GeoPoint{Latitude: lat, Longitude: lng}}
}

// Map returns a map value holding fields.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}

	return Value{kind: KindMap, fields: fields}
}

// Array returns an array value.
func Array(values ...Value) Value {
	return Value{kind: KindArray, values: values}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Time returns the payload of a KindTimestamp value.
func (v Value) Time() time.Time { return v.ts }

// Fields returns the entries of a KindMap value.
func (v Value) Fields() map[string]Value { return v.fields }

type mapValue struct {
	Fields map[string]Value `json:"fields"`
}

type arrayValue struct {
	Values []Value `json:"values"`
}

// MarshalJSON renders the value in the REST API's tagged form,
// e.g. {"integerValue":"42"} or {"mapValue":{"fields":{...}}}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(map[string]string{"stringValue": v.str})
	case KindInteger:
		// int64 travels as a decimal string on the wire.
		return json.Marshal(map[string]string{"integerValue": strconv.FormatInt(v.integer, 10)})
	case KindDouble:
		return json.Marshal(map[string]float64{"doubleValue": v.double})
	case KindBoolean:
		return json.Marshal(map[string]bool{"booleanValue": v.boolean})
	case KindGeoPoint:
		return json.Marshal(map[string]GeoPoint{"geoPointValue": v.geo})
	case KindTimestamp:
		return json.Marshal(map[string]string{"timestampValue": v.ts.UTC().Format(time.RFC3339Nano)})
	case KindMap:
		return json.Marshal(map[string]mapValue{"mapValue": {Fields: v.fields}})
	case KindArray:
		values := v.values
		if values == nil {
			values = []Value{}
		}

		return json.Marshal(map[string]arrayValue{"arrayValue": {Values: values}})
	default:
		return []byte(`{"nullValue":null}`), nil
	}
}
