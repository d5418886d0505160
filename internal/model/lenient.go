package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// Text is a string column. A number or boolean is kept in its literal form and
// null, objects and arrays decode to "", so one mistyped column never fails the row.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0, bytes.Equal(data, jsonNull):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*t = Text(s)
	case data[0] == '{', data[0] == '[':
		*t = ""
	default:
		*t = Text(data)
	}

	return nil
}

// Number is a numeric column in its JSON literal form. Numeric strings are
// accepted; anything else decodes to "" and is treated as absent.
type Number string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)

	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}

		raw = []byte(strings.TrimSpace(s))
	}

	*n = ""

	if _, err := strconv.ParseFloat(string(raw), 64); err == nil && json.Valid(raw) {
		*n = Number(raw)
	}

	return nil
}

// JSON returns the number as a json.Number, "" when absent.
func (n Number) JSON() json.Number {
	return json.Number(n)
}

// LatLng is a geographic coordinate pair as written by the bookings trigger.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	invalid bool
}

// UnmarshalJSON accepts numeric or string coordinates. A pair that cannot be
// read is kept but marked unusable.
func (l *LatLng) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  Number `json:"latitude"`
		Longitude Number `json:"longitude"`
	}

	*l = LatLng{invalid: true}

	// an unreadable pair stays marked invalid rather than failing the row
	if json.Unmarshal(data, &raw) != nil {
		return nil
	}

	lat, errLat := strconv.ParseFloat(string(raw.Latitude), 64)
	lng, errLng := strconv.ParseFloat(string(raw.Longitude), 64)

	if errLat != nil || errLng != nil {
		return nil
	}

	*l = LatLng{Latitude: lat, Longitude: lng}

	return nil
}

// Usable reports whether l holds a readable coordinate pair.
func (l *LatLng) Usable() bool {
	return l != nil && !l.invalid
}
