package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Details is the open-ended attribute mapping attached to a ticket. Keys
// keep their insertion order, which drives the QR payload line order.
// Values are strings or numbers (json.Number after decoding).
type Details struct {
	keys   []string
	values map[string]any
}

// NewDetails builds Details from alternating key/value pairs.
func NewDetails(pairs ...any) Details {
	var d Details
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return d
}

// Set assigns value to key. Existing keys keep their position.
func (d *Details) Set(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d Details) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// GetString returns the formatted value under key, or fallback when absent.
func (d Details) GetString(key, fallback string) string {
	v, ok := d.values[key]
	if !ok {
		return fallback
	}
	return FormatValue(v)
}

// Keys returns keys in insertion order.
func (d Details) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of entries.
func (d Details) Len() int {
	return len(d.keys)
}

// Clone returns an independent copy.
func (d Details) Clone() Details {
	var out Details
	for _, k := range d.keys {
		out.Set(k, d.values[k])
	}
	return out
}

// Merge overwrites existing keys in place and appends new ones.
func (d Details) Merge(other Details) Details {
	out := d.Clone()
	for _, k := range other.keys {
		out.Set(k, other.values[k])
	}
	return out
}

// Lower returns a copy with lower-cased keys. When two keys collide the
// first position is kept and the later value wins.
func (d Details) Lower() Details {
	var out Details
	for _, k := range d.keys {
		out.Set(strings.ToLower(k), d.values[k])
	}
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (d Details) Range(fn func(key string, value any) bool) {
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// MarshalJSON encodes the mapping as an object in insertion order.
func (d Details) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("details[%s]: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, remembering key order.
func (d *Details) UnmarshalJSON(data []byte) error {
	*d = Details{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("details must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("details: unexpected key token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("details[%s]: %w", key, err)
		}
		d.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// FormatValue renders a detail value the way it appears in QR payloads.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}
