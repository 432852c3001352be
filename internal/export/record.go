package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Record is one row of tabular data: an ordered mapping of field key to value.
// Keys keep their insertion order, including when decoded from JSON.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord builds a record from alternating key, value arguments.
// It panics on an odd argument count or a non-string key.
func NewRecord(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("export.NewRecord: odd number of arguments")
	}
	var r Record
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("export.NewRecord: key %v is not a string", kv[i]))
		}
		r.Set(key, kv[i+1])
	}
	return r
}

// RecordFromMap converts a plain map. Go maps are unordered, so keys are sorted.
func RecordFromMap(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var r Record
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set stores value under key. New keys are appended to the key order.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field keys in insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// MarshalJSON encodes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping member order. Nested objects
// become Records and numbers are kept as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeOrdered(dec)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("record must be a JSON object, got %T", v)
	}
	*r = rec
	return nil
}

// DecodeValue decodes a single JSON value preserving object member order.
// Objects become Records, arrays []any, numbers json.Number.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var rec Record
			rec.values = make(map[string]any)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		case '[':
			list := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return t, nil
	}
}

func isJSONNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// Header pairs a record key with its display label.
type Header struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// HeaderMap is an ordered key to label mapping. Declaration order is column order.
type HeaderMap []Header

// Keys returns the header keys in order.
func (h HeaderMap) Keys() []string {
	out := make([]string, len(h))
	for i, hd := range h {
		out[i] = hd.Key
	}
	return out
}

// Labels returns display labels in order, using the key for empty labels.
func (h HeaderMap) Labels() []string {
	out := make([]string, len(h))
	for i, hd := range h {
		out[i] = hd.Label
		if out[i] == "" {
			out[i] = hd.Key
		}
	}
	return out
}

// MarshalJSON encodes the header map as a JSON object in declaration order.
func (h HeaderMap) MarshalJSON() ([]byte, error) {
	var rec Record
	for _, hd := range h {
		rec.Set(hd.Key, hd.Label)
	}
	return rec.MarshalJSON()
}

// UnmarshalJSON accepts either an object {"key": "Label"} or an array of
// {"key", "label"} pairs.
func (h *HeaderMap) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if isJSONNull(trimmed) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Header
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*h = list
		return nil
	}

	var rec Record
	if err := rec.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	out := make(HeaderMap, 0, rec.Len())
	for _, k := range rec.keys {
		label, ok := rec.values[k].(string)
		if !ok && rec.values[k] != nil {
			return fmt.Errorf("headers: label for %q must be a string", k)
		}
		out = append(out, Header{Key: k, Label: label})
	}
	*h = out
	return nil
}

// UnmarshalYAML decodes a YAML mapping in document order.
func (h *HeaderMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []Header
		if err := node.Decode(&list); err != nil {
			return err
		}
		*h = list
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("headers: line %d: expected a mapping", node.Line)
	}

	out := make(HeaderMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Header{Key: node.Content[i].Value, Label: node.Content[i+1].Value})
	}
	*h = out
	return nil
}
