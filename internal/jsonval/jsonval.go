// Package jsonval gives every adapter one dynamic JSON value abstraction
// to work against, instead of each adapter re-deriving type assertions
// over decoded `any` values. Value wraps whatever encoding/json produced;
// Probe and Inject are thin wrappers over tidwall/gjson and tidwall/sjson
// for the cases where an adapter only needs a handful of fields out of a
// raw line and a full Unmarshal would be wasted work.
package jsonval

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Value is a tagged-union-style wrapper over a decoded JSON tree.
type Value struct {
	raw any
}

// Parse decodes raw JSON bytes into a Value.
func Parse(data []byte) (Value, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return Value{raw: v}, nil
}

// Wrap adapts an already-decoded value (e.g. from json.Unmarshal into
// `any`) into a Value.
func Wrap(v any) Value { return Value{raw: v} }

// IsNull reports whether the value is JSON null or absent.
func (v Value) IsNull() bool { return v.raw == nil }

// AsString returns the value as a string and true if it holds a JSON
// string.
func (v Value) AsString() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// AsInt64 returns the value as an int64. Accepts a JSON number (including
// one with a zero fractional part) or a numeric string.
func (v Value) AsInt64() (int64, bool) {
	switch n := v.raw.(type) {
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsBool returns the value as a bool.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// AsArray returns the value as a slice of Values.
func (v Value) AsArray() ([]Value, bool) {
	a, ok := v.raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(a))
	for i, e := range a {
		out[i] = Value{raw: e}
	}
	return out, true
}

// AsObject returns the value as a map[string]Value.
func (v Value) AsObject() (map[string]Value, bool) {
	m, ok := v.raw.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]Value, len(m))
	for k, e := range m {
		out[k] = Value{raw: e}
	}
	return out, true
}

// Field returns the named field of an object value, or a null Value if
// the receiver is not an object or lacks the field.
func (v Value) Field(name string) Value {
	obj, ok := v.AsObject()
	if !ok {
		return Value{}
	}
	return obj[name]
}

// Get walks a path of object field names, returning a null Value if any
// step is missing.
func (v Value) Get(path ...string) Value {
	cur := v
	for _, p := range path {
		cur = cur.Field(p)
	}
	return cur
}

// StringField is a convenience for Field(name).AsString with a default.
func (v Value) StringField(name, def string) string {
	if s, ok := v.Field(name).AsString(); ok {
		return s
	}
	return def
}

// FirstNonEmptyString tries each named field in order, returning the
// first that resolves to a non-empty, trimmed string.
func (v Value) FirstNonEmptyString(names ...string) (string, bool) {
	for _, name := range names {
		if s, ok := v.Field(name).AsString(); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Probe is a single-shot field lookup over raw JSON text, avoiding a full
// Unmarshal when the caller only needs a path or two before deciding
// whether to parse the rest. Grounded on wesm-agentsview's Claude parser,
// which uses gjson.Get(line, "type").Str in exactly this role.
func Probe(raw []byte, path string) gjson.Result {
	return gjson.GetBytes(raw, path)
}

// Valid reports whether raw is syntactically valid JSON, without fully
// decoding it.
func Valid(raw []byte) bool {
	return gjson.ValidBytes(raw)
}

// Inject sets a field on raw JSON text without round-tripping through a
// full Unmarshal/Marshal, used by scan phases to stamp synthetic fields
// (__source_path, __session_seed, ...) onto a record before it is handed
// to normalize.
func Inject(raw []byte, path string, value any) ([]byte, error) {
	return sjson.SetBytes(raw, path, value)
}
