package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind tags the variant held by a Value
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// Value is one metadata value. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	List   []Value
	Object map[string]Value
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func List(vs ...Value) Value { return Value{Kind: KindList, List: vs} }
func Object(m map[string]Value) Value {
	return Value{Kind: KindObject, Object: m}
}

// MarshalJSON encodes the active variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindObject:
		if v.Object == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Object)
	}
	return nil, fmt.Errorf("metadata: unknown value kind %d", v.Kind)
}

// UnmarshalJSON decodes any JSON value into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("metadata: empty value")
	}
	switch data[0] {
	case 'n':
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[':
		var l []Value
		if err := json.Unmarshal(data, &l); err != nil {
			return err
		}
		*v = Value{Kind: KindList, List: l}
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*v = Object(m)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// Metadata is an open key/value map attached to a memory. Unknown keys are
// kept as-is.
type Metadata map[string]Value

// Get returns the string stored under key.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseMetadata decodes a JSON object. Empty input yields nil.
func ParseMetadata(data []byte) (Metadata, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return m, nil
}
