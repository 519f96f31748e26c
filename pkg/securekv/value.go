package securekv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the payload stored under a key. It is one of null, string,
// number, bool or a structured record (a JSON object or array).
//
// Records are held in canonical JSON form (object keys sorted, numbers kept
// as their JSON literal) so two records with the same content compare equal
// with == and Equal.
//
// The zero Value is Null, which is also what Get returns for a missing key.
type Value struct {
	kind Kind
	str  string // string payload, or canonical JSON for records
	num  float64
	b    bool
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewRecord builds a record Value from any Go value that marshals to a JSON
// object or array (maps, slices, structs).
func NewRecord(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshal record: %w", err)
	}
	return recordFromJSON(data)
}

// FromAny converts a Go value into a Value, choosing the variant from its
// dynamic type. Anything that is not a scalar is treated as a record.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number: %w", err)
		}
		return Number(f), nil
	default:
		return NewRecord(v)
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload if v is a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric payload if v is a number.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean payload if v is a bool.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	return v == other
}

// Interface returns the natural Go representation of v: nil, string,
// float64, bool, or the decoded record (map[string]any or []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindRecord:
		var out any
		if err := json.Unmarshal([]byte(v.str), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Decode unmarshals v into dst the same way encoding/json would unmarshal
// the value's JSON form.
func (v Value) Decode(dst any) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("number %v has no JSON representation", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindRecord:
		return []byte(v.str), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := valueFromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String never prints the payload so values can't leak into logs through
// fmt verbs.
func (v Value) String() string {
	return "securekv.Value(" + v.kind.String() + ")"
}

// GoString implements fmt.GoStringer for %#v.
func (v Value) GoString() string {
	return v.String()
}

func valueFromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("trailing data after JSON value")
	}

	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	default:
		canonical, err := json.Marshal(x)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindRecord, str: string(canonical)}, nil
	}
}

func recordFromJSON(data []byte) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return Value{}, fmt.Errorf("record must be a JSON object or array")
	}
	return valueFromJSON(trimmed)
}
