package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a typed attribute scalar. The zero value is the null value.
type Value struct {
	kind Kind
	str  string
	num  float64
	i    int64
	b    bool
	t    time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a timestamp value, truncated to UTC.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Kind reports the scalar type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload and whether the value is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the integer payload and whether the value is an int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric payload as a float64. Integer values
// convert; other kinds report false.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.num, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean payload and whether the value is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsTime returns the timestamp payload and whether the value is a time.
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return false
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

// FromAny converts a dynamically typed scalar, as produced by JSON
// decoding or GeoJSON properties, into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("feature: bad number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case time.Time:
		return Time(x), nil
	default:
		return Null(), fmt.Errorf("feature: unsupported attribute type %T", raw)
	}
}

// ToAny converts the value back to a plain scalar for JSON or GeoJSON
// property encoding. Timestamps render as RFC 3339 strings.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return nil
	}
}

type valueEnvelope struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON encodes the value with an explicit type tag so that the
// int/float and time/string distinctions survive a round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	env := valueEnvelope{T: v.kind.String()}
	if v.kind != KindNull {
		raw, err := json.Marshal(v.ToAny())
		if err != nil {
			return nil, err
		}
		env.V = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a type-tagged value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.T {
	case "null":
		*v = Null()
	case "string":
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return err
		}
		*v = String(s)
	case "int":
		var i int64
		if err := json.Unmarshal(env.V, &i); err != nil {
			return err
		}
		*v = Int(i)
	case "float":
		var f float64
		if err := json.Unmarshal(env.V, &f); err != nil {
			return err
		}
		*v = Float(f)
	case "bool":
		var b bool
		if err := json.Unmarshal(env.V, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case "time":
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = Time(t)
	default:
		return fmt.Errorf("feature: unknown value kind %q", env.T)
	}
	return nil
}

func (v Value) writeDigest(h *xxhash.Digest) {
	var kindByte [1]byte
	kindByte[0] = byte(v.kind)
	h.Write(kindByte[:])
	switch v.kind {
	case KindString:
		h.WriteString(v.str)
	case KindInt:
		writeUint64(h, uint64(v.i))
	case KindFloat:
		writeUint64(h, math.Float64bits(v.num))
	case KindBool:
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindTime:
		writeUint64(h, uint64(v.t.UnixNano()))
	}
}

func writeUint64(h *xxhash.Digest, u uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * (7 - i)))
	}
	h.Write(buf[:])
}

// Attributes maps attribute names to typed values.
type Attributes map[string]Value

// Clone returns an independent copy of the attribute map.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Equal reports whether two attribute maps hold the same entries.
func (a Attributes) Equal(o Attributes) bool {
	if len(a) != len(o) {
		return false
	}
	for k, v := range a {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (a Attributes) writeDigest(h *xxhash.Digest) {
	for _, name := range a.Names() {
		h.WriteString(name)
		a[name].writeDigest(h)
	}
}

// FromProperties converts GeoJSON-style properties into Attributes.
func FromProperties(props map[string]any) (Attributes, error) {
	if props == nil {
		return nil, nil
	}
	out := make(Attributes, len(props))
	for k, raw := range props {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ToProperties converts Attributes into a plain map for GeoJSON encoding.
func (a Attributes) ToProperties() map[string]any {
	if a == nil {
		return nil
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.ToAny()
	}
	return out
}
