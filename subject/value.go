package subject

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Kind identifies which member of a claim Value is populated.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindLong
	KindTime
	KindString
)

// String returns the lowercase kind name
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a typed claim value. Exactly one member is meaningful, selected by Kind.
type Value struct {
	kind Kind
	b    bool
	i    int64
	t    time.Time
	s    string
}

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func IntValue(i int32) Value { return Value{kind: KindInt, i: int64(i)} }

func LongValue(i int64) Value { return Value{kind: KindLong, i: i} }

func TimeValue(t time.Time) Value { return Value{kind: KindTime, t: t} }

func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the populated member
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean member and whether the value is a boolean
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the integer member for KindInt and KindLong values
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt || v.kind == KindLong }

// Time returns the timestamp member
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindTime }

// String renders the value whatever its kind
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt, KindLong:
		return strconv.FormatInt(v.i, 10)
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return v.s
	}
}

// Interface returns the value as a plain Go value for JSON rendering
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt, KindLong:
		return v.i
	case KindTime:
		return v.t
	default:
		return v.s
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// ValueOf converts a raw decoded claim into a Value. The candidate kinds are tried
// in a fixed order (bool, int, long, time, string) and the first match wins.
// Arrays, objects and nulls have no Value.
func ValueOf(raw interface{}) (Value, bool) {
	if b, ok := asBool(raw); ok {
		return BoolValue(b), true
	}
	if i, ok := asInt(raw); ok {
		return IntValue(i), true
	}
	if l, ok := asLong(raw); ok {
		return LongValue(l), true
	}
	if t, ok := asTime(raw); ok {
		return TimeValue(t), true
	}
	if s, ok := asString(raw); ok {
		return StringValue(s), true
	}
	return Value{}, false
}

func asBool(raw interface{}) (bool, bool) {
	b, ok := raw.(bool)
	return b, ok
}

func asInt(raw interface{}) (int32, bool) {
	l, ok := asLong(raw)
	if !ok || l < math.MinInt32 || l > math.MaxInt32 {
		return 0, false
	}
	return int32(l), true
}

func asLong(raw interface{}) (int64, bool) {
	switch n := raw.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asTime(raw interface{}) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asString(raw interface{}) (string, bool) {
	switch s := raw.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return "", false
}
