package codec

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Kind describes which representation a Value holds.
type Kind uint8

const (
	KindAbsent  Kind = iota // bare key without "="
	KindString              // any text that is not numeric
	KindInt                 // signed decimal that fits into an int64
	KindFloat               // decimal with a fractional part
	KindIntList             // comma separated signed decimals
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindIntList:
		return "intlist"
	default:
		return "unknown"
	}
}

var (
	intPattern     = regexp.MustCompile(`^-?\d+$`)
	floatPattern   = regexp.MustCompile(`^-?\d+\.\d+$`)
	intListPattern = regexp.MustCompile(`^-?\d+(,-?\d+)+$`)
)

// Value is a single typed value of a decoded record or a command option.
// The unescaped wire text is always kept, so rendering a decoded value
// reproduces exactly what the server sent.
type Value struct {
	kind Kind
	raw  string
	i    int64
	f    float64
	list []int64
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// AbsentValue returns the explicit absence marker.
func AbsentValue() Value {
	return Value{kind: KindAbsent}
}

// StringValue returns a string value. The text is not coerced.
func StringValue(s string) Value {
	return Value{kind: KindString, raw: s}
}

// IntValue returns an integer value.
func IntValue(i int64) Value {
	return Value{kind: KindInt, raw: strconv.FormatInt(i, 10), i: i}
}

// FloatValue returns a float value.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, raw: strconv.FormatFloat(f, 'f', -1, 64), f: f}
}

// IntListValue returns a comma separated integer list value.
func IntListValue(list ...int64) Value {
	parts := make([]string, len(list))
	for i, n := range list {
		parts[i] = strconv.FormatInt(n, 10)
	}
	cp := make([]int64, len(list))
	copy(cp, list)
	return Value{kind: KindIntList, raw: strings.Join(parts, ","), list: cp}
}

// ParseValue coerces unescaped wire text into the most specific kind:
// integer, float, integer list and finally string.
func ParseValue(text string) Value {
	switch {
	case intPattern.MatchString(text):
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Value{kind: KindInt, raw: text, i: i}
		}
	case floatPattern.MatchString(text):
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Value{kind: KindFloat, raw: text, f: f}
		}
	case intListPattern.MatchString(text):
		parts := strings.Split(text, ",")
		list := make([]int64, 0, len(parts))
		for _, p := range parts {
			i, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return StringValue(text)
			}
			list = append(list, i)
		}
		return Value{kind: KindIntList, raw: text, list: list}
	}
	return StringValue(text)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsAbsent reports whether the value is the absence marker.
func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

// Str returns the unescaped wire text of the value, regardless of its kind.
// The absence marker yields the empty string.
func (v Value) Str() string {
	return v.raw
}

// Int returns the integer value. Ok is false unless the kind is KindInt.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the value as float64. Integers are converted.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// IntList returns the value as a list of integers. A single integer is
// returned as a list with one element, since the server does not distinguish the two.
func (v Value) IntList() ([]int64, bool) {
	switch v.kind {
	case KindIntList:
		cp := make([]int64, len(v.list))
		copy(cp, v.list)
		return cp, true
	case KindInt:
		return []int64{v.i}, true
	default:
		return nil, false
	}
}

// String returns the unescaped wire form. Absent values render as "<absent>".
func (v Value) String() string {
	if v.kind == KindAbsent {
		return "<absent>"
	}
	return v.raw
}

// MarshalJSON renders absent values as null, numbers as JSON numbers and
// integer lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindAbsent:
		return []byte("null"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindIntList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.raw)
	}
}
