// Package event implements the typed in-memory record model shared by every
// source, transform, and sink: the Value sum type, ordered field paths, the
// Log/Metric/Trace Event union, byte-size accounting, and the merge operator
// that underlies reduce transforms.
package event

import (
	"fmt"
	"math"
	"time"
)

// Kind discriminates the Value sum type's variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindBytes
	KindTimestamp
	KindRegex
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindRegex:
		return "regex"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union the documented contract: Null, Bool, Integer (i64),
// Float (non-NaN f64), Bytes, Timestamp (UTC), Regex, Array, Object. Only one
// of the typed fields is meaningful, selected by kind; Value is a plain
// struct (not an interface) so copying it is always a cheap, safe value
// copy — the Array/Object/Bytes fields are reference types and are deep
// cloned explicitly by Clone.
type Value struct {
	kind Kind
	b bool
	i int64
	f float64
	bytes []byte
	ts time.Time
	regex string
	arr []Value
	obj *Object
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Integer constructs an Integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float constructs a Float value. Per the documented contract, NaN fails at construction;
// callers that cannot reject NaN (e.g. decoding untrusted input) should
// check TryFloat instead.
func Float(f float64) Value {
	v, err := TryFloat(f)
	if err != nil {
		panic(err)
	}
	return v
}

// TryFloat constructs a Float value, returning an error instead of panicking
// when f is NaN.
func TryFloat(f float64) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, fmt.Errorf("event: float value must not be NaN")
	}
	return Value{kind: KindFloat, f: f}, nil
}

// Bytes constructs a Bytes value. The slice is retained, not copied; callers
// must not mutate it afterward.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// BytesString constructs a Bytes value from a UTF-8 string.
func BytesString(s string) Value { return Value{kind: KindBytes, bytes: []byte(s)} }

// Timestamp constructs a Timestamp value, normalized to UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t.UTC()} }

// Regex constructs a Regex value carrying the pattern source verbatim; the
// core does not itself compile or evaluate the pattern.
func Regex(pattern string) Value { return Value{kind: KindRegex, regex: pattern} }

// Array constructs an Array value. The slice is retained, not copied.
func Array(vs []Value) Value { return Value{kind: KindArray, arr: vs} }

// Obj constructs an Object value from an existing *Object.
func Obj(o *Object) Value { return Value{kind: KindObject, obj: o} }

// Kind reports the value's variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the Bool payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInteger returns the Integer payload and whether v is an Integer.
func (v Value) AsInteger() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the Float payload and whether v is a Float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBytes returns the Bytes payload and whether v is Bytes.
func (v Value) AsBytes() ([]byte, bool) { return v.bytes, v.kind == KindBytes }

// AsTimestamp returns the Timestamp payload and whether v is a Timestamp.
func (v Value) AsTimestamp() (time.Time, bool) { return v.ts, v.kind == KindTimestamp }

// AsRegex returns the Regex pattern and whether v is a Regex.
func (v Value) AsRegex() (string, bool) { return v.regex, v.kind == KindRegex }

// AsArray returns the Array payload and whether v is an Array.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the Object payload and whether v is an Object.
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindObject }

// Clone deep-copies v; Array and Object variants recurse, Bytes is copied
// defensively.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		cp := make([]byte, len(v.bytes))
		copy(cp, v.bytes)
		return Value{kind: KindBytes, bytes: cp}
	case KindArray:
		cp := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cp[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: cp}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInteger:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindTimestamp:
		return v.ts.Equal(other.ts)
	case KindRegex:
		return v.regex == other.regex
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	default:
		return false
	}
}

// ByteSize estimates v's fully-owned in-memory footprint: for a collection
// it is the sum of element sizes plus a small container overhead, satisfying
// the invariant that a container's byte size is never smaller than the sum
// of its elements.
func (v Value) ByteSize() int {
	const scalarOverhead = 8
	switch v.kind {
	case KindNull:
		return scalarOverhead
	case KindBool:
		return scalarOverhead
	case KindInteger:
		return scalarOverhead
	case KindFloat:
		return scalarOverhead
	case KindBytes:
		return len(v.bytes) + scalarOverhead
	case KindTimestamp:
		return scalarOverhead
	case KindRegex:
		return len(v.regex) + scalarOverhead
	case KindArray:
		const containerOverhead = 24
		total := containerOverhead
		for _, e := range v.arr {
			total += e.ByteSize()
		}
		return total
	case KindObject:
		const containerOverhead = 24
		return containerOverhead + v.obj.ByteSize()
	default:
		return scalarOverhead
	}
}
