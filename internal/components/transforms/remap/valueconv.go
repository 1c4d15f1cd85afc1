package remap

import (
	"time"

	"github.com/coachpo/conduit/internal/domain/event"
)

// toNative converts an event.Value to a plain Go value a goja.Runtime can
// marshal directly (map[string]any, []any, and the JSON-ish scalar set).
func toNative(v event.Value) any {
	switch v.Kind() {
	case event.KindNull:
		return nil
	case event.KindBool:
		b, _ := v.AsBool()
		return b
	case event.KindInteger:
		i, _ := v.AsInteger()
		return i
	case event.KindFloat:
		f, _ := v.AsFloat()
		return f
	case event.KindBytes:
		b, _ := v.AsBytes()
		return string(b)
	case event.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return ts.Format(time.RFC3339Nano)
	case event.KindRegex:
		r, _ := v.AsRegex()
		return r
	case event.KindArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, elem := range arr {
			out[i] = toNative(elem)
		}
		return out
	case event.KindObject:
		obj, _ := v.AsObject()
		out := make(map[string]any, obj.Len())
		for _, k := range obj.Keys() {
			elem, _ := obj.Get(k)
			out[k] = toNative(elem)
		}
		return out
	default:
		return nil
	}
}

// fromNative converts a goja-exported value (the result of Runtime.Export
// walking JS values into plain Go ones) back to an event.Value.
func fromNative(x any) event.Value {
	switch t := x.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.Bool(t)
	case int64:
		return event.Integer(t)
	case int:
		return event.Integer(int64(t))
	case float64:
		return event.Float(t)
	case string:
		return event.BytesString(t)
	case []any:
		vals := make([]event.Value, len(t))
		for i, elem := range t {
			vals[i] = fromNative(elem)
		}
		return event.Array(vals)
	case map[string]any:
		obj := event.NewObject()
		for k, elem := range t {
			obj.Set(k, fromNative(elem))
		}
		return event.Obj(obj)
	default:
		return event.Null()
	}
}
