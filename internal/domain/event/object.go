package event

// Object is an ordered map from string key to Value. Insertion order is
// preserved for iteration and encoding; lookups are O(1) via an auxiliary
// index.
type Object struct {
	keys []string
	index map[string]int
	vals []Value
}

// NewObject constructs an empty ordered object.
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Len reports the number of top-level keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the ordered key slice. Callers must not mutate it.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Get returns the value stored under key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.vals[i], true
}

// Set inserts or overwrites the value stored under key, preserving the
// original position on overwrite.
func (o *Object) Set(key string, v Value) {
	if i, ok := o.index[key]; ok {
		o.vals[i] = v
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, v)
}

// Delete removes key if present, preserving the relative order of the
// remaining keys.
func (o *Object) Delete(key string) {
	i, ok := o.index[key]
	if !ok {
		return
	}
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
	o.vals = append(o.vals[:i], o.vals[i+1:]...)
	delete(o.index, key)
	for k, idx := range o.index {
		if idx > i {
			o.index[k] = idx - 1
		}
	}
}

// Clone deep-copies the object.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	clone := &Object{
		keys: append([]string(nil), o.keys...),
		index: make(map[string]int, len(o.index)),
		vals: make([]Value, len(o.vals)),
	}
	for k, i := range o.index {
		clone.index[k] = i
	}
	for i, v := range o.vals {
		clone.vals[i] = v.Clone()
	}
	return clone
}

// Equal reports whether two objects hold the same keys and values,
// irrespective of insertion order.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for _, k := range o.Keys() {
		v, ok := o.Get(k)
		if !ok {
			continue
		}
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ByteSize estimates the object's in-memory footprint: the sum of key and
// value sizes plus a small per-entry container overhead.
func (o *Object) ByteSize() int {
	if o == nil {
		return 0
	}
	const entryOverhead = 16
	total := 0
	for i, k := range o.keys {
		total += len(k) + entryOverhead + o.vals[i].ByteSize()
	}
	return total
}
