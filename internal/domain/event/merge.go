package event

// Merge implements the single non-trivial binary operator this runtime defines:
// when both operands are Bytes, their contents are concatenated;
// otherwise current is overwritten by incoming. This is the operator reduce
// transforms use to fold successive events of the same group into one.
func Merge(current, incoming Value) Value {
	curBytes, curIsBytes := current.AsBytes()
	incBytes, incIsBytes := incoming.AsBytes()
	if curIsBytes && incIsBytes {
		merged := make([]byte, 0, len(curBytes)+len(incBytes))
		merged = append(merged, curBytes...)
		merged = append(merged, incBytes...)
		return Bytes(merged)
	}
	return incoming
}

// MergeObjects merges incoming into current key by key using Merge,
// producing a new Object. Keys present only in incoming are added; keys
// present only in current are preserved.
func MergeObjects(current, incoming *Object) *Object {
	result := current.Clone()
	if result == nil {
		result = NewObject()
	}
	for _, k := range incoming.Keys() {
		iv, _ := incoming.Get(k)
		if cv, ok := result.Get(k); ok {
			result.Set(k, Merge(cv, iv))
		} else {
			result.Set(k, iv.Clone())
		}
	}
	return result
}
