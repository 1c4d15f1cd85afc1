package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge_BytesConcatenates(t *testing.T) {
	got := Merge(BytesString("hello "), BytesString("world"))
	b, ok := got.AsBytes()
	require.True(t, ok)
	require.Equal(t, "hello world", string(b))
}

func TestMerge_NonBytesOverwrites(t *testing.T) {
	got := Merge(Integer(1), Integer(2))
	i, ok := got.AsInteger()
	require.True(t, ok)
	require.EqualValues(t, 2, i)

	got = Merge(Integer(1), BytesString("x"))
	_, ok = got.AsBytes()
	require.True(t, ok)
}

func TestMergeObjects(t *testing.T) {
	cur := NewObject()
	cur.Set("msg", BytesString("hello "))
	cur.Set("count", Integer(1))

	inc := NewObject()
	inc.Set("msg", BytesString("world"))
	inc.Set("new", Bool(true))

	merged := MergeObjects(cur, inc)

	msg, _ := merged.Get("msg")
	b, _ := msg.AsBytes()
	require.Equal(t, "hello world", string(b))

	count, ok := merged.Get("count")
	require.True(t, ok)
	i, _ := count.AsInteger()
	require.EqualValues(t, 1, i)

	n, ok := merged.Get("new")
	require.True(t, ok)
	flag, _ := n.AsBool()
	require.True(t, flag)
}
