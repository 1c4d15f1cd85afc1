package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		in string
		want Path
	}{
		{"foo", Path{{Field: "foo"}}},
		{"foo.bar", Path{{Field: "foo"}, {Field: "bar"}}},
		{"foo[0]", Path{{Field: "foo"}, {Index: 0, IsIndex: true}}},
		{`"weird.key".bar`, Path{{Field: "weird.key"}, {Field: "bar"}}},
		{`foo."a\"b"`, Path{{Field: "foo"}, {Field: `a"b`}}},
	}
	for _, tc := range cases {
		got, err := ParsePath(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParsePath_Errors(t *testing.T) {
	for _, in := range []string{"", "foo[", `foo."bar`} {
		_, err := ParsePath(in)
		require.Error(t, err, in)
	}
}

func TestInsertAndGet_CreatesIntermediateObjects(t *testing.T) {
	root := Obj(NewObject())
	Insert(&root, MustParsePath("a.b.c"), Integer(42))

	got, ok := Get(root, MustParsePath("a.b.c"))
	require.True(t, ok)
	i, _ := got.AsInteger()
	require.EqualValues(t, 42, i)
}

func TestInsert_PadsArrayWithNull(t *testing.T) {
	root := Obj(NewObject())
	Insert(&root, MustParsePath("items[2]"), BytesString("x"))

	arrVal, ok := Get(root, MustParsePath("items"))
	require.True(t, ok)
	arr, ok := arrVal.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 3)
	require.True(t, arr[0].IsNull())
	require.True(t, arr[1].IsNull())
	b, _ := arr[2].AsBytes()
	require.Equal(t, "x", string(b))
}

func TestRemove(t *testing.T) {
	root := Obj(NewObject())
	Insert(&root, MustParsePath("a.b"), Integer(1))
	Insert(&root, MustParsePath("a.c"), Integer(2))

	require.True(t, Remove(&root, MustParsePath("a.b")))
	_, ok := Get(root, MustParsePath("a.b"))
	require.False(t, ok)
	_, ok = Get(root, MustParsePath("a.c"))
	require.True(t, ok)
}

func TestPathString_QuotesNonIdentifiers(t *testing.T) {
	p := Path{{Field: "weird key"}, {Index: 3, IsIndex: true}}
	require.Equal(t, `"weird key"[3]`, p.String())
}
