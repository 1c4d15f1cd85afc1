package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObject_PreservesInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("z", Integer(1))
	o.Set("a", Integer(2))
	o.Set("m", Integer(3))
	require.Equal(t, []string{"z", "a", "m"}, o.Keys())
}

func TestObject_SetOverwritesInPlace(t *testing.T) {
	o := NewObject()
	o.Set("a", Integer(1))
	o.Set("b", Integer(2))
	o.Set("a", Integer(99))
	require.Equal(t, []string{"a", "b"}, o.Keys())
	v, _ := o.Get("a")
	i, _ := v.AsInteger()
	require.EqualValues(t, 99, i)
}

func TestObject_DeleteShiftsIndex(t *testing.T) {
	o := NewObject()
	o.Set("a", Integer(1))
	o.Set("b", Integer(2))
	o.Set("c", Integer(3))
	o.Delete("b")
	require.Equal(t, []string{"a", "c"}, o.Keys())
	v, ok := o.Get("c")
	require.True(t, ok)
	i, _ := v.AsInteger()
	require.EqualValues(t, 3, i)
}

func TestObject_Clone_IsIndependent(t *testing.T) {
	o := NewObject()
	o.Set("a", Integer(1))
	clone := o.Clone()
	clone.Set("a", Integer(2))

	v, _ := o.Get("a")
	i, _ := v.AsInteger()
	require.EqualValues(t, 1, i)
}

func TestObject_Equal_IgnoresInsertionOrder(t *testing.T) {
	a := NewObject()
	a.Set("x", Integer(1))
	a.Set("y", Integer(2))

	b := NewObject()
	b.Set("y", Integer(2))
	b.Set("x", Integer(1))

	require.True(t, a.Equal(b))
}
