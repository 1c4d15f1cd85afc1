package event

import (
	"context"
	"testing"
	"time"

	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/stretchr/testify/require"
)

func TestEvent_ByteSize_ContainerAtLeastSumOfElements(t *testing.T) {
	e := NewLog()
	e.Insert(MustParsePath("message"), BytesString("hello world"))
	e.Insert(MustParsePath("count"), Integer(7))

	msg, _ := e.Get(MustParsePath("message"))
	count, _ := e.Get(MustParsePath("count"))
	require.GreaterOrEqual(t, e.ByteSize(), msg.ByteSize()+count.ByteSize())
}

func TestEvent_Clone_ForksFinalizers(t *testing.T) {
	n := finalizer.NewBatchNotifier()
	e := NewLog()
	e.Insert(MustParsePath("a"), Integer(1))
	e.AttachNotifier(n)

	clone := e.Clone()
	require.Len(t, clone.Finalizers(), 1)
	require.NotSame(t, e.Finalizers()[0], clone.Finalizers()[0])

	clonedVal, ok := clone.Get(MustParsePath("a"))
	require.True(t, ok)
	i, _ := clonedVal.AsInteger()
	require.EqualValues(t, 1, i)

	e.Finalize(finalizer.StatusDelivered)
	select {
	case <-n.Done():
		t.Fatal("notifier resolved while clone's finalizer is still outstanding")
	default:
	}
	clone.Finalize(finalizer.StatusDelivered)
	<-n.Done()
}

func TestEvent_Split_AllCloesParticipateInNotifier(t *testing.T) {
	n := finalizer.NewBatchNotifier()
	e := NewLog()
	e.AttachNotifier(n)

	clones := e.Split(3)
	require.Len(t, clones, 3)

	for _, c := range clones[:2] {
		c.Finalize(finalizer.StatusDelivered)
	}
	select {
	case <-n.Done():
		t.Fatal("notifier resolved before all split clones finalized")
	default:
	}
	clones[2].Finalize(finalizer.StatusErrored)

	status, err := n.Wait(ctxWithTimeout(t))
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusErrored, status)
}

func TestEvent_Finalize_IsIdempotentAndClearsFinalizers(t *testing.T) {
	n := finalizer.NewBatchNotifier()
	e := NewLog()
	e.AttachNotifier(n)

	e.Finalize(finalizer.StatusDelivered)
	require.Empty(t, e.Finalizers())
	e.Finalize(finalizer.StatusErrored) // no-op, no finalizers left

	status, err := n.Wait(ctxWithTimeout(t))
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusDelivered, status)
}

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}
