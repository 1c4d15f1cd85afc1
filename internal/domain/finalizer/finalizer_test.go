package finalizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchNotifier_AllDelivered(t *testing.T) {
	n := NewBatchNotifier()
	finalizers := make([]*Finalizer, 3)
	for i := range finalizers {
		finalizers[i] = n.Attach()
	}

	for _, f := range finalizers {
		f.Release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := n.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, status)
}

func TestBatchNotifier_WorstStatusWins(t *testing.T) {
	n := NewBatchNotifier()
	a, b, c := n.Attach(), n.Attach(), n.Attach()

	a.Release()
	b.Update(StatusErrored)
	b.Release()
	c.Update(StatusRejected)
	c.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := n.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, status)
}

func TestBatchNotifier_ResolvesOnlyOnceAllReleased(t *testing.T) {
	n := NewBatchNotifier()
	a := n.Attach()
	b := n.Attach()
	a.Release()

	select {
	case <-n.Done():
		t.Fatal("notifier resolved before all finalizers released")
	case <-time.After(20 * time.Millisecond):
	}

	b.Release()
	<-n.Done()
}

func TestFinalizer_Fork_AttachesToSameNotifier(t *testing.T) {
	n := NewBatchNotifier()
	original := n.Attach()
	forked := original.Fork()
	require.Same(t, n, forked.Notifier())

	original.Release()
	select {
	case <-n.Done():
		t.Fatal("notifier resolved with outstanding fork")
	case <-time.After(20 * time.Millisecond):
	}

	forked.Release()
	<-n.Done()
}

func TestFinalizer_ReleaseIsIdempotent(t *testing.T) {
	n := NewBatchNotifier()
	f := n.Attach()
	f.Release()
	f.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := n.Wait(ctx)
	require.NoError(t, err)
}
