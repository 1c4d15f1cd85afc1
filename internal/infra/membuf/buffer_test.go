package membuf

import (
	"context"
	"testing"
	"time"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/stretchr/testify/require"
)

func newLogEvent(n *finalizer.BatchNotifier) *event.Event {
	e := event.NewLog()
	if n != nil {
		e.AttachNotifier(n)
	}
	return e
}

func TestBuffer_Block_CapacityOne_SuspendsUntilConsumed(t *testing.T) {
	b := New("test", 1, PolicyBlock)
	ctx := context.Background()

	res, err := b.Send(ctx, newLogEvent(nil))
	require.NoError(t, err)
	require.Equal(t, SendOk, res)

	sendReturned := make(chan struct{})
	go func() {
		_, _ = b.Send(ctx, newLogEvent(nil))
		close(sendReturned)
	}()

	select {
	case <-sendReturned:
		t.Fatal("second send returned while the single slot was still occupied")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok, err := b.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-sendReturned:
	case <-time.After(time.Second):
		t.Fatal("second send did not resume after the slot freed")
	}
}

// TestBuffer_DropNewest_ScenarioC mirrors the documented contract Scenario C: capacity 2,
// DropNewest, 5 events sent back-to-back before anything is read.
func TestBuffer_DropNewest_ScenarioC(t *testing.T) {
	var observer countingObserver
	b := New("scenario-c", 2, PolicyDropNewest, WithObserver(&observer))
	ctx := context.Background()

	notifier := finalizer.NewBatchNotifier()
	events := make([]*event.Event, 5)
	for i := range events {
		events[i] = newLogEvent(notifier)
	}

	var dropped, ok int
	for _, e := range events {
		res, err := b.Send(ctx, e)
		require.NoError(t, err)
		switch res {
		case SendOk:
			ok++
		case SendDropped:
			dropped++
		}
	}

	require.Equal(t, 2, ok)
	require.Equal(t, 3, dropped)
	require.Equal(t, 3, observer.dropped)

	for i := 0; i < ok; i++ {
		e, recvOK, err := b.Recv(ctx)
		require.NoError(t, err)
		require.True(t, recvOK)
		e.Finalize(finalizer.StatusDelivered)
	}

	status, err := notifier.Wait(ctxTimeout(t))
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusErrored, status)
}

func TestBuffer_Overflow_ReturnsOverflowedWithoutConsuming(t *testing.T) {
	b := New("overflow", 1, PolicyOverflow)
	ctx := context.Background()

	res, err := b.Send(ctx, newLogEvent(nil))
	require.NoError(t, err)
	require.Equal(t, SendOk, res)

	e := newLogEvent(nil)
	res, err = b.Send(ctx, e)
	require.NoError(t, err)
	require.Equal(t, SendOverflowed, res)
	e.Finalize(finalizer.StatusDelivered) // caller still owns e
}

type countingObserver struct {
	component.NopObserver
	dropped int
}

func (o *countingObserver) OnDropped(d component.Dropped) { o.dropped += d.Count }

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}
