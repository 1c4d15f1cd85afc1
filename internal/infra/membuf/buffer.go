// Package membuf implements the bounded in-memory buffer: a single
// producer / single consumer queue of events with a configurable
// full-policy, the shallowest stage in a buffer topology (see
// internal/infra/buffertopology).
package membuf

import (
	"context"
	"sync"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

// Buffer is a bounded channel-backed event queue with capacity expressed in
// event count. Ordering guarantee: events observed by Recv
// appear in the order their Send calls completed, since Go channels are
// themselves FIFO and this layer does not support concurrent producers.
type Buffer struct {
	name string
	ch chan *event.Event
	policy FullPolicy
	observer component.Observer

	closeOnce sync.Once
}

// Option customizes Buffer construction.
type Option func(*Buffer)

// WithObserver installs the Observer notified of policy-driven drops.
func WithObserver(o component.Observer) Option {
	return func(b *Buffer) { b.observer = o }
}

// New constructs a Buffer with the given capacity and full-policy. capacity
// must be positive.
func New(name string, capacity int, policy FullPolicy, opts ...Option) *Buffer {
	if capacity <= 0 {
		panic("membuf: capacity must be positive")
	}
	b := &Buffer{
		name: name,
		ch: make(chan *event.Event, capacity),
		policy: policy,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.observer == nil {
		b.observer = component.NopObserver{}
	}
	return b
}

// Policy reports the configured full-policy.
func (b *Buffer) Policy() FullPolicy { return b.policy }

// Len reports the number of events currently resident.
func (b *Buffer) Len() int { return len(b.ch) }

// Pending reports the number of events currently resident, satisfying
// buffertopology.Stage alongside diskbuf.Buffer's equivalent method.
func (b *Buffer) Pending() int { return b.Len() }

// Capacity reports the configured capacity.
func (b *Buffer) Capacity() int { return cap(b.ch) }

// Send enqueues e according to the configured full-policy.
// - Block: suspends until space frees or ctx is done.
// - DropNewest: returns SendDropped immediately if full, resolving e's
// finalizers Errored with reason "buffer_full" and counting a
// Dropped{Intentional:true} side effect.
// - Overflow: returns SendOverflowed immediately if full, without
// consuming e; the caller (buffertopology) is responsible for routing
// it to the next stage.
//
// Cancel-safety: if ctx is done before e is enqueued, Send returns the
// context error without having taken ownership of e; the caller retains e and must finalize
// it itself.
func (b *Buffer) Send(ctx context.Context, e *event.Event) (SendResult, error) {
	switch b.policy {
	case PolicyBlock:
		select {
		case b.ch <- e:
			return SendOk, nil
		case <-ctx.Done():
			return SendOk, ctx.Err()
		}
	case PolicyDropNewest:
		select {
		case b.ch <- e:
			return SendOk, nil
		default:
			e.Finalize(finalizer.StatusErrored)
			b.observer.OnDropped(component.Dropped{
				Component: b.name,
				Count: 1,
				Intentional: true,
				Reason: "buffer_full",
			})
			return SendDropped, nil
		}
	case PolicyOverflow:
		select {
		case b.ch <- e:
			return SendOk, nil
		default:
			return SendOverflowed, nil
		}
	default:
		panic("membuf: unknown full policy")
	}
}

// Recv dequeues the next event, in Send-completion order. ok is false once
// the buffer has been closed and fully drained.
func (b *Buffer) Recv(ctx context.Context) (*event.Event, bool, error) {
	select {
	case e, ok := <-b.ch:
		if !ok {
			return nil, false, nil
		}
		return e, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close stops accepting new events. Safe to call more than once. Events
// already resident remain available to Recv until drained.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}
