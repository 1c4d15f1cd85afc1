// Package finalizer implements the delivery-guarantee mechanism: a
// source-issued BatchNotifier that resolves once every Finalizer attached
// to it has reported a terminal status, and the per-event Finalizer that
// carries that status back.
//
// Rust's ownership model resolves a BatchNotifier when the last Finalizer
// referencing it is dropped; Go has no destructors, so every holder of a
// Finalizer must call Release exactly once on every code path (including
// panics recovered upstream). See DESIGN.md for the note on replacing that
// ownership cycle with explicit reference counting.
package finalizer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// BatchStatus is the terminal outcome of a batch, one of Delivered, Errored,
// Rejected. The zero value is Delivered, matching the "default: Delivered"
// rule in the documented contract.
type BatchStatus uint8

const (
	StatusDelivered BatchStatus = iota
	StatusErrored
	StatusRejected
)

func (s BatchStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusErrored:
		return "errored"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// worse returns whichever of a and b takes priority under the
// Rejected > Errored > Delivered ordering the documented contract requires for status
// aggregation.
func worse(a, b BatchStatus) BatchStatus {
	if b > a {
		return b
	}
	return a
}

// BatchNotifier aggregates the delivery status of every Finalizer attached
// to it. It resolves to the worst reported status once every attached
// Finalizer has been released.
type BatchNotifier struct {
	id uuid.UUID
	mu sync.Mutex
	pending int64
	status BatchStatus
	done chan struct{}
	closed bool
}

// NewBatchNotifier creates a notifier with no attachments yet. Callers must
// Attach it to every event in the logical batch before relying on Wait; a
// notifier with zero attachments never resolves.
func NewBatchNotifier() *BatchNotifier {
	return &BatchNotifier{id: uuid.New(), done: make(chan struct{})}
}

// ID returns the notifier's unique identifier, used for ledger/log
// correlation.
func (n *BatchNotifier) ID() uuid.UUID { return n.id }

// Attach creates a new Finalizer bound to n, incrementing n's outstanding
// reference count. The caller owns the returned Finalizer and must Release
// it exactly once.
func (n *BatchNotifier) Attach() *Finalizer {
	atomic.AddInt64(&n.pending, 1)
	return &Finalizer{notifier: n, status: StatusDelivered}
}

// Wait blocks until every attached Finalizer has been released, returning
// the aggregate BatchStatus, or until ctx is done.
func (n *BatchNotifier) Wait(ctx context.Context) (BatchStatus, error) {
	select {
	case <-n.done:
		n.mu.Lock()
		status := n.status
		n.mu.Unlock()
		return status, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Done returns a channel closed once the notifier has resolved, for callers
// that want to select on it alongside other events.
func (n *BatchNotifier) Done() <-chan struct{} { return n.done }

func (n *BatchNotifier) release(status BatchStatus) {
	n.mu.Lock()
	n.status = worse(n.status, status)
	n.mu.Unlock()

	if atomic.AddInt64(&n.pending, -1) == 0 {
		n.mu.Lock()
		if !n.closed {
			n.closed = true
			close(n.done)
		}
		n.mu.Unlock()
	}
}

// Finalizer is a per-event attachment that forwards its last-observed
// status to its owning BatchNotifier when released.
type Finalizer struct {
	notifier *BatchNotifier
	mu sync.Mutex
	status BatchStatus
	released bool
}

// Notifier returns the BatchNotifier f is attached to.
func (f *Finalizer) Notifier() *BatchNotifier { return f.notifier }

// Update records the most recent status observed for the event f is
// attached to. Per the documented contract the finalizer reports only the most recent
// status it was told; later calls overwrite earlier ones (the notifier
// itself, not the finalizer, computes the worst-of aggregate).
func (f *Finalizer) Update(status BatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.status = status
}

// Release reports f's last-observed status to its notifier and detaches.
// Safe to call more than once; only the first call has effect. Every
// component that stops holding an event carrying this Finalizer — because
// it was delivered, dropped, or the holder is unwinding from a panic — must
// call Release on exactly one path.
func (f *Finalizer) Release() {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return
	}
	f.released = true
	status := f.status
	f.mu.Unlock()
	f.notifier.release(status)
}

// Fork creates an additional Finalizer bound to the same notifier as f. Used
// when an event carrying f is cloned or split.
func (f *Finalizer) Fork() *Finalizer {
	return f.notifier.Attach()
}
