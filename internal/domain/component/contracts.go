// Package component defines the runtime contracts imposed on sources,
// transforms, and sinks — the shapes the topology supervisor wires
// together — plus the shutdown broadcast primitive and the observable
// side-effect vocabulary every component must emit.
package component

import (
	"context"

	"github.com/coachpo/conduit/internal/domain/event"
)

// Sender is the output side of a component's wiring: an event is pushed
// downstream through it, applying whatever buffer full-policy the topology
// wired in front of the receiving stage. Send must be cancel-safe: if ctx is
// done while waiting to enqueue, the event is returned to the caller rather
// than being silently dropped, so the caller can finalize it itself.
type Sender interface {
	Send(ctx context.Context, e *event.Event) error
}

// Receiver is the input side of a component's wiring. Recv returns ok=false
// once the upstream stage is closed and drained, with no error.
type Receiver interface {
	Recv(ctx context.Context) (e *event.Event, ok bool, err error)
}

// Source produces events from an external or synthetic upstream. Run must:
// - emit events in producer-natural order, attaching a BatchNotifier
// whenever upstream acknowledgement is possible;
// - stop producing new events within a bounded time after shutdown fires,
// while optionally continuing to drain in-flight reads;
// - never panic on a transient network error — classify it instead.
type Source interface {
	Run(ctx context.Context, out Sender, shutdown *ShutdownSignal) error
}

// FunctionTransform is the pure `Event -> [Event]` shape (0, 1, or many
// outputs). Implementations that drop an event as a failure must mark that
// event's finalizer Errored before discarding it; implementations that drop
// an event as a policy decision (e.g. a filter) let it resolve Delivered.
// Splitting one event into N must use event.Event.Split so all N share the
// original's finalizers.
type FunctionTransform interface {
	Transform(e *event.Event) []*event.Event
}

// TaskTransform is the `Stream<Event> -> Stream<Event>` shape: it may buffer
// internally with its own bounded queue and reorder, subject to the same
// finalizer discipline as FunctionTransform.
type TaskTransform interface {
	Run(ctx context.Context, in Receiver, out Sender, shutdown *ShutdownSignal) error
}

// BatchReducer is the sync batch reducer shape: it accumulates
// events until a condition fires (ends_when, max size, max duration) and
// emits one merged event whose finalizer subsumes all inputs. Add returns
// the event to emit and true exactly when accumulation should flush; Flush
// forces emission of whatever is accumulated (e.g. on shutdown). Sweep
// force-flushes whichever open groups have independently crossed their max
// duration since their last Add, letting a group that goes quiet resolve
// without waiting on a new arrival or process shutdown; it must be safe to
// call concurrently with Add/Flush, since the supervisor drives it off a
// separate ticker goroutine. Implementations with no duration-based
// condition may return nil.
type BatchReducer interface {
	Add(e *event.Event) (emit *event.Event, ready bool)
	Flush() *event.Event
	Sweep() []*event.Event
}

// Sink consumes events, produces an external side effect, and must call
// event.Event.Finalize on every consumed event exactly once, classifying
// the outcome as Rejected (permanent), Errored (retriable exhausted), or
// Delivered (success). Healthcheck is invoked by the supervisor before the
// topology is declared ready, bounded by a per-sink timeout.
type Sink interface {
	Run(ctx context.Context, in Receiver, shutdown *ShutdownSignal) error
	Healthcheck(ctx context.Context) error
}
