package event

import (
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

// EventKind discriminates the Event tagged union: Log, Metric, or Trace.
type EventKind uint8

const (
	EventLog EventKind = iota
	EventMetric
	EventTrace
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventMetric:
		return "metric"
	case EventTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Event is the typed in-memory record carried through the pipeline: a
// tagged union of Log, Metric, and Trace. Log and Trace share a
// representation (an ordered field-path map); Metric carries the
// name/namespace/tags/value shape from event.Metric.
//
// An Event owns zero or more Finalizers; cloning an Event shares the
// underlying BatchNotifier by forking a new Finalizer per clone.
type Event struct {
	kind EventKind

	fields Value // Log/Trace: always an Object-kind Value
	metric *Metric

	finalizers []*finalizer.Finalizer
}

// NewLog constructs an empty Log event.
func NewLog() *Event {
	return &Event{kind: EventLog, fields: Obj(NewObject())}
}

// NewTrace constructs an empty Trace event.
func NewTrace() *Event {
	return &Event{kind: EventTrace, fields: Obj(NewObject())}
}

// NewMetric constructs a Metric event wrapping m.
func NewMetric(m *Metric) *Event {
	return &Event{kind: EventMetric, metric: m}
}

// Kind reports which union variant e holds.
func (e *Event) Kind() EventKind { return e.kind }

// Fields returns the Log/Trace field tree. Panics if called on a Metric
// event; callers should branch on Kind first.
func (e *Event) Fields() *Value {
	if e.kind == EventMetric {
		panic("event: Fields called on a Metric event")
	}
	return &e.fields
}

// Metric returns the wrapped Metric. Panics if called on a Log/Trace event.
func (e *Event) Metric() *Metric {
	if e.kind != EventMetric {
		panic("event: Metric called on a non-Metric event")
	}
	return e.metric
}

// Get resolves a dotted path against a Log/Trace event's fields.
func (e *Event) Get(path Path) (Value, bool) {
	return Get(e.fields, path)
}

// Insert writes val at path within a Log/Trace event's fields.
func (e *Event) Insert(path Path, val Value) {
	Insert(&e.fields, path, val)
}

// Remove deletes the value at path within a Log/Trace event's fields.
func (e *Event) Remove(path Path) bool {
	return Remove(&e.fields, path)
}

// AttachNotifier attaches a new Finalizer bound to n to e, making e
// participate in n's batch acknowledgement.
func (e *Event) AttachNotifier(n *finalizer.BatchNotifier) {
	e.finalizers = append(e.finalizers, n.Attach())
}

// Finalizers returns e's attached finalizers. Callers must not retain or
// mutate the returned slice beyond the call.
func (e *Event) Finalizers() []*finalizer.Finalizer { return e.finalizers }

// DetachFinalizers removes and returns e's finalizers without releasing
// them, transferring responsibility for eventually releasing them to
// whatever re-attaches them via SetFinalizers. Used by buffer stages that
// persist an event's payload to a medium that outlives this Go value (e.g.
// the disk buffer), then reconstruct a new Event on read.
func (e *Event) DetachFinalizers() []*finalizer.Finalizer {
	fs := e.finalizers
	e.finalizers = nil
	return fs
}

// SetFinalizers attaches an existing finalizer set to e, replacing any it
// already holds. Pairs with DetachFinalizers.
func (e *Event) SetFinalizers(fs []*finalizer.Finalizer) {
	e.finalizers = fs
}

// UpdateStatus records status on every finalizer attached to e, without
// releasing them. Transforms that merely observe an outcome (e.g. a sink
// about to retry) use this to adjust the last-observed status before the
// terminal Finalize call.
func (e *Event) UpdateStatus(status finalizer.BatchStatus) {
	for _, f := range e.finalizers {
		f.Update(status)
	}
}

// Finalize sets status on every attached finalizer and releases them,
// exactly once. This is the terminal operation a sink must perform on every
// consumed event: "call finalize(status) on every consumed
// event exactly once."
func (e *Event) Finalize(status finalizer.BatchStatus) {
	for _, f := range e.finalizers {
		f.Update(status)
		f.Release()
	}
	e.finalizers = nil
}

// ByteSize estimates e's fully-owned in-memory footprint.
func (e *Event) ByteSize() int {
	const overhead = 32
	switch e.kind {
	case EventMetric:
		return overhead + e.metric.ByteSize()
	default:
		return overhead + e.fields.ByteSize()
	}
}

// Clone deep-copies e's payload and forks a new Finalizer per existing
// attachment, so the clone independently participates in the same batch
// acknowledgements as the original.
func (e *Event) Clone() *Event {
	clone := &Event{kind: e.kind}
	switch e.kind {
	case EventMetric:
		clone.metric = e.metric.Clone()
	default:
		clone.fields = e.fields.Clone()
	}
	clone.finalizers = make([]*finalizer.Finalizer, len(e.finalizers))
	for i, f := range e.finalizers {
		clone.finalizers[i] = f.Fork()
	}
	return clone
}

// Split produces n independent clones of e, each carrying its own forked
// finalizer set bound to the same notifiers as e, then finalizes e itself
// as Delivered (the original is consumed by the split, not an additional
// holder — only the n clones go on to be finalized by downstream
// components). Used by transforms that turn one event into many (the
// Function transform contract: "splitting one event into N must attach the
// original finalizer to all N").
func (e *Event) Split(n int) []*Event {
	out := make([]*Event, n)
	for i := 0; i < n; i++ {
		out[i] = e.Clone()
	}
	e.Finalize(finalizer.StatusDelivered)
	return out
}
