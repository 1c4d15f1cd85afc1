package component

import "github.com/coachpo/conduit/internal/domain/errs"

// The four observable side-effect shapes every Source, Transform, and Sink
// must emit, so the supervisor/telemetry layer can aggregate
// them into the counters the documented contract requires without each component
// reimplementing metric emission.

// Received reports events accepted from upstream.
type Received struct {
	Component string
	Count int
}

// Sent reports events successfully handed to the next stage or external
// system.
type Sent struct {
	Component string
	Count int
}

// Dropped reports events that did not proceed, tagged with whether the drop
// was a policy decision (Intentional=true, e.g. buffer full under
// DropNewest) or a failure (Intentional=false).
type Dropped struct {
	Component string
	Count int
	Intentional bool
	Reason string
}

// Errored reports a classified error raised by a component.
type Errored struct {
	Component string
	Stage string
	Kind errs.Kind
	Err error
}

// Observer receives side-effect notifications from running components. The
// topology supervisor installs one Observer per build that forwards into
// telemetry.
type Observer interface {
	OnReceived(Received)
	OnSent(Sent)
	OnDropped(Dropped)
	OnErrored(Errored)
}

// NopObserver discards every notification; used by components and tests
// that have no telemetry wired.
type NopObserver struct{}

func (NopObserver) OnReceived(Received) {}
func (NopObserver) OnSent(Sent) {}
func (NopObserver) OnDropped(Dropped) {}
func (NopObserver) OnErrored(Errored) {}
