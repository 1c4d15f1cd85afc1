package telemetry

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/conduit/internal/domain/component"
)

// Counters holds the OpenTelemetry instruments an Observer increments.
// NewCounters constructs them against a meter.
type Counters struct {
	ReceivedEvents metric.Int64Counter
	SentEvents metric.Int64Counter
	DiscardedEvents metric.Int64Counter // component_discarded_events_total; buffer drops are counted here too, there is no separate buffer instrument
	ComponentErrors metric.Int64Counter
	CorruptRecords metric.Int64Counter // buffer_corrupt_records_total; registered, but nothing increments it (diskbuf keeps its own count, Buffer.CorruptRecords)
}

// NewCounters registers the instruments this runtime's Observer reports
// through, against meter.
func NewCounters(meter metric.Meter) (Counters, error) {
	var c Counters
	var err error
	if c.ReceivedEvents, err = meter.Int64Counter("component_received_events_total"); err != nil {
		return c, err
	}
	if c.SentEvents, err = meter.Int64Counter("component_sent_events_total"); err != nil {
		return c, err
	}
	if c.DiscardedEvents, err = meter.Int64Counter("component_discarded_events_total"); err != nil {
		return c, err
	}
	if c.ComponentErrors, err = meter.Int64Counter("component_errors_total"); err != nil {
		return c, err
	}
	if c.CorruptRecords, err = meter.Int64Counter("buffer_corrupt_records_total"); err != nil {
		return c, err
	}
	return c, nil
}

// Observer is the component.Observer the supervisor installs into every
// node's wiring: it forwards each side effect into an OpenTelemetry counter
// increment, and drops and errors also into a zerolog structured log entry
// (errors carry component, stage, kind and error fields). Grounded on the teacher's
// eventbus error-logging pattern (log the failure, tag it with the
// originating component), generalized from bus delivery errors to the full
// Received/Sent/Dropped/Errored vocabulary the documented contract defines.
type Observer struct {
	log zerolog.Logger
	counters Counters
	environment string
}

// NewObserver constructs an Observer logging to os.Stderr, tagging every
// entry and metric with environment.
func NewObserver(counters Counters, environment string) Observer {
	return Observer{
		log: zerolog.New(os.Stderr).With().Timestamp().Str("environment", environment).Logger(),
		counters: counters,
		environment: environment,
	}
}

var _ component.Observer = Observer{}

var currentEnvironment atomic.Value

// setEnvironment records the deployment environment Init was configured
// with, so packages outside the observer's direct wiring (persistence
// migrations, for instance) can tag their own metrics consistently without
// threading an explicit parameter through every call site.
func setEnvironment(environment string) {
	currentEnvironment.Store(environment)
}

// Environment returns the environment most recently passed to Init, or ""
// if Init has not run yet.
func Environment() string {
	v, _ := currentEnvironment.Load().(string)
	return v
}

func (o Observer) OnReceived(e component.Received) {
	o.counters.ReceivedEvents.Add(context.Background(), int64(e.Count), metricOpt(ReceivedAttributes(o.environment, e.Component)))
}

func (o Observer) OnSent(e component.Sent) {
	o.counters.SentEvents.Add(context.Background(), int64(e.Count), metricOpt(SentAttributes(o.environment, e.Component)))
}

func (o Observer) OnDropped(e component.Dropped) {
	o.counters.DiscardedEvents.Add(context.Background(), int64(e.Count), metricOpt(DroppedAttributes(o.environment, e.Component, e.Intentional, e.Reason)))
	o.log.Warn().
	Str("component", e.Component).
	Bool("intentional", e.Intentional).
	Str("reason", e.Reason).
	Int("count", e.Count).
	Msg("event dropped")
}

func (o Observer) OnErrored(e component.Errored) {
	o.counters.ComponentErrors.Add(context.Background(), 1, metricOpt(ErroredAttributes(o.environment, e.Component, e.Stage, string(e.Kind))))
	ev := o.log.Error().
	Str("component", e.Component).
	Str("stage", e.Stage).
	Str("kind", string(e.Kind))
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg("component error")
}

func metricOpt(attrs []attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(attrs...)
}
