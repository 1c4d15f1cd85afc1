// Package generator provides a reference source emitting synthetic log or
// metric events at a fixed rate, for exercising a topology with no
// external collaborator. Grounded on the
// teacher's internal/adapters/fake provider, which synthesizes market data
// the same way this source synthesizes pipeline events.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

const componentName = "source.generator"

var messagePath = event.MustParsePath("message")
var sequencePath = event.MustParsePath("sequence")

// Config controls the generator's emission rate and total count.
type Config struct {
	// Interval between emitted events. Defaults to 1 second.
	Interval time.Duration
	// Count bounds the total number of events emitted; 0 means unbounded
	// (run until shutdown).
	Count int
	// Metric, when true, emits Metric events instead of Log events.
	Metric bool
}

// Source emits Log or Metric events on a fixed interval.
type Source struct {
	cfg Config
	notifier *finalizer.BatchNotifier
}

// New constructs a generator Source from cfg (as produced by
// config.ComponentSpec.Config), attaching every emitted event to a
// dedicated internal BatchNotifier so the generator's own delivery state
// can be inspected by tests.
func New(cfg map[string]any) (component.Source, error) {
	c := Config{Interval: time.Second}
	if v, ok := cfg["interval_ms"]; ok {
		ms, ok := toInt(v)
		if !ok {
			return nil, errs.Config(componentName, errs.WithMessage(fmt.Sprintf("interval_ms: expected integer, got %T", v)))
		}
		c.Interval = time.Duration(ms) * time.Millisecond
	}
	if v, ok := cfg["count"]; ok {
		n, ok := toInt(v)
		if !ok {
			return nil, errs.Config(componentName, errs.WithMessage(fmt.Sprintf("count: expected integer, got %T", v)))
		}
		c.Count = n
	}
	if v, ok := cfg["metric"].(bool); ok {
		c.Metric = v
	}
	return &Source{cfg: c, notifier: finalizer.NewBatchNotifier()}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Notifier returns the generator's internal BatchNotifier. Events are
// attached one at a time as they are emitted, so the notifier resolves the
// first time every event emitted so far has been finalized (with a
// ticker-paced source, usually after the first event); events emitted
// after that do not reopen it.
func (s *Source) Notifier() *finalizer.BatchNotifier { return s.notifier }

func (s *Source) Run(ctx context.Context, out component.Sender, shutdown *component.ShutdownSignal) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 0; s.cfg.Count == 0 || seq < s.cfg.Count; seq++ {
		select {
		case <-ctx.Done():
			return nil
		case <-shutdown.C():
			return nil
		case <-ticker.C:
		}

		e := s.newEvent(seq)
		if err := out.Send(ctx, e); err != nil {
			// Send returns e to us on a cancelled or failed handoff; it
			// never reached a receiver, so we're the last holder and must
			// resolve its finalizer ourselves.
			e.Finalize(finalizer.StatusErrored)
			if ctx.Err() != nil {
				return nil
			}
			return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(errs.KindTransient), errs.WithCause(err))
		}
	}
	return nil
}

func (s *Source) newEvent(seq int) *event.Event {
	if s.cfg.Metric {
		e := event.NewMetric(&event.Metric{
			Name: "generator.count",
			MetricKind: event.MetricIncremental,
			Value: event.CounterValue(float64(seq)),
		})
		e.AttachNotifier(s.notifier)
		return e
	}
	e := event.NewLog()
	e.Insert(messagePath, event.BytesString(fmt.Sprintf("generated event %d", seq)))
	e.Insert(sequencePath, event.Integer(int64(seq)))
	e.AttachNotifier(s.notifier)
	return e
}
