// Package blackhole provides a reference sink that discards every consumed
// event, finalizing it Delivered, for topologies where only the
// delivery-guarantee behavior of upstream stages matters, not the sink's
// own side effect. The scenario tests use their own test sinks instead.
package blackhole

import (
	"context"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

// Sink discards every event it receives.
type Sink struct{}

// New constructs a blackhole Sink. cfg is accepted to satisfy the
// registry's SinkFactory shape; this sink takes no configuration.
func New(cfg map[string]any) (component.Sink, error) {
	return Sink{}, nil
}

func (Sink) Run(ctx context.Context, in component.Receiver, shutdown *component.ShutdownSignal) error {
	for {
		e, ok, err := in.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
		e.Finalize(finalizer.StatusDelivered)
	}
}

func (Sink) Healthcheck(ctx context.Context) error { return nil }
