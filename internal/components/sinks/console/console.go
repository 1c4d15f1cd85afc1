// Package console provides a reference sink that writes every consumed
// event to a writer (stdout by default) as a line of JSON, using the
// runtime's codec package. It exists to exercise the Sink contract end to
// end with no external collaborator, the way the teacher's
// internal/adapters/fake provider exercises the provider contract with no
// real exchange behind it.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/codec"
)

const componentName = "sink.console"

// Sink writes each consumed event as a JSON line to Writer (os.Stdout if
// nil).
type Sink struct {
	mu sync.Mutex
	Writer io.Writer
	codec codec.EventCodec
}

// New constructs a console Sink. cfg is accepted to satisfy the registry's
// SinkFactory shape; this sink takes no configuration.
func New(cfg map[string]any) (component.Sink, error) {
	return &Sink{Writer: os.Stdout, codec: codec.New()}, nil
}

func (s *Sink) Run(ctx context.Context, in component.Receiver, shutdown *component.ShutdownSignal) error {
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

		b, encErr := s.codec.Encode(e)
		if encErr != nil {
			e.Finalize(finalizer.StatusRejected)
			continue
		}

		s.mu.Lock()
		_, writeErr := fmt.Fprintln(s.Writer, string(b))
		s.mu.Unlock()

		if writeErr != nil {
			e.Finalize(finalizer.StatusErrored)
			return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(errs.KindTransient), errs.WithCause(writeErr))
		}
		e.Finalize(finalizer.StatusDelivered)
	}
}

func (s *Sink) Healthcheck(ctx context.Context) error { return nil }
