// Package async provides a bounded worker pool used to run otherwise
// synchronous work (batch flushes, retriable round trips) off a hot Recv
// loop, backed by conduit's structured error taxonomy so a failing task is
// classified and logged rather than silently dropped.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coachpo/conduit/internal/domain/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool defines a bounded worker pool enforcing backpressure when saturated.
// A task that panics or returns an error is logged with its errs.Kind
// classification (KindFatalRuntime for a panic, the wrapped *errs.Error's
// own Kind or KindTransient otherwise) rather than swallowed, since the
// caller already handed off the task and has no other way to observe its
// outcome.
type Pool struct {
	name string
	log zerolog.Logger

	ctx context.Context
	cancel context.CancelFunc
	jobs chan job
	wg sync.WaitGroup
	once sync.Once
}

type job struct {
	ctx context.Context
	fn Task
}

// Option customizes a Pool's error-reporting identity.
type Option func(*Pool)

// WithLogger attaches the zerolog.Logger and component name a Pool tags
// every task-panic/task-error log entry with. Pools constructed without
// this option log nowhere (zerolog.Nop), matching a caller that has chosen
// not to surface task failures beyond whatever the task itself does (e.g.
// finalizing the events it was handling).
func WithLogger(name string, logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.name = name
		p.log = logger
	}
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{name: "lib/async", log: zerolog.Nop()}
	p.ctx = ctx
	p.cancel = cancel
	p.jobs = make(chan job, queue)
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task for execution respecting pool backpressure.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.wg.Add(1)
	select {
	case <-p.ctx.Done():
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	case <-ctx.Done():
		p.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks and cancels the pool context; workers run
// the tasks already queued, then exit.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		close(p.jobs)
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			ctx := job.ctx
			if ctx == nil {
				ctx = p.ctx
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						p.log.Error().
							Str("component", p.name).
							Str("kind", string(errs.KindFatalRuntime)).
							Interface("panic", r).
							Msg("async task panicked")
					}
				}()
				if err := job.fn(ctx); err != nil {
					kind := errs.KindTransient
					var classified *errs.Error
					if errors.As(err, &classified) {
						kind = classified.Kind
					}
					p.log.Error().
						Str("component", p.name).
						Str("kind", string(kind)).
						Err(err).
						Msg("async task failed")
				}
			}()
			p.wg.Done()
		}
	}
}
