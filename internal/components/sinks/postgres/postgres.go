// Package postgres provides the runtime's one real external-collaborator
// sink: it batches consumed events and inserts them into a Postgres
// `events` table via pgx/v5, applying schema migrations on first
// Healthcheck and retrying transient failures with bounded backoff.
// Grounded on the teacher's internal/infra/persistence/postgres package
// (pgx.NamedArgs insert pattern, pool construction) and
// internal/infra/persistence/migrations (golang-migrate wiring), with
// constraint-violation classification added per this sink's Rejected-vs-
// Errored contract.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/codec"
	"github.com/coachpo/conduit/internal/infra/persistence"
	"github.com/coachpo/conduit/internal/infra/persistence/migrations"
	"github.com/coachpo/conduit/lib/async"
)

const componentName = "sink.postgres"

const insertEventSQL = `
INSERT INTO events (kind, fields)
VALUES (@kind, @fields::jsonb);
`

// Sink batches consumed events and flushes them to Postgres. Events are
// buffered until BatchSize is reached or FlushInterval elapses, whichever
// comes first.
type Sink struct {
	dsn string
	batchSize int
	flushInterval time.Duration
	limiter *rate.Limiter

	store *persistence.Store
	codec codec.EventCodec
	log zerolog.Logger

	// flushPool runs flushBatch calls concurrently, bounded, so a slow
	// round trip to Postgres doesn't stall the Recv loop from accumulating
	// the next batch.
	flushPool *async.Pool
}

// New builds a postgres Sink from cfg["dsn"] and optional
// cfg["batch_size"]/cfg["flush_interval_ms"]/cfg["requests_per_second"]/
// cfg["flush_concurrency"]. The limiter paces outbound SendBatch calls
// rather than individual events, since Postgres round trips are batched
// already.
func New(cfg map[string]any) (component.Sink, error) {
	dsn, _ := cfg["dsn"].(string)
	if strings.TrimSpace(dsn) == "" {
		return nil, errs.Config(componentName, errs.WithMessage("dsn: required Postgres connection string"))
	}
	s := &Sink{dsn: dsn, batchSize: 100, flushInterval: time.Second, codec: codec.New()}
	if n, ok := toInt(cfg["batch_size"]); ok && n > 0 {
		s.batchSize = n
	}
	if n, ok := toInt(cfg["flush_interval_ms"]); ok && n > 0 {
		s.flushInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := toInt(cfg["requests_per_second"]); ok && n > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(n), n)
	}

	flushConcurrency := 4
	if n, ok := toInt(cfg["flush_concurrency"]); ok && n > 0 {
		flushConcurrency = n
	}
	s.log = zerolog.New(os.Stderr).With().Timestamp().Str("component", componentName).Logger()
	flushPool, err := async.NewPool(flushConcurrency, flushConcurrency*2, async.WithLogger(componentName, s.log))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", componentName, err)
	}
	s.flushPool = flushPool

	return s, nil
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

func (s *Sink) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if s.store != nil && s.store.Pool() != nil {
		return s.store.Pool(), nil
	}
	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", componentName, err)
	}
	s.store = persistence.NewStore(pool)
	return pool, nil
}

// Healthcheck applies pending migrations and pings the pool, establishing
// the connection on first call.
func (s *Sink) Healthcheck(ctx context.Context) error {
	pool, err := s.pool(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Apply(ctx, s.dsn, "", s.log); err != nil {
		return fmt.Errorf("%s: apply migrations: %w", componentName, err)
	}
	return pool.Ping(ctx)
}

func (s *Sink) Run(ctx context.Context, in component.Receiver, shutdown *component.ShutdownSignal) error {
	pool, err := s.pool(ctx)
	if err != nil {
		return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(errs.KindTransient), errs.WithCause(err))
	}

	batch := make([]*event.Event, 0, s.batchSize)
	flushAt := time.Now().Add(s.flushInterval)

	// flush hands the accumulated batch to flushPool so the Recv loop can
	// keep accumulating the next one while Postgres is still digesting
	// this one. pending is a fresh slice so the pool's goroutine never
	// races the next batch's appends against batch's backing array.
	flush := func() {
		flushAt = time.Now().Add(s.flushInterval)
		if len(batch) == 0 {
			return
		}
		pending := batch
		batch = make([]*event.Event, 0, s.batchSize)
		submitErr := s.flushPool.Submit(ctx, func(taskCtx context.Context) error {
			return s.flushBatch(taskCtx, pool, pending)
		})
		if submitErr != nil {
			// Pool saturated or closed: fall back to a synchronous flush
			// rather than drop the batch.
			_ = s.flushBatch(ctx, pool, pending)
		}
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*s.flushInterval)
		defer cancel()
		_ = s.flushPool.Shutdown(shutdownCtx)
	}()

	for {
		// Bound each Recv by the remaining time until the next scheduled
		// flush, so a quiet upstream still flushes a partial batch on
		// FlushInterval rather than waiting for BatchSize (nothing waits
		// forever on an idle upstream).
		deadlineCtx, cancel := context.WithDeadline(ctx, flushAt)
		e, ok, err := in.Recv(deadlineCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				flush()
				return nil
			}
			if deadlineCtx.Err() != nil {
				flush()
				continue
			}
			return err
		}
		if !ok {
			flush()
			return nil
		}
		batch = append(batch, e)
		if len(batch) >= s.batchSize {
			flush()
		}
	}
}

// flushBatch inserts every event in batch, retrying transient failures with
// bounded backoff and classifying terminal outcomes per event: a
// constraint violation resolves Rejected, an exhausted retry resolves
// Errored, success resolves Delivered. The returned error carries the same
// classification (errs.KindDeserialize for a rejected batch, errs.KindTransient
// otherwise) so a caller running this asynchronously (flushPool) can log
// the failure instead of it vanishing once every event is finalized.
func (s *Sink) flushBatch(ctx context.Context, pool *pgxpool.Pool, batch []*event.Event) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			for _, e := range batch {
				e.Finalize(finalizer.StatusErrored)
			}
			return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(errs.KindTransient), errs.WithStage("rate_limit"), errs.WithCause(err))
		}
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.insertBatch(ctx, pool, batch)
	}, backoff.WithMaxTries(5))

	if err == nil {
		for _, e := range batch {
			e.Finalize(finalizer.StatusDelivered)
		}
		return nil
	}

	var pgErr *pgconn.PgError
	status := finalizer.StatusErrored
	kind := errs.KindTransient
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		status = finalizer.StatusRejected
		kind = errs.KindDeserialize
	}
	for _, e := range batch {
		e.Finalize(status)
	}
	return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(kind), errs.WithStage("flush"), errs.WithCause(err))
}

func (s *Sink) insertBatch(ctx context.Context, pool *pgxpool.Pool, batch []*event.Event) error {
	pgBatch := &pgx.Batch{}
	for _, e := range batch {
		fields, err := s.codec.Encode(e)
		if err != nil {
			return backoff.Permanent(err)
		}
		pgBatch.Queue(insertEventSQL, pgx.NamedArgs{
			"kind":   int16(e.Kind()),
			"fields": fields,
		})
	}

	br := pool.SendBatch(ctx, pgBatch)
	defer br.Close()

	for range batch {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
				return backoff.Permanent(err)
			}
			return err
		}
	}
	return nil
}
