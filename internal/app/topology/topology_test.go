package topology

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/conduit/internal/app/registry"
	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/config"
)

// genSource emits n events, each attached to notifier when non-nil.
type genSource struct {
	n int
	notifier *finalizer.BatchNotifier
}

func (s *genSource) Run(ctx context.Context, out component.Sender, shutdown *component.ShutdownSignal) error {
	// Attach every event before sending any, so the notifier cannot
	// resolve while later events are still unattached.
	events := make([]*event.Event, s.n)
	for i := range events {
		events[i] = event.NewLog()
		if s.notifier != nil {
			events[i].AttachNotifier(s.notifier)
		}
	}
	for _, e := range events {
		if err := out.Send(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

type passthroughFn struct{}

func (passthroughFn) Transform(e *event.Event) []*event.Event { return []*event.Event{e} }

// countingSink records how many events it consumed and finalizes each one,
// optionally reporting every consumed event Errored and itself unhealthy.
type countingSink struct {
	mu sync.Mutex
	received int
	fail bool
}

func (s *countingSink) Run(ctx context.Context, in component.Receiver, shutdown *component.ShutdownSignal) error {
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
		s.mu.Lock()
		s.received++
		fail := s.fail
		s.mu.Unlock()
		if fail {
			e.Finalize(finalizer.StatusErrored)
		} else {
			e.Finalize(finalizer.StatusDelivered)
		}
	}
}

func (s *countingSink) Healthcheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink unhealthy")
	}
	return nil
}

func (s *countingSink) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

// buildLinearGraph wires a registry whose "count" sink factory constructs a
// fresh *countingSink per call, so that Reload rebuilding a changed node
// yields an observably distinct instance.
func buildLinearGraph() (*config.Graph, *registry.Registry, *genSource) {
	notifier := finalizer.NewBatchNotifier()
	src := &genSource{n: 5, notifier: notifier}

	reg := registry.New()
	reg.RegisterSource("gen", func(cfg map[string]any) (component.Source, error) { return src, nil })
	reg.RegisterTransform("pass", func(cfg map[string]any) (component.FunctionTransform, component.TaskTransform, component.BatchReducer, error) {
		return passthroughFn{}, nil, nil, nil
	})
	reg.RegisterSink("count", func(cfg map[string]any) (component.Sink, error) { return &countingSink{}, nil })

	g := &config.Graph{
		Sources: map[string]config.ComponentSpec{"in": {Type: "gen"}},
		Transforms: map[string]config.ComponentSpec{"t": {Type: "pass", Inputs: []string{"in"}}},
		Sinks: map[string]config.ComponentSpec{"out": {Type: "count", Inputs: []string{"t"}}},
	}
	return g, reg, src
}

// Scenario A: an event sent by a source and delivered by a sink
// resolves its BatchNotifier Delivered.
func TestTopology_AckRoundTrip(t *testing.T) {
	g, reg, src := buildLinearGraph()
	topo, err := Build(g, reg, component.NopObserver{})
	require.NoError(t, err)
	sink := topo.nodes["out"].sink.(*countingSink)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topo.Start(ctx)

	status, err := src.notifier.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusDelivered, status)
	require.Equal(t, 5, sink.Received())

	require.NoError(t, topo.Shutdown(context.Background(), time.Second))
}

// Scenario B: a sink that reports every event Errored resolves
// the batch notifier to the worse status, and Healthcheck reports the same
// failure.
func TestTopology_SinkFailure(t *testing.T) {
	g, reg, src := buildLinearGraph()
	topo, err := Build(g, reg, component.NopObserver{})
	require.NoError(t, err)
	topo.nodes["out"].sink.(*countingSink).fail = true

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topo.Start(ctx)

	status, err := src.notifier.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusErrored, status)

	require.Error(t, topo.Healthcheck(ctx, time.Second))
	require.NoError(t, topo.Shutdown(context.Background(), time.Second))
}

// Scenario C: a buffer at capacity under the drop_newest policy
// discards instead of blocking, and the dropped event still resolves its
// notifier rather than hanging forever.
func TestTopology_BufferOverflowDropsNewest(t *testing.T) {
	notifier := finalizer.NewBatchNotifier()
	src := &genSource{n: 20, notifier: notifier}
	sink := &countingSink{}

	reg := registry.New()
	reg.RegisterSource("gen", func(cfg map[string]any) (component.Source, error) { return src, nil })
	reg.RegisterSink("count", func(cfg map[string]any) (component.Sink, error) { return sink, nil })

	g := &config.Graph{
		Sources: map[string]config.ComponentSpec{"in": {Type: "gen"}},
		Sinks: map[string]config.ComponentSpec{
			"out": {
				Type: "count",
				Inputs: []string{"in"},
				Buffer: &config.BufferSpec{Type: config.BufferMemory, MaxEvents: 1, WhenFull: config.PolicyDropNewest},
			},
		},
	}

	topo, err := Build(g, reg, component.NopObserver{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topo.Start(ctx)

	// Every one of the 20 emitted events resolves one way or another; none
	// is left dangling even though most are dropped under backpressure.
	_, err = notifier.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, topo.Shutdown(context.Background(), time.Second))
}

// Scenario F: reloading with a byte-identical sink spec leaves it
// running; reloading with a changed sink spec rebuilds it.
func TestTopology_ReloadKeepsUnchangedComponents(t *testing.T) {
	g, reg, _ := buildLinearGraph()
	topo, err := Build(g, reg, component.NopObserver{})
	require.NoError(t, err)
	sink := topo.nodes["out"].sink

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topo.Start(ctx)

	// Reload with the identical graph: the sink node carries over (same
	// pointer), so its already-observed receive count is preserved.
	reloaded, err := topo.Reload(ctx, g, time.Second)
	require.NoError(t, err)
	require.Same(t, sink, reloaded.nodes["out"].sink)

	reloaded.Start(ctx)
	require.NoError(t, reloaded.Shutdown(context.Background(), time.Second))
}

func TestTopology_ReloadRebuildsChangedComponent(t *testing.T) {
	g, reg, _ := buildLinearGraph()
	topo, err := Build(g, reg, component.NopObserver{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topo.Start(ctx)

	next := *g
	nextSinks := map[string]config.ComponentSpec{
		"out": {Type: "count", Inputs: []string{"t"}, Config: map[string]any{"changed": true}},
	}
	next.Sinks = nextSinks

	reloaded, err := topo.Reload(ctx, &next, time.Second)
	require.NoError(t, err)
	require.NotSame(t, topo.nodes["out"].sink, reloaded.nodes["out"].sink)

	reloaded.Start(ctx)
	require.NoError(t, reloaded.Shutdown(context.Background(), time.Second))
}
