// Package topology builds and supervises a running graph of sources,
// transforms, and sinks from a validated config.Graph, running each node
// on its own goroutine. Each transform/sink owns an inbound buffer topology
// built from its BufferSpec chain; producers fan out into their consumers'
// inboxes.
// Grounded on the teacher's cmd/gateway/main.go sequencing (conc.WaitGroup
// for lifecycle goroutines, staged shutdown via named steps each bounded by
// its own timeout) and internal/app/lambda/runtime/manager.go (mutex-guarded
// instance map, diff-and-reconcile Update for reload).
package topology

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/conduit/internal/app/registry"
	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/buffertopology"
	"github.com/coachpo/conduit/internal/infra/codec"
	"github.com/coachpo/conduit/internal/infra/config"
)

// Defaults for the two bounded waits the supervisor imposes: this
// readiness gate and this per-stage shutdown grace period.
const (
	DefaultHealthcheckTimeout = 60 * time.Second
	DefaultShutdownGrace = 30 * time.Second
)

type kind int

const (
	kindSource kind = iota
	kindTransform
	kindSink
)

// node is one running component instance: its wiring, lifecycle handle, and
// the goroutine result channel the supervisor waits on during shutdown.
type node struct {
	name string
	kind kind
	spec config.ComponentSpec
	handle component.Handle
	cancel context.CancelFunc
	errCh chan error
	started bool

	source component.Source
	fn component.FunctionTransform
	task component.TaskTransform
	reducer component.BatchReducer
	sink component.Sink
	inbox *buffertopology.Topology // nil for sources
	out component.Sender // nil for sinks
}

// Topology supervises one built graph: the set of running nodes plus the
// config that produced them, needed by Reload to diff against a new one.
type Topology struct {
	mu sync.Mutex
	graph *config.Graph
	registry *registry.Registry
	observer component.Observer
	codec codec.EventCodec
	nodes map[string]*node
	wg *conc.WaitGroup
}

// Build validates g and constructs every node, wiring each producer's fan-out
// sender to its consumers' inboxes, without starting any goroutine.
func Build(g *config.Graph, reg *registry.Registry, observer component.Observer) (*Topology, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = component.NopObserver{}
	}

	t := &Topology{
		graph: g,
		registry: reg,
		observer: observer,
		codec: codec.New(),
		nodes: make(map[string]*node),
		wg: conc.NewWaitGroup(),
	}

	for name, spec := range g.Transforms {
		n, err := t.buildInboxNode(name, spec, kindTransform)
		if err != nil {
			return nil, err
		}
		t.nodes[name] = n
	}
	for name, spec := range g.Sinks {
		n, err := t.buildInboxNode(name, spec, kindSink)
		if err != nil {
			return nil, err
		}
		t.nodes[name] = n
	}

	consumers := consumersByProducer(g)

	for name, spec := range g.Sources {
		src, err := reg.BuildSource(spec.Type, spec.Config)
		if err != nil {
			return nil, errs.Config("topology", errs.WithStage(name), errs.WithCause(err))
		}
		n := &node{name: name, kind: kindSource, spec: spec, handle: component.NewHandle(), errCh: make(chan error, 1), source: src}
		t.nodes[name] = n
	}

	for name, spec := range g.Transforms {
		n := t.nodes[name]
		fn, task, reducer, err := reg.BuildTransform(spec.Type, spec.Config)
		if err != nil {
			return nil, errs.Config("topology", errs.WithStage(name), errs.WithCause(err))
		}
		n.fn, n.task, n.reducer = fn, task, reducer
	}
	for name, spec := range g.Sinks {
		n := t.nodes[name]
		sink, err := reg.BuildSink(spec.Type, spec.Config)
		if err != nil {
			return nil, errs.Config("topology", errs.WithStage(name), errs.WithCause(err))
		}
		n.sink = sink
	}

	for name, n := range t.nodes {
		if n.kind == kindSink {
			continue
		}
		targets := make([]component.Sender, 0, len(consumers[name]))
		for _, consumerName := range consumers[name] {
			targets = append(targets, topologySender{t: t.nodes[consumerName].inbox})
		}
		n.out = newFanoutSender(targets)
	}

	return t, nil
}

func (t *Topology) buildInboxNode(name string, spec config.ComponentSpec, k kind) (*node, error) {
	inbox, err := buildBufferChain(spec.Buffer, name, t.graph.DataDir, t.codec, t.observer)
	if err != nil {
		return nil, errs.Config("topology", errs.WithStage(name), errs.WithCause(err))
	}
	return &node{name: name, kind: k, spec: spec, handle: component.NewHandle(), errCh: make(chan error, 1), inbox: inbox}, nil
}

// consumersByProducer inverts the Inputs edges: producer name -> the names
// of every transform/sink that declares it as an input.
func consumersByProducer(g *config.Graph) map[string][]string {
	out := make(map[string][]string)
	add := func(spec config.ComponentSpec, consumerName string) {
		for _, in := range spec.Inputs {
			out[in] = append(out[in], consumerName)
		}
	}
	for name, spec := range g.Transforms {
		add(spec, name)
	}
	for name, spec := range g.Sinks {
		add(spec, name)
	}
	return out
}

// Start launches every node's run loop in its own goroutine (grounded on
// cmd/gateway/main.go's lifecycle conc.WaitGroup/lifecycle.Go pattern).
func (t *Topology) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.nodes {
		if n.started {
			// Carried over unchanged from a Reload; its goroutine is already
			// running against the topology that built it.
			continue
		}
		n := n
		n.started = true
		nodeCtx, cancel := context.WithCancel(ctx)
		n.cancel = cancel
		t.wg.Go(func() {
			n.errCh <- t.runNode(nodeCtx, n)
			close(n.errCh)
		})
	}
}

// Wait blocks until every node goroutine spawned by Start has returned,
// propagating a panic recovered from any of them (conc.WaitGroup semantics).
// Call after Shutdown to observe that teardown is fully complete.
func (t *Topology) Wait() {
	t.wg.Wait()
}

func (t *Topology) runNode(ctx context.Context, n *node) error {
	defer n.handle.Token.Observe()
	switch n.kind {
	case kindSource:
		return n.source.Run(ctx, n.out, n.handle.Signal)
	case kindTransform:
		switch {
		case n.task != nil:
			return n.task.Run(ctx, n.inbox, n.out, n.handle.Signal)
		case n.reducer != nil:
			return runBatchReducer(ctx, n.name, n.inbox, n.out, n.reducer, t.observer)
		case n.fn != nil:
			return runFunctionTransform(ctx, n.name, n.inbox, n.out, n.fn, t.observer)
		default:
			return errs.FatalRuntime("topology", errs.WithStage(n.name), errs.WithMessage("transform factory returned no shape"))
		}
	case kindSink:
		return n.sink.Run(ctx, n.inbox, n.handle.Signal)
	default:
		return nil
	}
}

func runFunctionTransform(ctx context.Context, name string, in component.Receiver, out component.Sender, fn component.FunctionTransform, observer component.Observer) error {
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
		observer.OnReceived(component.Received{Component: name, Count: 1})
		for _, oe := range fn.Transform(e) {
			if err := out.Send(ctx, oe); err != nil {
				// oe never reached a receiver on a cancelled or failed
				// Send; we are its last holder and must resolve its
				// finalizer ourselves or its BatchNotifier hangs forever.
				oe.Finalize(finalizer.StatusErrored)
				observer.OnErrored(component.Errored{Component: name, Err: err})
				continue
			}
			observer.OnSent(component.Sent{Component: name, Count: 1})
		}
	}
}

// reducerSweepInterval is how often runBatchReducer polls reducer.Sweep to
// force-flush groups that have gone quiet, independent of the Recv loop
// that otherwise only checks a group's flush condition on new arrivals.
const reducerSweepInterval = 250 * time.Millisecond

func runBatchReducer(ctx context.Context, name string, in component.Receiver, out component.Sender, reducer component.BatchReducer, observer component.Observer) error {
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(reducerSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, flushed := range reducer.Sweep() {
					sendFlushed(name, out, flushed, observer)
				}
			}
		}
	}()
	defer func() { <-sweepDone }()

	for {
		e, ok, err := in.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if flushed := reducer.Flush(); flushed != nil {
					sendFlushed(name, out, flushed, observer)
				}
				return nil
			}
			return err
		}
		if !ok {
			if flushed := reducer.Flush(); flushed != nil {
				sendFlushed(name, out, flushed, observer)
			}
			return nil
		}
		observer.OnReceived(component.Received{Component: name, Count: 1})
		if emit, ready := reducer.Add(e); ready {
			if err := out.Send(ctx, emit); err != nil {
				// emit never reached a receiver; we are its last holder
				// and must resolve its finalizer ourselves.
				emit.Finalize(finalizer.StatusErrored)
				observer.OnErrored(component.Errored{Component: name, Err: err})
				continue
			}
			observer.OnSent(component.Sent{Component: name, Count: 1})
		}
	}
}

// sendFlushed hands a shutdown-time Flush result to out using a background
// context, since the reducer's own ctx may already be cancelled. On failure
// flushed never reached a receiver, so its finalizer is resolved here
// rather than left to hang.
func sendFlushed(name string, out component.Sender, flushed *event.Event, observer component.Observer) {
	if err := out.Send(context.Background(), flushed); err != nil {
		flushed.Finalize(finalizer.StatusErrored)
		observer.OnErrored(component.Errored{Component: name, Err: err})
		return
	}
	observer.OnSent(component.Sent{Component: name, Count: 1})
}

// Shutdown stops every node in three waves — sources, then transforms, then
// sinks — each bounded by grace, matching the teacher's performGracefulShutdown
// shutdownStep sequencing: a stage's producers are told to stop before its
// consumers are torn down, so in-flight events can still drain downstream.
func (t *Topology) Shutdown(ctx context.Context, grace time.Duration) error {
	t.mu.Lock()
	all := make(map[string]bool, len(t.nodes))
	for name := range t.nodes {
		all[name] = true
	}
	t.mu.Unlock()
	return t.shutdownSubset(ctx, all, grace)
}

// shutdownSubset stops only the named nodes, staged sources-then-transforms-
// then-sinks within that subset. Reload uses this to stop exactly the
// removed/reconfigured nodes while leaving byte-identical nodes running.
func (t *Topology) shutdownSubset(ctx context.Context, names map[string]bool, grace time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	var result *multierror.Error
	for _, k := range []kind{kindSource, kindTransform, kindSink} {
		wave := make([]string, 0)
		for _, n := range t.namesOfKind(k) {
			if names[n] {
				wave = append(wave, n)
			}
		}
		for _, n := range wave {
			node := t.nodes[n]
			node.handle.Signal.Trigger()
			if node.cancel != nil {
				node.cancel()
			}
		}
		for _, n := range wave {
			if err := waitNode(ctx, t.nodes[n], grace); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", n, err))
			}
		}
	}
	return result.ErrorOrNil()
}

func waitNode(ctx context.Context, n *node, grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-n.errCh:
		return err
	case <-timer.C:
		return fmt.Errorf("did not stop within %s", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Topology) namesOfKind(k kind) []string {
	names := make([]string, 0, len(t.nodes))
	for name, n := range t.nodes {
		if n.kind == k {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NodeNames returns the name of every node in the topology, sorted, for the
// control surface's read-only /topology snapshot.
func (t *Topology) NodeNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.nodes))
	for name := range t.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Healthcheck invokes every sink's Healthcheck, each bounded by timeout,
// before the supervisor declares the topology ready.
func (t *Topology) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultHealthcheckTimeout
	}
	t.mu.Lock()
	sinks := t.namesOfKind(kindSink)
	t.mu.Unlock()

	var result *multierror.Error
	for _, name := range sinks {
		sink := t.nodes[name].sink
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := sink.Healthcheck(checkCtx)
		cancel()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Reload diffs next against the graph this Topology was built from:
// components whose ComponentSpec is byte-identical are left running
// untouched; removed or reconfigured components are stopped; added or
// reconfigured components are built fresh. It returns the new Topology to
// replace this one — the caller swaps it in after Start succeeds.
//
// A node kept unchanged keeps the wiring (fan-out sender, inbox) it was
// originally built with. If one of its upstream or downstream neighbors WAS
// reconfigured, the edge between them still points at the old neighbor's
// buffer rather than the new one — a full re-wire would require rebuilding
// every node transitively connected to a change, which this pragmatic
// implementation does not attempt. Unchanged neighbors of a changed
// component are neither rebuilt nor re-wired.
func (t *Topology) Reload(ctx context.Context, next *config.Graph, grace time.Duration) (*Topology, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}

	replacement, err := Build(next, t.registry, t.observer)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	unchanged := make(map[string]bool)
	toStop := make(map[string]bool)
	for name, n := range t.nodes {
		if rn, ok := replacement.nodes[name]; ok && rn.kind == n.kind && n.spec.equalTo(rn.spec) {
			unchanged[name] = true
		} else {
			toStop[name] = true
		}
	}
	t.mu.Unlock()

	for name := range unchanged {
		replacement.mu.Lock()
		replacement.nodes[name] = t.nodes[name]
		replacement.mu.Unlock()
	}

	if err := t.shutdownSubset(ctx, toStop, grace); err != nil {
		return nil, err
	}
	return replacement, nil
}
