package topology

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/buffertopology"
	"github.com/coachpo/conduit/internal/infra/codec"
	"github.com/coachpo/conduit/internal/infra/config"
	"github.com/coachpo/conduit/internal/infra/diskbuf"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

const (
	defaultBufferCapacity = 2048
	defaultMaxSegmentBytes = 64 * 1024 * 1024
)

// buildBufferChain instantiates the stack of buffer stages a BufferSpec
// chain describes, defaulting to a single memory stage of
// defaultBufferCapacity events under the block policy when spec is nil.
func buildBufferChain(spec *config.BufferSpec, name, dataDir string, c codec.EventCodec, observer component.Observer) (*buffertopology.Topology, error) {
	var stages []buffertopology.Stage
	cur := spec
	depth := 0
	for cur != nil {
		stageName := name
		if depth > 0 {
			stageName = fmt.Sprintf("%s#%d", name, depth)
		}
		stage, err := buildStage(cur, stageName, dataDir, c, observer)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
		cur = cur.Overflow
		depth++
	}
	if len(stages) == 0 {
		stages = append(stages, membuf.New(name, defaultBufferCapacity, membuf.PolicyBlock, membuf.WithObserver(observer)))
	}
	return buffertopology.New(stages...)
}

func buildStage(spec *config.BufferSpec, name, dataDir string, c codec.EventCodec, observer component.Observer) (buffertopology.Stage, error) {
	policy, err := toMembufPolicy(spec.WhenFull)
	if err != nil {
		return nil, err
	}
	switch spec.Type {
	case config.BufferMemory, "":
		capacity := spec.MaxEvents
		if capacity <= 0 {
			capacity = defaultBufferCapacity
		}
		return membuf.New(name, capacity, policy, membuf.WithObserver(observer)), nil
	case config.BufferDisk:
		dir := filepath.Join(dataDir, name)
		return diskbuf.Open(name, diskbuf.Config{
			Dir: dir,
			MaxSegmentBytes: defaultMaxSegmentBytes,
			MaxTotalBytes: spec.MaxSize,
			Policy: policy,
			Codec: c,
			Observer: observer,
		})
	default:
		return nil, errs.Config("topology", errs.WithMessage(fmt.Sprintf("buffer %q: unknown type %q", name, spec.Type)))
	}
}

func toMembufPolicy(p config.FullPolicy) (membuf.FullPolicy, error) {
	switch p {
	case config.PolicyBlock, "":
		return membuf.PolicyBlock, nil
	case config.PolicyDropNewest:
		return membuf.PolicyDropNewest, nil
	case config.PolicyOverflow:
		return membuf.PolicyOverflow, nil
	default:
		return 0, errs.Config("topology", errs.WithMessage(fmt.Sprintf("unknown when_full policy %q", p)))
	}
}

// topologySender adapts buffertopology.Topology.Send (which reports a
// membuf.SendResult alongside an error) to the component.Sender contract
// (an error only): a drop under DropNewest finalizes the event internally
// and is not itself an error the caller should propagate.
type topologySender struct {
	t *buffertopology.Topology
}

func (s topologySender) Send(ctx context.Context, e *event.Event) error {
	_, err := s.t.Send(ctx, e)
	return err
}

// fanoutSender clones an event across N downstream senders. A fanoutSender with a single
// target forwards without cloning, preserving the original event identity
// for the common one-consumer case.
type fanoutSender struct {
	targets []component.Sender
}

func newFanoutSender(targets []component.Sender) component.Sender {
	return fanoutSender{targets: targets}
}

func (f fanoutSender) Send(ctx context.Context, e *event.Event) error {
	switch len(f.targets) {
	case 0:
		// No declared consumer; nothing downstream will ever finalize this
		// event, so resolve it here rather than leaking its notifier.
		e.Finalize(finalizer.StatusDelivered)
		return nil
	case 1:
		return f.targets[0].Send(ctx, e)
	default:
		clones := e.Split(len(f.targets))
		var result *multierror.Error
		for i, clone := range clones {
			if err := f.targets[i].Send(ctx, clone); err != nil {
				// clone never reached this target; we are its last holder
				// and must resolve its finalizer ourselves rather than
				// leave the original's BatchNotifier waiting on it.
				clone.Finalize(finalizer.StatusErrored)
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
}
