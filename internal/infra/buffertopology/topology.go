// Package buffertopology composes membuf and diskbuf stages into the
// stacked buffer the documented contract: Send tries the primary stage
// first and falls through to the next only on overflow; Recv prefers
// whichever stage holds items first, preserving freshness, and only drains
// a later stage once earlier ones are empty. Grounded on the teacher's
// durable-bus-wrapping-a-plain-bus composition in its event bus package,
// generalized from "durable bus decorates a plain bus" to "N buffer stages
// chained by overflow".
package buffertopology

import (
	"context"

	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

// Stage is the contract both membuf.Buffer and diskbuf.Buffer satisfy,
// letting either compose as a layer of a Topology.
type Stage interface {
	Send(ctx context.Context, e *event.Event) (membuf.SendResult, error)
	Recv(ctx context.Context) (*event.Event, bool, error)
	Pending() int
}

// policied is satisfied by any Stage that can report its own full-policy,
// used only to validate the terminal stage at construction.
type policied interface {
	Policy() membuf.FullPolicy
}

// Topology stacks one or more Stages in primary-to-terminal order.
type Topology struct {
	stages []Stage
}

// New validates and stacks stages. The terminal stage must not itself be
// configured with the Overflow policy since it has no further stage
// to forward an overflowed send to.
func New(stages ...Stage) (*Topology, error) {
	if len(stages) == 0 {
		return nil, errs.Config("buffertopology", errs.WithMessage("at least one buffer stage is required"))
	}
	terminal := stages[len(stages)-1]
	if p, ok := terminal.(policied); ok && p.Policy() == membuf.PolicyOverflow {
		return nil, errs.Config("buffertopology", errs.WithMessage("the terminal buffer stage cannot use the overflow policy"))
	}
	return &Topology{stages: stages}, nil
}

// Send tries each stage in order, falling through to the next only when a
// stage reports SendOverflowed.
func (t *Topology) Send(ctx context.Context, e *event.Event) (membuf.SendResult, error) {
	var res membuf.SendResult
	var err error
	for _, s := range t.stages {
		res, err = s.Send(ctx, e)
		if err != nil || res != membuf.SendOverflowed {
			return res, err
		}
	}
	// Every stage, including the terminal one, reported overflow — only
	// possible if New's terminal-policy validation was bypassed.
	return res, err
}

// Recv prefers the first stage holding any resident item, draining later
// stages only once every earlier one is empty. If nothing is
// resident anywhere, it blocks on the primary stage, since that is where a
// new Send lands first.
func (t *Topology) Recv(ctx context.Context) (*event.Event, bool, error) {
	for _, s := range t.stages {
		if s.Pending() > 0 {
			return s.Recv(ctx)
		}
	}
	return t.stages[0].Recv(ctx)
}

// Pending sums the resident item count across every stage.
func (t *Topology) Pending() int {
	total := 0
	for _, s := range t.stages {
		total += s.Pending()
	}
	return total
}
