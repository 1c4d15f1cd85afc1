package buffertopology

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/codec"
	"github.com/coachpo/conduit/internal/infra/diskbuf"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_RejectsOverflowAsTerminalStage(t *testing.T) {
	primary := membuf.New("primary", 1, membuf.PolicyOverflow)
	terminal := membuf.New("terminal", 1, membuf.PolicyOverflow)
	_, err := New(primary, terminal)
	require.Error(t, err)
}

func TestTopology_SendFallsThroughOnOverflow(t *testing.T) {
	primary := membuf.New("primary", 1, membuf.PolicyOverflow)
	terminal := membuf.New("terminal", 2, membuf.PolicyBlock)
	topo, err := New(primary, terminal)
	require.NoError(t, err)

	ctx := ctxTimeout(t)

	res, err := topo.Send(ctx, event.NewLog())
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res) // lands in primary, which has room

	// Primary is now full (capacity 1); the next send overflows to terminal.
	res, err = topo.Send(ctx, event.NewLog())
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res)
	require.Equal(t, 1, primary.Pending())
	require.Equal(t, 1, terminal.Pending())
}

func TestTopology_RecvPrefersPrimary(t *testing.T) {
	primary := membuf.New("primary", 4, membuf.PolicyOverflow)
	terminal := membuf.New("terminal", 4, membuf.PolicyBlock)
	topo, err := New(primary, terminal)
	require.NoError(t, err)

	ctx := ctxTimeout(t)

	primaryEvent := event.NewLog()
	primaryEvent.Insert(event.MustParsePath("origin"), event.BytesString("primary"))
	_, err = primary.Send(ctx, primaryEvent)
	require.NoError(t, err)

	terminalEvent := event.NewLog()
	terminalEvent.Insert(event.MustParsePath("origin"), event.BytesString("terminal"))
	_, err = terminal.Send(ctx, terminalEvent)
	require.NoError(t, err)

	got, ok, err := topo.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := got.Get(event.MustParsePath("origin"))
	raw, _ := v.AsBytes()
	require.Equal(t, "primary", string(raw), "Recv must prefer the primary stage while it has items")
	got.Finalize(finalizer.StatusDelivered)

	got, ok, err = topo.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	v, _ = got.Get(event.MustParsePath("origin"))
	raw, _ = v.AsBytes()
	require.Equal(t, "terminal", string(raw))
	got.Finalize(finalizer.StatusDelivered)
}

func TestTopology_MemoryOverOverflowDisk(t *testing.T) {
	primary := membuf.New("primary", 1, membuf.PolicyOverflow)
	disk, err := diskbuf.Open("overflow-disk", diskbuf.Config{
		Dir: t.TempDir(),
		Codec: codec.New(),
		Policy: membuf.PolicyBlock,
	})
	require.NoError(t, err)
	defer disk.Close()

	topo, err := New(primary, disk)
	require.NoError(t, err)

	ctx := ctxTimeout(t)

	_, err = topo.Send(ctx, event.NewLog())
	require.NoError(t, err)
	res, err := topo.Send(ctx, event.NewLog())
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res)
	require.Equal(t, 1, disk.Pending())

	_, ok, err := topo.Recv(ctx) // drains primary
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := topo.Recv(ctx) // falls through to disk
	require.NoError(t, err)
	require.True(t, ok)
	got.Finalize(finalizer.StatusDelivered)
}
