package diskbuf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/codec"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

func testCodec() Codec { return codec.New() }

func newLogEvent(t *testing.T, text string, n *finalizer.BatchNotifier) *event.Event {
	t.Helper()
	e := event.NewLog()
	e.Insert(mustPath(t, "message"), event.BytesString(text))
	if n != nil {
		e.AttachNotifier(n)
	}
	return e
}

func mustPath(t *testing.T, raw string) event.Path {
	t.Helper()
	p, err := event.ParsePath(raw)
	require.NoError(t, err)
	return p
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBuffer_SendRecv_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock})
	require.NoError(t, err)
	defer b.Close()

	notifier := finalizer.NewBatchNotifier()
	e := newLogEvent(t, "hello", notifier)

	res, err := b.Send(ctxTimeout(t), e)
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res)

	got, ok, err := b.Recv(ctxTimeout(t))
	require.NoError(t, err)
	require.True(t, ok)

	v, found := got.Get(mustPath(t, "message"))
	require.True(t, found)
	raw, _ := v.AsBytes()
	require.Equal(t, "hello", string(raw))

	got.Finalize(finalizer.StatusDelivered)
	status, err := notifier.Wait(ctxTimeout(t))
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusDelivered, status)
}

func TestBuffer_RejectOversized(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{
		Dir: dir,
		Codec: testCodec(),
		Policy: membuf.PolicyBlock,
		MaxSegmentBytes: 256,
		RejectOversized: true,
	})
	require.NoError(t, err)
	defer b.Close()

	notifier := finalizer.NewBatchNotifier()
	huge := newLogEvent(t, string(make([]byte, 4096)), notifier)

	res, err := b.Send(ctxTimeout(t), huge)
	require.NoError(t, err)
	require.Equal(t, membuf.SendDropped, res)

	status, err := notifier.Wait(ctxTimeout(t))
	require.NoError(t, err)
	require.Equal(t, finalizer.StatusRejected, status)
}

func TestBuffer_OversizedAllowedWhenNotRejecting(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{
		Dir: dir,
		Codec: testCodec(),
		Policy: membuf.PolicyBlock,
		MaxSegmentBytes: 256,
		MaxTotalBytes: 1 << 20,
		RejectOversized: false,
	})
	require.NoError(t, err)
	defer b.Close()

	e := newLogEvent(t, string(make([]byte, 4096)), nil)
	res, err := b.Send(ctxTimeout(t), e)
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res)

	_, ok, err := b.Recv(ctxTimeout(t))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuffer_Open_RejectsOverflowPolicy(t *testing.T) {
	dir := t.TempDir()
	_, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyOverflow})
	require.Error(t, err)
}

func TestBuffer_SegmentRotation(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{
		Dir: dir,
		Codec: testCodec(),
		Policy: membuf.PolicyBlock,
		MaxSegmentBytes: 512,
	})
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 20; i++ {
		e := newLogEvent(t, "payload-for-rotation-test", nil)
		res, sendErr := b.Send(ctxTimeout(t), e)
		require.NoError(t, sendErr)
		require.Equal(t, membuf.SendOk, res)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var segmentCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == segmentSuffix {
			segmentCount++
		}
	}
	require.Greater(t, segmentCount, 1, "expected writes exceeding MaxSegmentBytes to rotate across multiple segments")
}

// TestBuffer_CrashRecovery_ResumesFromAckCursor mirrors Scenario D: 100
// records written, the first 40 acknowledged, then the buffer is closed
// without draining and reopened. The reopened reader must resume at 41 and
// the writer must resume assigning ids at 101.
func TestBuffer_CrashRecovery_ResumesFromAckCursor(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock, MaxSegmentBytes: 4096})
	require.NoError(t, err)

	const total = 100
	for i := 0; i < total; i++ {
		e := newLogEvent(t, "crash-recovery-record", nil)
		_, sendErr := b.Send(ctxTimeout(t), e)
		require.NoError(t, sendErr)
	}

	const acked = 40
	for i := 0; i < acked; i++ {
		got, ok, recvErr := b.Recv(ctxTimeout(t))
		require.NoError(t, recvErr)
		require.True(t, ok)
		got.Finalize(finalizer.StatusDelivered)
	}

	deadline := time.Now().Add(time.Second)
	for b.ackCursorSnapshot() < acked && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.EqualValues(t, acked, b.ackCursorSnapshot())

	require.NoError(t, b.Close())

	reopened, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock, MaxSegmentBytes: 4096})
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, acked+1, reopened.readerNextIDSnapshot())
	require.EqualValues(t, total+1, reopened.writerNextIDSnapshot())

	got, ok, err := reopened.Recv(ctxTimeout(t))
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := got.Get(mustPath(t, "message"))
	raw, _ := v.AsBytes()
	require.Equal(t, "crash-recovery-record", string(raw))
	got.Finalize(finalizer.StatusDelivered)

	e := newLogEvent(t, "post-recovery-record", nil)
	res, err := reopened.Send(ctxTimeout(t), e)
	require.NoError(t, err)
	require.Equal(t, membuf.SendOk, res)
}

// TestBuffer_TornTailTruncated mirrors Scenario E: the last 17 bytes of the
// tail segment are cut off to simulate a torn write; recovery must
// truncate the partial record and the buffer must come up clean.
func TestBuffer_TornTailTruncated(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		e := newLogEvent(t, "pre-crash-record", nil)
		_, sendErr := b.Send(ctxTimeout(t), e)
		require.NoError(t, sendErr)
	}
	require.NoError(t, b.Close())

	segPath := segmentPath(dir, 1)
	info, err := os.Stat(segPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(segPath, info.Size()-17))

	reopened, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock})
	require.NoError(t, err)
	defer reopened.Close()

	var delivered int
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		got, ok, recvErr := reopened.Recv(ctx)
		cancel()
		if recvErr != nil || !ok {
			break
		}
		got.Finalize(finalizer.StatusDelivered)
		delivered++
	}
	require.Equal(t, 4, delivered, "the torn trailing record should be truncated away, leaving the 4 preceding ones intact")
}

// TestBuffer_CleanShutdownThenRestart_YieldsEmptyReader checks that once
// every notifier has resolved Delivered and the buffer is closed cleanly,
// reopening it yields nothing to read.
func TestBuffer_CleanShutdownThenRestart_YieldsEmptyReader(t *testing.T) {
	dir := t.TempDir()
	b, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		e := newLogEvent(t, "record", nil)
		_, sendErr := b.Send(ctxTimeout(t), e)
		require.NoError(t, sendErr)
	}
	for i := 0; i < 10; i++ {
		got, ok, recvErr := b.Recv(ctxTimeout(t))
		require.NoError(t, recvErr)
		require.True(t, ok)
		got.Finalize(finalizer.StatusDelivered)
	}

	deadline := time.Now().Add(time.Second)
	for b.ackCursorSnapshot() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, b.Close())

	reopened, err := Open("test", Config{Dir: dir, Codec: testCodec(), Policy: membuf.PolicyBlock})
	require.NoError(t, err)
	defer reopened.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok, err := reopened.Recv(ctx)
	require.False(t, ok)
	require.Error(t, err) // ctx deadline: nothing was ever available to unblock Recv
}

func (b *Buffer) ackCursorSnapshot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ackCursor
}

func (b *Buffer) readerNextIDSnapshot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readerNextID
}

func (b *Buffer) writerNextIDSnapshot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writerNextID
}
