package diskbuf

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

// blockPollInterval bounds how often a blocked Send re-checks available
// space while waiting on the wake channel. The wake channel itself is
// signalled on every ack/compaction, so this is a safety net against a
// missed wakeup rather than the primary mechanism.
const blockPollInterval = 50 * time.Millisecond

// Send appends e to the buffer, matching
// membuf.Buffer's Send signature so the two can be composed as
// interchangeable buffer-topology stages.
//
// - e is encoded via the configured Codec; encode failure finalizes e
// Rejected.
// - if the encoded frame exceeds MaxSegmentBytes and RejectOversized is
// set, the write is rejected (e finalized Rejected) rather than
// allowed to exceed the segment cap by exactly that one record.
// - if the total on-disk footprint would exceed MaxTotalBytes, the
// configured FullPolicy applies (Overflow is rejected at Open).
func (b *Buffer) Send(ctx context.Context, e *event.Event) (membuf.SendResult, error) {
	payload, err := b.codec.Encode(e)
	if err != nil {
		e.Finalize(finalizer.StatusRejected)
		return membuf.SendDropped, fmt.Errorf("diskbuf: encode event: %w", err)
	}
	frameSize := int64(FrameSize(len(payload)))

	for {
		b.mu.Lock()
		if b.closed || b.state != StateReady {
			b.mu.Unlock()
			return membuf.SendDropped, errs.FatalRuntime("diskbuf", errs.WithMessage("buffer is not accepting writes"))
		}
		if b.cfg.RejectOversized && frameSize > b.cfg.MaxSegmentBytes {
			b.mu.Unlock()
			e.Finalize(finalizer.StatusRejected)
			return membuf.SendDropped, nil
		}
		if b.totalBytes+frameSize > b.cfg.MaxTotalBytes {
			switch b.cfg.Policy {
			case membuf.PolicyDropNewest:
				b.mu.Unlock()
				e.Finalize(finalizer.StatusErrored)
				b.cfg.Observer.OnDropped(component.Dropped{
					Component: b.name,
					Count: 1,
					Intentional: true,
					Reason: "buffer_full",
				})
				return membuf.SendDropped, nil
			case membuf.PolicyOverflow:
				// Unreachable in practice: Open rejects PolicyOverflow for
				// a disk buffer. Handled here only so Send never panics if
				// that invariant is ever relaxed.
				b.mu.Unlock()
				return membuf.SendOverflowed, nil
			default: // PolicyBlock
				wake := b.waitChan()
				b.mu.Unlock()
				timer := time.NewTimer(blockPollInterval)
				select {
				case <-wake:
					timer.Stop()
					continue
				case <-timer.C:
					continue
				case <-ctx.Done():
					return membuf.SendOk, ctx.Err()
				}
			}
		}
		break
	}
	defer b.mu.Unlock()

	if err := b.ensureWriterOpenLocked(); err != nil {
		return membuf.SendOk, err
	}
	if needsRotation(b.segments[len(b.segments)-1], frameSize, b.cfg.MaxSegmentBytes) {
		if err := b.rotateSegmentLocked(); err != nil {
			return membuf.SendOk, err
		}
	}
	cur := b.segments[len(b.segments)-1]

	id := b.writerNextID
	b.writerNextID++

	frame := Encode(Record{ID: id, Payload: payload})
	if _, err := b.writerF.Write(frame); err != nil {
		return membuf.SendOk, fmt.Errorf("diskbuf: append record %d: %w", id, err)
	}
	if err := b.writerF.Sync(); err != nil {
		return membuf.SendOk, fmt.Errorf("diskbuf: fsync segment %d: %w", cur.id, err)
	}

	cur.hasData = true
	cur.size += int64(len(frame))
	if id > cur.highestID {
		cur.highestID = id
	}
	b.totalBytes += int64(len(frame))

	// Detach the caller's finalizers; a Recv re-attaches them to the
	// decoded event when this record is read back.
	b.pendingFinalizers[id] = e.DetachFinalizers()

	b.wakeReaders()
	return membuf.SendOk, nil
}

func needsRotation(cur *segmentMeta, frameSize, maxSegmentBytes int64) bool {
	return cur.hasData && cur.size+frameSize > maxSegmentBytes
}

// ensureWriterOpenLocked opens (creating if necessary) the segment file for
// append, lazily on first write.
func (b *Buffer) ensureWriterOpenLocked() error {
	if b.writerF != nil {
		return nil
	}
	if len(b.segments) == 0 {
		b.segments = append(b.segments, &segmentMeta{id: b.writerID})
	}
	cur := b.segments[len(b.segments)-1]
	f, err := os.OpenFile(segmentPath(b.dir, cur.id), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("diskbuf: open segment %d for append: %w", cur.id, err)
	}
	b.writerF = f
	return nil
}

// rotateSegmentLocked closes the current segment and opens a fresh one with
// the next sequential id.
func (b *Buffer) rotateSegmentLocked() error {
	if b.writerF != nil {
		if err := b.writerF.Close(); err != nil {
			return fmt.Errorf("diskbuf: close segment before rotation: %w", err)
		}
		b.writerF = nil
	}
	b.writerID++
	b.segments = append(b.segments, &segmentMeta{id: b.writerID})
	return b.ensureWriterOpenLocked()
}

// commitLedgerLocked persists the buffer's current writer/reader/ack
// positions via atomic rename.
func (b *Buffer) commitLedgerLocked() error {
	first := b.writerID
	if len(b.segments) > 0 {
		first = b.segments[0].id
	}
	return writeLedger(b.dir, ledgerData{
		Version: ledgerVersion,
		WriterNextID: b.writerNextID,
		ReaderNextID: b.ackCursor + 1,
		FirstLiveSegment: first,
		AckCursor: b.ackCursor,
	})
}

// compactAndCommitLocked unlinks any segment whose highest record id is
// fully acknowledged and not the segment currently open for writing, then
// commits the ledger reflecting the new first-live-segment.
func (b *Buffer) compactAndCommitLocked() error {
	kept := make([]*segmentMeta, 0, len(b.segments))
	// readerSegIdx indexes b.segments, so it is re-based onto kept: it
	// becomes the number of kept segments ahead of the reader's segment,
	// and if the reader's own segment is removed it moves to the start of
	// the next kept one.
	readerSegIdx := 0
	for i, seg := range b.segments {
		if seg.hasData && seg.highestID != 0 && seg.highestID <= b.ackCursor && seg.id != b.writerID {
			if err := os.Remove(segmentPath(b.dir, seg.id)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("diskbuf: remove compacted segment %d: %w", seg.id, err)
			}
			b.totalBytes -= seg.size
			if i == b.readerSegIdx {
				b.readerOffset = 0
			}
			continue
		}
		if i < b.readerSegIdx {
			readerSegIdx++
		}
		kept = append(kept, seg)
	}
	b.segments = kept
	b.readerSegIdx = readerSegIdx
	return b.commitLedgerLocked()
}
