package diskbuf

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

// Recv delivers the next record in id order, matching membuf.Buffer's Recv
// signature. Corrupt records are skipped (counted via CorruptRecords) and
// never redelivered. The returned event carries a finalizer that, once the
// downstream consumer calls Finalize, both forwards status to the
// original producer's notifier (if still live in this process) and
// advances this buffer's acknowledged cursor.
func (b *Buffer) Recv(ctx context.Context) (*event.Event, bool, error) {
	for {
		b.mu.Lock()
		if b.state == StateClosed {
			b.mu.Unlock()
			return nil, false, nil
		}
		if b.readerNextID < b.writerNextID {
			rec, originalFinalizers, found, err := b.readNextLocked()
			if err != nil {
				b.mu.Unlock()
				return nil, false, err
			}
			if !found {
				// Every remaining record up to writerNextID was corrupt;
				// nothing to deliver this pass. Loop back to wait.
				b.mu.Unlock()
				continue
			}
			b.mu.Unlock()

			ev, decodeErr := b.codec.Decode(rec.Payload)
			if decodeErr != nil {
				// A payload that fails to deserialize is handled the same
				// as an on-disk checksum failure: skip and count it, but
				// still resolve any finalizers it carried so the original
				// producer's notifier doesn't hang forever.
				b.mu.Lock()
				b.corruptCount++
				b.mu.Unlock()
				for _, f := range originalFinalizers {
					f.Update(finalizer.StatusErrored)
					f.Release()
				}
				b.onRecordFinalized(rec.ID, finalizer.StatusErrored)
				continue
			}

			ackNotifier := finalizer.NewBatchNotifier()
			ev.SetFinalizers(append(originalFinalizers, ackNotifier.Attach()))
			b.watchAck(rec.ID, ackNotifier)
			return ev, true, nil
		}
		if b.state == StateDraining {
			b.mu.Unlock()
			return nil, false, nil
		}
		wake := b.waitChan()
		b.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// watchAck waits for the record's ack-proxy notifier to resolve and folds
// the outcome into the buffer's ack bookkeeping. One goroutine per
// in-flight record; they exit as soon as the downstream consumer finalizes
// the event.
func (b *Buffer) watchAck(id uint64, n *finalizer.BatchNotifier) {
	go func() {
		status, err := n.Wait(context.Background())
		if err != nil {
			return
		}
		b.onRecordFinalized(id, status)
	}()
}

// onRecordFinalized records id's terminal status and advances the
// contiguous acknowledged cursor. Per this package's no-redelivery policy,
// both Delivered and Errored/Rejected outcomes retire the id — a poisoned
// record is not retried, only counted.
func (b *Buffer) onRecordFinalized(id uint64, status finalizer.BatchStatus) {
	b.mu.Lock()
	if status == finalizer.StatusDelivered {
		b.pendingAcks[id] = outcomeAcked
	} else {
		b.pendingAcks[id] = outcomePoisoned
	}

	next := b.ackCursor + 1
	for {
		outcome, ok := b.pendingAcks[next]
		if !ok || outcome == outcomeNone {
			break
		}
		delete(b.pendingAcks, next)
		b.ackCursor = next
		next++
	}
	_ = b.compactAndCommitLocked()
	b.wakeReaders()
	b.mu.Unlock()
}

// readNextLocked decodes the next frame(s) starting at the reader cursor,
// silently skipping checksum-corrupt records, and returns the first
// well-formed record found along with any finalizers that were detached
// from the original event at write time (nil if the buffer was recovered
// from a crash after that write).
func (b *Buffer) readNextLocked() (rec Record, fins []*finalizer.Finalizer, found bool, err error) {
	for b.readerNextID < b.writerNextID && b.readerSegIdx < len(b.segments) {
		seg := b.segments[b.readerSegIdx]
		if b.readerOffset >= seg.size {
			b.readerSegIdx++
			b.readerOffset = 0
			continue
		}
		if err := b.ensureReaderOpenLocked(seg.id); err != nil {
			return Record{}, nil, false, err
		}

		header := make([]byte, recordHeaderSize)
		if _, err := b.readerFile.ReadAt(header, b.readerOffset); err != nil {
			return Record{}, nil, false, fmt.Errorf("diskbuf: read record header at segment %d offset %d: %w", seg.id, b.readerOffset, err)
		}
		payloadLen := binary.LittleEndian.Uint64(header[0:8])
		frameSize := FrameSize(int(payloadLen))
		frame := make([]byte, frameSize)
		if _, err := b.readerFile.ReadAt(frame, b.readerOffset); err != nil {
			return Record{}, nil, false, fmt.Errorf("diskbuf: read record frame at segment %d offset %d: %w", seg.id, b.readerOffset, err)
		}

		decoded, size, status := Decode(frame)
		b.readerOffset += int64(size)
		if status == DecodeOK && decoded.ID < b.readerNextID {
			// After a restart the cursor starts at the head of the first
			// live segment, which can still hold ids acknowledged before
			// the restart: step over them without consuming an id.
			continue
		}
		b.readerNextID++

		switch status {
		case DecodeOK:
			fins := b.pendingFinalizers[decoded.ID]
			delete(b.pendingFinalizers, decoded.ID)
			return decoded, fins, true, nil
		case DecodeCorrupt:
			b.corruptCount++
			if fins := b.pendingFinalizers[decoded.ID]; fins != nil {
				delete(b.pendingFinalizers, decoded.ID)
				for _, f := range fins {
					f.Update(finalizer.StatusErrored)
					f.Release()
				}
			}
			b.onRecordFinalizedWhileLocked(decoded.ID, outcomePoisoned)
			continue
		default:
			// DecodeIncomplete reached here means the reader is strictly
			// behind the writer, so the record was already fully written
			// and fsynced: the length field itself must be corrupt. Treat
			// it like any other length-vs-segment inconsistency rather
			// than a fatal error that would kill the reader loop.
			b.corruptCount++
			if fins := b.pendingFinalizers[decoded.ID]; fins != nil {
				delete(b.pendingFinalizers, decoded.ID)
				for _, f := range fins {
					f.Update(finalizer.StatusErrored)
					f.Release()
				}
			}
			b.onRecordFinalizedWhileLocked(decoded.ID, outcomePoisoned)
			continue
		}
	}
	// Caught up to writerNextID (possibly after skipping only corrupt
	// records): nothing to deliver yet, not an error.
	return Record{}, nil, false, nil
}

// onRecordFinalizedWhileLocked is onRecordFinalized's logic for the case
// where the caller (readNextLocked) already holds b.mu, such as a
// corrupt-record skip that never produces an event for a consumer to
// finalize.
func (b *Buffer) onRecordFinalizedWhileLocked(id uint64, outcome finalOutcome) {
	b.pendingAcks[id] = outcome
	next := b.ackCursor + 1
	for {
		o, ok := b.pendingAcks[next]
		if !ok || o == outcomeNone {
			break
		}
		delete(b.pendingAcks, next)
		b.ackCursor = next
		next++
	}
}

// ensureReaderOpenLocked opens segment id for reading if it is not already
// the one held open.
func (b *Buffer) ensureReaderOpenLocked(id uint64) error {
	if b.readerFile != nil && b.readerFileID == id {
		return nil
	}
	if b.readerFile != nil {
		b.readerFile.Close()
		b.readerFile = nil
	}
	f, err := os.Open(segmentPath(b.dir, id))
	if err != nil {
		return fmt.Errorf("diskbuf: open segment %d for read: %w", id, err)
	}
	b.readerFile = f
	b.readerFileID = id
	return nil
}
