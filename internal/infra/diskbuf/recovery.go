package diskbuf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/coachpo/conduit/internal/domain/finalizer"
)

// recover implements this crash-recovery procedure: the ledger gives
// the last-committed first-live-segment and acknowledged cursor, but the
// writer's true next id is reconstructed by physically re-scanning segment
// data rather than trusting a possibly-stale ledger.writer_next_id — the
// ledger is only re-committed when the acknowledged cursor advances, so
// records appended since the last commit would otherwise be invisible to a
// restarted writer. Must be called with b.mu unlocked (it is the only
// caller, from Open, before any concurrent access is possible).
func (b *Buffer) recover() error {
	ledger, found, err := readLedger(b.dir)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	ackCursor := uint64(0)
	firstLive := uint64(1)
	if found {
		ackCursor = ledger.AckCursor
		firstLive = ledger.FirstLiveSegment
		if firstLive == 0 {
			firstLive = 1
		}
	}

	ids, err := listSegmentIDs(b.dir)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}

	// Resume any compaction interrupted by a crash: segments below the
	// last-committed first-live-segment were already deemed fully
	// acknowledged and should have been unlinked.
	var live []uint64
	for _, id := range ids {
		if id < firstLive {
			if rmErr := os.Remove(segmentPath(b.dir, id)); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("remove stale compacted segment %d: %w", id, rmErr)
			}
			continue
		}
		live = append(live, id)
	}

	var (
		segments []*segmentMeta
		highestID uint64
		totalSize int64
		truncated bool
	)
	for i, id := range live {
		meta, sawTruncation, err := b.scanSegment(id, i == len(live)-1)
		if err != nil {
			return fmt.Errorf("scan segment %d: %w", id, err)
		}
		segments = append(segments, meta)
		totalSize += meta.size
		if meta.highestID > highestID {
			highestID = meta.highestID
		}
		if sawTruncation {
			truncated = true
			break // a torn tail can only be the last live record in the buffer
		}
	}
	_ = truncated

	b.segments = segments
	b.totalBytes = totalSize
	b.ackCursor = ackCursor
	b.readerNextID = ackCursor + 1 // always re-derived, per this
	// "reads in id order starting from last_acknowledged_id + 1" — the
	// reader never trusts a pre-crash in-flight position, only the
	// durably-committed acknowledged cursor.
	b.writerNextID = highestID + 1
	b.pendingFinalizers = make(map[uint64][]*finalizer.Finalizer)

	if len(segments) > 0 {
		b.writerID = segments[len(segments)-1].id
	} else {
		b.writerID = firstLive
	}

	return b.commitLedgerLocked()
}

// scanSegment decodes every frame in segment id from offset 0, counting
// corrupt records and, if allowTrailingTruncate, truncating a trailing
// partial write.
func (b *Buffer) scanSegment(id uint64, allowTrailingTruncate bool) (*segmentMeta, bool, error) {
	path := segmentPath(b.dir, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	meta := &segmentMeta{id: id}
	var offset int64
	header := make([]byte, recordHeaderSize)

	for {
		n, err := f.ReadAt(header, offset)
		if err == io.EOF && n == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return nil, false, fmt.Errorf("read header at %d: %w", offset, err)
		}
		if n < recordHeaderSize {
			// Trailing partial header: truncate away.
			if allowTrailingTruncate {
				if tErr := f.Truncate(offset); tErr != nil {
					return nil, false, fmt.Errorf("truncate torn header: %w", tErr)
				}
			}
			return meta, true, nil
		}

		frameSize := FrameSize(int(binary.LittleEndian.Uint64(header[0:8])))
		frame := make([]byte, frameSize)
		n, err = f.ReadAt(frame, offset)
		if (err != nil && err != io.EOF) || n < frameSize {
			if allowTrailingTruncate {
				if tErr := f.Truncate(offset); tErr != nil {
					return nil, false, fmt.Errorf("truncate torn record: %w", tErr)
				}
			}
			return meta, true, nil
		}

		rec, size, status := Decode(frame)
		switch status {
		case DecodeOK:
			meta.hasData = true
			if rec.ID > meta.highestID {
				meta.highestID = rec.ID
			}
		case DecodeCorrupt:
			b.corruptCount++
		default:
			// Should not occur: frame was fully read above.
		}
		offset += int64(size)
		meta.size = offset
	}
	return meta, false, nil
}
