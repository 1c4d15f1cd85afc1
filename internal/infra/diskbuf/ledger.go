package diskbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

const (
	ledgerName = "buffer.ledger"
	ledgerTmpName = "buffer.ledger.tmp"

	// ledgerVersion is this package's on-disk ledger format version. Per
	// As recorded in DESIGN.md, only this (v2-equivalent) format is
	// implemented; there is no v1 migration path.
	ledgerVersion = 2

	// ledgerFrameSize is version(2) + writer_next_id(8) + reader_next_id(8)
	// + first_live_segment(8) + ack_cursor(8) + crc32c(4), the documented contract.
	ledgerFrameSize = 2 + 8 + 8 + 8 + 8 + 4
)

// ledgerData is the control-file payload recording a buffer's write/read/ack
// positions.
type ledgerData struct {
	Version uint16
	WriterNextID uint64
	ReaderNextID uint64
	FirstLiveSegment uint64
	AckCursor uint64
}

func encodeLedger(d ledgerData) []byte {
	buf := make([]byte, ledgerFrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], ledgerVersion)
	binary.LittleEndian.PutUint64(buf[2:10], d.WriterNextID)
	binary.LittleEndian.PutUint64(buf[10:18], d.ReaderNextID)
	binary.LittleEndian.PutUint64(buf[18:26], d.FirstLiveSegment)
	binary.LittleEndian.PutUint64(buf[26:34], d.AckCursor)
	crc := crc32.Checksum(buf[:34], castagnoliTable)
	binary.LittleEndian.PutUint32(buf[34:38], crc)
	return buf
}

func decodeLedger(buf []byte) (ledgerData, error) {
	if len(buf) < ledgerFrameSize {
		return ledgerData{}, fmt.Errorf("diskbuf: ledger frame truncated (%d bytes)", len(buf))
	}
	var d ledgerData
	d.Version = binary.LittleEndian.Uint16(buf[0:2])
	d.WriterNextID = binary.LittleEndian.Uint64(buf[2:10])
	d.ReaderNextID = binary.LittleEndian.Uint64(buf[10:18])
	d.FirstLiveSegment = binary.LittleEndian.Uint64(buf[18:26])
	d.AckCursor = binary.LittleEndian.Uint64(buf[26:34])
	crc := binary.LittleEndian.Uint32(buf[34:38])
	if crc32.Checksum(buf[:34], castagnoliTable) != crc {
		return ledgerData{}, fmt.Errorf("diskbuf: ledger checksum mismatch")
	}
	return d, nil
}

// writeLedger commits d to dir via an atomic-rename protocol: write to a
// sibling tmp file, fsync, rename over the live ledger. The design
// note prefers this over in-place writes so recovery never observes a torn
// ledger.
func writeLedger(dir string, d ledgerData) error {
	tmpPath := filepath.Join(dir, ledgerTmpName)
	finalPath := filepath.Join(dir, ledgerName)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("diskbuf: open ledger tmp: %w", err)
	}
	if _, err := f.Write(encodeLedger(d)); err != nil {
		f.Close()
		return fmt.Errorf("diskbuf: write ledger tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("diskbuf: fsync ledger tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("diskbuf: close ledger tmp: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("diskbuf: rename ledger into place: %w", err)
	}
	return nil
}

// readLedger loads the live ledger from dir. found is false if no ledger
// exists yet (a fresh buffer).
func readLedger(dir string) (d ledgerData, found bool, err error) {
	raw, err := os.ReadFile(filepath.Join(dir, ledgerName))
	if errors.Is(err, os.ErrNotExist) {
		return ledgerData{}, false, nil
	}
	if err != nil {
		return ledgerData{}, false, fmt.Errorf("diskbuf: read ledger: %w", err)
	}
	d, err = decodeLedger(raw)
	if err != nil {
		return ledgerData{}, false, err
	}
	return d, true, nil
}
