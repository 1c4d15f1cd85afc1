// Package diskbuf implements the disk-backed buffer: a segmented,
// append-only, record-oriented log with an at-least-once read cursor,
// crash recovery, and a ledger committed via atomic rename. This is the
// hardest subsystem in this runtime; it is grounded on the outbox-pattern
// durability idiom in the teacher's event bus (enqueue -> publish ->
// mark-delivered/failed, background replay) generalized from a Postgres
// table to a local segmented file, and on the archive/versioned frame
// vocabulary of vectordotdev/vector's disk_v2 buffer variant.
package diskbuf

import (
	"encoding/binary"
	"hash/crc32"
)

// recordHeaderSize is len(8) + id(8) + crc32c(4), per this frame
// layout: `len:u64 | id:u64 | crc32c:u32 | payload[len] | pad to 16`.
const recordHeaderSize = 20

// alignment is the frame padding boundary the documented contract requires.
const alignment = 16

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Record is one disk-buffer payload: a monotonic id
// plus opaque encoded bytes. event_count/encoded_len are derivable from the
// payload and frame header respectively and are not stored redundantly.
type Record struct {
	ID uint64
	Payload []byte
}

// FrameSize returns the total on-disk size of a record with the given
// payload length, including the 16-byte alignment padding.
func FrameSize(payloadLen int) int {
	raw := recordHeaderSize + payloadLen
	pad := (alignment - raw%alignment) % alignment
	return raw + pad
}

// Encode serializes r into its on-disk frame. The returned slice is exactly
// FrameSize(len(r.Payload)) bytes; trailing padding bytes are zero.
func Encode(r Record) []byte {
	size := FrameSize(len(r.Payload))
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(r.Payload)))
	binary.LittleEndian.PutUint64(buf[8:16], r.ID)
	crc := crc32.Checksum(r.Payload, castagnoliTable)
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	copy(buf[recordHeaderSize:], r.Payload)
	return buf
}

// DecodeStatus classifies the outcome of Decode.
type DecodeStatus uint8

const (
	// DecodeOK: the frame parsed and its checksum matched.
	DecodeOK DecodeStatus = iota
	// DecodeIncomplete: buf does not contain a full frame — either a
	// trailing partial write (if at end of file) or, in principle, a
	// corrupted length field; the reader/recovery code disambiguates by
	// position.
	DecodeIncomplete
	// DecodeCorrupt: a full frame was present but its checksum did not
	// match the payload.
	DecodeCorrupt
)

// Decode parses one frame from the head of buf. frameSize is the number of
// bytes the frame occupies (valid even when status is DecodeCorrupt, so the
// caller can skip past it; zero when status is DecodeIncomplete since the
// true frame boundary is unknown).
func Decode(buf []byte) (rec Record, frameSize int, status DecodeStatus) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, DecodeIncomplete
	}
	payloadLen := binary.LittleEndian.Uint64(buf[0:8])
	id := binary.LittleEndian.Uint64(buf[8:16])
	crc := binary.LittleEndian.Uint32(buf[16:20])

	size := FrameSize(int(payloadLen))
	if size > len(buf) {
		return Record{}, 0, DecodeIncomplete
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[recordHeaderSize:recordHeaderSize+int(payloadLen)])
	if crc32.Checksum(payload, castagnoliTable) != crc {
		return Record{ID: id}, size, DecodeCorrupt
	}
	return Record{ID: id, Payload: payload}, size, DecodeOK
}
