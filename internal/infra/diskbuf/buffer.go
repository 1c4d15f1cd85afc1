package diskbuf

import (
	"fmt"
	"os"
	"sync"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
	"github.com/coachpo/conduit/internal/infra/membuf"
)

// State is the per-buffer lifecycle: writers accept only in
// Ready; readers accept in Ready and Draining.
type State uint8

const (
	StateInitializing State = iota
	StateLoading
	StateReady
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Codec encodes/decodes events to/from the opaque payload bytes a Record
// carries. The disk buffer package does not mandate a specific wire format;
// callers supply one (internal/infra/codec provides the goccy/go-json-backed
// default). Each Record holds exactly one encoded event — a per-record
// event count for payloads batching several events per physical record is
// not implemented, since no component writes multi-event records below the
// buffer-topology layer.
type Codec interface {
	Encode(e *event.Event) ([]byte, error)
	Decode(b []byte) (*event.Event, error)
}

// Config configures a Buffer at construction.
type Config struct {
	Dir string
	MaxSegmentBytes int64
	MaxTotalBytes int64
	Policy membuf.FullPolicy
	Codec Codec
	Observer component.Observer
	// RejectOversized, when true, causes a write larger than MaxSegmentBytes
	// to be rejected (event marked Rejected) instead of being allowed to
	// exceed the segment cap by exactly that one record.
	RejectOversized bool
}

func (c *Config) setDefaults() {
	if c.MaxSegmentBytes <= 0 {
		c.MaxSegmentBytes = 64 * 1024 * 1024
	}
	if c.MaxTotalBytes <= 0 {
		c.MaxTotalBytes = 10 * c.MaxSegmentBytes
	}
	if c.Observer == nil {
		c.Observer = component.NopObserver{}
	}
}

// Buffer is the segmented, record-oriented disk log the documented contract.
// A single mutex guards the ledger and segment bookkeeping; it is held
// across each record append and fsync, each reader frame read, ledger
// commits, and ack-cursor advances.
type Buffer struct {
	name string
	dir string
	cfg Config
	codec Codec
	mu sync.Mutex
	state State
	closed bool

	segments []*segmentMeta
	writerF *os.File
	writerID uint64 // segment id currently open for append

	writerNextID uint64 // next record id to assign
	readerNextID uint64 // next record id to deliver
	ackCursor uint64 // highest contiguously-acknowledged id (0 = none)
	pendingAcks map[uint64]finalOutcome

	// pendingFinalizers holds the finalizers detached from an event at
	// write time (its original notifier attachments), keyed by the record
	// id they travel with on disk, until a Recv re-attaches them to the
	// decoded event. Only ever populated in-memory within one process:
	// after a crash the original notifiers are gone too, so recovered
	// records carry none.
	pendingFinalizers map[uint64][]*finalizer.Finalizer

	totalBytes int64

	// reader cursor state: sequential position within the live segment
	// list, since ids are consumed strictly in append order.
	readerSegIdx int
	readerOffset int64
	readerFile *os.File
	readerFileID uint64

	unreadSignal chan struct{} // closed-and-replaced to wake a blocked Recv/Send
	corruptCount uint64
}

type finalOutcome uint8

const (
	outcomeNone finalOutcome = iota
	outcomeAcked
	outcomePoisoned
)

// Open constructs or recovers a Buffer rooted at cfg.Dir, running crash
// recovery (recovery.go) before transitioning to StateReady.
func Open(name string, cfg Config) (*Buffer, error) {
	cfg.setDefaults()
	if cfg.Dir == "" {
		return nil, errs.Config("diskbuf", errs.WithMessage("data_dir is required"))
	}
	if cfg.Codec == nil {
		return nil, errs.Config("diskbuf", errs.WithMessage("codec is required"))
	}
	if cfg.Policy == membuf.PolicyOverflow {
		return nil, errs.Config("diskbuf", errs.WithMessage("disk buffer cannot itself use the overflow policy"))
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskbuf: create buffer dir: %w", err)
	}

	b := &Buffer{
		name: name,
		dir: cfg.Dir,
		cfg: cfg,
		codec: cfg.Codec,
		state: StateInitializing,
		pendingAcks: make(map[uint64]finalOutcome),
		pendingFinalizers: make(map[uint64][]*finalizer.Finalizer),
		unreadSignal: make(chan struct{}),
	}

	b.state = StateLoading
	if err := b.recover(); err != nil {
		return nil, fmt.Errorf("diskbuf: recover %s: %w", name, err)
	}
	b.state = StateReady
	return b, nil
}

// State reports the buffer's current lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CorruptRecords reports the running count of records skipped due to
// checksum failure.
func (b *Buffer) CorruptRecords() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.corruptCount
}

// TotalBytes reports the current on-disk footprint across all live
// segments.
func (b *Buffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// Pending reports the number of records written but not yet delivered,
// satisfying buffertopology.Stage alongside membuf.Buffer's equivalent
// method.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.writerNextID - b.readerNextID)
}

// Policy reports the configured full-policy, which buffertopology.New
// checks to reject an overflow policy on the terminal stage.
func (b *Buffer) Policy() membuf.FullPolicy {
	return b.cfg.Policy
}

// Drain transitions the buffer to Draining: writers stop accepting new
// records but readers may continue to drain what remains resident
//.
func (b *Buffer) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateReady {
		b.state = StateDraining
		b.wakeReaders()
	}
}

// Close finalizes the current segment and closes the buffer. Safe to call
// more than once.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.state = StateClosed
	if b.writerF != nil {
		if err := b.writerF.Close(); err != nil {
			return fmt.Errorf("diskbuf: close segment: %w", err)
		}
		b.writerF = nil
	}
	if b.readerFile != nil {
		b.readerFile.Close()
		b.readerFile = nil
	}
	b.wakeReaders()
	return nil
}

func (b *Buffer) wakeReaders() {
	close(b.unreadSignal)
	b.unreadSignal = make(chan struct{})
}

func (b *Buffer) waitChan() chan struct{} {
	return b.unreadSignal
}
