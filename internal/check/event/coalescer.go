// Package event implements the ordered event buffer that sits between
// the instrumentation host and the access monitor.
//
// The host reports one event per executed instruction: an instruction
// fetch, then zero or more data reads and writes. Architectures with
// load-op-store instructions (x86, amd64) report such an instruction as
// a read followed by a write of the same address and size; the detector
// must treat that as a single modify access, not as two accesses, or a
// worker re-writing its own freshly read byte would look like two
// distinct touches. The Coalescer performs that merge over a small
// ordered buffer before handing events to the Sink in program order.
//
// Instruction-fetch events never reach ownership logic but must flow
// through the buffer: they separate the data events of adjacent
// instructions, so a read and a write that belong to different
// instructions are never merged.
package event

import "fmt"

// Kind discriminates buffered events.
type Kind uint8

const (
	// InstructionFetch is the fetch of an instruction's own bytes.
	InstructionFetch Kind = iota
	// Load is a data read.
	Load
	// Store is a data write.
	Store
	// Modify is a combined read-then-write of the same location.
	Modify
)

// String returns the single-letter trace mnemonic for the kind.
func (k Kind) String() string {
	switch k {
	case InstructionFetch:
		return "I"
	case Load:
		return "L"
	case Store:
		return "S"
	case Modify:
		return "M"
	default:
		return "?"
	}
}

const (
	// MaxAccessSize bounds the size of a single data access.
	MaxAccessSize = 512

	// bufferSize is the number of unflushed events allowed. Must be at
	// least two so that a read and a write of the same address can sit in
	// the buffer together and merge into a modify.
	bufferSize = 4
)

// Event is one buffered instrumentation event.
type Event struct {
	Kind Kind
	Addr uintptr
	Size int
}

// Sink consumes flushed events in program order. The access monitor is
// the production sink.
type Sink interface {
	OnInstructionFetch(addr uintptr, size int)
	OnLoad(addr uintptr, size int)
	OnStore(addr uintptr, size int)
	OnModify(addr uintptr, size int)
}

// Stats counts events through the coalescer.
type Stats struct {
	Instructions uint64
	Loads        uint64
	Stores       uint64
	Modifies     uint64 // includes merged pairs
	Merged       uint64 // load+store pairs collapsed into a modify
}

// Coalescer buffers events and merges an immediately following store
// into a preceding load of the same address and size. Not safe for
// concurrent use; one coalescer per serialized event stream.
type Coalescer struct {
	sink  Sink
	buf   [bufferSize]Event
	used  int
	stats Stats
}

// NewCoalescer returns a coalescer feeding sink.
func NewCoalescer(sink Sink) *Coalescer {
	return &Coalescer{sink: sink}
}

// AddInstructionFetch buffers an instruction-fetch event. Required even
// by callers with no interest in fetches: its position in the buffer is
// what keeps the load/store merge from crossing instruction boundaries.
func (c *Coalescer) AddInstructionFetch(addr uintptr, size int) {
	c.append(Event{Kind: InstructionFetch, Addr: addr, Size: size})
}

// AddLoad buffers a data read of [addr, addr+size).
func (c *Coalescer) AddLoad(addr uintptr, size int) {
	checkSize(size)
	c.append(Event{Kind: Load, Addr: addr, Size: size})
}

// AddStore buffers a data write of [addr, addr+size). A store whose
// address and size exactly match the immediately preceding unflushed
// load merges with it into a single modify event.
func (c *Coalescer) AddStore(addr uintptr, size int) {
	checkSize(size)
	if c.used > 0 {
		last := &c.buf[c.used-1]
		if last.Kind == Load && last.Addr == addr && last.Size == size {
			last.Kind = Modify
			c.stats.Merged++
			return
		}
	}
	c.append(Event{Kind: Store, Addr: addr, Size: size})
}

// AddModify buffers a pre-merged read-then-write event, for hosts whose
// front end already coalesces load-op-store instructions.
func (c *Coalescer) AddModify(addr uintptr, size int) {
	checkSize(size)
	c.append(Event{Kind: Modify, Addr: addr, Size: size})
}

// Flush delivers all buffered events to the sink in order and empties
// the buffer. Callers must flush before any point the event stream can
// diverge (end of an instrumented block, end of a trace).
func (c *Coalescer) Flush() {
	for i := 0; i < c.used; i++ {
		ev := c.buf[i]
		switch ev.Kind {
		case InstructionFetch:
			c.stats.Instructions++
			c.sink.OnInstructionFetch(ev.Addr, ev.Size)
		case Load:
			c.stats.Loads++
			c.sink.OnLoad(ev.Addr, ev.Size)
		case Store:
			c.stats.Stores++
			c.sink.OnStore(ev.Addr, ev.Size)
		case Modify:
			c.stats.Modifies++
			c.sink.OnModify(ev.Addr, ev.Size)
		}
	}
	c.used = 0
}

// Stats returns a copy of the running event counts.
func (c *Coalescer) Stats() Stats {
	return c.stats
}

func (c *Coalescer) append(ev Event) {
	if c.used == bufferSize {
		c.Flush()
	}
	c.buf[c.used] = ev
	c.used++
}

// checkSize enforces the host contract on data access sizes. A size
// outside the supported bounds means the event stream itself is corrupt,
// which the detector treats as fatal: its only value is verdict
// correctness.
func checkSize(size int) {
	if size < 1 || size > MaxAccessSize {
		panic(fmt.Sprintf("checkedthreads: access size %d outside [1,%d]", size, MaxAccessSize))
	}
}
