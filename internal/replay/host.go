package replay

import (
	"fmt"

	"github.com/lamproae/checkedthreads/internal/check/report"
)

const (
	simPageBits = 12
	simPageSize = 1 << simPageBits
	simPageMask = simPageSize - 1
)

// SimHost is a simulated instrumentation host: a sparse byte-addressed
// memory plus the thread metadata the oracle queries. Traces carry no
// data bytes, so ordinary data addresses stay unmapped and the command
// probe's read fails fast on them; only command objects (and whatever a
// test chooses to write) are backed by real bytes.
type SimHost struct {
	pages    map[uintptr]*[simPageSize]byte
	stackLow uintptr
	file     string
	line     int
}

// NewSimHost returns an empty simulated host labeled with the trace
// file name.
func NewSimHost(file string) *SimHost {
	return &SimHost{
		pages: make(map[uintptr]*[simPageSize]byte),
		file:  file,
	}
}

// ReadAt copies up to len(p) bytes of simulated memory at addr into p.
// The copy stops at the first unmapped page, so short reads mark ranges
// that run off mapped memory, exactly the contract command decode
// depends on.
func (h *SimHost) ReadAt(addr uintptr, p []byte) int {
	n := 0
	for n < len(p) {
		pg, ok := h.pages[(addr+uintptr(n))>>simPageBits]
		if !ok {
			return n
		}
		off := (addr + uintptr(n)) & simPageMask
		n += copy(p[n:], pg[off:])
	}
	return n
}

// Write stores p into simulated memory at addr, mapping pages as needed.
func (h *SimHost) Write(addr uintptr, p []byte) {
	n := 0
	for n < len(p) {
		key := (addr + uintptr(n)) >> simPageBits
		pg, ok := h.pages[key]
		if !ok {
			pg = new([simPageSize]byte)
			h.pages[key] = pg
		}
		off := (addr + uintptr(n)) & simPageMask
		n += copy(pg[off:], p[n:])
	}
}

// SetStackLow records the simulated thread's current stack low bound.
func (h *SimHost) SetStackLow(addr uintptr) { h.stackLow = addr }

// StackLow returns the simulated thread's current stack low bound.
func (h *SimHost) StackLow() uintptr { return h.stackLow }

// SetLine records the trace line about to be replayed, so diagnostics
// point back into the trace.
func (h *SimHost) SetLine(n int) { h.line = n }

// Stack produces a single synthetic frame naming the trace position
// that triggered the diagnostic. Replay has no call stack of its own
// worth showing; the trace line is the useful coordinate.
func (h *SimHost) Stack(max int) []report.Frame {
	if max < 1 {
		return nil
	}
	return []report.Frame{{
		PC:   uintptr(h.line),
		Func: fmt.Sprintf("trace line %d", h.line),
		File: h.file,
		Line: h.line,
	}}
}
