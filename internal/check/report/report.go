// Package report formats the detector's diagnostics.
//
// Two kinds exist: data races (advisory; execution continues) and
// protocol warnings (a tagged command object with an unrecognized
// opcode). Both carry a bounded stack trace supplied by the
// instrumentation host; symbolication happens on the host side, the
// detector only renders the frames it is handed.
package report

import (
	"fmt"
	"io"
	"strings"
)

// MaxStackDepth is the default bound on captured stack frames.
const MaxStackDepth = 20

// Frame is one host-symbolized stack frame. Fields other than PC may be
// empty when the host has no symbol information for the location.
type Frame struct {
	PC   uintptr
	Func string
	File string
	Line int
}

// Race describes one detected ownership conflict: worker Worker touched
// a byte most recently written by worker Owner with no region boundary
// in between. Worker ids use the runtime's numbering (first worker is 0).
type Race struct {
	Worker int
	Owner  int
	Addr   uintptr // the first conflicting byte
	Base   uintptr // base of the original access
	Size   int     // size of the original access
	Stack  []Frame
}

// Format renders the race in the reference single-line format followed
// by the captured stack.
func (r *Race) Format(w io.Writer) {
	fmt.Fprintf(w, "checkedthreads: error - thread %d accessed 0x%x [0x%x,%d], owned by %d\n",
		r.Worker, r.Addr, r.Base, r.Size, r.Owner)
	writeStack(w, r.Stack)
}

// String returns the formatted report, for tests and logs.
func (r *Race) String() string {
	var buf strings.Builder
	r.Format(&buf)
	return buf.String()
}

// Warning describes a protocol violation: a store that passed both tag
// checks but whose opcode matches none of the known set.
type Warning struct {
	Addr  uintptr // base of the offending command object
	Name  string  // printable opcode prefix, possibly empty
	Stack []Frame
}

// Format renders the warning in the reference format.
func (wn *Warning) Format(w io.Writer) {
	fmt.Fprintf(w, "checkedthreads: WARNING - unknown command!\n")
	writeStack(w, wn.Stack)
}

// String returns the formatted warning.
func (wn *Warning) String() string {
	var buf strings.Builder
	wn.Format(&buf)
	return buf.String()
}

// writeStack renders host frames, one per line with an indented
// location, matching the pretty-printed traces of the reference tool.
func writeStack(w io.Writer, frames []Frame) {
	if len(frames) == 0 {
		fmt.Fprintf(w, "  <no stack trace>\n")
		return
	}
	for _, f := range frames {
		if f.Func == "" {
			fmt.Fprintf(w, "  0x%x\n", f.PC)
			continue
		}
		fmt.Fprintf(w, "  %s()\n", f.Func)
		if f.File != "" {
			fmt.Fprintf(w, "      %s:%d\n", f.File, f.Line)
		}
	}
}

// Reporter serializes diagnostics onto one writer and keeps counts for
// the end-of-run summary. Driven by the single event stream, so it needs
// no locking.
type Reporter struct {
	w        io.Writer
	races    int
	warnings int
}

// NewReporter returns a reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Race emits a race diagnostic.
func (rp *Reporter) Race(r *Race) {
	rp.races++
	r.Format(rp.w)
}

// Warning emits a protocol-violation diagnostic.
func (rp *Reporter) Warning(wn *Warning) {
	rp.warnings++
	wn.Format(rp.w)
}

// Printf writes a free-form diagnostic line (command echoes).
func (rp *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(rp.w, format, args...)
}

// Races returns the number of race diagnostics emitted.
func (rp *Reporter) Races() int { return rp.races }

// Warnings returns the number of protocol warnings emitted.
func (rp *Reporter) Warnings() int { return rp.warnings }
