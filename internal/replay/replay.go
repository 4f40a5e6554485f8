// Package replay drives the oracle from recorded memory-access traces.
//
// The trace format is the textual event stream the reference
// instrumentation host emits, one event per line:
//
//	I  0023C790,2    instruction fetch at 0x23C790, 2 bytes
//	 L BE801950,4    data load
//	 S BE80199C,4    data store
//	 M 0025747C,1    data modify (pre-merged load-op-store)
//
// Addresses are hexadecimal (with or without 0x), sizes decimal, leading
// whitespace ignored. Blank lines and lines starting with '#' are
// skipped. Two directives extend the format so a trace can exercise the
// full protocol without a live runtime:
//
//	C <opcode> [arg]   materialize a tagged command object in simulated
//	                   memory and deliver the store that writes it.
//	                   Recognized opcodes take their usual argument
//	                   (iter/done/thrd an integer, stackbot an address);
//	                   any other opcode is encoded verbatim, which is how
//	                   protocol-violation handling is exercised.
//	T <addr>           set the simulated thread's current stack low bound
//	                   (the metadata the host would report).
//
// Each trace runs against its own Checker over a simulated sparse
// memory, so replays of different files are independent.
package replay

import (
	"bufio"
	"fmt"
	"io"

	"github.com/lamproae/checkedthreads/check"
	"github.com/lamproae/checkedthreads/internal/check/command"
	"github.com/lamproae/checkedthreads/internal/check/event"
)

// cmdBase is where command objects are materialized in simulated memory.
// High in the 48-bit range, clear of any address a plausible trace uses.
const cmdBase uintptr = 0x7fff_fff0_0000

// Options configures a replay run.
type Options struct {
	// PrintCommands echoes recognized commands to Output.
	PrintCommands bool

	// Output receives diagnostics (default os.Stderr).
	Output io.Writer

	// MaxStackDepth bounds diagnostic stack traces.
	MaxStackDepth int
}

// Result summarizes one replayed trace.
type Result struct {
	File     string
	Lines    int // event and directive lines processed
	Races    int
	Warnings int
	Events   event.Stats
}

// Run replays the trace read from r. The name labels diagnostics and
// errors (normally the trace file path). Parse failures abort the replay
// with a *TraceError; detector diagnostics never do.
func Run(r io.Reader, name string, opts Options) (*Result, error) {
	host := NewSimHost(name)
	checkerOpts := []check.Option{
		check.WithPrintCommands(opts.PrintCommands),
	}
	if opts.Output != nil {
		checkerOpts = append(checkerOpts, check.WithOutput(opts.Output))
	}
	if opts.MaxStackDepth > 0 {
		checkerOpts = append(checkerOpts, check.WithMaxStackDepth(opts.MaxStackDepth))
	}
	c := check.New(host, checkerOpts...)
	co := c.Coalescer()

	res := &Result{File: name}
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		ln, ok, err := parseLine(sc.Text())
		if err != nil {
			return nil, &TraceError{File: name, Line: lineno, Message: err.Error()}
		}
		if !ok {
			continue
		}
		res.Lines++

		// A load is held back one line so an immediately following store
		// can merge with it into a modify. Anything else drains it first,
		// while the host still points at the load's own line, keeping
		// diagnostics attributed to the line that triggered them.
		if ln.Kind != lineStore {
			co.Flush()
		}
		host.SetLine(lineno)

		switch ln.Kind {
		case lineInstr:
			co.AddInstructionFetch(ln.Addr, ln.Size)
			co.Flush()
		case lineLoad:
			co.AddLoad(ln.Addr, ln.Size)
		case lineStore:
			co.AddStore(ln.Addr, ln.Size)
			co.Flush()
		case lineModify:
			co.AddModify(ln.Addr, ln.Size)
			co.Flush()
		case lineCommand:
			// The command object's bytes must be in place when the monitor
			// decodes the store; successive commands reuse the same address,
			// which the flush above has already drained past.
			host.Write(cmdBase, command.Encode(ln.Cmd, ln.IntArg, ln.PtrArg))
			co.AddStore(cmdBase, command.Size)
			co.Flush()
		case lineStackLow:
			host.SetStackLow(ln.Addr)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	co.Flush()

	res.Races = c.Races()
	res.Warnings = c.Warnings()
	res.Events = co.Stats()
	return res, nil
}
