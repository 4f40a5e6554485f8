// Package monitor implements the per-access decision function of the
// race detector and the region state it operates on.
//
// A Monitor consumes the serialized instrumentation event stream: one
// instruction fetch, load, store or modify per executed instruction.
// Every store is first probed for the covert command channel; recognized
// commands mutate region state (tracking on/off, current worker, stack
// bounds, ownership reset). While tracking is active, every data access
// is checked byte by byte against the ownership table, and writes record
// the current worker as the new owner.
//
// All state lives on the Monitor (no package globals): the host delivers
// events strictly one at a time in true execution order, so the monitor
// is single-threaded relative to the stream and takes no locks. If that
// serialization guarantee is ever lost, callers must restore it with a
// single-consumer event queue; current worker and the ownership table
// are read by every access check.
package monitor

import (
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/lamproae/checkedthreads/internal/check/command"
	"github.com/lamproae/checkedthreads/internal/check/event"
	"github.com/lamproae/checkedthreads/internal/check/owner"
	"github.com/lamproae/checkedthreads/internal/check/report"
)

// Host is the instrumentation environment the monitor runs under. It
// provides a bounds-limited view of program memory (for command decode),
// the running worker's current stack low bound, and stack capture for
// diagnostics.
type Host interface {
	command.Memory

	// StackLow returns the low end (growth limit) of the stack of the
	// thread currently executing, per the host's thread metadata.
	StackLow() uintptr

	// Stack captures up to max frames of the current call stack,
	// symbolized as far as the host can manage.
	Stack(max int) []report.Frame
}

// Options configures a Monitor. The zero value is usable: diagnostics go
// to stderr, command echoing is off, stacks are bounded by
// report.MaxStackDepth.
type Options struct {
	// PrintCommands echoes every recognized command to the diagnostic
	// stream. Debugging aid for the protocol itself.
	PrintCommands bool

	// Output receives diagnostics. Defaults to os.Stderr.
	Output io.Writer

	// MaxStackDepth bounds captured stack traces.
	MaxStackDepth int
}

// Monitor holds all detector state for one event stream. Not safe for
// concurrent use.
type Monitor struct {
	host     Host
	table    *owner.Table
	reporter *report.Reporter

	printCommands bool
	maxStackDepth int

	// Region state, reset at each end_for.
	active   bool
	worker   owner.ID
	stackBot uintptr // stack base recorded by the stackbot command
	stackLow uintptr // current low bound of the worker's stack
	lastCmd  *command.Command
}

// New returns a monitor driven by host. It validates the host
// configuration: the radix table slices 48-bit addresses and command
// pointers travel as 64-bit fields, so a narrower word size would
// silently corrupt verdicts.
func New(host Host, opts Options) *Monitor {
	if bits.UintSize != 64 {
		panic("checkedthreads: unsupported host word size")
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	depth := opts.MaxStackDepth
	if depth <= 0 {
		depth = report.MaxStackDepth
	}
	return &Monitor{
		host:          host,
		table:         owner.NewTable(),
		reporter:      report.NewReporter(out),
		printCommands: opts.PrintCommands,
		maxStackDepth: depth,
	}
}

// OnInstructionFetch handles an instruction-fetch event. Informational:
// fetches exist to keep upstream event merging correct and carry no
// ownership semantics.
func (m *Monitor) OnInstructionFetch(addr uintptr, size int) {
	_ = addr
	_ = size
}

// OnLoad handles a data read of [addr, addr+size).
func (m *Monitor) OnLoad(addr uintptr, size int) {
	if m.active {
		m.onAccess(addr, size, false)
	}
}

// OnStore handles a data write of [addr, addr+size).
func (m *Monitor) OnStore(addr uintptr, size int) {
	m.onStore(addr, size)
}

// OnModify handles a combined read-then-write of [addr, addr+size).
// Ownership-wise a modify is a write: the same worker reading what it is
// about to overwrite introduces no new conflict.
func (m *Monitor) OnModify(addr uintptr, size int) {
	m.onStore(addr, size)
}

// onStore routes a write event. The command probe comes first: a
// recognized command mutates region state. The store then still falls
// through to ownership tracking — a command store is a store, its bytes
// get owners like any others; only reporting against the live command
// object is suppressed.
func (m *Monitor) onStore(addr uintptr, size int) {
	if command.Probe(m.host, addr) {
		if cmd := command.Decode(m.host, addr); cmd != nil {
			m.apply(cmd)
		}
	}
	if m.active {
		m.onAccess(addr, size, true)
	}
}

// onAccess checks [base, base+size) against the ownership table. At most
// one race is reported per access: scanning for conflicts stops at the
// first reported byte. Writes update the owner of every byte in range
// regardless of conflicts or suppression, so ownership always reflects
// the most recent writer.
func (m *Monitor) onAccess(base uintptr, size int, store bool) {
	reported := false
	for i := 0; i < size; i++ {
		addr := base + uintptr(i)
		pg := m.table.Page(addr)
		own := pg.OwnerAt(addr)
		if !reported && own != owner.None && own != m.worker && !m.suppressed(addr) {
			m.reporter.Race(&report.Race{
				Worker: int(m.worker) - 1,
				Owner:  int(own) - 1,
				Addr:   addr,
				Base:   base,
				Size:   size,
				Stack:  m.host.Stack(m.maxStackDepth),
			})
			reported = true
		}
		if store {
			pg.SetOwnerAt(addr, m.worker)
		}
	}
}

// suppressed reports whether a conflict at addr must not be reported.
// Two windows apply: the private stack scratch below the point where the
// runtime was entered, and the live command object's own footprint.
//
// The stack window is [stackLow, stackBot). stackLow is recorded when
// the stackbot command arrives; if addr falls below it the stack may
// simply have grown since, so the bound is recomputed once from the host
// and the test repeated. A stack that later shrinks back above an old
// bound keeps the wider window until the next stackbot — an accepted
// limitation of the protocol.
func (m *Monitor) suppressed(addr uintptr) bool {
	if addr >= m.stackLow && addr < m.stackBot {
		return true
	}
	if addr < m.stackLow {
		m.stackLow = m.host.StackLow()
		if addr >= m.stackLow && addr < m.stackBot {
			return true
		}
	}
	if m.lastCmd != nil && m.lastCmd.Contains(addr) {
		return true
	}
	return false
}

// apply executes one decoded command. The command object's footprint is
// remembered afterwards — recognized or not — so the channel's own
// bookkeeping writes never read as races.
func (m *Monitor) apply(cmd *command.Command) {
	switch cmd.Op {
	case command.OpBeginFor:
		m.echo("begin_for\n")

	case command.OpEndFor:
		m.echo("end_for\n")
		m.table.Clear()
		m.worker = owner.None

	case command.OpIter:
		m.echo("iter %d\n", cmd.IntArg)
		m.active = true

	case command.OpDone:
		m.echo("done %d\n", cmd.IntArg)
		m.active = false

	case command.OpThread:
		if cmd.IntArg < 0 || cmd.IntArg >= owner.MaxOwner {
			panic(fmt.Sprintf("checkedthreads: worker id %d exceeds the %d-worker limit",
				cmd.IntArg, owner.MaxOwner))
		}
		m.worker = owner.ID(cmd.IntArg + 1)

	case command.OpStackBot:
		m.stackBot = cmd.PtrArg
		m.stackLow = m.host.StackLow()
		m.echo("stackbot 0x%x [stackend 0x%x]\n", m.stackBot, m.stackLow)

	default:
		m.reporter.Warning(&report.Warning{
			Addr:  cmd.Addr,
			Name:  cmd.Name,
			Stack: m.host.Stack(m.maxStackDepth),
		})
	}
	m.lastCmd = cmd
}

func (m *Monitor) echo(format string, args ...any) {
	if m.printCommands {
		m.reporter.Printf(format, args...)
	}
}

// Active reports whether access tracking is currently enforced.
func (m *Monitor) Active() bool { return m.active }

// CurrentWorker returns the owner id attributed to the instruction
// stream (owner.None if no thrd command has arrived this region).
func (m *Monitor) CurrentWorker() owner.ID { return m.worker }

// Races returns the number of race diagnostics emitted.
func (m *Monitor) Races() int { return m.reporter.Races() }

// Warnings returns the number of protocol warnings emitted.
func (m *Monitor) Warnings() int { return m.reporter.Warnings() }

// TableStats returns the ownership table's allocated-node counts.
func (m *Monitor) TableStats() owner.Stats { return m.table.Stats() }

// Summary writes the end-of-run totals to w.
func (m *Monitor) Summary(w io.Writer) {
	st := m.table.Stats()
	fmt.Fprintf(w, "checkedthreads: %d race(s), %d warning(s)\n",
		m.reporter.Races(), m.reporter.Warnings())
	fmt.Fprintf(w, "checkedthreads: live pagetable nodes: %d L2, %d L1, %d pages\n",
		st.LevelTwoNodes, st.LevelOneNodes, st.Pages)
}

// Sink assertion: a Monitor is a valid coalescer sink.
var _ event.Sink = (*Monitor)(nil)
