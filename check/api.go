// Package check is the public API of the checkedthreads race-detection
// oracle.
//
// The oracle observes every memory access an instrumented program makes
// during a parallel-for region and flags any byte written by one worker
// and then touched by a different worker without an intervening region
// boundary. Control events (region start/end, worker identity, stack
// bounds) arrive over a covert command channel: the runtime performs
// ordinary tagged memory writes that the oracle's store hook recognizes.
//
// An instrumentation host drives the oracle with one event per executed
// instruction:
//
//	c := check.New(host)
//	c.OnInstructionFetch(pc, ilen)
//	c.OnLoad(addr, size)
//	c.OnStore(addr, size)
//	c.OnModify(addr, size)
//
// Hosts that deliver raw, unmerged load/store pairs (no modify events)
// should route them through Coalescer, which reconstructs modify events
// for load-op-store instructions:
//
//	co := c.Coalescer()
//	co.AddInstructionFetch(pc, ilen)
//	co.AddLoad(addr, size)
//	co.AddStore(addr, size) // merges into a modify
//	co.Flush()
//
// A Checker is driven by a single serialized event stream and is not
// safe for concurrent use. Detection is advisory: races are reported and
// execution continues; the oracle never alters the monitored program's
// observable behavior.
package check

import (
	"io"

	"github.com/lamproae/checkedthreads/internal/check/event"
	"github.com/lamproae/checkedthreads/internal/check/monitor"
	"github.com/lamproae/checkedthreads/internal/check/owner"
	"github.com/lamproae/checkedthreads/internal/check/report"
)

// Host is the instrumentation environment contract: bounds-limited
// program memory reads, the running worker's stack low bound, and stack
// capture for diagnostics.
type Host = monitor.Host

// Frame is one host-symbolized stack frame in a diagnostic.
type Frame = report.Frame

// TableStats reports the ownership store's allocated-node counts.
type TableStats = owner.Stats

// MaxAccessSize is the largest supported single data access, in bytes.
const MaxAccessSize = event.MaxAccessSize

// Option configures a Checker.
type Option func(*monitor.Options)

// WithPrintCommands echoes every recognized runtime command to the
// diagnostic stream. This is the tool's single runtime option, used for
// debugging the command protocol itself.
func WithPrintCommands(on bool) Option {
	return func(o *monitor.Options) { o.PrintCommands = on }
}

// WithOutput redirects diagnostics (default os.Stderr).
func WithOutput(w io.Writer) Option {
	return func(o *monitor.Options) { o.Output = w }
}

// WithMaxStackDepth bounds captured stack traces (default 20 frames).
func WithMaxStackDepth(depth int) Option {
	return func(o *monitor.Options) { o.MaxStackDepth = depth }
}

// Checker is one race-detection oracle instance.
type Checker struct {
	mon *monitor.Monitor
	co  *event.Coalescer
}

// New returns a checker driven by host.
func New(host Host, opts ...Option) *Checker {
	var o monitor.Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Checker{mon: monitor.New(host, o)}
}

// OnInstructionFetch delivers an instruction-fetch event.
func (c *Checker) OnInstructionFetch(addr uintptr, size int) {
	c.mon.OnInstructionFetch(addr, size)
}

// OnLoad delivers a data read event.
func (c *Checker) OnLoad(addr uintptr, size int) {
	c.mon.OnLoad(addr, size)
}

// OnStore delivers a data write event. Stores are additionally probed
// for the covert command channel.
func (c *Checker) OnStore(addr uintptr, size int) {
	c.mon.OnStore(addr, size)
}

// OnModify delivers a combined read-then-write event.
func (c *Checker) OnModify(addr uintptr, size int) {
	c.mon.OnModify(addr, size)
}

// Coalescer returns the checker's event-merging front end, created on
// first use. Events added to it reach the checker on Flush.
func (c *Checker) Coalescer() *event.Coalescer {
	if c.co == nil {
		c.co = event.NewCoalescer(c.mon)
	}
	return c.co
}

// Active reports whether access tracking is currently enforced.
func (c *Checker) Active() bool { return c.mon.Active() }

// Races returns the number of race diagnostics emitted so far.
func (c *Checker) Races() int { return c.mon.Races() }

// Warnings returns the number of protocol warnings emitted so far.
func (c *Checker) Warnings() int { return c.mon.Warnings() }

// Stats returns the ownership store's allocated-node counts.
func (c *Checker) Stats() TableStats { return c.mon.TableStats() }

// Summary writes end-of-run totals to w.
func (c *Checker) Summary(w io.Writer) { c.mon.Summary(w) }
