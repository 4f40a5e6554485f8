// Package command implements the covert command channel between the
// checkedthreads runtime and the detector.
//
// The runtime and the detector share no API; the only channel available
// is memory the detector already observes. Control messages are therefore
// smuggled as ordinary writes to a tagged in-memory structure:
//
//	offset 0   uint32 magic tag (Magic)
//	offset 4   16-byte constant marker string (Marker)
//	offset 20  128-byte payload: opcode name, then fixed-offset arguments
//
// Every store the instrumentation host delivers is probed for the magic
// tag; only if the constant marker also matches is the payload
// interpreted. The two-stage check makes accidental misinterpretation of
// program data astronomically unlikely while costing one 4-byte read and
// an integer compare per store in the common case.
//
// Decoding is defensive by construction: all reads go through a
// bounds-limited Memory view and a short read means "not a command". The
// detector must never crash on corrupted input.
package command

import (
	"bytes"
	"encoding/binary"
)

// Wire layout constants. These must match the checkedthreads runtime
// exactly; existing instrumented programs depend on them.
const (
	// Magic is the stored tag that opens every command object.
	Magic uint32 = 0x12345678

	// Marker is the constant identification string that follows the magic.
	// Exactly MarkerSize bytes, no terminator.
	Marker = "Valgrind command"

	// MarkerSize is the length of the marker field.
	MarkerSize = 16

	// PayloadSize is the size of the opcode-and-arguments region.
	PayloadSize = 128

	// HeaderSize covers the magic and the marker.
	HeaderSize = 4 + MarkerSize

	// Size is the full footprint of a command object in program memory.
	Size = HeaderSize + PayloadSize

	// intArgOffset is where a 32-bit argument sits within the payload.
	intArgOffset = 4

	// ptrArgOffset is where a pointer-sized argument sits within the payload.
	ptrArgOffset = 8
)

// Memory is a bounds-limited view of the monitored program's address
// space, supplied by the instrumentation host. ReadAt copies up to
// len(p) bytes starting at addr into p and reports how many bytes were
// readable; a short count means the range runs off mapped memory.
type Memory interface {
	ReadAt(addr uintptr, p []byte) int
}

// Op identifies a recognized opcode.
type Op uint8

const (
	// OpUnknown is any payload whose opcode matches none of the known set.
	OpUnknown Op = iota
	// OpBeginFor opens a parallel region. Informational only.
	OpBeginFor
	// OpEndFor closes a parallel region: ownership state is wiped.
	OpEndFor
	// OpIter announces an iteration batch and turns tracking on.
	OpIter
	// OpDone marks the batch finished and turns tracking off.
	OpDone
	// OpThread sets the worker id attributed to the instruction stream.
	OpThread
	// OpStackBot records the stack base in use when the runtime was entered.
	OpStackBot
)

// opcodes maps the known opcode names. Matching is by prefix: the fixed
// argument offsets (4 and 8) butt directly against the 4- and 8-byte
// opcode names, so there is no terminator to compare past. None of the
// known names is a prefix of another.
var opcodes = []struct {
	name string
	op   Op
}{
	{"begin_for", OpBeginFor},
	{"stackbot", OpStackBot},
	{"end_for", OpEndFor},
	{"iter", OpIter},
	{"done", OpDone},
	{"thrd", OpThread},
}

// Command is one decoded control event.
type Command struct {
	// Addr is the base of the command object in program memory. The
	// monitor remembers the footprint [Addr, Addr+Size) to suppress
	// self-observation of the channel's own writes.
	Addr uintptr

	// Op is the recognized opcode, or OpUnknown.
	Op Op

	// Name is the raw opcode text, for protocol-violation diagnostics.
	// For recognized commands it is the matched opcode name.
	Name string

	// IntArg is the 32-bit argument at payload offset 4 (iter, done, thrd).
	IntArg int32

	// PtrArg is the pointer argument at payload offset 8 (stackbot).
	PtrArg uintptr
}

// Contains reports whether addr falls inside this command object's
// footprint.
func (c *Command) Contains(addr uintptr) bool {
	return addr >= c.Addr && addr < c.Addr+Size
}

// Probe performs the first-stage tag check: is there a magic value at
// addr? This runs on every store the host delivers, so it reads exactly
// four bytes. Arguments are read in the program's native byte order; the
// runtime writes them as ordinary integer stores.
func Probe(mem Memory, addr uintptr) bool {
	var buf [4]byte
	if mem.ReadAt(addr, buf[:]) < len(buf) {
		return false
	}
	return binary.NativeEndian.Uint32(buf[:]) == Magic
}

// Decode performs the full two-stage decode of the command object at
// addr. It returns nil if the magic or the constant marker does not
// match, i.e. the store was ordinary program data. A payload whose
// opcode matches none of the known set decodes to Op == OpUnknown; the
// caller reports that as a protocol violation.
//
// The payload read is best effort: bytes beyond the readable range stay
// zero, which can only turn a command into OpUnknown, never into a
// different recognized command.
func Decode(mem Memory, addr uintptr) *Command {
	var buf [Size]byte
	n := mem.ReadAt(addr, buf[:])
	if n < HeaderSize {
		return nil
	}
	if binary.NativeEndian.Uint32(buf[:4]) != Magic {
		return nil
	}
	if !bytes.Equal(buf[4:HeaderSize], []byte(Marker)) {
		return nil
	}

	payload := buf[HeaderSize:]
	cmd := &Command{
		Addr:   addr,
		Op:     OpUnknown,
		IntArg: int32(binary.NativeEndian.Uint32(payload[intArgOffset : intArgOffset+4])),
		PtrArg: uintptr(binary.NativeEndian.Uint64(payload[ptrArgOffset : ptrArgOffset+8])),
	}
	for _, o := range opcodes {
		if bytes.HasPrefix(payload, []byte(o.name)) {
			cmd.Op = o.op
			cmd.Name = o.name
			return cmd
		}
	}
	cmd.Name = opcodeText(payload)
	return cmd
}

// opcodeText extracts the printable opcode prefix of an unrecognized
// payload for diagnostics. It stops at the first NUL or non-printable
// byte and never exceeds the marker-sized window.
func opcodeText(payload []byte) string {
	const window = 16
	end := 0
	for end < window && end < len(payload) {
		b := payload[end]
		if b < 0x20 || b > 0x7e {
			break
		}
		end++
	}
	return string(payload[:end])
}

// Encode builds the wire image of a command object: magic, marker, then
// the opcode name at the start of the payload with the arguments at their
// fixed offsets. It is the writer side of the protocol, used by the
// replay harness and by tests; the checkedthreads runtime performs the
// equivalent stores itself.
//
// Arguments are only laid down where they do not overlap the opcode name,
// matching the runtime: opcodes that carry arguments are at most as long
// as the argument offset.
func Encode(name string, intArg int32, ptrArg uintptr) []byte {
	buf := make([]byte, Size)
	binary.NativeEndian.PutUint32(buf[:4], Magic)
	copy(buf[4:HeaderSize], Marker)

	payload := buf[HeaderSize:]
	copy(payload, name)
	if len(name) <= intArgOffset {
		binary.NativeEndian.PutUint32(payload[intArgOffset:intArgOffset+4], uint32(intArg))
	}
	if len(name) <= ptrArgOffset {
		binary.NativeEndian.PutUint64(payload[ptrArgOffset:ptrArgOffset+8], uint64(ptrArg))
	}
	return buf
}
