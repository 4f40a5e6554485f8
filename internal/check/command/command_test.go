package command

import (
	"encoding/binary"
	"testing"
)

// sparseMemory is a byte-granular test double for the host memory view.
// Reads stop at the first missing byte, which models running off mapped
// memory.
type sparseMemory map[uintptr]byte

func (m sparseMemory) ReadAt(addr uintptr, p []byte) int {
	for i := range p {
		b, ok := m[addr+uintptr(i)]
		if !ok {
			return i
		}
		p[i] = b
	}
	return len(p)
}

func (m sparseMemory) write(addr uintptr, p []byte) {
	for i, b := range p {
		m[addr+uintptr(i)] = b
	}
}

// TestProbe_TaggedStore verifies the first-stage check accepts a stored
// magic value.
func TestProbe_TaggedStore(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x5000)
	mem.write(addr, Encode("iter", 0, 0))

	if !Probe(mem, addr) {
		t.Error("Probe() = false for a tagged command object")
	}

	t.Logf("Probe() recognizes the magic tag at 0x%x", addr)
}

// TestProbe_OrdinaryData verifies ordinary program data fails the probe.
func TestProbe_OrdinaryData(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x5000)
	mem.write(addr, []byte{0x01, 0x02, 0x03, 0x04})

	if Probe(mem, addr) {
		t.Error("Probe() = true for ordinary data")
	}
	if Probe(mem, 0x9000) {
		t.Error("Probe() = true for unmapped memory")
	}

	t.Logf("Probe() rejects non-magic and unmapped stores")
}

// TestDecode_Opcodes verifies each recognized opcode decodes with its
// argument at the fixed offset.
func TestDecode_Opcodes(t *testing.T) {
	cases := []struct {
		name   string
		intArg int32
		ptrArg uintptr
		op     Op
	}{
		{"begin_for", 0, 0, OpBeginFor},
		{"end_for", 0, 0, OpEndFor},
		{"iter", 42, 0, OpIter},
		{"done", 42, 0, OpDone},
		{"thrd", 7, 0, OpThread},
		{"stackbot", 0, 0xbe80_0000, OpStackBot},
	}

	for _, tc := range cases {
		mem := sparseMemory{}
		addr := uintptr(0x6000)
		mem.write(addr, Encode(tc.name, tc.intArg, tc.ptrArg))

		cmd := Decode(mem, addr)
		if cmd == nil {
			t.Fatalf("Decode(%q) = nil", tc.name)
		}
		if cmd.Op != tc.op {
			t.Errorf("Decode(%q).Op = %v, want %v", tc.name, cmd.Op, tc.op)
		}
		if cmd.Name != tc.name {
			t.Errorf("Decode(%q).Name = %q, want %q", tc.name, cmd.Name, tc.name)
		}
		if cmd.Addr != addr {
			t.Errorf("Decode(%q).Addr = 0x%x, want 0x%x", tc.name, cmd.Addr, addr)
		}
		// Arguments sit past the short opcodes; the long opcodes overlap
		// them and carry none.
		if len(tc.name) <= intArgOffset && cmd.IntArg != tc.intArg {
			t.Errorf("Decode(%q).IntArg = %d, want %d", tc.name, cmd.IntArg, tc.intArg)
		}
		if tc.name == "stackbot" && cmd.PtrArg != tc.ptrArg {
			t.Errorf("Decode(%q).PtrArg = 0x%x, want 0x%x", tc.name, cmd.PtrArg, tc.ptrArg)
		}
	}

	t.Logf("all %d recognized opcodes decode correctly", len(cases))
}

// TestDecode_UnknownOpcode verifies an unrecognized opcode decodes to
// OpUnknown with its printable name preserved for diagnostics.
func TestDecode_UnknownOpcode(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x6000)
	mem.write(addr, Encode("frobnicate", 0, 0))

	cmd := Decode(mem, addr)
	if cmd == nil {
		t.Fatal("Decode() = nil for a tagged object with unknown opcode")
	}
	if cmd.Op != OpUnknown {
		t.Errorf("Decode().Op = %v, want OpUnknown", cmd.Op)
	}
	if cmd.Name != "frobnicate" {
		t.Errorf("Decode().Name = %q, want %q", cmd.Name, "frobnicate")
	}

	t.Logf("unknown opcode preserved as %q", cmd.Name)
}

// TestDecode_WrongMarker verifies the second-stage check rejects a magic
// value not followed by the constant marker.
func TestDecode_WrongMarker(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x6000)
	buf := Encode("iter", 1, 0)
	buf[4] ^= 0xff // corrupt the marker
	mem.write(addr, buf)

	if !Probe(mem, addr) {
		t.Fatal("Probe() = false, test setup broken")
	}
	if cmd := Decode(mem, addr); cmd != nil {
		t.Errorf("Decode() = %+v, want nil for a corrupted marker", cmd)
	}

	t.Logf("magic without marker correctly rejected")
}

// TestDecode_ShortRead verifies a header running off mapped memory is
// not a command.
func TestDecode_ShortRead(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x7000)
	// Only the magic is mapped; the marker runs off the edge.
	var magic [4]byte
	binary.NativeEndian.PutUint32(magic[:], Magic)
	mem.write(addr, magic[:])

	if cmd := Decode(mem, addr); cmd != nil {
		t.Errorf("Decode() = %+v, want nil on short header read", cmd)
	}

	t.Logf("truncated header correctly rejected")
}

// TestDecode_TruncatedPayload verifies a readable header with an
// unreadable payload degrades to OpUnknown instead of crashing.
func TestDecode_TruncatedPayload(t *testing.T) {
	mem := sparseMemory{}
	addr := uintptr(0x7000)
	mem.write(addr, Encode("iter", 5, 0)[:HeaderSize+2])

	cmd := Decode(mem, addr)
	if cmd == nil {
		t.Fatal("Decode() = nil, header was fully readable")
	}
	if cmd.Op != OpUnknown {
		t.Errorf("Decode().Op = %v, want OpUnknown for truncated payload", cmd.Op)
	}

	t.Logf("truncated payload degrades to OpUnknown")
}

// TestCommandContains verifies the footprint bounds check.
func TestCommandContains(t *testing.T) {
	cmd := &Command{Addr: 0x8000}

	cases := []struct {
		addr uintptr
		want bool
	}{
		{0x7fff, false},
		{0x8000, true},
		{0x8000 + Size - 1, true},
		{0x8000 + Size, false},
	}
	for _, tc := range cases {
		if got := cmd.Contains(tc.addr); got != tc.want {
			t.Errorf("Contains(0x%x) = %v, want %v", tc.addr, got, tc.want)
		}
	}

	t.Logf("footprint is [0x%x, 0x%x)", cmd.Addr, cmd.Addr+Size)
}

// TestEncode_Layout verifies the wire image: magic, marker, opcode and
// argument placement.
func TestEncode_Layout(t *testing.T) {
	buf := Encode("iter", 9, 0)

	if len(buf) != Size {
		t.Fatalf("len(Encode()) = %d, want %d", len(buf), Size)
	}
	if got := binary.NativeEndian.Uint32(buf[:4]); got != Magic {
		t.Errorf("magic = 0x%x, want 0x%x", got, Magic)
	}
	if got := string(buf[4:HeaderSize]); got != Marker {
		t.Errorf("marker = %q, want %q", got, Marker)
	}
	if got := string(buf[HeaderSize : HeaderSize+4]); got != "iter" {
		t.Errorf("opcode bytes = %q, want %q", got, "iter")
	}
	if got := int32(binary.NativeEndian.Uint32(buf[HeaderSize+intArgOffset:])); got != 9 {
		t.Errorf("int argument = %d, want 9", got)
	}

	t.Logf("wire layout: %d header + %d payload bytes", HeaderSize, PayloadSize)
}

// TestEncode_LongOpcodeKeepsName verifies an opcode longer than the
// argument offsets is never clobbered by argument stores.
func TestEncode_LongOpcodeKeepsName(t *testing.T) {
	buf := Encode("begin_for", 123, 0x456)

	if got := string(buf[HeaderSize : HeaderSize+9]); got != "begin_for" {
		t.Errorf("opcode bytes = %q, want %q", got, "begin_for")
	}

	t.Logf("argument stores skip offsets overlapped by the opcode")
}
