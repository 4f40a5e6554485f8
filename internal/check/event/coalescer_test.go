package event

import "testing"

// recordingSink captures flushed events in delivery order.
type recordingSink struct {
	events []Event
}

func (s *recordingSink) OnInstructionFetch(addr uintptr, size int) {
	s.events = append(s.events, Event{InstructionFetch, addr, size})
}
func (s *recordingSink) OnLoad(addr uintptr, size int) {
	s.events = append(s.events, Event{Load, addr, size})
}
func (s *recordingSink) OnStore(addr uintptr, size int) {
	s.events = append(s.events, Event{Store, addr, size})
}
func (s *recordingSink) OnModify(addr uintptr, size int) {
	s.events = append(s.events, Event{Modify, addr, size})
}

// TestCoalescerMerge_LoadStorePair verifies a store immediately after a
// load of the same address and size merges into one modify.
func TestCoalescerMerge_LoadStorePair(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	co.AddInstructionFetch(0x400000, 3)
	co.AddLoad(0x10000, 4)
	co.AddStore(0x10000, 4)
	co.Flush()

	want := []Event{
		{InstructionFetch, 0x400000, 3},
		{Modify, 0x10000, 4},
	}
	if len(sink.events) != len(want) {
		t.Fatalf("flushed %d events, want %d: %+v", len(sink.events), len(want), sink.events)
	}
	for i, ev := range want {
		if sink.events[i] != ev {
			t.Errorf("event[%d] = %+v, want %+v", i, sink.events[i], ev)
		}
	}

	st := co.Stats()
	if st.Merged != 1 {
		t.Errorf("Stats().Merged = %d, want 1", st.Merged)
	}
	if st.Modifies != 1 || st.Loads != 0 || st.Stores != 0 {
		t.Errorf("Stats() = %+v, want exactly one modify", st)
	}

	t.Logf("load+store pair merged into a modify")
}

// TestCoalescerMerge_DifferentLocation verifies mismatched address or
// size prevents the merge.
func TestCoalescerMerge_DifferentLocation(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	co.AddLoad(0x10000, 4)
	co.AddStore(0x10004, 4) // different address
	co.AddLoad(0x20000, 4)
	co.AddStore(0x20000, 8) // different size
	co.Flush()

	want := []Event{
		{Load, 0x10000, 4},
		{Store, 0x10004, 4},
		{Load, 0x20000, 4},
		{Store, 0x20000, 8},
	}
	if len(sink.events) != len(want) {
		t.Fatalf("flushed %d events, want %d: %+v", len(sink.events), len(want), sink.events)
	}
	for i, ev := range want {
		if sink.events[i] != ev {
			t.Errorf("event[%d] = %+v, want %+v", i, sink.events[i], ev)
		}
	}
	if st := co.Stats(); st.Merged != 0 {
		t.Errorf("Stats().Merged = %d, want 0", st.Merged)
	}

	t.Logf("no merge across mismatched address or size")
}

// TestCoalescerMerge_InstructionBoundary verifies a fetch between a load
// and a store blocks the merge: the accesses belong to different
// instructions.
func TestCoalescerMerge_InstructionBoundary(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	co.AddLoad(0x10000, 4)
	co.AddInstructionFetch(0x400010, 2)
	co.AddStore(0x10000, 4)
	co.Flush()

	want := []Event{
		{Load, 0x10000, 4},
		{InstructionFetch, 0x400010, 2},
		{Store, 0x10000, 4},
	}
	if len(sink.events) != len(want) {
		t.Fatalf("flushed %d events, want %d: %+v", len(sink.events), len(want), sink.events)
	}
	for i, ev := range want {
		if sink.events[i] != ev {
			t.Errorf("event[%d] = %+v, want %+v", i, sink.events[i], ev)
		}
	}

	t.Logf("instruction fetch separates accesses of adjacent instructions")
}

// TestCoalescerAddModify verifies pre-merged modify events pass through
// unchanged.
func TestCoalescerAddModify(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	co.AddModify(0x25747c, 1)
	co.Flush()

	if len(sink.events) != 1 || sink.events[0] != (Event{Modify, 0x25747c, 1}) {
		t.Fatalf("flushed %+v, want one modify", sink.events)
	}
	st := co.Stats()
	if st.Modifies != 1 || st.Merged != 0 {
		t.Errorf("Stats() = %+v, want one unmerged modify", st)
	}

	t.Logf("pre-merged modify delivered as-is")
}

// TestCoalescerAutoFlush verifies a full buffer drains to the sink
// without an explicit Flush.
func TestCoalescerAutoFlush(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	for i := 0; i < bufferSize; i++ {
		co.AddLoad(uintptr(0x10000+i*8), 8)
	}
	if len(sink.events) != 0 {
		t.Fatalf("sink saw %d events before the buffer filled", len(sink.events))
	}

	co.AddLoad(0x20000, 8)

	if len(sink.events) != bufferSize {
		t.Errorf("auto-flush delivered %d events, want %d", len(sink.events), bufferSize)
	}

	co.Flush()
	if len(sink.events) != bufferSize+1 {
		t.Errorf("total events = %d, want %d", len(sink.events), bufferSize+1)
	}

	t.Logf("overflowing the %d-slot buffer flushes it", bufferSize)
}

// TestCoalescerFlush_Empty verifies flushing an empty buffer is a no-op.
func TestCoalescerFlush_Empty(t *testing.T) {
	sink := &recordingSink{}
	co := NewCoalescer(sink)

	co.Flush()
	co.Flush()

	if len(sink.events) != 0 {
		t.Errorf("empty Flush() delivered %d events", len(sink.events))
	}

	t.Logf("Flush() on an empty buffer delivers nothing")
}

// TestCoalescerSizeBounds verifies out-of-range access sizes panic.
func TestCoalescerSizeBounds(t *testing.T) {
	co := NewCoalescer(&recordingSink{})

	for _, size := range []int{0, -1, MaxAccessSize + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("AddLoad(size=%d) did not panic", size)
				}
			}()
			co.AddLoad(0x1000, size)
		}()
	}

	// The bounds themselves are fine.
	co.AddLoad(0x1000, 1)
	co.AddLoad(0x2000, MaxAccessSize)

	t.Logf("sizes outside [1,%d] rejected", MaxAccessSize)
}

// TestKindString verifies the trace mnemonics.
func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		InstructionFetch: "I",
		Load:             "L",
		Store:            "S",
		Modify:           "M",
		Kind(99):         "?",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}

	t.Logf("trace mnemonics stable")
}
