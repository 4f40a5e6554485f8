// Package owner implements the sparse byte-granular ownership store.
//
// The store maps any virtual address to the id of the worker that most
// recently wrote that byte. Real programs touch an astronomically small
// fraction of the 48-bit address space, so a flat array is infeasible and
// a generic hash map has the wrong locality for a lookup that runs once
// per machine instruction. Instead the store is a three-level radix table:
//
//	address bits:  [47..36]  [35..24]  [23..12]  [11..0]
//	selects:       L2 table  L1 table  page      byte in page
//
// Each level is a fixed 4096-slot array of pointers to the next level
// down. Nodes are created lazily on first touch, so memory is bounded by
// O(touched pages), and a lookup is three array dereferences.
//
// # Allocation lists
//
// Every level threads its allocated children onto a singly linked list
// (most recently allocated at the head). Bulk teardown walks exactly the
// allocated nodes instead of scanning 4096 slots per level. Ownership
// state lives for one parallel region: Clear releases every node and the
// table behaves as freshly initialized.
//
// # Thread safety
//
// None. The table is driven by a single serialized instrumentation event
// stream; at most one operation is in flight at any instant. Callers that
// lose that guarantee must serialize access themselves.
package owner
