package owner

// ID is a worker ownership tag recorded per byte.
//
// The value is the runtime's worker number plus one: worker 0 owns bytes
// tagged 1, and so on. None (zero) means "unowned", i.e. the byte has not
// been written during the current region and is safe to touch from any
// worker. The byte-wide representation caps live workers at MaxOwner.
type ID uint8

const (
	// None marks a byte nobody has written during the current region.
	None ID = 0

	// MaxOwner is the largest representable owner id. A thrd command whose
	// argument would map above this must be rejected by the caller rather
	// than wrapped.
	MaxOwner = 255
)

// Table geometry. Concatenating the slot-select bits L2, L1, page and the
// in-page offset covers a 48-bit virtual address; higher bits are masked
// off, which keeps the slicing a consistent radix partition on hosts that
// sign-extend bit 47.
const (
	// PageBits is log2 of the bytes covered by one Page.
	PageBits = 12
	// PageSize is the number of bytes (and owner ids) per Page.
	PageSize = 1 << PageBits

	slotBits = 12
	numSlots = 1 << slotBits
	slotMask = numSlots - 1

	// AddressBits is the supported virtual address width.
	AddressBits = PageBits + 3*slotBits
)

func l2Select(addr uintptr) uintptr   { return (addr >> 36) & slotMask }
func l1Select(addr uintptr) uintptr   { return (addr >> 24) & slotMask }
func pageSelect(addr uintptr) uintptr { return (addr >> 12) & slotMask }
func byteSelect(addr uintptr) uintptr { return addr & slotMask }

// Page holds one owner id per byte of a 4 KiB span, plus its link in the
// parent's allocation list.
type Page struct {
	owners [PageSize]ID
	prev   *Page
}

// OwnerAt returns the owner recorded for addr, which must fall inside
// this page's span.
func (p *Page) OwnerAt(addr uintptr) ID {
	return p.owners[byteSelect(addr)]
}

// SetOwnerAt records id as the owner of addr within this page.
func (p *Page) SetOwnerAt(addr uintptr, id ID) {
	p.owners[byteSelect(addr)] = id
}

// levelOne maps the page-select bits to Pages.
type levelOne struct {
	pages    [numSlots]*Page
	lastPage *Page // head of this node's page allocation list
	prev     *levelOne
}

// levelTwo maps the L1-select bits to levelOne nodes.
type levelTwo struct {
	tables    [numSlots]*levelOne
	lastTable *levelOne
	prev      *levelTwo
}

// Stats counts the nodes currently allocated under the table. After Clear
// every field is zero; tests use this to verify reset completeness.
type Stats struct {
	LevelTwoNodes int
	LevelOneNodes int
	Pages         int
}

// Table is the top (third) level of the radix table. One Table exists per
// monitor; it is created once and reused across regions, with Clear
// wiping everything underneath it at each region boundary.
type Table struct {
	tables    [numSlots]*levelTwo
	lastTable *levelTwo
	stats     Stats
}

// NewTable returns an empty ownership table.
func NewTable() *Table {
	return &Table{}
}

// Page returns the page covering addr, lazily allocating any missing
// level-two, level-one and page nodes along the path. It never returns
// nil. A freshly allocated node is threaded onto its parent's allocation
// list before it is linked into the slot array, so a node reachable
// through a slot is always fully initialized.
func (t *Table) Page(addr uintptr) *Page {
	l2 := t.tables[l2Select(addr)]
	if l2 == nil {
		l2 = &levelTwo{}
		l2.prev = t.lastTable
		t.lastTable = l2
		t.tables[l2Select(addr)] = l2
		t.stats.LevelTwoNodes++
	}

	l1 := l2.tables[l1Select(addr)]
	if l1 == nil {
		l1 = &levelOne{}
		l1.prev = l2.lastTable
		l2.lastTable = l1
		l2.tables[l1Select(addr)] = l1
		t.stats.LevelOneNodes++
	}

	pg := l1.pages[pageSelect(addr)]
	if pg == nil {
		pg = &Page{}
		pg.prev = l1.lastPage
		l1.lastPage = pg
		l1.pages[pageSelect(addr)] = pg
		t.stats.Pages++
	}
	return pg
}

// Owner returns the owner id recorded for addr, allocating the page on
// first touch. Three array index operations on the hot path.
func (t *Table) Owner(addr uintptr) ID {
	return t.Page(addr).OwnerAt(addr)
}

// SetOwner records id as the most recent writer of the byte at addr.
func (t *Table) SetOwner(addr uintptr, id ID) {
	t.Page(addr).SetOwnerAt(addr, id)
}

// Clear releases every node allocated since the last Clear and resets the
// top-level slot array, allocation-list head and node counts. It walks
// the allocation lists rather than the slot arrays, touching exactly the
// allocated nodes. Links between nodes are severed as the walk proceeds
// so a stray reference to one node cannot keep a whole region's worth of
// pages reachable.
//
// After Clear returns, Owner on any previously touched address reports
// None, exactly as if the table were freshly constructed.
func (t *Table) Clear() {
	l2 := t.lastTable
	for l2 != nil {
		l1 := l2.lastTable
		for l1 != nil {
			pg := l1.lastPage
			for pg != nil {
				prev := pg.prev
				pg.prev = nil
				pg = prev
			}
			prevL1 := l1.prev
			l1.lastPage = nil
			l1.prev = nil
			l1 = prevL1
		}
		prevL2 := l2.prev
		l2.lastTable = nil
		l2.prev = nil
		l2 = prevL2
	}
	t.tables = [numSlots]*levelTwo{}
	t.lastTable = nil
	t.stats = Stats{}
}

// Stats returns the current allocated-node counts.
func (t *Table) Stats() Stats {
	return t.stats
}
