// Package phys implements the frame allocator (§4.A): a per-zone
// binary buddy allocator over physical page runs, first-fit across a
// zone list. Restored from original_source's
// buddy_alloc/buddy_alloc.hpp (allocator API shape) and
// platform/mm/phys.cpp (zone list, first-fit search). Each zone's
// buddy metadata is guarded by that zone's own spinlock; the
// allocator's list lock only guards appending to and reading the head
// of the zone list, so allocation walks the list without a global lock.
package phys

import (
	"math/bits"

	"github.com/Pascu-Victor/wos-sub002/internal/sys"
)

// PageSize is the frame size this allocator hands out runs of.
const PageSize = 4096

// maxOrder bounds the size of a single buddy block (2^maxOrder pages).
// 20 orders covers up to a 4 GiB block, comfortably larger than any
// zone a real boot memory map will hand this kernel.
const maxOrder = 20

const freeMark = -1 // pageOrder sentinel: this page starts no free block

// buddyMeta is the embedded bookkeeping for one zone: one byte of
// order-or-free-mark per page, plus an intrusive doubly-linked
// free list per order threaded through page indices. Bounded by
// O(zone_bytes/page_size), matching §4.A.
type buddyMeta struct {
	pageCount int32
	order     []int8  // per-page: order of the free block it starts, or freeMark
	alloc     []int8  // per-page: order of the allocated block it starts, or freeMark
	next      []int32 // per-page: next page-index in its free list, or -1
	prev      []int32 // per-page: prev page-index in its free list, or -1
	freeHead  [maxOrder + 1]int32
}

// Zone is a contiguous physical range usable for general allocation,
// per §3: "{base, length, metadata_buddy}".
type Zone struct {
	Base   uintptr
	Length uint64

	lock sys.SpinLock
	meta *buddyMeta
	next *Zone
}

// NewZone builds a zone covering [base, base+length) and initializes
// its buddy metadata as entirely free. length is truncated down to a
// whole number of pages.
func NewZone(base uintptr, length uint64) *Zone {
	pageCount := int32(length / PageSize)
	z := &Zone{Base: base, Length: uint64(pageCount) * PageSize}
	z.meta = newBuddyMeta(pageCount)
	return z
}

func newBuddyMeta(pageCount int32) *buddyMeta {
	m := &buddyMeta{
		pageCount: pageCount,
		order:     make([]int8, pageCount),
		alloc:     make([]int8, pageCount),
		next:      make([]int32, pageCount),
		prev:      make([]int32, pageCount),
	}
	for i := range m.freeHead {
		m.freeHead[i] = -1
	}
	for i := range m.order {
		m.order[i] = freeMark
		m.alloc[i] = freeMark
	}

	// Carve the zone into the largest aligned power-of-two blocks that
	// fit, exactly like a fresh buddy_init over an arbitrary-length
	// arena: walk left to right, always taking the biggest block the
	// current alignment and remaining length allow.
	var i int32
	for i < pageCount {
		order := maxOrder
		for order > 0 {
			blockPages := int32(1) << uint(order)
			if i%blockPages == 0 && i+blockPages <= pageCount {
				break
			}
			order--
		}
		m.pushFree(int32(order), i)
		i += int32(1) << uint(order)
	}
	return m
}

func (m *buddyMeta) pushFree(order, page int32) {
	m.order[page] = int8(order)
	head := m.freeHead[order]
	m.next[page] = head
	m.prev[page] = -1
	if head != -1 {
		m.prev[head] = page
	}
	m.freeHead[order] = page
}

func (m *buddyMeta) removeFree(order, page int32) {
	n, p := m.next[page], m.prev[page]
	if p != -1 {
		m.next[p] = n
	} else {
		m.freeHead[order] = n
	}
	if n != -1 {
		m.prev[n] = p
	}
	m.order[page] = freeMark
}

// buddyOf returns the buddy page index of a block of the given order
// starting at page.
func buddyOf(page, order int32) int32 {
	return page ^ (int32(1) << uint(order))
}

// allocOrder pops (splitting a larger block if needed) a free block of
// exactly the requested order. Returns -1 if the zone has nothing that
// size or larger.
func (m *buddyMeta) allocOrder(order int32) int32 {
	o := order
	for o <= maxOrder && m.freeHead[o] == -1 {
		o++
	}
	if o > maxOrder {
		return -1
	}
	page := m.freeHead[o]
	m.removeFree(o, page)

	// Split down to the requested order, pushing the unused half of
	// each split back onto its own free list.
	for o > order {
		o--
		buddy := page + (int32(1) << uint(o))
		m.pushFree(o, buddy)
	}
	m.alloc[page] = int8(order)
	return page
}

// freeOrder returns a block to the free lists, merging with its
// buddy repeatedly while the buddy is itself free at the same order.
// The block's order is recovered from m.alloc, as §4.A's free(ptr)
// requires ("Size is recovered from the buddy metadata").
func (m *buddyMeta) freeOrder(page int32) {
	order := int32(m.alloc[page])
	m.alloc[page] = freeMark
	for order < maxOrder {
		buddy := buddyOf(page, order)
		if buddy < 0 || buddy >= m.pageCount || m.order[buddy] != int8(order) {
			break
		}
		// Buddy is free at this order: merge. The lower-indexed half
		// becomes the merged block's base.
		m.removeFree(order, buddy)
		if buddy < page {
			page = buddy
		}
		order++
	}
	m.pushFree(order, page)
}

func orderForPages(pages uint64) int32 {
	if pages <= 1 {
		return 0
	}
	return int32(bits.Len64(pages - 1))
}

// Alloc reserves a run of at least bytes bytes from this zone,
// rounded up to the next power-of-two number of pages. Returns the
// zero value and false if the zone has no sufficiently large free
// block.
func (z *Zone) Alloc(length uint64) (uintptr, bool) {
	pages := (length + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	order := orderForPages(pages)

	restore := z.lock.IRQSave()
	defer restore()

	page := z.meta.allocOrder(order)
	if page == -1 {
		return 0, false
	}
	return z.Base + uintptr(page)*PageSize, true
}

// Contains reports whether ptr lies inside this zone's managed range.
func (z *Zone) Contains(ptr uintptr) bool {
	return ptr >= z.Base && ptr < z.Base+uintptr(z.Length)
}

// Free releases a run previously returned by Alloc. Its size is
// recovered from the buddy metadata (§4.A: "Size is recovered from
// the buddy metadata"); passing any other pointer is undefined.
func (z *Zone) Free(ptr uintptr) {
	page := int32((ptr - z.Base) / PageSize)

	restore := z.lock.IRQSave()
	defer restore()
	z.meta.freeOrder(page)
}
