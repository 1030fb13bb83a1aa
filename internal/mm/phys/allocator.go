package phys

import "github.com/Pascu-Victor/wos-sub002/internal/sys"

// Allocator is the frame allocator's top-level handle: a list of
// zones, walked first-fit by list order per §4.A.
type Allocator struct {
	listLock sys.SpinLock
	head     *Zone
	tail     *Zone
}

// AddZone appends a zone to the allocator's zone list. Called during
// boot once per usable memory-map region (§6).
func (a *Allocator) AddZone(z *Zone) {
	restore := a.listLock.IRQSave()
	defer restore()
	if a.head == nil {
		a.head = z
		a.tail = z
		return
	}
	a.tail.next = z
	a.tail = z
}

// Alloc returns a run of at least bytes bytes, page-aligned, rounded
// up to a power-of-two number of pages. Returns 0 and false on OOM;
// this never blocks (§4.A: "the allocator never blocks").
func (a *Allocator) Alloc(bytes uint64) (uintptr, bool) {
	for z := a.firstZone(); z != nil; z = z.next {
		if ptr, ok := z.Alloc(bytes); ok {
			return ptr, true
		}
	}
	return 0, false
}

// Free releases ptr, a run previously returned by Alloc, back to the
// zone that owns it. Passing a pointer from no zone is a no-op; that
// matches §4.A's "double-free is undefined" by not crashing on an
// address this allocator has simply never seen, while still treating
// within-zone misuse as the caller's problem.
func (a *Allocator) Free(ptr uintptr) {
	for z := a.firstZone(); z != nil; z = z.next {
		if z.Contains(ptr) {
			z.Free(ptr)
			return
		}
	}
}

func (a *Allocator) firstZone() *Zone {
	restore := a.listLock.IRQSave()
	defer restore()
	return a.head
}
