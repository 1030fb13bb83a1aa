package kmalloc

import (
	"unsafe"

	"github.com/Pascu-Victor/wos-sub002/internal/sys"
)

// largeAlloc records one over-ladder allocation: its page-aligned base
// and the size the caller actually asked for, so Realloc/Free don't
// need a caller-supplied size. Restored from the original's tracked
// large-allocation accounting (getTrackedAllocTotals /
// dumpTrackedAllocations) in platform/mm/dyn/kmalloc.opt.cpp.
type largeAlloc struct {
	base uintptr
	size uint64
}

// largePool serves requests bigger than the top slab class directly
// from the page allocator, tracking every live allocation for
// diagnostics and for size recovery on Free/Realloc.
type largePool struct {
	pages PageSource
	lock  sys.SpinLock
	live  map[uintptr]*largeAlloc
}

func newLargePool(pages PageSource) *largePool {
	return &largePool{pages: pages, live: make(map[uintptr]*largeAlloc)}
}

func roundUpPage(n uint64, pageSize uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func (p *largePool) alloc(size uint64, pageSize uint64) unsafe.Pointer {
	backing := roundUpPage(size, pageSize)
	base, ok := p.pages.Alloc(backing)
	if !ok {
		return nil
	}

	restore := p.lock.IRQSave()
	p.live[base] = &largeAlloc{base: base, size: size}
	restore()

	return unsafe.Pointer(base)
}

func (p *largePool) sizeOf(ptr unsafe.Pointer) (uint64, bool) {
	restore := p.lock.IRQSave()
	defer restore()
	a, ok := p.live[uintptr(ptr)]
	if !ok {
		return 0, false
	}
	return a.size, true
}

func (p *largePool) free(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)

	restore := p.lock.IRQSave()
	a, ok := p.live[addr]
	if ok {
		delete(p.live, addr)
	}
	restore()

	if !ok {
		return false
	}
	p.pages.Free(a.base)
	return true
}

// totals reports the live large-allocation count and byte sum, the
// equivalent of the original's getTrackedAllocTotals.
func (p *largePool) totals() (count int, bytes uint64) {
	restore := p.lock.IRQSave()
	defer restore()
	for _, a := range p.live {
		count++
		bytes += a.size
	}
	return count, bytes
}
