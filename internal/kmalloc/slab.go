// Package kmalloc implements the kernel heap (§4.C): a fixed ladder
// of power-of-two slab caches for small requests, plus a tracked
// large pool for anything bigger than the largest slab size, both
// served a page at a time from internal/mm/phys. Restored from
// original_source's minimalist_malloc/slab_allocator.hpp (the
// self-shrinking chain-of-slabs design) and
// platform/mm/dyn/kmalloc.opt.cpp (the separate tracked large-alloc
// path).
package kmalloc

import (
	"unsafe"

	"github.com/Pascu-Victor/wos-sub002/internal/sys"
)

// slabMagic guards every slab header against corruption. A mismatch
// on free is an unconditional panic (§7 "fatal: kernel invariant
// violated"), matching the original's MAGIC = 0x8CBEEFC8.
const slabMagic = 0x8CBEEFC8

// PageSource is how a slab cache obtains and releases whole pages. In
// a running kernel, cmd/kernel satisfies it with an adapter over
// internal/mm/phys.Allocator that returns direct-mapped addresses.
type PageSource interface {
	Alloc(bytes uint64) (uintptr, bool)
	Free(ptr uintptr)
}

// slab is one page-backed block of fixed-size objects. Free objects
// form a singly linked list threaded through the objects themselves,
// per §3: "free objects form a singly linked list threaded through
// the objects themselves."
type slab struct {
	magic      uint32
	objSize    uint32
	freeCount  uint32
	freeList   unsafe.Pointer // head of the intrusive free list, or nil
	prev, next *slab
	base       uintptr // start of the object region, for bounds checks
	capacity   uint32
	cache      *SlabCache // owning cache, so Free can find the right lock
}

// objHeader sits in the 8 bytes immediately before every live object,
// per §4.C: "Each slab caches a pointer to its owning slab header in
// the byte immediately before the user-visible object, so that free
// can dispatch in constant time without consulting any tree."
type objHeader struct {
	owner *slab
}

const headerSize = unsafe.Sizeof(objHeader{})

// SlabCache holds fixed-size objects for one size class, backed by
// whole pages from a PageSource. One spinlock per size class, per §5.
type SlabCache struct {
	objSize  uint32
	pageSize uint64
	pages    PageSource
	lock     sys.SpinLock
	head     *slab
}

// NewSlabCache creates a cache for objects of objSize bytes, each slab
// backed by one page of pageBytes (must be large enough for at least
// one header+object pair).
func NewSlabCache(objSize uint32, pageBytes uint64, pages PageSource) *SlabCache {
	return &SlabCache{objSize: objSize, pageSize: pageBytes, pages: pages}
}

func (c *SlabCache) newSlab() *slab {
	p, ok := c.pages.Alloc(c.pageSize)
	if !ok {
		return nil
	}
	stride := uint32(headerSize) + c.objSize
	capacity := uint32(c.pageSize) / stride
	if capacity == 0 {
		c.pages.Free(p)
		return nil
	}

	s := &slab{
		magic:     slabMagic,
		objSize:   c.objSize,
		freeCount: capacity,
		capacity:  capacity,
		base:      p,
		cache:     c,
	}

	// Thread the free list through the objects themselves: each free
	// object's first 8 bytes hold the next free object's address.
	var head unsafe.Pointer
	for i := int(capacity) - 1; i >= 0; i-- {
		objAddr := p + uintptr(i)*uintptr(stride) + headerSize
		*(*unsafe.Pointer)(unsafe.Pointer(objAddr)) = head
		head = unsafe.Pointer(objAddr)
		// Stamp the owner header just before the object.
		*(**slab)(unsafe.Pointer(objAddr - headerSize)) = s
	}
	s.freeList = head
	return s
}

// Alloc returns one object from this size class, or nil on OOM. The
// object's contents are not zeroed: its first 8 bytes still hold the
// free-list link, and a reused object keeps its previous bytes.
func (c *SlabCache) Alloc() unsafe.Pointer {
	restore := c.lock.IRQSave()
	defer restore()

	for s := c.head; s != nil; s = s.next {
		if s.freeCount > 0 {
			return c.allocFromSlab(s)
		}
	}
	ns := c.newSlab()
	if ns == nil {
		return nil
	}
	ns.next = c.head
	if c.head != nil {
		c.head.prev = ns
	}
	c.head = ns
	return c.allocFromSlab(ns)
}

func (c *SlabCache) allocFromSlab(s *slab) unsafe.Pointer {
	if s.magic != slabMagic {
		panic("kmalloc: slab header corrupted (bad magic)")
	}
	obj := s.freeList
	next := *(*unsafe.Pointer)(obj)
	s.freeList = next
	s.freeCount--
	return obj
}

// freeObject returns obj to its owning slab and cache. Constant time:
// the owner is read from the header immediately before obj, no tree
// lookup required (§4.C). A mismatched magic is an unconditional
// panic. This is a free function rather than a SlabCache method
// because the caller (Heap.Free) doesn't know which size class obj
// belongs to — only the header does.
func freeObject(obj unsafe.Pointer) {
	hdrAddr := uintptr(obj) - headerSize
	s := *(**slab)(unsafe.Pointer(hdrAddr))
	if s == nil || s.magic != slabMagic {
		panic("kmalloc: corrupt free (bad slab header)")
	}
	c := s.cache

	restore := c.lock.IRQSave()
	defer restore()

	*(*unsafe.Pointer)(obj) = s.freeList
	s.freeList = obj
	s.freeCount++

	// A slab that has emptied and isn't the head of the chain commits
	// suicide back to the page allocator, per the original's
	// free_from_current_slab: "slab is empty, and it's not the first".
	if s.freeCount == s.capacity && s != c.head {
		if s.prev != nil {
			s.prev.next = s.next
		}
		if s.next != nil {
			s.next.prev = s.prev
		}
		c.pages.Free(s.base)
	}
}
