package kmalloc

import "unsafe"

// ladderSizes are the slab size classes, a power-of-two ladder from 16
// to 2048 bytes inclusive, per §4.C. Anything larger falls through to
// the tracked large pool.
var ladderSizes = [...]uint32{16, 32, 64, 128, 256, 512, 1024, 2048}

const largeThreshold = 2048

// Heap is the kernel-wide allocator: a ladder of slab caches for small
// requests and a tracked pool for large ones, per §4.C. Grounded on
// original_source's minimalist_malloc/slab_allocator.hpp (ladder
// shape) and platform/mm/dyn/kmalloc.opt.cpp (dispatch between the two
// paths and the malloc(0)/realloc(NULL,n) boundary rules in §8).
type Heap struct {
	classes  [len(ladderSizes)]*SlabCache
	large    *largePool
	pageSize uint64
}

// NewHeap builds a heap backed by pages, each slab spanning pageBytes.
func NewHeap(pages PageSource, pageBytes uint64) *Heap {
	h := &Heap{pageSize: pageBytes, large: newLargePool(pages)}
	for i, sz := range ladderSizes {
		h.classes[i] = NewSlabCache(sz, pageBytes, pages)
	}
	return h
}

// classFor returns the smallest ladder size class fitting n bytes, or
// -1 if n is too big for any slab class.
func (h *Heap) classFor(n uint64) int {
	for i, sz := range ladderSizes {
		if n <= uint64(sz) {
			return i
		}
	}
	return -1
}

// Malloc allocates n bytes. Per §8, malloc(0) returns nil rather than
// a zero-size object.
func (h *Heap) Malloc(n uint64) unsafe.Pointer {
	if n == 0 {
		return nil
	}
	if idx := h.classFor(n); idx >= 0 {
		return h.classes[idx].Alloc()
	}
	return h.large.alloc(n, h.pageSize)
}

// Calloc allocates space for count objects of size bytes each,
// zeroed, per the usual calloc contract.
func (h *Heap) Calloc(count, size uint64) unsafe.Pointer {
	total := count * size
	p := h.Malloc(total)
	if p == nil {
		return nil
	}
	buf := unsafe.Slice((*byte)(p), total)
	for i := range buf {
		buf[i] = 0
	}
	return p
}

// sizeOfLive recovers the usable size of a live allocation, checking
// the large pool first (its map lookup is authoritative) and falling
// back to scanning ladder classes is not needed: small objects carry
// their owning slab's objSize via the header, read through Free's
// path. Since slab objects don't expose their class directly here,
// Realloc re-derives it from the header.
func (h *Heap) sizeOfLive(ptr unsafe.Pointer) uint64 {
	if sz, ok := h.large.sizeOf(ptr); ok {
		return sz
	}
	hdrAddr := uintptr(ptr) - headerSize
	s := *(**slab)(unsafe.Pointer(hdrAddr))
	if s != nil && s.magic == slabMagic {
		return uint64(s.objSize)
	}
	return 0
}

// Free releases an allocation made by Malloc/Calloc/Realloc. Freeing
// nil is a no-op, matching libc semantics.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	if h.large.free(ptr) {
		return
	}
	freeObject(ptr)
}

// Realloc resizes an existing allocation, preserving contents up to
// the smaller of the old and new sizes. realloc(nil, n) behaves as
// Malloc(n); realloc(ptr, 0) frees ptr and returns nil, per §8.
func (h *Heap) Realloc(ptr unsafe.Pointer, newSize uint64) unsafe.Pointer {
	if ptr == nil {
		return h.Malloc(newSize)
	}
	if newSize == 0 {
		h.Free(ptr)
		return nil
	}

	oldSize := h.sizeOfLive(ptr)
	newPtr := h.Malloc(newSize)
	if newPtr == nil {
		return nil
	}

	copySize := oldSize
	if newSize < copySize {
		copySize = newSize
	}
	src := unsafe.Slice((*byte)(ptr), copySize)
	dst := unsafe.Slice((*byte)(newPtr), copySize)
	copy(dst, src)

	h.Free(ptr)
	return newPtr
}

// Stats reports live large-allocation bookkeeping, the equivalent of
// the original's dumpTrackedAllocations/getTrackedAllocTotals.
func (h *Heap) Stats() (largeCount int, largeBytes uint64) {
	return h.large.totals()
}
