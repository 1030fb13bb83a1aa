package kmalloc

import (
	"testing"
	"unsafe"
)

// testPages backs PageSource with ordinary Go allocations, the same
// hosted-testing trick used by internal/mm/virt's hostFrameSource.
type testPages struct {
	live map[uintptr][]byte
}

func newTestPages() *testPages {
	return &testPages{live: make(map[uintptr][]byte)}
}

func (p *testPages) Alloc(n uint64) (uintptr, bool) {
	buf := make([]byte, n)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	p.live[addr] = buf
	return addr, true
}

func (p *testPages) Free(ptr uintptr) {
	delete(p.live, ptr)
}

const testPageSize = 4096

func TestSlabAllocFreeRoundTrips(t *testing.T) {
	pages := newTestPages()
	c := NewSlabCache(32, testPageSize, pages)

	obj := c.Alloc()
	if obj == nil {
		t.Fatal("Alloc returned nil")
	}
	freeObject(obj)
}

func TestSlabAllocDistinctObjects(t *testing.T) {
	pages := newTestPages()
	c := NewSlabCache(16, testPageSize, pages)

	seen := make(map[unsafe.Pointer]bool)
	for i := 0; i < 32; i++ {
		obj := c.Alloc()
		if obj == nil {
			t.Fatalf("Alloc %d returned nil", i)
		}
		if seen[obj] {
			t.Fatalf("Alloc returned duplicate object %p", obj)
		}
		seen[obj] = true
	}
}

func TestSlabGrowsNewSlabWhenFull(t *testing.T) {
	pages := newTestPages()
	// Small 512-byte page so one slab holds only a handful of
	// objects, forcing a second slab quickly.
	c := NewSlabCache(64, 512, pages)

	var objs []unsafe.Pointer
	for i := 0; i < 20; i++ {
		obj := c.Alloc()
		if obj == nil {
			t.Fatalf("Alloc %d returned nil", i)
		}
		objs = append(objs, obj)
	}
	if len(pages.live) < 2 {
		t.Fatalf("expected at least 2 backing pages, got %d", len(pages.live))
	}
}

func TestSlabEmptyNonHeadSlabReturnsPage(t *testing.T) {
	pages := newTestPages()
	const pageBytes = 512
	const objSize = 64
	c := NewSlabCache(objSize, pageBytes, pages)
	capacity := int(pageBytes / (uint32(headerSize) + objSize))

	// Fill the first slab exactly, then allocate one more object to
	// force a second slab into existence, which becomes the new head.
	var first []unsafe.Pointer
	for i := 0; i < capacity; i++ {
		first = append(first, c.Alloc())
	}
	c.Alloc() // forces a second slab
	if c.head.next == nil {
		t.Fatal("expected a second slab to exist")
	}
	pagesAfterGrowth := len(pages.live)
	oldSlab := c.head.next

	// Free every object from the now-non-head first slab.
	for _, obj := range first {
		hdrAddr := uintptr(obj) - headerSize
		owner := *(**slab)(unsafe.Pointer(hdrAddr))
		if owner != oldSlab {
			t.Fatalf("object unexpectedly owned by a different slab")
		}
		freeObject(obj)
	}

	if len(pages.live) >= pagesAfterGrowth {
		t.Fatalf("expected a backing page to be released, had %d now %d", pagesAfterGrowth, len(pages.live))
	}
}

func TestSlabCorruptedMagicPanics(t *testing.T) {
	pages := newTestPages()
	c := NewSlabCache(32, testPageSize, pages)
	obj := c.Alloc()

	hdrAddr := uintptr(obj) - headerSize
	*(**slab)(unsafe.Pointer(hdrAddr)) = nil

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic freeing object with corrupted header")
		}
	}()
	freeObject(obj)
}

func TestHeapMallocZeroReturnsNil(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	if p := h.Malloc(0); p != nil {
		t.Fatalf("expected nil for Malloc(0), got %p", p)
	}
}

func TestHeapFreeNilIsNoop(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	h.Free(nil) // must not panic
}

func TestHeapMallocSmallUsesSlabLadder(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Malloc(20)
	if p == nil {
		t.Fatal("Malloc(20) returned nil")
	}
	h.Free(p)
}

func TestHeapMallocLargeUsesTrackedPool(t *testing.T) {
	pages := newTestPages()
	h := NewHeap(pages, testPageSize)

	p := h.Malloc(10000)
	if p == nil {
		t.Fatal("Malloc(10000) returned nil")
	}
	count, bytes := h.Stats()
	if count != 1 || bytes != 10000 {
		t.Fatalf("expected tracked totals (1, 10000), got (%d, %d)", count, bytes)
	}
	h.Free(p)
	count, _ = h.Stats()
	if count != 0 {
		t.Fatalf("expected tracked count 0 after free, got %d", count)
	}
}

func TestHeapCallocZeroesMemory(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Calloc(4, 8)
	buf := unsafe.Slice((*byte)(p), 32)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
}

func TestHeapReallocNilActsAsMalloc(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Realloc(nil, 40)
	if p == nil {
		t.Fatal("Realloc(nil, 40) returned nil")
	}
}

func TestHeapReallocZeroSizeFreesAndReturnsNil(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Malloc(40)
	p2 := h.Realloc(p, 0)
	if p2 != nil {
		t.Fatalf("expected nil, got %p", p2)
	}
}

func TestHeapReallocPreservesContents(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Malloc(16)
	buf := unsafe.Slice((*byte)(p), 16)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	p2 := h.Realloc(p, 100)
	if p2 == nil {
		t.Fatal("Realloc returned nil")
	}
	buf2 := unsafe.Slice((*byte)(p2), 16)
	for i := range buf2 {
		if buf2[i] != byte(i+1) {
			t.Fatalf("byte %d: got %d want %d", i, buf2[i], i+1)
		}
	}
}

func TestHeapReallocAcrossSlabAndLargeBoundary(t *testing.T) {
	h := NewHeap(newTestPages(), testPageSize)
	p := h.Malloc(32)
	buf := unsafe.Slice((*byte)(p), 32)
	for i := range buf {
		buf[i] = 0xAB
	}

	p2 := h.Realloc(p, largeThreshold+1000)
	if p2 == nil {
		t.Fatal("Realloc to large size returned nil")
	}
	count, _ := h.Stats()
	if count != 1 {
		t.Fatalf("expected 1 tracked large allocation after growth, got %d", count)
	}
	grown := unsafe.Slice((*byte)(p2), 32)
	for i, b := range grown {
		if b != 0xAB {
			t.Fatalf("byte %d not preserved across growth: %d", i, b)
		}
	}
}
