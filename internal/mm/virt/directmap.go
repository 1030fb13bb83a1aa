package virt

import (
	"unsafe"

	"github.com/Pascu-Victor/wos-sub002/internal/mm/phys"
)

// FrameSource is how the address-space manager obtains and releases
// the physical pages it builds page tables and leaf mappings out of.
// It hides the higher-half direct map (glossary: "a kernel-only
// virtual window that maps all usable physical memory at a fixed
// offset") behind a pointer-shaped interface: AllocFrame returns an
// address this package can immediately dereference as a *table or
// leaf payload, exactly as code running through the direct map would.
type FrameSource interface {
	// AllocFrame returns a freshly zeroed page and its "physical"
	// identity (the value stored in PTE frame fields), or false on OOM.
	AllocFrame() (phys uintptr, ok bool)
	FreeFrame(phys uintptr)
	// Deref resolves a physical frame address to a dereferenceable
	// pointer through this source's direct map, for user-pointer
	// access (§4.G) and futex key translation (§4.I).
	Deref(phys uintptr) unsafe.Pointer
}

// DirectMappedFrameSource wires a real frame allocator (§4.A) through
// a fixed direct-map offset, the way a booted kernel actually would:
// physical frames come from phys.Allocator, and Offset is added to
// turn a physical address into the direct-mapped virtual address this
// package can dereference.
type DirectMappedFrameSource struct {
	Frames *phys.Allocator
	Offset uintptr
}

func (d *DirectMappedFrameSource) AllocFrame() (uintptr, bool) {
	p, ok := d.Frames.Alloc(pageSize)
	if !ok {
		return 0, false
	}
	virt := p + d.Offset
	zero(virt)
	return virt, true
}

func (d *DirectMappedFrameSource) FreeFrame(p uintptr) {
	d.Frames.Free(p - d.Offset)
}

// Deref returns phys unchanged: AllocFrame already hands out the
// direct-mapped address, and that is the value stored in PTE frame
// fields, so adding Offset again would translate it twice.
func (d *DirectMappedFrameSource) Deref(phys uintptr) unsafe.Pointer {
	return unsafe.Pointer(phys)
}

// hostFrameSource backs frames with ordinary Go allocations, used when
// no real physical-memory direct map exists to dereference (unit
// tests, and any hosted tool built against this package). The
// returned uintptr is simultaneously the "physical" identity and a
// dereferenceable host address, collapsing the direct-map offset to
// zero — a faithful stand-in since this package never assumes the
// offset is nonzero, only that AllocFrame's result is dereferenceable.
type hostFrameSource struct {
	live map[uintptr]*[pageSize]byte
}

// NewHostFrameSource returns a FrameSource backed by the Go heap,
// suitable for tests and for any hosted driver of this package.
func NewHostFrameSource() FrameSource {
	return &hostFrameSource{live: make(map[uintptr]*[pageSize]byte)}
}

func (h *hostFrameSource) AllocFrame() (uintptr, bool) {
	page := new([pageSize]byte)
	addr := uintptr(unsafe.Pointer(page))
	h.live[addr] = page
	return addr, true
}

func (h *hostFrameSource) FreeFrame(p uintptr) {
	delete(h.live, p)
}

// Deref is the identity function here: a host-backed frame's
// "physical" address already is its dereferenceable host address,
// per NewHostFrameSource's doc comment.
func (h *hostFrameSource) Deref(phys uintptr) unsafe.Pointer {
	return unsafe.Pointer(phys)
}

func zero(addr uintptr) {
	buf := (*[pageSize]byte)(unsafe.Pointer(addr))
	for i := range buf {
		buf[i] = 0
	}
}

func tableAt(phys uintptr) *table {
	return (*table)(unsafe.Pointer(phys))
}

func tablePhys(t *table) uintptr {
	return uintptr(unsafe.Pointer(t))
}
