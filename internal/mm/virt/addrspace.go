package virt

import (
	"errors"

	"github.com/Pascu-Victor/wos-sub002/internal/kasm"
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
)

// ErrInvalidArgs is returned by Map when vaddr is misaligned or lands
// in the kernel upper half without the caller asking for a kernel
// mapping, per §4.B.
var ErrInvalidArgs = errors.New("virt: invalid argument")

// AddressSpace is a handle standing for the root of a 4-level page
// table, per §3. Every task owns exactly one.
type AddressSpace struct {
	lock   sys.SpinLock
	frames FrameSource
	root   *table
	rootP  uintptr
}

// kernelRoot is the template PML4 every address space's upper half is
// copied from, per §4.B: "pre-populate the upper half by copying the
// kernel's top-level entries (sharing pointers to deeper tables)."
var kernelRoot *table

// InitKernelSpace installs the shared kernel upper half. Must be
// called once at boot before any CreateAddressSpace.
func InitKernelSpace(frames FrameSource) (*AddressSpace, error) {
	p, ok := frames.AllocFrame()
	if !ok {
		return nil, errors.New("virt: out of memory initializing kernel address space")
	}
	kernelRoot = tableAt(p)
	return &AddressSpace{frames: frames, root: kernelRoot, rootP: p}, nil
}

// CreateAddressSpace allocates a fresh top-level table and
// pre-populates the upper half by copying the kernel's top-level
// entries, per §4.B.
func CreateAddressSpace(frames FrameSource) (*AddressSpace, error) {
	p, ok := frames.AllocFrame()
	if !ok {
		return nil, errors.New("virt: out of memory creating address space")
	}
	root := tableAt(p)
	if kernelRoot != nil {
		for i := kernelHalfStart; i < 512; i++ {
			root.entries[i] = kernelRoot.entries[i]
		}
	}
	return &AddressSpace{frames: frames, root: root, rootP: p}, nil
}

// Root returns the physical identity of this address space's PML4,
// the value a real kernel would load into CR3.
func (a *AddressSpace) Root() uintptr { return a.rootP }

func userMapAllowed(vaddr uintptr, forKernel bool) bool {
	if forKernel {
		return true
	}
	return indexOf(vaddr, 4) < kernelHalfStart
}

// Map installs a 4 KiB leaf mapping with the given protection.
// Intermediate tables are allocated on demand. Fails with
// ErrInvalidArgs if vaddr is not page-aligned or falls in the
// reserved upper half when the caller did not request a kernel
// mapping. On success, invalidates the TLB for vaddr, per §4.B.
func (a *AddressSpace) Map(vaddr, paddr uintptr, flags PTEFlags) error {
	if !isPageAligned(vaddr) {
		return ErrInvalidArgs
	}
	forKernel := flags&FlagUser == 0
	if !userMapAllowed(vaddr, forKernel) {
		return ErrInvalidArgs
	}

	restore := a.lock.IRQSave()
	defer restore()

	t := a.root
	for level := 4; level > 1; level-- {
		idx := indexOf(vaddr, level)
		e := t.entries[idx]
		if !e.present() {
			np, ok := a.frames.AllocFrame()
			if !ok {
				return errors.New("virt: out of memory allocating page table")
			}
			e = makeEntry(np, FlagPresent|requiredBitsFor(flags))
			t.entries[idx] = e
		} else {
			// Intermediate-entry widening rule (§4.B): a new leaf that
			// needs write/user on its path upgrades every traversed
			// intermediate entry that doesn't already have those bits,
			// since x86-64 intermediate levels must be permissive while
			// leaves stay restrictive.
			widened := e
			if flags&FlagWrite != 0 && !e.writable() {
				widened.setWritable()
			}
			if flags&FlagUser != 0 && !e.user() {
				widened.setUser()
			}
			if widened != e {
				t.entries[idx] = widened
			}
		}
		t = tableAt(t.entries[idx].frame())
	}

	leafIdx := indexOf(vaddr, 1)
	t.entries[leafIdx] = makeEntry(paddr, flags|FlagPresent)
	kasm.Invlpg(vaddr)
	return nil
}

// requiredBitsFor returns the widening bits an intermediate entry
// must carry to not block a leaf requesting flags.
func requiredBitsFor(flags PTEFlags) PTEFlags {
	var out PTEFlags
	if flags&FlagWrite != 0 {
		out |= FlagWrite
	}
	if flags&FlagUser != 0 {
		out |= FlagUser
	}
	return out
}

// Unmap clears the leaf, invalidates the TLB, and returns the
// formerly mapped physical page to the frame allocator, per §4.B.
func (a *AddressSpace) Unmap(vaddr uintptr) {
	restore := a.lock.IRQSave()
	defer restore()

	t := a.root
	for level := 4; level > 1; level-- {
		idx := indexOf(vaddr, level)
		e := t.entries[idx]
		if !e.present() {
			return
		}
		t = tableAt(e.frame())
	}
	leafIdx := indexOf(vaddr, 1)
	e := t.entries[leafIdx]
	if !e.present() {
		return
	}
	frame := e.frame()
	t.entries[leafIdx] = 0
	kasm.Invlpg(vaddr)
	a.frames.FreeFrame(frame)
}

// MapAnon allocates fresh zeroed physical frames and maps every page
// in [vaddr, vaddr+length) with flags, backing the whole range
// immediately rather than relying on page-fault demand paging. This
// is the eager-allocation shape original_source's vmem/sys_vmem.cpp
// anon_allocate uses ("allocate and map pages ... for efficiency").
// On OOM partway through, earlier pages in the range stay mapped; the
// caller is expected to UnmapRange the whole request on failure.
func (a *AddressSpace) MapAnon(vaddr uintptr, length uint64, flags PTEFlags) error {
	for v := alignedDown(vaddr); v < vaddr+uintptr(length); v += pageSize {
		frame, ok := a.frames.AllocFrame()
		if !ok {
			return errors.New("virt: out of memory mapping anonymous range")
		}
		if err := a.Map(v, frame, flags); err != nil {
			a.frames.FreeFrame(frame)
			return err
		}
	}
	return nil
}

// UnmapRange unmaps every page in [vaddr, vaddr+length), returning
// each backing frame to the frame allocator. Pages that aren't
// currently mapped are skipped, same as Unmap, so freeing a range
// that was only partially touched is safe.
func (a *AddressSpace) UnmapRange(vaddr uintptr, length uint64) {
	for v := alignedDown(vaddr); v < vaddr+uintptr(length); v += pageSize {
		a.Unmap(v)
	}
}

// IsMapped reports whether vaddr currently resolves to a mapping.
func (a *AddressSpace) IsMapped(vaddr uintptr) bool {
	return a.Translate(vaddr) != 0
}

// MapRange is a convenience wrapper over Map covering [start,end) with
// a linear physical offset, per §4.B.
func (a *AddressSpace) MapRange(start, end uintptr, flags PTEFlags, offset uintptr) error {
	for v := alignedDown(start); v < end; v += pageSize {
		if err := a.Map(v, v-start+offset, flags); err != nil {
			return err
		}
	}
	return nil
}

// Translate walks the page tables without mutation and returns the
// physical address vaddr maps to, or 0 if unmapped, per §4.B.
func (a *AddressSpace) Translate(vaddr uintptr) uintptr {
	restore := a.lock.IRQSave()
	defer restore()

	t := a.root
	for level := 4; level > 1; level-- {
		idx := indexOf(vaddr, level)
		e := t.entries[idx]
		if !e.present() {
			return 0
		}
		t = tableAt(e.frame())
	}
	e := t.entries[indexOf(vaddr, 1)]
	if !e.present() {
		return 0
	}
	return e.frame() | (vaddr & (pageSize - 1))
}
