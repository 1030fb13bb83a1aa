package virt

import (
	"errors"
	"unsafe"
)

// ErrFault and ErrRange are the two failure shapes §4.G's validation
// rules distinguish: a page walk that doesn't resolve to a usable
// mapping ("a failing walk is EFAULT"), and a length that would carry
// the access past the end of the mapped range ("lengths that would
// overflow the user range are EINVAL"). internal/syscall translates
// these into the matching abi.Errno; this package stays free of the
// abi dependency since it has no other reason to import it.
var (
	ErrFault = errors.New("virt: user pointer not mapped or wrong protection")
	ErrRange = errors.New("virt: range overflows user address space")
)

// walkPage translates vaddr and confirms it is present, user-mapped,
// and (if forWrite) writable, per §4.G "readable for inputs, writable
// for outputs". Returns the physical frame and in-page offset.
func (a *AddressSpace) walkPage(vaddr uintptr, forWrite bool) (frame uintptr, offset uintptr, err error) {
	restore := a.lock.IRQSave()
	defer restore()

	t := a.root
	for level := 4; level > 1; level-- {
		idx := indexOf(vaddr, level)
		e := t.entries[idx]
		if !e.present() {
			return 0, 0, ErrFault
		}
		t = tableAt(e.frame())
	}
	e := t.entries[indexOf(vaddr, 1)]
	if !e.present() || !e.user() {
		return 0, 0, ErrFault
	}
	if forWrite && !e.writable() {
		return 0, 0, ErrFault
	}
	return e.frame(), vaddr & (pageSize - 1), nil
}

// derefByte returns a dereferenceable pointer to the live byte at
// vaddr, resolved through the owning frame source's direct map.
func (a *AddressSpace) derefByte(vaddr uintptr, forWrite bool) (*byte, error) {
	frame, off, err := a.walkPage(vaddr, forWrite)
	if err != nil {
		return nil, err
	}
	p := a.frames.Deref(frame)
	return (*byte)(unsafe.Add(p, off)), nil
}

// ValidateRange confirms every page touched by [vaddr, vaddr+length)
// is present, user-mapped, and (if forWrite) writable, without
// copying anything. vaddr+length overflowing uintptr is ErrRange.
func (a *AddressSpace) ValidateRange(vaddr uintptr, length uint64, forWrite bool) error {
	if length == 0 {
		return nil
	}
	end := vaddr + uintptr(length)
	if end < vaddr {
		return ErrRange
	}
	for p := alignedDown(vaddr); p < end; p += pageSize {
		if _, _, err := a.walkPage(p, forWrite); err != nil {
			return err
		}
	}
	return nil
}

// CopyFromUser copies len(dst) bytes starting at vaddr into dst,
// validating and dereferencing one byte at a time so it never assumes
// physical contiguity across a page boundary.
func (a *AddressSpace) CopyFromUser(dst []byte, vaddr uintptr) error {
	if err := a.ValidateRange(vaddr, uint64(len(dst)), false); err != nil {
		return err
	}
	for i := range dst {
		b, err := a.derefByte(vaddr+uintptr(i), false)
		if err != nil {
			return err
		}
		dst[i] = *b
	}
	return nil
}

// CopyToUser copies src into user memory starting at vaddr.
func (a *AddressSpace) CopyToUser(vaddr uintptr, src []byte) error {
	if err := a.ValidateRange(vaddr, uint64(len(src)), true); err != nil {
		return err
	}
	for i, b := range src {
		dst, err := a.derefByte(vaddr+uintptr(i), true)
		if err != nil {
			return err
		}
		*dst = b
	}
	return nil
}

// DerefUint32 resolves vaddr (which must be 4-byte aligned and not
// cross a page boundary) to a live *uint32, for the atomic compare
// futex_wait needs on the word it blocks on, per §4.I step 2.
func (a *AddressSpace) DerefUint32(vaddr uintptr) (*uint32, error) {
	if vaddr%4 != 0 {
		return nil, ErrRange
	}
	if vaddr&(pageSize-1) > pageSize-4 {
		return nil, ErrRange
	}
	frame, off, err := a.walkPage(vaddr, true)
	if err != nil {
		return nil, err
	}
	p := a.frames.Deref(frame)
	return (*uint32)(unsafe.Add(p, off)), nil
}

// PhysicalKey translates vaddr to the physical address that is the
// futex hash key, per §4.I step 1: "different virtual aliases of the
// same physical page refer to the same futex." Returns ErrFault if
// unmapped.
func (a *AddressSpace) PhysicalKey(vaddr uintptr) (uintptr, error) {
	frame, off, err := a.walkPage(vaddr, false)
	if err != nil {
		return 0, err
	}
	return frame + off, nil
}
