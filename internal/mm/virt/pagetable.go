// Package virt implements the address-space manager (§4.B): 4-level
// x86-64 page tables, built and mutated via a higher-half direct map
// over physical memory. Restored from
// original_source/.../platform/mm/virt.opt.cpp (table-walk shape,
// intermediate-entry widening rule) and .../platform/mm/addr.cpp
// (virtual<->physical direct-map translation).
package virt

import (
	"github.com/Pascu-Victor/wos-sub002/internal/mm/phys"
)

const (
	pageSize  = phys.PageSize
	pageShift = 12
	entryMask = 0x1FF // 9 bits per page-table level

	// kernelHalfStart is the first level-4 index belonging to the
	// kernel upper half (canonical higher half of the 48-bit address
	// space), per §3: "the kernel upper half is never unmapped."
	kernelHalfStart = 256
)

// PTEFlags are the protection bits a leaf mapping can request, per
// §4.B: "present|write|user|no-execute".
type PTEFlags uint64

const (
	FlagPresent PTEFlags = 1 << iota
	FlagWrite
	FlagUser
	FlagNoExecute
)

// entry is one 64-bit page-table slot, decomposed for readability.
// Bit layout matches the real x86-64 PTE: bit 0 present, bit 1
// writable, bit 2 user, bits 12-51 the physical frame number, bit 63
// no-execute.
type entry uint64

const (
	bitPresent   = 1 << 0
	bitWrite     = 1 << 1
	bitUser      = 1 << 2
	bitFrameMask = 0x000F_FFFF_FFFF_F000
	bitNX        = 1 << 63
)

func makeEntry(frame uintptr, flags PTEFlags) entry {
	var e uint64
	if flags&FlagPresent != 0 {
		e |= bitPresent
	}
	if flags&FlagWrite != 0 {
		e |= bitWrite
	}
	if flags&FlagUser != 0 {
		e |= bitUser
	}
	e |= uint64(frame) & bitFrameMask
	if flags&FlagNoExecute != 0 {
		e |= bitNX
	}
	return entry(e)
}

func (e entry) present() bool { return uint64(e)&bitPresent != 0 }
func (e entry) writable() bool { return uint64(e)&bitWrite != 0 }
func (e entry) user() bool     { return uint64(e)&bitUser != 0 }
func (e entry) frame() uintptr { return uintptr(uint64(e) & bitFrameMask) }

func (e *entry) setWritable() { *e = entry(uint64(*e) | bitWrite) }
func (e *entry) setUser()     { *e = entry(uint64(*e) | bitUser) }

// table is one level of the 4-level tree: 512 entries, one page in
// size, exactly like the real hardware layout.
type table struct {
	entries [512]entry
}

// indexOf extracts the 9-bit index for page-table level (4=PML4 down
// to 1=PT) out of a virtual address, matching the original's
// index_of(vaddr, offset).
func indexOf(vaddr uintptr, level int) uint64 {
	return (uint64(vaddr) >> uint(pageShift+9*(level-1))) & entryMask
}

func alignedDown(v uintptr) uintptr { return v &^ (pageSize - 1) }

func isPageAligned(v uintptr) bool { return v%pageSize == 0 }
