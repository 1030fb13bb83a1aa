package syscall

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// pageSize4K mirrors internal/mm/virt's page granularity; kept as a
// local constant since virt doesn't export one.
const pageSize4K = 4096

// userHalfLimit is the first address belonging to the shared kernel
// upper half (level-4 index 256, per internal/mm/virt's address-space
// split); no anonymous mapping may reach it.
const userHalfLimit = 0x0000_8000_0000_0000

func alignUp4K(v uint64) uint64 { return (v + pageSize4K - 1) &^ (pageSize4K - 1) }

func pteFlagsForProt(prot uint64) virt.PTEFlags {
	flags := virt.FlagUser
	if prot&abi.ProtWrite != 0 {
		flags |= virt.FlagWrite
	}
	if prot&abi.ProtExec == 0 {
		flags |= virt.FlagNoExecute
	}
	return flags
}

// vmem implements CallVMem: anon_allocate and anon_free, the only two
// operations original_source's vmem/sys_vmem.cpp exposes. Both
// eagerly allocate/free the whole backing range rather than relying
// on page-fault demand paging, matching that file's actual behavior.
//
// Args for AnonAllocate: (op, size, prot, flags, addrHint).
// Args for AnonFree: (op, addr, size).
func (d *Dispatcher) vmem(f *trap.SyscallFrame) {
	switch abi.VMemOp(f.Args[0]) {
	case abi.VMemAnonAllocate:
		d.anonAllocate(f)
	case abi.VMemAnonFree:
		d.anonFree(f)
	default:
		f.ReturnError(int64(abi.EINVAL))
	}
}

func (d *Dispatcher) anonAllocate(f *trap.SyscallFrame) {
	size := f.Args[1]
	prot := f.Args[2]
	flags := f.Args[3]
	hint := uintptr(f.Args[4])

	if size == 0 {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	sizeAligned := alignUp4K(size)
	maxSize := uint64(userHalfLimit - d.mmapBase)
	if sizeAligned > maxSize {
		f.ReturnError(int64(abi.ENOMEM))
		return
	}

	as := f.Task.AddrSpace
	mapFlags := pteFlagsForProt(prot)

	var vaddr uintptr
	if flags&abi.MapFixed != 0 {
		if hint%pageSize4K != 0 {
			f.ReturnError(int64(abi.EINVAL))
			return
		}
		if uint64(hint)+sizeAligned > userHalfLimit {
			f.ReturnError(int64(abi.ENOMEM))
			return
		}
		// MAP_FIXED is idempotent over its own prior mapping: drop
		// whatever is currently mapped in the target range before
		// remapping it fresh.
		as.UnmapRange(hint, sizeAligned)
		vaddr = hint
	} else {
		v, err := findFreeRange(as, d.mmapBase, userHalfLimit, sizeAligned)
		if err != nil {
			f.ReturnError(int64(abi.ENOMEM))
			return
		}
		vaddr = v
	}

	if err := as.MapAnon(vaddr, sizeAligned, mapFlags); err != nil {
		as.UnmapRange(vaddr, sizeAligned)
		f.ReturnError(int64(abi.ENOMEM))
		return
	}
	f.Return(int64(vaddr))
}

// findFreeRange scans page-by-page from base for the first run of
// size bytes with nothing currently mapped, a stateless first-fit scan
// since anon_allocate keeps no region bookkeeping to consult.
func findFreeRange(as *virt.AddressSpace, base uintptr, limit uint64, size uint64) (uintptr, error) {
	for candidate := base; uint64(candidate)+size <= limit; {
		conflict := uintptr(0)
		found := false
		for p := candidate; p < candidate+uintptr(size); p += pageSize4K {
			if as.IsMapped(p) {
				conflict = p
				found = true
				break
			}
		}
		if !found {
			return candidate, nil
		}
		candidate = conflict + pageSize4K
	}
	return 0, errNoFreeRange
}

type vmemError string

func (e vmemError) Error() string { return string(e) }

const errNoFreeRange = vmemError("syscall: no free range for anonymous mapping")

// anonFree implements anon_free(addr, size): validate bounds and
// alignment, then unmap whatever pages happen to be present in the
// range. original_source's anon_free tracks no provenance of prior
// allocations, so this doesn't either — a free over an untouched or
// partially-touched range is not an error.
func (d *Dispatcher) anonFree(f *trap.SyscallFrame) {
	addr := uintptr(f.Args[1])
	size := f.Args[2]

	if size == 0 {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	if addr%pageSize4K != 0 {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	sizeAligned := alignUp4K(size)
	if uint64(addr)+sizeAligned > userHalfLimit {
		f.ReturnError(int64(abi.EINVAL))
		return
	}

	f.Task.AddrSpace.UnmapRange(addr, sizeAligned)
	f.Return(0)
}
