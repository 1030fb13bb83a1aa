// Package boot models the handover contract §6 describes: the
// memory map, SMP descriptor, firmware-table pointer, framebuffer
// description and boot modules the bootloader hands the kernel.
// Everything here is a passive, typed view over that handover data —
// the bootloader protocol itself is out of scope per spec.md §1.
package boot

// RegionType classifies a memory-map entry, per §6.
type RegionType int

const (
	RegionUsable RegionType = iota
	RegionReserved
	RegionFirmware
	RegionBootloaderReclaimable
	RegionFramebuffer
	RegionKernelAndModules
)

// MemoryRegion is one entry of the bootloader-provided memory map.
type MemoryRegion struct {
	Base   uintptr
	Length uint64
	Type   RegionType
}

// CPUDescriptor names one CPU enumerated by the SMP descriptor, keyed
// on its Local-APIC ID (§4.F routes IPIs by this ID).
type CPUDescriptor struct {
	LocalAPICID uint32
	IsBSP       bool
}

// Framebuffer describes the boot-time linear framebuffer, consumed
// only by the out-of-scope console collaborator (internal/console).
type Framebuffer struct {
	PhysBase uintptr
	Width    uint32
	Height   uint32
	Pitch    uint32
	BPP      uint8
}

// Module is one boot module handed over by the bootloader (an
// initramfs CPIO archive, say) — unpacking it is out of scope per
// spec.md §1; this core only carries the name+bytes pair forward.
type Module struct {
	Name  string
	Bytes []byte
}

// Handover is everything the kernel consumes from the bootloader
// exactly once, at boot, before walking away from its data (§6:
// "The kernel does not otherwise interpret the bootloader's data once
// these have been copied out").
type Handover struct {
	MemoryMap           []MemoryRegion
	HigherHalfDirectMap  uintptr
	FirmwareRootTable    uintptr // physical address of the RSDP
	CPUs                 []CPUDescriptor
	Framebuffer          Framebuffer
	Modules              []Module
}

// UsableRegions returns the subset of the memory map the frame
// allocator (§4.A) may carve zones out of.
func (h *Handover) UsableRegions() []MemoryRegion {
	var out []MemoryRegion
	for _, r := range h.MemoryMap {
		if r.Type == RegionUsable {
			out = append(out, r)
		}
	}
	return out
}

// BSP returns the bootstrap-processor descriptor, or the zero value
// and false if none is marked.
func (h *Handover) BSP() (CPUDescriptor, bool) {
	for _, c := range h.CPUs {
		if c.IsBSP {
			return c, true
		}
	}
	return CPUDescriptor{}, false
}
