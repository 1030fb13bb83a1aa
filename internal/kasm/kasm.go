// Package kasm declares the x86-64 primitives the kernel cannot express
// in portable Go: port I/O, model-specific registers, descriptor table
// loads, TLB invalidation, and the interrupt-enable/halt instructions.
//
// Every function here is linked against hand-written assembly that
// lives outside this module (the kernel's boot assembly glue, out of
// scope per spec.md §1). That mirrors the teacher kernel's own
// go:linkname bridge from KernelMain into lib.s for mmio_write/
// mmio_read/delay — the same shape, aimed at a different ISA.
package kasm

import (
	_ "unsafe" // for go:linkname
)

//go:linkname outb outb
//go:nosplit
func outb(port uint16, value uint8)

//go:linkname inb inb
//go:nosplit
func inb(port uint16) uint8

//go:linkname wrmsr wrmsr
//go:nosplit
func wrmsr(msr uint32, value uint64)

//go:linkname rdmsr rdmsr
//go:nosplit
func rdmsr(msr uint32) uint64

//go:linkname lgdt lgdt
//go:nosplit
func lgdt(ptr uintptr)

//go:linkname lidt lidt
//go:nosplit
func lidt(ptr uintptr)

//go:linkname ltr ltr
//go:nosplit
func ltr(selector uint16)

//go:linkname invlpg invlpg
//go:nosplit
func invlpg(vaddr uintptr)

//go:linkname loadCR3 load_cr3
//go:nosplit
func loadCR3(phys uintptr)

//go:linkname readCR2 read_cr2
//go:nosplit
func readCR2() uintptr

//go:linkname readCR3 read_cr3
//go:nosplit
func readCR3() uintptr

//go:linkname cli cli
//go:nosplit
func cli()

//go:linkname sti sti
//go:nosplit
func sti()

//go:linkname hlt hlt
//go:nosplit
func hlt()

//go:linkname pause pause
//go:nosplit
func pause()

//go:linkname mmioWrite32 mmio_write32
//go:nosplit
func mmioWrite32(addr uintptr, value uint32)

//go:linkname mmioRead32 mmio_read32
//go:nosplit
func mmioRead32(addr uintptr) uint32

//go:linkname saveFlagsCli save_flags_cli
//go:nosplit
func saveFlagsCli() bool

//go:linkname restoreFlags restore_flags
//go:nosplit
func restoreFlags(interruptsWereEnabled bool)

// Outb writes a byte to an I/O port.
func Outb(port uint16, value uint8) { outb(port, value) }

// Inb reads a byte from an I/O port.
func Inb(port uint16) uint8 { return inb(port) }

// Wrmsr writes a model-specific register.
func Wrmsr(msr uint32, value uint64) { wrmsr(msr, value) }

// Rdmsr reads a model-specific register.
func Rdmsr(msr uint32) uint64 { return rdmsr(msr) }

// Lgdt loads the global descriptor table register from a packed
// {limit uint16; base uint64} pseudo-descriptor at ptr.
func Lgdt(ptr uintptr) { lgdt(ptr) }

// Lidt loads the interrupt descriptor table register the same way.
func Lidt(ptr uintptr) { lidt(ptr) }

// Ltr loads the task register with a GDT selector.
func Ltr(selector uint16) { ltr(selector) }

// Invlpg invalidates the TLB entry for a single virtual address.
func Invlpg(vaddr uintptr) { invlpg(vaddr) }

// LoadCR3 switches the active page-table root.
func LoadCR3(phys uintptr) { loadCR3(phys) }

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uintptr { return readCR2() }

// ReadCR3 returns the physical address of the current page-table root.
func ReadCR3() uintptr { return readCR3() }

// Cli disables maskable interrupts on the calling CPU.
func Cli() { cli() }

// Sti enables maskable interrupts on the calling CPU.
func Sti() { sti() }

// Hlt halts the calling CPU until the next interrupt.
func Hlt() { hlt() }

// Pause is the spin-loop hint (REP NOP) used while backing off a
// contended spinlock.
func Pause() { pause() }

// MMIOWrite32 stores value at base+offset through the assembly bridge
// rather than a plain Go pointer store, the same way the teacher
// kernel's mmio_write avoids the compiler reordering or caching a
// volatile device register access.
func MMIOWrite32(base uintptr, offset uint32, value uint32) { mmioWrite32(base+uintptr(offset), value) }

// MMIORead32 loads the 32-bit register at base+offset.
func MMIORead32(base uintptr, offset uint32) uint32 { return mmioRead32(base + uintptr(offset)) }

// SaveFlagsCli reads the current interrupt-enable flag (RFLAGS.IF),
// disables interrupts, and returns whether interrupts were enabled
// beforehand — the usual "spin_lock_irqsave" pattern, needed so a
// nested lock taken from inside an already-cli'd handler doesn't
// blindly re-enable interrupts on unlock.
func SaveFlagsCli() bool { return saveFlagsCli() }

// RestoreFlags re-enables interrupts iff they were enabled at the
// matching SaveFlagsCli call.
func RestoreFlags(interruptsWereEnabled bool) { restoreFlags(interruptsWereEnabled) }
