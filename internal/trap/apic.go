package trap

import (
	"github.com/Pascu-Victor/wos-sub002/internal/boot"
	"github.com/Pascu-Victor/wos-sub002/internal/kasm"
)

// Local APIC MMIO register offsets (x86-64 xAPIC layout).
const (
	lapicEOI       = 0x0B0
	lapicSpurious  = 0x0F0
	lapicICRLow    = 0x300
	lapicICRHigh   = 0x310
	lapicTimerLVT  = 0x320
	lapicTimerInit = 0x380
	lapicTimerCur  = 0x390
	lapicTimerDiv  = 0x3E0
)

// LocalAPIC wraps the per-CPU local-APIC MMIO page: EOIs, the oneshot
// preemption timer, and IPIs, per §4.F.
type LocalAPIC struct {
	base uintptr
}

// NewLocalAPIC wraps the MMIO window at base (already mapped by the
// caller through internal/mm/virt).
func NewLocalAPIC(base uintptr) *LocalAPIC {
	return &LocalAPIC{base: base}
}

func (l *LocalAPIC) write(reg uint32, value uint32) { kasm.MMIOWrite32(l.base, reg, value) }
func (l *LocalAPIC) read(reg uint32) uint32         { return kasm.MMIORead32(l.base, reg) }

// EOI signals end-of-interrupt to the local APIC.
func (l *LocalAPIC) EOI() { l.write(lapicEOI, 0) }

// ArmOneshotTimer programs the local APIC timer to fire vector once
// after the given tick count, driving preemption, per §4.F.
func (l *LocalAPIC) ArmOneshotTimer(vector uint8, ticks uint32) {
	l.write(lapicTimerDiv, 0x3) // divide by 16
	l.write(lapicTimerLVT, uint32(vector))
	l.write(lapicTimerInit, ticks)
}

// SendIPI issues an inter-processor interrupt to the local APIC
// addressed by apicID carrying vector, used by WakeCPU.
func (l *LocalAPIC) SendIPI(apicID uint8, vector uint8) {
	l.write(lapicICRHigh, uint32(apicID)<<24)
	l.write(lapicICRLow, uint32(vector))
}

// SendWakeIPI satisfies internal/sched.IPISender: a fixed wake vector
// forces the target CPU out of hlt.
func (l *LocalAPIC) SendWakeIPI(apicID int) {
	const wakeVector = 0xF0
	l.SendIPI(uint8(apicID), wakeVector)
}

// IOAPIC redirection-entry polarity/trigger-mode bits, and the ACPI
// MADT interrupt-source-override flag bits they're derived from
// (bits 0-1 polarity, bits 2-3 trigger mode; value 0 means
// "conforms to the bus's default", which for ISA is active-high
// edge-triggered).
const (
	redirMaskBit   = 1 << 16
	redirLevelTrig = 1 << 15
	redirActiveLow = 1 << 13

	madtPolarityMask     = 0x3
	madtPolarityActiveLo = 0x3
	madtTriggerMask      = 0x3 << 2
	madtTriggerLevel     = 0x3 << 2
)

// IOAPIC wraps one IO-APIC's MMIO window, programming redirection
// entries that map global system interrupts to IDT vectors, per §4.F.
type IOAPIC struct {
	base    uintptr
	gsiBase uint32
}

func NewIOAPIC(rec boot.IOAPICRecord) *IOAPIC {
	return &IOAPIC{base: uintptr(rec.IOAPICAddr), gsiBase: rec.GlobalSysIntBase}
}

func (io *IOAPIC) regSelect(index uint32) { kasm.MMIOWrite32(io.base, 0x00, index) }
func (io *IOAPIC) regWindow() uint32      { return kasm.MMIORead32(io.base, 0x10) }
func (io *IOAPIC) setRegWindow(v uint32)  { kasm.MMIOWrite32(io.base, 0x10, v) }

// Route programs gsi to deliver to vector, honoring the polarity and
// trigger mode from an ISA override if one applies, per §4.F "ISA
// overrides from firmware tables are honored when programming
// redirection entries."
func (io *IOAPIC) Route(gsi uint32, vector uint8, override *boot.ISAOverride) {
	entryIndex := 0x10 + (gsi-io.gsiBase)*2
	low := uint32(vector)
	if override != nil {
		if override.Flags&madtPolarityMask == madtPolarityActiveLo {
			low |= redirActiveLow
		}
		if override.Flags&madtTriggerMask == madtTriggerLevel {
			low |= redirLevelTrig
		}
	}

	io.regSelect(entryIndex)
	io.setRegWindow(low)
	io.regSelect(entryIndex + 1)
	io.setRegWindow(0) // destination field: fixed to BSP, no redirection hints beyond polarity/trigger
}

// Mask disables delivery of gsi without clearing its configuration.
func (io *IOAPIC) Mask(gsi uint32) {
	entryIndex := 0x10 + (gsi-io.gsiBase)*2
	io.regSelect(entryIndex)
	cur := io.regWindow()
	io.setRegWindow(cur | redirMaskBit)
}
