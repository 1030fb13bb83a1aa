package boot

import (
	"encoding/binary"
	"fmt"
)

// Rsdp is the Root System Description Pointer, restored verbatim from
// original_source/.../platform/acpi/tables/rsdp.hpp.
type Rsdp struct {
	Signature        [8]byte
	Checksum         uint8
	OEMID            [6]byte
	Revision         uint8
	RSDTAddr         uint32
	Length           uint32
	XSDTAddr         uint64
	ExtendedChecksum uint8
}

// ParseRsdp validates the checksum over the first 20 bytes (the
// ACPI 1.0 portion) and decodes the fixed-layout table. A checksum
// failure is a fatal condition per §7 ("fatal: kernel invariant
// violated") since a corrupt RSDP means every downstream firmware
// table is unreliable.
func ParseRsdp(raw []byte) (Rsdp, error) {
	if len(raw) < 20 {
		return Rsdp{}, fmt.Errorf("boot: RSDP buffer too short (%d bytes)", len(raw))
	}
	var sum uint8
	for _, b := range raw[:20] {
		sum += b
	}
	if sum != 0 {
		return Rsdp{}, fmt.Errorf("boot: RSDP checksum failed")
	}

	var r Rsdp
	copy(r.Signature[:], raw[0:8])
	r.Checksum = raw[8]
	copy(r.OEMID[:], raw[9:15])
	r.Revision = raw[15]
	r.RSDTAddr = binary.LittleEndian.Uint32(raw[16:20])
	if r.Revision >= 2 && len(raw) >= 36 {
		r.Length = binary.LittleEndian.Uint32(raw[20:24])
		r.XSDTAddr = binary.LittleEndian.Uint64(raw[24:32])
		r.ExtendedChecksum = raw[32]
	}
	return r, nil
}

// UsesXSDT reports whether the firmware published ACPI 2.0+ tables
// (XSDT), matching the original's rsdp::useXsdt().
func (r Rsdp) UsesXSDT() bool { return r.Revision >= 2 }

// MADT record type tags, restored from
// original_source/.../platform/acpi/madt/madt.hpp.
const (
	MadtTypeLAPIC                = 0
	MadtTypeIOAPIC               = 1
	MadtTypeIOAPICIntSrcOverride = 2
	MadtTypeIOAPICNMI            = 3
	MadtTypeLAPICNMI             = 4
	MadtTypeLAPICAddrOverride    = 5
	MadtTypeLAPICX2APIC          = 9
)

// IOAPICRecord is one MADT IO-APIC entry.
type IOAPICRecord struct {
	IOAPICID         uint8
	IOAPICAddr       uint32
	GlobalSysIntBase uint32
}

// LAPICRecord is one MADT processor-local-APIC entry.
type LAPICRecord struct {
	ACPIProcessorID uint8
	APICID          uint8
	Flags           uint32
}

// ISAOverride is one MADT "interrupt source override" entry — §4.F
// calls these out by name: "ISA overrides from firmware tables are
// honored when programming redirection entries."
type ISAOverride struct {
	Bus          uint8
	Source       uint8
	GlobalSysInt uint32
	Flags        uint16
}

// ApicInfo is the decoded view of the MADT the rest of the kernel
// consumes, restored from original_source/.../madt.hpp's ApicInfo.
type ApicInfo struct {
	LocalAPICAddr uint32
	IOAPICs       []IOAPICRecord
	LAPICs        []LAPICRecord
	ISAOverrides  []ISAOverride
}

// ParseMadt walks a raw MADT table body (the bytes after the common
// SDT header and the {localApicAddr, localApicFlags} prologue) and
// buckets each variable-length record by type, the way
// original_source's parseMadt does.
func ParseMadt(localAPICAddr uint32, records []byte) ApicInfo {
	info := ApicInfo{LocalAPICAddr: localAPICAddr}
	for i := 0; i+2 <= len(records); {
		typ := records[i]
		length := int(records[i+1])
		if length < 2 || i+length > len(records) {
			break
		}
		body := records[i : i+length]
		switch typ {
		case MadtTypeIOAPIC:
			if length >= 12 {
				info.IOAPICs = append(info.IOAPICs, IOAPICRecord{
					IOAPICID:         body[2],
					IOAPICAddr:       binary.LittleEndian.Uint32(body[4:8]),
					GlobalSysIntBase: binary.LittleEndian.Uint32(body[8:12]),
				})
			}
		case MadtTypeLAPIC:
			if length >= 8 {
				info.LAPICs = append(info.LAPICs, LAPICRecord{
					ACPIProcessorID: body[2],
					APICID:          body[3],
					Flags:           binary.LittleEndian.Uint32(body[4:8]),
				})
			}
		case MadtTypeIOAPICIntSrcOverride:
			if length >= 10 {
				info.ISAOverrides = append(info.ISAOverrides, ISAOverride{
					Bus:          body[2],
					Source:       body[3],
					GlobalSysInt: binary.LittleEndian.Uint32(body[4:8]),
					Flags:        binary.LittleEndian.Uint16(body[8:10]),
				})
			}
		}
		i += length
	}
	return info
}
