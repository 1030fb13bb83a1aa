// Package coredump implements the best-effort diagnostic dump
// internal/trap's fatal-fault path writes before killing a task: a
// fixed-size header, a fixed-size segment table, the segment contents
// it could resolve, and the task's retained ELF image if it has one.
// Grounded on original_source's platform/dbg/coredump.cpp.
package coredump

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/Pascu-Victor/wos-sub002/internal/bitfield"
	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
	"github.com/Pascu-Victor/wos-sub002/internal/vfs"
)

// magic and headerVersion identify the dump format, matching the
// original's own "WOSCODMP"-derived constant in spirit, not value
// (this port's header layout differs, so the byte pattern does too).
const (
	magic         uint64 = 0x504d55444f43474f // "OGCODUMP" little-endian-ish
	headerVersion uint32 = 1
)

const pageSize = 4096

// maxStackPages bounds how many pages below the faulting RSP get
// captured, per the original's fixed MAX_STACK_PAGES.
const maxStackPages = 4

// segmentType tags what a captured page was for.
type segmentType uint32

const (
	segmentStackPage segmentType = 1
	segmentFaultPage segmentType = 2
)

// header is the fixed-size record written first. Field order is the
// wire order; every field is written little-endian.
type header struct {
	Magic       uint64
	Version     uint32
	HeaderSize  uint32
	Sequence    uint64
	PID         uint64
	CPU         uint64
	Vector      uint64
	FaultAddr   uint64
	RegsOffset  uint64
	SegTableOff uint64
	SegCount    uint64
	ELFOffset   uint64
	ELFSize     uint64
}

// segment is one entry of the fixed-size segment table. Its Type and
// Present bits live packed into a single word (via internal/bitfield,
// the same pack/unpack the teacher's bitfield package provides for
// page-table-flag-shaped data) rather than two separate uint32 wire
// fields, since neither needs more than a handful of bits.
type segment struct {
	Vaddr      uint64
	Size       uint64
	FileOffset uint64
	Flags      uint32
	reserved   uint32
}

// segFlags is the struct bitfield.Pack/Unpack compacts a segment's
// Type and Present bit into, per segment's own doc comment.
type segFlags struct {
	Present bool        `bitfield:",1"`
	Type    segmentType `bitfield:",8"`
}

var segFlagsConfig = &bitfield.Config{NumBits: 32}

func packSegFlags(present bool, typ segmentType) uint32 {
	packed, err := bitfield.Pack(&segFlags{Present: present, Type: typ}, segFlagsConfig)
	if err != nil {
		panic("coredump: segment flags failed to pack: " + err.Error())
	}
	return uint32(packed)
}

func unpackSegFlags(flags uint32) segFlags {
	var f segFlags
	if err := bitfield.Unpack(&f, uint64(flags), segFlagsConfig); err != nil {
		panic("coredump: segment flags failed to unpack: " + err.Error())
	}
	return f
}

const headerSize = 8*11 + 4*2 // keep in sync with encodeHeader's field widths
const segmentSize = 8*3 + 4*2

// Writer owns the kernel-internal file table coredumps are written
// through, independent of the faulting task's own descriptor table —
// the original writes through a global vfs_open, not the crashing
// task's fds.
type Writer struct {
	fs  *vfs.Tmpfs
	fds *task.FDTable
	seq uint64
}

// NewWriter returns a coredump writer backed by fs.
func NewWriter(fs *vfs.Tmpfs) *Writer {
	return &Writer{fs: fs, fds: task.NewFDTable()}
}

// WriteCoredump implements internal/trap.Coredumper. It captures the
// stack pages around the task's saved RSP plus the faulting page (both
// best-effort: an unmapped or non-present page is just marked absent
// in the segment table, not an error), then the task's retained ELF
// image if any.
func (w *Writer) WriteCoredump(t *task.Task, vector int, faultAddr uintptr) error {
	seq := atomic.AddUint64(&w.seq, 1)
	name := sanitizeName(t.Name)
	path := "coredump_" + name + "_" + itoa(uint64(t.PID)) + "_" + itoa(seq) + ".bin"

	fd, errno := w.fs.Open(w.fds, path, true)
	if errno != 0 {
		return coredumpError("coredump: open failed")
	}
	defer vfs.Close(w.fds, fd)

	var segs [maxStackPages + 1]segment
	segCount := 0
	dataOffset := uint64(headerSize + segmentSize*len(segs))
	nextOffset := dataOffset

	addPage := func(vaddr uintptr, typ segmentType) {
		present := t.AddrSpace != nil && t.AddrSpace.IsMapped(vaddr)
		s := segment{Vaddr: uint64(vaddr), Size: pageSize, Flags: packSegFlags(present, typ)}
		if present {
			s.FileOffset = nextOffset
			nextOffset += pageSize
		}
		segs[segCount] = s
		segCount++
	}

	stackPage := t.Regs.RSP &^ (pageSize - 1)
	for i := uint64(0); i < maxStackPages; i++ {
		addPage(uintptr(stackPage-i*pageSize), segmentStackPage)
	}
	addPage(faultAddr&^(pageSize-1), segmentFaultPage)

	hdr := header{
		Magic:       magic,
		Version:     headerVersion,
		HeaderSize:  headerSize,
		Sequence:    seq,
		PID:         uint64(t.PID),
		CPU:         uint64(t.CPU),
		Vector:      uint64(vector),
		FaultAddr:   uint64(faultAddr),
		RegsOffset:  0,
		SegTableOff: headerSize,
		SegCount:    uint64(segCount),
		ELFOffset:   nextOffset,
		ELFSize:     uint64(len(t.ELFImage)),
	}

	if err := writeAll(w.fds, fd, encodeHeader(hdr)); err != nil {
		return err
	}
	for i := 0; i < len(segs); i++ {
		if err := writeAll(w.fds, fd, encodeSegment(segs[i])); err != nil {
			return err
		}
	}

	for i := 0; i < segCount; i++ {
		if !unpackSegFlags(segs[i].Flags).Present {
			continue
		}
		buf := make([]byte, pageSize)
		if err := t.AddrSpace.CopyFromUser(buf, uintptr(segs[i].Vaddr)); err != nil {
			if err == virt.ErrFault {
				continue
			}
			return err
		}
		if err := writeAll(w.fds, fd, buf); err != nil {
			return err
		}
	}

	if len(t.ELFImage) > 0 {
		if err := writeAll(w.fds, fd, t.ELFImage); err != nil {
			return err
		}
	}
	return nil
}

func writeAll(fds *task.FDTable, fd int, buf []byte) error {
	for len(buf) > 0 {
		n, errno := vfs.Write(fds, fd, buf)
		if errno != 0 || n == 0 {
			return coredumpError("coredump: write failed")
		}
		buf = buf[n:]
	}
	return nil
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.Sequence)
	binary.LittleEndian.PutUint64(buf[24:32], h.PID)
	binary.LittleEndian.PutUint64(buf[32:40], h.CPU)
	binary.LittleEndian.PutUint64(buf[40:48], h.Vector)
	binary.LittleEndian.PutUint64(buf[48:56], h.FaultAddr)
	binary.LittleEndian.PutUint64(buf[56:64], h.RegsOffset)
	binary.LittleEndian.PutUint64(buf[64:72], h.SegTableOff)
	binary.LittleEndian.PutUint64(buf[72:80], h.SegCount)
	binary.LittleEndian.PutUint64(buf[80:88], h.ELFOffset)
	binary.LittleEndian.PutUint64(buf[88:96], h.ELFSize)
	return buf
}

func encodeSegment(s segment) []byte {
	buf := make([]byte, segmentSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.Vaddr)
	binary.LittleEndian.PutUint64(buf[8:16], s.Size)
	binary.LittleEndian.PutUint64(buf[16:24], s.FileOffset)
	binary.LittleEndian.PutUint32(buf[24:28], s.Flags)
	binary.LittleEndian.PutUint32(buf[28:32], s.reserved)
	return buf
}

// sanitizeName keeps a task name filesystem-safe, mirroring the
// original's own alnum/underscore-only sanitize_name.
func sanitizeName(name string) string {
	if name == "" {
		return "unknown"
	}
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
		if ok {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

type coredumpError string

func (e coredumpError) Error() string { return string(e) }
