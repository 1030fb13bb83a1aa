package coredump

import (
	"encoding/binary"
	"testing"

	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/sched"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
	"github.com/Pascu-Victor/wos-sub002/internal/vfs"
)

func freshTask(t *testing.T) *task.Task {
	t.Helper()
	arena := task.NewArena()
	s := sched.New(1, arena, nil)
	frames := virt.NewHostFrameSource()
	if _, err := virt.InitKernelSpace(frames); err != nil {
		t.Fatalf("InitKernelSpace: %v", err)
	}
	as, err := virt.CreateAddressSpace(frames)
	if err != nil {
		t.Fatalf("CreateAddressSpace: %v", err)
	}
	self := s.Spawn(0, "crashy-task", 100)
	self.AddrSpace = as
	return self
}

func TestWriteCoredumpProducesReadableHeader(t *testing.T) {
	self := freshTask(t)
	const stackAddr = 0x0000_7000_0000_0000
	frames := virt.NewHostFrameSource()
	page, _ := frames.AllocFrame()
	if err := self.AddrSpace.Map(stackAddr, page, virt.FlagPresent|virt.FlagWrite|virt.FlagUser); err != nil {
		t.Fatalf("Map: %v", err)
	}
	self.Regs.RSP = stackAddr + 128

	fs := vfs.NewTmpfs()
	w := NewWriter(fs)
	if err := w.WriteCoredump(self, 14, stackAddr); err != nil {
		t.Fatalf("WriteCoredump: %v", err)
	}

	readFds := task.NewFDTable()
	fd, errno := fs.Open(readFds, "coredump_crashy_task_"+itoa(uint64(self.PID))+"_1.bin", false)
	if errno != 0 {
		t.Fatalf("reopen coredump file: %v", errno)
	}

	buf := make([]byte, headerSize)
	n, errno := vfs.Read(readFds, fd, buf)
	if errno != 0 || n != headerSize {
		t.Fatalf("read header: n=%d errno=%v", n, errno)
	}

	if got := binary.LittleEndian.Uint64(buf[0:8]); got != magic {
		t.Fatalf("expected magic %#x, got %#x", magic, got)
	}
	if got := binary.LittleEndian.Uint64(buf[24:32]); got != uint64(self.PID) {
		t.Fatalf("expected pid %d, got %d", self.PID, got)
	}
	if got := binary.LittleEndian.Uint64(buf[40:48]); got != 14 {
		t.Fatalf("expected vector 14, got %d", got)
	}
	segCount := binary.LittleEndian.Uint64(buf[72:80])
	if segCount != maxStackPages+1 {
		t.Fatalf("expected %d segments, got %d", maxStackPages+1, segCount)
	}
}

func TestWriteCoredumpToleratesUnmappedPages(t *testing.T) {
	self := freshTask(t)
	self.Regs.RSP = 0x0000_7fff_0000_0000 // nothing mapped here

	fs := vfs.NewTmpfs()
	w := NewWriter(fs)
	if err := w.WriteCoredump(self, 6, 0x0000_7fff_0001_0000); err != nil {
		t.Fatalf("WriteCoredump with no resolvable pages: %v", err)
	}
}

func TestSegmentFlagsPackAndUnpackRoundTrip(t *testing.T) {
	packed := packSegFlags(true, segmentFaultPage)
	got := unpackSegFlags(packed)
	if !got.Present || got.Type != segmentFaultPage {
		t.Fatalf("expected Present=true Type=%d, got Present=%v Type=%d", segmentFaultPage, got.Present, got.Type)
	}

	packed = packSegFlags(false, segmentStackPage)
	got = unpackSegFlags(packed)
	if got.Present || got.Type != segmentStackPage {
		t.Fatalf("expected Present=false Type=%d, got Present=%v Type=%d", segmentStackPage, got.Present, got.Type)
	}
}

func TestWriteCoredumpSegmentTableFlagsReflectPresence(t *testing.T) {
	self := freshTask(t)
	const stackAddr = 0x0000_7000_0000_0000
	frames := virt.NewHostFrameSource()
	page, _ := frames.AllocFrame()
	if err := self.AddrSpace.Map(stackAddr, page, virt.FlagPresent|virt.FlagWrite|virt.FlagUser); err != nil {
		t.Fatalf("Map: %v", err)
	}
	self.Regs.RSP = stackAddr + 128

	fs := vfs.NewTmpfs()
	w := NewWriter(fs)
	const faultAddr = 0x0000_7fff_dead_0000 // deliberately unmapped
	if err := w.WriteCoredump(self, 14, faultAddr); err != nil {
		t.Fatalf("WriteCoredump: %v", err)
	}

	readFds := task.NewFDTable()
	fd, errno := fs.Open(readFds, "coredump_crashy_task_"+itoa(uint64(self.PID))+"_1.bin", false)
	if errno != 0 {
		t.Fatalf("reopen coredump file: %v", errno)
	}
	buf := make([]byte, headerSize+segmentSize*(maxStackPages+1))
	n, errno := vfs.Read(readFds, fd, buf)
	if errno != 0 || n != len(buf) {
		t.Fatalf("read header+segments: n=%d errno=%v", n, errno)
	}

	// Segment 0 is the stack page containing RSP, which was mapped
	// above; it must come back Present with Type == segmentStackPage.
	seg0Flags := binary.LittleEndian.Uint32(buf[headerSize+24 : headerSize+28])
	f0 := unpackSegFlags(seg0Flags)
	if !f0.Present || f0.Type != segmentStackPage {
		t.Fatalf("expected stack segment Present/stack-type, got Present=%v Type=%d", f0.Present, f0.Type)
	}

	// The last segment is the fault page, deliberately left unmapped.
	lastOff := headerSize + segmentSize*maxStackPages
	lastFlags := binary.LittleEndian.Uint32(buf[lastOff+24 : lastOff+28])
	fLast := unpackSegFlags(lastFlags)
	if fLast.Present {
		t.Fatal("expected fault segment to be marked absent (unmapped page)")
	}
	if fLast.Type != segmentFaultPage {
		t.Fatalf("expected fault segment Type=%d, got %d", segmentFaultPage, fLast.Type)
	}
}

func TestSanitizeNameReplacesUnsafeCharacters(t *testing.T) {
	if got := sanitizeName("weird name!"); got != "weird_name_" {
		t.Fatalf("expected sanitized name, got %q", got)
	}
	if got := sanitizeName(""); got != "unknown" {
		t.Fatalf("expected fallback for empty name, got %q", got)
	}
}
