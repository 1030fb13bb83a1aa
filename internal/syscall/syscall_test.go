package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/futex"
	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/sched"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
	"github.com/Pascu-Victor/wos-sub002/internal/vfs"
)

// fakeSink records every write sys_log makes, for assertions.
type fakeSink struct {
	writes [][]byte
}

func (s *fakeSink) Write(device abi.SysLogDevice, data []byte) error {
	s.writes = append(s.writes, append([]byte(nil), data...))
	return nil
}

// fakeClock advances by a fixed step every time it's read, so a
// nanosleep loop terminates deterministically without a real timer.
type fakeClock struct {
	now  int64
	step int64
}

func (c *fakeClock) NowMicros() int64 {
	v := c.now
	c.now += c.step
	return v
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *task.Task) {
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

	self := s.Spawn(0, "init", 100)
	self.AddrSpace = as

	d := NewDispatcher(s, futex.New(s), &fakeSink{}, &fakeClock{step: 1000})
	return d, self
}

// mapUserPage maps a single fresh, writable, user-accessible page at
// vaddr in t's address space, for tests that need a scratch buffer.
func mapUserPage(tb *testing.T, as *virt.AddressSpace, vaddr uintptr) {
	tb.Helper()
	frames := virt.NewHostFrameSource()
	frame, ok := frames.AllocFrame()
	if !ok {
		tb.Fatal("out of frames")
	}
	if err := as.Map(vaddr, frame, virt.FlagPresent|virt.FlagWrite|virt.FlagUser); err != nil {
		tb.Fatalf("Map: %v", err)
	}
}

const scratchAddr = 0x0000_7000_0000_0000

func TestSysLogWritesThroughSink(t *testing.T) {
	d, self := newTestDispatcher(t)
	mapUserPage(t, self.AddrSpace, scratchAddr)
	self.AddrSpace.CopyToUser(scratchAddr, []byte("hello"))

	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallSysLog),
		Args: [6]uint64{
			uint64(abi.SysLogLog), uint64(abi.SysLogDeviceSerial), uint64(scratchAddr), 5,
		},
	}
	d.Dispatch(f)
	if f.RetVal != 5 {
		t.Fatalf("expected RetVal=5, got %d", f.RetVal)
	}
	sink := d.Sink.(*fakeSink)
	if len(sink.writes) != 1 || string(sink.writes[0]) != "hello" {
		t.Fatalf("unexpected sink writes: %v", sink.writes)
	}
}

func TestSysLogInvalidDeviceIsEINVAL(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallSysLog),
		Args:    [6]uint64{uint64(abi.SysLogLog), 99, 0, 0},
	}
	d.Dispatch(f)
	if f.RetVal != abi.EINVAL.Negated() {
		t.Fatalf("expected -EINVAL, got %d", f.RetVal)
	}
}

func TestThreadInfoReportsCPUAndCount(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallThreadInfo),
		Args:    [6]uint64{uint64(abi.ThreadInfoNativeThreadCount)},
	}
	d.Dispatch(f)
	if f.RetVal != 1 {
		t.Fatalf("expected NumCPU()=1, got %d", f.RetVal)
	}
}

func TestProcessGetPIDAndGetPPID(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallProcess), Args: [6]uint64{uint64(abi.ProcessGetPID)}}
	d.Dispatch(f)
	if f.RetVal != int64(self.PID) {
		t.Fatalf("expected pid %d, got %d", self.PID, f.RetVal)
	}

	f2 := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallProcess), Args: [6]uint64{uint64(abi.ProcessGetPPID)}}
	d.Dispatch(f2)
	if f2.RetVal != int64(self.ParentPID) {
		t.Fatalf("expected ppid %d, got %d", self.ParentPID, f2.RetVal)
	}
}

func TestWaitPIDUnknownChildReturnsRawMinusOne(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallProcess),
		Args:    [6]uint64{uint64(abi.ProcessWaitPID), 9999, 0},
	}
	d.Dispatch(f)
	if f.RetVal != -1 {
		t.Fatalf("expected raw -1 (not a negated errno), got %d", f.RetVal)
	}
}

func TestWaitPIDBlocksThenExitCompletesIt(t *testing.T) {
	d, parent := newTestDispatcher(t)
	mapUserPage(t, parent.AddrSpace, scratchAddr)
	child := d.Sched.Spawn(parent.PID, "child", 100)

	f := &trap.SyscallFrame{
		Task:    parent,
		CallNum: uint64(abi.CallProcess),
		Args:    [6]uint64{uint64(abi.ProcessWaitPID), uint64(child.PID), uint64(scratchAddr)},
	}
	d.Dispatch(f)
	if f.RetVal != abi.EINTR.Negated() {
		t.Fatalf("expected EINTR (retry) while child runs, got %d", f.RetVal)
	}

	d.Sched.Exit(child, 7)

	f2 := &trap.SyscallFrame{
		Task:    parent,
		CallNum: uint64(abi.CallProcess),
		Args:    [6]uint64{uint64(abi.ProcessWaitPID), uint64(child.PID), uint64(scratchAddr)},
	}
	d.Dispatch(f2)
	if f2.RetVal != int64(child.PID) {
		t.Fatalf("expected reaped pid %d, got %d", child.PID, f2.RetVal)
	}

	var status [4]byte
	if err := parent.AddrSpace.CopyFromUser(status[:], scratchAddr); err != nil {
		t.Fatalf("CopyFromUser status: %v", err)
	}
	got := int32(binary.LittleEndian.Uint32(status[:]))
	if got != 7 {
		t.Fatalf("expected exit status 7 written out, got %v", got)
	}
}

func TestFutexWaitThenWakeViaSyscalls(t *testing.T) {
	d, self := newTestDispatcher(t)
	mapUserPage(t, self.AddrSpace, scratchAddr)

	waitFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallFutex),
		Args:    [6]uint64{uint64(abi.FutexWait), scratchAddr, 0},
	}
	d.Dispatch(waitFrame)
	if self.State != task.Waiting {
		t.Fatalf("expected task blocked on futex, got state=%v", self.State)
	}
	if !self.DeferredSwitch {
		t.Fatal("expected DeferredSwitch set so the trap return path switches away")
	}
	if waitFrame.RetVal != -int64(abi.EINTR) {
		t.Fatalf("expected EINTR on the blocking call (retry convention), got %d", waitFrame.RetVal)
	}

	wakeFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallFutex),
		Args:    [6]uint64{uint64(abi.FutexWake), scratchAddr, 1},
	}
	d.Dispatch(wakeFrame)
	if wakeFrame.RetVal != 1 {
		t.Fatalf("expected 1 woken, got %d", wakeFrame.RetVal)
	}
	if self.State != task.Runnable {
		t.Fatalf("expected Runnable after wake, got %v", self.State)
	}
}

// TestFutexWaitTimeoutReportsETIMEDOUTOnRetry drives futex_wait's
// timeout argument (Args[3]) end to end through the dispatcher: the
// blocking call honors the deadline, a timer-interrupt-driven
// ExpireTimeouts sweep force-wakes it, and the userspace-style retry
// of the same syscall gets back ETIMEDOUT rather than re-blocking.
func TestFutexWaitTimeoutReportsETIMEDOUTOnRetry(t *testing.T) {
	d, self := newTestDispatcher(t)
	mapUserPage(t, self.AddrSpace, scratchAddr)
	clock := &fakeClock{now: 5_000_000, step: 0}
	d.Clock = clock

	const timeoutUs = 200
	waitFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallFutex),
		Args:    [6]uint64{uint64(abi.FutexWait), scratchAddr, 0, timeoutUs},
	}
	d.Dispatch(waitFrame)
	if self.State != task.Waiting {
		t.Fatalf("expected task blocked on futex, got state=%v", self.State)
	}
	if waitFrame.RetVal != -int64(abi.EINTR) {
		t.Fatalf("expected EINTR on the blocking call, got %d", waitFrame.RetVal)
	}

	// Timer interrupt fires after the deadline has passed.
	clock.now += timeoutUs
	if n := d.Futex.ExpireTimeouts(clock.NowMicros()); n != 1 {
		t.Fatalf("expected 1 task expired, got %d", n)
	}
	if self.State != task.Runnable {
		t.Fatalf("expected Runnable after timeout sweep, got %v", self.State)
	}

	retryFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallFutex),
		Args:    [6]uint64{uint64(abi.FutexWait), scratchAddr, 0, timeoutUs},
	}
	d.Dispatch(retryFrame)
	if retryFrame.RetVal != -int64(abi.ETIMEDOUT) {
		t.Fatalf("expected ETIMEDOUT on retry, got %d", retryFrame.RetVal)
	}
}

func TestAnonAllocateThenFreeIsIdempotentOverSameFixedRange(t *testing.T) {
	d, self := newTestDispatcher(t)
	const fixedAddr = 0x0000_0020_0000_0000
	const size = 3 * pageSize4K

	allocate := func() int64 {
		f := &trap.SyscallFrame{
			Task:    self,
			CallNum: uint64(abi.CallVMem),
			Args: [6]uint64{
				uint64(abi.VMemAnonAllocate), size, abi.ProtRead | abi.ProtWrite, abi.MapFixed | abi.MapAnonymous, fixedAddr,
			},
		}
		d.Dispatch(f)
		return f.RetVal
	}

	if v := allocate(); v != int64(fixedAddr) {
		t.Fatalf("expected fixed address %#x back, got %#x", fixedAddr, v)
	}
	for p := uintptr(fixedAddr); p < fixedAddr+size; p += pageSize4K {
		if !self.AddrSpace.IsMapped(p) {
			t.Fatalf("expected %#x mapped after first mmap", p)
		}
	}

	// Remapping the same fixed range must succeed again rather than
	// erroring on "already mapped".
	if v := allocate(); v != int64(fixedAddr) {
		t.Fatalf("expected idempotent remap to the same address, got %#x", v)
	}

	freeFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVMem),
		Args:    [6]uint64{uint64(abi.VMemAnonFree), fixedAddr, size},
	}
	d.Dispatch(freeFrame)
	if freeFrame.RetVal != 0 {
		t.Fatalf("expected anon_free to succeed, got %d", freeFrame.RetVal)
	}
	for p := uintptr(fixedAddr); p < fixedAddr+size; p += pageSize4K {
		if self.AddrSpace.IsMapped(p) {
			t.Fatalf("expected %#x unmapped after anon_free", p)
		}
	}

	// Freeing an already-free range is tolerated, not an error.
	d.Dispatch(freeFrame)
	if freeFrame.RetVal != 0 {
		t.Fatalf("expected re-free of an already-free range to succeed, got %d", freeFrame.RetVal)
	}
}

func TestAnonAllocateZeroSizeIsEINVAL(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVMem),
		Args:    [6]uint64{uint64(abi.VMemAnonAllocate), 0, abi.ProtRead, abi.MapAnonymous, 0},
	}
	d.Dispatch(f)
	if f.RetVal != abi.EINVAL.Negated() {
		t.Fatalf("expected -EINVAL, got %d", f.RetVal)
	}
}

func TestAnonAllocateOversizeIsENOMEM(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVMem),
		Args:    [6]uint64{uint64(abi.VMemAnonAllocate), uint64(userHalfLimit), abi.ProtRead, abi.MapAnonymous, 0},
	}
	d.Dispatch(f)
	if f.RetVal != abi.ENOMEM.Negated() {
		t.Fatalf("expected -ENOMEM, got %d", f.RetVal)
	}
}

func TestAnonAllocateNonFixedPicksDistinctRanges(t *testing.T) {
	d, self := newTestDispatcher(t)
	allocate := func() int64 {
		f := &trap.SyscallFrame{
			Task:    self,
			CallNum: uint64(abi.CallVMem),
			Args:    [6]uint64{uint64(abi.VMemAnonAllocate), pageSize4K, abi.ProtRead | abi.ProtWrite, abi.MapAnonymous, 0},
		}
		d.Dispatch(f)
		return f.RetVal
	}
	first := allocate()
	second := allocate()
	if first < 0 || second < 0 {
		t.Fatalf("expected two successful allocations, got %d and %d", first, second)
	}
	if first == second {
		t.Fatalf("expected distinct ranges, both landed at %#x", first)
	}
}

func TestEpollReadinessScenarioEndToEnd(t *testing.T) {
	d, self := newTestDispatcher(t)
	mapUserPage(t, self.AddrSpace, scratchAddr)

	epollCreate := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallVFS), Args: [6]uint64{uint64(abi.VFSEpollCreate)}}
	d.Dispatch(epollCreate)
	epfd := int(epollCreate.RetVal)

	pipeFrame := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallVFS), Args: [6]uint64{uint64(abi.VFSPipe), scratchAddr}}
	d.Dispatch(pipeFrame)
	if pipeFrame.RetVal != 0 {
		t.Fatalf("pipe failed: %d", pipeFrame.RetVal)
	}
	var fdsBuf [8]byte
	self.AddrSpace.CopyFromUser(fdsBuf[:], scratchAddr)
	rfd := int(fdsBuf[0]) | int(fdsBuf[1])<<8 | int(fdsBuf[2])<<16 | int(fdsBuf[3])<<24
	wfd := int(fdsBuf[4]) | int(fdsBuf[5])<<8 | int(fdsBuf[6])<<16 | int(fdsBuf[7])<<24

	const eventPtr = scratchAddr + 64
	wireEvent := encodeEpollEvent(vfs.EpollEvent{Events: vfs.EpollIn, Data: 77})
	self.AddrSpace.CopyToUser(eventPtr, wireEvent)

	ctlFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVFS),
		Args:    [6]uint64{uint64(abi.VFSEpollCtl), uint64(epfd), uint64(vfs.EpollCtlAdd), uint64(rfd), eventPtr},
	}
	d.Dispatch(ctlFrame)
	if ctlFrame.RetVal != 0 {
		t.Fatalf("epoll_ctl ADD failed: %d", ctlFrame.RetVal)
	}

	writeFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVFS),
		Args:    [6]uint64{uint64(abi.VFSWrite), uint64(wfd), scratchAddr, 4},
	}
	self.AddrSpace.CopyToUser(scratchAddr, []byte("ping"))
	d.Dispatch(writeFrame)
	if writeFrame.RetVal != 4 {
		t.Fatalf("pipe write failed: %d", writeFrame.RetVal)
	}

	const outPtr = scratchAddr + 256
	pwaitFrame := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallVFS),
		Args:    [6]uint64{uint64(abi.VFSEpollPwait), uint64(epfd), outPtr, 4, 100},
	}
	d.Dispatch(pwaitFrame)
	if pwaitFrame.RetVal != 1 {
		t.Fatalf("expected 1 ready event, got %d", pwaitFrame.RetVal)
	}

	var outBuf [epollEventWireSize]byte
	self.AddrSpace.CopyFromUser(outBuf[:], outPtr)
	got := decodeEpollEvent(outBuf[:])
	if got.Events&vfs.EpollIn == 0 || got.Data != 77 {
		t.Fatalf("unexpected event round-tripped: %+v", got)
	}
}

func TestNanosleepReturnsOnceClockAdvancesPastTarget(t *testing.T) {
	d, self := newTestDispatcher(t)
	mapUserPage(t, self.AddrSpace, scratchAddr)

	// tv_sec = 0, tv_nsec = 2000; fakeClock steps by 1000us per read,
	// so the requested 2us duration resolves after the first check.
	var req [16]byte
	binary.LittleEndian.PutUint64(req[0:8], 0)
	binary.LittleEndian.PutUint64(req[8:16], 2000)
	self.AddrSpace.CopyToUser(scratchAddr, req[:])

	f := &trap.SyscallFrame{
		Task:    self,
		CallNum: uint64(abi.CallTime),
		Args:    [6]uint64{uint64(abi.TimeNanosleep), scratchAddr},
	}
	d.Dispatch(f)
	if f.RetVal != 0 {
		t.Fatalf("expected nanosleep to return 0, got %d", f.RetVal)
	}
}

func TestUnimplementedVFSOpIsENOSYS(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallVFS), Args: [6]uint64{uint64(abi.VFSMount)}}
	d.Dispatch(f)
	if f.RetVal != abi.ENOSYS.Negated() {
		t.Fatalf("expected -ENOSYS, got %d", f.RetVal)
	}
}

func TestNetClusterIsAlwaysENOSYS(t *testing.T) {
	d, self := newTestDispatcher(t)
	f := &trap.SyscallFrame{Task: self, CallNum: uint64(abi.CallNet)}
	d.Dispatch(f)
	if f.RetVal != abi.ENOSYS.Negated() {
		t.Fatalf("expected -ENOSYS, got %d", f.RetVal)
	}
}
