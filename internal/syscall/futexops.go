package syscall

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// futexOp implements CallFutex, forwarding directly to internal/futex.
//
// Args for FutexWait: (op, addr, expected, timeoutUs). timeoutUs is a
// relative microsecond timeout (0 means block indefinitely), per §4.I.
// A successful call that actually blocks leaves Task.DeferredSwitch
// set (internal/futex's Wait calls through to Scheduler.SleepOn), so
// the trap entry stub performs the switch once Dispatch returns; per
// the same retry convention internal/sched.WaitPID's caller documents,
// a blocked call reports EINTR so userspace re-issues the syscall,
// at which point a task woken by the timeout sweep gets ETIMEDOUT
// instead of re-blocking (see futex.Table.Wait).
//
// Args for FutexWake: (op, addr, n).
func (d *Dispatcher) futexOp(f *trap.SyscallFrame) {
	switch abi.FutexOp(f.Args[0]) {
	case abi.FutexWait:
		d.futexWait(f)
	case abi.FutexWake:
		d.futexWake(f)
	default:
		f.ReturnError(int64(abi.EINVAL))
	}
}

func (d *Dispatcher) futexWait(f *trap.SyscallFrame) {
	addr := uintptr(f.Args[1])
	expected := uint32(f.Args[2])
	timeoutUs := int64(f.Args[3])

	now := d.Clock.NowMicros()
	errno, blocked := d.Futex.Wait(f.Task, f.Task.AddrSpace, addr, expected, now, timeoutUs)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	if blocked {
		f.ReturnError(int64(abi.EINTR))
		return
	}
	f.Return(0)
}

func (d *Dispatcher) futexWake(f *trap.SyscallFrame) {
	addr := uintptr(f.Args[1])
	n := int(f.Args[2])

	woken, errno := d.Futex.Wake(f.Task.AddrSpace, addr, n)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(int64(woken))
}
