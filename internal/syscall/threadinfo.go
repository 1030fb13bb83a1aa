package syscall

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// threadInfo implements CallThreadInfo. original_source's
// multiproc/threadInfo.cpp reports the running CPU's local APIC ID as
// the "current thread ID"; this port has no APIC singleton reachable
// from the syscall layer, so it reports the running task's CPU index
// instead, the same stand-in internal/sched already uses as the core
// identity everywhere else in this port.
func (d *Dispatcher) threadInfo(f *trap.SyscallFrame) {
	switch abi.ThreadInfoOp(f.Args[0]) {
	case abi.ThreadInfoCurrentThreadID:
		f.Return(int64(f.Task.CPU))
	case abi.ThreadInfoNativeThreadCount:
		f.Return(int64(d.Sched.NumCPU()))
	default:
		f.ReturnError(int64(abi.EINVAL))
	}
}
