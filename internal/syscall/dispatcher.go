// Package syscall implements the syscall-facing dispatch table §4.G
// describes: one handler per (CallNumber, sub-op) pair, each validating
// its user pointers through internal/mm/virt before touching them and
// returning results through the trap.SyscallFrame convention (§6:
// non-negative success, negated errno on failure). Grounded on
// original_source's syscalls_impl/ tree, one file per cluster matching
// its directory layout there.
package syscall

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/futex"
	"github.com/Pascu-Victor/wos-sub002/internal/sched"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
	"github.com/Pascu-Victor/wos-sub002/internal/vfs"
)

// Sink is the write target sys_log's handlers flush to; implemented
// elsewhere by the console driver. Kept as an interface here so this
// package doesn't depend on a concrete text-rendering stack.
type Sink interface {
	Write(device abi.SysLogDevice, data []byte) error
}

// Clock is the wall-clock source time's handlers read, injected since
// there's no real TSC/HPET to read outside the hardware this targets.
type Clock interface {
	NowMicros() int64
}

// Dispatcher is the whole syscall surface's shared state: the
// scheduler and futex table every cluster routes into, plus the two
// collaborators (log sink, clock) that have no other natural home.
type Dispatcher struct {
	Sched *sched.Scheduler
	Futex *futex.Table
	Sink  Sink
	Clock Clock
	Tmpfs *vfs.Tmpfs

	// mmapBase is the lowest address non-fixed anonymous mappings are
	// searched from, per §4.G's vmem cluster.
	mmapBase uintptr
}

// NewDispatcher wires a dispatcher bound to the given scheduler,
// futex table, and collaborators.
func NewDispatcher(s *sched.Scheduler, f *futex.Table, sink Sink, clock Clock) *Dispatcher {
	return &Dispatcher{
		Sched:    s,
		Futex:    f,
		Sink:     sink,
		Clock:    clock,
		Tmpfs:    vfs.NewTmpfs(),
		mmapBase: 0x0000_0010_0000_0000,
	}
}

// Dispatch implements trap.DispatchFunc, routing f by call number to
// the cluster it belongs to. Unknown call numbers are ENOSYS, per §4.G
// "absent hooks ... return ENOSYS or the equivalent."
func (d *Dispatcher) Dispatch(f *trap.SyscallFrame) {
	switch abi.CallNumber(f.CallNum) {
	case abi.CallSysLog:
		d.sysLog(f)
	case abi.CallFutex:
		d.futexOp(f)
	case abi.CallThreadInfo:
		d.threadInfo(f)
	case abi.CallProcess:
		d.process(f)
	case abi.CallTime:
		d.time(f)
	case abi.CallVFS:
		d.vfsOp(f)
	case abi.CallVMem:
		d.vmem(f)
	case abi.CallNet:
		// net: placeholder, not in core scope, per §4.G.
		f.ReturnError(int64(abi.ENOSYS))
	default:
		f.ReturnError(int64(abi.ENOSYS))
	}
}
