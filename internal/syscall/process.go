package syscall

import (
	"encoding/binary"

	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// process implements CallProcess, grounded on original_source's
// process/getpid.cpp, getppid.cpp, and waitpid.cpp.
func (d *Dispatcher) process(f *trap.SyscallFrame) {
	switch abi.ProcessOp(f.Args[0]) {
	case abi.ProcessGetPID:
		f.Return(int64(f.Task.PID))
	case abi.ProcessGetPPID:
		f.Return(int64(f.Task.ParentPID))
	case abi.ProcessWaitPID:
		d.waitPID(f)
	default:
		f.ReturnError(int64(abi.EINVAL))
	}
}

// waitPID implements waitpid(pid, *status). Args are (op, pid,
// statusPtr). If the child is still running, WaitPID blocks the
// caller and reports blocked=true; per internal/sched's documented
// convention, the caller is expected to re-invoke the same syscall
// once woken, so this returns EINTR to signal "retry", matching the
// spin/retry convention §4.H already accepts for epoll_pwait.
//
// An unknown pid or one already reaped is the one boundary case §8
// spells out as a raw literal rather than an errno name ("waitpid(pid)
// for an unknown PID → -1"), matching original_source's own
// waitpid.cpp, which returns the literal -1 rather than a negated
// errno here. internal/sched.WaitPID still signals this case with
// ESRCH internally (it's the only caller of that return path), but
// the boundary reports the bare sentinel instead of ESRCH's negation.
func (d *Dispatcher) waitPID(f *trap.SyscallFrame) {
	pid := task.PID(f.Args[1])
	statusPtr := uintptr(f.Args[2])

	status, errno, blocked := d.Sched.WaitPID(f.Task, pid)
	if blocked {
		f.ReturnError(int64(abi.EINTR))
		return
	}
	if errno == abi.ESRCH {
		f.Return(-1)
		return
	}
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}

	if statusPtr != 0 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(status))
		if err := f.Task.AddrSpace.CopyToUser(statusPtr, buf[:]); err != nil {
			f.ReturnError(int64(abi.EFAULT))
			return
		}
	}
	f.Return(int64(pid))
}
