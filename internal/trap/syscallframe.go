package trap

import "github.com/Pascu-Victor/wos-sub002/internal/task"

// SyscallFrame is what the entry stub materializes before dispatch:
// the call number, up to six arguments, and a slot for the return
// value, carried by reference so a deferred task switch can act on it
// after the handler returns, per §4.F "the frame is carried by
// reference so that a deferred task switch can act on it."
type SyscallFrame struct {
	Task    *task.Task
	CallNum uint64
	Args    [6]uint64
	RetVal  int64
}

// Return writes a non-negative result into the frame.
func (f *SyscallFrame) Return(v int64) { f.RetVal = v }

// ReturnError writes a negated POSIX-style error code into the frame,
// per §6 "negative return values encode errors as negated POSIX-style
// integers."
func (f *SyscallFrame) ReturnError(errno int64) { f.RetVal = -errno }

// DispatchFunc is the shape internal/syscall's table entries satisfy;
// kept here (rather than imported) so this package has no dependency
// on the syscall package, avoiding an import cycle since syscall
// depends on trap for the frame type.
type DispatchFunc func(f *SyscallFrame)

// EntryStub is the save-registers-then-dispatch sequence a real
// assembly trampoline performs before calling into Go: read the call
// number, build the frame, and hand off to dispatch. Exposed as a
// plain function (rather than hidden in assembly) so the hosted test
// suite can drive it directly. performSwitch is invoked iff the
// handler left DeferredSwitch set, implementing §4.E's "the syscall
// return path inspects the flag after restoring the frame and
// performs the switch there."
func EntryStub(t *task.Task, callNum uint64, args [6]uint64, dispatch DispatchFunc, performSwitch func()) int64 {
	f := &SyscallFrame{Task: t, CallNum: callNum, Args: args}
	dispatch(f)

	if t.DeferredSwitch {
		t.DeferredSwitch = false
		if performSwitch != nil {
			performSwitch()
		}
	}
	return f.RetVal
}
