package trap

import (
	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// CPU exception vectors this kernel gives distinct policy to; the
// rest share the generic "coredump and kill, or panic in kernel
// mode" path, per §4.F.
const (
	VectorDivideError = 0
	VectorDebug       = 1
	VectorNMI         = 2
	VectorBreakpoint  = 3
	VectorOverflow    = 4
	VectorBoundRange  = 5
	VectorInvalidOp   = 6
	VectorDeviceNA    = 7
	VectorDoubleFault = 8
	VectorGPFault     = 13
	VectorPageFault   = 14
)

// Coredumper is the minimal hook internal/coredump satisfies, kept
// here as an interface so this package doesn't import the VFS stack.
type Coredumper interface {
	WriteCoredump(t *task.Task, vector int, faultAddr uintptr) error
}

// FaultPolicy wires page faults to the owning address space and every
// other exception to coredump-and-kill (user mode) or panic (kernel
// mode), per §4.F: "on any other CPU exception in user mode, the
// scheduler records a coredump (best-effort) and terminates the task;
// the same exception in kernel mode is a panic."
type FaultPolicy struct {
	Dump Coredumper // may be nil: coredump is best-effort
	Kill func(t *task.Task, status int32)
}

// HandlePageFault consults the task's address space and returns true
// if the fault was resolved (a mapping installed), false if fatal.
func (p *FaultPolicy) HandlePageFault(t *task.Task, addr uintptr, bits virt.FaultErrorBits) bool {
	outcome := t.AddrSpace.PageFault(addr, bits)
	if outcome == virt.FaultHandled {
		return true
	}
	p.handleFatal(t, VectorPageFault, addr, bits&virt.FaultUser != 0)
	return false
}

// HandleException runs the generic CPU-exception policy for any
// vector other than the page fault.
func (p *FaultPolicy) HandleException(t *task.Task, vector int, fromUser bool) {
	p.handleFatal(t, vector, 0, fromUser)
}

func (p *FaultPolicy) handleFatal(t *task.Task, vector int, addr uintptr, fromUser bool) {
	if !fromUser {
		panic("trap: unhandled exception in kernel mode")
	}
	if p.Dump != nil {
		// Best-effort: a coredump write failure does not block
		// termination, per §6 "a coredump may be written ... using a
		// documented header format" with no further obligation implied.
		_ = p.Dump.WriteCoredump(t, vector, addr)
	}
	if p.Kill != nil {
		p.Kill(t, -1)
	}
}
