package task

import "github.com/Pascu-Victor/wos-sub002/internal/sys"

// Arena is the sole owner of every Task, per §9 "Cyclic ownership":
// tasks are keyed by PID in this central arena, and every edge a
// scheduler, wait queue, or CPU structure holds (a *Task pointer or a
// PID) is non-owning.
type Arena struct {
	lock   sys.SpinLock
	byPID  map[PID]*Task
	nextID PID
}

// NewArena returns an empty task arena. PID 0 is never issued.
func NewArena() *Arena {
	return &Arena{byPID: make(map[PID]*Task), nextID: 1}
}

// New creates a task in the Runnable state, per §4.D "Task creation
// produces a task in the runnable state". Placement across CPUs is
// the scheduler's responsibility, not the arena's.
func (a *Arena) New(parent PID, name string, weight uint32) *Task {
	restore := a.lock.IRQSave()
	defer restore()

	pid := a.nextID
	a.nextID++

	t := &Task{
		PID:       pid,
		ParentPID: parent,
		Name:      name,
		State:     Runnable,
		Weight:    weight,
		HeapIndex: -1,
		Fds:       NewFDTable(),
	}
	a.byPID[pid] = t
	return t
}

// Lookup resolves a PID to its Task, or nil if unknown or already
// reclaimed.
func (a *Arena) Lookup(pid PID) *Task {
	restore := a.lock.IRQSave()
	defer restore()
	return a.byPID[pid]
}

// Reclaim removes pid from the arena, the final step of §4.D's
// termination protocol once epoch-based reclamation (§4.E) has
// cleared the quiescent interval. Panics if pid is not in the Dead
// state: reclaiming a live task would violate the ownership
// invariant.
func (a *Arena) Reclaim(pid PID) {
	restore := a.lock.IRQSave()
	defer restore()

	t, ok := a.byPID[pid]
	if !ok {
		return
	}
	if t.State != Dead {
		panic("task: reclaim of a non-dead task")
	}
	delete(a.byPID, pid)
}

// Count returns the number of live (non-reclaimed) tasks, for tests
// and diagnostics.
func (a *Arena) Count() int {
	restore := a.lock.IRQSave()
	defer restore()
	return len(a.byPID)
}
