package sched

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// Exit implements §4.D's termination protocol steps 1–3: the task
// records has_exited/exit_status, wakes every registered awaiter
// whose WaitChildPID matches, and becomes a zombie retaining its
// address space, kernel stack, and fd table. The wait queue it wakes
// from is the PID-keyed variant mentioned in §4.I ("waitpid uses a
// PID-keyed variant but the mechanism is identical" to futex buckets).
func (s *Scheduler) Exit(t *task.Task, status int32) {
	c := s.cpus[t.CPU]
	restore := c.lock.IRQSave()
	if c.running == t {
		c.running = nil
	} else {
		c.heap.Remove(t)
	}
	restore()

	t.HasExited = true
	t.ExitStatus = status
	t.State = task.Zombie

	for {
		w := s.childWaitQueue.popMatching(t.PID)
		if w == nil {
			break
		}
		s.requeue(w)
	}
}

// WaitPID implements §4.D step 4 and the blocking half of §4.I's
// PID-keyed wait-queue variant. If the child has already exited and
// not yet been reaped, it completes immediately: status is returned
// and the child moves to the dead list with a recorded death-epoch
// (step 4), pending epoch-safe reclamation (step 5, §4.E).
//
// If the child is still running, WaitPID registers parent on the
// PID-keyed wait queue and reports blocked=true; the caller is
// expected to re-invoke WaitPID once parent has been woken (the
// deferred-switch resume point — see DESIGN.md's note on this choice,
// consistent with §4.H's own accepted spin/retry convention for
// epoll_pwait).
//
// An unknown PID, or a PID already reaped by a prior call, reports
// ESRCH here; internal/syscall's waitpid handler is the sole caller of
// this path and maps it to a raw -1 rather than ESRCH's negation at
// the syscall boundary, matching §8's "waitpid(pid) for an unknown
// PID → -1" (the one boundary case spelled out as a literal rather
// than an errno name).
func (s *Scheduler) WaitPID(parent *task.Task, childPID task.PID) (status int32, errno abi.Errno, blocked bool) {
	child := s.arena.Lookup(childPID)
	if child == nil || child.ParentPID != parent.PID {
		return -1, abi.ESRCH, false
	}

	if child.HasExited {
		if child.WaitedOn {
			return -1, abi.ESRCH, false
		}
		child.WaitedOn = true
		child.State = task.Dead
		child.DeathEpoch = s.epochs.Global()
		s.deadTasks.Append(child)
		return child.ExitStatus, 0, false
	}

	parent.WaitChildPID = childPID
	s.SleepOn(parent, &s.childWaitQueue, task.BlockChildPID)
	return 0, 0, true
}

// ReapReady returns every task on the dead list whose death epoch is
// now old enough to reclaim, removing them from the list. Callers
// feed the result to the task arena's Reclaim and to the heap/virt
// layers that own the task's kernel stack and address space.
func (s *Scheduler) ReapReady() []*task.Task {
	restore := s.lock.IRQSave()
	defer restore()

	var ready []*task.Task
	var rest TaskList
	for {
		t := s.deadTasks.PopFront()
		if t == nil {
			break
		}
		if s.epochs.CanReclaim(t.DeathEpoch) {
			ready = append(ready, t)
		} else {
			rest.Append(t)
		}
	}
	s.deadTasks = rest
	return ready
}
