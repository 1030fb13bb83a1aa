package sched

import "github.com/Pascu-Victor/wos-sub002/internal/task"

// TaskList is an intrusive singly linked list threaded through each
// task's WaitNext pointer, used for the Scheduler's child-wait queue
// and dead list and for each futex bucket's waiters. None of these
// lists is per-CPU.
type TaskList struct {
	head *task.Task
	tail *task.Task
	n    int
}

func (l *TaskList) Len() int { return l.n }

// Append adds t to the tail of the list.
func (l *TaskList) Append(t *task.Task) {
	t.WaitNext = nil
	if l.tail == nil {
		l.head = t
		l.tail = t
	} else {
		l.tail.WaitNext = t
		l.tail = t
	}
	l.n++
}

// PopFront removes and returns the head of the list, or nil if empty.
func (l *TaskList) PopFront() *task.Task {
	if l.head == nil {
		return nil
	}
	t := l.head
	l.head = t.WaitNext
	if l.head == nil {
		l.tail = nil
	}
	t.WaitNext = nil
	l.n--
	return t
}

// Remove detaches t from the list if present.
func (l *TaskList) Remove(t *task.Task) bool {
	var prev *task.Task
	for cur := l.head; cur != nil; cur = cur.WaitNext {
		if cur == t {
			if prev == nil {
				l.head = cur.WaitNext
			} else {
				prev.WaitNext = cur.WaitNext
			}
			if cur == l.tail {
				l.tail = prev
			}
			cur.WaitNext = nil
			l.n--
			return true
		}
		prev = cur
	}
	return false
}

// FindByPid scans the list for a task with the given PID, used by
// waitpid's PID-keyed wait queue variant, per §4.I "waitpid uses a
// PID-keyed variant but the mechanism is identical".
func (l *TaskList) FindByPid(pid task.PID) *task.Task {
	for cur := l.head; cur != nil; cur = cur.WaitNext {
		if cur.PID == pid {
			return cur
		}
	}
	return nil
}

// popMatching removes and returns the first task blocked waiting on
// childPID (matched via WaitChildPID), or nil if none is waiting on
// it.
func (l *TaskList) popMatching(childPID task.PID) *task.Task {
	for cur := l.head; cur != nil; cur = cur.WaitNext {
		if cur.WaitChildPID == childPID {
			l.Remove(cur)
			return cur
		}
	}
	return nil
}

// Drain removes and returns up to max tasks from the front of the
// list, used by wake_one/wake_all/futex_wake's bounded-n variant.
func (l *TaskList) Drain(max int) []*task.Task {
	var out []*task.Task
	for i := 0; i < max; i++ {
		t := l.PopFront()
		if t == nil {
			break
		}
		out = append(out, t)
	}
	return out
}
