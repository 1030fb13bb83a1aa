// Package futex implements the kernel's fast userspace mutex
// primitive (§4.I): a fixed, power-of-two table of hash buckets keyed
// on the physical address a futex word translates to, each guarded by
// its own spinlock. It is also the canonical wait-queue building
// block behind waitpid's PID-keyed variant in internal/sched.
// Grounded on original_source's syscalls_impl/futex/futex.{hpp,cpp}.
package futex

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/mm/virt"
	"github.com/Pascu-Victor/wos-sub002/internal/sched"
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// bucketCount is the fixed, power-of-two hash-bucket count, per §4.I
// "hash-bucket count is fixed and power-of-two".
const bucketCount = 256

type bucket struct {
	lock  sys.SpinLock
	queue sched.TaskList
}

// Table is the futex subsystem's whole state: bucketCount buckets,
// each an independent wait queue keyed by the physical address a
// futex word resolves to, so different virtual aliases of the same
// page collide on the same bucket, per §4.I step 1.
type Table struct {
	buckets [bucketCount]*bucket
	sched   *sched.Scheduler
}

// New builds a futex table bound to s, whose SleepOn and Requeue it uses
// to actually block and reschedule tasks.
func New(s *sched.Scheduler) *Table {
	t := &Table{sched: s}
	for i := range t.buckets {
		t.buckets[i] = &bucket{}
	}
	return t
}

func hashKey(key uintptr) uint64 {
	// Physical addresses are page-granular at the low end and
	// concentrated in a handful of zones; fold the address down with
	// a multiplicative mix before masking so nearby pages don't pile
	// into the same bucket.
	v := uint64(key)
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	return v & (bucketCount - 1)
}

func (t *Table) bucketFor(key uintptr) *bucket {
	return t.buckets[hashKey(key)]
}

// Wait implements futex_wait(addr, expected, timeout), per §4.I:
// translate addr to its physical key, atomically compare the current
// value against expected, and either fail fast with EAGAIN or block
// on the key's bucket with deferred_switch set. blocked reports
// whether the caller must now actually switch away.
//
// now is the caller's current wall-clock microsecond reading;
// timeoutUs is a relative microsecond timeout (0 means block
// indefinitely). When nonzero, self.Deadline is set to now+timeoutUs
// before enqueuing, so the periodic ExpireTimeouts sweep can force-wake
// this task once the deadline passes.
//
// Per the kernel's retry convention for blocking syscalls (the same
// one internal/sched.WaitPID's caller uses), a task woken by the
// timeout sweep rather than an explicit Wake re-enters Wait with
// TimedOut set; Wait reports that immediately as ETIMEDOUT instead of
// re-checking the word and re-blocking.
func (t *Table) Wait(self *task.Task, as *virt.AddressSpace, addr uintptr, expected uint32, now int64, timeoutUs int64) (errno abi.Errno, blocked bool) {
	if self.TimedOut {
		self.TimedOut = false
		return abi.ETIMEDOUT, false
	}

	key, err := as.PhysicalKey(addr)
	if err != nil {
		return abi.EFAULT, false
	}
	word, err := as.DerefUint32(addr)
	if err != nil {
		return abi.EFAULT, false
	}

	b := t.bucketFor(key)
	restore := b.lock.IRQSave()
	if *word != expected {
		restore()
		return abi.EAGAIN, false
	}
	self.FutexKey = key
	if timeoutUs > 0 {
		self.Deadline = now + timeoutUs
	} else {
		self.Deadline = 0
	}
	restore()

	// SleepOn detaches self from its CPU's run-heap, marks it
	// Waiting, and sets deferred_switch, per §4.E; it appends to the
	// bucket's queue itself, so the compare above and the enqueue
	// below are not one atomic step, but no other task can observe or
	// mutate self's scheduling state between them.
	t.sched.SleepOn(self, &b.queue, task.BlockFutex)
	return 0, true
}

// ExpireTimeouts force-wakes every task across all buckets whose
// deadline has passed as of now, marking each TimedOut so its next
// Wait call reports ETIMEDOUT instead of re-blocking. Intended to be
// driven off the timer interrupt path alongside Scheduler.Tick, per
// §5's "expiry causes the task to be rescheduled with the appropriate
// error." Returns the number of tasks expired.
func (t *Table) ExpireTimeouts(now int64) int {
	expired := 0
	for _, b := range t.buckets {
		restore := b.lock.IRQSave()
		woken := drainExpired(&b.queue, now)
		restore()

		for _, w := range woken {
			w.TimedOut = true
			w.Deadline = 0
			t.sched.Requeue(w)
			expired++
		}
	}
	return expired
}

// drainExpired removes every task from q whose Deadline is nonzero
// and has passed as of now.
func drainExpired(q *sched.TaskList, now int64) []*task.Task {
	var expired []*task.Task
	var keep []*task.Task
	for {
		t := q.PopFront()
		if t == nil {
			break
		}
		if t.Deadline != 0 && now >= t.Deadline {
			expired = append(expired, t)
		} else {
			keep = append(keep, t)
		}
	}
	for _, t := range keep {
		q.Append(t)
	}
	return expired
}

// Wake implements futex_wake(addr, n), per §4.I: dequeue up to n
// tasks blocked on addr's physical key and reinsert them into their
// CPUs' run-heaps via the scheduler's normal wake path. Returns the
// count actually woken.
func (t *Table) Wake(as *virt.AddressSpace, addr uintptr, n int) (int, abi.Errno) {
	key, err := as.PhysicalKey(addr)
	if err != nil {
		return 0, abi.EFAULT
	}
	if n <= 0 {
		return 0, 0
	}

	b := t.bucketFor(key)
	restore := b.lock.IRQSave()
	woken := drainMatching(&b.queue, key, n)
	restore()

	for _, w := range woken {
		t.sched.Requeue(w)
	}
	return len(woken), 0
}

// drainMatching removes up to n tasks from q whose FutexKey equals
// key. A bucket can, in principle, hold tasks hashed in from a
// colliding key, so wake only touches entries that actually match.
func drainMatching(q *sched.TaskList, key uintptr, n int) []*task.Task {
	var matched []*task.Task
	var requeue []*task.Task
	for len(matched) < n {
		t := q.PopFront()
		if t == nil {
			break
		}
		if t.FutexKey == key {
			matched = append(matched, t)
		} else {
			requeue = append(requeue, t)
		}
	}
	for _, t := range requeue {
		q.Append(t)
	}
	return matched
}
