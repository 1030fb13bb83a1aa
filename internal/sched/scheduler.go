package sched

import (
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// tickQuantum is the virtual-time advance applied to the running task
// on every timer interrupt; cmd/kernel's HandleTimerInterrupt calls
// Tick once per firing.
const tickQuantum = int64(1000)

// IPISender abstracts the local-APIC IPI send internal/trap provides,
// so this package stays hardware-free and testable. WakeCPU is a
// no-op if no sender is configured.
type IPISender interface {
	SendWakeIPI(cpu int)
}

// Scheduler owns every CPU's run-heap plus the child-wait queue, the
// dead list, and the epoch manager, per §4.E/§9 ("global mutable state ...
// encapsulate each as a single initialization-then-reference-free
// object"). Grounded on original_source's platform/sched/scheduler.cpp.
type Scheduler struct {
	cpus      []*CPU
	arena     *task.Arena
	epochs    *EpochManager
	ipi       IPISender
	lock           sys.SpinLock // guards placement counter and dead-list bookkeeping
	placement      int
	deadTasks      TaskList
	childWaitQueue TaskList
}

// New builds a scheduler for ncpu CPUs backed by arena. ipi may be
// nil in hosted tests, where WakeCPU becomes a no-op.
func New(ncpu int, arena *task.Arena, ipi IPISender) *Scheduler {
	s := &Scheduler{
		arena:  arena,
		epochs: NewEpochManager(ncpu),
		ipi:    ipi,
	}
	s.cpus = make([]*CPU, ncpu)
	for i := range s.cpus {
		s.cpus[i] = &CPU{ID: i}
	}
	return s
}

func (s *Scheduler) CPU(i int) *CPU { return s.cpus[i] }

func (s *Scheduler) NumCPU() int { return len(s.cpus) }

// Spawn creates a new task via the arena and places it on a CPU
// chosen by round-robin, per §4.D "initial placement: round-robin
// across CPUs".
func (s *Scheduler) Spawn(parent task.PID, name string, weight uint32) *task.Task {
	t := s.arena.New(parent, name, weight)

	restore := s.lock.IRQSave()
	cpuIdx := s.placement % len(s.cpus)
	s.placement++
	restore()

	c := s.cpus[cpuIdx]
	t.CPU = cpuIdx

	cRestore := c.lock.IRQSave()
	defer cRestore()
	t.VRuntime = c.avgVRuntime
	t.VDeadline = c.avgVRuntime
	c.heap.Push(t)
	return t
}

// Yield voluntarily relinquishes the CPU: the running task is pushed
// back onto its own heap after its vdeadline advances by one quantum,
// so it re-enters behind peers at the same weight, per §4.E
// "kern_yield(): voluntarily relinquish; re-enter heap at the tail."
func (s *Scheduler) Yield(cpuIdx int) {
	c := s.cpus[cpuIdx]
	restore := c.lock.IRQSave()
	defer restore()

	t := c.running
	if t == nil {
		return
	}
	advance(t, tickQuantum)
	t.State = task.Runnable
	c.heap.Push(t)
	c.running = nil
}

// Tick advances the running task's virtual time and preempts it if it
// is no longer the minimum-vdeadline eligible entry, per §4.E.
func (s *Scheduler) Tick(cpuIdx int) {
	c := s.cpus[cpuIdx]
	restore := c.lock.IRQSave()
	defer restore()

	if c.running != nil {
		advance(c.running, tickQuantum)
		c.avgVRuntime = c.running.VRuntime

		next := c.heap.Peek()
		if next != nil && next.VDeadline < c.running.VDeadline && c.eligible(next) {
			prev := c.running
			prev.State = task.Runnable
			c.heap.Push(prev)
			c.heap.Remove(next)
			next.State = task.Running
			next.HeapIndex = -1
			c.running = next
		}
		return
	}

	s.dispatch(c)
}

// dispatch picks the next eligible task off c's heap and marks it
// running; if the heap is empty it attempts a steal, per §4.E "when a
// CPU's heap is empty it attempts to steal". Caller must hold c.lock.
func (s *Scheduler) dispatch(c *CPU) {
	t := c.heap.PopEligible(c.avgVRuntime)
	if t == nil && c.heap.Len() == 0 {
		c.lock.Unlock()
		stolen := s.steal(c)
		c.lock.Lock()
		t = stolen
	}
	if t == nil {
		return
	}
	t.State = task.Running
	t.CPU = c.ID
	c.running = t
}

// steal finds the busiest peer CPU and takes its least-urgent
// (largest-vdeadline) task, locking both CPUs' heaps in cpu_id order
// to avoid deadlock, per §4.E.
func (s *Scheduler) steal(c *CPU) *task.Task {
	var busiest *CPU
	busiestLen := 0
	for _, peer := range s.cpus {
		if peer == c {
			continue
		}
		if peer.heap.Len() > busiestLen {
			busiest = peer
			busiestLen = peer.heap.Len()
		}
	}
	if busiest == nil || busiestLen == 0 {
		return nil
	}

	first, second := c, busiest
	if second.ID < first.ID {
		first, second = second, first
	}
	first.lock.Lock()
	second.lock.Lock()
	t := busiest.heap.PopLargestDeadline()
	second.lock.Unlock()
	first.lock.Unlock()
	return t
}

// SleepOn removes t from its CPU's heap, appends it to queue, marks
// it Waiting, and sets DeferredSwitch so the syscall return path
// performs the actual context switch, per §4.E. Per the invariant
// in §4.E, the caller must not return to userspace without this call
// or an equivalent wake-on-exit hook already in place.
func (s *Scheduler) SleepOn(t *task.Task, queue *TaskList, reason task.BlockReason) {
	c := s.cpus[t.CPU]
	restore := c.lock.IRQSave()
	if c.running == t {
		c.running = nil
	} else {
		c.heap.Remove(t)
	}
	restore()

	t.State = task.Waiting
	t.BlockReason = reason
	t.DeferredSwitch = true
	queue.Append(t)
}

// WakeOne detaches and reschedules the task at the head of queue,
// flooring its vruntime at the destination CPU's current
// avg_vruntime so long sleepers don't starve runnable peers, per
// §4.E. Returns false if queue was empty.
func (s *Scheduler) WakeOne(queue *TaskList) bool {
	t := queue.PopFront()
	if t == nil {
		return false
	}
	s.requeue(t)
	return true
}

// WakeAll detaches and reschedules every task on queue.
func (s *Scheduler) WakeAll(queue *TaskList) int {
	n := 0
	for {
		t := queue.PopFront()
		if t == nil {
			return n
		}
		s.requeue(t)
		n++
	}
}

// Requeue reschedules a task already detached from any wait queue by
// the caller (internal/futex filters a bucket by key before waking,
// so it cannot use WakeOne/WakeAll, which pop from the queue
// themselves). Behaves exactly like the tail of WakeOne.
func (s *Scheduler) Requeue(t *task.Task) {
	s.requeue(t)
}

func (s *Scheduler) requeue(t *task.Task) {
	c := s.cpus[t.CPU]
	restore := c.lock.IRQSave()
	if t.VRuntime < c.avgVRuntime {
		t.VRuntime = c.avgVRuntime
	}
	t.State = task.Runnable
	t.BlockReason = task.BlockNone
	pushed := c.heap.Push(t)
	restore()

	if pushed {
		s.WakeCPU(t.CPU)
	}
}

// WakeCPU issues a lightweight IPI forcing the target CPU out of hlt,
// per §4.E "wake_cpu(cpu)". A no-op when no IPISender is configured.
func (s *Scheduler) WakeCPU(cpu int) {
	if s.ipi != nil {
		s.ipi.SendWakeIPI(cpu)
	}
}

// Epochs exposes the scheduler's epoch manager for callers performing
// epoch-guarded dereferences (internal/futex, internal/vfs).
func (s *Scheduler) Epochs() *EpochManager { return s.epochs }

// Arena exposes the backing task arena.
func (s *Scheduler) Arena() *task.Arena { return s.arena }
