package sched

import (
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// baseWeight is the reference weight at which vruntime/vdeadline
// advance one-for-one with real time; they advance inversely
// proportional to weight. Spawn's caller chooses each task's weight.
const baseWeight = 100

// CPU holds one processor's scheduling state: its run-heap, its
// average vruntime, and the running task. Wait lists live on the
// Scheduler, not here. One lock per CPU's heap, per §5.
type CPU struct {
	ID          int
	lock        sys.SpinLock
	heap        RunHeap
	avgVRuntime int64
	running     *task.Task
}

// eligible implements §4.E's eligibility test: a task may be picked
// only once avg_vruntime(CPU) − task.vruntime ≥ 0.
func (c *CPU) eligible(t *task.Task) bool {
	return c.avgVRuntime-t.VRuntime >= 0
}

// advance applies one tick's worth of weighted virtual-time accrual
// to the running task: its vruntime and vdeadline advance in inverse
// proportion to its weight.
func advance(t *task.Task, quantum int64) {
	// Heavier weight means more real time per unit of virtual time, so
	// virtual time accrues inversely to weight. baseWeight is the
	// reference point at which one tick of real time equals one tick
	// of virtual time.
	delta := quantum * int64(baseWeight) / int64(t.Weight)
	t.VRuntime += delta
	t.VDeadline += delta
}
