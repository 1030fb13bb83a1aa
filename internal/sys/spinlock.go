// Package sys holds the low-level synchronization primitives that the
// rest of the kernel is built on top of: a single spinlock type, held
// with interrupts disabled, with a pause-hint backoff loop.
package sys

import (
	"sync/atomic"

	"github.com/Pascu-Victor/wos-sub002/internal/kasm"
)

// SpinLock is a ticketless test-and-set spinlock. It carries no
// ownership information and is not reentrant — acquiring it twice on
// the same CPU deadlocks, exactly like the original.
type SpinLock struct {
	locked atomic.Bool
}

// Lock spins until the lock is acquired, backing off with Pause while
// contended so the bus isn't hammered with CAS traffic.
func (s *SpinLock) Lock() {
	for s.locked.Swap(true) {
		for s.locked.Load() {
			kasm.Pause()
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is undefined,
// same as the original.
func (s *SpinLock) Unlock() {
	s.locked.Store(false)
}

// IRQSave disables interrupts, acquires the lock, and returns a
// restore function that unlocks and restores the prior interrupt-flag
// state in the right order. Every scheduler structure in §5 is
// guarded this way: "IRQs are disabled while scheduler locks are
// held." Restoring the saved flag (rather than unconditionally
// re-enabling) keeps this safe to call from a context that was
// already inside a cli'd region, such as an interrupt handler.
func (s *SpinLock) IRQSave() (restore func()) {
	wereEnabled := kasm.SaveFlagsCli()
	s.Lock()
	return func() {
		s.Unlock()
		kasm.RestoreFlags(wereEnabled)
	}
}
