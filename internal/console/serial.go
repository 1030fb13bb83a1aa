package console

import "github.com/Pascu-Victor/wos-sub002/internal/sys"

// serialBacklog caps how many bytes the serial sink retains, so a
// busy logger can't grow this without bound.
const serialBacklog = 64 * 1024

// SerialLog is sys_log's other device: a plain append-only byte log
// rather than a rendered grid, standing in for the UART a real serial
// device target would be. Kept on the standard library (a byte ring
// buffer) rather than borrowing a pack dependency, since nothing in
// the examples models a bare serial transport distinct from the
// framebuffer text console — there's no library concern to wire a
// third-party dependency into here beyond what internal/vfs's own
// ring buffer already demonstrates for pipes.
type SerialLog struct {
	lock sys.SpinLock
	buf  []byte
}

// NewSerialLog returns an empty serial log.
func NewSerialLog() *SerialLog { return &SerialLog{} }

// Append adds data to the log, dropping the oldest bytes once
// serialBacklog is exceeded.
func (s *SerialLog) Append(data []byte) {
	restore := s.lock.IRQSave()
	defer restore()
	s.buf = append(s.buf, data...)
	if len(s.buf) > serialBacklog {
		s.buf = s.buf[len(s.buf)-serialBacklog:]
	}
}

// Snapshot returns a copy of the log's current contents.
func (s *SerialLog) Snapshot() []byte {
	restore := s.lock.IRQSave()
	defer restore()
	return append([]byte(nil), s.buf...)
}
