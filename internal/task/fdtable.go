package task

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
)

// MaxFds bounds the per-task descriptor table, returning EMFILE
// beyond it (§7 "resource" error class).
const MaxFds = 256

// FDTable is a per-task mapping from small non-negative integers to
// File handles, with a per-descriptor close-on-exec flag. One lock
// per task, per §5 "VFS descriptor table: one lock per task".
type FDTable struct {
	lock    sys.SpinLock
	files   [MaxFds]*File
	cloexec [MaxFds]bool
}

// NewFDTable returns an empty descriptor table.
func NewFDTable() *FDTable {
	return &FDTable{}
}

// Install places f at the lowest free descriptor, or returns EMFILE
// if the table is full.
func (t *FDTable) Install(f *File) (int, abi.Errno) {
	restore := t.lock.IRQSave()
	defer restore()

	for i := 0; i < MaxFds; i++ {
		if t.files[i] == nil {
			t.files[i] = f
			t.cloexec[i] = false
			return i, 0
		}
	}
	return -1, abi.EMFILE
}

// Get returns the File at fd, or nil if fd is out of range or unused.
func (t *FDTable) Get(fd int) *File {
	restore := t.lock.IRQSave()
	defer restore()
	if fd < 0 || fd >= MaxFds {
		return nil
	}
	return t.files[fd]
}

// Close detaches fd and closes the underlying File (dropping its
// refcount). Returns EBADF if fd is not open.
func (t *FDTable) Close(fd int) abi.Errno {
	restore := t.lock.IRQSave()
	if fd < 0 || fd >= MaxFds || t.files[fd] == nil {
		restore()
		return abi.EBADF
	}
	f := t.files[fd]
	t.files[fd] = nil
	t.cloexec[fd] = false
	restore()

	f.Close()
	return 0
}

// Dup installs a new descriptor referencing the same File as oldFd,
// bumping its refcount, per §3 "two descriptors can share a File only
// via a dup operation, which also bumps the refcount".
func (t *FDTable) Dup(oldFd int) (int, abi.Errno) {
	restore := t.lock.IRQSave()
	f := t.get(oldFd)
	restore()
	if f == nil {
		return -1, abi.EBADF
	}
	f.Ref()
	newFd, errno := t.Install(f)
	if errno != 0 {
		f.Close()
	}
	return newFd, errno
}

// Dup2 makes newFd reference the same File as oldFd, closing newFd's
// previous occupant if any.
func (t *FDTable) Dup2(oldFd, newFd int) abi.Errno {
	if newFd < 0 || newFd >= MaxFds {
		return abi.EBADF
	}
	restore := t.lock.IRQSave()
	f := t.get(oldFd)
	if f == nil {
		restore()
		return abi.EBADF
	}
	prev := t.files[newFd]
	f.Ref()
	t.files[newFd] = f
	t.cloexec[newFd] = false
	restore()

	if prev != nil {
		prev.Close()
	}
	return 0
}

// SetCloexec marks or clears the close-on-exec flag for fd.
func (t *FDTable) SetCloexec(fd int, on bool) abi.Errno {
	restore := t.lock.IRQSave()
	defer restore()
	if fd < 0 || fd >= MaxFds || t.files[fd] == nil {
		return abi.EBADF
	}
	t.cloexec[fd] = on
	return 0
}

// CloseOnExec closes every descriptor marked close-on-exec, called
// along the (currently unimplemented) exec path and by tests
// exercising the flag directly.
func (t *FDTable) CloseOnExec() {
	restore := t.lock.IRQSave()
	var toClose []*File
	for i := 0; i < MaxFds; i++ {
		if t.files[i] != nil && t.cloexec[i] {
			toClose = append(toClose, t.files[i])
			t.files[i] = nil
			t.cloexec[i] = false
		}
	}
	restore()

	for _, f := range toClose {
		f.Close()
	}
}

// get reads files[fd] without locking; callers must hold t.lock.
func (t *FDTable) get(fd int) *File {
	if fd < 0 || fd >= MaxFds {
		return nil
	}
	return t.files[fd]
}
