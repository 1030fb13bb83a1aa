package vfs

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// Read, Write, Close, and Lseek are the generic per-fd operations
// §4.H describes: "the VFS only owns the per-task descriptor table";
// path resolution and the actual data path are delegated to whatever
// driver installed the File, through its FileOperations table. A nil
// hook is ENOSYS, per §4.H "absent hooks ... return ENOSYS or the
// equivalent."
func Read(fds *task.FDTable, fd int, buf []byte) (int, abi.Errno) {
	f := fds.Get(fd)
	if f == nil {
		return 0, abi.EBADF
	}
	if f.Fops == nil || f.Fops.Read == nil {
		return 0, abi.ENOSYS
	}
	n, err := f.Fops.Read(f, buf)
	if err != nil {
		return 0, abi.EIO
	}
	return n, 0
}

func Write(fds *task.FDTable, fd int, buf []byte) (int, abi.Errno) {
	f := fds.Get(fd)
	if f == nil {
		return 0, abi.EBADF
	}
	if f.Fops == nil || f.Fops.Write == nil {
		return 0, abi.ENOSYS
	}
	n, err := f.Fops.Write(f, buf)
	if err != nil {
		return 0, abi.EIO
	}
	return n, 0
}

func Close(fds *task.FDTable, fd int) abi.Errno {
	return fds.Close(fd)
}

// Lseek whence values, matching the POSIX SEEK_* numbering.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

func Lseek(fds *task.FDTable, fd int, offset int64, whence int) (int64, abi.Errno) {
	f := fds.Get(fd)
	if f == nil {
		return -1, abi.EBADF
	}
	if f.Fops == nil || f.Fops.Lseek == nil {
		return -1, abi.ENOSYS
	}
	pos, err := f.Fops.Lseek(f, offset, whence)
	if err != nil {
		return -1, abi.EINVAL
	}
	return pos, 0
}

// Dup and Dup2 forward directly to the owning FDTable, per §3 "dup
// ... also bumps the refcount."
func Dup(fds *task.FDTable, oldFd int) (int, abi.Errno) {
	return fds.Dup(oldFd)
}

func Dup2(fds *task.FDTable, oldFd, newFd int) abi.Errno {
	return fds.Dup2(oldFd, newFd)
}
