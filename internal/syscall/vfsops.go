package syscall

import (
	"encoding/binary"

	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
	"github.com/Pascu-Victor/wos-sub002/internal/vfs"
)

// maxPathLen bounds a null-terminated path string read out of user
// memory one byte at a time.
const maxPathLen = 256

// vfsCreate is this ABI's O_CREAT bit, matching Linux's numbering
// since original_source's vfs layer commits to Linux-compatible open
// flags throughout.
const vfsCreate = 0x40

// epollEventWireSize is the on-the-wire size of a struct epoll_event
// as mlibc lays it out: a uint32 events field, 4 bytes of alignment
// padding, then a uint64 data field.
const epollEventWireSize = 16

// vfsOp implements CallVFS, routing the subset of §4.H's surface this
// core actually backs (open/read/write/close/lseek/dup/dup2/pipe and
// the epoll trio) to internal/vfs. Every other VFSOp is long-tail
// filesystem surface (mount, stat, symlink, rename, …) this core
// doesn't implement; per §4.G, an absent hook returns ENOSYS.
func (d *Dispatcher) vfsOp(f *trap.SyscallFrame) {
	switch abi.VFSOp(f.Args[0]) {
	case abi.VFSOpen:
		d.vfsOpen(f)
	case abi.VFSRead:
		d.vfsRead(f)
	case abi.VFSWrite:
		d.vfsWrite(f)
	case abi.VFSClose:
		errno := vfs.Close(f.Task.Fds, int(f.Args[1]))
		returnErrno(f, errno)
	case abi.VFSLseek:
		d.vfsLseek(f)
	case abi.VFSDup:
		d.vfsDup(f)
	case abi.VFSDup2:
		errno := vfs.Dup2(f.Task.Fds, int(f.Args[1]), int(f.Args[2]))
		returnErrno(f, errno)
	case abi.VFSPipe:
		d.vfsPipe(f)
	case abi.VFSEpollCreate:
		d.vfsEpollCreate(f)
	case abi.VFSEpollCtl:
		d.vfsEpollCtl(f)
	case abi.VFSEpollPwait:
		d.vfsEpollPwait(f)
	default:
		f.ReturnError(int64(abi.ENOSYS))
	}
}

func returnErrno(f *trap.SyscallFrame, errno abi.Errno) {
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(0)
}

// readCString reads a NUL-terminated string from user memory one byte
// at a time, since its length isn't known up front.
func readCString(f *trap.SyscallFrame, ptr uintptr) (string, error) {
	buf := make([]byte, 0, 32)
	var b [1]byte
	for i := 0; i < maxPathLen; i++ {
		if err := f.Task.AddrSpace.CopyFromUser(b[:], ptr+uintptr(i)); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return string(buf), nil
}

// vfsOpen implements VFSOpen: args (op, pathPtr, flags, mode). Only
// the flat in-memory tmpfs is wired up, per §4.H's note that path
// resolution is delegated to whatever filesystem is mounted there —
// this core mounts exactly one, at the root.
func (d *Dispatcher) vfsOpen(f *trap.SyscallFrame) {
	path, err := readCString(f, uintptr(f.Args[1]))
	if err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	create := f.Args[2]&vfsCreate != 0
	fd, errno := d.Tmpfs.Open(f.Task.Fds, path, create)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(int64(fd))
}

// vfsRead implements VFSRead: args (op, fd, bufPtr, count).
func (d *Dispatcher) vfsRead(f *trap.SyscallFrame) {
	fd := int(f.Args[1])
	bufPtr := uintptr(f.Args[2])
	count := f.Args[3]

	buf := make([]byte, count)
	n, errno := vfs.Read(f.Task.Fds, fd, buf)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	if err := f.Task.AddrSpace.CopyToUser(bufPtr, buf[:n]); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	f.Return(int64(n))
}

// vfsWrite implements VFSWrite: args (op, fd, bufPtr, count).
func (d *Dispatcher) vfsWrite(f *trap.SyscallFrame) {
	fd := int(f.Args[1])
	bufPtr := uintptr(f.Args[2])
	count := f.Args[3]

	buf := make([]byte, count)
	if err := f.Task.AddrSpace.CopyFromUser(buf, bufPtr); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	n, errno := vfs.Write(f.Task.Fds, fd, buf)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(int64(n))
}

// vfsLseek implements VFSLseek: args (op, fd, offset, whence).
func (d *Dispatcher) vfsLseek(f *trap.SyscallFrame) {
	fd := int(f.Args[1])
	offset := int64(f.Args[2])
	whence := int(f.Args[3])

	pos, errno := vfs.Lseek(f.Task.Fds, fd, offset, whence)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(pos)
}

// vfsDup implements VFSDup: args (op, oldFd).
func (d *Dispatcher) vfsDup(f *trap.SyscallFrame) {
	newFd, errno := vfs.Dup(f.Task.Fds, int(f.Args[1]))
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(int64(newFd))
}

// vfsPipe implements VFSPipe: args (op, fdsOutPtr), writing the two
// new descriptors as consecutive int32s at fdsOutPtr (read end first,
// matching POSIX pipe(2)'s fds[0]/fds[1] convention).
func (d *Dispatcher) vfsPipe(f *trap.SyscallFrame) {
	rfd, wfd, errno := vfs.Pipe(f.Task.Fds)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	if err := f.Task.AddrSpace.CopyToUser(uintptr(f.Args[1]), buf[:]); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	f.Return(0)
}

func (d *Dispatcher) vfsEpollCreate(f *trap.SyscallFrame) {
	fd, errno := vfs.EpollCreate(f.Task.Fds)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	f.Return(int64(fd))
}

// decodeEpollEvent and encodeEpollEvent translate between the wire
// struct epoll_event layout and vfs.EpollEvent.
func decodeEpollEvent(buf []byte) vfs.EpollEvent {
	return vfs.EpollEvent{
		Events: binary.LittleEndian.Uint32(buf[0:4]),
		Data:   binary.LittleEndian.Uint64(buf[8:16]),
	}
}

func encodeEpollEvent(e vfs.EpollEvent) []byte {
	buf := make([]byte, epollEventWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Events)
	binary.LittleEndian.PutUint64(buf[8:16], e.Data)
	return buf
}

// vfsEpollCtl implements VFSEpollCtl: args (op, epfd, ctlOp, fd,
// eventPtr). eventPtr is ignored (nil event) for EPOLL_CTL_DEL, same
// as epoll_ctl(2) itself.
func (d *Dispatcher) vfsEpollCtl(f *trap.SyscallFrame) {
	epfd := int(f.Args[1])
	ctlOp := int(f.Args[2])
	fd := int(f.Args[3])
	eventPtr := uintptr(f.Args[4])

	var event *vfs.EpollEvent
	if ctlOp != vfs.EpollCtlDel && eventPtr != 0 {
		buf := make([]byte, epollEventWireSize)
		if err := f.Task.AddrSpace.CopyFromUser(buf, eventPtr); err != nil {
			f.ReturnError(int64(abi.EFAULT))
			return
		}
		e := decodeEpollEvent(buf)
		event = &e
	}

	errno := vfs.EpollCtl(f.Task.Fds, epfd, ctlOp, fd, event)
	returnErrno(f, errno)
}

// vfsEpollPwait implements VFSEpollPwait: args (op, epfd, eventsPtr,
// maxEvents, timeoutMs).
func (d *Dispatcher) vfsEpollPwait(f *trap.SyscallFrame) {
	epfd := int(f.Args[1])
	eventsPtr := uintptr(f.Args[2])
	maxEvents := int(f.Args[3])
	timeoutMs := int(f.Args[4])

	if maxEvents <= 0 {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	out := make([]vfs.EpollEvent, maxEvents)
	n, errno := vfs.EpollPwait(f.Task.Fds, epfd, out, timeoutMs)
	if errno != 0 {
		f.ReturnError(int64(errno))
		return
	}
	for i := 0; i < n; i++ {
		wire := encodeEpollEvent(out[i])
		if err := f.Task.AddrSpace.CopyToUser(eventsPtr+uintptr(i*epollEventWireSize), wire); err != nil {
			f.ReturnError(int64(abi.EFAULT))
			return
		}
	}
	f.Return(int64(n))
}
