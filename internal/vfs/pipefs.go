package vfs

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// pipeCapacity bounds the in-memory ring buffer backing each pipe
// endpoint pair.
const pipeCapacity = 4096

// pipe is a minimal in-memory, fully-backed file (no passthrough to a
// host fd), the shape original_source's vfs/initramfs.hpp gives every
// unpacked file: contents live in kernel memory, not behind a driver.
// It exists to give epoll's poll_check hook something concrete to
// exercise: a pipe read end reports EPOLLIN once length > 0, and
// a write end reports EPOLLOUT while it has room.
type pipe struct {
	lock   sys.SpinLock
	buf    [pipeCapacity]byte
	start  int
	length int
	closed bool
}

func newPipe() *pipe { return &pipe{} }

func (p *pipe) read(dst []byte) (int, error) {
	restore := p.lock.IRQSave()
	defer restore()
	n := len(dst)
	if n > p.length {
		n = p.length
	}
	for i := 0; i < n; i++ {
		dst[i] = p.buf[(p.start+i)%pipeCapacity]
	}
	p.start = (p.start + n) % pipeCapacity
	p.length -= n
	return n, nil
}

func (p *pipe) write(src []byte) (int, error) {
	restore := p.lock.IRQSave()
	defer restore()
	room := pipeCapacity - p.length
	n := len(src)
	if n > room {
		n = room
	}
	at := (p.start + p.length) % pipeCapacity
	for i := 0; i < n; i++ {
		p.buf[(at+i)%pipeCapacity] = src[i]
	}
	p.length += n
	return n, nil
}

func (p *pipe) readReady() uint32 {
	restore := p.lock.IRQSave()
	defer restore()
	if p.length > 0 {
		return EpollIn
	}
	if p.closed {
		return EpollHup
	}
	return 0
}

func (p *pipe) writeReady() uint32 {
	restore := p.lock.IRQSave()
	defer restore()
	if p.closed {
		return EpollErr
	}
	if p.length < pipeCapacity {
		return EpollOut
	}
	return 0
}

var pipeReadFops = &task.FileOperations{
	Read: func(f *task.File, buf []byte) (int, error) {
		p := f.Private.(*pipe)
		return p.read(buf)
	},
	PollCheck: func(f *task.File) uint32 {
		return f.Private.(*pipe).readReady()
	},
	Close: func(f *task.File) error {
		p := f.Private.(*pipe)
		restore := p.lock.IRQSave()
		p.closed = true
		restore()
		return nil
	},
}

var pipeWriteFops = &task.FileOperations{
	Write: func(f *task.File, buf []byte) (int, error) {
		p := f.Private.(*pipe)
		return p.write(buf)
	},
	PollCheck: func(f *task.File) uint32 {
		return f.Private.(*pipe).writeReady()
	},
	Close: func(f *task.File) error {
		p := f.Private.(*pipe)
		restore := p.lock.IRQSave()
		p.closed = true
		restore()
		return nil
	},
}

// Pipe installs a connected read/write file pair in fds and returns
// their descriptors, backed by one shared in-memory ring buffer.
func Pipe(fds *task.FDTable) (readFd, writeFd int, errno abi.Errno) {
	p := newPipe()
	rf := task.NewFile(pipeReadFops, p)
	wf := task.NewFile(pipeWriteFops, p)

	readFd, errno = fds.Install(rf)
	if errno != 0 {
		return -1, -1, errno
	}
	writeFd, errno = fds.Install(wf)
	if errno != 0 {
		fds.Close(readFd)
		return -1, -1, errno
	}
	return readFd, writeFd, 0
}
