package vfs

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/sys"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// Tmpfs is a flat, name-indexed, fully in-memory filesystem: the
// minimum viable driver behind open/read/write/close/lseek/truncate
// that isn't a pipe. Path resolution beyond a flat name lookup is
// delegated elsewhere per §4.H ("path resolution is delegated to the
// mounted filesystem driver") and CPIO initramfs unpacking is named
// out of scope in §1, so this does not attempt directory structure or
// archive loading — only the in-memory-backed-file shape
// original_source's vfs/initramfs.hpp gives every unpacked entry.
type Tmpfs struct {
	lock  sys.SpinLock
	files map[string]*tmpfsNode
}

type tmpfsNode struct {
	lock sys.SpinLock
	data []byte
}

// NewTmpfs returns an empty in-memory filesystem.
func NewTmpfs() *Tmpfs {
	return &Tmpfs{files: make(map[string]*tmpfsNode)}
}

// Open looks up name, creating it if create is true and it doesn't
// exist yet, and installs a File positioned at offset 0.
func (fs *Tmpfs) Open(fds *task.FDTable, name string, create bool) (int, abi.Errno) {
	restore := fs.lock.IRQSave()
	n, ok := fs.files[name]
	if !ok {
		if !create {
			restore()
			return -1, abi.ENOENT
		}
		n = &tmpfsNode{}
		fs.files[name] = n
	}
	restore()

	f := task.NewFile(tmpfsFops, n)
	return fds.Install(f)
}

// Unlink removes name from the filesystem; existing open Files
// referencing it keep working until their last close, since they hold
// the node directly rather than a name lookup.
func (fs *Tmpfs) Unlink(name string) abi.Errno {
	restore := fs.lock.IRQSave()
	defer restore()
	if _, ok := fs.files[name]; !ok {
		return abi.ENOENT
	}
	delete(fs.files, name)
	return 0
}

var tmpfsFops = &task.FileOperations{
	Read: func(f *task.File, buf []byte) (int, error) {
		n := f.Private.(*tmpfsNode)
		restore := n.lock.IRQSave()
		defer restore()
		if f.Pos >= int64(len(n.data)) {
			return 0, nil
		}
		c := copy(buf, n.data[f.Pos:])
		f.Pos += int64(c)
		return c, nil
	},
	Write: func(f *task.File, buf []byte) (int, error) {
		n := f.Private.(*tmpfsNode)
		restore := n.lock.IRQSave()
		defer restore()
		end := f.Pos + int64(len(buf))
		if end > int64(len(n.data)) {
			grown := make([]byte, end)
			copy(grown, n.data)
			n.data = grown
		}
		copy(n.data[f.Pos:end], buf)
		f.Pos = end
		return len(buf), nil
	},
	Lseek: func(f *task.File, offset int64, whence int) (int64, error) {
		n := f.Private.(*tmpfsNode)
		restore := n.lock.IRQSave()
		size := int64(len(n.data))
		restore()

		var pos int64
		switch whence {
		case SeekSet:
			pos = offset
		case SeekCur:
			pos = f.Pos + offset
		case SeekEnd:
			pos = size + offset
		default:
			return -1, errInvalidWhence
		}
		if pos < 0 {
			return -1, errInvalidWhence
		}
		f.Pos = pos
		return pos, nil
	},
	Truncate: func(f *task.File, size int64) error {
		n := f.Private.(*tmpfsNode)
		restore := n.lock.IRQSave()
		defer restore()
		if size < 0 {
			return errInvalidWhence
		}
		if int64(len(n.data)) == size {
			return nil
		}
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
		return nil
	},
	PollCheck: func(f *task.File) uint32 {
		return EpollIn | EpollOut
	},
}

type tmpfsError string

func (e tmpfsError) Error() string { return string(e) }

const errInvalidWhence = tmpfsError("vfs: invalid seek")
