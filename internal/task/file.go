package task

import "github.com/Pascu-Victor/wos-sub002/internal/sys"

// FileOperations is the function-pointer table a filesystem driver
// provides, per §4.H. Absent hooks are nil and callers treat a nil
// hook as "not supported". Grounded on original_source's
// platform/fs/file_operations.hpp and the teacher's own function-
// pointer-table style for device dispatch.
type FileOperations struct {
	Open      func(f *File) error
	Close     func(f *File) error
	Read      func(f *File, buf []byte) (int, error)
	Write     func(f *File, buf []byte) (int, error)
	Lseek     func(f *File, offset int64, whence int) (int64, error)
	Isatty    func(f *File) bool
	Readdir   func(f *File) ([]string, error)
	Readlink  func(f *File) (string, error)
	Truncate  func(f *File, size int64) error
	PollCheck func(f *File) uint32 // returns ready event bits
}

// File abstracts one open resource, per §3. The kernel never reads a
// File whose refcount has reached zero.
type File struct {
	lock     sys.SpinLock
	refcount int32
	Pos      int64
	Flags    uint32
	Fops     *FileOperations
	Private  interface{}
}

// NewFile wraps fops with an initial refcount of 1.
func NewFile(fops *FileOperations, private interface{}) *File {
	return &File{refcount: 1, Fops: fops, Private: private}
}

// Ref increments the refcount, used by dup.
func (f *File) Ref() {
	restore := f.lock.IRQSave()
	defer restore()
	f.refcount++
}

// Close decrements the refcount and, on transition to zero, invokes
// the filesystem's close hook, per §3.
func (f *File) Close() error {
	restore := f.lock.IRQSave()
	f.refcount--
	zero := f.refcount == 0
	restore()

	if !zero {
		return nil
	}
	if f.Fops != nil && f.Fops.Close != nil {
		return f.Fops.Close(f)
	}
	return nil
}

func (f *File) Refcount() int32 {
	restore := f.lock.IRQSave()
	defer restore()
	return f.refcount
}
