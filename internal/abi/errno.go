package abi

// Errno is a POSIX-style error code. Syscalls return it negated
// (§6 "negative return values encode errors as negated POSIX-style
// integers"); this type is the positive magnitude.
type Errno int64

const (
	EPERM     Errno = 1
	ENOENT    Errno = 2
	ESRCH     Errno = 3
	EINTR     Errno = 4
	EIO       Errno = 5
	EBADF     Errno = 9
	EAGAIN    Errno = 11
	ENOMEM    Errno = 12
	EFAULT    Errno = 14
	EEXIST    Errno = 17
	EINVAL    Errno = 22
	ENFILE    Errno = 23
	EMFILE    Errno = 24
	ENOSPC    Errno = 28
	ENOSYS    Errno = 38
	ENOBUFS   Errno = 105
	ETIMEDOUT Errno = 110
)

// Negated returns the syscall-ABI return value for this error: a
// negative int64, per §6.
func (e Errno) Negated() int64 { return -int64(e) }

// Result is the generic non-negative-success / negated-errno return
// shape every syscall in §4.G uses.
type Result int64

// Ok reports whether this result represents success (r >= 0).
func (r Result) Ok() bool { return r >= 0 }

// FromErrno builds a failing Result from an Errno.
func FromErrno(e Errno) Result { return Result(e.Negated()) }

// OkResult builds a successful Result carrying a non-negative value.
func OkResult(v int64) Result { return Result(v) }
