// Package abi defines the syscall-facing numbers and error codes
// shared between the trap/syscall dispatcher and userspace: call
// numbers, per-subsystem operation codes, and POSIX-style errno
// values, all restored from original_source/.../abi/callnums*.
package abi

// CallNumber identifies which syscall-surface cluster (§4.G) a trap
// frame should be routed to.
type CallNumber uint64

const (
	CallSysLog CallNumber = iota
	CallFutex
	CallThreadInfo
	CallProcess
	CallTime
	CallVFS
	CallVMem
	CallNet
)

// FutexOp selects the futex operation within CallFutex.
type FutexOp uint64

const (
	FutexWait FutexOp = iota
	FutexWake
)

// ThreadInfoOp selects the operation within CallThreadInfo.
type ThreadInfoOp uint64

const (
	ThreadInfoCurrentThreadID ThreadInfoOp = iota
	ThreadInfoNativeThreadCount
)

// SysLogOp selects the operation within CallSysLog.
type SysLogOp uint64

const (
	SysLogLog SysLogOp = iota
	SysLogLogLine
)

// SysLogDevice names the sink a log write targets.
type SysLogDevice uint64

const (
	SysLogDeviceSerial SysLogDevice = iota
	SysLogDeviceVGA
)

// TimeOp selects the operation within CallTime.
type TimeOp uint64

const (
	TimeGetTimeOfDay TimeOp = iota
	TimeClockGetTime
	TimeNanosleep
)

// VFSOp selects the operation within CallVFS. Numbering matches
// original_source/.../abi/callnums/vfs.h; only the ops this core
// implements (§4.G, §4.H) are given handlers, the rest dispatch to
// ENOSYS.
type VFSOp uint64

const (
	VFSOpen VFSOp = iota
	VFSRead
	VFSWrite
	VFSClose
	VFSLseek
	VFSIsatty
	VFSReadDirEntries
	VFSMount
	VFSMkdir
	VFSReadlink
	VFSSymlink
	VFSSendfile
	VFSStat
	VFSFstat
	VFSUmount
	VFSDup
	VFSDup2
	VFSGetcwd
	VFSChdir
	VFSAccess
	VFSUnlink
	VFSRmdir
	VFSRename
	VFSChmod
	VFSTruncate
	VFSPipe
	VFSPread
	VFSPwrite
	VFSFcntl
	VFSFchmod
	VFSChown
	VFSFchown
	VFSFaccessat
	VFSUnlinkat
	VFSRenameat
	VFSEpollCreate
	VFSEpollCtl
	VFSEpollPwait
	VFSIoctl
)

// VMemOp selects the operation within CallVMem.
type VMemOp uint64

const (
	VMemAnonAllocate VMemOp = iota
	VMemAnonFree
)

// mmap-style protection and flag bits, matching Linux (and the
// original's vmem.h, which matches Linux on purpose).
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4

	MapShared    = 0x01
	MapPrivate   = 0x02
	MapFixed     = 0x10
	MapAnonymous = 0x20
)

// ProcessOp selects the operation within CallProcess.
type ProcessOp uint64

const (
	ProcessGetPID ProcessOp = iota
	ProcessGetPPID
	ProcessWaitPID
)
