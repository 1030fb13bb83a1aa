// Package vfs is the thin multiplexer §4.H describes: a per-task
// descriptor table (built on internal/task's File/FDTable), dup/dup2/
// close-on-exec, and an epoll surface built as one more File whose
// private state is a fixed-size interest array. Grounded on
// original_source's vfs/epoll.{hpp,cpp} and vfs/stat.hpp.
package vfs

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

// epoll_ctl operations, matching the Linux/mlibc EPOLL_CTL_* numbering
// the original ABI commits to.
const (
	EpollCtlAdd = 1
	EpollCtlDel = 2
	EpollCtlMod = 3
)

// Event bits, numerically identical to Linux's EPOLLIN/OUT/ERR/HUP/…
// so a poll_check hook can share bit values with a waiting caller's
// ABI struct.
const (
	EpollIn      = 0x001
	EpollPri     = 0x002
	EpollOut     = 0x004
	EpollErr     = 0x008
	EpollHup     = 0x010
	EpollRdHup   = 0x2000
	EpollOneshot = 1 << 30
	EpollET      = 1 << 31
)

// EpollMaxInterest bounds the fixed-size interest array per instance,
// per §4.H.
const EpollMaxInterest = 64

// EpollEvent is the user-kernel ABI struct epoll_ctl/epoll_pwait
// exchange: a ready-event bitmask plus an opaque 64-bit user tag,
// mirroring mlibc's struct epoll_event layout (a packed events+data
// union, here flattened to the u64 member since that's the only one
// this kernel's own code needs to round-trip).
type EpollEvent struct {
	Events uint32
	Data   uint64
}

type epollInterest struct {
	fd     int
	events uint32
	data   uint64
	active bool
}

// epollInstance is the private state behind an epoll file, per §4.H
// "creates an internal file whose private state is a fixed-size
// interest array."
type epollInstance struct {
	interests [EpollMaxInterest]epollInterest
	count     int
}

var epollFops = &task.FileOperations{
	Close: func(f *task.File) error { return nil },
}

// EpollCreate allocates an epoll file and installs it in fds, per
// §4.H.
func EpollCreate(fds *task.FDTable) (int, abi.Errno) {
	inst := &epollInstance{}
	f := task.NewFile(epollFops, inst)
	return fds.Install(f)
}

// EpollCtl adds, modifies, or removes fd from epfd's interest list,
// per §4.H's ADD/MOD/DEL rules.
func EpollCtl(fds *task.FDTable, epfd int, op int, fd int, event *EpollEvent) abi.Errno {
	epf := fds.Get(epfd)
	if epf == nil {
		return abi.EBADF
	}
	inst, ok := epf.Private.(*epollInstance)
	if !ok || inst == nil {
		return abi.EINVAL
	}

	if op != EpollCtlDel {
		if fds.Get(fd) == nil {
			return abi.EBADF
		}
	}

	switch op {
	case EpollCtlAdd:
		for i := range inst.interests {
			if inst.interests[i].active && inst.interests[i].fd == fd {
				return abi.EEXIST
			}
		}
		for i := range inst.interests {
			if !inst.interests[i].active {
				inst.interests[i] = epollInterest{fd: fd, active: true}
				if event != nil {
					inst.interests[i].events = event.Events
					inst.interests[i].data = event.Data
				}
				inst.count++
				return 0
			}
		}
		return abi.ENOMEM

	case EpollCtlMod:
		for i := range inst.interests {
			if inst.interests[i].active && inst.interests[i].fd == fd {
				if event != nil {
					inst.interests[i].events = event.Events
					inst.interests[i].data = event.Data
				}
				return 0
			}
		}
		return abi.ENOENT

	case EpollCtlDel:
		for i := range inst.interests {
			if inst.interests[i].active && inst.interests[i].fd == fd {
				inst.interests[i].active = false
				inst.count--
				return 0
			}
		}
		return abi.ENOENT

	default:
		return abi.EINVAL
	}
}

// pollFile reports fd's ready-event mask for the requested interest,
// preferring its FileOperations.PollCheck hook; a file with no hook
// is treated as always ready for the I/O directions it was asked
// about, per §4.H "absent hooks are treated as not supported", which
// for poll_check specifically degrades to "assume ready" rather than
// ENOSYS (matching the original's poll_fd fallback).
func pollFile(f *task.File, requested uint32) uint32 {
	if f == nil {
		return 0
	}
	if f.Fops != nil && f.Fops.PollCheck != nil {
		return f.Fops.PollCheck(f)
	}
	return requested & (EpollIn | EpollOut)
}

// EpollPwait implements §4.H's epoll_pwait: poll every active
// interest, collect up to len(out) ready entries, disabling
// EPOLLONESHOT interests after they report. Returns the ready count,
// 0 if nothing is ready and timeoutMs == 0, or EAGAIN otherwise so the
// caller's userspace wrapper retries — the open question recorded in
// §9 and DESIGN.md, preserved rather than redesigned.
func EpollPwait(fds *task.FDTable, epfd int, out []EpollEvent, timeoutMs int) (int, abi.Errno) {
	if len(out) == 0 {
		return 0, abi.EINVAL
	}
	epf := fds.Get(epfd)
	if epf == nil {
		return 0, abi.EBADF
	}
	inst, ok := epf.Private.(*epollInstance)
	if !ok || inst == nil {
		return 0, abi.EINVAL
	}

	ready := 0
	for i := range inst.interests {
		if ready >= len(out) {
			break
		}
		if !inst.interests[i].active {
			continue
		}
		target := fds.Get(inst.interests[i].fd)
		if target == nil {
			// The watched fd was closed behind epoll's back: drop it
			// silently, per §4.H "DEL tolerates a missing target so
			// close() races are clean" applying symmetrically here.
			inst.interests[i].active = false
			inst.count--
			continue
		}

		revents := pollFile(target, inst.interests[i].events)
		if revents == 0 {
			continue
		}
		out[ready] = EpollEvent{Events: revents, Data: inst.interests[i].data}
		ready++
		if inst.interests[i].events&EpollOneshot != 0 {
			inst.interests[i].events = 0
		}
	}

	if ready > 0 || timeoutMs == 0 {
		return ready, 0
	}
	return 0, abi.EAGAIN
}
