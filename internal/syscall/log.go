package syscall

import (
	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// maxLogWrite bounds a single sys_log call's byte count, matching
// original_source's syscalls_impl/log/sys_log.cpp fixed stack buffer
// rather than allocating for an attacker-controlled length.
const maxLogWrite = 4096

// sysLog implements CallSysLog: args are (op, device, strPtr, length).
// LogLine appends a trailing newline after the copied bytes; Log
// writes exactly what's copied. An unrecognized op or device is
// EINVAL, matching sys_log.cpp's own "return 1" catch-all but
// expressed in this ABI's negated-errno convention.
func (d *Dispatcher) sysLog(f *trap.SyscallFrame) {
	op := abi.SysLogOp(f.Args[0])
	device := abi.SysLogDevice(f.Args[1])
	strPtr := uintptr(f.Args[2])
	length := f.Args[3]

	if device != abi.SysLogDeviceSerial && device != abi.SysLogDeviceVGA {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	if op != abi.SysLogLog && op != abi.SysLogLogLine {
		f.ReturnError(int64(abi.EINVAL))
		return
	}
	if length > maxLogWrite {
		f.ReturnError(int64(abi.EINVAL))
		return
	}

	buf := make([]byte, length)
	if err := f.Task.AddrSpace.CopyFromUser(buf, strPtr); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	if op == abi.SysLogLogLine {
		buf = append(buf, '\n')
	}

	if d.Sink != nil {
		if err := d.Sink.Write(device, buf); err != nil {
			f.ReturnError(int64(abi.EIO))
			return
		}
	}
	f.Return(int64(len(buf)))
}
