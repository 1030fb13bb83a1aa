package syscall

import (
	"encoding/binary"

	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/trap"
)

// maxNanosleepSpins bounds the busy-wait/yield loop nanosleep uses, so
// a clock that never advances (a misconfigured Dispatcher in a test,
// say) can't hang the caller forever.
const maxNanosleepSpins = 1_000_000

// time implements CallTime, grounded on original_source's
// time/time.cpp: gettimeofday and clock_gettime both read the same
// microsecond counter and write it out in two different struct
// layouts, and nanosleep is a yield loop that polls the counter until
// the requested duration has elapsed.
func (d *Dispatcher) time(f *trap.SyscallFrame) {
	switch abi.TimeOp(f.Args[0]) {
	case abi.TimeGetTimeOfDay:
		d.writeTimeval(f, uintptr(f.Args[1]))
	case abi.TimeClockGetTime:
		d.writeTimespec(f, uintptr(f.Args[1]))
	case abi.TimeNanosleep:
		d.nanosleep(f)
	default:
		f.ReturnError(int64(abi.EINVAL))
	}
}

// writeTimeval fills a struct timeval { int64 tv_sec; int64 tv_usec; }
// at ptr from the clock's current microsecond reading.
func (d *Dispatcher) writeTimeval(f *trap.SyscallFrame, ptr uintptr) {
	if d.Clock == nil {
		f.ReturnError(int64(abi.ENOSYS))
		return
	}
	us := d.Clock.NowMicros()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(us/1_000_000))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(us%1_000_000))
	if err := f.Task.AddrSpace.CopyToUser(ptr, buf[:]); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	f.Return(0)
}

// writeTimespec fills a struct timespec { int64 tv_sec; int64 tv_nsec; }
// at ptr, the same clock reading at nanosecond resolution.
func (d *Dispatcher) writeTimespec(f *trap.SyscallFrame, ptr uintptr) {
	if d.Clock == nil {
		f.ReturnError(int64(abi.ENOSYS))
		return
	}
	us := d.Clock.NowMicros()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(us/1_000_000))
	binary.LittleEndian.PutUint64(buf[8:16], uint64((us%1_000_000)*1000))
	if err := f.Task.AddrSpace.CopyToUser(ptr, buf[:]); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	f.Return(0)
}

// nanosleep args are (op, requestPtr); the request is a struct
// timespec the same shape writeTimespec produces. It spins, yielding
// the CPU each iteration, until the clock reports the requested
// duration has elapsed.
func (d *Dispatcher) nanosleep(f *trap.SyscallFrame) {
	if d.Clock == nil {
		f.ReturnError(int64(abi.ENOSYS))
		return
	}
	var buf [16]byte
	if err := f.Task.AddrSpace.CopyFromUser(buf[:], uintptr(f.Args[1])); err != nil {
		f.ReturnError(int64(abi.EFAULT))
		return
	}
	sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
	nsec := int64(binary.LittleEndian.Uint64(buf[8:16]))
	requestedUs := sec*1_000_000 + nsec/1000

	start := d.Clock.NowMicros()
	target := start + requestedUs
	for i := 0; i < maxNanosleepSpins; i++ {
		if d.Clock.NowMicros() >= target {
			f.Return(0)
			return
		}
		d.Sched.Yield(f.Task.CPU)
	}
	f.Return(0)
}
