package vfs

import (
	"testing"

	"github.com/Pascu-Victor/wos-sub002/internal/abi"
	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

func TestPipeWriteThenReadRoundTrips(t *testing.T) {
	fds := task.NewFDTable()
	rfd, wfd, errno := Pipe(fds)
	if errno != 0 {
		t.Fatalf("Pipe: %v", errno)
	}

	n, errno := Write(fds, wfd, []byte("hello"))
	if errno != 0 || n != 5 {
		t.Fatalf("Write: n=%d errno=%v", n, errno)
	}

	buf := make([]byte, 16)
	n, errno = Read(fds, rfd, buf)
	if errno != 0 {
		t.Fatalf("Read errno: %v", errno)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", buf[:n])
	}
}

func TestReadUnknownFdIsEBADF(t *testing.T) {
	fds := task.NewFDTable()
	if _, errno := Read(fds, 3, make([]byte, 4)); errno != abi.EBADF {
		t.Fatalf("expected EBADF, got %v", errno)
	}
}

func TestEpollCreateThenCtlAddDuplicateIsEEXIST(t *testing.T) {
	fds := task.NewFDTable()
	epfd, errno := EpollCreate(fds)
	if errno != 0 {
		t.Fatalf("EpollCreate: %v", errno)
	}
	rfd, _, errno := Pipe(fds)
	if errno != 0 {
		t.Fatalf("Pipe: %v", errno)
	}

	if errno := EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn}); errno != 0 {
		t.Fatalf("first ADD: %v", errno)
	}
	if errno := EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn}); errno != abi.EEXIST {
		t.Fatalf("expected EEXIST on duplicate ADD, got %v", errno)
	}
}

func TestEpollCtlModUnknownFdIsENOENT(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	rfd, _, _ := Pipe(fds)
	if errno := EpollCtl(fds, epfd, EpollCtlMod, rfd, &EpollEvent{}); errno != abi.ENOENT {
		t.Fatalf("expected ENOENT, got %v", errno)
	}
}

func TestEpollCtlDelToleratesMissingTarget(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	if errno := EpollCtl(fds, epfd, EpollCtlDel, 99, nil); errno != abi.ENOENT {
		t.Fatalf("expected ENOENT (not a crash) for missing DEL target, got %v", errno)
	}
}

func TestEpollCtlAddFullInterestListIsENOMEM(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)

	for i := 0; i < EpollMaxInterest; i++ {
		rfd, _, errno := Pipe(fds)
		if errno != 0 {
			t.Fatalf("Pipe #%d: %v", i, errno)
		}
		if errno := EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn}); errno != 0 {
			t.Fatalf("ADD #%d: %v", i, errno)
		}
	}
	extraRfd, _, _ := Pipe(fds)
	if errno := EpollCtl(fds, epfd, EpollCtlAdd, extraRfd, &EpollEvent{Events: EpollIn}); errno != abi.ENOMEM {
		t.Fatalf("expected ENOMEM once interest list is full, got %v", errno)
	}
}

func TestEpollPwaitReportsReadyReadEnd(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	rfd, wfd, _ := Pipe(fds)
	if errno := EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn, Data: 42}); errno != 0 {
		t.Fatalf("ADD: %v", errno)
	}

	out := make([]EpollEvent, 4)
	n, errno := EpollPwait(fds, epfd, out, 0)
	if errno != 0 || n != 0 {
		t.Fatalf("expected 0 ready before any write, got n=%d errno=%v", n, errno)
	}

	Write(fds, wfd, []byte("x"))

	n, errno = EpollPwait(fds, epfd, out, 0)
	if errno != 0 {
		t.Fatalf("EpollPwait errno: %v", errno)
	}
	if n != 1 {
		t.Fatalf("expected 1 ready entry, got %d", n)
	}
	if out[0].Events&EpollIn == 0 {
		t.Fatalf("expected EPOLLIN set, got %#x", out[0].Events)
	}
	if out[0].Data != 42 {
		t.Fatalf("expected user data 42 round-tripped, got %d", out[0].Data)
	}
}

func TestEpollPwaitReturnsEAGAINWhenNothingReadyAndTimeoutNonzero(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	rfd, _, _ := Pipe(fds)
	EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn})

	out := make([]EpollEvent, 4)
	n, errno := EpollPwait(fds, epfd, out, 50)
	if errno != abi.EAGAIN {
		t.Fatalf("expected EAGAIN, got n=%d errno=%v", n, errno)
	}
}

func TestEpollOneshotDisablesInterestAfterReport(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	rfd, wfd, _ := Pipe(fds)
	EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn | EpollOneshot})
	Write(fds, wfd, []byte("x"))

	out := make([]EpollEvent, 4)
	n, _ := EpollPwait(fds, epfd, out, 0)
	if n != 1 {
		t.Fatalf("expected 1 ready on first pwait, got %d", n)
	}

	Write(fds, wfd, []byte("y"))
	n, _ = EpollPwait(fds, epfd, out, 0)
	if n != 0 {
		t.Fatalf("expected oneshot interest disabled after first report, got n=%d", n)
	}
}

func TestEpollPwaitAutoRemovesClosedWatchedFd(t *testing.T) {
	fds := task.NewFDTable()
	epfd, _ := EpollCreate(fds)
	rfd, _, _ := Pipe(fds)
	EpollCtl(fds, epfd, EpollCtlAdd, rfd, &EpollEvent{Events: EpollIn})
	Close(fds, rfd)

	out := make([]EpollEvent, 4)
	n, errno := EpollPwait(fds, epfd, out, 0)
	if errno != 0 || n != 0 {
		t.Fatalf("expected a clean 0-ready result after the watched fd closed, got n=%d errno=%v", n, errno)
	}
}

func TestDupSharesUnderlyingFile(t *testing.T) {
	fds := task.NewFDTable()
	rfd, wfd, _ := Pipe(fds)
	dupFd, errno := Dup(fds, wfd)
	if errno != 0 {
		t.Fatalf("Dup: %v", errno)
	}
	Write(fds, dupFd, []byte("via-dup"))
	buf := make([]byte, 16)
	n, _ := Read(fds, rfd, buf)
	if string(buf[:n]) != "via-dup" {
		t.Fatalf("expected data written through the dup'd fd to reach the pipe, got %q", buf[:n])
	}
}
