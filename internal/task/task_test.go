package task

import "testing"

func TestArenaNewAssignsDistinctPIDs(t *testing.T) {
	a := NewArena()
	t1 := a.New(0, "init", 100)
	t2 := a.New(t1.PID, "child", 100)
	if t1.PID == t2.PID {
		t.Fatalf("expected distinct PIDs, got %d twice", t1.PID)
	}
	if t1.PID == 0 || t2.PID == 0 {
		t.Fatal("PID 0 must never be issued")
	}
}

func TestArenaNewTaskIsRunnable(t *testing.T) {
	a := NewArena()
	tk := a.New(0, "init", 100)
	if tk.State != Runnable {
		t.Fatalf("expected Runnable, got %v", tk.State)
	}
	if tk.HeapIndex != -1 {
		t.Fatalf("expected HeapIndex -1 before scheduler insertion, got %d", tk.HeapIndex)
	}
}

func TestArenaLookupUnknownPIDReturnsNil(t *testing.T) {
	a := NewArena()
	if a.Lookup(999) != nil {
		t.Fatal("expected nil for unknown PID")
	}
}

func TestArenaReclaimRequiresDeadState(t *testing.T) {
	a := NewArena()
	tk := a.New(0, "init", 100)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic reclaiming a non-dead task")
		}
	}()
	a.Reclaim(tk.PID)
}

func TestArenaReclaimRemovesDeadTask(t *testing.T) {
	a := NewArena()
	tk := a.New(0, "init", 100)
	tk.State = Dead

	a.Reclaim(tk.PID)
	if a.Lookup(tk.PID) != nil {
		t.Fatal("expected task to be gone after reclaim")
	}
}

func TestFileCloseInvokesHookOnlyAtZeroRefcount(t *testing.T) {
	closed := 0
	fops := &FileOperations{
		Close: func(f *File) error { closed++; return nil },
	}
	f := NewFile(fops, nil)
	f.Ref() // refcount now 2

	f.Close()
	if closed != 0 {
		t.Fatalf("expected close hook not yet invoked, refcount %d", f.Refcount())
	}
	f.Close()
	if closed != 1 {
		t.Fatalf("expected close hook invoked exactly once, got %d", closed)
	}
}

func TestFDTableInstallAndGet(t *testing.T) {
	fdt := NewFDTable()
	f := NewFile(nil, nil)
	fd, errno := fdt.Install(f)
	if errno != 0 {
		t.Fatalf("unexpected errno %v", errno)
	}
	if fdt.Get(fd) != f {
		t.Fatal("Get did not return installed file")
	}
}

func TestFDTableInstallReturnsLowestFree(t *testing.T) {
	fdt := NewFDTable()
	fd0, _ := fdt.Install(NewFile(nil, nil))
	fd1, _ := fdt.Install(NewFile(nil, nil))
	fdt.Close(fd0)
	fd2, _ := fdt.Install(NewFile(nil, nil))
	if fd2 != fd0 {
		t.Fatalf("expected reused lowest fd %d, got %d", fd0, fd2)
	}
	_ = fd1
}

func TestFDTableFullReturnsEMFILE(t *testing.T) {
	fdt := NewFDTable()
	for i := 0; i < MaxFds; i++ {
		if _, errno := fdt.Install(NewFile(nil, nil)); errno != 0 {
			t.Fatalf("unexpected errno at %d: %v", i, errno)
		}
	}
	if _, errno := fdt.Install(NewFile(nil, nil)); errno == 0 {
		t.Fatal("expected EMFILE when table is full")
	}
}

func TestFDTableCloseUnknownFdIsEBADF(t *testing.T) {
	fdt := NewFDTable()
	if errno := fdt.Close(5); errno == 0 {
		t.Fatal("expected EBADF closing an unopened fd")
	}
}

func TestFDTableDupSharesRefcount(t *testing.T) {
	fdt := NewFDTable()
	f := NewFile(nil, nil)
	fd0, _ := fdt.Install(f)
	fd1, errno := fdt.Dup(fd0)
	if errno != 0 {
		t.Fatalf("Dup failed: %v", errno)
	}
	if fdt.Get(fd1) != fdt.Get(fd0) {
		t.Fatal("dup'd fd should reference the same File")
	}
	if f.Refcount() != 2 {
		t.Fatalf("expected refcount 2 after dup, got %d", f.Refcount())
	}
}

func TestFDTableDup2ClosesPreviousOccupant(t *testing.T) {
	closed := false
	fops := &FileOperations{Close: func(f *File) error { closed = true; return nil }}
	fdt := NewFDTable()
	fdA, _ := fdt.Install(NewFile(nil, nil))
	fdB, _ := fdt.Install(NewFile(fops, nil))

	if errno := fdt.Dup2(fdA, fdB); errno != 0 {
		t.Fatalf("Dup2 failed: %v", errno)
	}
	if !closed {
		t.Fatal("expected previous occupant of target fd to be closed")
	}
	if fdt.Get(fdB) != fdt.Get(fdA) {
		t.Fatal("target fd should now alias the source file")
	}
}

func TestFDTableCloseOnExecClosesOnlyMarked(t *testing.T) {
	fdt := NewFDTable()
	closedA, closedB := false, false
	fdA, _ := fdt.Install(NewFile(&FileOperations{Close: func(f *File) error { closedA = true; return nil }}, nil))
	fdB, _ := fdt.Install(NewFile(&FileOperations{Close: func(f *File) error { closedB = true; return nil }}, nil))
	fdt.SetCloexec(fdA, true)

	fdt.CloseOnExec()
	if !closedA {
		t.Fatal("expected cloexec-marked fd to be closed")
	}
	if closedB {
		t.Fatal("expected non-marked fd to survive")
	}
	if fdt.Get(fdA) != nil {
		t.Fatal("expected fdA slot cleared")
	}
}
