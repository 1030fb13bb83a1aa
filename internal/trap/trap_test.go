package trap

import (
	"testing"

	"github.com/Pascu-Victor/wos-sub002/internal/task"
)

func TestRegistryRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(VectorPageFault, "page-fault", func(vector int, private interface{}) {
		called = true
	}, nil)

	r.Dispatch(VectorPageFault)
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestRegistryDispatchUnregisteredVectorIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Dispatch(200) // must not panic
}

func TestRegistryAllocateStartsAtFirstFreeVector(t *testing.T) {
	r := NewRegistry()
	v, err := r.Allocate("driver-irq", func(int, interface{}) {}, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if v != FirstFreeVector {
		t.Fatalf("expected first allocation at %d, got %d", FirstFreeVector, v)
	}
}

func TestRegistryAllocateSkipsUsedVectors(t *testing.T) {
	r := NewRegistry()
	r.Register(FirstFreeVector, "taken", nil, nil)
	v, err := r.Allocate("driver-irq", func(int, interface{}) {}, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if v != FirstFreeVector+1 {
		t.Fatalf("expected next free vector %d, got %d", FirstFreeVector+1, v)
	}
}

func TestEntryStubReturnsHandlerValue(t *testing.T) {
	tk := &task.Task{}
	dispatch := func(f *SyscallFrame) { f.Return(42) }
	got := EntryStub(tk, 1, [6]uint64{}, dispatch, nil)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestEntryStubInvokesSwitchOnlyWhenDeferred(t *testing.T) {
	tk := &task.Task{}
	switched := false
	dispatch := func(f *SyscallFrame) { f.Task.DeferredSwitch = true }
	EntryStub(tk, 1, [6]uint64{}, dispatch, func() { switched = true })
	if !switched {
		t.Fatal("expected performSwitch to be invoked")
	}
	if tk.DeferredSwitch {
		t.Fatal("expected DeferredSwitch cleared after switch")
	}
}

func TestEntryStubSkipsSwitchWhenNotDeferred(t *testing.T) {
	tk := &task.Task{}
	switched := false
	dispatch := func(f *SyscallFrame) {}
	EntryStub(tk, 1, [6]uint64{}, dispatch, func() { switched = true })
	if switched {
		t.Fatal("expected performSwitch not invoked when DeferredSwitch unset")
	}
}

func TestFaultPolicyKernelModeExceptionPanics(t *testing.T) {
	p := &FaultPolicy{}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for kernel-mode exception")
		}
	}()
	p.HandleException(&task.Task{}, VectorGPFault, false)
}

func TestFaultPolicyUserModeExceptionKillsAndDumps(t *testing.T) {
	dumped := false
	killed := false
	p := &FaultPolicy{
		Dump: dumperFunc(func(t *task.Task, vector int, addr uintptr) error { dumped = true; return nil }),
		Kill: func(t *task.Task, status int32) { killed = true },
	}
	p.HandleException(&task.Task{}, VectorGPFault, true)
	if !dumped || !killed {
		t.Fatalf("expected dump=%v kill=%v both true", dumped, killed)
	}
}

type dumperFunc func(t *task.Task, vector int, addr uintptr) error

func (d dumperFunc) WriteCoredump(t *task.Task, vector int, addr uintptr) error {
	return d(t, vector, addr)
}
