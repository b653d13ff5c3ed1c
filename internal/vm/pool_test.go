package vm

import (
	"context"
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/cpu"
)

func TestRunRoundRobinStopsWhenThreadExits(t *testing.T) {
	theVM, err := New(Config{MmuReservationSize: 1 << 20})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	mapCode(t, theVM.Mmu(), straightLineSyscallCode())
	mapStack(t, theVM.Mmu())
	theVM.syscall = syscallHandlerFunc(func(thread *VMThread, state *cpu.GuestState) {
		thread.RequestExit(state.GPRValue(cpu.RAX))
	})

	th := newTestThread(codeBase)

	RunRoundRobin(context.Background(), Runnable{
		VM:            theVM,
		Threads:       []*VMThread{th},
		SliceDuration: 1000,
	})

	if !th.Exited() {
		t.Fatalf("expected the thread to have exited")
	}
	if th.ExitCode() != 2 {
		t.Fatalf("ExitCode() = %d, want 2", th.ExitCode())
	}
}

func TestRunRoundRobinStopsWhenThreadDies(t *testing.T) {
	theVM, err := New(Config{MmuReservationSize: 1 << 20})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	// No code mapped at codeBase: the very first fetch fails verification.
	mapStack(t, theVM.Mmu())

	th := newTestThread(codeBase)

	RunRoundRobin(context.Background(), Runnable{
		VM:            theVM,
		Threads:       []*VMThread{th},
		SliceDuration: 1000,
	})

	if !th.Dead() {
		t.Fatalf("expected the thread to be marked dead on an unmapped fetch")
	}
}
