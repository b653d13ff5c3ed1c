package vm

import (
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/cpu"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

const (
	codeBase  = 0x400000
	stackBase = 0x7f0000
	stackTop  = stackBase + 0x1000
)

// mapCode maps an executable page at codeBase and writes code into it,
// padded with nothing beyond code's own bytes (the page is 0x1000, far
// larger than any test program).
func mapCode(t *testing.T, m *mmu.Mmu, code []byte) {
	t.Helper()
	m.Mmap(codeBase, 0x1000, prim.NewBitFlags(mmu.ProtRead, mmu.ProtExec), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	for i, b := range code {
		m.Write8(codeBase+uint64(i), b)
	}
}

func mapStack(t *testing.T, m *mmu.Mmu) {
	t.Helper()
	m.Mmap(stackBase, 0x1000, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	m.Write64(stackTop-8, 0) // return address: address 0, deliberately unmapped
}

func newTestThread(rip uint64) *VMThread {
	th := NewVMThread("main")
	th.saved.SetRIP(rip)
	th.saved.GPRs[cpu.RSP] = stackTop - 8
	return th
}

// straightLineCode is "mov eax, 1; add eax, 1; ret" — the same block
// disasmcache's own tests use, small enough to stay under any
// compilation threshold so these tests always exercise the interpreter.
func straightLineCode() []byte {
	return []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x83, 0xc0, 0x01, // add eax, 1
		0xc3, // ret
	}
}

// straightLineSyscallCode is the same arithmetic followed by a syscall
// instead of a ret.
func straightLineSyscallCode() []byte {
	return []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x83, 0xc0, 0x01, // add eax, 1
		0x0f, 0x05, // syscall
	}
}

func TestVMExecuteRunsOneBlockThenStops(t *testing.T) {
	theVM, err := New(Config{MmuReservationSize: 1 << 20})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	mapCode(t, theVM.Mmu(), straightLineCode())
	mapStack(t, theVM.Mmu())

	th := newTestThread(codeBase)
	th.Time().SetSlice(0, 3) // exactly one 3-instruction block's worth

	theVM.Execute(th)

	if th.Dead() {
		t.Fatalf("thread unexpectedly dead: %s", th.DeathReason())
	}
	if got := th.saved.GPRValue(cpu.RAX); got != 2 {
		t.Fatalf("RAX = %d, want 2 (1 + 1)", got)
	}
	if got := th.saved.RIPValue(); got != 0 {
		t.Fatalf("RIP after ret = %#x, want 0 (the popped return address)", got)
	}
	if !th.Time().IsStopAsked() {
		t.Fatalf("expected the thread's slice to be exhausted after one block")
	}
}

func TestVMExecuteHandsOffSyscall(t *testing.T) {
	var handledRAX uint64
	theVM, err := New(Config{
		MmuReservationSize: 1 << 20,
		Syscall: syscallHandlerFunc(func(thread *VMThread, state *cpu.GuestState) {
			handledRAX = state.GPRValue(cpu.RAX)
			state.SetGPR(cpu.RAX, 0)
		}),
	})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	mapCode(t, theVM.Mmu(), straightLineSyscallCode())
	mapStack(t, theVM.Mmu())

	th := newTestThread(codeBase)
	th.Time().SetSlice(0, 1000)

	theVM.Execute(th)

	if handledRAX != 2 {
		t.Fatalf("syscall handler saw RAX = %d, want 2", handledRAX)
	}
	if th.RequestsSyscall() {
		t.Fatalf("expected the syscall request to be cleared after hand-off")
	}
	if th.Stats().Syscalls != 1 {
		t.Fatalf("Stats().Syscalls = %d, want 1", th.Stats().Syscalls)
	}
}

type syscallHandlerFunc func(thread *VMThread, state *cpu.GuestState)

func (f syscallHandlerFunc) HandleSyscall(thread *VMThread, state *cpu.GuestState) { f(thread, state) }
