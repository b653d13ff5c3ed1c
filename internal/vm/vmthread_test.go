package vm

import "testing"

func TestVMThreadCallstackPushPop(t *testing.T) {
	th := NewVMThread("main")
	th.pushCallstack(0x1005, 0x2000)
	th.pushCallstack(0x2010, 0x3000)

	if got := th.Callstack(); len(got) != 2 || got[0] != 0x2000 || got[1] != 0x3000 {
		t.Fatalf("Callstack() = %#x, want [0x2000 0x3000]", got)
	}

	if got := th.popCallstack(); got != 0x3000 {
		t.Fatalf("popCallstack() = %#x, want 0x3000", got)
	}
	if got := th.Callstack(); len(got) != 1 || got[0] != 0x2000 {
		t.Fatalf("Callstack() after pop = %#x, want [0x2000]", got)
	}
}

func TestVMThreadProfilingCollectsEvents(t *testing.T) {
	th := NewVMThread("main")
	th.SetProfiling(true)

	th.pushCallstack(0x1005, 0x2000)
	th.popCallstack()
	th.didSyscall(60)

	var calls, rets, syscalls int
	th.ForEachCallEvent(func(CallEvent) { calls++ })
	th.ForEachRetEvent(func(RetEvent) { rets++ })
	th.ForEachSyscallEvent(func(e SyscallEvent) {
		syscalls++
		if e.SyscallNumber != 60 {
			t.Fatalf("SyscallEvent.SyscallNumber = %d, want 60", e.SyscallNumber)
		}
	})

	if calls != 1 || rets != 1 || syscalls != 1 {
		t.Fatalf("calls=%d rets=%d syscalls=%d, want 1/1/1", calls, rets, syscalls)
	}
}

func TestVMThreadProfilingOffCollectsNothing(t *testing.T) {
	th := NewVMThread("main")
	th.pushCallstack(0x1005, 0x2000)
	th.popCallstack()

	var calls int
	th.ForEachCallEvent(func(CallEvent) { calls++ })
	if calls != 0 {
		t.Fatalf("expected no call events collected while profiling is off, got %d", calls)
	}
}

func TestVMThreadEnterSyscallYieldsAndMarksRequest(t *testing.T) {
	th := NewVMThread("main")
	th.Time().SetSlice(0, 1000)
	th.Time().Tick(10)

	th.enterSyscall()

	if !th.RequestsSyscall() {
		t.Fatalf("expected RequestsSyscall to be true after enterSyscall")
	}
	if !th.Time().IsStopAsked() {
		t.Fatalf("expected enterSyscall to yield the thread's slice")
	}
}

func TestVMThreadRequestExit(t *testing.T) {
	th := NewVMThread("main")
	th.Time().SetSlice(0, 1000)
	th.Time().Tick(5)

	if th.Exited() {
		t.Fatalf("a fresh thread should not report Exited")
	}

	th.RequestExit(42)

	if !th.Exited() {
		t.Fatalf("expected Exited to be true after RequestExit")
	}
	if th.ExitCode() != 42 {
		t.Fatalf("ExitCode() = %d, want 42", th.ExitCode())
	}
	if !th.Time().IsStopAsked() {
		t.Fatalf("expected RequestExit to yield the thread's slice")
	}
}

func TestVMThreadMarkDead(t *testing.T) {
	th := NewVMThread("main")
	if th.Dead() {
		t.Fatalf("a fresh thread should not be dead")
	}
	th.markDead("decoder failure at 0xdead")
	if !th.Dead() {
		t.Fatalf("expected markDead to mark the thread dead")
	}
	if th.DeathReason() == "" {
		t.Fatalf("expected a non-empty death reason")
	}
}
