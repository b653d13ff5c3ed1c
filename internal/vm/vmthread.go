package vm

import "github.com/intuitionamiga/x64emulator/internal/cpu"

// CallEvent/RetEvent/SyscallEvent record one profiling-relevant guest
// event at the thread's own logical tick, mirroring
// ThreadProfileData's nested event structs. Collection only happens
// while Profiling is set.
type CallEvent struct {
	Tick    uint64
	Address uint64
}

type RetEvent struct {
	Tick uint64
}

type SyscallEvent struct {
	Tick          uint64
	SyscallNumber uint64
}

// FunctionCall is one entry of a thread's call-depth trace, grounded on
// VMThread::Stats::FunctionCall.
type FunctionCall struct {
	Tick    uint64
	Depth   uint64
	Address uint64
}

// Stats accumulates per-thread counters the kernel layer inspects after
// the fact (syscall count, call-depth trace), grounded on
// VMThread::Stats.
type Stats struct {
	Syscalls      uint64
	FunctionCalls uint64
	Calls         []FunctionCall
}

// SavedCpuState is a VMThread's own copy of the guest CPU state while it
// is not the VM's currently scheduled thread, restored wholesale by
// contextSwitch. The original's SavedCpuState names flags/regs/x87fpu/
// mxcsr/fsBase as separate fields; GuestState already bundles all of
// those (and the other segment bases besides FS), so a VMThread simply
// keeps its own GuestState value rather than a parallel struct.
type SavedCpuState = cpu.GuestState

// VMThread is one logical guest thread's scheduling state: its saved CPU
// registers, its clock, its callstack, and whatever profiling the kernel
// layer has turned on for it. Grounded on
// original_source/emulator/include/emulator/vmthread.h's VMThread plus
// its ThreadProfileData/ThreadCallstackData mixins, flattened into one
// struct (Go has no multiple-inheritance mixin idiom; composition by
// embedding a pointer back to the VM would only complicate ownership).
type VMThread struct {
	ID string

	saved SavedCpuState
	time  ThreadTime
	stats Stats

	callpoints []uint64
	callstack  []uint64

	requestsSyscall bool
	dead            bool
	deathReason     string

	exited   bool
	exitCode uint64

	profiling bool
	calls     []CallEvent
	rets      []RetEvent
	syscalls  []SyscallEvent
}

// NewVMThread returns a fresh thread identified by id, with a freshly
// initialized guest CPU state (see cpu.NewGuestState) and a zeroed
// clock; callers typically then set its RIP and RSP before the first
// Execute.
func NewVMThread(id string) *VMThread {
	return &VMThread{ID: id, saved: *cpu.NewGuestState()}
}

func (t *VMThread) Time() *ThreadTime             { return &t.time }
func (t *VMThread) Yield()                        { t.time.Yield() }
func (t *VMThread) SavedCpuState() *SavedCpuState { return &t.saved }
func (t *VMThread) Stats() *Stats                 { return &t.stats }

// Dead reports whether the thread was killed by a verification failure
// (spec.md §7: "mark the thread dead", never recovered mid-instruction).
func (t *VMThread) Dead() bool          { return t.dead }
func (t *VMThread) DeathReason() string { return t.deathReason }

func (t *VMThread) markDead(reason string) {
	t.dead = true
	t.deathReason = reason
	t.time.Yield()
}

// RequestExit marks the thread as having exited cleanly via an exit/
// exit_group syscall, for a SyscallHandler to call — it only ever sees
// the thread and the shared GuestState, not the VM's Cpu, so it cannot
// reach Cpu.RequestExit directly; this is the thread-scoped equivalent a
// syscall handler actually has access to.
func (t *VMThread) RequestExit(code uint64) {
	t.exited = true
	t.exitCode = code
	t.time.Yield()
}

// Exited reports whether the thread ended via RequestExit rather than
// exhausting its slice or dying on a verification failure.
func (t *VMThread) Exited() bool     { return t.exited }
func (t *VMThread) ExitCode() uint64 { return t.exitCode }

// RequestsSyscall reports whether the thread is parked awaiting a
// syscall handoff.
func (t *VMThread) RequestsSyscall() bool { return t.requestsSyscall }
func (t *VMThread) resetSyscallRequest()  { t.requestsSyscall = false }

// enterSyscall yields the thread's slice and marks it syscall-pending;
// the VM loop's Execute observes requestsSyscall once back at a slice
// boundary and calls the configured SyscallHandler.
func (t *VMThread) enterSyscall() {
	t.Yield()
	t.requestsSyscall = true
}

func (t *VMThread) didSyscall(syscallNumber uint64) {
	t.stats.Syscalls++
	if t.profiling {
		t.syscalls = append(t.syscalls, SyscallEvent{Tick: t.time.Ns(), SyscallNumber: syscallNumber})
	}
}

// SetProfiling turns call/ret/syscall event collection on or off.
func (t *VMThread) SetProfiling(enabled bool) { t.profiling = enabled }

func (t *VMThread) pushCallstack(from, to uint64) {
	if t.profiling {
		t.calls = append(t.calls, CallEvent{Tick: t.time.Ns(), Address: to})
	}
	t.callpoints = append(t.callpoints, from)
	t.callstack = append(t.callstack, to)
}

func (t *VMThread) popCallstack() uint64 {
	if t.profiling {
		t.rets = append(t.rets, RetEvent{Tick: t.time.Ns()})
	}
	n := len(t.callstack) - 1
	address := t.callstack[n]
	t.callstack = t.callstack[:n]
	t.callpoints = t.callpoints[:n]
	return address
}

// Callstack returns the thread's current return-address stack, deepest
// frame last.
func (t *VMThread) Callstack() []uint64 { return append([]uint64(nil), t.callstack...) }

// ForEachCallEvent/ForEachRetEvent/ForEachSyscallEvent replay collected
// profiling events in recorded order, mirroring ThreadProfileData's
// forEachXEvent template methods.
func (t *VMThread) ForEachCallEvent(fn func(CallEvent)) {
	for _, e := range t.calls {
		fn(e)
	}
}

func (t *VMThread) ForEachRetEvent(fn func(RetEvent)) {
	for _, e := range t.rets {
		fn(e)
	}
}

func (t *VMThread) ForEachSyscallEvent(fn func(SyscallEvent)) {
	for _, e := range t.syscalls {
		fn(e)
	}
}
