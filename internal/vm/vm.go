// Package vm implements the VM loop of spec.md §4.7: round-robin
// scheduling of guest threads over a single Cpu/Mmu/Jit triple, slice-
// bounded execution, and the syscall/exit suspension points of §5.
//
// Grounded on original_source/emulator/include/emulator/vm.h and
// vmthread.h. The original's VM owns a Cpu&/Mmu& handed to it by an
// outer process-loader layer; this VM instead constructs and owns its
// Cpu, Mmu, Jit, and DisassemblyCache itself, taking spec.md §6's
// configuration envelope (reservation size, compilation threshold,
// telemetry level, chaining switch) as its one constructor argument —
// the envelope the spec names is, read literally, exactly a Config
// struct.
package vm

import (
	"fmt"

	"github.com/intuitionamiga/x64emulator/internal/cpu"
	"github.com/intuitionamiga/x64emulator/internal/disasmcache"
	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/jit"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/verify"
)

// SyscallHandler is the kernel layer's hand-off point (spec.md §4.7: "on
// syscall, hand off to the external handler (not in this spec) then
// re-enter"). A nil handler leaves the syscall request pending-cleared
// with no guest-visible effect, which is enough for engine-only tests
// that never execute a SYSCALL instruction for real.
type SyscallHandler interface {
	HandleSyscall(thread *VMThread, state *cpu.GuestState)
}

// Config is the construction-time envelope spec.md §6 names.
type Config struct {
	// MmuReservationSize is the host address space reserved to back guest
	// memory. Zero defaults to 64 GiB.
	MmuReservationSize uint64

	// CompilationThreshold seeds every CodeSegment's callsForCompilation.
	// Zero defaults to jit.DefaultCompilationThreshold (1024).
	CompilationThreshold uint64

	// Telemetry selects how much JIT/block-cache bookkeeping is kept.
	Telemetry TelemetryLevel

	// DisableChaining turns off block chaining (spec.md's
	// jitChainingEnabled switch, default on — named as a negative so the
	// zero value matches the spec's default).
	DisableChaining bool

	// WithMutex guards the disassembly cache with a mutex, for a VM
	// shared across more than one host thread (spec.md §5's
	// MULTIPROCESSING flag, reborn as a runtime option — see
	// disasmcache.WithMutex).
	WithMutex bool

	// Retriever supplies bytes for addresses the disassembly cache
	// misses on. Nil defaults to reading straight through the VM's own
	// Mmu (disasmcache.MmuBytecodeRetriever).
	Retriever disasmcache.BytecodeRetriever

	// Syscall is the kernel-layer hand-off; see SyscallHandler.
	Syscall SyscallHandler
}

// VM owns one logical guest CPU (a Cpu/Mmu/Jit/DisassemblyCache set) and
// schedules one or more VMThreads over it in round-robin slices, per
// spec.md §5's single-guest-CPU-per-host-thread concurrency model.
type VM struct {
	cpu       *cpu.Cpu
	mmu       *mmu.Mmu
	jit       *jit.Jit
	cache     *disasmcache.DisassemblyCache
	retriever disasmcache.BytecodeRetriever
	syscall   SyscallHandler

	current *VMThread
	tel     telemetry
}

// New constructs a VM's Cpu, Mmu, Jit, and DisassemblyCache from cfg,
// wiring the disassembly cache as an Mmu.Callback so EXEC-affecting
// region operations invalidate it automatically (spec.md §9 "self-
// modifying code").
func New(cfg Config) (*VM, error) {
	if cfg.MmuReservationSize == 0 {
		cfg.MmuReservationSize = 64 << 30
	}
	if cfg.CompilationThreshold == 0 {
		cfg.CompilationThreshold = jit.DefaultCompilationThreshold
	}

	m, err := mmu.New(cfg.MmuReservationSize)
	if err != nil {
		return nil, fmt.Errorf("vm: reserving guest memory: %w", err)
	}

	j, err := jit.New(jit.WithCompilationThreshold(cfg.CompilationThreshold))
	if err != nil {
		return nil, fmt.Errorf("vm: building jit trampoline: %w", err)
	}
	j.SetChainingEnabled(!cfg.DisableChaining)

	var cacheOpts []disasmcache.Option
	if cfg.WithMutex {
		cacheOpts = append(cacheOpts, disasmcache.WithMutex(true))
	}
	cache := disasmcache.New(0, cacheOpts...)
	m.AddCallback(cache)

	vm := &VM{
		mmu:     m,
		jit:     j,
		cache:   cache,
		syscall: cfg.Syscall,
		tel:     newTelemetry(cfg.Telemetry),
	}
	vm.cpu = cpu.New(cpu.NewGuestState(), m, &cpuCallback{vm: vm})

	vm.retriever = cfg.Retriever
	if vm.retriever == nil {
		vm.retriever = &disasmcache.MmuBytecodeRetriever{Mmu: m}
	}

	return vm, nil
}

func (vm *VM) Mmu() *mmu.Mmu             { return vm.mmu }
func (vm *VM) Cpu() *cpu.Cpu             { return vm.cpu }
func (vm *VM) Jit() *jit.Jit             { return vm.jit }
func (vm *VM) Telemetry() string         { return vm.tel.Dump() }
func (vm *VM) CurrentThread() *VMThread  { return vm.current }

// Execute drives thread until one of: its slice is exhausted, it
// requests a syscall, or the CPU has been asked to exit (spec.md §4.7).
// A verification failure (decoder/memory/unimplemented-opcode) kills
// thread rather than the process, per spec.md §7.
func (vm *VM) Execute(thread *VMThread) {
	defer verify.Recover(func(reason string) { thread.markDead(reason) })

	vm.contextSwitch(thread)
	defer vm.syncThread()

	for !thread.time.IsStopAsked() && !vm.cpu.ExitRequested() && !thread.exited {
		vm.step()
		if vm.cpu.RequestsSyscall() {
			vm.enterSyscall()
			return
		}
	}
}

// contextSwitch loads thread's saved guest state into the shared Cpu,
// mirroring VM::contextSwitch.
func (vm *VM) contextSwitch(thread *VMThread) {
	vm.current = thread
	*vm.cpu.State = thread.saved
}

// syncThread writes the shared Cpu's live state back into the thread
// that was just running, mirroring VM::syncThread.
func (vm *VM) syncThread() {
	if vm.current != nil {
		vm.current.saved = *vm.cpu.State
	}
}

// enterSyscall parks thread awaiting the kernel layer and hands it off,
// mirroring VM::enterSyscall.
func (vm *VM) enterSyscall() {
	thread := vm.current
	syscallNumber := vm.cpu.State.GPRValue(cpu.RAX)
	thread.enterSyscall()
	vm.cpu.ClearSyscallRequest()
	if vm.syscall != nil {
		vm.syscall.HandleSyscall(thread, vm.cpu.State)
	}
	thread.didSyscall(syscallNumber)
	thread.resetSyscallRequest()
}

// step runs exactly one basic block starting at the current RIP,
// through the JIT if compiled, else the interpreter, then reports the
// block's outcome to the Jit's successor tables and the telemetry
// counters.
func (vm *VM) step() {
	address := vm.cpu.State.RIPValue()
	block := vm.cache.GetBasicBlock(address, vm.retriever)
	verify.That(len(block) > 0, "vm: empty basic block at %#x", address)

	h := vm.jit.Segment(address, block)
	native := vm.jit.OnCall(h)
	if native {
		vm.runNative(h)
		vm.jit.RecordNativeCall(h)
	} else {
		vm.cpu.RunBlock(block)
	}

	vm.current.time.Tick(uint64(len(block)))
	vm.tel.updateJitStats(address, native, block)
	vm.linkSuccessor(h, block)
}

// runNative marshals the live guest GPRs into a jit.NativeArguments,
// jumps into h's compiled code, and unmarshals the result, including the
// resume address the block's exit glue wrote to NextRIP (the only way to
// recover it — see trampoline.go).
func (vm *VM) runNative(h jit.SegmentHandle) {
	var args jit.NativeArguments
	for i := range args.GPRs {
		args.GPRs[i] = vm.cpu.State.GPRs[i]
	}
	vm.jit.Exec(h, &args)
	for i := range args.GPRs {
		vm.cpu.State.GPRs[i] = args.GPRs[i]
	}
	vm.cpu.State.SetRIP(args.NextRIP)
}

// linkSuccessor resolves which role (fallthrough, taken, or variable)
// the block's terminator exited through and reports the concrete next
// segment to the Jit, enabling both block chaining and indirect-branch
// dispatch tables, per spec.md §4.6.
func (vm *VM) linkSuccessor(h jit.SegmentHandle, block []inst.Instruction) {
	next := vm.cpu.State.RIPValue()
	nextH, ok := vm.jit.Lookup(next)
	if !ok {
		// next hasn't been decoded into a segment by its own step() yet;
		// nothing to link against until it has (a later visit, once next
		// has been seen at least once itself, will supply the link).
		return
	}

	last := block[len(block)-1]
	switch {
	case last.IsConditionalJump() && last.IsFixedDestinationJump():
		if next == last.BranchTarget() {
			vm.jit.LinkSuccessor(h, nextH, jit.RoleTaken, next)
		} else {
			vm.jit.LinkSuccessor(h, nextH, jit.RoleFallthrough, next)
		}
	case last.IsFixedDestinationJump():
		vm.jit.LinkSuccessor(h, nextH, jit.RoleFallthrough, next)
	case last.IsControlTransfer():
		vm.jit.LinkSuccessor(h, nextH, jit.RoleVariable, next)
	}
}

// cpuCallback forwards cpu.Callback events into VM-level bookkeeping,
// grounded on VM::CpuCallback.
type cpuCallback struct {
	vm *VM
}

func (c *cpuCallback) OnSyscall() {
	// Handled by Execute's post-step RequestsSyscall check instead of
	// here: by the time that check runs, the whole block (and any
	// chaining bookkeeping step() does afterward) has completed, which a
	// callback fired mid-instruction cannot guarantee.
}

func (c *cpuCallback) OnCall(address uint64) {
	vm := c.vm
	sp := vm.cpu.State.GPRValue(cpu.RSP)
	retAddr := vm.mmu.Read64(sp)
	vm.current.pushCallstack(retAddr, address)
	vm.current.stats.FunctionCalls++
	vm.current.stats.Calls = append(vm.current.stats.Calls, FunctionCall{
		Tick:    vm.current.time.Ns(),
		Depth:   uint64(len(vm.current.callstack)),
		Address: address,
	})
}

func (c *cpuCallback) OnRet() {
	if len(c.vm.current.callstack) > 0 {
		c.vm.current.popCallstack()
	}
}

func (c *cpuCallback) OnStackChange(stackPointer uint64) {}
