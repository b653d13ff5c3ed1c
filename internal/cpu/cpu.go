package cpu

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/verify"
)

// Callback is the interpreter's notification surface toward the VM loop,
// per spec.md §4.5 ("CPU callbacks").
type Callback interface {
	OnSyscall()
	OnCall(address uint64)
	OnRet()
	OnStackChange(stackPointer uint64)
}

// NopCallback is a Callback that does nothing, for interpreter unit tests
// and other callers that don't need VM-loop hand-off.
type NopCallback struct{}

func (NopCallback) OnSyscall()              {}
func (NopCallback) OnCall(uint64)           {}
func (NopCallback) OnRet()                  {}
func (NopCallback) OnStackChange(uint64)    {}

// opHandler is one entry of the per-opcode dispatch table, per spec.md
// §4.4 ("Dispatch is a table indexed by the instruction's numeric kind").
type opHandler func(*Cpu, inst.Instruction)

// Cpu is one logical guest CPU: register/flag/FPU state plus the MMU it
// reads and writes through, generalized from
// _examples/IntuitionAmiga-IntuitionEngine/cpu_x86.go's CPU_X86 (32-bit
// flat model, byte-interface bus) to the 64-bit, typed-MMU model of
// spec.md §4.1/§4.4.
type Cpu struct {
	State    *GuestState
	Mmu      *mmu.Mmu
	Callback Callback

	dispatch map[x86asm.Op]opHandler

	// requestsSyscall/exitRequested mirror the per-thread flags of
	// spec.md §4.6; the VM loop consults them after each Step.
	requestsSyscall bool
	exitRequested   bool

	callStack []uint64 // return addresses, for the JIT trampoline's callstack buffer
}

// New constructs an interpreter over state and mmu with the given
// callback. A nil callback is replaced with NopCallback.
func New(state *GuestState, m *mmu.Mmu, cb Callback) *Cpu {
	if cb == nil {
		cb = NopCallback{}
	}
	c := &Cpu{State: state, Mmu: m, Callback: cb}
	c.dispatch = buildDispatchTable()
	return c
}

// RequestsSyscall reports whether the last executed instruction was a
// syscall opcode awaiting handoff, per spec.md §4.6.
func (c *Cpu) RequestsSyscall() bool { return c.requestsSyscall }
func (c *Cpu) ClearSyscallRequest()  { c.requestsSyscall = false }
func (c *Cpu) ExitRequested() bool   { return c.exitRequested }

// RequestExit marks the CPU as done, for the kernel layer to call once it
// has resolved a syscall to be a thread/process exit (exit/exit_group);
// recognizing which syscall number means "exit" is outside this package.
func (c *Cpu) RequestExit() { c.exitRequested = true }

// Execute runs one decoded instruction's semantics. Unsupported opcodes
// surface as a verify.Failure, consistent with spec.md §7's "unimplemented
// opcode" failure mode.
func (c *Cpu) Execute(in inst.Instruction) {
	handler, ok := c.dispatch[in.Op]
	verify.That(ok, "cpu: unimplemented opcode %s at %#x", in.Op, in.Addr)
	c.State.SetRIP(in.NextAddr())
	handler(c, in)
}

// RunBlock executes a sequence of instructions in order — the
// interpreter's half of spec.md §4.4's "Cpu runs the block (interpreter)".
// It stops early if RIP is redirected away from the expected fall-through
// address, which the control-transfer handlers do deliberately.
func (c *Cpu) RunBlock(block []inst.Instruction) {
	for _, in := range block {
		expected := in.NextAddr()
		c.Execute(in)
		if c.State.RIPValue() != expected {
			return
		}
	}
}

func buildDispatchTable() map[x86asm.Op]opHandler {
	t := make(map[x86asm.Op]opHandler, 128)
	registerIntegerOps(t)
	registerBranchOps(t)
	registerStringOps(t)
	registerLockOps(t)
	return t
}
