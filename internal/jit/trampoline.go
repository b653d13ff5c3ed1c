package jit

import (
	"github.com/intuitionamiga/x64emulator/internal/jitasm"
)

// NativeArguments is the backing store compiled code's live guest
// registers are loaded from (on entry) and spilled back to (on exit),
// grounded on spec.md §4.6's trampoline paragraph. GPRs is indexed by
// ir.Reg (RAX..R15); slots 4 (RSP) and 15 (R15) are never read or
// written by compiled code — see translate.go's gprTable doc comment —
// and exist only so the array can be indexed directly by register
// number without an offset translation.
type NativeArguments struct {
	GPRs [16]uint64

	// NextRIP is the guest address execution resumes at once Exec
	// returns, written by the compiled block's own per-block exit glue
	// (see jit.go's tryCompile) before it jumps to the trampoline's
	// shared finish tail. The interpreter reads this to know where to
	// keep going; it has no other way to recover it, since every
	// compiled block's edges funnel through the same shared finish tail
	// rather than returning directly to distinguishable code.
	NextRIP uint64
}

// trampoline is the one-time-generated glue between Go and compiled
// guest code: an entry stub that loads 14 of the 16 guest GPRs from a
// NativeArguments into the identically-named host register and jumps to
// the requested block, and an exit path every compiled block eventually
// reaches that spills those 14 registers back and returns to the Go
// caller.
//
// The exit path is split in two, joined by an ordinary CALL/RET rather
// than falling straight through. exitStub is the shared spill code,
// restoring NativeArguments.GPRs from the live host registers; it ends
// in its own RET, making it a callable subroutine rather than a single
// fixed jump target. Every compiled block's placeholder jump (see
// jitblock.go's pendingFallthrough/pendingTaken) targets not exitStub
// itself but a small per-block exit glue (built in jit.go's tryCompile)
// that CALLs exitStub, and once it returns — registers now safely
// spilled, so a host register is free to scratch with — stores its own
// literal, compile-time-known guest resume address into
// NativeArguments.NextRIP before jumping to finish (discard the stale
// entry-point stack slot, RET to Go). A host CALL needs no spare
// register to hold exitStub's address, so this works even though every
// guest register is still live at the moment a block exits; it's what
// lets Go recover which guest address to resume at, which the shared
// stub alone could not (many blocks' edges all funnel through it).
//
// Grounded on original_source/.../x64/compiler/jit.h's Jit owning a
// jitTrampoline_, though the marshaling sequence itself (which registers
// are live, the stack-juggling to free one for the indirect jump) is new
// connective tissue: crossing from Go's calling convention into raw
// machine code has no single surviving original_source body to port, and
// the original's host is C++ calling its own compiled code directly,
// which doesn't face the same boundary.
type trampoline struct {
	code     MemoryBlock
	entry    uintptr
	exitStub uintptr
	finish   uintptr
}

// nextRIPOffset is NativeArguments.NextRIP's byte offset: 16 GPR slots
// of 8 bytes each precede it.
const nextRIPOffset = int32(16 * 8)

// mappedGPRs are the 14 ir.Reg indices the trampoline marshals; 4 (RSP)
// and 15 (R15) are reserved (see NativeArguments's doc comment).
var mappedGPRs = []int{0, 1, 2, 3, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}

func argsReg() jitasm.Reg { return jitasm.R15 }

func buildTrampoline(alloc *ExecutableMemoryAllocator) (*trampoline, error) {
	a := jitasm.New()

	for _, i := range mappedGPRs {
		a.MovRM64(jitasm.Reg(i), jitasm.Mem{Base: argsReg(), Disp: int32(i * 8)})
	}
	// The caller (asm_amd64.s) pushed the target block's entry point
	// before jumping here; read it straight off the stack so no
	// register needs to be sacrificed to hold it.
	a.JmpMem64(jitasm.Mem{Base: jitasm.RSP})

	entryCode := a.Code()
	entrySize := len(entryCode)

	for _, i := range mappedGPRs {
		a.MovMR64(jitasm.Mem{Base: argsReg(), Disp: int32(i * 8)}, jitasm.Reg(i))
	}
	a.Ret() // returns to whichever block's exit glue CALLed in here

	finishOffset := a.Len()
	a.AddRI64(jitasm.RSP, 8) // discard the stale entry-point slot left by asm_amd64.s
	a.Ret()

	code := a.Code()
	block, err := alloc.Allocate(uint32(len(code)))
	if err != nil {
		return nil, err
	}
	copy(block.Mem, code)

	base := hostAddr(block.Mem)
	return &trampoline{
		code:     block,
		entry:    base,
		exitStub: base + uintptr(entrySize),
		finish:   base + uintptr(finishOffset),
	}, nil
}
