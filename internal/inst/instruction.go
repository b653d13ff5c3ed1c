// Package inst provides the engine's typed instruction representation and
// its binding to an external decoder, per spec.md §2 ("wrap an external
// decoder to convert raw bytes into them").
//
// Grounded on mewmew-x/disasm/x86/x86.go's decodeInst/isTerm shape; the
// decoder itself is golang.org/x/arch/x86/x86asm, a real, actively
// maintained Go x86 instruction decoder — exactly the kind of dependency
// spec.md asks the instruction model to wrap rather than reimplement.
package inst

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Mode64 is the only processor mode this engine decodes in: user-mode
// 64-bit long mode, per spec.md §1.
const Mode64 = 64

// Instruction is a single decoded x86-64 instruction at a guest address.
type Instruction struct {
	Addr uint64
	x86asm.Inst
}

// Decode decodes the leading bytes of src as one instruction at addr.
// Mirrors mewmew-x's decodeInst: on failure it returns a zero-value
// Instruction and the decoder's error, which the cache/interpreter convert
// into a verification failure.
func Decode(addr uint64, src []byte) (Instruction, error) {
	raw, err := x86asm.Decode(src, Mode64)
	if err != nil {
		return Instruction{}, fmt.Errorf("inst: decode failed at %#x: %w", addr, err)
	}
	return Instruction{Addr: addr, Inst: raw}, nil
}

func (i Instruction) String() string {
	return x86asm.GNUSyntax(i.Inst, i.Addr, nil)
}

// NextAddr returns the address immediately following this instruction.
func (i Instruction) NextAddr() uint64 { return i.Addr + uint64(i.Len) }

// IsControlTransfer reports whether this instruction ends a basic block,
// per spec.md §3 ("The block ends at the first control-transfer
// instruction").
func (i Instruction) IsControlTransfer() bool {
	switch i.Op {
	case x86asm.JMP, x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ,
		x86asm.JRCXZ, x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE,
		x86asm.CALL, x86asm.RET, x86asm.SYSCALL:
		return true
	}
	return false
}

// IsFixedDestinationJump reports whether this instruction's target is a
// compile-time literal: a direct jump or call, per spec.md §3.
func (i Instruction) IsFixedDestinationJump() bool {
	switch i.Op {
	case x86asm.JMP, x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ,
		x86asm.JRCXZ, x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE,
		x86asm.CALL:
		if len(i.Args) == 0 {
			return false
		}
		_, ok := i.Args[0].(x86asm.Rel)
		return ok
	}
	return false
}

// BranchTarget returns the literal target address of a fixed-destination
// jump/call, valid only when IsFixedDestinationJump is true.
func (i Instruction) BranchTarget() uint64 {
	rel := i.Args[0].(x86asm.Rel)
	return uint64(int64(i.NextAddr()) + int64(rel))
}

// IsConditionalJump reports whether execution may fall through.
func (i Instruction) IsConditionalJump() bool {
	switch i.Op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO,
		x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	}
	return false
}

func (i Instruction) IsCall() bool    { return i.Op == x86asm.CALL }
func (i Instruction) IsRet() bool     { return i.Op == x86asm.RET }
func (i Instruction) IsSyscall() bool { return i.Op == x86asm.SYSCALL }
func (i Instruction) IsLocked() bool {
	for _, p := range i.Prefix {
		if p == 0 {
			break
		}
		if p&0xff == x86asm.PrefixLOCK {
			return true
		}
	}
	return false
}
