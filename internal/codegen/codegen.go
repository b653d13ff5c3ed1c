// Package codegen lowers an optimized IR basic block into host x86-64
// machine code via internal/jitasm, selecting the narrowest instruction
// encoding the destination width allows and recording the block-chaining
// patch offsets internal/jit needs.
//
// Grounded on
// original_source/emulator/src/x64/compiler/codegenerator.cpp's
// CodeGenerator::tryGenerate: a single pass over the IR's instructions,
// switching on each instruction's Op and then pattern-matching its
// operand Kinds against the Assembler method that fits, failing the
// whole block if no combination matches. The original's packed
// SIMD/x87 tail (MOVA/PSHUFD/ADDSD/...) is not lowered here — only the
// general-purpose/control subset internal/jitasm currently encodes; see
// DESIGN.md.
package codegen

import (
	"github.com/intuitionamiga/x64emulator/internal/ir"
	"github.com/intuitionamiga/x64emulator/internal/jitasm"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

// NativeBasicBlock is the generated host code plus the offsets
// internal/jit needs to chain blocks together, mirroring the original's
// struct NativeBasicBlock (code, entrypointSize, the two replaceable-jump
// offsets).
type NativeBasicBlock struct {
	Code []byte

	// EntrypointSize is the byte offset past the block's JIT header
	// (prologue), i.e. where guest-instruction code begins.
	EntrypointSize int

	// JumpToNextOffset is the byte offset of the fall-through jump's
	// rel32 operand, patched by internal/jit once the next block's
	// address is known.
	JumpToNextOffset prim.Optional[int]

	// JumpToOtherOffset is the byte offset of the taken-branch jump's
	// rel32 operand.
	JumpToOtherOffset prim.Optional[int]
}

// Generate lowers block into native code, returning false if any
// instruction has no matching Assembler encoding. A false return is a
// compile failure, not a verification failure — callers fall back to the
// interpreter for this block (spec.md's ambient-stack error-handling
// tiers: expected, recoverable conditions are plain bool returns).
func Generate(block *ir.IR) (NativeBasicBlock, bool) {
	a := jitasm.New()
	labels := make([]*jitasm.Label, len(block.Labels))
	for i := range labels {
		labels[i] = a.NewLabel()
	}

	var entrypointSize int
	var jumpToNext, jumpToOther prim.Optional[int]

	headerPos, hasHeader := block.JitHeaderSize.Get()
	nextPos, hasNext := block.JumpToNext.Get()
	otherPos, hasOther := block.JumpToOther.Get()

	for i, in := range block.Instructions {
		for l, pos := range block.Labels {
			if pos == i {
				a.PutLabel(labels[l])
			}
		}
		if hasHeader && headerPos == i {
			entrypointSize = a.Len()
		}
		if !lower(a, labels, in) {
			return NativeBasicBlock{}, false
		}

		// the replaceable jumps are JMP/Jcc rel32, whose operand is the
		// last four bytes just emitted.
		if hasNext && nextPos == i {
			jumpToNext = prim.Some(a.Len() - 4)
		}
		if hasOther && otherPos == i {
			jumpToOther = prim.Some(a.Len() - 4)
		}
	}

	return NativeBasicBlock{
		Code:              a.Code(),
		EntrypointSize:    entrypointSize,
		JumpToNextOffset:  jumpToNext,
		JumpToOtherOffset: jumpToOther,
	}, true
}

// reg converts a host-independent IR register to its jitasm encoding.
// The two are numbered identically (0-15, RAX..R15) by convention (see
// internal/ir/reg.go), so this is a plain type conversion.
func reg(r ir.Reg) jitasm.Reg { return jitasm.Reg(r) }

// mem converts an IR memory operand to jitasm's addressing-mode shape.
// Scale 0 means "no index register" (a real SIB scale is always 1/2/4/8),
// the same sentinel internal/ir's Mem already uses implicitly.
func mem(m ir.Mem) jitasm.Mem {
	return jitasm.Mem{
		Base:     reg(m.Base),
		Index:    reg(m.Index),
		HasIndex: m.Scale != 0,
		Scale:    m.Scale,
		Disp:     int32(m.Disp),
	}
}

var condTable = [...]jitasm.Cond{
	ir.CondA: jitasm.CondA, ir.CondAE: jitasm.CondAE, ir.CondB: jitasm.CondB, ir.CondBE: jitasm.CondBE,
	ir.CondE: jitasm.CondE, ir.CondNE: jitasm.CondNE, ir.CondG: jitasm.CondG, ir.CondGE: jitasm.CondGE,
	ir.CondL: jitasm.CondL, ir.CondLE: jitasm.CondLE, ir.CondS: jitasm.CondS, ir.CondNS: jitasm.CondNS,
	ir.CondO: jitasm.CondO, ir.CondNO: jitasm.CondNO, ir.CondP: jitasm.CondP, ir.CondNP: jitasm.CondNP,
}

func cond(c ir.Cond) jitasm.Cond { return condTable[c] }

// imm32Fits reports whether v (carried as a KindImm8/16/32/64 payload)
// fits the int32 an Assembler immediate-form method accepts.
func imm32Fits(v uint64) (int32, bool) {
	if v > 0xFFFFFFFF {
		return 0, false
	}
	return int32(uint32(v)), true
}
