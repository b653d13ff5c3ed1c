package codegen

import (
	"github.com/intuitionamiga/x64emulator/internal/ir"
	"github.com/intuitionamiga/x64emulator/internal/jitasm"
)

// lower emits in's native encoding onto a, returning false if no
// Assembler method matches its operand Kinds/widths — the Go analogue of
// codegenerator.cpp's per-case "return fail()" fallthrough.
func lower(a *jitasm.Assembler, labels []*jitasm.Label, in ir.Instruction) bool {
	switch in.Op {
	case ir.OpMov:
		return lowerMov(a, in)
	case ir.OpMovzx:
		return lowerMovzx(a, in)
	case ir.OpMovsx:
		return lowerMovsx(a, in)
	case ir.OpAdd:
		return lowerAluRI(in, a.AddRR32, a.AddRR64, a.AddRI32, a.AddRI64)
	case ir.OpSub:
		return lowerAluRI(in, a.SubRR32, a.SubRR64, a.SubRI32, a.SubRI64)
	case ir.OpAnd:
		return lowerAluRI(in, a.AndRR32, a.AndRR64, a.AndRI32, a.AndRI64)
	case ir.OpOr:
		return lowerAluRI(in, a.OrRR32, a.OrRR64, a.OrRI32, a.OrRI64)
	case ir.OpCmp:
		return lowerCmp(a, in)
	case ir.OpTest:
		return lowerTest(a, in)
	case ir.OpXor:
		return lowerXor(a, in)
	case ir.OpNot:
		return lowerNot(a, in)
	case ir.OpShl:
		return lowerShift(a, in, a.ShlRI32, a.ShlRI64)
	case ir.OpShr:
		return lowerShift(a, in, a.ShrRI32, a.ShrRI64)
	case ir.OpSar:
		return lowerShift(a, in, a.SarRI32, a.SarRI64)
	case ir.OpLea:
		return lowerLea(a, in)
	case ir.OpPush:
		return lowerPush(a, in)
	case ir.OpPop:
		return lowerPop(a, in)
	case ir.OpPushf:
		a.Pushf()
		return true
	case ir.OpPopf:
		a.Popf()
		return true
	case ir.OpSet:
		return lowerSet(a, in)
	case ir.OpJcc:
		return lowerJcc(a, labels, in)
	case ir.OpJmp:
		return lowerJmp(a, labels, in)
	case ir.OpJmpInd:
		return lowerJmpInd(a, in)
	case ir.OpRet:
		a.Ret()
		return true
	default:
		return false
	}
}

func lowerMov(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	dstMem, dstIsMem := in.Out.Mem()
	srcReg, srcIsReg := in.In1.Reg()
	srcMem, srcIsMem := in.In1.Mem()
	srcImm, srcIsImm := in.In1.Imm()

	switch {
	case dstIsReg && srcIsReg && in.Out.Kind() == ir.KindR64 && in.In1.Kind() == ir.KindR64:
		a.MovRR64(reg(dstReg), reg(srcReg))
	case dstIsReg && srcIsReg && in.Out.Kind() == ir.KindR32 && in.In1.Kind() == ir.KindR32:
		a.MovRR32(reg(dstReg), reg(srcReg))
	case dstIsReg && srcIsMem && in.Out.Kind() == ir.KindR64:
		a.MovRM64(reg(dstReg), mem(srcMem))
	case dstIsReg && srcIsMem && in.Out.Kind() == ir.KindR32:
		a.MovRM32(reg(dstReg), mem(srcMem))
	case dstIsMem && srcIsReg && in.In1.Kind() == ir.KindR64:
		a.MovMR64(mem(dstMem), reg(srcReg))
	case dstIsMem && srcIsReg && in.In1.Kind() == ir.KindR32:
		a.MovMR32(mem(dstMem), reg(srcReg))
	case dstIsReg && srcIsImm && in.Out.Kind() == ir.KindR64 && in.In1.Kind() == ir.KindImm64:
		a.MovRI64(reg(dstReg), srcImm)
	case dstIsReg && srcIsImm && in.Out.Kind() == ir.KindR32 && in.In1.Kind() == ir.KindImm32:
		a.MovRI32(reg(dstReg), uint32(srcImm))
	default:
		return false
	}
	return true
}

func lowerMovzx(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	srcReg, srcIsReg := in.In1.Reg()
	if dstIsReg && srcIsReg && in.Out.Kind() == ir.KindR32 && in.In1.Kind() == ir.KindR8 {
		a.MovzxR32R8(reg(dstReg), reg(srcReg))
		return true
	}
	return false
}

func lowerMovsx(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	srcReg, srcIsReg := in.In1.Reg()
	if dstIsReg && srcIsReg && in.Out.Kind() == ir.KindR64 && in.In1.Kind() == ir.KindR32 {
		a.MovsxR64R32(reg(dstReg), reg(srcReg))
		return true
	}
	return false
}

// lowerAluRI handles the common RMW shape shared by ADD/SUB/AND/OR: Out
// and In1 name the same register (the read-modify-write destination) and
// In2 carries either a second register or an immediate.
func lowerAluRI(in ir.Instruction,
	rr32, rr64 func(dst, src jitasm.Reg), ri32, ri64 func(dst jitasm.Reg, imm int32)) bool {

	dstReg, dstIsReg := in.Out.Reg()
	src2Reg, src2IsReg := in.In2.Reg()
	src2Imm, src2IsImm := in.In2.Imm()
	if !dstIsReg {
		return false
	}

	switch {
	case in.Out.Kind() == ir.KindR32 && src2IsReg && in.In2.Kind() == ir.KindR32:
		rr32(reg(dstReg), reg(src2Reg))
	case in.Out.Kind() == ir.KindR64 && src2IsReg && in.In2.Kind() == ir.KindR64:
		rr64(reg(dstReg), reg(src2Reg))
	case in.Out.Kind() == ir.KindR32 && src2IsImm:
		imm, ok := imm32Fits(src2Imm)
		if !ok {
			return false
		}
		ri32(reg(dstReg), imm)
	case in.Out.Kind() == ir.KindR64 && src2IsImm:
		imm, ok := imm32Fits(src2Imm)
		if !ok {
			return false
		}
		ri64(reg(dstReg), imm)
	default:
		return false
	}
	return true
}

func lowerCmp(a *jitasm.Assembler, in ir.Instruction) bool {
	lhsReg, lhsIsReg := in.In1.Reg()
	rhsReg, rhsIsReg := in.In2.Reg()
	rhsImm, rhsIsImm := in.In2.Imm()
	if !lhsIsReg {
		return false
	}
	switch {
	case in.In1.Kind() == ir.KindR32 && rhsIsReg && in.In2.Kind() == ir.KindR32:
		a.CmpRR32(reg(lhsReg), reg(rhsReg))
	case in.In1.Kind() == ir.KindR64 && rhsIsReg && in.In2.Kind() == ir.KindR64:
		a.CmpRR64(reg(lhsReg), reg(rhsReg))
	case in.In1.Kind() == ir.KindR32 && rhsIsImm:
		imm, ok := imm32Fits(rhsImm)
		if !ok {
			return false
		}
		a.CmpRI32(reg(lhsReg), imm)
	case in.In1.Kind() == ir.KindR64 && rhsIsImm:
		imm, ok := imm32Fits(rhsImm)
		if !ok {
			return false
		}
		a.CmpRI64(reg(lhsReg), imm)
	default:
		return false
	}
	return true
}

func lowerTest(a *jitasm.Assembler, in ir.Instruction) bool {
	lhsReg, lhsIsReg := in.In1.Reg()
	rhsReg, rhsIsReg := in.In2.Reg()
	if !lhsIsReg || !rhsIsReg {
		return false
	}
	switch {
	case in.In1.Kind() == ir.KindR32 && in.In2.Kind() == ir.KindR32:
		a.TestRR32(reg(lhsReg), reg(rhsReg))
	case in.In1.Kind() == ir.KindR64 && in.In2.Kind() == ir.KindR64:
		a.TestRR64(reg(lhsReg), reg(rhsReg))
	default:
		return false
	}
	return true
}

// lowerXor has no immediate form in internal/jitasm (mirroring its
// incomplete XOR-immediate coverage — see internal/jitasm/alu.go).
func lowerXor(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	src2Reg, src2IsReg := in.In2.Reg()
	if !dstIsReg || !src2IsReg {
		return false
	}
	switch {
	case in.Out.Kind() == ir.KindR32 && in.In2.Kind() == ir.KindR32:
		a.XorRR32(reg(dstReg), reg(src2Reg))
	case in.Out.Kind() == ir.KindR64 && in.In2.Kind() == ir.KindR64:
		a.XorRR64(reg(dstReg), reg(src2Reg))
	default:
		return false
	}
	return true
}

func lowerNot(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	if !dstIsReg {
		return false
	}
	switch in.Out.Kind() {
	case ir.KindR32:
		a.NotR32(reg(dstReg))
	case ir.KindR64:
		a.NotR64(reg(dstReg))
	default:
		return false
	}
	return true
}

// lowerShift only handles shift-by-immediate; shift-by-CL has no
// Assembler encoding yet (see internal/jitasm).
func lowerShift(a *jitasm.Assembler, in ir.Instruction, ri32, ri64 func(dst jitasm.Reg, imm uint8)) bool {
	dstReg, dstIsReg := in.Out.Reg()
	amount, amountIsImm := in.In2.Imm()
	if !dstIsReg || !amountIsImm {
		return false
	}
	switch in.Out.Kind() {
	case ir.KindR32:
		ri32(reg(dstReg), uint8(amount))
	case ir.KindR64:
		ri64(reg(dstReg), uint8(amount))
	default:
		return false
	}
	return true
}

func lowerLea(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	srcMem, srcIsMem := in.In1.Mem()
	if dstIsReg && srcIsMem && in.Out.Kind() == ir.KindR64 {
		a.LeaR64(reg(dstReg), mem(srcMem))
		return true
	}
	return false
}

func lowerPush(a *jitasm.Assembler, in ir.Instruction) bool {
	srcReg, ok := in.In1.Reg()
	if !ok || in.In1.Kind() != ir.KindR64 {
		return false
	}
	a.Push64(reg(srcReg))
	return true
}

func lowerPop(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, ok := in.Out.Reg()
	if !ok || in.Out.Kind() != ir.KindR64 {
		return false
	}
	a.Pop64(reg(dstReg))
	return true
}

func lowerSet(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, dstIsReg := in.Out.Reg()
	c, hasCond := in.Condition.Get()
	if !dstIsReg || !hasCond {
		return false
	}
	a.SetCC(cond(c), reg(dstReg))
	return true
}

func lowerJcc(a *jitasm.Assembler, labels []*jitasm.Label, in ir.Instruction) bool {
	c, hasCond := in.Condition.Get()
	target, hasLabel := in.In1.Label()
	if !hasCond || !hasLabel || int(target.Index) >= len(labels) {
		return false
	}
	a.JumpCondition(cond(c), labels[target.Index])
	return true
}

func lowerJmp(a *jitasm.Assembler, labels []*jitasm.Label, in ir.Instruction) bool {
	target, hasLabel := in.In1.Label()
	if !hasLabel || int(target.Index) >= len(labels) {
		return false
	}
	a.Jmp(labels[target.Index])
	return true
}

func lowerJmpInd(a *jitasm.Assembler, in ir.Instruction) bool {
	dstReg, ok := in.In1.Reg()
	if !ok || in.In1.Kind() != ir.KindR64 {
		return false
	}
	a.JmpIndirect(reg(dstReg))
	return true
}
