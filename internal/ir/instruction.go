package ir

import "github.com/intuitionamiga/x64emulator/internal/prim"

// Instruction is one three-address IR instruction, grounded on
// original_source/emulator/include/x64/compiler/ir.h's ir::Instruction.
type Instruction struct {
	Op  Op
	Out Operand
	In1 Operand
	In2 Operand

	Condition  prim.Optional[Cond]
	FCondition prim.Optional[FCond]

	// ImpactedRegisters are auxiliary reads/writes not captured by
	// Out/In1/In2 — e.g. REP string ops implicitly touching RCX/RSI/RDI.
	ImpactedRegisters []Reg
}

func NewInstruction(op Op, args ...Operand) Instruction {
	in := Instruction{Op: op}
	if len(args) > 0 {
		in.Out = args[0]
	}
	if len(args) > 1 {
		in.In1 = args[1]
	}
	if len(args) > 2 {
		in.In2 = args[2]
	}
	return in
}

func (in Instruction) WithCond(cond Cond) Instruction {
	in.Condition = prim.Some(cond)
	return in
}

func (in Instruction) WithFCond(cond FCond) Instruction {
	in.FCondition = prim.Some(cond)
	return in
}

func (in *Instruction) AddImpactedRegister(r Reg) {
	in.ImpactedRegisters = append(in.ImpactedRegisters, r)
}

// CanModifyFlags reports whether executing this instruction updates the
// guest flags register.
func (in Instruction) CanModifyFlags() bool { return in.Op.WritesFlags() }

// ReadsFrom reports whether this instruction reads register r, either
// directly (In1/In2, or Out when Out is also a read for RMW ops) or via
// memory addressing.
func (in Instruction) ReadsFrom(r Reg) bool {
	if in.In1.IsRegister(r) || in.In2.IsRegister(r) || in.In1.ReadsFromMemory(r) || in.In2.ReadsFromMemory(r) || in.Out.ReadsFromMemory(r) {
		return true
	}
	for _, ir := range in.ImpactedRegisters {
		if ir == r {
			return true
		}
	}
	return isReadModifyWrite(in.Op) && in.Out.IsRegister(r)
}

// WritesTo reports whether this instruction writes register r.
func (in Instruction) WritesTo(r Reg) bool {
	return in.Out.IsRegister(r)
}

// MayWriteToMemory reports whether this instruction's Out operand is a
// memory reference (a conservative "may alias anything" signal for the
// optimizer, mirroring the original's mayWriteTo(M64)).
func (in Instruction) MayWriteToMemory() bool {
	_, ok := in.Out.Mem()
	return ok
}

// isReadModifyWrite marks ops whose Out operand is also an implicit
// input, per x86 RMW semantics (ADD dst,src reads dst before writing it).
func isReadModifyWrite(op Op) bool {
	switch op {
	case OpAdd, OpAdc, OpSub, OpSbb, OpAnd, OpOr, OpXor, OpShl, OpShr, OpSar,
		OpRol, OpRor, OpNot, OpNeg, OpInc, OpDec, OpBt, OpBtr, OpBts:
		return true
	}
	return false
}

// CanCommute reports whether a and b can be safely swapped in execution
// order: they must touch disjoint locations and neither may affect flags
// the other reads, per spec.md §4.5.2's delayed-read-back-elimination
// commutability check.
func CanCommute(a, b Instruction) bool {
	if a.MayWriteToMemory() || b.MayWriteToMemory() {
		return false // conservative: either could alias the other's memory operand
	}
	if b.CanModifyFlags() && instructionReadsFlags(a) {
		return false
	}
	if a.CanModifyFlags() && instructionReadsFlags(b) {
		return false
	}
	aOutReg, aHasReg := a.Out.Reg()
	if aHasReg && (b.ReadsFrom(aOutReg) || b.WritesTo(aOutReg)) {
		return false
	}
	bOutReg, bHasReg := b.Out.Reg()
	if bHasReg && (a.ReadsFrom(bOutReg) || a.WritesTo(bOutReg)) {
		return false
	}
	return true
}

// instructionReadsFlags reports whether op's execution consults the
// carry/zero/etc. flags from a prior instruction (ADC/SBB add the carry
// in; JCC/SET/CMOV consult a condition).
func instructionReadsFlags(in Instruction) bool {
	switch in.Op {
	case OpAdc, OpSbb:
		return true
	}
	return in.Op == OpJcc || in.Op == OpSet || in.Op == OpCmov
}
