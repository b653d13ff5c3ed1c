package jit

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/ir"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

// translate lowers one decoded basic block (as internal/disasmcache hands
// it out: a []inst.Instruction ending at the first control transfer) into
// the compiler's IR. It covers a deliberately scoped representative
// subset of the general-purpose instruction set — the same subset
// internal/codegen and internal/jitasm can encode — and reports false for
// anything wider, leaving the block to the interpreter. This mirrors the
// intent of original_source/emulator/include/x64/compiler/compiler.h's
// per-instruction-shape Compiler (the newer ir.h/codegenerator.h pipeline
// this package otherwise follows has no single surviving translation
// stage in the retrieved sources, so this file is grounded on Compiler's
// dispatch shape rather than ported from it line for line).
//
// RET, CALL, SYSCALL, and indirect/JCXZ/LOOP control transfers are not
// translated: they need guest call-stack or syscall-handoff semantics
// the JIT runtime does not yet model, so a block ending in one of them
// fails translation and runs interpreted instead. PUSH/POP/PUSHFQ/POPFQ
// are excluded for the same reason (see gprTable's doc comment on the
// guest stack pointer), as is any instruction naming RSP or R15.
// blockEdges carries the literal guest addresses a translated block may
// resume at after it exits through the trampoline, alongside the ir.IR's
// own instruction-offset bookkeeping (JumpToNext/JumpToOther) used to
// locate the corresponding placeholder jumps. Populated only for the
// edges translateTerminator actually emits.
type blockEdges struct {
	next  prim.Optional[uint64]
	other prim.Optional[uint64]
}

func translate(block []inst.Instruction) (*ir.IR, blockEdges, bool) {
	out := &ir.IR{}
	for idx, in := range block {
		last := idx == len(block)-1
		if in.IsControlTransfer() {
			if !last {
				return nil, blockEdges{}, false // only the final instruction may transfer control
			}
			return translateTerminator(out, in)
		}
		if !translateInstruction(out, in) {
			return nil, blockEdges{}, false
		}
	}
	return out, blockEdges{}, true
}

func translateTerminator(out *ir.IR, in inst.Instruction) (*ir.IR, blockEdges, bool) {
	switch {
	case in.IsConditionalJump() && in.IsFixedDestinationJump():
		c, ok := condFromOp(in.Op)
		if !ok {
			return nil, blockEdges{}, false
		}
		other := out.NewLabel(-1)
		next := out.NewLabel(-1)
		out.Instructions = append(out.Instructions,
			ir.NewInstruction(ir.OpJcc, ir.None(), ir.Label(other)).WithCond(c),
			ir.NewInstruction(ir.OpJmp, ir.None(), ir.Label(next)))
		out.JumpToOther = prim.Some(len(out.Instructions) - 2)
		out.JumpToNext = prim.Some(len(out.Instructions) - 1)
		edges := blockEdges{next: prim.Some(in.NextAddr()), other: prim.Some(in.BranchTarget())}
		return out, edges, true
	case in.Op == x86asm.JMP && in.IsFixedDestinationJump():
		next := out.NewLabel(-1)
		out.Instructions = append(out.Instructions, ir.NewInstruction(ir.OpJmp, ir.None(), ir.Label(next)))
		out.JumpToNext = prim.Some(len(out.Instructions) - 1)
		edges := blockEdges{next: prim.Some(in.BranchTarget())}
		return out, edges, true
	default:
		// RET/CALL/SYSCALL/indirect jumps/JCXZ/LOOP: not compiled.
		return nil, blockEdges{}, false
	}
}

var condFromOpTable = map[x86asm.Op]ir.Cond{
	x86asm.JA: ir.CondA, x86asm.JAE: ir.CondAE, x86asm.JB: ir.CondB, x86asm.JBE: ir.CondBE,
	x86asm.JE: ir.CondE, x86asm.JNE: ir.CondNE, x86asm.JG: ir.CondG, x86asm.JGE: ir.CondGE,
	x86asm.JL: ir.CondL, x86asm.JLE: ir.CondLE, x86asm.JS: ir.CondS, x86asm.JNS: ir.CondNS,
	x86asm.JO: ir.CondO, x86asm.JNO: ir.CondNO, x86asm.JP: ir.CondP, x86asm.JNP: ir.CondNP,
}

func condFromOp(op x86asm.Op) (ir.Cond, bool) {
	c, ok := condFromOpTable[op]
	return c, ok
}

// gprInfo is translate's own, narrower register table: only the 32- and
// 64-bit GPR names internal/jitasm can encode, grounded on the same shape
// as internal/cpu/regmap.go's regTable but scoped to the JIT's subset.
//
// RSP and R15 are deliberately absent. The trampoline (trampoline.go)
// maps guest GPRs directly onto the identically-named host register for
// the duration of compiled execution, which leaves no free host register
// for bookkeeping — so two are reserved outright rather than mapped:
// host RSP stays the real host stack pointer (compiled blocks never
// push/pop/call, so this is safe), and host R15 permanently holds the
// *NativeArguments pointer so entry/exit can address the backing array
// without first needing a register to find it. Any instruction naming
// the guest stack pointer or R15 therefore fails translation here and
// runs interpreted instead, alongside CALL/RET/PUSH/POP/PUSHFQ/POPFQ
// (excluded for the same reason — they would touch the guest stack,
// which this subset does not model as live host RSP).
type gprInfo struct {
	reg   ir.Reg
	width ir.Kind
}

var gprTable = map[x86asm.Reg]gprInfo{
	x86asm.EAX: {ir.RegRAX, ir.KindR32}, x86asm.ECX: {ir.RegRCX, ir.KindR32}, x86asm.EDX: {ir.RegRDX, ir.KindR32}, x86asm.EBX: {ir.RegRBX, ir.KindR32},
	x86asm.EBP: {ir.RegRBP, ir.KindR32}, x86asm.ESI: {ir.RegRSI, ir.KindR32}, x86asm.EDI: {ir.RegRDI, ir.KindR32},
	x86asm.R8L: {ir.RegR8, ir.KindR32}, x86asm.R9L: {ir.RegR9, ir.KindR32}, x86asm.R10L: {ir.RegR10, ir.KindR32}, x86asm.R11L: {ir.RegR11, ir.KindR32},
	x86asm.R12L: {ir.RegR12, ir.KindR32}, x86asm.R13L: {ir.RegR13, ir.KindR32}, x86asm.R14L: {ir.RegR14, ir.KindR32},

	x86asm.RAX: {ir.RegRAX, ir.KindR64}, x86asm.RCX: {ir.RegRCX, ir.KindR64}, x86asm.RDX: {ir.RegRDX, ir.KindR64}, x86asm.RBX: {ir.RegRBX, ir.KindR64},
	x86asm.RBP: {ir.RegRBP, ir.KindR64}, x86asm.RSI: {ir.RegRSI, ir.KindR64}, x86asm.RDI: {ir.RegRDI, ir.KindR64},
	x86asm.R8: {ir.RegR8, ir.KindR64}, x86asm.R9: {ir.RegR9, ir.KindR64}, x86asm.R10: {ir.RegR10, ir.KindR64}, x86asm.R11: {ir.RegR11, ir.KindR64},
	x86asm.R12: {ir.RegR12, ir.KindR64}, x86asm.R13: {ir.RegR13, ir.KindR64}, x86asm.R14: {ir.RegR14, ir.KindR64},
}

func operandFromReg(r x86asm.Reg) (ir.Operand, bool) {
	info, ok := gprTable[r]
	if !ok {
		return ir.Operand{}, false
	}
	switch info.width {
	case ir.KindR32:
		return ir.R32(info.reg), true
	default:
		return ir.R64(info.reg), true
	}
}

func memFromX86(m x86asm.Mem) (ir.Mem, bool) {
	base, baseOK := gprTable[m.Base]
	if m.Base != 0 && !baseOK {
		return ir.Mem{}, false
	}
	out := ir.Mem{Disp: m.Disp}
	if baseOK {
		out.Base = base.reg
	}
	if m.Index != 0 {
		index, ok := gprTable[m.Index]
		if !ok {
			return ir.Mem{}, false
		}
		out.Index = index.reg
		out.Scale = m.Scale
	}
	return out, true
}

func memOperand(m x86asm.Mem, is64 bool) (ir.Operand, bool) {
	mm, ok := memFromX86(m)
	if !ok {
		return ir.Operand{}, false
	}
	if is64 {
		return ir.M64(mm), true
	}
	return ir.M32(mm), true
}

// translateInstruction lowers one non-terminating instruction, appending
// zero or more IR instructions to out.
func translateInstruction(out *ir.IR, in inst.Instruction) bool {
	switch in.Op {
	case x86asm.MOV:
		return translateMov(out, in)
	case x86asm.ADD:
		return translateAluRMW(out, in, ir.OpAdd)
	case x86asm.SUB:
		return translateAluRMW(out, in, ir.OpSub)
	case x86asm.AND:
		return translateAluRMW(out, in, ir.OpAnd)
	case x86asm.OR:
		return translateAluRMW(out, in, ir.OpOr)
	case x86asm.XOR:
		return translateXor(out, in)
	case x86asm.CMP:
		return translateCmpTest(out, in, ir.OpCmp)
	case x86asm.TEST:
		return translateCmpTest(out, in, ir.OpTest)
	case x86asm.NOT:
		return translateUnary(out, in, ir.OpNot)
	case x86asm.SHL:
		return translateShift(out, in, ir.OpShl)
	case x86asm.SHR:
		return translateShift(out, in, ir.OpShr)
	case x86asm.SAR:
		return translateShift(out, in, ir.OpSar)
	case x86asm.LEA:
		return translateLea(out, in)
	case x86asm.NOP:
		return true
	default:
		switch {
		case isSetcc(in.Op):
			return translateSet(out, in)
		}
		return false
	}
}

func is64Bit(r x86asm.Reg) bool { return gprTable[r].width == ir.KindR64 }

// translateMov only lowers a register destination: a memory destination
// would need the store's operand width disambiguated independently of
// any register operand, which x86asm's Mem doesn't carry, so MOV-to-
// memory falls back to the interpreter in this subset.
func translateMov(out *ir.IR, in inst.Instruction) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	src, ok := srcOperand(in.Args[1], is64Bit(dstReg))
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(ir.OpMov, dst, src))
	return true
}

func srcOperand(a x86asm.Arg, is64 bool) (ir.Operand, bool) {
	switch v := a.(type) {
	case x86asm.Reg:
		return operandFromReg(v)
	case x86asm.Mem:
		return memOperand(v, is64)
	case x86asm.Imm:
		if is64 {
			return ir.Imm64(uint64(int64(v))), true
		}
		return ir.Imm32(uint32(int64(v))), true
	default:
		return ir.Operand{}, false
	}
}

// translateAluRMW lowers the two-operand read-modify-write shape shared
// by ADD/SUB/AND/OR: dst,dst,src — Out and In1 both name the destination
// (In1 unused by internal/codegen's lowering but kept for RMW realism),
// In2 carries the second operand.
func translateAluRMW(out *ir.IR, in inst.Instruction, op ir.Op) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	src, ok := srcOperand(in.Args[1], is64Bit(dstReg))
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(op, dst, dst, src))
	return true
}

// translateXor mirrors translateAluRMW but rejects an immediate second
// operand: internal/jitasm has no XOR-immediate encoding.
func translateXor(out *ir.IR, in inst.Instruction) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	srcReg, ok := in.Args[1].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	src, ok := operandFromReg(srcReg)
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(ir.OpXor, dst, dst, src))
	return true
}

func translateCmpTest(out *ir.IR, in inst.Instruction, op ir.Op) bool {
	lhsReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	lhs, ok := operandFromReg(lhsReg)
	if !ok {
		return false
	}
	rhs, ok := srcOperand(in.Args[1], is64Bit(lhsReg))
	if !ok {
		return false
	}
	if op == ir.OpTest {
		if _, isImm := rhs.Imm(); isImm {
			return false // internal/jitasm's TEST is register-register only
		}
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(op, ir.None(), lhs, rhs))
	return true
}

func translateUnary(out *ir.IR, in inst.Instruction, op ir.Op) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(op, dst, dst))
	return true
}

// translateShift only handles shift-by-immediate; shift-by-CL has no
// internal/jitasm encoding.
func translateShift(out *ir.IR, in inst.Instruction, op ir.Op) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	imm, ok := in.Args[1].(x86asm.Imm)
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(op, dst, dst, ir.Imm8(uint8(imm))))
	return true
}

func translateLea(out *ir.IR, in inst.Instruction) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok || !is64Bit(dstReg) {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	srcMem, ok := in.Args[1].(x86asm.Mem)
	if !ok {
		return false
	}
	mm, ok := memFromX86(srcMem)
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(ir.OpLea, dst, ir.M64(mm)))
	return true
}

func isSetcc(op x86asm.Op) bool {
	switch op {
	case x86asm.SETA, x86asm.SETAE, x86asm.SETB, x86asm.SETBE, x86asm.SETE, x86asm.SETNE,
		x86asm.SETG, x86asm.SETGE, x86asm.SETL, x86asm.SETLE, x86asm.SETS, x86asm.SETNS,
		x86asm.SETO, x86asm.SETNO, x86asm.SETP, x86asm.SETNP:
		return true
	}
	return false
}

var setccCondTable = map[x86asm.Op]ir.Cond{
	x86asm.SETA: ir.CondA, x86asm.SETAE: ir.CondAE, x86asm.SETB: ir.CondB, x86asm.SETBE: ir.CondBE,
	x86asm.SETE: ir.CondE, x86asm.SETNE: ir.CondNE, x86asm.SETG: ir.CondG, x86asm.SETGE: ir.CondGE,
	x86asm.SETL: ir.CondL, x86asm.SETLE: ir.CondLE, x86asm.SETS: ir.CondS, x86asm.SETNS: ir.CondNS,
	x86asm.SETO: ir.CondO, x86asm.SETNO: ir.CondNO, x86asm.SETP: ir.CondP, x86asm.SETNP: ir.CondNP,
}

func translateSet(out *ir.IR, in inst.Instruction) bool {
	dstReg, ok := in.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	dst, ok := operandFromReg(dstReg)
	if !ok {
		return false
	}
	c, ok := setccCondTable[in.Op]
	if !ok {
		return false
	}
	out.Instructions = append(out.Instructions, ir.NewInstruction(ir.OpSet, dst).WithCond(c))
	return true
}
