package cpu

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/inst"
)

// registerIntegerOps fills in the general-purpose integer subset of
// spec.md §4.4's instruction table, grounded on the arithmetic/logic
// opcode bodies of
// _examples/IntuitionAmiga-IntuitionEngine/cpu_x86_ops.go, generalized
// from 8/16/32-bit operands to the full 8/16/32/64-bit width set.
func registerIntegerOps(t map[x86asm.Op]opHandler) {
	t[x86asm.MOV] = opMov
	t[x86asm.MOVZX] = opMovzx
	t[x86asm.MOVSX] = opMovsx
	t[x86asm.MOVSXD] = opMovsx

	t[x86asm.ADD] = opBinary(addWithFlags, false)
	t[x86asm.ADC] = opBinary(addWithFlags, true)
	t[x86asm.SUB] = opBinary(subWithFlags, false)
	t[x86asm.SBB] = opBinary(subWithFlags, true)
	t[x86asm.CMP] = opCmp

	t[x86asm.AND] = opLogical(func(a, b uint64) uint64 { return a & b })
	t[x86asm.OR] = opLogical(func(a, b uint64) uint64 { return a | b })
	t[x86asm.XOR] = opLogical(func(a, b uint64) uint64 { return a ^ b })
	t[x86asm.TEST] = opTest

	t[x86asm.LEA] = opLea
	t[x86asm.PUSH] = opPush
	t[x86asm.POP] = opPop

	t[x86asm.INC] = opIncDec(1)
	t[x86asm.DEC] = opIncDec(^uint64(0)) // -1 truncated per width

	t[x86asm.NOT] = opNot
	t[x86asm.NEG] = opNeg

	t[x86asm.SHL] = opShift(shiftLeft)
	t[x86asm.SAL] = opShift(shiftLeft)
	t[x86asm.SHR] = opShift(shiftRightLogical)
	t[x86asm.SAR] = opShift(shiftRightArith)

	t[x86asm.NOP] = func(*Cpu, inst.Instruction) {}
}

func destBits(in inst.Instruction) int {
	return operandBits(in.Args[0], in.MemBytes)
}

func opMov(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	c.writeOperand(in.Args[0], bits, c.readOperand(in.Args[1], bits))
}

func opMovzx(c *Cpu, in inst.Instruction) {
	dstBits := destBits(in)
	srcBits := operandBits(in.Args[1], in.MemBytes)
	v := c.readOperand(in.Args[1], srcBits) & maskForBits(srcBits)
	c.writeOperand(in.Args[0], dstBits, v)
}

func opMovsx(c *Cpu, in inst.Instruction) {
	dstBits := destBits(in)
	srcBits := operandBits(in.Args[1], in.MemBytes)
	v := c.readOperand(in.Args[1], srcBits)
	c.writeOperand(in.Args[0], dstBits, uint64(signExtend(v, srcBits)))
}

func signExtend(v uint64, fromBits int) int64 {
	shift := 64 - fromBits
	return int64(v<<shift) >> shift
}

// opBinary builds an ADD/ADC/SUB/SBB handler around an apply function
// that also updates flags, writing the result back to the destination.
func opBinary(apply func(f *Flags, a, b uint64, width int, carryIn bool) uint64, useCarry bool) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		bits := destBits(in)
		a := c.readOperand(in.Args[0], bits)
		b := c.readOperand(in.Args[1], bits)
		carryIn := useCarry && c.State.RFlags.Test(FlagCF)
		result := apply(&c.State.RFlags, a, b, bits, carryIn)
		c.writeOperand(in.Args[0], bits, result)
	}
}

func opCmp(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	a := c.readOperand(in.Args[0], bits)
	b := c.readOperand(in.Args[1], bits)
	subWithFlags(&c.State.RFlags, a, b, bits, false)
}

func opLogical(apply func(a, b uint64) uint64) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		bits := destBits(in)
		a := c.readOperand(in.Args[0], bits)
		b := c.readOperand(in.Args[1], bits)
		result := logicalWithFlags(&c.State.RFlags, apply(a, b), bits)
		c.writeOperand(in.Args[0], bits, result)
	}
}

func opTest(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	a := c.readOperand(in.Args[0], bits)
	b := c.readOperand(in.Args[1], bits)
	logicalWithFlags(&c.State.RFlags, a&b, bits)
}

func opLea(c *Cpu, in inst.Instruction) {
	mem, ok := in.Args[1].(x86asm.Mem)
	if !ok {
		return
	}
	c.writeOperand(in.Args[0], destBits(in), c.effectiveAddress(mem))
}

func (c *Cpu) pushStackWidth() int {
	return 64 // this engine emulates long mode exclusively; PUSH/POP/CALL/RET always operate on 8-byte slots.
}

func opPush(c *Cpu, in inst.Instruction) {
	width := c.pushStackWidth()
	v := c.readOperand(in.Args[0], operandBits(in.Args[0], in.MemBytes))
	sp := c.State.GPRValue(RSP) - uint64(width/8)
	c.State.SetGPR(RSP, sp)
	c.writeMemory(sp, width, v)
	c.Callback.OnStackChange(sp)
}

func opPop(c *Cpu, in inst.Instruction) {
	width := c.pushStackWidth()
	sp := c.State.GPRValue(RSP)
	v := c.readMemory(sp, width)
	c.State.SetGPR(RSP, sp+uint64(width/8))
	c.writeOperand(in.Args[0], operandBits(in.Args[0], in.MemBytes), v)
	c.Callback.OnStackChange(sp + uint64(width/8))
}

// opIncDec adds delta (1, or -1 truncated to width) to the operand without
// touching CF, matching real INC/DEC semantics.
func opIncDec(delta uint64) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		bits := destBits(in)
		a := c.readOperand(in.Args[0], bits)
		savedCF := c.State.RFlags.Test(FlagCF)
		result := addWithFlags(&c.State.RFlags, a, delta, bits, false)
		setFlag(&c.State.RFlags, FlagCF, savedCF)
		c.writeOperand(in.Args[0], bits, result)
	}
}

func opNot(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	a := c.readOperand(in.Args[0], bits)
	c.writeOperand(in.Args[0], bits, (^a)&maskForBits(bits))
}

func opNeg(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	a := c.readOperand(in.Args[0], bits)
	result := subWithFlags(&c.State.RFlags, 0, a, bits, false)
	setFlag(&c.State.RFlags, FlagCF, a != 0)
	c.writeOperand(in.Args[0], bits, result)
}

func shiftLeft(v uint64, n uint, bits int) (result uint64, lastOut bool) {
	if n == 0 {
		return v, false
	}
	result = (v << n) & maskForBits(bits)
	lastOut = (v>>(uint(bits)-n))&1 != 0
	return result, lastOut
}

func shiftRightLogical(v uint64, n uint, bits int) (result uint64, lastOut bool) {
	if n == 0 {
		return v, false
	}
	result = (v & maskForBits(bits)) >> n
	lastOut = (v>>(n-1))&1 != 0
	return result, lastOut
}

func shiftRightArith(v uint64, n uint, bits int) (result uint64, lastOut bool) {
	if n == 0 {
		return v, false
	}
	signed := signExtend(v, bits)
	result = uint64(signed>>n) & maskForBits(bits)
	lastOut = (v>>(n-1))&1 != 0
	return result, lastOut
}

func opShift(shift func(v uint64, n uint, bits int) (uint64, bool)) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		bits := destBits(in)
		a := c.readOperand(in.Args[0], bits)
		n := uint(c.readOperand(in.Args[1], 8)) & shiftCountMask(bits)
		result, cf := shift(a, n, bits)
		if n != 0 {
			setFlag(&c.State.RFlags, FlagCF, cf)
			setFlagsForResult(&c.State.RFlags, result, bits)
		}
		c.writeOperand(in.Args[0], bits, result)
	}
}

func shiftCountMask(bits int) uint {
	if bits == 64 {
		return 0x3f
	}
	return 0x1f
}
