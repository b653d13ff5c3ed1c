package cpu

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/inst"
)

// registerBranchOps fills in control-transfer semantics, grounded on
// _examples/IntuitionAmiga-IntuitionEngine/cpu_x86_grp.go's jump/call/ret
// group and spec.md §4.4/§4.5 (call/ret/stack-change callbacks).
func registerBranchOps(t map[x86asm.Op]opHandler) {
	t[x86asm.JMP] = opJmp

	conditional := map[x86asm.Op]func(*Flags) bool{
		x86asm.JA:  condAbove,
		x86asm.JAE: condAboveEqual,
		x86asm.JB:  condBelow,
		x86asm.JBE: condBelowEqual,
		x86asm.JE:  condEqual,
		x86asm.JNE: condNotEqual,
		x86asm.JG:  condGreater,
		x86asm.JGE: condGreaterEqual,
		x86asm.JL:  condLess,
		x86asm.JLE: condLessEqual,
		x86asm.JS:  condSign,
		x86asm.JNS: condNotSign,
		x86asm.JO:  condOverflow,
		x86asm.JNO: condNotOverflow,
		x86asm.JP:  condParity,
		x86asm.JNP: condNotParity,
	}
	for op, cond := range conditional {
		t[op] = opJcc(cond)
	}

	t[x86asm.JCXZ] = opJrcxz(16)
	t[x86asm.JECXZ] = opJrcxz(32)
	t[x86asm.JRCXZ] = opJrcxz(64)

	t[x86asm.LOOP] = opLoop(func(*Flags) bool { return true })
	t[x86asm.LOOPE] = opLoop(condEqual)
	t[x86asm.LOOPNE] = opLoop(condNotEqual)

	t[x86asm.CALL] = opCall
	t[x86asm.RET] = opRet
	t[x86asm.SYSCALL] = opSyscall
}

func condAbove(f *Flags) bool        { return !f.Test(FlagCF) && !f.Test(FlagZF) }
func condAboveEqual(f *Flags) bool   { return !f.Test(FlagCF) }
func condBelow(f *Flags) bool        { return f.Test(FlagCF) }
func condBelowEqual(f *Flags) bool   { return f.Test(FlagCF) || f.Test(FlagZF) }
func condEqual(f *Flags) bool        { return f.Test(FlagZF) }
func condNotEqual(f *Flags) bool     { return !f.Test(FlagZF) }
func condSign(f *Flags) bool         { return f.Test(FlagSF) }
func condNotSign(f *Flags) bool      { return !f.Test(FlagSF) }
func condOverflow(f *Flags) bool     { return f.Test(FlagOF) }
func condNotOverflow(f *Flags) bool  { return !f.Test(FlagOF) }
func condParity(f *Flags) bool       { return f.Test(FlagPF) }
func condNotParity(f *Flags) bool    { return !f.Test(FlagPF) }
func condGreater(f *Flags) bool      { return !f.Test(FlagZF) && f.Test(FlagSF) == f.Test(FlagOF) }
func condGreaterEqual(f *Flags) bool { return f.Test(FlagSF) == f.Test(FlagOF) }
func condLess(f *Flags) bool         { return f.Test(FlagSF) != f.Test(FlagOF) }
func condLessEqual(f *Flags) bool    { return f.Test(FlagZF) || f.Test(FlagSF) != f.Test(FlagOF) }

// jumpTo redirects RIP to a fixed-destination jump's literal target, or to
// an indirect jump/call's register/memory operand evaluated as a full
// 64-bit address.
func (c *Cpu) jumpTo(in inst.Instruction) {
	if in.IsFixedDestinationJump() {
		c.State.SetRIP(in.BranchTarget())
		return
	}
	c.State.SetRIP(c.readOperand(in.Args[0], 64))
}

func opJmp(c *Cpu, in inst.Instruction) {
	c.jumpTo(in)
}

func opJcc(cond func(*Flags) bool) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		if cond(&c.State.RFlags) {
			c.jumpTo(in)
		}
	}
}

func opJrcxz(bits int) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		if c.State.GPRValue(RCX)&maskForBits(bits) == 0 {
			c.jumpTo(in)
		}
	}
}

func opLoop(cond func(*Flags) bool) opHandler {
	return func(c *Cpu, in inst.Instruction) {
		count := c.State.GPRValue(RCX) - 1
		c.State.SetGPR(RCX, count)
		if count != 0 && cond(&c.State.RFlags) {
			c.jumpTo(in)
		}
	}
}

func opCall(c *Cpu, in inst.Instruction) {
	retAddr := in.NextAddr()
	sp := c.State.GPRValue(RSP) - 8
	c.State.SetGPR(RSP, sp)
	c.writeMemory(sp, 64, retAddr)
	c.callStack = append(c.callStack, retAddr)
	c.jumpTo(in)
	c.Callback.OnCall(c.State.RIPValue())
	c.Callback.OnStackChange(sp)
}

func opRet(c *Cpu, in inst.Instruction) {
	sp := c.State.GPRValue(RSP)
	target := c.readMemory(sp, 64)
	sp += 8
	if len(in.Args) > 0 {
		if imm, ok := in.Args[0].(x86asm.Imm); ok {
			sp += uint64(imm)
		}
	}
	c.State.SetGPR(RSP, sp)
	if n := len(c.callStack); n > 0 {
		c.callStack = c.callStack[:n-1]
	}
	c.State.SetRIP(target)
	c.Callback.OnRet()
	c.Callback.OnStackChange(sp)
}

func opSyscall(c *Cpu, in inst.Instruction) {
	c.requestsSyscall = true
	c.Callback.OnSyscall()
}
