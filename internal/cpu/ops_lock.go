package cpu

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
)

// registerLockOps fills in CMPXCHG, the S4 testable scenario
// ("LOCK CMPXCHG"), using mmu.WithExclusiveRegion when the LOCK prefix is
// present so the compare-and-swap is atomic against concurrent readers
// per spec.md §4.2/§4.4/§5.
func registerLockOps(t map[x86asm.Op]opHandler) {
	t[x86asm.CMPXCHG] = opCmpxchg
	t[x86asm.XCHG] = opXchg
}

func opCmpxchg(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	accumulator := c.State.GPRValue(RAX) & maskForBits(bits)
	src := c.readOperand(in.Args[1], bits)

	var old uint64
	if mem, ok := in.Args[0].(x86asm.Mem); ok && in.IsLocked() {
		addr := c.effectiveAddress(mem)
		mmu.WithExclusiveRegion(c.Mmu, addr,
			func(*mmu.Mmu, uint64) uint64 { return c.readMemory(addr, bits) },
			func(_ *mmu.Mmu, _ uint64, v uint64) { c.writeMemory(addr, bits, v) },
			func(cur uint64) uint64 {
				old = cur
				if cur == accumulator {
					return src
				}
				return cur
			})
	} else {
		old = c.readOperand(in.Args[0], bits)
		if old == accumulator {
			c.writeOperand(in.Args[0], bits, src)
		}
	}

	subWithFlags(&c.State.RFlags, accumulator, old, bits, false)
	if old != accumulator {
		restoreAccumulatorWidth(c, bits, old)
	}
}

// restoreAccumulatorWidth writes old into the correctly-sized accumulator
// register (AL/AX/EAX/RAX) rather than always clobbering all of RAX.
func restoreAccumulatorWidth(c *Cpu, bits int, old uint64) {
	switch bits {
	case 8:
		writeReg(c.State, x86asm.AL, old)
	case 16:
		writeReg(c.State, x86asm.AX, old)
	case 32:
		writeReg(c.State, x86asm.EAX, old)
	default:
		writeReg(c.State, x86asm.RAX, old)
	}
}

func opXchg(c *Cpu, in inst.Instruction) {
	bits := destBits(in)
	a := c.readOperand(in.Args[0], bits)
	b := c.readOperand(in.Args[1], bits)
	c.writeOperand(in.Args[0], bits, b)
	c.writeOperand(in.Args[1], bits, a)
}
