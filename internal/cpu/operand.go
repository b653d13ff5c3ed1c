package cpu

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x64emulator/internal/verify"
)

// effectiveAddress computes a Mem operand's guest linear address, applying
// the segment-base addition described in spec.md §4.1 (only FS/GS bases
// are ever non-zero for user-mode code, but the computation is general).
func (c *Cpu) effectiveAddress(m x86asm.Mem) uint64 {
	var addr uint64
	if m.Base != 0 {
		addr += readReg(c.State, m.Base)
	}
	if m.Index != 0 {
		addr += readReg(c.State, m.Index) * uint64(m.Scale)
	}
	addr += uint64(m.Disp)
	if m.Segment != 0 {
		if seg, ok := segmentTable[m.Segment]; ok {
			addr += c.State.SegmentBases[seg]
		}
	}
	return addr
}

// readOperand reads an argument of the given bit width, supporting the
// Reg/Mem/Imm variants the interpreter currently exercises.
func (c *Cpu) readOperand(arg x86asm.Arg, bits int) uint64 {
	switch a := arg.(type) {
	case x86asm.Reg:
		return readReg(c.State, a)
	case x86asm.Mem:
		return c.readMemory(c.effectiveAddress(a), bits)
	case x86asm.Imm:
		return uint64(a) & maskForBits(bits)
	case x86asm.Rel:
		return uint64(int64(a))
	default:
		verify.Fail("cpu: unsupported operand kind %T", arg)
		return 0
	}
}

// writeOperand writes value truncated to bits into a Reg or Mem argument.
func (c *Cpu) writeOperand(arg x86asm.Arg, bits int, value uint64) {
	switch a := arg.(type) {
	case x86asm.Reg:
		writeReg(c.State, a, value)
	case x86asm.Mem:
		c.writeMemory(c.effectiveAddress(a), bits, value)
	default:
		verify.Fail("cpu: unsupported write-operand kind %T", arg)
	}
}

func (c *Cpu) readMemory(addr uint64, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(c.Mmu.Read8(addr))
	case 16:
		return uint64(c.Mmu.Read16(addr))
	case 32:
		return uint64(c.Mmu.Read32(addr))
	default:
		return c.Mmu.Read64(addr)
	}
}

func (c *Cpu) writeMemory(addr uint64, bits int, value uint64) {
	switch bits {
	case 8:
		c.Mmu.Write8(addr, uint8(value))
	case 16:
		c.Mmu.Write16(addr, uint16(value))
	case 32:
		c.Mmu.Write32(addr, uint32(value))
	default:
		c.Mmu.Write64(addr, value)
	}
}

// operandBits determines the effective operand width for an argument,
// consulting the register's own width for Reg and falling back to the
// instruction's decoded MemBytes for Mem.
func operandBits(inArg x86asm.Arg, memBytes int) int {
	switch a := inArg.(type) {
	case x86asm.Reg:
		return regBits(a)
	case x86asm.Mem:
		if memBytes == 0 {
			return 32
		}
		return memBytes * 8
	default:
		return 32
	}
}
