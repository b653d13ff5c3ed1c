package cpu

import "golang.org/x/arch/x86/x86asm"

// regInfo describes how a decoded x86asm.Reg maps onto a GuestState GPR
// slot: which slot, how many bits, and (for the legacy 8-bit high-byte
// registers AH/CH/DH/BH) whether it addresses bits [15:8] instead of [7:0].
type regInfo struct {
	gpr      GPR
	bits     int
	highByte bool
}

var regTable = map[x86asm.Reg]regInfo{
	x86asm.AL: {RAX, 8, false}, x86asm.CL: {RCX, 8, false}, x86asm.DL: {RDX, 8, false}, x86asm.BL: {RBX, 8, false},
	x86asm.AH: {RAX, 8, true}, x86asm.CH: {RCX, 8, true}, x86asm.DH: {RDX, 8, true}, x86asm.BH: {RBX, 8, true},
	x86asm.SPB: {RSP, 8, false}, x86asm.BPB: {RBP, 8, false}, x86asm.SIB: {RSI, 8, false}, x86asm.DIB: {RDI, 8, false},
	x86asm.R8B: {R8, 8, false}, x86asm.R9B: {R9, 8, false}, x86asm.R10B: {R10, 8, false}, x86asm.R11B: {R11, 8, false},
	x86asm.R12B: {R12, 8, false}, x86asm.R13B: {R13, 8, false}, x86asm.R14B: {R14, 8, false}, x86asm.R15B: {R15, 8, false},

	x86asm.AX: {RAX, 16, false}, x86asm.CX: {RCX, 16, false}, x86asm.DX: {RDX, 16, false}, x86asm.BX: {RBX, 16, false},
	x86asm.SP: {RSP, 16, false}, x86asm.BP: {RBP, 16, false}, x86asm.SI: {RSI, 16, false}, x86asm.DI: {RDI, 16, false},
	x86asm.R8W: {R8, 16, false}, x86asm.R9W: {R9, 16, false}, x86asm.R10W: {R10, 16, false}, x86asm.R11W: {R11, 16, false},
	x86asm.R12W: {R12, 16, false}, x86asm.R13W: {R13, 16, false}, x86asm.R14W: {R14, 16, false}, x86asm.R15W: {R15, 16, false},

	x86asm.EAX: {RAX, 32, false}, x86asm.ECX: {RCX, 32, false}, x86asm.EDX: {RDX, 32, false}, x86asm.EBX: {RBX, 32, false},
	x86asm.ESP: {RSP, 32, false}, x86asm.EBP: {RBP, 32, false}, x86asm.ESI: {RSI, 32, false}, x86asm.EDI: {RDI, 32, false},
	x86asm.R8L: {R8, 32, false}, x86asm.R9L: {R9, 32, false}, x86asm.R10L: {R10, 32, false}, x86asm.R11L: {R11, 32, false},
	x86asm.R12L: {R12, 32, false}, x86asm.R13L: {R13, 32, false}, x86asm.R14L: {R14, 32, false}, x86asm.R15L: {R15, 32, false},

	x86asm.RAX: {RAX, 64, false}, x86asm.RCX: {RCX, 64, false}, x86asm.RDX: {RDX, 64, false}, x86asm.RBX: {RBX, 64, false},
	x86asm.RSP: {RSP, 64, false}, x86asm.RBP: {RBP, 64, false}, x86asm.RSI: {RSI, 64, false}, x86asm.RDI: {RDI, 64, false},
	x86asm.R8: {R8, 64, false}, x86asm.R9: {R9, 64, false}, x86asm.R10: {R10, 64, false}, x86asm.R11: {R11, 64, false},
	x86asm.R12: {R12, 64, false}, x86asm.R13: {R13, 64, false}, x86asm.R14: {R14, 64, false}, x86asm.R15: {R15, 64, false},

	x86asm.RIP: {RIP, 64, false}, x86asm.EIP: {RIP, 32, false}, x86asm.IP: {RIP, 16, false},
}

var segmentTable = map[x86asm.Reg]SegmentBase{
	x86asm.ES: SegES, x86asm.CS: SegCS, x86asm.SS: SegSS, x86asm.DS: SegDS,
	x86asm.FS: SegFS, x86asm.GS: SegGS,
}

func maskForBits(bits int) uint64 {
	switch bits {
	case 8:
		return 0xff
	case 16:
		return 0xffff
	case 32:
		return 0xffffffff
	default:
		return ^uint64(0)
	}
}

// readReg returns a register's value zero-extended to 64 bits, per the
// x86-64 rule that 32-bit writes clear the upper 32 bits but reads of
// smaller widths never see stale upper bits leak in.
func readReg(s *GuestState, r x86asm.Reg) uint64 {
	info, ok := regTable[r]
	if !ok {
		panic("cpu: unmapped register " + r.String())
	}
	v := s.GPRValue(info.gpr)
	if info.highByte {
		return (v >> 8) & 0xff
	}
	return v & maskForBits(info.bits)
}

// writeReg writes value into register r. 8/16-bit writes preserve the
// untouched bits of the backing 64-bit slot (legacy partial-register
// behavior); 32-bit writes zero-extend per the AMD64 rule; 64-bit writes
// replace the slot outright.
func writeReg(s *GuestState, r x86asm.Reg, value uint64) {
	info, ok := regTable[r]
	if !ok {
		panic("cpu: unmapped register " + r.String())
	}
	cur := s.GPRValue(info.gpr)
	switch {
	case info.highByte:
		s.SetGPR(info.gpr, (cur &^ 0xff00) | ((value & 0xff) << 8))
	case info.bits == 8:
		s.SetGPR(info.gpr, (cur &^ 0xff) | (value & 0xff))
	case info.bits == 16:
		s.SetGPR(info.gpr, (cur &^ 0xffff) | (value & 0xffff))
	case info.bits == 32:
		s.SetGPR(info.gpr, value&0xffffffff)
	default:
		s.SetGPR(info.gpr, value)
	}
}

func regBits(r x86asm.Reg) int {
	if info, ok := regTable[r]; ok {
		return info.bits
	}
	panic("cpu: unmapped register " + r.String())
}
