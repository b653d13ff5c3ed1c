// Package cpu implements the interpreter: per-opcode semantics over guest
// registers, flags, and memory, dispatched from a typed instruction.
//
// Grounded on the register layout and flag bitfield of
// _examples/IntuitionAmiga-IntuitionEngine/cpu_x86.go and fpu_x87.go,
// generalized from that teacher's 32-bit flat model to the 64-bit guest
// state described in original_source/emulator/include/x64/types.h and
// spec.md §4.1 ("Guest CPU state").
package cpu

import "github.com/intuitionamiga/x64emulator/internal/prim"

// GPR names the sixteen 64-bit general-purpose registers plus RIP and the
// synthetic always-zero pseudo-register, per spec.md §4.1.
type GPR int

const (
	RAX GPR = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	ZERO
	numGPR
)

// FlagBit is a bit position in the guest RFLAGS-equivalent bitfield.
type FlagBit uint32

const (
	FlagCF FlagBit = 1 << 0 // carry
	FlagPF FlagBit = 1 << 2 // parity
	FlagAF FlagBit = 1 << 4 // auxiliary carry
	FlagZF FlagBit = 1 << 6 // zero
	FlagSF FlagBit = 1 << 7 // sign
	FlagDF FlagBit = 1 << 10 // direction
	FlagOF FlagBit = 1 << 11 // overflow
)

// Flags is the guest's bitfield of arithmetic flags, per spec.md §4.1.
type Flags = prim.BitFlags[FlagBit]

// SegmentBase names the eight segment-base slots; only FS and GS are
// meaningful for user-mode code per spec.md §4.1.
type SegmentBase int

const (
	SegES SegmentBase = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
	numSegmentBases = 8
)

// X87Word is an 80-bit x87 stack slot; stored as a host float64 per
// spec.md's non-goal of full x87 80-bit precision. Implementers that need
// bit-exact extended precision must add a software fallback; this engine
// relies on the host FPU directly (spec.md §9 "Host FPU sharing").
type X87Word = float64

// X87ControlWord holds the guest x87 control word's rounding-control and
// exception-mask fields.
type X87ControlWord uint16

// RoundingControl extracts the RC field (bits 10-11), shared in shape with
// MXCSR's RC field per spec.md §4.4 ("Rounding").
func (c X87ControlWord) RoundingControl() uint8 { return uint8((c >> 10) & 0x3) }

// MXCSR is the SSE control/status word; only the rounding-control field is
// consulted by this engine.
type MXCSR uint32

func (m MXCSR) RoundingControl() uint8 { return uint8((m >> 13) & 0x3) }

// GuestState is the fixed-size record of one logical guest CPU, per
// spec.md §4.1. It is saved/restored whole by the VM loop across thread
// switches.
type GuestState struct {
	GPRs [numGPR]uint64

	MMX [8]uint64
	XMM [16][2]uint64 // low/high 64-bit halves of each 128-bit register

	X87Stack   [8]X87Word
	X87Top     uint8 // index of the logical stack top, wraps mod 8
	X87Control X87ControlWord

	MXCSR MXCSR

	RFlags Flags

	SegmentBases [numSegmentBases]uint64
}

// NewGuestState returns a zeroed guest state with ZERO permanently 0 and a
// default x87/SSE control word matching the host's round-to-nearest reset
// state.
func NewGuestState() *GuestState {
	s := &GuestState{}
	s.X87Control = 0x037f // round-to-nearest, all exceptions masked
	s.MXCSR = 0x1f80
	return s
}

// GPRValue reads a general register, always returning 0 for ZERO.
func (s *GuestState) GPRValue(r GPR) uint64 {
	if r == ZERO {
		return 0
	}
	return s.GPRs[r]
}

// SetGPR writes a general register; writes to ZERO are discarded, mirroring
// the teacher's treatment of a hardwired-zero register.
func (s *GuestState) SetGPR(r GPR, value uint64) {
	if r == ZERO {
		return
	}
	s.GPRs[r] = value
}

func (s *GuestState) RIPValue() uint64    { return s.GPRs[RIP] }
func (s *GuestState) SetRIP(value uint64) { s.GPRs[RIP] = value }
