// Package ir is the compiler's linear intermediate representation: a
// three-address instruction stream plus jump labels, per spec.md §4.5.1
// ("IR") and original_source/emulator/include/x64/compiler/ir.h.
package ir

import "fmt"

// Kind tags which variant an Operand currently holds.
type Kind int

const (
	KindNone Kind = iota
	KindImm8
	KindImm16
	KindImm32
	KindImm64
	KindR8
	KindR16
	KindR32
	KindR64
	KindM8
	KindM16
	KindM32
	KindM64
	KindM128
	KindMMX
	KindXMM
	KindLabel
)

// Mem is a memory operand shape: base/index/scale/disp/segment, carried
// independent of width (the width lives in the Operand's Kind), grounded
// on original_source/emulator/include/x64/types.h's M8..M128 aliases.
type Mem struct {
	Base, Index Reg
	Scale       uint8
	Disp        int64
	Segment     Reg
}

// Reg is a host-independent register identifier shared by GPR/MMX/XMM
// operands; its meaning is disambiguated by the Operand's Kind.
type Reg uint8

// Operand is the tagged variant over {u8, u16, u32, u64, R8, R16, R32,
// R64, M8..M128, MMX, XMM, label-index} from spec.md §4.5.1.
type Operand struct {
	kind  Kind
	imm   uint64
	reg   Reg
	mem   Mem
	label LabelIndex
}

// LabelIndex names a jump target's position in IR.Labels.
type LabelIndex struct{ Index uint32 }

func None() Operand                  { return Operand{} }
func Imm8(v uint8) Operand           { return Operand{kind: KindImm8, imm: uint64(v)} }
func Imm16(v uint16) Operand         { return Operand{kind: KindImm16, imm: uint64(v)} }
func Imm32(v uint32) Operand         { return Operand{kind: KindImm32, imm: uint64(v)} }
func Imm64(v uint64) Operand         { return Operand{kind: KindImm64, imm: v} }
func R8(r Reg) Operand               { return Operand{kind: KindR8, reg: r} }
func R16(r Reg) Operand              { return Operand{kind: KindR16, reg: r} }
func R32(r Reg) Operand              { return Operand{kind: KindR32, reg: r} }
func R64(r Reg) Operand              { return Operand{kind: KindR64, reg: r} }
func MMXOperand(r Reg) Operand       { return Operand{kind: KindMMX, reg: r} }
func XMMOperand(r Reg) Operand       { return Operand{kind: KindXMM, reg: r} }
func M8(m Mem) Operand               { return Operand{kind: KindM8, mem: m} }
func M16(m Mem) Operand              { return Operand{kind: KindM16, mem: m} }
func M32(m Mem) Operand              { return Operand{kind: KindM32, mem: m} }
func M64(m Mem) Operand              { return Operand{kind: KindM64, mem: m} }
func M128Operand(m Mem) Operand      { return Operand{kind: KindM128, mem: m} }
func Label(l LabelIndex) Operand     { return Operand{kind: KindLabel, label: l} }

func (o Operand) Kind() Kind   { return o.kind }
func (o Operand) IsNone() bool { return o.kind == KindNone }

// Imm returns the immediate payload and whether the operand is an
// immediate kind at all.
func (o Operand) Imm() (uint64, bool) {
	switch o.kind {
	case KindImm8, KindImm16, KindImm32, KindImm64:
		return o.imm, true
	}
	return 0, false
}

// Reg returns the register payload and whether the operand names a
// register (GPR, MMX, or XMM).
func (o Operand) Reg() (Reg, bool) {
	switch o.kind {
	case KindR8, KindR16, KindR32, KindR64, KindMMX, KindXMM:
		return o.reg, true
	}
	return 0, false
}

// Mem returns the memory payload and whether the operand is a memory
// reference.
func (o Operand) Mem() (Mem, bool) {
	switch o.kind {
	case KindM8, KindM16, KindM32, KindM64, KindM128:
		return o.mem, true
	}
	return Mem{}, false
}

// Label returns the label payload and whether the operand is a label.
func (o Operand) Label() (LabelIndex, bool) {
	if o.kind == KindLabel {
		return o.label, true
	}
	return LabelIndex{}, false
}

// IsRegister reports whether this operand reads/writes register r
// (GPR identity only — MMX/XMM share no numbering with GPRs).
func (o Operand) IsRegister(r Reg) bool {
	reg, ok := o.Reg()
	return ok && reg == r
}

// ReadsFromMemory reports whether this operand is a memory reference that
// (transitively, via base/index) reads register r as part of addressing.
func (o Operand) ReadsFromMemory(r Reg) bool {
	m, ok := o.Mem()
	return ok && (m.Base == r || m.Index == r)
}

func (o Operand) String() string {
	switch o.kind {
	case KindNone:
		return "<none>"
	case KindImm8, KindImm16, KindImm32, KindImm64:
		return fmt.Sprintf("#%#x", o.imm)
	case KindR8, KindR16, KindR32, KindR64, KindMMX, KindXMM:
		return fmt.Sprintf("r%d", o.reg)
	case KindM8, KindM16, KindM32, KindM64, KindM128:
		return fmt.Sprintf("[base=r%d index=r%d*%d disp=%#x]", o.mem.Base, o.mem.Index, o.mem.Scale, o.mem.Disp)
	case KindLabel:
		return fmt.Sprintf("L%d", o.label.Index)
	default:
		return "?"
	}
}
