package jitasm

// shiftRI emits a group-2 shift/rotate: REX(.W?) + 0xC1 + ModRM(/ext, rm=dst) + imm8.
func (a *Assembler) shiftRI(w bool, ext byte, dst Reg, imm uint8) {
	a.rex(w, false, false, dst.extended())
	a.write8(0xC1)
	a.write8(0xC0 | ext<<3 | dst.encoding())
	a.write8(imm)
}

const (
	extShl = 0b100
	extShr = 0b101
	extSar = 0b111
)

func (a *Assembler) ShlRI32(dst Reg, imm uint8) { a.shiftRI(false, extShl, dst, imm) }
func (a *Assembler) ShlRI64(dst Reg, imm uint8) { a.shiftRI(true, extShl, dst, imm) }
func (a *Assembler) ShrRI32(dst Reg, imm uint8) { a.shiftRI(false, extShr, dst, imm) }
func (a *Assembler) ShrRI64(dst Reg, imm uint8) { a.shiftRI(true, extShr, dst, imm) }
func (a *Assembler) SarRI32(dst Reg, imm uint8) { a.shiftRI(false, extSar, dst, imm) }
func (a *Assembler) SarRI64(dst Reg, imm uint8) { a.shiftRI(true, extSar, dst, imm) }
