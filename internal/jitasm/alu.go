package jitasm

// aluRR emits a REX(.W?) + opcode + ModRM(reg=src, rm=dst) form: the
// r/m64, r64 direction used by ADD/SUB/CMP/AND/OR/XOR/TEST register
// forms, grounded on the teacher's repeated add/sub/cmp(R64,R64) bodies.
func (a *Assembler) aluRR(w bool, opcode byte, dst, src Reg) {
	a.rex(w, src.extended(), false, dst.extended())
	a.write8(opcode)
	a.modrmReg(src, dst)
}

// aluRI emits an 0x83 (imm8, sign-extended) or 0x81 (imm32) group-1 ALU
// op against dst, selecting the shorter encoding when imm fits a byte,
// mirroring every add/sub/cmp(R,i32) pair in the teacher.
func (a *Assembler) aluRI(w bool, extOpcode byte, dst Reg, imm int32) {
	a.rex(w, false, false, dst.extended())
	if int32(int8(imm)) == imm {
		a.write8(0x83)
		a.write8(0xC0 | extOpcode<<3 | dst.encoding())
		a.write8(byte(int8(imm)))
	} else {
		a.write8(0x81)
		a.write8(0xC0 | extOpcode<<3 | dst.encoding())
		a.write32(uint32(imm))
	}
}

const (
	extAdd = 0b000
	extOr  = 0b001
	extAnd = 0b100
	extSub = 0b101
	extCmp = 0b111
)

func (a *Assembler) AddRR32(dst, src Reg)     { a.aluRR(false, 0x01, dst, src) }
func (a *Assembler) AddRR64(dst, src Reg)     { a.aluRR(true, 0x01, dst, src) }
func (a *Assembler) AddRI32(dst Reg, i int32) { a.aluRI(false, extAdd, dst, i) }
func (a *Assembler) AddRI64(dst Reg, i int32) { a.aluRI(true, extAdd, dst, i) }

func (a *Assembler) SubRR32(dst, src Reg)     { a.aluRR(false, 0x29, dst, src) }
func (a *Assembler) SubRR64(dst, src Reg)     { a.aluRR(true, 0x29, dst, src) }
func (a *Assembler) SubRI32(dst Reg, i int32) { a.aluRI(false, extSub, dst, i) }
func (a *Assembler) SubRI64(dst Reg, i int32) { a.aluRI(true, extSub, dst, i) }

func (a *Assembler) AndRR32(dst, src Reg)     { a.aluRR(false, 0x21, dst, src) }
func (a *Assembler) AndRR64(dst, src Reg)     { a.aluRR(true, 0x21, dst, src) }
func (a *Assembler) AndRI32(dst Reg, i int32) { a.aluRI(false, extAnd, dst, i) }
func (a *Assembler) AndRI64(dst Reg, i int32) { a.aluRI(true, extAnd, dst, i) }

func (a *Assembler) OrRR32(dst, src Reg)     { a.aluRR(false, 0x09, dst, src) }
func (a *Assembler) OrRR64(dst, src Reg)     { a.aluRR(true, 0x09, dst, src) }
func (a *Assembler) OrRI32(dst Reg, i int32) { a.aluRI(false, extOr, dst, i) }
func (a *Assembler) OrRI64(dst Reg, i int32) { a.aluRI(true, extOr, dst, i) }

func (a *Assembler) XorRR32(dst, src Reg) { a.aluRR(false, 0x31, dst, src) }
func (a *Assembler) XorRR64(dst, src Reg) { a.aluRR(true, 0x31, dst, src) }

func (a *Assembler) CmpRR32(dst, src Reg)     { a.aluRR(false, 0x39, dst, src) }
func (a *Assembler) CmpRR64(dst, src Reg)     { a.aluRR(true, 0x39, dst, src) }
func (a *Assembler) CmpRI32(dst Reg, i int32) { a.aluRI(false, extCmp, dst, i) }
func (a *Assembler) CmpRI64(dst Reg, i int32) { a.aluRI(true, extCmp, dst, i) }

// TestRR32/64 emit TEST dst, src (ANDs and sets flags, discards result).
func (a *Assembler) TestRR32(dst, src Reg) {
	a.rex(false, src.extended(), false, dst.extended())
	a.write8(0x85)
	a.modrmReg(src, dst)
}

func (a *Assembler) TestRR64(dst, src Reg) {
	a.rex(true, src.extended(), false, dst.extended())
	a.write8(0x85)
	a.modrmReg(src, dst)
}

// NotR32/64 emit NOT dst (one's complement, group-3 opcode extension /2).
func (a *Assembler) NotR32(dst Reg) {
	a.rex(false, false, false, dst.extended())
	a.write8(0xF7)
	a.write8(0xC0 | 0b010<<3 | dst.encoding())
}

func (a *Assembler) NotR64(dst Reg) {
	a.rex(true, false, false, dst.extended())
	a.write8(0xF7)
	a.write8(0xC0 | 0b010<<3 | dst.encoding())
}
