package jitasm

// MovRR64 emits MOV dst, src (64-bit register to register).
func (a *Assembler) MovRR64(dst, src Reg) {
	a.rex(true, dst.extended(), false, src.extended())
	a.write8(0x8B)
	a.modrmReg(dst, src)
}

// MovRR32 emits MOV dst, src (32-bit; implicitly zero-extends to 64 bits).
func (a *Assembler) MovRR32(dst, src Reg) {
	a.rex(false, dst.extended(), false, src.extended())
	a.write8(0x8B)
	a.modrmReg(dst, src)
}

// MovRI64 emits MOV dst, imm64.
func (a *Assembler) MovRI64(dst Reg, imm uint64) {
	a.rex(true, false, false, dst.extended())
	a.write8(0xB8 | dst.encoding())
	a.write64(imm)
}

// MovRI32 emits MOV dst, imm32 (zero-extends into the full 64-bit register).
func (a *Assembler) MovRI32(dst Reg, imm uint32) {
	a.rex(false, false, false, dst.extended())
	a.write8(0xB8 | dst.encoding())
	a.write32(imm)
}

// MovRM64 emits MOV dst, [mem] (64-bit load).
func (a *Assembler) MovRM64(dst Reg, mem Mem) {
	a.rex(true, dst.extended(), mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x8B)
	a.modrmMem(dst.encoding(), mem)
}

// MovMR64 emits MOV [mem], src (64-bit store).
func (a *Assembler) MovMR64(mem Mem, src Reg) {
	a.rex(true, src.extended(), mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x89)
	a.modrmMem(src.encoding(), mem)
}

// MovRM32 emits MOV dst, [mem] (32-bit load, zero-extends).
func (a *Assembler) MovRM32(dst Reg, mem Mem) {
	a.rex(false, dst.extended(), mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x8B)
	a.modrmMem(dst.encoding(), mem)
}

// MovMR32 emits MOV [mem], src (32-bit store).
func (a *Assembler) MovMR32(mem Mem, src Reg) {
	a.rex(false, src.extended(), mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x89)
	a.modrmMem(src.encoding(), mem)
}

// LeaR64 emits LEA dst, [mem] (compute address, no memory access).
func (a *Assembler) LeaR64(dst Reg, mem Mem) {
	a.rex(true, dst.extended(), mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x8D)
	a.modrmMem(dst.encoding(), mem)
}

// MovzxR32R8 emits MOVZX dst32, src8 (zero-extend a byte register, the
// low byte of one of RAX/RCX/RDX/RBX/R8-R15 — no REX prefix is forced,
// so source encodings 4-7 select AH/CH/DH/BH rather than SPL/BPL/SIL/DIL, mirroring codegen's own low-byte-only register allocation).
func (a *Assembler) MovzxR32R8(dst, src Reg) {
	a.rex(false, dst.extended(), false, src.extended())
	a.write8(0x0F)
	a.write8(0xB6)
	a.modrmReg(dst, src)
}

// MovsxR64R32 emits MOVSXD dst64, src32 (sign-extend 32 to 64 bits).
func (a *Assembler) MovsxR64R32(dst, src Reg) {
	a.rex(true, dst.extended(), false, src.extended())
	a.write8(0x63)
	a.modrmReg(dst, src)
}
