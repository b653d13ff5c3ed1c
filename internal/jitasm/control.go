package jitasm

// condNibble holds the 0x8x/0x9x low nibbles for the two-byte
// 0F 8x (Jcc rel32) and 0F 9x (SETcc r/m8) opcode families, indexed by
// Cond — both families share the same condition-to-nibble mapping.
var condNibble = [...]byte{
	CondO: 0x0, CondNO: 0x1, CondB: 0x2, CondAE: 0x3,
	CondE: 0x4, CondNE: 0x5, CondBE: 0x6, CondA: 0x7,
	CondS: 0x8, CondNS: 0x9, CondP: 0xA, CondNP: 0xB,
	CondL: 0xC, CondGE: 0xD, CondLE: 0xE, CondG: 0xF,
}

// Push64 emits PUSH src.
func (a *Assembler) Push64(src Reg) {
	if src.extended() {
		a.write8(0x41)
	}
	a.write8(0x50 + src.encoding())
}

// Pop64 emits POP dst.
func (a *Assembler) Pop64(dst Reg) {
	if dst.extended() {
		a.write8(0x41)
	}
	a.write8(0x58 + dst.encoding())
}

// Pushf emits PUSHFQ.
func (a *Assembler) Pushf() { a.write8(0x9C) }

// Popf emits POPFQ.
func (a *Assembler) Popf() { a.write8(0x9D) }

// SetCC emits SETcc dst (byte register; low byte of RAX/RCX/RDX/RBX or an
// R8-R15 byte register — no AH/CH/DH/BH support).
func (a *Assembler) SetCC(cond Cond, dst Reg) {
	if dst.extended() {
		a.write8(0x41)
	}
	a.write8(0x0F)
	a.write8(0x90 | condNibble[cond])
	a.write8(0xC0 | dst.encoding())
}

// JumpCondition emits a Jcc rel32 to l, patched immediately if l is
// already bound or deferred to PutLabel otherwise.
func (a *Assembler) JumpCondition(cond Cond, l *Label) {
	a.write8(0x0F)
	a.write8(0x80 | condNibble[cond])
	a.emitRel32To(l)
}

// Jmp emits an unconditional JMP rel32 to l. Not present in the teacher's
// Assembler (every original block ends via jumpCondition or falls through),
// but internal/jit's block-chaining needs an explicit unconditional jump
// for the taken-branch and fall-through patch points, so it is added here
// in the same idiom as JumpCondition.
func (a *Assembler) Jmp(l *Label) {
	a.write8(0xE9)
	a.emitRel32To(l)
}

// JmpPlaceholder emits an unconditional JMP rel32 whose target is not yet
// known as a Label (e.g. an absolute host address only known after the
// surrounding code has been copied into its final executable allocation).
// It writes a zero rel32 and returns the offset of that 4-byte field, for
// the caller to fix up later with its own patchRel32-style mechanism —
// the same deferred-patch idiom as internal/jit's pendingFallthrough and
// pendingTaken offsets.
func (a *Assembler) JmpPlaceholder() int {
	a.write8(0xE9)
	off := a.Len()
	a.write32(0)
	return off
}

// CallPlaceholder emits an unconditional CALL rel32 whose target is not
// yet known, the CALL counterpart to JmpPlaceholder: it writes a zero
// rel32 and returns the offset of that 4-byte field for a later
// patchRel32-style fixup. Used by internal/jit's per-block exit glue to
// reach the trampoline's shared register-spill code without needing a
// free register to hold its address — a direct CALL rel32 needs none.
func (a *Assembler) CallPlaceholder() int {
	a.write8(0xE8)
	off := a.Len()
	a.write32(0)
	return off
}

// JmpIndirect emits JMP reg (indirect jump through a host register,
// used by internal/jit's indirect-branch lookup-table dispatch).
func (a *Assembler) JmpIndirect(reg Reg) {
	if reg.extended() {
		a.write8(0x41)
	}
	a.write8(0xFF)
	a.write8(0xC0 | 0b100<<3 | reg.encoding())
}

// CallIndirect emits CALL reg.
func (a *Assembler) CallIndirect(reg Reg) {
	if reg.extended() {
		a.write8(0x41)
	}
	a.write8(0xFF)
	a.write8(0xC0 | 0b010<<3 | reg.encoding())
}

// Ret emits RET.
func (a *Assembler) Ret() { a.write8(0xC3) }

// Push64Mem emits PUSH [mem] (group-5 opcode extension /6).
func (a *Assembler) Push64Mem(mem Mem) {
	a.rex(false, false, mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0xFF)
	a.modrmMem(0b110, mem)
}

// Pop64Mem emits POP [mem] (opcode extension /0).
func (a *Assembler) Pop64Mem(mem Mem) {
	a.rex(false, false, mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0x8F)
	a.modrmMem(0b000, mem)
}

// JmpMem64 emits JMP [mem] (group-5 opcode extension /4): a near
// indirect jump whose target is read from memory rather than a register,
// used by internal/jit's trampoline to jump to a call-supplied entry
// point without needing a spare register to hold it.
func (a *Assembler) JmpMem64(mem Mem) {
	a.rex(false, false, mem.HasIndex && mem.Index.extended(), mem.Base.extended())
	a.write8(0xFF)
	a.modrmMem(0b100, mem)
}
