package codegen

import (
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/ir"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

func TestGenerateMovAddRet(t *testing.T) {
	block := &ir.IR{Instructions: []ir.Instruction{
		ir.NewInstruction(ir.OpMov, ir.R64(ir.RegRAX), ir.Imm64(5)),
		ir.NewInstruction(ir.OpAdd, ir.R64(ir.RegRAX), ir.R64(ir.RegRAX), ir.R64(ir.RegRBX)),
		ir.NewInstruction(ir.OpRet),
	}}

	nbb, ok := Generate(block)
	if !ok {
		t.Fatalf("expected this block to generate cleanly")
	}
	if len(nbb.Code) == 0 {
		t.Fatalf("expected non-empty native code")
	}
	// MOV RAX,5 (REX.W + B8 + imm64) + ADD RAX,RBX (REX.W + opcode + ModRM) + RET
	wantLen := 10 /* mov rax, imm64 */ + 3 /* add rax, rbx */ + 1 /* ret */
	if len(nbb.Code) != wantLen {
		t.Fatalf("got code len %d, want %d (% x)", len(nbb.Code), wantLen, nbb.Code)
	}
	if nbb.Code[len(nbb.Code)-1] != 0xC3 {
		t.Fatalf("expected the block to end in RET, got %x", nbb.Code[len(nbb.Code)-1])
	}
}

func TestGenerateUnsupportedOperandCombinationFails(t *testing.T) {
	// ir.OpMov between two 16-bit registers has no Assembler encoding.
	block := &ir.IR{Instructions: []ir.Instruction{
		ir.NewInstruction(ir.OpMov, ir.R16(ir.RegRAX), ir.R16(ir.RegRBX)),
	}}
	if _, ok := Generate(block); ok {
		t.Fatalf("expected generation to fail for an unlowerable 16-bit MOV")
	}
}

func TestGenerateConditionalBranchWithChainingOffsets(t *testing.T) {
	// if RAX == RBX goto L0 else fall through; both arms just return.
	l0 := ir.LabelIndex{Index: 0}
	block := &ir.IR{
		Labels: []int{4},
		Instructions: []ir.Instruction{
			ir.NewInstruction(ir.OpCmp, ir.None(), ir.R64(ir.RegRAX), ir.R64(ir.RegRBX)),
			ir.NewInstruction(ir.OpJcc, ir.None(), ir.Label(l0)).WithCond(ir.CondE),
			ir.NewInstruction(ir.OpRet), // fall-through arm
			ir.NewInstruction(ir.OpJmp, ir.None(), ir.Label(l0)),
			ir.NewInstruction(ir.OpRet), // L0 arm (position 4)
		},
		JumpToNext:  prim.Some(3), // the JMP
		JumpToOther: prim.Some(1), // the Jcc
	}

	nbb, ok := Generate(block)
	if !ok {
		t.Fatalf("expected this block to generate cleanly")
	}
	// cmp(3 bytes) at 0; jcc (0F 84 rel32) at 3, its rel32 at 5; ret at 9;
	// jmp (E9 rel32) at 10, its rel32 at 11.
	if v, ok := nbb.JumpToNextOffset.Get(); !ok || v != 11 {
		t.Fatalf("expected JumpToNextOffset 11, got %d (present %v)", v, ok)
	}
	if v, ok := nbb.JumpToOtherOffset.Get(); !ok || v != 5 {
		t.Fatalf("expected JumpToOtherOffset 5, got %d (present %v)", v, ok)
	}
}
