package ir

import "testing"

const (
	regRAX Reg = iota + 1
	regRBX
	regRCX
)

func TestDeadCodeEliminationRemovesUnreadWrite(t *testing.T) {
	block := &IR{Instructions: []Instruction{
		NewInstruction(OpMov, R64(regRAX), Imm64(1)),
		NewInstruction(OpMov, R64(regRBX), Imm64(2)), // RBX never read again: dead
		NewInstruction(OpMov, R64(regRCX), R64(regRAX)),
	}}

	stats := Optimize(block)
	if stats.DeadCodeEliminated == 0 {
		t.Fatalf("expected at least one dead instruction removed")
	}
	for _, in := range block.Instructions {
		if r, ok := in.Out.Reg(); ok && r == regRBX {
			t.Fatalf("dead write to RBX survived optimization: %+v", block.Instructions)
		}
	}
}

func TestDeadCodeEliminationKeepsFlagSettingInstructionWhenConsumed(t *testing.T) {
	block := &IR{Instructions: []Instruction{
		NewInstruction(OpCmp, R64(regRAX), R64(regRBX)), // sets flags
		NewInstruction(OpJcc, Label(LabelIndex{Index: 0})).WithCond(CondE),
	}}
	Optimize(block)
	if len(block.Instructions) != 2 {
		t.Fatalf("flag-producing CMP consumed by JCC should survive: %+v", block.Instructions)
	}
}

func TestImmediateReadBackElimination(t *testing.T) {
	// Exercises the pass directly (not via Optimize) since dead-code
	// elimination would otherwise also remove the lone surviving write in
	// such a short, artificial block, confounding what this test checks.
	block := &IR{Instructions: []Instruction{
		NewInstruction(OpMov, R64(regRCX), Imm64(5)),
		NewInstruction(OpMov, R64(regRAX), R64(regRCX)),
	}}
	if n := immediateReadBackElimination(block); n == 0 {
		t.Fatalf("expected the read-back pass to fold MOV RCX,5; MOV RAX,RCX")
	}
	if len(block.Instructions) != 1 {
		t.Fatalf("expected exactly one surviving MOV, got %+v", block.Instructions)
	}
	folded := block.Instructions[0]
	if v, ok := folded.In1.Imm(); folded.Op != OpMov || !ok || v != 5 {
		t.Fatalf("expected the surviving MOV to read the original immediate 5, got %+v", folded)
	}
	if r, ok := folded.Out.Reg(); !ok || r != regRAX {
		t.Fatalf("expected the surviving MOV to write RAX, got %+v", folded)
	}
}

func TestDuplicateInstructionElimination(t *testing.T) {
	// Two ADDs back-to-back are not true duplicates: ADD is read-modify-write,
	// so the second reads the first's result and they compute different
	// values. A genuine redundant computation instead looks like two
	// identical loads with an unrelated, non-invalidating op between them.
	mem := Mem{Base: regRBX}
	block := &IR{Instructions: []Instruction{
		NewInstruction(OpMov, R64(regRAX), M64(mem)),
		NewInstruction(OpMov, R64(regRCX), Imm64(5)), // unrelated, doesn't touch RAX or [RBX]
		NewInstruction(OpMov, R64(regRAX), M64(mem)), // redundant re-load
	}}

	// Exercised directly, as with the read-back pass, to avoid dead-code
	// elimination's block-boundary liveness assumptions confounding what
	// this test checks.
	n := duplicateInstructionElimination(block)
	if n == 0 {
		t.Fatalf("expected the redundant re-load to be removed")
	}
	if len(block.Instructions) != 2 {
		t.Fatalf("expected exactly two surviving instructions, got %+v", block.Instructions)
	}
}

func TestCanCommuteDisjointRegisters(t *testing.T) {
	a := NewInstruction(OpMov, R64(regRAX), Imm64(1))
	b := NewInstruction(OpMov, R64(regRBX), Imm64(2))
	if !CanCommute(a, b) {
		t.Fatalf("disjoint register writes should commute")
	}
}

func TestCanCommuteBlockedByFlagDependency(t *testing.T) {
	a := NewInstruction(OpCmp, R64(regRAX), R64(regRBX))
	b := NewInstruction(OpJcc, Label(LabelIndex{Index: 0})).WithCond(CondE)
	if CanCommute(a, b) {
		t.Fatalf("a flag producer and its consumer must not commute")
	}
}

func TestIRAddRebasesLabels(t *testing.T) {
	var base IR
	base.Instructions = append(base.Instructions, NewInstruction(OpNopN))
	base.Labels = append(base.Labels, 0)

	var other IR
	l := other.NewLabel(0)
	other.Instructions = append(other.Instructions, NewInstruction(OpJmp, Label(l)))

	base.Add(other)
	rebased, ok := base.Instructions[1].Out.Label()
	if !ok || rebased.Index != 1 {
		t.Fatalf("Add should rebase other's label index past base's existing labels, got %+v", rebased)
	}
}
