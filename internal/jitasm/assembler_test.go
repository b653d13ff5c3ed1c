package jitasm

import (
	"bytes"
	"testing"
)

func assertBytes(t *testing.T, got []byte, want ...byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestMovRR64(t *testing.T) {
	a := New()
	a.MovRR64(RCX, RAX) // mov rcx, rax
	assertBytes(t, a.Code(), 0x48, 0x8B, 0xC8)
}

func TestMovRI64Extended(t *testing.T) {
	a := New()
	a.MovRI64(R8, 0x1122334455667788)
	assertBytes(t, a.Code(), 0x49, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11)
}

func TestAddRI32ShortImm(t *testing.T) {
	a := New()
	a.AddRI32(RBX, 5)
	assertBytes(t, a.Code(), 0x83, 0xC3, 0x05)
}

func TestAddRI32LongImm(t *testing.T) {
	a := New()
	a.AddRI32(RBX, 0x12345678)
	assertBytes(t, a.Code(), 0x81, 0xC3, 0x78, 0x56, 0x34, 0x12)
}

func TestCmpRR64(t *testing.T) {
	a := New()
	a.CmpRR64(RAX, RBX)
	assertBytes(t, a.Code(), 0x48, 0x39, 0xD8)
}

func TestMovRM64WithSIB(t *testing.T) {
	a := New()
	a.MovRM64(RAX, Mem{Base: RDI, Index: RCX, HasIndex: true, Scale: 4, Disp: 0x10})
	assertBytes(t, a.Code(), 0x48, 0x8B, 0x44, 0x8F, 0x10)
}

func TestMovRM64NoIndexNoDisp(t *testing.T) {
	a := New()
	a.MovRM64(RAX, Mem{Base: RBX})
	// mov rax, [rbx]
	assertBytes(t, a.Code(), 0x48, 0x8B, 0x03)
}

func TestMovRM64RBPRequiresDisp(t *testing.T) {
	a := New()
	a.MovRM64(RAX, Mem{Base: RBP})
	// [rbp] with no displacement must still encode disp8=0 (mod=01)
	assertBytes(t, a.Code(), 0x48, 0x8B, 0x45, 0x00)
}

func TestPush64ExtendedRegister(t *testing.T) {
	a := New()
	a.Push64(R12)
	assertBytes(t, a.Code(), 0x41, 0x54)
}

func TestJumpConditionForwardPatch(t *testing.T) {
	a := New()
	l := a.NewLabel()
	a.JumpCondition(CondE, l) // 2 + 4 bytes, jump target unknown yet
	a.AddRI32(RAX, 1)         // 3 bytes (short-imm form): filler so the jump isn't zero-distance
	a.PutLabel(l)

	code := a.Code()
	if len(code) != 2+4+3 {
		t.Fatalf("unexpected code length %d", len(code))
	}
	if code[0] != 0x0F || code[1] != 0x84 {
		t.Fatalf("expected JE opcode bytes, got %x %x", code[0], code[1])
	}
	offset := int32(code[2]) | int32(code[3])<<8 | int32(code[4])<<16 | int32(code[5])<<24
	if offset != 3 {
		t.Fatalf("expected patched rel32 offset 3 (skip the filler), got %d", offset)
	}
}

func TestJumpConditionBackwardPatch(t *testing.T) {
	a := New()
	l := a.NewLabel()
	a.PutLabel(l)     // label bound at position 0
	a.AddRI32(RAX, 1) // 3 bytes
	a.JumpCondition(CondE, l)

	code := a.Code()
	offset := int32(code[5]) | int32(code[6])<<8 | int32(code[7])<<16 | int32(code[8])<<24
	if offset != -9 {
		t.Fatalf("expected backward rel32 offset -9, got %d", offset)
	}
}

func TestSetCCExtendedRegister(t *testing.T) {
	a := New()
	a.SetCC(CondE, R9)
	assertBytes(t, a.Code(), 0x41, 0x0F, 0x94, 0xC1)
}

func TestPush64Mem(t *testing.T) {
	a := New()
	a.Push64Mem(Mem{Base: RBX})
	// push qword [rbx]
	assertBytes(t, a.Code(), 0xFF, 0x33)
}

func TestPop64Mem(t *testing.T) {
	a := New()
	a.Pop64Mem(Mem{Base: RBP})
	// pop qword [rbp] needs an explicit disp8=0
	assertBytes(t, a.Code(), 0x8F, 0x45, 0x00)
}
