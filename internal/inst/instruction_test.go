package inst

import "testing"

func TestDecodeMovEaxImm(t *testing.T) {
	// b8 78 56 34 12          mov eax, 0x12345678
	code := []byte{0xb8, 0x78, 0x56, 0x34, 0x12}
	in, err := Decode(0x1000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Len != 5 {
		t.Fatalf("Len = %d, want 5", in.Len)
	}
	if in.NextAddr() != 0x1005 {
		t.Fatalf("NextAddr = %#x, want 0x1005", in.NextAddr())
	}
	if in.IsControlTransfer() {
		t.Fatalf("mov should not be a control transfer")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode(0, []byte{0x0f, 0xff}); err == nil {
		t.Fatalf("expected decode error for invalid opcode")
	}
}

func TestFixedDestinationJump(t *testing.T) {
	// eb 05                   jmp +5
	code := []byte{0xeb, 0x05}
	in, err := Decode(0x2000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsControlTransfer() {
		t.Fatalf("jmp should be a control transfer")
	}
	if !in.IsFixedDestinationJump() {
		t.Fatalf("direct jmp should be a fixed-destination jump")
	}
	want := uint64(0x2000 + 2 + 5)
	if got := in.BranchTarget(); got != want {
		t.Fatalf("BranchTarget = %#x, want %#x", got, want)
	}
	if in.IsConditionalJump() {
		t.Fatalf("unconditional jmp misclassified as conditional")
	}
}

func TestConditionalJumpIsFixedDestination(t *testing.T) {
	// 74 05                   je +5
	code := []byte{0x74, 0x05}
	in, err := Decode(0x3000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsConditionalJump() {
		t.Fatalf("je should be conditional")
	}
	if !in.IsFixedDestinationJump() {
		t.Fatalf("je with a rel8 operand is still a fixed-destination jump")
	}
}

func TestSyscallIsControlTransfer(t *testing.T) {
	// 0f 05                   syscall
	code := []byte{0x0f, 0x05}
	in, err := Decode(0x4000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsSyscall() || !in.IsControlTransfer() {
		t.Fatalf("syscall should be IsSyscall and a control transfer")
	}
}

func TestRetIsControlTransfer(t *testing.T) {
	// c3                      ret
	code := []byte{0xc3}
	in, err := Decode(0x5000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsRet() || !in.IsControlTransfer() {
		t.Fatalf("ret should be IsRet and a control transfer")
	}
}

func TestLockedPrefix(t *testing.T) {
	// f0 01 d0                lock add eax, edx
	code := []byte{0xf0, 0x01, 0xd0}
	in, err := Decode(0x6000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsLocked() {
		t.Fatalf("expected lock prefix to be detected")
	}
}

func TestCallIsControlTransferNotConditional(t *testing.T) {
	// e8 00 00 00 00           call +0
	code := []byte{0xe8, 0x00, 0x00, 0x00, 0x00}
	in, err := Decode(0x7000, code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.IsCall() || !in.IsControlTransfer() {
		t.Fatalf("call should be IsCall and a control transfer")
	}
	if in.IsConditionalJump() {
		t.Fatalf("call misclassified as conditional jump")
	}
}
