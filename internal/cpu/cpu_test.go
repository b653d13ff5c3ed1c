package cpu

import (
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

func newTestCpu(t *testing.T) (*Cpu, *mmu.Mmu) {
	t.Helper()
	m, err := mmu.New(16 * 1024 * 1024)
	if err != nil {
		t.Fatalf("mmu.New: %v", err)
	}
	state := NewGuestState()
	return New(state, m, nil), m
}

func decodeOne(t *testing.T, addr uint64, code []byte) inst.Instruction {
	t.Helper()
	in, err := inst.Decode(addr, code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return in
}

// TestS1MovzxEaxCl mirrors spec.md §8's S1 scenario.
func TestS1MovzxEaxCl(t *testing.T) {
	c, _ := newTestCpu(t)
	c.State.SetGPR(RAX, 0x20)
	c.State.SetGPR(RCX, 0x58)

	// 0f b6 c1                movzx eax, cl
	in := decodeOne(t, 0x1000, []byte{0x0f, 0xb6, 0xc1})
	c.Execute(in)

	if got := c.State.GPRValue(RAX); got != 0x58 {
		t.Fatalf("RAX = %#x, want 0x58", got)
	}
}

// TestS2FsRelativeLoad mirrors spec.md §8's S2 scenario.
func TestS2FsRelativeLoad(t *testing.T) {
	c, m := newTestCpu(t)
	base := m.Mmap(0x10000, mmu.PageSize, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	m.Write32(base, 0x12345678)

	c.State.SegmentBases[SegFS] = base
	c.State.SetGPR(RBX, 0)
	c.State.SetGPR(RCX, 0)

	// 64 48 8b 04 0b          mov rax, fs:[rbx+rcx]
	in := decodeOne(t, 0x2000, []byte{0x64, 0x48, 0x8b, 0x04, 0x0b})
	c.Execute(in)

	if got := c.State.GPRValue(RAX); got != 0x12345678 {
		t.Fatalf("RAX = %#x, want 0x12345678", got)
	}
}

// TestS3RepMovsM32 mirrors spec.md §8's S3 scenario.
func TestS3RepMovsM32(t *testing.T) {
	c, m := newTestCpu(t)
	src := m.Mmap(0x30000, mmu.PageSize, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	dst := m.Mmap(0x40000, mmu.PageSize, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	m.Write32(src, 0x12345678)

	c.State.SetGPR(RDI, dst)
	c.State.SetGPR(RSI, src)
	c.State.SetGPR(RCX, 2)

	// f3 a5                   rep movsd
	in := decodeOne(t, 0x5000, []byte{0xf3, 0xa5})
	c.Execute(in)

	if got := m.Read32(dst); got != 0x12345678 {
		t.Fatalf("dst[0] = %#x, want 0x12345678", got)
	}
	if got := c.State.GPRValue(RDI); got != dst+8 {
		t.Fatalf("RDI = %#x, want %#x", got, dst+8)
	}
	if got := c.State.GPRValue(RSI); got != src+8 {
		t.Fatalf("RSI = %#x, want %#x", got, src+8)
	}
	if got := c.State.GPRValue(RCX); got != 0 {
		t.Fatalf("RCX = %d, want 0", got)
	}
}

// TestS4LockCmpxchg mirrors spec.md §8's S4 scenario.
func TestS4LockCmpxchg(t *testing.T) {
	c, m := newTestCpu(t)
	base := m.Mmap(0x60000, mmu.PageSize, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	m.Write32(base, 0x10)
	c.State.SetGPR(RAX, 0x10)
	c.State.SetGPR(RBX, 0x20)

	// f0 0f b1 1d ...         lock cmpxchg [rip+disp], ebx -- use absolute via LEA'd register instead
	// f0 0f b1 18             lock cmpxchg [rax], ebx  (but rax holds the compare value, not the address)
	// Use RCX as the address register to keep RAX free for the compare value.
	c.State.SetGPR(RCX, base)
	in := decodeOne(t, 0x7000, []byte{0xf0, 0x0f, 0xb1, 0x19}) // lock cmpxchg [rcx], ebx

	c.Execute(in)
	if got := m.Read32(base); got != 0x20 {
		t.Fatalf("mem = %#x, want 0x20", got)
	}
	if got := c.State.GPRValue(RAX); got != 0x10 {
		t.Fatalf("RAX = %#x, want 0x10", got)
	}
	if !c.State.RFlags.Test(FlagZF) {
		t.Fatalf("expected ZF=1 on successful compare")
	}

	// Repeat with a mismatching RAX.
	m.Write32(base, 0x10)
	c.State.SetGPR(RAX, 0x11)
	in2 := decodeOne(t, 0x7010, []byte{0xf0, 0x0f, 0xb1, 0x19})
	c.Execute(in2)
	if got := m.Read32(base); got != 0x10 {
		t.Fatalf("mem = %#x, want 0x10", got)
	}
	if got := c.State.GPRValue(RAX); got != 0x10 {
		t.Fatalf("RAX = %#x, want 0x10", got)
	}
	if c.State.RFlags.Test(FlagZF) {
		t.Fatalf("expected ZF=0 on failed compare")
	}
}

func TestAddFlags(t *testing.T) {
	c, _ := newTestCpu(t)
	c.State.SetGPR(RAX, 0xffffffff)
	c.State.SetGPR(RBX, 1)

	// 01 d8                   add eax, ebx
	in := decodeOne(t, 0x8000, []byte{0x01, 0xd8})
	c.Execute(in)

	if got := c.State.GPRValue(RAX); got != 0 {
		t.Fatalf("RAX = %#x, want 0", got)
	}
	if !c.State.RFlags.Test(FlagZF) || !c.State.RFlags.Test(FlagCF) {
		t.Fatalf("expected ZF and CF set on wraparound add")
	}
}

func TestJumpUpdatesRip(t *testing.T) {
	c, _ := newTestCpu(t)
	// eb 05                   jmp +5
	in := decodeOne(t, 0x9000, []byte{0xeb, 0x05})
	c.Execute(in)
	if got := c.State.RIPValue(); got != 0x9000+2+5 {
		t.Fatalf("RIP = %#x, want %#x", got, uint64(0x9000+2+5))
	}
}

func TestCallPushesReturnAddressAndRet(t *testing.T) {
	c, m := newTestCpu(t)
	stackBase := m.Mmap(0x70000, mmu.PageSize, prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite), prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	c.State.SetGPR(RSP, stackBase+mmu.PageSize)

	// e8 00 00 00 00          call +0 (target == next instruction)
	call := decodeOne(t, 0xa000, []byte{0xe8, 0x00, 0x00, 0x00, 0x00})
	c.Execute(call)
	if got := c.State.RIPValue(); got != 0xa005 {
		t.Fatalf("RIP after call = %#x, want 0xa005", got)
	}

	// c3                      ret
	ret := decodeOne(t, 0xa005, []byte{0xc3})
	c.Execute(ret)
	if got := c.State.RIPValue(); got != 0xa005 {
		t.Fatalf("RIP after ret = %#x, want 0xa005 (return address)", got)
	}
	if got := c.State.GPRValue(RSP); got != stackBase+mmu.PageSize {
		t.Fatalf("RSP not restored after ret: %#x", got)
	}
}
