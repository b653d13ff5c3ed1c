package jit

import "testing"

func TestBuildTrampolineLayout(t *testing.T) {
	var alloc ExecutableMemoryAllocator
	tr, err := buildTrampoline(&alloc)
	if err != nil {
		t.Fatalf("buildTrampoline: %v", err)
	}
	if tr.entry == 0 {
		t.Fatalf("expected a non-zero entry address")
	}
	if tr.exitStub <= tr.entry {
		t.Fatalf("expected the exit stub to follow the entry code, got entry=%#x exitStub=%#x", tr.entry, tr.exitStub)
	}
	if tr.finish <= tr.exitStub {
		t.Fatalf("expected the finish tail to follow the spill code, got exitStub=%#x finish=%#x", tr.exitStub, tr.finish)
	}
	// One MovRM64 per mapped GPR (REX+8B+ModRM+disp8 = 4 bytes each, 3 for
	// the zero-displacement slot) plus the final JmpMem64 (FF+ModRM+SIB = 3
	// bytes, no REX) should roughly bound the entry stub's size.
	entrySize := int(tr.exitStub - tr.entry)
	if entrySize < len(mappedGPRs)*4 {
		t.Fatalf("entry stub shorter than expected for %d mapped registers: %d bytes", len(mappedGPRs), entrySize)
	}
}

func TestMappedGPRsExcludeRSPAndR15(t *testing.T) {
	seen := map[int]bool{}
	for _, i := range mappedGPRs {
		seen[i] = true
	}
	if seen[4] {
		t.Fatalf("RSP (index 4) must not be in mappedGPRs")
	}
	if seen[15] {
		t.Fatalf("R15 (index 15) must not be in mappedGPRs")
	}
	if len(mappedGPRs) != 14 {
		t.Fatalf("expected 14 mapped registers, got %d", len(mappedGPRs))
	}
}
