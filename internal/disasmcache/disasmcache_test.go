package disasmcache

import (
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

// fakeRetriever serves a single fixed blob at a fixed base, mimicking a
// loader-level BytecodeRetriever without going through an Mmu.
type fakeRetriever struct {
	base uint64
	data []byte
	name string
}

func (f *fakeRetriever) RetrieveBytecode(address, size uint64) ([]byte, string, uint64, bool) {
	if address < f.base || address >= f.base+uint64(len(f.data)) {
		return nil, "", 0, false
	}
	return f.data, f.name, f.base, true
}

func straightLineCode() []byte {
	return []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x83, 0xc0, 0x01, // add eax, 1
		0xc3, // ret
	}
}

func TestGetBasicBlockStopsAtControlTransfer(t *testing.T) {
	c := New(0)
	r := &fakeRetriever{base: 0x1000, data: straightLineCode(), name: "test"}

	block := c.GetBasicBlock(0x1000, r)
	if len(block) != 3 {
		t.Fatalf("block length = %d, want 3", len(block))
	}
	if !block[len(block)-1].IsRet() {
		t.Fatalf("block should end on ret")
	}
}

func TestGetBasicBlockCachesSection(t *testing.T) {
	calls := 0
	c := New(0)
	countingRetriever := retrieverFunc(func(address, size uint64) ([]byte, string, uint64, bool) {
		calls++
		return straightLineCode(), "test", 0x1000, true
	})

	c.GetBasicBlock(0x1000, countingRetriever)
	c.GetBasicBlock(0x1005, countingRetriever) // mid-section, should hit cache
	if calls != 1 {
		t.Fatalf("retriever called %d times, want 1 (second lookup should hit cache)", calls)
	}
}

func TestOnRegionDestructionRemovesSection(t *testing.T) {
	c := New(0)
	r := &fakeRetriever{base: 0x1000, data: straightLineCode(), name: "test"}
	c.GetBasicBlock(0x1000, r)

	c.OnRegionDestruction(0x1000, 0x1000, prim.NewBitFlags(mmu.ProtRead, mmu.ProtExec))

	if _, ok := c.TryFindContainingFile(0x1000); ok {
		t.Fatalf("section should have been removed on region destruction")
	}
}

func TestOnRegionProtectionChangeLosingExecRemovesSection(t *testing.T) {
	c := New(0)
	r := &fakeRetriever{base: 0x1000, data: straightLineCode(), name: "test"}
	c.GetBasicBlock(0x1000, r)

	before := prim.NewBitFlags(mmu.ProtRead, mmu.ProtExec)
	after := prim.NewBitFlags(mmu.ProtRead)
	c.OnRegionProtectionChange(0x1000, 0x1000, before, after)

	if _, ok := c.TryFindContainingFile(0x1000); ok {
		t.Fatalf("section should have been removed after losing exec")
	}
}

func TestOnRegionProtectionChangeKeepingExecKeepsSection(t *testing.T) {
	c := New(0)
	r := &fakeRetriever{base: 0x1000, data: straightLineCode(), name: "test"}
	c.GetBasicBlock(0x1000, r)

	before := prim.NewBitFlags(mmu.ProtRead, mmu.ProtExec)
	after := prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite, mmu.ProtExec)
	c.OnRegionProtectionChange(0x1000, 0x1000, before, after)

	if _, ok := c.TryFindContainingFile(0x1000); !ok {
		t.Fatalf("section should survive a protection change that keeps exec")
	}
}

func TestWithMutexStillServesLookups(t *testing.T) {
	c := New(0, WithMutex(true))
	r := &fakeRetriever{base: 0x1000, data: straightLineCode(), name: "test"}

	block := c.GetBasicBlock(0x1000, r)
	if len(block) != 3 {
		t.Fatalf("block length = %d, want 3", len(block))
	}
	if !c.withMutex {
		t.Fatalf("expected WithMutex(true) to set withMutex")
	}
}

type retrieverFunc func(address, size uint64) ([]byte, string, uint64, bool)

func (f retrieverFunc) RetrieveBytecode(address, size uint64) ([]byte, string, uint64, bool) {
	return f(address, size)
}
