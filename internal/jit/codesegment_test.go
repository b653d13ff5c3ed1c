package jit

import (
	"testing"

	"github.com/intuitionamiga/x64emulator/internal/prim"
)

func newTestJit(starts ...uint64) *Jit {
	j := &Jit{byAddr: make(map[uint64]SegmentHandle)}
	for _, s := range starts {
		j.segments = append(j.segments, *newCodeSegment(s, nil))
	}
	return j
}

func TestAddFixedSuccessorPromotesHotterSlot(t *testing.T) {
	j := newTestJit(0x1000, 0x2000, 0x3000)
	a, b := SegmentHandle(0), SegmentHandle(1)

	j.addFixedSuccessor(a, b)
	if j.segment(a).fixedNext[0] != b {
		t.Fatalf("expected b in slot 0 after its first hit")
	}

	c := SegmentHandle(2)
	j.addFixedSuccessor(a, c) // fills slot 1
	j.addFixedSuccessor(a, c) // c now hotter than b, should promote to slot 0
	if j.segment(a).fixedNext[0] != c {
		t.Fatalf("expected c promoted to slot 0 after becoming hotter, got fixedNext=%v counts=%v",
			j.segment(a).fixedNext, j.segment(a).fixedNextCount)
	}
}

func TestAddFixedSuccessorEvictsColdestOnThirdTarget(t *testing.T) {
	j := newTestJit(0x1000, 0x2000, 0x3000, 0x4000)
	a, b, c, d := SegmentHandle(0), SegmentHandle(1), SegmentHandle(2), SegmentHandle(3)

	j.addFixedSuccessor(a, b)
	j.addFixedSuccessor(a, b)
	j.addFixedSuccessor(a, c)
	// both slots full (b hot, c cold); d should evict c, not b
	j.addFixedSuccessor(a, d)

	found := map[SegmentHandle]bool{j.segment(a).fixedNext[0]: true, j.segment(a).fixedNext[1]: true}
	if !found[b] || !found[d] {
		t.Fatalf("expected b and d to occupy the slots, got %v", j.segment(a).fixedNext)
	}
	if _, stillPred := j.segment(c).predecessors[j.segment(a).StartAddr]; stillPred {
		t.Fatalf("expected c's predecessor link to a to be removed on eviction")
	}
}

func TestFindNextSearchesFixedAndVariable(t *testing.T) {
	j := newTestJit(0x1000, 0x2000, 0x3000)
	a, b, c := SegmentHandle(0), SegmentHandle(1), SegmentHandle(2)
	j.addFixedSuccessor(a, b)
	j.addVariableSuccessor(a, c, 0x3000)

	if got := j.findNext(a, 0x2000); got != b {
		t.Fatalf("expected to find b via the fixed table, got %v", got)
	}
	if got := j.findNext(a, 0x3000); got != c {
		t.Fatalf("expected to find c via the variable table, got %v", got)
	}
	if got := j.findNext(a, 0x9999); got != noSegment {
		t.Fatalf("expected noSegment for an address with no successor, got %v", got)
	}
}

func TestRemoveFromCachesUnlinksNeighbors(t *testing.T) {
	j := newTestJit(0x1000, 0x2000)
	a, b := SegmentHandle(0), SegmentHandle(1)
	j.addFixedSuccessor(a, b)

	j.removeFromCaches(b)

	if j.segment(a).fixedNext[0] == b || j.segment(a).fixedNext[1] == b {
		t.Fatalf("expected a's fixed-successor slots to no longer reference b")
	}
}

func TestChainingPatchesOnceBothSidesCompiled(t *testing.T) {
	j := newTestJit(0x1000, 0x2000)
	a, b := SegmentHandle(0), SegmentHandle(1)
	j.jitChainingEnabled = true

	// neither compiled yet: setting the role should not panic and should
	// simply leave both blocks unpatched.
	j.setFallthroughSuccessor(a, b)
	if j.segment(a).fallthroughSucc != b {
		t.Fatalf("expected fallthroughSucc recorded even before either side compiles")
	}

	// give both a trivial compiled block with one pending fallthrough offset.
	j.segment(a).jitBlock = &JitBasicBlock{code: MemoryBlock{Mem: make([]byte, 16)}}
	j.segment(a).jitBlock.pendingFallthrough = prim.Some(4)
	j.segment(b).jitBlock = &JitBasicBlock{code: MemoryBlock{Mem: make([]byte, 16)}}

	j.tryChainFromSuccessors(a)
	if _, pending := j.segment(a).jitBlock.pendingFallthrough.Get(); pending {
		t.Fatalf("expected the fallthrough patch to have been applied (one-shot) once both sides compiled")
	}
}
