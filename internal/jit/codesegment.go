package jit

import "github.com/intuitionamiga/x64emulator/internal/inst"

// SegmentHandle names a CodeSegment by its index into Jit's segment
// arena rather than a pointer, per spec.md §9's design note on modeling
// the segment graph's cycles as index pairs in an arena the Jit owns.
type SegmentHandle int

const noSegment SegmentHandle = -1

// fixedSlots is the number of direct-successor cache slots a CodeSegment
// keeps, per CodeSegment::FixedDestinationInfo::CACHE_SIZE.
const fixedSlots = 2

// defaultCompilationThreshold is callsForCompilation_'s initial value
// (spec.md §4.6's "default value is an implementation constant").
const defaultCompilationThreshold = 1024

// DefaultCompilationThreshold exposes defaultCompilationThreshold to
// callers outside the package (the VM's configuration envelope default,
// spec.md §6 item 2).
const DefaultCompilationThreshold = defaultCompilationThreshold

// CodeSegment wraps one basic block's decoded instructions with the
// JIT's bookkeeping: up to two fixed (compile-time-literal) successors
// with per-slot hit counts (the hottest promoted to slot 0), a growing
// variable-successor table for indirect branches, a predecessor bag, and
// the compilation budget. Grounded on x64::CodeSegment.
type CodeSegment struct {
	StartAddr    uint64
	Instructions []inst.Instruction

	// EndsWithFixedDestinationJump marks a literal-target terminator
	// (direct JMP/Jcc/CALL), routed to the fixed-successor cache instead
	// of the variable one.
	EndsWithFixedDestinationJump bool

	jitBlock *JitBasicBlock

	fixedNext      [fixedSlots]SegmentHandle
	fixedNextCount [fixedSlots]uint64

	varNext      []SegmentHandle
	varNextStart []uint64
	varNextCount []uint64

	// fallthroughSucc/takenSucc name the segment's two possible direct
	// exits by role (fall-through vs taken branch), independent of the
	// generic fixedNext dispatch cache above: chaining needs to know
	// specifically which of a JitBasicBlock's two replaceable jumps
	// (pendingFallthrough/pendingTaken) a given successor patches, which
	// fixedNext's hit-count-ordered slots don't preserve.
	fallthroughSucc SegmentHandle
	takenSucc       SegmentHandle

	predecessors map[uint64]SegmentHandle

	compilationAttempted bool
	calls                uint64
	callsForCompilation  uint64
}

func newCodeSegment(start uint64, instructions []inst.Instruction) *CodeSegment {
	seg := &CodeSegment{
		StartAddr:           start,
		Instructions:        instructions,
		predecessors:        make(map[uint64]SegmentHandle),
		callsForCompilation: defaultCompilationThreshold,
		fallthroughSucc:     noSegment,
		takenSucc:           noSegment,
	}
	seg.fixedNext[0], seg.fixedNext[1] = noSegment, noSegment
	return seg
}

// Calls reports the segment's own interpreter call count plus its
// attached JIT block's native call count, per CodeSegment::calls().
func (s *CodeSegment) Calls() uint64 {
	if s.jitBlock != nil {
		return s.calls + s.jitBlock.calls
	}
	return s.calls
}

// JitBasicBlock returns the segment's attached compiled block, or nil if
// it has not been (successfully) compiled.
func (s *CodeSegment) JitBasicBlock() *JitBasicBlock { return s.jitBlock }

// Size reports the number of decoded instructions in the block.
func (s *CodeSegment) Size() int { return len(s.Instructions) }

// findNext searches h's fixed and variable successor tables for one
// whose start address is address, returning noSegment on a miss (the
// caller — the Jit's dispatch loop — is then responsible for locating or
// creating the segment by address and wiring it as a new successor).
func (j *Jit) findNext(h SegmentHandle, address uint64) SegmentHandle {
	seg := j.segment(h)
	for _, slot := range seg.fixedNext {
		if slot != noSegment && j.segment(slot).StartAddr == address {
			return slot
		}
	}
	for _, slot := range seg.varNext {
		if j.segment(slot).StartAddr == address {
			return slot
		}
	}
	return noSegment
}

// addFixedSuccessor records other as a direct-jump target of h, bumping
// its hit count and promoting it to slot 0 if it becomes the hotter of
// the two, per FixedDestinationInfo::addSuccessor.
func (j *Jit) addFixedSuccessor(h, other SegmentHandle) {
	seg := j.segment(h)
	for i, slot := range seg.fixedNext {
		if slot == other {
			seg.fixedNextCount[i]++
			j.promoteFixedSlot(seg)
			j.addPredecessor(other, h)
			return
		}
	}
	for i, slot := range seg.fixedNext {
		if slot == noSegment {
			seg.fixedNext[i] = other
			seg.fixedNextCount[i] = 1
			j.promoteFixedSlot(seg)
			j.addPredecessor(other, h)
			return
		}
	}
	// both slots occupied by a different target: evict the colder one.
	coldest := 0
	if seg.fixedNextCount[1] < seg.fixedNextCount[0] {
		coldest = 1
	}
	j.removePredecessor(seg.fixedNext[coldest], h)
	seg.fixedNext[coldest] = other
	seg.fixedNextCount[coldest] = 1
	j.promoteFixedSlot(seg)
	j.addPredecessor(other, h)
}

func (j *Jit) promoteFixedSlot(seg *CodeSegment) {
	if seg.fixedNextCount[1] > seg.fixedNextCount[0] {
		seg.fixedNext[0], seg.fixedNext[1] = seg.fixedNext[1], seg.fixedNext[0]
		seg.fixedNextCount[0], seg.fixedNextCount[1] = seg.fixedNextCount[1], seg.fixedNextCount[0]
	}
}

// addVariableSuccessor records other, reached via an indirect branch
// landing on targetAddr, in h's variable-successor table, the list
// JitBasicBlock.syncBlockLookupTable reads.
func (j *Jit) addVariableSuccessor(h, other SegmentHandle, targetAddr uint64) {
	seg := j.segment(h)
	for i, slot := range seg.varNext {
		if slot == other {
			seg.varNextCount[i]++
			return
		}
	}
	seg.varNext = append(seg.varNext, other)
	seg.varNextStart = append(seg.varNextStart, targetAddr)
	seg.varNextCount = append(seg.varNextCount, 1)
	j.addPredecessor(other, h)
}

func (j *Jit) addPredecessor(h, predecessor SegmentHandle) {
	j.segment(h).predecessors[j.segment(predecessor).StartAddr] = predecessor
}

func (j *Jit) removePredecessor(h, predecessor SegmentHandle) {
	if h == noSegment {
		return
	}
	delete(j.segment(h).predecessors, j.segment(predecessor).StartAddr)
}

// removeFromCaches unlinks h from every neighbor's successor/predecessor
// tables, for self-modifying-code invalidation per spec.md §9: already
// executing native code is not retroactively patched, but a removed
// segment should not be reachable from its former neighbors afterward.
func (j *Jit) removeFromCaches(h SegmentHandle) {
	seg := j.segment(h)
	for _, slot := range seg.fixedNext {
		j.removePredecessor(slot, h)
	}
	for _, slot := range seg.varNext {
		j.removePredecessor(slot, h)
	}
	for _, pred := range seg.predecessors {
		p := j.segment(pred)
		for i, slot := range p.fixedNext {
			if slot == h {
				p.fixedNext[i] = noSegment
				p.fixedNextCount[i] = 0
			}
		}
		for i, slot := range p.varNext {
			if slot == h {
				p.varNext = append(p.varNext[:i], p.varNext[i+1:]...)
				p.varNextStart = append(p.varNextStart[:i], p.varNextStart[i+1:]...)
				p.varNextCount = append(p.varNextCount[:i], p.varNextCount[i+1:]...)
				break
			}
		}
	}
	seg.fixedNext = [fixedSlots]SegmentHandle{noSegment, noSegment}
	seg.fixedNextCount = [fixedSlots]uint64{}
	seg.varNext, seg.varNextStart, seg.varNextCount = nil, nil, nil
	seg.predecessors = make(map[uint64]SegmentHandle)
}
