package jit

import "github.com/intuitionamiga/x64emulator/internal/prim"

// setFallthroughSuccessor/setTakenSuccessor record h's direct exit by
// role and wire the predecessor bookkeeping, called once the VM's
// dispatch loop has resolved the actual next segment for a fall-through
// or taken-branch edge (addFixedSuccessor's generic cache is a separate
// concern — see codesegment.go).
func (j *Jit) setFallthroughSuccessor(h, next SegmentHandle) {
	j.segment(h).fallthroughSucc = next
	j.addPredecessor(next, h)
	j.tryPatchOne(h, next, true)
}

func (j *Jit) setTakenSuccessor(h, next SegmentHandle) {
	j.segment(h).takenSucc = next
	j.addPredecessor(next, h)
	j.tryPatchOne(h, next, false)
}

// tryPatchOne patches h's replaceable jump (fallthrough if isFallthrough,
// else taken) to jump directly into next's compiled entry point, if both
// h and next are compiled and chaining is enabled. Patching is one-shot:
// JitBasicBlock.patchFallthrough/patchTaken clear the pending offset once
// applied, per spec.md §4.6.
func (j *Jit) tryPatchOne(h, next SegmentHandle, isFallthrough bool) {
	if !j.jitChainingEnabled {
		return
	}
	seg := j.segment(h)
	if seg.jitBlock == nil {
		return
	}
	target := j.segment(next)
	if target.jitBlock == nil {
		return
	}
	if isFallthrough {
		seg.jitBlock.patchFallthrough(target.jitBlock.EntryPoint())
	} else {
		seg.jitBlock.patchTaken(target.jitBlock.EntryPoint())
	}
}

// tryChainToPredecessors re-patches every predecessor of h that already
// has compiled code, called right after h itself finishes compiling (the
// predecessor may have been waiting on h).
func (j *Jit) tryChainToPredecessors(h SegmentHandle) {
	seg := j.segment(h)
	for _, pred := range seg.predecessors {
		p := j.segment(pred)
		if p.fallthroughSucc == h {
			j.tryPatchOne(pred, h, true)
		}
		if p.takenSucc == h {
			j.tryPatchOne(pred, h, false)
		}
	}
}

// tryChainFromSuccessors patches h's own replaceable jumps against
// fallthroughSucc/takenSucc if those successors already have compiled
// code (h may be compiling after them, e.g. on a loop back-edge).
func (j *Jit) tryChainFromSuccessors(h SegmentHandle) {
	seg := j.segment(h)
	if seg.fallthroughSucc != noSegment {
		j.tryPatchOne(h, seg.fallthroughSucc, true)
	}
	if seg.takenSucc != noSegment {
		j.tryPatchOne(h, seg.takenSucc, false)
	}
}

// SuccessorRole names which of a CodeSegment's direct-exit slots an
// actually-observed transfer corresponds to, for the VM dispatch loop to
// report back once it has resolved the concrete next segment for a
// block it just ran.
type SuccessorRole int

const (
	// RoleVariable is an indirect-branch landing site: recorded only in
	// the variable-successor table (addVariableSuccessor), feeding the
	// compiled block's block-lookup table rather than a chaining slot.
	RoleVariable SuccessorRole = iota
	RoleFallthrough
	RoleTaken
)

// LinkSuccessor records that h transferred control to next via role.
// Fallthrough/Taken additionally wire the specific chaining slot
// (setFallthroughSuccessor/setTakenSuccessor) so a later compile of
// either segment can patch a direct jump between them; all three roles
// feed the generic fixed/variable successor cache findNext relies on.
func (j *Jit) LinkSuccessor(h, next SegmentHandle, role SuccessorRole, targetAddr uint64) {
	switch role {
	case RoleFallthrough:
		j.addFixedSuccessor(h, next)
		j.setFallthroughSuccessor(h, next)
	case RoleTaken:
		j.addFixedSuccessor(h, next)
		j.setTakenSuccessor(h, next)
	default:
		j.addVariableSuccessor(h, next, targetAddr)
	}
}

// resetPatches forgets h's successor roles and any still-pending
// replaceable-jump offsets, used when a segment is invalidated
// (self-modifying code, spec.md §9) and must stop routing control into
// code that no longer reflects its bytes. In practice h's JitBasicBlock
// is already freed and nilled out by the time this runs (see
// Invalidate), so this is a no-op safety net rather than load-bearing.
func (j *Jit) resetPatches(h SegmentHandle) {
	seg := j.segment(h)
	seg.fallthroughSucc = noSegment
	seg.takenSucc = noSegment
	if seg.jitBlock == nil {
		return
	}
	seg.jitBlock.pendingFallthrough = prim.None[int]()
	seg.jitBlock.pendingTaken = prim.None[int]()
}
