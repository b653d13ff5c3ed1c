package jit

import "github.com/intuitionamiga/x64emulator/internal/prim"

// JitBasicBlock is one CodeSegment's compiled native code plus the
// runtime bookkeeping chaining needs, grounded on
// original_source/.../x64/compiler/jit.h's JitBasicBlock.
type JitBasicBlock struct {
	code MemoryBlock

	// entrypointSize is the byte offset guest execution resumes at —
	// past the block's JIT header — mirroring
	// NativeBasicBlock::entrypointSize.
	entrypointSize int

	// pendingFallthrough/pendingTaken are the byte offsets of the two
	// replaceable jump rel32 operands internal/codegen recorded, not yet
	// patched to point at a compiled successor. Cleared (one-shot) once
	// patched, per spec.md §4.6 ("patching is one-shot").
	pendingFallthrough prim.Optional[int]
	pendingTaken       prim.Optional[int]

	// lookupAddrs/lookupTargets/lookupHits back an indirect-branch
	// terminator's compact successor table, rebuilt from the owning
	// CodeSegment's variable-successor list by syncBlockLookupTable. Nothing
	// in this package calls syncBlockLookupTable or lookup, so the table
	// stays empty.
	lookupAddrs   []uint64
	lookupTargets []uintptr
	lookupHits    []uint64

	calls uint64
}

// EntryPoint returns the host address execution should jump to.
func (b *JitBasicBlock) EntryPoint() uintptr {
	return uintptr(hostAddr(b.code.Mem)) + uintptr(b.entrypointSize)
}

// needsPatching reports whether either replaceable jump is still
// unpatched.
func (b *JitBasicBlock) needsPatching() bool {
	_, hasFallthrough := b.pendingFallthrough.Get()
	_, hasTaken := b.pendingTaken.Get()
	return hasFallthrough || hasTaken
}

// patchFallthrough overwrites the fall-through jump's rel32 operand to
// target dest (an absolute host address), clearing the pending offset so
// the patch is never reapplied.
func (b *JitBasicBlock) patchFallthrough(dest uintptr) {
	if off, ok := b.pendingFallthrough.Get(); ok {
		patchRel32(b.code.Mem, off, dest)
		b.pendingFallthrough = prim.None[int]()
	}
}

// patchTaken overwrites the taken-branch jump's rel32 operand.
func (b *JitBasicBlock) patchTaken(dest uintptr) {
	if off, ok := b.pendingTaken.Get(); ok {
		patchRel32(b.code.Mem, off, dest)
		b.pendingTaken = prim.None[int]()
	}
}

// patchRel32 overwrites the 4 bytes at code[at:at+4] with the rel32
// displacement from the instruction immediately following the patch
// field (at+4, within code's own mapping) to dest.
func patchRel32(code []byte, at int, dest uintptr) {
	from := hostAddr(code) + uintptr(at) + 4
	disp := int32(int64(dest) - int64(from))
	code[at+0] = byte(disp)
	code[at+1] = byte(disp >> 8)
	code[at+2] = byte(disp >> 16)
	code[at+3] = byte(disp >> 24)
}

// syncBlockLookupTable rebuilds the indirect-dispatch table from the
// owning segment's variable-successor list, per
// JitBasicBlock::syncBlockLookupTable. Successors not yet compiled are
// skipped — they are filled in on a later sync once they are.
func (b *JitBasicBlock) syncBlockLookupTable(j *Jit, seg *CodeSegment) {
	b.lookupAddrs = b.lookupAddrs[:0]
	b.lookupTargets = b.lookupTargets[:0]
	b.lookupHits = b.lookupHits[:0]
	for i, h := range seg.varNext {
		target := j.segment(h)
		if target.jitBlock == nil {
			continue
		}
		b.lookupAddrs = append(b.lookupAddrs, seg.varNextStart[i])
		b.lookupTargets = append(b.lookupTargets, target.jitBlock.EntryPoint())
		b.lookupHits = append(b.lookupHits, seg.varNextCount[i])
	}
}

// lookup searches the block's compact indirect-successor table for
// address, returning its compiled entry point on a hit.
func (b *JitBasicBlock) lookup(address uint64) (uintptr, bool) {
	for i, addr := range b.lookupAddrs {
		if addr == address {
			return b.lookupTargets[i], true
		}
	}
	return 0, false
}
