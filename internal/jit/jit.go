package jit

import (
	"github.com/intuitionamiga/x64emulator/internal/codegen"
	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/ir"
	"github.com/intuitionamiga/x64emulator/internal/jitasm"
	"github.com/intuitionamiga/x64emulator/internal/prim"
)

// Jit is the compile-on-threshold runtime: it owns the CodeSegment arena
// (addressed by SegmentHandle, never a pointer, per spec.md §9), the
// executable-memory allocator, and the host trampoline, and decides when
// a segment is hot enough to compile. Grounded on
// original_source/.../x64/compiler/jit.h's Jit.
type Jit struct {
	allocator  ExecutableMemoryAllocator
	trampoline *trampoline

	segments []CodeSegment
	byAddr   map[uint64]SegmentHandle

	// jitChainingEnabled is a debugging master switch (spec.md §4.6): with
	// it false, compiled blocks always exit through the trampoline after
	// one block instead of jumping directly to a compiled successor.
	jitChainingEnabled bool

	// compilationThreshold seeds every new CodeSegment's callsForCompilation,
	// overridable by WithCompilationThreshold (spec.md §6's configuration
	// envelope item 2).
	compilationThreshold uint64
}

// Option configures a Jit at construction time.
type Option func(*Jit)

// WithCompilationThreshold overrides the default callsForCompilation_ seed
// (spec.md §4.6's "default value is an implementation constant e.g. 1024").
func WithCompilationThreshold(threshold uint64) Option {
	return func(j *Jit) { j.compilationThreshold = threshold }
}

// New builds a Jit with its trampoline already generated and allocated.
func New(opts ...Option) (*Jit, error) {
	j := &Jit{
		byAddr:               make(map[uint64]SegmentHandle),
		jitChainingEnabled:   true,
		compilationThreshold: defaultCompilationThreshold,
	}
	for _, opt := range opts {
		opt(j)
	}
	tr, err := buildTrampoline(&j.allocator)
	if err != nil {
		return nil, err
	}
	j.trampoline = tr
	return j, nil
}

func (j *Jit) segment(h SegmentHandle) *CodeSegment { return &j.segments[h] }

// SetChainingEnabled toggles block chaining, for debugging (spec.md
// §4.6's "jitChainingEnabled_" switch).
func (j *Jit) SetChainingEnabled(enabled bool) { j.jitChainingEnabled = enabled }

// Segment returns the handle for the segment starting at start, creating
// one from instructions (the disassembly cache's decoded basic block) if
// this is the first time this address has been seen.
func (j *Jit) Segment(start uint64, instructions []inst.Instruction) SegmentHandle {
	if h, ok := j.byAddr[start]; ok {
		return h
	}
	seg := newCodeSegment(start, instructions)
	seg.callsForCompilation = j.compilationThreshold
	j.segments = append(j.segments, *seg)
	h := SegmentHandle(len(j.segments) - 1)
	j.byAddr[start] = h
	return h
}

// RecordNativeCall increments h's compiled-block call counter. The VM
// loop calls this after a native execution so CodeSegment.Calls reflects
// both interpreted and compiled executions, per CodeSegment::calls().
func (j *Jit) RecordNativeCall(h SegmentHandle) {
	seg := j.segment(h)
	if seg.jitBlock != nil {
		seg.jitBlock.calls++
	}
}

// Lookup returns the handle already registered for address, if any.
func (j *Jit) Lookup(address uint64) (SegmentHandle, bool) {
	h, ok := j.byAddr[address]
	return h, ok
}

// CodeSegmentAt exposes a segment's bookkeeping to callers (the VM loop
// reads Calls()/JitBasicBlock() to decide how to execute it).
func (j *Jit) CodeSegmentAt(h SegmentHandle) *CodeSegment { return j.segment(h) }

// OnCall records one more interpreted execution of h, per spec.md §4.6's
// compilation policy: the budget halves on every below-threshold
// observation (fast-promoting hot blocks), and a single compile attempt
// is made — successful or not — once calls_ reaches it. Returns whether
// h now has compiled code ready to run.
func (j *Jit) OnCall(h SegmentHandle) bool {
	seg := j.segment(h)
	if seg.compilationAttempted {
		return seg.jitBlock != nil
	}
	seg.calls++
	if seg.calls >= seg.callsForCompilation {
		seg.compilationAttempted = true
		return j.tryCompile(h)
	}
	if seg.callsForCompilation > 1 {
		seg.callsForCompilation /= 2
	}
	return false
}

// tryCompile translates, optimizes, and generates native code for h's
// decoded instructions, installing the result as its JitBasicBlock.
// Failure at any stage (an unsupported instruction, an encoding
// internal/jitasm can't emit, an allocator error) is a normal, expected
// outcome — the segment simply stays interpreted, per spec.md's
// "failed attempts are not retried."
func (j *Jit) tryCompile(h SegmentHandle) bool {
	seg := j.segment(h)

	block, edges, ok := translate(seg.Instructions)
	if !ok {
		return false
	}
	ir.Optimize(block)

	nbb, ok := codegen.Generate(block)
	if !ok {
		return false
	}

	code := append([]byte(nil), nbb.Code...)

	fallthroughOff, hasFallthrough := nbb.JumpToNextOffset.Get()
	var fallthroughGlue exitGlue
	if hasFallthrough {
		target, _ := edges.next.Get()
		fallthroughGlue = appendExitGlue(&code, target)
	}

	takenOff, hasTaken := nbb.JumpToOtherOffset.Get()
	var takenGlue exitGlue
	if hasTaken {
		target, _ := edges.other.Get()
		takenGlue = appendExitGlue(&code, target)
	}

	mem, err := j.allocator.Allocate(uint32(len(code)))
	if err != nil {
		return false
	}
	copy(mem.Mem, code)

	jb := &JitBasicBlock{code: mem, entrypointSize: nbb.EntrypointSize}
	if hasFallthrough {
		jb.pendingFallthrough = prim.Some(fallthroughOff)
		patchRel32(mem.Mem, fallthroughOff, hostAddr(mem.Mem)+uintptr(fallthroughGlue.start))
		patchRel32(mem.Mem, fallthroughGlue.callAt, j.trampoline.exitStub)
		patchRel32(mem.Mem, fallthroughGlue.jmpAt, j.trampoline.finish)
	}
	if hasTaken {
		jb.pendingTaken = prim.Some(takenOff)
		patchRel32(mem.Mem, takenOff, hostAddr(mem.Mem)+uintptr(takenGlue.start))
		patchRel32(mem.Mem, takenGlue.callAt, j.trampoline.exitStub)
		patchRel32(mem.Mem, takenGlue.jmpAt, j.trampoline.finish)
	}

	seg.jitBlock = jb
	j.tryChainToPredecessors(h)
	j.tryChainFromSuccessors(h)
	return true
}

// exitGlue locates one per-edge exit sequence appended to a compiled
// block's own code buffer: CALL the trampoline's shared spill stub (no
// free register needed — every guest register is still live at this
// point, but a direct CALL rel32 needs none), then, with registers now
// safely spilled and free to scratch with, store this edge's literal
// guest resume address into NativeArguments.NextRIP and JMP to the
// trampoline's shared finish tail.
type exitGlue struct {
	start  int // offset of the glue's first byte (the block's own placeholder jump targets this)
	callAt int // offset of the CALL's rel32 field, patched to exitStub
	jmpAt  int // offset of the JMP's rel32 field, patched to finish
}

// appendExitGlue encodes one exitGlue for a resume address known at
// compile time and appends its bytes to *code, returning the offsets the
// caller patches once the surrounding block has its final executable
// address.
func appendExitGlue(code *[]byte, target uint64) exitGlue {
	start := len(*code)
	a := jitasm.New()
	callAt := a.CallPlaceholder()
	a.MovRI64(jitasm.RAX, target)
	a.MovMR64(jitasm.Mem{Base: jitasm.R15, Disp: nextRIPOffset}, jitasm.RAX)
	jmpAt := a.JmpPlaceholder()
	glue := a.Code()
	*code = append(*code, glue...)
	return exitGlue{start: start, callAt: start + callAt, jmpAt: start + jmpAt}
}

// Invalidate discards h's compiled code and unlinks it from the segment
// graph, for self-modifying-code handling (spec.md §9): a later call to
// Segment/OnCall for the same address starts fresh, recompiling against
// whatever instructions are decoded next time.
func (j *Jit) Invalidate(h SegmentHandle) {
	seg := j.segment(h)
	if seg.jitBlock != nil {
		j.allocator.Free(seg.jitBlock.code)
	}
	seg.jitBlock = nil
	seg.compilationAttempted = false
	seg.calls = 0
	seg.callsForCompilation = j.compilationThreshold
	j.removeFromCaches(h)
	j.resetPatches(h)
	delete(j.byAddr, seg.StartAddr)
}

// Exec jumps into h's compiled code, blocking until guest execution
// reaches an edge this JIT subset doesn't compile through (a RET, a
// call, a syscall, or an unpatched/uncompiled successor — see
// translate.go's scope notes) and exits back out via its per-block exit
// glue. On return, args.GPRs holds the spilled guest registers and
// args.NextRIP the guest address to resume at.
func (j *Jit) Exec(h SegmentHandle, args *NativeArguments) {
	seg := j.segment(h)
	callNative(j.trampoline.entry, args, seg.jitBlock.EntryPoint())
}
