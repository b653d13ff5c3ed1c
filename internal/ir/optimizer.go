package ir

// Stats counts how many instructions each optimizer pass removed, for
// telemetry and tests, mirroring spec.md §6's JIT telemetry intent.
type Stats struct {
	DeadCodeEliminated       int
	ImmediateReadBackRemoved int
	DelayedReadBackRemoved   int
	DuplicatesRemoved        int
}

// Optimize runs the four passes of spec.md §4.5.2 to a fixed point: dead
// code elimination, immediate and delayed read-back elimination, and
// duplicate instruction elimination, looping until no pass modifies the
// IR. Grounded on original_source/emulator/include/x64/compiler/optimizer.h
// and .../optimizer.cpp.
func Optimize(block *IR) Stats {
	var total Stats
	for {
		changed := false

		if n := deadCodeElimination(block); n > 0 {
			total.DeadCodeEliminated += n
			changed = true
		}
		if n := immediateReadBackElimination(block); n > 0 {
			total.ImmediateReadBackRemoved += n
			changed = true
		}
		if n := delayedReadBackElimination(block); n > 0 {
			total.DelayedReadBackRemoved += n
			changed = true
		}
		if n := duplicateInstructionElimination(block); n > 0 {
			total.DuplicatesRemoved += n
			changed = true
		}

		if !changed {
			return total
		}
	}
}

// deadCodeElimination removes instructions whose Out write is never read
// downstream and which carries no live flag side effect, iterating to a
// fixed point within the pass itself (a later removal can make an earlier
// instruction dead too).
func deadCodeElimination(block *IR) int {
	removedTotal := 0
	for {
		removed := map[int]bool{}
		liveFlags := true // conservatively assume the block's final flags state may be observed
		liveRegs := map[Reg]bool{}

		for i := len(block.Instructions) - 1; i >= 0; i-- {
			in := block.Instructions[i]

			outReg, hasOutReg := in.Out.Reg()
			writesDeadRegOnly := hasOutReg && !liveRegs[outReg] && !in.MayWriteToMemory()
			flagsDead := in.CanModifyFlags() && !liveFlags
			isPureWrite := hasOutReg && !in.MayWriteToMemory() && !hasSideEffectBeyondOutAndFlags(in.Op)

			if isPureWrite && writesDeadRegOnly && (!in.CanModifyFlags() || flagsDead) {
				removed[i] = true
				continue
			}

			// This instruction survives: its reads make their sources live,
			// and if it writes a register that was live, that liveness is
			// now satisfied (the register becomes dead above this point)
			// unless the op also reads its own Out (RMW).
			if hasOutReg && !isReadModifyWrite(in.Op) {
				delete(liveRegs, outReg)
			}
			markReads(in, liveRegs)
			if in.CanModifyFlags() {
				liveFlags = instructionReadsFlags(in) && liveFlags
			}
			if instructionReadsFlags(in) {
				liveFlags = true
			}
		}

		if len(removed) == 0 {
			return removedTotal
		}
		positions := sortedKeys(removed)
		block.RemoveInstructions(positions)
		removedTotal += len(positions)
	}
}

// hasSideEffectBeyondOutAndFlags marks ops whose execution matters even
// when their nominal Out register is dead (string ops, stack ops,
// division with two implicit outputs, and the like).
func hasSideEffectBeyondOutAndFlags(op Op) bool {
	switch op {
	case OpPush, OpPop, OpPushf, OpPopf, OpRepStos32, OpRepStos64,
		OpDiv, OpIdiv, OpMul, OpImul, OpCwde, OpCdqe, OpCdq, OpCqo,
		OpRet, OpJmp, OpJmpInd, OpJcc:
		return true
	}
	return false
}

func markReads(in Instruction, live map[Reg]bool) {
	if r, ok := in.In1.Reg(); ok {
		live[r] = true
	}
	if r, ok := in.In2.Reg(); ok {
		live[r] = true
	}
	if isReadModifyWrite(in.Op) {
		if r, ok := in.Out.Reg(); ok {
			live[r] = true
		}
	}
	if m, ok := in.In1.Mem(); ok {
		live[m.Base], live[m.Index] = true, true
	}
	if m, ok := in.In2.Mem(); ok {
		live[m.Base], live[m.Index] = true, true
	}
	if m, ok := in.Out.Mem(); ok {
		live[m.Base], live[m.Index] = true, true
	}
	for _, r := range in.ImpactedRegisters {
		live[r] = true
	}
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// immediateReadBackElimination replaces `mov t, r; mov r2, t` (reading
// back a value into another location the very next instruction) with
// `mov r2, r` directly, when nothing about t's write could be observed
// otherwise (t is not memory and is dead after the read-back).
func immediateReadBackElimination(block *IR) int {
	removed := map[int]bool{}
	for i := 0; i+1 < len(block.Instructions); i++ {
		writer := block.Instructions[i]
		reader := block.Instructions[i+1]
		if writer.Op != OpMov || reader.Op != OpMov {
			continue
		}
		writtenReg, ok := writer.Out.Reg()
		if !ok {
			continue
		}
		readSrcReg, ok := reader.In1.Reg()
		if !ok || readSrcReg != writtenReg {
			continue
		}
		if usedLaterThan(block, i+1, writtenReg) {
			continue // t is still needed past the read-back, keep both
		}
		block.Instructions[i+1] = NewInstruction(OpMov, reader.Out, writer.In1)
		removed[i] = true
	}
	if len(removed) == 0 {
		return 0
	}
	positions := sortedKeys(removed)
	block.RemoveInstructions(positions)
	return len(positions)
}

func usedLaterThan(block *IR, afterIndex int, r Reg) bool {
	for i := afterIndex + 1; i < len(block.Instructions); i++ {
		if block.Instructions[i].ReadsFrom(r) {
			return true
		}
	}
	return false
}

// delayedReadBackElimination extends immediate read-back elimination
// across intervening instructions that provably commute with the writer,
// per spec.md §4.5.2's canCommute check.
func delayedReadBackElimination(block *IR) int {
	removedCount := 0
	for i := 0; i < len(block.Instructions); i++ {
		writer := block.Instructions[i]
		writtenReg, ok := writer.Out.Reg()
		if !ok || writer.Op != OpMov {
			continue
		}

		j := i + 1
		for ; j < len(block.Instructions); j++ {
			if block.Instructions[j].ReadsFrom(writtenReg) || block.Instructions[j].WritesTo(writtenReg) {
				break
			}
			if !CanCommute(writer, block.Instructions[j]) {
				j = len(block.Instructions) // give up: an intervening instruction blocks reordering
				break
			}
		}
		if j >= len(block.Instructions) {
			continue
		}
		reader := block.Instructions[j]
		readSrcReg, ok := reader.In1.Reg()
		if reader.Op != OpMov || !ok || readSrcReg != writtenReg {
			continue
		}
		if usedLaterThan(block, j, writtenReg) {
			continue
		}
		block.Instructions[j] = NewInstruction(OpMov, reader.Out, writer.In1)
		removedCount++
		block.RemoveInstructions([]int{i})
		i-- // positions shifted; re-examine from the same index
	}
	return removedCount
}

// duplicateInstructionElimination drops a later instruction identical to
// an earlier one (same op, same operands) when nothing between them could
// have invalidated the earlier result.
func duplicateInstructionElimination(block *IR) int {
	removed := map[int]bool{}
	for i := 0; i < len(block.Instructions); i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(block.Instructions); j++ {
			if removed[j] {
				continue
			}
			// Check equality before invalidation: a genuine duplicate
			// shares i's Out location, which would otherwise always read
			// as "j invalidates i" and block the match before it's found.
			// A removed duplicate never executes, so it can't invalidate
			// i for instructions further down either.
			if sameInstruction(block.Instructions[i], block.Instructions[j]) {
				removed[j] = true
				continue
			}
			if invalidates(block.Instructions[j], block.Instructions[i]) {
				break
			}
		}
	}
	if len(removed) == 0 {
		return 0
	}
	positions := sortedKeys(removed)
	block.RemoveInstructions(positions)
	return len(positions)
}

func sameInstruction(a, b Instruction) bool {
	return a.Op == b.Op && a.Out == b.Out && a.In1 == b.In1 && a.In2 == b.In2
}

// invalidates reports whether executing `between` could change the
// result `earlier` would produce if re-executed (writes to any operand
// earlier reads from, or either touches memory).
func invalidates(between, earlier Instruction) bool {
	if between.MayWriteToMemory() || earlier.MayWriteToMemory() {
		return true
	}
	if r, ok := earlier.In1.Reg(); ok && between.WritesTo(r) {
		return true
	}
	if r, ok := earlier.In2.Reg(); ok && between.WritesTo(r) {
		return true
	}
	if r, ok := earlier.Out.Reg(); ok && between.WritesTo(r) {
		return true
	}
	return false
}
