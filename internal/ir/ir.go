package ir

import "github.com/intuitionamiga/x64emulator/internal/prim"

// IR is one compiled block's linear instruction stream plus label table
// and chaining offsets, per original_source's struct IR and spec.md
// §4.5.1 ("The block records: offset of the JIT header end, offset of
// the fall-through jump, offset of the taken-branch jump").
type IR struct {
	Instructions []Instruction
	Labels       []int

	JitHeaderSize prim.Optional[int]
	JumpToNext    prim.Optional[int]
	JumpToOther   prim.Optional[int]
}

// NewLabel reserves a new label bound to position (an index into
// Instructions) and returns its index.
func (b *IR) NewLabel(position int) LabelIndex {
	b.Labels = append(b.Labels, position)
	return LabelIndex{Index: uint32(len(b.Labels) - 1)}
}

// Add appends other's instructions and labels to b, rebasing other's
// label indexes past b's existing ones, mirroring the original's
// IR::add(const IR&).
func (b *IR) Add(other IR) {
	offset := uint32(len(b.Labels))
	base := len(b.Instructions)
	for _, in := range other.Instructions {
		b.Instructions = append(b.Instructions, rebaseLabels(in, offset, base))
	}
	for _, p := range other.Labels {
		if p >= 0 {
			p += base
		}
		b.Labels = append(b.Labels, p)
	}
}

func rebaseLabels(in Instruction, labelOffset uint32, positionOffset int) Instruction {
	rebase := func(o Operand) Operand {
		if l, ok := o.Label(); ok {
			return Label(LabelIndex{Index: l.Index + labelOffset})
		}
		return o
	}
	in.Out = rebase(in.Out)
	in.In1 = rebase(in.In1)
	in.In2 = rebase(in.In2)
	return in
}

// RemoveInstructions deletes the instructions at the given positions
// (assumed sorted ascending, as the original's removeInstructions
// requires of its std::vector<size_t>&), shifting Labels that pointed
// past a removed position down to track the shift.
func (b *IR) RemoveInstructions(positions []int) {
	if len(positions) == 0 {
		return
	}
	removed := make(map[int]bool, len(positions))
	for _, p := range positions {
		removed[p] = true
	}

	kept := make([]Instruction, 0, len(b.Instructions)-len(positions))
	shiftAt := make([]int, len(b.Instructions)+1) // shiftAt[i] = how many removed positions are < i
	shift := 0
	for i, in := range b.Instructions {
		shiftAt[i] = shift
		if removed[i] {
			shift++
			continue
		}
		kept = append(kept, in)
	}
	shiftAt[len(b.Instructions)] = shift

	for i, label := range b.Labels {
		b.Labels[i] = label - shiftAt[label]
	}
	b.Instructions = kept
}

// ForEachLive visits every instruction index not present in removed, in
// order — a helper shared by the optimizer passes before they commit a
// batch of removals via RemoveInstructions.
func (b *IR) ForEachLive(removed map[int]bool, visit func(index int, in Instruction)) {
	for i, in := range b.Instructions {
		if removed[i] {
			continue
		}
		visit(i, in)
	}
}
