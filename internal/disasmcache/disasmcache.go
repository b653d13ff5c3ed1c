// Package disasmcache implements the disassembly cache of spec.md §4.3:
// given a guest address, return the basic block of typed instructions
// starting there, decoding fresh bytes on miss and invalidating sections on
// MMU unmap/protection-change events.
//
// Grounded on
// original_source/emulator/include/x64/disassembler/disassemblycache.h.
package disasmcache

import (
	"sort"
	"sync"

	"github.com/intuitionamiga/x64emulator/internal/inst"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/verify"
)

// BytecodeRetriever fetches bytes for a guest address when the cache
// misses, per spec.md §6. Returning false means "no bytes available".
type BytecodeRetriever interface {
	RetrieveBytecode(address, size uint64) (data []byte, name string, regionBase uint64, ok bool)
}

// Callback is notified when a fresh section is decoded, for symbolization
// hand-off (a supplemental feature, see SPEC_FULL.md §7).
type Callback interface {
	OnNewDisassembly(filename string, base uint64)
}

// ExecutableSection owns a dense, sorted run of decoded instructions
// covering [Begin, End). Grounded on the original's ExecutableSection.
type ExecutableSection struct {
	Begin, End   uint64
	Instructions []inst.Instruction
	Filename     string
}

func (s *ExecutableSection) intersects(base, length uint64) bool {
	end := base + length
	return s.Begin < end && base < s.End
}

// trim drops instructions outside the section's current [Begin,End) and
// tightens the bounds to the first/last kept instruction, per spec.md §4.3.
func (s *ExecutableSection) trim() {
	kept := s.Instructions[:0]
	for _, ins := range s.Instructions {
		if ins.Addr >= s.Begin && ins.NextAddr() <= s.End {
			kept = append(kept, ins)
		}
	}
	s.Instructions = kept
	if len(kept) == 0 {
		s.Begin, s.End = s.End, s.End
		return
	}
	s.Begin = kept[0].Addr
	s.End = kept[len(kept)-1].NextAddr()
}

// DisassemblyCache is a list of non-overlapping ExecutableSections indexed
// by begin and end, implementing mmu.Callback to react to unmap/protection
// changes.
type DisassemblyCache struct {
	sections []*ExecutableSection // sorted by Begin
	callbacks []Callback

	windowSize uint64

	// mu guards sections/callbacks when withMutex is set. Grounded on
	// the MULTIPROCESSING compile-time flag the original gates its own
	// cache locking behind; Go has no build-time macro toggle the
	// teacher uses for this kind of switch, so it becomes a runtime
	// constructor option instead, in the style of debug_monitor.go's
	// NewDebugX86(...) constructor options.
	withMutex bool
	mu        sync.Mutex
}

// Option configures a DisassemblyCache at construction time.
type Option func(*DisassemblyCache)

// WithMutex enables internal locking around section lookup/insertion and
// callback dispatch, for callers driving multiple guest threads against
// one shared cache. Single-threaded callers should leave it false and
// pay no locking cost.
func WithMutex(enabled bool) Option {
	return func(c *DisassemblyCache) { c.withMutex = enabled }
}

// New creates an empty cache. windowSize is how many bytes are requested
// from the retriever on a miss (a large-enough window to decode a full
// basic block without re-querying for common cases).
func New(windowSize uint64, opts ...Option) *DisassemblyCache {
	if windowSize == 0 {
		windowSize = 4096
	}
	c := &DisassemblyCache{windowSize: windowSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DisassemblyCache) lock() {
	if c.withMutex {
		c.mu.Lock()
	}
}

func (c *DisassemblyCache) unlock() {
	if c.withMutex {
		c.mu.Unlock()
	}
}

func (c *DisassemblyCache) AddCallback(cb Callback) {
	c.lock()
	defer c.unlock()
	c.callbacks = append(c.callbacks, cb)
}

// GetBasicBlock returns the sequence of instructions starting at address
// up to and including the first control-transfer instruction.
func (c *DisassemblyCache) GetBasicBlock(address uint64, retriever BytecodeRetriever) []inst.Instruction {
	c.lock()
	defer c.unlock()

	section, index := c.findInstructionPosition(address, retriever)
	verify.That(section != nil, "disasmcache: no section found for %#x", address)

	var block []inst.Instruction
	expected := address
	for i := index; i < len(section.Instructions); i++ {
		ins := section.Instructions[i]
		if ins.Addr != expected {
			// a gap means the statically decoded stream resynchronized at a
			// different alignment; treat it as end of block per spec.md §4.3.
			break
		}
		block = append(block, ins)
		if ins.IsControlTransfer() {
			break
		}
		expected = ins.NextAddr()
	}
	return block
}

func (c *DisassemblyCache) findInstructionPosition(address uint64, retriever BytecodeRetriever) (*ExecutableSection, int) {
	if section := c.findSectionContaining(address); section != nil {
		if idx, ok := indexOfAddress(section, address); ok {
			return section, idx
		}
		return section, len(section.Instructions)
	}

	data, name, regionBase, ok := retriever.RetrieveBytecode(address, c.windowSize)
	verify.That(ok, "disasmcache: retriever has no bytes for %#x", address)

	section := c.decodeSection(data, name, regionBase)
	c.insertSection(section)
	for _, cb := range c.callbacks {
		cb.OnNewDisassembly(name, regionBase)
	}

	idx, ok := indexOfAddress(section, address)
	verify.That(ok, "disasmcache: freshly decoded section missing address %#x", address)
	return section, idx
}

func (c *DisassemblyCache) decodeSection(data []byte, name string, base uint64) *ExecutableSection {
	section := &ExecutableSection{Begin: base, End: base + uint64(len(data)), Filename: name}
	offset := 0
	for offset < len(data) {
		decoded, err := inst.Decode(base+uint64(offset), data[offset:])
		if err != nil {
			break
		}
		section.Instructions = append(section.Instructions, decoded)
		offset += decoded.Len
	}
	if len(section.Instructions) > 0 {
		section.End = section.Instructions[len(section.Instructions)-1].NextAddr()
	}
	return section
}

func indexOfAddress(section *ExecutableSection, address uint64) (int, bool) {
	idx := sort.Search(len(section.Instructions), func(i int) bool {
		return section.Instructions[i].Addr >= address
	})
	if idx < len(section.Instructions) && section.Instructions[idx].Addr == address {
		return idx, true
	}
	return 0, false
}

func (c *DisassemblyCache) findSectionContaining(address uint64) *ExecutableSection {
	pos := sort.Search(len(c.sections), func(i int) bool { return c.sections[i].End > address })
	if pos < len(c.sections) && c.sections[pos].Begin <= address && address < c.sections[pos].End {
		return c.sections[pos]
	}
	return nil
}

func (c *DisassemblyCache) insertSection(section *ExecutableSection) {
	pos := sort.Search(len(c.sections), func(i int) bool { return c.sections[i].Begin >= section.Begin })
	c.sections = append(c.sections, nil)
	copy(c.sections[pos+1:], c.sections[pos:])
	c.sections[pos] = section
}

// OnRegionCreation is a no-op: a newly created region has nothing to
// invalidate yet.
func (c *DisassemblyCache) OnRegionCreation(base, length uint64, prot mmu.PROT) {}

// OnRegionProtectionChange removes every section intersecting
// [base, base+length) when that range lost EXEC, and ignores protection changes that keep or grant
// EXEC, per spec.md §4.3.
func (c *DisassemblyCache) OnRegionProtectionChange(base, length uint64, before, after mmu.PROT) {
	if after.Test(mmu.ProtExec) {
		return
	}
	if !before.Test(mmu.ProtExec) {
		return
	}
	c.lock()
	defer c.unlock()
	c.removeIntersecting(base, length)
}

// OnRegionDestruction removes any section intersecting the destroyed
// region entirely: once the backing pages are gone there is nothing left
// to trim to.
func (c *DisassemblyCache) OnRegionDestruction(base, length uint64, prot mmu.PROT) {
	c.lock()
	defer c.unlock()
	c.removeIntersecting(base, length)
}

// shrinkOrRemoveIntersecting trims sections down to the part of their
// range still outside [base, base+length); a section wholly covered is
// dropped, and a section split into two live remainders is rare enough in
// practice that it is collapsed onto its larger remaining side rather than
// modeled as two sections.
func (c *DisassemblyCache) shrinkOrRemoveIntersecting(base, length uint64) {
	end := base + length
	var kept []*ExecutableSection
	for _, s := range c.sections {
		if !s.intersects(base, length) {
			kept = append(kept, s)
			continue
		}
		if base <= s.Begin && end >= s.End {
			continue // wholly covered by the protection change
		}
		if end <= s.Begin || base >= s.End {
			kept = append(kept, s)
			continue
		}
		if base <= s.Begin {
			s.Begin = end
		} else {
			s.End = base
		}
		s.trim()
		if len(s.Instructions) > 0 {
			kept = append(kept, s)
		}
	}
	c.sections = kept
}

func (c *DisassemblyCache) removeIntersecting(base, length uint64) {
	var kept []*ExecutableSection
	for _, s := range c.sections {
		if s.intersects(base, length) {
			continue
		}
		kept = append(kept, s)
	}
	c.sections = kept
}

// TryFindContainingFile returns the filename hint of the section
// containing address, if any — a supplemental feature grounded on the
// original's tryFindContainingFile.
func (c *DisassemblyCache) TryFindContainingFile(address uint64) (string, bool) {
	c.lock()
	defer c.unlock()
	if s := c.findSectionContaining(address); s != nil {
		return s.Filename, true
	}
	return "", false
}

// MmuBytecodeRetriever satisfies BytecodeRetriever by reading straight from
// an Mmu, used when no loader-level retriever is supplied.
type MmuBytecodeRetriever struct {
	Mmu *mmu.Mmu
}

func (r *MmuBytecodeRetriever) RetrieveBytecode(address, size uint64) ([]byte, string, uint64, bool) {
	region := r.Mmu.FindAddress(address)
	if region == nil || !region.Prot().Test(mmu.ProtExec) {
		return nil, "", 0, false
	}
	end := region.End()
	if address+size > end {
		size = end - address
	}
	data := make([]byte, size)
	for i := uint64(0); i < size; i++ {
		data[i] = r.Mmu.Read8(address + i)
	}
	return data, region.Name(), region.Base(), true
}
