// Package jit is the compile-on-threshold JIT runtime: CodeSegment
// bookkeeping over a basic block's successors/predecessors, the
// executable-memory allocator, block chaining, and the host trampoline
// that marshals guest state into host registers on entry to native code.
//
// Grounded on original_source/emulator/include/x64/codesegment.h,
// .../x64/compiler/jit.h, and
// .../src/emulator/executablememoryallocator.cpp.
package jit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// rangeSize is the size of one host virtual-memory reservation (spec.md
// §4.6/§9: "a pool of page-multiple ranges, each a fixed size, default
// 2 MiB").
const rangeSize = 2 * 1024 * 1024

// chunkSize is the allocator's bump-allocation granularity within a
// range.
const chunkSize = 64

const chunksPerRange = rangeSize / chunkSize

// MemoryBlock is a (pointer, size) pair into one MemRange's backing
// mmap, grounded on emulator::MemoryBlock.
type MemoryBlock struct {
	Mem  []byte
	Size uint32
}

// memRange is one 2 MiB RWX host reservation, bump-allocated in
// chunkSize-aligned pieces, per spec.md's executable-memory-allocator
// description.
type memRange struct {
	backing        []byte
	firstAvailable int // in chunks
}

func newMemRange() (*memRange, error) {
	mem, err := unix.Mmap(-1, 0, rangeSize, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap executable range: %w", err)
	}
	return &memRange{backing: mem}, nil
}

func (r *memRange) tryAllocate(requestedSize uint32) (MemoryBlock, bool) {
	sizeInChunks := (int(requestedSize) + chunkSize - 1) / chunkSize
	if r.firstAvailable+sizeInChunks > chunksPerRange {
		return MemoryBlock{}, false
	}
	start := r.firstAvailable * chunkSize
	size := sizeInChunks * chunkSize
	r.firstAvailable += sizeInChunks
	return MemoryBlock{Mem: r.backing[start : start+size : start+size], Size: uint32(size)}, true
}

// ExecutableMemoryAllocator hands out RWX memory blocks for compiled
// code, recycling freed blocks within a 1.3x size window before falling
// back to bump-allocating a range and, failing that, mapping a new one.
// Grounded on ExecutableMemoryAllocator::allocate/free.
type ExecutableMemoryAllocator struct {
	freeBlocks []MemoryBlock
	ranges     []*memRange
}

// Allocate returns a block of at least requestedSize bytes of RWX
// memory, or an error if a new host reservation could not be mapped.
func (a *ExecutableMemoryAllocator) Allocate(requestedSize uint32) (MemoryBlock, error) {
	for i, block := range a.freeBlocks {
		if block.Size >= requestedSize && float64(block.Size) <= 1.3*float64(requestedSize) {
			a.freeBlocks = append(a.freeBlocks[:i], a.freeBlocks[i+1:]...)
			return block, nil
		}
	}

	for _, r := range a.ranges {
		if block, ok := r.tryAllocate(requestedSize); ok {
			return block, nil
		}
	}

	r, err := newMemRange()
	if err != nil {
		return MemoryBlock{}, err
	}
	a.ranges = append(a.ranges, r)
	block, ok := r.tryAllocate(requestedSize)
	if !ok {
		return MemoryBlock{}, fmt.Errorf("jit: requested block %d exceeds range size %d", requestedSize, rangeSize)
	}
	return block, nil
}

// Free returns block to the recycling free list. Ranges are never
// unmapped before the allocator itself is discarded, per spec.md.
func (a *ExecutableMemoryAllocator) Free(block MemoryBlock) {
	if block.Mem != nil && block.Size > 0 {
		a.freeBlocks = append(a.freeBlocks, block)
	}
}
