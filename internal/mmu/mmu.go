// Package mmu implements the guest virtual address space described in
// spec.md §4.2: typed reads/writes, atomic region-locked read-modify-write,
// page-aligned mmap/munmap/mprotect, brk, and a host-pointer view the JIT
// can address directly.
//
// Grounded on original_source/emulator/include/x64/mmu.h and the
// mmap/mprotect host calls in host/hostmemory.cpp.
package mmu

import (
	"fmt"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/intuitionamiga/x64emulator/internal/prim"
	"github.com/intuitionamiga/x64emulator/internal/verify"
)

const PageSize = 0x1000

// PROT mirrors original x64::PROT.
type PROT = prim.BitFlags[ProtBit]

type ProtBit uint32

const (
	ProtNone  ProtBit = 0
	ProtRead  ProtBit = 1 << 0
	ProtWrite ProtBit = 1 << 1
	ProtExec  ProtBit = 1 << 2
)

// MapFlags mirrors original x64::MAP.
type MapFlags = prim.BitFlags[MapBit]

type MapBit uint32

const (
	MapAnonymous MapBit = 1 << 1
	MapFixed     MapBit = 1 << 2
	MapPrivate   MapBit = 1 << 3
	MapShared    MapBit = 1 << 4
)

// Callback is notified of mmap/mprotect/munmap-like events, per spec.md §6.
// The disassembly cache is the primary subscriber.
type Callback interface {
	OnRegionCreation(base, length uint64, prot PROT)
	OnRegionProtectionChange(base, length uint64, before, after PROT)
	OnRegionDestruction(base, length uint64, prot PROT)
}

// MunmapCallback is a narrower observer notified only of unmaps, kept
// distinct per spec.md §6 ("onMunmap(base, length)").
type MunmapCallback interface {
	OnMunmap(base, length uint64)
}

// Region is one disjoint span of guest virtual memory. Grounded on
// Mmu::Region in mmu.h.
type Region struct {
	base                   uint64
	size                   uint64
	prot                   PROT
	name                   string
	requiresMemsetToZero   bool
	lock                   prim.Spinlock
	activated              bool
}

func (r *Region) Base() uint64   { return r.base }
func (r *Region) Size() uint64   { return r.size }
func (r *Region) End() uint64    { return r.base + r.size }
func (r *Region) Prot() PROT     { return r.prot }
func (r *Region) Name() string   { return r.name }
func (r *Region) Lock() *prim.Spinlock { return &r.lock }

func (r *Region) Contains(address uint64) bool {
	return address >= r.base && address < r.End()
}

func (r *Region) IntersectsRange(base, end uint64) bool {
	return r.base < end && base < r.End()
}

func (r *Region) RequiresMemsetToZero() bool { return r.requiresMemsetToZero }
func (r *Region) DidMemsetToZero()           { r.requiresMemsetToZero = false }

// Mmu owns the guest address space. Every guest byte corresponds to an
// offset inside one up-front host reservation (the "host-pointer view"
// spec.md §4.2 requires for the JIT).
type Mmu struct {
	reservation *prim.VirtualMemoryRange
	reservedTop uint64

	regions      []*Region // sorted by base, non-overlapping
	regionLookup []*Region // page index -> owning region, below firstUnlookupable
	firstUnlookupable uint64

	callbacks       []Callback
	munmapCallbacks []MunmapCallback

	heapTop uint64 // brk top, 0 until first brk call establishes a heap region
}

// New reserves reservationSize bytes of host address space (spec.md §6
// default 64 GiB) to back the guest's flat virtual memory.
func New(reservationSize uint64) (*Mmu, error) {
	rng, err := prim.NewVirtualMemoryRange(reservationSize)
	if err != nil {
		return nil, err
	}
	return &Mmu{
		reservation: rng,
		reservedTop: reservationSize,
	}, nil
}

func pageRoundDown(address uint64) uint64 { return address &^ (PageSize - 1) }
func pageRoundUp(address uint64) uint64   { return (address + PageSize - 1) &^ (PageSize - 1) }
func isPageAligned(address uint64) bool   { return address%PageSize == 0 }

func (m *Mmu) AddCallback(cb Callback)             { m.callbacks = append(m.callbacks, cb) }
func (m *Mmu) AddMunmapCallback(cb MunmapCallback) { m.munmapCallbacks = append(m.munmapCallbacks, cb) }

func (m *Mmu) RemoveCallback(cb Callback) {
	for i, c := range m.callbacks {
		if c == cb {
			m.callbacks = append(m.callbacks[:i], m.callbacks[i+1:]...)
			return
		}
	}
}

// Mmap maps length bytes of anonymous memory at addr (or a first-fit
// address if MapFixed is absent), per spec.md §4.2.
func (m *Mmu) Mmap(addr, length uint64, prot PROT, flags MapFlags) uint64 {
	fixed := flags.Test(MapFixed)
	verify.That(isPageAligned(addr) || !fixed, "mmap: unaligned fixed address %#x", addr)

	length = pageRoundUp(length)
	var base uint64
	if fixed {
		base = pageRoundDown(addr)
		verify.That(base+length <= m.reservedTop, "mmap: fixed mapping exceeds reservation")
		m.removeRangeNoCallback(base, base+length)
	} else {
		base = m.firstFitPageAligned(length)
	}
	err := unix.Mprotect(m.reservation.Base()[base:base+length], unix.PROT_READ|unix.PROT_WRITE)
	verify.That(err == nil, "mmap: host mprotect of %#x failed: %v", base, err)

	region := &Region{base: base, size: length, prot: prot}
	if flags.Test(MapAnonymous) {
		region.requiresMemsetToZero = true
	}
	m.addRegion(region)
	region.activated = true
	m.fillRegionLookup(region)

	for _, cb := range m.callbacks {
		cb.OnRegionCreation(base, length, prot)
	}
	return base
}

func (m *Mmu) firstFitPageAligned(length uint64) uint64 {
	const floor = uint64(PageSize)
	candidate := floor
	for _, r := range m.regions {
		if candidate+length <= r.base {
			return candidate
		}
		if r.End() > candidate {
			candidate = pageRoundUp(r.End())
		}
	}
	verify.That(candidate+length <= m.reservedTop, "mmap: out of guest address space")
	return candidate
}

// addRegion inserts a region keeping m.regions sorted by base and
// non-overlapping, per spec.md §3's MMU invariant.
func (m *Mmu) addRegion(region *Region) {
	pos := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].base >= region.base })
	if pos < len(m.regions) {
		verify.That(region.End() <= m.regions[pos].base, "mmap: overlapping region without FIXED")
	}
	m.regions = append(m.regions, nil)
	copy(m.regions[pos+1:], m.regions[pos:])
	m.regions[pos] = region
}

// Munmap removes all regions wholly or partially within [addr,addr+len),
// splitting at the boundaries. Callbacks fire after the region is no
// longer observable to readers, per spec.md §4.2.
func (m *Mmu) Munmap(addr, length uint64) {
	verify.That(isPageAligned(addr), "munmap: unaligned address %#x", addr)
	length = pageRoundUp(length)
	end := addr + length

	removed := m.removeRangeNoCallback(addr, end)
	for _, r := range removed {
		for _, cb := range m.callbacks {
			cb.OnRegionDestruction(r.base, r.size, r.prot)
		}
		for _, cb := range m.munmapCallbacks {
			cb.OnMunmap(r.base, r.size)
		}
	}
}

// removeRangeNoCallback splits boundary regions and removes everything
// intersecting [start,end), returning the removed regions. No callbacks
// fire here so Mmap(FIXED) can reuse it silently before re-creating.
func (m *Mmu) removeRangeNoCallback(start, end uint64) []*Region {
	m.splitRegionsAt(start)
	m.splitRegionsAt(end)

	var removed []*Region
	var kept []*Region
	for _, r := range m.regions {
		if r.base >= start && r.End() <= end {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	m.regions = kept
	if len(removed) > 0 {
		m.invalidateRegionLookup()
	}
	return removed
}

func (m *Mmu) splitRegionsAt(address uint64) {
	for _, r := range m.regions {
		if address > r.base && address < r.End() {
			right := &Region{
				base: address,
				size: r.End() - address,
				prot: r.prot,
				name: r.name,
			}
			r.size = address - r.base
			m.addRegion(right)
			return
		}
	}
}

// Mprotect splits at boundaries and changes protection, notifying
// callbacks with before/after sets.
func (m *Mmu) Mprotect(addr, length uint64, newProt PROT) {
	verify.That(isPageAligned(addr), "mprotect: unaligned address %#x", addr)
	length = pageRoundUp(length)
	end := addr + length

	m.splitRegionsAt(addr)
	m.splitRegionsAt(end)

	for _, r := range m.regions {
		if r.base >= addr && r.End() <= end {
			before := r.prot
			r.prot = newProt
			for _, cb := range m.callbacks {
				cb.OnRegionProtectionChange(r.base, r.size, before, newProt)
			}
		}
	}
}

// Brk extends or shrinks the heap region, returning the resulting top.
// Passing 0 queries the current top, per Linux brk(2) semantics.
func (m *Mmu) Brk(newTop uint64) uint64 {
	if newTop == 0 {
		return m.heapTop
	}
	if m.heapTop == 0 {
		base := m.firstFitPageAligned(pageRoundUp(newTop))
		m.Mmap(base, newTop, prim.NewBitFlags(ProtRead, ProtWrite), prim.NewBitFlags(MapAnonymous, MapPrivate, MapFixed))
		m.heapTop = base + pageRoundUp(newTop)
		return m.heapTop
	}
	// find the heap region (last region created via Brk) and resize it.
	for _, r := range m.regions {
		if r.Contains(m.heapTop - 1) {
			oldEnd := r.End()
			newEnd := pageRoundUp(newTop)
			if newEnd > oldEnd {
				m.Mmap(oldEnd, newEnd-oldEnd, r.prot, prim.NewBitFlags(MapAnonymous, MapPrivate, MapFixed))
			} else if newEnd < oldEnd {
				m.Munmap(newEnd, oldEnd-newEnd)
			}
			m.heapTop = newEnd
			return m.heapTop
		}
	}
	return m.heapTop
}

func (m *Mmu) SetRegionName(address uint64, name string) {
	if r := m.findRegion(address); r != nil {
		r.name = name
	}
}

func (m *Mmu) Prot(address uint64) PROT {
	if r := m.findRegion(address); r != nil {
		return r.prot
	}
	return prim.NewBitFlags[ProtBit]()
}

// FindAddress returns the region containing address, or nil.
func (m *Mmu) FindAddress(address uint64) *Region {
	return m.findRegion(address)
}

func (m *Mmu) findRegion(address uint64) *Region {
	page := address / PageSize
	if page < m.firstUnlookupable && int(page) < len(m.regionLookup) {
		if r := m.regionLookup[page]; r != nil && r.Contains(address) {
			return r
		}
	}
	pos := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].End() > address })
	if pos < len(m.regions) && m.regions[pos].Contains(address) {
		return m.regions[pos]
	}
	return nil
}

func (m *Mmu) fillRegionLookup(region *Region) {
	startPage := region.base / PageSize
	endPage := region.End() / PageSize
	if endPage > m.firstUnlookupable {
		grown := make([]*Region, endPage)
		copy(grown, m.regionLookup)
		m.regionLookup = grown
		m.firstUnlookupable = endPage
	}
	for p := startPage; p < endPage; p++ {
		m.regionLookup[p] = region
	}
}

func (m *Mmu) invalidateRegionLookup() {
	for i := range m.regionLookup {
		m.regionLookup[i] = nil
	}
	for _, r := range m.regions {
		if r.activated {
			m.fillRegionLookup(r)
		}
	}
}

// HostPointer returns the host byte slice backing the guest reservation,
// for the JIT's direct guest-memory access (spec.md §4.2).
func (m *Mmu) HostPointer() []byte { return m.reservation.Base() }

func (m *Mmu) checkedSlice(address uint64, size uint64) []byte {
	r := m.findRegion(address)
	verify.That(r != nil, "memory fault: access to unmapped address %#x", address)
	verify.That(address+size <= r.End(), "memory fault: access crosses region boundary at %#x", address)
	base := m.reservation.Base()
	if r.requiresMemsetToZero {
		regionBytes := base[r.base : r.base+r.size]
		for i := range regionBytes {
			regionBytes[i] = 0
		}
		r.requiresMemsetToZero = false
	}
	return base[address : address+size]
}

func (m *Mmu) Read8(address uint64) uint8   { return m.checkedSlice(address, 1)[0] }
func (m *Mmu) Read16(address uint64) uint16 { return leUint16(m.checkedSlice(address, 2)) }
func (m *Mmu) Read32(address uint64) uint32 { return leUint32(m.checkedSlice(address, 4)) }
func (m *Mmu) Read64(address uint64) uint64 { return leUint64(m.checkedSlice(address, 8)) }

// Read128 requires 16-byte alignment; ReadUnaligned128 does not, per
// spec.md §4.2.
func (m *Mmu) Read128(address uint64) (lo, hi uint64) {
	verify.That(address%16 == 0, "memory fault: misaligned 128-bit access at %#x", address)
	return m.ReadUnaligned128(address)
}

func (m *Mmu) ReadUnaligned128(address uint64) (lo, hi uint64) {
	b := m.checkedSlice(address, 16)
	return leUint64(b[:8]), leUint64(b[8:])
}

func (m *Mmu) Write8(address uint64, value uint8) { m.checkedSlice(address, 1)[0] = value }
func (m *Mmu) Write16(address uint64, value uint16) {
	putLeUint16(m.checkedSlice(address, 2), value)
}
func (m *Mmu) Write32(address uint64, value uint32) {
	putLeUint32(m.checkedSlice(address, 4), value)
}
func (m *Mmu) Write64(address uint64, value uint64) {
	putLeUint64(m.checkedSlice(address, 8), value)
}

func (m *Mmu) Write128(address uint64, lo, hi uint64) {
	verify.That(address%16 == 0, "memory fault: misaligned 128-bit access at %#x", address)
	m.WriteUnaligned128(address, lo, hi)
}

func (m *Mmu) WriteUnaligned128(address uint64, lo, hi uint64) {
	b := m.checkedSlice(address, 16)
	putLeUint64(b[:8], lo)
	putLeUint64(b[8:], hi)
}

// ReadString reads a NUL-terminated guest C string, grounded on the
// original's Mmu::readString.
func (m *Mmu) ReadString(address uint64) string {
	var out []byte
	for {
		c := m.Read8(address)
		if c == 0 {
			break
		}
		out = append(out, c)
		address++
	}
	return string(out)
}

// WithExclusiveRegion acquires the spinlock of the region containing
// address, applies modify to the current value, writes the result back,
// and releases — the sole hard atomicity primitive for LOCK-prefixed ops
// (spec.md §4.2, §5).
func WithExclusiveRegion[T any](m *Mmu, address uint64, read func(*Mmu, uint64) T, write func(*Mmu, uint64, T), modify func(T) T) {
	r := m.FindAddress(address)
	verify.That(r != nil, "memory fault: LOCK op on unmapped address %#x", address)
	locker := prim.Lock(r.Lock())
	defer locker.Unlock()
	old := read(m, address)
	write(m, address, modify(old))
}

func (m *Mmu) dumpRegionsString() string {
	s := ""
	for _, r := range m.regions {
		s += fmt.Sprintf("[%#x,%#x) %q\n", r.base, r.End(), r.name)
	}
	return s
}

func (m *Mmu) DumpRegions() string { return m.dumpRegionsString() }

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leUint64(b []byte) uint64 {
	return uint64(leUint32(b[:4])) | uint64(leUint32(b[4:]))<<32
}
func putLeUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLeUint64(b []byte, v uint64) {
	putLeUint32(b[:4], uint32(v))
	putLeUint32(b[4:], uint32(v>>32))
}
