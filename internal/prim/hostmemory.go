package prim

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HostProtection mirrors original_source/emulator/include/host/hostmemory.h's
// HostMemory::Protection bit flags, used for both the MMU's guest-backing
// reservation and the JIT's executable-memory ranges.
type HostProtection uint32

const (
	HostProtNone  HostProtection = 0
	HostProtRead  HostProtection = 1 << 0
	HostProtWrite HostProtection = 1 << 1
	HostProtExec  HostProtection = 1 << 2
)

func (p HostProtection) toUnix() int {
	prot := unix.PROT_NONE
	if p&HostProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&HostProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&HostProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// VirtualMemoryRange is a scoped owner of a host mapping of a requested
// size, released on Close. Grounded on host/hostmemory.h's
// VirtualMemoryRange + hostmemory.cpp's mmap/mprotect/munmap calls.
type VirtualMemoryRange struct {
	data []byte
}

// NewVirtualMemoryRange reserves size bytes of host address space,
// initially with no access, via a real anonymous mmap.
func NewVirtualMemoryRange(size uint64) (*VirtualMemoryRange, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("prim: mmap reservation of %d bytes failed: %w", size, err)
	}
	return &VirtualMemoryRange{data: data}, nil
}

func (v *VirtualMemoryRange) Base() []byte { return v.data }
func (v *VirtualMemoryRange) Size() uint64 { return uint64(len(v.data)) }

// Protect changes the protection of the whole range.
func (v *VirtualMemoryRange) Protect(prot HostProtection) error {
	if err := unix.Mprotect(v.data, prot.toUnix()); err != nil {
		return fmt.Errorf("prim: mprotect failed: %w", err)
	}
	return nil
}

// Close releases the host mapping.
func (v *VirtualMemoryRange) Close() error {
	if v.data == nil {
		return nil
	}
	err := unix.Munmap(v.data)
	v.data = nil
	return err
}
