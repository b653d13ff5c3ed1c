package jit

import "unsafe"

// hostAddr returns the host virtual address backing an mmap'd byte
// slice's first element, used to compute rel32 patch displacements and
// entry points into executable memory.
func hostAddr(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
