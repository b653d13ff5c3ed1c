package jit

// callNative is the one host/guest calling-convention crossing point:
// it pushes blockEntry onto the host stack, points R15 at args, and
// jumps into the trampoline (trampolineEntry), which loads the mapped
// guest GPRs and jumps to blockEntry, eventually returning here via the
// trampoline's exit stub. See trampoline.go and asm_amd64.s.
func callNative(trampolineEntry uintptr, args *NativeArguments, blockEntry uintptr)
