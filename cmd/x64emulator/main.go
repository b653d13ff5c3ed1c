// Command x64emulator is a minimal host wiring a flat guest image into
// internal/vm's VM loop: it has no ELF/kernel/syscall layer of its own
// (out of scope per spec.md §1), so syscalls are answered by a stub
// handler that logs the number and requests process exit on exit/
// exit_group, just enough to let a freestanding guest program run to
// completion under the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/intuitionamiga/x64emulator/internal/cpu"
	"github.com/intuitionamiga/x64emulator/internal/mmu"
	"github.com/intuitionamiga/x64emulator/internal/prim"
	"github.com/intuitionamiga/x64emulator/internal/vm"
)

const (
	loadBase  = 0x400000
	stackBase = 0x7ffffffde000
	stackSize = 0x21000
)

const (
	sysExit      = 60
	sysExitGroup = 231
)

func main() {
	imagePath := flag.String("image", "", "flat guest binary to load at 0x400000 (required)")
	entry := flag.Uint64("entry", loadBase, "guest entry point (RIP) within the loaded image")
	slice := flag.Uint64("slice", 100000, "instructions per scheduling slice")
	telemetry := flag.Int("telemetry", 0, "JIT telemetry level: 0=off, 1=counters, 2=per-block")
	threshold := flag.Uint64("jit-threshold", 0, "JIT compilation threshold (0 = engine default)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: x64emulator -image=program.bin [options]\n\nRuns a flat x86-64 guest image under the engine's VM loop.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", *imagePath, err)
		os.Exit(1)
	}

	handler := &stubSyscallHandler{}
	theVM, err := vm.New(vm.Config{
		CompilationThreshold: *threshold,
		Telemetry:            vm.TelemetryLevel(*telemetry),
		Syscall:              handler,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: constructing vm: %v\n", err)
		os.Exit(1)
	}

	if err := loadFlatImage(theVM.Mmu(), image); err != nil {
		fmt.Fprintf(os.Stderr, "error: loading image: %v\n", err)
		os.Exit(1)
	}

	theVM.Mmu().Mmap(stackBase, stackSize,
		prim.NewBitFlags(mmu.ProtRead, mmu.ProtWrite),
		prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))

	thread := vm.NewVMThread("main")
	state := thread.SavedCpuState()
	state.SetRIP(*entry)
	state.SetGPR(cpu.RSP, stackBase+stackSize-0x100)

	vm.RunRoundRobin(context.Background(), vm.Runnable{
		VM:            theVM,
		Threads:       []*vm.VMThread{thread},
		SliceDuration: *slice,
	})

	if thread.Dead() {
		fmt.Fprintf(os.Stderr, "guest thread terminated: %s\n", thread.DeathReason())
		os.Exit(1)
	}

	fmt.Print(theVM.Telemetry())
	os.Exit(int(handler.exitCode))
}

// loadFlatImage maps a single read+exec region at loadBase and copies
// image into it with Write8, which does not check guest protection; a
// flat binary has no section table
// telling us which parts need to stay writable, and nothing in this
// demonstration harness self-modifies its own code after load.
func loadFlatImage(m *mmu.Mmu, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("empty image")
	}
	m.Mmap(loadBase, uint64(len(image)),
		prim.NewBitFlags(mmu.ProtRead, mmu.ProtExec),
		prim.NewBitFlags(mmu.MapAnonymous, mmu.MapPrivate, mmu.MapFixed))
	for i, b := range image {
		m.Write8(loadBase+uint64(i), b)
	}
	return nil
}

// stubSyscallHandler answers every unrecognized syscall with -ENOSYS;
// exit and exit_group are the only two numbers this harness gives real
// meaning to, stashing the guest's requested status code and marking
// the calling thread exited.
type stubSyscallHandler struct {
	exitCode uint64
}

func (h *stubSyscallHandler) HandleSyscall(thread *vm.VMThread, state *cpu.GuestState) {
	number := state.GPRValue(cpu.RAX)
	switch number {
	case sysExit, sysExitGroup:
		h.exitCode = state.GPRValue(cpu.RDI)
		thread.RequestExit(h.exitCode)
	default:
		fmt.Fprintf(os.Stderr, "x64emulator: unhandled syscall %d, returning -ENOSYS\n", number)
		state.SetGPR(cpu.RAX, ^uint64(37)+1) // -ENOSYS
	}
}
