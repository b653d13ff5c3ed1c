package vm

import (
	"fmt"

	"github.com/intuitionamiga/x64emulator/internal/inst"
)

// TelemetryLevel replaces the original's compile-time VM_JIT_TELEMETRY/
// VM_BASICBLOCK_TELEMETRY macros (spec.md §6's configuration envelope
// item 3): a Go build has no preprocessor, and a runtime level lets one
// binary serve both a quiet production run and an instrumented one.
type TelemetryLevel int

const (
	TelemetryOff       TelemetryLevel = iota // no counters maintained
	TelemetryCounters                        // aggregate exit/hit counters
	TelemetryPerBlock                        // + per-address histograms
)

// telemetry holds every counter updateJitStats maintains, split out of
// VM proper so the zero value (all off) costs nothing to embed.
type telemetry struct {
	level TelemetryLevel

	jitExits         uint64
	jitExitRet       uint64
	jitExitCallRM64  uint64
	jitExitJmpRM64   uint64
	blockCacheHits   uint64
	blockCacheMisses uint64

	distinctJitExitRet      map[uint64]struct{}
	distinctJitExitCallRM64 map[uint64]struct{}
	distinctJitExitJmpRM64  map[uint64]struct{}

	basicBlockCount          map[uint64]uint64
	basicBlockCacheMissCount map[uint64]uint64
}

func newTelemetry(level TelemetryLevel) telemetry {
	t := telemetry{level: level}
	if level >= TelemetryPerBlock {
		t.distinctJitExitRet = make(map[uint64]struct{})
		t.distinctJitExitCallRM64 = make(map[uint64]struct{})
		t.distinctJitExitJmpRM64 = make(map[uint64]struct{})
		t.basicBlockCount = make(map[uint64]uint64)
		t.basicBlockCacheMissCount = make(map[uint64]uint64)
	}
	return t
}

// updateJitStats records one step's outcome: native reports whether h
// ran compiled code (a "block cache hit" in the original's terms) versus
// the interpreter, and block is the decoded instructions that were run
// (its terminator classifies the RET/indirect-CALL/indirect-JMP exit
// counters). Those three counters mean something slightly different here
// than in the C++ original: that engine's compiled blocks could
// themselves end in RET/indirect CALL/JMP and only then exit to the
// runtime to resolve the target; this engine's translate.go never
// compiles such a terminator at all (see DESIGN.md), so here the
// counters classify interpreted exits by the same three terminator
// shapes instead.
func (t *telemetry) updateJitStats(startAddr uint64, native bool, block []inst.Instruction) {
	if t.level == TelemetryOff {
		return
	}
	if native {
		t.jitExits++
		t.blockCacheHits++
	} else {
		t.blockCacheMisses++
		if len(block) > 0 {
			t.classifyExit(startAddr, block[len(block)-1])
		}
	}
	if t.level >= TelemetryPerBlock {
		t.basicBlockCount[startAddr]++
		if !native {
			t.basicBlockCacheMissCount[startAddr]++
		}
	}
}

func (t *telemetry) classifyExit(startAddr uint64, last inst.Instruction) {
	switch {
	case last.IsRet():
		t.jitExitRet++
		t.markDistinct(t.distinctJitExitRet, startAddr)
	case last.IsCall() && !last.IsFixedDestinationJump():
		t.jitExitCallRM64++
		t.markDistinct(t.distinctJitExitCallRM64, startAddr)
	case last.IsControlTransfer() && !last.IsFixedDestinationJump() && !last.IsSyscall():
		t.jitExitJmpRM64++
		t.markDistinct(t.distinctJitExitJmpRM64, startAddr)
	}
}

func (t *telemetry) markDistinct(set map[uint64]struct{}, addr uint64) {
	if t.level >= TelemetryPerBlock {
		set[addr] = struct{}{}
	}
}

// Dump formats the accumulated counters, mirroring
// VM::dumpJitTelemetry's role without its per-segment blocks argument
// (this engine's VM has no single authoritative "live blocks" snapshot
// to hand it; the counters alone are the useful part).
func (t *telemetry) Dump() string {
	if t.level == TelemetryOff {
		return "jit telemetry: disabled\n"
	}
	s := fmt.Sprintf("jit exits: %d (ret=%d indirect-call=%d indirect-jmp=%d)\n",
		t.jitExits, t.jitExitRet, t.jitExitCallRM64, t.jitExitJmpRM64)
	s += fmt.Sprintf("block cache: %d hits, %d misses\n", t.blockCacheHits, t.blockCacheMisses)
	if t.level >= TelemetryPerBlock {
		s += fmt.Sprintf("distinct ret/call/jmp exit sites: %d/%d/%d\n",
			len(t.distinctJitExitRet), len(t.distinctJitExitCallRM64), len(t.distinctJitExitJmpRM64))
		s += fmt.Sprintf("distinct basic blocks seen: %d\n", len(t.basicBlockCount))
	}
	return s
}
