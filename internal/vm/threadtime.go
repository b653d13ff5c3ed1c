package vm

// ThreadTime is a guest thread's private clock: how many instructions it
// has retired, how long it waited before that, and the point at which the
// scheduler should reclaim it. Grounded on
// original_source/emulator/include/emulator/vmthread.h's ThreadTime.
type ThreadTime struct {
	waitTime         uint64
	nbInstructions   uint64
	instructionLimit uint64
}

// IsStopAsked reports whether the thread has consumed its current slice,
// the VM loop's only mid-block-boundary cancellation check (spec.md §5
// "Slice boundaries are the only points at which cancellation is
// observed").
func (t *ThreadTime) IsStopAsked() bool { return t.nbInstructions >= t.instructionLimit }

// NbInstructions reports the total instruction count retired so far.
func (t *ThreadTime) NbInstructions() uint64 { return t.nbInstructions }

// Ns is the thread's logical clock: wait time plus instructions retired,
// used as a tick source for profiling events (ThreadProfileData's
// CallEvent/RetEvent/SyscallEvent timestamps).
func (t *ThreadTime) Ns() uint64 { return t.waitTime + t.nbInstructions }

// Tick advances the instruction counter by count, called once per
// executed basic block (interpreted or compiled).
func (t *ThreadTime) Tick(count uint64) { t.nbInstructions += count }

// SetSlice arms the thread for a fresh slice of sliceDuration
// instructions, starting from the scheduler's logical current time.
// current must not precede the thread's own clock.
func (t *ThreadTime) SetSlice(current, sliceDuration uint64) {
	if current < t.waitTime+t.nbInstructions {
		panic("vm: ThreadTime.SetSlice given a current time behind the thread's own clock")
	}
	t.waitTime = current - t.nbInstructions
	t.instructionLimit = t.nbInstructions + sliceDuration
}

// Yield pulls the instruction limit back to the current count, the
// kernel layer's explicit "stop this thread now" request (spec.md §5's
// second suspension point).
func (t *ThreadTime) Yield() { t.instructionLimit = t.nbInstructions }
