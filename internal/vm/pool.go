package vm

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Runnable is one independently schedulable unit of guest execution: a
// VM and the set of threads it owns. Each VM in a pool is, per spec.md
// §5, its own Cpu/Mmu/Jit triple driven by its own host thread; nothing
// is shared between entries.
type Runnable struct {
	VM      *VM
	Threads []*VMThread

	// SliceDuration is the instruction count armed into each thread's
	// slice before RunRoundRobin checks for more work, via
	// ThreadTime.SetSlice.
	SliceDuration uint64
}

// RunRoundRobin drives r's threads in round-robin slices until no thread
// is runnable (each is dead, has exited, or is waiting on a syscall) or
// ctx is cancelled, then returns. It is the single-host-thread inner loop spec.md
// §4.7 describes; RunPool is what spreads many of these across host
// threads.
func RunRoundRobin(ctx context.Context, r Runnable) {
	if r.SliceDuration == 0 {
		r.SliceDuration = 100000
	}
	clock := uint64(0)
	for {
		ran := false
		for _, t := range r.Threads {
			if t.Dead() || t.Exited() || t.RequestsSyscall() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			t.time.SetSlice(clock, r.SliceDuration)
			r.VM.Execute(t)
			clock = t.time.Ns()
			ran = true
		}
		if !ran {
			return
		}
	}
}

// RunPool drives every Runnable in pool concurrently, one host thread
// (goroutine) per entry, bounded to at most maxConcurrent running at
// once. Grounded in spec.md §5's "the host process may spawn additional
// host threads, but each owns its own Cpu, Mmu, and Jit" — the
// independence that makes plain fan-out safe here, with
// golang.org/x/sync/semaphore capping how many run simultaneously and
// golang.org/x/sync/errgroup waiting for all of them. Entries report no
// error and a panic in one is not recovered, so the return value is nil
// once every started entry finishes; if ctx is cancelled, entries not yet
// started are skipped and running ones stop at their next thread switch.
func RunPool(ctx context.Context, pool []Runnable, maxConcurrent int64) error {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(len(pool))
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	g, ctx := errgroup.WithContext(ctx)

	for _, r := range pool {
		r := r
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			RunRoundRobin(ctx, r)
			return nil
		})
	}

	return g.Wait()
}
