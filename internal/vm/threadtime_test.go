package vm

import "testing"

func TestThreadTimeSliceAndStop(t *testing.T) {
	var tt ThreadTime
	tt.SetSlice(0, 10)
	if tt.IsStopAsked() {
		t.Fatalf("should not be stopped before any ticks")
	}
	tt.Tick(9)
	if tt.IsStopAsked() {
		t.Fatalf("should not be stopped at 9/10 ticks")
	}
	tt.Tick(1)
	if !tt.IsStopAsked() {
		t.Fatalf("should be stopped once the slice is exhausted")
	}
}

func TestThreadTimeYieldStopsImmediately(t *testing.T) {
	var tt ThreadTime
	tt.SetSlice(0, 1000)
	tt.Tick(1)
	tt.Yield()
	if !tt.IsStopAsked() {
		t.Fatalf("Yield should pull the limit back to the current count")
	}
}

func TestThreadTimeSetSlicePanicsOnBackwardsClock(t *testing.T) {
	var tt ThreadTime
	tt.SetSlice(100, 10)
	tt.Tick(5)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected SetSlice to panic when given a current time behind the thread's own clock")
		}
	}()
	tt.SetSlice(50, 10)
}

func TestThreadTimeNs(t *testing.T) {
	var tt ThreadTime
	tt.SetSlice(1000, 50)
	tt.Tick(20)
	if got := tt.Ns(); got != 1020 {
		t.Fatalf("Ns() = %d, want 1020", got)
	}
}
