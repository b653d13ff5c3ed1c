package verify

import "testing"

func TestThatPassesSilently(t *testing.T) {
	That(true, "should never fire")
}

func TestThatPanicsOnFalse(t *testing.T) {
	defer func() {
		r := recover()
		f, ok := r.(Failure)
		if !ok {
			t.Fatalf("expected a Failure panic, got %#v", r)
		}
		if f.Reason != "bad address 0x1000" {
			t.Fatalf("Reason = %q, want %q", f.Reason, "bad address 0x1000")
		}
	}()
	That(false, "bad address %#x", 0x1000)
}

func TestRecoverCatchesFailureAndCallsOnFailure(t *testing.T) {
	var reason string
	func() {
		defer Recover(func(r string) { reason = r })
		Fail("decoder failure at %#x", 0x2000)
	}()
	if reason != "decoder failure at 0x2000" {
		t.Fatalf("reason = %q, want %q", reason, "decoder failure at 0x2000")
	}
}

func TestRecoverRepanicsOtherValues(t *testing.T) {
	defer func() {
		r := recover()
		if r != "not a verify.Failure" {
			t.Fatalf("expected the non-Failure panic to propagate, got %#v", r)
		}
	}()
	func() {
		defer Recover(func(string) { t.Fatalf("onFailure should not run for a non-Failure panic") })
		panic("not a verify.Failure")
	}()
}
