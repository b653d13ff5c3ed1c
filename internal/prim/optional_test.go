package prim

import "testing"

func TestOptionalSomeNone(t *testing.T) {
	some := Some(42)
	if !some.IsPresent() {
		t.Fatalf("Some() should be present")
	}
	if v, ok := some.Get(); !ok || v != 42 {
		t.Fatalf("Get() = %d, %v; want 42, true", v, ok)
	}

	none := None[int]()
	if none.IsPresent() {
		t.Fatalf("None() should be absent")
	}
	if _, ok := none.Get(); ok {
		t.Fatalf("Get() on None() reported present")
	}
}

func TestOptionalPtr(t *testing.T) {
	var o Optional[string]
	if o.Ptr() != nil {
		t.Fatalf("zero-value Optional should have a nil Ptr()")
	}
	o.Emplace("hello")
	p := o.Ptr()
	if p == nil || *p != "hello" {
		t.Fatalf("Ptr() after Emplace = %v, want *hello", p)
	}
	*p = "changed"
	if v, _ := o.Get(); v != "changed" {
		t.Fatalf("mutation through Ptr() did not propagate")
	}
}

func TestOptionalReset(t *testing.T) {
	o := Some(7)
	o.Reset()
	if o.IsPresent() {
		t.Fatalf("Reset() should clear present")
	}
	if v, _ := o.Get(); v != 0 {
		t.Fatalf("Reset() should zero the wrapped value, got %d", v)
	}
}
