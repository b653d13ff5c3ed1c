package prim

import "testing"

type testFlag uint32

const (
	flagA testFlag = 1 << 0
	flagB testFlag = 1 << 1
	flagC testFlag = 1 << 2
)

func TestBitFlagsAddRemoveTest(t *testing.T) {
	f := NewBitFlags(flagA, flagB)
	if !f.Test(flagA) || !f.Test(flagB) {
		t.Fatalf("constructor did not set requested flags: %v", f)
	}
	if f.Test(flagC) {
		t.Fatalf("unrequested flag set: %v", f)
	}

	f.Add(flagC)
	if !f.Test(flagC) {
		t.Fatalf("Add did not set flagC")
	}

	f.Remove(flagA)
	if f.Test(flagA) {
		t.Fatalf("Remove did not clear flagA")
	}
	if !f.Test(flagB) || !f.Test(flagC) {
		t.Fatalf("Remove cleared unrelated flags: %v", f)
	}
}

func TestBitFlagsAnyNone(t *testing.T) {
	var f BitFlags[testFlag]
	if f.Any() {
		t.Fatalf("zero-value BitFlags should have Any() == false")
	}
	if !f.None() {
		t.Fatalf("zero-value BitFlags should have None() == true")
	}
	f.Add(flagA)
	if !f.Any() || f.None() {
		t.Fatalf("BitFlags with a set bit should have Any()==true, None()==false")
	}
}

func TestBitFlagsEqualAndUnderlying(t *testing.T) {
	a := NewBitFlags(flagA, flagB)
	b := FromUnderlying(a.Underlying())
	if !a.Equal(b) {
		t.Fatalf("round-trip through Underlying/FromUnderlying changed value")
	}
	c := NewBitFlags(flagA)
	if a.Equal(c) {
		t.Fatalf("distinct flag sets compared equal")
	}
}
