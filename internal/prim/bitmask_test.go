package prim

import "testing"

func TestBitMaskSetResetTest(t *testing.T) {
	m := NewBitMask(20)
	m.Set(3)
	m.Set(17)
	if !m.Test(3) || !m.Test(17) {
		t.Fatalf("Set bits not observed as set")
	}
	if m.Test(4) {
		t.Fatalf("unrelated bit reported set")
	}
	m.Reset(3)
	if m.Test(3) {
		t.Fatalf("Reset did not clear bit")
	}
	if !m.Test(17) {
		t.Fatalf("Reset cleared an unrelated bit")
	}
}

func TestBitMaskSetAllResetAll(t *testing.T) {
	m := NewBitMask(9)
	m.SetAll()
	for i := uint32(0); i < m.Size(); i++ {
		if !m.Test(i) {
			t.Fatalf("bit %d not set after SetAll", i)
		}
	}
	m.ResetAll()
	for i := uint32(0); i < m.Size(); i++ {
		if m.Test(i) {
			t.Fatalf("bit %d still set after ResetAll", i)
		}
	}
}

func TestBitMaskOutOfRangePanics(t *testing.T) {
	m := NewBitMask(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range access")
		}
	}()
	m.Set(4)
}
