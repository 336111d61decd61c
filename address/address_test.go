package address

import "testing"

func TestAlignUpDown(t *testing.T) {
	cases := []struct {
		addr  Address
		align ByteSize
		down  Address
		up    Address
	}{
		{0x1001, 0x1000, 0x1000, 0x2000},
		{0x1000, 0x1000, 0x1000, 0x1000},
		{0x0, 0x10, 0x0, 0x0},
	}
	for _, c := range cases {
		if got := c.addr.AlignDown(c.align); got != c.down {
			t.Errorf("AlignDown(%v, %v) = %v, want %v", c.addr, c.align, got, c.down)
		}
		if got := c.addr.AlignUp(c.align); got != c.up {
			t.Errorf("AlignUp(%v, %v) = %v, want %v", c.addr, c.align, got, c.up)
		}
	}
}

func TestSubPanicsOnUnderflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic subtracting a larger address")
		}
	}()
	Address(0x1000).Sub(Address(0x2000))
}

func TestObjectReferenceNeverZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing a zero ObjectReference")
		}
	}()
	FromAddress(ZeroAddress)
}

func TestObjectReferenceRoundTrip(t *testing.T) {
	a := Address(0x4000)
	o := FromAddress(a)
	if o.IsNull() {
		t.Fatal("non-zero ObjectReference reported as null")
	}
	if got := o.ToAddress(); got != a {
		t.Errorf("ToAddress() = %v, want %v", got, a)
	}
}

func TestOffsetAllowsNegative(t *testing.T) {
	a, b := Address(0x100), Address(0x200)
	if got, want := a.Offset(b), -0x100; got != want {
		t.Errorf("Offset = %d, want %d", got, want)
	}
}
