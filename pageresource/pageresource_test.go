package pageresource

import (
	"testing"

	"golang.org/x/gcmm/vmmap"
)

func TestMonotoneContiguousBumpAndReset(t *testing.T) {
	r := NewContiguous(0x1000_0000, 16*BytesInPage, nil, 0)
	res, err := r.AllocPages(0, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Start != 0x1000_0000 {
		t.Fatalf("first alloc start = %#x, want 0x1000_0000", res.Start)
	}
	res2, err := r.AllocPages(0, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Start != res.Start+4*BytesInPage {
		t.Fatalf("second alloc start = %#x, want %#x", res2.Start, res.Start+4*BytesInPage)
	}
	if r.CommittedPages() != 8 {
		t.Fatalf("CommittedPages = %d, want 8", r.CommittedPages())
	}
	r.Reset()
	if r.CommittedPages() != 0 {
		t.Fatalf("CommittedPages after Reset = %d, want 0", r.CommittedPages())
	}
	if r.Cursor() != 0x1000_0000 {
		t.Fatalf("Cursor after Reset = %#x, want 0x1000_0000", r.Cursor())
	}
}

func TestMonotoneExhaustion(t *testing.T) {
	r := NewContiguous(0x2000_0000, 4*BytesInPage, nil, 0)
	if _, err := r.AllocPages(0, 8, 8); err != ErrOutOfVirtualMemory {
		t.Fatalf("err = %v, want ErrOutOfVirtualMemory", err)
	}
}

func TestFreeListAllocReleaseCoalesce(t *testing.T) {
	m := vmmap.NewMap32(8)
	base := m.AllocateContiguousChunks(1, 2, 0)
	r := NewFreeList(base, m, 1)

	a, err := r.AllocPages(1, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.AllocPages(1, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if b.Start != a.Start+3*BytesInPage {
		t.Fatalf("b.Start = %#x, want %#x", b.Start, a.Start+3*BytesInPage)
	}
	r.ReleasePages(a.Start)
	r.ReleasePages(b.Start)
	if r.CommittedPages() != 0 {
		t.Fatalf("CommittedPages after releasing both = %d, want 0", r.CommittedPages())
	}
	// The freed runs should have coalesced back into one contiguous run
	// at least as large as what was allocated.
	c, err := r.AllocPages(1, 6, 6)
	if err != nil {
		t.Fatalf("realloc after release+coalesce failed: %v", err)
	}
	if c.Start != a.Start {
		t.Fatalf("coalesced realloc start = %#x, want %#x", c.Start, a.Start)
	}
}

func TestBlockPageResourceLocalThenGlobalThenExpand(t *testing.T) {
	r := NewBlock(0x3000_0000, 4*vmmap.BytesInChunk, vmmap.BytesInChunk, nil, 0)
	a, err := r.AllocBlock(0)
	if err != nil {
		t.Fatal(err)
	}
	r.ReleaseBlock(0, a)
	b, err := r.AllocBlock(0)
	if err != nil {
		t.Fatal(err)
	}
	if b != a {
		t.Fatalf("expected local-pool reuse to hand back the same block, got %#x want %#x", b, a)
	}

	r.ReleaseBlock(0, b)
	r.FlushLocal(0)
	c, err := r.AllocBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Fatalf("expected global-pool reuse after flush, got %#x want %#x", c, a)
	}
}
