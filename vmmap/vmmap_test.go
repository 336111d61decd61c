package vmmap

import "testing"

func TestMap32AllocateAndFree(t *testing.T) {
	m := NewMap32(64)
	const descA SpaceDescriptor = 1
	addr := m.AllocateContiguousChunks(descA, 4, 0)
	if addr == 0 {
		t.Fatal("AllocateContiguousChunks returned zero address")
	}
	if got := m.GetContiguousRegionChunks(addr); got != 4 {
		t.Fatalf("GetContiguousRegionChunks = %d, want 4", got)
	}
	if got := m.GetDescriptorForAddress(addr); got != descA {
		t.Fatalf("GetDescriptorForAddress = %v, want %v", got, descA)
	}
	freed := m.FreeContiguousChunks(addr)
	if freed != 4 {
		t.Fatalf("FreeContiguousChunks = %d, want 4", freed)
	}
	if got := m.GetDescriptorForAddress(addr); !got.IsEmpty() {
		t.Fatalf("descriptor after free = %v, want empty", got)
	}
}

func TestMap32LinkedRegions(t *testing.T) {
	m := NewMap32(64)
	const desc SpaceDescriptor = 2
	first := m.AllocateContiguousChunks(desc, 2, 0)
	second := m.AllocateContiguousChunks(desc, 2, first)
	if got := m.GetNextContiguousRegion(second); got != first {
		t.Fatalf("GetNextContiguousRegion(second) = %#x, want %#x", got, first)
	}
	m.FreeAllChunks(first)
	if got := m.GetAvailableDiscontiguousChunks(); got != 64 {
		t.Fatalf("available chunks after FreeAllChunks = %d, want 64", got)
	}
}

func TestMap32RunExhaustion(t *testing.T) {
	m := NewMap32(4)
	if addr := m.AllocateContiguousChunks(1, 5, 0); addr != 0 {
		t.Fatal("expected allocation of more chunks than exist to fail")
	}
}

func TestMap64BumpAllocation(t *testing.T) {
	m := NewMap64(32) // 4 GiB per space
	const desc SpaceDescriptor = 7
	m.BindRegion(desc, 0x1_0000_0000_0000)
	a := m.AllocateContiguousChunks(desc, 1, 0)
	b := m.AllocateContiguousChunks(desc, 1, 0)
	if a == 0 || b == 0 {
		t.Fatal("allocation failed")
	}
	if b != a+BytesInChunk {
		t.Fatalf("second allocation = %#x, want %#x", b, a+BytesInChunk)
	}
	if got := m.GetDescriptorForAddress(a); got != desc {
		t.Fatalf("GetDescriptorForAddress = %v, want %v", got, desc)
	}
}

func TestPageFreeListAllocFreeCoalesce(t *testing.T) {
	f := NewPageFreeList(100)
	a, ok := f.Alloc(10)
	if !ok || a != 0 {
		t.Fatalf("first Alloc(10) = (%d,%v), want (0,true)", a, ok)
	}
	b, ok := f.Alloc(10)
	if !ok || b != 10 {
		t.Fatalf("second Alloc(10) = (%d,%v), want (10,true)", b, ok)
	}
	f.Free(a, 10)
	f.Free(b, 10)
	if got := f.Size(0); got != 100 {
		t.Fatalf("Size(0) after freeing both runs = %d, want 100 (fully coalesced)", got)
	}
}
