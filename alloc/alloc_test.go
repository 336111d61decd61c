package alloc

import (
	"testing"

	"golang.org/x/gcmm/address"
)

type fakeRefiller struct {
	regions [][2]address.Address
}

func (f *fakeRefiller) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
	if len(f.regions) == 0 {
		return 0, 0, false
	}
	r := f.regions[0]
	f.regions = f.regions[1:]
	return r[0], r[1], true
}

func TestBumpAllocatorFastPath(t *testing.T) {
	a := NewBumpAllocator(&fakeRefiller{})
	a.Rebind(address.FromUintptrUnsafe(0x1000), address.FromUintptrUnsafe(0x1000+256))
	r1 := a.Alloc(16, 8, 0)
	if r1 != address.FromUintptrUnsafe(0x1000) {
		t.Fatalf("r1 = %v, want 0x1000", r1)
	}
	r2 := a.Alloc(16, 8, 0)
	if r2 != address.FromUintptrUnsafe(0x1010) {
		t.Fatalf("r2 = %v, want 0x1010", r2)
	}
}

func TestBumpAllocatorSlowPathRefills(t *testing.T) {
	refiller := &fakeRefiller{regions: [][2]address.Address{
		{address.FromUintptrUnsafe(0x2000), address.FromUintptrUnsafe(0x2010)},
	}}
	a := NewBumpAllocator(refiller)
	if got := a.Alloc(16, 8, 0); got != address.ZeroAddress {
		t.Fatalf("Alloc on an unbound allocator = %v, want zero", got)
	}
	got := a.AllocSlow(16, 8, 0)
	if got != address.FromUintptrUnsafe(0x2000) {
		t.Fatalf("AllocSlow = %v, want 0x2000", got)
	}
}

func TestBumpAllocatorExhaustionReturnsZero(t *testing.T) {
	a := NewBumpAllocator(&fakeRefiller{})
	if got := a.AllocSlow(16, 8, 0); got != address.ZeroAddress {
		t.Fatalf("AllocSlow with no regions left = %v, want zero", got)
	}
}

func TestBumpAllocatorLOSRedirect(t *testing.T) {
	losRefiller := &fakeRefiller{regions: [][2]address.Address{
		{address.FromUintptrUnsafe(0x5000), address.FromUintptrUnsafe(0x10000)},
	}}
	los := NewLOSAllocator(losRefiller)
	a := NewBumpAllocator(&fakeRefiller{})
	a.MaxNonLOSDefaultAllocBytes = 256
	a.LOSRedirect = los

	got := a.Alloc(1024, 8, 0)
	if got != address.FromUintptrUnsafe(0x5000) {
		t.Fatalf("large Alloc should redirect to LOS, got %v", got)
	}
}

type fakeCellSource struct {
	cells    map[int][]address.Address
	refilled map[int]bool
}

func (f *fakeCellSource) PopCell(sizeClass int) (address.Address, bool) {
	cells := f.cells[sizeClass]
	if len(cells) == 0 {
		return 0, false
	}
	f.cells[sizeClass] = cells[1:]
	return cells[0], true
}

func (f *fakeCellSource) RefillBlock(sizeClass int) bool {
	if f.refilled == nil {
		f.refilled = map[int]bool{}
	}
	if f.refilled[sizeClass] {
		return false
	}
	f.refilled[sizeClass] = true
	f.cells[sizeClass] = []address.Address{address.FromUintptrUnsafe(0x6000)}
	return true
}

func TestFreeListAllocatorPopThenRefill(t *testing.T) {
	src := &fakeCellSource{cells: map[int][]address.Address{}}
	a := NewFreeListAllocator(src)
	a.SizeClassOf = func(size uintptr) int { return 0 }

	if got := a.Alloc(16, 8, 0); got != address.ZeroAddress {
		t.Fatalf("Alloc with an empty block = %v, want zero", got)
	}
	got := a.AllocSlow(16, 8, 0)
	if got != address.FromUintptrUnsafe(0x6000) {
		t.Fatalf("AllocSlow after refill = %v, want 0x6000", got)
	}
}

type fakeHoleSource struct {
	holes   [][2]address.Address
	blocked bool
}

func (f *fakeHoleSource) NextHole() (address.Address, address.Address, bool) {
	if len(f.holes) == 0 {
		return 0, 0, false
	}
	h := f.holes[0]
	f.holes = f.holes[1:]
	return h[0], h[1], true
}

func (f *fakeHoleSource) AcquireBlock() bool {
	if f.blocked {
		return false
	}
	f.blocked = true
	return true
}

func TestImmixAllocatorAdvancesThroughHoles(t *testing.T) {
	src := &fakeHoleSource{holes: [][2]address.Address{
		{address.FromUintptrUnsafe(0x7000), address.FromUintptrUnsafe(0x7008)}, // too small
		{address.FromUintptrUnsafe(0x7100), address.FromUintptrUnsafe(0x7200)},
	}}
	a := NewImmixAllocator(src)
	got := a.AllocSlow(64, 8, 0)
	if got != address.FromUintptrUnsafe(0x7100) {
		t.Fatalf("AllocSlow = %v, want 0x7100 (first hole was too small)", got)
	}
}
