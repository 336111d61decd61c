package space

import (
	"testing"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

// fakeModel is a test ObjectModel: every object is fixedSize bytes and
// "copying" it never touches real memory (the synthetic addresses these
// tests use are never backed by an Mmapper), it only reports the
// reference at its new location.
type fakeModel struct{ fixedSize uintptr }

func (m fakeModel) BytesRequiredWhenCopied(address.ObjectReference) uintptr { return m.fixedSize }
func (m fakeModel) CopyObject(obj address.ObjectReference, to address.Address) address.ObjectReference {
	return address.FromAddressUnsafe(to)
}

func TestCopySpaceForwardsFromSpaceObjectsOnce(t *testing.T) {
	sftMap := sft.NewMap(1024)
	fwd := NewForwardingWord()
	model := fakeModel{fixedSize: 32}

	toSpacePR := pageresource.NewContiguous(0x1000_0000, 1<<20, nil, 2)
	to := NewCopySpace("tospace", 2, nil, sftMap, toSpacePR, fwd, model)

	fromSpacePR := pageresource.NewContiguous(0x2000_0000, 1<<20, nil, 1)
	from := NewCopySpace("fromspace", 1, nil, sftMap, fromSpacePR, fwd, model)
	from.Target = to
	from.SetFromSpace(true)

	obj := address.FromAddressUnsafe(address.FromUintptrUnsafe(0x2000_0000))
	first := from.TraceObject(obj)
	if first.IsNull() {
		t.Fatal("TraceObject returned null")
	}
	second := from.TraceObject(obj)
	if second != first {
		t.Fatalf("tracing the same object twice gave different results: %v vs %v", first, second)
	}
	if !from.IsLive(obj) {
		t.Fatal("forwarded from-space object should report live")
	}
	gotFwd, ok := from.GetForwardedObject(obj)
	if !ok || gotFwd != first {
		t.Fatalf("GetForwardedObject = (%v, %v), want (%v, true)", gotFwd, ok, first)
	}
}

func TestImmortalSpaceNeverDies(t *testing.T) {
	sftMap := sft.NewMap(1024)
	pr := pageresource.NewContiguous(0x3000_0000, 1<<20, nil, 3)
	s := NewImmortalSpace("immortal", 3, nil, sftMap, pr)

	start, limit, ok := s.AcquireRegion(4096)
	if !ok || start.IsZero() || limit <= start {
		t.Fatalf("AcquireRegion failed: start=%v limit=%v ok=%v", start, limit, ok)
	}
	obj := address.FromAddressUnsafe(start)
	if !s.IsLive(obj) {
		t.Fatal("ImmortalSpace objects must always report live")
	}
	got := s.TraceObject(obj)
	if got != obj {
		t.Fatalf("TraceObject = %v, want %v (ImmortalSpace never moves)", got, obj)
	}
	s.Release() // must not panic
}

func TestLargeObjectSpaceSweepsUnreachedObjects(t *testing.T) {
	sftMap := sft.NewMap(1024)
	vm := vmmap.NewMap32(64)
	// Map32 never hands out chunk 0 (the zero address); this unrelated
	// one-chunk reservation takes chunk 1, so the LOS region below starts
	// at chunk 2.
	vm.AllocateContiguousChunks(99, 1, 0)
	base := vm.AllocateContiguousChunks(5, 8, 0)
	pr := pageresource.NewFreeList(base, vm, 5)
	s := NewLargeObjectSpace("los", 5, vm, sftMap, pr)

	start1, _, ok := s.AcquireRegion(4096)
	if !ok {
		t.Fatal("first AcquireRegion failed")
	}
	start2, _, ok := s.AcquireRegion(4096)
	if !ok {
		t.Fatal("second AcquireRegion failed")
	}
	obj1 := address.FromAddressUnsafe(start1)
	obj2 := address.FromAddressUnsafe(start2)
	if !s.IsLive(obj1) || !s.IsLive(obj2) {
		t.Fatal("freshly allocated LOS objects should be live immediately")
	}

	s.Prepare()
	s.TraceObject(obj1) // obj2 is not traced this cycle: it should be swept
	s.Release()

	if !s.IsLive(obj1) {
		t.Fatal("traced object should survive Release")
	}
	if s.IsLive(obj2) {
		t.Fatal("untraced object should have been swept by Release")
	}
}

func TestMarkSweepSpaceAllocateMarkSweepCycle(t *testing.T) {
	sftMap := sft.NewMap(1024)
	pr := pageresource.NewBlock(0x4000_0000, 4*vmmap.BytesInChunk, msBlockBytes, nil, 6)
	s := NewMarkSweepSpace("ms", 6, nil, sftMap, pr)

	if !s.RefillBlock(0) {
		t.Fatal("RefillBlock failed")
	}
	cellA, ok := s.PopCell(0)
	if !ok {
		t.Fatal("PopCell failed after refill")
	}
	cellB, ok := s.PopCell(0)
	if !ok {
		t.Fatal("second PopCell failed")
	}
	if cellA == cellB {
		t.Fatal("PopCell returned the same cell twice")
	}

	objA := address.FromAddressUnsafe(cellA)
	s.InitializeObjectMetadata(objA, true)

	s.Prepare()
	s.TraceObject(objA) // cellB's object is never traced: its cell should free up
	s.Release()

	if !s.IsLive(objA) {
		t.Fatal("traced object should remain marked live after Release")
	}
	freed, ok := s.PopCell(0)
	if !ok {
		t.Fatal("expected Release to return the untraced cell to the free list")
	}
	if freed != cellB {
		t.Fatalf("expected the reclaimed cell to be %v, got %v", cellB, freed)
	}
}

func TestImmixSpaceAllocatesWithinBlockThenRecycles(t *testing.T) {
	sftMap := sft.NewMap(1024)
	pr := pageresource.NewBlock(0x5000_0000, 4*vmmap.BytesInChunk, immixBlockBytes, nil, 7)
	model := fakeModel{fixedSize: immixLineBytes}
	s := NewImmixSpace("immix", 7, nil, sftMap, pr, model)

	if !s.AcquireBlock() {
		t.Fatal("AcquireBlock failed")
	}
	start, end, ok := s.NextHole()
	if !ok {
		t.Fatal("expected a hole in a freshly acquired block")
	}
	if end.Sub(start) != immixBlockBytes {
		t.Fatalf("fresh block hole size = %d, want %d", end.Sub(start), immixBlockBytes)
	}

	obj := address.FromAddressUnsafe(start)
	s.InitializeObjectMetadata(obj, true)
	if !s.IsLive(obj) {
		t.Fatal("initialized object should report live")
	}

	s.Prepare()
	s.TraceObject(obj)
	s.Release()

	if !s.IsLive(obj) {
		t.Fatal("traced object should remain live after Release")
	}
}

func TestMarkCompactSpaceCompactsLiveObjectsContiguously(t *testing.T) {
	sftMap := sft.NewMap(1024)
	region := address.FromUintptrUnsafe(0x6000_0000)
	pr := pageresource.NewContiguous(uintptr(region), 1<<20, nil, 8)
	model := fakeModel{fixedSize: 64}
	s := NewMarkCompactSpace("mc", 8, nil, sftMap, pr, region, 1<<20, model)

	s.Prepare()
	obj1 := address.FromAddressUnsafe(region.Add(256))
	obj2 := address.FromAddressUnsafe(region.Add(1024))
	s.TraceObject(obj1)
	s.TraceObject(obj2)
	s.ComputeForwardingAddresses()

	dest1, ok := s.GetForwardedObject(obj1)
	if !ok {
		t.Fatal("obj1 should have a forwarding address computed")
	}
	dest2, ok := s.GetForwardedObject(obj2)
	if !ok {
		t.Fatal("obj2 should have a forwarding address computed")
	}
	if dest1.ToAddress() != region {
		t.Fatalf("first live object should forward to region start, got %v", dest1)
	}
	if dest2.ToAddress() != region.Add(64) {
		t.Fatalf("second live object should forward right after the first's footprint, got %v", dest2)
	}

	s.Compact()
	if s.pr.Cursor() != uintptr(region.Add(128)) {
		t.Fatalf("cursor after compact = %#x, want %#x", s.pr.Cursor(), uintptr(region.Add(128)))
	}
}

func TestCompressorSpaceForwardingMatchesBitmapPopcount(t *testing.T) {
	sftMap := sft.NewMap(1024)
	region := address.FromUintptrUnsafe(0x7000_0000)
	pr := pageresource.NewContiguous(uintptr(region), 1<<20, nil, 9)
	model := fakeModel{fixedSize: 16}
	s := NewCompressorSpace("compressor", 9, nil, sftMap, pr, region, 1<<20, model)

	s.Prepare()
	// Two objects in the same 512-byte block, and one in the next block;
	// each 16-byte object marks two words.
	obj1 := address.FromAddressUnsafe(region.Add(0))
	obj2 := address.FromAddressUnsafe(region.Add(128))
	obj3 := address.FromAddressUnsafe(region.Add(compBlockBytes + 64))
	s.TraceObject(obj1)
	s.TraceObject(obj2)
	s.TraceObject(obj3)
	s.ComputeForwardingAddresses()

	d1, _ := s.GetForwardedObject(obj1)
	d2, _ := s.GetForwardedObject(obj2)
	d3, _ := s.GetForwardedObject(obj3)
	if d1.ToAddress() != region {
		t.Fatalf("obj1 forwards to %v, want region start", d1)
	}
	if d2.ToAddress() != region.Add(2*compWordBytes) {
		t.Fatalf("obj2 forwards to %v, want region+%d", d2, 2*compWordBytes)
	}
	if d3.ToAddress() != region.Add(4*compWordBytes) {
		t.Fatalf("obj3 forwards to %v, want region+%d", d3, 4*compWordBytes)
	}
}
