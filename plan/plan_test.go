package plan

import (
	"testing"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/space"
	"golang.org/x/gcmm/vmmap"
)

// fakeModel mirrors space package's test double: fixed-size objects,
// copying never touches the synthetic unmapped addresses these tests use.
type fakeModel struct{ fixedSize uintptr }

func (m fakeModel) BytesRequiredWhenCopied(address.ObjectReference) uintptr { return m.fixedSize }
func (m fakeModel) CopyObject(obj address.ObjectReference, to address.Address) address.ObjectReference {
	return address.FromAddressUnsafe(to)
}

type recordingSink struct{ enqueued []address.ObjectReference }

func (s *recordingSink) Enqueue(obj address.ObjectReference) { s.enqueued = append(s.enqueued, obj) }

func newCommonSpaces(t *testing.T, sftMap *sft.Map, immortalDesc, losDesc vmmap.SpaceDescriptor) (*space.ImmortalSpace, *space.LargeObjectSpace) {
	t.Helper()
	immortalPR := pageresource.NewContiguous(0x9000_0000, 1<<20, nil, immortalDesc)
	immortal := space.NewImmortalSpace("immortal", immortalDesc, nil, sftMap, immortalPR)

	vm := vmmap.NewMap32(64)
	vm.AllocateContiguousChunks(250, 1, 0) // keep the LOS region off address zero
	base := vm.AllocateContiguousChunks(losDesc, 8, 0)
	losPR := pageresource.NewFreeList(base, vm, losDesc)
	los := space.NewLargeObjectSpace("los", losDesc, vm, sftMap, losPR)
	return immortal, los
}

func TestNoGCPlanNeverRequestsCollection(t *testing.T) {
	sftMap := sft.NewMap(1024)
	immortal, los := newCommonSpaces(t, sftMap, 1, 2)
	p := NewNoGCPlan(NewBasePlan(1<<20, 0, nil), immortal, los)

	if p.CollectionRequired(true) {
		t.Fatal("NoGC must never request a collection, even when told spaceFull")
	}

	mapping := p.GetAllocatorMapping()
	if mapping[alloc.Default] != alloc.SelectorImmortal {
		t.Fatalf("NoGC's Default semantic = %v, want SelectorImmortal", mapping[alloc.Default])
	}

	m := mutator.New(0, mapping, barrier.NoBarrier{})
	p.BindMutator(m)
	addr := m.Alloc(alloc.Default, 64, 8, 0)
	if addr.IsZero() {
		t.Fatal("NoGC mutator allocation failed")
	}
}

func TestSemiSpacePlanSwapsHemispheresAndForwards(t *testing.T) {
	sftMap := sft.NewMap(1024)
	immortal, los := newCommonSpaces(t, sftMap, 1, 2)
	fwd := space.NewForwardingWord()
	model := fakeModel{fixedSize: 32}

	prA := pageresource.NewContiguous(0xA000_0000, 1<<20, nil, 3)
	a := space.NewCopySpace("hemiA", 3, nil, sftMap, prA, fwd, model)
	prB := pageresource.NewContiguous(0xB000_0000, 1<<20, nil, 4)
	b := space.NewCopySpace("hemiB", 4, nil, sftMap, prB, fwd, model)

	p := NewSemiSpacePlan(NewBasePlan(1<<20, 0, nil), immortal, los, a, b)

	mapping := p.GetAllocatorMapping()
	if mapping[alloc.Default] != alloc.SelectorBump {
		t.Fatalf("SemiSpace's Default semantic = %v, want SelectorBump", mapping[alloc.Default])
	}
	m := mutator.New(0, mapping, barrier.NoBarrier{})
	p.BindMutator(m)

	obj := address.FromAddressUnsafe(address.FromUintptrUnsafe(0xA000_0000))

	inHemisphere := func(addr address.Address, regionStart uintptr) bool {
		raw := uintptr(addr)
		return raw >= regionStart && raw < regionStart+(1<<20)
	}

	p.Prepare()
	newRef := a.TraceObject(obj)
	if newRef == obj {
		t.Fatal("tracing a from-space object should have forwarded it")
	}
	if !inHemisphere(newRef.ToAddress(), 0xB000_0000) {
		t.Fatal("forwarded object should land in the other hemisphere")
	}
	p.Release()

	// After Release, active flipped: a mutator allocation should now land
	// in hemisphere b, the one survivors were just forwarded into.
	p.RebindMutator(m)
	addr := m.Alloc(alloc.Default, 16, 8, 0)
	if addr.IsZero() {
		t.Fatal("post-swap allocation failed")
	}
	if !inHemisphere(addr, 0xB000_0000) {
		t.Fatal("post-swap allocation should land in hemisphere b")
	}
}

func TestMarkCompactPlanDrivesEitherCompactingSpace(t *testing.T) {
	sftMap := sft.NewMap(1024)
	model := fakeModel{fixedSize: 64}

	cases := []struct {
		name string
		make func() CompactingSpace
	}{
		{"markcompact", func() CompactingSpace {
			region := address.FromUintptrUnsafe(0xC000_0000)
			pr := pageresource.NewContiguous(uintptr(region), 1<<20, nil, 5)
			return space.NewMarkCompactSpace("mc", 5, nil, sftMap, pr, region, 1<<20, model)
		}},
		{"compressor", func() CompactingSpace {
			region := address.FromUintptrUnsafe(0xD000_0000)
			pr := pageresource.NewContiguous(uintptr(region), 1<<20, nil, 6)
			return space.NewCompressorSpace("compressor", 6, nil, sftMap, pr, region, 1<<20, model)
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			immortal, los := newCommonSpaces(t, sft.NewMap(1024), 10, 11)
			cs := c.make()
			p := NewMarkCompactPlan(NewBasePlan(1<<20, 0, nil), immortal, los, cs)

			p.Prepare()
			start, _, ok := cs.AcquireRegion(64)
			if !ok {
				t.Fatal("AcquireRegion failed")
			}
			obj := address.FromAddressUnsafe(start)
			cs.TraceObject(obj)
			p.ComputeForwardingAddresses()
			if _, ok := cs.GetForwardedObject(obj); !ok {
				t.Fatal("expected a forwarding address after ComputeForwardingAddresses")
			}
			p.Compact()
			p.Release()
		})
	}
}

func TestStickyImmixPlanPromotesNurseryIntoMature(t *testing.T) {
	sftMap := sft.NewMap(1024)
	model := fakeModel{fixedSize: immixLineBytesForTest}

	nurseryPR := pageresource.NewContiguous(0xE000_0000, 1<<20, nil, 7)
	nursery := space.NewCopySpace("nursery", 7, nil, sftMap, nurseryPR, space.NewForwardingWord(), model)

	maturePR := pageresource.NewBlock(0xF000_0000, 4*vmmap.BytesInChunk, 32*1024, nil, 8)
	mature := space.NewImmixSpace("mature", 8, nil, sftMap, maturePR, model)
	if !mature.AcquireBlock() {
		t.Fatal("AcquireBlock failed")
	}

	immortal, los := newCommonSpaces(t, sftMap, 20, 21)
	sink := &recordingSink{}
	p := NewStickyImmixPlan(NewBasePlan(1<<20, 0, nil), immortal, los, nursery, mature, sink)
	p.SetFullHeap(false)

	obj := address.FromAddressUnsafe(address.FromUintptrUnsafe(0xE000_0000))
	p.Prepare()
	newRef := nursery.TraceObject(obj)
	if newRef == obj {
		t.Fatal("nursery object should have been promoted")
	}
	if !mature.IsLive(newRef) {
		t.Fatal("promoted object should be marked live in the mature space")
	}
	p.Release()
}

// immixLineBytesForTest mirrors the unexported immixLineBytes constant
// from the space package (256), kept local since plan_test.go lives
// outside that package.
const immixLineBytesForTest = 256
