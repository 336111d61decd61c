package mutator

import (
	"testing"
	"unsafe"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/slot"
)

type stubRefiller struct{}

func (stubRefiller) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
	return 0, 0, false
}

func TestAllocDispatchesThroughMapping(t *testing.T) {
	bump := alloc.NewBumpAllocator(stubRefiller{})
	bump.Rebind(address.FromUintptrUnsafe(0x9000), address.FromUintptrUnsafe(0x9000+64))

	mapping := alloc.AllocatorMapping{alloc.Default: alloc.SelectorBump}
	m := New(0, mapping, barrier.NoBarrier{})
	m.BindAllocator(alloc.SelectorBump, bump)

	got := m.Alloc(alloc.Default, 16, 8, 0)
	if got != address.FromUintptrUnsafe(0x9000) {
		t.Fatalf("Alloc = %v, want 0x9000", got)
	}
}

func TestAllocPanicsOnUnmappedSemantic(t *testing.T) {
	m := New(0, alloc.AllocatorMapping{}, barrier.NoBarrier{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unmapped semantic")
		}
	}()
	m.Alloc(alloc.Los, 16, 8, 0)
}

type countingSink struct{ n int }

func (c *countingSink) Enqueue(address.ObjectReference) { c.n++ }

func TestWriteReferenceGoesThroughBarrier(t *testing.T) {
	sink := &countingSink{}
	b := &barrier.ObjectBarrier{Logged: barrier.NewLoggedBitSpec(), Sink: sink}
	m := New(0, alloc.AllocatorMapping{}, b)

	var cell, obj uintptr
	cellAddr := address.FromPointer(unsafe.Pointer(&cell))
	s := slot.Simple{At: cellAddr}
	src := address.FromAddress(address.FromPointer(unsafe.Pointer(&obj)))
	target := address.FromAddress(cellAddr)

	m.WriteReference(src, s, target)
	if sink.n != 1 {
		t.Fatalf("sink.n = %d, want 1 after first logged write", sink.n)
	}
	m.WriteReference(src, s, target)
	if sink.n != 1 {
		t.Fatalf("sink.n = %d, want 1 still after second write to same object", sink.n)
	}
}
