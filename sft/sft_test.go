package sft

import (
	"testing"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/vmmap"
)

type fakeSpace struct {
	name string
}

func (s *fakeSpace) Name() string                       { return s.name }
func (s *fakeSpace) IsLive(address.ObjectReference) bool { return true }
func (s *fakeSpace) IsMovable() bool                     { return false }
func (s *fakeSpace) IsInSpace(address.Address) bool      { return true }
func (s *fakeSpace) InitializeObjectMetadata(address.ObjectReference, bool) {}
func (s *fakeSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}
func (s *fakeSpace) TraceObject(obj address.ObjectReference) address.ObjectReference { return obj }

func TestSetAndGet(t *testing.T) {
	m := NewMap(16)
	sp := &fakeSpace{name: "test"}
	start := address.FromUintptrUnsafe(3 * vmmap.BytesInChunk)
	m.Set(start, 2*vmmap.BytesInChunk, sp)

	if got := m.Get(start); got != sp {
		t.Fatalf("Get(start) = %v, want %v", got, sp)
	}
	if got := m.Get(start.Add(vmmap.BytesInChunk + 10)); got != sp {
		t.Fatal("second chunk in the range was not assigned to sp")
	}
	if got := m.Get(start.Add(2 * vmmap.BytesInChunk)); got == sp {
		t.Fatal("chunk beyond the assigned range should not resolve to sp")
	}
}

func TestUnassignedChunkIsNotLive(t *testing.T) {
	m := NewMap(4)
	addr := address.FromUintptrUnsafe(vmmap.BytesInChunk)
	obj := address.FromAddress(addr)
	if m.IsLive(obj) {
		t.Fatal("an object in an unassigned chunk must never be live")
	}
}

func TestConflictingAssignmentPanics(t *testing.T) {
	m := NewMap(4)
	a := &fakeSpace{name: "a"}
	b := &fakeSpace{name: "b"}
	start := address.FromUintptrUnsafe(0)
	m.Set(start, vmmap.BytesInChunk, a)

	defer func() {
		if recover() == nil {
			t.Fatal("Set did not panic on a conflicting chunk assignment")
		}
	}()
	m.Set(start, vmmap.BytesInChunk, b)
}

func TestClear(t *testing.T) {
	m := NewMap(4)
	sp := &fakeSpace{name: "test"}
	start := address.FromUintptrUnsafe(0)
	m.Set(start, vmmap.BytesInChunk, sp)
	m.Clear(start, vmmap.BytesInChunk)
	if got := m.Get(start); got == sp {
		t.Fatal("Get after Clear should not resolve to the old owner")
	}
}
