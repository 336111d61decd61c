package barrier

import (
	"unsafe"

	"testing"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/slot"
)

type recordingSink struct {
	enqueued []address.ObjectReference
}

func (s *recordingSink) Enqueue(obj address.ObjectReference) {
	s.enqueued = append(s.enqueued, obj)
}

func fakeRef(raw uintptr) address.ObjectReference {
	return address.FromAddress(address.FromUintptrUnsafe(raw))
}

func TestObjectBarrierLogsOnce(t *testing.T) {
	sink := &recordingSink{}
	b := &ObjectBarrier{Logged: NewLoggedBitSpec(), Sink: sink}

	obj := fakeRef(0x9000_0000)
	var word uintptr
	s := slot.Simple{At: address.FromPointer(unsafe.Pointer(&word))}
	target := fakeRef(0x9000_1000)

	b.ObjectReferenceWrite(obj, s, target)
	b.ObjectReferenceWrite(obj, s, target)

	if len(sink.enqueued) != 1 {
		t.Fatalf("object was enqueued %d times, want exactly 1", len(sink.enqueued))
	}
	if sink.enqueued[0] != obj {
		t.Fatalf("enqueued %v, want %v", sink.enqueued[0], obj)
	}
	got, ok := s.Load()
	if !ok || got != target {
		t.Fatalf("slot after write = (%v,%v), want (%v,true)", got, ok, target)
	}
}

func TestNoBarrierPerformsStore(t *testing.T) {
	var b NoBarrier
	var word uintptr
	s := slot.Simple{At: address.FromPointer(unsafe.Pointer(&word))}
	b.ObjectReferenceWrite(fakeRef(1), s, fakeRef(2))
	got, ok := s.Load()
	if !ok || got != fakeRef(2) {
		t.Fatalf("NoBarrier should still perform the store, got (%v,%v)", got, ok)
	}
}
