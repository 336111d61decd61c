// Package barrier implements write barriers: the mutator-side hooks a
// generational or concurrent plan uses to notice cross-generation or
// cross-region writes as they happen, rather than having to rediscover
// them by re-scanning the whole heap at the next collection.
package barrier

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/slot"
)

// Barrier is the mutator-facing contract a Plan installs into every
// Mutator. ObjectReferenceWrite fires on a single pointer-field store;
// MemorySliceCopy fires once for a bulk array copy so the barrier can
// batch its remembered-set work instead of revisiting every slot.
type Barrier interface {
	ObjectReferenceWrite(src address.ObjectReference, s slot.Slot, target address.ObjectReference)
	MemorySliceCopy(dst, src slot.MemorySlice)
	// Flush pushes any buffered remembered-set entries to the mutator's
	// owning plan; called at the end of a mutator's allocation slow path
	// and at each GC's StopMutators bucket.
	Flush()
}

// NoBarrier is a zero-cost stub for plans with a single generation: every
// write is already visible to the next full-heap trace, so there is
// nothing to record.
type NoBarrier struct{}

func (NoBarrier) ObjectReferenceWrite(_ address.ObjectReference, s slot.Slot, target address.ObjectReference) {
	s.Store(target)
}
func (NoBarrier) MemorySliceCopy(dst, src slot.MemorySlice) { dst.Copy(src) }
func (NoBarrier) Flush()                                    {}

// ModBufferSink receives objects an ObjectBarrier has newly logged, so
// that a GC's ProcessModBuf work packet can scan them as additional roots.
// The Mutator that owns a barrier is the sink in normal operation; tests
// can substitute their own.
type ModBufferSink interface {
	Enqueue(obj address.ObjectReference)
}

// ObjectBarrier is the generational/remembered-set barrier described in
// spec.md §4.10: a per-object "logged" bit in side metadata that a write
// sets (via CAS, so only the first writer per GC cycle pays the cost of
// enqueuing), plus a sink the rest of the mutator drains into its
// mod-buffer.
type ObjectBarrier struct {
	Logged *sidemetadata.Spec
	Sink   ModBufferSink
}

// NewLoggedBitSpec returns the canonical per-object logged-bit spec: one bit per
// 8-byte-aligned object slot, global scope since every generational plan
// shares the same logged-object set.
func NewLoggedBitSpec() *sidemetadata.Spec {
	return sidemetadata.NewSpec("object.logged", 1, 3, sidemetadata.Global)
}

const loggedMask = uint64(1)

func (b *ObjectBarrier) logObject(obj address.ObjectReference) {
	old := b.Logged.FetchOr(obj.ToAddress(), loggedMask)
	if old&loggedMask == 0 {
		b.Sink.Enqueue(obj)
	}
}

// ClearLogged unsets obj's logged bit once its mod-buffer entry has been
// drained and rescanned, so the next write through this barrier logs and
// re-enqueues obj again instead of FetchOr silently finding the bit still
// set from the cycle that already consumed it.
func (b *ObjectBarrier) ClearLogged(obj address.ObjectReference) {
	b.Logged.FetchAnd(obj.ToAddress(), ^loggedMask)
}

func (b *ObjectBarrier) ObjectReferenceWrite(src address.ObjectReference, s slot.Slot, target address.ObjectReference) {
	b.logObject(src)
	s.Store(target)
}

func (b *ObjectBarrier) MemorySliceCopy(dst, src slot.MemorySlice) {
	b.logObject(dst.Owner())
	dst.Copy(src)
}

func (b *ObjectBarrier) Flush() {}
