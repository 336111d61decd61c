package space

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/sidemetadata"
)

const (
	forwardingNotForwarded   uint64 = 0
	forwardingBeingForwarded uint64 = 1
	forwardingForwarded      uint64 = 2
)

// ForwardingWord is the two-field per-object forwarding state every
// copying space consults: a 2-bit state (NotForwarded/BeingForwarded/
// Forwarded) and, once forwarded, a full-word forwarding pointer. Every
// moving space in a heap shares one instance, since an object lives in
// exactly one moving space at a time and the state must be visible no
// matter which space's TraceObject observes it first (e.g. a nursery
// object forwarded by a full-heap trace).
type ForwardingWord struct {
	state   *sidemetadata.Spec
	pointer *sidemetadata.Spec
}

// NewForwardingWord allocates the global forwarding-state and
// forwarding-pointer specs, one bit pair and one word per 8-byte-aligned
// object slot.
func NewForwardingWord() *ForwardingWord {
	return &ForwardingWord{
		state:   sidemetadata.NewSpec("object.fwdstate", 2, 3, sidemetadata.Global),
		pointer: sidemetadata.NewSpec("object.fwdptr", 64, 3, sidemetadata.Global),
	}
}

// Forward attempts to become the thread responsible for copying obj. If
// it wins the race it returns isForwarder=true and the caller must copy
// obj and call Publish. If it loses, it spins until the winner publishes
// and returns the winner's new reference directly.
func (f *ForwardingWord) Forward(obj address.ObjectReference) (isForwarder bool, result address.ObjectReference) {
	addr := obj.ToAddress()
	for {
		switch f.state.LoadAtomic(addr) {
		case forwardingNotForwarded:
			if f.state.CompareExchange(addr, forwardingNotForwarded, forwardingBeingForwarded) {
				return true, address.NullObjectReference
			}
		case forwardingForwarded:
			ptr := f.pointer.LoadAtomic(addr)
			return false, address.FromAddressUnsafe(address.FromUintptrUnsafe(uintptr(ptr)))
		default: // BeingForwarded: another thread is mid-copy.
		}
	}
}

// Publish records newRef as obj's forwarding pointer and transitions its
// state to Forwarded, releasing any threads spinning in Forward.
func (f *ForwardingWord) Publish(obj, newRef address.ObjectReference) {
	addr := obj.ToAddress()
	f.pointer.StoreAtomic(addr, uint64(uintptr(newRef.ToAddress())))
	f.state.StoreAtomic(addr, forwardingForwarded)
}

// Peek reports obj's forwarded reference without blocking, or ok=false if
// obj is not (yet, or ever) forwarded. Used by IsLive/GetForwardedObject,
// which must never spin on a concurrent copy in progress.
func (f *ForwardingWord) Peek(obj address.ObjectReference) (address.ObjectReference, bool) {
	addr := obj.ToAddress()
	if f.state.LoadAtomic(addr) != forwardingForwarded {
		return address.NullObjectReference, false
	}
	ptr := f.pointer.LoadAtomic(addr)
	return address.FromAddressUnsafe(address.FromUintptrUnsafe(uintptr(ptr))), true
}

// ResetRange clears the forwarding state of every object slot within
// [start, start+bytes) back to NotForwarded in one bulk operation,
// called by a copying space's Release on its own address range once
// that range has been fully vacated as from-space. Forwarding state is
// side metadata keyed purely by address, and heap chunks stay mapped for
// the program's life, so without this the state bits left behind by this
// cycle's forwarding would still read Forwarded the next time this range
// becomes from-space again — misdirecting TraceObject to a stale pointer
// for a brand-new, unrelated object. start and bytes must both be
// multiples of the spec's region size (8 bytes), which every
// chunk/page-aligned region already is.
func (f *ForwardingWord) ResetRange(start address.Address, bytes uintptr) {
	f.state.BzeroMetadata(start, bytes)
}
