// Package slot abstracts the binding-chosen representation of a pointer
// field: a Slot is a pointer-sized value type that knows how to load and
// store an ObjectReference through whatever layout the binding's object
// model actually uses, including tag bits or offsetted/compressed forms.
package slot

import "golang.org/x/gcmm/address"

// Slot is a value type the binding supplies implementations of. Load
// returns (ref, false) for a null or tagged non-reference slot so callers
// never confuse "points at the null sentinel" with "does not hold a
// reference at all".
type Slot interface {
	Load() (address.ObjectReference, bool)
	Store(address.ObjectReference)
}

// Simple is a plain, untagged pointer-sized slot: the most common case,
// and the only one most bindings need to supply.
type Simple struct {
	At address.Address
}

func (s Simple) Load() (address.ObjectReference, bool) {
	raw := s.At.LoadUintptr()
	if raw == 0 {
		return address.NullObjectReference, false
	}
	return address.FromAddressUnsafe(address.FromUintptrUnsafe(raw)), true
}

func (s Simple) Store(ref address.ObjectReference) {
	s.At.StoreUintptr(uintptr(ref.ToAddress()))
}

// Offsetted is a slot that stores a pointer to the interior of an object,
// offset bytes from the object's base, as some VMs do for tagged
// interior pointers inside arrays or compound values.
type Offsetted struct {
	At     address.Address
	Offset int
}

func (s Offsetted) Load() (address.ObjectReference, bool) {
	raw := s.At.LoadUintptr()
	if raw == 0 {
		return address.NullObjectReference, false
	}
	base := address.FromUintptrUnsafe(raw).AddOffset(-s.Offset)
	return address.FromAddressUnsafe(base), true
}

func (s Offsetted) Store(ref address.ObjectReference) {
	s.At.StoreUintptr(uintptr(ref.ToAddress().AddOffset(s.Offset)))
}

// Tagged is a slot whose low bits carry a VM-defined tag alongside the
// pointer; Load/Store preserve whatever tag bits are already present.
type Tagged struct {
	At      address.Address
	TagMask uintptr
}

func (s Tagged) Load() (address.ObjectReference, bool) {
	raw := s.At.LoadUintptr()
	untagged := raw &^ s.TagMask
	if untagged == 0 {
		return address.NullObjectReference, false
	}
	return address.FromAddressUnsafe(address.FromUintptrUnsafe(untagged)), true
}

func (s Tagged) Store(ref address.ObjectReference) {
	tag := s.At.LoadUintptr() & s.TagMask
	s.At.StoreUintptr(uintptr(ref.ToAddress()) | tag)
}

// Compressed is a slot holding a 32-bit reference relative to a shared
// heap base, the representation a 64-bit VM uses to halve pointer field
// size.
type Compressed struct {
	At   address.Address
	Base address.Address
}

func (s Compressed) Load() (address.ObjectReference, bool) {
	v := s.At.LoadUint32()
	if v == 0 {
		return address.NullObjectReference, false
	}
	return address.FromAddressUnsafe(s.Base.Add(uintptr(v))), true
}

func (s Compressed) Store(ref address.ObjectReference) {
	s.At.StoreUint32(uint32(ref.ToAddress().Sub(s.Base)))
}
