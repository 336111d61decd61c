package address

// ObjectReference denotes a live object. Unlike Address it never permits
// arithmetic: the only legal operations are conversion to Address (for
// handing to a PageResource/Space that expects raw addresses) and equality.
//
// Invariants: the reference is never zero (FromAddress panics on the zero
// address); its address is aligned to at least the platform word and lies
// within some Space mapped by the heap (both enforced by the binding, not
// by this type).
type ObjectReference uintptr

// NullObjectReference is the sentinel "no object" value. Unlike Address's
// ZeroAddress, code is expected to test for it explicitly via IsNull rather
// than treat it as a valid reference.
const NullObjectReference = ObjectReference(0)

// FromAddress constructs an ObjectReference from an object's start address.
// It panics if addr is the zero address, since a zero ObjectReference would
// violate the never-zero invariant silently.
func FromAddress(addr Address) ObjectReference {
	if addr.IsZero() {
		panic("address: ObjectReference must not be constructed from the zero address")
	}
	return ObjectReference(addr)
}

// FromAddressUnsafe constructs an ObjectReference without the zero check,
// for the one legitimate use (NullObjectReference aside): representing the
// "optional" result of a load that may legitimately be null. Callers must
// check IsNull before using the result as a live reference.
func FromAddressUnsafe(addr Address) ObjectReference { return ObjectReference(addr) }

// IsNull reports whether r is the null sentinel.
func (r ObjectReference) IsNull() bool { return r == NullObjectReference }

// ToAddress converts r to its start Address. This is the only arithmetic
// escape hatch: once converted, normal Address arithmetic applies, but the
// result is no longer type-checked as a live object reference.
func (r ObjectReference) ToAddress() Address { return Address(r) }

func (r ObjectReference) String() string { return r.ToAddress().String() }
