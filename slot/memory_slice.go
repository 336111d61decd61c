package slot

import "golang.org/x/gcmm/address"

// MemorySlice abstracts a contiguous run of slots, such as an array body,
// for bulk barrier operations. A binding that arranges arrays as
// contiguous Simple slots can use ContiguousSlice; others supply their
// own.
type MemorySlice interface {
	Owner() address.ObjectReference
	Start() address.Address
	Bytes() uintptr
	IterSlots(fn func(Slot))
	// Copy transfers the slots described by src into the region this
	// slice describes, for the combined memmove-plus-barrier that array
	// copies need (so the barrier only has to scan the destination once).
	Copy(src MemorySlice)
}

// ContiguousSlice is a MemorySlice over a run of equally-sized Simple
// slots, the common case for a binding whose arrays are plain pointer
// arrays.
type ContiguousSlice struct {
	OwnerRef  address.ObjectReference
	Base      address.Address
	NumSlots  int
	SlotBytes uintptr
}

func (c ContiguousSlice) Owner() address.ObjectReference { return c.OwnerRef }
func (c ContiguousSlice) Start() address.Address         { return c.Base }
func (c ContiguousSlice) Bytes() uintptr                 { return uintptr(c.NumSlots) * c.SlotBytes }

func (c ContiguousSlice) IterSlots(fn func(Slot)) {
	for i := 0; i < c.NumSlots; i++ {
		fn(Simple{At: c.Base.Add(uintptr(i) * c.SlotBytes)})
	}
}

func (c ContiguousSlice) Copy(src MemorySlice) {
	other, ok := src.(ContiguousSlice)
	if !ok || other.SlotBytes != c.SlotBytes {
		// Fall back to a slot-at-a-time copy for heterogeneous slices.
		i := 0
		src.IterSlots(func(s Slot) {
			dst := Simple{At: c.Base.Add(uintptr(i) * c.SlotBytes)}
			if ref, ok := s.Load(); ok {
				dst.Store(ref)
			} else {
				dst.At.StoreUintptr(0)
			}
			i++
		})
		return
	}
	n := c.NumSlots
	if other.NumSlots < n {
		n = other.NumSlots
	}
	for i := 0; i < n; i++ {
		v := other.Base.Add(uintptr(i) * c.SlotBytes).LoadUintptr()
		c.Base.Add(uintptr(i) * c.SlotBytes).StoreUintptr(v)
	}
}
