// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package address provides zero-overhead wrappers over raw machine
// addresses. Address supports arithmetic; ObjectReference does not.
// Construction of either type from a raw integer is explicit and named
// so that callers cannot accidentally manufacture an invalid value.
package address

import (
	"sync/atomic"
	"unsafe"
)

// Address denotes a byte address, valid or not. It is the same size as a
// machine word and carries no bounds information of its own; whether an
// Address is actually backed by mapped memory is a property of the heap,
// not of the Address.
type Address uintptr

// ByteSize is a non-negative byte count.
type ByteSize = uintptr

// ByteOffset is a signed byte count.
type ByteOffset = int

// ZeroAddress is the null sentinel. It is unsafe: a ZeroAddress is never a
// valid heap address and code that produces one must know that.
const ZeroAddress = Address(0)

// MaxAddress is the maximum representable address, used as a sentinel for
// "not yet found" style results. Like ZeroAddress it is never valid.
const MaxAddress = Address(^uintptr(0))

// FromUintptrUnsafe constructs an Address from a raw integer. The caller
// must know the value denotes a real or intentionally-sentinel address;
// this function performs no validation.
func FromUintptrUnsafe(raw uintptr) Address { return Address(raw) }

// FromPointer constructs an Address from a Go pointer.
func FromPointer(p unsafe.Pointer) Address { return Address(uintptr(p)) }

// ToPointer converts a back to an unsafe.Pointer for use by the binding.
func (a Address) ToPointer() unsafe.Pointer { return unsafe.Pointer(a) }

// IsZero reports whether a is the null sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Add returns a+size.
func (a Address) Add(size ByteSize) Address { return a + Address(size) }

// AddOffset returns a+offset, where offset may be negative.
func (a Address) AddOffset(offset ByteOffset) Address { return Address(int(a) + offset) }

// Sub returns a-b. It panics if b > a, matching the source invariant that
// address subtraction only makes sense when the first operand is the
// higher address.
func (a Address) Sub(b Address) ByteSize {
	if a < b {
		panic("address: Sub of a larger address from a smaller one")
	}
	return ByteSize(a - b)
}

// Offset returns a-b as a signed value, permitting b > a.
func (a Address) Offset(b Address) ByteOffset { return int(a) - int(b) }

// AlignDown rounds a down to the nearest multiple of align, which must be
// a power of two.
func (a Address) AlignDown(align ByteSize) Address {
	return Address(uintptr(a) &^ (align - 1))
}

// AlignUp rounds a up to the nearest multiple of align, which must be a
// power of two.
func (a Address) AlignUp(align ByteSize) Address {
	return Address(uintptr(a)+align-1) & ^Address(align-1)
}

// IsAligned reports whether a is a multiple of align.
func (a Address) IsAligned(align ByteSize) bool {
	return uintptr(a)&(align-1) == 0
}

// Shift returns a shifted by n elements of size elemSize; elemSize*n may be
// negative.
func (a Address) Shift(elemSize ByteSize, n int) Address {
	return a.AddOffset(int(elemSize) * n)
}

// And is a & mask, used to test low-order tag bits.
func (a Address) And(mask uintptr) uintptr { return uintptr(a) & mask }

// Shr is a >> shift, used to compute table indices from an address.
func (a Address) Shr(shift uint) uintptr { return uintptr(a) >> shift }

func (a Address) String() string {
	const hex = "0123456789abcdef"
	var buf [2 + 16]byte
	buf[0], buf[1] = '0', 'x'
	v := uintptr(a)
	for i := len(buf) - 1; i >= 2; i-- {
		buf[i] = hex[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

// LoadUint8 reads a byte from a. The caller must know a is readable.
func (a Address) LoadUint8() uint8 { return *(*uint8)(a.ToPointer()) }

// LoadUint32 reads a uint32 from a. a must be 4-byte aligned and readable.
func (a Address) LoadUint32() uint32 { return *(*uint32)(a.ToPointer()) }

// LoadUint64 reads a uint64 from a. a must be 8-byte aligned and readable.
func (a Address) LoadUint64() uint64 { return *(*uint64)(a.ToPointer()) }

// LoadUintptr reads a word from a.
func (a Address) LoadUintptr() uintptr { return *(*uintptr)(a.ToPointer()) }

// StoreUint8 writes a byte to a.
func (a Address) StoreUint8(v uint8) { *(*uint8)(a.ToPointer()) = v }

// StoreUint32 writes a uint32 to a.
func (a Address) StoreUint32(v uint32) { *(*uint32)(a.ToPointer()) = v }

// StoreUint64 writes a uint64 to a.
func (a Address) StoreUint64(v uint64) { *(*uint64)(a.ToPointer()) = v }

// StoreUintptr writes a word to a.
func (a Address) StoreUintptr(v uintptr) { *(*uintptr)(a.ToPointer()) = v }

// atomic32 views a as an *int32 for sync/atomic. a must be 4-byte aligned.
func (a Address) atomic32() *int32 { return (*int32)(a.ToPointer()) }

// atomic64 views a as an *int64 for sync/atomic. a must be 8-byte aligned.
func (a Address) atomic64() *int64 { return (*int64)(a.ToPointer()) }

// LoadUint32Atomic does an atomic load of the word at a.
func (a Address) LoadUint32Atomic() uint32 {
	return uint32(atomic.LoadInt32(a.atomic32()))
}

// StoreUint32Atomic does an atomic store of v to a.
func (a Address) StoreUint32Atomic(v uint32) {
	atomic.StoreInt32(a.atomic32(), int32(v))
}

// CompareAndSwapUint32 performs a CAS on the word at a.
func (a Address) CompareAndSwapUint32(old, new uint32) bool {
	return atomic.CompareAndSwapInt32(a.atomic32(), int32(old), int32(new))
}

// FetchOrUint32 atomically ORs mask into the word at a and returns the old
// value.
func (a Address) FetchOrUint32(mask uint32) uint32 {
	p := a.atomic32()
	for {
		old := atomic.LoadInt32(p)
		if atomic.CompareAndSwapInt32(p, old, old|int32(mask)) {
			return uint32(old)
		}
	}
}

// FetchAndUint32 atomically ANDs mask into the word at a and returns the
// old value.
func (a Address) FetchAndUint32(mask uint32) uint32 {
	p := a.atomic32()
	for {
		old := atomic.LoadInt32(p)
		if atomic.CompareAndSwapInt32(p, old, old&int32(mask)) {
			return uint32(old)
		}
	}
}

// LoadUint64Atomic does an atomic load of the 64-bit word at a.
func (a Address) LoadUint64Atomic() uint64 {
	return uint64(atomic.LoadInt64(a.atomic64()))
}

// StoreUint64Atomic does an atomic store of v to a.
func (a Address) StoreUint64Atomic(v uint64) {
	atomic.StoreInt64(a.atomic64(), int64(v))
}

// CompareAndSwapUint64 performs a CAS on the 64-bit word at a.
func (a Address) CompareAndSwapUint64(old, new uint64) bool {
	return atomic.CompareAndSwapInt64(a.atomic64(), int64(old), int64(new))
}
