// Package vm declares the contract a binding implements so the core never
// needs to know anything about object layout, thread management, or how
// roots are found: an ObjectModel for relocating and sizing objects, a
// Scanning trait for walking references, and a Collection trait for the
// handful of callbacks a GC cycle needs from the embedding runtime.
package vm

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/slot"
)

// TLS is a binding's opaque per-thread handle, threaded through every
// call that needs to identify which mutator or native thread is asking —
// the core never interprets its value, only passes it back.
type TLS uintptr

// SlotVisitor is passed to Scanning.ScanObject/ScanThreadRoots/
// ScanVMSpecificRoots; the binding calls VisitSlot once per reference
// slot it finds, in any order, and the core does the rest (load, trace,
// store back the possibly-forwarded result).
type SlotVisitor interface {
	VisitSlot(s slot.Slot)
}

// ObjectModel is the binding-supplied trait the core's moving and
// non-moving spaces use to interrogate and relocate objects without
// knowing the binding's object layout.
type ObjectModel interface {
	// RefToAddress returns the address a side-metadata lookup should use
	// for obj — usually, but not necessarily, obj's own address.
	RefToAddress(obj address.ObjectReference) address.Address
	// RefToObjectStart returns the address of the first byte of obj's
	// storage, used when a policy needs to copy or zero the whole object.
	RefToObjectStart(obj address.ObjectReference) address.Address
	// CurrentSize returns obj's footprint at its current location.
	CurrentSize(obj address.ObjectReference) uintptr
	// BytesRequiredWhenCopied returns how many bytes obj would occupy if
	// copied now — usually equal to CurrentSize, but a binding may grow
	// or shrink an object as part of copying it (e.g. hash-state removal).
	BytesRequiredWhenCopied(obj address.ObjectReference) uintptr
	// CopyObject copies obj to the freshly allocated region starting at
	// to and returns the reference at its new location.
	CopyObject(obj address.ObjectReference, to address.Address) address.ObjectReference
}

// Scanning is the binding-supplied trait the core uses to discover
// references: inside an object's fields, on a mutator's stack/registers,
// and in any binding-specific global root set (class tables, interned
// constants).
type Scanning interface {
	ScanObject(obj address.ObjectReference, visitor SlotVisitor)
	ScanThreadRoots(tls TLS, visitor SlotVisitor)
	ScanVMSpecificRoots(visitor SlotVisitor)
}

// Collection is the binding-supplied trait the core calls into to
// coordinate stop-the-world phases, provision GC worker threads, and
// report unrecoverable allocation failure.
type Collection interface {
	// StopAllMutators must not return until every mutator thread is
	// parked at a safepoint; the core's Prepare bucket assumes this.
	StopAllMutators(tls TLS)
	// ResumeMutators releases every mutator parked by StopAllMutators (or
	// blocked in BlockForGC), called once a cycle's Final bucket runs.
	ResumeMutators(tls TLS)
	// BlockForGC is called by a mutator thread that triggered a
	// collection from inside alloc's slow path; it must not return until
	// ResumeMutators has been called for the cycle it blocked for.
	BlockForGC(tls TLS)
	// SpawnGCThread asks the binding to start a native thread that calls
	// run with a fresh TLS handle and keeps calling it for the process's
	// lifetime (each call drives one GC cycle's share of worker work).
	SpawnGCThread(tls TLS, ordinal int, run func(TLS))
	// OutOfMemory reports an error kind the core could not recover from
	// on its own; the binding decides whether to abort or raise a
	// language-level exception.
	OutOfMemory(tls TLS, kind ErrorKind)
}

// ErrorKind enumerates the allocation-failure classes Collection.OutOfMemory
// reports, per the core's error-handling design.
type ErrorKind int

const (
	// HeapOutOfMemory means an allocation failed even after a full GC —
	// the heap is genuinely full under the configured size.
	HeapOutOfMemory ErrorKind = iota
	// MmapOutOfMemory means the OS refused to back a region with real
	// memory — treated as fatal regardless of configured heap size.
	MmapOutOfMemory
)

func (k ErrorKind) String() string {
	switch k {
	case HeapOutOfMemory:
		return "heap out of memory"
	case MmapOutOfMemory:
		return "mmap out of memory"
	default:
		return "unknown error kind"
	}
}
