// Package sft implements the Space Function Table: a single chunk-indexed
// table that lets the collector ask "what space owns this address" and
// then dispatch straight to that space's per-object operations, without
// every caller needing a typed reference to the owning space.
package sft

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/vmmap"
)

// SFT is the per-object operation surface every space implements. The
// table dispatches to these through a plain Go interface rather than a
// closed match over space kinds: off the hot allocation path — is_live,
// write-barrier slow paths, root scanning — dynamic dispatch costs nothing
// a caller would notice, and an interface lets new space kinds register
// themselves without the table needing to know their concrete type.
type SFT interface {
	Name() string
	IsLive(obj address.ObjectReference) bool
	IsMovable() bool
	IsInSpace(addr address.Address) bool
	GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool)
	InitializeObjectMetadata(obj address.ObjectReference, alloc bool)
	// TraceObject asks the owning space to process obj during tracing,
	// returning the (possibly forwarded) reference workers should enqueue
	// in its place.
	TraceObject(obj address.ObjectReference) address.ObjectReference
}

// unassigned is a sentinel SFT that fills every untouched chunk slot: it
// reports every object dead, unmovable and outside any space, and panics
// if asked to trace one, matching the source's "an object outside any
// space must never be live" invariant.
type unassigned struct{}

func (unassigned) Name() string                              { return "unassigned" }
func (unassigned) IsLive(address.ObjectReference) bool        { return false }
func (unassigned) IsMovable() bool                            { return false }
func (unassigned) IsInSpace(address.Address) bool             { return false }
func (unassigned) InitializeObjectMetadata(address.ObjectReference, bool) {}
func (unassigned) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}
func (unassigned) TraceObject(obj address.ObjectReference) address.ObjectReference {
	panic(fmt.Sprintf("sft: TraceObject on unassigned chunk for %v", obj))
}

var log = logrus.WithField("component", "sft")

// Map is the global chunk→SFT table. One process-wide instance exists;
// every Space registers the chunks it is granted as they are acquired
// from the VMMap.
type Map struct {
	maxChunks int
	entries   []SFT
}

// NewMap creates a Map covering maxChunks chunks, all initially
// unassigned.
func NewMap(maxChunks int) *Map {
	m := &Map{maxChunks: maxChunks, entries: make([]SFT, maxChunks)}
	for i := range m.entries {
		m.entries[i] = unassigned{}
	}
	return m
}

func chunkIndex(addr address.Address) int {
	return int(addr.Shr(vmmap.LogBytesInChunk))
}

// Set installs sft as the owner of every chunk in [start, start+bytes). It
// panics with a ConflictingSpaceMapping-style message if any chunk in the
// range is already owned by a different, already-assigned space, matching
// §7's fatal-error classification for that condition.
func (m *Map) Set(start address.Address, bytes uintptr, sft SFT) {
	first := chunkIndex(start)
	count := int((bytes + vmmap.BytesInChunk - 1) / vmmap.BytesInChunk)
	for i := 0; i < count; i++ {
		idx := first + i
		existing := m.entries[idx]
		if _, isUnassigned := existing.(unassigned); !isUnassigned && existing != sft {
			log.WithFields(logrus.Fields{"chunk": idx, "existing": existing.Name(), "new": sft.Name()}).
				Error("conflicting space mapping")
			panic(fmt.Sprintf("sft: chunk %d already owned by %q, cannot assign to %q", idx, existing.Name(), sft.Name()))
		}
		m.entries[idx] = sft
	}
}

// Clear resets every chunk in [start, start+bytes) to unassigned.
func (m *Map) Clear(start address.Address, bytes uintptr) {
	first := chunkIndex(start)
	count := int((bytes + vmmap.BytesInChunk - 1) / vmmap.BytesInChunk)
	for i := 0; i < count; i++ {
		m.entries[first+i] = unassigned{}
	}
}

// Get returns the owning SFT for addr, or the unassigned sentinel if no
// space has claimed its chunk.
func (m *Map) Get(addr address.Address) SFT {
	idx := chunkIndex(addr)
	if idx < 0 || idx >= m.maxChunks {
		return unassigned{}
	}
	return m.entries[idx]
}

// IsLive, IsMovable, GetForwardedObject and TraceObject are the dispatch
// surface most callers use: look up the owning space by the object's
// address, then delegate.
func (m *Map) IsLive(obj address.ObjectReference) bool {
	return m.Get(obj.ToAddress()).IsLive(obj)
}

func (m *Map) IsMovable(addr address.Address) bool {
	return m.Get(addr).IsMovable()
}

func (m *Map) TraceObject(obj address.ObjectReference) address.ObjectReference {
	return m.Get(obj.ToAddress()).TraceObject(obj)
}

// IsAssigned reports whether addr's chunk has been claimed by some space,
// as opposed to falling through to the unassigned sentinel.
func (m *Map) IsAssigned(addr address.Address) bool {
	_, isUnassigned := m.Get(addr).(unassigned)
	return !isUnassigned
}
