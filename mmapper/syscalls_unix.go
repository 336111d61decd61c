//go:build unix

package mmapper

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapRaw issues a fixed-address anonymous mmap(2) directly via Syscall6:
// golang.org/x/sys/unix's high-level Mmap wrapper does not expose a
// caller-chosen address, but the heap's VMMap has already reserved
// [start, start+bytes) and requires the mapping to land exactly there.
func mmapRaw(start, bytes uintptr, prot, flags int) error {
	r1, _, errno := unix.Syscall6(unix.SYS_MMAP, start, bytes,
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return fmt.Errorf("mmap [%#x,%#x): %w", start, start+bytes, errno)
	}
	if r1 != start {
		return fmt.Errorf("mmap [%#x,%#x): kernel ignored MAP_FIXED, got %#x", start, start+bytes, r1)
	}
	return nil
}

// mmapFixed commits [start, start+bytes) as readable/writable anonymous
// memory, fixed at the given address. The range must already be reserved
// (quarantined) or otherwise known free, matching the VMMap's contract.
func mmapFixed(start, bytes uintptr) error {
	return mmapRaw(start, bytes,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED)
}

// mmapNoReserve reserves [start, start+bytes) without committing physical
// pages: PROT_NONE keeps the OS from handing these addresses to anyone
// else, but no backing store is allocated until a later mmapFixed.
func mmapNoReserve(start, bytes uintptr) error {
	return mmapRaw(start, bytes,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED|unix.MAP_NORESERVE)
}

// mprotectNone makes [start, start+bytes) inaccessible without unmapping
// it, used by debug builds to fence off fromspace/freed memory.
func mprotectNone(start, bytes uintptr) error {
	return mprotect(start, bytes, unix.PROT_NONE)
}

// mprotectReadWrite restores read/write access to a previously protected
// range.
func mprotectReadWrite(start, bytes uintptr) error {
	return mprotect(start, bytes, unix.PROT_READ|unix.PROT_WRITE)
}

func mprotect(start, bytes uintptr, prot int) error {
	s := unsafe.Slice((*byte)(unsafe.Pointer(start)), bytes)
	if err := unix.Mprotect(s, prot); err != nil {
		return fmt.Errorf("mprotect [%#x,%#x): %w", start, start+bytes, err)
	}
	return nil
}

// munmap releases [start, start+bytes) back to the OS entirely. Used only
// at process teardown; the heap never shrinks a live space during normal
// operation.
func munmap(start, bytes uintptr) error {
	s := unsafe.Slice((*byte)(unsafe.Pointer(start)), bytes)
	if err := unix.Munmap(s); err != nil {
		return fmt.Errorf("munmap [%#x,%#x): %w", start, start+bytes, err)
	}
	return nil
}
