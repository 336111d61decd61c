//go:build !unix

package mmapper

import "fmt"

func mmapFixed(start, bytes uintptr) error {
	return fmt.Errorf("mmapper: fixed-address mmap is not implemented on this platform")
}

func mmapNoReserve(start, bytes uintptr) error {
	return fmt.Errorf("mmapper: address-range reservation is not implemented on this platform")
}

func mprotectNone(start, bytes uintptr) error {
	return fmt.Errorf("mmapper: mprotect is not implemented on this platform")
}

func mprotectReadWrite(start, bytes uintptr) error {
	return fmt.Errorf("mmapper: mprotect is not implemented on this platform")
}

func munmap(start, bytes uintptr) error {
	return fmt.Errorf("mmapper: munmap is not implemented on this platform")
}
