//go:build unix

package accel

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AllocateHostMemory reserves anonymous page-aligned host memory suitable
// for backing a guest RAM region.
func AllocateHostMemory(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes of guest memory: %w", size, err)
	}
	return mem, nil
}

// FreeHostMemory releases memory obtained from AllocateHostMemory.
func FreeHostMemory(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("release guest memory: %w", err)
	}
	return nil
}

// HostPointer returns the address of the slice's backing store, as needed
// by RAMRegion and the user-backed mapping calls.
func HostPointer(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}
