// Package devices provides the MMIO device bus and the devices that hang
// off it.
package devices

import (
	"fmt"
	"sync"
)

// Device handles bus transactions inside its claimed region. Offsets passed
// to the handlers are relative to the region base.
type Device interface {
	Name() string
	ReadMMIO(offset uint64, data []byte) error
	WriteMMIO(offset uint64, data []byte) error
}

type mapping struct {
	base uint64
	size uint64
	dev  Device
}

// Bus routes MMIO transactions to registered devices by guest physical
// address. Accesses that hit no device fail.
type Bus struct {
	mu       sync.RWMutex
	mappings []mapping
}

func NewBus() *Bus {
	return &Bus{}
}

// Add claims [base, base+size) for the device. Overlapping claims are
// rejected.
func (b *Bus) Add(base, size uint64, dev Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.mappings {
		// Unsigned differences keep this correct for regions ending at the
		// top of the address space.
		if base-m.base < m.size || m.base-base < size {
			return fmt.Errorf("bus: %s overlaps %s at 0x%x", dev.Name(), m.dev.Name(), base)
		}
	}
	b.mappings = append(b.mappings, mapping{base: base, size: size, dev: dev})
	return nil
}

func (b *Bus) find(guest uint64, size int) (mapping, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.mappings {
		// Offset arithmetic avoids wrapped end bounds for accesses near the
		// top of the address space.
		off := guest - m.base
		if guest >= m.base && off < m.size && uint64(size) <= m.size-off {
			return m, true
		}
	}
	return mapping{}, false
}

func (b *Bus) ReadMMIO(guest uint64, data []byte) error {
	m, ok := b.find(guest, len(data))
	if !ok {
		return fmt.Errorf("bus: read of %d bytes at 0x%x hits no device", len(data), guest)
	}
	return m.dev.ReadMMIO(guest-m.base, data)
}

func (b *Bus) WriteMMIO(guest uint64, data []byte) error {
	m, ok := b.find(guest, len(data))
	if !ok {
		return fmt.Errorf("bus: write of %d bytes at 0x%x hits no device", len(data), guest)
	}
	return m.dev.WriteMMIO(guest-m.base, data)
}
