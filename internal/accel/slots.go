package accel

import (
	"sync"

	"github.com/arcvm/arcvm/internal/engine"
)

const maxSlots = 512

// slot is one emulator-side mapping record. size == 0 marks a free slot.
type slot struct {
	start uint64
	size  uint64
	host  uintptr
	id    int
}

// hwSlot shadows what the engine currently has installed for the slot with
// the same index. It decides whether the engine needs an unmap before a new
// mapping can go in.
type hwSlot struct {
	present bool
	start   uint64
	size    uint64
	host    uintptr
}

// slotTable is the registry of guest physical to host virtual mappings.
type slotTable struct {
	mu    sync.RWMutex
	eng   engine.Engine
	slots [maxSlots]slot
	hw    [maxSlots]hwSlot
}

func newSlotTable(eng engine.Engine) *slotTable {
	t := &slotTable{eng: eng}
	for i := range t.slots {
		t.slots[i].id = i
	}
	return t
}

// rangesOverlap reports whether [aStart, aStart+aSize) and
// [bStart, bStart+bSize) intersect. The unsigned difference form stays
// correct for ranges ending at the top of the address space, where the
// end-exclusive bound would wrap to zero.
func rangesOverlap(aStart, aSize, bStart, bSize uint64) bool {
	return bStart-aStart < aSize || aStart-bStart < bSize
}

// findOverlapLocked returns the occupied slot overlapping the guest physical
// range [start, start+size), if any.
func (t *slotTable) findOverlapLocked(start, size uint64) *slot {
	for i := range t.slots {
		s := &t.slots[i]
		if s.size != 0 && rangesOverlap(s.start, s.size, start, size) {
			return s
		}
	}
	return nil
}

func (t *slotTable) freeSlotLocked() *slot {
	for i := range t.slots {
		if t.slots[i].size == 0 {
			return &t.slots[i]
		}
	}
	return nil
}

// commitLocked reconciles the engine mapping of s with its emulator-side
// record. A previous hardware mapping of different extent is torn down
// first; a slot with size 0 is only torn down. Engine failures here leave
// the table and the hardware inconsistent, so they are fatal.
func (t *slotTable) commitLocked(s *slot, flags engine.MemoryFlags) {
	hw := &t.hw[s.id]
	if hw.present && hw.size != s.size {
		hw.present = false
		if err := t.eng.Unmap(hw.start, hw.size); err != nil {
			fatalf("unmap guest 0x%x size 0x%x: %v", hw.start, hw.size, err)
		}
	}
	if s.size == 0 {
		return
	}
	hw.present = true
	hw.start = s.start
	hw.size = s.size
	hw.host = s.host
	if err := t.eng.Map(s.host, s.start, s.size, flags); err != nil {
		fatalf("map guest 0x%x size 0x%x: %v", s.start, s.size, err)
	}
}

// mapRange installs an exact mapping of [guest, guest+size) onto host
// memory. Re-installing the identical mapping is a no-op; mapping the same
// guest range to a different host address replaces the old mapping with
// exactly one unmap and one map. A partial overlap with an existing mapping
// is a programming error.
func (t *slotTable) mapRange(host uintptr, guest, size uint64, flags engine.MemoryFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.findOverlapLocked(guest, size); s != nil {
		if s.host == host && s.start == guest && s.size == size {
			return
		}
		if s.start != guest || s.size != size {
			fatalf("map guest 0x%x size 0x%x partially overlaps slot [0x%x, 0x%x)",
				guest, size, s.start, s.start+s.size)
		}
		s.size = 0
		t.commitLocked(s, 0)
	}

	s := t.freeSlotLocked()
	if s == nil {
		fatalf("out of memory slots (max %d)", maxSlots)
	}
	s.host = host
	s.start = guest
	s.size = size
	t.commitLocked(s, flags)
}

// remapRange forcibly reinstalls the hardware mapping of [guest, guest+size):
// an unconditional engine unmap then map, bypassing slot bookkeeping. Used
// when the hardware layer must be replaced regardless of what the table
// believes is installed.
func (t *slotTable) remapRange(host uintptr, guest, size uint64, flags engine.MemoryFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.eng.Unmap(guest, size); err != nil {
		fatalf("remap unmap guest 0x%x size 0x%x: %v", guest, size, err)
	}
	if err := t.eng.Map(host, guest, size, flags); err != nil {
		fatalf("remap map guest 0x%x size 0x%x: %v", guest, size, err)
	}
}

// unmapRange removes the mapping installed at exactly [guest, guest+size).
// A range with no mapping is a no-op; a partial overlap is a programming
// error.
func (t *slotTable) unmapRange(guest, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findOverlapLocked(guest, size)
	if s == nil {
		return
	}
	if s.start != guest || s.size != size {
		fatalf("unmap guest 0x%x size 0x%x partially overlaps slot [0x%x, 0x%x)",
			guest, size, s.start, s.start+s.size)
	}
	s.size = 0
	t.commitLocked(s, 0)
}

// protectRange changes the permissions of the mapping installed at exactly
// [guest, guest+size).
func (t *slotTable) protectRange(guest, size uint64, flags engine.MemoryFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findOverlapLocked(guest, size)
	if s == nil || s.start != guest || s.size != size {
		fatalf("protect guest 0x%x size 0x%x does not match an installed mapping", guest, size)
	}
	if err := t.eng.Protect(guest, size, flags); err != nil {
		fatalf("protect guest 0x%x size 0x%x: %v", guest, size, err)
	}
}

// guestToHost translates a guest physical address through the mappings the
// engine currently has installed.
func (t *slotTable) guestToHost(guest uint64) (uintptr, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.hw {
		hw := &t.hw[i]
		if hw.present && guest-hw.start < hw.size {
			return hw.host + uintptr(guest-hw.start), true
		}
	}
	return 0, false
}

// GuestRange is one guest physical fragment of a host virtual range.
type GuestRange struct {
	Guest uint64
	Size  uint64
}

// hostToGuest translates the host virtual range [host, host+size) into the
// guest physical fragments it is mapped at. A host range may span several
// mappings or fall only partially inside one, so the result is a slice.
func (t *slotTable) hostToGuest(host uintptr, size uint64) []GuestRange {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []GuestRange
	end := host + uintptr(size)
	for i := range t.hw {
		hw := &t.hw[i]
		if !hw.present {
			continue
		}
		lo := max(host, hw.host)
		hi := min(end, hw.host+uintptr(hw.size))
		if lo >= hi {
			continue
		}
		out = append(out, GuestRange{
			Guest: hw.start + uint64(lo-hw.host),
			Size:  uint64(hi - lo),
		})
	}
	return out
}
