package accel

import "github.com/arcvm/arcvm/internal/engine"

// AccessFlags describe the guest permissions requested for a user-backed
// mapping.
type AccessFlags uint32

const (
	AccessRead AccessFlags = 1 << iota
	AccessWrite
	AccessExec
)

func (f AccessFlags) engineFlags() engine.MemoryFlags {
	var out engine.MemoryFlags
	if f&AccessRead != 0 {
		out |= engine.MemRead
	}
	if f&AccessWrite != 0 {
		out |= engine.MemWrite
	}
	if f&AccessExec != 0 {
		out |= engine.MemExec
	}
	return out
}

// RAMRegion describes a region of guest RAM registered with the
// accelerator.
type RAMRegion struct {
	Guest uint64
	Size  uint64
	Host  uintptr
	// UserBacked regions are managed through MapUserBacked and
	// UnmapUserBacked instead of region registration.
	UserBacked bool
}

// AddRegion registers a RAM region and installs it with full permissions.
// Registering the identical region again is a no-op; a region that overlaps
// an existing one replaces it.
func (a *Accelerator) AddRegion(r RAMRegion) {
	if r.UserBacked {
		return
	}
	a.setPhysMem(r, true)
}

// RemoveRegion withdraws a previously registered RAM region.
func (a *Accelerator) RemoveRegion(r RAMRegion) {
	if r.UserBacked {
		return
	}
	a.setPhysMem(r, false)
}

func (a *Accelerator) setPhysMem(r RAMRegion, add bool) {
	t := a.slots
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.findOverlapLocked(r.Guest, r.Size); s != nil {
		if add && r.Guest == s.start && r.Size == s.size && r.Host == s.host {
			return
		}
		s.size = 0
		t.commitLocked(s, 0)
	}
	if !add {
		return
	}

	s := t.freeSlotLocked()
	if s == nil {
		fatalf("out of memory slots (max %d)", maxSlots)
	}
	s.host = r.Host
	s.start = r.Guest
	s.size = r.Size
	t.commitLocked(s, engine.MemRead|engine.MemWrite|engine.MemExec)
}

// MapUserBacked installs a mapping whose host memory is owned by the caller,
// e.g. a device with guest-visible backing pages.
func (a *Accelerator) MapUserBacked(guest uint64, host uintptr, size uint64, flags AccessFlags) {
	a.slots.mapRange(host, guest, size, flags.engineFlags())
}

// Remap forcibly replaces the hardware mapping of [guest, guest+size) with
// an unconditional unmap then map, regardless of table bookkeeping.
func (a *Accelerator) Remap(guest uint64, host uintptr, size uint64, flags AccessFlags) {
	a.slots.remapRange(host, guest, size, flags.engineFlags())
}

// UnmapUserBacked removes a user-backed mapping. Unmapping a range that was
// never mapped succeeds.
func (a *Accelerator) UnmapUserBacked(guest, size uint64) {
	a.slots.unmapRange(guest, size)
}

// ProtectUserBacked changes the guest permissions of a user-backed mapping.
func (a *Accelerator) ProtectUserBacked(guest, size uint64, flags AccessFlags) {
	a.slots.protectRange(guest, size, flags.engineFlags())
}

// GuestToHost translates a guest physical address to the host virtual
// address it is currently mapped at.
func (a *Accelerator) GuestToHost(guest uint64) (uintptr, bool) {
	return a.slots.guestToHost(guest)
}

// HostToGuest translates a host virtual range into the guest physical
// fragments it is mapped at.
func (a *Accelerator) HostToGuest(host uintptr, size uint64) []GuestRange {
	return a.slots.hostToGuest(host, size)
}
