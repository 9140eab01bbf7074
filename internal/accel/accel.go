// Package accel implements the runtime core of a hardware-accelerated
// ARM64 virtual CPU: the guest physical memory slot table, register state
// transfer between the emulator and the engine, exception exit dispatch and
// the per-vCPU run loop.
package accel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arcvm/arcvm/internal/engine"
)

// Terminal run loop results.
var (
	// ErrVMHalted is returned when the guest powers the machine off.
	ErrVMHalted = errors.New("vm halted")
	// ErrGuestRequestedReboot is returned when the guest asks for a system
	// reset.
	ErrGuestRequestedReboot = errors.New("guest requested reboot")
	// ErrVCPUHalted is returned when the vCPU parks itself, e.g. through a
	// firmware CPU_OFF call.
	ErrVCPUHalted = errors.New("vcpu halted")
)

// MemoryBus carries guest accesses that miss every RAM mapping. Each call is
// a single bus transaction of len(data) bytes at the given guest physical
// address.
type MemoryBus interface {
	ReadMMIO(guest uint64, data []byte) error
	WriteMMIO(guest uint64, data []byte) error
}

type nopBus struct{}

func (nopBus) ReadMMIO(guest uint64, data []byte) error {
	return fmt.Errorf("mmio read: no device at guest address 0x%x", guest)
}

func (nopBus) WriteMMIO(guest uint64, data []byte) error {
	return fmt.Errorf("mmio write: no device at guest address 0x%x", guest)
}

// Config carries the collaborator hooks an Accelerator needs.
type Config struct {
	// Bus handles MMIO transactions. Defaults to a bus that fails every
	// access.
	Bus MemoryBus
	// VTimerLine drives the virtual timer interrupt line of the interrupt
	// controller.
	VTimerLine func(asserted bool)
	// VTimerIntID is the interrupt controller ID of the virtual timer
	// interrupt, used to recognize its deactivation. Defaults to PPI 27.
	VTimerIntID int
}

// DefaultVTimerIntID is PPI 16 + 11, the conventional virtual timer
// interrupt.
const DefaultVTimerIntID = 27

// Accelerator owns one engine, its guest memory slot table and its vCPUs.
// The mu mutex is the global emulation lock: exit handlers run while holding
// it and it is released around guest execution.
type Accelerator struct {
	mu sync.Mutex

	eng         engine.Engine
	slots       *slotTable
	bus         MemoryBus
	vtimerLine  func(bool)
	vtimerIntID int
	caps        engine.Caps

	vcpuMu sync.Mutex
	vcpus  []*VCPU
}

// New wraps an open engine. Capability probing failures are logged and
// defaults assumed.
func New(eng engine.Engine, cfg Config) *Accelerator {
	caps, err := eng.ProbeCaps()
	if err != nil {
		slog.Warn("feature probe failed, assuming defaults", "err", err)
		caps = engine.Caps{}
	}

	bus := cfg.Bus
	if bus == nil {
		bus = nopBus{}
	}
	line := cfg.VTimerLine
	if line == nil {
		line = func(bool) {}
	}
	intID := cfg.VTimerIntID
	if intID == 0 {
		intID = DefaultVTimerIntID
	}

	return &Accelerator{
		eng:         eng,
		slots:       newSlotTable(eng),
		bus:         bus,
		vtimerLine:  line,
		vtimerIntID: intID,
		caps:        caps,
	}
}

// Caps returns the engine feature registers probed at creation.
func (a *Accelerator) Caps() engine.Caps { return a.caps }

// Close shuts down all vCPUs and the engine.
func (a *Accelerator) Close() error {
	a.vcpuMu.Lock()
	vcpus := a.vcpus
	a.vcpus = nil
	a.vcpuMu.Unlock()

	for _, v := range vcpus {
		v.Close()
	}
	return a.eng.Close()
}

// fatalf reports an unrecoverable invariant violation or an unimplemented
// guest behavior. Execution cannot continue past these.
func fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Error("fatal accelerator error", "err", msg)
	panic("accel: " + msg)
}
