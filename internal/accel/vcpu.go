package accel

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/arcvm/arcvm/internal/engine"
)

// VCPU is one virtual CPU. Its engine context is owned by a dedicated OS
// thread; every engine call for the vCPU happens there. Other threads hand
// work over through Call or use the thread-safe line setters.
type VCPU struct {
	accel  *Accelerator
	index  int
	handle engine.Handle

	// state and dirty are only touched on the owning thread while holding
	// the emulation lock.
	state CPUState
	dirty bool

	halted bool

	irqPending atomic.Bool
	fiqPending atomic.Bool

	// wake nudges a wait-for-event sleep. Buffered so a kick never blocks.
	wake chan struct{}

	queue chan func()
	done  chan struct{}
}

// NewVCPU creates a vCPU and pins its engine context to a fresh OS thread.
func (a *Accelerator) NewVCPU() (*VCPU, error) {
	v := &VCPU{
		accel: a,
		wake:  make(chan struct{}, 1),
		queue: make(chan func()),
		done:  make(chan struct{}),
	}

	errCh := make(chan error)
	go v.serve(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	a.vcpuMu.Lock()
	v.index = len(a.vcpus)
	a.vcpus = append(a.vcpus, v)
	a.vcpuMu.Unlock()
	return v, nil
}

// serve pins the goroutine to its OS thread, creates the engine context and
// then executes handed-over work until the queue closes.
func (v *VCPU) serve(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h, err := v.accel.eng.CreateVCPU()
	if err != nil {
		errCh <- fmt.Errorf("create vcpu: %w", err)
		return
	}
	v.handle = h
	errCh <- nil

	for fn := range v.queue {
		fn()
	}

	if err := v.accel.eng.DestroyVCPU(v.handle); err != nil {
		slog.Error("destroy vcpu", "vcpu", v.index, "err", err)
	}
	close(v.done)
}

// Call runs fn on the vCPU's owning thread and waits for it to finish. It
// must not be called from an exit handler of the same vCPU.
func (v *VCPU) Call(fn func()) {
	done := make(chan struct{})
	v.queue <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close tears down the owning thread and the engine context.
func (v *VCPU) Close() {
	close(v.queue)
	<-v.done
}

// Index returns the vCPU's position in creation order.
func (v *VCPU) Index() int { return v.index }

// State returns a snapshot of the register file, pulling from the engine
// first if the emulator side is stale. The pulled state is marked dirty so
// it flows back before the next guest entry.
func (v *VCPU) State() CPUState {
	var out CPUState
	v.Call(func() {
		v.accel.mu.Lock()
		defer v.accel.mu.Unlock()
		v.synchronizeLocked()
		out = v.state
	})
	return out
}

// UpdateState lets fn edit the register file. The changes are pushed to the
// engine before the next guest entry.
func (v *VCPU) UpdateState(fn func(*CPUState)) {
	v.Call(func() {
		v.accel.mu.Lock()
		defer v.accel.mu.Unlock()
		v.synchronizeLocked()
		fn(&v.state)
	})
}

// ResetState replaces the register file and pushes it to the engine
// immediately, as after machine init or reset.
func (v *VCPU) ResetState(s CPUState) {
	v.Call(func() {
		v.accel.mu.Lock()
		defer v.accel.mu.Unlock()
		v.state = s
		if err := pushState(v.accel.eng, v.handle, &v.state); err != nil {
			fatalf("push vcpu %d state: %v", v.index, err)
		}
		v.dirty = false
	})
}

// synchronizeLocked makes the emulator-side state current and marks it
// dirty.
func (v *VCPU) synchronizeLocked() {
	if v.dirty {
		return
	}
	if err := pullState(v.accel.eng, v.handle, &v.state); err != nil {
		fatalf("pull vcpu %d state: %v", v.index, err)
	}
	v.dirty = true
}

// SetIRQLine sets the vCPU's IRQ input level. Raising a line that was clear
// kicks the vCPU out of guest execution so the interrupt is injected
// promptly. Safe from any thread.
func (v *VCPU) SetIRQLine(asserted bool) { v.setLine(&v.irqPending, asserted) }

// SetFIQLine sets the vCPU's FIQ input level. Same contract as SetIRQLine.
func (v *VCPU) SetFIQLine(asserted bool) { v.setLine(&v.fiqPending, asserted) }

func (v *VCPU) setLine(line *atomic.Bool, asserted bool) {
	if line.Swap(asserted) == asserted || !asserted {
		return
	}
	v.Kick()
}

// Kick forces the vCPU out of guest execution and wakes a wait-for-event
// sleep, whichever is in progress. Safe from any thread.
func (v *VCPU) Kick() {
	if err := v.accel.eng.ForceExit([]engine.Handle{v.handle}); err != nil {
		slog.Error("force exit", "vcpu", v.index, "err", err)
	}
	v.notifyWake()
}

func (v *VCPU) notifyWake() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// IRQDeactivated tells the vCPU the interrupt controller completed the
// given interrupt. For the virtual timer interrupt this lowers the timer
// line and lets the engine assert timer exits again. It must be called on
// the vCPU's own thread, i.e. from a device handler reached through this
// vCPU's exit handling.
func (v *VCPU) IRQDeactivated(intID int) {
	if intID != v.accel.vtimerIntID {
		return
	}
	v.accel.vtimerLine(false)
	if err := v.accel.eng.SetVTimerMask(v.handle, false); err != nil {
		fatalf("unmask vtimer on vcpu %d: %v", v.index, err)
	}
}
