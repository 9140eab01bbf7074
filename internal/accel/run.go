package accel

import (
	"context"
	"fmt"
	"runtime"

	"github.com/arcvm/arcvm/internal/engine"
)

// Run executes the vCPU until a terminal condition: context cancellation,
// guest power-off (ErrVMHalted), a reboot request (ErrGuestRequestedReboot)
// or the vCPU parking itself (ErrVCPUHalted).
func (v *VCPU) Run(ctx context.Context) error {
	var err error
	v.Call(func() { err = v.loop(ctx) })
	return err
}

func (v *VCPU) loop(ctx context.Context) error {
	a := v.accel
	a.mu.Lock()
	defer a.mu.Unlock()

	stop := context.AfterFunc(ctx, v.Kick)
	defer stop()

	for {
		if v.halted {
			// Parked: yield the emulation lock so other threads make
			// progress before reporting the halt.
			a.mu.Unlock()
			runtime.Gosched()
			a.mu.Lock()
			return ErrVCPUHalted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if v.dirty {
			if err := pushState(a.eng, v.handle, &v.state); err != nil {
				fatalf("push vcpu %d state: %v", v.index, err)
			}
			v.dirty = false
		}

		if err := a.eng.SetPendingInterrupt(v.handle, engine.InterruptIRQ, v.irqPending.Load()); err != nil {
			fatalf("program vcpu %d irq line: %v", v.index, err)
		}
		if err := a.eng.SetPendingInterrupt(v.handle, engine.InterruptFIQ, v.fiqPending.Load()); err != nil {
			fatalf("program vcpu %d fiq line: %v", v.index, err)
		}

		a.mu.Unlock()
		rec, err := a.eng.Run(v.handle)
		a.mu.Lock()
		if err != nil {
			return fmt.Errorf("run vcpu %d: %w", v.index, err)
		}

		switch rec.Reason {
		case engine.ExitCanceled:
			// Forced out; loop around to pick up whatever changed.
		case engine.ExitVTimerActivated:
			// The engine keeps the timer masked until IRQDeactivated
			// reports the interrupt handled.
			a.vtimerLine(true)
		case engine.ExitException:
			if err := v.handleException(ctx, rec.Exception); err != nil {
				return err
			}
		default:
			fatalf("vcpu %d: unhandled exit reason %v", v.index, rec.Reason)
		}
	}
}
