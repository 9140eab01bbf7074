package accel

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arcvm/arcvm/internal/engine"
	"github.com/arcvm/arcvm/internal/esr"
)

// handleException classifies one exception exit and dispatches it. The full
// register catalog is pulled first so handlers work on v.state, and pushed
// back afterwards; the vCPU re-enters the guest with a clean flag.
func (v *VCPU) handleException(ctx context.Context, info engine.ExceptionInfo) error {
	if err := pullState(v.accel.eng, v.handle, &v.state); err != nil {
		fatalf("pull vcpu %d state: %v", v.index, err)
	}

	syndrome := esr.Syndrome(info.Syndrome)
	var err error
	switch class := syndrome.Class(); class {
	case esr.ClassWFx:
		v.handleWFx(ctx)
	case esr.ClassCP15_32, esr.ClassCP15_64, esr.ClassCP14MR, esr.ClassCP14LS, esr.ClassCP14_64:
		fatalf("vcpu %d: legacy coprocessor access (class 0x%x) at pc 0x%x", v.index, class, v.state.PC)
	case esr.ClassHVC32, esr.ClassHVC64:
		err = v.handleHypercall()
	case esr.ClassSMC32, esr.ClassSMC64:
		fatalf("vcpu %d: secure monitor call at pc 0x%x", v.index, v.state.PC)
	case esr.ClassSysReg64:
		v.handleSysReg(syndrome)
	case esr.ClassInsnAbort, esr.ClassDataAbort:
		err = v.handleGuestAbort(syndrome, info, class == esr.ClassInsnAbort)
	case esr.ClassSoftStep, esr.ClassWatchpoint, esr.ClassBreakpoint, esr.ClassBKPT32, esr.ClassBRK64:
		fatalf("vcpu %d: guest debug exception (class 0x%x) at pc 0x%x", v.index, class, v.state.PC)
	default:
		// Push the untouched state back so the engine context is
		// inspectable post-mortem.
		if perr := pushState(v.accel.eng, v.handle, &v.state); perr != nil {
			slog.Error("push state for diagnostics", "vcpu", v.index, "err", perr)
		}
		fatalf("vcpu %d: unhandled exception class 0x%x syndrome 0x%x va 0x%x pa 0x%x",
			v.index, class, info.Syndrome, info.VirtualAddress, info.PhysicalAddress)
	}

	if perr := pushState(v.accel.eng, v.handle, &v.state); perr != nil {
		fatalf("push vcpu %d state: %v", v.index, perr)
	}
	v.dirty = false
	return err
}

// skipInstruction advances PC past the trapping instruction. Everything
// trapped here is a 4-byte AArch64 instruction.
func (v *VCPU) skipInstruction() {
	v.state.PC += 4
}

// handleWFx waits until the guest's virtual timer deadline, a kick or
// context cancellation, whichever comes first. PC is left on the
// wait-for-event instruction.
func (v *VCPU) handleWFx(ctx context.Context) {
	a := v.accel

	cval, err := a.eng.GetSysReg(v.handle, engine.SysRegCNTVCVALEL0)
	if err != nil {
		fatalf("vcpu %d: read CNTV_CVAL_EL0: %v", v.index, err)
	}

	ticks := int64(cval - a.eng.Counter())
	if ticks < 0 {
		return
	}
	freq := a.eng.CounterFrequency()
	if freq == 0 {
		return
	}
	// A distant deadline can exceed what a Duration holds; saturate rather
	// than wrap into an immediately-firing timer.
	d := time.Duration(math.MaxInt64)
	if secs := uint64(ticks) / freq; secs < uint64(math.MaxInt64/time.Second) {
		d = time.Duration(secs)*time.Second +
			time.Duration(uint64(ticks)%freq*uint64(time.Second)/freq)
	}

	// Only kicks delivered from here on count; drop a stale wakeup.
	select {
	case <-v.wake:
	default:
	}
	if v.irqPending.Load() || v.fiqPending.Load() {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	a.mu.Unlock()
	select {
	case <-timer.C:
	case <-v.wake:
	case <-ctx.Done():
	}
	a.mu.Lock()
}

// handleSysReg emulates trapped MSR/MRS accesses. Apple hardware does not
// implement the OS Lock, so OSLAR_EL1 and OSDLR_EL1 are read-as-zero,
// write-ignored. Anything else trapping here is unexpected.
func (v *VCPU) handleSysReg(s esr.Syndrome) {
	acc := s.SysRegAccess()
	switch {
	case acc.Matches(2, 0, 1, 0, 4), // OSLAR_EL1
		acc.Matches(2, 0, 1, 3, 4): // OSDLR_EL1
		if acc.Read {
			v.state.setXreg(acc.Reg, 0)
		}
	default:
		fatalf("vcpu %d: unhandled system register access op0=%d op1=%d crn=%d crm=%d op2=%d at pc 0x%x",
			v.index, acc.Op0, acc.Op1, acc.CRn, acc.CRm, acc.Op2, v.state.PC)
	}
	v.skipInstruction()
}

// handleGuestAbort dispatches a stage 2 instruction or data abort. Aborts
// on mapped RAM are not handled; aborts on unmapped addresses are MMIO.
func (v *VCPU) handleGuestAbort(s esr.Syndrome, info engine.ExceptionInfo, isInsn bool) error {
	guest := info.PhysicalAddress
	abort := s.DataAbort()

	t := v.accel.slots
	t.mu.RLock()
	mapped := t.findOverlapLocked(guest, 1) != nil
	t.mu.RUnlock()

	if mapped {
		if abort.FaultStatus&esr.FaultTypeMask == esr.FaultAccessFlag {
			fatalf("vcpu %d: access flag fault on mapped guest address 0x%x", v.index, guest)
		}
		fatalf("vcpu %d: stage 2 fault on mapped guest address 0x%x (status 0x%x)",
			v.index, guest, abort.FaultStatus)
	}

	if isInsn {
		fatalf("vcpu %d: instruction fetch from unmapped guest address 0x%x", v.index, guest)
	}
	if abort.CacheMaint {
		fatalf("vcpu %d: cache maintenance on unmapped guest address 0x%x", v.index, guest)
	}
	return v.handleMMIO(guest, abort)
}

// handleMMIO emulates a single bus transaction for a data abort on an
// unmapped guest address. The instruction is skipped before the access runs
// since emulated MMIO must not re-execute.
func (v *VCPU) handleMMIO(guest uint64, abort esr.DataAbort) error {
	if !abort.ISSValid {
		fatalf("vcpu %d: mmio access at 0x%x without syndrome decode", v.index, guest)
	}
	if abort.ExternalAbort {
		fatalf("vcpu %d: external abort on mmio address 0x%x", v.index, guest)
	}
	if abort.S1PTW {
		fatalf("vcpu %d: stage 1 table walk hit mmio address 0x%x", v.index, guest)
	}

	v.skipInstruction()

	var buf [8]byte
	if abort.Write {
		binary.LittleEndian.PutUint64(buf[:], v.state.xreg(abort.Reg))
		if err := v.accel.bus.WriteMMIO(guest, buf[:abort.Bytes]); err != nil {
			return fmt.Errorf("vcpu %d: %w", v.index, err)
		}
		return nil
	}

	if err := v.accel.bus.ReadMMIO(guest, buf[:abort.Bytes]); err != nil {
		return fmt.Errorf("vcpu %d: %w", v.index, err)
	}
	v.state.setXreg(abort.Reg, extendLoaded(binary.LittleEndian.Uint64(buf[:]), abort))
	return nil
}

// extendLoaded narrows a loaded value to the access width and zero or sign
// extends it to the target register width.
func extendLoaded(val uint64, abort esr.DataAbort) uint64 {
	bits := uint(abort.Bytes) * 8
	if bits >= 64 {
		return val
	}
	val &= 1<<bits - 1
	if abort.SignExtend && val&(1<<(bits-1)) != 0 {
		val |= ^uint64(0) << bits
		if !abort.SixtyFour {
			val &= 0xffffffff
		}
	}
	return val
}
