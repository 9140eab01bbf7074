package accel

import (
	"sync"

	"github.com/arcvm/arcvm/internal/engine"
)

type mapCall struct {
	op    string
	host  uintptr
	guest uint64
	size  uint64
	flags engine.MemoryFlags
}

// fakeEngine is a deterministic in-process engine. Run returns scripted
// exits in order; once the script is exhausted it closes drained and blocks
// until ForceExit.
type fakeEngine struct {
	mu sync.Mutex

	regs    map[engine.Reg]uint64
	sysRegs map[engine.SysReg]uint64
	simd    map[engine.SIMDReg]engine.Vector
	pending map[engine.InterruptKind]bool

	calls      []mapCall
	script     []engine.ExitRecord
	vtimerMask []bool

	counter uint64
	freq    uint64

	cancel      chan struct{}
	drained     chan struct{}
	drainedOnce sync.Once
	irqSet      chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		regs:    make(map[engine.Reg]uint64),
		sysRegs: make(map[engine.SysReg]uint64),
		simd:    make(map[engine.SIMDReg]engine.Vector),
		pending: make(map[engine.InterruptKind]bool),
		freq:    24_000_000,
		cancel:  make(chan struct{}, 1),
		drained: make(chan struct{}),
		irqSet:  make(chan struct{}, 1),
	}
}

func (e *fakeEngine) CreateVCPU() (engine.Handle, error) { return 1, nil }
func (e *fakeEngine) DestroyVCPU(engine.Handle) error    { return nil }

func (e *fakeEngine) GetReg(_ engine.Handle, r engine.Reg) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[r], nil
}

func (e *fakeEngine) SetReg(_ engine.Handle, r engine.Reg, v uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regs[r] = v
	return nil
}

func (e *fakeEngine) GetSysReg(_ engine.Handle, r engine.SysReg) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sysRegs[r], nil
}

func (e *fakeEngine) SetSysReg(_ engine.Handle, r engine.SysReg, v uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sysRegs[r] = v
	return nil
}

func (e *fakeEngine) GetSIMDReg(_ engine.Handle, r engine.SIMDReg) (engine.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simd[r], nil
}

func (e *fakeEngine) SetSIMDReg(_ engine.Handle, r engine.SIMDReg, v engine.Vector) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.simd[r] = v
	return nil
}

func (e *fakeEngine) Run(engine.Handle) (engine.ExitRecord, error) {
	e.mu.Lock()
	if len(e.script) > 0 {
		rec := e.script[0]
		e.script = e.script[1:]
		e.mu.Unlock()
		return rec, nil
	}
	e.mu.Unlock()

	e.drainedOnce.Do(func() { close(e.drained) })
	<-e.cancel
	return engine.ExitRecord{Reason: engine.ExitCanceled}, nil
}

func (e *fakeEngine) ForceExit([]engine.Handle) error {
	select {
	case e.cancel <- struct{}{}:
	default:
	}
	return nil
}

func (e *fakeEngine) SetPendingInterrupt(_ engine.Handle, kind engine.InterruptKind, pending bool) error {
	e.mu.Lock()
	e.pending[kind] = pending
	e.mu.Unlock()
	if pending && kind == engine.InterruptIRQ {
		select {
		case e.irqSet <- struct{}{}:
		default:
		}
	}
	return nil
}

func (e *fakeEngine) SetVTimerMask(_ engine.Handle, masked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vtimerMask = append(e.vtimerMask, masked)
	return nil
}

func (e *fakeEngine) Map(host uintptr, guest uint64, size uint64, flags engine.MemoryFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, mapCall{op: "map", host: host, guest: guest, size: size, flags: flags})
	return nil
}

func (e *fakeEngine) Unmap(guest, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, mapCall{op: "unmap", guest: guest, size: size})
	return nil
}

func (e *fakeEngine) Protect(guest, size uint64, flags engine.MemoryFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, mapCall{op: "protect", guest: guest, size: size, flags: flags})
	return nil
}

func (e *fakeEngine) ProbeCaps() (engine.Caps, error) { return engine.Caps{}, nil }

func (e *fakeEngine) Counter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter
}

func (e *fakeEngine) CounterFrequency() uint64 { return e.freq }

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) mapCalls() []mapCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]mapCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *fakeEngine) setScript(recs ...engine.ExitRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = recs
}

func (e *fakeEngine) setReg(r engine.Reg, v uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regs[r] = v
}

func (e *fakeEngine) reg(r engine.Reg) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[r]
}
