//go:build darwin && arm64

package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"
)

// hvfEngine is the Hypervisor.framework implementation of Engine. The guest
// address space is process-wide, so at most one engine may be open at a
// time.
type hvfEngine struct {
	mu    sync.Mutex
	exits map[Handle]*hvVcpuExit
	freq  uint64
}

// Open creates the process-wide guest address space and returns the engine
// backing it.
func Open() (Engine, error) {
	if err := loadHypervisor(); err != nil {
		return nil, err
	}
	if err := hv_vm_create(0).check("hv_vm_create"); err != nil {
		return nil, err
	}

	var info machTimebaseInfo
	mach_timebase_info(&info)
	// mach_absolute_time ticks convert to nanoseconds by numer/denom, so
	// the tick rate is 1e9 scaled the other way.
	freq := uint64(1_000_000_000) * uint64(info.Denom) / uint64(info.Numer)

	return &hvfEngine{exits: make(map[Handle]*hvVcpuExit), freq: freq}, nil
}

func (e *hvfEngine) CreateVCPU() (Handle, error) {
	var (
		h    Handle
		exit *hvVcpuExit
	)
	cfg := hv_vcpu_config_create()
	if err := hv_vcpu_create(&h, &exit, cfg).check("hv_vcpu_create"); err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.exits[h] = exit
	e.mu.Unlock()

	// Debug exceptions and debug register accesses stay with the guest;
	// failures here are tolerable.
	if ret := hv_vcpu_set_trap_debug_exceptions(h, false); ret != hvSuccess {
		slog.Warn("could not disable debug exception trapping", "vcpu", h, "err", ret)
	}
	if ret := hv_vcpu_set_trap_debug_reg_accesses(h, false); ret != hvSuccess {
		slog.Warn("could not disable debug register trapping", "vcpu", h, "err", ret)
	}
	return h, nil
}

func (e *hvfEngine) DestroyVCPU(h Handle) error {
	e.mu.Lock()
	delete(e.exits, h)
	e.mu.Unlock()
	return hv_vcpu_destroy(h).check("hv_vcpu_destroy")
}

func (e *hvfEngine) GetReg(h Handle, reg Reg) (uint64, error) {
	var v uint64
	if err := hv_vcpu_get_reg(h, reg, &v).check("hv_vcpu_get_reg"); err != nil {
		return 0, err
	}
	return v, nil
}

func (e *hvfEngine) SetReg(h Handle, reg Reg, v uint64) error {
	return hv_vcpu_set_reg(h, reg, v).check("hv_vcpu_set_reg")
}

func (e *hvfEngine) GetSysReg(h Handle, reg SysReg) (uint64, error) {
	var v uint64
	if err := hv_vcpu_get_sys_reg(h, reg, &v).check("hv_vcpu_get_sys_reg"); err != nil {
		return 0, err
	}
	return v, nil
}

func (e *hvfEngine) SetSysReg(h Handle, reg SysReg, v uint64) error {
	return hv_vcpu_set_sys_reg(h, reg, v).check("hv_vcpu_set_sys_reg")
}

func (e *hvfEngine) GetSIMDReg(h Handle, reg SIMDReg) (Vector, error) {
	var v Vector
	if err := hv_vcpu_get_simd_fp_reg(h, reg, &v).check("hv_vcpu_get_simd_fp_reg"); err != nil {
		return Vector{}, err
	}
	return v, nil
}

func (e *hvfEngine) SetSIMDReg(h Handle, reg SIMDReg, v Vector) error {
	return hv_vcpu_set_simd_fp_reg(h, reg, v).check("hv_vcpu_set_simd_fp_reg")
}

func (e *hvfEngine) Run(h Handle) (ExitRecord, error) {
	e.mu.Lock()
	exit := e.exits[h]
	e.mu.Unlock()
	if exit == nil {
		return ExitRecord{}, fmt.Errorf("run: unknown vcpu %d", h)
	}

	if err := hv_vcpu_run(h).check("hv_vcpu_run"); err != nil {
		return ExitRecord{}, err
	}

	rec := ExitRecord{Reason: ExitReason(exit.Reason)}
	rec.Exception.Syndrome = exit.Exception.Syndrome
	rec.Exception.VirtualAddress = exit.Exception.VirtualAddress
	rec.Exception.PhysicalAddress = exit.Exception.PhysicalAddress
	return rec, nil
}

func (e *hvfEngine) ForceExit(handles []Handle) error {
	if len(handles) == 0 {
		return nil
	}
	return hv_vcpus_exit(&handles[0], uint32(len(handles))).check("hv_vcpus_exit")
}

func (e *hvfEngine) SetPendingInterrupt(h Handle, kind InterruptKind, pending bool) error {
	return hv_vcpu_set_pending_interrupt(h, kind, pending).check("hv_vcpu_set_pending_interrupt")
}

func (e *hvfEngine) SetVTimerMask(h Handle, masked bool) error {
	return hv_vcpu_set_vtimer_mask(h, masked).check("hv_vcpu_set_vtimer_mask")
}

func (e *hvfEngine) Map(host uintptr, guest uint64, size uint64, flags MemoryFlags) error {
	return hv_vm_map(unsafe.Pointer(host), guest, uintptr(size), flags).check("hv_vm_map")
}

func (e *hvfEngine) Unmap(guest, size uint64) error {
	return hv_vm_unmap(guest, uintptr(size)).check("hv_vm_unmap")
}

func (e *hvfEngine) Protect(guest, size uint64, flags MemoryFlags) error {
	return hv_vm_protect(guest, uintptr(size), flags).check("hv_vm_protect")
}

func (e *hvfEngine) ProbeCaps() (Caps, error) {
	cfg := hv_vcpu_config_create()
	caps := Caps{FeatureRegs: make(map[FeatureReg]uint64)}
	for reg := FeatureReg(0); reg < featureRegCount; reg++ {
		var v uint64
		if ret := hv_vcpu_config_get_feature_reg(cfg, reg, &v); ret != hvSuccess {
			slog.Warn("feature register probe failed", "reg", reg, "err", ret)
			continue
		}
		caps.FeatureRegs[reg] = v
	}
	return caps, nil
}

func (e *hvfEngine) Counter() uint64 { return mach_absolute_time() }

func (e *hvfEngine) CounterFrequency() uint64 { return e.freq }

func (e *hvfEngine) Close() error {
	return hv_vm_destroy().check("hv_vm_destroy")
}
