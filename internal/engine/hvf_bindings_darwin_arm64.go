//go:build darwin && arm64

package engine

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// hvReturn is Hypervisor.framework's hv_return_t.
type hvReturn uint32

const (
	hvSuccess           hvReturn = 0
	hvError             hvReturn = 0xfae94001
	hvBusy              hvReturn = 0xfae94002
	hvBadArgument       hvReturn = 0xfae94003
	hvIllegalGuestState hvReturn = 0xfae94004
	hvNoResources       hvReturn = 0xfae94005
	hvNoDevice          hvReturn = 0xfae94006
	hvDenied            hvReturn = 0xfae94007
	hvUnsupported       hvReturn = 0xfae9400f
)

func (r hvReturn) Error() string {
	switch r {
	case hvSuccess:
		return "success"
	case hvError:
		return "error"
	case hvBusy:
		return "busy"
	case hvBadArgument:
		return "bad argument"
	case hvIllegalGuestState:
		return "illegal guest state"
	case hvNoResources:
		return "no resources"
	case hvNoDevice:
		return "no device"
	case hvDenied:
		return "denied"
	case hvUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("unknown hv_return_t 0x%x", uint32(r))
	}
}

// check wraps a failing return value with the name of the call.
func (r hvReturn) check(op string) error {
	if r == hvSuccess {
		return nil
	}
	return fmt.Errorf("%s: %w", op, r)
}

// hvVcpuExit mirrors hv_vcpu_exit_t, including the padding after the 32-bit
// reason field.
type hvVcpuExit struct {
	Reason    uint32
	_         uint32
	Exception struct {
		Syndrome        uint64
		VirtualAddress  uint64
		PhysicalAddress uint64
	}
}

// machTimebaseInfo mirrors mach_timebase_info_data_t.
type machTimebaseInfo struct {
	Numer uint32
	Denom uint32
}

var (
	hvLoadOnce sync.Once
	hvLoadErr  error
)

var (
	hv_vm_create  func(config uintptr) hvReturn
	hv_vm_destroy func() hvReturn
	hv_vm_map     func(addr unsafe.Pointer, ipa uint64, size uintptr, flags MemoryFlags) hvReturn
	hv_vm_unmap   func(ipa uint64, size uintptr) hvReturn
	hv_vm_protect func(ipa uint64, size uintptr, flags MemoryFlags) hvReturn

	hv_vcpu_config_create          func() uintptr
	hv_vcpu_config_get_feature_reg func(config uintptr, reg FeatureReg, value *uint64) hvReturn

	hv_vcpu_create                      func(vcpu *Handle, exit **hvVcpuExit, config uintptr) hvReturn
	hv_vcpu_destroy                     func(vcpu Handle) hvReturn
	hv_vcpu_get_reg                     func(vcpu Handle, reg Reg, value *uint64) hvReturn
	hv_vcpu_set_reg                     func(vcpu Handle, reg Reg, value uint64) hvReturn
	hv_vcpu_get_simd_fp_reg             func(vcpu Handle, reg SIMDReg, value *Vector) hvReturn
	hv_vcpu_set_simd_fp_reg             func(vcpu Handle, reg SIMDReg, value Vector) hvReturn
	hv_vcpu_get_sys_reg                 func(vcpu Handle, reg SysReg, value *uint64) hvReturn
	hv_vcpu_set_sys_reg                 func(vcpu Handle, reg SysReg, value uint64) hvReturn
	hv_vcpu_set_pending_interrupt       func(vcpu Handle, kind InterruptKind, pending bool) hvReturn
	hv_vcpu_set_trap_debug_exceptions   func(vcpu Handle, value bool) hvReturn
	hv_vcpu_set_trap_debug_reg_accesses func(vcpu Handle, value bool) hvReturn
	hv_vcpu_run                         func(vcpu Handle) hvReturn
	hv_vcpus_exit                       func(vcpus *Handle, count uint32) hvReturn
	hv_vcpu_set_vtimer_mask             func(vcpu Handle, masked bool) hvReturn

	mach_absolute_time func() uint64
	mach_timebase_info func(info *machTimebaseInfo) int32
)

// loadHypervisor binds the Hypervisor.framework symbols used by the engine,
// plus the libSystem timebase functions backing the counter queries.
func loadHypervisor() error {
	hvLoadOnce.Do(func() {
		lib, err := purego.Dlopen(
			"/System/Library/Frameworks/Hypervisor.framework/Hypervisor",
			purego.RTLD_GLOBAL|purego.RTLD_LAZY,
		)
		if err != nil {
			hvLoadErr = fmt.Errorf("purego dlopen Hypervisor.framework: %w", err)
			return
		}

		purego.RegisterLibFunc(&hv_vm_create, lib, "hv_vm_create")
		purego.RegisterLibFunc(&hv_vm_destroy, lib, "hv_vm_destroy")
		purego.RegisterLibFunc(&hv_vm_map, lib, "hv_vm_map")
		purego.RegisterLibFunc(&hv_vm_unmap, lib, "hv_vm_unmap")
		purego.RegisterLibFunc(&hv_vm_protect, lib, "hv_vm_protect")

		purego.RegisterLibFunc(&hv_vcpu_config_create, lib, "hv_vcpu_config_create")
		purego.RegisterLibFunc(&hv_vcpu_config_get_feature_reg, lib, "hv_vcpu_config_get_feature_reg")

		purego.RegisterLibFunc(&hv_vcpu_create, lib, "hv_vcpu_create")
		purego.RegisterLibFunc(&hv_vcpu_destroy, lib, "hv_vcpu_destroy")
		purego.RegisterLibFunc(&hv_vcpu_get_reg, lib, "hv_vcpu_get_reg")
		purego.RegisterLibFunc(&hv_vcpu_set_reg, lib, "hv_vcpu_set_reg")
		purego.RegisterLibFunc(&hv_vcpu_get_simd_fp_reg, lib, "hv_vcpu_get_simd_fp_reg")
		purego.RegisterLibFunc(&hv_vcpu_set_simd_fp_reg, lib, "hv_vcpu_set_simd_fp_reg")
		purego.RegisterLibFunc(&hv_vcpu_get_sys_reg, lib, "hv_vcpu_get_sys_reg")
		purego.RegisterLibFunc(&hv_vcpu_set_sys_reg, lib, "hv_vcpu_set_sys_reg")
		purego.RegisterLibFunc(&hv_vcpu_set_pending_interrupt, lib, "hv_vcpu_set_pending_interrupt")
		purego.RegisterLibFunc(&hv_vcpu_set_trap_debug_exceptions, lib, "hv_vcpu_set_trap_debug_exceptions")
		purego.RegisterLibFunc(&hv_vcpu_set_trap_debug_reg_accesses, lib, "hv_vcpu_set_trap_debug_reg_accesses")
		purego.RegisterLibFunc(&hv_vcpu_run, lib, "hv_vcpu_run")
		purego.RegisterLibFunc(&hv_vcpus_exit, lib, "hv_vcpus_exit")
		purego.RegisterLibFunc(&hv_vcpu_set_vtimer_mask, lib, "hv_vcpu_set_vtimer_mask")

		sys, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_GLOBAL|purego.RTLD_LAZY)
		if err != nil {
			hvLoadErr = fmt.Errorf("purego dlopen libSystem: %w", err)
			return
		}

		purego.RegisterLibFunc(&mach_absolute_time, sys, "mach_absolute_time")
		purego.RegisterLibFunc(&mach_timebase_info, sys, "mach_timebase_info")
	})
	return hvLoadErr
}
