// Package engine abstracts the hardware virtualization engine a guest runs
// on. One engine owns one guest physical address space and any number of
// vCPU contexts. The darwin/arm64 implementation is backed by
// Hypervisor.framework; everything above this package is platform neutral.
package engine

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Open on platforms without a hardware
// virtualization engine.
var ErrUnsupported = errors.New("no hardware virtualization engine on this platform")

// Handle identifies a vCPU context created on the engine.
type Handle uint64

// Reg selects a general purpose or special register.
type Reg uint32

const (
	RegX0 Reg = iota
	RegX1
	RegX2
	RegX3
	RegX4
	RegX5
	RegX6
	RegX7
	RegX8
	RegX9
	RegX10
	RegX11
	RegX12
	RegX13
	RegX14
	RegX15
	RegX16
	RegX17
	RegX18
	RegX19
	RegX20
	RegX21
	RegX22
	RegX23
	RegX24
	RegX25
	RegX26
	RegX27
	RegX28
	RegX29
	RegX30
	RegPC
	RegFPCR
	RegFPSR
	RegCPSR
)

// RegX returns the selector for general purpose register Xn.
func RegX(n int) Reg { return RegX0 + Reg(n) }

// SIMDReg selects one of the 32 SIMD&FP Q registers.
type SIMDReg uint32

// SIMDQ returns the selector for SIMD register Qn.
func SIMDQ(n int) SIMDReg { return SIMDReg(n) }

// Vector is the 128-bit value of a SIMD&FP register.
type Vector struct {
	Lo uint64
	Hi uint64
}

// MemoryFlags is the guest permission bitmask of a memory mapping.
type MemoryFlags uint64

const (
	MemRead MemoryFlags = 1 << iota
	MemWrite
	MemExec
)

// InterruptKind selects an interrupt input of a vCPU.
type InterruptKind uint32

const (
	InterruptIRQ InterruptKind = 0
	InterruptFIQ InterruptKind = 1
)

// ExitReason classifies why a Run call returned.
type ExitReason uint32

const (
	ExitCanceled ExitReason = iota // forced out by ForceExit
	ExitException
	ExitVTimerActivated
	ExitUnknown
)

func (r ExitReason) String() string {
	switch r {
	case ExitCanceled:
		return "canceled"
	case ExitException:
		return "exception"
	case ExitVTimerActivated:
		return "vtimer activated"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(r))
	}
}

// ExceptionInfo carries the details of an exception taken to the host.
type ExceptionInfo struct {
	Syndrome        uint64 // ESR_ELx
	VirtualAddress  uint64 // FAR_ELx
	PhysicalAddress uint64 // faulting guest physical address
}

// ExitRecord is the outcome of one Run call.
type ExitRecord struct {
	Reason    ExitReason
	Exception ExceptionInfo
}

// FeatureReg selects an ID register exposed by the engine.
type FeatureReg uint32

const (
	FeatureAA64DFR0 FeatureReg = iota
	FeatureAA64DFR1
	FeatureAA64ISAR0
	FeatureAA64ISAR1
	FeatureAA64MMFR0
	FeatureAA64MMFR1
	FeatureAA64MMFR2
	FeatureAA64PFR0
	FeatureAA64PFR1
	FeatureCTR
	FeatureCLIDR
	FeatureDCZID
	featureRegCount
)

// Caps holds the feature register values probed from the engine.
type Caps struct {
	FeatureRegs map[FeatureReg]uint64
}

// Engine is the hardware virtualization engine contract.
//
// vCPU-scoped calls must be made from the OS thread the vCPU was created on.
// ForceExit is the only call that is safe from any thread while the vCPU is
// inside Run.
type Engine interface {
	CreateVCPU() (Handle, error)
	DestroyVCPU(Handle) error

	GetReg(Handle, Reg) (uint64, error)
	SetReg(Handle, Reg, uint64) error
	GetSysReg(Handle, SysReg) (uint64, error)
	SetSysReg(Handle, SysReg, uint64) error
	GetSIMDReg(Handle, SIMDReg) (Vector, error)
	SetSIMDReg(Handle, SIMDReg, Vector) error

	// Run enters the guest and blocks until it exits back to the host.
	Run(Handle) (ExitRecord, error)
	// ForceExit makes the given vCPUs return from Run with ExitCanceled.
	ForceExit([]Handle) error
	SetPendingInterrupt(Handle, InterruptKind, bool) error
	// SetVTimerMask controls whether the engine suppresses further virtual
	// timer exits. The engine masks the timer itself when it reports
	// ExitVTimerActivated.
	SetVTimerMask(Handle, bool) error

	Map(host uintptr, guest uint64, size uint64, flags MemoryFlags) error
	Unmap(guest, size uint64) error
	Protect(guest, size uint64, flags MemoryFlags) error

	// ProbeCaps queries the engine's ID register values.
	ProbeCaps() (Caps, error)
	// Counter returns the current physical counter value, in ticks of
	// CounterFrequency.
	Counter() uint64
	CounterFrequency() uint64

	Close() error
}
