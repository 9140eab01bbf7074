package accel

import "log/slog"

// PSCI 0.2 function IDs, SMC32 and (where defined) SMC64 encodings.
const (
	psciVersion         uint32 = 0x8400_0000
	psciCPUSuspend      uint32 = 0x8400_0001
	psciCPUOff          uint32 = 0x8400_0002
	psciCPUOn           uint32 = 0x8400_0003
	psciAffinityInfo    uint32 = 0x8400_0004
	psciMigrateInfoType uint32 = 0x8400_0006
	psciSystemOff       uint32 = 0x8400_0008
	psciSystemReset     uint32 = 0x8400_0009
	psciFeatures        uint32 = 0x8400_000a

	psciCPUSuspend64   uint32 = 0xc400_0001
	psciCPUOn64        uint32 = 0xc400_0003
	psciAffinityInfo64 uint32 = 0xc400_0004
)

const (
	psciRetSuccess      uint64 = 0
	psciRetNotSupported uint64 = 0xffff_ffff // int32 -1 in w0
)

// hvcNotSupported marks a hypercall outside the firmware interface.
const hvcNotSupported = ^uint64(0)

// handleHypercall emulates the firmware interface reached through HVC. The
// result lands in x0; system off and reset are terminal for the run loop.
func (v *VCPU) handleHypercall() error {
	switch fn := uint32(v.state.X[0]); fn {
	case psciVersion:
		v.state.X[0] = 0x0001_0000 // PSCI 1.0
	case psciMigrateInfoType:
		v.state.X[0] = 2 // no trusted OS
	case psciFeatures:
		v.state.X[0] = psciRetNotSupported
	case psciCPUSuspend, psciCPUSuspend64:
		// A suspend with nothing pending completes immediately.
		v.state.X[0] = psciRetSuccess
	case psciCPUOff:
		v.halted = true
		v.state.X[0] = psciRetSuccess
	case psciCPUOn, psciCPUOn64:
		v.state.X[0] = psciRetNotSupported
	case psciAffinityInfo, psciAffinityInfo64:
		v.state.X[0] = 0 // ON
	case psciSystemOff:
		return ErrVMHalted
	case psciSystemReset:
		return ErrGuestRequestedReboot
	default:
		base := fn &^ 0x4000_0000
		if base >= psciVersion && base <= psciVersion+0x1f {
			v.state.X[0] = psciRetNotSupported
		} else {
			slog.Debug("unknown hypercall", "vcpu", v.index, "x0", v.state.X[0])
			v.state.X[0] = hvcNotSupported
		}
	}
	return nil
}
