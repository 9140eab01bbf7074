package accel

import "github.com/arcvm/arcvm/internal/engine"

// PACKey is one pointer authentication key pair half-split across two
// system registers.
type PACKey struct {
	Lo uint64
	Hi uint64
}

// PACKeys holds the five pointer authentication keys.
type PACKeys struct {
	APIA PACKey
	APIB PACKey
	APDA PACKey
	APDB PACKey
	APGA PACKey
}

// CPUState is the emulator-visible register file of one vCPU. It mirrors
// the engine-side context register for register; the owning VCPU's dirty
// flag tracks which side is current. Debug breakpoint and watchpoint
// registers are deliberately absent.
type CPUState struct {
	X      [31]uint64
	PC     uint64
	Pstate uint64

	SpEL0   uint64
	SpEL1   uint64
	ElrEL1  uint64
	SpsrEL1 uint64

	V    [32]engine.Vector
	FPSR uint64
	FPCR uint64

	Keys PACKeys

	CntkctlEL1    uint64
	ContextidrEL1 uint64
	CpacrEL1      uint64
	CsselrEL1     uint64
	EsrEL1        uint64
	FarEL1        uint64
	MairEL1       uint64
	MdscrEL1      uint64
	ParEL1        uint64
	SctlrEL1      uint64
	TcrEL1        uint64
	TpidrroEL0    uint64
	TpidrEL0      uint64
	TpidrEL1      uint64
	Ttbr0EL1      uint64
	Ttbr1EL1      uint64
	VbarEL1       uint64
}

// xreg reads transfer register rt, where 31 names the zero register.
func (s *CPUState) xreg(rt int) uint64 {
	if rt == 31 {
		return 0
	}
	return s.X[rt]
}

// setXreg writes transfer register rt; writes to the zero register are
// discarded.
func (s *CPUState) setXreg(rt int, v uint64) {
	if rt != 31 {
		s.X[rt] = v
	}
}
