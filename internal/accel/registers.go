package accel

import (
	"fmt"

	"github.com/arcvm/arcvm/internal/engine"
)

// The bindings below are the complete transfer catalog. pullState and
// pushState always move every entry; there is no partial transfer.

type gpBinding struct {
	reg   engine.Reg
	field func(*CPUState) *uint64
}

var gpBindings []gpBinding

func init() {
	for i := 0; i < 31; i++ {
		gpBindings = append(gpBindings, gpBinding{
			reg:   engine.RegX(i),
			field: func(s *CPUState) *uint64 { return &s.X[i] },
		})
	}
	gpBindings = append(gpBindings,
		gpBinding{engine.RegPC, func(s *CPUState) *uint64 { return &s.PC }},
		gpBinding{engine.RegCPSR, func(s *CPUState) *uint64 { return &s.Pstate }},
		gpBinding{engine.RegFPCR, func(s *CPUState) *uint64 { return &s.FPCR }},
		gpBinding{engine.RegFPSR, func(s *CPUState) *uint64 { return &s.FPSR }},
	)
}

type sysBinding struct {
	reg   engine.SysReg
	field func(*CPUState) *uint64
}

var sysBindings = []sysBinding{
	{engine.SysRegSPEL0, func(s *CPUState) *uint64 { return &s.SpEL0 }},
	{engine.SysRegSPEL1, func(s *CPUState) *uint64 { return &s.SpEL1 }},
	{engine.SysRegELREL1, func(s *CPUState) *uint64 { return &s.ElrEL1 }},
	{engine.SysRegSPSREL1, func(s *CPUState) *uint64 { return &s.SpsrEL1 }},

	{engine.SysRegAPIAKEYLO, func(s *CPUState) *uint64 { return &s.Keys.APIA.Lo }},
	{engine.SysRegAPIAKEYHI, func(s *CPUState) *uint64 { return &s.Keys.APIA.Hi }},
	{engine.SysRegAPIBKEYLO, func(s *CPUState) *uint64 { return &s.Keys.APIB.Lo }},
	{engine.SysRegAPIBKEYHI, func(s *CPUState) *uint64 { return &s.Keys.APIB.Hi }},
	{engine.SysRegAPDAKEYLO, func(s *CPUState) *uint64 { return &s.Keys.APDA.Lo }},
	{engine.SysRegAPDAKEYHI, func(s *CPUState) *uint64 { return &s.Keys.APDA.Hi }},
	{engine.SysRegAPDBKEYLO, func(s *CPUState) *uint64 { return &s.Keys.APDB.Lo }},
	{engine.SysRegAPDBKEYHI, func(s *CPUState) *uint64 { return &s.Keys.APDB.Hi }},
	{engine.SysRegAPGAKEYLO, func(s *CPUState) *uint64 { return &s.Keys.APGA.Lo }},
	{engine.SysRegAPGAKEYHI, func(s *CPUState) *uint64 { return &s.Keys.APGA.Hi }},

	{engine.SysRegCNTKCTLEL1, func(s *CPUState) *uint64 { return &s.CntkctlEL1 }},
	{engine.SysRegCONTEXTIDREL1, func(s *CPUState) *uint64 { return &s.ContextidrEL1 }},
	{engine.SysRegCPACREL1, func(s *CPUState) *uint64 { return &s.CpacrEL1 }},
	{engine.SysRegCSSELREL1, func(s *CPUState) *uint64 { return &s.CsselrEL1 }},
	{engine.SysRegESREL1, func(s *CPUState) *uint64 { return &s.EsrEL1 }},
	{engine.SysRegFAREL1, func(s *CPUState) *uint64 { return &s.FarEL1 }},
	{engine.SysRegMAIREL1, func(s *CPUState) *uint64 { return &s.MairEL1 }},
	{engine.SysRegMDSCREL1, func(s *CPUState) *uint64 { return &s.MdscrEL1 }},
	{engine.SysRegPAREL1, func(s *CPUState) *uint64 { return &s.ParEL1 }},
	{engine.SysRegSCTLREL1, func(s *CPUState) *uint64 { return &s.SctlrEL1 }},
	{engine.SysRegTCREL1, func(s *CPUState) *uint64 { return &s.TcrEL1 }},
	{engine.SysRegTPIDRROEL0, func(s *CPUState) *uint64 { return &s.TpidrroEL0 }},
	{engine.SysRegTPIDREL0, func(s *CPUState) *uint64 { return &s.TpidrEL0 }},
	{engine.SysRegTPIDREL1, func(s *CPUState) *uint64 { return &s.TpidrEL1 }},
	{engine.SysRegTTBR0EL1, func(s *CPUState) *uint64 { return &s.Ttbr0EL1 }},
	{engine.SysRegTTBR1EL1, func(s *CPUState) *uint64 { return &s.Ttbr1EL1 }},
	{engine.SysRegVBAREL1, func(s *CPUState) *uint64 { return &s.VbarEL1 }},
}

// pullState copies the complete engine-side vCPU context into s.
func pullState(eng engine.Engine, h engine.Handle, s *CPUState) error {
	for _, b := range gpBindings {
		v, err := eng.GetReg(h, b.reg)
		if err != nil {
			return fmt.Errorf("get reg %d: %w", b.reg, err)
		}
		*b.field(s) = v
	}
	for i := range s.V {
		v, err := eng.GetSIMDReg(h, engine.SIMDQ(i))
		if err != nil {
			return fmt.Errorf("get simd reg q%d: %w", i, err)
		}
		s.V[i] = v
	}
	for _, b := range sysBindings {
		v, err := eng.GetSysReg(h, b.reg)
		if err != nil {
			return fmt.Errorf("get sys reg 0x%04x: %w", uint16(b.reg), err)
		}
		*b.field(s) = v
	}
	return nil
}

// pushState copies s into the engine-side vCPU context.
func pushState(eng engine.Engine, h engine.Handle, s *CPUState) error {
	for _, b := range gpBindings {
		if err := eng.SetReg(h, b.reg, *b.field(s)); err != nil {
			return fmt.Errorf("set reg %d: %w", b.reg, err)
		}
	}
	for i := range s.V {
		if err := eng.SetSIMDReg(h, engine.SIMDQ(i), s.V[i]); err != nil {
			return fmt.Errorf("set simd reg q%d: %w", i, err)
		}
	}
	for _, b := range sysBindings {
		if err := eng.SetSysReg(h, b.reg, *b.field(s)); err != nil {
			return fmt.Errorf("set sys reg 0x%04x: %w", uint16(b.reg), err)
		}
	}
	return nil
}
