package engine

// SysReg selects a system register by its architectural encoding packed the
// way the engine expects it: op0:2 op1:3 CRn:4 CRm:4 op2:3.
type SysReg uint16

// MakeSysReg packs an op0/op1/CRn/CRm/op2 encoding into a selector.
func MakeSysReg(op0, op1, crn, crm, op2 uint16) SysReg {
	return SysReg(op0<<14 | op1<<11 | crn<<7 | crm<<3 | op2)
}

var (
	SysRegMDSCREL1 = MakeSysReg(2, 0, 0, 2, 2)

	SysRegSCTLREL1 = MakeSysReg(3, 0, 1, 0, 0)
	SysRegCPACREL1 = MakeSysReg(3, 0, 1, 0, 2)
	SysRegTTBR0EL1 = MakeSysReg(3, 0, 2, 0, 0)
	SysRegTTBR1EL1 = MakeSysReg(3, 0, 2, 0, 1)
	SysRegTCREL1   = MakeSysReg(3, 0, 2, 0, 2)

	SysRegAPIAKEYLO = MakeSysReg(3, 0, 2, 1, 0)
	SysRegAPIAKEYHI = MakeSysReg(3, 0, 2, 1, 1)
	SysRegAPIBKEYLO = MakeSysReg(3, 0, 2, 1, 2)
	SysRegAPIBKEYHI = MakeSysReg(3, 0, 2, 1, 3)
	SysRegAPDAKEYLO = MakeSysReg(3, 0, 2, 2, 0)
	SysRegAPDAKEYHI = MakeSysReg(3, 0, 2, 2, 1)
	SysRegAPDBKEYLO = MakeSysReg(3, 0, 2, 2, 2)
	SysRegAPDBKEYHI = MakeSysReg(3, 0, 2, 2, 3)
	SysRegAPGAKEYLO = MakeSysReg(3, 0, 2, 3, 0)
	SysRegAPGAKEYHI = MakeSysReg(3, 0, 2, 3, 1)

	SysRegSPSREL1 = MakeSysReg(3, 0, 4, 0, 0)
	SysRegELREL1  = MakeSysReg(3, 0, 4, 0, 1)
	SysRegSPEL0   = MakeSysReg(3, 0, 4, 1, 0)
	SysRegESREL1  = MakeSysReg(3, 0, 5, 2, 0)
	SysRegFAREL1  = MakeSysReg(3, 0, 6, 0, 0)
	SysRegPAREL1  = MakeSysReg(3, 0, 7, 4, 0)
	SysRegMAIREL1 = MakeSysReg(3, 0, 10, 2, 0)
	SysRegVBAREL1 = MakeSysReg(3, 0, 12, 0, 0)

	SysRegCONTEXTIDREL1 = MakeSysReg(3, 0, 13, 0, 1)
	SysRegTPIDREL1      = MakeSysReg(3, 0, 13, 0, 4)
	SysRegCNTKCTLEL1    = MakeSysReg(3, 0, 14, 1, 0)

	SysRegCSSELREL1 = MakeSysReg(3, 2, 0, 0, 0)

	SysRegTPIDREL0    = MakeSysReg(3, 3, 13, 0, 2)
	SysRegTPIDRROEL0  = MakeSysReg(3, 3, 13, 0, 3)
	SysRegCNTVCTLEL0  = MakeSysReg(3, 3, 14, 3, 1)
	SysRegCNTVCVALEL0 = MakeSysReg(3, 3, 14, 3, 2)

	SysRegSPEL1 = MakeSysReg(3, 4, 4, 1, 0)
)
