package engine

import "testing"

// Selector values are the engine ABI; spot-check against the values from the
// platform headers.
func TestSysRegEncodings(t *testing.T) {
	cases := []struct {
		name string
		reg  SysReg
		want SysReg
	}{
		{"SCTLR_EL1", SysRegSCTLREL1, 0xc080},
		{"TTBR0_EL1", SysRegTTBR0EL1, 0xc100},
		{"APIAKEYLO_EL1", SysRegAPIAKEYLO, 0xc108},
		{"SPSR_EL1", SysRegSPSREL1, 0xc200},
		{"SP_EL0", SysRegSPEL0, 0xc208},
		{"ESR_EL1", SysRegESREL1, 0xc290},
		{"MDSCR_EL1", SysRegMDSCREL1, 0x8012},
		{"SP_EL1", SysRegSPEL1, 0xe208},
		{"CNTV_CVAL_EL0", SysRegCNTVCVALEL0, 0xdf1a},
	}
	for _, c := range cases {
		if c.reg != c.want {
			t.Errorf("%s: got 0x%04x, want 0x%04x", c.name, c.reg, c.want)
		}
	}
}
