// Package esr decodes ARM64 exception syndrome (ESR_ELx) values reported
// when a guest exits to the host.
package esr

// Syndrome is a raw ESR_ELx value.
type Syndrome uint64

// Class is the exception class field (ESR_ELx.EC).
type Class uint32

const (
	ClassUnknown    Class = 0x00
	ClassWFx        Class = 0x01
	ClassCP15_32    Class = 0x03
	ClassCP15_64    Class = 0x04
	ClassCP14MR     Class = 0x05
	ClassCP14LS     Class = 0x06
	ClassCP14_64    Class = 0x0c
	ClassHVC32      Class = 0x12
	ClassSMC32      Class = 0x13
	ClassHVC64      Class = 0x16
	ClassSMC64      Class = 0x17
	ClassSysReg64   Class = 0x18
	ClassInsnAbort  Class = 0x20 // instruction abort from a lower EL
	ClassDataAbort  Class = 0x24 // data abort from a lower EL
	ClassBreakpoint Class = 0x30 // breakpoint from a lower EL
	ClassSoftStep   Class = 0x32 // software step from a lower EL
	ClassWatchpoint Class = 0x34 // watchpoint from a lower EL
	ClassBKPT32     Class = 0x38
	ClassBRK64      Class = 0x3c
)

// Class extracts the exception class.
func (s Syndrome) Class() Class { return Class((s >> 26) & 0x3f) }

// ISS extracts the instruction specific syndrome field.
func (s Syndrome) ISS() uint32 { return uint32(s & 0x1ffffff) }

// Fault status codes within the DFSC/IFSC field, masked by FaultTypeMask.
const (
	FaultTypeMask    = 0x3c
	FaultTranslation = 0x04
	FaultAccessFlag  = 0x08
	FaultPermission  = 0x0c
)

// DataAbort holds the decoded ISS fields of a data abort taken from a lower
// exception level. The instruction decode fields (Bytes, SignExtend,
// SixtyFour, Reg) are only meaningful when ISSValid is set.
type DataAbort struct {
	ISSValid      bool // ISV: hardware populated the decode fields below
	Bytes         int  // access size: 1, 2, 4 or 8
	SignExtend    bool // SSE: loaded value must be sign-extended
	SixtyFour     bool // SF: the target register is 64 bits wide
	Reg           int  // SRT: transfer register, 31 names the zero register
	Write         bool // WnR
	ExternalAbort bool // EA
	CacheMaint    bool // CM: fault raised by a cache maintenance operation
	S1PTW         bool // fault on a stage 1 translation table walk
	FaultStatus   uint8
}

// DataAbort decodes the abort ISS fields of the syndrome.
func (s Syndrome) DataAbort() DataAbort {
	iss := s.ISS()
	return DataAbort{
		ISSValid:      iss&(1<<24) != 0,
		Bytes:         1 << ((iss >> 22) & 0x3),
		SignExtend:    iss&(1<<21) != 0,
		Reg:           int((iss >> 16) & 0x1f),
		SixtyFour:     iss&(1<<15) != 0,
		ExternalAbort: iss&(1<<9) != 0,
		CacheMaint:    iss&(1<<8) != 0,
		S1PTW:         iss&(1<<7) != 0,
		Write:         iss&(1<<6) != 0,
		FaultStatus:   uint8(iss & 0x3f),
	}
}

// SysRegAccess holds the decoded ISS fields of a trapped MSR/MRS/SYS
// instruction.
type SysRegAccess struct {
	Read                    bool // direction bit: MRS rather than MSR
	Reg                     int  // Rt, 31 names the zero register
	Op0, Op1, CRn, CRm, Op2 uint8
}

// SysRegAccess decodes the system register trap ISS fields of the syndrome.
func (s Syndrome) SysRegAccess() SysRegAccess {
	iss := s.ISS()
	return SysRegAccess{
		Read: iss&1 != 0,
		CRm:  uint8((iss >> 1) & 0xf),
		Reg:  int((iss >> 5) & 0x1f),
		CRn:  uint8((iss >> 10) & 0xf),
		Op1:  uint8((iss >> 14) & 0x7),
		Op2:  uint8((iss >> 17) & 0x7),
		Op0:  uint8((iss >> 20) & 0x3),
	}
}

// Matches reports whether the access names the system register with the
// given architectural encoding.
func (a SysRegAccess) Matches(op0, op1, crn, crm, op2 uint8) bool {
	return a.Op0 == op0 && a.Op1 == op1 && a.CRn == crn && a.CRm == crm && a.Op2 == op2
}
