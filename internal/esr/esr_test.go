package esr

import "testing"

func dataAbortSyndrome(isv bool, sas uint32, sse bool, srt uint32, sf, wnr bool) Syndrome {
	iss := uint32(0)
	if isv {
		iss |= 1 << 24
	}
	iss |= sas << 22
	if sse {
		iss |= 1 << 21
	}
	iss |= srt << 16
	if sf {
		iss |= 1 << 15
	}
	if wnr {
		iss |= 1 << 6
	}
	return Syndrome(uint64(ClassDataAbort)<<26 | uint64(iss))
}

func sysRegSyndrome(op0, op1, crn, crm, op2, rt uint32, read bool) Syndrome {
	iss := op0<<20 | op2<<17 | op1<<14 | crn<<10 | rt<<5 | crm<<1
	if read {
		iss |= 1
	}
	return Syndrome(uint64(ClassSysReg64)<<26 | uint64(iss))
}

func TestClass(t *testing.T) {
	if got := Syndrome(uint64(ClassWFx) << 26).Class(); got != ClassWFx {
		t.Fatalf("expected WFx class, got 0x%x", got)
	}
	if got := Syndrome(0x5a000000 | 0x123456).Class(); got != ClassHVC64 {
		t.Fatalf("expected HVC64 class, got 0x%x", got)
	}
}

func TestDataAbortDecode(t *testing.T) {
	s := dataAbortSyndrome(true, 1, false, 5, true, false)
	da := s.DataAbort()
	if !da.ISSValid {
		t.Fatal("expected valid ISS")
	}
	if da.Bytes != 2 {
		t.Fatalf("expected 2 byte access, got %d", da.Bytes)
	}
	if da.SignExtend {
		t.Fatal("expected zero extension")
	}
	if da.Reg != 5 {
		t.Fatalf("expected transfer register 5, got %d", da.Reg)
	}
	if !da.SixtyFour {
		t.Fatal("expected 64-bit target register")
	}
	if da.Write {
		t.Fatal("expected a read")
	}
}

func TestDataAbortSizes(t *testing.T) {
	for sas, want := range []int{1, 2, 4, 8} {
		da := dataAbortSyndrome(true, uint32(sas), false, 0, false, true).DataAbort()
		if da.Bytes != want {
			t.Fatalf("SAS %d: expected %d bytes, got %d", sas, want, da.Bytes)
		}
		if !da.Write {
			t.Fatal("expected a write")
		}
	}
}

func TestSysRegAccessDecode(t *testing.T) {
	s := sysRegSyndrome(2, 0, 1, 0, 4, 3, true)
	acc := s.SysRegAccess()
	if !acc.Read {
		t.Fatal("expected a read access")
	}
	if acc.Reg != 3 {
		t.Fatalf("expected rt 3, got %d", acc.Reg)
	}
	if !acc.Matches(2, 0, 1, 0, 4) {
		t.Fatalf("expected OSLAR_EL1 encoding match, got %+v", acc)
	}
	if acc.Matches(2, 0, 1, 3, 4) {
		t.Fatal("unexpected OSDLR_EL1 match")
	}
}
