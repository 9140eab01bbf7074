package accel

import (
	"reflect"
	"testing"

	"github.com/arcvm/arcvm/internal/engine"
)

func TestPushPullRoundTrip(t *testing.T) {
	fe := newFakeEngine()

	var in CPUState
	for i := range in.X {
		in.X[i] = uint64(i + 1)
	}
	in.PC = 0x4008_0000
	in.Pstate = 0x3c5
	in.SpEL0 = 0x100
	in.SpEL1 = 0x200
	in.ElrEL1 = 0x300
	in.SpsrEL1 = 0x400
	for i := range in.V {
		in.V[i] = engine.Vector{Lo: uint64(i) * 3, Hi: uint64(i) * 7}
	}
	in.FPSR = 0x10
	in.FPCR = 0x20
	in.Keys.APIA = PACKey{Lo: 1, Hi: 2}
	in.Keys.APIB = PACKey{Lo: 3, Hi: 4}
	in.Keys.APDA = PACKey{Lo: 5, Hi: 6}
	in.Keys.APDB = PACKey{Lo: 7, Hi: 8}
	in.Keys.APGA = PACKey{Lo: 9, Hi: 10}
	in.SctlrEL1 = 0x30d5_0838
	in.TcrEL1 = 0x1
	in.Ttbr0EL1 = 0x2
	in.Ttbr1EL1 = 0x3
	in.MairEL1 = 0x4
	in.EsrEL1 = 0x5
	in.FarEL1 = 0x6
	in.ParEL1 = 0x7
	in.CpacrEL1 = 0x8
	in.CsselrEL1 = 0x9
	in.ContextidrEL1 = 0xa
	in.MdscrEL1 = 0xb
	in.CntkctlEL1 = 0xc
	in.TpidrEL0 = 0xd
	in.TpidrEL1 = 0xe
	in.TpidrroEL0 = 0xf
	in.VbarEL1 = 0x8_0000

	if err := pushState(fe, 1, &in); err != nil {
		t.Fatalf("pushState: %v", err)
	}

	var out CPUState
	if err := pullState(fe, 1, &out); err != nil {
		t.Fatalf("pullState: %v", err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip lost state:\n in: %+v\nout: %+v", in, out)
	}
}

func TestZeroRegister(t *testing.T) {
	var s CPUState
	s.X[5] = 42

	if got := s.xreg(31); got != 0 {
		t.Fatalf("zero register read %d", got)
	}
	s.setXreg(31, 99)
	for i, v := range s.X {
		if i == 5 && v == 42 {
			continue
		}
		if v != 0 {
			t.Fatalf("zero register write leaked into x%d", i)
		}
	}
}
