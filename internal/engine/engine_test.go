package engine

import (
	"errors"
	"runtime"
	"testing"
)

// TestOpenRoundTrip exercises the real engine when the host provides one.
// It needs darwin/arm64 and the hypervisor entitlement, so anything short
// of a working engine skips.
func TestOpenRoundTrip(t *testing.T) {
	eng, err := Open()
	if errors.Is(err, ErrUnsupported) {
		t.Skip("no virtualization engine on this platform")
	}
	if err != nil {
		t.Skipf("engine unavailable: %v", err)
	}
	defer eng.Close()

	// A vCPU context is bound to its creating thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h, err := eng.CreateVCPU()
	if err != nil {
		t.Fatalf("CreateVCPU: %v", err)
	}
	defer eng.DestroyVCPU(h)

	if err := eng.SetReg(h, RegX0, 0xdead_beef); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	v, err := eng.GetReg(h, RegX0)
	if err != nil {
		t.Fatalf("GetReg: %v", err)
	}
	if v != 0xdead_beef {
		t.Fatalf("x0 round trip: got 0x%x", v)
	}

	if eng.CounterFrequency() == 0 {
		t.Error("counter frequency is zero")
	}
	if c1, c2 := eng.Counter(), eng.Counter(); c2 < c1 {
		t.Errorf("counter went backwards: %d then %d", c1, c2)
	}
}

func TestExitReasonString(t *testing.T) {
	if got := ExitException.String(); got != "exception" {
		t.Errorf("ExitException.String() = %q", got)
	}
	if got := ExitReason(99).String(); got != "unknown(99)" {
		t.Errorf("ExitReason(99).String() = %q", got)
	}
}
