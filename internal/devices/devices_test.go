package devices

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBusRouting(t *testing.T) {
	var out bytes.Buffer
	bus := NewBus()
	if err := bus.Add(0x0900_0000, PL011Size, NewPL011(&out)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Transmit through the UART data register.
	if err := bus.WriteMMIO(0x0900_0000, []byte{'h'}); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	if out.String() != "h" {
		t.Fatalf("expected 'h' transmitted, got %q", out.String())
	}

	// An access outside every region fails.
	if err := bus.WriteMMIO(0x0a00_0000, []byte{0}); err == nil {
		t.Fatal("expected an error for an unclaimed address")
	}

	// An access straddling the region end fails.
	if err := bus.ReadMMIO(0x0900_0000+PL011Size-2, make([]byte, 4)); err == nil {
		t.Fatal("expected an error for an access past the region end")
	}
}

// Routing must stay exact for regions and accesses at the top of the 64-bit
// address space, where end-exclusive bounds wrap to zero.
func TestBusTopOfAddressSpace(t *testing.T) {
	var out bytes.Buffer
	bus := NewBus()
	if err := bus.Add(0xffff_ffff_ffff_e000, PL011Size, NewPL011(&out)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := bus.Add(0xffff_ffff_ffff_f000, PL011Size, NewPL011(nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// An access past a region's end must not route to it.
	if err := bus.WriteMMIO(0xffff_ffff_ffff_fffd, make([]byte, 4)); err == nil {
		t.Fatal("expected an error for an access straddling the address space end")
	}

	// The last byte of the address space is reachable.
	if err := bus.WriteMMIO(0xffff_ffff_ffff_ffff, []byte{0}); err != nil {
		t.Fatalf("WriteMMIO at the top byte: %v", err)
	}

	// An in-range access still routes normally.
	if err := bus.WriteMMIO(0xffff_ffff_ffff_e000, []byte{'x'}); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	if out.String() != "x" {
		t.Fatalf("expected 'x' transmitted, got %q", out.String())
	}
}

func TestBusRejectsOverlap(t *testing.T) {
	bus := NewBus()
	if err := bus.Add(0x0900_0000, PL011Size, NewPL011(nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := bus.Add(0x0900_0800, PL011Size, NewPL011(nil)); err == nil {
		t.Fatal("expected an overlap error")
	}
}

func TestPL011FlagRegister(t *testing.T) {
	p := NewPL011(nil)

	data := make([]byte, 4)
	if err := p.ReadMMIO(pl011RegFR, data); err != nil {
		t.Fatalf("ReadMMIO: %v", err)
	}
	fr := binary.LittleEndian.Uint32(data)
	if fr&pl011FlagTxEmpty == 0 || fr&pl011FlagRxEmpty == 0 {
		t.Fatalf("expected TX and RX empty, got 0x%x", fr)
	}
}

func TestPL011ControlRoundTrip(t *testing.T) {
	p := NewPL011(nil)

	if err := p.WriteMMIO(pl011RegCR, []byte{0x01, 0x03}); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	data := make([]byte, 2)
	if err := p.ReadMMIO(pl011RegCR, data); err != nil {
		t.Fatalf("ReadMMIO: %v", err)
	}
	if data[0] != 0x01 || data[1] != 0x03 {
		t.Fatalf("control register round trip lost bits: % x", data)
	}
}

func TestPL011InterruptClear(t *testing.T) {
	p := NewPL011(nil)

	if err := p.WriteMMIO(pl011RegIMSC, []byte{0xff, 0x07, 0, 0}); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	if err := p.WriteMMIO(pl011RegICR, []byte{0xff, 0xff, 0, 0}); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	data := make([]byte, 4)
	if err := p.ReadMMIO(pl011RegIMSC, data); err != nil {
		t.Fatalf("ReadMMIO: %v", err)
	}
	if binary.LittleEndian.Uint32(data) != 0 {
		t.Fatalf("expected the mask cleared, got % x", data)
	}
}
