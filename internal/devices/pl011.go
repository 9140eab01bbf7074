package devices

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// PL011 register offsets.
const (
	pl011RegDR   = 0x00
	pl011RegRSR  = 0x04
	pl011RegFR   = 0x18
	pl011RegILPR = 0x20
	pl011RegIBRD = 0x24
	pl011RegFBRD = 0x28
	pl011RegLCRH = 0x2c
	pl011RegCR   = 0x30
	pl011RegIFLS = 0x34
	pl011RegIMSC = 0x38
	pl011RegRIS  = 0x3c
	pl011RegMIS  = 0x40
	pl011RegICR  = 0x44
	pl011RegDMAC = 0x48

	pl011FlagTxEmpty = 1 << 7
	pl011FlagRxEmpty = 1 << 4
)

// PL011Size is the MMIO window a PL011 occupies.
const PL011Size = 0x1000

// PL011 is a transmit-only ARM PrimeCell UART. Output bytes written to the
// data register go to out; the receive FIFO always reads empty.
type PL011 struct {
	out io.Writer

	mu    sync.Mutex
	cr    uint32
	lcrh  uint32
	ibrd  uint32
	fbrd  uint32
	ifls  uint32
	imsc  uint32
	dmacr uint32
}

func NewPL011(out io.Writer) *PL011 {
	if out == nil {
		out = io.Discard
	}
	return &PL011{out: out}
}

func (p *PL011) Name() string { return "pl011" }

func (p *PL011) ReadMMIO(offset uint64, data []byte) error {
	if len(data) == 0 || len(data) > 4 {
		return fmt.Errorf("pl011: unsupported read size %d", len(data))
	}

	p.mu.Lock()
	value := p.readRegister(offset)
	p.mu.Unlock()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	copy(data, buf[:len(data)])
	return nil
}

func (p *PL011) WriteMMIO(offset uint64, data []byte) error {
	if len(data) == 0 || len(data) > 4 {
		return fmt.Errorf("pl011: unsupported write size %d", len(data))
	}

	var value uint32
	for i := 0; i < len(data); i++ {
		value |= uint32(data[i]) << (8 * i)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeRegister(offset, value)
}

func (p *PL011) readRegister(offset uint64) uint32 {
	switch offset {
	case pl011RegFR:
		return pl011FlagTxEmpty | pl011FlagRxEmpty
	case pl011RegIBRD:
		return p.ibrd
	case pl011RegFBRD:
		return p.fbrd
	case pl011RegLCRH:
		return p.lcrh
	case pl011RegCR:
		return p.cr
	case pl011RegIFLS:
		return p.ifls
	case pl011RegIMSC:
		return p.imsc
	case pl011RegDMAC:
		return p.dmacr
	default:
		// DR, RSR, ILPR, RIS, MIS, ICR and everything unimplemented read
		// as zero.
		return 0
	}
}

func (p *PL011) writeRegister(offset uint64, value uint32) error {
	switch offset {
	case pl011RegDR:
		if _, err := p.out.Write([]byte{byte(value)}); err != nil {
			return fmt.Errorf("pl011: write output: %w", err)
		}
	case pl011RegRSR:
		// Writes clear receive errors, nothing to clear.
	case pl011RegILPR:
		// IrDA low-power not supported.
	case pl011RegIBRD:
		p.ibrd = value
	case pl011RegFBRD:
		p.fbrd = value
	case pl011RegLCRH:
		p.lcrh = value
	case pl011RegCR:
		p.cr = value
	case pl011RegIFLS:
		p.ifls = value
	case pl011RegIMSC:
		p.imsc = value
	case pl011RegICR:
		p.imsc = 0
	case pl011RegDMAC:
		p.dmacr = value
	default:
		// Silently ignore unimplemented registers.
	}
	return nil
}
