// Package bustest simulates a register-addressed sensor behind an
// i2c.Bus for driver tests. The simulated device keeps a register
// file with 16-bit addresses and 8-bit cells, records all traffic and
// can be scripted to fail transactions touching chosen registers.
package bustest

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// RegWrite is one applied register write transaction.
type RegWrite struct {
	Addr uint16
	Data []byte
}

// Sensor implements i2c.Bus.
type Sensor struct {
	mu        sync.Mutex
	addr      uint16
	regs      map[uint16]uint8
	raw       [][]byte
	writes    []RegWrite
	reads     []uint16
	failWrite map[uint16]error
	failRead  map[uint16]error
	speed     physic.Frequency
}

var _ i2c.Bus = (*Sensor)(nil)

// New returns a simulated sensor answering at the given bus address.
func New(addr uint16) *Sensor {
	return &Sensor{
		addr:      addr,
		regs:      make(map[uint16]uint8),
		failWrite: make(map[uint16]error),
		failRead:  make(map[uint16]error),
	}
}

// SetReg preloads a register cell.
func (s *Sensor) SetReg(reg uint16, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[reg] = val
}

// Reg reads back a register cell.
func (s *Sensor) Reg(reg uint16) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

// FailWritesTo makes write transactions touching reg fail with err.
func (s *Sensor) FailWritesTo(reg uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite[reg] = err
}

// FailReadsFrom makes read transactions touching reg fail with err.
func (s *Sensor) FailReadsFrom(reg uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead[reg] = err
}

// RegWrites lists the applied write transactions in order.
func (s *Sensor) RegWrites() []RegWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RegWrite(nil), s.writes...)
}

// RawWrites lists the raw bytes of each applied write transaction.
func (s *Sensor) RawWrites() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.raw...)
}

// Reads lists the register addresses of read transactions in order.
func (s *Sensor) Reads() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.reads...)
}

// ClearLog drops the recorded traffic, keeping the register file.
func (s *Sensor) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = nil
	s.writes = nil
	s.reads = nil
}

// Tx implements i2c.Bus. A transaction with a read buffer is an
// address write followed by a register read without an intervening
// stop; anything else is a plain register write.
func (s *Sensor) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr != s.addr {
		return fmt.Errorf("bustest: no device at 0x%02x", addr)
	}
	if len(w) < 2 {
		return fmt.Errorf("bustest: transaction without register address (%d bytes)", len(w))
	}
	reg := uint16(w[0])<<8 | uint16(w[1])

	if len(r) > 0 {
		if len(w) != 2 {
			return fmt.Errorf("bustest: combined write+read with %d write bytes", len(w))
		}
		for i := range r {
			cell := reg + uint16(i)
			if err, ok := s.failRead[cell]; ok {
				return err
			}
			r[i] = s.regs[cell]
		}
		s.reads = append(s.reads, reg)
		return nil
	}

	data := w[2:]
	for i := range data {
		if err, ok := s.failWrite[reg+uint16(i)]; ok {
			return err
		}
	}
	for i, b := range data {
		s.regs[reg+uint16(i)] = b
	}
	s.raw = append(s.raw, append([]byte(nil), w...))
	s.writes = append(s.writes, RegWrite{Addr: reg, Data: append([]byte(nil), data...)})
	return nil
}

// SetSpeed implements i2c.Bus.
func (s *Sensor) SetSpeed(f physic.Frequency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = f
	return nil
}

// Speed reports the last SetSpeed value.
func (s *Sensor) Speed() physic.Frequency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *Sensor) String() string {
	return "bustest"
}
