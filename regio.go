package ov9281

import (
	"encoding/binary"
	"fmt"
)

// Register value widths in bytes.
const (
	reg8  uint = 1
	reg16 uint = 2
	reg24 uint = 3
)

// writeReg writes the low width bytes of val, most significant byte
// first, to consecutive registers starting at addr. The address and
// value go out in a single bus write of width+2 bytes.
func (o *OV9281) writeReg(addr uint16, width uint, val uint32) error {
	if width == 0 || width > 4 {
		return fmt.Errorf("%w: register write width %d", ErrInvalidArgument, width)
	}

	var buf [6]byte
	binary.BigEndian.PutUint16(buf[:2], addr)
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], val)
	n := copy(buf[2:], be[4-width:])

	if err := o.dev.Tx(buf[:2+n], nil); err != nil {
		return fmt.Errorf("%w: write reg 0x%04x: %w", ErrIO, addr, err)
	}
	return nil
}

// readReg reads width bytes starting at addr and assembles them into
// a big-endian value. Address and data phases form one transaction.
func (o *OV9281) readReg(addr uint16, width uint) (uint32, error) {
	if width == 0 || width > 4 {
		return 0, fmt.Errorf("%w: register read width %d", ErrInvalidArgument, width)
	}

	var a [2]byte
	binary.BigEndian.PutUint16(a[:], addr)
	var be [4]byte
	if err := o.dev.Tx(a[:], be[4-width:]); err != nil {
		return 0, fmt.Errorf("%w: read reg 0x%04x: %w", ErrIO, addr, err)
	}
	return binary.BigEndian.Uint32(be[:]), nil
}

// writeRegs runs a register program in order and stops at the first
// failed write. Registers already written stay written.
func (o *OV9281) writeRegs(regs []RegVal) error {
	for _, r := range regs {
		if err := o.writeReg(r.Addr, reg8, uint32(r.Val)); err != nil {
			return err
		}
	}
	return nil
}
