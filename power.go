package ov9281

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Clock drives the sensor's external clock input (XVCLK).
type Clock interface {
	SetRate(physic.Frequency) error
	Rate() physic.Frequency
	Enable() error
	Disable()
}

// Regulators switches the sensor's supply rails (avdd, dovdd, dvdd)
// as a group.
type Regulators interface {
	EnableAll() error
	DisableAll()
}

// powerSequencer ref-counts users of the sensor's power. The first
// acquire runs the bring-up sequence, the last release tears it down.
// Collaborators left nil are skipped, so a bench setup with hardwired
// supplies still works.
type powerSequencer struct {
	clk   Clock
	regs  Regulators
	reset gpio.PinOut
	pwdn  gpio.PinOut
	log   *slog.Logger

	count int
}

func (p *powerSequencer) acquire() error {
	if p.count == 0 {
		if err := p.powerOn(); err != nil {
			return err
		}
	}
	p.count++
	return nil
}

func (p *powerSequencer) release() error {
	if p.count == 0 {
		return fmt.Errorf("%w: release without matching acquire", ErrPower)
	}
	p.count--
	if p.count == 0 {
		p.powerOff()
	}
	return nil
}

func (p *powerSequencer) powered() bool {
	return p.count > 0
}

func (p *powerSequencer) powerOn() error {
	if p.clk != nil {
		if err := p.clk.SetRate(XvclkFreq); err != nil {
			p.log.Warn("failed to set xvclk rate (24MHz)", "err", err)
		}
		if rate := p.clk.Rate(); rate != XvclkFreq {
			p.log.Warn("xvclk mismatched, modes are based on 24MHz", "rate", rate)
		}
		if err := p.clk.Enable(); err != nil {
			return fmt.Errorf("%w: failed to enable xvclk: %w", ErrPower, err)
		}
	}

	p.setPin(p.reset, gpio.Low)

	if p.regs != nil {
		if err := p.regs.EnableAll(); err != nil {
			if p.clk != nil {
				p.clk.Disable()
			}
			return fmt.Errorf("%w: failed to enable regulators: %w", ErrPower, err)
		}
	}

	p.setPin(p.reset, gpio.High)
	time.Sleep(500 * time.Microsecond)
	p.setPin(p.pwdn, gpio.High)

	// 8192 XVCLK cycles must pass before the first SCCB transaction.
	time.Sleep(xvclkSettle(8192))

	return nil
}

func (p *powerSequencer) powerOff() {
	p.setPin(p.pwdn, gpio.Low)
	if p.clk != nil {
		p.clk.Disable()
	}
	p.setPin(p.reset, gpio.Low)
	if p.regs != nil {
		p.regs.DisableAll()
	}
}

// setPin drives an optional control line. Line failures are reported
// but do not abort the sequence.
func (p *powerSequencer) setPin(pin gpio.PinOut, l gpio.Level) {
	if pin == nil {
		return
	}
	if err := pin.Out(l); err != nil {
		p.log.Warn("failed to drive control line", "pin", pin.Name(), "level", l, "err", err)
	}
}

// xvclkSettle converts clock cycles into a wait, rounding up to whole
// microseconds.
func xvclkSettle(cycles int64) time.Duration {
	mhz := int64(XvclkFreq / physic.MegaHertz)
	us := (cycles + mhz - 1) / mhz
	return time.Duration(us) * time.Microsecond
}
