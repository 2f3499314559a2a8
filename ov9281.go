package ov9281

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// Driver error classes, matched with errors.Is.
var (
	ErrInvalidArgument = errors.New("ov9281: invalid argument")
	ErrIO              = errors.New("ov9281: bus i/o failed")
	ErrPower           = errors.New("ov9281: power sequencing failed")
	ErrIdentity        = errors.New("ov9281: chip identity mismatch")
)

// Opts configures the optional collaborators of a sensor. The zero
// value leaves every hardware line unmanaged, which suits modules
// with hardwired supplies and a free-running oscillator.
type Opts struct {
	// Addr is the sensor's bus address. 0 selects DefaultAddr.
	Addr uint16
	// Xvclk drives the external clock input. nil skips clock handling.
	Xvclk Clock
	// Supplies switches the avdd/dovdd/dvdd rails. nil skips them.
	Supplies Regulators
	// Reset and Powerdown drive the module's RESETB and PWDN pads.
	// nil skips the respective line.
	Reset     gpio.PinOut
	Powerdown gpio.PinOut
	// Logger receives driver diagnostics. nil selects slog.Default().
	Logger *slog.Logger
}

// OV9281 is a single sensor on a register bus. All methods are safe
// for concurrent use; every operation holds the device lock for its
// full duration, bus traffic included.
type OV9281 struct {
	dev   i2c.Dev
	log   *slog.Logger
	power powerSequencer

	mu        sync.Mutex
	mode      *Mode
	tryMode   *Mode
	ctrls     controlSet
	streaming bool
	powered   bool
}

// Open attaches to the sensor on bus, verifies its identity and
// returns a ready device. The sensor is powered only for the probe
// and left powered down.
func Open(bus i2c.Bus, opts *Opts) (*OV9281, error) {
	if opts == nil {
		opts = &Opts{}
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &OV9281{
		dev:  i2c.Dev{Bus: bus, Addr: addr},
		log:  logger,
		mode: modes[0],
		power: powerSequencer{
			clk:   opts.Xvclk,
			regs:  opts.Supplies,
			reset: opts.Reset,
			pwdn:  opts.Powerdown,
			log:   logger,
		},
	}
	o.ctrls.init(o.mode)

	if err := o.power.acquire(); err != nil {
		return nil, err
	}
	idErr := o.checkSensorID()
	o.power.release()
	if idErr != nil {
		return nil, idErr
	}

	return o, nil
}

// Close stops streaming and drops any power reference the device
// still holds. It is safe to call more than once.
func (o *OV9281) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streaming {
		o.stopStream()
	}
	if o.powered {
		o.powered = false
		o.power.release()
	}
	o.log.Info("sensor closed")
	return nil
}

// checkSensorID reads the chip id low byte first, then the high byte,
// and compares the combined id.
func (o *OV9281) checkSensorID() error {
	lsb, err := o.readReg(RegChipID+1, reg8)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIdentity, err)
	}
	msb, err := o.readReg(RegChipID, reg8)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIdentity, err)
	}
	if id := msb<<8 | lsb; id != ChipID {
		return fmt.Errorf("%w: unexpected sensor id 0x%04x", ErrIdentity, id)
	}

	o.log.Info("detected sensor", "id", fmt.Sprintf("OV%04x", ChipID))
	return nil
}

// Format describes the frame geometry and encoding on the sensor's
// output link.
type Format struct {
	Width  uint32
	Height uint32
	Code   PixelFormat
}

func formatOf(m *Mode) Format {
	return Format{Width: m.Width, Height: m.Height, Code: Y10}
}

// SetFormat negotiates the catalog mode closest to the requested size
// and returns the resulting format. With try set, the negotiation is
// recorded separately and the active configuration stays untouched.
// Committing a format re-derives the blanking and exposure ranges;
// it takes effect on the next stream start.
func (o *OV9281) SetFormat(width, height uint32, try bool) Format {
	o.mu.Lock()
	defer o.mu.Unlock()

	m := findBestFit(width, height)
	if try {
		o.tryMode = m
	} else {
		o.mode = m
		o.ctrls.applyMode(m)
	}
	return formatOf(m)
}

// GetFormat reports the active format, or the result of the last try
// negotiation when try is set. Before any try negotiation the default
// mode is reported.
func (o *OV9281) GetFormat(try bool) Format {
	o.mu.Lock()
	defer o.mu.Unlock()

	if try {
		if o.tryMode == nil {
			return formatOf(modes[0])
		}
		return formatOf(o.tryMode)
	}
	return formatOf(o.mode)
}

// CropTarget selects which rectangle GetCrop reports.
type CropTarget int

const (
	// CropActive is the crop rectangle of the active mode.
	CropActive CropTarget = iota
	// CropNative is the full native sensor area.
	CropNative
	// CropDefault and CropBounds describe the active pixel array.
	CropDefault
	CropBounds
)

// GetCrop reports the crop rectangle for the given target.
func (o *OV9281) GetCrop(target CropTarget) (image.Rectangle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch target {
	case CropActive:
		return o.mode.Crop, nil
	case CropNative:
		return image.Rect(0, 0, int(NativeWidth), int(NativeHeight)), nil
	case CropDefault, CropBounds:
		return image.Rect(pixelArrayLeft, pixelArrayTop,
			pixelArrayLeft+pixelArrayWidth, pixelArrayTop+pixelArrayHeight), nil
	}
	return image.Rectangle{}, fmt.Errorf("%w: unknown crop target %d", ErrInvalidArgument, int(target))
}

// SetControl validates and applies a control value. The value is
// pushed to the sensor immediately while streaming; otherwise it
// takes effect on the next stream start.
func (o *OV9281) SetControl(id ControlID, value int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.ctrls.set(id, value); err != nil {
		return err
	}
	if !o.streaming {
		return nil
	}
	return o.ctrls.push(o, id)
}

// GetControl reports a control's current value.
func (o *OV9281) GetControl(id ControlID) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctrls.get(id)
}

// ControlRange reports the values a control currently accepts. The
// exposure range depends on the vertical blanking.
func (o *OV9281) ControlRange(id ControlID) (Range, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctrls.rangeOf(id)
}

// SetPower raises or drops an explicit power reference, independent
// of streaming. Repeated calls in the same direction are no-ops.
func (o *OV9281) SetPower(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if on == o.powered {
		return nil
	}
	if on {
		if err := o.power.acquire(); err != nil {
			return err
		}
		o.powered = true
		return nil
	}
	o.powered = false
	return o.power.release()
}

// Powered reports whether the sensor hardware is currently powered,
// by streaming or by an explicit power reference.
func (o *OV9281) Powered() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.power.powered()
}

// TestPatternModes lists the selectable test patterns in control
// value order.
func (o *OV9281) TestPatternModes() []string {
	out := make([]string, len(testPatternModes))
	copy(out, testPatternModes)
	return out
}

func (o *OV9281) String() string {
	return fmt.Sprintf("ov9281@%s(0x%02x)", o.dev.Bus, o.dev.Addr)
}
