package ov9281

import "fmt"

// ControlID selects one of the sensor's exposed controls.
type ControlID int

const (
	ControlLinkFreq ControlID = iota
	ControlPixelRate
	ControlHBlank
	ControlVBlank
	ControlExposure
	ControlAnalogGain
	ControlTestPattern

	nControls
)

func (id ControlID) String() string {
	switch id {
	case ControlLinkFreq:
		return "link-freq"
	case ControlPixelRate:
		return "pixel-rate"
	case ControlHBlank:
		return "hblank"
	case ControlVBlank:
		return "vblank"
	case ControlExposure:
		return "exposure"
	case ControlAnalogGain:
		return "analog-gain"
	case ControlTestPattern:
		return "test-pattern"
	}
	return fmt.Sprintf("ControlID(%d)", int(id))
}

// Range describes the values a control accepts.
type Range struct {
	Min, Max, Step, Def int64
}

var testPatternModes = []string{
	"Disabled",
	"Vertical Color Bar Type 1",
	"Vertical Color Bar Type 2",
	"Vertical Color Bar Type 3",
	"Vertical Color Bar Type 4",
}

// The sensor needs 4 lines of margin between the longest exposure and
// the frame's total line count.
const exposureMargin = 4

type control struct {
	Range
	cur      int64
	readOnly bool
}

// controlSet does the pure bookkeeping side of the control surface:
// ranges, defaults, clamping and the dependency of the exposure limit
// on vertical blanking. It never touches the bus; push and pushAll
// encode current values through a register writer.
type controlSet struct {
	ctrls [nControls]control
	mode  *Mode
}

func (cs *controlSet) init(m *Mode) {
	cs.ctrls[ControlLinkFreq] = control{
		Range:    Range{Min: 0, Max: 0, Step: 1, Def: 0},
		readOnly: true,
	}
	cs.ctrls[ControlPixelRate] = control{
		Range:    Range{Min: 0, Max: PixelRate, Step: 1, Def: PixelRate},
		cur:      PixelRate,
		readOnly: true,
	}
	cs.ctrls[ControlExposure] = control{
		Range: Range{Min: ExposureMin, Max: int64(m.VTSDef) - exposureMargin, Step: ExposureStep, Def: int64(m.ExpDef)},
		cur:   int64(m.ExpDef),
	}
	cs.ctrls[ControlAnalogGain] = control{
		Range: Range{Min: GainMin, Max: GainMax, Step: GainStep, Def: GainDefault},
		cur:   GainDefault,
	}
	cs.ctrls[ControlTestPattern] = control{
		Range: Range{Min: 0, Max: int64(len(testPatternModes) - 1), Step: 1, Def: 0},
	}
	cs.applyMode(m)
}

// applyMode recomputes the mode-derived ranges after a format change.
// Horizontal blanking is fixed by the mode; vertical blanking resets
// to the mode default, which in turn bounds the exposure.
func (cs *controlSet) applyMode(m *Mode) {
	cs.mode = m

	hblank := int64(m.HTSDef) - int64(m.Width)
	cs.ctrls[ControlHBlank] = control{
		Range:    Range{Min: hblank, Max: hblank, Step: 1, Def: hblank},
		cur:      hblank,
		readOnly: true,
	}

	vblankDef := int64(m.VTSDef) - int64(m.Height)
	cs.ctrls[ControlVBlank] = control{
		Range: Range{Min: vblankDef, Max: VTSMax - int64(m.Height), Step: 1, Def: vblankDef},
		cur:   vblankDef,
	}

	cs.updateExposureMax()
}

// updateExposureMax keeps the longest exposure within the frame
// length implied by the current vertical blanking.
func (cs *controlSet) updateExposureMax() {
	exp := &cs.ctrls[ControlExposure]
	exp.Max = int64(cs.mode.Height) + cs.ctrls[ControlVBlank].cur - exposureMargin
	exp.cur = clamp(exp.cur, exp.Min, exp.Max)
}

// set validates and stores a control value. Values are aligned to the
// control's step by rounding down. Changing the vertical blanking
// adjusts the exposure range and clamps the current exposure into it.
func (cs *controlSet) set(id ControlID, v int64) error {
	if id < 0 || id >= nControls {
		return fmt.Errorf("%w: unknown control %d", ErrInvalidArgument, int(id))
	}
	c := &cs.ctrls[id]
	if c.readOnly {
		return fmt.Errorf("%w: control %v is read-only", ErrInvalidArgument, id)
	}
	if v < c.Min || v > c.Max {
		return fmt.Errorf("%w: %v value %d outside [%d, %d]", ErrInvalidArgument, id, v, c.Min, c.Max)
	}
	c.cur = c.Min + (v-c.Min)/c.Step*c.Step

	if id == ControlVBlank {
		cs.updateExposureMax()
	}
	return nil
}

func (cs *controlSet) get(id ControlID) (int64, error) {
	if id < 0 || id >= nControls {
		return 0, fmt.Errorf("%w: unknown control %d", ErrInvalidArgument, int(id))
	}
	return cs.ctrls[id].cur, nil
}

func (cs *controlSet) rangeOf(id ControlID) (Range, error) {
	if id < 0 || id >= nControls {
		return Range{}, fmt.Errorf("%w: unknown control %d", ErrInvalidArgument, int(id))
	}
	return cs.ctrls[id].Range, nil
}

type regWriter interface {
	writeReg(addr uint16, width uint, val uint32) error
}

// push writes one control's current value to the sensor. Controls
// without a register backing are a no-op.
func (cs *controlSet) push(w regWriter, id ControlID) error {
	v := uint32(cs.ctrls[id].cur)
	switch id {
	case ControlExposure:
		return w.writeReg(RegExposure, reg24, v<<4)
	case ControlAnalogGain:
		if err := w.writeReg(RegGainH, reg8, (v>>gainHShift)&gainHMask); err != nil {
			return err
		}
		return w.writeReg(RegGainL, reg8, v&gainLMask)
	case ControlVBlank:
		return w.writeReg(RegVTS, reg16, v+cs.mode.Height)
	case ControlTestPattern:
		if v == 0 {
			return w.writeReg(RegTestPattern, reg8, testPatternDisable)
		}
		return w.writeReg(RegTestPattern, reg8, (v-1)|testPatternEnable)
	}
	return nil
}

// pushAll writes every register-backed control in registration order.
// The first failure aborts; earlier writes stay applied.
func (cs *controlSet) pushAll(w regWriter) error {
	order := []ControlID{ControlVBlank, ControlExposure, ControlAnalogGain, ControlTestPattern}
	for _, id := range order {
		if err := cs.push(w, id); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
