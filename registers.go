package ov9281

import "periph.io/x/conn/v3/physic"

// DefaultAddr is the sensor's 7-bit SCCB address.
const DefaultAddr uint16 = 0x60

// Chip identification. Two 8-bit registers hold the chip id, most
// significant byte at RegChipID.
const (
	ChipID    uint32 = 0x9281
	RegChipID uint16 = 0x300a
)

// Streaming control.
const (
	RegCtrlMode   uint16 = 0x0100
	ModeSWStandby uint8  = 0x00
	ModeStreaming uint8  = 0x01
)

// Exposure, in lines. The 4 least significant register bits are a
// fractional part.
const (
	RegExposure  uint16 = 0x3500
	ExposureMin  int64  = 4
	ExposureStep int64  = 1
)

// Analog gain, split over a high and a low byte register.
const (
	RegGainH uint16 = 0x3508
	RegGainL uint16 = 0x3509

	gainHMask  = 0x07
	gainHShift = 8
	gainLMask  = 0xff

	GainMin     int64 = 0x10
	GainMax     int64 = 0xf8
	GainStep    int64 = 1
	GainDefault int64 = 0x10
)

// Test pattern selection.
const (
	RegTestPattern     uint16 = 0x5e00
	testPatternEnable  uint32 = 0x80
	testPatternDisable uint32 = 0x00
)

// Frame timing. VTS is the total line count per frame including
// vertical blanking.
const (
	RegVTS uint16 = 0x380e
	VTSMax int64  = 0x7fff
)

// Native and active pixel array sizes. The datasheet does not state
// border pixels, so both arrays are assumed equal.
const (
	NativeWidth  uint32 = 1280
	NativeHeight uint32 = 800

	pixelArrayLeft   = 0
	pixelArrayTop    = 0
	pixelArrayWidth  = 1280
	pixelArrayHeight = 800
)

// Link geometry. The sensor streams over a 2-lane MIPI CSI-2 link;
// pixel rate = link frequency * 2 * lanes / bits per sample.
const (
	LinkFreq      = 400 * physic.MegaHertz
	Lanes         = 2
	BitsPerSample = 10

	PixelRate int64 = int64(LinkFreq/physic.Hertz) * 2 * Lanes / BitsPerSample

	// XvclkFreq is the external clock rate all mode timings assume.
	XvclkFreq = 24 * physic.MegaHertz
)
