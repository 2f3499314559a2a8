package ov9281

import "image"

// PixelFormat identifies a media bus pixel encoding.
type PixelFormat uint32

// Y10 is the only encoding the sensor outputs: 10-bit greyscale, one
// sample per pixel.
const Y10 PixelFormat = 0x200a

// RegVal is one entry of a mode's register program.
type RegVal struct {
	Addr uint16
	Val  uint8
}

// Mode describes one sensor configuration. Modes are static: the
// driver hands out pointers into the package catalog and never
// mutates them.
type Mode struct {
	Width  uint32
	Height uint32
	HTSDef uint32
	VTSDef uint32
	ExpDef uint32
	Crop   image.Rectangle
	Regs   []RegVal
}

// 24MHz input clock, 120fps maximum, 800Mbps MIPI data rate per lane.
var mode1280x800 = Mode{
	Width:  1280,
	Height: 800,
	ExpDef: 0x0320,
	HTSDef: 0x05b0,
	VTSDef: 0x038e,
	Crop:   image.Rect(0, 0, 1280, 800),
	Regs:   mode1280x800Regs,
}

var modes = []*Mode{&mode1280x800}

var mode1280x800Regs = []RegVal{
	{0x0103, 0x01},
	{0x0302, 0x32},
	{0x030d, 0x50},
	{0x030e, 0x02},
	{0x3001, 0x00},
	{0x3004, 0x00},
	{0x3005, 0x00},
	{0x3006, 0x04},
	{0x3011, 0x0a},
	{0x3013, 0x18},
	{0x3022, 0x01},
	{0x3023, 0x00},
	{0x302c, 0x00},
	{0x302f, 0x00},
	{0x3030, 0x04},
	{0x3039, 0x32},
	{0x303a, 0x00},
	{0x303f, 0x01},
	{0x3500, 0x00},
	{0x3501, 0x2a},
	{0x3502, 0x90},
	{0x3503, 0x08},
	{0x3505, 0x8c},
	{0x3507, 0x03},
	{0x3508, 0x00},
	{0x3509, 0x10},
	{0x3610, 0x80},
	{0x3611, 0xa0},
	{0x3620, 0x6f},
	{0x3632, 0x56},
	{0x3633, 0x78},
	{0x3662, 0x05},
	{0x3666, 0x00},
	{0x366f, 0x5a},
	{0x3680, 0x84},
	{0x3712, 0x80},
	{0x372d, 0x22},
	{0x3731, 0x80},
	{0x3732, 0x30},
	{0x3778, 0x00},
	{0x377d, 0x22},
	{0x3788, 0x02},
	{0x3789, 0xa4},
	{0x378a, 0x00},
	{0x378b, 0x4a},
	{0x3799, 0x20},
	{0x3800, 0x00},
	{0x3801, 0x00},
	{0x3802, 0x00},
	{0x3803, 0x00},
	{0x3804, 0x05},
	{0x3805, 0x0f},
	{0x3806, 0x03},
	{0x3807, 0x2f},
	{0x3808, 0x05},
	{0x3809, 0x00},
	{0x380a, 0x03},
	{0x380b, 0x20},
	{0x380c, 0x02},
	{0x380d, 0xd8},
	{0x380e, 0x03},
	{0x380f, 0x8e},
	{0x3810, 0x00},
	{0x3811, 0x08},
	{0x3812, 0x00},
	{0x3813, 0x08},
	{0x3814, 0x11},
	{0x3815, 0x11},
	{0x3820, 0x40},
	{0x3821, 0x00},
	{0x3881, 0x42},
	{0x38b1, 0x00},
	{0x3920, 0xff},
	{0x4003, 0x40},
	{0x4008, 0x04},
	{0x4009, 0x0b},
	{0x400c, 0x00},
	{0x400d, 0x07},
	{0x4010, 0x40},
	{0x4043, 0x40},
	{0x4307, 0x30},
	{0x4317, 0x00},
	{0x4501, 0x00},
	{0x4507, 0x00},
	{0x4509, 0x00},
	{0x450a, 0x08},
	{0x4601, 0x04},
	{0x470f, 0x00},
	{0x4f07, 0x00},
	{0x4800, 0x00},
	{0x5000, 0x9f},
	{0x5001, 0x00},
	{0x5e00, 0x00},
	{0x5d00, 0x07},
	{0x5d01, 0x00},
}

// PixelFormats lists the media bus encodings the sensor can produce.
func PixelFormats() []PixelFormat {
	return []PixelFormat{Y10}
}

// FrameSizes lists the discrete output sizes of the mode catalog.
func FrameSizes() []image.Point {
	sizes := make([]image.Point, len(modes))
	for i, m := range modes {
		sizes[i] = image.Pt(int(m.Width), int(m.Height))
	}
	return sizes
}

// findBestFit picks the catalog mode closest to the requested size.
func findBestFit(width, height uint32) *Mode {
	return bestFit(modes, width, height)
}

// bestFit minimizes the Manhattan distance between requested and mode
// size. The earliest candidate wins ties.
func bestFit(candidates []*Mode, width, height uint32) *Mode {
	best := candidates[0]
	bestDist := resoDist(best, width, height)
	for _, m := range candidates[1:] {
		if d := resoDist(m, width, height); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}

func resoDist(m *Mode, width, height uint32) uint32 {
	return absDiff(m.Width, width) + absDiff(m.Height, height)
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
