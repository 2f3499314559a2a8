// Package ov9281 controls the OmniVision OV9281 1280x800 global
// shutter image sensor over its SCCB register interface.
//
// The driver covers mode negotiation, the power and clock bring-up
// sequence, streaming state and the exposure, gain, blanking and test
// pattern controls. Frame data leaves the sensor on a separate MIPI
// CSI-2 link that the host SoC consumes; it never passes through this
// package.
package ov9281
