package ov9281

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencam/ov9281/internal/bustest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestDevice opens a driver against a simulated sensor that
// answers the identity probe, with the traffic log cleared.
func setupTestDevice(t *testing.T) (*bustest.Sensor, *OV9281) {
	t.Helper()

	s := bustest.New(0x60)
	s.SetReg(0x300a, 0x92)
	s.SetReg(0x300b, 0x81)

	o, err := Open(s, &Opts{Logger: discardLogger()})
	require.NoError(t, err)
	s.ClearLog()
	return s, o
}

func TestOpenChecksIdentity(t *testing.T) {
	s := bustest.New(0x60)
	s.SetReg(0x300a, 0x92)
	s.SetReg(0x300b, 0x81)

	o, err := Open(s, &Opts{Logger: discardLogger()})
	require.NoError(t, err)
	assert.False(t, o.Powered())
	assert.False(t, o.Streaming())

	// The id is read low byte first, high byte second.
	assert.Equal(t, []uint16{0x300b, 0x300a}, s.Reads())
}

func TestOpenRejectsWrongIdentity(t *testing.T) {
	s := bustest.New(0x60)
	s.SetReg(0x300a, 0x92)
	s.SetReg(0x300b, 0x80)

	o, err := Open(s, &Opts{Logger: discardLogger()})
	require.ErrorIs(t, err, ErrIdentity)
	assert.Nil(t, o)
	assert.Contains(t, err.Error(), "0x9280")
}

func TestOpenIdentityReadFailure(t *testing.T) {
	s := bustest.New(0x60)
	s.FailReadsFrom(0x300b, errors.New("bounce"))

	_, err := Open(s, &Opts{Logger: discardLogger()})
	require.ErrorIs(t, err, ErrIdentity)
	assert.ErrorIs(t, err, ErrIO)
}

func TestOpenCustomAddr(t *testing.T) {
	s := bustest.New(0x10)
	s.SetReg(0x300a, 0x92)
	s.SetReg(0x300b, 0x81)

	// The default address misses the device entirely.
	_, err := Open(s, &Opts{Logger: discardLogger()})
	require.ErrorIs(t, err, ErrIdentity)

	o, err := Open(s, &Opts{Addr: 0x10, Logger: discardLogger()})
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestOpenPowerFailure(t *testing.T) {
	s := bustest.New(0x60)
	s.SetReg(0x300a, 0x92)
	s.SetReg(0x300b, 0x81)
	clk := &fakeClock{rec: &seqRec{}, enableErr: errors.New("stuck")}

	_, err := Open(s, &Opts{Xvclk: clk, Logger: discardLogger()})
	require.ErrorIs(t, err, ErrPower)
	assert.Empty(t, s.Reads())
}

func TestFormatNegotiation(t *testing.T) {
	_, o := setupTestDevice(t)

	f := o.SetFormat(640, 480, false)
	assert.Equal(t, Format{Width: 1280, Height: 800, Code: Y10}, f)
	assert.Equal(t, f, o.GetFormat(false))
}

func TestTryFormatIsIsolated(t *testing.T) {
	_, o := setupTestDevice(t)

	// Before any try negotiation the default mode is reported.
	assert.Equal(t, Format{Width: 1280, Height: 800, Code: Y10}, o.GetFormat(true))

	require.NoError(t, o.SetControl(ControlVBlank, 400))
	o.SetFormat(320, 240, true)

	// The try slot filled in, the active configuration did not move.
	assert.Equal(t, Format{Width: 1280, Height: 800, Code: Y10}, o.GetFormat(true))
	v, err := o.GetControl(ControlVBlank)
	require.NoError(t, err)
	assert.Equal(t, int64(400), v)

	// Committing the format re-derives the blanking defaults.
	o.SetFormat(320, 240, false)
	v, err = o.GetControl(ControlVBlank)
	require.NoError(t, err)
	assert.Equal(t, int64(110), v)
}

func TestGetCrop(t *testing.T) {
	_, o := setupTestDevice(t)

	full := image.Rect(0, 0, 1280, 800)
	for _, target := range []CropTarget{CropActive, CropNative, CropDefault, CropBounds} {
		r, err := o.GetCrop(target)
		require.NoError(t, err)
		assert.Equal(t, full, r)
	}

	_, err := o.GetCrop(CropTarget(99))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetControlIdleBuffersValue(t *testing.T) {
	s, o := setupTestDevice(t)

	require.NoError(t, o.SetControl(ControlExposure, 500))
	assert.Empty(t, s.RegWrites())

	v, err := o.GetControl(ControlExposure)
	require.NoError(t, err)
	assert.Equal(t, int64(500), v)
}

func TestSetControlWhileStreamingPushes(t *testing.T) {
	s, o := setupTestDevice(t)
	require.NoError(t, o.SetStreaming(true))

	s.ClearLog()
	require.NoError(t, o.SetControl(ControlExposure, 500))
	writes := s.RegWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, bustest.RegWrite{Addr: RegExposure, Data: []byte{0x00, 0x1f, 0x40}}, writes[0])

	// Vertical blanking refreshes the frame length register.
	s.ClearLog()
	require.NoError(t, o.SetControl(ControlVBlank, 200))
	writes = s.RegWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, bustest.RegWrite{Addr: RegVTS, Data: []byte{0x03, 0xe8}}, writes[0])
}

func TestSetControlValidation(t *testing.T) {
	_, o := setupTestDevice(t)

	assert.ErrorIs(t, o.SetControl(ControlHBlank, 10), ErrInvalidArgument)
	assert.ErrorIs(t, o.SetControl(ControlExposure, 10000), ErrInvalidArgument)

	_, err := o.GetControl(ControlID(77))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = o.ControlRange(ControlID(77))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetPower(t *testing.T) {
	_, o := setupTestDevice(t)

	require.NoError(t, o.SetPower(true))
	assert.True(t, o.Powered())
	require.NoError(t, o.SetPower(true))
	assert.True(t, o.Powered())

	require.NoError(t, o.SetPower(false))
	assert.False(t, o.Powered())
	require.NoError(t, o.SetPower(false))
	assert.False(t, o.Powered())
}

func TestPowerOutlivesStreaming(t *testing.T) {
	_, o := setupTestDevice(t)

	require.NoError(t, o.SetPower(true))
	require.NoError(t, o.SetStreaming(true))
	require.NoError(t, o.SetStreaming(false))
	assert.True(t, o.Powered())

	require.NoError(t, o.SetPower(false))
	assert.False(t, o.Powered())
}

func TestTestPatternModes(t *testing.T) {
	_, o := setupTestDevice(t)

	names := o.TestPatternModes()
	require.Len(t, names, 5)
	assert.Equal(t, "Disabled", names[0])
	assert.Equal(t, "Vertical Color Bar Type 4", names[4])

	// Callers get a copy, not the catalog itself.
	names[0] = "mangled"
	assert.Equal(t, "Disabled", o.TestPatternModes()[0])
}
