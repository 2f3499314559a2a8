package bridge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// duplex stands in for the serial port. Reads drain the in buffer,
// writes land in the out buffer.
type duplex struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (d *duplex) Read(p []byte) (int, error)  { return d.in.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.out.Write(p) }

func TestFrameRoundTrip(t *testing.T) {
	frame := encodeFrame(typeXfer, []byte("600002000092"))

	typ, payload, err := readFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, typeXfer, typ)
	assert.Equal(t, []byte("600002000092"), payload)
}

func TestFrameLayout(t *testing.T) {
	frame := encodeFrame(typeFreq, nil)

	// Sync, length and type are plain text, the CRC trails.
	assert.Equal(t, "   #0004FREQ", string(frame[:12]))
	assert.Len(t, frame, 20)
}

func TestFrameResync(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("\x00\x01boot noise\r\n")
	b.Write(encodeFrame(typeFreq, nil))

	typ, payload, err := readFrame(&b)
	require.NoError(t, err)
	assert.Equal(t, typeFreq, typ)
	assert.Empty(t, payload)
}

func TestFrameRejectsCorruptPayload(t *testing.T) {
	frame := encodeFrame(typeXfer, []byte("AB"))
	frame[12] ^= 0x20

	_, _, err := readFrame(bytes.NewReader(frame))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRC mismatch")
}

func TestFrameRejectsBadLength(t *testing.T) {
	_, _, err := readFrame(bytes.NewReader([]byte("   #0002XFER")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid frame length")

	_, _, err = readFrame(bytes.NewReader([]byte("   #ZZZZXFER")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame length")
}

func TestFrameTruncated(t *testing.T) {
	frame := encodeFrame(typeXfer, []byte("AB"))

	_, _, err := readFrame(bytes.NewReader(frame[:len(frame)-3]))
	require.Error(t, err)
}

func TestTx(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame(typeXfer, []byte("9281")))
	b := &Bridge{rw: d}

	r := make([]byte, 2)
	require.NoError(t, b.Tx(0x60, []byte{0x30, 0x0a}, r))
	assert.Equal(t, []byte{0x92, 0x81}, r)

	// The request as it went out to the adapter.
	typ, payload, err := readFrame(&d.out)
	require.NoError(t, err)
	assert.Equal(t, typeXfer, typ)
	assert.Equal(t, "6000020002300A", string(payload))
}

func TestTxWriteOnly(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame(typeXfer, nil))
	b := &Bridge{rw: d}

	require.NoError(t, b.Tx(0x60, []byte{0x01, 0x00, 0x01}, nil))

	_, payload, err := readFrame(&d.out)
	require.NoError(t, err)
	assert.Equal(t, "6000030000010001", string(payload))
}

func TestTxNack(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame(typeNack, []byte("address not acked")))
	b := &Bridge{rw: d}

	err := b.Tx(0x60, []byte{0x30, 0x0a}, make([]byte, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address not acked")
}

func TestTxSkipsUnrelatedFrames(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame("EVNT", []byte("DEAD")))
	d.in.Write(encodeFrame(typeXfer, []byte("92")))
	b := &Bridge{rw: d}

	r := make([]byte, 1)
	require.NoError(t, b.Tx(0x60, []byte{0x30, 0x0a}, r))
	assert.Equal(t, []byte{0x92}, r)
}

func TestTxShortResponse(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame(typeXfer, []byte("92")))
	b := &Bridge{rw: d}

	err := b.Tx(0x60, []byte{0x30, 0x0a}, make([]byte, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short bridge read")
}

func TestSetSpeed(t *testing.T) {
	d := &duplex{}
	d.in.Write(encodeFrame(typeFreq, nil))
	b := &Bridge{rw: d}

	require.NoError(t, b.SetSpeed(400*physic.KiloHertz))

	typ, payload, err := readFrame(&d.out)
	require.NoError(t, err)
	assert.Equal(t, typeFreq, typ)
	assert.Equal(t, "00061A80", string(payload))
}

func TestSetSpeedRejectsOutOfRange(t *testing.T) {
	b := &Bridge{rw: &duplex{}}

	assert.Error(t, b.SetSpeed(0))
	assert.Error(t, b.SetSpeed(10*physic.MegaHertz))
}

func TestString(t *testing.T) {
	assert.Equal(t, "bridge", (&Bridge{}).String())
	assert.Equal(t, "bridge(/dev/ttyUSB0)", (&Bridge{name: "/dev/ttyUSB0"}).String())
}
