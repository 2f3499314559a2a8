// Package bridge drives sensors behind a USB serial register bridge.
//
// The bridge is a small MCU board that forwards SCCB transactions to
// an attached sensor module, for bench work without a host SoC. Its
// wire protocol is ASCII framed: a "   #" sync marker, a 4 hex digit
// length covering type and payload, a 4 character packet type, the
// hex payload and a CRC-32 (IEEE) trailer of 8 hex digits over type
// and payload. Requests of type XFER carry bus transactions, FREQ
// sets the bus clock; the bridge answers with the same type, or NACK
// when the device did not acknowledge.
package bridge

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// USB identity of the bridge's CP210x UART.
const bridgeVID = "10C4"

var bridgePIDs = []string{"EA60", "EA61"}

const (
	frameSync = "   #"

	typeXfer = "XFER"
	typeFreq = "FREQ"
	typeNack = "NACK"
)

// Bridge is a serial-attached register bridge. It implements i2c.Bus,
// so a sensor driver can sit on it directly.
type Bridge struct {
	port serial.Port
	name string

	// Serializes request/response pairs on the port.
	mu sync.Mutex
	rw io.ReadWriter
}

var _ i2c.Bus = (*Bridge)(nil)

// Open connects to the bridge on the named serial port. An empty name
// autodetects the port by the bridge's USB vendor and product ids.
func Open(portName string) (*Bridge, error) {
	if portName == "" {
		var err error
		portName, err = Detect()
		if err != nil {
			return nil, fmt.Errorf("failed to open bridge: %w", err)
		}
		if portName == "" {
			return nil, fmt.Errorf("failed to open bridge: no bridge detected")
		}
	}

	p, err := serial.Open(portName, &serial.Mode{}) // Baud rate is irrelevant on a USB-CDC port
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge: %w", err)
	}

	return &Bridge{port: p, name: portName, rw: p}, nil
}

// Detect scans the serial ports for the bridge's USB ids and returns
// the matching port name, or "" when none is present.
func Detect() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	for _, port := range ports {
		if strings.EqualFold(port.VID, bridgeVID) && slices.Contains(bridgePIDs, strings.ToUpper(port.PID)) {
			return port.Name, nil
		}
	}

	return "", nil
}

// Close releases the serial port.
func (b *Bridge) Close() error {
	return b.port.Close()
}

// Tx implements i2c.Bus. w is written to the device at addr, then
// len(r) bytes are read back, all in one bridged transaction.
func (b *Bridge) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := fmt.Sprintf("%02X%04X%04X%s", addr, len(w), len(r),
		strings.ToUpper(hex.EncodeToString(w)))
	data, err := b.roundTrip(typeXfer, []byte(req))
	if err != nil {
		return err
	}

	got, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("failed to decode bridge response: %w", err)
	}
	if len(got) != len(r) {
		return fmt.Errorf("short bridge read: %d bytes (want %d)", len(got), len(r))
	}
	copy(r, got)

	return nil
}

// SetSpeed implements i2c.Bus.
func (b *Bridge) SetSpeed(f physic.Frequency) error {
	if f <= 0 || f > 3400*physic.KiloHertz {
		return fmt.Errorf("invalid bus speed %s", f)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	req := fmt.Sprintf("%08X", uint32(f/physic.Hertz))
	_, err := b.roundTrip(typeFreq, []byte(req))
	return err
}

func (b *Bridge) String() string {
	if b.name == "" {
		return "bridge"
	}
	return "bridge(" + b.name + ")"
}

// roundTrip sends one framed request and waits for the response of
// the matching type, skipping unrelated traffic.
func (b *Bridge) roundTrip(typ string, payload []byte) ([]byte, error) {
	if _, err := b.rw.Write(encodeFrame(typ, payload)); err != nil {
		return nil, fmt.Errorf("failed to write to bridge: %w", err)
	}

	for {
		rtyp, data, err := readFrame(b.rw)
		if err != nil {
			return nil, fmt.Errorf("failed to read bridge response: %w", err)
		}
		switch rtyp {
		case typ:
			return data, nil
		case typeNack:
			return nil, fmt.Errorf("bridge rejected %s request: %s", typ, data)
		}
	}
}

func encodeFrame(typ string, payload []byte) []byte {
	var f bytes.Buffer
	fmt.Fprintf(&f, "%s%04X%s%s", frameSync, len(typ)+len(payload), typ, payload)
	fmt.Fprintf(&f, "%08X", crc32.ChecksumIEEE(append([]byte(typ), payload...)))
	return f.Bytes()
}

func readFrame(r io.Reader) (string, []byte, error) {
	sync := make([]byte, 4)
	if _, err := io.ReadFull(r, sync); err != nil {
		return "", nil, fmt.Errorf("failed to read frame sync: %w", err)
	}
	// Bytewise resync tolerates boot noise on the serial line.
	for !bytes.Equal(sync, []byte(frameSync)) {
		copy(sync, sync[1:])
		if _, err := io.ReadFull(r, sync[3:]); err != nil {
			return "", nil, fmt.Errorf("failed to read frame sync: %w", err)
		}
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", nil, fmt.Errorf("failed to read frame header: %w", err)
	}
	n, err := strconv.ParseUint(string(header[:4]), 16, 16)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode frame length: %w", err)
	}
	if n < 4 {
		return "", nil, fmt.Errorf("invalid frame length %d", n)
	}
	typ := string(header[4:])

	payload := make([]byte, n-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	trailer := make([]byte, 8)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return "", nil, fmt.Errorf("failed to read frame CRC: %w", err)
	}
	want, err := strconv.ParseUint(string(trailer), 16, 32)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode frame CRC: %w", err)
	}
	if got := crc32.ChecksumIEEE(append([]byte(typ), payload...)); got != uint32(want) {
		return "", nil, fmt.Errorf("frame CRC mismatch: got %08X, want %08X", got, uint32(want))
	}

	return typ, payload, nil
}
