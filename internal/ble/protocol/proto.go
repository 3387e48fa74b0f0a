// Package protocol implements the framing used by the Meizu btir BLE remote:
// outbound command frames, query responses, and the push-notification
// fragments of a learned IR code.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header is the first byte of every frame in both directions.
const Header byte = 0x55

// frameOverhead counts the length, sequence, and opcode bytes; the length
// byte covers everything after the header.
const frameOverhead = 3

// minFrameLen is the header, length, sequence, and opcode/status bytes.
const minFrameLen = 4

// Opcode identifies an outbound command.
type Opcode byte

const (
	OpFragment         Opcode = 0x00 // upload header / data fragment
	OpPrepare          Opcode = 0x03 // announce the key of an IR code to send
	OpCaptureStart     Opcode = 0x05 // enter IR learning mode
	OpCaptureAck       Opcode = 0x06 // acknowledge end of learning
	OpCaptureStop      Opcode = 0x0b // leave IR learning mode
	OpReadBattery      Opcode = 0x10
	OpReadTempHumidity Opcode = 0x11
)

// Status values found at byte 3 of a response or notification.
const (
	StatusCaptureStarted byte = 0x07
	StatusData           byte = 0x09
)

// ErrProtocol reports a malformed, truncated, or unexpected frame.
var ErrProtocol = errors.New("protocol error")

// Frame is a decoded frame.
type Frame struct {
	Length   byte
	Sequence byte
	Opcode   byte // status for responses
	Payload  []byte
}

// EncodeFrame builds an outbound frame:
//
//	0x55 | len(payload)+3 | sequence | opcode | payload
func EncodeFrame(op Opcode, seq byte, payload []byte) ([]byte, error) {
	if len(payload)+frameOverhead > 0xff {
		return nil, fmt.Errorf("protocol: payload of %d bytes does not fit a frame: %w", len(payload), ErrProtocol)
	}
	buf := make([]byte, 0, minFrameLen+len(payload))
	buf = append(buf, Header, byte(len(payload)+frameOverhead), seq, byte(op))
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeFrame validates the header and declared length of b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < minFrameLen {
		return Frame{}, fmt.Errorf("protocol: frame of %d bytes is too short: %w", len(b), ErrProtocol)
	}
	if b[0] != Header {
		return Frame{}, fmt.Errorf("protocol: bad header 0x%02x: %w", b[0], ErrProtocol)
	}
	end := int(b[1]) + 1
	if end < minFrameLen {
		return Frame{}, fmt.Errorf("protocol: declared length %d is too small: %w", b[1], ErrProtocol)
	}
	if len(b) < end {
		return Frame{}, fmt.Errorf("protocol: declared length %d exceeds %d received bytes: %w", b[1], len(b)-1, ErrProtocol)
	}
	payload := make([]byte, end-minFrameLen)
	copy(payload, b[minFrameLen:end])
	return Frame{
		Length:   b[1],
		Sequence: b[2],
		Opcode:   b[3],
		Payload:  payload,
	}, nil
}

// Climate is a decoded temperature/humidity response.
type Climate struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// DecodeClimate parses the response to OpReadTempHumidity. Bytes 4-5 and 6-7
// hold little-endian hundredths of °C and %RH.
func DecodeClimate(b []byte) (Climate, error) {
	f, err := DecodeFrame(b)
	if err != nil {
		return Climate{}, err
	}
	if len(f.Payload) < 4 {
		return Climate{}, fmt.Errorf("protocol: climate payload of %d bytes: %w", len(f.Payload), ErrProtocol)
	}
	return Climate{
		Temperature: float64(binary.LittleEndian.Uint16(f.Payload[0:2])) / 100.0,
		Humidity:    float64(binary.LittleEndian.Uint16(f.Payload[2:4])) / 100.0,
	}, nil
}

// DecodeBatteryVolts parses the response to OpReadBattery. Byte 4 holds
// tenths of a volt.
func DecodeBatteryVolts(b []byte) (float64, error) {
	f, err := DecodeFrame(b)
	if err != nil {
		return 0, err
	}
	if len(f.Payload) < 1 {
		return 0, fmt.Errorf("protocol: empty battery payload: %w", ErrProtocol)
	}
	return float64(f.Payload[0]) / 10.0, nil
}

// BatteryPercent maps a CR2032 cell voltage to a coarse charge percentage.
func BatteryPercent(volts float64) int {
	switch {
	case volts > 3.0:
		return 100
	case volts > 2.98:
		return 80
	case volts > 2.95:
		return 60
	case volts > 2.9:
		return 40
	case volts > 2.78:
		return 20
	case volts > 2.0:
		return 1
	}
	return 0
}

// IsSendAccepted decodes the response to OpPrepare and reports whether the
// device already holds the code for the key, so no fragments need to follow.
// That answer is exactly one payload byte set to 1.
func IsSendAccepted(b []byte) (bool, error) {
	f, err := DecodeFrame(b)
	if err != nil {
		return false, err
	}
	return len(b) == minFrameLen+1 && len(f.Payload) == 1 && f.Payload[0] == 1, nil
}

// IsCaptureStarted decodes the response to OpCaptureStart and reports
// whether it acknowledges learning mode with a bare StatusCaptureStarted.
func IsCaptureStarted(b []byte) (bool, error) {
	f, err := DecodeFrame(b)
	if err != nil {
		return false, err
	}
	return len(b) == minFrameLen && f.Opcode == StatusCaptureStarted, nil
}
