package ble

import (
	"errors"
	"fmt"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

var (
	// ErrConnection reports an unreachable device or a device without the
	// control characteristic.
	ErrConnection = errors.New("ble: connection failed")
	// ErrProtocol reports a malformed or truncated frame from the device.
	ErrProtocol = protocol.ErrProtocol
	// ErrCaptureRejected means the device did not acknowledge learning mode.
	ErrCaptureRejected = errors.New("ble: device rejected IR capture")
	// ErrReceiveTimeout means no fragment arrived within the receive timeout.
	ErrReceiveTimeout = errors.New("ble: timed out waiting for IR code")
	// ErrReassembly means a fragment arrived out of order and the learned
	// code was discarded. Call Receive again to retry.
	ErrReassembly = errors.New("ble: IR code fragment out of order")
	// ErrInvalidHex rejects a key or IR code that is not a hex string.
	ErrInvalidHex = errors.New("ble: invalid hex")
	// ErrUnsupported reports a transport primitive the platform's BLE stack
	// does not provide.
	ErrUnsupported = errors.New("ble: not supported on this platform")
)

// BackendError is returned by Update when the device could not be read.
// The cached readings are left untouched.
type BackendError struct {
	Op      string
	Address string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ble: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
