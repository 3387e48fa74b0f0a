package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// platformChar is empty on macOS; tinygo bluetooth writes directly.
type platformChar struct{}

func (c *tinyGoConnection) wrap(chars []bluetooth.DeviceCharacteristic) ([]Characteristic, error) {
	out := make([]Characteristic, 0, len(chars))
	for i := range chars {
		out = append(out, &tinyGoCharacteristic{char: chars[i]})
	}
	return out, nil
}

func (c *tinyGoCharacteristic) Write(data []byte, withResponse bool) error {
	var err error
	if withResponse {
		_, err = c.char.Write(data)
	} else {
		_, err = c.char.WriteWithoutResponse(data)
	}
	return err
}

// Read is unavailable: tinygo bluetooth has no CoreBluetooth read, so only
// scanning works on macOS.
func (c *tinyGoCharacteristic) Read() ([]byte, error) {
	return nil, fmt.Errorf("ble: characteristic read on macOS: %w", ErrUnsupported)
}
