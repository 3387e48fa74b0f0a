package ble

import "tinygo.org/x/bluetooth"

// readBufferSize covers the largest ATT value the btir returns.
const readBufferSize = 512

// platformChar is empty on Windows; tinygo bluetooth reads and writes
// directly.
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

func (c *tinyGoCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, readBufferSize)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
