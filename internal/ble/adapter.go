// Package ble talks to a Meizu btir IR remote over Bluetooth Low Energy. It
// reads the built-in thermometer, sends IR codes, and learns new ones. Every
// operation opens its own connection and closes it before returning.
package ble

import "context"

// ControlCharUUID is the characteristic carrying every command, response,
// and notification of the btir protocol.
const ControlCharUUID = "000016f2-0000-1000-8000-00805f9b34fb"

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical lowercase form.
	UUID() string
	// Write sends data, waiting for the peripheral's acknowledgement when
	// withResponse is true.
	Write(data []byte, withResponse bool) error
	// Read returns the current value of the characteristic.
	Read() ([]byte, error)
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Characteristics enumerates every characteristic of every service.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID, or
	// all peripherals when serviceUUID is empty. Returns discovered devices
	// once ctx is done.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, mac string) (Connection, error)
}
