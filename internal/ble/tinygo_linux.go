package ble

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// tinygo bluetooth on Linux only writes without response, so acknowledged
// writes and reads go to BlueZ directly.
const (
	bluezBus          = "org.bluez"
	bluezGattChar     = "org.bluez.GattCharacteristic1"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	// bluezAdapterID is the controller behind bluetooth.DefaultAdapter.
	bluezAdapterID = "hci0"
)

// platformChar is the BlueZ object of a characteristic.
type platformChar struct {
	bus  *dbus.Conn
	path dbus.ObjectPath
}

// wrap pairs every discovered characteristic with its BlueZ object path.
func (c *tinyGoConnection) wrap(chars []bluetooth.DeviceCharacteristic) ([]Characteristic, error) {
	// SystemBus is a shared connection; it is never closed here.
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := bus.Object(bluezBus, "/").Call(dbusObjectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("ble: list BlueZ objects: %w", err)
	}
	paths := characteristicPaths(objects, bluezDevicePath(bluezAdapterID, c.address))

	out := make([]Characteristic, 0, len(chars))
	for i := range chars {
		uuid := strings.ToLower(chars[i].UUID().String())
		path, ok := paths[uuid]
		if !ok {
			return nil, fmt.Errorf("ble: no BlueZ object for characteristic %s", uuid)
		}
		out = append(out, &tinyGoCharacteristic{
			char:         chars[i],
			platformChar: platformChar{bus: bus, path: path},
		})
	}
	return out, nil
}

// bluezDevicePath converts a MAC address to its BlueZ object path, e.g.
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func bluezDevicePath(adapterID, mac string) dbus.ObjectPath {
	dev := strings.ToUpper(strings.ReplaceAll(mac, ":", "_"))
	return dbus.ObjectPath("/org/bluez/" + adapterID + "/dev_" + dev)
}

// characteristicPaths maps lowercase UUIDs to the GattCharacteristic1
// objects below device. For a repeated UUID the lowest path wins.
func characteristicPaths(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, device dbus.ObjectPath) map[string]dbus.ObjectPath {
	prefix := string(device) + "/"
	found := make(map[string]dbus.ObjectPath)
	for path, ifaces := range objects {
		props, ok := ifaces[bluezGattChar]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		uuid, ok := props["UUID"].Value().(string)
		if !ok {
			continue
		}
		uuid = strings.ToLower(uuid)
		if prev, dup := found[uuid]; dup && prev < path {
			continue
		}
		found[uuid] = path
	}
	return found
}

// writeOptions selects a write request (acknowledged) or a write command.
func writeOptions(withResponse bool) map[string]dbus.Variant {
	mode := "command"
	if withResponse {
		mode = "request"
	}
	return map[string]dbus.Variant{"type": dbus.MakeVariant(mode)}
}

func (c *tinyGoCharacteristic) Write(data []byte, withResponse bool) error {
	call := c.bus.Object(bluezBus, c.path).Call(bluezGattChar+".WriteValue", 0, data, writeOptions(withResponse))
	if call.Err != nil {
		return fmt.Errorf("ble: write %s: %w", c.path, call.Err)
	}
	return nil
}

func (c *tinyGoCharacteristic) Read() ([]byte, error) {
	var data []byte
	call := c.bus.Object(bluezBus, c.path).Call(bluezGattChar+".ReadValue", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, fmt.Errorf("ble: read %s: %w", c.path, call.Err)
	}
	if err := call.Store(&data); err != nil {
		return nil, fmt.Errorf("ble: decode read of %s: %w", c.path, err)
	}
	return data, nil
}
