package ble

import (
	"context"
	"fmt"
	"time"
)

// ScanForDevices scans for nearby peripherals for the given duration.
// An empty serviceUUID reports every advertiser; the btir does not
// advertise a distinctive service, so callers usually pick it by name.
func ScanForDevices(adapter Adapter, serviceUUID string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}
