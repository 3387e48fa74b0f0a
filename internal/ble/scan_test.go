package ble

import (
	"testing"
	"time"
)

func TestScanForDevices(t *testing.T) {
	devices := []Device{
		{Name: "MZBTIR", MAC: "AA:BB:CC:DD:EE:FF", RSSI: -45},
	}
	adapter := newMockAdapter(devices)

	result, err := ScanForDevices(adapter, "", 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d devices, want 1", len(result))
	}
	if result[0].Name != "MZBTIR" {
		t.Errorf("Name = %q, want %q", result[0].Name, "MZBTIR")
	}
	if result[0].MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC = %q, want %q", result[0].MAC, "AA:BB:CC:DD:EE:FF")
	}
}

func TestScanForDevicesEmpty(t *testing.T) {
	adapter := newMockAdapter(nil)
	result, err := ScanForDevices(adapter, "", 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}
