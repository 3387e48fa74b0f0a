package ble

import (
	"context"
	"log/slog"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

// Attributes reported for every device.
const (
	AttrTemperature  = "temperature"
	AttrHumidity     = "humidity"
	AttrBattery      = "battery"
	AttrAvailability = "availability"
)

// MonitoredAttributes lists the attributes in publishing order.
var MonitoredAttributes = []string{AttrTemperature, AttrHumidity, AttrBattery, AttrAvailability}

// Online is the value of AttrAvailability for a reachable device.
const Online = "online"

// Update reads temperature, humidity, and battery from the device. Unless
// force is set, the round trip is skipped while the cached readings are
// younger than the minimum update interval. On failure the cached readings
// are unchanged and a *BackendError is returned.
func (c *Client) Update(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.fresh() {
		return nil
	}

	var r Readings
	err := c.withSession(ctx, func(s *session) error {
		resp, err := s.exchange(protocol.OpReadTempHumidity, c.seq.Next(), nil)
		if err != nil {
			return err
		}
		climate, err := protocol.DecodeClimate(resp)
		if err != nil {
			return err
		}

		resp, err = s.exchange(protocol.OpReadBattery, c.seq.Next(), nil)
		if err != nil {
			return err
		}
		volts, err := protocol.DecodeBatteryVolts(resp)
		if err != nil {
			return err
		}

		r = Readings{
			Temperature: climate.Temperature,
			Humidity:    climate.Humidity,
			Battery:     protocol.BatteryPercent(volts),
		}
		return nil
	})
	if err != nil {
		return &BackendError{Op: "update", Address: c.address, Err: err}
	}

	c.cacheMu.Lock()
	c.readings = r
	c.lastUpdate = c.now()
	c.cacheMu.Unlock()

	slog.Debug("[BLE] readings updated", "address", c.address,
		"temperature", r.Temperature, "humidity", r.Humidity, "battery", r.Battery)
	return nil
}

// fresh reports whether the cached readings are within the update interval.
func (c *Client) fresh() bool {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if c.lastUpdate.IsZero() {
		return false
	}
	return c.now().Sub(c.lastUpdate) < c.opts.MinUpdateInterval
}

// ParameterValue returns the value of attr: float64 for temperature and
// humidity, int for battery, and Online for availability. With readCached
// false the device is read first; otherwise a throttled update runs.
func (c *Client) ParameterValue(ctx context.Context, attr string, readCached bool) (any, error) {
	if err := c.Update(ctx, !readCached); err != nil {
		return nil, err
	}
	r, _ := c.Readings()
	switch attr {
	case AttrTemperature:
		return r.Temperature, nil
	case AttrHumidity:
		return r.Humidity, nil
	case AttrBattery:
		return r.Battery, nil
	}
	return Online, nil
}
