// Package worker runs the outer loop around btir devices: it polls sensor
// values, tracks availability, builds Home Assistant discovery entries, and
// dispatches IR send/receive commands.
package worker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meishild/mzbtir/internal/ble"
)

// Sensor is the device API the worker drives. *ble.Client implements it.
type Sensor interface {
	Address() string
	ParameterValue(ctx context.Context, attr string, readCached bool) (any, error)
	Send(ctx context.Context, key, code string) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

var _ Sensor = (*ble.Client)(nil)

// Offline is published on the availability topic once a device has failed
// more than MaxFailCount consecutive updates.
const Offline = "offline"

// ErrUnknownDevice is returned for commands naming an unconfigured device.
var ErrUnknownDevice = errors.New("worker: unknown device")

// ErrBadCommand is returned for malformed command topics or payloads.
var ErrBadCommand = errors.New("worker: bad command")

// Options configures the worker.
type Options struct {
	TopicPrefix     string
	DiscoveryPrefix string
	MaxFailCount    int
	ReceiveTimeout  time.Duration
}

// DeviceStatus is a snapshot of one device for reporting.
type DeviceStatus struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	FailCount int    `json:"fail_count"`
	Offline   bool   `json:"offline"`
}

type device struct {
	name   string
	sensor Sensor

	mu        sync.Mutex
	failCount int
}

// Worker publishes state for a fixed set of devices.
type Worker struct {
	opts      Options
	publisher Publisher
	metrics   *Metrics

	devices map[string]*device
	names   []string
}

// New creates a worker. metrics may be nil.
func New(opts Options, publisher Publisher, metrics *Metrics) *Worker {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = component
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	return &Worker{
		opts:      opts,
		publisher: publisher,
		metrics:   metrics,
		devices:   make(map[string]*device),
	}
}

// AddDevice registers a device under name. Must be called before Run.
func (w *Worker) AddDevice(name string, sensor Sensor) {
	slog.Debug("[WORKER] adding device", "name", name, "address", sensor.Address())
	if _, ok := w.devices[name]; !ok {
		w.names = append(w.names, name)
		sort.Strings(w.names)
	}
	w.devices[name] = &device{name: name, sensor: sensor}
}

// Devices returns a status snapshot of every device, sorted by name.
func (w *Worker) Devices() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(w.names))
	for _, name := range w.names {
		d := w.devices[name]
		d.mu.Lock()
		out = append(out, DeviceStatus{
			Name:      name,
			Address:   d.sensor.Address(),
			FailCount: d.failCount,
			Offline:   d.failCount > w.opts.MaxFailCount,
		})
		d.mu.Unlock()
	}
	return out
}

// discoveryPayload is a Home Assistant MQTT discovery config.
type discoveryPayload struct {
	UniqueID          string          `json:"unique_id"`
	Name              string          `json:"name"`
	StateTopic        string          `json:"state_topic"`
	DeviceClass       string          `json:"device_class"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

var units = map[string]string{
	ble.AttrTemperature: "°C",
	ble.AttrHumidity:    "%",
	ble.AttrBattery:     "%",
}

// Config returns the retained discovery messages of every device.
func (w *Worker) Config() ([]Message, error) {
	var msgs []Message
	for _, name := range w.names {
		mac := w.devices[name].sensor.Address()
		dev := discoveryDevice{
			Identifiers:  []string{mac, FormatDiscoveryID(mac, name)},
			Manufacturer: "Meizu",
			Model:        "btir",
			Name:         FormatDiscoveryName(name),
		}
		for _, attr := range ble.MonitoredAttributes {
			payload, err := json.Marshal(discoveryPayload{
				UniqueID:          FormatDiscoveryID(mac, name, attr),
				Name:              FormatDiscoveryName(name, attr),
				StateTopic:        w.FormatTopic(name, attr),
				DeviceClass:       attr,
				UnitOfMeasurement: units[attr],
				Device:            dev,
			})
			if err != nil {
				return nil, fmt.Errorf("worker: encode discovery for %s/%s: %w", name, attr, err)
			}
			msgs = append(msgs, Message{
				Topic:   w.opts.DiscoveryPrefix + "/sensor/" + FormatDiscoveryTopic(mac, name, attr) + "/config",
				Payload: string(payload),
				Retain:  true,
			})
		}
	}
	return msgs, nil
}

// StatusUpdate reads every device and publishes one retained message per
// attribute. A device that fails more than MaxFailCount updates in a row
// gets "offline" on its availability topic instead.
func (w *Worker) StatusUpdate(ctx context.Context) []Message {
	slog.Info("[WORKER] updating devices", "count", len(w.names))
	var msgs []Message
	for _, name := range w.names {
		msgs = append(msgs, w.updateDevice(ctx, w.devices[name], true)...)
	}
	w.publisher.Publish(msgs...)
	return msgs
}

// Refresh forces a read of one device and publishes its state.
func (w *Worker) Refresh(ctx context.Context, name string) ([]Message, error) {
	d, ok := w.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	msgs := w.updateDevice(ctx, d, false)
	w.publisher.Publish(msgs...)
	return msgs, nil
}

func (w *Worker) updateDevice(ctx context.Context, d *device, readCached bool) []Message {
	msgs, err := w.readState(ctx, d, readCached)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		d.failCount = 0
		w.metrics.observeUpdate(d.name, nil, false)
		return msgs
	}

	d.failCount++
	offline := d.failCount > w.opts.MaxFailCount
	slog.Error("[WORKER] update failed", "device", d.name, "address", d.sensor.Address(),
		"fail_count", d.failCount, "error", err)
	w.metrics.observeUpdate(d.name, err, offline)
	if offline {
		return []Message{{Topic: w.FormatTopic(d.name, ble.AttrAvailability), Payload: Offline, Retain: true}}
	}
	return nil
}

// readState collects every attribute; the first read refreshes the device
// and the rest come from its cache.
func (w *Worker) readState(ctx context.Context, d *device, readCached bool) ([]Message, error) {
	var msgs []Message
	for i, attr := range ble.MonitoredAttributes {
		v, err := d.sensor.ParameterValue(ctx, attr, readCached || i > 0)
		if err != nil {
			return nil, err
		}
		if f, ok := toFloat(v); ok {
			w.metrics.observeReading(d.name, attr, f)
		}
		msgs = append(msgs, Message{Topic: w.FormatTopic(d.name, attr), Payload: fmt.Sprint(v), Retain: true})
	}
	return msgs, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Send emits an IR code through the named device and publishes the outcome
// on "<prefix>/<name>/send".
func (w *Worker) Send(ctx context.Context, name, key, code string) error {
	d, ok := w.devices[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	err := d.sensor.Send(ctx, key, code)
	w.metrics.observeCommand(name, "send", err)
	payload := "ok"
	if err != nil {
		slog.Error("[WORKER] send failed", "device", name, "key", key, "error", err)
		payload = "failed"
	}
	w.publisher.Publish(Message{Topic: w.FormatTopic(name, "send"), Payload: payload})
	return err
}

// Receive learns an IR code through the named device and publishes it in hex
// on "<prefix>/<name>/receive". A zero timeout uses the configured default.
func (w *Worker) Receive(ctx context.Context, name string, timeout time.Duration) (string, error) {
	d, ok := w.devices[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	if timeout <= 0 {
		timeout = w.opts.ReceiveTimeout
	}
	data, err := d.sensor.Receive(ctx, timeout)
	w.metrics.observeCommand(name, "receive", err)
	if err != nil {
		slog.Warn("[WORKER] receive failed", "device", name, "error", err)
		return "", err
	}
	code := hex.EncodeToString(data)
	slog.Info("[WORKER] received IR code", "device", name, "code", code)
	w.publisher.Publish(Message{Topic: w.FormatTopic(name, "receive"), Payload: code})
	return code, nil
}

// OnCommand handles a command published to "<prefix>/<name>/set". The
// value is "send,<key>,<code>", "receive", or "receive,<seconds>".
func (w *Worker) OnCommand(ctx context.Context, topic, value string) error {
	slog.Info("[WORKER] command", "topic", topic, "value", value)
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "set" {
		return fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}
	name := parts[len(parts)-2]

	args := strings.Split(strings.TrimSpace(value), ",")
	switch args[0] {
	case "send":
		if len(args) != 3 {
			return fmt.Errorf("%w: want send,<key>,<code>", ErrBadCommand)
		}
		return w.Send(ctx, name, args[1], args[2])
	case "receive":
		var timeout time.Duration
		if len(args) == 2 {
			secs, err := strconv.Atoi(args[1])
			if err != nil || secs <= 0 {
				return fmt.Errorf("%w: receive timeout %q", ErrBadCommand, args[1])
			}
			timeout = time.Duration(secs) * time.Second
		}
		_, err := w.Receive(ctx, name, timeout)
		return err
	}
	return fmt.Errorf("%w: unknown command %q", ErrBadCommand, args[0])
}

// Run publishes discovery config, then device state every interval until
// ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	msgs, err := w.Config()
	if err != nil {
		return err
	}
	w.publisher.Publish(msgs...)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.StatusUpdate(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
