package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meishild/mzbtir/internal/ble"
)

// Signal attributes reported by RSSIWorker.
const (
	AttrRSSILevel = "rssi_level"
	AttrRSSI      = "rssi"
)

// RSSIAttributes lists the signal attributes in publishing order.
var RSSIAttributes = []string{AttrRSSILevel, AttrRSSI}

// NotSeen is the rssi_level of a device missing from the last scan.
const NotSeen = -1

var rssiUnits = map[string]string{
	AttrRSSI:      "dBm",
	AttrRSSILevel: "L",
}

// RSSILevel maps a signal strength in dBm to a 0-4 bar level.
func RSSILevel(rssi int) int {
	switch {
	case rssi > -85:
		return 4
	case rssi > -90:
		return 3
	case rssi > -95:
		return 2
	case rssi > -100:
		return 1
	}
	return 0
}

// Scanner discovers nearby peripherals. ble.Adapter implements it.
type Scanner interface {
	Scan(ctx context.Context, serviceUUID string) ([]ble.Device, error)
}

var _ Scanner = (ble.Adapter)(nil)

// RSSIWorker reports how well each configured device is heard, from one
// passive scan per update. It never connects.
type RSSIWorker struct {
	opts      Options
	scanner   Scanner
	scanTime  time.Duration
	publisher Publisher
	metrics   *Metrics

	devices map[string]string // name -> address
	names   []string
}

// NewRSSIWorker creates a signal worker scanning for scanTime per update.
// metrics may be nil.
func NewRSSIWorker(opts Options, scanner Scanner, scanTime time.Duration, publisher Publisher, metrics *Metrics) *RSSIWorker {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = component
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	return &RSSIWorker{
		opts:      opts,
		scanner:   scanner,
		scanTime:  scanTime,
		publisher: publisher,
		metrics:   metrics,
		devices:   make(map[string]string),
	}
}

// AddDevice registers a device by name and address. Must be called before Run.
func (w *RSSIWorker) AddDevice(name, address string) {
	slog.Debug("[WORKER] adding rssi device", "name", name, "address", address)
	if _, ok := w.devices[name]; !ok {
		w.names = append(w.names, name)
		sort.Strings(w.names)
	}
	w.devices[name] = address
}

func (w *RSSIWorker) topic(levels ...string) string {
	return strings.Join(append([]string{w.opts.TopicPrefix}, levels...), "/")
}

// Config returns the retained discovery messages of every device.
func (w *RSSIWorker) Config() ([]Message, error) {
	var msgs []Message
	for _, name := range w.names {
		mac := w.devices[name]
		dev := discoveryDevice{
			Identifiers:  []string{mac, FormatDiscoveryID(mac, name)},
			Manufacturer: "bluetooth",
			Model:        "rssi",
			Name:         FormatDiscoveryName(mac),
		}
		for _, attr := range RSSIAttributes {
			payload, err := json.Marshal(discoveryPayload{
				UniqueID:          FormatDiscoveryID(mac, name, attr),
				Name:              FormatDiscoveryName(mac, attr),
				StateTopic:        w.topic(name, attr),
				UnitOfMeasurement: rssiUnits[attr],
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

// StatusUpdate scans once and publishes rssi and rssi_level per device. A
// device missing from the scan gets only rssi_level NotSeen. A failed scan
// publishes nothing.
func (w *RSSIWorker) StatusUpdate(ctx context.Context) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, w.scanTime)
	defer cancel()
	found, err := w.scanner.Scan(ctx, "")
	if err != nil {
		slog.Error("[WORKER] rssi scan failed", "error", err)
		return nil, fmt.Errorf("worker: rssi scan: %w", err)
	}

	seen := make(map[string]int, len(found))
	for _, d := range found {
		seen[strings.ToLower(d.MAC)] = d.RSSI
	}

	var msgs []Message
	for _, name := range w.names {
		rssi, ok := seen[strings.ToLower(w.devices[name])]
		slog.Info("[WORKER] updating rssi", "device", name, "seen", ok, "rssi", rssi)
		w.metrics.observeRSSI(name, rssi, ok)
		if !ok {
			msgs = append(msgs, Message{Topic: w.topic(name, AttrRSSILevel), Payload: fmt.Sprint(NotSeen), Retain: true})
			continue
		}
		msgs = append(msgs,
			Message{Topic: w.topic(name, AttrRSSILevel), Payload: fmt.Sprint(RSSILevel(rssi)), Retain: true},
			Message{Topic: w.topic(name, AttrRSSI), Payload: fmt.Sprint(rssi), Retain: true},
		)
	}
	w.publisher.Publish(msgs...)
	return msgs, nil
}

// Run publishes discovery config, then signal state every interval until
// ctx is done. Scan failures are logged and retried on the next tick.
func (w *RSSIWorker) Run(ctx context.Context, interval time.Duration) error {
	msgs, err := w.Config()
	if err != nil {
		return err
	}
	w.publisher.Publish(msgs...)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = w.StatusUpdate(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
