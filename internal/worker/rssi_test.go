package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/meishild/mzbtir/internal/ble"
)

type mockScanner struct {
	devices []ble.Device
	err     error
	scans   int
}

func (s *mockScanner) Scan(ctx context.Context, serviceUUID string) ([]ble.Device, error) {
	s.scans++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("mock: scan without deadline")
	}
	return s.devices, s.err
}

func newTestRSSIWorker(scanner Scanner) (*RSSIWorker, *RetainedStore) {
	store := NewRetainedStore()
	w := NewRSSIWorker(Options{TopicPrefix: "mzbtir"}, scanner, 5*time.Second, store, nil)
	w.AddDevice("living_room", "68:3E:34:CC:E0:67")
	w.AddDevice("bedroom", "AA:BB:CC:DD:EE:FF")
	return w, store
}

func TestRSSILevel(t *testing.T) {
	tests := []struct {
		rssi int
		want int
	}{
		{-40, 4},
		{-84, 4},
		{-85, 3},
		{-89, 3},
		{-90, 2},
		{-95, 1},
		{-99, 1},
		{-100, 0},
		{-120, 0},
	}
	for _, tt := range tests {
		if got := RSSILevel(tt.rssi); got != tt.want {
			t.Errorf("RSSILevel(%d) = %d, want %d", tt.rssi, got, tt.want)
		}
	}
}

func TestRSSIStatusUpdate(t *testing.T) {
	scanner := &mockScanner{devices: []ble.Device{
		{Name: "other", MAC: "11:22:33:44:55:66", RSSI: -60},
		{Name: "IR", MAC: "68:3e:34:cc:e0:67", RSSI: -87},
	}}
	w, store := newTestRSSIWorker(scanner)

	msgs, err := w.StatusUpdate(context.Background())
	if err != nil {
		t.Fatalf("StatusUpdate() error: %v", err)
	}
	if scanner.scans != 1 {
		t.Errorf("scans = %d, want 1", scanner.scans)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}

	want := map[string]string{
		"mzbtir/living_room/rssi_level": "3",
		"mzbtir/living_room/rssi":       "-87",
		"mzbtir/bedroom/rssi_level":     "-1",
	}
	for topic, payload := range want {
		if got, ok := store.Get(topic); !ok || got != payload {
			t.Errorf("%s = %q (%v), want %q", topic, got, ok, payload)
		}
	}
	if _, ok := store.Get("mzbtir/bedroom/rssi"); ok {
		t.Error("unseen device should not publish rssi")
	}
}

func TestRSSIScanFailurePublishesNothing(t *testing.T) {
	scanner := &mockScanner{err: errors.New("mock: adapter busy")}
	w, store := newTestRSSIWorker(scanner)

	if _, err := w.StatusUpdate(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
	if got := store.Snapshot(); len(got) != 0 {
		t.Errorf("published %d messages after failed scan", len(got))
	}
}

func TestRSSIConfig(t *testing.T) {
	w, _ := newTestRSSIWorker(&mockScanner{})

	msgs, err := w.Config()
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d discovery messages, want 4", len(msgs))
	}

	// Devices are ordered by name, so bedroom comes first.
	m := msgs[1]
	if want := "homeassistant/sensor/aabbccddeeff/mzbtir_bedroom_rssi/config"; m.Topic != want {
		t.Errorf("topic = %q, want %q", m.Topic, want)
	}
	if !m.Retain {
		t.Error("discovery message should be retained")
	}
	var p discoveryPayload
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.StateTopic != "mzbtir/bedroom/rssi" {
		t.Errorf("state_topic = %q", p.StateTopic)
	}
	if p.UnitOfMeasurement != "dBm" {
		t.Errorf("unit = %q, want dBm", p.UnitOfMeasurement)
	}
	if p.Device.Manufacturer != "bluetooth" || p.Device.Model != "rssi" {
		t.Errorf("device = %+v", p.Device)
	}

	var level discoveryPayload
	if err := json.Unmarshal([]byte(msgs[0].Payload), &level); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if level.UnitOfMeasurement != "L" {
		t.Errorf("rssi_level unit = %q, want L", level.UnitOfMeasurement)
	}
}

func TestRSSIMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	scanner := &mockScanner{devices: []ble.Device{{MAC: "68:3E:34:CC:E0:67", RSSI: -70}}}
	w := NewRSSIWorker(Options{}, scanner, time.Second, NewRetainedStore(), metrics)
	w.AddDevice("den", "68:3E:34:CC:E0:67")

	ctx := context.Background()
	if _, err := w.StatusUpdate(ctx); err != nil {
		t.Fatalf("StatusUpdate() error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.rssi.WithLabelValues("den")); got != -70 {
		t.Errorf("rssi gauge = %v, want -70", got)
	}
	if got := testutil.ToFloat64(metrics.rssiLevel.WithLabelValues("den")); got != 4 {
		t.Errorf("rssi_level gauge = %v, want 4", got)
	}

	scanner.devices = nil
	if _, err := w.StatusUpdate(ctx); err != nil {
		t.Fatalf("StatusUpdate() error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.rssiLevel.WithLabelValues("den")); got != NotSeen {
		t.Errorf("rssi_level gauge = %v, want %d", got, NotSeen)
	}
	if got := testutil.CollectAndCount(metrics.rssi); got != 0 {
		t.Errorf("rssi series = %d, want 0 once the device is gone", got)
	}
}

func TestRSSIRunStopsOnCancel(t *testing.T) {
	w, store := newTestRSSIWorker(&mockScanner{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := store.Get("mzbtir/bedroom/rssi_level"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no state published")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
