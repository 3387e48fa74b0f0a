package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meishild/mzbtir/internal/ble"
)

const metricsNamespace = "mzbtir"

// Metrics exports device readings and operation outcomes. A nil *Metrics
// records nothing.
type Metrics struct {
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	battery     *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	rssi        *prometheus.GaugeVec
	rssiLevel   *prometheus.GaugeVec
	updates     *prometheus.CounterVec
	commands    *prometheus.CounterVec
}

// NewMetrics registers the worker collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		temperature: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature read from the device",
		}, []string{"device"}),
		humidity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "humidity_percent",
			Help:      "Last relative humidity read from the device",
		}, []string{"device"}),
		battery: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "battery_percent",
			Help:      "Last battery level read from the device",
		}, []string{"device"}),
		available: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "available",
			Help:      "1 while the device answers, 0 once it is reported offline",
		}, []string{"device"}),
		rssi: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rssi_dbm",
			Help:      "Signal strength of the device in the last scan",
		}, []string{"device"}),
		rssiLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rssi_level",
			Help:      "Signal level 0-4 from the last scan, -1 when the device was not seen",
		}, []string{"device"}),
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Status updates by result",
		}, []string{"device", "result"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "IR send/receive commands by result",
		}, []string{"device", "command", "result"}),
	}
}

func (m *Metrics) observeReading(device, attr string, value float64) {
	if m == nil {
		return
	}
	switch attr {
	case ble.AttrTemperature:
		m.temperature.WithLabelValues(device).Set(value)
	case ble.AttrHumidity:
		m.humidity.WithLabelValues(device).Set(value)
	case ble.AttrBattery:
		m.battery.WithLabelValues(device).Set(value)
	}
}

func (m *Metrics) observeRSSI(device string, rssi int, seen bool) {
	if m == nil {
		return
	}
	if !seen {
		m.rssi.DeleteLabelValues(device)
		m.rssiLevel.WithLabelValues(device).Set(NotSeen)
		return
	}
	m.rssi.WithLabelValues(device).Set(float64(rssi))
	m.rssiLevel.WithLabelValues(device).Set(float64(RSSILevel(rssi)))
}

func (m *Metrics) observeUpdate(device string, err error, offline bool) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(device, result(err)).Inc()
	switch {
	case err == nil:
		m.available.WithLabelValues(device).Set(1)
	case offline:
		m.available.WithLabelValues(device).Set(0)
	}
}

func (m *Metrics) observeCommand(device, command string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(device, command, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
