package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensorlog/internal/model"
)

const namespace = "sensorlog"

// Collector owns a private registry so several engines (and tests) can
// coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	events       *prometheus.CounterVec
	relaySends   *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	deviceValue  *prometheus.GaugeVec
	deviceSeenTS *prometheus.GaugeVec
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Channel messages processed, by source and outcome",
	}, []string{"source", "outcome"})
	c.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Decoded gateway events by device and type",
	}, []string{"device", "type"})
	c.relaySends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_sends_total",
		Help:      "Records handed to relays, by relay and result",
	}, []string{"relay", "result"})
	c.storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_errors_total",
		Help:      "Failed storage writes by record kind",
	}, []string{"kind"})
	c.deviceValue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_value",
		Help:      "Latest reported value per device and field",
	}, []string{"device", "field"})
	c.deviceSeenTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_last_seen_timestamp_seconds",
		Help:      "Send time of the latest telemetry post per device",
	}, []string{"device"})
	c.registry.MustRegister(
		c.messages, c.events, c.relaySends, c.storeErrors, c.deviceValue, c.deviceSeenTS,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveMessage(source, outcome string) {
	if source == "" {
		source = "unknown"
	}
	c.messages.WithLabelValues(source, outcome).Inc()
}

func (c *Collector) ObserveEvent(ev model.Event) {
	c.events.WithLabelValues(ev.DeviceName, ev.Type.String()).Inc()
}

// ObserveValues exports every field present in v; absent fields keep their
// previous gauge value.
func (c *Collector) ObserveValues(v model.Values) {
	for _, f := range model.Fields() {
		switch x := v.Get(f).(type) {
		case float64:
			c.deviceValue.WithLabelValues(v.DeviceName, f.String()).Set(x)
		case int64:
			c.deviceValue.WithLabelValues(v.DeviceName, f.String()).Set(float64(x))
		}
	}
	c.deviceSeenTS.WithLabelValues(v.DeviceName).Set(float64(v.Time.Unix()))
}

func (c *Collector) ObserveRelay(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.relaySends.WithLabelValues(name, result).Inc()
}

func (c *Collector) ObserveStoreError(kind model.RecordKind) {
	c.storeErrors.WithLabelValues(kind.String()).Inc()
}

// ResetDevices drops all per-device series.
func (c *Collector) ResetDevices() {
	c.deviceValue.Reset()
	c.deviceSeenTS.Reset()
}
