// Package metrics exports rpc and tracker activity to prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"device-rpc/internal/rpc"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "device_rpc"

// Metrics implements rpc.Observer and tracker.Observer
type Metrics struct {
	registry *prometheus.Registry

	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	activeChannels prometheus.Gauge
	connected      prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "RPC calls by method and result code",
		}, []string{"method", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Round trip time of RPC calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"method"}),
		activeChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracker_active_channels",
			Help:      "Pulse channels currently generating",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 while the device link is open",
		}),
	}

	m.registry.MustRegister(
		m.calls,
		m.callDuration,
		m.activeChannels,
		m.connected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall records one finished rpc call
func (m *Metrics) ObserveCall(method string, code rpc.ResultCode, duration time.Duration) {
	m.calls.WithLabelValues(method, strconv.Itoa(int(code))).Inc()
	m.callDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ActiveChannels records the number of active pulse channels
func (m *Metrics) ActiveChannels(n int) {
	m.activeChannels.Set(float64(n))
}

// SetConnected records link state
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}
