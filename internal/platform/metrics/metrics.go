package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	BannerRenders       *prometheus.CounterVec
	TerminalActions     *prometheus.CounterVec
	StorageFailures     *prometheus.CounterVec
	StorageLatencyMs    *prometheus.HistogramVec
	InitializerFailures *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BannerRenders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optin_banner_renders_total",
			Help: "Banner views rendered into the page, by view",
		}, []string{"view"}),
		TerminalActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optin_terminal_actions_total",
			Help: "Consent decisions taken, by action",
		}, []string{"action"}),
		StorageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optin_storage_failures_total",
			Help: "Preference store operations that degraded because the substrate failed",
		}, []string{"op"}),
		StorageLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optin_storage_latency_ms",
			Help:    "Latency of preference store substrate calls in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}, []string{"op"}),
		InitializerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optin_initializer_failures_total",
			Help: "Page initializers that failed or panicked, by initializer",
		}, []string{"initializer"}),
	}
}

func (m *Metrics) IncrementBannerRenders(view string) {
	if m == nil {
		return
	}
	m.BannerRenders.WithLabelValues(view).Inc()
}

func (m *Metrics) IncrementTerminalActions(action string) {
	if m == nil {
		return
	}
	m.TerminalActions.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementStorageFailures(op string) {
	if m == nil {
		return
	}
	m.StorageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveStorageLatency(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StorageLatencyMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (m *Metrics) IncrementInitializerFailures(name string) {
	if m == nil {
		return
	}
	m.InitializerFailures.WithLabelValues(name).Inc()
}
