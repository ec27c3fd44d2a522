package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the payment simulator.
type Metrics struct {
	// Transaction lifecycle metrics
	TransactionsInitiatedTotal *prometheus.CounterVec
	TransactionsResolvedTotal  *prometheus.CounterVec
	TransactionsCancelledTotal prometheus.Counter
	TransactionsStored         prometheus.Gauge

	// Latency injection metrics
	SimulatedDelay *prometheus.HistogramVec

	// Webhook metrics
	WebhooksEmittedTotal *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates and registers all collectors. A nil registry gets a private one, so
// building several collectors in one process never collides.
func New(registry prometheus.Registerer) *Metrics {
	return NewWithNamespace(registry, "paysim")
}

// NewWithNamespace is New with a custom metric name prefix.
func NewWithNamespace(registry prometheus.Registerer, namespace string) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "paysim"
	}

	factory := promauto.With(registry)

	return &Metrics{
		TransactionsInitiatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_initiated_total",
				Help:      "Total number of simulated payment initiations",
			},
			[]string{"currency"},
		),
		TransactionsResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_resolved_total",
				Help:      "Total number of resolutions by terminal status and resolution mode",
			},
			[]string{"status", "mode"},
		),
		TransactionsCancelledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_cancelled_total",
				Help:      "Total number of cancelled transactions",
			},
		),
		TransactionsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transactions_stored",
				Help:      "Number of transactions currently held in the store",
			},
		),
		SimulatedDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulated_delay_seconds",
				Help:      "Injected latency per operation",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		WebhooksEmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_emitted_total",
				Help:      "Total number of webhook payloads handed to the notifier",
			},
			[]string{"event_type"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed simulator operations by error code",
			},
			[]string{"operation", "code"},
		),
	}
}

// ObserveInitiation records a stored initiation.
func (m *Metrics) ObserveInitiation(currency string) {
	m.TransactionsInitiatedTotal.WithLabelValues(currency).Inc()
}

// ObserveResolution records a transition into COMPLETED or FAILED.
// mode is "manual" for forced outcomes and "rate" for success-rate draws.
func (m *Metrics) ObserveResolution(status, mode string) {
	m.TransactionsResolvedTotal.WithLabelValues(status, mode).Inc()
}

// ObserveCancellation records a transition into CANCELLED.
func (m *Metrics) ObserveCancellation() {
	m.TransactionsCancelledTotal.Inc()
}

// SetStored records the current store size.
func (m *Metrics) SetStored(count int) {
	m.TransactionsStored.Set(float64(count))
}

// ObserveDelay records injected latency for an operation.
func (m *Metrics) ObserveDelay(operation string, delay time.Duration) {
	m.SimulatedDelay.WithLabelValues(operation).Observe(delay.Seconds())
}

// ObserveWebhook records a webhook payload handed off for delivery.
func (m *Metrics) ObserveWebhook(eventType string) {
	m.WebhooksEmittedTotal.WithLabelValues(eventType).Inc()
}

// ObserveError records a failed operation.
func (m *Metrics) ObserveError(operation, code string) {
	m.ErrorsTotal.WithLabelValues(operation, code).Inc()
}
