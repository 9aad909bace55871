package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая адаптер)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во вызовов
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов по таксономии
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0=closed, 1=open, 2=half-open)
	CircuitBreakerState *prometheus.GaugeVec

	// Retries: повторные попытки идемпотентных вызовов
	AdapterRetries *prometheus.CounterVec

	// Audit: заполненность буфера и потери при переполнении
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без регистра используем локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolgate_request_duration_seconds",
			Help:    "Histogram of tool call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"role", "capability", "outcome"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_requests_total",
			Help: "Total number of processed tool calls.",
		}, []string{"role", "capability"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_errors_total",
			Help: "Total number of errors by kind.",
		}, []string{"kind"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "toolgate_circuit_breaker_state",
			Help: "Current circuit breaker state per adapter (0=closed, 1=open, 2=half-open).",
		}, []string{"adapter"}),

		AdapterRetries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_adapter_retries_total",
			Help: "Retry attempts per adapter (idempotent capabilities only).",
		}, []string{"adapter"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "toolgate_audit_buffer_utilization",
			Help: "Current number of records in the audit buffer.",
		}),

		AuditDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "toolgate_audit_dropped_total",
			Help: "Audit records dropped due to buffer overflow.",
		}),
	}
}
