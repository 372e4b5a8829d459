package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла обработка команды (включая бэкенд)
	RequestDuration *prometheus.HistogramVec

	// Traffic: все команды по исходам
	CommandsTotal *prometheus.CounterVec

	// Отказы guardrail'ов
	GuardrailDenials *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Шина подписок: живые подписчики по каналам
	BusSubscribers *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики живут в локальном реестре
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zeus_command_duration_seconds",
			Help:    "Histogram of command pipeline latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"command", "status"}),

		CommandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "zeus_commands_total",
			Help: "Total number of dispatched commands by outcome.",
		}, []string{"command", "status"}), // статусы: success, denied, route_missing, backend_failed

		GuardrailDenials: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "zeus_guardrail_denials_total",
			Help: "Commands blocked by guardrail policy.",
		}, []string{"command"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "zeus_circuit_breaker_state",
			Help: "Current state of the backend circuit breaker (0=closed, 1=open).",
		}, []string{"breaker"}),

		BusSubscribers: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "zeus_bus_subscribers",
			Help: "Live subscribers per channel.",
		}, []string{"channel"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "zeus_audit_buffer_utilization",
			Help: "Current number of records in the audit buffer.",
		}),
	}
}
