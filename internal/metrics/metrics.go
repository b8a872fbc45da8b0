package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counters/histograms for the practice portal.
// All observers are nil-safe so packages can run without a registry.
type Metrics struct {
	transitions   *prometheus.CounterVec
	payments      *prometheus.CounterVec
	consumptions  *prometheus.CounterVec
	eventsRelayed *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions by action and result",
		}, []string{"action", "result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payment lines recorded by method",
		}, []string{"method"}),
		consumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "inventory",
			Name:      "consumption_confirmations_total",
			Help:      "Stock consumption confirmations by result",
		}, []string{"result"}),
		eventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "events",
			Name:      "relayed_total",
			Help:      "Outbox events relayed to the bus",
		}, []string{"event_type", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(m.transitions, m.payments, m.consumptions, m.eventsRelayed, m.httpLatency)
	m.gatherer = reg
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTransition(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObservePayment(method string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveConsumption(ok bool) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) ObserveRelay(eventType string, err error) {
	if m == nil {
		return
	}
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	m.eventsRelayed.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
