package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTransition("check_in", nil)
	m.ObserveTransition("start", errors.New("conflict"))
	m.ObservePayment("card")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `dental_appointments_transitions_total{action="check_in",result="ok"} 1`)
	assert.Contains(t, body, `dental_appointments_transitions_total{action="start",result="error"} 1`)
	assert.Contains(t, body, `dental_billing_payments_total{method="card"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("x", nil)
		m.ObservePayment("cash")
		m.ObserveConsumption(true)
		m.ObserveRelay("x", nil)
		m.ObserveHTTP("GET", "/", 200, 0.1)
	})
}
