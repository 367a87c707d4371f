package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SwapTransition("accepted")
		m.SwapError("create", "conflict")
		m.PointsCredited(10)
		m.PointsTransferred(5)
		m.NotificationSent("nats")
		m.NotificationFailed("nats")
		m.NotificationDropped()
		m.CacheLookup(true)
	})
}

func TestCounters(t *testing.T) {
	m := New("rewear")

	m.SwapTransition("accepted")
	m.SwapTransition("accepted")
	m.PointsCredited(10)
	m.PointsCredited(-3)
	m.NotificationFailed("websocket")

	body := scrape(t, m)
	assert.Contains(t, body, `rewear_swap_transitions_total{status="accepted"} 2`)
	assert.Contains(t, body, "rewear_points_credited_total 10")
	assert.Contains(t, body, `rewear_notification_failures_total{channel="websocket"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("rewear")
	m.SwapTransition("completed")

	assert.True(t, strings.Contains(scrape(t, m), `rewear_swap_transitions_total{status="completed"} 1`))
}
