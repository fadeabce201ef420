package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

func TestPrometheusExposition(t *testing.T) {
	m := NewMonitor()
	m.RequestStarted()
	m.RequestFinished(entity.IntentInstant, "instant", 12*time.Millisecond, false)
	m.RequestStarted()
	m.RequestFinished(entity.IntentAction, "action", 40*time.Millisecond, true)
	m.RequestRejected("capacity")
	m.SafetyAlert()
	m.PatternReload()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"barnabee_requests_total 2",
		"barnabee_requests_failed_total 1",
		"barnabee_requests_rejected_total 1",
		"barnabee_requests_in_flight 0",
		"barnabee_safety_alerts_total 1",
		"barnabee_pattern_reloads_total 1",
		`barnabee_requests_by_intent_total{intent="instant"} 1`,
		`barnabee_requests_by_handler_total{handler="action"} 1`,
		"barnabee_request_latency_avg_ms",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}

func TestMonitorInFlightGauge(t *testing.T) {
	m := NewMonitor()
	m.RequestStarted()
	m.RequestStarted()
	m.RequestFinished(entity.IntentQuery, "conversation", time.Millisecond, false)

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "barnabee_requests_in_flight 1") {
		t.Error("in-flight gauge wrong")
	}
}
