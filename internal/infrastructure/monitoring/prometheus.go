package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync/atomic"
	"time"
)

// PrometheusHandler serves the counters in Prometheus text exposition
// format. Hand-rolled to avoid pulling in client_golang for a dozen
// counters; mount at /metrics.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  any
		}{
			{"barnabee_requests_total", "Total requests processed", "counter", atomic.LoadUint64(&m.metrics.RequestsTotal)},
			{"barnabee_requests_failed_total", "Requests whose handler failed", "counter", atomic.LoadUint64(&m.metrics.RequestsFailed)},
			{"barnabee_requests_rejected_total", "Requests rejected at the in-flight bound", "counter", atomic.LoadUint64(&m.metrics.RequestsRejected)},
			{"barnabee_requests_in_flight", "Requests currently in the pipeline", "gauge", atomic.LoadInt64(&m.metrics.RequestsInFlight)},

			{"barnabee_safety_alerts_total", "Safety monitor matches", "counter", atomic.LoadUint64(&m.metrics.SafetyAlertsTotal)},
			{"barnabee_memory_writes_total", "Memory write-backs", "counter", atomic.LoadUint64(&m.metrics.MemoryWritesTotal)},
			{"barnabee_pattern_reloads_total", "Pattern set hot swaps", "counter", atomic.LoadUint64(&m.metrics.PatternReloads)},

			{"barnabee_uptime_seconds", "Process uptime in seconds", "gauge", uptime},
			{"barnabee_memory_alloc_bytes", "Current heap allocation", "gauge", memStats.Alloc},
			{"barnabee_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			}
			fmt.Fprintln(w)
		}

		intents, handlers := m.intentCounts()
		writeLabelled(w, "barnabee_requests_by_intent_total", "Requests per classified intent", "intent", intents)
		writeLabelled(w, "barnabee_requests_by_handler_total", "Requests per dispatched handler", "handler", handlers)

		if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6
			fmt.Fprintf(w, "# HELP barnabee_request_latency_avg_ms Average request latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE barnabee_request_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "barnabee_request_latency_avg_ms %f\n", avgMs)
		}
	})
}

func writeLabelled(w http.ResponseWriter, name, help, label string, values map[string]uint64) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
	fmt.Fprintln(w)
}
