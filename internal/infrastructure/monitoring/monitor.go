package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// Metrics holds the pipeline counters. Hot-path fields are atomics; the
// per-intent breakdown sits behind a mutex since cardinality is tiny.
type Metrics struct {
	StartTime time.Time

	RequestsTotal    uint64
	RequestsFailed   uint64
	RequestsRejected uint64
	RequestsInFlight int64

	RequestLatencySum   uint64 // Nanoseconds
	RequestLatencyCount uint64

	SafetyAlertsTotal uint64
	MemoryWritesTotal uint64
	PatternReloads    uint64
}

// Monitor collects request telemetry and serves it in Prometheus text
// format. It implements the orchestrator's Telemetry interface.
type Monitor struct {
	metrics Metrics

	mu        sync.Mutex
	byIntent  map[string]uint64
	byHandler map[string]uint64
}

// NewMonitor creates a monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   Metrics{StartTime: time.Now()},
		byIntent:  make(map[string]uint64),
		byHandler: make(map[string]uint64),
	}
}

// RequestStarted marks a request entering the pipeline.
func (m *Monitor) RequestStarted() {
	atomic.AddInt64(&m.metrics.RequestsInFlight, 1)
}

// RequestRejected counts a request refused before processing.
func (m *Monitor) RequestRejected(string) {
	atomic.AddUint64(&m.metrics.RequestsRejected, 1)
}

// RequestFinished records one completed request.
func (m *Monitor) RequestFinished(intent entity.Intent, handlerName string, elapsed time.Duration, failed bool) {
	atomic.AddInt64(&m.metrics.RequestsInFlight, -1)
	atomic.AddUint64(&m.metrics.RequestsTotal, 1)
	atomic.AddUint64(&m.metrics.RequestLatencySum, uint64(elapsed.Nanoseconds()))
	atomic.AddUint64(&m.metrics.RequestLatencyCount, 1)
	if failed {
		atomic.AddUint64(&m.metrics.RequestsFailed, 1)
	}

	m.mu.Lock()
	m.byIntent[string(intent)]++
	if handlerName != "" {
		m.byHandler[handlerName]++
	}
	m.mu.Unlock()
}

// SafetyAlert counts a safety monitor match.
func (m *Monitor) SafetyAlert() {
	atomic.AddUint64(&m.metrics.SafetyAlertsTotal, 1)
}

// MemoryWrite counts a memory write-back.
func (m *Monitor) MemoryWrite() {
	atomic.AddUint64(&m.metrics.MemoryWritesTotal, 1)
}

// PatternReload counts a pattern set hot swap.
func (m *Monitor) PatternReload() {
	atomic.AddUint64(&m.metrics.PatternReloads, 1)
}

func (m *Monitor) intentCounts() (map[string]uint64, map[string]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intents := make(map[string]uint64, len(m.byIntent))
	for k, v := range m.byIntent {
		intents[k] = v
	}
	handlers := make(map[string]uint64, len(m.byHandler))
	for k, v := range m.byHandler {
		handlers[k] = v
	}
	return intents, handlers
}
