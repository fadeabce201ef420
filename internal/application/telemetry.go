package application

import (
	"context"
	"time"

	"github.com/barnabee/barnabee/internal/application/usecase"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/infrastructure/eventbus"
	"github.com/barnabee/barnabee/internal/infrastructure/monitoring"
)

// pipelineTelemetry feeds the monitor and mirrors pipeline milestones onto
// the event bus so in-process subscribers see them without touching the
// orchestrator.
type pipelineTelemetry struct {
	monitor *monitoring.Monitor
	bus     *eventbus.InMemoryBus
}

var _ usecase.Telemetry = pipelineTelemetry{}

func (t pipelineTelemetry) RequestStarted() {
	t.monitor.RequestStarted()
}

func (t pipelineTelemetry) RequestRejected(reason string) {
	t.monitor.RequestRejected(reason)
}

func (t pipelineTelemetry) RequestFinished(intent entity.Intent, handlerName string, elapsed time.Duration, failed bool) {
	t.monitor.RequestFinished(intent, handlerName, elapsed, failed)
	t.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeRequestProcessed, eventbus.RequestProcessedPayload{
		Intent:   string(intent),
		Handler:  handlerName,
		Duration: elapsed,
		Failed:   failed,
	}))
}

func (t pipelineTelemetry) SafetyAlert() {
	t.monitor.SafetyAlert()
	t.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeSafetyAlert, nil))
}

func (t pipelineTelemetry) MemoryWrite() {
	t.monitor.MemoryWrite()
}
