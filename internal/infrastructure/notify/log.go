package notify

import (
	"context"

	"github.com/barnabee/barnabee/internal/domain/nlu"
	"go.uber.org/zap"
)

// LogSink writes alerts to the log. It is the default sink when no
// external channel is configured, so alerts are never silently dropped.
type LogSink struct {
	logger *zap.Logger
}

var _ nlu.NotificationSink = (*LogSink)(nil)

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("component", "notify"))}
}

func (s *LogSink) Notify(_ context.Context, channel string, payload map[string]any) error {
	s.logger.Warn("Notification",
		zap.String("channel", channel),
		zap.Any("payload", payload),
	)
	return nil
}
