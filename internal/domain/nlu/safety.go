package nlu

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/pkg/safego"
	"go.uber.org/zap"
)

// NotificationSink delivers safety alerts out of band. Delivery latency must
// never affect the user-visible response path.
type NotificationSink interface {
	Notify(ctx context.Context, channel string, payload map[string]any) error
}

// SafetyAlert is the structured alert emitted on a distress match.
type SafetyAlert struct {
	RequestID string
	Speaker   string
	Room      string
	PatternID string
	Utterance string
	Timestamp time.Time
}

// SafetyMonitor scans raw utterances from configured minors for
// distress/abuse patterns. It is additive: a match raises an external alert
// and flags the audit entry, but never alters the response.
type SafetyMonitor struct {
	minors   map[string]bool
	patterns []safetyPattern
	sink     NotificationSink
	channel  string
	logger   *zap.Logger
}

type safetyPattern struct {
	id string
	re *regexp.Regexp
}

// NewSafetyMonitor compiles the distress expressions. Expressions that fail
// to compile are skipped with a warning, mirroring pattern-set loading.
func NewSafetyMonitor(minors []string, expressions map[string]string, sink NotificationSink, channel string, logger *zap.Logger) *SafetyMonitor {
	m := &SafetyMonitor{
		minors:  make(map[string]bool, len(minors)),
		sink:    sink,
		channel: channel,
		logger:  logger.With(zap.String("component", "safety-monitor")),
	}
	for _, s := range minors {
		m.minors[s] = true
	}
	for id, expr := range expressions {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			logger.Warn("Safety pattern disabled",
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		m.patterns = append(m.patterns, safetyPattern{id: id, re: re})
	}
	return m
}

// DefaultSafetyExpressions is the built-in distress/abuse pattern set.
func DefaultSafetyExpressions() map[string]string {
	return map[string]string{
		"distress.scared":  `\b(i'?m (really )?(scared|afraid|frightened))\b`,
		"distress.hurt":    `\b(someone|he|she|they) (hurt|hit|pushed) me\b`,
		"distress.secret":  `\bdon'?t tell (mom|dad|my parents|anyone)\b`,
		"distress.alone":   `\bi'?m (all )?alone and\b`,
		"distress.help_me": `\bplease help me\b.*\b(scared|hurt|hiding)\b`,
	}
}

// Scan checks the raw utterance when the speaker is a configured minor.
// It returns the alert when one fired, for audit flagging. Failures are
// logged and swallowed.
func (m *SafetyMonitor) Scan(ctx context.Context, req *entity.Request) *SafetyAlert {
	if req.Speaker == "" || !m.minors[req.Speaker] {
		return nil
	}

	for _, p := range m.patterns {
		if !p.re.MatchString(req.Utterance) {
			continue
		}
		alert := &SafetyAlert{
			RequestID: req.ID,
			Speaker:   req.Speaker,
			Room:      req.Room,
			PatternID: p.id,
			Utterance: req.Utterance,
			Timestamp: time.Now(),
		}
		// Delivery must not delay the response path: the notification goes
		// out in the background and survives request cancellation.
		safego.GoCtx(context.WithoutCancel(ctx), m.logger, "safety-deliver", func(ctx context.Context) {
			m.deliver(ctx, alert)
		})
		return alert
	}
	return nil
}

func (m *SafetyMonitor) deliver(ctx context.Context, alert *SafetyAlert) {
	if m.sink == nil {
		return
	}
	payload := map[string]any{
		"request_id": alert.RequestID,
		"speaker":    alert.Speaker,
		"room":       alert.Room,
		"pattern":    alert.PatternID,
		"utterance":  alert.Utterance,
		"timestamp":  alert.Timestamp.Format(time.RFC3339),
		"summary":    fmt.Sprintf("safety alert for %s (%s)", alert.Speaker, alert.PatternID),
	}
	if err := m.sink.Notify(ctx, m.channel, payload); err != nil {
		m.logger.Error("Safety alert delivery failed",
			zap.String("request_id", alert.RequestID),
			zap.Error(err),
		)
	}
}
