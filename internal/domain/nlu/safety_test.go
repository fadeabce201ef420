package nlu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

type captureSink struct {
	mu       sync.Mutex
	channel  string
	payloads []map[string]any
	notified chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{notified: make(chan struct{}, 8)}
}

func (s *captureSink) Notify(_ context.Context, channel string, payload map[string]any) error {
	s.mu.Lock()
	s.channel = channel
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()
	s.notified <- struct{}{}
	return nil
}

func minorRequest(utterance string) *entity.Request {
	req := entity.NewRequest(utterance, "sam", "bedroom", "conv-1")
	return req
}

func TestSafetyScanMatchesMinor(t *testing.T) {
	sink := newCaptureSink()
	m := NewSafetyMonitor([]string{"sam"}, DefaultSafetyExpressions(), sink, "guardian", zap.NewNop())

	alert := m.Scan(context.Background(), minorRequest("I'm really scared of the dark"))
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Speaker != "sam" || alert.PatternID == "" {
		t.Errorf("alert incomplete: %+v", alert)
	}

	select {
	case <-sink.notified:
	case <-time.After(time.Second):
		t.Fatal("sink never notified")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.channel != "guardian" {
		t.Errorf("channel = %q, want guardian", sink.channel)
	}
	if sink.payloads[0]["speaker"] != "sam" {
		t.Errorf("payload speaker = %v", sink.payloads[0]["speaker"])
	}
}

func TestSafetyScanIgnoresAdults(t *testing.T) {
	sink := newCaptureSink()
	m := NewSafetyMonitor([]string{"sam"}, DefaultSafetyExpressions(), sink, "guardian", zap.NewNop())

	req := entity.NewRequest("I'm really scared of this deadline", "alex", "office", "conv-1")
	if alert := m.Scan(context.Background(), req); alert != nil {
		t.Errorf("adult speaker must not trigger scanning, got %+v", alert)
	}
}

func TestSafetyScanIgnoresAnonymous(t *testing.T) {
	m := NewSafetyMonitor([]string{"sam"}, DefaultSafetyExpressions(), nil, "guardian", zap.NewNop())
	req := entity.NewRequest("I'm really scared", "", "", "")
	if alert := m.Scan(context.Background(), req); alert != nil {
		t.Error("anonymous speaker must not trigger scanning")
	}
}

func TestSafetyScanNoMatch(t *testing.T) {
	m := NewSafetyMonitor([]string{"sam"}, DefaultSafetyExpressions(), nil, "guardian", zap.NewNop())
	if alert := m.Scan(context.Background(), minorRequest("turn on the lights")); alert != nil {
		t.Error("benign utterance must not alert")
	}
}

func TestSafetyBadExpressionSkipped(t *testing.T) {
	m := NewSafetyMonitor([]string{"sam"}, map[string]string{
		"bad":  "([unclosed",
		"good": `\bscared\b`,
	}, nil, "guardian", zap.NewNop())

	if alert := m.Scan(context.Background(), minorRequest("i am scared")); alert == nil {
		t.Fatal("good expression should still match")
	} else if alert.PatternID != "good" {
		t.Errorf("pattern = %q, want good", alert.PatternID)
	}
}

func TestSafetyScanSurvivesCancelledContext(t *testing.T) {
	sink := newCaptureSink()
	m := NewSafetyMonitor([]string{"sam"}, DefaultSafetyExpressions(), sink, "guardian", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	alert := m.Scan(ctx, minorRequest("I'm really scared"))
	cancel() // Request finishes before delivery
	if alert == nil {
		t.Fatal("expected an alert")
	}
	select {
	case <-sink.notified:
	case <-time.After(time.Second):
		t.Fatal("delivery must survive request cancellation")
	}
}
