package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/barnabee/barnabee/internal/domain/conversation"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/handler"
	"github.com/barnabee/barnabee/internal/domain/memory"
	"github.com/barnabee/barnabee/internal/domain/nlu"
	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/barnabee/barnabee/internal/domain/service"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"github.com/barnabee/barnabee/pkg/safego"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Canned responses for the failure paths that never reach a handler.
const (
	cannedClarification = "Sorry, I didn't catch that. Could you say it again?"
	cannedTimeout       = "Sorry, that's taking me too long. Let's try again."
	cannedInternal      = "Something went wrong on my end. Let's try that again."
)

// retrievalExempt intents skip memory retrieval: their handlers never
// consult memories and the latency budget is tight.
var retrievalExempt = map[entity.Intent]bool{
	entity.IntentInstant:   true,
	entity.IntentGesture:   true,
	entity.IntentEmergency: true,
}

// Deadlines bounds each pipeline stage. The cascade deadline lives in the
// classifier config; everything else is enforced here.
type Deadlines struct {
	Total        time.Duration // Default 4s
	Retrieval    time.Duration // Default 300ms
	Instant      time.Duration // Default 50ms
	Action       time.Duration // Default 2s
	Conversation time.Duration // Default 3s
	MemoryOp     time.Duration // Default 500ms
}

// DefaultDeadlines returns the stage budget defaults.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Total:        4 * time.Second,
		Retrieval:    300 * time.Millisecond,
		Instant:      50 * time.Millisecond,
		Action:       2 * time.Second,
		Conversation: 3 * time.Second,
		MemoryOp:     500 * time.Millisecond,
	}
}

func (d Deadlines) normalized() Deadlines {
	def := DefaultDeadlines()
	if d.Total <= 0 {
		d.Total = def.Total
	}
	if d.Retrieval <= 0 {
		d.Retrieval = def.Retrieval
	}
	if d.Instant <= 0 {
		d.Instant = def.Instant
	}
	if d.Action <= 0 {
		d.Action = def.Action
	}
	if d.Conversation <= 0 {
		d.Conversation = def.Conversation
	}
	if d.MemoryOp <= 0 {
		d.MemoryOp = def.MemoryOp
	}
	return d
}

func (d Deadlines) forHandler(name string) time.Duration {
	switch name {
	case "instant":
		return d.Instant
	case "action":
		return d.Action
	case "memory":
		return d.MemoryOp
	default:
		return d.Conversation
	}
}

// Config holds the orchestrator tunables.
type Config struct {
	Deadlines         Deadlines
	MaxInFlight       int // Concurrent request bound (default 32)
	MaxUtteranceChars int // Oversized-input cutoff (default 2048)
	RetrievalTopK     int // Memories fetched per request (default 5)
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Deadlines:         DefaultDeadlines(),
		MaxInFlight:       32,
		MaxUtteranceChars: 2048,
		RetrievalTopK:     5,
	}
}

// Telemetry receives per-request observations. Implementations must be
// cheap and non-blocking.
type Telemetry interface {
	RequestStarted()
	RequestRejected(reason string)
	RequestFinished(intent entity.Intent, handlerName string, elapsed time.Duration, failed bool)
	SafetyAlert()
	MemoryWrite()
}

// ProcessRequestUseCase sequences one request through the pipeline:
// normalize, classify, retrieve, dispatch, audit, respond, with the safety
// monitor on a sibling task and memory write-back after the response.
type ProcessRequestUseCase struct {
	classifier    *nlu.Classifier
	safety        *nlu.SafetyMonitor
	retriever     *memory.Retriever
	writer        *memory.Writer
	router        *handler.Router
	overrides     *handler.OverrideResolver
	conversations *conversation.Store
	summarizer    *conversation.Summarizer
	audit         repository.AuditRepository
	telemetry     Telemetry
	config        Config
	logger        *zap.Logger

	inflight chan struct{}
	now      func() time.Time
}

// NewProcessRequestUseCase wires the pipeline. summarizer and telemetry
// may be nil.
func NewProcessRequestUseCase(
	classifier *nlu.Classifier,
	safety *nlu.SafetyMonitor,
	retriever *memory.Retriever,
	writer *memory.Writer,
	router *handler.Router,
	overrides *handler.OverrideResolver,
	conversations *conversation.Store,
	summarizer *conversation.Summarizer,
	audit repository.AuditRepository,
	telemetry Telemetry,
	config Config,
	logger *zap.Logger,
) *ProcessRequestUseCase {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 32
	}
	if config.MaxUtteranceChars <= 0 {
		config.MaxUtteranceChars = 2048
	}
	if config.RetrievalTopK <= 0 {
		config.RetrievalTopK = 5
	}
	config.Deadlines = config.Deadlines.normalized()
	return &ProcessRequestUseCase{
		classifier:    classifier,
		safety:        safety,
		retriever:     retriever,
		writer:        writer,
		router:        router,
		overrides:     overrides,
		conversations: conversations,
		summarizer:    summarizer,
		audit:         audit,
		telemetry:     telemetry,
		config:        config,
		logger:        logger,
		inflight:      make(chan struct{}, config.MaxInFlight),
		now:           time.Now,
	}
}

// SetClock overrides the clock. Tests only.
func (uc *ProcessRequestUseCase) SetClock(now func() time.Time) { uc.now = now }

// Execute processes one request end to end. The only error it returns is
// the hard capacity rejection; every other failure is absorbed into a
// spoken response.
func (uc *ProcessRequestUseCase) Execute(ctx context.Context, req *entity.Request) (*entity.Response, error) {
	select {
	case uc.inflight <- struct{}{}:
	default:
		if uc.telemetry != nil {
			uc.telemetry.RequestRejected("capacity")
		}
		return nil, apperrors.NewCapacity("too many requests in flight")
	}
	defer func() { <-uc.inflight }()

	if uc.telemetry != nil {
		uc.telemetry.RequestStarted()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.config.Deadlines.Total)
	defer cancel()
	ctx = service.WithTraceID(ctx, uuid.NewString())

	start := uc.now()
	sm := service.NewRequestStateMachine(uc.logger)
	log := uc.logger.With(
		zap.String("request_id", req.ID),
		zap.String("trace_id", service.TraceIDFromContext(ctx)),
	)

	// Malformed input never reaches a handler.
	trimmed := strings.TrimSpace(req.Utterance)
	if trimmed == "" || len(req.Utterance) > uc.config.MaxUtteranceChars {
		log.Warn("Malformed input rejected",
			zap.Int("length", len(req.Utterance)),
		)
		_ = sm.Transition(service.StateFailed)
		resp := uc.respond(ctx, cannedClarification, entity.IntentUnknown, "", start)
		uc.appendAudit(ctx, req, resp, entity.Classification{Intent: entity.IntentUnknown}, false, "input malformed")
		uc.finish(sm, resp, start, true)
		return resp, nil
	}

	req.Normalized = nlu.Normalize(req.Utterance)
	_ = sm.Transition(service.StateNormalized)

	// Safety scan runs beside the pipeline; it never blocks dispatch.
	alertCh := make(chan *nlu.SafetyAlert, 1)
	if uc.safety != nil {
		safego.Go(log, "safety-scan", func() {
			alertCh <- uc.safety.Scan(ctx, req)
		})
	} else {
		alertCh <- nil
	}

	cls := uc.classifier.Classify(ctx, req.Normalized, req.Utterance)
	sm.SetIntent(string(cls.Intent))
	_ = sm.Transition(service.StateClassified)
	log.Debug("Request classified",
		zap.String("intent", string(cls.Intent)),
		zap.String("sub_category", cls.SubCategory),
		zap.Float64("confidence", cls.Confidence),
		zap.String("source", string(cls.Source)),
	)

	memories := uc.retrieve(ctx, req, cls, sm, log)

	conv := uc.conversations.Context(req.ConversationID)
	inv := &handler.Invocation{
		Request:        req,
		Classification: cls,
		Memories:       memories,
		Conversation:   conv,
	}
	if uc.overrides != nil {
		inv.Overrides = uc.overrides.Resolve(req)
	}

	result, handlerName := uc.dispatch(ctx, cls, inv, log)
	sm.SetHandler(handlerName)
	_ = sm.Transition(service.StateHandled)

	// The safety verdict is needed before the audit entry is committed. The
	// scan is pure regex work, so this wait is nominal.
	alert := uc.awaitAlert(ctx, alertCh)
	if alert != nil {
		sm.FlagAlert()
		if uc.telemetry != nil {
			uc.telemetry.SafetyAlert()
		}
		log.Warn("Safety alert raised",
			zap.String("speaker", alert.Speaker),
			zap.String("pattern", alert.PatternID),
		)
	}

	resp := uc.respond(ctx, result.Text, cls.Intent, handlerName, start)

	// Audit is synchronous: the entry is committed before the response is.
	uc.appendAudit(ctx, req, resp, cls, alert != nil, diagnosticsReason(result))
	_ = sm.Transition(service.StateWritten)

	conv.Append(conversation.Turn{
		Role: conversation.RoleUser, Speaker: req.Speaker,
		Text: req.Utterance, Timestamp: req.Timestamp,
	})
	conv.Append(conversation.Turn{
		Role: conversation.RoleAssistant,
		Text: resp.Text, Timestamp: uc.now(),
	})

	// Memory write-back and window compaction happen after the response and
	// never delay it.
	uc.writeBack(req, resp, cls, result, conv, log)

	uc.finish(sm, resp, start, result.Failed())
	return resp, nil
}

func (uc *ProcessRequestUseCase) retrieve(ctx context.Context, req *entity.Request, cls entity.Classification, sm *service.RequestStateMachine, log *zap.Logger) []memory.Scored {
	if uc.retriever == nil || retrievalExempt[cls.Intent] {
		_ = sm.Transition(service.StateRetrievalSkipped)
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, uc.config.Deadlines.Retrieval)
	defer cancel()
	memories, err := uc.retriever.Retrieve(rctx, req.Text(), uc.config.RetrievalTopK, memory.Filter{Speaker: req.Speaker})
	if err != nil {
		// Retrieval failure degrades to an empty memory context.
		log.Warn("Memory retrieval failed", zap.Error(err))
		memories = nil
	}
	_ = sm.Transition(service.StateRetrievalDone)
	return memories
}

// dispatch runs the routed handler under its stage deadline. A handler
// that overruns is abandoned to its context and the canned timeout message
// is returned in its place.
func (uc *ProcessRequestUseCase) dispatch(ctx context.Context, cls entity.Classification, inv *handler.Invocation, log *zap.Logger) (entity.HandlerResult, string) {
	h, ok := uc.router.Resolve(cls.Intent)
	if !ok {
		log.Error("No handler routed", zap.String("intent", string(cls.Intent)))
		return entity.HandlerResult{Text: cannedInternal, Status: entity.HandlerFailed}, ""
	}

	hctx, cancel := context.WithTimeout(ctx, uc.config.Deadlines.forHandler(h.Name()))
	defer cancel()

	resultCh := make(chan entity.HandlerResult, 1)
	safego.Go(log, "handler-"+h.Name(), func() {
		resultCh <- h.Handle(hctx, inv)
	})

	select {
	case result := <-resultCh:
		if result.Failed() {
			log.Warn("Handler reported failure",
				zap.String("handler", h.Name()),
				zap.Any("diagnostics", result.Diagnostics),
			)
		}
		return result, h.Name()
	case <-hctx.Done():
		log.Warn("Handler deadline exceeded",
			zap.String("handler", h.Name()),
			zap.Duration("budget", uc.config.Deadlines.forHandler(h.Name())),
		)
		return entity.HandlerResult{
			Text:        cannedTimeout,
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"error": "deadline exceeded"},
		}, h.Name()
	}
}

func (uc *ProcessRequestUseCase) awaitAlert(ctx context.Context, alertCh <-chan *nlu.SafetyAlert) *nlu.SafetyAlert {
	select {
	case alert := <-alertCh:
		return alert
	case <-ctx.Done():
		return nil
	}
}

func (uc *ProcessRequestUseCase) appendAudit(ctx context.Context, req *entity.Request, resp *entity.Response, cls entity.Classification, alertFlag bool, reason string) {
	if uc.audit == nil {
		return
	}
	entry := &entity.AuditEntry{
		ID:             uuid.NewString(),
		RequestID:      req.ID,
		ConversationID: req.ConversationID,
		Speaker:        req.Speaker,
		Utterance:      req.Utterance,
		ResponseText:   resp.Text,
		Intent:         cls.Intent,
		Handler:        resp.Handler,
		AlertFlag:      alertFlag,
		Reason:         reason,
		Timestamp:      req.Timestamp,
	}
	// Append failures are logged, never surfaced: the spoken response must
	// not depend on audit storage health.
	if err := uc.audit.Append(ctx, entry); err != nil {
		uc.logger.Error("Audit append failed",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}

// writeBack records conversational exchanges as observation memories and
// compacts the window, both off the response path.
func (uc *ProcessRequestUseCase) writeBack(req *entity.Request, resp *entity.Response, cls entity.Classification, result entity.HandlerResult, conv *conversation.Context, log *zap.Logger) {
	writeMemory := uc.writer != nil &&
		result.Status == entity.HandlerOK &&
		(cls.Intent == entity.IntentConversation || cls.Intent == entity.IntentQuery) &&
		req.Speaker != ""

	compact := uc.summarizer != nil && conv.NeedsSummary()
	if !writeMemory && !compact {
		return
	}

	safego.Go(log, "memory-writeback", func() {
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if writeMemory {
			m := memory.New(
				fmt.Sprintf("%s asked %q and was told %q", req.Speaker, req.Utterance, resp.Text),
				memory.TypeObservation,
				0.3,
				[]string{req.Speaker},
				[]string{"conversation"},
			)
			if err := uc.writer.Create(wctx, m); err != nil {
				log.Warn("Memory write-back failed", zap.Error(err))
			} else if uc.telemetry != nil {
				uc.telemetry.MemoryWrite()
			}
		}
		if compact {
			if err := uc.summarizer.Compact(wctx, conv); err != nil {
				log.Warn("Window compaction failed", zap.Error(err))
			}
		}
	})
}

func (uc *ProcessRequestUseCase) respond(ctx context.Context, text string, intent entity.Intent, handlerName string, start time.Time) *entity.Response {
	return &entity.Response{
		Text:      text,
		Intent:    intent,
		Handler:   handlerName,
		LatencyMS: uc.now().Sub(start).Milliseconds(),
		TraceID:   service.TraceIDFromContext(ctx),
	}
}

func (uc *ProcessRequestUseCase) finish(sm *service.RequestStateMachine, resp *entity.Response, start time.Time, failed bool) {
	if !sm.IsTerminal() {
		_ = sm.Transition(service.StateResponded)
	}
	if uc.telemetry != nil {
		uc.telemetry.RequestFinished(resp.Intent, resp.Handler, uc.now().Sub(start), failed)
	}
}

func diagnosticsReason(result entity.HandlerResult) string {
	if len(result.Diagnostics) == 0 {
		return ""
	}
	parts := make([]string, 0, len(result.Diagnostics))
	for k, v := range result.Diagnostics {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
