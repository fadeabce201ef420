package application

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/barnabee/barnabee/internal/application/usecase"
	"github.com/barnabee/barnabee/internal/domain/conversation"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/handler"
	"github.com/barnabee/barnabee/internal/domain/home"
	"github.com/barnabee/barnabee/internal/domain/memory"
	"github.com/barnabee/barnabee/internal/domain/nlu"
	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/barnabee/barnabee/internal/infrastructure/config"
	"github.com/barnabee/barnabee/internal/infrastructure/embedding"
	"github.com/barnabee/barnabee/internal/infrastructure/eventbus"
	"github.com/barnabee/barnabee/internal/infrastructure/homeassistant"
	"github.com/barnabee/barnabee/internal/infrastructure/llm"
	_ "github.com/barnabee/barnabee/internal/infrastructure/llm/openai" // register openai provider factory
	"github.com/barnabee/barnabee/internal/infrastructure/monitoring"
	"github.com/barnabee/barnabee/internal/infrastructure/notify"
	"github.com/barnabee/barnabee/internal/infrastructure/persistence"
	"github.com/barnabee/barnabee/internal/infrastructure/secrets"
	"github.com/barnabee/barnabee/pkg/safego"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is the dependency injection container: it builds every layer from
// configuration and owns the background workers' lifecycle.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	secrets secrets.Store
	bus     *eventbus.InMemoryBus
	monitor *monitoring.Monitor

	memoryRepo memory.Repository
	auditRepo  repository.AuditRepository

	index     memory.VectorIndex
	embedder  memory.Embedder
	retriever *memory.Retriever
	writer    *memory.Writer

	patterns       *nlu.PatternMatcher
	patternWatcher *nlu.PatternWatcher
	classifier     *nlu.Classifier
	safety         *nlu.SafetyMonitor

	platform home.Platform
	registry *home.Registry
	undo     *home.UndoStore
	timers   *home.TimerPool

	llmRouter      *llm.Router
	handlerRouter  *handler.Router
	routingWatcher *handler.RoutingWatcher
	overrides      *handler.OverrideResolver
	conversations  *conversation.Store
	summarizer     *conversation.Summarizer

	Pipeline *usecase.ProcessRequestUseCase

	cancelWorkers context.CancelFunc
}

// NewApp wires the full assistant: persistence, the home platform, the
// classifier cascade, handlers and the request pipeline.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config:  cfg,
		logger:  logger,
		secrets: secrets.Chain{secrets.NewEnvStore(""), secrets.NewFileStore("/run/secrets")},
		bus:     eventbus.NewInMemoryBus(logger, 256),
		monitor: monitoring.NewMonitor(),
	}

	if err := app.initPersistence(); err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}
	if err := app.initMemory(); err != nil {
		return nil, fmt.Errorf("init memory: %w", err)
	}
	if err := app.initLLM(); err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	if err := app.initNLU(); err != nil {
		return nil, fmt.Errorf("init nlu: %w", err)
	}
	if err := app.initHome(); err != nil {
		return nil, fmt.Errorf("init home: %w", err)
	}
	app.initPipeline()
	return app, nil
}

// NewAppLite wires an offline assistant for the REPL and tests: in-memory
// persistence, hash embeddings, no platform connection and no model tier
// unless providers are configured.
func NewAppLite(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config:  cfg,
		logger:  logger,
		secrets: secrets.Chain{secrets.NewEnvStore("")},
		bus:     eventbus.NewInMemoryBus(logger, 64),
		monitor: monitoring.NewMonitor(),
	}

	app.memoryRepo = persistence.NewInMemoryMemoryRepository()
	app.auditRepo = persistence.NewInMemoryAuditRepository()

	dim := cfg.Embedding.Dimension
	if dim <= 0 {
		dim = 256
	}
	app.index = memory.NewInMemoryVectorIndex(dim)
	app.embedder = memory.NewHashEmbedder(dim)
	app.retriever = memory.NewRetriever(app.memoryRepo, app.index, app.embedder, app.scoringConfig(), logger)
	app.writer = memory.NewWriter(app.memoryRepo, app.index, app.embedder, app.auditRepo, app.writerConfig(), logger)

	if err := app.initLLM(); err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	if err := app.initNLU(); err != nil {
		return nil, fmt.Errorf("init nlu: %w", err)
	}

	app.platform = offlinePlatform{}
	app.registry = home.NewRegistry(app.platform, cfg.Home.RegistryTTL, cfg.Home.Groups, logger)
	app.undo = home.NewUndoStore(cfg.Home.UndoDepth)
	app.timers = home.NewTimerPool(cfg.Home.TimerSlots)

	app.initPipeline()
	return app, nil
}

func (a *App) initPersistence() error {
	db, err := persistence.NewDBConnection(persistence.DatabaseConfig{
		Type: a.config.Database.Type,
		DSN:  a.config.Database.DSN,
	})
	if err != nil {
		return err
	}
	a.db = db
	a.memoryRepo = persistence.NewGormMemoryRepository(db)
	a.auditRepo = persistence.NewGormAuditRepository(db)
	return nil
}

func (a *App) initMemory() error {
	dim := a.config.Embedding.Dimension
	if dim <= 0 {
		dim = 256
	}

	switch a.config.Embedding.Type {
	case "ollama":
		embedder, err := embedding.NewOllamaEmbedder(a.config.Embedding.BaseURL, a.config.Embedding.Model, a.logger)
		if err != nil {
			return fmt.Errorf("connect embedding sidecar: %w", err)
		}
		a.embedder = embedder
		dim = embedder.Dimension()
	default:
		a.embedder = memory.NewHashEmbedder(dim)
	}

	a.index = memory.NewInMemoryVectorIndex(dim)

	// Embeddings live in a sidecar table; rebuild the in-process index
	// from it so retrieval works from the first request.
	if gormRepo, ok := a.memoryRepo.(*persistence.GormMemoryRepository); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		count := 0
		err := gormRepo.ForEachEmbedding(ctx, func(id string, vec []float32) error {
			if len(vec) != dim {
				return nil // Dimension changed since this record was written
			}
			count++
			return a.index.Upsert(id, vec)
		})
		if err != nil {
			return fmt.Errorf("rebuild vector index: %w", err)
		}
		a.logger.Info("Vector index rebuilt", zap.Int("vectors", count))
	}

	a.retriever = memory.NewRetriever(a.memoryRepo, a.index, a.embedder, a.scoringConfig(), a.logger)
	a.writer = memory.NewWriter(a.memoryRepo, a.index, a.embedder, a.auditRepo, a.writerConfig(), a.logger)
	return nil
}

func (a *App) initLLM() error {
	a.llmRouter = llm.NewRouter(a.config.LLM.RetryAttempts, a.logger)
	for _, pc := range a.config.LLM.Providers {
		apiKey := ""
		if pc.APIKeySecret != "" {
			key, err := a.secrets.Get(pc.APIKeySecret)
			if err != nil {
				a.logger.Warn("Provider API key not found, registering without credentials",
					zap.String("provider", pc.Name),
					zap.Error(err),
				)
			} else {
				apiKey = string(key)
			}
		}
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:    pc.Name,
			Type:    pc.Type,
			BaseURL: pc.BaseURL,
			APIKey:  apiKey,
			Models:  pc.Models,
		}, a.logger)
		if err != nil {
			a.logger.Warn("Skipping provider", zap.String("provider", pc.Name), zap.Error(err))
			continue
		}
		a.llmRouter.AddProvider(provider)
	}
	return nil
}

func (a *App) initNLU() error {
	specs := nlu.SeedPatterns()
	if path := a.config.Patterns.Path; path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := nlu.LoadPatternFile(path)
			if err != nil {
				a.logger.Warn("Pattern file unreadable, using built-in patterns",
					zap.String("path", path),
					zap.Error(err),
				)
			} else {
				specs = loaded
			}
		}
	}
	set, warnings := nlu.NewPatternSet(specs)
	for _, w := range warnings {
		a.logger.Warn("Pattern disabled", zap.String("detail", w))
	}
	a.patterns = nlu.NewPatternMatcher(set, a.logger)

	if a.config.Patterns.Watch && a.config.Patterns.Path != "" {
		if _, err := os.Stat(a.config.Patterns.Path); err == nil {
			watcher, err := nlu.NewPatternWatcher(a.config.Patterns.Path, a.patterns, a.logger)
			if err != nil {
				a.logger.Warn("Pattern hot reload unavailable", zap.Error(err))
			} else {
				a.patternWatcher = watcher
			}
		}
	}

	var model *nlu.ModelClassifier
	if a.config.Classifier.ModelEnabled && a.llmRouter.HasProviders() {
		model = nlu.NewModelClassifier(a.llmRouter, a.config.Classifier.ModelName, a.config.Classifier.CascadeDeadline, a.logger)
	}
	a.classifier = nlu.NewClassifier(
		a.patterns,
		nlu.NewHeuristicClassifier(),
		model,
		nlu.ClassifierConfig{
			PatternThreshold:   a.config.Classifier.PatternThreshold,
			HeuristicThreshold: a.config.Classifier.HeuristicThreshold,
			ModelEnabled:       model != nil,
			CascadeDeadline:    a.config.Classifier.CascadeDeadline,
		},
		a.logger,
	)

	expressions := a.config.Safety.Expressions
	if len(expressions) == 0 {
		expressions = nlu.DefaultSafetyExpressions()
	}
	a.safety = nlu.NewSafetyMonitor(
		a.config.Safety.Minors,
		expressions,
		a.safetySink(),
		a.config.Safety.Channel,
		a.logger,
	)
	return nil
}

// safetySink prefers Telegram when a chat is configured and falls back to
// the log so alerts are never dropped.
func (a *App) safetySink() nlu.NotificationSink {
	if a.config.Safety.TelegramChatID != 0 && a.config.Safety.TelegramBotToken != "" {
		token, err := a.secrets.Get(a.config.Safety.TelegramBotToken)
		if err == nil {
			sink, err := notify.NewTelegramSink(string(token), a.config.Safety.TelegramChatID, a.logger)
			if err == nil {
				return sink
			}
			a.logger.Warn("Telegram sink unavailable, alerts go to the log", zap.Error(err))
		} else {
			a.logger.Warn("Telegram bot token not found, alerts go to the log", zap.Error(err))
		}
	}
	return notify.NewLogSink(a.logger)
}

func (a *App) initHome() error {
	token := ""
	if a.config.Home.TokenSecret != "" {
		value, err := a.secrets.Get(a.config.Home.TokenSecret)
		if err != nil {
			a.logger.Warn("Platform token not found, device control will fail",
				zap.Error(err),
			)
		} else {
			token = string(value)
		}
	}
	a.platform = homeassistant.NewClient(a.config.Home.BaseURL, token, a.logger)
	a.registry = home.NewRegistry(a.platform, a.config.Home.RegistryTTL, a.config.Home.Groups, a.logger)
	a.undo = home.NewUndoStore(a.config.Home.UndoDepth)
	a.timers = home.NewTimerPool(a.config.Home.TimerSlots)
	return nil
}

func (a *App) initPipeline() {
	instant := handler.NewInstantHandler()
	action := handler.NewActionHandler(a.registry, a.platform, a.undo, a.timers, a.logger)
	conv := handler.NewConversationHandler(a.llmRouter, handler.ConversationConfig{
		Model:        a.config.Conversation.Model,
		Persona:      a.config.Conversation.Persona,
		Deadline:     a.config.Pipeline.ConversationDeadline,
		MaxResponse:  a.config.Conversation.MaxResponse,
		MemoryBudget: a.config.Conversation.MemoryBudget,
		WindowBudget: a.config.Conversation.WindowBudget,
		MaxTokens:    a.config.Conversation.MaxTokens,
		Temperature:  a.config.Conversation.Temperature,
	}, a.logger)
	memOp := handler.NewMemoryOpHandler(a.writer, a.retriever, a.logger)

	routing := handler.DefaultRoutingTable()
	for intent, name := range a.config.Routing {
		routing[entityIntent(intent)] = name
	}
	a.handlerRouter = handler.NewRouter(routing, instant, action, conv, memOp)
	a.initRoutingFile()
	a.overrides = handler.NewOverrideResolver(overrideRules(a.config.Overrides))

	telemetry := pipelineTelemetry{monitor: a.monitor, bus: a.bus}

	convConfig := conversation.Config{
		MaxTurns:       a.config.Conversation.MaxTurns,
		TokenHighWater: a.config.Conversation.TokenHighWater,
		KeepTail:       a.config.Conversation.KeepTail,
		CharsPerToken:  a.config.Conversation.CharsPerToken,
	}
	a.conversations = conversation.NewStore(convConfig)
	a.summarizer = conversation.NewSummarizer(a.llmRouter, a.config.Conversation.Model, a.config.Pipeline.ConversationDeadline, a.logger)

	a.Pipeline = usecase.NewProcessRequestUseCase(
		a.classifier,
		a.safety,
		a.retriever,
		a.writer,
		a.handlerRouter,
		a.overrides,
		a.conversations,
		a.summarizer,
		a.auditRepo,
		telemetry,
		usecase.Config{
			Deadlines: usecase.Deadlines{
				Total:        a.config.Pipeline.TotalDeadline,
				Retrieval:    a.config.Pipeline.RetrievalDeadline,
				Instant:      a.config.Pipeline.InstantDeadline,
				Action:       a.config.Pipeline.ActionDeadline,
				Conversation: a.config.Pipeline.ConversationDeadline,
				MemoryOp:     a.config.Pipeline.MemoryOpDeadline,
			},
			MaxInFlight:       a.config.Pipeline.MaxInFlight,
			MaxUtteranceChars: a.config.Pipeline.MaxUtteranceChars,
			RetrievalTopK:     a.config.Pipeline.RetrievalTopK,
		},
		a.logger,
	)
}

// initRoutingFile overlays the routing file when it exists and prepares
// the hot-reload watcher. An unreadable or invalid file is skipped.
func (a *App) initRoutingFile() {
	path := a.config.RoutingFile.Path
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	table, err := handler.LoadRoutingFile(path)
	if err != nil {
		a.logger.Warn("Routing file unreadable, using configured routing",
			zap.String("path", path),
			zap.Error(err),
		)
	} else if err := a.handlerRouter.Apply(table); err != nil {
		a.logger.Warn("Routing file rejected, using configured routing",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	if a.config.RoutingFile.Watch {
		watcher, err := handler.NewRoutingWatcher(path, a.handlerRouter, a.logger)
		if err != nil {
			a.logger.Warn("Routing hot reload unavailable", zap.Error(err))
			return
		}
		a.routingWatcher = watcher
	}
}

// Start launches the background workers: pattern and routing hot reload,
// the platform state stream and the nightly memory maintenance pass.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWorkers = cancel

	if a.patternWatcher != nil {
		a.patternWatcher.OnReload(func() {
			a.monitor.PatternReload()
			a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypePatternsReloaded, nil))
		})
		safego.Go(a.logger, "pattern-watcher", func() {
			a.patternWatcher.Start()
		})
	}

	if a.routingWatcher != nil {
		a.routingWatcher.OnReload(func() {
			a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeRoutingReloaded, nil))
		})
		safego.Go(a.logger, "routing-watcher", func() {
			a.routingWatcher.Start()
		})
	}

	if _, ok := a.platform.(offlinePlatform); !ok && a.platform != nil {
		safego.Go(a.logger, "state-stream", func() { a.pumpStateChanges(ctx) })
		a.bus.Subscribe(eventbus.EventTypeStateChanged, a.onStateChanged)
	}

	safego.Go(a.logger, "memory-maintenance", func() { a.maintenanceLoop(ctx) })
}

// Stop shuts down workers and the event bus.
func (a *App) Stop() {
	if a.cancelWorkers != nil {
		a.cancelWorkers()
	}
	if a.patternWatcher != nil {
		a.patternWatcher.Stop()
	}
	if a.routingWatcher != nil {
		a.routingWatcher.Stop()
	}
	a.bus.Close()
	a.logger.Info("Application stopped")
}

// Monitor exposes the metrics collector to the HTTP layer.
func (a *App) Monitor() *monitoring.Monitor { return a.monitor }

// AuditRepo exposes the audit log to the HTTP layer.
func (a *App) AuditRepo() repository.AuditRepository { return a.auditRepo }

// Writer exposes memory mutations for the maintenance command.
func (a *App) Writer() *memory.Writer { return a.writer }

// pumpStateChanges republishes platform state updates onto the event bus.
func (a *App) pumpStateChanges(ctx context.Context) {
	stream, err := a.platform.SubscribeStateChanges(ctx)
	if err != nil {
		a.logger.Warn("State stream unavailable", zap.Error(err))
		return
	}
	for state := range stream {
		a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeStateChanged, state))
	}
}

// onStateChanged refreshes the device registry when an unknown entity
// appears, so new devices resolve without waiting for the cache TTL.
func (a *App) onStateChanged(ctx context.Context, event eventbus.Event) {
	state, ok := event.Payload().(entity.EntityState)
	if !ok {
		return
	}
	if a.registry.Known(state.EntityID) {
		return
	}
	if err := a.registry.Refresh(ctx); err != nil {
		a.logger.Warn("Registry refresh after new entity failed", zap.Error(err))
	}
}

func (a *App) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			stats, err := a.writer.RunMaintenance(runCtx)
			cancel()
			if err != nil {
				a.logger.Warn("Memory maintenance failed", zap.Error(err))
				continue
			}
			a.logger.Info("Memory maintenance done",
				zap.Int("archived", stats.Archived),
				zap.Int("purged", stats.Purged),
			)
		}
	}
}

func (a *App) scoringConfig() memory.ScoringConfig {
	return memory.ScoringConfig{
		SemanticWeight:   a.config.Memory.SemanticWeight,
		ImportanceWeight: a.config.Memory.ImportanceWeight,
		RecencyWeight:    a.config.Memory.RecencyWeight,
		AccessWeight:     a.config.Memory.AccessWeight,
		BaseHalfLifeDays: a.config.Memory.BaseHalfLifeDays,
	}
}

func (a *App) writerConfig() memory.WriterConfig {
	return memory.WriterConfig{
		ReinforceDelta:   a.config.Memory.ReinforceDelta,
		ArchiveThreshold: a.config.Memory.ArchiveThreshold,
		DeleteAfterDays:  a.config.Memory.DeleteAfterDays,
		BaseHalfLifeDays: a.config.Memory.BaseHalfLifeDays,
	}
}
