package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration tree.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Patterns     PatternsConfig     `mapstructure:"patterns"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Home         HomeConfig         `mapstructure:"home"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	Safety       SafetyConfig       `mapstructure:"safety"`
	Overrides    []OverrideConfig   `mapstructure:"overrides"`
	Routing      map[string]string  `mapstructure:"routing"`
	RoutingFile  RoutingFileConfig  `mapstructure:"routing_file"`
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// LogConfig covers structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// PipelineConfig holds the orchestrator budgets.
type PipelineConfig struct {
	TotalDeadline        time.Duration `mapstructure:"total_deadline"`
	RetrievalDeadline    time.Duration `mapstructure:"retrieval_deadline"`
	InstantDeadline      time.Duration `mapstructure:"instant_deadline"`
	ActionDeadline       time.Duration `mapstructure:"action_deadline"`
	ConversationDeadline time.Duration `mapstructure:"conversation_deadline"`
	MemoryOpDeadline     time.Duration `mapstructure:"memory_op_deadline"`
	MaxInFlight          int           `mapstructure:"max_in_flight"`
	MaxUtteranceChars    int           `mapstructure:"max_utterance_chars"`
	RetrievalTopK        int           `mapstructure:"retrieval_top_k"`
}

// ClassifierConfig holds the cascade tunables.
type ClassifierConfig struct {
	PatternThreshold   float64       `mapstructure:"pattern_threshold"`
	HeuristicThreshold float64       `mapstructure:"heuristic_threshold"`
	ModelEnabled       bool          `mapstructure:"model_enabled"`
	ModelName          string        `mapstructure:"model_name"`
	CascadeDeadline    time.Duration `mapstructure:"cascade_deadline"`
}

// PatternsConfig points at the hot-reloadable pattern file.
type PatternsConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// RoutingFileConfig points at the hot-reloadable routing override file.
// The inline routing map still applies; the file overlays it when present.
type RoutingFileConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// MemoryConfig holds retrieval scoring and maintenance tunables.
type MemoryConfig struct {
	SemanticWeight   float64 `mapstructure:"semantic_weight"`
	ImportanceWeight float64 `mapstructure:"importance_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`
	AccessWeight     float64 `mapstructure:"access_weight"`
	BaseHalfLifeDays float64 `mapstructure:"base_half_life_days"`
	ReinforceDelta   float64 `mapstructure:"reinforce_delta"`
	ArchiveThreshold float64 `mapstructure:"archive_threshold"`
	DeleteAfterDays  int     `mapstructure:"delete_after_days"`
}

// ConversationConfig holds the window and response tunables.
type ConversationConfig struct {
	MaxTurns       int     `mapstructure:"max_turns"`
	TokenHighWater int     `mapstructure:"token_high_water"`
	KeepTail       int     `mapstructure:"keep_tail"`
	CharsPerToken  int     `mapstructure:"chars_per_token"`
	Persona        string  `mapstructure:"persona"`
	Model          string  `mapstructure:"model"`
	MaxResponse    int     `mapstructure:"max_response"`
	MemoryBudget   int     `mapstructure:"memory_budget"`
	WindowBudget   int     `mapstructure:"window_budget"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
}

// HomeConfig covers the smart-home platform connection and device naming.
type HomeConfig struct {
	BaseURL     string              `mapstructure:"base_url"`
	TokenSecret string              `mapstructure:"token_secret"` // Name looked up in the secrets store
	RegistryTTL time.Duration       `mapstructure:"registry_ttl"`
	Groups      map[string][]string `mapstructure:"groups"`
	TimerSlots  []string            `mapstructure:"timer_slots"`
	UndoDepth   int                 `mapstructure:"undo_depth"`
}

// LLMConfig lists the completion providers the router fails over across.
type LLMConfig struct {
	Providers     []ProviderConfig `mapstructure:"providers"`
	RetryAttempts int              `mapstructure:"retry_attempts"`
}

// ProviderConfig configures one completion provider.
type ProviderConfig struct {
	Name         string   `mapstructure:"name"`
	Type         string   `mapstructure:"type"`
	BaseURL      string   `mapstructure:"base_url"`
	APIKeySecret string   `mapstructure:"api_key_secret"` // Name looked up in the secrets store
	Models       []string `mapstructure:"models"`
}

// EmbeddingConfig selects the embedding backend. Type "hash" keeps the
// core fully offline; "ollama" uses a local sidecar.
type EmbeddingConfig struct {
	Type      string `mapstructure:"type"` // hash, ollama
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// SafetyConfig covers concern detection and guardian notification.
type SafetyConfig struct {
	Minors           []string          `mapstructure:"minors"`
	Expressions      map[string]string `mapstructure:"expressions"`
	Channel          string            `mapstructure:"channel"`
	TelegramChatID   int64             `mapstructure:"telegram_chat_id"`
	TelegramBotToken string            `mapstructure:"telegram_bot_token_secret"` // Name looked up in the secrets store
}

// OverrideConfig mirrors one household override rule.
type OverrideConfig struct {
	ID               string   `mapstructure:"id"`
	Scope            string   `mapstructure:"scope"` // time, room, user
	Priority         int      `mapstructure:"priority"`
	Speaker          string   `mapstructure:"speaker"`
	Room             string   `mapstructure:"room"`
	FromHour         int      `mapstructure:"from_hour"`
	UntilHour        int      `mapstructure:"until_hour"`
	Volume           string   `mapstructure:"volume"`
	BlockedDomains   []string `mapstructure:"blocked_domains"`
	ConfirmThreshold float64  `mapstructure:"confirm_threshold"`
}

// Load reads the layered configuration: defaults, then the global
// ~/.barnabee/config.yaml, then a project-local config.yaml, then
// BARNABEE_* environment variables. Later layers win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".barnabee")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("BARNABEE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "barnabee.db")

	v.SetDefault("pipeline.total_deadline", "4s")
	v.SetDefault("pipeline.retrieval_deadline", "300ms")
	v.SetDefault("pipeline.instant_deadline", "50ms")
	v.SetDefault("pipeline.action_deadline", "2s")
	v.SetDefault("pipeline.conversation_deadline", "3s")
	v.SetDefault("pipeline.memory_op_deadline", "500ms")
	v.SetDefault("pipeline.max_in_flight", 32)
	v.SetDefault("pipeline.max_utterance_chars", 2048)
	v.SetDefault("pipeline.retrieval_top_k", 5)

	v.SetDefault("classifier.pattern_threshold", 0.85)
	v.SetDefault("classifier.heuristic_threshold", 0.7)
	v.SetDefault("classifier.model_enabled", true)
	v.SetDefault("classifier.model_name", "qwen3:4b")
	v.SetDefault("classifier.cascade_deadline", "600ms")

	v.SetDefault("patterns.path", "config/patterns.yaml")
	v.SetDefault("patterns.watch", true)

	v.SetDefault("routing_file.path", "config/routing.yaml")
	v.SetDefault("routing_file.watch", true)

	v.SetDefault("memory.semantic_weight", 0.40)
	v.SetDefault("memory.importance_weight", 0.25)
	v.SetDefault("memory.recency_weight", 0.20)
	v.SetDefault("memory.access_weight", 0.15)
	v.SetDefault("memory.base_half_life_days", 30)
	v.SetDefault("memory.reinforce_delta", 0.1)
	v.SetDefault("memory.archive_threshold", 0.10)
	v.SetDefault("memory.delete_after_days", 90)

	v.SetDefault("conversation.max_turns", 20)
	v.SetDefault("conversation.token_high_water", 1500)
	v.SetDefault("conversation.keep_tail", 6)
	v.SetDefault("conversation.chars_per_token", 4)
	v.SetDefault("conversation.model", "qwen3:4b")
	v.SetDefault("conversation.max_response", 600)
	v.SetDefault("conversation.memory_budget", 5)
	v.SetDefault("conversation.window_budget", 10)
	v.SetDefault("conversation.max_tokens", 300)
	v.SetDefault("conversation.temperature", 0.7)

	v.SetDefault("home.base_url", "http://localhost:8123")
	v.SetDefault("home.token_secret", "home_token")
	v.SetDefault("home.registry_ttl", "5m")
	v.SetDefault("home.timer_slots", []string{
		"timer.slot_1", "timer.slot_2", "timer.slot_3", "timer.slot_4", "timer.slot_5",
	})
	v.SetDefault("home.undo_depth", 5)

	v.SetDefault("llm.retry_attempts", 2)

	v.SetDefault("embedding.type", "hash")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimension", 256)

	v.SetDefault("safety.channel", "guardian")
}
