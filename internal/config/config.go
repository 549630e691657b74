// Package config provides the configuration schema and loader for the
// aurelay voice session server.
//
// Configuration is read from a YAML file; secrets (API keys, database DSN,
// gateway token) can additionally be supplied or overridden through
// environment variables, which always win over the file.
package config

import (
	"log/slog"

	"github.com/MrWong99/aurelay/pkg/transport"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the slog level scale. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GatewayKind selects the tool gateway backend.
type GatewayKind string

const (
	// GatewayNone runs with builtin tools only.
	GatewayNone GatewayKind = "none"

	// GatewayHTTP forwards unknown tools to a JSON-over-HTTP executor.
	GatewayHTTP GatewayKind = "http"

	// GatewayMCP forwards unknown tools to an MCP server.
	GatewayMCP GatewayKind = "mcp"
)

// IsValid reports whether k is a recognised gateway kind.
func (k GatewayKind) IsValid() bool {
	switch k {
	case GatewayNone, GatewayHTTP, GatewayMCP:
		return true
	}
	return false
}

// Config is the root configuration, typically loaded with [Load].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Memory     MemoryConfig     `yaml:"memory"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Summary    SummaryConfig    `yaml:"summary"`
}

// ServerConfig holds network and logging settings for the control surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on.
	ListenAddr string `yaml:"listen_addr" env:"AURELAY_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"AURELAY_LOG_LEVEL"`
}

// RealtimeConfig configures the upstream realtime session.
type RealtimeConfig struct {
	// Model is the upstream realtime model tag.
	Model string `yaml:"model"`

	// Transport selects the default channel kind: "websocket" or "peer".
	Transport transport.Kind `yaml:"transport"`

	// BaseURL overrides the upstream endpoint. Used in tests.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the upstream service. Usually supplied
	// via environment rather than the file.
	APIKey string `yaml:"api_key" env:"AURELAY_API_KEY"`
}

// GatewayConfig configures the tool gateway backend.
type GatewayConfig struct {
	Kind GatewayKind `yaml:"kind"`

	// Endpoint is the HTTP or MCP executor address. Required unless Kind
	// is "none".
	Endpoint string `yaml:"endpoint"`

	// Token is a bearer token for the HTTP gateway.
	Token string `yaml:"token" env:"AURELAY_GATEWAY_TOKEN"`
}

// MemoryConfig configures session history and semantic recall. With an
// empty DSN, persistence and recall are disabled.
type MemoryConfig struct {
	// PostgresDSN is the history database connection string.
	PostgresDSN string `yaml:"postgres_dsn" env:"AURELAY_POSTGRES_DSN"`

	// EmbeddingDimensions is the vector column width. Must match the
	// embeddings model. Default: 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// EmbeddingsModel selects the embeddings model for recall.
	EmbeddingsModel string `yaml:"embeddings_model"`
}

// TranscriptConfig configures transcript post-processing.
type TranscriptConfig struct {
	// Hotwords is the vocabulary for phonetic correction of final
	// transcripts. Empty disables correction.
	Hotwords []string `yaml:"hotwords"`
}

// SummaryConfig configures post-session summarisation. With an empty
// provider, summarisation is disabled.
type SummaryConfig struct {
	// Provider names the LLM backend: "openai", "anthropic", "gemini",
	// "ollama", "mistral", or "groq".
	Provider string `yaml:"provider"`

	// Model is the summary model tag.
	Model string `yaml:"model"`

	// APIKey authenticates against the summary provider. Falls back to
	// the provider's usual environment variable when empty.
	APIKey string `yaml:"api_key" env:"AURELAY_SUMMARY_API_KEY"`
}
