package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/aurelay/internal/config"
	"github.com/MrWong99/aurelay/pkg/transport"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Realtime.Transport != transport.KindWebSocket {
		t.Errorf("Transport = %q, want %q", cfg.Realtime.Transport, transport.KindWebSocket)
	}
	if cfg.Gateway.Kind != config.GatewayNone {
		t.Errorf("Gateway.Kind = %q, want %q", cfg.Gateway.Kind, config.GatewayNone)
	}
	if cfg.Memory.EmbeddingDimensions != 1536 {
		t.Errorf("EmbeddingDimensions = %d, want 1536", cfg.Memory.EmbeddingDimensions)
	}
}

func TestLoadFromReaderFull(t *testing.T) {
	yml := `
server:
  listen_addr: ":9090"
  log_level: debug
realtime:
  model: gpt-realtime
  transport: peer
  api_key: sk-test
gateway:
  kind: http
  endpoint: https://tools.internal/invoke
  token: secret
memory:
  postgres_dsn: postgres://localhost/aurelay
  embedding_dimensions: 3072
  embeddings_model: text-embedding-3-large
transcript:
  hotwords:
    - Grafana
    - Kubernetes
summary:
  provider: openai
  model: gpt-4.1-mini
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Realtime.Transport != transport.KindPeer {
		t.Errorf("Transport = %q, want %q", cfg.Realtime.Transport, transport.KindPeer)
	}
	if cfg.Gateway.Kind != config.GatewayHTTP {
		t.Errorf("Gateway.Kind = %q, want %q", cfg.Gateway.Kind, config.GatewayHTTP)
	}
	if cfg.Memory.EmbeddingDimensions != 3072 {
		t.Errorf("EmbeddingDimensions = %d, want 3072", cfg.Memory.EmbeddingDimensions)
	}
	if got := len(cfg.Transcript.Hotwords); got != 2 {
		t.Errorf("len(Hotwords) = %d, want 2", got)
	}
	if cfg.Summary.Model != "gpt-4.1-mini" {
		t.Errorf("Summary.Model = %q, want %q", cfg.Summary.Model, "gpt-4.1-mini")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
	if err == nil {
		t.Fatal("LoadFromReader() expected error for unknown field, got nil")
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	yml := `
server:
  listen_addr: ""
  log_level: loud
realtime:
  model: ""
  transport: carrier-pigeon
gateway:
  kind: http
`
	_, err := config.LoadFromReader(strings.NewReader(yml))
	if err == nil {
		t.Fatal("LoadFromReader() expected validation error, got nil")
	}
	for _, want := range []string{"listen_addr", "log_level", "realtime.model", "realtime.transport", "gateway.endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("AURELAY_LISTEN_ADDR", ":7070")
	t.Setenv("AURELAY_API_KEY", "sk-from-env")
	t.Setenv("AURELAY_POSTGRES_DSN", "postgres://env/aurelay")

	yml := `
server:
  listen_addr: ":9090"
realtime:
  api_key: sk-from-file
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want env override %q", cfg.Server.ListenAddr, ":7070")
	}
	if cfg.Realtime.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env override %q", cfg.Realtime.APIKey, "sk-from-env")
	}
	if cfg.Memory.PostgresDSN != "postgres://env/aurelay" {
		t.Errorf("PostgresDSN = %q, want %q", cfg.Memory.PostgresDSN, "postgres://env/aurelay")
	}
}

func TestMemoryDimensionValidation(t *testing.T) {
	yml := `
realtime:
  model: gpt-realtime
memory:
  postgres_dsn: postgres://localhost/aurelay
  embedding_dimensions: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yml))
	if err == nil || !strings.Contains(err.Error(), "embedding_dimensions") {
		t.Fatalf("LoadFromReader() error = %v, want embedding_dimensions complaint", err)
	}
}

func TestLogLevel(t *testing.T) {
	if !config.LogDebug.IsValid() || config.LogLevel("loud").IsValid() {
		t.Error("IsValid mismatch")
	}
	if config.LogWarn.Slog() != slog.LevelWarn {
		t.Errorf("Slog() = %v, want %v", config.LogWarn.Slog(), slog.LevelWarn)
	}
	if config.LogLevel("").Slog() != slog.LevelInfo {
		t.Errorf("Slog() = %v, want info fallback", config.LogLevel("").Slog())
	}
}
