package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/aurelay/internal/session"
	"github.com/MrWong99/aurelay/pkg/transport"
)

// Default holds the baseline configuration applied before the file and
// environment are read.
var Default = Config{
	Server: ServerConfig{
		ListenAddr: ":8080",
		LogLevel:   LogInfo,
	},
	Realtime: RealtimeConfig{
		Model:     session.DefaultModel,
		Transport: transport.KindWebSocket,
	},
	Gateway: GatewayConfig{
		Kind: GatewayNone,
	},
	Memory: MemoryConfig{
		EmbeddingDimensions: 1536,
		EmbeddingsModel:     "text-embedding-3-small",
	},
}

// Load reads the configuration from the YAML file at path, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes the configuration from r. Unknown YAML fields are
// rejected. Environment variables override file values.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for hard errors and logs warnings for
// settings that are legal but probably unintended. All hard errors are
// joined into the returned error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("config: server.listen_addr must not be empty"))
	}
	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel))
	}

	if c.Realtime.Model == "" {
		errs = append(errs, errors.New("config: realtime.model must not be empty"))
	}
	if !c.Realtime.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("config: realtime.transport %q is not one of websocket, peer", c.Realtime.Transport))
	}
	if c.Realtime.APIKey == "" {
		slog.Warn("no realtime API key configured, session connects will fail",
			"hint", "set AURELAY_API_KEY or realtime.api_key")
	}

	if !c.Gateway.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("config: gateway.kind %q is not one of none, http, mcp", c.Gateway.Kind))
	}
	if c.Gateway.Kind != GatewayNone && c.Gateway.Endpoint == "" {
		errs = append(errs, fmt.Errorf("config: gateway.endpoint is required for gateway kind %q", c.Gateway.Kind))
	}
	if c.Gateway.Kind == GatewayNone && c.Gateway.Endpoint != "" {
		slog.Warn("gateway.endpoint is set but gateway.kind is none, endpoint will be ignored")
	}

	if c.Memory.PostgresDSN != "" && c.Memory.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("config: memory.embedding_dimensions must be positive, got %d", c.Memory.EmbeddingDimensions))
	}
	if c.Memory.PostgresDSN == "" {
		slog.Warn("no postgres DSN configured, session history and recall are disabled")
	}

	if c.Summary.Provider != "" && c.Summary.Model == "" {
		errs = append(errs, fmt.Errorf("config: summary.model is required when summary.provider %q is set", c.Summary.Provider))
	}

	return errors.Join(errs...)
}
