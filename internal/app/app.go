// Package app wires all aurelay subsystems into a running service.
//
// New creates and connects everything the configuration asks for: the
// telemetry providers, the history store, semantic recall, transcript
// correction, summarisation, the tool gateway and the session orchestrator,
// and exposes them behind the HTTP control surface. Run serves HTTP until
// the context is cancelled; Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithStore,
// WithGateway, WithTransportFactory, etc.). When an option is not provided,
// New builds the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aurelay/internal/config"
	"github.com/MrWong99/aurelay/internal/gateway"
	"github.com/MrWong99/aurelay/internal/health"
	"github.com/MrWong99/aurelay/internal/observe"
	"github.com/MrWong99/aurelay/internal/recall"
	"github.com/MrWong99/aurelay/internal/resilience"
	"github.com/MrWong99/aurelay/internal/server"
	"github.com/MrWong99/aurelay/internal/session"
	"github.com/MrWong99/aurelay/internal/transcript"
	"github.com/MrWong99/aurelay/pkg/audio"
	"github.com/MrWong99/aurelay/pkg/embeddings"
	openaiembed "github.com/MrWong99/aurelay/pkg/embeddings/openai"
	"github.com/MrWong99/aurelay/pkg/store"
	"github.com/MrWong99/aurelay/pkg/store/postgres"
	"github.com/MrWong99/aurelay/pkg/transport"
	wstransport "github.com/MrWong99/aurelay/pkg/transport/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// httpShutdownTimeout bounds the graceful drain of in-flight requests.
const httpShutdownTimeout = 10 * time.Second

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a history store instead of connecting to PostgreSQL.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSemanticIndex injects a semantic index instead of creating one from
// the PostgreSQL pool.
func WithSemanticIndex(idx store.SemanticIndex) Option {
	return func(a *App) { a.index = idx }
}

// WithEmbeddings injects an embeddings provider instead of creating one
// from config.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(a *App) { a.embedder = p }
}

// WithGateway injects a tool gateway instead of creating one from config.
// Builtin tools are still layered on top of it.
func WithGateway(gw gateway.Gateway) Option {
	return func(a *App) { a.gateway = gw }
}

// WithTransportFactory injects a transport factory instead of the default
// WebSocket one.
func WithTransportFactory(f transport.Factory) Option {
	return func(a *App) { a.factory = f }
}

// WithTokens injects a token source instead of the configured API key.
func WithTokens(t session.TokenSource) Option {
	return func(a *App) { a.tokens = t }
}

// WithSummariser injects a post-session summariser instead of creating one
// from config.
func WithSummariser(s session.Summariser) Option {
	return func(a *App) { a.summariser = s }
}

// WithPromRegistry scopes the Prometheus collectors to reg instead of the
// default registry. Tests use this so multiple Apps can coexist in one
// process.
func WithPromRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.promReg = reg }
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	log *slog.Logger

	store      store.Store
	index      store.SemanticIndex
	embedder   embeddings.Provider
	gateway    gateway.Gateway
	factory    transport.Factory
	tokens     session.TokenSource
	summariser session.Summariser

	promReg *prometheus.Registry
	metrics *observe.Metrics
	manager *server.Manager
	handler http.Handler
	httpSrv *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// New wires all subsystems per cfg. Initialisation is synchronous: the
// telemetry providers, the database connection and the MCP gateway handshake
// all complete before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default().With("component", "app"),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	pool, err := a.initStore(ctx)
	if err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	rec, err := a.initRecall()
	if err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init recall: %w", err)
	}

	if err := a.initGateway(ctx, rec); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}

	if err := a.initSummariser(); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init summariser: %w", err)
	}

	orch, err := a.initOrchestrator(rec)
	if err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	a.manager = server.NewManager(orch, session.Config{
		Model:     cfg.Realtime.Model,
		Transport: cfg.Realtime.Transport,
		BaseURL:   cfg.Realtime.BaseURL,
	}, a.log)

	var checkers []health.Checker
	if pool != nil {
		checkers = append(checkers, health.PingChecker("database", pool))
	}

	metricsHandler := promhttp.Handler()
	if a.promReg != nil {
		metricsHandler = promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})
	}
	a.handler = server.New(a.log, server.Dependencies{
		Manager:        a.manager,
		Health:         health.New(checkers...),
		Metrics:        a.metrics,
		MetricsHandler: metricsHandler,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Handler returns the HTTP control surface. Used by tests to drive the app
// without binding a port.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Manager returns the session lifecycle manager.
func (a *App) Manager() *server.Manager {
	return a.manager
}

// Run serves the HTTP control surface until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.httpSrv.Addr, "version", Version)
		if err := a.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			a.log.Warn("http shutdown error", "err", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown ends any active session and tears down all subsystems in
// reverse-init order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.manager != nil && a.manager.IsActive() {
			if _, stopErr := a.manager.Stop(ctx); stopErr != nil && !errors.Is(stopErr, server.ErrNoActiveSession) {
				a.log.Warn("session stop error during shutdown", "err", stopErr)
			}
		}
		err = a.closeAll(ctx)
		a.log.Info("shutdown complete")
	})
	return err
}

// ── Init helpers ─────────────────────────────────────────────────────────────

func (a *App) initTelemetry(ctx context.Context) error {
	pcfg := observe.ProviderConfig{ServiceVersion: Version}
	if a.promReg != nil {
		pcfg.Registerer = a.promReg
	}
	shutdown, err := observe.InitProvider(ctx, pcfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = metrics
	return nil
}

// initStore connects the PostgreSQL history store unless one was injected or
// no DSN is configured. It returns the pool for the readiness probe.
func (a *App) initStore(ctx context.Context) (health.Pinger, error) {
	if a.store != nil {
		return nil, nil
	}
	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		return nil, nil
	}

	pg, err := postgres.NewStore(ctx, dsn, a.cfg.Memory.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	a.store = pg
	if a.index == nil {
		a.index = postgres.NewSemanticIndex(pg.Pool())
	}
	a.closers = append(a.closers, func(context.Context) error {
		pg.Close()
		return nil
	})

	a.log.Info("history store connected", "embedding_dimensions", a.cfg.Memory.EmbeddingDimensions)
	return pg.Pool(), nil
}

// initRecall builds the semantic recall service when both an embeddings
// provider and an index are available.
func (a *App) initRecall() (*recall.Service, error) {
	if a.index == nil {
		return nil, nil
	}

	if a.embedder == nil {
		if a.cfg.Realtime.APIKey == "" {
			a.log.Warn("semantic index available but no embeddings credentials, recall disabled")
			return nil, nil
		}
		p, err := openaiembed.New(a.cfg.Realtime.APIKey, a.cfg.Memory.EmbeddingsModel)
		if err != nil {
			return nil, err
		}
		a.embedder = p
	}

	a.log.Info("semantic recall enabled", "model", a.embedder.ModelID())
	return recall.New(a.embedder, a.index, a.log), nil
}

// initGateway builds the configured external gateway and layers the builtin
// recall tool on top of it.
func (a *App) initGateway(ctx context.Context, rec *recall.Service) error {
	external := a.gateway
	if external == nil {
		switch a.cfg.Gateway.Kind {
		case config.GatewayHTTP:
			var opts []gateway.HTTPOption
			if a.cfg.Gateway.Token != "" {
				opts = append(opts, gateway.WithBearerToken(a.cfg.Gateway.Token))
			}
			gw, err := gateway.NewHTTPGateway(a.cfg.Gateway.Endpoint, opts...)
			if err != nil {
				return err
			}
			external = gw

		case config.GatewayMCP:
			gw, err := gateway.NewMCPGateway(ctx, a.cfg.Gateway.Endpoint)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func(context.Context) error { return gw.Close() })
			external = gw
		}

		if external != nil {
			external = gateway.NewBreakerGateway(external, resilience.New(resilience.Config{
				Name:   "tool-gateway",
				Logger: a.log,
			}))
		}
	}

	if rec == nil {
		a.gateway = external
		return nil
	}

	mux := gateway.NewMux(external)
	mux.Register(recall.ToolName, rec.Handler())
	a.gateway = mux
	return nil
}

func (a *App) initSummariser() error {
	if a.summariser != nil || a.cfg.Summary.Provider == "" {
		return nil
	}

	var opts []anyllmlib.Option
	if a.cfg.Summary.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(a.cfg.Summary.APIKey))
	}
	s, err := session.NewLLMSummariser(a.cfg.Summary.Provider, a.cfg.Summary.Model, opts...)
	if err != nil {
		return err
	}
	a.summariser = s
	return nil
}

func (a *App) initOrchestrator(rec *recall.Service) (*session.Orchestrator, error) {
	if a.factory == nil {
		// The built-in factory only dials websocket upstreams. Other kinds
		// need an injected factory, so reject them at startup rather than on
		// the first connect.
		if kind := a.cfg.Realtime.Transport; kind != transport.KindWebSocket {
			return nil, fmt.Errorf("transport %q requires a custom transport factory", kind)
		}
		a.factory = transport.FactoryFunc(func(kind transport.Kind) (transport.Transport, error) {
			switch kind {
			case transport.KindWebSocket:
				return wstransport.New(wstransport.WithLogger(a.log)), nil
			default:
				return nil, fmt.Errorf("app: no %s transport configured", kind)
			}
		})
	}
	if a.tokens == nil {
		a.tokens = session.StaticToken(a.cfg.Realtime.APIKey)
	}

	// Playback is the caller's concern on this control surface; the sink
	// only accounts for played audio duration.
	sink := audio.NewQueue(func([]byte) {})
	a.closers = append(a.closers, func(context.Context) error { return sink.Close() })

	opts := []session.Option{
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics),
		session.WithAudioSink(sink),
	}
	if a.store != nil {
		opts = append(opts, session.WithStore(a.store))
	}
	if rec != nil {
		opts = append(opts, session.WithRecall(rec))
	}
	if len(a.cfg.Transcript.Hotwords) > 0 {
		opts = append(opts, session.WithCorrector(transcript.New(a.cfg.Transcript.Hotwords)))
	}
	if a.summariser != nil {
		opts = append(opts, session.WithSummariser(a.summariser))
	}

	return session.New(a.factory, a.tokens, a.gateway, opts...), nil
}

// closeAll runs the accumulated closers in reverse order, joining errors.
func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
