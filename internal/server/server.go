// Package server exposes the session lifecycle over HTTP.
//
// Routes:
//
//	POST   /v1/sessions                  start a session
//	GET    /v1/sessions/current          active session state
//	DELETE /v1/sessions/current          stop the session, returns final usage
//	GET    /v1/sessions/current/usage    running usage ledger and cost
//	GET    /v1/sessions/current/latency  recorded latency marks
//	GET    /healthz                      liveness
//	GET    /readyz                       readiness
//	GET    /metrics                      Prometheus scrape endpoint
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/aurelay/internal/health"
	"github.com/MrWong99/aurelay/internal/observe"
	"github.com/MrWong99/aurelay/internal/session"
	"github.com/MrWong99/aurelay/pkg/usage"
)

const maxJSONBodyBytes = 1 << 20

// Dependencies holds everything the HTTP surface needs. Manager is required;
// the rest may be nil.
type Dependencies struct {
	Manager *Manager
	Health  *health.Handler

	// Metrics enables the request instrumentation middleware.
	Metrics *observe.Metrics

	// MetricsHandler serves GET /metrics, typically promhttp.Handler.
	MetricsHandler http.Handler
}

type server struct {
	log     *slog.Logger
	manager *Manager
}

// New builds the HTTP handler.
func New(log *slog.Logger, deps Dependencies) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if deps.Manager == nil {
		panic("server: Manager is required")
	}

	s := &server{
		log:     log.With("component", "http"),
		manager: deps.Manager,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	if deps.Metrics != nil {
		r.Use(observe.Middleware(deps.Metrics))
	}

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
		r.Get("/readyz", deps.Health.Readyz)
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleStart)
		r.Route("/sessions/current", func(r chi.Router) {
			r.Get("/", s.handleInfo)
			r.Delete("/", s.handleStop)
			r.Get("/usage", s.handleUsage)
			r.Get("/latency", s.handleLatency)
		})
	})

	return r
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	// An empty body starts a session with the configured defaults.
	var req StartRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Transport != "" && !req.Transport.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "transport must be websocket or peer")
		return
	}

	info, err := s.manager.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyConnected) {
			s.writeError(w, http.StatusConflict, "session_active", err.Error())
			return
		}
		s.log.Error("session start failed", "err", err)
		s.writeError(w, http.StatusBadGateway, "connect_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{Session: info})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	final, err := s.manager.Stop(r.Context())
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Usage: toUsageView(final)})
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Info()
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: info})
}

func (s *server) handleUsage(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Usage()
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Usage: toUsageView(entry)})
}

func (s *server) handleLatency(w http.ResponseWriter, r *http.Request) {
	marks, err := s.manager.Latency()
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	resp := latencyResponse{Marks: make([]markView, 0, len(marks))}
	for _, m := range marks {
		resp.Marks = append(resp.Marks, markView{
			Name:       string(m.Name),
			Timestamp:  m.Timestamp,
			DurationMS: m.Duration.Milliseconds(),
		})
	}
	if d, ok, _ := s.manager.TimeToFirstAudio(); ok {
		ms := d.Milliseconds()
		resp.TimeToFirstAudioMS = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) writeManagerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoActiveSession) {
		s.writeError(w, http.StatusNotFound, "no_active_session", "no session is active")
		return
	}
	s.log.Error("request failed", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal_error", "request failed")
}

// ── Response shapes ──────────────────────────────────────────────────────────

type sessionResponse struct {
	Session SessionInfo `json:"session"`
}

type usageResponse struct {
	Usage usageView `json:"usage"`
}

type usageView struct {
	TokensInput  int64 `json:"tokens_input"`
	TokensOutput int64 `json:"tokens_output"`
	TokensCached int64 `json:"tokens_cached"`

	TextInput   int64 `json:"text_input"`
	TextOutput  int64 `json:"text_output"`
	TextCached  int64 `json:"text_cached"`
	AudioInput  int64 `json:"audio_input"`
	AudioOutput int64 `json:"audio_output"`
	AudioCached int64 `json:"audio_cached"`

	ToolCalls      int64 `json:"tool_calls"`
	RetrievalCalls int64 `json:"retrieval_calls"`

	SessionSeconds float64 `json:"session_seconds"`
	AudioSeconds   float64 `json:"audio_seconds"`

	Cost costView `json:"cost"`
}

type costView struct {
	TextInput         float64 `json:"text_input"`
	TextCached        float64 `json:"text_cached"`
	TextOutput        float64 `json:"text_output"`
	AudioInput        float64 `json:"audio_input"`
	AudioCached       float64 `json:"audio_cached"`
	AudioOutput       float64 `json:"audio_output"`
	ToolOverhead      float64 `json:"tool_overhead"`
	RetrievalOverhead float64 `json:"retrieval_overhead"`
	FixedOverhead     float64 `json:"fixed_overhead"`
	TotalUSD          float64 `json:"total_usd"`
}

type latencyResponse struct {
	Marks              []markView `json:"marks"`
	TimeToFirstAudioMS *int64     `json:"time_to_first_audio_ms,omitempty"`
}

type markView struct {
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toUsageView(e usage.Entry) usageView {
	return usageView{
		TokensInput:    e.TokensInput,
		TokensOutput:   e.TokensOutput,
		TokensCached:   e.TokensCached,
		TextInput:      e.TextInput,
		TextOutput:     e.TextOutput,
		TextCached:     e.TextCached,
		AudioInput:     e.AudioInput,
		AudioOutput:    e.AudioOutput,
		AudioCached:    e.AudioCached,
		ToolCalls:      e.ToolCalls,
		RetrievalCalls: e.RetrievalCalls,
		SessionSeconds: e.SessionSeconds,
		AudioSeconds:   e.AudioSeconds,
		Cost: costView{
			TextInput:         e.Cost.TextInput,
			TextCached:        e.Cost.TextCached,
			TextOutput:        e.Cost.TextOutput,
			AudioInput:        e.Cost.AudioInput,
			AudioCached:       e.Cost.AudioCached,
			AudioOutput:       e.Cost.AudioOutput,
			ToolOverhead:      e.Cost.ToolOverhead,
			RetrievalOverhead: e.Cost.RetrievalOverhead,
			FixedOverhead:     e.Cost.FixedOverhead,
			TotalUSD:          e.Cost.Total,
		},
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
