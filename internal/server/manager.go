package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aurelay/internal/session"
	"github.com/MrWong99/aurelay/pkg/realtime"
	"github.com/MrWong99/aurelay/pkg/transport"
	"github.com/MrWong99/aurelay/pkg/usage"
)

// ErrNoActiveSession is returned by Manager methods that require a running
// session when none is active.
var ErrNoActiveSession = errors.New("server: no active session")

// SessionInfo is the externally visible state of the active session.
type SessionInfo struct {
	// SessionID is the client-side identifier, minted at connect time. It
	// is stable even before the upstream acknowledges the session.
	SessionID string `json:"session_id"`

	// UpstreamID is the upstream-assigned session identifier. Empty until
	// the session.created event arrives.
	UpstreamID string `json:"upstream_id,omitempty"`

	Model     string         `json:"model"`
	Transport transport.Kind `json:"transport"`
	UserID    string         `json:"user_id,omitempty"`
	Consent   bool           `json:"consent"`
	StartedAt time.Time      `json:"started_at"`
	State     string         `json:"state"`
}

// StartRequest carries the per-session overrides for [Manager.Start]. Zero
// fields fall back to the manager's defaults.
type StartRequest struct {
	Model     string         `json:"model,omitempty"`
	Transport transport.Kind `json:"transport,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Consent   bool           `json:"consent"`
}

// Manager exposes the session orchestrator's lifecycle to the HTTP surface.
// At most one session runs at a time; a second Start while one is active
// fails. All exported methods are safe for concurrent use.
type Manager struct {
	log      *slog.Logger
	orch     *session.Orchestrator
	defaults session.Config

	mu     sync.Mutex
	active bool
	info   SessionInfo
}

// NewManager creates a Manager around orch. defaults supplies the model,
// transport kind and base URL used when a StartRequest leaves them empty.
func NewManager(orch *session.Orchestrator, defaults session.Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "manager"),
		orch:     orch,
		defaults: defaults,
	}
}

// Start establishes a new session. Returns [session.ErrAlreadyConnected]
// when one is already active.
func (m *Manager) Start(ctx context.Context, req StartRequest) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return SessionInfo{}, fmt.Errorf("%w (id=%s)", session.ErrAlreadyConnected, m.info.SessionID)
	}

	cfg := m.defaults
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.Transport != "" {
		cfg.Transport = req.Transport
	}
	cfg.UserID = req.UserID
	cfg.Consent = req.Consent

	if err := m.orch.Connect(ctx, cfg); err != nil {
		return SessionInfo{}, err
	}

	m.active = true
	m.info = SessionInfo{
		SessionID: m.orch.ClientSessionID(),
		Model:     cfg.Model,
		Transport: cfg.Transport,
		UserID:    cfg.UserID,
		Consent:   cfg.Consent,
		StartedAt: time.Now().UTC(),
	}

	m.log.Info("session started",
		"session_id", m.info.SessionID,
		"model", cfg.Model,
		"transport", string(cfg.Transport),
		"user_id", cfg.UserID,
		"consent", cfg.Consent,
	)
	return m.infoLocked(), nil
}

// Stop ends the active session and returns its finalized usage ledger.
func (m *Manager) Stop(ctx context.Context) (usage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return usage.Entry{}, ErrNoActiveSession
	}

	sessionID := m.info.SessionID
	if err := m.orch.Disconnect(ctx); err != nil {
		m.log.Warn("session disconnect error", "session_id", sessionID, "err", err)
	}
	final := m.orch.Usage()

	m.active = false
	m.info = SessionInfo{}

	m.log.Info("session stopped",
		"session_id", sessionID,
		"cost_usd", final.Cost.Total,
	)
	return final, nil
}

// IsActive reports whether a session is currently running.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Info returns the active session's state.
func (m *Manager) Info() (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return SessionInfo{}, ErrNoActiveSession
	}
	return m.infoLocked(), nil
}

// Usage returns the active session's running usage ledger.
func (m *Manager) Usage() (usage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return usage.Entry{}, ErrNoActiveSession
	}
	return m.orch.Usage(), nil
}

// Latency returns the active session's recorded latency marks.
func (m *Manager) Latency() ([]realtime.Mark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil, ErrNoActiveSession
	}
	rec := m.orch.Latency()
	if rec == nil {
		return nil, nil
	}
	return rec.Marks(), nil
}

// TimeToFirstAudio returns the active session's connect-to-first-audio
// duration. ok is false until audio has arrived.
func (m *Manager) TimeToFirstAudio() (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return 0, false, ErrNoActiveSession
	}
	rec := m.orch.Latency()
	if rec == nil {
		return 0, false, nil
	}
	d, ok := rec.TimeToFirstAudio()
	return d, ok, nil
}

// infoLocked refreshes the upstream-sourced fields before returning.
func (m *Manager) infoLocked() SessionInfo {
	info := m.info
	info.UpstreamID = m.orch.SessionID()
	info.State = string(m.orch.State())
	return info
}
