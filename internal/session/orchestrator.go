// Package session drives the lifecycle of one realtime voice session: it
// connects a transport, funnels every inbound event through the protocol
// router, keeps the usage ledger, dispatches tool calls to the gateway, and
// tears everything down again.
//
// The router and ledger are owned by a single event-loop goroutine per
// connection; the transport's read goroutine only enqueues raw events. A
// generation counter fences stale work: any callback or in-flight connect
// belonging to a previous generation is dropped.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aurelay/internal/gateway"
	"github.com/MrWong99/aurelay/internal/observe"
	"github.com/MrWong99/aurelay/internal/recall"
	"github.com/MrWong99/aurelay/internal/transcript"
	"github.com/MrWong99/aurelay/pkg/audio"
	"github.com/MrWong99/aurelay/pkg/realtime"
	"github.com/MrWong99/aurelay/pkg/store"
	"github.com/MrWong99/aurelay/pkg/transport"
	"github.com/MrWong99/aurelay/pkg/usage"
)

// DefaultModel is used when a connect request does not name a model.
const DefaultModel = "gpt-realtime-mini"

const (
	defaultQueueDepth  = 256
	defaultToolTimeout = 30 * time.Second
	persistTimeout     = 5 * time.Second
	sendTimeout        = 5 * time.Second
)

// State is the orchestrator's lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ErrAlreadyConnected is returned by Connect while a session is connecting
// or connected. Disconnect first.
var ErrAlreadyConnected = errors.New("session: already connected")

// TokenSource supplies the upstream auth token at connect time, so
// short-lived tokens can be minted per session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("session: empty auth token")
	}
	return string(s), nil
}

// Config describes one session to establish.
type Config struct {
	// Model is the upstream model tag. Empty means DefaultModel.
	Model string

	// Transport selects the channel kind. Invalid or empty means WebSocket.
	Transport transport.Kind

	// BaseURL overrides the transport's default upstream endpoint.
	BaseURL string

	// UserID identifies the end user, forwarded to the transport and
	// recorded in session history.
	UserID string

	// Consent gates transcript persistence and recall indexing. Session
	// metadata and tool events are recorded regardless.
	Consent bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithStore attaches a history sink. All writes to it are best-effort.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRecall attaches the semantic memory service. Final transcripts are
// indexed into it when the session has consent.
func WithRecall(r *recall.Service) Option {
	return func(o *Orchestrator) { o.recall = r }
}

// WithCorrector attaches a hotword corrector applied to final transcripts
// before they are surfaced or persisted.
func WithCorrector(c *transcript.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithSummariser attaches a post-session summariser, run on disconnect.
func WithSummariser(s Summariser) Option {
	return func(o *Orchestrator) { o.summariser = s }
}

// WithAudioSink attaches the playback sink for assistant audio.
func WithAudioSink(s audio.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithMetrics attaches the observability instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithQueueDepth sets the inbound event queue capacity.
func WithQueueDepth(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.queueDepth = n
		}
	}
}

// WithToolTimeout bounds a single gateway round trip.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

// Orchestrator manages at most one live session at a time.
type Orchestrator struct {
	log     *slog.Logger
	factory transport.Factory
	tokens  TokenSource
	gateway gateway.Gateway

	store      store.Store
	recall     *recall.Service
	corrector  *transcript.Corrector
	summariser Summariser
	sink       audio.Sink
	metrics    *observe.Metrics

	queueDepth  int
	toolTimeout time.Duration

	toolWG sync.WaitGroup

	mu          sync.Mutex
	state       State
	gen         uint64
	cfg         Config
	kind        transport.Kind
	tr          transport.Transport
	router      *realtime.Router
	latency     *realtime.LatencyRecorder
	queue       chan []byte
	stop        chan struct{}
	loopDone    chan struct{}
	sessionID   string
	clientID    string
	startedAt   time.Time
	pricing     usage.Pricing
	ledger      usage.Entry
	transcripts []realtime.Transcript
	ttfaSeen    bool
	lastErr     error
}

// New creates an Orchestrator. gw may be nil, in which case every tool call
// is answered with a failure output.
func New(factory transport.Factory, tokens TokenSource, gw gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:         slog.Default().With("component", "session"),
		factory:     factory,
		tokens:      tokens,
		gateway:     gw,
		queueDepth:  defaultQueueDepth,
		toolTimeout: defaultToolTimeout,
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Connect establishes a session per cfg. It is an error while another
// session is connecting or connected; a session in the error state may be
// retried directly.
func (o *Orchestrator) Connect(ctx context.Context, cfg Config) error {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	kind := cfg.Transport
	if !kind.IsValid() {
		kind = transport.KindWebSocket
	}

	o.mu.Lock()
	if o.state == StateConnecting || o.state == StateConnected {
		o.mu.Unlock()
		return ErrAlreadyConnected
	}
	o.gen++
	gen := o.gen
	o.state = StateConnecting
	o.cfg = cfg
	o.kind = kind
	o.clientID = realtime.NewID()
	o.sessionID = ""
	o.lastErr = nil
	o.startedAt = time.Time{}
	o.pricing = usage.PricingFor(cfg.Model)
	o.ledger = usage.Entry{}
	o.transcripts = nil
	o.ttfaSeen = false

	rec := realtime.NewLatencyRecorder()
	rec.Record(realtime.MarkConnectRequested)
	o.latency = rec

	router := realtime.NewRouter(o.callbacks(gen),
		realtime.WithLogger(o.log),
		realtime.WithLatencyRecorder(rec),
	)
	o.router = router

	queue := make(chan []byte, o.queueDepth)
	stop := make(chan struct{})
	done := make(chan struct{})
	o.queue, o.stop, o.loopDone = queue, stop, done
	o.mu.Unlock()

	go o.eventLoop(router, queue, stop, done)

	token, err := o.tokens.Token(ctx)
	if err != nil {
		return o.failConnect(gen, fmt.Errorf("session: mint token: %w", err))
	}
	tr, err := o.factory.New(kind)
	if err != nil {
		return o.failConnect(gen, fmt.Errorf("session: create %s transport: %w", kind, err))
	}
	err = tr.Connect(ctx, transport.Options{
		Token:    token,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Identity: cfg.UserID,
		OnEvent: func(raw []byte) {
			o.enqueue(queue, stop, raw)
		},
	})
	if err != nil {
		return o.failConnect(gen, fmt.Errorf("session: connect %s transport: %w", kind, err))
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		_ = tr.Close(context.Background())
		return fmt.Errorf("session: connect superseded by disconnect")
	}
	o.tr = tr
	o.state = StateConnected
	o.startedAt = time.Now()
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(ctx, 1)
	}
	o.log.Info("session connected",
		"transport", string(kind), "model", cfg.Model, "clientSessionID", o.clientID)
	return nil
}

// Disconnect tears the session down. It is idempotent and safe from every
// state; a concurrent in-flight Connect is fenced off by the generation
// bump and cannot resurrect the session.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateDisconnected {
		o.mu.Unlock()
		return nil
	}
	wasConnected := o.state == StateConnected
	o.gen++
	tr := o.tr
	o.tr = nil
	stop := o.stop
	done := o.loopDone
	o.stop, o.loopDone, o.queue = nil, nil, nil
	router := o.router
	startedAt := o.startedAt
	sessionID := o.sessionID
	transcripts := make([]realtime.Transcript, len(o.transcripts))
	copy(transcripts, o.transcripts)
	meta := o.sessionMetaLocked()
	o.state = StateDisconnected
	o.mu.Unlock()

	if tr != nil {
		if err := tr.Close(ctx); err != nil {
			o.log.Warn("transport close failed", "error", err)
		}
	}
	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
	o.toolWG.Wait()

	// The event loop has exited; the router is quiescent.
	if router != nil {
		router.Reset()
	}

	o.mu.Lock()
	var sessionSeconds float64
	if !startedAt.IsZero() {
		sessionSeconds = time.Since(startedAt).Seconds()
	}
	var audioSeconds float64
	if o.sink != nil {
		audioSeconds = o.sink.Played().Seconds()
	}
	o.ledger = o.ledger.Finalize(sessionSeconds, audioSeconds, o.pricing)
	final := o.ledger
	o.mu.Unlock()

	if o.metrics != nil && wasConnected {
		o.metrics.ActiveSessions.Add(ctx, -1)
		o.metrics.RecordSessionEnd(ctx, time.Duration(sessionSeconds*float64(time.Second)), final.Cost.Total)
	}

	if sessionID != "" {
		o.persistShutdown(meta, sessionID, transcripts)
	}

	o.log.Info("session disconnected",
		"sessionID", sessionID,
		"durationSeconds", sessionSeconds,
		"costUSD", final.Cost.Total)
	return nil
}

// persistShutdown writes the final session metadata (now including latency
// timings) and an optional summary. Both writes are best-effort.
func (o *Orchestrator) persistShutdown(meta store.SessionMeta, sessionID string, transcripts []realtime.Transcript) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := o.store.SaveSessionMeta(ctx, meta); err != nil {
		o.persistenceError(ctx, "save_session_meta", err)
	}

	if o.summariser == nil || len(transcripts) == 0 {
		return
	}
	summary, err := o.summariser.Summarise(ctx, transcripts)
	if err != nil {
		o.log.Warn("summarise failed", "error", err)
		return
	}
	if summary == "" {
		return
	}
	if err := o.store.SaveSummary(ctx, sessionID, summary); err != nil {
		o.persistenceError(ctx, "save_summary", err)
	}
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error that moved the orchestrator into StateError, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Usage returns a snapshot of the session's usage ledger.
func (o *Orchestrator) Usage() usage.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger
}

// Latency returns the current session's latency recorder, or nil before the
// first connect.
func (o *Orchestrator) Latency() *realtime.LatencyRecorder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latency
}

// SessionID returns the upstream session identifier, empty until the
// session.created event arrives.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ClientSessionID returns the locally minted correlation identifier.
func (o *Orchestrator) ClientSessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clientID
}

func (o *Orchestrator) failConnect(gen uint64, err error) error {
	o.mu.Lock()
	if o.gen == gen {
		o.state = StateError
		o.lastErr = err
		if o.stop != nil {
			close(o.stop)
			o.stop = nil
		}
	}
	o.mu.Unlock()
	o.log.Error("connect failed", "error", err)
	return err
}

// enqueue hands a raw event to the loop. A full queue drops the event
// rather than blocking the transport's read goroutine.
func (o *Orchestrator) enqueue(queue chan []byte, stop chan struct{}, raw []byte) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	select {
	case queue <- buf:
	case <-stop:
	default:
		o.log.Warn("event queue full, dropping event")
	}
}

func (o *Orchestrator) eventLoop(router *realtime.Router, queue chan []byte, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case raw := <-queue:
			router.RouteRaw(raw)
		}
	}
}

// callbacks binds the router's handler table to one generation.
func (o *Orchestrator) callbacks(gen uint64) realtime.Callbacks {
	return realtime.Callbacks{
		OnSessionCreated: func(sessionID string, _ *realtime.SessionPayload) {
			o.onSessionCreated(gen, sessionID)
		},
		OnTranscript: func(t realtime.Transcript) {
			o.onTranscript(gen, t)
		},
		OnAudio: func(pcm []byte) {
			o.onAudio(gen, pcm)
		},
		OnToolCall: func(tc realtime.ToolCall) {
			o.onToolCall(gen, tc)
		},
		OnUsage: func(r usage.Report) {
			o.onUsage(gen, r)
		},
		OnError: func(err error) {
			o.log.Warn("protocol error", "error", err)
			if o.metrics != nil {
				o.metrics.RouterErrors.Add(context.Background(), 1)
			}
		},
	}
}

func (o *Orchestrator) onSessionCreated(gen uint64, sessionID string) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.sessionID = sessionID
	o.ledger = usage.NewEntry(time.Now(), o.pricing)
	meta := o.sessionMetaLocked()
	o.mu.Unlock()

	o.log.Info("upstream session created", "sessionID", sessionID)
	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := o.store.SaveSessionMeta(ctx, meta); err != nil {
			o.persistenceError(ctx, "save_session_meta", err)
		}
	}
}

func (o *Orchestrator) onTranscript(gen uint64, t realtime.Transcript) {
	if o.corrector != nil {
		corrected, corrections := o.corrector.Correct(t.Text)
		if len(corrections) > 0 {
			o.log.Debug("hotword correction applied", "replacements", len(corrections))
			t.Text = corrected
		}
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.transcripts = append(o.transcripts, t)
	sessionID := o.sessionID
	consent := o.cfg.Consent
	o.mu.Unlock()

	if sessionID == "" || !consent {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if o.store != nil {
		if err := o.store.AppendTranscript(ctx, sessionID, t); err != nil {
			o.persistenceError(ctx, "append_transcript", err)
		}
	}
	if o.recall != nil {
		if err := o.recall.Index(ctx, sessionID, t); err != nil {
			o.persistenceError(ctx, "index_transcript", err)
		}
	}
}

func (o *Orchestrator) onAudio(gen uint64, pcm []byte) {
	if o.sink != nil {
		if err := o.sink.Play(pcm); err != nil {
			o.log.Warn("audio sink rejected frame", "error", err)
		}
	}

	o.mu.Lock()
	first := !o.ttfaSeen && o.gen == gen
	o.ttfaSeen = true
	rec := o.latency
	o.mu.Unlock()

	if first && o.metrics != nil && rec != nil {
		if d, ok := rec.TimeToFirstAudio(); ok {
			o.metrics.TimeToFirstAudio.Record(context.Background(), d.Seconds())
		}
	}
}

// conversation item payloads sent back upstream after a tool call.
type outputItemEvent struct {
	Type string     `json:"type"`
	Item outputItem `json:"item"`
}

type outputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responseCreateEvent struct {
	Type string `json:"type"`
}

// onToolCall dispatches one tool call out of band so the event loop keeps
// draining while the gateway round trip is in flight.
func (o *Orchestrator) onToolCall(gen uint64, tc realtime.ToolCall) {
	o.toolWG.Add(1)
	go func() {
		defer o.toolWG.Done()
		o.dispatchTool(gen, tc)
	}()
}

func (o *Orchestrator) dispatchTool(gen uint64, tc realtime.ToolCall) {
	ctx, cancel := context.WithTimeout(context.Background(), o.toolTimeout)
	defer cancel()

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	sessionID := o.sessionID
	user := o.cfg.UserID
	o.mu.Unlock()

	retrieval := tc.Name == recall.ToolName

	start := time.Now()
	var resp gateway.Response
	if o.gateway == nil {
		resp = gateway.Response{OK: false, Error: "no tool gateway configured"}
	} else {
		var err error
		resp, err = o.gateway.Invoke(ctx, gateway.Request{
			ID:   tc.ID,
			Name: tc.Name,
			Args: tc.Arguments,
			User: user,
		})
		if err != nil {
			resp = gateway.Response{OK: false, Error: err.Error()}
		}
	}
	duration := time.Since(start)

	if o.metrics != nil {
		o.metrics.RecordToolCall(ctx, tc.Name, resp.OK, retrieval, duration)
	}

	o.mu.Lock()
	var tr transport.Transport
	if o.gen == gen {
		o.ledger = o.ledger.AddToolCall(retrieval, o.pricing)
		tr = o.tr
	}
	o.mu.Unlock()
	if tr == nil {
		return
	}

	output := resp.Result
	if !resp.OK {
		encoded, err := json.Marshal(resp)
		if err == nil {
			output = string(encoded)
		} else {
			output = fmt.Sprintf(`{"ok":false,"error":%q}`, resp.Error)
		}
	}

	sendCtx, sendCancel := context.WithTimeout(context.Background(), sendTimeout)
	defer sendCancel()
	err := tr.Send(sendCtx, outputItemEvent{
		Type: realtime.TypeConversationItemCreate,
		Item: outputItem{Type: "function_call_output", CallID: tc.ID, Output: output},
	})
	if err == nil {
		err = tr.Send(sendCtx, responseCreateEvent{Type: realtime.TypeResponseCreate})
	}
	if err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			o.log.Debug("tool output dropped, transport closed", "callID", tc.ID)
		} else {
			o.log.Warn("tool output send failed", "callID", tc.ID, "error", err)
		}
	}

	if o.store != nil && sessionID != "" {
		args, _ := json.Marshal(tc.Arguments)
		pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
		defer pcancel()
		err := o.store.AppendToolEvent(pctx, sessionID, store.ToolEvent{
			CallID:    tc.ID,
			Name:      tc.Name,
			Arguments: string(args),
			OK:        resp.OK,
			Result:    resp.Result,
			Error:     resp.Error,
			Duration:  duration,
			Timestamp: start,
		})
		if err != nil {
			o.persistenceError(pctx, "append_tool_event", err)
		}
	}
}

func (o *Orchestrator) onUsage(gen uint64, r usage.Report) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	before := o.ledger
	o.ledger = o.ledger.Apply(r, o.pricing)
	after := o.ledger
	o.mu.Unlock()

	if o.metrics == nil {
		return
	}
	ctx := context.Background()
	o.metrics.RecordTokens(ctx, "input", "text", after.TextInput-before.TextInput)
	o.metrics.RecordTokens(ctx, "input", "audio", after.AudioInput-before.AudioInput)
	o.metrics.RecordTokens(ctx, "output", "text", after.TextOutput-before.TextOutput)
	o.metrics.RecordTokens(ctx, "output", "audio", after.AudioOutput-before.AudioOutput)
	o.metrics.RecordTokens(ctx, "cached", "text", after.TextCached-before.TextCached)
	o.metrics.RecordTokens(ctx, "cached", "audio", after.AudioCached-before.AudioCached)
}

// sessionMetaLocked builds the metadata row from current state. Caller
// holds o.mu.
func (o *Orchestrator) sessionMetaLocked() store.SessionMeta {
	meta := store.SessionMeta{
		SessionID:       o.sessionID,
		ClientSessionID: o.clientID,
		UserID:          o.cfg.UserID,
		TransportKind:   string(o.kind),
		Model:           o.cfg.Model,
		StartedAt:       o.ledger.StartTime,
		Consent:         o.cfg.Consent,
	}
	if o.latency != nil {
		marks := o.latency.Marks()
		if len(marks) > 0 {
			meta.Timings = make(map[string]int64, len(marks))
			origin := marks[0].Timestamp
			for _, m := range marks {
				if _, seen := meta.Timings[string(m.Name)]; seen {
					continue
				}
				meta.Timings[string(m.Name)] = m.Timestamp.Sub(origin).Milliseconds()
			}
		}
	}
	return meta
}

func (o *Orchestrator) persistenceError(ctx context.Context, op string, err error) {
	o.log.Warn("persistence write failed", "op", op, "error", err)
	if o.metrics != nil {
		o.metrics.RecordPersistenceError(ctx, op)
	}
}
