// Package websocket implements [transport.Transport] over a WebSocket
// connection to the upstream realtime endpoint.
//
// Events are exchanged as JSON text frames. A single read goroutine owns the
// connection's inbound side and delivers frames to the OnEvent callback in
// arrival order, which satisfies the transport contract's in-order,
// at-most-once requirement at the channel level.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/aurelay/pkg/transport"
)

// Compile-time assertion that Transport satisfies the transport interface.
var _ transport.Transport = (*Transport)(nil)

const defaultBaseURL = "wss://api.openai.com/v1/realtime"

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// Transport is a WebSocket-backed realtime event channel.
type Transport struct {
	log *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	ctx       context.Context
	cancel    context.CancelFunc
	readDone  chan struct{}
	closeOnce sync.Once
}

// New creates a Transport. It does not connect until [Transport.Connect].
func New(opts ...Option) *Transport {
	t := &Transport{log: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Kind implements [transport.Transport].
func (t *Transport) Kind() transport.Kind { return transport.KindWebSocket }

// Connect dials the upstream endpoint and starts the read loop. The token is
// sent as a bearer credential; the model is a query parameter.
func (t *Transport) Connect(ctx context.Context, opts transport.Options) error {
	if opts.OnEvent == nil {
		return fmt.Errorf("websocket: OnEvent callback is required")
	}

	t.mu.Lock()
	if t.connected || t.closed {
		t.mu.Unlock()
		return fmt.Errorf("websocket: transport already used")
	}
	t.mu.Unlock()

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	wsURL := fmt.Sprintf("%s?model=%s", baseURL, opts.Model)

	header := http.Header{
		"Authorization": []string{"Bearer " + opts.Token},
		"OpenAI-Beta":   []string{"realtime=v1"},
	}
	if opts.Identity != "" {
		header.Set("X-Client-Identity", opts.Identity)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("websocket: dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	if t.closed {
		// Close raced the dial; do not resurrect the channel.
		t.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "closed during connect")
		return fmt.Errorf("websocket: closed during connect")
	}
	t.conn = conn
	t.connected = true
	t.ctx = readCtx
	t.cancel = cancel
	t.readDone = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(opts.OnEvent)
	return nil
}

// readLoop delivers inbound frames to onEvent until the connection dies or
// the transport is closed.
func (t *Transport) readLoop(onEvent func(raw []byte)) {
	defer close(t.readDone)

	for {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				t.log.Warn("websocket read failed", "err", err)
			}
			t.mu.Lock()
			t.connected = false
			t.mu.Unlock()
			return
		}
		onEvent(data)
	}
}

// Send implements [transport.Transport]. It marshals event and writes it as
// one text frame.
func (t *Transport) Send(ctx context.Context, event any) error {
	t.mu.Lock()
	conn, open := t.conn, t.connected
	t.mu.Unlock()

	if !open {
		return transport.ErrNotConnected
	}
	data, err := marshalEvent(event)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket: write: %w", err)
	}
	return nil
}

// Close implements [transport.Transport]. Safe to call at any time,
// including during a pending Connect; the read loop is waited out so no
// events are delivered after Close returns.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	cancel := t.cancel
	readDone := t.readDone
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.closeOnce.Do(func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "session closed")
	})

	if readDone != nil {
		select {
		case <-readDone:
		case <-ctx.Done():
			return fmt.Errorf("websocket: close: %w", ctx.Err())
		}
	}
	return nil
}
