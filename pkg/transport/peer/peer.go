// Package peer implements [transport.Transport] over a peer-to-peer data
// channel.
//
// The actual peer connection (SDP negotiation, ICE, the media legs) lives
// behind the [DataChannel] interface so this package carries no WebRTC
// dependency; a concrete pion-backed DataChannel can be plugged in later.
// [Pipe] provides an in-memory implementation for tests and loopback use.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/aurelay/pkg/transport"
)

var _ transport.Transport = (*Transport)(nil)

// DataChannel abstracts one ordered, reliable peer data channel.
type DataChannel interface {
	// Send writes one message to the remote peer.
	Send(data []byte) error

	// Recv returns the channel delivering inbound messages in order. The
	// implementation closes it when the channel dies.
	Recv() <-chan []byte

	// Close tears the channel down. Idempotent.
	Close() error
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// Transport adapts a [DataChannel] to the transport interface.
type Transport struct {
	channel DataChannel
	log     *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool

	cancel   context.CancelFunc
	readDone chan struct{}
}

// New wraps channel in a Transport. The channel must already be negotiated;
// Connect only attaches the event pump.
func New(channel DataChannel, opts ...Option) *Transport {
	t := &Transport{channel: channel, log: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Kind implements [transport.Transport].
func (t *Transport) Kind() transport.Kind { return transport.KindPeer }

// Connect starts pumping inbound messages to opts.OnEvent.
func (t *Transport) Connect(ctx context.Context, opts transport.Options) error {
	if opts.OnEvent == nil {
		return fmt.Errorf("peer: OnEvent callback is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected || t.closed {
		return fmt.Errorf("peer: transport already used")
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	t.connected = true
	t.cancel = cancel
	t.readDone = make(chan struct{})

	go t.pump(pumpCtx, opts.OnEvent)
	return nil
}

func (t *Transport) pump(ctx context.Context, onEvent func(raw []byte)) {
	defer close(t.readDone)
	for {
		select {
		case data, ok := <-t.channel.Recv():
			if !ok {
				t.mu.Lock()
				t.connected = false
				t.mu.Unlock()
				return
			}
			onEvent(data)
		case <-ctx.Done():
			return
		}
	}
}

// Send implements [transport.Transport].
func (t *Transport) Send(ctx context.Context, event any) error {
	t.mu.Lock()
	open := t.connected
	t.mu.Unlock()
	if !open {
		return transport.ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("peer: marshal event: %w", err)
	}
	if err := t.channel.Send(data); err != nil {
		return fmt.Errorf("peer: send: %w", err)
	}
	return nil
}

// Close implements [transport.Transport]. Idempotent.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	wasConnected := t.connected
	t.connected = false
	cancel := t.cancel
	readDone := t.readDone
	t.mu.Unlock()

	if err := t.channel.Close(); err != nil {
		t.log.Warn("peer channel close failed", "err", err)
	}
	if wasConnected && cancel != nil {
		cancel()
		select {
		case <-readDone:
		case <-ctx.Done():
			return fmt.Errorf("peer: close: %w", ctx.Err())
		}
	}
	return nil
}
