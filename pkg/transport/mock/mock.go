// Package mock provides a scripted [transport.Transport] for tests. Tests
// inject inbound events with [Transport.Deliver] and inspect outbound ones
// via [Transport.Sent].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aurelay/pkg/transport"
)

var _ transport.Transport = (*Transport)(nil)

// Transport is a test double satisfying transport.Transport.
type Transport struct {
	// ConnectErr, when non-nil, is returned by Connect to simulate a
	// handshake failure.
	ConnectErr error

	// TransportKind is reported by Kind. Defaults to KindWebSocket.
	TransportKind transport.Kind

	mu        sync.Mutex
	connected bool
	closed    bool
	onEvent   func([]byte)
	opts      transport.Options
	sent      []any
	closes    int
}

// New returns an unconnected mock transport.
func New() *Transport {
	return &Transport{TransportKind: transport.KindWebSocket}
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context, opts transport.Options) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.onEvent = opts.OnEvent
	t.opts = opts
	return nil
}

// Send implements transport.Transport, recording the event.
func (t *Transport) Send(ctx context.Context, event any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrNotConnected
	}
	t.sent = append(t.sent, event)
	return nil
}

// Close implements transport.Transport.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closed = true
	t.closes++
	return nil
}

// Kind implements transport.Transport.
func (t *Transport) Kind() transport.Kind { return t.TransportKind }

// Deliver feeds one raw inbound event to the registered OnEvent callback, as
// if it arrived from the channel. No-op before Connect or after Close.
func (t *Transport) Deliver(raw []byte) {
	t.mu.Lock()
	handler := t.onEvent
	connected := t.connected
	t.mu.Unlock()
	if connected && handler != nil {
		handler(raw)
	}
}

// Sent returns a copy of every event passed to Send, in order.
func (t *Transport) Sent() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]any, len(t.sent))
	copy(out, t.sent)
	return out
}

// Options returns the options Connect was called with.
func (t *Transport) Options() transport.Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

// CloseCount reports how many times Close was called.
func (t *Transport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Closed reports whether Close has been called at least once.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
