// Package transport abstracts the channel carrying realtime protocol events:
// a WebSocket to the upstream service, or a peer-to-peer data channel. The
// router and orchestrator are agnostic to which concrete transport is in use.
//
// A Transport guarantees in-order, at-most-once delivery of inbound raw
// events to the single OnEvent callback for the lifetime of one connection.
// Any channel that reorders or duplicates violates this contract; the
// router's tool-call de-dup set is a second line of defense for tool calls
// specifically, not a substitute for channel ordering.
package transport

import (
	"context"
	"errors"
)

// Kind names a concrete transport implementation.
type Kind string

const (
	// KindWebSocket is a plain socket to the upstream realtime endpoint.
	KindWebSocket Kind = "websocket"

	// KindPeer is a peer-to-peer media+data channel.
	KindPeer Kind = "peer"
)

// IsValid reports whether k is a recognised transport kind.
func (k Kind) IsValid() bool {
	return k == KindWebSocket || k == KindPeer
}

// ErrNotConnected is returned by Send when the channel is not open. Callers
// that prefer log-and-drop semantics can test for it with errors.Is.
var ErrNotConnected = errors.New("transport: not connected")

// Options carries everything a Transport needs to establish its channel.
type Options struct {
	// Token authenticates against the upstream service.
	Token string

	// Model selects the upstream model for this session.
	Model string

	// BaseURL overrides the transport's default endpoint. Used by tests to
	// point at a local server.
	BaseURL string

	// Identity is an opaque caller identity forwarded for correlation.
	Identity string

	// OnEvent receives every inbound raw protocol event, in arrival order,
	// on the transport's read goroutine. Required.
	OnEvent func(raw []byte)
}

// Transport is one bidirectional realtime event channel.
type Transport interface {
	// Connect establishes the channel and starts delivering inbound events
	// to opts.OnEvent. A Transport connects at most once.
	Connect(ctx context.Context, opts Options) error

	// Send serializes event as JSON and writes it to the channel. When the
	// channel is not open it returns ErrNotConnected; callers treat that as
	// log-and-drop.
	Send(ctx context.Context, event any) error

	// Close tears the channel down and stops event delivery. Idempotent.
	Close(ctx context.Context) error

	// Kind reports the transport's own name.
	Kind() Kind
}

// Factory builds transports by kind. Fallback from a preferred kind to an
// alternate on connection failure is the caller's policy, not the factory's.
type Factory interface {
	New(kind Kind) (Transport, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(kind Kind) (Transport, error)

// New implements Factory.
func (f FactoryFunc) New(kind Kind) (Transport, error) { return f(kind) }
