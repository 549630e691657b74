// Package gateway routes tool calls requested by the model to their
// executors.
//
// The session layer hands every completed function call to a [Gateway] and
// sends whatever comes back upstream as the function call output. Execution
// failures are ordinary responses with OK set to false, so the model can see
// the failure and react; only infrastructure problems (no such tool, broken
// backend connection) surface as errors.
package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Request is one tool invocation.
type Request struct {
	// ID is the call identifier assigned upstream. Executors may use it
	// for idempotency; the gateway passes it through untouched.
	ID string `json:"id"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Args are the parsed invocation arguments.
	Args map[string]any `json:"args"`

	// User identifies the end user on whose behalf the call runs.
	User string `json:"user,omitempty"`
}

// Response is the outcome of a tool invocation.
type Response struct {
	// OK reports whether the tool ran successfully.
	OK bool `json:"ok"`

	// Result is the tool output, sent back to the model verbatim.
	Result string `json:"result,omitempty"`

	// Error describes the failure when OK is false.
	Error string `json:"error,omitempty"`
}

// Gateway executes tool calls.
//
// Implementations must be safe for concurrent use.
type Gateway interface {
	// Invoke runs the named tool. A tool-level failure is returned as a
	// Response with OK false and a nil error; a non-nil error means the
	// call never reached a tool.
	Invoke(ctx context.Context, req Request) (Response, error)
}

// HandlerFunc is an in-process tool implementation.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Mux dispatches requests to registered in-process handlers by tool name
// and forwards everything else to an optional fallback gateway.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback Gateway
}

var _ Gateway = (*Mux)(nil)

// NewMux returns an empty Mux. fallback may be nil, in which case unknown
// tools fail with an error.
func NewMux(fallback Gateway) *Mux {
	return &Mux{
		handlers: make(map[string]HandlerFunc),
		fallback: fallback,
	}
}

// Register installs an in-process handler for name, replacing any previous
// one. In-process handlers shadow same-named tools on the fallback.
func (m *Mux) Register(name string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Names returns the registered in-process tool names.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	return names
}

func (m *Mux) Invoke(ctx context.Context, req Request) (Response, error) {
	m.mu.RLock()
	h, ok := m.handlers[req.Name]
	fallback := m.fallback
	m.mu.RUnlock()

	if ok {
		result, err := h(ctx, req)
		if err != nil {
			return Response{OK: false, Error: err.Error()}, nil
		}
		return Response{OK: true, Result: result}, nil
	}
	if fallback != nil {
		return fallback.Invoke(ctx, req)
	}
	return Response{}, fmt.Errorf("gateway: unknown tool %q", req.Name)
}
