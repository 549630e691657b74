// Package mock provides a scripted gateway for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aurelay/internal/gateway"
)

// Gateway replays a scripted response and records every request.
type Gateway struct {
	mu sync.Mutex

	// Resp is returned by Invoke unless a per-name override exists.
	Resp gateway.Response

	// Err, if non-nil, is returned by Invoke as the error.
	Err error

	// ByName overrides Resp for specific tool names.
	ByName map[string]gateway.Response

	requests []gateway.Request
}

var _ gateway.Gateway = (*Gateway)(nil)

func (g *Gateway) Invoke(_ context.Context, req gateway.Request) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return gateway.Response{}, g.Err
	}
	if resp, ok := g.ByName[req.Name]; ok {
		return resp, nil
	}
	return g.Resp, nil
}

// Requests returns a copy of every invocation seen so far.
func (g *Gateway) Requests() []gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.Request, len(g.requests))
	copy(out, g.requests)
	return out
}
