package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aurelay/internal/resilience"
)

// Compile-time assertion that BreakerGateway satisfies Gateway.
var _ Gateway = (*BreakerGateway)(nil)

// BreakerGateway guards an external executor with a circuit breaker. Only
// infrastructure errors feed the breaker; a tool-level failure response is a
// successful round trip and never trips it. While the circuit is open,
// Invoke fails immediately without contacting the executor.
type BreakerGateway struct {
	inner   Gateway
	breaker *resilience.Breaker
}

// NewBreakerGateway wraps inner with b.
func NewBreakerGateway(inner Gateway, b *resilience.Breaker) *BreakerGateway {
	return &BreakerGateway{inner: inner, breaker: b}
}

// Invoke implements Gateway.
func (g *BreakerGateway) Invoke(ctx context.Context, req Request) (Response, error) {
	var resp Response
	err := g.breaker.Execute(func() error {
		var invokeErr error
		resp, invokeErr = g.inner.Invoke(ctx, req)
		return invokeErr
	})
	if errors.Is(err, resilience.ErrOpen) {
		return Response{}, fmt.Errorf("gateway: tool executor unavailable: %w", err)
	}
	return resp, err
}
