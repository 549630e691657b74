package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPTimeout bounds a single tool invocation round trip.
const defaultHTTPTimeout = 30 * time.Second

// HTTPGateway forwards tool calls to a remote executor as JSON over HTTP.
//
// The wire contract is a POST of the [Request] to the configured endpoint,
// answered with a [Response]. Non-2xx statuses are infrastructure errors.
type HTTPGateway struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ Gateway = (*HTTPGateway)(nil)

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.client = c
	}
}

// WithBearerToken attaches an Authorization header to every request.
func WithBearerToken(token string) HTTPOption {
	return func(g *HTTPGateway) {
		g.token = token
	}
}

// NewHTTPGateway creates a gateway posting to endpoint.
func NewHTTPGateway(endpoint string, opts ...HTTPOption) (*HTTPGateway, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("http gateway: endpoint must not be empty")
	}
	g := &HTTPGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *HTTPGateway) Invoke(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("http gateway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("http gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("http gateway: invoke %q: %w", req.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return Response{}, fmt.Errorf("http gateway: invoke %q: status %d: %s",
			req.Name, httpResp.StatusCode, bytes.TrimSpace(snippet))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("http gateway: decode response: %w", err)
	}
	return resp, nil
}
