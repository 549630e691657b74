package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPGateway executes tool calls against a remote MCP server over the
// streamable-HTTP transport.
type MCPGateway struct {
	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

var _ Gateway = (*MCPGateway)(nil)

// NewMCPGateway connects to the MCP server at endpoint.
func NewMCPGateway(ctx context.Context, endpoint string) (*MCPGateway, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("mcp gateway: endpoint must not be empty")
	}
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "aurelay-gateway", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp gateway: connect to %q: %w", endpoint, err)
	}
	return &MCPGateway{session: session}, nil
}

func (g *MCPGateway) Invoke(ctx context.Context, req Request) (Response, error) {
	g.mu.Lock()
	session := g.session
	g.mu.Unlock()
	if session == nil {
		return Response{}, fmt.Errorf("mcp gateway: closed")
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      req.Name,
		Arguments: req.Args,
	})
	if err != nil {
		return Response{}, fmt.Errorf("mcp gateway: call tool %q: %w", req.Name, err)
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if result.IsError {
		return Response{OK: false, Error: sb.String()}, nil
	}
	return Response{OK: true, Result: sb.String()}, nil
}

// Close terminates the MCP session. Safe to call more than once.
func (g *MCPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	err := g.session.Close()
	g.session = nil
	if err != nil {
		return fmt.Errorf("mcp gateway: close: %w", err)
	}
	return nil
}
