package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/aurelay/internal/gateway"
)

func TestMuxBuiltinDispatch(t *testing.T) {
	mux := gateway.NewMux(nil)
	mux.Register("echo", func(_ context.Context, req gateway.Request) (string, error) {
		return fmt.Sprintf("echo:%v", req.Args["msg"]), nil
	})

	resp, err := mux.Invoke(context.Background(), gateway.Request{
		ID:   "call-1",
		Name: "echo",
		Args: map[string]any{"msg": "hi"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.OK {
		t.Errorf("OK: want true, got false (error %q)", resp.Error)
	}
	if resp.Result != "echo:hi" {
		t.Errorf("Result: want %q, got %q", "echo:hi", resp.Result)
	}
}

func TestMuxHandlerErrorIsToolFailure(t *testing.T) {
	mux := gateway.NewMux(nil)
	mux.Register("boom", func(context.Context, gateway.Request) (string, error) {
		return "", fmt.Errorf("backend unavailable")
	})

	resp, err := mux.Invoke(context.Background(), gateway.Request{Name: "boom"})
	if err != nil {
		t.Fatalf("Invoke: handler failure must not be an infrastructure error, got %v", err)
	}
	if resp.OK {
		t.Error("OK: want false for failed handler")
	}
	if resp.Error != "backend unavailable" {
		t.Errorf("Error: want %q, got %q", "backend unavailable", resp.Error)
	}
}

func TestMuxUnknownTool(t *testing.T) {
	mux := gateway.NewMux(nil)
	if _, err := mux.Invoke(context.Background(), gateway.Request{Name: "nope"}); err == nil {
		t.Error("Invoke unknown tool without fallback: want error, got nil")
	}
}

type staticGateway struct {
	resp gateway.Response
	last gateway.Request
}

func (s *staticGateway) Invoke(_ context.Context, req gateway.Request) (gateway.Response, error) {
	s.last = req
	return s.resp, nil
}

func TestMuxFallback(t *testing.T) {
	remote := &staticGateway{resp: gateway.Response{OK: true, Result: "remote"}}
	mux := gateway.NewMux(remote)
	mux.Register("local", func(context.Context, gateway.Request) (string, error) {
		return "local", nil
	})

	// Registered handlers shadow the fallback.
	resp, err := mux.Invoke(context.Background(), gateway.Request{Name: "local"})
	if err != nil {
		t.Fatalf("Invoke local: %v", err)
	}
	if resp.Result != "local" {
		t.Errorf("local result: want %q, got %q", "local", resp.Result)
	}

	// Everything else goes remote.
	resp, err = mux.Invoke(context.Background(), gateway.Request{ID: "c-9", Name: "other"})
	if err != nil {
		t.Fatalf("Invoke other: %v", err)
	}
	if resp.Result != "remote" {
		t.Errorf("remote result: want %q, got %q", "remote", resp.Result)
	}
	if remote.last.ID != "c-9" {
		t.Errorf("fallback request ID: want c-9, got %q", remote.last.ID)
	}
}

func TestHTTPGatewayRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: want POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization: want Bearer tok-1, got %q", got)
		}
		var req gateway.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Name != "get_weather" || req.User != "user-7" {
			t.Errorf("request: got %+v", req)
		}
		json.NewEncoder(w).Encode(gateway.Response{OK: true, Result: `{"temp":22}`})
	}))
	defer srv.Close()

	g, err := gateway.NewHTTPGateway(srv.URL, gateway.WithBearerToken("tok-1"))
	if err != nil {
		t.Fatalf("NewHTTPGateway: %v", err)
	}

	resp, err := g.Invoke(context.Background(), gateway.Request{
		ID:   "call-3",
		Name: "get_weather",
		Args: map[string]any{"city": "Berlin"},
		User: "user-7",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.OK || resp.Result != `{"temp":22}` {
		t.Errorf("response: got %+v", resp)
	}
}

func TestHTTPGatewayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, err := gateway.NewHTTPGateway(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPGateway: %v", err)
	}
	if _, err := g.Invoke(context.Background(), gateway.Request{Name: "x"}); err == nil {
		t.Error("Invoke on 500: want error, got nil")
	}
}

func TestNewHTTPGatewayRequiresEndpoint(t *testing.T) {
	if _, err := gateway.NewHTTPGateway(""); err == nil {
		t.Error("NewHTTPGateway(\"\"): want error, got nil")
	}
}
