package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/aurelay/internal/health"
	"github.com/MrWong99/aurelay/internal/server"
	"github.com/MrWong99/aurelay/internal/session"
	"github.com/MrWong99/aurelay/pkg/transport"
	trmock "github.com/MrWong99/aurelay/pkg/transport/mock"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	handler http.Handler
	manager *server.Manager
	tr      *trmock.Transport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tr := trmock.New()
	factory := transport.FactoryFunc(func(transport.Kind) (transport.Transport, error) {
		return tr, nil
	})

	orch := session.New(factory, session.StaticToken("tok-test"), nil)
	manager := server.NewManager(orch, session.Config{
		Model:     "gpt-realtime-mini",
		Transport: transport.KindWebSocket,
	}, nil)

	handler := server.New(nil, server.Dependencies{
		Manager: manager,
		Health:  health.New(),
	})

	t.Cleanup(func() {
		req := httptest.NewRequest("DELETE", "/v1/sessions/current", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})

	return &fixture{handler: handler, manager: manager, tr: tr}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/sessions", `{"user_id":"u-7","consent":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var resp struct {
		Session server.SessionInfo `json:"session"`
	}
	decodeBody(t, rec, &resp)

	if resp.Session.SessionID == "" {
		t.Error("session_id is empty")
	}
	if resp.Session.Model != "gpt-realtime-mini" {
		t.Errorf("model = %q, want %q", resp.Session.Model, "gpt-realtime-mini")
	}
	if resp.Session.UserID != "u-7" {
		t.Errorf("user_id = %q, want %q", resp.Session.UserID, "u-7")
	}
	if !resp.Session.Consent {
		t.Error("consent = false, want true")
	}
	if resp.Session.State != "connected" {
		t.Errorf("state = %q, want %q", resp.Session.State, "connected")
	}
}

func TestStartSessionEmptyBodyUsesDefaults(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var resp struct {
		Session server.SessionInfo `json:"session"`
	}
	decodeBody(t, rec, &resp)
	if resp.Session.Transport != transport.KindWebSocket {
		t.Errorf("transport = %q, want %q", resp.Session.Transport, transport.KindWebSocket)
	}
}

func TestStartSessionConflict(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "POST", "/v1/sessions", "{}"); rec.Code != http.StatusCreated {
		t.Fatalf("first start: status = %d: %s", rec.Code, rec.Body)
	}
	rec := f.do(t, "POST", "/v1/sessions", "{}")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Error.Code != "session_active" {
		t.Errorf("error code = %q, want %q", resp.Error.Code, "session_active")
	}
}

func TestStartSessionRejectsBadTransport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/sessions", `{"transport":"carrier-pigeon"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStopSessionReturnsUsage(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "POST", "/v1/sessions", "{}"); rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d: %s", rec.Code, rec.Body)
	}

	rec := f.do(t, "DELETE", "/v1/sessions/current", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var resp struct {
		Usage struct {
			SessionSeconds float64 `json:"session_seconds"`
			Cost           struct {
				TotalUSD float64 `json:"total_usd"`
			} `json:"cost"`
		} `json:"usage"`
	}
	decodeBody(t, rec, &resp)
	if resp.Usage.Cost.TotalUSD <= 0 {
		t.Errorf("total_usd = %v, want > 0 from fixed session overhead", resp.Usage.Cost.TotalUSD)
	}

	if got := f.do(t, "DELETE", "/v1/sessions/current", ""); got.Code != http.StatusNotFound {
		t.Errorf("second stop: status = %d, want %d", got.Code, http.StatusNotFound)
	}
}

func TestSessionEndpointsWithoutSession(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/v1/sessions/current",
		"/v1/sessions/current/usage",
		"/v1/sessions/current/latency",
	} {
		rec := f.do(t, "GET", path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
}

func TestUsageEndpoint(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "POST", "/v1/sessions", "{}"); rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d: %s", rec.Code, rec.Body)
	}

	f.tr.Deliver([]byte(`{"type":"session.created","session":{"id":"sess_up1"}}`))
	f.tr.Deliver([]byte(`{
		"type": "response.done",
		"response": {"usage": {
			"input_tokens": 100,
			"output_tokens": 40,
			"input_token_details": {"text_tokens": 60, "audio_tokens": 40},
			"output_token_details": {"text_tokens": 10, "audio_tokens": 30}
		}}
	}`))

	waitFor(t, "usage applied", func() bool {
		entry, err := f.manager.Usage()
		return err == nil && entry.TokensInput == 100
	})

	rec := f.do(t, "GET", "/v1/sessions/current/usage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Usage struct {
			TokensInput  int64 `json:"tokens_input"`
			TokensOutput int64 `json:"tokens_output"`
			AudioInput   int64 `json:"audio_input"`
		} `json:"usage"`
	}
	decodeBody(t, rec, &resp)
	if resp.Usage.TokensInput != 100 || resp.Usage.TokensOutput != 40 {
		t.Errorf("tokens = %d/%d, want 100/40", resp.Usage.TokensInput, resp.Usage.TokensOutput)
	}
	if resp.Usage.AudioInput != 40 {
		t.Errorf("audio_input = %d, want 40", resp.Usage.AudioInput)
	}
}

func TestLatencyEndpoint(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "POST", "/v1/sessions", "{}"); rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d: %s", rec.Code, rec.Body)
	}

	f.tr.Deliver([]byte(`{"type":"session.created","session":{"id":"sess_up1"}}`))
	waitFor(t, "session.created routed", func() bool {
		info, err := f.manager.Info()
		return err == nil && info.UpstreamID == "sess_up1"
	})

	rec := f.do(t, "GET", "/v1/sessions/current/latency", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Marks []struct {
			Name string `json:"name"`
		} `json:"marks"`
	}
	decodeBody(t, rec, &resp)

	names := make(map[string]bool, len(resp.Marks))
	for _, m := range resp.Marks {
		names[m.Name] = true
	}
	if !names["connectRequested"] || !names["sessionCreated"] {
		t.Errorf("marks = %v, want connectRequested and sessionCreated", names)
	}
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := f.do(t, "GET", "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /readyz: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Error.Code != "not_found" {
		t.Errorf("error code = %q, want %q", resp.Error.Code, "not_found")
	}
}
