package recall_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/aurelay/internal/gateway"
	"github.com/MrWong99/aurelay/internal/recall"
	embedmock "github.com/MrWong99/aurelay/pkg/embeddings/mock"
	"github.com/MrWong99/aurelay/pkg/realtime"
	storemock "github.com/MrWong99/aurelay/pkg/store/mock"
)

// vecFor gives distinct deterministic embeddings so nearest-neighbour
// ranking in the mock index is predictable.
func vecFor(text string) []float32 {
	switch {
	case strings.Contains(text, "weather"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "stocks"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func newService(t *testing.T) (*recall.Service, *storemock.SemanticIndex) {
	t.Helper()
	idx := storemock.NewSemanticIndex()
	embedder := &embedmock.Provider{EmbedFunc: vecFor, DimensionsValue: 3}
	return recall.New(embedder, idx, nil), idx
}

func TestIndexAndSearch(t *testing.T) {
	svc, idx := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	transcripts := []realtime.Transcript{
		{ID: "t1", Role: realtime.RoleUser, Text: "what was the weather yesterday", Timestamp: now},
		{ID: "t2", Role: realtime.RoleUser, Text: "how are my stocks performing", Timestamp: now},
	}
	for _, tr := range transcripts {
		if err := svc.Index(ctx, "s1", tr); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	if idx.Len() != 2 {
		t.Fatalf("indexed chunks: want 2, got %d", idx.Len())
	}

	got, err := svc.Search(ctx, "weather report", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(got, "what was the weather yesterday") {
		t.Errorf("Search result missing weather line: %q", got)
	}
	if !strings.Contains(got, "user") {
		t.Errorf("Search result missing role: %q", got)
	}
	if strings.Contains(got, "stocks") {
		t.Errorf("Search with limit 1 leaked second result: %q", got)
	}
}

func TestIndexSkipsShortUtterances(t *testing.T) {
	svc, idx := newService(t)

	err := svc.Index(context.Background(), "s1", realtime.Transcript{ID: "t1", Text: "ok"})
	if err != nil {
		t.Fatalf("Index short: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("short utterance was indexed, want skip")
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	svc, _ := newService(t)

	got, err := svc.Search(context.Background(), "anything at all", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(got, "No relevant past conversation") {
		t.Errorf("empty index message: got %q", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Search(context.Background(), "  ", 3); err == nil {
		t.Error("Search with blank query: want error, got nil")
	}
}

func TestHandlerParsesArgs(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.Index(ctx, "s1", realtime.Transcript{
		ID: "t1", Role: realtime.RoleUser, Text: "what was the weather yesterday",
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	h := svc.Handler()
	result, err := h(ctx, gateway.Request{
		Name: recall.ToolName,
		Args: map[string]any{"query": "weather", "limit": float64(2)},
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !strings.Contains(result, "weather yesterday") {
		t.Errorf("Handler result: %q", result)
	}

	if _, err := h(ctx, gateway.Request{Name: recall.ToolName, Args: map[string]any{}}); err == nil {
		t.Error("Handler without query: want error, got nil")
	}
}
