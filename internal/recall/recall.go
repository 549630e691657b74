// Package recall gives the assistant memory of earlier conversations.
//
// Final transcripts are embedded and written to a semantic index as they
// arrive. The model reaches back into that index through the memory_recall
// tool, which embeds the query and returns the closest stored utterances.
package recall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/aurelay/internal/gateway"
	"github.com/MrWong99/aurelay/pkg/embeddings"
	"github.com/MrWong99/aurelay/pkg/realtime"
	"github.com/MrWong99/aurelay/pkg/store"
)

// ToolName is the builtin tool the model calls to search past transcripts.
// Calls to it are billed as retrieval rather than plain tool invocations.
const ToolName = "memory_recall"

// defaultLimit bounds a search when the model does not ask for a count.
const defaultLimit = 5

// minChars filters out utterances too short to be worth remembering.
const minChars = 12

// Service indexes transcripts and answers recall queries.
type Service struct {
	embedder embeddings.Provider
	index    store.SemanticIndex
	log      *slog.Logger
}

// New creates a Service. logger may be nil.
func New(embedder embeddings.Provider, index store.SemanticIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		index:    index,
		log:      logger.With("component", "recall"),
	}
}

// Index embeds one final transcript and stores it. Short utterances are
// skipped. Indexing is best-effort from the session's point of view, but
// the error is returned so callers can count failures.
func (s *Service) Index(ctx context.Context, sessionID string, t realtime.Transcript) error {
	text := strings.TrimSpace(t.Text)
	if len(text) < minChars {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("recall: embed transcript: %w", err)
	}
	id := t.ID
	if id == "" {
		id = realtime.NewID()
	}
	err = s.index.IndexTranscript(ctx, store.TranscriptChunk{
		ID:        id,
		SessionID: sessionID,
		Role:      string(t.Role),
		Text:      text,
		Embedding: vec,
		Timestamp: t.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("recall: index transcript: %w", err)
	}
	return nil
}

// Search embeds the query and returns up to limit matching utterances,
// formatted one per line for direct inclusion in a function call output.
func (s *Service) Search(ctx context.Context, query string, limit int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("recall: empty query")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("recall: embed query: %w", err)
	}
	chunks, err := s.index.Search(ctx, vec, limit)
	if err != nil {
		return "", fmt.Errorf("recall: search: %w", err)
	}
	if len(chunks) == 0 {
		return "No relevant past conversation found.", nil
	}

	var sb strings.Builder
	for _, c := range chunks {
		role := c.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", c.Timestamp.Format("2006-01-02 15:04"), role, c.Text)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Handler adapts the service to the gateway so it can be registered under
// [ToolName]. Expected args: {"query": string, "limit": number (optional)}.
func (s *Service) Handler() gateway.HandlerFunc {
	return func(ctx context.Context, req gateway.Request) (string, error) {
		query, _ := req.Args["query"].(string)
		limit := 0
		if n, ok := req.Args["limit"].(float64); ok {
			limit = int(n)
		}
		s.log.Debug("recall lookup", "query", query, "limit", limit)
		return s.Search(ctx, query, limit)
	}
}
