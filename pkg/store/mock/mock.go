// Package mock provides recording in-memory test doubles for the store
// interfaces.
package mock

import (
	"context"
	"math"
	"sync"

	"github.com/MrWong99/aurelay/pkg/realtime"
	"github.com/MrWong99/aurelay/pkg/store"
)

// Store records every write. The Err fields, when set, are returned by the
// corresponding method so tests can exercise best-effort error handling.
type Store struct {
	mu sync.Mutex

	SaveMetaErr   error
	TranscriptErr error
	ToolEventErr  error
	SummaryErr    error

	metas       []store.SessionMeta
	transcripts map[string][]realtime.Transcript
	toolEvents  map[string][]store.ToolEvent
	summaries   map[string]string
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		transcripts: make(map[string][]realtime.Transcript),
		toolEvents:  make(map[string][]store.ToolEvent),
		summaries:   make(map[string]string),
	}
}

func (s *Store) SaveSessionMeta(_ context.Context, meta store.SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveMetaErr != nil {
		return s.SaveMetaErr
	}
	s.metas = append(s.metas, meta)
	return nil
}

func (s *Store) AppendTranscript(_ context.Context, sessionID string, tr realtime.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TranscriptErr != nil {
		return s.TranscriptErr
	}
	s.transcripts[sessionID] = append(s.transcripts[sessionID], tr)
	return nil
}

func (s *Store) AppendToolEvent(_ context.Context, sessionID string, ev store.ToolEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ToolEventErr != nil {
		return s.ToolEventErr
	}
	s.toolEvents[sessionID] = append(s.toolEvents[sessionID], ev)
	return nil
}

func (s *Store) SaveSummary(_ context.Context, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SummaryErr != nil {
		return s.SummaryErr
	}
	s.summaries[sessionID] = summary
	return nil
}

// Metas returns a copy of all recorded session metadata.
func (s *Store) Metas() []store.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.SessionMeta, len(s.metas))
	copy(out, s.metas)
	return out
}

// Transcripts returns a copy of the transcripts recorded for sessionID.
func (s *Store) Transcripts(sessionID string) []realtime.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Transcript, len(s.transcripts[sessionID]))
	copy(out, s.transcripts[sessionID])
	return out
}

// ToolEvents returns a copy of the tool events recorded for sessionID.
func (s *Store) ToolEvents(sessionID string) []store.ToolEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ToolEvent, len(s.toolEvents[sessionID]))
	copy(out, s.toolEvents[sessionID])
	return out
}

// Summary returns the summary recorded for sessionID, if any.
func (s *Store) Summary(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[sessionID]
	return sum, ok
}

// SemanticIndex is an in-memory vector index ranking by cosine similarity.
type SemanticIndex struct {
	mu sync.Mutex

	IndexErr  error
	SearchErr error

	chunks []store.TranscriptChunk
}

var _ store.SemanticIndex = (*SemanticIndex)(nil)

func NewSemanticIndex() *SemanticIndex {
	return &SemanticIndex{}
}

func (s *SemanticIndex) IndexTranscript(_ context.Context, c store.TranscriptChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	for i, old := range s.chunks {
		if old.ID == c.ID {
			s.chunks[i] = c
			return nil
		}
	}
	s.chunks = append(s.chunks, c)
	return nil
}

func (s *SemanticIndex) Search(_ context.Context, embedding []float32, limit int) ([]store.TranscriptChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	scored := make([]store.TranscriptChunk, len(s.chunks))
	copy(scored, s.chunks)
	for i := range scored {
		scored[i].Score = cosine(scored[i].Embedding, embedding)
	}
	// insertion sort, descending by score; the fixture sets are tiny
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].Score > scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Len reports the number of indexed chunks.
func (s *SemanticIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
