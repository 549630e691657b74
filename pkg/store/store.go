// Package store defines the persistence boundary for session history.
//
// Everything written here is best-effort from the orchestrator's point of
// view: a failed analytics or history write must never interrupt a live
// conversation, so callers log and swallow errors from these interfaces.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"time"

	"github.com/MrWong99/aurelay/pkg/realtime"
)

// SessionMeta is the per-session metadata row, written once when the
// upstream session is established.
type SessionMeta struct {
	// SessionID is the opaque identifier assigned by the upstream service.
	SessionID string

	// ClientSessionID is the locally generated correlation identifier,
	// minted before any network activity.
	ClientSessionID string

	// UserID identifies the end user who owns the session.
	UserID string

	// TransportKind names the channel the session ran over.
	TransportKind string

	// Model is the upstream model tag active for the session.
	Model string

	// StartedAt is when the session was established.
	StartedAt time.Time

	// Consent records whether the user agreed to transcript persistence.
	Consent bool

	// Timings carries latency milestones in milliseconds, keyed by mark name.
	Timings map[string]int64
}

// ToolEvent records one dispatched tool call and its outcome.
type ToolEvent struct {
	CallID    string
	Name      string
	Arguments string
	OK        bool
	Result    string
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// Store is the session history sink.
type Store interface {
	// SaveSessionMeta records the metadata of a newly established session.
	SaveSessionMeta(ctx context.Context, meta SessionMeta) error

	// AppendTranscript appends one final transcript to the session's history.
	AppendTranscript(ctx context.Context, sessionID string, t realtime.Transcript) error

	// AppendToolEvent appends one tool dispatch record.
	AppendToolEvent(ctx context.Context, sessionID string, e ToolEvent) error

	// SaveSummary attaches a post-session summary to the session row.
	SaveSummary(ctx context.Context, sessionID string, summary string) error
}

// TranscriptChunk is a transcript with its embedding, as stored in and
// returned from the semantic index. Score is populated on search results
// only (cosine similarity, higher is closer).
type TranscriptChunk struct {
	ID        string
	SessionID string
	Role      string
	Text      string
	Embedding []float32
	Timestamp time.Time
	Score     float64
}

// SemanticIndex is the vector store behind the memory-recall feature.
type SemanticIndex interface {
	// IndexTranscript inserts one embedded transcript chunk.
	IndexTranscript(ctx context.Context, c TranscriptChunk) error

	// Search returns the limit nearest chunks to embedding, best first.
	Search(ctx context.Context, embedding []float32, limit int) ([]TranscriptChunk, error)
}
