// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store] and [store.SemanticIndex].
//
// All tables share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id         TEXT         PRIMARY KEY,
    client_session_id  TEXT         NOT NULL DEFAULT '',
    user_id            TEXT         NOT NULL DEFAULT '',
    transport_kind     TEXT         NOT NULL DEFAULT '',
    model              TEXT         NOT NULL DEFAULT '',
    started_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    consent            BOOLEAN      NOT NULL DEFAULT false,
    timings            JSONB        NOT NULL DEFAULT '{}',
    summary            TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id);
`

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_timestamp
    ON transcripts (session_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_transcripts_fts
    ON transcripts USING GIN (to_tsvector('english', text));
`

const ddlToolEvents = `
CREATE TABLE IF NOT EXISTS tool_events (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    call_id     TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    arguments   TEXT         NOT NULL DEFAULT '',
    ok          BOOLEAN      NOT NULL DEFAULT false,
    result      TEXT         NOT NULL DEFAULT '',
    error       TEXT         NOT NULL DEFAULT '',
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tool_events_session_id ON tool_events (session_id);
`

// ddlTranscriptChunks depends on the embedding dimension, which must match
// the configured embedding model. Changing it after the first migration
// requires a manual schema change.
const ddlTranscriptChunksFmt = `
CREATE TABLE IF NOT EXISTS transcript_chunks (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    role        TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_session_id
    ON transcript_chunks (session_id);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_embedding
    ON transcript_chunks USING hnsw (embedding vector_cosine_ops);
`

// Migrate creates the extension, tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		ddlSessions,
		ddlTranscripts,
		ddlToolEvents,
		fmt.Sprintf(ddlTranscriptChunksFmt, embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
