package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/MrWong99/aurelay/pkg/store"
)

// SemanticIndex stores transcript embeddings in the transcript_chunks table
// and answers nearest-neighbour queries using cosine distance.
type SemanticIndex struct {
	pool *pgxpool.Pool
}

var _ store.SemanticIndex = (*SemanticIndex)(nil)

// NewSemanticIndex wraps an existing pool, typically shared with [Store].
// The pool must have the pgvector codecs registered; pools created via
// [NewStore] already do.
func NewSemanticIndex(pool *pgxpool.Pool) *SemanticIndex {
	return &SemanticIndex{pool: pool}
}

func (s *SemanticIndex) IndexTranscript(ctx context.Context, c store.TranscriptChunk) error {
	if len(c.Embedding) == 0 {
		return fmt.Errorf("semantic index: chunk %q has no embedding", c.ID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_chunks (id, session_id, role, text, embedding, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			text      = EXCLUDED.text,
			embedding = EXCLUDED.embedding`,
		c.ID, c.SessionID, c.Role, c.Text, pgvector.NewVector(c.Embedding), c.Timestamp)
	if err != nil {
		return fmt.Errorf("semantic index: insert chunk: %w", err)
	}
	return nil
}

func (s *SemanticIndex) Search(ctx context.Context, embedding []float32, limit int) ([]store.TranscriptChunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("semantic index: empty query embedding")
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, text, timestamp,
		       1 - (embedding <=> $1) AS score
		FROM transcript_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}
	defer rows.Close()

	var out []store.TranscriptChunk
	for rows.Next() {
		var c store.TranscriptChunk
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Role, &c.Text, &c.Timestamp, &c.Score); err != nil {
			return nil, fmt.Errorf("semantic index: scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}
	return out, nil
}
