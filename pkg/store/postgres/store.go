package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/aurelay/pkg/realtime"
	"github.com/MrWong99/aurelay/pkg/store"
)

// Store persists session records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore connects to the database at dsn, registers the pgvector codecs
// on every new connection and runs the schema migration.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = pgxvec.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool so that other components,
// like the semantic index, can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) SaveSessionMeta(ctx context.Context, meta store.SessionMeta) error {
	timings, err := json.Marshal(meta.Timings)
	if err != nil {
		return fmt.Errorf("postgres store: marshal timings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, client_session_id, user_id, transport_kind, model, started_at, consent, timings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			client_session_id = EXCLUDED.client_session_id,
			user_id           = EXCLUDED.user_id,
			transport_kind    = EXCLUDED.transport_kind,
			model             = EXCLUDED.model,
			consent           = EXCLUDED.consent,
			timings           = EXCLUDED.timings`,
		meta.SessionID, meta.ClientSessionID, meta.UserID, meta.TransportKind,
		meta.Model, meta.StartedAt, meta.Consent, timings)
	if err != nil {
		return fmt.Errorf("postgres store: save session meta: %w", err)
	}
	return nil
}

func (s *Store) AppendTranscript(ctx context.Context, sessionID string, tr realtime.Transcript) error {
	id := tr.ID
	if id == "" {
		id = realtime.NewID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (id, session_id, role, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text`,
		id, sessionID, tr.Role, tr.Text, tr.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres store: append transcript: %w", err)
	}
	return nil
}

func (s *Store) AppendToolEvent(ctx context.Context, sessionID string, ev store.ToolEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tool_events (session_id, call_id, name, arguments, ok, result, error, duration_ns, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sessionID, ev.CallID, ev.Name, ev.Arguments, ev.OK, ev.Result, ev.Error,
		ev.Duration.Nanoseconds(), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres store: append tool event: %w", err)
	}
	return nil
}

func (s *Store) SaveSummary(ctx context.Context, sessionID, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET summary = $2 WHERE session_id = $1`,
		sessionID, summary)
	if err != nil {
		return fmt.Errorf("postgres store: save summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: save summary: unknown session %q", sessionID)
	}
	return nil
}

// Transcripts returns the stored transcript lines for a session in
// chronological order. Mainly useful for offline inspection and tests.
func (s *Store) Transcripts(ctx context.Context, sessionID string) ([]realtime.Transcript, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, text, timestamp
		FROM transcripts
		WHERE session_id = $1
		ORDER BY timestamp`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list transcripts: %w", err)
	}
	defer rows.Close()

	var out []realtime.Transcript
	for rows.Next() {
		var tr realtime.Transcript
		if err := rows.Scan(&tr.ID, &tr.Role, &tr.Text, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres store: scan transcript: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list transcripts: %w", err)
	}
	return out, nil
}
