package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// SessionRepo persists and loads session snapshots using a minimal pgx pool.
type SessionRepo struct{ Pool PgxPool }

// PgxPool is a minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// SaveSnapshot upserts the full session state. Called on every phase
// transition and recorded turn, so the stored row always reflects the latest
// in-memory state.
func (r *SessionRepo) SaveSnapshot(ctx context.Context, s *domain.Session) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.SaveSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "sessions"),
		attribute.String("session.phase", string(s.Phase)),
	)
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=session.save: marshal: %w", err)
	}
	q := `INSERT INTO sessions (id, phase, fail_reason, payload, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (id) DO UPDATE SET
	        phase = EXCLUDED.phase,
	        fail_reason = EXCLUDED.fail_reason,
	        payload = EXCLUDED.payload,
	        updated_at = EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q, s.ID, string(s.Phase), s.FailReason, payload, s.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.save: %w", err)
	}
	return nil
}

// GetSnapshot loads the latest stored state of a session.
func (r *SessionRepo) GetSnapshot(ctx context.Context, id string) (*domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.GetSnapshot")
	defer span.End()
	q := `SELECT payload FROM sessions WHERE id=$1`
	var payload []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=session.get: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("op=session.get: unmarshal: %w", err)
	}
	return &s, nil
}
