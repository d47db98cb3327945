package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
)

type InterpretationRepository struct {
	db *sql.DB
}

func NewInterpretationRepository(db *sql.DB) *InterpretationRepository {
	return &InterpretationRepository{db: db}
}

const interpretationSchema = `
CREATE TABLE IF NOT EXISTS bridge_interpretations (
  id          TEXT        PRIMARY KEY,
  session_id  BIGINT      NOT NULL,
  model       TEXT        NOT NULL DEFAULT '-',
  result_json JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interpretations_session ON bridge_interpretations (session_id, created_at DESC);`

func (r *InterpretationRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, interpretationSchema)
	return err
}

// Save inserts or updates an interpretation record
func (r *InterpretationRepository) Save(ctx context.Context, in *domain.Interpretation) error {
	const q = `
INSERT INTO bridge_interpretations
  (id, session_id, model, result_json, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  model=EXCLUDED.model,
  result_json=EXCLUDED.result_json;
`
	result := in.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, in.ID, in.SessionID, stringOrDash(in.Model), result, createdAt)
	return err
}

// LatestBySession returns the latest interpretation for a session
func (r *InterpretationRepository) LatestBySession(ctx context.Context, sessionID int64) (*domain.Interpretation, error) {
	const q = `
SELECT id, session_id, model, result_json::text, created_at
FROM bridge_interpretations
WHERE session_id=$1
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	var in domain.Interpretation
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&in.ID, &in.SessionID, &in.Model, &in.Result, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}
