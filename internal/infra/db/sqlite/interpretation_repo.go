package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
)

type InterpretationRepository struct{ db *sql.DB }

func NewInterpretationRepository(db *sql.DB) *InterpretationRepository {
	return &InterpretationRepository{db: db}
}

func (r *InterpretationRepository) Save(ctx context.Context, in *domain.Interpretation) error {
	const q = `
INSERT OR REPLACE INTO bridge_interpretations
  (id, session_id, model, result_json, created_at)
VALUES (?,?,?,?,?)`
	result := in.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	model := in.Model
	if strings.TrimSpace(model) == "" {
		model = "-"
	}
	_, err := r.db.ExecContext(ctx, q, in.ID, in.SessionID, model, result, createdAt.UTC().Format(timeLayout))
	return err
}

func (r *InterpretationRepository) LatestBySession(ctx context.Context, sessionID int64) (*domain.Interpretation, error) {
	const q = `
SELECT id, session_id, model, result_json, created_at
FROM bridge_interpretations
WHERE session_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`
	var (
		in      domain.Interpretation
		created string
	)
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&in.ID, &in.SessionID, &in.Model, &in.Result, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		in.CreatedAt = t
	}
	return &in, nil
}
