package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
)

type IncidentRepository struct{ db *sql.DB }

func NewIncidentRepository(db *sql.DB) *IncidentRepository { return &IncidentRepository{db: db} }

const incidentSchema = `
CREATE TABLE IF NOT EXISTS bridge_incidents (
  id           TEXT        PRIMARY KEY,
  session_id   BIGINT      NOT NULL DEFAULT 0,
  kind         TEXT        NOT NULL DEFAULT '-',
  stage        TEXT        NOT NULL,
  message      TEXT        NOT NULL,
  details_json JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_session ON bridge_incidents (session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_incidents_created ON bridge_incidents (created_at DESC);`

func (r *IncidentRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, incidentSchema)
	return err
}

// Save inserts an incident; a repeated id overwrites the message.
func (r *IncidentRepository) Save(ctx context.Context, in *domain.Incident) error {
	const q = `
INSERT INTO bridge_incidents
  (id, session_id, kind, stage, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  message=EXCLUDED.message,
  details_json=EXCLUDED.details_json;`
	in.Normalize(time.Now().UTC())
	_, err := r.db.ExecContext(ctx, q,
		in.ID, in.SessionID, stringOrDash(in.Kind), string(in.Stage), in.Message, in.DetailsJSON, in.CreatedAt)
	return err
}

func (r *IncidentRepository) Latest(ctx context.Context, limit int) ([]*domain.Incident, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, kind, stage, message, details_json::text, created_at
FROM bridge_incidents
ORDER BY created_at DESC, id DESC
LIMIT $1;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return scanIncidents(rows)
}

func (r *IncidentRepository) ListBySession(ctx context.Context, sessionID int64, limit int) ([]*domain.Incident, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, kind, stage, message, details_json::text, created_at
FROM bridge_incidents
WHERE session_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return scanIncidents(rows)
}

func scanIncidents(rows *sql.Rows) ([]*domain.Incident, error) {
	defer rows.Close()
	out := []*domain.Incident{}
	for rows.Next() {
		var (
			in    domain.Incident
			stage string
		)
		if err := rows.Scan(&in.ID, &in.SessionID, &in.Kind, &stage, &in.Message, &in.DetailsJSON, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Stage = domain.Stage(stage)
		out = append(out, &in)
	}
	return out, rows.Err()
}
