package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
)

type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) *IncidentRepository { return &IncidentRepository{db: db} }

// Schema for the incident log. Applied by Migrate.
const incidentSchema = `
CREATE TABLE IF NOT EXISTS bridge_incidents (
  id           VARCHAR(64)  NOT NULL PRIMARY KEY,
  session_id   BIGINT       NOT NULL DEFAULT 0,
  kind         VARCHAR(32)  NOT NULL DEFAULT '-',
  stage        VARCHAR(32)  NOT NULL,
  message      TEXT         NOT NULL,
  details_json JSON         NOT NULL,
  created_at   DATETIME(3)  NOT NULL,
  INDEX idx_incidents_session (session_id, created_at),
  INDEX idx_incidents_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

func (r *IncidentRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, incidentSchema)
	return err
}

func (r *IncidentRepository) Save(ctx context.Context, in *domain.Incident) error {
	const q = `
INSERT INTO bridge_incidents
  (id, session_id, kind, stage, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)`
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
SELECT id, session_id, kind, stage, message, details_json, created_at
FROM bridge_incidents
ORDER BY created_at DESC, id DESC
LIMIT ?;`
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
SELECT id, session_id, kind, stage, message, details_json, created_at
FROM bridge_incidents
WHERE session_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
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
