package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
)

// IncidentRepository is the default incident store when no server database
// is configured.
type IncidentRepository struct{ db *sql.DB }

func NewIncidentRepository(db *sql.DB) *IncidentRepository { return &IncidentRepository{db: db} }

// created_at is fixed-width UTC text so ORDER BY sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (r *IncidentRepository) Save(ctx context.Context, in *domain.Incident) error {
	const q = `
INSERT OR REPLACE INTO bridge_incidents
  (id, session_id, kind, stage, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)`
	in.Normalize(time.Now().UTC())
	kind := in.Kind
	if strings.TrimSpace(kind) == "" {
		kind = "-"
	}
	_, err := r.db.ExecContext(ctx, q,
		in.ID, in.SessionID, kind, string(in.Stage), in.Message, in.DetailsJSON, in.CreatedAt.UTC().Format(timeLayout))
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
LIMIT ?`
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
LIMIT ?`
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
			in      domain.Incident
			stage   string
			created string
		)
		if err := rows.Scan(&in.ID, &in.SessionID, &in.Kind, &stage, &in.Message, &in.DetailsJSON, &created); err != nil {
			return nil, err
		}
		in.Stage = domain.Stage(stage)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			in.CreatedAt = t
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}
