package incidents

import "context"

// Repository defines persistence for incidents
type Repository interface {
	Save(ctx context.Context, in *Incident) error
	Latest(ctx context.Context, limit int) ([]*Incident, error)
	ListBySession(ctx context.Context, sessionID int64, limit int) ([]*Incident, error)
}
