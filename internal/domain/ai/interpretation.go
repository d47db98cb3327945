package ai

import (
	"context"
	"time"
)

// Interpretation is a stored narrative, kept so repeated requests for the
// same session do not call the model again.
type Interpretation struct {
	ID        string    `json:"id"`
	SessionID int64     `json:"session_id"`
	Model     string    `json:"model"`
	Result    string    `json:"result"` // Narrative as JSON
	CreatedAt time.Time `json:"created_at"`
}

// Repository port for persisting and querying interpretations
type Repository interface {
	Save(ctx context.Context, in *Interpretation) error
	// LatestBySession returns nil, nil when the session has none.
	LatestBySession(ctx context.Context, sessionID int64) (*Interpretation, error)
}
