package incidents

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage where the degradation happened.
type Stage string

const (
	StageAnalyze   Stage = "analyze"
	StageReconcile Stage = "reconcile"
	StageExport    Stage = "export"
	StageList      Stage = "list"
)

// Incident is one degraded or failed outcome worth looking at later.
type Incident struct {
	ID          string    `json:"id"`
	SessionID   int64     `json:"session_id"`
	Kind        string    `json:"kind,omitempty"`
	Stage       Stage     `json:"stage"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}

// Normalize fills the fields every store requires: an id, a timestamp, a
// non-empty message and details that are valid JSON.
func (in *Incident) Normalize(now time.Time) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	if strings.TrimSpace(in.Message) == "" {
		in.Message = "-"
	}
	if in.Stage == "" {
		in.Stage = StageAnalyze
	}
	details := strings.TrimSpace(in.DetailsJSON)
	if details == "" {
		in.DetailsJSON = "{}"
		return
	}
	// invalid json ikut disimpan, dibungkus sebagai string
	if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		in.DetailsJSON = string(b)
	}
}

// Details encodes v for DetailsJSON, "{}" when it cannot.
func Details(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
