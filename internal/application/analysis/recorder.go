package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/application"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
)

// Recorder receives outcome counters.
type Recorder interface {
	Reconciliation(outcome string)
	Export(source string)
	Stale()
}

type nopRecorder struct{}

func (nopRecorder) Reconciliation(string) {}
func (nopRecorder) Export(string) {}
func (nopRecorder) Stale() {}

// IncidentLog persists degraded outcomes. Write failures are logged and
// otherwise ignored; a nil log or repository records nothing.
type IncidentLog struct {
	Repo  incidents.Repository
	Clock application.Clock
	Log   zerolog.Logger
}

func (l *IncidentLog) Record(ctx context.Context, in incidents.Incident) {
	if l == nil || l.Repo == nil {
		return
	}
	if l.Clock != nil {
		in.CreatedAt = l.Clock.Now().UTC()
	}
	// tetap simpan walau request sudah selesai / dibatalkan
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := l.Repo.Save(ctx, &in); err != nil {
		l.Log.Error().Err(err).Str("stage", string(in.Stage)).Msg("failed to record incident")
	}
}

func (l *IncidentLog) Latest(ctx context.Context, limit int) ([]*incidents.Incident, error) {
	if l == nil || l.Repo == nil {
		return []*incidents.Incident{}, nil
	}
	return l.Repo.Latest(ctx, limit)
}
