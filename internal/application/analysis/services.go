package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/application"
	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/sessions"
)

// Export sources reported to the Recorder.
const (
	ExportRemote   = "remote"
	ExportFallback = "fallback"
	ExportFailed   = "failed"
)

// Service implements the bridge use-cases on top of the analytics service.
// It is safe for concurrent use.
type Service struct {
	Source     domain.Source
	Sessions   sessions.Lister
	Exporter   artifacts.Exporter
	Archive    artifacts.Archive // optional
	Matcher    *sessions.Matcher
	Reconciler *Reconciler
	Cache      *ResultCache
	Sequencer  *Sequencer
	Incidents  *IncidentLog
	Metrics    Recorder
	Clock      application.Clock
	Log        zerolog.Logger
}

//
// ==== USE CASES ====
//

// AnalyzeCommand is one analyze request from a UI view.
type AnalyzeCommand struct {
	ViewID  string
	Request domain.RequestContext
	Upload  domain.Upload
}

// Analyze runs the analysis upstream and reconciles the result. Failures
// of the analyze call itself are fatal and returned as is; a superseded
// call still returns its result, marked stale and left out of the cache.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (domain.Result, error) {
	if cmd.Request.Kind == "" {
		return domain.Result{}, domain.MissingField("kind")
	}
	ticket := s.Sequencer.Begin(cmd.ViewID)

	env, err := s.Source.Analyze(ctx, cmd.Request, cmd.Upload)
	if errors.Is(err, domain.ErrCanceled) {
		return domain.Result{}, err
	}
	if err != nil {
		s.Incidents.Record(ctx, incidents.Incident{
			Kind:        string(cmd.Request.Kind),
			Stage:       incidents.StageAnalyze,
			Message:     err.Error(),
			DetailsJSON: failureDetails(err),
		})
		return domain.Result{}, err
	}

	result, err := s.Reconciler.ReconcileAfterAnalyze(ctx, env, 0, cmd.Request)
	if err != nil {
		return domain.Result{}, err
	}

	if !s.Sequencer.Current(ticket) {
		result.Stale = true
		s.metrics().Stale()
		s.Log.Info().Str("view_id", cmd.ViewID).Int64("session_id", result.SessionID).Msg("analyze response superseded by a newer request")
		return result, nil
	}
	s.Cache.Put(result)
	return result, nil
}

// Result returns the reconciled result of a stored session. A failed fetch
// falls back to the last cached result for that session.
func (s *Service) Result(ctx context.Context, sessionID int64) (domain.Result, error) {
	result, err := s.Reconciler.Reconcile(ctx, sessionID)
	if err == nil {
		s.Cache.Put(result)
		return result, nil
	}
	if cached, ok := s.Cache.Get(sessionID); ok {
		s.Log.Warn().Err(err).Int64("session_id", sessionID).Msg("session detail unavailable, serving cached result")
		return cached, nil
	}
	return domain.Result{}, err
}

// ListSessions returns the stored sessions matching analysisType and the
// filter tier that produced them.
func (s *Service) ListSessions(ctx context.Context, analysisType string) ([]sessions.Summary, sessions.Tier, error) {
	list, err := s.Sessions.Sessions(ctx)
	if err != nil {
		return nil, sessions.TierNone, err
	}
	matcher := s.Matcher
	if matcher == nil {
		matcher = sessions.DefaultMatcher()
	}
	out, tier := matcher.FilterWithTier(list, analysisType)
	if tier == sessions.TierHeuristic {
		s.Log.Info().Str("type", analysisType).Int("matched", len(out)).Msg("session list matched by keyword heuristic")
	}
	return out, tier, nil
}

// DownloadCommand names one artifact of one session.
type DownloadCommand struct {
	SessionID int64
	Kind      domain.Kind
	Artifact  string
	Format    string
}

// Download fetches an artifact from the remote export endpoint and falls
// back to generating it locally from the canonical result. It fails only
// when both paths fail.
func (s *Service) Download(ctx context.Context, cmd DownloadCommand) (artifacts.Download, error) {
	if cmd.SessionID <= 0 {
		return artifacts.Download{}, domain.MissingField("session id")
	}
	if cmd.Artifact == "" {
		cmd.Artifact = artifacts.KindResults
	}
	format := strings.ToLower(cmd.Format)
	if format == "" {
		format = artifacts.FormatCSV
	}

	var remoteErr error
	if format == artifacts.FormatCSV && cmd.Kind != "" {
		d, err := s.Exporter.Export(ctx, cmd.Kind, cmd.Artifact, cmd.SessionID)
		if err == nil {
			s.metrics().Export(ExportRemote)
			return d, nil
		}
		remoteErr = fmt.Errorf("remote export: %w", err)
		s.Log.Warn().Err(err).Int64("session_id", cmd.SessionID).Str("artifact", cmd.Artifact).Msg("remote export failed, generating locally")
	}

	d, genErr := s.generate(ctx, cmd, format)
	if genErr != nil {
		s.metrics().Export(ExportFailed)
		err := errors.Join(remoteErr, genErr)
		s.Incidents.Record(ctx, incidents.Incident{
			SessionID: cmd.SessionID,
			Kind:      string(cmd.Kind),
			Stage:     incidents.StageExport,
			Message:   err.Error(),
		})
		return artifacts.Download{}, err
	}
	s.metrics().Export(ExportFallback)
	if remoteErr != nil {
		s.Incidents.Record(ctx, incidents.Incident{
			SessionID:   cmd.SessionID,
			Kind:        string(cmd.Kind),
			Stage:       incidents.StageExport,
			Message:     remoteErr.Error(),
			DetailsJSON: incidents.Details(map[string]string{"served": d.Filename}),
		})
	}
	s.archive(ctx, &d)
	return d, nil
}

// Save runs Download and hands the file to saver.
func (s *Service) Save(ctx context.Context, cmd DownloadCommand, saver artifacts.Saver) (artifacts.Download, error) {
	d, err := s.Download(ctx, cmd)
	if err != nil {
		return d, err
	}
	if err := saver.Save(ctx, d); err != nil {
		return d, fmt.Errorf("save %s: %w", d.Filename, err)
	}
	return d, nil
}

func (s *Service) generate(ctx context.Context, cmd DownloadCommand, format string) (artifacts.Download, error) {
	result, ok := s.Cache.Get(cmd.SessionID)
	if !ok {
		var err error
		result, err = s.Reconciler.Reconcile(ctx, cmd.SessionID)
		if err != nil {
			return artifacts.Download{}, fmt.Errorf("load session %d: %w", cmd.SessionID, err)
		}
		s.Cache.Put(result)
	}
	if result.AnalysisType == domain.UnknownLabel && cmd.Kind != "" {
		result.AnalysisType = string(cmd.Kind)
	}
	d, err := artifacts.Generate(result, cmd.Artifact, format)
	if err != nil {
		return artifacts.Download{}, fmt.Errorf("generate %s: %w", format, err)
	}
	return d, nil
}

func (s *Service) archive(ctx context.Context, d *artifacts.Download) {
	if s.Archive == nil || !d.Generated {
		return
	}
	key := d.Filename
	if s.Clock != nil {
		key = s.Clock.Now().UTC().Format("2006/01/02") + "/" + d.Filename
	}
	url, err := s.Archive.Put(ctx, key, *d)
	if err != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("failed to archive generated artifact")
		return
	}
	d.ArchiveURL = url
}

// RecentIncidents lists the most recent recorded incidents.
func (s *Service) RecentIncidents(ctx context.Context, limit int) ([]*incidents.Incident, error) {
	return s.Incidents.Latest(ctx, limit)
}

func (s *Service) metrics() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

func failureDetails(err error) string {
	var f *domain.UpstreamFailure
	if errors.As(err, &f) {
		return incidents.Details(map[string]any{
			"detail":      f.Detail,
			"hints":       f.Hints,
			"filePreview": f.FilePreview,
		})
	}
	var h *domain.HTTPError
	if errors.As(err, &h) {
		return incidents.Details(map[string]any{"status": h.Status, "url": h.URL})
	}
	return ""
}
