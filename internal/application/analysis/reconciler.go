package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
)

// Reconciliation outcomes reported to the Recorder.
const (
	OutcomeFastPath    = "fast_path"
	OutcomeDetailFetch = "detail_fetch"
	OutcomePartial     = "partial"
)

// Reconciler turns a fresh analyze envelope into a complete result, making
// at most one session-detail fetch when the visualization is missing.
type Reconciler struct {
	Source    domain.Source
	Incidents *IncidentLog
	Metrics   Recorder
	Log       zerolog.Logger

	// concurrent fetches of the same session share one upstream call
	inflight singleflight.Group
}

// ReconcileAfterAnalyze canonicalizes the fresh envelope and, only if it
// carries no image, fetches the stored session once and merges the two
// with the fresh values taking precedence. A failed detail fetch never
// hides the fresh result: it comes back marked reconciled_partial. Only a
// caller that went away gets an error.
// sessionID 0 means "use the id found in the envelope".
func (r *Reconciler) ReconcileAfterAnalyze(ctx context.Context, fresh domain.Envelope, sessionID int64, rc domain.RequestContext) (domain.Result, error) {
	result, err := domain.Canonicalize(fresh, rc)
	if err != nil {
		return domain.Result{}, err
	}
	if sessionID == 0 {
		sessionID = result.SessionID
	}
	if result.SessionID == 0 {
		result.SessionID = sessionID
	}

	if result.HasVisualization() {
		result.State = domain.StateReconciled
		r.metrics().Reconciliation(OutcomeFastPath)
		return result, nil
	}
	if sessionID <= 0 {
		return r.partial(ctx, result, domain.MissingField("session id")), nil
	}

	result.State = domain.StateDetailFetchPending
	r.Log.Debug().Int64("session_id", sessionID).Str("state", string(result.State)).Msg("visualization missing, fetching session detail")

	detail, err := r.fetchDetail(ctx, sessionID)
	if errors.Is(err, domain.ErrCanceled) {
		return domain.Result{}, err
	}
	if err != nil {
		return r.partial(ctx, result, fmt.Errorf("session detail: %w", err)), nil
	}
	merged, err := domain.CanonicalizeLayered(rc, fresh, detail)
	if err != nil {
		return r.partial(ctx, result, err), nil
	}
	if merged.SessionID == 0 {
		merged.SessionID = sessionID
	}
	r.metrics().Reconciliation(OutcomeDetailFetch)
	if !merged.HasVisualization() {
		return r.partial(ctx, merged, fmt.Errorf("%w: stored session has no visualization", domain.ErrPartialResult)), nil
	}
	merged.State = domain.StateReconciled
	return merged, nil
}

// Reconcile loads a stored session by id. Unlike the post-analyze path a
// failed fetch is the caller's error: there is nothing fresh to fall back on.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID int64) (domain.Result, error) {
	if sessionID <= 0 {
		return domain.Result{}, domain.MissingField("session id")
	}
	detail, err := r.fetchDetail(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	result, err := domain.Canonicalize(detail, domain.RequestContext{})
	if err != nil {
		return domain.Result{}, err
	}
	if result.SessionID == 0 {
		result.SessionID = sessionID
	}
	if !result.HasVisualization() {
		return r.partial(ctx, result, fmt.Errorf("%w: stored session has no visualization", domain.ErrPartialResult)), nil
	}
	result.State = domain.StateReconciled
	return result, nil
}

func (r *Reconciler) partial(ctx context.Context, result domain.Result, cause error) domain.Result {
	result.State = domain.StateReconciledPartial
	result.MissingArtifacts = []string{domain.ArtifactVisualization}
	r.metrics().Reconciliation(OutcomePartial)

	r.Log.Warn().Err(cause).Int64("session_id", result.SessionID).
		Str("analysis_type", result.AnalysisType).Msg("returning result without visualization")
	details := incidents.Details(map[string]any{
		"missing_artifacts": result.MissingArtifacts,
		"timeout":           errors.Is(cause, domain.ErrUpstreamTimeout),
	})
	r.Incidents.Record(ctx, incidents.Incident{
		SessionID:   result.SessionID,
		Kind:        result.AnalysisType,
		Stage:       incidents.StageReconcile,
		Message:     cause.Error(),
		DetailsJSON: details,
	})
	return result
}

// fetchDetail shares one upstream call between concurrent callers of the
// same session. The call runs detached from any single caller's
// cancellation and keeps the gateway's own timeout; a caller that goes away
// stops waiting without failing the others.
func (r *Reconciler) fetchDetail(ctx context.Context, sessionID int64) (domain.Envelope, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(strconv.FormatInt(sessionID, 10), func() (interface{}, error) {
		return r.Source.SessionDetail(shared, sessionID)
	})
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCanceled, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.Envelope), nil
	}
}

func (r *Reconciler) metrics() Recorder {
	if r.Metrics == nil {
		return nopRecorder{}
	}
	return r.Metrics
}
