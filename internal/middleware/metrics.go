package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64

	ReconcileFastPath    uint64
	ReconcileDetailFetch uint64
	ReconcilePartial     uint64
	ExportRemote         uint64
	ExportFallback       uint64
	ExportFailed         uint64
	StaleResponses       uint64

	StartTime time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

var _ appanalysis.Recorder = Recorder{}

// Recorder feeds reconciliation and export outcomes into the global
// counters. The zero value is ready to use.
type Recorder struct{}

// Reconciliation increments the counter for a reconciliation outcome
func (Recorder) Reconciliation(outcome string) {
	switch outcome {
	case appanalysis.OutcomeFastPath:
		atomic.AddUint64(&globalMetrics.ReconcileFastPath, 1)
	case appanalysis.OutcomeDetailFetch:
		atomic.AddUint64(&globalMetrics.ReconcileDetailFetch, 1)
	case appanalysis.OutcomePartial:
		atomic.AddUint64(&globalMetrics.ReconcilePartial, 1)
	}
}

// Export increments the counter for an export source
func (Recorder) Export(source string) {
	switch source {
	case appanalysis.ExportRemote:
		atomic.AddUint64(&globalMetrics.ExportRemote, 1)
	case appanalysis.ExportFallback:
		atomic.AddUint64(&globalMetrics.ExportFallback, 1)
	case appanalysis.ExportFailed:
		atomic.AddUint64(&globalMetrics.ExportFailed, 1)
	}
}

// Stale increments superseded response counter
func (Recorder) Stale() {
	atomic.AddUint64(&globalMetrics.StaleResponses, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"reconciliation": map[string]uint64{
			"fast_path":    atomic.LoadUint64(&globalMetrics.ReconcileFastPath),
			"detail_fetch": atomic.LoadUint64(&globalMetrics.ReconcileDetailFetch),
			"partial":      atomic.LoadUint64(&globalMetrics.ReconcilePartial),
		},
		"exports": map[string]uint64{
			"remote":   atomic.LoadUint64(&globalMetrics.ExportRemote),
			"fallback": atomic.LoadUint64(&globalMetrics.ExportFallback),
			"failed":   atomic.LoadUint64(&globalMetrics.ExportFailed),
		},
		"stale_responses": atomic.LoadUint64(&globalMetrics.StaleResponses),
		"uptime_seconds":  time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
