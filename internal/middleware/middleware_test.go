package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

func TestValidateKind(t *testing.T) {
	if k, err := ValidateKind(" PCA "); err != nil || k != analysis.KindPCA {
		t.Errorf("ValidateKind(PCA) = %q, %v", k, err)
	}
	if _, err := ValidateKind("cluster"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ValidateKind(cluster) err = %v", err)
	}
}

func TestValidateArtifactAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "results", true},
		{"all", "results", true},
		{"Loadings", "loadings", true},
		{"plot", "", false},
	}
	for _, tt := range tests {
		got, err := ValidateArtifact(tt.in)
		if got != tt.want || (err == nil) != tt.ok {
			t.Errorf("ValidateArtifact(%q) = %q, %v", tt.in, got, err)
		}
	}
	if f, err := ValidateFormat(""); err != nil || f != "csv" {
		t.Errorf("ValidateFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ValidateFormat("XLSX"); err != nil || f != "xlsx" {
		t.Errorf("ValidateFormat(XLSX) = %q, %v", f, err)
	}
	if _, err := ValidateFormat("pdf"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ValidateFormat(pdf) err = %v", err)
	}
}

func TestValidateSessionID(t *testing.T) {
	if id, err := ValidateSessionID(" 42 "); err != nil || id != 42 {
		t.Errorf("ValidateSessionID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"", "0", "-3", "abc"} {
		if _, err := ValidateSessionID(raw); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidateSessionID(%q) err = %v", raw, err)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := SanitizeString(" a\x00b\x07c "); got != "abc" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeTags("q3, survey,,q3 , 客户"); !reflect.DeepEqual(got, []string{"q3", "survey", "客户"}) {
		t.Errorf("SanitizeTags = %v", got)
	}
	if got := ValidateLimit(0); got != 20 {
		t.Errorf("ValidateLimit(0) = %d", got)
	}
	if got := ValidateLimit(500); got != 100 {
		t.Errorf("ValidateLimit(500) = %d", got)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	tb := newTokenBucket(2, 1, func() time.Time { return now })

	if !tb.Allow() || !tb.Allow() {
		t.Fatal("bucket should start full")
	}
	if tb.Allow() {
		t.Fatal("empty bucket allowed a request")
	}
	now = now.Add(1500 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("bucket did not refill")
	}
	if tb.Allow() {
		t.Fatal("refill exceeded elapsed time")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Minute)
	rl.Allow("b")
	rl.Sweep(30 * time.Second)

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.buckets["a"]; ok {
		t.Error("idle bucket kept")
	}
	if _, ok := rl.buckets["b"]; !ok {
		t.Error("active bucket swept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do("/v1/sessions"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := do("/v1/sessions")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second request = %d", rec.Code)
	}
	if rec := do("/health"); rec.Code != http.StatusNoContent {
		t.Errorf("health should bypass the limiter, got %d", rec.Code)
	}
}

func TestRunChecks(t *testing.T) {
	ok := CheckFunc(func(context.Context) error { return nil })
	fail := CheckFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name   string
		checks []Check
		want   string
	}{
		{"all healthy", []Check{{Name: "a", Checker: ok}}, "healthy"},
		{"optional failing", []Check{{Name: "a", Checker: ok}, {Name: "db", Checker: fail, Optional: true}}, "degraded"},
		{"required failing", []Check{{Name: "a", Checker: fail}, {Name: "db", Checker: fail, Optional: true}}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunChecks(context.Background(), tt.checks)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("checks = %v", got.Checks)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler([]Check{{Name: "analytics_service", Checker: CheckFunc(func(context.Context) error { return errors.New("refused") })}})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rec.Code)
	}
	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["analytics_service"].Message != "refused" {
		t.Errorf("body = %+v", body)
	}
}

func TestRecorderCounters(t *testing.T) {
	before := GetMetrics()
	var rec Recorder
	rec.Reconciliation(appanalysis.OutcomePartial)
	rec.Reconciliation("unknown")
	rec.Export(appanalysis.ExportFallback)
	rec.Stale()
	after := GetMetrics()

	partial := after["reconciliation"].(map[string]uint64)["partial"] - before["reconciliation"].(map[string]uint64)["partial"]
	fallback := after["exports"].(map[string]uint64)["fallback"] - before["exports"].(map[string]uint64)["fallback"]
	stale := after["stale_responses"].(uint64) - before["stale_responses"].(uint64)
	if partial != 1 || fallback != 1 || stale != 1 {
		t.Errorf("partial = %d fallback = %d stale = %d, want 1 each", partial, fallback, stale)
	}
}

func TestMetricsMiddlewareCountsFailures(t *testing.T) {
	failed := atomic.LoadUint64(&globalMetrics.RequestsFailed)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/42", nil))
	if got := atomic.LoadUint64(&globalMetrics.RequestsFailed) - failed; got != 1 {
		t.Errorf("failed delta = %d, want 1", got)
	}
}
