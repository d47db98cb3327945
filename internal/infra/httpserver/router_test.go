package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	appai "github.com/bryanwahyu/analytics-bridge/internal/application/ai"
	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
	domai "github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/sessions"
	"github.com/bryanwahyu/analytics-bridge/internal/infra/upstream"
	"github.com/bryanwahyu/analytics-bridge/internal/middleware"
)

const factorPayload = `"analysis_data": {"eigenvalues": [2.1, 1.3], "explained_variance": [42, 26], "cumulative_variance": [42, 68]}`

// analyticsService fakes the upstream statistics service.
func analyticsService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/factor/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success": true, "session_id": 42, "analysis_type": "factor", %s}`, factorPayload)
	})
	mux.HandleFunc("POST /api/pca/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"success": false, "error": "could not parse file", "hints": ["save as UTF-8 CSV"], "debug": {"filePreview": ["a;b"]}}`)
	})
	mux.HandleFunc("GET /api/sessions/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"session": {"id": 42, "analysis_type": "factor", "plot_image": "aW1n"}, %s}`, factorPayload)
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"sessions": [{"id": 42, "analysis_type": "factor"}, {"id": 43, "analysis_type": "rfm"}]}`)
	})
	mux.HandleFunc("GET /api/factor/download/results/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<html><title>Internal Server Error</title></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stubAI struct{ reply string }

func (s stubAI) Interpret(ctx context.Context, system, user string) (string, error) {
	return s.reply, nil
}

func newTestRouter(t *testing.T, aiClient domai.Client) http.Handler {
	t.Helper()
	srv := analyticsService(t)
	gw, err := upstream.NewGateway(srv.URL, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	client := upstream.NewClient(gw, upstream.Timeouts{}, "")
	svc := &appanalysis.Service{
		Source:     client,
		Sessions:   client,
		Exporter:   client,
		Matcher:    sessions.DefaultMatcher(),
		Reconciler: &appanalysis.Reconciler{Source: client, Log: zerolog.Nop()},
		Cache:      appanalysis.NewResultCache(16),
		Sequencer:  appanalysis.NewSequencer(),
		Log:        zerolog.Nop(),
	}
	return NewRouter(svc, appai.NewService(aiClient, "test-model"), Options{
		Log:    zerolog.Nop(),
		Checks: []middleware.Check{{Name: "analytics_service", Checker: middleware.CheckFunc(client.Ping)}},
	})
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "survey.csv")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, "x,y\n1,2\n")
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	body, ct := multipartBody(t, map[string]string{"session_name": "survey", "tags": "q3,q3,panel", "n_factors": "2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/factor", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(HeaderViewID, "tab-1")

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var got domain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != 42 || got.State != domain.StateReconciled || got.PlotBase64 != "aW1n" {
		t.Errorf("result = %+v", got)
	}
	if len(got.Tags) != 2 || got.Parameters["n_factors"] != "2" {
		t.Errorf("tags = %v parameters = %v", got.Tags, got.Parameters)
	}
}

func TestAnalyzeRouteUpstreamFailure(t *testing.T) {
	h := newTestRouter(t, nil)
	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/pca", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(h, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var got errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Success || got.Error != "could not parse file" || len(got.Hints) != 1 || len(got.Debug.FilePreview) != 1 {
		t.Errorf("body = %+v", got)
	}
}

func TestAnalyzeRouteRejectsUnknownKind(t *testing.T) {
	h := newTestRouter(t, nil)
	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/cluster", body)
	req.Header.Set("Content-Type", ct)
	if rec := serve(h, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSessionsRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions?type=FACTOR", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if tier := rec.Header().Get(HeaderFilterTier); tier != "case_insensitive" {
		t.Errorf("tier = %s", tier)
	}
	var got struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Count != 1 {
		t.Errorf("count = %d", got.Count)
	}
}

func TestSessionRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/42", nil)); rec.Code != http.StatusOK {
		t.Errorf("stored session status = %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/99", nil)); rec.Code != http.StatusBadGateway {
		t.Errorf("missing session status = %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestArtifactRouteFallsBackToGenerated(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/42/artifacts/results?kind=factor", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(HeaderGenerated) != "true" {
		t.Error("expected locally generated artifact")
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "factor_results_42.csv") {
		t.Errorf("Content-Disposition = %s", cd)
	}
	text := rec.Body.String()
	if !strings.HasPrefix(text, "\ufeff") || !strings.Contains(text, "2,1.3000,26.00,68.00") {
		t.Errorf("body = %q", text)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/42/artifacts/results?format=xlsx", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != artifacts.ContentTypeXLSX {
		t.Errorf("xlsx status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/sessions/42/artifacts/plot", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown artifact status = %d", rec.Code)
	}
}

func TestInterpretRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	if rec := serve(h, httptest.NewRequest(http.MethodPost, "/v1/sessions/42/interpret", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d", rec.Code)
	}

	h = newTestRouter(t, stubAI{reply: `{"headline": "Two factors explain 68% of variance", "findings": ["F1 dominates"]}`})
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/v1/sessions/42/interpret", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var n domai.Narrative
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	if n.SessionID != 42 || n.Model != "test-model" || len(n.Findings) != 1 || n.Caveats == nil {
		t.Errorf("narrative = %+v", n)
	}
}

func TestIncidentsRouteWithoutStore(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/incidents?limit=5", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestHealthRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health status = %d body = %s", rec.Code, rec.Body)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/live", nil)); rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: kind", middleware.ErrInvalidInput), http.StatusBadRequest},
		{domain.MissingField("file"), http.StatusBadRequest},
		{&domain.UpstreamFailure{Message: "x"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("generate csv: %w", artifacts.ErrInconsistentResult), http.StatusUnprocessableEntity},
		{domai.ErrNotConfigured, http.StatusServiceUnavailable},
		{domai.ErrQuotaExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: deadline", domain.ErrUpstreamTimeout), http.StatusGatewayTimeout},
		{&domain.HTTPError{Status: 500}, http.StatusBadGateway},
		{domain.ErrEmptyResponse, http.StatusBadGateway},
		{fmt.Errorf("%w: 64 MiB", domain.ErrResponseTooLarge), http.StatusBadGateway},
		{fmt.Errorf("%w: context canceled", domain.ErrCanceled), statusClientClosed},
		{errors.Join(errors.New("remote export: x"), domain.ErrMalformedResponse), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// brokenConn accepts headers but fails every body write.
type brokenConn struct {
	header  http.Header
	headers []int
}

func (b *brokenConn) Header() http.Header { return b.header }
func (b *brokenConn) WriteHeader(code int) { b.headers = append(b.headers, code) }
func (b *brokenConn) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestWrapLeavesCommittedResponseAlone(t *testing.T) {
	r := &Router{log: zerolog.Nop()}
	w := &brokenConn{header: http.Header{}}
	h := r.wrap(func(w http.ResponseWriter, req *http.Request) error {
		return (&AttachmentSaver{W: w}).Save(req.Context(), artifacts.Download{
			Filename:    "factor_results_42.csv",
			ContentType: artifacts.ContentTypeCSV,
			Data:        []byte("1,2.1000,42.00,42.00\n"),
		})
	})
	h(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/42/artifacts/results", nil))

	if len(w.headers) != 1 || w.headers[0] != http.StatusOK {
		t.Errorf("WriteHeader calls = %v, want [200]", w.headers)
	}
	if ct := w.header.Get("Content-Type"); ct != artifacts.ContentTypeCSV {
		t.Errorf("Content-Type = %q, error body leaked into attachment", ct)
	}
}
