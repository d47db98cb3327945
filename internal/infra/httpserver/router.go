package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	appai "github.com/bryanwahyu/analytics-bridge/internal/application/ai"
	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
	domai "github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
	"github.com/bryanwahyu/analytics-bridge/internal/middleware"
)

const defaultMaxUpload = 32 << 20

// Header names shared with the browser UI.
const (
	HeaderViewID      = "X-View-ID"
	HeaderFilterTier  = "X-Filter-Tier"
	HeaderArtifactURL = "X-Artifact-URL"
	HeaderGenerated   = "X-Artifact-Generated"
)

// Options configures the HTTP surface around the services.
type Options struct {
	Log            zerolog.Logger
	AllowedOrigins []string
	Limiter        *middleware.RateLimiter // nil disables rate limiting
	Checks         []middleware.Check
	MaxUploadBytes int64
}

type Router struct {
	svc       *appanalysis.Service
	aiSvc     *appai.Service
	log       zerolog.Logger
	maxUpload int64
}

func NewRouter(svc *appanalysis.Service, aiSvc *appai.Service, opts Options) http.Handler {
	r := &Router{svc: svc, aiSvc: aiSvc, log: opts.Log, maxUpload: opts.MaxUploadBytes}
	if r.maxUpload <= 0 {
		r.maxUpload = defaultMaxUpload
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.LoggingMiddleware(opts.Log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderViewID, "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", HeaderFilterTier, HeaderArtifactURL, HeaderGenerated},
		MaxAge:         300,
	}))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checks))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses/{kind}", r.wrap(r.handleAnalyze))
		rt.Get("/sessions", r.wrap(r.handleSessions))
		rt.Get("/sessions/{id}", r.wrap(r.handleSession))
		rt.Get("/sessions/{id}/artifacts/{artifact}", r.wrap(r.handleArtifact))
		rt.Post("/sessions/{id}/interpret", r.wrap(r.handleInterpret))
		rt.Get("/incidents", r.wrap(r.handleIncidents))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errorBody mirrors the analytics service's failure shape so the UI renders
// hints and file previews the same way for both.
type errorBody struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Detail  string    `json:"detail,omitempty"`
	Hints   []string  `json:"hints"`
	Debug   debugBody `json:"debug"`
}

type debugBody struct {
	FilePreview []string `json:"filePreview"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		if errors.Is(err, errCommitted) {
			r.log.Warn().Err(err).Str("path", req.URL.Path).Msg("response interrupted")
			return
		}
		status := statusFor(err)
		body := errorBody{Error: err.Error(), Hints: []string{}, Debug: debugBody{FilePreview: []string{}}}
		var f *domain.UpstreamFailure
		if errors.As(err, &f) {
			body.Error = f.Message
			if body.Error == "" {
				body.Error = "analysis failed"
			}
			body.Detail = f.Detail
			body.Hints = f.Hints
			body.Debug.FilePreview = f.FilePreview
		}
		if status >= 500 {
			r.log.Error().Err(err).Str("path", req.URL.Path).Int("status", status).Msg("request failed")
		}
		writeJSON(w, status, body)
	}
}

// statusClientClosed is nginx's code for a caller that hung up first.
const statusClientClosed = 499

func statusFor(err error) int {
	var f *domain.UpstreamFailure
	switch {
	case errors.Is(err, middleware.ErrInvalidInput), errors.Is(err, domain.ErrMissingRequiredField):
		return http.StatusBadRequest
	case errors.As(err, &f), errors.Is(err, artifacts.ErrInconsistentResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domai.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCanceled):
		return statusClientClosed
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamUnreachable),
		errors.Is(err, domain.ErrUpstreamHTTP),
		errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, domain.ErrEmptyResponse),
		errors.Is(err, domain.ErrResponseTooLarge),
		errors.Is(err, domai.ErrInvalidNarrative):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/analyses/{kind}
// Multipart: file + session_name, description, tags (comma separated); any
// other field is passed on as an analysis parameter.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	kind, err := middleware.ValidateKind(chi.URLParam(req, "kind"))
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(r.maxUpload); err != nil {
		return errors.Join(middleware.ErrInvalidInput, err)
	}
	defer req.MultipartForm.RemoveAll()

	file, header, err := req.FormFile("file")
	if err != nil {
		return domain.MissingField("file")
	}
	defer file.Close()

	rc := domain.RequestContext{
		Kind:        kind,
		Name:        middleware.SanitizeString(firstNonEmpty(req.FormValue("session_name"), req.FormValue("name"))),
		Description: middleware.SanitizeString(req.FormValue("description")),
		Tags:        middleware.SanitizeTags(req.FormValue("tags")),
		Filename:    middleware.SanitizeString(header.Filename),
		Parameters:  formParameters(req),
	}
	result, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		ViewID:  req.Header.Get(HeaderViewID),
		Request: rc,
		Upload:  domain.Upload{Filename: rc.Filename, Data: file},
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

var reservedFields = map[string]bool{"session_name": true, "name": true, "description": true, "tags": true}

func formParameters(req *http.Request) map[string]any {
	params := map[string]any{}
	for key, values := range req.MultipartForm.Value {
		if reservedFields[key] || len(values) == 0 {
			continue
		}
		params[key] = middleware.SanitizeString(values[0])
	}
	return params
}

// GET /v1/sessions?type=
func (r *Router) handleSessions(w http.ResponseWriter, req *http.Request) error {
	list, tier, err := r.svc.ListSessions(req.Context(), middleware.SanitizeString(req.URL.Query().Get("type")))
	if err != nil {
		return err
	}
	w.Header().Set(HeaderFilterTier, tier.String())
	return writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": list,
		"count":    len(list),
		"tier":     tier.String(),
	})
}

// GET /v1/sessions/{id}
func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) error {
	id, err := middleware.ValidateSessionID(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	result, err := r.svc.Result(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

// GET /v1/sessions/{id}/artifacts/{artifact}?kind=&format=csv|xlsx
func (r *Router) handleArtifact(w http.ResponseWriter, req *http.Request) error {
	id, err := middleware.ValidateSessionID(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	artifact, err := middleware.ValidateArtifact(chi.URLParam(req, "artifact"))
	if err != nil {
		return err
	}
	format, err := middleware.ValidateFormat(req.URL.Query().Get("format"))
	if err != nil {
		return err
	}
	var kind domain.Kind
	if raw := req.URL.Query().Get("kind"); raw != "" {
		if kind, err = middleware.ValidateKind(raw); err != nil {
			return err
		}
	}
	_, err = r.svc.Save(req.Context(), appanalysis.DownloadCommand{
		SessionID: id,
		Kind:      kind,
		Artifact:  artifact,
		Format:    format,
	}, &AttachmentSaver{W: w})
	return err
}

// POST /v1/sessions/{id}/interpret?refresh=true
func (r *Router) handleInterpret(w http.ResponseWriter, req *http.Request) error {
	if !r.aiSvc.Enabled() {
		return domai.ErrNotConfigured
	}
	id, err := middleware.ValidateSessionID(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	result, err := r.svc.Result(req.Context(), id)
	if err != nil {
		return err
	}
	refresh, _ := strconv.ParseBool(req.URL.Query().Get("refresh"))
	n, err := r.aiSvc.Interpret(req.Context(), result, refresh)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, n)
}

// GET /v1/incidents?limit=
func (r *Router) handleIncidents(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.svc.RecentIncidents(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
