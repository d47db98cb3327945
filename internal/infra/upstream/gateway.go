package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// maxBody caps how much of a response is buffered.
const maxBody = 64 << 20

const defaultTimeout = 30 * time.Second

// Request is one call to the analytics service. Path is relative to the
// gateway base URL.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
	Timeout     time.Duration
}

// Response is what came back, body already read as text.
type Response struct {
	Status int
	URL    string
	Header http.Header
	Body   string
}

// Envelope parses the body. Empty and non-JSON bodies are distinct errors.
func (r *Response) Envelope() (analysis.Envelope, error) {
	return analysis.ParseEnvelope([]byte(r.Body))
}

// Gateway wraps http.Client with a per-call timeout and failure classification.
type Gateway struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger

	maxBody int64
}

func NewGateway(baseURL string, hc *http.Client, log zerolog.Logger) (*Gateway, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid analytics service url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Gateway{base: u, http: hc, log: log}, nil
}

// BaseURL returns the configured service root.
func (g *Gateway) BaseURL() string { return g.base.String() }

func (g *Gateway) resolve(path string, q url.Values) string {
	u := *g.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Do sends the request under its own timeout and reads the whole body as
// text. A non-2xx status returns the response together with an *HTTPError.
func (g *Gateway) Do(ctx context.Context, r Request) (*Response, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target := g.resolve(r.Path, r.Query)
	req, err := http.NewRequestWithContext(ctx, method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, target, err)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	req.Header.Set("Accept", "application/json, */*")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		err = classify(ctx, err)
		g.log.Warn().Err(err).Str("method", method).Str("url", target).
			Str("request_id", reqID).Dur("elapsed", time.Since(start)).Msg("upstream call failed")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.limit()+1))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if int64(len(raw)) > g.limit() {
		return nil, fmt.Errorf("%w: %s %s over %d bytes", analysis.ErrResponseTooLarge, method, target, g.limit())
	}
	out := &Response{Status: resp.StatusCode, URL: target, Header: resp.Header, Body: string(raw)}

	g.log.Debug().Str("method", method).Str("url", target).Str("request_id", reqID).
		Int("status", resp.StatusCode).Int("bytes", len(raw)).Dur("elapsed", time.Since(start)).Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &analysis.HTTPError{
			Status:  resp.StatusCode,
			URL:     target,
			Snippet: describeBody(resp.Header.Get("Content-Type"), out.Body),
		}
	}
	return out, nil
}

func (g *Gateway) limit() int64 {
	if g.maxBody > 0 {
		return g.maxBody
	}
	return maxBody
}

// classify maps transport failures onto the timeout / unreachable split.
// A caller that hung up is reported as canceled, not as an upstream fault.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", analysis.ErrCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", analysis.ErrUpstreamTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", analysis.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", analysis.ErrUpstreamUnreachable, err)
}
