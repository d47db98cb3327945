package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/sessions"
)

// Timeouts is the wall-clock budget per call type.
type Timeouts struct {
	Analyze time.Duration
	Detail  time.Duration
	Export  time.Duration
	List    time.Duration
}

// DefaultTimeouts: analyze runs the computation, everything else is a read.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Analyze: 60 * time.Second,
		Detail:  30 * time.Second,
		Export:  30 * time.Second,
		List:    30 * time.Second,
	}
}

// Client speaks the analytics service's endpoints on top of a Gateway.
type Client struct {
	gw         *Gateway
	timeouts   Timeouts
	healthPath string
}

func NewClient(gw *Gateway, t Timeouts, healthPath string) *Client {
	def := DefaultTimeouts()
	if t.Analyze <= 0 {
		t.Analyze = def.Analyze
	}
	if t.Detail <= 0 {
		t.Detail = def.Detail
	}
	if t.Export <= 0 {
		t.Export = def.Export
	}
	if t.List <= 0 {
		t.List = def.List
	}
	if healthPath == "" {
		healthPath = "/api/sessions"
	}
	return &Client{gw: gw, timeouts: t, healthPath: healthPath}
}

// Analyze posts the file and request fields to /api/{kind}/analyze and
// returns the raw envelope. A `success:false` body comes back as
// *analysis.UpstreamFailure.
func (c *Client) Analyze(ctx context.Context, rc analysis.RequestContext, up analysis.Upload) (analysis.Envelope, error) {
	if rc.Kind == "" {
		return nil, analysis.MissingField("kind")
	}
	if up.Data == nil {
		return nil, analysis.MissingField("file")
	}
	body, contentType, err := analyzeForm(rc, up)
	if err != nil {
		return nil, err
	}
	resp, err := c.gw.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/api/" + string(rc.Kind) + "/analyze",
		Body:        body,
		ContentType: contentType,
		Timeout:     c.timeouts.Analyze,
	})
	return envelopeOf(resp, err)
}

func analyzeForm(rc analysis.RequestContext, up analysis.Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := up.Filename
	if filename == "" {
		filename = rc.Filename
	}
	if filename == "" {
		filename = "data.csv"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("build analyze form: %w", err)
	}
	if _, err := io.Copy(fw, up.Data); err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}

	fields := map[string]string{
		"session_name": rc.Name,
		"description":  rc.Description,
		"tags":         strings.Join(rc.Tags, ","),
	}
	for k, v := range rc.Parameters {
		if _, taken := fields[k]; taken {
			continue
		}
		fields[k] = formValue(v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("build analyze form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("build analyze form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func formValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// SessionDetail fetches /api/sessions/{id}.
func (c *Client) SessionDetail(ctx context.Context, id int64) (analysis.Envelope, error) {
	if id <= 0 {
		return nil, analysis.MissingField("session id")
	}
	resp, err := c.gw.Do(ctx, Request{
		Path:    "/api/sessions/" + strconv.FormatInt(id, 10),
		Timeout: c.timeouts.Detail,
	})
	return envelopeOf(resp, err)
}

// Sessions fetches the stored session listing.
func (c *Client) Sessions(ctx context.Context) ([]sessions.Summary, error) {
	resp, err := c.gw.Do(ctx, Request{Path: "/api/sessions", Timeout: c.timeouts.List})
	if err != nil {
		return nil, failureOr(resp, err)
	}
	return sessions.ParseList([]byte(resp.Body))
}

// Export downloads a typed artifact from /api/{kind}/download/{artifact}/{id}.
// The filename comes from Content-Disposition when the service sends one.
func (c *Client) Export(ctx context.Context, kind analysis.Kind, artifact string, id int64) (artifacts.Download, error) {
	if kind == "" {
		return artifacts.Download{}, analysis.MissingField("kind")
	}
	resp, err := c.gw.Do(ctx, Request{
		Path:    fmt.Sprintf("/api/%s/download/%s/%d", kind, artifact, id),
		Timeout: c.timeouts.Export,
	})
	if err != nil {
		return artifacts.Download{}, failureOr(resp, err)
	}
	if strings.TrimSpace(resp.Body) == "" {
		return artifacts.Download{}, analysis.ErrEmptyResponse
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "json") {
		// Some export paths answer 200 with a failure envelope.
		if env, perr := resp.Envelope(); perr == nil {
			if f := env.Failure(); f != nil {
				return artifacts.Download{}, f
			}
		}
	}
	name, ok := artifacts.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if !ok {
		name = artifacts.DefaultFilename(string(kind), artifact, id, artifacts.FormatCSV)
	}
	if ct == "" {
		ct = artifacts.ContentTypeCSV
	}
	return artifacts.Download{Filename: name, ContentType: ct, Data: []byte(resp.Body)}, nil
}

// Ping checks that the service answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.gw.Do(ctx, Request{Method: http.MethodGet, Path: c.healthPath, Timeout: 5 * time.Second})
	return err
}

func envelopeOf(resp *Response, err error) (analysis.Envelope, error) {
	if err != nil {
		return nil, failureOr(resp, err)
	}
	env, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	if f := env.Failure(); f != nil {
		return nil, f
	}
	return env, nil
}

// failureOr prefers a structured failure body (the service answers 4xx
// with `success:false` and hints) over the bare status error.
func failureOr(resp *Response, err error) error {
	if resp == nil {
		return err
	}
	env, perr := resp.Envelope()
	if perr != nil {
		return err
	}
	if f := env.Failure(); f != nil {
		return f
	}
	return err
}
