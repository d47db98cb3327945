package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeouts Timeouts) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw, err := NewGateway(srv.URL, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return NewClient(gw, timeouts, ""), srv
}

func TestNewGatewayRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:5000", "://x"} {
		if _, err := NewGateway(u, nil, zerolog.Nop()); err == nil {
			t.Errorf("NewGateway(%q) accepted", u)
		}
	}
}

func TestAnalyzeSendsMultipartForm(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/factor/analyze" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("session_name"); got != "survey" {
			t.Errorf("session_name = %q", got)
		}
		if got := r.FormValue("tags"); got != "a,b" {
			t.Errorf("tags = %q", got)
		}
		if got := r.FormValue("n_factors"); got != "3" {
			t.Errorf("n_factors = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		b, _ := io.ReadAll(f)
		if hdr.Filename != "survey.csv" || string(b) != "x,y\n1,2\n" {
			t.Errorf("file = %s %q", hdr.Filename, b)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success": true, "session_id": 42, "analysis_data": {"eigenvalues": [2.1]}}`)
	}, Timeouts{})

	env, err := c.Analyze(context.Background(), analysis.RequestContext{
		Kind:       analysis.KindFactor,
		Name:       "survey",
		Tags:       []string{"a", "b"},
		Parameters: map[string]any{"n_factors": 3},
	}, analysis.Upload{Filename: "survey.csv", Data: strings.NewReader("x,y\n1,2\n")})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if id, _ := analysis.First([]analysis.Envelope{env}, analysis.SessionIDSources); id != 42 {
		t.Errorf("session id = %d", id)
	}
}

func TestAnalyzeMissingFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, Timeouts{})
	if _, err := c.Analyze(context.Background(), analysis.RequestContext{}, analysis.Upload{Data: strings.NewReader("x")}); !errors.Is(err, analysis.ErrMissingRequiredField) {
		t.Errorf("no kind: %v", err)
	}
	if _, err := c.Analyze(context.Background(), analysis.RequestContext{Kind: analysis.KindPCA}, analysis.Upload{}); !errors.Is(err, analysis.ErrMissingRequiredField) {
		t.Errorf("no file: %v", err)
	}
}

func TestGatewayTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Timeouts{Detail: 50 * time.Millisecond})

	_, err := c.SessionDetail(context.Background(), 7)
	if !errors.Is(err, analysis.ErrUpstreamTimeout) {
		t.Fatalf("err = %v, want ErrUpstreamTimeout", err)
	}
}

func TestGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := NewGateway(url, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewClient(gw, Timeouts{}, "").SessionDetail(context.Background(), 7)
	if !errors.Is(err, analysis.ErrUpstreamUnreachable) {
		t.Fatalf("err = %v, want ErrUpstreamUnreachable", err)
	}
}

func TestSessionDetailBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ctype  string
		body   string
		check  func(t *testing.T, err error)
	}{
		{"empty body", 200, "application/json", "", func(t *testing.T, err error) {
			if !errors.Is(err, analysis.ErrEmptyResponse) {
				t.Errorf("err = %v", err)
			}
		}},
		{"not json", 200, "text/plain", "ok", func(t *testing.T, err error) {
			if !errors.Is(err, analysis.ErrMalformedResponse) {
				t.Errorf("err = %v", err)
			}
		}},
		{"html error page", 502, "text/html", "<html><head><title>Bad Gateway</title></head><body><h1>upstream down</h1></body></html>", func(t *testing.T, err error) {
			var he *analysis.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *HTTPError", err)
			}
			if he.Status != 502 || he.Snippet != "Bad Gateway - upstream down" {
				t.Errorf("http error = %+v", he)
			}
			if !errors.Is(err, analysis.ErrUpstreamHTTP) {
				t.Error("HTTPError should unwrap to ErrUpstreamHTTP")
			}
		}},
		{"structured failure", 400, "application/json", `{"success": false, "error": "bad file", "hints": ["use UTF-8"]}`, func(t *testing.T, err error) {
			var f *analysis.UpstreamFailure
			if !errors.As(err, &f) {
				t.Fatalf("err = %v, want *UpstreamFailure", err)
			}
			if f.Message != "bad file" || len(f.Hints) != 1 {
				t.Errorf("failure = %+v", f)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, Timeouts{})
			_, err := c.SessionDetail(context.Background(), 7)
			tt.check(t, err)
		})
	}
}

func TestExport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pca/download/loadings/7":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="pca_loadings_7.csv"`)
			io.WriteString(w, "a,b\n")
		case "/api/pca/download/scores/7":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"success": false, "error": "scores not stored"}`)
		case "/api/pca/download/results/7":
			io.WriteString(w, "x\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, Timeouts{})
	ctx := context.Background()

	d, err := c.Export(ctx, analysis.KindPCA, "loadings", 7)
	if err != nil {
		t.Fatalf("Export loadings: %v", err)
	}
	if d.Filename != "pca_loadings_7.csv" || string(d.Data) != "a,b\n" || d.Generated {
		t.Errorf("download = %+v", d)
	}

	var f *analysis.UpstreamFailure
	if _, err := c.Export(ctx, analysis.KindPCA, "scores", 7); !errors.As(err, &f) {
		t.Errorf("scores: err = %v, want *UpstreamFailure", err)
	}

	d, err = c.Export(ctx, analysis.KindPCA, "results", 7)
	if err != nil {
		t.Fatal(err)
	}
	if d.Filename != "pca_results_7.csv" {
		t.Errorf("default filename = %s", d.Filename)
	}

	if _, err := c.Export(ctx, analysis.KindPCA, "variance", 7); !errors.Is(err, analysis.ErrUpstreamHTTP) {
		t.Errorf("404: err = %v", err)
	}
}

func TestSessions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"sessions": [{"id": 1, "analysis_type": "pca"}, {"id": 2, "analysis_type": "rfm"}]}`)
	}, Timeouts{})
	list, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[1].AnalysisType != "rfm" {
		t.Errorf("list = %+v", list)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestDescribeBodyTruncates(t *testing.T) {
	got := describeBody("text/plain", strings.Repeat("x ", 400))
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != snippetLimit+3 {
		t.Errorf("len = %d", len([]rune(got)))
	}
}

func TestGatewayRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "padding": "0123456789"}`)
	}))
	t.Cleanup(srv.Close)
	gw, err := NewGateway(srv.URL, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	gw.maxBody = 16

	_, err = gw.Do(context.Background(), Request{Path: "/api/sessions/1"})
	if !errors.Is(err, analysis.ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}

	gw.maxBody = 1 << 10
	resp, err := gw.Do(context.Background(), Request{Path: "/api/sessions/1"})
	if err != nil || !strings.Contains(resp.Body, "padding") {
		t.Fatalf("under the limit: resp = %+v, err = %v", resp, err)
	}
}

func TestGatewayCallerCanceled(t *testing.T) {
	entered := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	}, Timeouts{Detail: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()
	_, err := c.SessionDetail(ctx, 42)
	if !errors.Is(err, analysis.ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if errors.Is(err, analysis.ErrUpstreamUnreachable) || errors.Is(err, analysis.ErrUpstreamTimeout) {
		t.Errorf("canceled call reported as upstream fault: %v", err)
	}
}
