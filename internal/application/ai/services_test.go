package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) Interpret(ctx context.Context, system, user string) (string, error) {
	if system == "" || user == "" {
		return "", errors.New("empty prompt")
	}
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	return reply, nil
}

type memRepo struct{ latest map[int64]*ai.Interpretation }

func (m *memRepo) Save(ctx context.Context, in *ai.Interpretation) error {
	if m.latest == nil {
		m.latest = map[int64]*ai.Interpretation{}
	}
	cp := *in
	m.latest[in.SessionID] = &cp
	return nil
}

func (m *memRepo) LatestBySession(ctx context.Context, sessionID int64) (*ai.Interpretation, error) {
	return m.latest[sessionID], nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

func sampleResult() analysis.Result {
	r, _ := analysis.Canonicalize(analysis.Envelope{}, analysis.RequestContext{Kind: analysis.KindFactor})
	r.SessionID = 42
	r.Data.Eigenvalues = []float64{2.1, 1.3}
	return r
}

func TestInterpretNotConfigured(t *testing.T) {
	var nilSvc *Service
	if nilSvc.Enabled() {
		t.Error("nil service reports enabled")
	}
	if _, err := NewService(nil, "").Interpret(context.Background(), sampleResult(), false); !errors.Is(err, ai.ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestInterpretParsesNarrative(t *testing.T) {
	client := &scriptedClient{replies: []string{"  {\"headline\": \"Two factors\", \"findings\": [\"F1 carries price\"]}\n"}}
	n, err := NewService(client, "m1").Interpret(context.Background(), sampleResult(), false)
	if err != nil {
		t.Fatal(err)
	}
	if n.Headline != "Two factors" || n.SessionID != 42 || n.Model != "m1" || n.Caveats == nil {
		t.Errorf("narrative = %+v", n)
	}
}

func TestInterpretRejectsInvalidReplies(t *testing.T) {
	for _, reply := range []string{"not json", `{"findings": ["x"]}`} {
		client := &scriptedClient{replies: []string{reply}}
		if _, err := NewService(client, "m1").Interpret(context.Background(), sampleResult(), false); !errors.Is(err, ai.ErrInvalidNarrative) {
			t.Errorf("reply %q: err = %v", reply, err)
		}
	}
}

func TestInterpretReusesStoredNarrative(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"headline": "first"}`, `{"headline": "second"}`}}
	repo := &memRepo{}
	svc := NewService(client, "m1")
	svc.Repo = repo
	svc.Clock = fixedClock{}
	ctx := context.Background()

	n, err := svc.Interpret(ctx, sampleResult(), false)
	if err != nil || n.Headline != "first" {
		t.Fatalf("first = %+v, %v", n, err)
	}
	stored := repo.latest[42]
	if stored == nil || stored.ID == "" || !stored.CreatedAt.Equal(fixedClock{}.Now()) {
		t.Fatalf("stored = %+v", stored)
	}

	n, err = svc.Interpret(ctx, sampleResult(), false)
	if err != nil || n.Headline != "first" || client.calls != 1 {
		t.Errorf("cached = %+v calls = %d, %v", n, client.calls, err)
	}

	n, err = svc.Interpret(ctx, sampleResult(), true)
	if err != nil || n.Headline != "second" || client.calls != 2 {
		t.Errorf("refresh = %+v calls = %d, %v", n, client.calls, err)
	}
}
