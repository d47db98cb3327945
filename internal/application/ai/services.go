package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/application"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/infra/ai/prompt"
)

// Service writes plain-language interpretations of canonical results.
type Service struct {
	client ai.Client
	model  string

	// Repo is optional; when set, narratives are stored and reused.
	Repo  ai.Repository
	Clock application.Clock
	Log   zerolog.Logger
}

// NewService returns a service; a nil client makes every call fail with
// ai.ErrNotConfigured.
func NewService(client ai.Client, model string) *Service {
	return &Service{client: client, model: model, Clock: application.SystemClock{}, Log: zerolog.Nop()}
}

func (s *Service) Enabled() bool { return s != nil && s.client != nil }

// Interpret returns the stored narrative for the session unless refresh is
// set, otherwise asks the model and stores the answer.
func (s *Service) Interpret(ctx context.Context, r analysis.Result, refresh bool) (ai.Narrative, error) {
	if !s.Enabled() {
		return ai.Narrative{}, ai.ErrNotConfigured
	}
	if !refresh && s.Repo != nil && r.SessionID > 0 {
		stored, err := s.Repo.LatestBySession(ctx, r.SessionID)
		if err != nil {
			s.Log.Warn().Err(err).Int64("session_id", r.SessionID).Msg("failed to load stored interpretation")
		} else if stored != nil {
			if n, err := decodeNarrative(stored.Result); err == nil {
				n.SessionID = r.SessionID
				n.Model = stored.Model
				return n, nil
			}
		}
	}

	user, err := prompt.GetUserPrompt(r)
	if err != nil {
		return ai.Narrative{}, err
	}
	raw, err := s.client.Interpret(ctx, prompt.GetSystemPrompt(), user)
	if err != nil {
		return ai.Narrative{}, err
	}
	n, err := decodeNarrative(raw)
	if err != nil {
		return ai.Narrative{}, err
	}
	n.SessionID = r.SessionID
	n.Model = s.model

	if s.Repo != nil && r.SessionID > 0 {
		b, _ := json.Marshal(n)
		rec := &ai.Interpretation{
			ID:        uuid.NewString(),
			SessionID: r.SessionID,
			Model:     s.model,
			Result:    string(b),
			CreatedAt: s.Clock.Now().UTC(),
		}
		if err := s.Repo.Save(ctx, rec); err != nil {
			s.Log.Warn().Err(err).Int64("session_id", r.SessionID).Msg("failed to store interpretation")
		}
	}
	return n, nil
}

func decodeNarrative(raw string) (ai.Narrative, error) {
	var n ai.Narrative
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &n); err != nil {
		return ai.Narrative{}, fmt.Errorf("%w: %v", ai.ErrInvalidNarrative, err)
	}
	if strings.TrimSpace(n.Headline) == "" {
		return ai.Narrative{}, fmt.Errorf("%w: missing headline", ai.ErrInvalidNarrative)
	}
	if n.Findings == nil {
		n.Findings = []string{}
	}
	if n.Caveats == nil {
		n.Caveats = []string{}
	}
	return n, nil
}
