package ai

import "context"

// Client sends a prepared prompt to a model and returns its raw JSON answer.
type Client interface {
	Interpret(ctx context.Context, system, user string) (string, error)
}

// Narrative is the plain-language reading of one analysis result.
type Narrative struct {
	SessionID int64    `json:"session_id"`
	Headline  string   `json:"headline"`
	Findings  []string `json:"findings"`
	Caveats   []string `json:"caveats"`
	Model     string   `json:"model,omitempty"`
}
