package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrNotConfigured means no model credentials were configured.
var ErrNotConfigured = errors.New("ai interpretation not configured")

// ErrInvalidNarrative means the model answered with something other than the requested JSON.
var ErrInvalidNarrative = errors.New("ai returned an invalid narrative")
