package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUpstreamUnreachable  = errors.New("upstream unreachable")
	ErrUpstreamTimeout      = errors.New("upstream timeout")
	ErrUpstreamHTTP         = errors.New("upstream http error")
	ErrMalformedResponse    = errors.New("malformed upstream response")
	ErrEmptyResponse        = errors.New("empty upstream response")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrResponseTooLarge     = errors.New("upstream response too large")
	// ErrCanceled means the caller went away before the call finished.
	ErrCanceled = errors.New("request canceled")
	// ErrPartialResult marks a usable result that lacks an optional artifact.
	ErrPartialResult = errors.New("partial result")
)

// HTTPError is a non-2xx status returned by the analytics service.
type HTTPError struct {
	Status  int
	URL     string
	Snippet string
}

func (e *HTTPError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("upstream status %d from %s: %s", e.Status, e.URL, e.Snippet)
	}
	return fmt.Sprintf("upstream status %d from %s", e.Status, e.URL)
}

func (e *HTTPError) Unwrap() error { return ErrUpstreamHTTP }

// UpstreamFailure is a structured `success:false` body. It is surfaced
// verbatim to the caller, hints included.
type UpstreamFailure struct {
	Message     string
	Detail      string
	Hints       []string
	FilePreview []string
}

func (e *UpstreamFailure) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "analysis failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Hints) > 0 {
		msg += " (" + strings.Join(e.Hints, "; ") + ")"
	}
	return msg
}

// MissingField reports a request or response that lacks a field the
// operation cannot do without.
func MissingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredField, name)
}
