package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is a decoded upstream JSON object exactly as received. It never
// travels past canonicalization.
type Envelope map[string]any

// ParseEnvelope decodes a response body. An empty body and a body that is
// not a JSON object are reported as distinct conditions.
func ParseEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyResponse
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, want object", ErrMalformedResponse, v)
	}
	return Envelope(obj), nil
}

// Lookup walks a key path. Intermediate values that are JSON-encoded
// objects stored as strings (the session store keeps results as text) are
// decoded on the way down.
func (e Envelope) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(e)
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		next, ok := obj[key]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Success reads the boolean discriminator. The second value is false when
// the envelope carries none.
func (e Envelope) Success() (bool, bool) {
	v, ok := e.Lookup("success")
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "ok":
			return true, true
		case "false", "0":
			return false, true
		}
	}
	return false, false
}

// Failure extracts the structured failure carried by a `success:false`
// envelope, or nil when the envelope does not report one.
func (e Envelope) Failure() *UpstreamFailure {
	ok, present := e.Success()
	if present && ok {
		return nil
	}
	if !present {
		// Without a discriminator only an explicit error field counts.
		if _, hasErr := First([]Envelope{e}, failureMessageSources[:2]); !hasErr {
			return nil
		}
	}
	msg, _ := First([]Envelope{e}, failureMessageSources)
	f := &UpstreamFailure{Message: msg}
	f.Detail, _ = First([]Envelope{e}, failureDetailSources)
	f.Hints, _ = First([]Envelope{e}, failureHintSources)
	f.FilePreview, _ = First([]Envelope{e}, filePreviewSources)
	if f.Hints == nil {
		f.Hints = []string{}
	}
	if f.FilePreview == nil {
		f.FilePreview = []string{}
	}
	return f
}

var (
	failureMessageSources = []Accessor[string]{
		StringAt("error"),
		StringAt("error", "message"),
		StringAt("message"),
	}
	failureDetailSources = []Accessor[string]{
		StringAt("detail"),
		StringAt("error", "detail"),
		StringAt("details"),
	}
	failureHintSources = []Accessor[[]string]{
		LinesAt("hints"),
		LinesAt("error", "hints"),
		LinesAt("debug", "hints"),
	}
	filePreviewSources = []Accessor[[]string]{
		LinesAt("debug", "filePreview"),
		LinesAt("debug", "file_preview"),
	}
)
