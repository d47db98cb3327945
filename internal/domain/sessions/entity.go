package sessions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// Summary is one row of the stored session listing. The remote store owns
// it; the bridge only reads it.
type Summary struct {
	ID           int64    `json:"id"`
	Name         string   `json:"session_name"`
	Filename     string   `json:"filename"`
	Tags         []string `json:"tags"`
	AnalysisType string   `json:"analysis_type"`
	Timestamp    string   `json:"created_at"`
	Rows         int      `json:"rows_count"`
	Columns      int      `json:"columns_count"`
}

var (
	listSources = []analysis.Accessor[[]any]{
		listAt("sessions"),
		listAt("data", "sessions"),
		listAt("data"),
		listAt("items"),
		listAt("results"),
	}
	summaryTypeSources = []analysis.Accessor[string]{
		analysis.StringAt("analysis_type"),
		analysis.StringAt("type"),
		analysis.StringAt("method"),
	}
	summaryTimestampSources = []analysis.Accessor[string]{
		analysis.StringAt("created_at"),
		analysis.StringAt("timestamp"),
		analysis.StringAt("updated_at"),
	}
	summaryRowSources = []analysis.Accessor[int64]{
		analysis.Int64At("rows_count"),
		analysis.Int64At("row_count"),
		analysis.Int64At("rows"),
	}
	summaryColumnSources = []analysis.Accessor[int64]{
		analysis.Int64At("columns_count"),
		analysis.Int64At("column_count"),
		analysis.Int64At("columns"),
	}
)

func listAt(path ...string) analysis.Accessor[[]any] {
	return func(e analysis.Envelope) ([]any, bool) {
		v, ok := e.Lookup(path...)
		if !ok {
			return nil, false
		}
		list, ok := v.([]any)
		return list, ok
	}
}

// ParseList decodes the session listing. The store returns either a bare
// array or an object wrapping it under one of several keys.
func ParseList(body []byte) ([]Summary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, analysis.ErrEmptyResponse
	}
	var items []any
	if trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("%w: %v", analysis.ErrMalformedResponse, err)
		}
	} else {
		env, err := analysis.ParseEnvelope(trimmed)
		if err != nil {
			return nil, err
		}
		if f := env.Failure(); f != nil {
			return nil, f
		}
		items, _ = analysis.First([]analysis.Envelope{env}, listSources)
	}

	out := make([]Summary, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, summaryFrom(analysis.Envelope(obj)))
	}
	return out, nil
}

func summaryFrom(env analysis.Envelope) Summary {
	layers := []analysis.Envelope{env}
	id, _ := analysis.First(layers, analysis.SessionIDSources)
	name, _ := analysis.First(layers, analysis.NameSources)
	filename, _ := analysis.First(layers, analysis.FilenameSources)
	tags, _ := analysis.First(layers, analysis.TagSources)
	kind, _ := analysis.First(layers, summaryTypeSources)
	ts, _ := analysis.First(layers, summaryTimestampSources)
	rows, _ := analysis.First(layers, summaryRowSources)
	cols, _ := analysis.First(layers, summaryColumnSources)
	if tags == nil {
		tags = []string{}
	}
	return Summary{
		ID:           id,
		Name:         name,
		Filename:     filename,
		Tags:         tags,
		AnalysisType: kind,
		Timestamp:    ts,
		Rows:         int(rows),
		Columns:      int(cols),
	}
}
