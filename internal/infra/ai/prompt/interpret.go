package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// maxRows bounds how much of a matrix goes into the prompt.
const maxRows = 20

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a statistician explaining a finished analysis to a business reader. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Base every statement on the numbers provided. Never invent variables or values.
- findings is an array of short sentences, most important first, at most 6 items.
- caveats lists data quality concerns (low KMO, non-significant Bartlett test, small samples, low R squared). Use an empty array when there are none.

Schema (example with empty values):
{
  "headline": "<string>",
  "findings": ["<string>"],
  "caveats": ["<string>"]
}`
}

// summary is the compact view of a result sent to the model.
type summary struct {
	AnalysisType       string               `json:"analysis_type"`
	Name               string               `json:"name,omitempty"`
	Rows               int                  `json:"rows"`
	Columns            int                  `json:"columns"`
	Features           []string             `json:"features,omitempty"`
	Components         int                  `json:"components,omitempty"`
	Eigenvalues        []float64            `json:"eigenvalues,omitempty"`
	ExplainedVariance  []float64            `json:"explained_variance,omitempty"`
	CumulativeVariance []float64            `json:"cumulative_variance,omitempty"`
	Loadings           map[string][]float64 `json:"loadings,omitempty"`
	KMO                float64              `json:"kmo,omitempty"`
	BartlettPValue     float64              `json:"bartlett_p_value,omitempty"`
	FitQuality         string               `json:"fit_quality,omitempty"`
	Coefficients       []float64            `json:"coefficients,omitempty"`
	PValues            []float64            `json:"p_values,omitempty"`
	RSquared           float64              `json:"r_squared,omitempty"`
	SegmentLabels      []string             `json:"segment_labels,omitempty"`
	ClusterSizes       []float64            `json:"cluster_sizes,omitempty"`
	Forecast           []float64            `json:"forecast,omitempty"`
}

// GetUserPrompt renders the result's statistics as the user message.
func GetUserPrompt(r analysis.Result) (string, error) {
	s := summary{
		AnalysisType:       r.AnalysisType,
		Name:               r.Name,
		Rows:               r.Dataset.Rows,
		Columns:            r.Dataset.Columns,
		Features:           r.Dataset.FeatureNames,
		Components:         r.Data.NComponents,
		Eigenvalues:        r.Data.Eigenvalues,
		ExplainedVariance:  r.Data.ExplainedVariance,
		CumulativeVariance: r.Data.CumulativeVariance,
		KMO:                r.Data.KMO,
		BartlettPValue:     r.Data.BartlettPValue,
		Coefficients:       r.Data.Coefficients,
		PValues:            r.Data.PValues,
		RSquared:           r.Data.RSquared,
		SegmentLabels:      r.Data.SegmentLabels,
		ClusterSizes:       r.Data.ClusterSizes,
		Forecast:           r.Data.Forecast,
	}
	if r.Data.FitQuality != analysis.UnknownLabel {
		s.FitQuality = r.Data.FitQuality
	}
	if len(r.Data.Loadings) > 0 {
		s.Loadings = make(map[string][]float64)
		for i, row := range r.Data.Loadings {
			if i == maxRows {
				break
			}
			name := fmt.Sprintf("var%d", i+1)
			if i < len(r.Dataset.FeatureNames) {
				name = r.Dataset.FeatureNames[i]
			}
			s.Loadings[name] = row
		}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return "Interpret this analysis result and respond with the JSON per schema.\n" + string(b), nil
}
