package sessions

import (
	"errors"
	"testing"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

func ids(list []Summary) []int64 {
	out := make([]int64, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func sameIDs(a []Summary, want ...int64) bool {
	got := ids(a)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFilterWithTier(t *testing.T) {
	list := []Summary{
		{ID: 1, AnalysisType: "factor", Name: "Survey"},
		{ID: 2, AnalysisType: "Factor", Name: "Survey 2"},
		{ID: 3, AnalysisType: "", Name: "因子分析 Q3", Filename: "q3.csv"},
		{ID: 4, AnalysisType: "", Name: "misc", Filename: "PCA_input.xlsx"},
		{ID: 5, AnalysisType: "rfm", Name: "customers"},
	}
	m := DefaultMatcher()

	tests := []struct {
		name      string
		requested string
		wantTier  Tier
		wantIDs   []int64
	}{
		{"empty request returns all", "", TierAll, []int64{1, 2, 3, 4, 5}},
		{"exact match", "factor", TierExact, []int64{1}},
		{"case insensitive", "RFM", TierCaseInsensitive, []int64{5}},
		{"heuristic on filename", "pca", TierHeuristic, []int64{4}},
		{"heuristic via alias", "principal_component_analysis", TierHeuristic, []int64{4}},
		{"not allowlisted", "cluster", TierNone, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier := m.FilterWithTier(list, tt.requested)
			if tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tier, tt.wantTier)
			}
			if !sameIDs(got, tt.wantIDs...) {
				t.Errorf("ids = %v, want %v", ids(got), tt.wantIDs)
			}
		})
	}
}

func TestFilterHeuristicLocalizedKeyword(t *testing.T) {
	list := []Summary{{ID: 3, Name: "因子分析 Q3"}, {ID: 9, Name: "other"}}
	got, tier := DefaultMatcher().FilterWithTier(list, "factor")
	if tier != TierHeuristic || !sameIDs(got, 3) {
		t.Fatalf("got %v tier %s", ids(got), tier)
	}
}

func TestFilterNeverReturnsNil(t *testing.T) {
	if got := Filter(nil, "regression"); got == nil {
		t.Fatal("Filter returned nil")
	}
}

func TestNewMatcherRejectsEntryWithoutKind(t *testing.T) {
	if _, err := NewMatcher([]byte("kinds:\n  - keywords: [x]\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseList(t *testing.T) {
	bodies := map[string]string{
		"bare array": `[{"id": 1, "session_name": "a", "analysis_type": "pca", "tags": "x, y", "rows_count": 10}]`,
		"wrapped":    `{"success": true, "data": {"sessions": [{"session_id": "1", "name": "a", "type": "pca", "tags": ["x", "y"], "rows": 10}]}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			list, err := ParseList([]byte(body))
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 1 {
				t.Fatalf("len = %d", len(list))
			}
			s := list[0]
			if s.ID != 1 || s.Name != "a" || s.AnalysisType != "pca" || s.Rows != 10 || len(s.Tags) != 2 {
				t.Errorf("summary = %+v", s)
			}
		})
	}
}

func TestParseListErrors(t *testing.T) {
	if _, err := ParseList(nil); !errors.Is(err, analysis.ErrEmptyResponse) {
		t.Errorf("empty: %v", err)
	}
	if _, err := ParseList([]byte("[oops")); !errors.Is(err, analysis.ErrMalformedResponse) {
		t.Errorf("malformed: %v", err)
	}
	_, err := ParseList([]byte(`{"success": false, "error": "store offline"}`))
	var f *analysis.UpstreamFailure
	if !errors.As(err, &f) || f.Message != "store offline" {
		t.Errorf("failure: %v", err)
	}
}
