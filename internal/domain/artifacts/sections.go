package artifacts

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

// section is one titled table of an export. CSV writes sections one after
// another; XLSX gives each its own sheet.
type section struct {
	Title string
	Rows  [][]string
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func f3(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// buildSections lays out the sections an artifact kind asks for. It fails
// rather than emit a table whose rows do not line up.
func buildSections(r analysis.Result, kind string) ([]section, error) {
	var (
		tables []section
		err    error
	)
	add := func(build func(analysis.Result) (*section, error)) {
		if err != nil {
			return
		}
		var s *section
		if s, err = build(r); s != nil {
			tables = append(tables, *s)
		}
	}

	switch strings.ToLower(kind) {
	case KindLoadings:
		add(loadingsSection)
	case KindEigenvalues, KindVariance:
		add(componentSection)
	case KindScores:
		add(scoresSection)
	default:
		add(componentSection)
		add(loadingsSection)
		add(scoresSection)
		add(coefficientSection)
		add(segmentSection)
		add(forecastSection)
	}
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no %s data to export", ErrInconsistentResult, kind)
	}
	return append([]section{metadataSection(r)}, tables...), nil
}

func metadataSection(r analysis.Result) section {
	return section{
		Title: "Metadata",
		Rows: [][]string{
			{"Analysis Type", r.AnalysisType},
			{"Session ID", strconv.FormatInt(r.SessionID, 10)},
			{"Name", r.Name},
			{"Description", r.Description},
			{"Filename", r.Filename},
			{"Timestamp", r.Timestamp},
			{"Tags", strings.Join(r.Tags, "; ")},
			{"Rows", strconv.Itoa(r.Dataset.Rows)},
			{"Columns", strconv.Itoa(r.Dataset.Columns)},
			{"Components", strconv.Itoa(r.Data.NComponents)},
			{"Fit Quality", r.Data.FitQuality},
		},
	}
}

// componentSection is the per-component table: index, eigenvalue (4dp),
// explained variance % (2dp), cumulative % (2dp). Missing cumulative values
// are the running sum of the explained column.
func componentSection(r analysis.Result) (*section, error) {
	eig, exp, cum := r.Data.Eigenvalues, r.Data.ExplainedVariance, r.Data.CumulativeVariance
	n := len(eig)
	if n == 0 {
		n = len(exp)
	}
	if n == 0 {
		return nil, nil
	}
	if len(exp) > 0 && len(exp) != n {
		return nil, fmt.Errorf("%w: %d eigenvalues but %d explained variance values", ErrInconsistentResult, n, len(exp))
	}
	if len(cum) > 0 && len(cum) != n {
		return nil, fmt.Errorf("%w: %d components but %d cumulative variance values", ErrInconsistentResult, n, len(cum))
	}

	rows := [][]string{{"Component", "Eigenvalue", "Variance (%)", "Cumulative (%)"}}
	running := 0.0
	for i := 0; i < n; i++ {
		row := []string{strconv.Itoa(i + 1), "", "", ""}
		if len(eig) > 0 {
			row[1] = f4(eig[i])
		}
		if len(exp) > 0 {
			running += exp[i]
			row[2] = f2(exp[i])
		}
		switch {
		case len(cum) > 0:
			row[3] = f2(cum[i])
		case len(exp) > 0:
			row[3] = f2(running)
		}
		rows = append(rows, row)
	}
	return &section{Title: "Component Statistics", Rows: rows}, nil
}

// loadingsSection is the variable-by-component matrix (3dp) with a trailing
// communality column: the supplied communalities, else the row sum of
// squared loadings.
func loadingsSection(r analysis.Result) (*section, error) {
	load := r.Data.Loadings
	if len(load) == 0 {
		return nil, nil
	}
	width := len(load[0])
	for i, row := range load {
		if len(row) != width {
			return nil, fmt.Errorf("%w: loadings row %d has %d values, want %d", ErrInconsistentResult, i+1, len(row), width)
		}
	}
	names := r.Dataset.FeatureNames
	if len(names) > 0 && len(names) != len(load) {
		return nil, fmt.Errorf("%w: %d feature names for %d loadings rows", ErrInconsistentResult, len(names), len(load))
	}
	comm := r.Data.Communalities
	if len(comm) > 0 && len(comm) != len(load) {
		return nil, fmt.Errorf("%w: %d communalities for %d loadings rows", ErrInconsistentResult, len(comm), len(load))
	}

	header := []string{"Variable"}
	for j := 0; j < width; j++ {
		header = append(header, fmt.Sprintf("Component %d", j+1))
	}
	header = append(header, "Communality")

	rows := [][]string{header}
	for i, values := range load {
		row := []string{rowLabel(names, i, "Var")}
		sumSq := 0.0
		for _, v := range values {
			row = append(row, f3(v))
			sumSq += v * v
		}
		if len(comm) > 0 {
			sumSq = comm[i]
		}
		rows = append(rows, append(row, f3(sumSq)))
	}
	return &section{Title: "Loadings", Rows: rows}, nil
}

func scoresSection(r analysis.Result) (*section, error) {
	scores := r.Data.Scores
	if len(scores) == 0 {
		return nil, nil
	}
	width := len(scores[0])
	for i, row := range scores {
		if len(row) != width {
			return nil, fmt.Errorf("%w: scores row %d has %d values, want %d", ErrInconsistentResult, i+1, len(row), width)
		}
	}
	names := r.Dataset.SampleNames
	if len(names) > 0 && len(names) != len(scores) {
		return nil, fmt.Errorf("%w: %d sample names for %d score rows", ErrInconsistentResult, len(names), len(scores))
	}
	header := []string{"Sample"}
	for j := 0; j < width; j++ {
		header = append(header, fmt.Sprintf("Component %d", j+1))
	}
	rows := [][]string{header}
	for i, values := range scores {
		row := []string{rowLabel(names, i, "Sample")}
		for _, v := range values {
			row = append(row, f4(v))
		}
		rows = append(rows, row)
	}
	return &section{Title: "Scores", Rows: rows}, nil
}

func coefficientSection(r analysis.Result) (*section, error) {
	coef := r.Data.Coefficients
	if len(coef) == 0 {
		return nil, nil
	}
	pv := r.Data.PValues
	if len(pv) > 0 && len(pv) != len(coef) {
		return nil, fmt.Errorf("%w: %d p-values for %d coefficients", ErrInconsistentResult, len(pv), len(coef))
	}
	names := r.Dataset.FeatureNames
	switch len(coef) {
	case len(names) + 1:
		names = append([]string{"Intercept"}, names...)
	case len(names):
	default:
		names = nil
	}
	rows := [][]string{{"Term", "Coefficient", "P-Value"}}
	for i, c := range coef {
		row := []string{rowLabel(names, i, "b"), f4(c), ""}
		if len(pv) > 0 {
			row[2] = f4(pv[i])
		}
		rows = append(rows, row)
	}
	rows = append(rows, []string{"R-Squared", f4(r.Data.RSquared), ""})
	rows = append(rows, []string{"Adj. R-Squared", f4(r.Data.AdjRSquared), ""})
	return &section{Title: "Coefficients", Rows: rows}, nil
}

func segmentSection(r analysis.Result) (*section, error) {
	sizes := r.Data.ClusterSizes
	if len(sizes) == 0 {
		return nil, nil
	}
	labels := r.Data.SegmentLabels
	if len(labels) != len(sizes) {
		labels = nil
	}
	rows := [][]string{{"Segment", "Size"}}
	for i, s := range sizes {
		rows = append(rows, []string{rowLabel(labels, i, "Segment"), strconv.FormatFloat(math.Round(s), 'f', 0, 64)})
	}
	return &section{Title: "Segments", Rows: rows}, nil
}

func forecastSection(r analysis.Result) (*section, error) {
	fc, res := r.Data.Forecast, r.Data.Residuals
	n := len(fc)
	if len(res) > n {
		n = len(res)
	}
	if n == 0 {
		return nil, nil
	}
	rows := [][]string{{"Step", "Forecast", "Residual"}}
	for i := 0; i < n; i++ {
		row := []string{strconv.Itoa(i + 1), "", ""}
		if i < len(fc) {
			row[1] = f4(fc[i])
		}
		if i < len(res) {
			row[2] = f4(res[i])
		}
		rows = append(rows, row)
	}
	return &section{Title: "Forecast", Rows: rows}, nil
}

func rowLabel(names []string, i int, prefix string) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("%s%d", prefix, i+1)
}
