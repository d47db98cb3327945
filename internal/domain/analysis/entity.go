package analysis

// Kind enum
type Kind string

const (
	KindFactor     Kind = "factor"
	KindPCA        Kind = "pca"
	KindRFM        Kind = "rfm"
	KindRegression Kind = "regression"
	KindTimeSeries Kind = "timeseries"
)

// Kinds lists every analysis kind the bridge knows how to route.
func Kinds() []Kind {
	return []Kind{KindFactor, KindPCA, KindRFM, KindRegression, KindTimeSeries}
}

// UnknownLabel is the sentinel for classification fields the service did not report.
const UnknownLabel = "unknown"

// State of a reconciliation cycle.
type State string

const (
	StateFreshOnly          State = "fresh_only"
	StateDetailFetchPending State = "detail_fetch_pending"
	StateReconciled         State = "reconciled"
	StateReconciledPartial  State = "reconciled_partial"
)

// ArtifactVisualization is the only optional artifact reconciliation fills in.
const ArtifactVisualization = "visualization"

// Payload holds the numeric output of one analysis run. Which fields are
// populated depends on the analysis kind; the rest stay at their zero
// defaults (empty slices, 0, UnknownLabel).
type Payload struct {
	NComponents        int         `json:"n_components"`
	Eigenvalues        []float64   `json:"eigenvalues"`
	ExplainedVariance  []float64   `json:"explained_variance"`
	CumulativeVariance []float64   `json:"cumulative_variance"`
	Loadings           [][]float64 `json:"loadings"`
	Communalities      []float64   `json:"communalities"`
	Scores             [][]float64 `json:"scores"`

	KMO               float64 `json:"kmo"`
	BartlettChiSquare float64 `json:"bartlett_chi_square"`
	BartlettPValue    float64 `json:"bartlett_p_value"`
	FitQuality        string  `json:"fit_quality"`

	Coefficients []float64 `json:"coefficients"`
	PValues      []float64 `json:"p_values"`
	RSquared     float64   `json:"r_squared"`
	AdjRSquared  float64   `json:"adj_r_squared"`

	ClusterCenters [][]float64 `json:"cluster_centers"`
	ClusterSizes   []float64   `json:"cluster_sizes"`
	SegmentLabels  []string    `json:"segment_labels"`

	Forecast  []float64 `json:"forecast"`
	Residuals []float64 `json:"residuals"`
}

// Dataset describes the shape of the analysed input.
type Dataset struct {
	Rows         int      `json:"rows"`
	Columns      int      `json:"columns"`
	FeatureNames []string `json:"feature_names"`
	SampleNames  []string `json:"sample_names"`
}

// Result is the canonical AnalysisResult. Every field carries a defined
// value after canonicalization; nothing is nil.
type Result struct {
	SessionID    int64          `json:"sessionId"`
	AnalysisType string         `json:"analysis_type"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Tags         []string       `json:"tags"`
	Timestamp    string         `json:"timestamp"`
	Filename     string         `json:"filename"`
	PlotBase64   string         `json:"plot_base64"`
	Data         Payload        `json:"analysis_data"`
	Dataset      Dataset        `json:"dataset"`
	Parameters   map[string]any `json:"parameters"`

	State            State    `json:"reconciliation"`
	MissingArtifacts []string `json:"missing_artifacts"`
	Stale            bool     `json:"stale,omitempty"`
}

// HasVisualization reports whether the image artifact is present.
func (r Result) HasVisualization() bool { return r.PlotBase64 != "" }

// Partial reports whether the result is usable but lacks an optional artifact.
func (r Result) Partial() bool { return r.State == StateReconciledPartial }

// RequestContext carries what the UI sent with the analyze request. It only
// fills a field when every envelope candidate for it is empty.
type RequestContext struct {
	Kind        Kind
	Name        string
	Description string
	Tags        []string
	Filename    string
	Parameters  map[string]any
}
