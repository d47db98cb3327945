package analysis

import "strings"

// Source tables. Each canonical field lists every location it has been
// observed under, fresh-analyze shapes first, session-detail shapes after.
var (
	SessionIDSources = []Accessor[int64]{
		Int64At("session_id"),
		Int64At("sessionId"),
		Int64At("session", "id"),
		Int64At("session", "session_id"),
		Int64At("data", "session_id"),
		Int64At("analysis_data", "session_id"),
		Int64At("id"),
	}
	VisualizationSources = []Accessor[string]{
		StringAt("visualization", "plot_image"),
		StringAt("plot_base64"),
		StringAt("data", "plot_image"),
		StringAt("analysis_data", "plot_image"),
		StringAt("data", "plot_base64"),
		StringAt("analysis_data", "plot_base64"),
		StringAt("session", "plot_image"),
		StringAt("visualization", "image"),
	}
	AnalysisTypeSources = []Accessor[string]{
		StringAt("analysis_type"),
		StringAt("session", "analysis_type"),
		StringAt("data", "analysis_type"),
		StringAt("analysis_data", "analysis_type"),
		StringAt("session", "type"),
		StringAt("type"),
	}
	NameSources = []Accessor[string]{
		StringAt("session_name"),
		StringAt("session", "session_name"),
		StringAt("session", "name"),
		StringAt("data", "session_name"),
		StringAt("name"),
	}
	DescriptionSources = []Accessor[string]{
		StringAt("description"),
		StringAt("session", "description"),
		StringAt("data", "description"),
	}
	TagSources = []Accessor[[]string]{
		StringsAt("tags"),
		StringsAt("session", "tags"),
		StringsAt("data", "tags"),
	}
	TimestampSources = []Accessor[string]{
		StringAt("timestamp"),
		StringAt("created_at"),
		StringAt("session", "created_at"),
		StringAt("session", "timestamp"),
		StringAt("data", "timestamp"),
		StringAt("analysis_data", "timestamp"),
	}
	FilenameSources = []Accessor[string]{
		StringAt("filename"),
		StringAt("session", "filename"),
		StringAt("data", "filename"),
		StringAt("file_name"),
		StringAt("session", "file_name"),
	}
	ParameterSources = []Accessor[map[string]any]{
		MapAt("parameters"),
		MapAt("session", "parameters"),
		MapAt("data", "parameters"),
		MapAt("analysis_data", "parameters"),
	}

	RowCountSources = []Accessor[int64]{
		Int64At("dataset_info", "rows"),
		Int64At("data_info", "rows"),
		Int64At("data", "data_info", "rows"),
		Int64At("session", "rows_count"),
		Int64At("rows_count"),
		Int64At("analysis_data", "n_samples"),
		Int64At("data", "n_samples"),
		Int64At("n_samples"),
	}
	ColumnCountSources = []Accessor[int64]{
		Int64At("dataset_info", "columns"),
		Int64At("data_info", "columns"),
		Int64At("data", "data_info", "columns"),
		Int64At("session", "columns_count"),
		Int64At("columns_count"),
		Int64At("analysis_data", "n_features"),
		Int64At("data", "n_features"),
		Int64At("n_features"),
	}
	FeatureNameSources = append([]Accessor[[]string]{
		StringsAt("dataset_info", "feature_names"),
		StringsAt("data_info", "feature_names"),
	}, append(
		payloadPaths(StringsAt, "feature_names", "variables", "columns"),
		KeysAt("analysis_data", "loadings"),
		KeysAt("data", "loadings"),
	)...)
	SampleNameSources = append([]Accessor[[]string]{
		StringsAt("dataset_info", "sample_names"),
		StringsAt("data_info", "sample_names"),
	}, payloadPaths(StringsAt, "sample_names", "index")...)

	NComponentsSources        = payloadPaths(Int64At, "n_components", "n_factors")
	EigenvalueSources         = payloadPaths(FloatsAt, "eigenvalues")
	ExplainedVarianceSources  = payloadPaths(FloatsAt, "explained_variance", "explained_variance_ratio", "variance_explained")
	CumulativeVarianceSources = payloadPaths(FloatsAt, "cumulative_variance", "cumulative_variance_ratio")
	LoadingSources            = payloadPaths(MatrixAt, "loadings", "factor_loadings", "components")
	CommunalitySources        = payloadPaths(FloatsAt, "communalities")
	ScoreSources              = payloadPaths(MatrixAt, "scores", "factor_scores", "transformed")
	KMOSources                = payloadPaths(FloatAt, "kmo", "kmo_score")
	BartlettChiSquareSources  = payloadPaths(FloatAt, "bartlett_chi_square", "bartlett_statistic")
	BartlettPValueSources     = payloadPaths(FloatAt, "bartlett_p_value", "bartlett_pvalue")
	FitQualitySources         = payloadPaths(StringAt, "fit_quality", "model_fit", "kmo_interpretation")
	CoefficientSources        = payloadPaths(FloatsAt, "coefficients", "coef")
	PValueSources             = payloadPaths(FloatsAt, "p_values", "pvalues")
	RSquaredSources           = payloadPaths(FloatAt, "r_squared", "r2")
	AdjRSquaredSources        = payloadPaths(FloatAt, "adj_r_squared", "adjusted_r2")
	ClusterCenterSources      = payloadPaths(MatrixAt, "cluster_centers", "centroids")
	ClusterSizeSources        = payloadPaths(FloatsAt, "cluster_sizes", "segment_sizes")
	SegmentLabelSources       = payloadPaths(StringsAt, "segment_labels", "segments")
	ForecastSources           = payloadPaths(FloatsAt, "forecast", "predictions")
	ResidualSources           = payloadPaths(FloatsAt, "residuals")
)

// Canonicalize converts one envelope into a fully defaulted Result. It is
// pure; the only error is ErrMalformedResponse for a nil envelope.
func Canonicalize(env Envelope, rc RequestContext) (Result, error) {
	return CanonicalizeLayered(rc, env)
}

// CanonicalizeLayered probes several envelopes of possibly different
// shapes. For every field the earlier layer wins when it has a non-empty
// value; the request context only fills fields every layer left empty.
func CanonicalizeLayered(rc RequestContext, envs ...Envelope) (Result, error) {
	layers := make([]Envelope, 0, len(envs))
	for _, e := range envs {
		if e != nil {
			layers = append(layers, e)
		}
	}
	if len(layers) == 0 {
		return Result{}, ErrMalformedResponse
	}

	r := Result{
		SessionID:        valueOr(layers, SessionIDSources, 0),
		AnalysisType:     stringOr(layers, AnalysisTypeSources, string(rc.Kind), UnknownLabel),
		Name:             stringOr(layers, NameSources, rc.Name),
		Description:      stringOr(layers, DescriptionSources, rc.Description),
		Tags:             stringsOr(layers, TagSources, rc.Tags),
		Timestamp:        stringOr(layers, TimestampSources),
		Filename:         stringOr(layers, FilenameSources, rc.Filename),
		PlotBase64:       stringOr(layers, VisualizationSources),
		Parameters:       parametersOr(layers, rc.Parameters),
		State:            StateFreshOnly,
		MissingArtifacts: []string{},
	}
	r.Data = canonicalPayload(layers)
	r.Dataset = canonicalDataset(layers, r.Data)
	if r.Data.NComponents == 0 {
		r.Data.NComponents = componentCount(r.Data)
	}
	return r, nil
}

func canonicalPayload(layers []Envelope) Payload {
	return Payload{
		NComponents:        int(valueOr(layers, NComponentsSources, 0)),
		Eigenvalues:        floatsOr(layers, EigenvalueSources),
		ExplainedVariance:  floatsOr(layers, ExplainedVarianceSources),
		CumulativeVariance: floatsOr(layers, CumulativeVarianceSources),
		Loadings:           matrixOr(layers, LoadingSources),
		Communalities:      floatsOr(layers, CommunalitySources),
		Scores:             matrixOr(layers, ScoreSources),
		KMO:                valueOr(layers, KMOSources, 0),
		BartlettChiSquare:  valueOr(layers, BartlettChiSquareSources, 0),
		BartlettPValue:     valueOr(layers, BartlettPValueSources, 0),
		FitQuality:         stringOr(layers, FitQualitySources, UnknownLabel),
		Coefficients:       floatsOr(layers, CoefficientSources),
		PValues:            floatsOr(layers, PValueSources),
		RSquared:           valueOr(layers, RSquaredSources, 0),
		AdjRSquared:        valueOr(layers, AdjRSquaredSources, 0),
		ClusterCenters:     matrixOr(layers, ClusterCenterSources),
		ClusterSizes:       floatsOr(layers, ClusterSizeSources),
		SegmentLabels:      stringsOr(layers, SegmentLabelSources, nil),
		Forecast:           floatsOr(layers, ForecastSources),
		Residuals:          floatsOr(layers, ResidualSources),
	}
}

func canonicalDataset(layers []Envelope, p Payload) Dataset {
	d := Dataset{
		Rows:         int(valueOr(layers, RowCountSources, 0)),
		Columns:      int(valueOr(layers, ColumnCountSources, 0)),
		FeatureNames: stringsOr(layers, FeatureNameSources, nil),
		SampleNames:  stringsOr(layers, SampleNameSources, nil),
	}
	if d.Columns == 0 {
		d.Columns = len(d.FeatureNames)
	}
	if d.Rows == 0 {
		d.Rows = len(d.SampleNames)
	}
	if d.Rows == 0 {
		d.Rows = len(p.Scores)
	}
	return d
}

func componentCount(p Payload) int {
	if n := len(p.Eigenvalues); n > 0 {
		return n
	}
	if len(p.Loadings) > 0 {
		return len(p.Loadings[0])
	}
	return 0
}

func valueOr[T int64 | float64](layers []Envelope, src []Accessor[T], def T) T {
	if v, ok := First(layers, src); ok {
		return v
	}
	return def
}

func stringOr(layers []Envelope, src []Accessor[string], fallbacks ...string) string {
	if v, ok := First(layers, src); ok {
		return strings.TrimSpace(v)
	}
	for _, f := range fallbacks {
		if strings.TrimSpace(f) != "" {
			return strings.TrimSpace(f)
		}
	}
	return ""
}

func stringsOr(layers []Envelope, src []Accessor[[]string], fallback []string) []string {
	if v, ok := First(layers, src); ok {
		return v
	}
	out := make([]string, 0, len(fallback))
	for _, s := range fallback {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func floatsOr(layers []Envelope, src []Accessor[[]float64]) []float64 {
	if v, ok := First(layers, src); ok {
		return v
	}
	return []float64{}
}

func matrixOr(layers []Envelope, src []Accessor[[][]float64]) [][]float64 {
	if v, ok := First(layers, src); ok {
		return v
	}
	return [][]float64{}
}

func parametersOr(layers []Envelope, fallback map[string]any) map[string]any {
	if v, ok := First(layers, ParameterSources); ok {
		return v
	}
	out := make(map[string]any, len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	return out
}
