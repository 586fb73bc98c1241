// Package backtest evaluates the candidate probability models with strict
// walk-forward discipline and produces the calibration and cost reports the
// champion selector and quality gates consume.
package backtest

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// SegmentAll marks metrics computed over every test row at a cutoff.
const SegmentAll = "all"

// Result is one scored test row from a walk-forward cutoff.
type Result struct {
	Dataset     domain.Dataset
	ModelName   string
	CutoffMonth monthly.Month
	CompanyID   string
	EntityID    string
	TargetMonth monthly.Month
	Segment     string
	YTrue       int
	PPred       float64
}

// Metric is one metrics row per (dataset, model, cutoff, segment).
type Metric struct {
	Dataset     domain.Dataset
	ModelName   string
	CutoffMonth monthly.Month
	Segment     string // SegmentAll or a specific segment
	AUC         float64
	Brier       float64
	LogLoss     float64
	NRows       int
}

// CalibrationBin is one of the 10 equal-width probability bins.
type CalibrationBin struct {
	Dataset     domain.Dataset
	ModelName   string
	CutoffMonth monthly.Month
	BinID       int // 1-10
	PPredMean   float64
	YTrueRate   float64
	Count       int
}

// ThresholdMetric is one confusion-matrix row from the threshold sweep.
type ThresholdMetric struct {
	Dataset           domain.Dataset
	ModelName         string
	CutoffMonth       monthly.Month
	Threshold         float64
	PredictedPositive int
	TP                int
	FP                int
	TN                int
	FN                int
	Precision         float64
	Recall            float64
	FPR               float64
	FNR               float64
}

// CostPoint is one expected-cost value on the cost curve.
type CostPoint struct {
	Dataset      domain.Dataset
	ModelName    string
	CutoffMonth  monthly.Month
	Threshold    float64
	ExpectedCost float64
}

// CostWeights prices the two error types for a dataset.
type CostWeights struct {
	FalseNegative float64
	FalsePositive float64
}

// Error costs per dataset. Missing a churn (renewals false negative) is far
// more expensive than a spurious alarm; for pipeline the asymmetry leans the
// other way since over-forecasting commits resources.
var datasetCosts = map[domain.Dataset]CostWeights{
	domain.DatasetRenewals: {FalseNegative: 5, FalsePositive: 1},
	domain.DatasetPipeline: {FalseNegative: 2, FalsePositive: 3},
}

// Costs returns the error-cost weights for a dataset.
func Costs(dataset domain.Dataset) CostWeights {
	if w, ok := datasetCosts[dataset]; ok {
		return w
	}
	return CostWeights{FalseNegative: 1, FalsePositive: 1}
}

// Report bundles everything one backtest run produced for a dataset.
type Report struct {
	Dataset    domain.Dataset
	Results    []Result
	Metrics    []Metric
	Bins       []CalibrationBin
	Thresholds []ThresholdMetric
	Costs      []CostPoint
}
