package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

func TestCalibrateBinsPredictions(t *testing.T) {
	cutoff := monthly.MustParse("2025-01")
	yTrue := []int{0, 0, 1, 1, 1, 0}
	pPred := []float64{0.05, 0.12, 0.18, 0.85, 0.92, 0.95}

	bins := Calibrate(domain.DatasetRenewals, "logistic", cutoff, yTrue, pPred)
	require.Len(t, bins, 4)

	assert.Equal(t, 1, bins[0].BinID)
	assert.Equal(t, 1, bins[0].Count)
	assert.InDelta(t, 0.05, bins[0].PPredMean, 1e-9)
	assert.InDelta(t, 0, bins[0].YTrueRate, 1e-9)

	assert.Equal(t, 2, bins[1].BinID)
	assert.Equal(t, 2, bins[1].Count)
	assert.InDelta(t, 0.15, bins[1].PPredMean, 1e-9)
	assert.InDelta(t, 0.5, bins[1].YTrueRate, 1e-9)

	assert.Equal(t, 9, bins[2].BinID)
	assert.Equal(t, 1, bins[2].Count)
	assert.InDelta(t, 1, bins[2].YTrueRate, 1e-9)

	assert.Equal(t, 10, bins[3].BinID)
	assert.Equal(t, 2, bins[3].Count)
	assert.InDelta(t, (0.92+0.95)/2, bins[3].PPredMean, 1e-9)
	assert.InDelta(t, 0.5, bins[3].YTrueRate, 1e-9)
}

func TestCalibrateEdgeProbabilities(t *testing.T) {
	cutoff := monthly.MustParse("2025-01")
	bins := Calibrate(domain.DatasetRenewals, "logistic", cutoff,
		[]int{1, 0}, []float64{1.0, 0.0})

	require.Len(t, bins, 2)
	assert.Equal(t, 1, bins[0].BinID)
	assert.Equal(t, 10, bins[1].BinID)
}

func TestSweepThresholdsConfusionCounts(t *testing.T) {
	cutoff := monthly.MustParse("2025-01")
	yTrue := []int{1, 1, 0, 0}
	pPred := []float64{0.9, 0.4, 0.6, 0.1}

	metrics, costs := SweepThresholds(domain.DatasetRenewals, "logistic", cutoff, yTrue, pPred)
	require.Len(t, metrics, 9)
	require.Len(t, costs, 9)

	byThreshold := make(map[float64]ThresholdMetric)
	for _, m := range metrics {
		byThreshold[m.Threshold] = m
	}

	m5 := byThreshold[0.5]
	assert.Equal(t, 1, m5.TP)
	assert.Equal(t, 1, m5.FP)
	assert.Equal(t, 1, m5.TN)
	assert.Equal(t, 1, m5.FN)
	assert.InDelta(t, 0.5, m5.Precision, 1e-9)
	assert.InDelta(t, 0.5, m5.Recall, 1e-9)
	assert.InDelta(t, 0.5, m5.FPR, 1e-9)
	assert.InDelta(t, 0.5, m5.FNR, 1e-9)

	// Renewals costs: fn=5, fp=1 -> at 0.5, cost = 5 + 1 = 6
	costByThreshold := make(map[float64]float64)
	for _, c := range costs {
		costByThreshold[c.Threshold] = c.ExpectedCost
	}
	assert.InDelta(t, 6, costByThreshold[0.5], 1e-9)
}

func TestSweepThresholdsDatasetCostAsymmetry(t *testing.T) {
	cutoff := monthly.MustParse("2025-01")
	yTrue := []int{1, 0}
	pPred := []float64{0.2, 0.8} // one fn, one fp at threshold 0.5

	_, renewalCosts := SweepThresholds(domain.DatasetRenewals, "m", cutoff, yTrue, pPred)
	_, pipelineCosts := SweepThresholds(domain.DatasetPipeline, "m", cutoff, yTrue, pPred)

	find := func(points []CostPoint, threshold float64) float64 {
		for _, p := range points {
			if p.Threshold == threshold {
				return p.ExpectedCost
			}
		}
		t.Fatalf("threshold %v not found", threshold)
		return 0
	}

	assert.InDelta(t, 6, find(renewalCosts, 0.5), 1e-9) // 1*5 + 1*1
	assert.InDelta(t, 5, find(pipelineCosts, 0.5), 1e-9) // 1*2 + 1*3
}

func TestEvaluateGatePassesWithOneAcceptableModel(t *testing.T) {
	cutoff := monthly.MustParse("2025-06")
	metrics := []Metric{
		{Dataset: domain.DatasetRenewals, ModelName: "logistic", CutoffMonth: cutoff,
			Segment: SegmentAll, Brier: 0.15, LogLoss: 0.45},
		{Dataset: domain.DatasetRenewals, ModelName: "stumps", CutoffMonth: cutoff,
			Segment: SegmentAll, Brier: 0.40, LogLoss: 1.2},
	}

	result := EvaluateGate(domain.DatasetRenewals, metrics)
	assert.True(t, result.Passed)
	assert.Equal(t, cutoff, result.CutoffMonth)
}

func TestEvaluateGateFailsWhenAllModelsBreach(t *testing.T) {
	cutoff := monthly.MustParse("2025-06")
	metrics := []Metric{
		{Dataset: domain.DatasetRenewals, ModelName: "logistic", CutoffMonth: cutoff,
			Segment: SegmentAll, Brier: 0.35, LogLoss: 0.9},
		{Dataset: domain.DatasetRenewals, ModelName: "stumps", CutoffMonth: cutoff,
			Segment: SegmentAll, Brier: 0.40, LogLoss: 1.2},
	}

	result := EvaluateGate(domain.DatasetRenewals, metrics)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Detail, "logistic")
	assert.Contains(t, result.Detail, "stumps")
}

func TestEvaluateGateOnlyLatestCutoffCounts(t *testing.T) {
	old := monthly.MustParse("2025-01")
	latest := monthly.MustParse("2025-06")
	metrics := []Metric{
		// Terrible in the past, fine now
		{Dataset: domain.DatasetRenewals, ModelName: "logistic", CutoffMonth: old,
			Segment: SegmentAll, Brier: 0.9, LogLoss: 3.0},
		{Dataset: domain.DatasetRenewals, ModelName: "logistic", CutoffMonth: latest,
			Segment: SegmentAll, Brier: 0.10, LogLoss: 0.30},
	}

	result := EvaluateGate(domain.DatasetRenewals, metrics)
	assert.True(t, result.Passed)
	assert.Equal(t, latest, result.CutoffMonth)
}

func TestEvaluateGateNoHistoryPasses(t *testing.T) {
	result := EvaluateGate(domain.DatasetPipeline, nil)
	assert.True(t, result.Passed)
}
