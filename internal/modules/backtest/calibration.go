package backtest

import (
	"math"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Calibration and sweep constants.
const (
	calibrationBins = 10

	thresholdMin  = 0.1
	thresholdMax  = 0.9
	thresholdStep = 0.1
)

// Calibrate buckets predictions into 10 equal-width bins over [0, 1] and
// reports mean predicted probability against the empirical positive rate per
// bin. Empty bins are omitted.
func Calibrate(dataset domain.Dataset, modelName string, cutoff monthly.Month,
	yTrue []int, pPred []float64) []CalibrationBin {

	type acc struct {
		pSum  float64
		ySum  int
		count int
	}
	bins := make([]acc, calibrationBins)

	for i, p := range pPred {
		bin := int(p * calibrationBins)
		if bin >= calibrationBins {
			bin = calibrationBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		bins[bin].pSum += p
		bins[bin].ySum += yTrue[i]
		bins[bin].count++
	}

	var out []CalibrationBin
	for i, b := range bins {
		if b.count == 0 {
			continue
		}
		out = append(out, CalibrationBin{
			Dataset:     dataset,
			ModelName:   modelName,
			CutoffMonth: cutoff,
			BinID:       i + 1,
			PPredMean:   b.pSum / float64(b.count),
			YTrueRate:   float64(b.ySum) / float64(b.count),
			Count:       b.count,
		})
	}
	return out
}

// SweepThresholds computes confusion counts and derived rates over thresholds
// 0.1 through 0.9, plus the expected-cost curve under the dataset's error
// cost weights.
func SweepThresholds(dataset domain.Dataset, modelName string, cutoff monthly.Month,
	yTrue []int, pPred []float64) ([]ThresholdMetric, []CostPoint) {

	weights := Costs(dataset)
	var metrics []ThresholdMetric
	var costs []CostPoint

	for step := 0; ; step++ {
		threshold := thresholdMin + float64(step)*thresholdStep
		if threshold > thresholdMax+1e-9 {
			break
		}
		threshold = math.Round(threshold*10) / 10

		var tp, fp, tn, fn int
		for i, p := range pPred {
			predicted := p >= threshold
			actual := yTrue[i] == 1
			switch {
			case predicted && actual:
				tp++
			case predicted && !actual:
				fp++
			case !predicted && !actual:
				tn++
			default:
				fn++
			}
		}

		m := ThresholdMetric{
			Dataset:           dataset,
			ModelName:         modelName,
			CutoffMonth:       cutoff,
			Threshold:         threshold,
			PredictedPositive: tp + fp,
			TP:                tp,
			FP:                fp,
			TN:                tn,
			FN:                fn,
		}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
			m.FNR = float64(fn) / float64(tp+fn)
		}
		if fp+tn > 0 {
			m.FPR = float64(fp) / float64(fp+tn)
		}
		metrics = append(metrics, m)

		costs = append(costs, CostPoint{
			Dataset:      dataset,
			ModelName:    modelName,
			CutoffMonth:  cutoff,
			Threshold:    threshold,
			ExpectedCost: float64(fn)*weights.FalseNegative + float64(fp)*weights.FalsePositive,
		})
	}
	return metrics, costs
}
