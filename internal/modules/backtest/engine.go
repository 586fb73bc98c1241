package backtest

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/pkg/formulas"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Walk-forward constraints.
const (
	minTrainRows   = 10
	minSegmentRows = 2
)

// Engine runs the walk-forward evaluation for one dataset across all
// candidate models.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new backtest engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "backtest_engine").Logger()}
}

// Run walks forward over the most recent cutoff months: per cutoff, each
// candidate trains strictly on examples with target month before the cutoff
// and scores the cutoff month's examples. Cutoffs with too little training
// history or a single-class training set are skipped rather than producing
// meaningless metrics.
func (e *Engine) Run(dataset domain.Dataset, examples []models.Example) (*Report, error) {
	report := &Report{Dataset: dataset}
	if len(examples) == 0 {
		e.log.Warn().Str("dataset", string(dataset)).Msg("No backtest examples")
		return report, nil
	}

	cutoffs := recentCutoffs(examples, models.LatestNCutoffs)

	for _, cutoff := range cutoffs {
		var train, test []models.Example
		for _, ex := range examples {
			switch {
			case ex.TargetMonth.Before(cutoff):
				train = append(train, ex)
			case ex.TargetMonth == cutoff:
				test = append(test, ex)
			}
		}
		if len(train) < minTrainRows || len(test) == 0 || singleClass(train) {
			e.log.Debug().
				Str("dataset", string(dataset)).
				Str("cutoff", cutoff.String()).
				Int("train", len(train)).
				Int("test", len(test)).
				Msg("Skipping cutoff with insufficient history")
			continue
		}

		for _, name := range models.CandidateNames {
			est, err := models.NewEstimator(name)
			if err != nil {
				return nil, err
			}
			if err := est.Fit(train); err != nil {
				return nil, fmt.Errorf("backtest %s/%s at %s: %w", dataset, name, cutoff, err)
			}
			preds := est.PredictProba(test)

			yTrue := make([]int, len(test))
			for i, ex := range test {
				yTrue[i] = ex.Label
				report.Results = append(report.Results, Result{
					Dataset:     dataset,
					ModelName:   name,
					CutoffMonth: cutoff,
					CompanyID:   ex.CompanyID,
					EntityID:    ex.EntityID,
					TargetMonth: ex.TargetMonth,
					Segment:     ex.Segment,
					YTrue:       ex.Label,
					PPred:       preds[i],
				})
			}

			report.Metrics = append(report.Metrics,
				e.metricsFor(dataset, name, cutoff, test, yTrue, preds)...)
			report.Bins = append(report.Bins,
				Calibrate(dataset, name, cutoff, yTrue, preds)...)
			thresholds, costs := SweepThresholds(dataset, name, cutoff, yTrue, preds)
			report.Thresholds = append(report.Thresholds, thresholds...)
			report.Costs = append(report.Costs, costs...)
		}
	}

	e.log.Info().
		Str("dataset", string(dataset)).
		Int("cutoffs", len(cutoffs)).
		Int("metric_rows", len(report.Metrics)).
		Msg("Backtest complete")
	return report, nil
}

// metricsFor computes the overall metrics row plus per-segment breakdowns for
// segments with enough test rows to be meaningful.
func (e *Engine) metricsFor(dataset domain.Dataset, name string, cutoff monthly.Month,
	test []models.Example, yTrue []int, preds []float64) []Metric {

	out := []Metric{{
		Dataset:     dataset,
		ModelName:   name,
		CutoffMonth: cutoff,
		Segment:     SegmentAll,
		AUC:         formulas.AUC(yTrue, preds),
		Brier:       formulas.Brier(yTrue, preds),
		LogLoss:     formulas.LogLoss(yTrue, preds),
		NRows:       len(test),
	}}

	bySegment := make(map[string][]int)
	for i, ex := range test {
		bySegment[ex.Segment] = append(bySegment[ex.Segment], i)
	}
	segments := make([]string, 0, len(bySegment))
	for s := range bySegment {
		segments = append(segments, s)
	}
	sort.Strings(segments)

	for _, segment := range segments {
		idx := bySegment[segment]
		if len(idx) < minSegmentRows {
			continue
		}
		y := make([]int, len(idx))
		p := make([]float64, len(idx))
		for i, j := range idx {
			y[i] = yTrue[j]
			p[i] = preds[j]
		}
		out = append(out, Metric{
			Dataset:     dataset,
			ModelName:   name,
			CutoffMonth: cutoff,
			Segment:     segment,
			AUC:         formulas.AUC(y, p),
			Brier:       formulas.Brier(y, p),
			LogLoss:     formulas.LogLoss(y, p),
			NRows:       len(idx),
		})
	}
	return out
}

// recentCutoffs returns the latest n distinct target months in ascending order.
func recentCutoffs(examples []models.Example, n int) []monthly.Month {
	seen := make(map[monthly.Month]bool)
	for _, ex := range examples {
		seen[ex.TargetMonth] = true
	}
	all := make([]monthly.Month, 0, len(seen))
	for m := range seen {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

func singleClass(examples []models.Example) bool {
	if len(examples) == 0 {
		return true
	}
	first := examples[0].Label
	for _, ex := range examples[1:] {
		if ex.Label != first {
			return false
		}
	}
	return true
}

// SelectorMetrics converts the 'all' rows of a metric history into the
// champion selector's input shape.
func SelectorMetrics(metrics []Metric) []models.CutoffMetric {
	out := make([]models.CutoffMetric, 0, len(metrics))
	for _, m := range metrics {
		if m.Segment != SegmentAll {
			continue
		}
		out = append(out, models.CutoffMetric{
			ModelName:   m.ModelName,
			CutoffMonth: m.CutoffMonth,
			Brier:       m.Brier,
			LogLoss:     m.LogLoss,
		})
	}
	return out
}
