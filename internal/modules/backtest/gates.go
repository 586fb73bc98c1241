package backtest

import (
	"fmt"
	"sort"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// GateThresholds bounds acceptable latest-cutoff error for a dataset.
type GateThresholds struct {
	MaxBrier   float64
	MaxLogLoss float64
}

// Acceptance bars per dataset. Renewals carry a high base rate so tighter
// Brier is achievable; pipeline outcomes are noisier.
var gateThresholds = map[domain.Dataset]GateThresholds{
	domain.DatasetRenewals: {MaxBrier: 0.20, MaxLogLoss: 0.60},
	domain.DatasetPipeline: {MaxBrier: 0.25, MaxLogLoss: 0.70},
}

// GateResult is the quality-gate verdict for one dataset.
type GateResult struct {
	Dataset     domain.Dataset
	CutoffMonth monthly.Month
	Passed      bool
	Detail      string
}

// EvaluateGate checks the latest cutoff's overall metrics against the
// dataset's thresholds. The gate fails only when every candidate model
// breaches them: one acceptable model is enough to govern the dataset. A
// dataset with no metric history passes vacuously (the rule baseline governs).
func EvaluateGate(dataset domain.Dataset, metrics []Metric) GateResult {
	thresholds, ok := gateThresholds[dataset]
	if !ok {
		return GateResult{Dataset: dataset, Passed: true, Detail: "no thresholds configured"}
	}

	var latest monthly.Month
	found := false
	for _, m := range metrics {
		if m.Segment != SegmentAll {
			continue
		}
		if !found || latest.Before(m.CutoffMonth) {
			latest = m.CutoffMonth
			found = true
		}
	}
	if !found {
		return GateResult{Dataset: dataset, Passed: true, Detail: "no backtest history"}
	}

	type verdict struct {
		model string
		ok    bool
		brier float64
		ll    float64
	}
	var verdicts []verdict
	for _, m := range metrics {
		if m.Segment != SegmentAll || m.CutoffMonth != latest {
			continue
		}
		verdicts = append(verdicts, verdict{
			model: m.ModelName,
			ok:    m.Brier <= thresholds.MaxBrier && m.LogLoss <= thresholds.MaxLogLoss,
			brier: m.Brier,
			ll:    m.LogLoss,
		})
	}
	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].model < verdicts[j].model })

	anyPassed := false
	detail := ""
	for _, v := range verdicts {
		if v.ok {
			anyPassed = true
		}
		if detail != "" {
			detail += "; "
		}
		detail += fmt.Sprintf("%s brier=%.4f logloss=%.4f", v.model, v.brier, v.ll)
	}

	return GateResult{
		Dataset:     dataset,
		CutoffMonth: latest,
		Passed:      anyPassed,
		Detail:      detail,
	}
}
