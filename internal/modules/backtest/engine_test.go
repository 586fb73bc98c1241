package backtest

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/pkg/monthly"
)

// monthlyExamples builds a months-long example history where the label tracks
// the first numeric feature.
func monthlyExamples(start monthly.Month, nMonths, perMonth int) []models.Example {
	var out []models.Example
	for m := 0; m < nMonths; m++ {
		for i := 0; i < perMonth; i++ {
			v := float64(i) - float64(perMonth-1)/2
			label := 0
			if v > 0 {
				label = 1
			}
			seg := "smb"
			if i%2 == 0 {
				seg = "enterprise"
			}
			out = append(out, models.Example{
				CompanyID:   "acme",
				EntityID:    fmt.Sprintf("e-%d-%d", m, i),
				TargetMonth: start.Add(m),
				Segment:     seg,
				Categorical: []string{seg},
				Numeric:     []float64{v},
				Label:       label,
			})
		}
	}
	return out
}

func TestRunWalkForwardCutoffs(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := monthly.MustParse("2024-01")
	examples := monthlyExamples(start, 10, 8)

	report, err := engine.Run(domain.DatasetRenewals, examples)
	require.NoError(t, err)

	cutoffSet := make(map[monthly.Month]bool)
	for _, m := range report.Metrics {
		cutoffSet[m.CutoffMonth] = true
	}
	// Only the most recent 6 of 10 target months become cutoffs, and the
	// earliest of them still has enough training history.
	assert.LessOrEqual(t, len(cutoffSet), models.LatestNCutoffs)
	for cutoff := range cutoffSet {
		assert.False(t, cutoff.Before(start.Add(4)), "cutoff %s too early", cutoff)
	}

	// Every candidate model reports an overall row per cutoff
	overall := make(map[string]int)
	for _, m := range report.Metrics {
		if m.Segment == SegmentAll {
			overall[m.ModelName]++
		}
	}
	for _, name := range models.CandidateNames {
		assert.Equal(t, len(cutoffSet), overall[name])
	}
}

func TestRunNoFutureRowsInResults(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	examples := monthlyExamples(monthly.MustParse("2024-01"), 9, 6)

	report, err := engine.Run(domain.DatasetPipeline, examples)
	require.NoError(t, err)
	require.NotEmpty(t, report.Results)

	for _, res := range report.Results {
		assert.Equal(t, res.CutoffMonth, res.TargetMonth,
			"scored rows must belong to their cutoff month")
	}
}

func TestRunSkipsThinHistory(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	// Two months of four rows each: the first cutoff has no training data and
	// the second has under the minimum.
	examples := monthlyExamples(monthly.MustParse("2024-01"), 2, 4)

	report, err := engine.Run(domain.DatasetRenewals, examples)
	require.NoError(t, err)
	assert.Empty(t, report.Metrics)
	assert.Empty(t, report.Results)
}

func TestRunEmptyDataset(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	report, err := engine.Run(domain.DatasetRenewals, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Metrics)
}

func TestMetricsPerSegmentBreakdown(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	examples := monthlyExamples(monthly.MustParse("2024-01"), 8, 8)

	report, err := engine.Run(domain.DatasetRenewals, examples)
	require.NoError(t, err)

	segments := make(map[string]bool)
	for _, m := range report.Metrics {
		segments[m.Segment] = true
	}
	assert.True(t, segments[SegmentAll])
	assert.True(t, segments["smb"])
	assert.True(t, segments["enterprise"])
}

func TestSelectorMetricsOnlyOverallRows(t *testing.T) {
	cutoff := monthly.MustParse("2025-01")
	metrics := []Metric{
		{ModelName: "logistic", CutoffMonth: cutoff, Segment: SegmentAll, Brier: 0.1, LogLoss: 0.3},
		{ModelName: "logistic", CutoffMonth: cutoff, Segment: "smb", Brier: 0.9, LogLoss: 0.9},
	}

	out := SelectorMetrics(metrics)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.1, out[0].Brier, 1e-9)
	assert.InDelta(t, 0.3, out[0].LogLoss, 1e-9)
}
