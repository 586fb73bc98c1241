package models

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

func cutoffMetrics(model string, start monthly.Month, logloss, brier float64, n int) []CutoffMetric {
	out := make([]CutoffMetric, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, CutoffMetric{
			ModelName:   model,
			CutoffMonth: start.Add(i),
			LogLoss:     logloss,
			Brier:       brier,
		})
	}
	return out
}

func TestSelectBestScoreWins(t *testing.T) {
	start := monthly.MustParse("2025-01")
	metrics := append(
		cutoffMetrics(ModelLogistic, start, 0.60, 0.22, 6),
		cutoffMetrics(ModelStumps, start, 0.40, 0.15, 6)...,
	)

	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, metrics)

	assert.Equal(t, ModelStumps, sel.PreferredModel)
	assert.Equal(t, ReasonBestScore, sel.Reason)
	assert.Less(t, sel.Scores[ModelStumps], sel.Scores[ModelLogistic])
}

func TestSelectStabilityGuardrailPrefersSimpler(t *testing.T) {
	// The challenger leads by 0.3%, inside the 1% stability margin: the
	// simpler model must be selected.
	start := monthly.MustParse("2025-01")
	metrics := append(
		cutoffMetrics(ModelLogistic, start, 0.500, 0.200, 6),
		cutoffMetrics(ModelStumps, start, 0.4979, 0.200, 6)...,
	)

	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, metrics)

	lead := (sel.Scores[ModelLogistic] - sel.Scores[ModelStumps]) / sel.Scores[ModelLogistic]
	require.Greater(t, lead, 0.0)
	require.Less(t, lead, StabilityMargin)

	assert.Equal(t, ModelLogistic, sel.PreferredModel)
	assert.Equal(t, ReasonStabilityGuardrail, sel.Reason)
}

func TestSelectSingleModel(t *testing.T) {
	metrics := cutoffMetrics(ModelStumps, monthly.MustParse("2025-01"), 0.5, 0.2, 3)

	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetPipeline, metrics)

	assert.Equal(t, ModelStumps, sel.PreferredModel)
	assert.Equal(t, ReasonSingleModel, sel.Reason)
}

func TestSelectNoBacktestDataDefaultsToSimplest(t *testing.T) {
	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetPipeline, nil)

	assert.Equal(t, ModelLogistic, sel.PreferredModel)
	assert.Equal(t, ReasonNoBacktestData, sel.Reason)
	assert.Empty(t, sel.Scores)
}

func TestSelectOnlyLatestCutoffsCount(t *testing.T) {
	start := monthly.MustParse("2024-01")
	// Logistic is terrible on old cutoffs but strong on the recent six;
	// stumps is uniformly mediocre. Only the latest six cutoffs matter.
	old := cutoffMetrics(ModelLogistic, start, 2.0, 0.9, 6)
	recent := cutoffMetrics(ModelLogistic, start.Add(6), 0.30, 0.10, 6)
	challenger := cutoffMetrics(ModelStumps, start.Add(6), 0.50, 0.20, 6)

	metrics := append(append(old, recent...), challenger...)
	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, metrics)

	assert.Equal(t, ModelLogistic, sel.PreferredModel)
	assert.Equal(t, ReasonBestScore, sel.Reason)
	assert.InDelta(t, 0.40, sel.Scores[ModelLogistic], 1e-9)
}

func TestSelectDeterministic(t *testing.T) {
	start := monthly.MustParse("2025-01")
	metrics := append(
		cutoffMetrics(ModelLogistic, start, 0.55, 0.21, 6),
		cutoffMetrics(ModelStumps, start, 0.48, 0.18, 6)...,
	)

	first := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, metrics)
	for i := 0; i < 10; i++ {
		again := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, metrics)
		assert.Equal(t, first, again)
	}
}

func TestSelectVolatileChallengerPenalized(t *testing.T) {
	start := monthly.MustParse("2025-01")
	stable := cutoffMetrics(ModelLogistic, start, 0.50, 0.20, 6)

	// Same mean as the stable model but high variance across cutoffs.
	volatile := make([]CutoffMetric, 0, 6)
	for i := 0; i < 6; i++ {
		ll := 0.20
		if i%2 == 0 {
			ll = 0.80
		}
		volatile = append(volatile, CutoffMetric{
			ModelName:   ModelStumps,
			CutoffMonth: start.Add(i),
			LogLoss:     ll,
			Brier:       0.20,
		})
	}

	sel := NewSelector(zerolog.Nop()).Select(domain.DatasetRenewals, append(stable, volatile...))

	assert.Equal(t, ModelLogistic, sel.PreferredModel)
	assert.Equal(t, ReasonBestScore, sel.Reason)
}
