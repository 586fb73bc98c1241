package models

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/formulas"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Champion selection constants.
const (
	// LatestNCutoffs is how many recent backtest cutoffs feed the composite score.
	LatestNCutoffs = 6
	// StabilityMargin: if the tentative champion leads the simplest model by
	// less than this relative fraction, the simpler model wins.
	StabilityMargin = 0.01
)

// Selection reasons.
const (
	ReasonBestScore          = "best_score"
	ReasonStabilityGuardrail = "stability_guardrail"
	ReasonSingleModel        = "single_model"
	ReasonNoBacktestData     = "no_backtest_data_default"
)

// CutoffMetric is one backtest metric row as the selector consumes it
// (segment='all' rows only).
type CutoffMetric struct {
	ModelName   string
	CutoffMonth monthly.Month
	Brier       float64
	LogLoss     float64
}

// Selection is the outcome of champion selection for one dataset.
type Selection struct {
	Dataset        domain.Dataset
	PreferredModel string
	Reason         string
	Scores         map[string]float64 // composite score per model with history
}

// Selector picks the authoritative model per probability dataset.
type Selector struct {
	log zerolog.Logger
}

// NewSelector creates a new champion selector
func NewSelector(log zerolog.Logger) *Selector {
	return &Selector{log: log.With().Str("component", "champion_selector").Logger()}
}

// Select computes composite scores over the latest N cutoffs per model and
// picks the champion. The composite score rewards both accuracy and
// stability across cutoffs:
//
//	score = mean(logloss) + mean(brier) + std(logloss) + std(brier)
//
// Lower is better. Selection is deterministic for identical metric history.
func (s *Selector) Select(dataset domain.Dataset, metrics []CutoffMetric) Selection {
	scores := s.compositeScores(metrics)

	sel := Selection{Dataset: dataset, Scores: scores}

	simplest := CandidateNames[0]
	available := make([]string, 0, len(scores))
	for _, name := range CandidateNames {
		if _, ok := scores[name]; ok {
			available = append(available, name)
		}
	}

	switch len(available) {
	case 0:
		sel.PreferredModel = simplest
		sel.Reason = ReasonNoBacktestData
		return sel
	case 1:
		sel.PreferredModel = available[0]
		sel.Reason = ReasonSingleModel
		return sel
	}

	best := available[0]
	for _, name := range available[1:] {
		if scores[name] < scores[best] {
			best = name
		}
	}

	// Stability guardrail: a lead of under StabilityMargin relative to the
	// simplest candidate is treated as noise, not signal.
	if best != simplest {
		simpleScore := scores[simplest]
		if simpleScore > 0 && (simpleScore-scores[best])/simpleScore < StabilityMargin {
			sel.PreferredModel = simplest
			sel.Reason = ReasonStabilityGuardrail
			s.log.Info().
				Str("dataset", string(dataset)).
				Str("tentative", best).
				Str("selected", simplest).
				Msg("Stability guardrail engaged")
			return sel
		}
	}

	sel.PreferredModel = best
	sel.Reason = ReasonBestScore
	return sel
}

// compositeScores keeps the latest N cutoff months across the history, then
// scores each model over its rows within that window.
func (s *Selector) compositeScores(metrics []CutoffMetric) map[string]float64 {
	cutoffSet := make(map[monthly.Month]bool)
	for _, m := range metrics {
		cutoffSet[m.CutoffMonth] = true
	}
	cutoffs := make([]monthly.Month, 0, len(cutoffSet))
	for c := range cutoffSet {
		cutoffs = append(cutoffs, c)
	}
	sort.Slice(cutoffs, func(i, j int) bool { return cutoffs[j].Before(cutoffs[i]) })
	if len(cutoffs) > LatestNCutoffs {
		cutoffs = cutoffs[:LatestNCutoffs]
	}
	keep := make(map[monthly.Month]bool, len(cutoffs))
	for _, c := range cutoffs {
		keep[c] = true
	}

	byModel := make(map[string][]CutoffMetric)
	for _, m := range metrics {
		if keep[m.CutoffMonth] {
			byModel[m.ModelName] = append(byModel[m.ModelName], m)
		}
	}

	scores := make(map[string]float64, len(byModel))
	for name, rows := range byModel {
		ll := make([]float64, len(rows))
		br := make([]float64, len(rows))
		for i, row := range rows {
			ll[i] = row.LogLoss
			br[i] = row.Brier
		}
		scores[name] = formulas.Mean(ll) + formulas.Mean(br) +
			formulas.StdDev(ll) + formulas.StdDev(br)
	}
	return scores
}
