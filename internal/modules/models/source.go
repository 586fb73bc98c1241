package models

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// ProbabilitySource is a dataset's resolved probability provider for one run.
// It is resolved exactly once at run start so every row produced by the run
// carries a consistent probability_source label, even if the champion changes
// mid-run in another process.
type ProbabilitySource struct {
	Dataset     domain.Dataset
	Label       string // "rules" or "ml_<model>"
	predictions map[PredictionKey]Prediction
}

// NewRuleSource returns the rule-baseline source for a dataset.
func NewRuleSource(dataset domain.Dataset) *ProbabilitySource {
	return &ProbabilitySource{Dataset: dataset, Label: domain.ProbabilitySourceRules}
}

// NewLearnedSource returns a source backed by a champion model's predictions.
func NewLearnedSource(dataset domain.Dataset, modelName string, predictions map[PredictionKey]Prediction) *ProbabilitySource {
	return &ProbabilitySource{
		Dataset:     dataset,
		Label:       domain.ProbabilitySourceMLPrefix + modelName,
		predictions: predictions,
	}
}

// Rules reports whether this source falls back to the rule baseline.
func (s *ProbabilitySource) Rules() bool {
	return s.Label == domain.ProbabilitySourceRules
}

// Lookup returns the learned probability for an entity/month pair. The second
// return is false when no prediction exists (or the source is rules-based);
// callers keep their rule-derived probability in that case.
func (s *ProbabilitySource) Lookup(entityID string, targetMonth monthly.Month) (float64, bool) {
	if s.predictions == nil {
		return 0, false
	}
	p, ok := s.predictions[PredictionKey{EntityID: entityID, TargetMonth: targetMonth}]
	if !ok {
		return 0, false
	}
	return p.Probability, true
}

// SourceResolver binds champion selection to the prediction intake.
type SourceResolver struct {
	selections  *SelectionRepository
	predictions *PredictionsRepository
	log         zerolog.Logger
}

// NewSourceResolver creates a new probability source resolver
func NewSourceResolver(selections *SelectionRepository, predictions *PredictionsRepository, log zerolog.Logger) *SourceResolver {
	return &SourceResolver{
		selections:  selections,
		predictions: predictions,
		log:         log.With().Str("component", "probability_source").Logger(),
	}
}

// Resolve determines the probability source for one dataset: the current
// champion's predictions when a selection exists and the intake has rows for
// it, otherwise the rule baseline. Never fails the run over missing
// predictions; a learned model without predictions degrades to rules.
func (r *SourceResolver) Resolve(companyID string, dataset domain.Dataset) (*ProbabilitySource, error) {
	rules := NewRuleSource(dataset)

	sel, err := r.selections.GetCurrent(dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve probability source for %s: %w", dataset, err)
	}
	if sel == nil {
		r.log.Debug().Str("dataset", string(dataset)).Msg("No champion selected, using rule baseline")
		return rules, nil
	}

	preds, err := r.predictions.GetChampionPredictions(companyID, dataset, sel.PreferredModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load champion predictions for %s: %w", dataset, err)
	}
	if len(preds) == 0 {
		r.log.Warn().
			Str("dataset", string(dataset)).
			Str("champion", sel.PreferredModel).
			Msg("Champion has no predictions, falling back to rule baseline")
		return rules, nil
	}

	r.log.Info().
		Str("dataset", string(dataset)).
		Str("champion", sel.PreferredModel).
		Int("predictions", len(preds)).
		Msg("Probability source resolved")
	return NewLearnedSource(dataset, sel.PreferredModel, preds), nil
}
