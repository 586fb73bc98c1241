// Package models owns the probability estimators, the learned-prediction
// intake and champion/challenger selection for the two probability domains
// (renewals, pipeline). Estimator internals are deliberately small: the
// contract that matters is features in, calibrated probability out.
package models

import (
	"fmt"

	"github.com/mhalford/revcast/pkg/monthly"
)

// Example is one labeled (or to-be-scored) observation in a dataset's
// feature contract. Categorical and Numeric are positional, aligned with the
// dataset's schema; Label is 0/1 and ignored when scoring.
type Example struct {
	CompanyID   string
	EntityID    string
	TargetMonth monthly.Month
	Segment     string
	Categorical []string
	Numeric     []float64
	Label       int
}

// Estimator is a binary probability model. Fit trains on labeled examples;
// PredictProba returns the probability of the positive class per example.
// Implementations must be deterministic: identical training data yields
// identical predictions.
type Estimator interface {
	Name() string
	Fit(examples []Example) error
	PredictProba(examples []Example) []float64
}

// Candidate model names. ModelLogistic is the rule-explainable baseline
// learner the stability guardrail prefers; ModelStumps is the more complex
// challenger.
const (
	ModelLogistic = "logistic"
	ModelStumps   = "stumps"
)

// CandidateNames lists all candidates in guardrail order, simplest first.
var CandidateNames = []string{ModelLogistic, ModelStumps}

// NewEstimator returns a fresh, unfitted estimator for a candidate name.
func NewEstimator(name string) (Estimator, error) {
	switch name {
	case ModelLogistic:
		return NewLogistic(), nil
	case ModelStumps:
		return NewStumps(), nil
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}

// encoder maps positional categorical/numeric features onto a dense design
// matrix: one column per categorical level seen in training (unknown levels
// at scoring time contribute nothing) followed by the numeric columns.
type encoder struct {
	levels []map[string]int // per categorical position: level -> column
	catDim int
	numDim int
}

func fitEncoder(examples []Example) *encoder {
	if len(examples) == 0 {
		return &encoder{}
	}
	enc := &encoder{
		levels: make([]map[string]int, len(examples[0].Categorical)),
		numDim: len(examples[0].Numeric),
	}
	for i := range enc.levels {
		enc.levels[i] = make(map[string]int)
	}
	for _, ex := range examples {
		for i, v := range ex.Categorical {
			if _, ok := enc.levels[i][v]; !ok {
				enc.levels[i][v] = enc.catDim
				enc.catDim++
			}
		}
	}
	return enc
}

func (e *encoder) dim() int { return e.catDim + e.numDim }

func (e *encoder) encode(ex Example) []float64 {
	x := make([]float64, e.dim())
	for i, v := range ex.Categorical {
		if i < len(e.levels) {
			if col, ok := e.levels[i][v]; ok {
				x[col] = 1
			}
		}
	}
	for i, v := range ex.Numeric {
		if i < e.numDim {
			x[e.catDim+i] = v
		}
	}
	return x
}
