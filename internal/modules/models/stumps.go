package models

import (
	"errors"
	"math"
	"sort"
)

// Stumps is a gradient-boosted ensemble of depth-1 trees trained on the
// logistic loss with Newton leaf values. It is the challenger model: more
// expressive than the logistic baseline, still deterministic (no sampling,
// exhaustive split search over per-column candidate thresholds).
type Stumps struct {
	enc    *encoder
	prior  float64 // log-odds of the base rate
	stumps []stump

	Rounds    int
	Shrinkage float64
	MinLeaf   int
}

type stump struct {
	col       int
	threshold float64
	left      float64 // leaf value for x[col] <= threshold
	right     float64
}

// NewStumps creates a boosted-stumps estimator with the default hyperparameters.
func NewStumps() *Stumps {
	return &Stumps{Rounds: 60, Shrinkage: 0.15, MinLeaf: 5}
}

// Name implements Estimator
func (s *Stumps) Name() string { return ModelStumps }

// Fit implements Estimator
func (s *Stumps) Fit(examples []Example) error {
	if len(examples) == 0 {
		return errors.New("stumps: no training examples")
	}

	s.enc = fitEncoder(examples)
	n := len(examples)
	x := make([][]float64, n)
	y := make([]float64, n)
	var posRate float64
	for i, ex := range examples {
		x[i] = s.enc.encode(ex)
		y[i] = float64(ex.Label)
		posRate += y[i]
	}
	posRate /= float64(n)
	// Clip the prior away from degenerate one-class training sets.
	posRate = math.Max(1e-4, math.Min(1-1e-4, posRate))
	s.prior = math.Log(posRate / (1 - posRate))

	score := make([]float64, n)
	for i := range score {
		score[i] = s.prior
	}

	dim := s.enc.dim()
	candidates := splitCandidates(x, dim)
	s.stumps = s.stumps[:0]

	for round := 0; round < s.Rounds; round++ {
		// First- and second-order gradients of the logistic loss.
		grad := make([]float64, n)
		hess := make([]float64, n)
		for i := range x {
			p := sigmoid(score[i])
			grad[i] = p - y[i]
			hess[i] = p * (1 - p)
		}

		best, ok := s.bestStump(x, grad, hess, candidates)
		if !ok {
			break
		}

		best.left *= s.Shrinkage
		best.right *= s.Shrinkage
		s.stumps = append(s.stumps, best)
		for i := range x {
			if x[i][best.col] <= best.threshold {
				score[i] += best.left
			} else {
				score[i] += best.right
			}
		}
	}

	return nil
}

// bestStump finds the split minimizing the second-order loss approximation.
func (s *Stumps) bestStump(x [][]float64, grad, hess []float64, candidates [][]float64) (stump, bool) {
	var totalG, totalH float64
	for i := range grad {
		totalG += grad[i]
		totalH += hess[i]
	}

	const lambda = 1.0 // leaf regularization
	baseGain := totalG * totalG / (totalH + lambda)

	var best stump
	bestGain := 1e-9
	found := false

	for col := range candidates {
		for _, thr := range candidates[col] {
			var gL, hL float64
			var nL int
			for i := range x {
				if x[i][col] <= thr {
					gL += grad[i]
					hL += hess[i]
					nL++
				}
			}
			nR := len(x) - nL
			if nL < s.MinLeaf || nR < s.MinLeaf {
				continue
			}
			gR := totalG - gL
			hR := totalH - hL
			gain := gL*gL/(hL+lambda) + gR*gR/(hR+lambda) - baseGain
			if gain > bestGain {
				bestGain = gain
				best = stump{
					col:       col,
					threshold: thr,
					left:      -gL / (hL + lambda),
					right:     -gR / (hR + lambda),
				}
				found = true
			}
		}
	}

	return best, found
}

// splitCandidates returns up to 8 distinct threshold candidates per column,
// taken at evenly spaced ranks of the sorted column values.
func splitCandidates(x [][]float64, dim int) [][]float64 {
	out := make([][]float64, dim)
	for col := 0; col < dim; col++ {
		values := make([]float64, len(x))
		for i := range x {
			values[i] = x[i][col]
		}
		sort.Float64s(values)

		seen := make(map[float64]bool)
		var cands []float64
		for k := 1; k <= 8; k++ {
			v := values[(len(values)-1)*k/9]
			if !seen[v] {
				seen[v] = true
				cands = append(cands, v)
			}
		}
		out[col] = cands
	}
	return out
}

// PredictProba implements Estimator
func (s *Stumps) PredictProba(examples []Example) []float64 {
	out := make([]float64, len(examples))
	if s.enc == nil {
		return out
	}
	for i, ex := range examples {
		x := s.enc.encode(ex)
		score := s.prior
		for _, st := range s.stumps {
			if x[st.col] <= st.threshold {
				score += st.left
			} else {
				score += st.right
			}
		}
		out[i] = sigmoid(score)
	}
	return out
}
