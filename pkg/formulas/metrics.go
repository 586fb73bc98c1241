package formulas

import (
	"math"
	"sort"
)

// probEps keeps logloss finite when a model emits exactly 0 or 1.
const probEps = 1e-7

// Brier returns the mean squared error between predicted probabilities and
// binary outcomes. 0 is perfect; 0.25 is no better than a coin flip.
func Brier(yTrue []int, pPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(pPred) {
		return 0
	}
	var sum float64
	for i, y := range yTrue {
		d := pPred[i] - float64(y)
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// LogLoss returns the mean negative log-likelihood of binary outcomes under
// the predicted probabilities, with predictions clipped away from 0 and 1.
func LogLoss(yTrue []int, pPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(pPred) {
		return 0
	}
	var sum float64
	for i, y := range yTrue {
		p := Clamp(pPred[i], probEps, 1-probEps)
		if y == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(yTrue))
}

// AUC returns the area under the ROC curve via the rank-sum formulation,
// with the midrank correction for tied predictions. Degenerate inputs
// (single class) return 0, matching the backtest convention that an
// unrankable cutoff contributes no discrimination signal.
func AUC(yTrue []int, pPred []float64) float64 {
	n := len(yTrue)
	if n == 0 || n != len(pPred) {
		return 0
	}
	var nPos, nNeg int
	for _, y := range yTrue {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return pPred[idx[a]] < pPred[idx[b]] })

	// Midranks over tied groups.
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && pPred[idx[j]] == pPred[idx[i]] {
			j++
		}
		mid := float64(i+j+1) / 2 // 1-based average rank of the tie group
		for k := i; k < j; k++ {
			ranks[idx[k]] = mid
		}
		i = j
	}

	var rankSumPos float64
	for i, y := range yTrue {
		if y == 1 {
			rankSumPos += ranks[i]
		}
	}
	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg))
}
