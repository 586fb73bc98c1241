package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrierPerfectAndCoinflip(t *testing.T) {
	y := []int{1, 0, 1, 0}
	assert.Equal(t, 0.0, Brier(y, []float64{1, 0, 1, 0}))
	assert.InDelta(t, 0.25, Brier(y, []float64{0.5, 0.5, 0.5, 0.5}), 1e-12)
}

func TestLogLossIsFiniteAtExtremes(t *testing.T) {
	ll := LogLoss([]int{1, 0}, []float64{0, 1})
	assert.False(t, math.IsInf(ll, 1))
	assert.Greater(t, ll, 10.0) // badly wrong, but bounded by the clip
}

func TestAUCPerfectSeparation(t *testing.T) {
	y := []int{0, 0, 1, 1}
	p := []float64{0.1, 0.2, 0.8, 0.9}
	assert.InDelta(t, 1.0, AUC(y, p), 1e-12)
}

func TestAUCReversedRanking(t *testing.T) {
	y := []int{1, 1, 0, 0}
	p := []float64{0.1, 0.2, 0.8, 0.9}
	assert.InDelta(t, 0.0, AUC(y, p), 1e-12)
}

func TestAUCTiesGetMidrankCredit(t *testing.T) {
	y := []int{0, 1}
	p := []float64{0.5, 0.5}
	assert.InDelta(t, 0.5, AUC(y, p), 1e-12)
}

func TestAUCSingleClassIsZero(t *testing.T) {
	assert.Equal(t, 0.0, AUC([]int{1, 1}, []float64{0.3, 0.9}))
}

func TestStdDevSingleObservation(t *testing.T) {
	assert.Equal(t, 0.0, StdDev([]float64{3.14}))
}

func TestPercentileNearestRank(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 5.0, Percentile(data, 90))
	assert.Equal(t, 3.0, Percentile(data, 50))
	assert.Equal(t, 1.0, Percentile(data, 1))
}
