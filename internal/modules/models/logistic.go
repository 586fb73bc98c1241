package models

import (
	"errors"
	"math"

	"github.com/mhalford/revcast/pkg/formulas"
)

// Logistic is an L2-regularized logistic regression fitted by full-batch
// gradient descent on standardized numeric features. Zero initialization and
// a fixed epoch count keep it fully deterministic.
type Logistic struct {
	enc     *encoder
	weights []float64
	bias    float64
	mean    []float64 // numeric standardization, over the encoded columns
	std     []float64

	LearningRate float64
	Epochs       int
	L2           float64
}

// NewLogistic creates a logistic estimator with the default hyperparameters.
func NewLogistic() *Logistic {
	return &Logistic{LearningRate: 0.1, Epochs: 300, L2: 1e-3}
}

// Name implements Estimator
func (l *Logistic) Name() string { return ModelLogistic }

// Fit implements Estimator
func (l *Logistic) Fit(examples []Example) error {
	if len(examples) == 0 {
		return errors.New("logistic: no training examples")
	}

	l.enc = fitEncoder(examples)
	dim := l.enc.dim()
	x := make([][]float64, len(examples))
	y := make([]float64, len(examples))
	for i, ex := range examples {
		x[i] = l.enc.encode(ex)
		y[i] = float64(ex.Label)
	}

	// Standardize every column; one-hot columns pass through nearly unchanged
	// and numeric columns get comparable gradient scales.
	l.mean = make([]float64, dim)
	l.std = make([]float64, dim)
	for j := 0; j < dim; j++ {
		col := make([]float64, len(x))
		for i := range x {
			col[i] = x[i][j]
		}
		l.mean[j] = formulas.Mean(col)
		l.std[j] = formulas.StdDev(col)
		if l.std[j] == 0 {
			l.std[j] = 1
		}
		for i := range x {
			x[i][j] = (x[i][j] - l.mean[j]) / l.std[j]
		}
	}

	l.weights = make([]float64, dim)
	l.bias = 0
	n := float64(len(x))

	for epoch := 0; epoch < l.Epochs; epoch++ {
		gradW := make([]float64, dim)
		var gradB float64
		for i := range x {
			p := sigmoid(dot(l.weights, x[i]) + l.bias)
			err := p - y[i]
			for j := 0; j < dim; j++ {
				gradW[j] += err * x[i][j]
			}
			gradB += err
		}
		for j := 0; j < dim; j++ {
			l.weights[j] -= l.LearningRate * (gradW[j]/n + l.L2*l.weights[j])
		}
		l.bias -= l.LearningRate * gradB / n
	}

	return nil
}

// PredictProba implements Estimator
func (l *Logistic) PredictProba(examples []Example) []float64 {
	out := make([]float64, len(examples))
	if l.enc == nil {
		return out
	}
	for i, ex := range examples {
		x := l.enc.encode(ex)
		for j := range x {
			x[j] = (x[j] - l.mean[j]) / l.std[j]
		}
		out[i] = sigmoid(dot(l.weights, x) + l.bias)
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
