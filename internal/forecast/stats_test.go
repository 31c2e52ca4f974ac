package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irfndi/commodity-forecast/internal/models"
)

func TestSafeDivide(t *testing.T) {
	tests := []struct {
		name     string
		num, den float64
		fallback float64
		expected float64
	}{
		{"regular", 10, 4, 0, 2.5},
		{"zero denominator", 10, 0, -1, -1},
		{"nan denominator", 10, math.NaN(), 7, 7},
		{"infinite denominator", 10, math.Inf(1), 3, 3},
		{"overflowing quotient", math.MaxFloat64, 1e-300, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeDivide(tt.num, tt.den, tt.fallback))
		})
	}
}

func TestVarianceAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
	assert.Equal(t, 0.0, Variance([]float64{42}))
	assert.InDelta(t, 2.5, Variance([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), StdDev([]float64{1, 2, 3, 4, 5}), 1e-12)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0, 0}))
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{-1, 1}))
	assert.InDelta(t, math.Sqrt(2.5)/3*100, CoefficientOfVariation([]float64{1, 2, 3, 4, 5}), 1e-9)
}

func TestSortSeries_DoesNotMutateInput(t *testing.T) {
	series := makeSeries(1, 2, 3)
	shuffled := []models.DataPoint{series[2], series[0], series[1]}
	original := append([]models.DataPoint(nil), shuffled...)

	sorted := SortSeries(shuffled)

	assert.Equal(t, original, shuffled)
	assert.Equal(t, series, sorted)
	assert.Equal(t, sorted, SortSeries(sorted))
}

func TestTail(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{3, 4}, tail(values, 2))
	assert.Equal(t, values, tail(values, 10))
	assert.Equal(t, values, tail(values, 0))
}
