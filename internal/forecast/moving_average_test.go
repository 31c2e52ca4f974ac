package forecast

import (
	"testing"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/commodity-forecast/internal/models"
)

func TestCalculateSMA(t *testing.T) {
	assert.Equal(t, 0.0, CalculateSMA(nil, 5))
	assert.Equal(t, 42.0, CalculateSMA([]float64{42}, 5))
	assert.InDelta(t, 4.0, CalculateSMA([]float64{1, 2, 3, 4, 5}, 3), 1e-12)
	// period longer than the series averages everything
	assert.InDelta(t, 3.0, CalculateSMA([]float64{1, 2, 3, 4, 5}, 50), 1e-12)
}

func TestCalculateSMA_MatchesIndicatorLibrary(t *testing.T) {
	values := noisyValues(60, 250, 20)

	for _, period := range []int{3, 7, 21, 30} {
		sma := trend.NewSmaWithPeriod[float64](period)
		expected := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
		require.NotEmpty(t, expected)

		assert.InDelta(t, expected[len(expected)-1], CalculateSMA(values, period), 1e-9, "period=%d", period)
	}
}

func TestCalculateEMA(t *testing.T) {
	assert.Equal(t, 0.0, CalculateEMA(nil, 5))
	assert.Equal(t, 42.0, CalculateEMA([]float64{42}, 5))

	// seed = mean(1,2,3) = 2, k = 0.5: 2 -> 3 -> 4
	assert.InDelta(t, 4.0, CalculateEMA([]float64{1, 2, 3, 4, 5}, 3), 1e-12)

	// constant series stays constant
	assert.InDelta(t, 7.0, CalculateEMA(constantValues(30, 7), 10), 1e-12)
}

func TestCalculateEMA_ReactsFasterThanSMA(t *testing.T) {
	values := append(constantValues(20, 100), 110, 120, 130)

	assert.Greater(t, CalculateEMA(values, 10), CalculateSMA(values, 20))
}

func TestDetermineTrend(t *testing.T) {
	tests := []struct {
		name      string
		short     float64
		long      float64
		threshold float64
		trend     models.TrendDirection
		strength  float64
	}{
		{"zero long", 10, 0, 0.02, models.TrendStable, 0},
		{"stable", 101, 100, 0.02, models.TrendStable, 50},
		{"up", 105, 100, 0.02, models.TrendUp, 5},
		{"down", 90, 100, 0.02, models.TrendDown, 10},
		{"capped strength", 300, 100, 0.02, models.TrendUp, 100},
		{"default threshold", 101, 100, 0, models.TrendStable, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineTrend(tt.short, tt.long, tt.threshold)
			assert.Equal(t, tt.trend, got.Trend)
			assert.InDelta(t, tt.strength, got.Strength, 1e-9)
		})
	}
}

func TestProjectPriceWithEMA(t *testing.T) {
	assert.Equal(t, 0.0, ProjectPriceWithEMA(nil, 7, 7, 21))

	rising := linearValues(40, 100, 1)
	assert.Greater(t, ProjectPriceWithEMA(rising, 7, 7, 21), rising[len(rising)-1])

	flat := constantValues(40, 100)
	assert.InDelta(t, 100.0, ProjectPriceWithEMA(flat, 30, 7, 21), 1e-9)
}

func TestProjectPriceWithEMA_Floor(t *testing.T) {
	crash := append(constantValues(30, 1000), 10, 10, 10, 10, 10, 10, 10)
	current := crash[len(crash)-1]

	assert.Equal(t, current*0.5, ProjectPriceWithEMA(crash, 365, 7, 21))
}

func TestProjectPriceWithSMA_Clamped(t *testing.T) {
	rising := linearValues(40, 100, 5)
	current := rising[len(rising)-1]

	projected := ProjectPriceWithSMA(rising, 1000)
	assert.Equal(t, current*1.3, projected)

	falling := linearValues(40, 300, -5)
	current = falling[len(falling)-1]
	assert.Equal(t, current*0.7, ProjectPriceWithSMA(falling, 1000))
}
