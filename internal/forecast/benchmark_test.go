package forecast

import (
	"testing"

	"github.com/irfndi/commodity-forecast/internal/models"
)

func benchmarkConfig() PredictorConfig {
	cfg := DefaultPredictorConfig()
	cfg.IncludeARIMA = true
	cfg.IncludeHoltWinters = true
	return cfg
}

// BenchmarkPredictPrice measures the full ensemble on half a year of prices
func BenchmarkPredictPrice(b *testing.B) {
	series := makeSeries(seasonalValues(180)...)
	cfg := benchmarkConfig()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := PredictPriceWithConfig(series, 14, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPredictPriceParallel runs independent predictions concurrently
func BenchmarkPredictPriceParallel(b *testing.B) {
	series := makeSeries(seasonalValues(180)...)
	cfg := benchmarkConfig()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := PredictPriceWithConfig(series, 7, cfg); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkAutoARIMA(b *testing.B) {
	values := noisyValues(180, 100, 5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AutoARIMA(values, 14)
	}
}

func BenchmarkAutoHoltWinters(b *testing.B) {
	values := seasonalValues(180)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AutoHoltWinters(values, 14, 7)
	}
}

func BenchmarkPredictMultipleHorizons(b *testing.B) {
	series := makeSeries(noisyValues(120, 100, 3)...)
	horizons := []int{7, 14, 30, 60, 90}
	cfg := benchmarkConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results, failures := PredictMultipleHorizonsWithConfig(series, horizons, cfg)
		if len(failures) > 0 || len(results) != len(horizons) {
			b.Fatalf("unexpected failures: %v", failures)
		}
	}
}

var sinkVolatility models.VolatilityResult

func BenchmarkAnalyzeVolatility(b *testing.B) {
	series := makeSeries(noisyValues(365, 100, 8)...)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sinkVolatility = AnalyzeVolatility(series, DefaultATRPeriod)
	}
}
