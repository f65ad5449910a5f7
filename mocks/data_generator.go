package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// DataGenerator generates kline series for tests and benchmarks.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a generator. The same seed yields the same bars.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures a generated series.
type GeneratorConfig struct {
	StartTime time.Time
	// Interval is the duration between two bars
	Interval time.Duration
	Count    int
	// InitialPrice is the open of the first bar
	InitialPrice float64
	// Volatility controls price movement (0.01 = 1% per bar)
	Volatility float64
	// Trend is the drift over the whole series (-0.01 to 0.01 for bearish to bullish)
	Trend          float64
	VolumeBase     float64
	VolumeVariance float64
}

func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:       time.Minute,
		Count:          1000,
		InitialPrice:   100.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Generate creates a series following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Kline {
	bars := make([]types.Kline, config.Count)
	price := config.InitialPrice
	t := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := price

		// Box-Muller
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		close := open * (1 + config.Volatility*z + drift)
		if close <= 0 {
			close = open * 0.99
		}

		high := math.Max(open, close) + math.Abs(g.rng.Float64()*config.Volatility*open*0.5)
		low := math.Min(open, close) - math.Abs(g.rng.Float64()*config.Volatility*open*0.5)

		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volume := config.VolumeBase * (1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Kline{
			Time:   t,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(close, 4),
			Volume: roundToDecimals(volume, 2),
		}

		price = close
		t = t.Add(config.Interval)
	}

	return bars
}

// Seed generates a series per symbol and registers them on source under the
// given exchange and interval.
func (g *DataGenerator) Seed(source *datasource.MemorySource, exchange, interval string, symbols []string, config GeneratorConfig) map[string][]types.Kline {
	series := make(map[string][]types.Kline, len(symbols))

	for _, symbol := range symbols {
		c := config
		c.InitialPrice = config.InitialPrice * (0.8 + g.rng.Float64()*0.4)

		bars := g.Generate(c)
		series[symbol] = bars
		source.Add(key.NewKlineKey(exchange, symbol, interval), bars)
	}

	return series
}

// Linear returns bars whose open, high, low and close all equal the given
// prices, one bar per price.
func Linear(start time.Time, interval time.Duration, prices ...float64) []types.Kline {
	bars := make([]types.Kline, 0, len(prices))

	for i, p := range prices {
		bars = append(bars, types.Kline{
			Time:   start.Add(time.Duration(i) * interval),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1,
		})
	}

	return bars
}

func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
