// Package testhelper generates deterministic kline series and writes them in
// the parquet layout the DuckDB data source reads.
package testhelper

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// SimulationPattern is the shape of a generated price series.
type SimulationPattern string

const (
	// PatternIncreasing trends up with noise.
	PatternIncreasing SimulationPattern = "increasing"
	// PatternDecreasing trends down with noise.
	PatternDecreasing SimulationPattern = "decreasing"
	// PatternVolatile moves randomly but never draws down more than MaxDrawdownPercent from the peak.
	PatternVolatile SimulationPattern = "volatile"
	// PatternOscillating follows a sine wave around InitialPrice.
	PatternOscillating SimulationPattern = "oscillating"
)

const (
	// DefaultMinimumPrice keeps generated prices positive.
	DefaultMinimumPrice = 0.01
	// DefaultBaseVolume is the mean generated volume.
	DefaultBaseVolume = 1000000.0
	// DefaultIncreasingNoiseBias shifts the noise of PatternIncreasing upwards.
	DefaultIncreasingNoiseBias = 0.3
	// DefaultDecreasingNoiseBias shifts the noise of PatternDecreasing downwards.
	DefaultDecreasingNoiseBias = 0.7
	// DefaultVolatileUpwardBias gives PatternVolatile a slight upward drift.
	DefaultVolatileUpwardBias = 0.45
)

// MockDataConfig configures one generated series.
type MockDataConfig struct {
	Symbol    string
	StartTime time.Time
	Interval  time.Duration
	// NumDataPoints is the number of bars.
	NumDataPoints int
	Pattern       SimulationPattern
	InitialPrice  float64
	// MaxDrawdownPercent bounds PatternVolatile.
	MaxDrawdownPercent float64
	// VolatilityPercent scales the noise and the bar ranges.
	VolatilityPercent float64
	// TrendStrength is the drift per bar of the trending patterns, 0.01 is 1%.
	TrendStrength float64
	// AmplitudePercent and Period shape PatternOscillating.
	AmplitudePercent float64
	Period           int
	// Seed makes the series reproducible. Zero seeds from the clock.
	Seed int64
}

// MockDataGenerator generates a kline series.
type MockDataGenerator struct {
	config MockDataConfig
	rng    *rand.Rand
}

func NewMockDataGenerator(config MockDataConfig) *MockDataGenerator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if config.InitialPrice <= 0 {
		config.InitialPrice = 100.0
	}

	if config.TrendStrength <= 0 {
		config.TrendStrength = 0.01
	}

	if config.VolatilityPercent <= 0 {
		config.VolatilityPercent = 2.0
	}

	if config.MaxDrawdownPercent <= 0 {
		config.MaxDrawdownPercent = 10.0
	}

	if config.AmplitudePercent <= 0 {
		config.AmplitudePercent = 10.0
	}

	if config.Period <= 0 {
		config.Period = 60
	}

	return &MockDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Generate returns NumDataPoints consecutive bars.
func (g *MockDataGenerator) Generate() ([]types.Kline, error) {
	if g.config.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	if g.config.StartTime.IsZero() {
		return nil, fmt.Errorf("start time is required")
	}

	if g.config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	if g.config.NumDataPoints <= 0 {
		return nil, fmt.Errorf("number of data points must be positive")
	}

	data := make([]types.Kline, g.config.NumDataPoints)
	currentPrice := g.config.InitialPrice
	peakPrice := currentPrice
	currentTime := g.config.StartTime

	for i := range data {
		var newPrice float64

		switch g.config.Pattern {
		case PatternIncreasing:
			newPrice = currentPrice + g.trendChange(currentPrice, 1, DefaultIncreasingNoiseBias)
		case PatternDecreasing:
			newPrice = currentPrice + g.trendChange(currentPrice, -1, DefaultDecreasingNoiseBias)
		case PatternVolatile:
			newPrice = currentPrice + g.volatileChange(currentPrice, peakPrice)
		case PatternOscillating:
			newPrice = g.oscillatingPrice(i + 1)
		default:
			return nil, fmt.Errorf("unknown pattern: %s", g.config.Pattern)
		}

		if newPrice <= 0 {
			newPrice = DefaultMinimumPrice
		}

		open := currentPrice
		closePrice := newPrice
		spread := math.Max(open, closePrice) * (g.config.VolatilityPercent / 100.0) * 0.5

		high := math.Max(open, closePrice) + g.rng.Float64()*spread
		low := math.Min(open, closePrice) - g.rng.Float64()*spread

		if low <= 0 {
			low = DefaultMinimumPrice
		}

		data[i] = types.Kline{
			Time:   currentTime,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: DefaultBaseVolume * (0.5 + g.rng.Float64()),
		}

		currentPrice = newPrice
		currentTime = currentTime.Add(g.config.Interval)

		if currentPrice > peakPrice {
			peakPrice = currentPrice
		}
	}

	return data, nil
}

func (g *MockDataGenerator) trendChange(price, direction, bias float64) float64 {
	trend := direction * price * g.config.TrendStrength
	noise := price * (g.config.VolatilityPercent / 100.0) * (g.rng.Float64() - bias)

	return trend + noise
}

func (g *MockDataGenerator) volatileChange(price, peak float64) float64 {
	change := price * (g.config.VolatilityPercent / 100.0) * (g.rng.Float64() - DefaultVolatileUpwardBias)
	floor := peak * (1 - g.config.MaxDrawdownPercent/100.0)

	if price+change < floor {
		change = floor + g.rng.Float64()*(g.config.VolatilityPercent/100.0)*price - price
	}

	return change
}

func (g *MockDataGenerator) oscillatingPrice(step int) float64 {
	phase := 2 * math.Pi * float64(step) / float64(g.config.Period)
	noise := g.config.InitialPrice * (g.config.VolatilityPercent / 100.0) * 0.1 * (g.rng.Float64() - 0.5)

	return g.config.InitialPrice*(1+g.config.AmplitudePercent/100.0*math.Sin(phase)) + noise
}

// WriteToParquet writes bars of several symbols into one parquet file with
// the columns time, symbol, open, high, low, close and volume.
func WriteToParquet(series map[string][]types.Kline, outputPath string) error {
	if len(series) == 0 {
		return fmt.Errorf("no data to write")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE market_data (
			time TIMESTAMP,
			symbol VARCHAR,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO market_data (time, symbol, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for symbol, bars := range series {
		for _, bar := range bars {
			if _, err := stmt.Exec(bar.Time, symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
				return fmt.Errorf("failed to insert data: %w", err)
			}
		}
	}

	if _, err := db.Exec(fmt.Sprintf(`COPY market_data TO '%s' (FORMAT PARQUET)`, outputPath)); err != nil {
		return fmt.Errorf("failed to export to parquet: %w", err)
	}

	return nil
}

// GenerateAndWriteToParquet generates one series per config and writes them
// into outputPath.
func GenerateAndWriteToParquet(outputPath string, configs ...MockDataConfig) error {
	series := make(map[string][]types.Kline, len(configs))

	for _, config := range configs {
		data, err := NewMockDataGenerator(config).Generate()
		if err != nil {
			return fmt.Errorf("failed to generate mock data for %s: %w", config.Symbol, err)
		}

		series[config.Symbol] = append(series[config.Symbol], data...)
	}

	return WriteToParquet(series, outputPath)
}
