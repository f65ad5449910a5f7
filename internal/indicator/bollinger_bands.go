package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// BollingerBands are an SMA with bands std standard deviations away.
type BollingerBands struct {
	period int
	stdDev float64
}

// NewBollingerBands builds Bollinger Bands. Parameters: period (default 20), std (default 2).
func NewBollingerBands(cfg Config) (Indicator, error) {
	period, err := cfg.Int("period", 20)
	if err != nil {
		return nil, err
	}

	stdDev, err := cfg.Float("std", 2)
	if err != nil {
		return nil, err
	}

	return &BollingerBands{period: period, stdDev: stdDev}, nil
}

func (bb *BollingerBands) Name() string      { return "bb" }
func (bb *BollingerBands) Outputs() []string { return []string{"upper", "middle", "lower"} }
func (bb *BollingerBands) Required() int     { return bb.period }
func (bb *BollingerBands) Window() int       { return bb.period }

func (bb *BollingerBands) Compute(klines []types.Kline) (map[string]float64, error) {
	if len(klines) < bb.period {
		return nil, insufficient(bb.Name(), bb.period, len(klines))
	}

	window := closes(klines[len(klines)-bb.period:])
	middle := simpleMovingAverage(window)

	var squaredDiffSum float64
	for _, v := range window {
		diff := v - middle
		squaredDiffSum += diff * diff
	}

	sd := math.Sqrt(squaredDiffSum / float64(bb.period))

	return map[string]float64{
		"upper":  middle + bb.stdDev*sd,
		"middle": middle,
		"lower":  middle - bb.stdDev*sd,
	}, nil
}
