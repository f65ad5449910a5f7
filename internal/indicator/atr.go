package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// ATR is the average true range with Wilder's smoothing.
type ATR struct {
	period int
}

// NewATR builds an ATR. Parameters: period (default 14).
func NewATR(cfg Config) (Indicator, error) {
	period, err := cfg.Int("period", 14)
	if err != nil {
		return nil, err
	}

	return &ATR{period: period}, nil
}

func (a *ATR) Name() string      { return "atr" }
func (a *ATR) Outputs() []string { return []string{ValueOutput} }
func (a *ATR) Required() int     { return a.period + 1 }
func (a *ATR) Window() int       { return a.period*3 + 1 }

func (a *ATR) Compute(klines []types.Kline) (map[string]float64, error) {
	if len(klines) < a.Required() {
		return nil, insufficient(a.Name(), a.Required(), len(klines))
	}

	atr := 0.0

	for i := 1; i < len(klines); i++ {
		tr := trueRange(klines[i], klines[i-1].Close)

		if i <= a.period {
			atr += tr / float64(a.period)

			continue
		}

		atr = (atr*float64(a.period-1) + tr) / float64(a.period)
	}

	return map[string]float64{ValueOutput: atr}, nil
}

func trueRange(k types.Kline, prevClose float64) float64 {
	return math.Max(
		k.High-k.Low,
		math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)),
	)
}
