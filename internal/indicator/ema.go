package indicator

import "github.com/rxtech-lab/argo-strategy/internal/types"

// EMA is the exponential moving average of closes, seeded with the SMA of the
// first period values.
type EMA struct {
	period int
}

// NewEMA builds an EMA. Parameters: period (default 20).
func NewEMA(cfg Config) (Indicator, error) {
	period, err := cfg.Int("period", 20)
	if err != nil {
		return nil, err
	}

	return &EMA{period: period}, nil
}

func (e *EMA) Name() string      { return "ema" }
func (e *EMA) Outputs() []string { return []string{ValueOutput} }
func (e *EMA) Required() int     { return e.period }
func (e *EMA) Window() int       { return e.period * 3 }

func (e *EMA) Compute(klines []types.Kline) (map[string]float64, error) {
	series := emaSeries(closes(klines), e.period)
	if len(series) == 0 {
		return nil, insufficient(e.Name(), e.period, len(klines))
	}

	return map[string]float64{ValueOutput: series[len(series)-1]}, nil
}

// emaSeries returns one EMA value per input from index period-1 on.
// alpha = 2/(period+1), matching pandas ewm(span=period, adjust=False).
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	ema := simpleMovingAverage(values[:period])
	out = append(out, ema)

	for i := period; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		out = append(out, ema)
	}

	return out
}
