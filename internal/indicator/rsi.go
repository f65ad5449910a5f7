package indicator

import "github.com/rxtech-lab/argo-strategy/internal/types"

// RSI is the relative strength index with Wilder's smoothing.
type RSI struct {
	period int
}

// NewRSI builds an RSI. Parameters: period (default 14).
func NewRSI(cfg Config) (Indicator, error) {
	period, err := cfg.Int("period", 14)
	if err != nil {
		return nil, err
	}

	return &RSI{period: period}, nil
}

func (r *RSI) Name() string      { return "rsi" }
func (r *RSI) Outputs() []string { return []string{ValueOutput} }
func (r *RSI) Required() int     { return r.period + 1 }
func (r *RSI) Window() int       { return r.period*3 + 1 }

func (r *RSI) Compute(klines []types.Kline) (map[string]float64, error) {
	if len(klines) < r.Required() {
		return nil, insufficient(r.Name(), r.Required(), len(klines))
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close

		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		if i <= r.period {
			avgGain += gain / float64(r.period)
			avgLoss += loss / float64(r.period)

			continue
		}

		avgGain = (avgGain*float64(r.period-1) + gain) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	if avgLoss == 0 {
		return map[string]float64{ValueOutput: 100}, nil
	}

	rs := avgGain / avgLoss

	return map[string]float64{ValueOutput: 100 - 100/(1+rs)}, nil
}
