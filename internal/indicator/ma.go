package indicator

import "github.com/rxtech-lab/argo-strategy/internal/types"

// MA is the simple moving average of closes.
type MA struct {
	period int
}

// NewMA builds an SMA. Parameters: period (default 20).
func NewMA(cfg Config) (Indicator, error) {
	period, err := cfg.Int("period", 20)
	if err != nil {
		return nil, err
	}

	return &MA{period: period}, nil
}

func (m *MA) Name() string      { return "sma" }
func (m *MA) Outputs() []string { return []string{ValueOutput} }
func (m *MA) Required() int     { return m.period }
func (m *MA) Window() int       { return m.period }

func (m *MA) Compute(klines []types.Kline) (map[string]float64, error) {
	if len(klines) < m.period {
		return nil, insufficient(m.Name(), m.period, len(klines))
	}

	return map[string]float64{ValueOutput: simpleMovingAverage(closes(klines[len(klines)-m.period:]))}, nil
}

func simpleMovingAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
