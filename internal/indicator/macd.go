package indicator

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// MACD is the difference of a fast and a slow EMA, with an EMA signal line.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD builds a MACD. Parameters: fast (12), slow (26), signal (9).
func NewMACD(cfg Config) (Indicator, error) {
	fast, err := cfg.Int("fast", 12)
	if err != nil {
		return nil, err
	}

	slow, err := cfg.Int("slow", 26)
	if err != nil {
		return nil, err
	}

	signal, err := cfg.Int("signal", 9)
	if err != nil {
		return nil, err
	}

	if fast >= slow {
		return nil, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "macd: fast period %d must be below slow period %d", fast, slow)
	}

	return &MACD{fastPeriod: fast, slowPeriod: slow, signalPeriod: signal}, nil
}

func (m *MACD) Name() string      { return "macd" }
func (m *MACD) Outputs() []string { return []string{"macd", "signal", "histogram"} }
func (m *MACD) Required() int     { return m.slowPeriod + m.signalPeriod - 1 }
func (m *MACD) Window() int       { return m.Required() * 3 }

func (m *MACD) Compute(klines []types.Kline) (map[string]float64, error) {
	if len(klines) < m.Required() {
		return nil, insufficient(m.Name(), m.Required(), len(klines))
	}

	values := closes(klines)
	fast := emaSeries(values, m.fastPeriod)
	slow := emaSeries(values, m.slowPeriod)

	// fast starts fastPeriod-1 bars in, slow starts slowPeriod-1 bars in.
	offset := m.slowPeriod - m.fastPeriod
	line := make([]float64, len(slow))

	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}

	signal := emaSeries(line, m.signalPeriod)
	macd := line[len(line)-1]
	sig := signal[len(signal)-1]

	return map[string]float64{
		"macd":      macd,
		"signal":    sig,
		"histogram": macd - sig,
	}, nil
}
