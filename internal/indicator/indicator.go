// Package indicator computes technical indicators over cached klines.
package indicator

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// ValueOutput is the output name of single-valued indicators.
const ValueOutput = "value"

// Indicator computes one point from a window of klines ordered oldest first.
type Indicator interface {
	// Name returns the registry name, e.g. "sma".
	Name() string
	// Outputs lists the keys of the computed values.
	Outputs() []string
	// Required is the minimum number of klines Compute accepts.
	Required() int
	// Window is the number of klines callers should pass. It is never below Required.
	Window() int
	// Compute returns the value at the newest kline of the window.
	Compute(klines []types.Kline) (map[string]float64, error)
}

// Calculate runs ind over klines and stamps the result with the newest kline's time.
func Calculate(ind Indicator, klines []types.Kline) (types.IndicatorValue, error) {
	if len(klines) < ind.Required() {
		return types.IndicatorValue{}, errors.NewInsufficientDataErrorf(ind.Required(), len(klines), "",
			"insufficient data for %s: required %d, got %d", ind.Name(), ind.Required(), len(klines))
	}

	values, err := ind.Compute(klines)
	if err != nil {
		return types.IndicatorValue{}, err
	}

	return types.IndicatorValue{
		Time:   klines[len(klines)-1].Time,
		Values: values,
	}, nil
}

func closes(klines []types.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}

	return out
}

func insufficient(name string, required, actual int) error {
	return errors.NewInsufficientDataErrorf(required, actual, "", "insufficient data for %s: required %d, got %d", name, required, actual)
}
