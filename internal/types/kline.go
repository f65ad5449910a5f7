package types

import "time"

// Timestamped is implemented by every value stored in a cache entry.
type Timestamped interface {
	GetTime() time.Time
}

// Kline is a single OHLCV bar of a symbol at an interval.
type Kline struct {
	Time   time.Time `yaml:"time" json:"time" csv:"time" validate:"required"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

func (k Kline) GetTime() time.Time { return k.Time }

// Field returns a named OHLCV field. ok is false for unknown names.
func (k Kline) Field(name string) (value float64, ok bool) {
	switch name {
	case "open":
		return k.Open, true
	case "high":
		return k.High, true
	case "low":
		return k.Low, true
	case "close":
		return k.Close, true
	case "volume":
		return k.Volume, true
	default:
		return 0, false
	}
}

// IndicatorValue is one computed point of an indicator series. Multi-output
// indicators store one entry per output in Values, single-output ones use "value".
type IndicatorValue struct {
	Time   time.Time          `yaml:"time" json:"time"`
	Values map[string]float64 `yaml:"values" json:"values"`
}

func (v IndicatorValue) GetTime() time.Time { return v.Time }
