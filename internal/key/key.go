// Package key defines the canonical identifiers for cached market data.
//
// A key is both a cache lookup key and a message payload, so its string form is
// stable and must round-trip through Parse:
//
//	kline|<exchange>|<symbol>|<interval>
//	kline|<exchange>|<symbol>|<interval>|<start>|<end>
//	indicator|<exchange>|<symbol>|<interval>|<indicator_config>
//	indicator|<exchange>|<symbol>|<interval>|<indicator_config>|<start>|<end>
//
// Start and end are RFC3339 timestamps in UTC.
package key

import (
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Kind is the discriminator of a Key.
type Kind string

const (
	KindKline     Kind = "kline"
	KindIndicator Kind = "indicator"
)

const separator = "|"

// Key is implemented by KlineKey and IndicatorKey.
type Key interface {
	Kind() Kind
	String() string
	GetExchange() string
	GetSymbol() string
	GetInterval() string
	GetTimeRange() optional.Option[TimeRange]
}

// TimeRange bounds the data a key refers to.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// KlineKey identifies a kline series.
type KlineKey struct {
	Exchange  string                     `json:"exchange" validate:"required"`
	Symbol    string                     `json:"symbol" validate:"required"`
	Interval  string                     `json:"interval" validate:"required"`
	TimeRange optional.Option[TimeRange] `json:"time_range"`
}

// NewKlineKey creates a kline key without a time range.
func NewKlineKey(exchange, symbol, interval string) KlineKey {
	return KlineKey{
		Exchange:  exchange,
		Symbol:    symbol,
		Interval:  interval,
		TimeRange: optional.None[TimeRange](),
	}
}

// WithTimeRange returns a copy of k bounded by [start, end].
func (k KlineKey) WithTimeRange(start, end time.Time) KlineKey {
	k.TimeRange = optional.Some(TimeRange{Start: start.UTC(), End: end.UTC()})

	return k
}

func (k KlineKey) Kind() Kind                               { return KindKline }
func (k KlineKey) GetExchange() string                      { return k.Exchange }
func (k KlineKey) GetSymbol() string                        { return k.Symbol }
func (k KlineKey) GetInterval() string                      { return k.Interval }
func (k KlineKey) GetTimeRange() optional.Option[TimeRange] { return k.TimeRange }

func (k KlineKey) String() string {
	fields := []string{string(KindKline), k.Exchange, k.Symbol, k.Interval}

	return strings.Join(appendTimeRange(fields, k.TimeRange), separator)
}

// Equal compares two kline keys including their time ranges.
func (k KlineKey) Equal(other KlineKey) bool {
	return k.String() == other.String()
}

// IndicatorKey identifies an indicator series computed over a kline series.
type IndicatorKey struct {
	Exchange        string                     `json:"exchange" validate:"required"`
	Symbol          string                     `json:"symbol" validate:"required"`
	Interval        string                     `json:"interval" validate:"required"`
	IndicatorConfig string                     `json:"indicator_config" validate:"required"`
	TimeRange       optional.Option[TimeRange] `json:"time_range"`
}

// NewIndicatorKey creates an indicator key without a time range.
func NewIndicatorKey(exchange, symbol, interval, indicatorConfig string) IndicatorKey {
	return IndicatorKey{
		Exchange:        exchange,
		Symbol:          symbol,
		Interval:        interval,
		IndicatorConfig: indicatorConfig,
		TimeRange:       optional.None[TimeRange](),
	}
}

// WithTimeRange returns a copy of k bounded by [start, end].
func (k IndicatorKey) WithTimeRange(start, end time.Time) IndicatorKey {
	k.TimeRange = optional.Some(TimeRange{Start: start.UTC(), End: end.UTC()})

	return k
}

// KlineKey returns the key of the kline series the indicator is computed from.
func (k IndicatorKey) KlineKey() KlineKey {
	return KlineKey{
		Exchange:  k.Exchange,
		Symbol:    k.Symbol,
		Interval:  k.Interval,
		TimeRange: k.TimeRange,
	}
}

func (k IndicatorKey) Kind() Kind                               { return KindIndicator }
func (k IndicatorKey) GetExchange() string                      { return k.Exchange }
func (k IndicatorKey) GetSymbol() string                        { return k.Symbol }
func (k IndicatorKey) GetInterval() string                      { return k.Interval }
func (k IndicatorKey) GetTimeRange() optional.Option[TimeRange] { return k.TimeRange }

func (k IndicatorKey) String() string {
	fields := []string{string(KindIndicator), k.Exchange, k.Symbol, k.Interval, k.IndicatorConfig}

	return strings.Join(appendTimeRange(fields, k.TimeRange), separator)
}

// Equal compares two indicator keys including their time ranges.
func (k IndicatorKey) Equal(other IndicatorKey) bool {
	return k.String() == other.String()
}

// Parse parses any key string. The leading field selects the key kind.
func Parse(s string) (Key, error) {
	kind, _, _ := strings.Cut(s, separator)

	switch Kind(kind) {
	case KindKline:
		return ParseKlineKey(s)
	case KindIndicator:
		return ParseIndicatorKey(s)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidKey, "unknown key kind %q in %q", kind, s)
	}
}

// ParseKlineKey parses a kline key. Only 4 or 6 fields are accepted.
func ParseKlineKey(s string) (KlineKey, error) {
	fields := strings.Split(s, separator)
	if fields[0] != string(KindKline) {
		return KlineKey{}, errors.Newf(errors.ErrCodeInvalidKey, "not a kline key: %q", s)
	}

	if len(fields) != 4 && len(fields) != 6 {
		return KlineKey{}, errors.Newf(errors.ErrCodeInvalidKey, "kline key must have 4 or 6 fields, got %d: %q", len(fields), s)
	}

	if err := requireFields(s, fields[1:4]); err != nil {
		return KlineKey{}, err
	}

	k := NewKlineKey(fields[1], fields[2], fields[3])

	if len(fields) == 6 {
		tr, err := parseTimeRange(s, fields[4], fields[5])
		if err != nil {
			return KlineKey{}, err
		}

		k.TimeRange = optional.Some(tr)
	}

	return k, nil
}

// ParseIndicatorKey parses an indicator key. Only 5 or 7 fields are accepted.
func ParseIndicatorKey(s string) (IndicatorKey, error) {
	fields := strings.Split(s, separator)
	if fields[0] != string(KindIndicator) {
		return IndicatorKey{}, errors.Newf(errors.ErrCodeInvalidKey, "not an indicator key: %q", s)
	}

	if len(fields) != 5 && len(fields) != 7 {
		return IndicatorKey{}, errors.Newf(errors.ErrCodeInvalidKey, "indicator key must have 5 or 7 fields, got %d: %q", len(fields), s)
	}

	if err := requireFields(s, fields[1:5]); err != nil {
		return IndicatorKey{}, err
	}

	k := NewIndicatorKey(fields[1], fields[2], fields[3], fields[4])

	if len(fields) == 7 {
		tr, err := parseTimeRange(s, fields[5], fields[6])
		if err != nil {
			return IndicatorKey{}, err
		}

		k.TimeRange = optional.Some(tr)
	}

	return k, nil
}

func appendTimeRange(fields []string, tr optional.Option[TimeRange]) []string {
	if r, err := tr.Take(); err == nil {
		fields = append(fields, r.Start.UTC().Format(time.RFC3339Nano), r.End.UTC().Format(time.RFC3339Nano))
	}

	return fields
}

func requireFields(s string, fields []string) error {
	for _, f := range fields {
		if f == "" {
			return errors.Newf(errors.ErrCodeInvalidKeyField, "empty field in key %q", s)
		}
	}

	return nil
}

func parseTimeRange(s, start, end string) (TimeRange, error) {
	startTime, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return TimeRange{}, errors.Wrapf(errors.ErrCodeInvalidKeyField, err, "invalid start time in key %q", s)
	}

	endTime, err := time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return TimeRange{}, errors.Wrapf(errors.ErrCodeInvalidKeyField, err, "invalid end time in key %q", s)
	}

	return TimeRange{Start: startTime.UTC(), End: endTime.UTC()}, nil
}
