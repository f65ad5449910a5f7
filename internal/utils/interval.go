package utils

import (
	"strconv"
	"time"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

var intervalUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	// a calendar month is approximated as 30 days
	'M': 30 * 24 * time.Hour,
}

// ParseInterval parses a kline interval such as "1m", "15m", "4h", "1d" or "1M".
func ParseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "invalid interval %q", interval)
	}

	unit, ok := intervalUnits[interval[len(interval)-1]]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "invalid interval unit in %q", interval)
	}

	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "invalid interval count in %q", interval)
	}

	return time.Duration(n) * unit, nil
}

// ShorterInterval reports whether a is strictly shorter than b. Unparseable
// intervals sort after every valid one.
func ShorterInterval(a, b string) bool {
	da, errA := ParseInterval(a)
	db, errB := ParseInterval(b)

	switch {
	case errA != nil:
		return false
	case errB != nil:
		return true
	default:
		return da < db
	}
}
