package indicator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Config is a parsed indicator config string such as "sma(period=20)" or
// "macd(fast=12,slow=26,signal=9)". A bare name like "rsi" uses the defaults.
type Config struct {
	Name   string
	Params map[string]string
}

// ParseConfig parses an indicator config string.
func ParseConfig(s string) (Config, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Config{}, errors.New(errors.ErrCodeInvalidIndicatorConfig, "empty indicator config")
	}

	name, rest, hasParams := strings.Cut(s, "(")
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" {
		return Config{}, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "missing indicator name in %q", s)
	}

	cfg := Config{Name: name, Params: make(map[string]string)}
	if !hasParams {
		return cfg, nil
	}

	if !strings.HasSuffix(rest, ")") {
		return Config{}, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "unclosed parameter list in %q", s)
	}

	body := strings.TrimSpace(strings.TrimSuffix(rest, ")"))
	if body == "" {
		return cfg, nil
	}

	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)

		if !ok || k == "" || v == "" {
			return Config{}, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "invalid parameter %q in %q", pair, s)
		}

		cfg.Params[k] = v
	}

	return cfg, nil
}

// Int returns a positive integer parameter, or def when it is absent.
func (c Config) Int(name string, def int) (int, error) {
	raw, ok := c.Params[name]
	if !ok {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "%s: %s must be a positive integer, got %q", c.Name, name, raw)
	}

	return v, nil
}

// Float returns a positive float parameter, or def when it is absent.
func (c Config) Float(name string, def float64) (float64, error) {
	raw, ok := c.Params[name]
	if !ok {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "%s: %s must be a positive number, got %q", c.Name, name, raw)
	}

	return v, nil
}

// String renders the config with its parameters sorted by name.
func (c Config) String() string {
	if len(c.Params) == 0 {
		return c.Name
	}

	names := make([]string, 0, len(c.Params))
	for k := range c.Params {
		names = append(names, k)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+c.Params[k])
	}

	return c.Name + "(" + strings.Join(parts, ",") + ")"
}
