package indicator

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Factory builds an indicator from its parsed config.
type Factory func(cfg Config) (Indicator, error)

// Registry maps indicator names to factories.
type Registry interface {
	Register(name string, factory Factory) error
	// New parses config and builds the indicator it names.
	New(config string) (Indicator, error)
	List() []string
	Remove(name string) error
}

// RegistryV1 is the default Registry implementation.
type RegistryV1 struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var _ Registry = (*RegistryV1)(nil)

// NewRegistry creates a registry holding every built-in indicator.
func NewRegistry() *RegistryV1 {
	r := &RegistryV1{
		factories: make(map[string]Factory),
		mu:        sync.RWMutex{},
	}

	for name, factory := range map[string]Factory{
		"sma":  NewMA,
		"ma":   NewMA,
		"ema":  NewEMA,
		"rsi":  NewRSI,
		"bb":   NewBollingerBands,
		"macd": NewMACD,
		"atr":  NewATR,
	} {
		r.factories[name] = factory
	}

	return r
}

// Register adds a factory under name.
func (r *RegistryV1) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "indicator %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

func (r *RegistryV1) New(config string) (Indicator, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[cfg.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "unknown indicator %q", cfg.Name)
	}

	return factory(cfg)
}

// List returns the registered names sorted.
func (r *RegistryV1) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *RegistryV1) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return errors.Newf(errors.ErrCodeInvalidIndicatorConfig, "indicator %s not found", name)
	}

	delete(r.factories, name)

	return nil
}
