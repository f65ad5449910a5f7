package node

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/cache"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/indicator"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Handle names.
const (
	HandleStart    = "start"
	HandleInput    = "input"
	HandleElse     = "else"
	HandleVariable = "variable"
)

func KlineHandle(configID int) string     { return "kline_" + strconv.Itoa(configID) }
func IndicatorHandle(configID int) string { return "indicator_" + strconv.Itoa(configID) }
func CaseHandle(caseID int) string        { return "case_" + strconv.Itoa(caseID) }
func OrderHandle(configID int) string     { return "order_" + strconv.Itoa(configID) }
func PositionHandle(configID int) string  { return "position_" + strconv.Itoa(configID) }

// ConfigInputHandle is the input of one order config or position operation.
func ConfigInputHandle(configID int) string { return "input_" + strconv.Itoa(configID) }

// PriceFeed receives the bars kline nodes replay. The virtual trading system
// implements it.
type PriceFeed interface {
	TrackKline(k key.KlineKey) key.KlineKey
	OnKline(ctx context.Context, k key.KlineKey, bar types.Kline) error
}

// CycleReporter is told when a leaf node finished a play index.
type CycleReporter interface {
	Report(nodeID string, playIndex int64)
}

// ExchangeRegistry records the exchanges the nodes of a strategy trade on.
type ExchangeRegistry interface {
	Register(exchange string) error
	List() []string
}

// Services are the strategy-owned dependencies injected into every node.
// Nodes never own them.
type Services struct {
	StrategyID int64
	Bus        *bus.Bus
	Cache      cache.Cache
	Router     *graph.Router
	History    datasource.HistorySource
	Exchanges  ExchangeRegistry
	Indicators indicator.Registry
	Prices     PriceFeed
	Cycles     CycleReporter
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// ExchangeSet is an ExchangeRegistry. When created with a list of supported
// exchanges, other names are rejected.
type ExchangeSet struct {
	mu        sync.RWMutex
	supported map[string]bool
	names     map[string]bool
}

var _ ExchangeRegistry = (*ExchangeSet)(nil)

func NewExchangeSet(supported ...string) *ExchangeSet {
	s := &ExchangeSet{
		mu:        sync.RWMutex{},
		supported: make(map[string]bool, len(supported)),
		names:     make(map[string]bool),
	}

	for _, name := range supported {
		s.supported[strings.ToLower(name)] = true
	}

	return s
}

func (s *ExchangeSet) Register(exchange string) error {
	name := strings.ToLower(strings.TrimSpace(exchange))
	if name == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "exchange name is empty")
	}

	if len(s.supported) > 0 && !s.supported[name] {
		return errors.Newf(errors.ErrCodeInvalidParameter, "exchange %s is not supported", exchange).
			WithDetail("exchange", exchange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.names[name] = true

	return nil
}

func (s *ExchangeSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// PlayIndexCommand is sent on bus.TopicStrategy to start a play index.
type PlayIndexCommand struct {
	StrategyID int64
	PlayIndex  int64
}

// StateChanged is published on bus.TopicNode after every transition.
type StateChanged struct {
	NodeID string
	Name   string
	Kind   Kind
	From   statemachine.RunState
	To     statemachine.RunState
	Reason string
}

// KlineEvent is published on bus.TopicMarket for every replayed bar.
type KlineEvent struct {
	NodeID    string
	PlayIndex int64
	Key       key.KlineKey
	Kline     types.Kline
}

func unsupportedAction(b *base, action statemachine.ActionKind) error {
	return errors.Newf(errors.ErrCodeActionFailed, "node %s does not handle %s", b.name, action)
}
