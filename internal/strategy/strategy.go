// Package strategy runs a strategy graph: it builds the nodes of a config,
// owns the services they share and drives the play index forward.
package strategy

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/cache"
	"github.com/rxtech-lab/argo-strategy/internal/config"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/indicator"
	"github.com/rxtech-lab/argo-strategy/internal/ledger"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/internal/node"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Status is the run status of a strategy.
type Status string

const (
	StatusCreated      Status = "created"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusPlaying      Status = "playing"
	StatusPaused       Status = "paused"
	StatusFinished     Status = "finished"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// Options are the process-wide dependencies shared by the strategies of an
// engine.
type Options struct {
	// History is where kline nodes load their bars from.
	History    datasource.HistorySource
	Indicators indicator.Registry
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	// DisableLedger runs without recording orders, positions and
	// transactions. Stats and Export are then unavailable.
	DisableLedger bool
}

// StatusChanged is published on bus.TopicStrategy after every status change.
type StatusChanged struct {
	StrategyID int64
	From       Status
	To         Status
}

// StepCompleted is published on bus.TopicStrategy after every play index.
type StepCompleted struct {
	StrategyID int64
	RunID      string
	PlayIndex  int64
	TotalSteps int
	Duration   time.Duration
}

// PlayFinished is published on bus.TopicStrategy once the last play index
// completed.
type PlayFinished struct {
	StrategyID int64
	RunID      string
	PlayIndex  int64
}

// NodeState is one node as reported in a snapshot.
type NodeState struct {
	ID    string                `json:"id" yaml:"id"`
	Name  string                `json:"name" yaml:"name"`
	Kind  string                `json:"kind" yaml:"kind"`
	State statemachine.RunState `json:"state" yaml:"state"`
	Leaf  bool                  `json:"leaf" yaml:"leaf"`
}

// Snapshot is the observable state of a strategy.
type Snapshot struct {
	StrategyID     int64                   `json:"strategy_id" yaml:"strategy_id"`
	Name           string                  `json:"name" yaml:"name"`
	RunID          string                  `json:"run_id" yaml:"run_id"`
	Status         Status                  `json:"status" yaml:"status"`
	PlayIndex      int64                   `json:"play_index" yaml:"play_index"`
	TotalSteps     int                     `json:"total_steps" yaml:"total_steps"`
	Exchanges      []string                `json:"exchanges" yaml:"exchanges"`
	Account        types.AccountSnapshot   `json:"account" yaml:"account"`
	Positions      []types.VirtualPosition `json:"positions" yaml:"positions"`
	UnfilledOrders []types.VirtualOrder    `json:"unfilled_orders" yaml:"unfilled_orders"`
	Nodes          []NodeState             `json:"nodes" yaml:"nodes"`
	AvgStep        time.Duration           `json:"avg_step" yaml:"avg_step"`
}

// Strategy owns one graph and every service its nodes share. Control
// operations are serialized; Step is never run concurrently with itself.
type Strategy struct {
	config  config.StrategyConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	label   string

	bus       *bus.Bus
	cache     *cache.CacheV1
	system    *vts.System
	graph     *graph.Graph
	nodes     []*node.Node
	exchanges *node.ExchangeSet
	tracker   *CycleTracker
	ledger    *ledger.Ledger

	// mu serializes control operations.
	mu sync.Mutex
	// stepMu serializes play indexes.
	stepMu sync.Mutex

	status     atomic.Value
	playIndex  atomic.Int64
	totalSteps atomic.Int64
	runID      atomic.Value

	runCtx    context.Context
	runCancel context.CancelFunc

	playCancel context.CancelFunc
	playDone   chan struct{}
}

// New builds the graph of cfg. Nothing runs until Init.
func New(cfg config.StrategyConfig, options Options) (*Strategy, error) {
	if cfg.TradeMode == config.TradeModeLive {
		return nil, errors.Newf(errors.ErrCodeUnsupportedStrategy, "strategy %d: trade mode %s is not supported", cfg.ID, cfg.TradeMode).
			WithDetail("trade_mode", string(cfg.TradeMode))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := options.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	log = log.Named("strategy").WithFields(zap.Int64("strategy_id", cfg.ID), zap.String("strategy", cfg.Name))

	registry := options.Indicators
	if registry == nil {
		registry = indicator.NewRegistry()
	}

	cfg.Account.StrategyID = cfg.ID

	s := &Strategy{
		config:    cfg,
		logger:    log,
		metrics:   options.Metrics,
		label:     strconv.FormatInt(cfg.ID, 10),
		bus:       bus.New(log),
		cache:     cache.NewCacheV1(log),
		exchanges: node.NewExchangeSet(cfg.Runtime.Exchanges...),
		tracker:   NewCycleTracker(),
	}

	s.status.Store(StatusCreated)
	s.runID.Store(uuid.NewString())
	s.playIndex.Store(-1)

	system, err := vts.NewSystem(cfg.Account, s.bus, log, options.Metrics)
	if err != nil {
		return nil, err
	}

	s.system = system
	s.graph = graph.New(log, options.Metrics, cfg.GraphOptions())

	services := node.Services{
		StrategyID: cfg.ID,
		Bus:        s.bus,
		Cache:      s.cache,
		Router:     s.graph.Router(),
		History:    options.History,
		Exchanges:  s.exchanges,
		Indicators: registry,
		Prices:     s.system,
		Cycles:     s.tracker,
		Logger:     log,
		Metrics:    options.Metrics,
	}

	for _, nc := range cfg.Nodes {
		n, err := node.New(nc, services)
		if err != nil {
			return nil, err
		}

		if err := s.graph.AddVertex(n); err != nil {
			return nil, err
		}

		s.nodes = append(s.nodes, n)
	}

	for _, e := range cfg.Edges {
		if err := s.graph.AddEdge(e); err != nil {
			return nil, err
		}
	}

	leaves, err := s.graph.Validate()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(leaves))
	for _, v := range leaves {
		ids = append(ids, v.ID())
	}

	s.tracker.SetLeaves(ids...)

	if !options.DisableLedger {
		if s.ledger, err = ledger.NewLedger(log); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Strategy) ID() int64                     { return s.config.ID }
func (s *Strategy) Name() string                  { return s.config.Name }
func (s *Strategy) Config() config.StrategyConfig { return s.config }
func (s *Strategy) Status() Status                { return s.status.Load().(Status) }
func (s *Strategy) PlayIndex() int64              { return s.playIndex.Load() }
func (s *Strategy) TotalSteps() int               { return int(s.totalSteps.Load()) }
func (s *Strategy) RunID() string                 { return s.runID.Load().(string) }
func (s *Strategy) Bus() *bus.Bus                 { return s.bus }
func (s *Strategy) System() *vts.System           { return s.system }

func (s *Strategy) setStatus(to Status) {
	from := s.status.Swap(to).(Status)
	if from == to {
		return
	}

	s.logger.Debug("status changed", zap.String("from", string(from)), zap.String("to", string(to)))

	// best effort: nobody has to listen
	_ = s.bus.Publish(context.Background(), bus.TopicStrategy, StatusChanged{StrategyID: s.config.ID, From: from, To: to})
}

func (s *Strategy) notReady(op string) error {
	return errors.Newf(errors.ErrCodeStrategyNotReady, "cannot %s strategy %d while %s", op, s.config.ID, s.Status()).
		WithDetail("status", string(s.Status()))
}

// Init starts the trading command server and the ledger and initializes every
// node. A failed init leaves the strategy Failed; only Stop is allowed then.
func (s *Strategy) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != StatusCreated {
		return s.notReady("initialize")
	}

	s.setStatus(StatusInitializing)

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.system.Serve(s.runCtx, s.bus)

	if s.ledger != nil {
		s.ledger.Listen(s.runCtx, s.bus)
	}

	start := time.Now()

	if err := s.graph.InitAll(ctx); err != nil {
		s.logger.Error("initialization failed", zap.Error(err))
		s.setStatus(StatusFailed)

		return err
	}

	s.totalSteps.Store(int64(s.historyLength()))
	s.setStatus(StatusReady)

	s.logger.Info("strategy initialized",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("total_steps", s.TotalSteps()),
		zap.Strings("exchanges", s.exchanges.List()),
		zap.Duration("took", time.Since(start)),
	)

	return nil
}

// historyLength is the shortest history among the kline nodes.
func (s *Strategy) historyLength() int {
	shortest := -1

	for _, n := range s.nodes {
		length := n.HistoryLength()
		if length.IsNone() {
			continue
		}

		if v := length.Unwrap(); shortest < 0 || v < shortest {
			shortest = v
		}
	}

	if shortest < 0 {
		return 0
	}

	return shortest
}

// Step advances the play index by one and waits until every leaf completed
// it. It is not allowed while playing.
func (s *Strategy) Step(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusReady, StatusPaused:
	case StatusFinished:
		return s.PlayIndex(), s.finished()
	default:
		return s.PlayIndex(), s.notReady("step")
	}

	index, err := s.step(ctx)
	if errors.HasCode(err, errors.ErrCodeStrategyFinished) || (err == nil && index+1 >= int64(s.TotalSteps())) {
		s.setStatus(StatusFinished)
	}

	return index, err
}

func (s *Strategy) finished() error {
	return errors.Newf(errors.ErrCodeStrategyFinished, "strategy %d replayed all %d steps", s.config.ID, s.TotalSteps()).
		WithDetail("total_steps", s.TotalSteps())
}

// step runs one play index. A timed out play index leaves the nodes in an
// unknown state, so the strategy fails.
func (s *Strategy) step(ctx context.Context) (int64, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	current := s.playIndex.Load()
	if current+1 >= int64(s.TotalSteps()) {
		return current, s.finished()
	}

	next := current + 1
	done := s.tracker.Begin(next)

	timeout := s.config.Runtime.StepTimeout.Std()
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.bus.Publish(stepCtx, bus.TopicStrategy, node.PlayIndexCommand{StrategyID: s.config.ID, PlayIndex: next}); err != nil {
		return current, err
	}

	select {
	case <-done:
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return current, ctx.Err()
		}

		pending := s.tracker.Pending()
		s.logger.Error("step timed out", zap.Int64("play_index", next), zap.Strings("pending", pending))
		s.setStatus(StatusFailed)

		return current, errors.Newf(errors.ErrCodeStepTimeout, "play index %d did not complete within %s", next, timeout).
			WithDetail("play_index", next).
			WithDetail("pending", pending)
	}

	s.playIndex.Store(next)

	d := s.tracker.LastDuration()
	account := s.system.Snapshot()

	s.metrics.StepCompleted(d)
	s.metrics.SetPlayIndex(s.label, next)
	s.metrics.SetEquity(s.label, account.Equity)

	_ = s.bus.Publish(ctx, bus.TopicStrategy, StepCompleted{
		StrategyID: s.config.ID,
		RunID:      s.RunID(),
		PlayIndex:  next,
		TotalSteps: s.TotalSteps(),
		Duration:   d,
	})

	if next+1 >= int64(s.TotalSteps()) {
		s.logger.Info("replay finished", zap.Int64("play_index", next), zap.Float64("equity", account.Equity))
		_ = s.bus.Publish(ctx, bus.TopicStrategy, PlayFinished{StrategyID: s.config.ID, RunID: s.RunID(), PlayIndex: next})
	}

	return next, nil
}

// Play steps in the background until the history ends, Pause is called or a
// step fails. Steps are paced by the play interval of the runtime config.
func (s *Strategy) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusReady, StatusPaused:
	case StatusPlaying:
		return errors.Newf(errors.ErrCodeAlreadyPlaying, "strategy %d is already playing", s.config.ID)
	case StatusFinished:
		return s.finished()
	default:
		return s.notReady("play")
	}

	if s.PlayIndex()+1 >= int64(s.TotalSteps()) {
		s.setStatus(StatusFinished)

		return s.finished()
	}

	if s.PlayIndex() < 0 {
		s.runID.Store(uuid.NewString())
	}

	playCtx, cancel := context.WithCancel(s.runCtx)
	done := make(chan struct{})

	s.playCancel = cancel
	s.playDone = done
	s.setStatus(StatusPlaying)

	s.logger.Info("play started", zap.Int64("play_index", s.PlayIndex()), zap.String("run_id", s.RunID()))

	go s.playLoop(playCtx, done)

	return nil
}

func (s *Strategy) playLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := s.config.Runtime.PlayInterval.Std()

	for {
		_, err := s.step(ctx)

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.HasCode(err, errors.ErrCodeStrategyFinished):
			if s.status.CompareAndSwap(StatusPlaying, StatusFinished) {
				s.publishStatus(StatusPlaying, StatusFinished)
			}

			return
		default:
			s.logger.Error("play stopped", zap.Error(err))
			if s.status.CompareAndSwap(StatusPlaying, StatusFailed) {
				s.publishStatus(StatusPlaying, StatusFailed)
			}

			return
		}

		if interval <= 0 {
			if ctx.Err() != nil {
				return
			}

			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (s *Strategy) publishStatus(from, to Status) {
	_ = s.bus.Publish(context.Background(), bus.TopicStrategy, StatusChanged{StrategyID: s.config.ID, From: from, To: to})
}

// Pause stops a running Play after the current play index.
func (s *Strategy) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != StatusPlaying {
		return errors.Newf(errors.ErrCodeNotPlaying, "strategy %d is not playing", s.config.ID).
			WithDetail("status", string(s.Status()))
	}

	if err := s.haltPlay(ctx); err != nil {
		return err
	}

	if s.status.CompareAndSwap(StatusPlaying, StatusPaused) {
		s.publishStatus(StatusPlaying, StatusPaused)
	}

	s.logger.Info("play paused", zap.Int64("play_index", s.PlayIndex()))

	return nil
}

// haltPlay cancels the play loop and waits for it to return.
func (s *Strategy) haltPlay(ctx context.Context) error {
	if s.playCancel == nil {
		return nil
	}

	s.playCancel()

	select {
	case <-s.playDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.playCancel = nil
	s.playDone = nil

	return nil
}

// Reset rewinds the strategy to before the first play index: node state,
// cache, account and ledger are cleared and a new run id is drawn. The
// history stays loaded.
func (s *Strategy) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusReady, StatusPaused, StatusFinished, StatusPlaying:
	default:
		return s.notReady("reset")
	}

	if err := s.haltPlay(ctx); err != nil {
		return err
	}

	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	for _, n := range s.nodes {
		n.Reset()
	}

	s.cache.Reset()
	s.tracker.Reset()

	var errs error

	errs = multierr.Append(errs, s.system.Reset(ctx))

	if s.ledger != nil {
		errs = multierr.Append(errs, s.ledger.Flush(ctx))
		errs = multierr.Append(errs, s.ledger.Reset(ctx))
	}

	s.playIndex.Store(-1)
	s.runID.Store(uuid.NewString())
	s.metrics.SetPlayIndex(s.label, -1)
	s.setStatus(StatusReady)

	s.logger.Info("strategy reset", zap.String("run_id", s.RunID()))

	return errs
}

// Stop halts playback, stops every node and releases the ledger and the
// command server. A stopped strategy cannot be restarted.
func (s *Strategy) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusStopped, StatusStopping:
		return nil
	case StatusCreated:
		s.setStatus(StatusStopped)

		return s.closeLedger()
	}

	if err := s.haltPlay(ctx); err != nil {
		return err
	}

	// after a failed init some nodes never left Created
	initialized := s.Status() != StatusFailed

	s.setStatus(StatusStopping)

	errs := s.graph.StopAll(ctx)
	if initialized && !s.graph.WaitForAllNodesStopped(ctx, s.config.Runtime.StopTimeout.Std()) {
		s.logger.Warn("some nodes did not stop")
	}

	if s.ledger != nil {
		errs = multierr.Append(errs, s.ledger.Flush(ctx))
	}

	if s.runCancel != nil {
		s.runCancel()
	}

	s.bus.Close()

	errs = multierr.Append(errs, s.closeLedger())

	if errs != nil {
		s.logger.Warn("strategy stopped with errors", zap.Error(errs))
	}

	s.status.Store(StatusStopped)
	s.logger.Info("strategy stopped", zap.Int64("play_index", s.PlayIndex()))

	return errs
}

func (s *Strategy) closeLedger() error {
	if s.ledger == nil {
		return nil
	}

	return s.ledger.Close()
}

// Snapshot reports the state of the strategy, its account and its nodes.
func (s *Strategy) Snapshot() Snapshot {
	nodes := make([]NodeState, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, NodeState{ID: n.ID(), Name: n.Name(), Kind: n.Kind(), State: n.State(), Leaf: n.IsLeaf()})
	}

	return Snapshot{
		StrategyID:     s.config.ID,
		Name:           s.config.Name,
		RunID:          s.RunID(),
		Status:         s.Status(),
		PlayIndex:      s.PlayIndex(),
		TotalSteps:     s.TotalSteps(),
		Exchanges:      s.exchanges.List(),
		Account:        s.system.Snapshot(),
		Positions:      s.system.CurrentPositions(),
		UnfilledOrders: s.system.UnfilledOrders(),
		Nodes:          nodes,
		AvgStep:        s.tracker.AverageDuration(),
	}
}

// Stats summarizes the run from the ledger.
func (s *Strategy) Stats(ctx context.Context) (types.RunStats, error) {
	if s.ledger == nil || s.Status() == StatusStopped {
		return types.RunStats{}, errors.Newf(errors.ErrCodeLedgerWrite, "strategy %d has no open ledger", s.config.ID)
	}

	if err := s.ledger.Flush(ctx); err != nil {
		return types.RunStats{}, err
	}

	stats, err := s.ledger.Stats(ctx, s.config.ID, s.config.Name, s.config.Account.InitialBalance)
	if err != nil {
		return types.RunStats{}, err
	}

	stats.ID = s.RunID()

	return stats, nil
}

// Export writes the ledger tables of the run as parquet files into dir.
func (s *Strategy) Export(ctx context.Context, dir string) (types.LedgerFiles, error) {
	if s.ledger == nil || s.Status() == StatusStopped {
		return types.LedgerFiles{}, errors.Newf(errors.ErrCodeLedgerWrite, "strategy %d has no open ledger", s.config.ID)
	}

	if err := s.ledger.Flush(ctx); err != nil {
		return types.LedgerFiles{}, err
	}

	return s.ledger.Export(dir)
}
