package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// externalBuffer is the buffer of the trading event subscription of order and
// position nodes.
const externalBuffer = 1024

// handler is the kind-specific part of a node.
type handler interface {
	inputs() []string
	outputs() []string
	// setup lists the actions run when the node leaves Created.
	setup() []statemachine.ActionKind
	// prepare runs a setup action the node core does not handle itself.
	prepare(ctx context.Context, action statemachine.ActionKind) error
	// process turns the messages of one play index into payloads keyed by
	// output handle. Handles missing from the result receive NoData.
	process(ctx context.Context, playIndex int64, inputs []graph.Message) (map[string]Payload, error)
}

// eventHandler is implemented by kinds that follow the trading event stream.
type eventHandler interface {
	onEvent(ctx context.Context, event vts.Event)
}

// resetter is implemented by kinds that keep state across play indexes.
type resetter interface {
	reset()
}

// historyProvider is implemented by kinds that replay a fixed history.
type historyProvider interface {
	historyLength() int
}

// base is shared by a node and its handler.
type base struct {
	id       string
	name     string
	services Services
	logger   *logger.Logger
}

// Node is one vertex of a strategy graph. Transitions of a node are
// serialized; the handlers of its play indexes run on the node's own tasks.
type Node struct {
	*base

	mu      sync.Mutex
	kind    Kind
	spec    Spec
	handler handler
	machine *statemachine.Machine
	leaf    atomic.Bool

	runCtx context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	subs   []*bus.Subscription

	pendingMu sync.Mutex
	pending   map[int64][]graph.Message
}

var _ graph.Vertex = (*Node)(nil)

// New builds a node from its config. Config errors are returned before the
// node exists, so a node is never created in a broken state.
func New(cfg Config, services Services) (*Node, error) {
	spec, err := ParseSpec(cfg)
	if err != nil {
		return nil, err
	}

	if services.Bus == nil || services.Router == nil {
		return nil, errors.Newf(errors.ErrCodeMissingParameter, "node %s needs a bus and a router", cfg.ID)
	}

	if services.Logger == nil {
		services.Logger = logger.NewNopLogger()
	}

	var metadata *statemachine.Metadata

	if len(cfg.Config) > 0 {
		if metadata, err = statemachine.MetadataFromJSON(cfg.Config); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidNodeConfig, err, "node %s: config is not an object", cfg.ID)
		}
	}

	b := &base{
		id:       cfg.ID,
		name:     cfg.DisplayName(),
		services: services,
		logger: services.Logger.Named("node").WithFields(
			zap.String("node_id", cfg.ID),
			zap.String("node", cfg.DisplayName()),
			zap.String("kind", string(cfg.Type)),
		),
	}

	h := newHandler(b, spec)

	return &Node{
		base:    b,
		mu:      sync.Mutex{},
		kind:    cfg.Type,
		spec:    spec,
		handler: h,
		machine: statemachine.New(b.name, statemachine.NodeTransitions(b.name, h.setup()...), metadata),
		pending: make(map[int64][]graph.Message),
	}, nil
}

func newHandler(b *base, spec Spec) handler {
	switch s := spec.(type) {
	case StartSpec:
		return &startHandler{base: b}
	case KlineSpec:
		return newKlineHandler(b, s)
	case IndicatorSpec:
		return newIndicatorHandler(b, s)
	case IfElseSpec:
		return newIfElseHandler(b, s)
	case FuturesOrderSpec:
		return newFuturesOrderHandler(b, s)
	case PositionManagementSpec:
		return newPositionHandler(b, s)
	case VariableSpec:
		return newVariableHandler(b, s)
	default:
		panic(fmt.Sprintf("node: unhandled spec %T", spec))
	}
}

func (n *Node) ID() string                           { return n.id }
func (n *Node) Name() string                         { return n.name }
func (n *Node) Kind() string                         { return string(n.kind) }
func (n *Node) NodeKind() Kind                       { return n.kind }
func (n *Node) Spec() Spec                           { return n.spec }
func (n *Node) State() statemachine.RunState         { return n.machine.Current() }
func (n *Node) PreviousState() statemachine.RunState { return n.machine.Previous() }
func (n *Node) OutputHandles() []string              { return n.handler.outputs() }
func (n *Node) InputHandles() []string               { return n.handler.inputs() }
func (n *Node) SetLeaf(leaf bool)                    { n.leaf.Store(leaf) }
func (n *Node) IsLeaf() bool                         { return n.leaf.Load() }

// HistoryLength is the number of bars a kline node replays.
func (n *Node) HistoryLength() optional.Option[int] {
	if h, ok := n.handler.(historyProvider); ok {
		return optional.Some(h.historyLength())
	}

	return optional.None[int]()
}

// Init runs Initialize and InitializeComplete. A failing setup action moves
// the node to Failed and is returned.
func (n *Node) Init(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.transition(ctx, statemachine.Initialize); err != nil {
		return err
	}

	return n.transition(ctx, statemachine.InitializeComplete)
}

// Stop runs Stop and StopComplete. The node's tasks are canceled and awaited
// before StopComplete.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.transition(ctx, statemachine.Stop); err != nil {
		return err
	}

	return n.transition(ctx, statemachine.StopComplete)
}

// Fail moves the node to Failed from any state and releases its tasks.
func (n *Node) Fail(ctx context.Context, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.fail(ctx, reason)
}

// Reset forgets buffered messages and the per-kind state kept across play
// indexes. Call it only while no play index is in flight.
func (n *Node) Reset() {
	n.pendingMu.Lock()
	n.pending = make(map[int64][]graph.Message)
	n.pendingMu.Unlock()

	if dropped := n.services.Router.Drain(n.id); dropped > 0 {
		n.logger.Debug("dropped buffered messages", zap.Int("count", dropped))
	}

	if r, ok := n.handler.(resetter); ok {
		r.reset()
	}
}

func (n *Node) transition(ctx context.Context, trigger statemachine.Trigger) error {
	from := n.machine.Current()

	change, err := n.machine.Apply(trigger)
	n.publishState(ctx, from, change.NewState, trigger.Reason)

	if err != nil {
		_ = n.execute(ctx, change.Actions)
		_ = n.cancelTasks(ctx)

		return err
	}

	if trigger.Kind == statemachine.TriggerInitialize {
		n.runCtx, n.cancel = context.WithCancel(context.Background())
	}

	if err := n.execute(ctx, change.Actions); err != nil {
		n.fail(ctx, err.Error())

		return err
	}

	return nil
}

func (n *Node) fail(ctx context.Context, reason string) {
	from := n.machine.Current()

	change, err := n.machine.Apply(statemachine.Fail(reason))
	if err != nil {
		n.logger.Error("failed to fail node", zap.Error(err))
	}

	n.publishState(ctx, from, change.NewState, reason)
	_ = n.execute(ctx, change.Actions)

	if err := n.cancelTasks(ctx); err != nil {
		n.logger.Warn("tasks still running after failure", zap.Error(err))
	}
}

func (n *Node) publishState(ctx context.Context, from, to statemachine.RunState, reason string) {
	event := StateChanged{
		NodeID: n.id,
		Name:   n.name,
		Kind:   n.kind,
		From:   from,
		To:     to,
		Reason: reason,
	}

	if err := n.services.Bus.Publish(ctx, bus.TopicNode, event); err != nil {
		n.logger.Warn("failed to publish state change", zap.Error(err))
	}
}

// execute runs the actions of one transition in order and stops at the first
// failure.
func (n *Node) execute(ctx context.Context, actions []statemachine.Action) error {
	for _, action := range actions {
		if err := n.runAction(ctx, action); err != nil {
			return errors.Wrapf(errors.ErrCodeActionFailed, err, "node %s: %s failed", n.name, action.Kind).
				WithDetail("node_id", n.id).
				WithDetail("action", action.Kind.String())
		}
	}

	return nil
}

func (n *Node) runAction(ctx context.Context, action statemachine.Action) error {
	switch action.Kind {
	case statemachine.ActionLogTransition:
		n.logger.Info("node state changed",
			zap.String("from", action.From.String()),
			zap.String("to", action.To.String()),
		)

		return nil
	case statemachine.ActionLogError:
		n.logger.Error("node failed",
			zap.String("from", action.From.String()),
			zap.String("reason", action.Reason),
		)

		return nil
	case statemachine.ActionSubscribeStrategyCommands:
		sub := n.services.Bus.Subscribe(bus.TopicStrategy, bus.DefaultBufferSize)
		n.subs = append(n.subs, sub)
		n.goTask(func(ctx context.Context) { n.commandLoop(ctx, sub) })

		return nil
	case statemachine.ActionSubscribeNodeEvents:
		inbox := n.services.Router.Inbox(n.id)
		if inbox == nil {
			return errors.Newf(errors.ErrCodeNodeNotFound, "node %s has no inbox", n.id)
		}

		n.goTask(func(ctx context.Context) { n.inboxLoop(ctx, inbox) })

		return nil
	case statemachine.ActionSubscribeExternalEvents:
		h, ok := n.handler.(eventHandler)
		if !ok {
			return nil
		}

		sub := n.services.Bus.Subscribe(bus.TopicVirtualTrading, externalBuffer)
		n.subs = append(n.subs, sub)
		n.goTask(func(ctx context.Context) { n.eventLoop(ctx, sub, h) })

		return nil
	case statemachine.ActionCancelAsyncTask:
		return n.cancelTasks(ctx)
	default:
		return n.handler.prepare(ctx, action.Kind)
	}
}

func (n *Node) goTask(fn func(ctx context.Context)) {
	ctx := n.runCtx

	n.tasks.Add(1)

	go func() {
		defer n.tasks.Done()

		fn(ctx)
	}()
}

// cancelTasks cancels the node's tasks, closes its subscriptions and waits
// for the tasks to return or ctx to be done.
func (n *Node) cancelTasks(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}

	for _, sub := range n.subs {
		sub.Close()
	}

	n.subs = nil

	done := make(chan struct{})

	go func() {
		n.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrCodeActionFailed, ctx.Err(), "node %s: tasks did not stop", n.name)
	}
}

// commandLoop fires the node for every play index command of its strategy.
func (n *Node) commandLoop(ctx context.Context, sub *bus.Subscription) {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return
		}

		cmd, ok := msg.(PlayIndexCommand)
		if !ok || cmd.StrategyID != n.services.StrategyID {
			continue
		}

		n.fire(ctx, cmd.PlayIndex, nil)
	}
}

// inboxLoop groups the incoming messages by play index and fires once a play
// index has one message per upstream handle.
func (n *Node) inboxLoop(ctx context.Context, inbox <-chan graph.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			if batch, ok := n.collect(msg); ok {
				n.fire(ctx, msg.PlayIndex, batch)
			}
		}
	}
}

func (n *Node) collect(msg graph.Message) ([]graph.Message, bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	batch := append(n.pending[msg.PlayIndex], msg)
	if len(batch) < n.services.Router.InDegree(n.id) {
		n.pending[msg.PlayIndex] = batch

		return nil, false
	}

	delete(n.pending, msg.PlayIndex)

	return batch, true
}

func (n *Node) eventLoop(ctx context.Context, sub *bus.Subscription, h eventHandler) {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return
		}

		if event, ok := msg.(vts.Event); ok {
			h.onEvent(ctx, event)
		}
	}
}

// fire processes one play index and emits one message on every output
// handle. A failing or panicking handler is logged and its outputs become
// NoData, so downstream nodes still complete the play index.
func (n *Node) fire(ctx context.Context, playIndex int64, inputs []graph.Message) {
	var (
		catcher panics.Catcher
		outputs map[string]Payload
		err     error
	)

	catcher.Try(func() { outputs, err = n.handler.process(ctx, playIndex, inputs) })

	if r := catcher.Recovered(); r != nil {
		err = errors.Wrapf(errors.ErrCodeNodeTaskFailed, r.AsError(), "node %s crashed on play index %d", n.name, playIndex)
		n.logger.Error("play index panicked", zap.Int64("play_index", playIndex), zap.String("stack", string(r.Stack)))
	}

	noData := NoData{}

	if err != nil {
		n.logger.Warn("play index failed", zap.Int64("play_index", playIndex), zap.Error(err))
		noData.Reason = err.Error()
	}

	for _, handle := range n.handler.outputs() {
		payload, ok := outputs[handle]
		if !ok || payload == nil {
			payload = noData
		}

		if _, err := n.services.Router.Publish(ctx, n.id, handle, playIndex, payload); err != nil {
			n.logger.Warn("failed to emit", zap.String("handle", handle), zap.Error(err))

			return
		}
	}

	if n.leaf.Load() && n.services.Cycles != nil {
		n.services.Cycles.Report(n.id, playIndex)
	}
}
