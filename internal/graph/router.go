package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// DefaultInboxSize is the buffer of each node inbox.
const DefaultInboxSize = 256

// Message is a payload published on an output handle, as delivered to one
// downstream node.
type Message struct {
	FromNode   string
	FromHandle string
	ToHandle   string
	PlayIndex  int64
	Payload    any
}

type route struct {
	toNode   string
	toHandle string
}

// Router is a publish/subscribe registry keyed by output handle. Every
// subscribing node reads from its own inbox, so a slow node never loses
// messages to a faster sibling.
type Router struct {
	mu        sync.RWMutex
	inboxes   map[string]chan Message
	outputs   map[string][]string
	routes    map[string][]route
	upstreams map[string]map[string]struct{}
	inboxSize int
	logger    *logger.Logger
}

func NewRouter(log *logger.Logger, inboxSize int) *Router {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}

	return &Router{
		mu:        sync.RWMutex{},
		inboxes:   make(map[string]chan Message),
		outputs:   make(map[string][]string),
		routes:    make(map[string][]route),
		upstreams: make(map[string]map[string]struct{}),
		inboxSize: inboxSize,
		logger:    log.Named("router"),
	}
}

func handleKey(node, handle string) string {
	return node + "/" + handle
}

// RegisterNode creates the inbox of a node and declares its output handles.
func (r *Router) RegisterNode(nodeID string, outputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inboxes[nodeID]; !ok {
		r.inboxes[nodeID] = make(chan Message, r.inboxSize)
	}

	r.outputs[nodeID] = append([]string(nil), outputs...)
}

// Connect subscribes the target of e to its source handle.
func (r *Router) Connect(e Edge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := handleKey(e.FromNode, e.FromHandle)
	r.routes[k] = append(r.routes[k], route{toNode: e.ToNode, toHandle: e.ToHandle})

	if r.upstreams[e.ToNode] == nil {
		r.upstreams[e.ToNode] = make(map[string]struct{})
	}

	r.upstreams[e.ToNode][k+"->"+e.ToHandle] = struct{}{}
}

// Publish fans payload out to every input connected to the handle and
// returns the number of deliveries. It blocks while a target inbox is full.
func (r *Router) Publish(ctx context.Context, fromNode, handle string, playIndex int64, payload any) (int, error) {
	r.mu.RLock()
	routes := r.routes[handleKey(fromNode, handle)]
	targets := make([]chan Message, 0, len(routes))

	for _, rt := range routes {
		targets = append(targets, r.inboxes[rt.toNode])
	}
	r.mu.RUnlock()

	for i, rt := range routes {
		msg := Message{
			FromNode:   fromNode,
			FromHandle: handle,
			ToHandle:   rt.toHandle,
			PlayIndex:  playIndex,
			Payload:    payload,
		}

		select {
		case targets[i] <- msg:
		case <-ctx.Done():
			r.logger.Warn("message dropped",
				zap.String("from", handleKey(fromNode, handle)),
				zap.String("to", rt.toNode),
				zap.Int64("play_index", playIndex),
			)

			return i, errors.Wrapf(errors.ErrCodeEventSendFailed, ctx.Err(), "failed to deliver %s to %s", handleKey(fromNode, handle), rt.toNode)
		}
	}

	return len(routes), nil
}

// Inbox returns the channel a node reads its inputs from, or nil for an
// unknown node.
func (r *Router) Inbox(nodeID string) <-chan Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.inboxes[nodeID]
}

// InDegree is the number of edges feeding the node. A node has seen every
// input of a play index once it received that many messages.
func (r *Router) InDegree(nodeID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.upstreams[nodeID])
}

// ConnectionCount is the number of inputs subscribed to an output handle.
func (r *Router) ConnectionCount(nodeID, handle string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.routes[handleKey(nodeID, handle)])
}

// DanglingOutputs lists the declared output handles nothing subscribes to, as
// "node/handle", sorted.
func (r *Router) DanglingOutputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dangling []string

	for node, handles := range r.outputs {
		for _, h := range handles {
			if len(r.routes[handleKey(node, h)]) == 0 {
				dangling = append(dangling, handleKey(node, h))
			}
		}
	}

	sort.Strings(dangling)

	return dangling
}

// Drain discards every buffered message of a node.
func (r *Router) Drain(nodeID string) int {
	inbox := r.Inbox(nodeID)
	if inbox == nil {
		return 0
	}

	n := 0

	for {
		select {
		case <-inbox:
			n++
		default:
			return n
		}
	}
}
