package graph

import (
	"slices"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// Graph is a directed acyclic graph of vertices.
type Graph struct {
	mu       sync.RWMutex
	vertices map[string]Vertex
	ids      []string
	edges    []Edge
	order    []Vertex
	router   *Router
	options  Options
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func New(log *logger.Logger, m *metrics.Metrics, options Options) *Graph {
	log = log.Named("graph")

	return &Graph{
		mu:       sync.RWMutex{},
		vertices: make(map[string]Vertex),
		ids:      nil,
		edges:    nil,
		order:    nil,
		router:   NewRouter(log, options.InboxSize),
		options:  options,
		logger:   log,
		metrics:  m,
	}
}

func (g *Graph) Router() *Router {
	return g.router
}

func (g *Graph) Options() Options {
	return g.options
}

// AddVertex registers a vertex and its output handles.
func (g *Graph) AddVertex(v Vertex) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.vertices[v.ID()]; ok {
		return errors.Newf(errors.ErrCodeDuplicateNode, "node %s already exists", v.ID())
	}

	g.vertices[v.ID()] = v
	g.ids = append(g.ids, v.ID())
	g.order = nil
	g.router.RegisterNode(v.ID(), v.OutputHandles())

	return nil
}

// AddEdge connects two registered vertices. Both handles must be declared by
// their vertex.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.vertices[e.FromNode]
	if !ok {
		return errors.Newf(errors.ErrCodeNodeNotFound, "edge %s: source node %s not found", e.ID, e.FromNode)
	}

	to, ok := g.vertices[e.ToNode]
	if !ok {
		return errors.Newf(errors.ErrCodeNodeNotFound, "edge %s: target node %s not found", e.ID, e.ToNode)
	}

	if e.FromNode == e.ToNode {
		return errors.Newf(errors.ErrCodeInvalidEdge, "edge %s connects node %s to itself", e.ID, e.FromNode)
	}

	if !slices.Contains(from.OutputHandles(), e.FromHandle) {
		return errors.Newf(errors.ErrCodeHandleNotFound, "edge %s: node %s has no output handle %s", e.ID, e.FromNode, e.FromHandle).
			WithDetail("handles", from.OutputHandles())
	}

	if !slices.Contains(to.InputHandles(), e.ToHandle) {
		return errors.Newf(errors.ErrCodeHandleNotFound, "edge %s: node %s has no input handle %s", e.ID, e.ToNode, e.ToHandle).
			WithDetail("handles", to.InputHandles())
	}

	for _, existing := range g.edges {
		if existing.FromNode == e.FromNode && existing.FromHandle == e.FromHandle &&
			existing.ToNode == e.ToNode && existing.ToHandle == e.ToHandle {
			return errors.Newf(errors.ErrCodeInvalidEdge, "edge %s duplicates edge %s", e.ID, existing.ID)
		}
	}

	g.edges = append(g.edges, e)
	g.order = nil
	g.router.Connect(e)

	return nil
}

// Vertex looks a vertex up by id.
func (g *Graph) Vertex(id string) optional.Option[Vertex] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if v, ok := g.vertices[id]; ok {
		return optional.Some(v)
	}

	return optional.None[Vertex]()
}

// Vertices returns the vertices in insertion order.
func (g *Graph) Vertices() []Vertex {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Vertex, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.vertices[id])
	}

	return out
}

func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]Edge(nil), g.edges...)
}

// TopologicalOrder returns every vertex after all of its upstream vertices.
// Ties are broken by insertion order so the result is stable. The order is
// cached until the graph changes.
func (g *Graph) TopologicalOrder() ([]Vertex, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.order != nil {
		return append([]Vertex(nil), g.order...), nil
	}

	inDegree := make(map[string]int, len(g.ids))
	children := make(map[string][]string, len(g.ids))

	for _, e := range g.edges {
		if !slices.Contains(children[e.FromNode], e.ToNode) {
			children[e.FromNode] = append(children[e.FromNode], e.ToNode)
			inDegree[e.ToNode]++
		}
	}

	queue := make([]string, 0, len(g.ids))

	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	position := make(map[string]int, len(g.ids))
	for i, id := range g.ids {
		position[id] = i
	}

	order := make([]Vertex, 0, len(g.ids))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, g.vertices[id])

		next := children[id]
		slices.SortFunc(next, func(a, b string) int { return position[a] - position[b] })

		for _, child := range next {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(g.ids) {
		var cyclic []string

		for _, id := range g.ids {
			if inDegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}

		return nil, errors.Newf(errors.ErrCodeGraphCycle, "graph contains a cycle through %v", cyclic).
			WithDetail("nodes", cyclic)
	}

	g.order = order

	return append([]Vertex(nil), order...), nil
}

// Leaves returns the vertices without outgoing edges, in insertion order.
func (g *Graph) Leaves() []Vertex {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasChildren := make(map[string]bool, len(g.ids))
	for _, e := range g.edges {
		hasChildren[e.FromNode] = true
	}

	var leaves []Vertex

	for _, id := range g.ids {
		if !hasChildren[id] {
			leaves = append(leaves, g.vertices[id])
		}
	}

	return leaves
}

// Validate checks that the graph is acyclic, marks the leaves and warns about
// output handles nothing is connected to. It returns the leaves.
func (g *Graph) Validate() ([]Vertex, error) {
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}

	leaves := g.Leaves()
	leafIDs := make(map[string]bool, len(leaves))

	for _, v := range leaves {
		leafIDs[v.ID()] = true
	}

	for _, v := range g.Vertices() {
		v.SetLeaf(leafIDs[v.ID()])
	}

	if dangling := g.router.DanglingOutputs(); len(dangling) > 0 {
		g.logger.Warn("output handles without connections", zap.Strings("handles", dangling))
	}

	return leaves, nil
}
