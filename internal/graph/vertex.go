// Package graph owns the nodes and edges of a strategy, orders them
// topologically, routes messages between node handles and drives the bulk
// init and stop sequences.
package graph

import (
	"context"

	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
)

// Vertex is a node as seen by the graph.
type Vertex interface {
	ID() string
	Name() string
	Kind() string
	// State returns the current lifecycle state. It is polled after Init and Stop.
	State() statemachine.RunState
	// Init runs the Initialize and InitializeComplete transitions.
	Init(ctx context.Context) error
	// Stop runs the Stop and StopComplete transitions.
	Stop(ctx context.Context) error
	OutputHandles() []string
	InputHandles() []string
	// SetLeaf marks a node without outgoing edges. Leaves report the end of a cycle.
	SetLeaf(leaf bool)
}

// Edge links an output handle of one node to an input handle of another.
type Edge struct {
	ID         string `yaml:"id" json:"id"`
	FromNode   string `yaml:"source" json:"source" validate:"required"`
	FromHandle string `yaml:"source_handle" json:"source_handle" validate:"required"`
	ToNode     string `yaml:"target" json:"target" validate:"required"`
	ToHandle   string `yaml:"target_handle" json:"target_handle" validate:"required"`
}
