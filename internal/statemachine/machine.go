package statemachine

import (
	"sync"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Change is the outcome of a transition.
type Change struct {
	NewState RunState
	Actions  []Action
}

// TransitionFunc computes the next state and the actions to run. It must be pure.
type TransitionFunc func(state RunState, trigger Trigger, metadata *Metadata) (Change, error)

// TransitionError builds the error returned for an undefined (state, trigger) pair.
func TransitionError(name string, from RunState, trigger Trigger) *errors.Error {
	return errors.Newf(errors.ErrCodeInvalidTransition, "node %s cannot handle %s in state %s", name, trigger, from).
		WithDetail("node", name).
		WithDetail("from", from.String()).
		WithDetail("trigger", trigger.String())
}

// Machine holds a node's run state. It is safe for concurrent use.
type Machine struct {
	mu       sync.RWMutex
	name     string
	current  RunState
	previous RunState
	fn       TransitionFunc
	metadata *Metadata
}

// New creates a machine in the Created state.
func New(name string, fn TransitionFunc, metadata *Metadata) *Machine {
	return &Machine{
		mu:       sync.RWMutex{},
		name:     name,
		current:  Created,
		previous: Created,
		fn:       fn,
		metadata: metadata,
	}
}

// Apply runs the transition function and stores the new state. When the
// function rejects the trigger the machine moves to Failed, the returned
// change carries a LogError action and the transition error is returned.
func (m *Machine) Apply(trigger Trigger) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	change, err := m.fn(m.current, trigger, m.metadata)
	if err != nil {
		from := m.current
		m.previous = from
		m.current = Failed

		return Change{
			NewState: Failed,
			Actions:  []Action{{Kind: ActionLogError, From: from, To: Failed, Reason: err.Error()}},
		}, err
	}

	m.previous = m.current
	m.current = change.NewState

	return change, nil
}

func (m *Machine) Current() RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

func (m *Machine) Previous() RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.previous
}

func (m *Machine) IsIn(state RunState) bool {
	return m.Current() == state
}

func (m *Machine) Name() string        { return m.name }
func (m *Machine) Metadata() *Metadata { return m.metadata }
