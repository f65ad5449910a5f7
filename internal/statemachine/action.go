package statemachine

import "fmt"

// ActionKind tags an action returned by a transition.
type ActionKind int

const (
	ActionLogTransition ActionKind = iota
	ActionLogError
	ActionSubscribeExternalEvents
	ActionSubscribeNodeEvents
	ActionSubscribeStrategyCommands
	ActionRegisterExchange
	ActionLoadHistory
	ActionInitIndicatorCache
	ActionRegisterOrderConfigs
	ActionCancelAsyncTask
)

var actionNames = map[ActionKind]string{
	ActionLogTransition:             "LogTransition",
	ActionLogError:                  "LogError",
	ActionSubscribeExternalEvents:   "SubscribeExternalEvents",
	ActionSubscribeNodeEvents:       "SubscribeNodeEvents",
	ActionSubscribeStrategyCommands: "SubscribeStrategyCommands",
	ActionRegisterExchange:          "RegisterExchange",
	ActionLoadHistory:               "LoadHistory",
	ActionInitIndicatorCache:        "InitIndicatorCache",
	ActionRegisterOrderConfigs:      "RegisterOrderConfigs",
	ActionCancelAsyncTask:           "CancelAsyncTask",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Action(%d)", int(k))
}

// Action is a tagged instruction the node executes after a transition.
// From and To are set on LogTransition, Reason on LogError.
type Action struct {
	Kind   ActionKind
	From   RunState
	To     RunState
	Reason string
}

func (a Action) String() string {
	switch a.Kind {
	case ActionLogTransition:
		return fmt.Sprintf("LogTransition(%s->%s)", a.From, a.To)
	case ActionLogError:
		return fmt.Sprintf("LogError(%s)", a.Reason)
	default:
		return a.Kind.String()
	}
}

// Kinds returns the tags of actions, in order.
func Kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}

	return out
}
