package statemachine

// NodeTransitions builds the transition function shared by every node kind.
// setup lists the kind-specific actions run when the node leaves Created,
// after the LogTransition action.
//
//	Created      + Initialize         -> Initializing  LogTransition, setup...
//	Initializing + InitializeComplete -> Ready         LogTransition
//	Ready        + Stop               -> Stopping      LogTransition, CancelAsyncTask
//	Stopping     + StopComplete       -> Stopped       LogTransition
//	any          + Fail(reason)       -> Failed        LogError(reason)
//
// Every other pair is an error.
func NodeTransitions(name string, setup ...ActionKind) TransitionFunc {
	kinds := append([]ActionKind(nil), setup...)

	return func(state RunState, trigger Trigger, _ *Metadata) (Change, error) {
		move := func(to RunState, extra ...ActionKind) Change {
			actions := []Action{{Kind: ActionLogTransition, From: state, To: to}}
			for _, k := range extra {
				actions = append(actions, Action{Kind: k})
			}

			return Change{NewState: to, Actions: actions}
		}

		switch {
		case trigger.Kind == TriggerFail:
			return Change{
				NewState: Failed,
				Actions:  []Action{{Kind: ActionLogError, From: state, To: Failed, Reason: trigger.Reason}},
			}, nil
		case state == Created && trigger.Kind == TriggerInitialize:
			return move(Initializing, kinds...), nil
		case state == Initializing && trigger.Kind == TriggerInitializeComplete:
			return move(Ready), nil
		case state == Ready && trigger.Kind == TriggerStop:
			return move(Stopping, ActionCancelAsyncTask), nil
		case state == Stopping && trigger.Kind == TriggerStopComplete:
			return move(Stopped), nil
		default:
			return Change{}, TransitionError(name, state, trigger)
		}
	}
}
