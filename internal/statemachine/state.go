// Package statemachine implements the run-state machine every strategy node goes through.
//
// A node kind supplies a pure TransitionFunc; the Machine only stores the
// current and previous state and hands back the actions the node must run.
package statemachine

import "fmt"

// RunState is the lifecycle state of a node.
type RunState int

const (
	Created RunState = iota
	Initializing
	Ready
	Stopping
	Stopped
	Failed
)

var runStateNames = map[RunState]string{
	Created:      "Created",
	Initializing: "Initializing",
	Ready:        "Ready",
	Stopping:     "Stopping",
	Stopped:      "Stopped",
	Failed:       "Failed",
}

func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("RunState(%d)", int(s))
}

// IsTerminal reports whether no trigger other than Fail can leave the state.
func (s RunState) IsTerminal() bool {
	return s == Stopped || s == Failed
}

// TriggerKind names a transition trigger.
type TriggerKind int

const (
	TriggerInitialize TriggerKind = iota
	TriggerInitializeComplete
	// TriggerStart and TriggerStartComplete are reserved; no node kind accepts them.
	TriggerStart
	TriggerStartComplete
	TriggerStop
	TriggerStopComplete
	TriggerFail
)

var triggerNames = map[TriggerKind]string{
	TriggerInitialize:         "Initialize",
	TriggerInitializeComplete: "InitializeComplete",
	TriggerStart:              "Start",
	TriggerStartComplete:      "StartComplete",
	TriggerStop:               "Stop",
	TriggerStopComplete:       "StopComplete",
	TriggerFail:               "Fail",
}

func (k TriggerKind) String() string {
	if name, ok := triggerNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Trigger(%d)", int(k))
}

// Trigger drives one transition. Reason is only set for TriggerFail.
type Trigger struct {
	Kind   TriggerKind
	Reason string
}

func (t Trigger) String() string {
	if t.Kind == TriggerFail {
		return fmt.Sprintf("Fail(%s)", t.Reason)
	}

	return t.Kind.String()
}

var (
	Initialize         = Trigger{Kind: TriggerInitialize}
	InitializeComplete = Trigger{Kind: TriggerInitializeComplete}
	Start              = Trigger{Kind: TriggerStart}
	StartComplete      = Trigger{Kind: TriggerStartComplete}
	Stop               = Trigger{Kind: TriggerStop}
	StopComplete       = Trigger{Kind: TriggerStopComplete}
)

// Fail builds the failure trigger.
func Fail(reason string) Trigger {
	return Trigger{Kind: TriggerFail, Reason: reason}
}
