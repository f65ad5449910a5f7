package statemachine

import (
	"testing"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type MachineTestSuite struct {
	suite.Suite
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineTestSuite))
}

var (
	allStates   = []RunState{Created, Initializing, Ready, Stopping, Stopped, Failed}
	allTriggers = []Trigger{Initialize, InitializeComplete, Start, StartComplete, Stop, StopComplete, Fail("boom")}
)

func (suite *MachineTestSuite) TestTableIsTotal() {
	fn := NodeTransitions("kline", ActionSubscribeNodeEvents, ActionRegisterExchange, ActionLoadHistory)

	allowed := map[RunState]TriggerKind{
		Created:      TriggerInitialize,
		Initializing: TriggerInitializeComplete,
		Ready:        TriggerStop,
		Stopping:     TriggerStopComplete,
	}

	for _, state := range allStates {
		for _, trigger := range allTriggers {
			suite.Run(state.String()+"/"+trigger.String(), func() {
				change, err := fn(state, trigger, nil)

				if trigger.Kind == TriggerFail {
					suite.Require().NoError(err)
					suite.Equal(Failed, change.NewState)
					suite.Equal([]ActionKind{ActionLogError}, Kinds(change.Actions))
					suite.Equal("boom", change.Actions[0].Reason)

					return
				}

				if kind, ok := allowed[state]; ok && kind == trigger.Kind {
					suite.Require().NoError(err)
					suite.NotEmpty(change.Actions)
					suite.Equal(ActionLogTransition, change.Actions[0].Kind)

					return
				}

				suite.Error(err)
				suite.True(errors.HasCode(err, errors.ErrCodeInvalidTransition))
			})
		}
	}
}

func (suite *MachineTestSuite) TestSetupActionsFollowLogTransition() {
	fn := NodeTransitions("order", ActionSubscribeExternalEvents, ActionSubscribeNodeEvents, ActionRegisterOrderConfigs)

	change, err := fn(Created, Initialize, nil)
	suite.Require().NoError(err)
	suite.Equal(Initializing, change.NewState)
	suite.Equal([]ActionKind{
		ActionLogTransition,
		ActionSubscribeExternalEvents,
		ActionSubscribeNodeEvents,
		ActionRegisterOrderConfigs,
	}, Kinds(change.Actions))
	suite.Equal(Created, change.Actions[0].From)
	suite.Equal(Initializing, change.Actions[0].To)

	change, err = fn(Ready, Stop, nil)
	suite.Require().NoError(err)
	suite.Equal(Stopping, change.NewState)
	suite.Equal([]ActionKind{ActionLogTransition, ActionCancelAsyncTask}, Kinds(change.Actions))
}

func (suite *MachineTestSuite) TestLifecycle() {
	m := New("start", NodeTransitions("start", ActionSubscribeStrategyCommands), nil)
	suite.Equal(Created, m.Current())

	for _, step := range []struct {
		trigger Trigger
		state   RunState
	}{
		{Initialize, Initializing},
		{InitializeComplete, Ready},
		{Stop, Stopping},
		{StopComplete, Stopped},
	} {
		prev := m.Current()
		change, err := m.Apply(step.trigger)
		suite.Require().NoError(err)
		suite.Equal(step.state, change.NewState)
		suite.Equal(step.state, m.Current())
		suite.Equal(prev, m.Previous())
	}

	suite.True(m.IsIn(Stopped))
	suite.True(m.Current().IsTerminal())
}

func (suite *MachineTestSuite) TestInvalidTriggerFailsMachine() {
	m := New("if_else", NodeTransitions("if_else", ActionSubscribeNodeEvents), nil)

	change, err := m.Apply(Stop)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTransition))
	suite.Equal(Failed, change.NewState)
	suite.Equal([]ActionKind{ActionLogError}, Kinds(change.Actions))
	suite.Equal(Failed, m.Current())
	suite.Equal(Created, m.Previous())

	var coded *errors.Error
	suite.Require().True(errors.As(err, &coded))
	from, _ := coded.Detail("from")
	trigger, _ := coded.Detail("trigger")
	suite.Equal("Created", from)
	suite.Equal("Stop", trigger)
}

func (suite *MachineTestSuite) TestReservedStartTriggers() {
	for _, trigger := range []Trigger{Start, StartComplete} {
		m := New("kline", NodeTransitions("kline"), nil)
		_, err := m.Apply(Initialize)
		suite.Require().NoError(err)
		_, err = m.Apply(InitializeComplete)
		suite.Require().NoError(err)

		_, err = m.Apply(trigger)
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidTransition))
		suite.Equal(Failed, m.Current())
	}
}

func (suite *MachineTestSuite) TestFailedOnlyAcceptsFail() {
	m := New("variable", NodeTransitions("variable"), nil)
	_, err := m.Apply(Fail("lost connection"))
	suite.Require().NoError(err)
	suite.Equal(Failed, m.Current())

	_, err = m.Apply(Initialize)
	suite.Error(err)
	suite.Equal(Failed, m.Current())

	_, err = m.Apply(Fail("again"))
	suite.NoError(err)
}

func (suite *MachineTestSuite) TestMetadata() {
	md, err := MetadataFromJSON([]byte(`{"symbol":"BTCUSDT","period":14,"ratio":0.5,"enabled":true,"nested":{"a":1}}`))
	suite.Require().NoError(err)

	m := New("indicator", NodeTransitions("indicator"), md)

	s, ok := m.Metadata().GetString("symbol")
	suite.True(ok)
	suite.Equal("BTCUSDT", s)

	i, ok := m.Metadata().GetInt64("period")
	suite.True(ok)
	suite.Equal(int64(14), i)

	f, ok := m.Metadata().GetFloat64("ratio")
	suite.True(ok)
	suite.Equal(0.5, f)

	b, ok := m.Metadata().GetBool("enabled")
	suite.True(ok)
	suite.True(b)

	nested, ok := Get[map[string]int](md, "nested")
	suite.True(ok)
	suite.Equal(1, nested["a"])

	_, ok = md.GetInt64("symbol")
	suite.False(ok)
	suite.False(md.Contains("missing"))

	var empty *Metadata
	suite.False(empty.Contains("symbol"))

	_, err = MetadataFromJSON([]byte(`[1,2]`))
	suite.Error(err)

	fromMap := MetadataFromMap(map[string]any{"id": "n1"})
	id, ok := fromMap.GetString("id")
	suite.True(ok)
	suite.Equal("n1", id)
}
