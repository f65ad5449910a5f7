package node

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/stretchr/testify/suite"
)

type IfElseTestSuite struct {
	suite.Suite
	start time.Time
}

func TestIfElseSuite(t *testing.T) {
	suite.Run(t, new(IfElseTestSuite))
}

func (suite *IfElseTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *IfElseTestSuite) handler(cases ...Case) *ifElseHandler {
	b := &base{id: "if", name: "if", logger: logger.NewNopLogger()}

	return newIfElseHandler(b, IfElseSpec{Cases: cases})
}

func (suite *IfElseTestSuite) kline(idx int64, close float64) []graph.Message {
	return []graph.Message{{
		FromNode:   "k",
		FromHandle: KlineHandle(1),
		ToHandle:   HandleInput,
		PlayIndex:  idx,
		Payload: KlinePayload{
			ConfigID: 1,
			Key:      key.NewKlineKey("binance", "BTCUSDT", "1m"),
			Kline:    types.Kline{Time: suite.start.Add(time.Duration(idx) * time.Minute), Close: close, Open: close - 1},
		},
	}}
}

func closeVs(op Operator, value float64) Condition {
	return Condition{
		Left:     Operand{Type: OperandNode, NodeID: "k", Handle: KlineHandle(1)},
		Operator: op,
		Right:    Operand{Type: OperandConstant, Value: value},
	}
}

func (suite *IfElseTestSuite) signal(out map[string]Payload, handle string) SignalPayload {
	p, ok := out[handle].(SignalPayload)
	suite.Require().True(ok, "handle %s carries %T", handle, out[handle])

	return p
}

func (suite *IfElseTestSuite) TestFirstMatchingCaseWins() {
	h := suite.handler(
		Case{CaseID: 1, Conditions: []Condition{closeVs(OpGreaterThan, 200)}},
		Case{CaseID: 2, Conditions: []Condition{closeVs(OpGreaterThan, 50)}},
		Case{CaseID: 3, Conditions: []Condition{closeVs(OpGreaterThan, 10)}},
	)

	out, err := h.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)
	suite.Len(out, 4)

	suite.False(suite.signal(out, CaseHandle(1)).Matched)
	suite.True(suite.signal(out, CaseHandle(2)).Matched)
	suite.False(suite.signal(out, CaseHandle(3)).Matched)
	suite.False(suite.signal(out, HandleElse).Matched)

	matched := suite.signal(out, CaseHandle(2))
	suite.Equal(2, matched.CaseID)
	suite.Equal(suite.start, matched.Time)
	suite.Contains(matched.Reason, "k.kline_1 > 50")
}

func (suite *IfElseTestSuite) TestElseMatchesWhenNoCaseHolds() {
	h := suite.handler(Case{CaseID: 1, Conditions: []Condition{closeVs(OpLessThan, 10)}})

	out, err := h.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)

	suite.False(suite.signal(out, CaseHandle(1)).Matched)
	suite.True(suite.signal(out, HandleElse).Matched)
}

func (suite *IfElseTestSuite) TestLogic() {
	and := suite.handler(Case{CaseID: 1, Conditions: []Condition{closeVs(OpGreaterThan, 50), closeVs(OpLessThan, 60)}})
	or := suite.handler(Case{CaseID: 1, Logic: LogicOr, Conditions: []Condition{closeVs(OpGreaterThan, 50), closeVs(OpLessThan, 60)}})

	out, err := and.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)
	suite.False(suite.signal(out, CaseHandle(1)).Matched)

	out, err = or.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)
	suite.True(suite.signal(out, CaseHandle(1)).Matched)
}

func (suite *IfElseTestSuite) TestUnresolvedOperandDoesNotHold() {
	h := suite.handler(Case{CaseID: 1, Conditions: []Condition{{
		Left:     Operand{Type: OperandNode, NodeID: "missing", Handle: KlineHandle(1)},
		Operator: OpGreaterThan,
		Right:    Operand{Type: OperandConstant, Value: 0},
	}}})

	out, err := h.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)
	suite.False(suite.signal(out, CaseHandle(1)).Matched)
	suite.True(suite.signal(out, HandleElse).Matched)

	out, err = h.process(context.Background(), 1, []graph.Message{{
		FromNode: "k", FromHandle: KlineHandle(1), ToHandle: HandleInput, PlayIndex: 1, Payload: NoData{},
	}})
	suite.Require().NoError(err)
	suite.True(suite.signal(out, HandleElse).Matched)
}

func (suite *IfElseTestSuite) TestFieldOperands() {
	h := suite.handler(Case{CaseID: 1, Conditions: []Condition{{
		Left:     Operand{Type: OperandNode, NodeID: "k", Handle: KlineHandle(1), Field: "close"},
		Operator: OpGreaterThan,
		Right:    Operand{Type: OperandNode, NodeID: "k", Handle: KlineHandle(1), Field: "open"},
	}}})

	out, err := h.process(context.Background(), 0, suite.kline(0, 100))
	suite.Require().NoError(err)
	suite.True(suite.signal(out, CaseHandle(1)).Matched)
}

func (suite *IfElseTestSuite) TestEquality() {
	h := suite.handler(Case{CaseID: 1, Conditions: []Condition{closeVs(OpEqual, 0.3)}})

	out, err := h.process(context.Background(), 0, suite.kline(0, 0.1+0.2))
	suite.Require().NoError(err)
	suite.True(suite.signal(out, CaseHandle(1)).Matched)
}

func (suite *IfElseTestSuite) TestCrossing() {
	h := suite.handler(
		Case{CaseID: 1, Conditions: []Condition{closeVs(OpCrossesAbove, 100)}},
		Case{CaseID: 2, Conditions: []Condition{closeVs(OpCrossesBelow, 100)}},
	)

	closes := []float64{95, 99, 101, 102, 98}
	above := []bool{false, false, true, false, false}
	below := []bool{false, false, false, false, true}

	for i, c := range closes {
		out, err := h.process(context.Background(), int64(i), suite.kline(int64(i), c))
		suite.Require().NoError(err)

		suite.Equal(above[i], suite.signal(out, CaseHandle(1)).Matched, "crosses above at %d", i)
		suite.Equal(below[i], suite.signal(out, CaseHandle(2)).Matched, "crosses below at %d", i)
	}

	h.reset()

	out, err := h.process(context.Background(), 5, suite.kline(5, 120))
	suite.Require().NoError(err)
	suite.False(suite.signal(out, CaseHandle(1)).Matched)
}
