// Package node implements the vertex kinds of a strategy graph: their config,
// their lifecycle and what each kind does with the messages of a play index.
package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/indicator"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/utils"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Kind names a node type.
type Kind string

const (
	KindStart              Kind = "start"
	KindKline              Kind = "kline"
	KindIndicator          Kind = "indicator"
	KindIfElse             Kind = "if_else"
	KindFuturesOrder       Kind = "futures_order"
	KindPositionManagement Kind = "position_management"
	KindVariable           Kind = "variable"
)

// Kinds lists every node kind.
var Kinds = []Kind{
	KindStart,
	KindKline,
	KindIndicator,
	KindIfElse,
	KindFuturesOrder,
	KindPositionManagement,
	KindVariable,
}

// Config is the serialized form of a node.
type Config struct {
	ID     string          `json:"id" yaml:"id" jsonschema:"title=Node ID" validate:"required"`
	Name   string          `json:"name" yaml:"name" jsonschema:"title=Node Name"`
	Type   Kind            `json:"type" yaml:"type" jsonschema:"title=Node Type,enum=start,enum=kline,enum=indicator,enum=if_else,enum=futures_order,enum=position_management,enum=variable" validate:"required"`
	Config json.RawMessage `json:"config,omitempty" yaml:"config,omitempty" jsonschema:"title=Node Config,type=object"`
}

// DisplayName is the name when set, the id otherwise.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}

	return c.ID
}

// Spec is the typed config of one node kind. The set of implementations is
// closed: StartSpec, KlineSpec, IndicatorSpec, IfElseSpec, FuturesOrderSpec,
// PositionManagementSpec and VariableSpec.
type Spec interface {
	Kind() Kind
	validate() error
}

type StartSpec struct{}

// KlineSymbol is one series replayed by a kline node.
type KlineSymbol struct {
	ConfigID int    `json:"config_id" yaml:"config_id" validate:"gt=0"`
	Symbol   string `json:"symbol" yaml:"symbol" validate:"required"`
	Interval string `json:"interval" yaml:"interval" validate:"required"`
}

// TimeRange bounds the replayed history. A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

func (r *TimeRange) IsZero() bool {
	return r == nil || (r.Start.IsZero() && r.End.IsZero())
}

type KlineSpec struct {
	Exchange string        `json:"exchange" yaml:"exchange" validate:"required"`
	Symbols  []KlineSymbol `json:"symbols" yaml:"symbols" validate:"required,min=1,dive"`
	// TimeRange limits the history loaded for every symbol.
	TimeRange *TimeRange `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	// CacheSize bounds the cached bars per symbol. Zero keeps everything.
	CacheSize int `json:"cache_size" yaml:"cache_size" validate:"gte=0"`
}

// IndicatorEntry is one indicator computed by an indicator node.
type IndicatorEntry struct {
	ConfigID int `json:"config_id" yaml:"config_id" validate:"gt=0"`
	// Config is the indicator expression, e.g. "sma(period=20)".
	Config string `json:"config" yaml:"config" validate:"required"`
}

type IndicatorSpec struct {
	Exchange   string           `json:"exchange" yaml:"exchange" validate:"required"`
	Symbol     string           `json:"symbol" yaml:"symbol" validate:"required"`
	Interval   string           `json:"interval" yaml:"interval" validate:"required"`
	Indicators []IndicatorEntry `json:"indicators" yaml:"indicators" validate:"required,min=1,dive"`
	// CacheSize bounds the cached values per indicator. Zero keeps everything.
	CacheSize int `json:"cache_size" yaml:"cache_size" validate:"gte=0"`
}

// OperandType tells where a condition operand reads its value from.
type OperandType string

const (
	OperandNode     OperandType = "node"
	OperandConstant OperandType = "constant"
)

// Operand is one side of a condition. A node operand reads Field from the
// payload the node received from NodeID on Handle for the current play index.
type Operand struct {
	Type   OperandType `json:"type" yaml:"type" validate:"required,oneof=node constant"`
	NodeID string      `json:"node_id,omitempty" yaml:"node_id,omitempty" validate:"required_if=Type node"`
	Handle string      `json:"handle,omitempty" yaml:"handle,omitempty" validate:"required_if=Type node"`
	Field  string      `json:"field,omitempty" yaml:"field,omitempty"`
	Value  float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

func (o Operand) String() string {
	if o.Type == OperandConstant {
		return fmt.Sprintf("%g", o.Value)
	}

	if o.Field == "" {
		return o.NodeID + "." + o.Handle
	}

	return o.NodeID + "." + o.Handle + "." + o.Field
}

// Operator compares two operands.
type Operator string

const (
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpEqual              Operator = "=="
	OpNotEqual           Operator = "!="
	// OpCrossesAbove holds when left was at or below right on the previous
	// play index and is above it now.
	OpCrossesAbove Operator = "crosses_above"
	// OpCrossesBelow holds when left was at or above right on the previous
	// play index and is below it now.
	OpCrossesBelow Operator = "crosses_below"
)

type Condition struct {
	Left     Operand  `json:"left" yaml:"left"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required,oneof=> >= < <= == != crosses_above crosses_below"`
	Right    Operand  `json:"right" yaml:"right"`
}

// Logic combines the conditions of a case.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Case is one branch of an if-else node. An empty Logic means and.
type Case struct {
	CaseID     int         `json:"case_id" yaml:"case_id" validate:"gt=0"`
	Logic      Logic       `json:"logic,omitempty" yaml:"logic,omitempty" validate:"omitempty,oneof=and or"`
	Conditions []Condition `json:"conditions" yaml:"conditions" validate:"required,min=1,dive"`
}

type IfElseSpec struct {
	Cases []Case `json:"cases" yaml:"cases" validate:"required,min=1,dive"`
}

// OrderConfig is one order an order node can place. It is submitted when the
// input handle of its config id receives a matched signal.
type OrderConfig struct {
	ConfigID  int             `json:"config_id" yaml:"config_id" validate:"gt=0"`
	Side      types.OrderSide `json:"side" yaml:"side" validate:"required,oneof=OPEN_LONG OPEN_SHORT CLOSE_LONG CLOSE_SHORT"`
	OrderType types.OrderType `json:"order_type" yaml:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Quantity  float64         `json:"quantity,omitempty" yaml:"quantity,omitempty" validate:"gte=0"`
	// QuantityRatio sizes an open order as a fraction of the available
	// balance when it is placed. It replaces Quantity.
	QuantityRatio float64 `json:"quantity_ratio,omitempty" yaml:"quantity_ratio,omitempty" validate:"gte=0,lte=1"`
	// Precision is the number of decimals a sized quantity is rounded down to.
	Precision int `json:"precision,omitempty" yaml:"precision,omitempty" validate:"gte=0,lte=12"`
	// Price is the limit price.
	Price      float64         `json:"price,omitempty" yaml:"price,omitempty" validate:"gte=0"`
	TakeProfit *types.TpSlSpec `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
	StopLoss   *types.TpSlSpec `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	PointSize  float64         `json:"point_size,omitempty" yaml:"point_size,omitempty" validate:"gte=0"`
}

type FuturesOrderSpec struct {
	Exchange string        `json:"exchange" yaml:"exchange" validate:"required"`
	Symbol   string        `json:"symbol" yaml:"symbol" validate:"required"`
	Orders   []OrderConfig `json:"orders" yaml:"orders" validate:"required,min=1,dive"`
}

// Operation is what a position management entry does.
type Operation string

const (
	// OperationCloseAll closes every open position of the strategy.
	OperationCloseAll Operation = "close_all"
	// OperationClose closes the position of one symbol.
	OperationClose Operation = "close"
	// OperationQuery reads the open positions.
	OperationQuery Operation = "query"
)

type PositionOperation struct {
	ConfigID  int       `json:"config_id" yaml:"config_id" validate:"gt=0"`
	Operation Operation `json:"operation" yaml:"operation" validate:"required,oneof=close_all close query"`
	Symbol    string    `json:"symbol,omitempty" yaml:"symbol,omitempty" validate:"required_if=Operation close"`
}

type PositionManagementSpec struct {
	Exchange   string              `json:"exchange" yaml:"exchange" validate:"required"`
	Operations []PositionOperation `json:"operations" yaml:"operations" validate:"required,min=1,dive"`
}

// VariableTrigger decides when a variable node reads its variables.
type VariableTrigger string

const (
	// TriggerAlways reads on every play index.
	TriggerAlways VariableTrigger = "always"
	// TriggerCondition reads only when a matched signal arrives.
	TriggerCondition VariableTrigger = "condition"
)

// Variable names one account variable.
type Variable struct {
	ConfigID int    `json:"config_id" yaml:"config_id" validate:"gt=0"`
	Name     string `json:"name" yaml:"name" validate:"required,oneof=balance available_balance equity realized_pnl unrealized_pnl position_count position_quantity play_index"`
	Exchange string `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	// Symbol scopes position_quantity.
	Symbol string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
}

type VariableSpec struct {
	Trigger   VariableTrigger `json:"trigger,omitempty" yaml:"trigger,omitempty" validate:"omitempty,oneof=always condition"`
	Variables []Variable      `json:"variables" yaml:"variables" validate:"required,min=1,dive"`
}

func (StartSpec) Kind() Kind              { return KindStart }
func (KlineSpec) Kind() Kind              { return KindKline }
func (IndicatorSpec) Kind() Kind          { return KindIndicator }
func (IfElseSpec) Kind() Kind             { return KindIfElse }
func (FuturesOrderSpec) Kind() Kind       { return KindFuturesOrder }
func (PositionManagementSpec) Kind() Kind { return KindPositionManagement }
func (VariableSpec) Kind() Kind           { return KindVariable }

var validate = validator.New()

func (StartSpec) validate() error { return nil }

func (s KlineSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Symbols))

	for _, sym := range s.Symbols {
		if seen[sym.ConfigID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate config_id %d", sym.ConfigID)
		}

		seen[sym.ConfigID] = true

		if _, err := utils.ParseInterval(sym.Interval); err != nil {
			return err
		}
	}

	if !s.TimeRange.IsZero() && !s.TimeRange.End.IsZero() && s.TimeRange.End.Before(s.TimeRange.Start) {
		return errors.New(errors.ErrCodeInvalidNodeConfig, "time range ends before it starts")
	}

	return nil
}

func (s IndicatorSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	if _, err := utils.ParseInterval(s.Interval); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Indicators))

	for _, ind := range s.Indicators {
		if seen[ind.ConfigID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate config_id %d", ind.ConfigID)
		}

		seen[ind.ConfigID] = true

		if _, err := indicator.ParseConfig(ind.Config); err != nil {
			return err
		}
	}

	return nil
}

func (s IfElseSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Cases))

	for _, c := range s.Cases {
		if seen[c.CaseID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate case_id %d", c.CaseID)
		}

		seen[c.CaseID] = true
	}

	return nil
}

func (s FuturesOrderSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Orders))

	for _, o := range s.Orders {
		if seen[o.ConfigID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate config_id %d", o.ConfigID)
		}

		seen[o.ConfigID] = true

		switch {
		case (o.Quantity > 0) == (o.QuantityRatio > 0):
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "order config %d: exactly one of quantity and quantity_ratio must be positive", o.ConfigID)
		case o.QuantityRatio > 0 && !o.Side.IsOpen():
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "order config %d: quantity_ratio only sizes open orders", o.ConfigID)
		}

		if o.OrderType == types.OrderTypeLimit && o.Price <= 0 {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "order config %d: limit order requires a positive price", o.ConfigID)
		}

		for _, tpsl := range []*types.TpSlSpec{o.TakeProfit, o.StopLoss} {
			if tpsl == nil {
				continue
			}

			if err := validate.Struct(tpsl); err != nil {
				return err
			}

			if tpsl.Type == types.TpSlTypePoint && o.PointSize <= 0 {
				return errors.Newf(errors.ErrCodeInvalidNodeConfig, "order config %d: point take profit or stop loss requires point_size", o.ConfigID)
			}
		}
	}

	return nil
}

func (s PositionManagementSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Operations))

	for _, op := range s.Operations {
		if seen[op.ConfigID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate config_id %d", op.ConfigID)
		}

		seen[op.ConfigID] = true
	}

	return nil
}

func (s VariableSpec) validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Variables))

	for _, v := range s.Variables {
		if seen[v.ConfigID] {
			return errors.Newf(errors.ErrCodeInvalidNodeConfig, "duplicate config_id %d", v.ConfigID)
		}

		seen[v.ConfigID] = true
	}

	return nil
}

// NewSpec returns the zero spec of kind.
func NewSpec(kind Kind) (Spec, error) {
	switch kind {
	case KindStart:
		return StartSpec{}, nil
	case KindKline:
		return KlineSpec{}, nil
	case KindIndicator:
		return IndicatorSpec{}, nil
	case KindIfElse:
		return IfElseSpec{}, nil
	case KindFuturesOrder:
		return FuturesOrderSpec{}, nil
	case KindPositionManagement:
		return PositionManagementSpec{}, nil
	case KindVariable:
		return VariableSpec{}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownNodeType, "unknown node type %q", kind).
			WithDetail("type", string(kind))
	}
}

// ParseSpec decodes and validates the typed config of c. Unknown fields are
// rejected.
func ParseSpec(c Config) (Spec, error) {
	if err := validate.Struct(c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidNodeConfig, "invalid node", err)
	}

	var (
		spec Spec
		err  error
	)

	switch c.Type {
	case KindStart:
		spec = StartSpec{}
	case KindKline:
		spec, err = decode[KlineSpec](c.Config)
	case KindIndicator:
		spec, err = decode[IndicatorSpec](c.Config)
	case KindIfElse:
		spec, err = decode[IfElseSpec](c.Config)
	case KindFuturesOrder:
		spec, err = decode[FuturesOrderSpec](c.Config)
	case KindPositionManagement:
		spec, err = decode[PositionManagementSpec](c.Config)
	case KindVariable:
		spec, err = decode[VariableSpec](c.Config)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownNodeType, "node %s has unknown type %q", c.ID, c.Type).
			WithDetail("node_id", c.ID)
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidNodeConfig, err, "node %s: malformed %s config", c.ID, c.Type).
			WithDetail("node_id", c.ID)
	}

	if err := spec.validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidNodeConfig, err, "node %s: invalid %s config", c.ID, c.Type).
			WithDetail("node_id", c.ID)
	}

	return spec, nil
}

func decode[T Spec](raw json.RawMessage) (T, error) {
	var spec T

	if len(bytes.TrimSpace(raw)) == 0 {
		return spec, errors.New(errors.ErrCodeInvalidNodeConfig, "config is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&spec); err != nil {
		return spec, err
	}

	return spec, nil
}

// tpsl converts an optional config spec.
func tpsl(s *types.TpSlSpec) optional.Option[types.TpSlSpec] {
	if s == nil {
		return optional.None[types.TpSlSpec]()
	}

	return optional.Some(*s)
}
