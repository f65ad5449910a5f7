// Package config reads and validates strategy config documents.
//
// A document is YAML or JSON:
//
//	id: 1
//	name: sma-cross
//	trade_mode: backtest
//	engine_version: "^0.4"
//	account:
//	  initial_balance: 10000
//	nodes:
//	  - id: start
//	    type: start
//	edges: []
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/node"
	"github.com/rxtech-lab/argo-strategy/internal/version"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TradeMode is how a strategy trades. Only backtest replays are run by this
// engine; live configs are accepted by the loader and rejected by the engine.
type TradeMode string

const (
	TradeModeBacktest TradeMode = "backtest"
	TradeModeLive     TradeMode = "live"
)

// Status is the lifecycle status recorded in the document.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Format is the encoding of a config document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Duration is a time.Duration written as "1.5s" in documents.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"5s\": %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// RuntimeConfig bounds how the engine drives the graph. Zero values take the
// defaults of Default.
type RuntimeConfig struct {
	StepTimeout Duration `yaml:"step_timeout" json:"step_timeout,omitempty" jsonschema:"title=Step Timeout,description=Time a play index may take,type=string,example=5s"`
	InitTimeout Duration `yaml:"init_timeout" json:"init_timeout,omitempty" jsonschema:"title=Init Timeout,description=Time a node may take to initialize,type=string"`
	StopTimeout Duration `yaml:"stop_timeout" json:"stop_timeout,omitempty" jsonschema:"title=Stop Timeout,description=Time a node may take to stop,type=string"`
	// StopPolicy is continue or abort.
	StopPolicy string `yaml:"stop_policy" json:"stop_policy,omitempty" jsonschema:"title=Stop Policy,enum=continue,enum=abort" validate:"omitempty,oneof=continue abort"`
	// PlayInterval paces Play. Zero plays as fast as possible.
	PlayInterval Duration `yaml:"play_interval" json:"play_interval,omitempty" jsonschema:"title=Play Interval,type=string"`
	// Exchanges restricts the exchanges nodes may register. Empty allows any.
	Exchanges []string `yaml:"exchanges" json:"exchanges,omitempty" jsonschema:"title=Exchanges"`
}

// StrategyConfig is the document a strategy is built from.
type StrategyConfig struct {
	ID            int64         `yaml:"id" json:"id" jsonschema:"title=Strategy ID,minimum=1" validate:"gt=0"`
	Name          string        `yaml:"name" json:"name" jsonschema:"title=Name" validate:"required"`
	Description   string        `yaml:"description" json:"description,omitempty" jsonschema:"title=Description"`
	Status        Status        `yaml:"status" json:"status,omitempty" jsonschema:"title=Status,enum=draft,enum=active,enum=archived" validate:"omitempty,oneof=draft active archived"`
	TradeMode     TradeMode     `yaml:"trade_mode" json:"trade_mode" jsonschema:"title=Trade Mode,enum=backtest,enum=live" validate:"required,oneof=backtest live"`
	EngineVersion string        `yaml:"engine_version" json:"engine_version,omitempty" jsonschema:"title=Engine Version,description=Engine version or semver constraint the strategy was written for"`
	Account       vts.Config    `yaml:"account" json:"account" jsonschema:"title=Account"`
	Runtime       RuntimeConfig `yaml:"runtime" json:"runtime,omitempty" jsonschema:"title=Runtime"`
	Nodes         []node.Config `yaml:"nodes" json:"nodes" jsonschema:"title=Nodes" validate:"required,min=1,dive"`
	Edges         []graph.Edge  `yaml:"edges" json:"edges" jsonschema:"title=Edges" validate:"dive"`
}

// Default returns the defaults applied to every loaded document.
func Default() StrategyConfig {
	return StrategyConfig{
		Status:    StatusDraft,
		TradeMode: TradeModeBacktest,
		Account: vts.Config{
			InitialBalance: 10000,
			Leverage:       1,
			FeeRate:        0,
			Broker:         vts.BrokerRate,
		},
		Runtime: RuntimeConfig{
			StepTimeout:  Duration(10 * time.Second),
			InitTimeout:  Duration(120 * time.Second),
			StopTimeout:  Duration(10 * time.Second),
			StopPolicy:   "continue",
			PlayInterval: 0,
			Exchanges:    nil,
		},
	}
}

// LoadFile reads a document. The format follows the file extension; anything
// other than .json is read as YAML.
func LoadFile(path string) (StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read %s", path)
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}

	return Parse(data, format)
}

// Parse decodes and validates a document. YAML documents are converted to
// JSON first so node configs keep their raw JSON form.
func Parse(data []byte, format Format) (StrategyConfig, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return StrategyConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "malformed yaml document", err)
		}

		data = converted
	}

	cfg := Default()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return StrategyConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "malformed strategy config", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return StrategyConfig{}, err
	}

	return cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, fmt.Errorf("document is empty")
	}

	return json.Marshal(doc)
}

func (c *StrategyConfig) applyDefaults() {
	defaults := Default()

	if c.Account.Leverage == 0 {
		c.Account.Leverage = defaults.Account.Leverage
	}

	if c.Account.Broker == "" {
		c.Account.Broker = defaults.Account.Broker
	}

	// the account always belongs to the strategy
	c.Account.StrategyID = c.ID

	if c.Runtime.StepTimeout <= 0 {
		c.Runtime.StepTimeout = defaults.Runtime.StepTimeout
	}

	if c.Runtime.InitTimeout <= 0 {
		c.Runtime.InitTimeout = defaults.Runtime.InitTimeout
	}

	if c.Runtime.StopTimeout <= 0 {
		c.Runtime.StopTimeout = defaults.Runtime.StopTimeout
	}

	if c.Runtime.StopPolicy == "" {
		c.Runtime.StopPolicy = defaults.Runtime.StopPolicy
	}
}

var validate = validator.New()

// Validate checks the document, every node config, the edge endpoints and
// the engine version.
func (c *StrategyConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid strategy config", err)
	}

	if c.EngineVersion != "" {
		if err := version.CheckVersionCompatibility(version.GetVersion(), c.EngineVersion); err != nil {
			return errors.Wrapf(errors.GetCode(err), err, "strategy %d cannot run on engine %s", c.ID, version.GetVersion())
		}
	}

	ids := make(map[string]bool, len(c.Nodes))
	starts := 0

	for _, n := range c.Nodes {
		if ids[n.ID] {
			return errors.Newf(errors.ErrCodeDuplicateNode, "node %s is declared twice", n.ID).
				WithDetail("node_id", n.ID)
		}

		ids[n.ID] = true

		if _, err := node.ParseSpec(n); err != nil {
			return err
		}

		if n.Type == node.KindStart {
			starts++
		}
	}

	if starts != 1 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %d needs exactly one start node, found %d", c.ID, starts)
	}

	for _, e := range c.Edges {
		for _, id := range []string{e.FromNode, e.ToNode} {
			if !ids[id] {
				return errors.Newf(errors.ErrCodeNodeNotFound, "edge %s refers to unknown node %s", e.ID, id).
					WithDetail("edge_id", e.ID)
			}
		}
	}

	return nil
}

// Node returns the config of a node.
func (c *StrategyConfig) Node(id string) (node.Config, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return node.Config{}, false
}

// GraphOptions maps the runtime section onto the graph's lifecycle options.
func (c *StrategyConfig) GraphOptions() graph.Options {
	options := graph.DefaultOptions()
	options.InitTimeout = c.Runtime.InitTimeout.Std()
	options.StopTimeout = c.Runtime.StopTimeout.Std()

	if c.Runtime.StopPolicy == "abort" {
		options.StopPolicy = graph.StopPolicyAbort
	}

	return options
}

// Marshal encodes the document.
func (c StrategyConfig) Marshal(format Format) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil || format == FormatJSON {
		return data, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
