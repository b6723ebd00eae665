// Package config defines the simulation configuration schema and its
// validation. Configurations load from YAML; policy trees embed as JSON.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level simulation configuration.
type Config struct {
	Simulation         SimulationParams      `yaml:"simulation" json:"simulation"`
	Agents             []AgentConfig         `yaml:"agents" json:"agents"`
	Costs              CostRates             `yaml:"costs" json:"costs"`
	LSM                *LsmConfig            `yaml:"lsm,omitempty" json:"lsm,omitempty"`
	PriorityEscalation *EscalationConfig     `yaml:"priority_escalation,omitempty" json:"priority_escalation,omitempty"`
	ScenarioEvents     []ScenarioEventConfig `yaml:"scenario_events,omitempty" json:"scenario_events,omitempty"`
}

// SimulationParams sets the timeline and master seed.
type SimulationParams struct {
	TicksPerDay int64  `yaml:"ticks_per_day" json:"ticks_per_day"`
	NumDays     int64  `yaml:"num_days" json:"num_days"`
	RngSeed     uint64 `yaml:"rng_seed" json:"rng_seed"`
}

// TotalTicks returns the simulation horizon in ticks.
func (s SimulationParams) TotalTicks() int64 {
	return s.TicksPerDay * s.NumDays
}

// AgentConfig declares one participating bank.
type AgentConfig struct {
	ID                 string         `yaml:"id" json:"id"`
	OpeningBalance     int64          `yaml:"opening_balance" json:"opening_balance"`
	CreditLimit        int64          `yaml:"credit_limit,omitempty" json:"credit_limit,omitempty"`
	CollateralCapacity int64          `yaml:"collateral_capacity,omitempty" json:"collateral_capacity,omitempty"`
	Policy             PolicySpec     `yaml:"policy" json:"policy"`
	ArrivalConfig      *ArrivalConfig `yaml:"arrival_config,omitempty" json:"arrival_config,omitempty"`
}

// PolicySpec selects the release policy for an agent. Type is one of
// "Fifo", "Deadline", or "FromJson"; FromJson carries a policy tree as
// raw JSON.
type PolicySpec struct {
	Type             string `yaml:"type" json:"type"`
	UrgencyThreshold int64  `yaml:"urgency_threshold,omitempty" json:"urgency_threshold,omitempty"`
	JSON             string `yaml:"json,omitempty" json:"json,omitempty"`
}

// ArrivalConfig drives the Poisson transaction generator for one agent.
type ArrivalConfig struct {
	RatePerTick         float64            `yaml:"rate_per_tick" json:"rate_per_tick"`
	CounterpartyWeights map[string]float64 `yaml:"counterparty_weights" json:"counterparty_weights"`
	Amount              AmountDistribution `yaml:"amount" json:"amount"`
	PriorityWeights     map[int]float64    `yaml:"priority_weights,omitempty" json:"priority_weights,omitempty"`
	DeadlineWindow      DeadlineWindow     `yaml:"deadline_window" json:"deadline_window"`
	IsDivisible         bool               `yaml:"is_divisible,omitempty" json:"is_divisible,omitempty"`
}

// AmountDistribution is a closed sum over the supported amount draws.
type AmountDistribution struct {
	Type  string  `yaml:"type" json:"type"` // "Fixed" | "Uniform" | "Normal"
	Value int64   `yaml:"value,omitempty" json:"value,omitempty"`
	Min   int64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max   int64   `yaml:"max,omitempty" json:"max,omitempty"`
	Mean  float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	Std   float64 `yaml:"std,omitempty" json:"std,omitempty"`
}

// DeadlineWindow bounds the uniform deadline offset applied to arrivals.
type DeadlineWindow struct {
	Min int64 `yaml:"min" json:"min"`
	Max int64 `yaml:"max" json:"max"`
}

// CostRates parameterize the five cost buckets plus end-of-day penalties.
// All rates are integers; bps rates apply with truncating division.
type CostRates struct {
	OverdraftBpsPerTick    int64 `yaml:"overdraft_bps_per_tick" json:"overdraft_bps_per_tick"`
	CollateralBpsPerTick   int64 `yaml:"collateral_bps_per_tick" json:"collateral_bps_per_tick"`
	DelayPerTickPerCent    int64 `yaml:"delay_per_tick_per_cent" json:"delay_per_tick_per_cent"`
	SplitFee               int64 `yaml:"split_fee" json:"split_fee"`
	DeadlineBasePenalty    int64 `yaml:"deadline_base_penalty" json:"deadline_base_penalty"`
	DeadlinePenaltyPerTick int64 `yaml:"deadline_penalty_per_tick" json:"deadline_penalty_per_tick"`
	EodPenalty             int64 `yaml:"eod_penalty" json:"eod_penalty"`
}

// LsmConfig schedules the netting engine.
type LsmConfig struct {
	Enabled    bool  `yaml:"enabled" json:"enabled"`
	EveryTicks int64 `yaml:"every_ticks" json:"every_ticks"`
}

// EscalationConfig enables deadline-driven priority boosts in Queue 2.
type EscalationConfig struct {
	Enabled              bool   `yaml:"enabled" json:"enabled"`
	Curve                string `yaml:"curve" json:"curve"` // "linear" | "exponential"
	StartEscalatingTicks int64  `yaml:"start_escalating_at_ticks" json:"start_escalating_at_ticks"`
	MaxBoost             int    `yaml:"max_boost" json:"max_boost"`
}

// Schedule declares when a scenario event fires.
type Schedule struct {
	Type     string `yaml:"type" json:"type"` // "OneTime" | "Repeating"
	Tick     int64  `yaml:"tick,omitempty" json:"tick,omitempty"`
	Start    int64  `yaml:"start,omitempty" json:"start,omitempty"`
	Interval int64  `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// ScenarioEventConfig declares one scheduled perturbation. Exactly the
// fields for its Type are meaningful; the rest stay zero.
type ScenarioEventConfig struct {
	Type     string   `yaml:"type" json:"type"`
	Schedule Schedule `yaml:"schedule" json:"schedule"`

	// DirectTransfer, CustomTransactionArrival
	From   string `yaml:"from,omitempty" json:"from,omitempty"`
	To     string `yaml:"to,omitempty" json:"to,omitempty"`
	Amount int64  `yaml:"amount,omitempty" json:"amount,omitempty"`

	// CustomTransactionArrival
	Priority     int   `yaml:"priority,omitempty" json:"priority,omitempty"`
	DeadlineTick int64 `yaml:"deadline_tick,omitempty" json:"deadline_tick,omitempty"`
	Divisible    bool  `yaml:"divisible,omitempty" json:"divisible,omitempty"`

	// CollateralAdjustment, AgentArrivalRateChange, CounterpartyWeightChange
	Agent        string  `yaml:"agent,omitempty" json:"agent,omitempty"`
	Delta        int64   `yaml:"delta,omitempty" json:"delta,omitempty"`
	Multiplier   float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	Counterparty string  `yaml:"counterparty,omitempty" json:"counterparty,omitempty"`
	NewWeight    float64 `yaml:"new_weight,omitempty" json:"new_weight,omitempty"`

	// DeadlineWindowChange
	NewMin int64 `yaml:"new_min,omitempty" json:"new_min,omitempty"`
	NewMax int64 `yaml:"new_max,omitempty" json:"new_max,omitempty"`
}

// Scenario event type names.
const (
	ScenarioDirectTransfer           = "DirectTransfer"
	ScenarioCollateralAdjustment     = "CollateralAdjustment"
	ScenarioAgentArrivalRateChange   = "AgentArrivalRateChange"
	ScenarioGlobalArrivalRateChange  = "GlobalArrivalRateChange"
	ScenarioCounterpartyWeightChange = "CounterpartyWeightChange"
	ScenarioDeadlineWindowChange     = "DeadlineWindowChange"
	ScenarioCustomTransactionArrival = "CustomTransactionArrival"
)

// LoadConfig reads and parses a YAML configuration file, then validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
