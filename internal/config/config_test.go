package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Simulation: SimulationParams{TicksPerDay: 100, NumDays: 2, RngSeed: 42},
		Agents: []AgentConfig{
			{
				ID:             "BANK_A",
				OpeningBalance: 4_000_000,
				CreditLimit:    1_000_000,
				Policy:         PolicySpec{Type: "Fifo"},
				ArrivalConfig: &ArrivalConfig{
					RatePerTick:         1.5,
					CounterpartyWeights: map[string]float64{"BANK_B": 1.0},
					Amount:              AmountDistribution{Type: "Uniform", Min: 1000, Max: 50_000},
					DeadlineWindow:      DeadlineWindow{Min: 2, Max: 8},
				},
			},
			{
				ID:             "BANK_B",
				OpeningBalance: 4_000_000,
				Policy:         PolicySpec{Type: "Deadline", UrgencyThreshold: 5},
			},
		},
		Costs: CostRates{
			OverdraftBpsPerTick: 5,
			DelayPerTickPerCent: 1,
			EodPenalty:          10_000,
		},
	}
}

func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestTotalTicks(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, int64(200), cfg.Simulation.TotalTicks())
}

func TestLoadConfigYAML(t *testing.T) {
	yml := `
simulation:
  ticks_per_day: 50
  num_days: 1
  rng_seed: 12345
agents:
  - id: BANK_A
    opening_balance: 4000000
    credit_limit: 500000
    policy:
      type: Fifo
    arrival_config:
      rate_per_tick: 3.0
      counterparty_weights:
        BANK_B: 1.0
      amount:
        type: Normal
        mean: 25000
        std: 5000
      deadline_window:
        min: 2
        max: 8
  - id: BANK_B
    opening_balance: 4000000
    policy:
      type: Deadline
      urgency_threshold: 5
costs:
  overdraft_bps_per_tick: 5
  delay_per_tick_per_cent: 1
  eod_penalty: 10000
lsm:
  enabled: true
  every_ticks: 10
scenario_events:
  - type: DirectTransfer
    schedule:
      type: OneTime
      tick: 10
    from: BANK_A
    to: BANK_B
    amount: 100000
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(50), cfg.Simulation.TicksPerDay)
	assert.Len(t, cfg.Agents, 2)
	assert.Equal(t, "Normal", cfg.Agents[0].ArrivalConfig.Amount.Type)
	assert.True(t, cfg.LSM.Enabled)
	require.Len(t, cfg.ScenarioEvents, 1)
	assert.Equal(t, ScenarioDirectTransfer, cfg.ScenarioEvents[0].Type)
}

func TestValidationRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero ticks per day", func(c *Config) { c.Simulation.TicksPerDay = 0 }, "ticks_per_day"},
		{"zero days", func(c *Config) { c.Simulation.NumDays = 0 }, "num_days"},
		{"no agents", func(c *Config) { c.Agents = nil }, "at least one agent"},
		{"duplicate agent", func(c *Config) { c.Agents[1].ID = "BANK_A" }, "duplicate agent id"},
		{"negative credit", func(c *Config) { c.Agents[0].CreditLimit = -1 }, "credit_limit"},
		{"unknown policy", func(c *Config) { c.Agents[0].Policy.Type = "Mystery" }, "unknown policy type"},
		{"empty FromJson", func(c *Config) { c.Agents[0].Policy = PolicySpec{Type: "FromJson"} }, "requires json"},
		{"unknown counterparty", func(c *Config) {
			c.Agents[0].ArrivalConfig.CounterpartyWeights = map[string]float64{"BANK_Z": 1.0}
		}, "unknown counterparty"},
		{"self counterparty", func(c *Config) {
			c.Agents[0].ArrivalConfig.CounterpartyWeights = map[string]float64{"BANK_A": 1.0}
		}, "own counterparty"},
		{"bad amount distribution", func(c *Config) {
			c.Agents[0].ArrivalConfig.Amount = AmountDistribution{Type: "Cauchy"}
		}, "unknown amount distribution"},
		{"bad deadline window", func(c *Config) {
			c.Agents[0].ArrivalConfig.DeadlineWindow = DeadlineWindow{Min: 10, Max: 2}
		}, "deadline_window"},
		{"lsm zero interval", func(c *Config) {
			c.LSM = &LsmConfig{Enabled: true, EveryTicks: 0}
		}, "every_ticks"},
		{"bad escalation curve", func(c *Config) {
			c.PriorityEscalation = &EscalationConfig{Enabled: true, Curve: "sigmoid", StartEscalatingTicks: 5, MaxBoost: 2}
		}, "curve"},
		{"negative scenario interval", func(c *Config) {
			c.ScenarioEvents = []ScenarioEventConfig{{
				Type:     ScenarioGlobalArrivalRateChange,
				Schedule: Schedule{Type: "Repeating", Start: 0, Interval: -5},
			}}
		}, "non-positive interval"},
		{"scenario unknown agent", func(c *Config) {
			c.ScenarioEvents = []ScenarioEventConfig{{
				Type:     ScenarioDirectTransfer,
				Schedule: Schedule{Type: "OneTime", Tick: 1},
				From:     "BANK_A", To: "NOBODY", Amount: 100,
			}}
		}, "unknown agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestZeroAmountDirectTransferAccepted(t *testing.T) {
	cfg := validConfig()
	cfg.ScenarioEvents = []ScenarioEventConfig{{
		Type:     ScenarioDirectTransfer,
		Schedule: Schedule{Type: "OneTime", Tick: 5},
		From:     "BANK_A", To: "BANK_B", Amount: 0,
	}}
	assert.NoError(t, cfg.Validate())
}
