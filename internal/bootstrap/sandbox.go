package bootstrap

import (
	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/policy"
)

// Sandbox agent identifiers. SOURCE originates the target's incoming
// liquidity beats; SINK absorbs every outgoing payment.
const (
	SourceAgent = "SOURCE"
	SinkAgent   = "SINK"
)

// Very large opening balance / credit so the synthetic endpoints never
// constrain the target's liquidity environment.
const infiniteLiquidity = 10_000_000_000

// SandboxBuilder synthesizes the three-agent simulation configuration for
// one bootstrap sample. The target agent experiences the sample's exact
// arrival and liquidity pressure in isolation, so the evaluated policy's
// behaviour is attributable to the policy alone.
type SandboxBuilder struct {
	Costs              config.CostRates
	PriorityEscalation *config.EscalationConfig
}

// BuildConfig produces the sandbox SimulationConfig: a single day of
// sample.TotalTicks ticks seeded with the sample's seed.
func (b *SandboxBuilder) BuildConfig(sample Sample, targetPolicy *policy.Tree, openingBalance, creditLimit int64) (*config.Config, error) {
	policyJSON, err := targetPolicy.Marshal()
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Simulation: config.SimulationParams{
			TicksPerDay: sample.TotalTicks,
			NumDays:     1,
			RngSeed:     sample.Seed,
		},
		Agents: []config.AgentConfig{
			{
				ID:             SourceAgent,
				OpeningBalance: infiniteLiquidity,
				Policy:         config.PolicySpec{Type: "Fifo"},
			},
			{
				ID:             sample.AgentID,
				OpeningBalance: openingBalance,
				CreditLimit:    creditLimit,
				Policy:         config.PolicySpec{Type: "FromJson", JSON: string(policyJSON)},
			},
			{
				ID:          SinkAgent,
				CreditLimit: infiniteLiquidity,
				Policy:      config.PolicySpec{Type: "Fifo"},
			},
		},
		Costs:              b.Costs,
		PriorityEscalation: b.PriorityEscalation,
	}

	// Outgoing payments replay as exact-tick arrivals routed to SINK.
	for _, tx := range sample.OutgoingTxns {
		cfg.ScenarioEvents = append(cfg.ScenarioEvents, config.ScenarioEventConfig{
			Type:         config.ScenarioCustomTransactionArrival,
			Schedule:     config.Schedule{Type: "OneTime", Tick: tx.ArrivalTick},
			From:         sample.AgentID,
			To:           SinkAgent,
			Amount:       int64(tx.Amount),
			Priority:     tx.Priority,
			DeadlineTick: tx.DeadlineTick,
			Divisible:    false,
		})
	}

	// Settled incoming records replay as liquidity beats from SOURCE at
	// their remapped settlement ticks.
	for _, tx := range sample.IncomingSettlements {
		cfg.ScenarioEvents = append(cfg.ScenarioEvents, config.ScenarioEventConfig{
			Type:     config.ScenarioDirectTransfer,
			Schedule: config.Schedule{Type: "OneTime", Tick: tx.SettlementTick},
			From:     SourceAgent,
			To:       sample.AgentID,
			Amount:   int64(tx.Amount),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
