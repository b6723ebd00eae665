package optimize

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerugo/simcash/internal/bootstrap"
	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/policy"
)

// fakeOracle returns canned responses in order, then repeats the last.
type fakeOracle struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeOracle) ProposePolicy(system, user string) (string, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, user)
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	return f.responses[idx], nil
}

func optimizerConfig() *config.Config {
	arrival := func(counterparty string) *config.ArrivalConfig {
		return &config.ArrivalConfig{
			RatePerTick:         1.0,
			CounterpartyWeights: map[string]float64{counterparty: 1.0},
			Amount:              config.AmountDistribution{Type: "Uniform", Min: 1_000, Max: 30_000},
			DeadlineWindow:      config.DeadlineWindow{Min: 2, Max: 8},
		}
	}
	return &config.Config{
		Simulation: config.SimulationParams{TicksPerDay: 20, NumDays: 1, RngSeed: 404},
		Agents: []config.AgentConfig{
			{ID: "BANK_A", OpeningBalance: 500_000, CreditLimit: 100_000, Policy: config.PolicySpec{Type: "Fifo"}, ArrivalConfig: arrival("BANK_B")},
			{ID: "BANK_B", OpeningBalance: 500_000, CreditLimit: 100_000, Policy: config.PolicySpec{Type: "Fifo"}, ArrivalConfig: arrival("BANK_A")},
		},
		Costs: config.CostRates{
			OverdraftBpsPerTick:    5,
			DelayPerTickPerCent:    1,
			DeadlineBasePenalty:    100,
			DeadlinePenaltyPerTick: 10,
			EodPenalty:             5_000,
		},
	}
}

func baseSettings(oracle Oracle) Settings {
	return Settings{
		Config:               optimizerConfig(),
		OptimizedAgents:      []string{"BANK_A"},
		Oracle:               oracle,
		NumSamples:           3,
		Workers:              2,
		MaxIterations:        2,
		ImprovementThreshold: 0.01,
		Convergence: ConvergenceSettings{
			CvThreshold:     0.03,
			WindowSize:      5,
			RegretThreshold: 0.10,
			MaxIterations:   25,
			TrendAlpha:      0.05,
		},
		Now: func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestNewOptimizerValidation(t *testing.T) {
	_, err := NewOptimizer(Settings{})
	assert.Error(t, err)

	_, err = NewOptimizer(Settings{Config: optimizerConfig(), Oracle: &fakeOracle{responses: []string{"{}"}}})
	assert.Error(t, err)

	settings := baseSettings(&fakeOracle{responses: []string{"{}"}})
	settings.OptimizedAgents = []string{"BANK_Z"}
	_, err = NewOptimizer(settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown optimized agent")
}

func TestOracleErrorKeepsPriorPolicy(t *testing.T) {
	oracle := &fakeOracle{
		responses: []string{""},
		errs:      []error{fmt.Errorf("oracle timeout")},
	}
	opt, err := NewOptimizer(baseSettings(oracle))
	require.NoError(t, err)

	outcome, err := opt.Run(context.Background())
	require.NoError(t, err)

	// The prior (Fifo) policy survives.
	assert.Equal(t, policy.FifoTree(), outcome.BestPolicies["BANK_A"])

	var rejected int
	for _, e := range outcome.Events {
		if e.EventType == EventPolicyRejected {
			rejected++
			assert.Equal(t, "oracle_error", e.Data["reason"])
			assert.Equal(t, "BANK_A", e.AgentID)
		}
	}
	assert.Equal(t, 2, rejected) // one per iteration
}

func TestInvalidProposalRejected(t *testing.T) {
	oracle := &fakeOracle{responses: []string{"this is not json"}}
	opt, err := NewOptimizer(baseSettings(oracle))
	require.NoError(t, err)

	outcome, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, policy.FifoTree(), outcome.BestPolicies["BANK_A"])
	var sawInvalid bool
	for _, e := range outcome.Events {
		if e.EventType == EventPolicyRejected && e.Data["reason"] == "invalid_json" {
			sawInvalid = true
		}
	}
	assert.True(t, sawInvalid)
}

func TestConstraintViolationRejected(t *testing.T) {
	// A proposal using a disallowed action.
	splitPolicy := `{"root": {"node_id": 1, "kind": "action", "action": "Split", "count": 2}}`
	oracle := &fakeOracle{responses: []string{splitPolicy}}

	settings := baseSettings(oracle)
	settings.Constraints = Constraints{
		AllowedActions: map[string]bool{policy.DecisionRelease: true, policy.DecisionHold: true},
	}
	opt, err := NewOptimizer(settings)
	require.NoError(t, err)

	outcome, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, policy.FifoTree(), outcome.BestPolicies["BANK_A"])
	var sawValidation bool
	for _, e := range outcome.Events {
		if e.EventType == EventPolicyRejected && e.Data["reason"] == "validation_failed" {
			sawValidation = true
		}
	}
	assert.True(t, sawValidation)
}

func TestIdenticalProposalNotAccepted(t *testing.T) {
	// Proposing the exact current policy evaluates to the identical mean
	// on the shared sample set, so it can never clear the threshold.
	fifoJSON, err := policy.FifoTree().Marshal()
	require.NoError(t, err)
	oracle := &fakeOracle{responses: []string{string(fifoJSON)}}

	opt, err := NewOptimizer(baseSettings(oracle))
	require.NoError(t, err)
	outcome, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, policy.FifoTree(), outcome.BestPolicies["BANK_A"])
	var insufficient bool
	for _, e := range outcome.Events {
		if e.EventType == EventPolicyRejected && e.Data["reason"] == "insufficient_improvement" {
			insufficient = true
		}
	}
	assert.True(t, insufficient)
}

func TestRunEventsStructure(t *testing.T) {
	oracle := &fakeOracle{responses: []string{"not json"}}
	opt, err := NewOptimizer(baseSettings(oracle))
	require.NoError(t, err)

	outcome, err := opt.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, outcome.Events)
	assert.Equal(t, EventExperimentStart, outcome.Events[0].EventType)
	assert.Equal(t, EventExperimentEnd, outcome.Events[len(outcome.Events)-1].EventType)

	for i, e := range outcome.Events {
		assert.Equal(t, i, e.Seq)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestCancellationBetweenIterations(t *testing.T) {
	oracle := &fakeOracle{responses: []string{"not json"}}
	settings := baseSettings(oracle)
	settings.MaxIterations = 50

	opt, err := NewOptimizer(settings)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := opt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", outcome.ConvergenceReason)
	assert.Equal(t, 0, opt.log.events[len(opt.log.events)-1].Iteration)
}

// The prompt built for one agent must never contain another agent's
// private traffic.
func TestPromptIsolation(t *testing.T) {
	marker := money.Cents(99_999)

	events := []journal.Event{
		{Tick: 1, Type: journal.EventArrival, Details: map[string]any{
			"tx_id": "tx-own", "sender_id": "BANK_A", "receiver_id": "BANK_B", "amount": int64(500),
		}},
		{Tick: 2, Type: journal.EventArrival, Details: map[string]any{
			"tx_id": "tx-other", "sender_id": "BANK_C", "receiver_id": "BANK_D", "amount": int64(marker),
		}},
		{Tick: 3, Type: journal.EventCostAccrual, Details: map[string]any{
			"agent_id": "BANK_C", "cost_type": "delay", "cost": int64(marker),
		}},
	}
	results := []bootstrap.Result{{
		Seed:          1,
		PerAgentCosts: map[string]money.Cents{"BANK_A": 100},
		Events:        events,
	}}

	builder, err := bootstrap.NewContextBuilder(results, "BANK_A")
	require.NoError(t, err)
	agentCtx := builder.BuildAgentContext()

	prompt := BuildUserPrompt("BANK_A", "{}", agentCtx, nil)
	assert.Contains(t, prompt, "tx-own")
	assert.NotContains(t, prompt, "tx-other")
	assert.NotContains(t, prompt, "99999")
	assert.False(t, strings.Contains(prompt, "999.99"))
	assert.NotContains(t, prompt, "BANK_C")
}

func TestBuildSystemPromptListsConstraints(t *testing.T) {
	prompt := BuildSystemPrompt(Constraints{
		AllowedFields:  map[string]bool{"balance": true, "amount": true},
		AllowedActions: map[string]bool{"Release": true, "Hold": true},
	})
	assert.Contains(t, prompt, "amount, balance")
	assert.Contains(t, prompt, "Hold, Release")

	open := BuildSystemPrompt(Constraints{})
	assert.Contains(t, open, "(all)")
}
