package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/journal"
)

func escalationConfig() *config.Config {
	cfg := &config.Config{
		Simulation: config.SimulationParams{TicksPerDay: 20, NumDays: 1, RngSeed: 7},
		Agents: []config.AgentConfig{
			{ID: "BANK_A", Policy: config.PolicySpec{Type: "Fifo"}},
			{ID: "BANK_B", Policy: config.PolicySpec{Type: "Fifo"}},
		},
		Costs: config.CostRates{},
		PriorityEscalation: &config.EscalationConfig{
			Enabled:              true,
			Curve:                "linear",
			StartEscalatingTicks: 10,
			MaxBoost:             3,
		},
	}
	return cfg
}

func TestPriorityEscalationEventFields(t *testing.T) {
	orch, err := New(escalationConfig())
	require.NoError(t, err)

	// Stuck in Queue 2: the sender has no funds.
	txID, err := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 12, 3, false)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		orch.Tick()
	}

	var escalations []journal.Event
	for _, e := range orch.AllEvents() {
		if e.Type == journal.EventPriorityEscalated {
			escalations = append(escalations, e)
		}
	}
	require.NotEmpty(t, escalations)

	// Linear curve, start 10, max 3, deadline 12: the first nonzero
	// boost lands at tick 6 (ticks_until_deadline 6, boost 1).
	first := escalations[0]
	assert.Equal(t, int64(6), first.Tick)
	assert.Equal(t, txID, first.Details["tx_id"])
	assert.Equal(t, 3, first.Details["original_priority"])
	assert.Equal(t, 4, first.Details["escalated_priority"])
	assert.Equal(t, 1, first.Details["boost_applied"])
	assert.Equal(t, int64(6), first.Details["ticks_until_deadline"])
}

func TestEscalationNeverMutatesStoredPriority(t *testing.T) {
	orch, err := New(escalationConfig())
	require.NoError(t, err)

	txID, err := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 12, 3, false)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		orch.Tick()
		assert.Equal(t, 3, orch.TransactionDetails(txID).Priority)
	}
}

func TestEscalationReordersQueue2(t *testing.T) {
	orch, err := New(escalationConfig())
	require.NoError(t, err)

	// Near-deadline low-priority payment vs far-deadline mid-priority.
	nearID, err := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 8, 2, false)
	require.NoError(t, err)
	farID, err := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 19, 4, false)
	require.NoError(t, err)

	orch.Tick()
	assert.Equal(t, []string{farID, nearID}, orch.Queue2Contents())

	// By tick 5 the near payment's boost (ttd 3 -> boost 2) lifts its
	// effective priority to 4; the id tiebreak then puts it first.
	for i := 0; i < 5; i++ {
		orch.Tick()
	}
	assert.Equal(t, []string{nearID, farID}, orch.Queue2Contents())
}

func TestEscalationReplayIdentity(t *testing.T) {
	run := func() []journal.Event {
		orch, err := New(escalationConfig())
		require.NoError(t, err)
		_, err = orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 12, 3, false)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			orch.Tick()
		}
		var out []journal.Event
		for _, e := range orch.AllEvents() {
			if e.Type == journal.EventPriorityEscalated {
				out = append(out, e)
			}
		}
		return out
	}

	assert.Equal(t, run(), run())
}
