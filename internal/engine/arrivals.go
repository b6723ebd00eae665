package engine

import (
	"math"
	"sort"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/rng"
)

// generateArrivals samples this tick's Poisson arrivals for every agent
// with an arrival configuration. Each agent draws from its own named
// sub-stream, so one agent's traffic never perturbs another's sequence.
func (o *Orchestrator) generateArrivals(tick int64) int {
	count := 0
	for _, agentID := range o.agentOrder {
		stream, ok := o.arrivalStreams[agentID]
		if !ok {
			continue
		}
		agent := o.agents[agentID]
		ac := o.arrivalConfigFor(agentID)
		if ac == nil {
			continue
		}

		rate := agent.BaseArrivalRate * agent.RateMultiplier
		n := stream.Poisson(rate)
		for i := 0; i < n; i++ {
			tx := o.buildArrival(tick, agent, ac, stream)
			if tx == nil {
				continue
			}
			o.addTransaction(tx)
			agent.Queue1 = append(agent.Queue1, tx.ID)
			o.record(tick, journal.EventArrival, map[string]any{
				"tx_id":         tx.ID,
				"sender_id":     tx.Sender,
				"receiver_id":   tx.Receiver,
				"amount":        int64(tx.Amount),
				"priority":      tx.Priority,
				"deadline_tick": tx.DeadlineTick,
				"is_divisible":  tx.IsDivisible,
			})
			count++
		}
	}
	return count
}

func (o *Orchestrator) arrivalConfigFor(agentID string) *config.ArrivalConfig {
	for _, ac := range o.cfg.Agents {
		if ac.ID == agentID {
			return ac.ArrivalConfig
		}
	}
	return nil
}

func (o *Orchestrator) buildArrival(tick int64, agent *AgentState, ac *config.ArrivalConfig, stream *rng.Stream) *Transaction {
	receiver := drawCounterparty(agent.CounterpartyWeights, stream)
	if receiver == "" {
		return nil
	}

	amount := drawAmount(ac.Amount, stream)
	priority := drawPriority(ac.PriorityWeights, stream)

	window := ac.DeadlineWindow
	if o.deadlineOverride != nil {
		window = *o.deadlineOverride
	}
	deadline := tick + stream.Int64Range(window.Min, window.Max)
	if deadline > o.totalTicks {
		deadline = o.totalTicks
	}

	return &Transaction{
		ID:           o.nextTxID(),
		Sender:       agent.ID,
		Receiver:     receiver,
		Amount:       amount,
		Priority:     priority,
		DeadlineTick: deadline,
		ArrivalTick:  tick,
		IsDivisible:  ac.IsDivisible,
		Status:       StatusPending,
	}
}

// drawCounterparty selects a receiver by weighted choice over the
// lexicographically sorted counterparty set.
func drawCounterparty(weights map[string]float64, stream *rng.Stream) string {
	if len(weights) == 0 {
		return ""
	}
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ws := make([]float64, len(ids))
	for i, id := range ids {
		ws[i] = weights[id]
	}
	idx := stream.WeightedChoice(ws)
	if idx < 0 {
		return ""
	}
	return ids[idx]
}

func drawAmount(dist config.AmountDistribution, stream *rng.Stream) money.Cents {
	var amount int64
	switch dist.Type {
	case "Fixed":
		amount = dist.Value
	case "Uniform":
		amount = stream.Int64Range(dist.Min, dist.Max)
	case "Normal":
		amount = int64(math.Round(dist.Mean + dist.Std*stream.NormFloat64()))
	}
	if amount < 1 {
		amount = 1
	}
	return money.Cents(amount)
}

// drawPriority samples from the configured priority weights over the
// sorted priority keys; an empty table yields the middle priority.
func drawPriority(weights map[int]float64, stream *rng.Stream) int {
	if len(weights) == 0 {
		return 5
	}
	keys := make([]int, 0, len(weights))
	for p := range weights {
		keys = append(keys, p)
	}
	sort.Ints(keys)

	ws := make([]float64, len(keys))
	for i, p := range keys {
		ws[i] = weights[p]
	}
	idx := stream.WeightedChoice(ws)
	if idx < 0 {
		return 5
	}
	return keys[idx]
}
