package engine

import (
	"log/slog"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// applyScenarioEvents fires every configured perturbation scheduled for
// this tick, in declaration order. Each application is journaled.
func (o *Orchestrator) applyScenarioEvents(tick int64) {
	for _, se := range o.cfg.ScenarioEvents {
		if !scheduleFires(se.Schedule, tick) {
			continue
		}
		o.applyScenarioEvent(tick, se)
	}
}

func scheduleFires(s config.Schedule, tick int64) bool {
	switch s.Type {
	case "OneTime":
		return s.Tick == tick
	case "Repeating":
		return tick >= s.Start && (tick-s.Start)%s.Interval == 0
	}
	return false
}

func (o *Orchestrator) applyScenarioEvent(tick int64, se config.ScenarioEventConfig) {
	details := map[string]any{"scenario_type": se.Type}

	switch se.Type {
	case config.ScenarioDirectTransfer:
		from := o.agents[se.From]
		to := o.agents[se.To]
		amount := money.Cents(se.Amount)
		if amount > 0 {
			// Unconditional: direct transfers bypass queues and credit checks.
			from.Balance = from.Balance.Sub(amount)
			to.Balance = to.Balance.Add(amount)
		}
		details["from_agent"] = se.From
		details["to_agent"] = se.To
		details["amount"] = se.Amount

	case config.ScenarioCollateralAdjustment:
		agent := o.agents[se.Agent]
		limit := agent.CreditLimit.Add(money.Cents(se.Delta))
		if limit < 0 {
			limit = 0
		}
		agent.CreditLimit = limit
		details["agent"] = se.Agent
		details["delta"] = se.Delta
		details["new_credit_limit"] = int64(limit)

	case config.ScenarioAgentArrivalRateChange:
		agent := o.agents[se.Agent]
		agent.RateMultiplier *= se.Multiplier
		details["agent"] = se.Agent
		details["multiplier"] = se.Multiplier

	case config.ScenarioGlobalArrivalRateChange:
		for _, id := range o.agentOrder {
			o.agents[id].RateMultiplier *= se.Multiplier
		}
		details["multiplier"] = se.Multiplier

	case config.ScenarioCounterpartyWeightChange:
		agent := o.agents[se.Agent]
		if agent.CounterpartyWeights == nil {
			agent.CounterpartyWeights = make(map[string]float64)
		}
		agent.CounterpartyWeights[se.Counterparty] = se.NewWeight
		details["agent"] = se.Agent
		details["counterparty"] = se.Counterparty
		details["new_weight"] = se.NewWeight

	case config.ScenarioDeadlineWindowChange:
		// Affects arrivals generated after this tick.
		window := config.DeadlineWindow{Min: se.NewMin, Max: se.NewMax}
		o.pendingDeadlineOverride = &window
		details["new_min"] = se.NewMin
		details["new_max"] = se.NewMax

	case config.ScenarioCustomTransactionArrival:
		tx := &Transaction{
			ID:           o.nextTxID(),
			Sender:       se.From,
			Receiver:     se.To,
			Amount:       money.Cents(se.Amount),
			Priority:     se.Priority,
			DeadlineTick: se.DeadlineTick,
			ArrivalTick:  tick,
			IsDivisible:  se.Divisible,
			Status:       StatusPending,
		}
		if tx.DeadlineTick < tick {
			tx.DeadlineTick = tick
		}
		o.addTransaction(tx)
		sender := o.agents[se.From]
		sender.Queue1 = append(sender.Queue1, tx.ID)
		o.record(tick, journal.EventArrival, map[string]any{
			"tx_id":         tx.ID,
			"sender_id":     tx.Sender,
			"receiver_id":   tx.Receiver,
			"amount":        int64(tx.Amount),
			"priority":      tx.Priority,
			"deadline_tick": tx.DeadlineTick,
			"is_divisible":  tx.IsDivisible,
			"via":           "scenario",
		})
		details["from_agent"] = se.From
		details["to_agent"] = se.To
		details["amount"] = se.Amount
		details["tx_id"] = tx.ID

	default:
		slog.Warn("unknown scenario event type skipped", "type", se.Type)
		return
	}

	o.record(tick, journal.EventScenarioEventExecuted, details)
}

// promotePendingOverrides makes a deadline-window change visible to the
// next tick's arrivals.
func (o *Orchestrator) promotePendingOverrides() {
	if o.pendingDeadlineOverride != nil {
		o.deadlineOverride = o.pendingDeadlineOverride
		o.pendingDeadlineOverride = nil
	}
}

// PostCollateral pledges collateral backing additional credit. The pledge
// never changes the balance.
func (o *Orchestrator) PostCollateral(agentID string, amount money.Cents) error {
	agent, ok := o.agents[agentID]
	if !ok {
		return errUnknownAgent(agentID)
	}
	if amount <= 0 {
		return errNonPositiveAmount(amount)
	}
	if agent.CollateralPosted.Add(amount) > agent.CollateralCapacity {
		return errCollateralCapacity(agentID)
	}
	agent.CollateralPosted = agent.CollateralPosted.Add(amount)
	o.record(o.clock.Tick, journal.EventCollateralPost, map[string]any{
		"agent_id": agentID,
		"amount":   int64(amount),
		"posted":   int64(agent.CollateralPosted),
	})
	return nil
}

// WithdrawCollateral releases pledged collateral, provided the remaining
// effective credit still covers any current overdraft.
func (o *Orchestrator) WithdrawCollateral(agentID string, amount money.Cents) error {
	agent, ok := o.agents[agentID]
	if !ok {
		return errUnknownAgent(agentID)
	}
	if amount <= 0 || amount > agent.CollateralPosted {
		return errNonPositiveAmount(amount)
	}
	remaining := agent.CollateralPosted.Sub(amount)
	if agent.Balance < -agent.CreditLimit.Add(remaining) {
		return errCollateralInUse(agentID)
	}
	agent.CollateralPosted = remaining
	o.record(o.clock.Tick, journal.EventCollateralWithdraw, map[string]any{
		"agent_id": agentID,
		"amount":   int64(amount),
		"posted":   int64(agent.CollateralPosted),
	})
	return nil
}
