package engine

import (
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// checkDeadlines records first-time overdue transitions and accrues the
// per-tick deadline penalty for every still-unsettled overdue payment in
// either queue.
func (o *Orchestrator) checkDeadlines(tick int64) {
	for _, txID := range o.queuedTxIDs() {
		tx := o.txs[txID]
		if tick <= tx.DeadlineTick {
			continue
		}

		if !tx.overdueRecorded {
			tx.overdueRecorded = true
			o.record(tick, journal.EventTransactionWentOverdue, map[string]any{
				"tx_id":         tx.ID,
				"agent_id":      tx.Sender,
				"deadline_tick": tx.DeadlineTick,
				"amount":        int64(tx.Remaining()),
			})
		}

		ticksOverdue := tick - tx.DeadlineTick
		penalty := money.Cents(o.cfg.Costs.DeadlineBasePenalty).
			Add(money.Cents(o.cfg.Costs.DeadlinePenaltyPerTick).Mul(ticksOverdue))
		if penalty <= 0 {
			continue
		}
		sender := o.agents[tx.Sender]
		sender.Costs.DeadlinePenalty = sender.Costs.DeadlinePenalty.Add(penalty)
		sender.Balance = sender.Balance.Sub(penalty)
		o.record(tick, journal.EventDeadlinePenalty, map[string]any{
			"tx_id":         tx.ID,
			"agent_id":      tx.Sender,
			"cost":          int64(penalty),
			"ticks_overdue": ticksOverdue,
		})
	}
}

// accrueCosts charges the per-tick liquidity, collateral and delay costs.
// Costs leave the agent's balance and accumulate in the cost buckets, so
// system value is conserved as balance plus cost outflows.
func (o *Orchestrator) accrueCosts(tick int64) {
	rates := o.cfg.Costs

	for _, agentID := range o.agentOrder {
		agent := o.agents[agentID]

		if agent.Balance < 0 && rates.OverdraftBpsPerTick > 0 {
			cost := agent.Balance.ScaleBps(rates.OverdraftBpsPerTick)
			if cost > 0 {
				agent.Costs.Liquidity = agent.Costs.Liquidity.Add(cost)
				agent.Balance = agent.Balance.Sub(cost)
				o.record(tick, journal.EventCostAccrual, map[string]any{
					"agent_id":  agentID,
					"cost_type": "overdraft",
					"cost":      int64(cost),
					"balance":   int64(agent.Balance),
				})
			}
		}

		if agent.CollateralPosted > 0 && rates.CollateralBpsPerTick > 0 {
			cost := agent.CollateralPosted.ScaleBps(rates.CollateralBpsPerTick)
			if cost > 0 {
				agent.Costs.Collateral = agent.Costs.Collateral.Add(cost)
				agent.Balance = agent.Balance.Sub(cost)
				o.record(tick, journal.EventCostAccrual, map[string]any{
					"agent_id":  agentID,
					"cost_type": "collateral",
					"cost":      int64(cost),
				})
			}
		}
	}

	if rates.DelayPerTickPerCent > 0 {
		for _, txID := range o.queuedTxIDs() {
			tx := o.txs[txID]
			cost := tx.Remaining().ScaleBps(rates.DelayPerTickPerCent)
			if cost <= 0 {
				continue
			}
			sender := o.agents[tx.Sender]
			sender.Costs.Delay = sender.Costs.Delay.Add(cost)
			sender.Balance = sender.Balance.Sub(cost)
			o.record(tick, journal.EventCostAccrual, map[string]any{
				"agent_id":  tx.Sender,
				"cost_type": "delay",
				"tx_id":     tx.ID,
				"cost":      int64(cost),
			})
		}
	}
}

// endOfDay drops every still-pending queued transaction and charges the
// flat end-of-day penalty to its sender.
func (o *Orchestrator) endOfDay(tick int64) {
	penalty := money.Cents(o.cfg.Costs.EodPenalty)

	for _, txID := range o.queuedTxIDs() {
		tx := o.txs[txID]
		tx.Status = StatusDropped
		sender := o.agents[tx.Sender]
		if penalty > 0 {
			sender.Costs.EodPenalty = sender.Costs.EodPenalty.Add(penalty)
			sender.Balance = sender.Balance.Sub(penalty)
		}
		o.record(tick, journal.EventTransactionDropped, map[string]any{
			"tx_id":     tx.ID,
			"agent_id":  tx.Sender,
			"remaining": int64(tx.Remaining()),
			"penalty":   int64(penalty),
		})
		o.q2.remove(txID)
		delete(o.lastBoost, txID)
	}

	for _, agentID := range o.agentOrder {
		o.agents[agentID].Queue1 = nil
	}
}

// queuedTxIDs returns every transaction currently waiting in a queue:
// Queue-1 contents agent by agent in config order, then Queue 2 in queue
// order. The ordering is part of the determinism contract for cost and
// deadline events.
func (o *Orchestrator) queuedTxIDs() []string {
	var out []string
	for _, agentID := range o.agentOrder {
		out = append(out, o.agents[agentID].Queue1...)
	}
	out = append(out, o.q2.ids...)
	return out
}
