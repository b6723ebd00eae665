package engine

import (
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// SubmitTransaction injects a payment instruction into the sender's
// Queue 1. Rejections leave no trace in engine state.
func (o *Orchestrator) SubmitTransaction(sender, receiver string, amount money.Cents, deadlineTick int64, priority int, divisible bool) (string, error) {
	senderAgent, ok := o.agents[sender]
	if !ok {
		return "", errUnknownAgent(sender)
	}
	if _, ok := o.agents[receiver]; !ok {
		return "", errUnknownAgent(receiver)
	}
	if amount <= 0 {
		return "", errNonPositiveAmount(amount)
	}
	if deadlineTick < o.clock.Tick {
		return "", errDeadlineInPast(deadlineTick, o.clock.Tick)
	}
	if priority < 0 || priority > 10 {
		return "", errInvalidPriority(priority)
	}

	tx := &Transaction{
		ID:           o.nextTxID(),
		Sender:       sender,
		Receiver:     receiver,
		Amount:       amount,
		Priority:     priority,
		DeadlineTick: deadlineTick,
		ArrivalTick:  o.clock.Tick,
		IsDivisible:  divisible,
		Status:       StatusPending,
	}
	o.addTransaction(tx)
	senderAgent.Queue1 = append(senderAgent.Queue1, tx.ID)
	o.record(o.clock.Tick, journal.EventArrival, map[string]any{
		"tx_id":         tx.ID,
		"sender_id":     tx.Sender,
		"receiver_id":   tx.Receiver,
		"amount":        int64(tx.Amount),
		"priority":      tx.Priority,
		"deadline_tick": tx.DeadlineTick,
		"is_divisible":  tx.IsDivisible,
		"via":           "submit",
	})
	return tx.ID, nil
}

// CurrentTick returns the next tick to execute.
func (o *Orchestrator) CurrentTick() int64 {
	return o.clock.Tick
}

// CurrentDay returns the day the clock is in.
func (o *Orchestrator) CurrentDay() int64 {
	return o.clock.Day()
}

// TotalTicks returns the configured simulation horizon.
func (o *Orchestrator) TotalTicks() int64 {
	return o.totalTicks
}

// AgentIDs returns all agent ids in config order.
func (o *Orchestrator) AgentIDs() []string {
	out := make([]string, len(o.agentOrder))
	copy(out, o.agentOrder)
	return out
}

// AgentBalance returns the current balance, or false for unknown agents.
func (o *Orchestrator) AgentBalance(agentID string) (money.Cents, bool) {
	a, ok := o.agents[agentID]
	if !ok {
		return 0, false
	}
	return a.Balance, true
}

// AgentCreditLimit returns the unsecured credit line.
func (o *Orchestrator) AgentCreditLimit(agentID string) (money.Cents, bool) {
	a, ok := o.agents[agentID]
	if !ok {
		return 0, false
	}
	return a.CreditLimit, true
}

// AgentCollateralPosted returns the currently pledged collateral.
func (o *Orchestrator) AgentCollateralPosted(agentID string) (money.Cents, bool) {
	a, ok := o.agents[agentID]
	if !ok {
		return 0, false
	}
	return a.CollateralPosted, true
}

// AgentAccumulatedCosts reports the agent's cost buckets.
func (o *Orchestrator) AgentAccumulatedCosts(agentID string) (CostBreakdown, bool) {
	a, ok := o.agents[agentID]
	if !ok {
		return CostBreakdown{}, false
	}
	return CostBreakdown{
		Liquidity:     a.Costs.Liquidity,
		Delay:         a.Costs.Delay,
		Collateral:    a.Costs.Collateral,
		Penalty:       a.Costs.Penalty(),
		SplitFriction: a.Costs.SplitFriction,
		Total:         a.Costs.Total(),
	}, true
}

// AgentCosts exposes the raw accumulator, used by evaluation reporting.
func (o *Orchestrator) AgentCosts(agentID string) (CostAccumulator, bool) {
	a, ok := o.agents[agentID]
	if !ok {
		return CostAccumulator{}, false
	}
	return a.Costs, true
}

// Queue1Size returns an agent's internal queue depth.
func (o *Orchestrator) Queue1Size(agentID string) int {
	if a, ok := o.agents[agentID]; ok {
		return len(a.Queue1)
	}
	return 0
}

// Queue1Contents returns an agent's internal queue in arrival order.
func (o *Orchestrator) Queue1Contents(agentID string) []string {
	a, ok := o.agents[agentID]
	if !ok {
		return nil
	}
	out := make([]string, len(a.Queue1))
	copy(out, a.Queue1)
	return out
}

// Queue2Size returns the central queue depth.
func (o *Orchestrator) Queue2Size() int {
	return o.q2.size()
}

// Queue2Contents returns the central queue in its current order.
func (o *Orchestrator) Queue2Contents() []string {
	return o.q2.snapshot()
}

// TransactionDetails returns a read-only view, or nil if unknown.
func (o *Orchestrator) TransactionDetails(txID string) *TxView {
	t, ok := o.txs[txID]
	if !ok {
		return nil
	}
	v := viewOf(t)
	return &v
}

// TickEvents returns the events of one tick in append order.
func (o *Orchestrator) TickEvents(tick int64) []journal.Event {
	return o.journal.TickEvents(tick)
}

// AllEvents returns the full journal in append order.
func (o *Orchestrator) AllEvents() []journal.Event {
	return o.journal.AllEvents()
}

// TransactionsForDay returns every transaction that arrived on the given
// day, in creation order. Used by the persistence layer.
func (o *Orchestrator) TransactionsForDay(day int64) []TxView {
	var out []TxView
	for _, id := range o.txOrder {
		t := o.txs[id]
		if t.ArrivalTick/o.clock.TicksPerDay == day {
			out = append(out, viewOf(t))
		}
	}
	return out
}

// TransactionsNearDeadline returns the still-queued transactions whose
// deadlines are at most withinTicks ticks away; transactions already past
// their deadline are included.
func (o *Orchestrator) TransactionsNearDeadline(withinTicks int64) []TxView {
	var out []TxView
	for _, txID := range o.queuedTxIDs() {
		t := o.txs[txID]
		if t.DeadlineTick-o.clock.Tick <= withinTicks {
			out = append(out, viewOf(t))
		}
	}
	return out
}

// SystemBalanceTotal sums all balances; conservation checks use it.
func (o *Orchestrator) SystemBalanceTotal() money.Cents {
	var total money.Cents
	for _, id := range o.agentOrder {
		total = total.Add(o.agents[id].Balance)
	}
	return total
}

// SystemCostTotal sums all accumulated costs across agents.
func (o *Orchestrator) SystemCostTotal() money.Cents {
	return o.systemCostTotal()
}

// SettlementStats aggregates settlement outcomes over all transactions:
// how many fully settled and how many deadline violations were recorded.
func (o *Orchestrator) SettlementStats() (total, settled, violations int) {
	for _, id := range o.txOrder {
		t := o.txs[id]
		if t.superseded {
			continue
		}
		total++
		if t.Status == StatusSettled {
			settled++
		}
		if t.overdueRecorded {
			violations++
		}
	}
	return total, settled, violations
}
