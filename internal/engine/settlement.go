package engine

import (
	"fmt"

	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// settleReleased attempts immediate settlement for each payment released
// this tick, in release order. Failures and partial residuals promote to
// Queue 2.
func (o *Orchestrator) settleReleased(tick int64, released []string) int {
	settled := 0
	for _, txID := range released {
		tx := o.txs[txID]
		amount, full := o.trySettle(tx)
		if full {
			o.recordSettlement(tick, journal.EventRtgsImmediateSettlement, tx, amount)
			settled++
			continue
		}
		if amount > 0 {
			// Partial success: record it, then queue the residual.
			o.recordSettlement(tick, journal.EventRtgsImmediateSettlement, tx, amount)
		}
		o.q2.insert(txID, o.queue2KeyFor)
	}
	return settled
}

// scanQueue2 walks the RTGS queue in order and settles whatever current
// liquidity allows. Unsettled items remain queued.
func (o *Orchestrator) scanQueue2(tick int64) int {
	settled := 0
	for _, txID := range o.q2.snapshot() {
		tx := o.txs[txID]
		amount, full := o.trySettle(tx)
		if amount == 0 {
			continue
		}
		o.recordSettlement(tick, journal.EventQueue2LiquidityRelease, tx, amount)
		if full {
			o.q2.remove(txID)
			delete(o.lastBoost, txID)
			settled++
		}
	}
	return settled
}

// trySettle debits the sender and credits the receiver for as much of the
// remaining amount as the sender's liquidity allows. Returns the settled
// amount and whether the transaction settled in full. Divisible payments
// may settle partially; indivisible ones settle in full or not at all.
func (o *Orchestrator) trySettle(tx *Transaction) (money.Cents, bool) {
	sender := o.agents[tx.Sender]
	receiver := o.agents[tx.Receiver]
	if sender == nil || receiver == nil {
		panic(fmt.Sprintf("engine: transaction %s references unknown agent", tx.ID))
	}

	remaining := tx.Remaining()
	if remaining <= 0 {
		return 0, true
	}

	available := sender.Balance.Add(sender.EffectiveCredit())
	if available >= remaining {
		o.applyTransfer(sender, receiver, remaining)
		tx.AmountSettled = tx.AmountSettled.Add(remaining)
		tx.Status = StatusSettled
		return remaining, true
	}

	if tx.IsDivisible && available > 0 {
		o.applyTransfer(sender, receiver, available)
		tx.AmountSettled = tx.AmountSettled.Add(available)
		tx.Status = StatusPartiallySettled
		return available, false
	}

	return 0, false
}

// applyTransfer atomically moves value between two agents. A sender
// overdraft beyond its effective credit afterwards is an invariant
// violation: settlement must never be attempted past available funds.
func (o *Orchestrator) applyTransfer(sender, receiver *AgentState, amount money.Cents) {
	sender.Balance = sender.Balance.Sub(amount)
	receiver.Balance = receiver.Balance.Add(amount)
	if sender.Balance < -sender.EffectiveCredit() {
		panic(fmt.Sprintf("engine: agent %s balance %s exceeds effective credit %s",
			sender.ID, sender.Balance, sender.EffectiveCredit()))
	}
}

// recordSettlement journals a settlement with sender-side balance detail.
func (o *Orchestrator) recordSettlement(tick int64, eventType string, tx *Transaction, amount money.Cents) {
	sender := o.agents[tx.Sender]
	o.record(tick, eventType, map[string]any{
		"tx_id":                tx.ID,
		"sender":               tx.Sender,
		"receiver":             tx.Receiver,
		"amount":               int64(amount),
		"remaining":            int64(tx.Remaining()),
		"status":                tx.Status,
		"sender_balance_before": int64(sender.Balance.Add(amount)),
		"sender_balance_after":  int64(sender.Balance),
	})
}
