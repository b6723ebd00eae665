package engine

import (
	"fmt"
	"log/slog"

	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/policy"
)

// evaluatePolicies runs each agent's release policy over its Queue 1 in
// arrival order and applies decisions immediately. Released transaction
// IDs are returned in decision order for the settlement phase.
func (o *Orchestrator) evaluatePolicies(tick int64) []string {
	var released []string
	for _, agentID := range o.agentOrder {
		agent := o.agents[agentID]
		tree := o.policies[agentID]
		if tree == nil || len(agent.Queue1) == 0 {
			continue
		}

		// Work over the queue as a mutable list: a Split replaces the
		// parent with its children at the same position, and the children
		// are evaluated in this same pass.
		i := 0
		for i < len(agent.Queue1) {
			txID := agent.Queue1[i]
			tx := o.txs[txID]

			decision, err := policy.Evaluate(tree, o.policyInput(tx, agent))
			if err != nil {
				// Errored evaluations degrade to Hold; routine, not fatal.
				slog.Debug("policy evaluation failed", "agent", agentID, "tx", txID, "error", err)
				decision = policy.Decision{Kind: policy.DecisionHold}
			}

			switch decision.Kind {
			case policy.DecisionRelease:
				agent.Queue1 = append(agent.Queue1[:i], agent.Queue1[i+1:]...)
				released = append(released, txID)
				o.record(tick, journal.EventPolicySubmit, map[string]any{
					"tx_id":    txID,
					"agent_id": agentID,
					"amount":   int64(tx.Remaining()),
				})

			case policy.DecisionHold:
				o.record(tick, journal.EventPolicyHold, map[string]any{
					"tx_id":    txID,
					"agent_id": agentID,
				})
				i++

			case policy.DecisionSplit:
				children := o.splitTransaction(tick, tx, decision.SplitCount)
				if children == nil {
					// Remainder too small to split; treated as Hold.
					o.record(tick, journal.EventPolicyHold, map[string]any{
						"tx_id":    txID,
						"agent_id": agentID,
					})
					i++
					continue
				}
				childIDs := make([]string, len(children))
				for ci, c := range children {
					childIDs[ci] = c.ID
				}
				// Replace the parent with its children at this position.
				rest := append([]string{}, agent.Queue1[i+1:]...)
				agent.Queue1 = append(agent.Queue1[:i], append(childIDs, rest...)...)

				agent.Costs.SplitFriction = agent.Costs.SplitFriction.Add(money.Cents(o.cfg.Costs.SplitFee))
				agent.Balance = agent.Balance.Sub(money.Cents(o.cfg.Costs.SplitFee))
				o.record(tick, journal.EventPolicySplit, map[string]any{
					"tx_id":     txID,
					"agent_id":  agentID,
					"count":     decision.SplitCount,
					"child_ids": childIDs,
					"fee":       o.cfg.Costs.SplitFee,
				})

			case policy.DecisionReprioritize:
				old := tx.Priority
				tx.Priority = decision.NewPriority
				o.record(tick, journal.EventPolicyReprioritize, map[string]any{
					"tx_id":        txID,
					"agent_id":     agentID,
					"old_priority": old,
					"new_priority": tx.Priority,
				})
				i++
			}
		}
	}
	return released
}

// policyInput assembles the field values one decision sees.
func (o *Orchestrator) policyInput(tx *Transaction, agent *AgentState) *policy.Input {
	clock := money.Clock{Tick: o.clock.Tick, TicksPerDay: o.clock.TicksPerDay}
	available := agent.Balance.Add(agent.EffectiveCredit())
	return &policy.Input{
		Amount:           int64(tx.Amount),
		RemainingAmount:  int64(tx.Remaining()),
		Priority:         int64(tx.Priority),
		TicksToDeadline:  tx.DeadlineTick - o.clock.Tick,
		IsDivisible:      tx.IsDivisible,
		IsIncoming:       tx.Receiver == agent.ID,
		IsOutgoing:       tx.Sender == agent.ID,
		Balance:          int64(agent.Balance),
		CreditLimit:      int64(agent.CreditLimit),
		AvailableCredit:  int64(available),
		PostedCollateral: int64(agent.CollateralPosted),
		Queue1Size:       int64(len(agent.Queue1)),
		Queue2Size:       int64(o.q2.size()),
		Tick:             clock.Tick,
		TickOfDay:        clock.TickOfDay(),
		DayProgressBps:   int64(clock.DayProgress() * 10_000),
	}
}

// splitTransaction replaces a divisible transaction with count children
// whose amounts sum exactly to the parent's remaining amount: an even
// share each, remainder cents on the first child. Returns nil when the
// remainder is too small to give every child a positive amount.
func (o *Orchestrator) splitTransaction(tick int64, parent *Transaction, count int) []*Transaction {
	remaining := int64(parent.Remaining())
	if remaining < int64(count) {
		return nil
	}

	share := remaining / int64(count)
	rem := remaining % int64(count)

	children := make([]*Transaction, count)
	for i := 0; i < count; i++ {
		amount := share
		if i == 0 {
			amount += rem
		}
		child := &Transaction{
			ID:           fmt.Sprintf("%s.%d", parent.ID, i+1),
			Sender:       parent.Sender,
			Receiver:     parent.Receiver,
			Amount:       money.Cents(amount),
			Priority:     parent.Priority,
			DeadlineTick: parent.DeadlineTick,
			ArrivalTick:  parent.ArrivalTick,
			IsDivisible:  parent.IsDivisible,
			Status:       StatusPending,
			ParentID:     parent.ID,
			SplitIndex:   i + 1,
		}
		o.addTransaction(child)
		children[i] = child
	}
	parent.superseded = true
	return children
}
