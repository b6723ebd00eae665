package engine

import (
	"math"

	"github.com/aerugo/simcash/internal/journal"
)

// effectivePriority returns the priority used for Queue-2 ordering: the
// stored priority plus the current escalation boost, capped at 10.
// Escalation never mutates the stored priority; the boost is recomputed
// from the clock each time, so it is reversible by construction.
func (o *Orchestrator) effectivePriority(tx *Transaction) int {
	p := tx.Priority + o.escalationBoost(tx)
	if p > 10 {
		p = 10
	}
	return p
}

// escalationBoost computes the deadline-driven boost for one transaction
// under the configured curve. Zero when escalation is disabled or the
// deadline is still far away.
func (o *Orchestrator) escalationBoost(tx *Transaction) int {
	e := o.cfg.PriorityEscalation
	if e == nil || !e.Enabled {
		return 0
	}

	ttd := tx.DeadlineTick - o.clock.Tick
	if ttd >= e.StartEscalatingTicks {
		return 0
	}
	if ttd < 0 {
		ttd = 0
	}

	// ratio grows from 0 at the escalation threshold to 1 at the deadline.
	ratio := float64(e.StartEscalatingTicks-ttd) / float64(e.StartEscalatingTicks)
	var boost int
	switch e.Curve {
	case "exponential":
		boost = int(float64(e.MaxBoost) * (math.Pow(2, ratio) - 1))
	default: // linear
		boost = int(float64(e.MaxBoost) * ratio)
	}
	if boost < 0 {
		boost = 0
	}
	if boost > e.MaxBoost {
		boost = e.MaxBoost
	}
	return boost
}

// escalatePriorities records a PriorityEscalated event for every queued
// payment whose effective boost changed this tick, then re-sorts Queue 2
// under the new effective priorities.
func (o *Orchestrator) escalatePriorities(tick int64) {
	e := o.cfg.PriorityEscalation
	if e == nil || !e.Enabled {
		return
	}

	changed := false
	for _, txID := range o.q2.snapshot() {
		tx := o.txs[txID]
		boost := o.escalationBoost(tx)
		if boost == o.lastBoost[txID] {
			continue
		}
		o.lastBoost[txID] = boost
		changed = true
		if boost > 0 {
			escalated := tx.Priority + boost
			if escalated > 10 {
				escalated = 10
			}
			o.record(tick, journal.EventPriorityEscalated, map[string]any{
				"tx_id":                txID,
				"agent_id":             tx.Sender,
				"original_priority":    tx.Priority,
				"escalated_priority":   escalated,
				"boost_applied":        boost,
				"ticks_until_deadline": tx.DeadlineTick - tick,
			})
		}
	}

	if changed {
		o.q2.resort(o.queue2KeyFor)
	}
}
