// Package engine implements the deterministic RTGS simulation kernel: the
// tick pipeline, the two-layer queueing model, settlement, netting, cost
// accrual, and the scenario-event applier. One Orchestrator owns all state
// for one simulation; nothing in this package touches globals, wall-clock
// time, or unseeded randomness.
package engine

import (
	"github.com/aerugo/simcash/internal/money"
)

// Transaction statuses.
const (
	StatusPending          = "Pending"
	StatusSettled          = "Settled"
	StatusPartiallySettled = "PartiallySettled"
	StatusDropped          = "Dropped"
)

// Transaction is one payment instruction. Queues hold only transaction
// IDs; the orchestrator's transaction cache owns these values.
type Transaction struct {
	ID            string
	Sender        string
	Receiver      string
	Amount        money.Cents
	Priority      int
	DeadlineTick  int64
	ArrivalTick   int64
	IsDivisible   bool
	Status        string
	AmountSettled money.Cents
	ParentID      string
	SplitIndex    int

	// Set when a Split replaced this transaction with children; a
	// superseded parent is out of every queue and accrues nothing.
	superseded bool
	// Set once the TransactionWentOverdue event has been recorded.
	overdueRecorded bool
}

// Remaining returns the unsettled portion.
func (t *Transaction) Remaining() money.Cents {
	return t.Amount.Sub(t.AmountSettled)
}

// AgentState is one bank's live state: balance, credit, collateral, the
// internal queue, and accumulated costs.
type AgentState struct {
	ID                  string
	Balance             money.Cents
	CreditLimit         money.Cents
	CollateralPosted    money.Cents
	CollateralCapacity  money.Cents
	BaseArrivalRate     float64
	RateMultiplier      float64
	CounterpartyWeights map[string]float64

	// Queue 1: pending transaction IDs in arrival order.
	Queue1 []string

	Costs CostAccumulator
}

// EffectiveCredit is the total overdraft headroom: the unsecured credit
// line plus posted collateral.
func (a *AgentState) EffectiveCredit() money.Cents {
	return a.CreditLimit.Add(a.CollateralPosted)
}

// CostAccumulator tracks the five cost buckets plus end-of-day penalties,
// all integer cents.
type CostAccumulator struct {
	Liquidity       money.Cents // overdraft
	Delay           money.Cents
	Collateral      money.Cents
	DeadlinePenalty money.Cents
	EodPenalty      money.Cents
	SplitFriction   money.Cents
}

// Penalty is the combined deadline and end-of-day penalty bucket.
func (c CostAccumulator) Penalty() money.Cents {
	return c.DeadlinePenalty.Add(c.EodPenalty)
}

// Total sums every bucket.
func (c CostAccumulator) Total() money.Cents {
	return c.Liquidity.
		Add(c.Delay).
		Add(c.Collateral).
		Add(c.DeadlinePenalty).
		Add(c.EodPenalty).
		Add(c.SplitFriction)
}

// CostBreakdown is the cost surface reported per agent.
type CostBreakdown struct {
	Liquidity     money.Cents `json:"liquidity"`
	Delay         money.Cents `json:"delay"`
	Collateral    money.Cents `json:"collateral"`
	Penalty       money.Cents `json:"penalty"`
	SplitFriction money.Cents `json:"split_friction"`
	Total         money.Cents `json:"total"`
}

// TickSummary reports what one tick did.
type TickSummary struct {
	Tick        int64       `json:"tick"`
	NewArrivals int         `json:"new_arrivals"`
	Settlements int         `json:"settlements"`
	LsmReleases int         `json:"lsm_releases"`
	TickCost    money.Cents `json:"tick_cost"`
}

// TxView is the read-only transaction surface returned to callers.
type TxView struct {
	ID            string      `json:"tx_id"`
	Sender        string      `json:"sender_id"`
	Receiver      string      `json:"receiver_id"`
	Amount        money.Cents `json:"amount"`
	AmountSettled money.Cents `json:"amount_settled"`
	Priority      int         `json:"priority"`
	ArrivalTick   int64       `json:"arrival_tick"`
	DeadlineTick  int64       `json:"deadline_tick"`
	IsDivisible   bool        `json:"is_divisible"`
	Status        string      `json:"status"`
	ParentID      string      `json:"parent_tx_id,omitempty"`
}

func viewOf(t *Transaction) TxView {
	return TxView{
		ID:            t.ID,
		Sender:        t.Sender,
		Receiver:      t.Receiver,
		Amount:        t.Amount,
		AmountSettled: t.AmountSettled,
		Priority:      t.Priority,
		ArrivalTick:   t.ArrivalTick,
		DeadlineTick:  t.DeadlineTick,
		IsDivisible:   t.IsDivisible,
		Status:        t.Status,
		ParentID:      t.ParentID,
	}
}
