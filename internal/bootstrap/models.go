// Package bootstrap implements Monte-Carlo resampling of a base run's
// transaction history. A sample replays one agent's arrival and liquidity
// pressure into an isolated three-agent sandbox, so a candidate policy's
// cost is attributable to the policy alone.
package bootstrap

import (
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// TransactionRecord is one historical payment extracted from a base run's
// event stream. Offsets are relative to the original arrival tick;
// SettlementOffset is negative when the payment never settled.
type TransactionRecord struct {
	TxID             string
	SenderID         string
	ReceiverID       string
	Amount           money.Cents
	Priority         int
	OriginalArrival  int64
	DeadlineOffset   int64
	SettlementOffset int64
	Settled          bool
}

// RemappedTx is a resampled record carrying new ticks on the sample's
// timeline while preserving the source record's attributes.
type RemappedTx struct {
	TxID           string
	SenderID       string
	ReceiverID     string
	Amount         money.Cents
	Priority       int
	ArrivalTick    int64
	DeadlineTick   int64
	SettlementTick int64
	Settled        bool
}

// Sample is one bootstrap scenario for one agent.
type Sample struct {
	AgentID             string
	SampleIdx           int
	Seed                uint64
	TotalTicks          int64
	OutgoingTxns        []RemappedTx
	IncomingSettlements []RemappedTx
}

// Result is the outcome of evaluating one sandbox simulation.
type Result struct {
	Seed           uint64
	TotalCost      money.Cents
	PerAgentCosts  map[string]money.Cents
	SettlementRate float64
	AvgDelay       float64
	CostBreakdown  Breakdown
	Events         []journal.Event
}

// Breakdown splits an evaluation's cost into its drivers.
type Breakdown struct {
	Delay           money.Cents `json:"delay"`
	Overdraft       money.Cents `json:"overdraft"`
	DeadlinePenalty money.Cents `json:"deadline_penalty"`
	EodPenalty      money.Cents `json:"eod_penalty"`
}
