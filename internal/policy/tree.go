// Package policy implements release-decision trees: a validated recursive
// structure mapping (payment, agent state, clock) to one of Release, Hold,
// Split(n), or Reprioritize(p). Evaluation is pure and side-effect free.
package policy

import (
	"encoding/json"
	"fmt"
)

// Decision kinds.
const (
	DecisionRelease      = "Release"
	DecisionHold         = "Hold"
	DecisionSplit        = "Split"
	DecisionReprioritize = "Reprioritize"
)

// Decision is the outcome of evaluating a tree against one payment.
type Decision struct {
	Kind        string
	SplitCount  int // Split only
	NewPriority int // Reprioritize only, clamped to [0,10]
}

// Node kinds.
const (
	KindAction    = "action"
	KindCondition = "condition"
)

// Expression kinds.
const (
	ExprField   = "field"
	ExprParam   = "param"
	ExprValue   = "value"
	ExprCompute = "compute"
)

// Node is one tree node: either an action leaf or a condition with two
// branches.
type Node struct {
	NodeID int    `json:"node_id"`
	Kind   string `json:"kind"`

	// Action leaves.
	Action   string `json:"action,omitempty"`
	Count    int    `json:"count,omitempty"`    // Split child count
	Priority int    `json:"priority,omitempty"` // Reprioritize target

	// Condition nodes.
	Op      string `json:"op,omitempty"` // == != < <= > >=
	Left    *Expr  `json:"left,omitempty"`
	Right   *Expr  `json:"right,omitempty"`
	OnTrue  *Node  `json:"on_true,omitempty"`
	OnFalse *Node  `json:"on_false,omitempty"`
}

// Expr is an integer-valued expression: a field reference, a parameter
// lookup, a literal, or a compute node combining two sub-expressions.
type Expr struct {
	NodeID int    `json:"node_id"`
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`  // field, param
	Value  int64  `json:"value,omitempty"` // value literal
	Op     string `json:"op,omitempty"`    // + - * / min max
	Left   *Expr  `json:"left,omitempty"`
	Right  *Expr  `json:"right,omitempty"`
}

// Tree is a complete policy: a root node plus a typed parameter table.
type Tree struct {
	Root       *Node            `json:"root"`
	Parameters map[string]int64 `json:"parameters,omitempty"`
}

// ParseTree decodes a policy tree from JSON.
func ParseTree(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("policy: parse tree: %w", err)
	}
	if t.Root == nil {
		return nil, fmt.Errorf("policy: tree has no root node")
	}
	return &t, nil
}

// Marshal round-trips a tree losslessly.
func (t *Tree) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Fields available to policy expressions. Monetary fields are integer
// cents; booleans are 0/1; day_progress is expressed in basis points
// (0..10000) so conditions stay in integer arithmetic.
var FieldRegistry = map[string]bool{
	"amount":            true,
	"remaining_amount":  true,
	"priority":          true,
	"ticks_to_deadline": true,
	"is_divisible":      true,
	"is_incoming":       true,
	"is_outgoing":       true,
	"balance":           true,
	"credit_limit":      true,
	"available_credit":  true,
	"posted_collateral": true,
	"queue1_size":       true,
	"queue2_size":       true,
	"tick":              true,
	"tick_of_day":       true,
	"day_progress":      true,
}

// Input carries the evaluated field values for one decision. The engine
// builds one per (payment, agent, clock) triple.
type Input struct {
	Amount           int64
	RemainingAmount  int64
	Priority         int64
	TicksToDeadline  int64
	IsDivisible      bool
	IsIncoming       bool
	IsOutgoing       bool
	Balance          int64
	CreditLimit      int64
	AvailableCredit  int64
	PostedCollateral int64
	Queue1Size       int64
	Queue2Size       int64
	Tick             int64
	TickOfDay        int64
	DayProgressBps   int64
}

// Field resolves a field name against the input.
func (in *Input) Field(name string) (int64, bool) {
	b2i := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch name {
	case "amount":
		return in.Amount, true
	case "remaining_amount":
		return in.RemainingAmount, true
	case "priority":
		return in.Priority, true
	case "ticks_to_deadline":
		return in.TicksToDeadline, true
	case "is_divisible":
		return b2i(in.IsDivisible), true
	case "is_incoming":
		return b2i(in.IsIncoming), true
	case "is_outgoing":
		return b2i(in.IsOutgoing), true
	case "balance":
		return in.Balance, true
	case "credit_limit":
		return in.CreditLimit, true
	case "available_credit":
		return in.AvailableCredit, true
	case "posted_collateral":
		return in.PostedCollateral, true
	case "queue1_size":
		return in.Queue1Size, true
	case "queue2_size":
		return in.Queue2Size, true
	case "tick":
		return in.Tick, true
	case "tick_of_day":
		return in.TickOfDay, true
	case "day_progress":
		return in.DayProgressBps, true
	}
	return 0, false
}
