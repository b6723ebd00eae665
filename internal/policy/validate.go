package policy

import (
	"fmt"
)

// Constraints restrict what a policy tree may reference. Nil sets allow
// everything; the optimizer narrows them per scenario.
type Constraints struct {
	AllowedFields  map[string]bool
	AllowedActions map[string]bool
}

// ValidationError aggregates node-id-qualified problems found in a tree.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "policy: " + e.Problems[0]
	}
	return fmt.Sprintf("policy: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Validate checks a tree before it may be evaluated: node ids unique,
// fields known and allowed, parameters present, no literal-zero divisor,
// actions within the allowed set, condition/action structure well formed.
func Validate(t *Tree, c Constraints) error {
	v := &validator{
		tree:        t,
		constraints: c,
		seenIDs:     make(map[int]bool),
	}
	if t.Root == nil {
		v.problem(0, "tree has no root node")
	} else {
		v.node(t.Root)
	}
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

type validator struct {
	tree        *Tree
	constraints Constraints
	seenIDs     map[int]bool
	problems    []string
}

func (v *validator) problem(nodeID int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	v.problems = append(v.problems, fmt.Sprintf("node %d: %s", nodeID, msg))
}

func (v *validator) checkID(id int) {
	if v.seenIDs[id] {
		v.problem(id, "duplicate node_id")
	}
	v.seenIDs[id] = true
}

func (v *validator) node(n *Node) {
	v.checkID(n.NodeID)

	switch n.Kind {
	case KindAction:
		v.action(n)
	case KindCondition:
		v.condition(n)
	default:
		v.problem(n.NodeID, "unknown node kind %q", n.Kind)
	}
}

func (v *validator) action(n *Node) {
	if v.constraints.AllowedActions != nil && !v.constraints.AllowedActions[n.Action] {
		v.problem(n.NodeID, "action %q not allowed in this scenario", n.Action)
		return
	}
	switch n.Action {
	case DecisionRelease, DecisionHold:
	case DecisionSplit:
		if n.Count < 2 {
			v.problem(n.NodeID, "Split requires count >= 2, got %d", n.Count)
		}
	case DecisionReprioritize:
		// Priority is clamped at evaluation; any integer is accepted here.
	default:
		v.problem(n.NodeID, "unknown action %q", n.Action)
	}
}

func (v *validator) condition(n *Node) {
	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		v.problem(n.NodeID, "unknown comparison operator %q", n.Op)
	}
	if n.Left == nil || n.Right == nil {
		v.problem(n.NodeID, "condition requires left and right expressions")
	} else {
		v.expr(n.Left)
		v.expr(n.Right)
	}
	if n.OnTrue == nil || n.OnFalse == nil {
		v.problem(n.NodeID, "condition requires on_true and on_false branches")
	} else {
		v.node(n.OnTrue)
		v.node(n.OnFalse)
	}
}

func (v *validator) expr(e *Expr) {
	v.checkID(e.NodeID)

	switch e.Kind {
	case ExprField:
		if !FieldRegistry[e.Name] {
			v.problem(e.NodeID, "unknown field %q", e.Name)
		} else if v.constraints.AllowedFields != nil && !v.constraints.AllowedFields[e.Name] {
			v.problem(e.NodeID, "field %q not allowed in this scenario", e.Name)
		}
	case ExprParam:
		if _, ok := v.tree.Parameters[e.Name]; !ok {
			v.problem(e.NodeID, "parameter %q missing from parameter table", e.Name)
		}
	case ExprValue:
	case ExprCompute:
		switch e.Op {
		case "+", "-", "*", "/", "min", "max":
		default:
			v.problem(e.NodeID, "unknown compute operator %q", e.Op)
		}
		if e.Left == nil || e.Right == nil {
			v.problem(e.NodeID, "compute requires left and right expressions")
			return
		}
		if e.Op == "/" && e.Right.Kind == ExprValue && e.Right.Value == 0 {
			v.problem(e.NodeID, "division by literal zero")
		}
		v.expr(e.Left)
		v.expr(e.Right)
	default:
		v.problem(e.NodeID, "unknown expression kind %q", e.Kind)
	}
}
