package policy

import (
	"fmt"
)

// Evaluate walks the tree against one input and returns the decision.
//
// Arithmetic is 64-bit integer with truncating division; overflow panics
// (fatal per the error model). A runtime division by zero, which
// validation cannot catch when the divisor is computed, returns an error;
// the engine treats an errored evaluation as Hold.
func Evaluate(t *Tree, in *Input) (Decision, error) {
	return evalNode(t, t.Root, in)
}

func evalNode(t *Tree, n *Node, in *Input) (Decision, error) {
	switch n.Kind {
	case KindAction:
		return actionDecision(n, in)
	case KindCondition:
		left, err := evalExpr(t, n.Left, in)
		if err != nil {
			return Decision{}, err
		}
		right, err := evalExpr(t, n.Right, in)
		if err != nil {
			return Decision{}, err
		}
		if compare(n.Op, left, right) {
			return evalNode(t, n.OnTrue, in)
		}
		return evalNode(t, n.OnFalse, in)
	}
	return Decision{}, fmt.Errorf("policy: node %d has unknown kind %q", n.NodeID, n.Kind)
}

func actionDecision(n *Node, in *Input) (Decision, error) {
	switch n.Action {
	case DecisionRelease:
		return Decision{Kind: DecisionRelease}, nil
	case DecisionHold:
		return Decision{Kind: DecisionHold}, nil
	case DecisionSplit:
		if !in.IsDivisible {
			// Split on an indivisible payment degrades to Hold rather
			// than failing the whole evaluation.
			return Decision{Kind: DecisionHold}, nil
		}
		return Decision{Kind: DecisionSplit, SplitCount: n.Count}, nil
	case DecisionReprioritize:
		p := n.Priority
		if p < 0 {
			p = 0
		}
		if p > 10 {
			p = 10
		}
		return Decision{Kind: DecisionReprioritize, NewPriority: p}, nil
	}
	return Decision{}, fmt.Errorf("policy: node %d has unknown action %q", n.NodeID, n.Action)
}

func compare(op string, left, right int64) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case ">":
		return left > right
	case ">=":
		return left >= right
	}
	return false
}

func evalExpr(t *Tree, e *Expr, in *Input) (int64, error) {
	switch e.Kind {
	case ExprField:
		v, ok := in.Field(e.Name)
		if !ok {
			return 0, fmt.Errorf("policy: node %d references unknown field %q", e.NodeID, e.Name)
		}
		return v, nil
	case ExprParam:
		v, ok := t.Parameters[e.Name]
		if !ok {
			return 0, fmt.Errorf("policy: node %d references missing parameter %q", e.NodeID, e.Name)
		}
		return v, nil
	case ExprValue:
		return e.Value, nil
	case ExprCompute:
		left, err := evalExpr(t, e.Left, in)
		if err != nil {
			return 0, err
		}
		right, err := evalExpr(t, e.Right, in)
		if err != nil {
			return 0, err
		}
		return applyOp(e, left, right)
	}
	return 0, fmt.Errorf("policy: node %d has unknown expression kind %q", e.NodeID, e.Kind)
}

func applyOp(e *Expr, left, right int64) (int64, error) {
	switch e.Op {
	case "+":
		sum := left + right
		if (right > 0 && sum < left) || (right < 0 && sum > left) {
			panic(fmt.Sprintf("policy: overflow at node %d: %d + %d", e.NodeID, left, right))
		}
		return sum, nil
	case "-":
		diff := left - right
		if (right < 0 && diff < left) || (right > 0 && diff > left) {
			panic(fmt.Sprintf("policy: overflow at node %d: %d - %d", e.NodeID, left, right))
		}
		return diff, nil
	case "*":
		if left == 0 || right == 0 {
			return 0, nil
		}
		product := left * right
		if product/right != left {
			panic(fmt.Sprintf("policy: overflow at node %d: %d * %d", e.NodeID, left, right))
		}
		return product, nil
	case "/":
		if right == 0 {
			return 0, fmt.Errorf("policy: node %d divides by zero", e.NodeID)
		}
		return left / right, nil
	case "min":
		if left < right {
			return left, nil
		}
		return right, nil
	case "max":
		if left > right {
			return left, nil
		}
		return right, nil
	}
	return 0, fmt.Errorf("policy: node %d has unknown operator %q", e.NodeID, e.Op)
}
