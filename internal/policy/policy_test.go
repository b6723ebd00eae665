package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseNode(id int) *Node {
	return &Node{NodeID: id, Kind: KindAction, Action: DecisionRelease}
}

func holdNode(id int) *Node {
	return &Node{NodeID: id, Kind: KindAction, Action: DecisionHold}
}

func TestParseAndRoundTrip(t *testing.T) {
	src := `{
		"root": {
			"node_id": 1, "kind": "condition", "op": "<",
			"left": {"node_id": 2, "kind": "field", "name": "balance"},
			"right": {"node_id": 3, "kind": "param", "name": "threshold"},
			"on_true": {"node_id": 4, "kind": "action", "action": "Hold"},
			"on_false": {"node_id": 5, "kind": "action", "action": "Release"}
		},
		"parameters": {"threshold": 50000}
	}`
	tree, err := ParseTree([]byte(src))
	require.NoError(t, err)
	require.NoError(t, Validate(tree, Constraints{}))

	data, err := tree.Marshal()
	require.NoError(t, err)
	again, err := ParseTree(data)
	require.NoError(t, err)
	assert.Equal(t, tree, again)
}

func TestParseRejectsMissingRoot(t *testing.T) {
	_, err := ParseTree([]byte(`{"parameters": {}}`))
	assert.Error(t, err)
}

func TestValidateDuplicateNodeID(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: "<",
			Left:    &Expr{NodeID: 1, Kind: ExprValue, Value: 1},
			Right:   &Expr{NodeID: 2, Kind: ExprValue, Value: 2},
			OnTrue:  releaseNode(3),
			OnFalse: holdNode(4),
		},
	}
	err := Validate(tree, Constraints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node_id")
	assert.Contains(t, err.Error(), "node 1")
}

func TestValidateUnknownField(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: ">",
			Left:    &Expr{NodeID: 2, Kind: ExprField, Name: "secret_sauce"},
			Right:   &Expr{NodeID: 3, Kind: ExprValue, Value: 0},
			OnTrue:  releaseNode(4),
			OnFalse: holdNode(5),
		},
	}
	err := Validate(tree, Constraints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestValidateMissingParameter(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: ">",
			Left:    &Expr{NodeID: 2, Kind: ExprParam, Name: "ghost"},
			Right:   &Expr{NodeID: 3, Kind: ExprValue, Value: 0},
			OnTrue:  releaseNode(4),
			OnFalse: holdNode(5),
		},
	}
	err := Validate(tree, Constraints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "ghost" missing`)
}

func TestValidateDivisionByLiteralZero(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: ">",
			Left: &Expr{
				NodeID: 2, Kind: ExprCompute, Op: "/",
				Left:  &Expr{NodeID: 3, Kind: ExprField, Name: "amount"},
				Right: &Expr{NodeID: 4, Kind: ExprValue, Value: 0},
			},
			Right:   &Expr{NodeID: 5, Kind: ExprValue, Value: 1},
			OnTrue:  releaseNode(6),
			OnFalse: holdNode(7),
		},
	}
	err := Validate(tree, Constraints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by literal zero")
}

func TestValidateConstraintAllowLists(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: "<",
			Left:    &Expr{NodeID: 2, Kind: ExprField, Name: "balance"},
			Right:   &Expr{NodeID: 3, Kind: ExprValue, Value: 100},
			OnTrue:  &Node{NodeID: 4, Kind: KindAction, Action: DecisionSplit, Count: 2},
			OnFalse: holdNode(5),
		},
	}

	err := Validate(tree, Constraints{
		AllowedFields:  map[string]bool{"amount": true},
		AllowedActions: map[string]bool{DecisionRelease: true, DecisionHold: true},
	})
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, verr.Problems, 2)
}

func TestEvaluateConditionBranches(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: "<=",
			Left:    &Expr{NodeID: 2, Kind: ExprField, Name: "ticks_to_deadline"},
			Right:   &Expr{NodeID: 3, Kind: ExprParam, Name: "urgency"},
			OnTrue:  releaseNode(4),
			OnFalse: holdNode(5),
		},
		Parameters: map[string]int64{"urgency": 5},
	}

	urgent := &Input{TicksToDeadline: 3}
	relaxed := &Input{TicksToDeadline: 12}

	d, err := Evaluate(tree, urgent)
	require.NoError(t, err)
	assert.Equal(t, DecisionRelease, d.Kind)

	d, err = Evaluate(tree, relaxed)
	require.NoError(t, err)
	assert.Equal(t, DecisionHold, d.Kind)
}

func TestEvaluateComputeTruncatingDivision(t *testing.T) {
	// amount / 3 > 33 with amount = 100: 100/3 = 33 (truncated), not >.
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: ">",
			Left: &Expr{
				NodeID: 2, Kind: ExprCompute, Op: "/",
				Left:  &Expr{NodeID: 3, Kind: ExprField, Name: "amount"},
				Right: &Expr{NodeID: 4, Kind: ExprValue, Value: 3},
			},
			Right:   &Expr{NodeID: 5, Kind: ExprValue, Value: 33},
			OnTrue:  releaseNode(6),
			OnFalse: holdNode(7),
		},
	}
	d, err := Evaluate(tree, &Input{Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, DecisionHold, d.Kind)
}

func TestEvaluateMinMax(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: "==",
			Left: &Expr{
				NodeID: 2, Kind: ExprCompute, Op: "min",
				Left:  &Expr{NodeID: 3, Kind: ExprValue, Value: 7},
				Right: &Expr{NodeID: 4, Kind: ExprValue, Value: 9},
			},
			Right:   &Expr{NodeID: 5, Kind: ExprValue, Value: 7},
			OnTrue:  releaseNode(6),
			OnFalse: holdNode(7),
		},
	}
	d, err := Evaluate(tree, &Input{})
	require.NoError(t, err)
	assert.Equal(t, DecisionRelease, d.Kind)
}

func TestEvaluateRuntimeDivisionByZero(t *testing.T) {
	// balance is 0 at runtime; validation cannot catch a computed divisor.
	tree := &Tree{
		Root: &Node{
			NodeID: 1, Kind: KindCondition, Op: ">",
			Left: &Expr{
				NodeID: 2, Kind: ExprCompute, Op: "/",
				Left:  &Expr{NodeID: 3, Kind: ExprField, Name: "amount"},
				Right: &Expr{NodeID: 4, Kind: ExprField, Name: "balance"},
			},
			Right:   &Expr{NodeID: 5, Kind: ExprValue, Value: 1},
			OnTrue:  releaseNode(6),
			OnFalse: holdNode(7),
		},
	}
	_, err := Evaluate(tree, &Input{Amount: 100, Balance: 0})
	assert.Error(t, err)
}

func TestSplitOnIndivisibleDegradesToHold(t *testing.T) {
	tree := &Tree{
		Root: &Node{NodeID: 1, Kind: KindAction, Action: DecisionSplit, Count: 4},
	}
	d, err := Evaluate(tree, &Input{IsDivisible: false})
	require.NoError(t, err)
	assert.Equal(t, DecisionHold, d.Kind)

	d, err = Evaluate(tree, &Input{IsDivisible: true})
	require.NoError(t, err)
	assert.Equal(t, DecisionSplit, d.Kind)
	assert.Equal(t, 4, d.SplitCount)
}

func TestReprioritizeClamps(t *testing.T) {
	tree := &Tree{
		Root: &Node{NodeID: 1, Kind: KindAction, Action: DecisionReprioritize, Priority: 15},
	}
	d, err := Evaluate(tree, &Input{})
	require.NoError(t, err)
	assert.Equal(t, 10, d.NewPriority)
}

func TestBuiltins(t *testing.T) {
	require.NoError(t, Validate(FifoTree(), Constraints{}))
	require.NoError(t, Validate(DeadlineTree(5), Constraints{}))

	d, err := Evaluate(FifoTree(), &Input{})
	require.NoError(t, err)
	assert.Equal(t, DecisionRelease, d.Kind)

	d, err = Evaluate(DeadlineTree(5), &Input{TicksToDeadline: 2})
	require.NoError(t, err)
	assert.Equal(t, DecisionRelease, d.Kind)

	d, err = Evaluate(DeadlineTree(5), &Input{TicksToDeadline: 50})
	require.NoError(t, err)
	assert.Equal(t, DecisionHold, d.Kind)
}
