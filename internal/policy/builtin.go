package policy

// FifoTree releases every payment as soon as it is evaluated.
func FifoTree() *Tree {
	return &Tree{
		Root: &Node{NodeID: 1, Kind: KindAction, Action: DecisionRelease},
	}
}

// DeadlineTree releases a payment once it is within urgencyThreshold ticks
// of its deadline and holds it otherwise, conserving liquidity for the
// payments that need it most.
func DeadlineTree(urgencyThreshold int64) *Tree {
	return &Tree{
		Root: &Node{
			NodeID: 1,
			Kind:   KindCondition,
			Op:     "<=",
			Left:   &Expr{NodeID: 2, Kind: ExprField, Name: "ticks_to_deadline"},
			Right:  &Expr{NodeID: 3, Kind: ExprParam, Name: "urgency_threshold"},
			OnTrue: &Node{NodeID: 4, Kind: KindAction, Action: DecisionRelease},
			OnFalse: &Node{
				NodeID: 5, Kind: KindAction, Action: DecisionHold,
			},
		},
		Parameters: map[string]int64{"urgency_threshold": urgencyThreshold},
	}
}
