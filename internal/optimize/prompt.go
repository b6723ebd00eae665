package optimize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aerugo/simcash/internal/bootstrap"
	"github.com/aerugo/simcash/internal/money"
)

const systemPromptTemplate = `You are a liquidity-management strategist for one bank in an RTGS payments network. You design the bank's payment-release policy as a decision tree.

A policy tree is JSON with this shape:
{"root": <node>, "parameters": {"<name>": <integer>}}

A node is one of:
- {"node_id": N, "kind": "action", "action": "Release"}
- {"node_id": N, "kind": "action", "action": "Hold"}
- {"node_id": N, "kind": "action", "action": "Split", "count": K}        (K >= 2, divisible payments only)
- {"node_id": N, "kind": "action", "action": "Reprioritize", "priority": P}
- {"node_id": N, "kind": "condition", "op": "<op>", "left": <expr>, "right": <expr>, "on_true": <node>, "on_false": <node>}

<op> is one of ==, !=, <, <=, >, >=. An expr is one of:
- {"node_id": N, "kind": "field", "name": "<field>"}
- {"node_id": N, "kind": "param", "name": "<parameter>"}
- {"node_id": N, "kind": "value", "value": <integer>}
- {"node_id": N, "kind": "compute", "op": "<+,-,*,/,min,max>", "left": <expr>, "right": <expr>}

All arithmetic is integer cents with truncating division. Every node_id must be unique within the tree. Never divide by a literal zero.

## Rules

- Respond ONLY with the policy tree JSON. No prose, no markdown fences.
- Use only the allowed fields and actions listed in the task.
- Lower total cost is better. Costs come from overdraft, payment delay, missed deadlines, end-of-day drops, and split fees.
- Holding conserves liquidity but accrues delay cost and risks deadlines; releasing early spends liquidity but settles sooner.`

// BuildSystemPrompt renders the oracle system prompt with the scenario's
// allow-lists appended.
func BuildSystemPrompt(constraints Constraints) string {
	var b strings.Builder
	b.WriteString(systemPromptTemplate)
	b.WriteString("\n\n## Allowed fields\n")
	b.WriteString(strings.Join(sortedOrAll(constraints.AllowedFields), ", "))
	b.WriteString("\n\n## Allowed actions\n")
	b.WriteString(strings.Join(sortedOrAll(constraints.AllowedActions), ", "))
	return b.String()
}

func sortedOrAll(set map[string]bool) []string {
	if len(set) == 0 {
		return []string{"(all)"}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildUserPrompt assembles the per-agent task: current policy, cost
// statistics over the bootstrap samples, the best sample's isolated
// event trace, and the iteration history. Everything in this prompt has
// passed the agent-isolation filter upstream.
func BuildUserPrompt(agentID string, currentPolicyJSON string, ctx bootstrap.AgentContext, history []float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Task\nYou manage %s. Propose an improved release policy tree.\n\n", agentID)

	fmt.Fprintf(&b, "## Current policy\n%s\n\n", currentPolicyJSON)

	b.WriteString("## Evaluation under current policy\n")
	fmt.Fprintf(&b, "Mean cost across samples: %s\n", ctx.MeanCost)
	fmt.Fprintf(&b, "Cost std dev: %s\n", ctx.CostStd)
	fmt.Fprintf(&b, "Best sample cost: %s (seed %d)\n\n", ctx.SampleCost, ctx.SampleSeed)

	if len(history) > 0 {
		b.WriteString("## Cost history (oldest first)\n")
		for i, v := range history {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s", money.Cents(v))
		}
		b.WriteString("\n\n")
	}

	if ctx.SimulationTrace != "" {
		fmt.Fprintf(&b, "## Best sample trace\n%s\n\n", ctx.SimulationTrace)
	}

	b.WriteString("Respond with the improved policy tree JSON only.")
	return b.String()
}
