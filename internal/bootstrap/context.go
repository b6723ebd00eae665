package bootstrap

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// AgentContext is the per-agent view handed to the policy oracle: the
// representative trace plus cost statistics over all samples. SampleSeed,
// SampleCost and SimulationTrace describe the best-performing sample
// (these fields replace an older best_/worst_ alias pair; there was never
// a distinct worst-sample value behind it).
type AgentContext struct {
	AgentID         string
	SampleSeed      uint64
	SampleCost      money.Cents
	SimulationTrace string
	MeanCost        money.Cents
	CostStd         money.Cents
}

// ContextBuilder assembles an isolated optimization context from
// evaluation results. It never lets one agent's context include an event
// whose only participants are other agents, and it sanitizes the
// counterparty side of netting events.
type ContextBuilder struct {
	results []Result
	agentID string
}

// NewContextBuilder requires at least one result.
func NewContextBuilder(results []Result, agentID string) (*ContextBuilder, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("bootstrap: results list cannot be empty")
	}
	return &ContextBuilder{results: results, agentID: agentID}, nil
}

func (b *ContextBuilder) agentCost(r Result) money.Cents {
	if c, ok := r.PerAgentCosts[b.agentID]; ok {
		return c
	}
	return r.TotalCost
}

// BestResult returns the sample with the lowest cost for this agent.
func (b *ContextBuilder) BestResult() Result {
	best := b.results[0]
	for _, r := range b.results[1:] {
		if b.agentCost(r) < b.agentCost(best) {
			best = r
		}
	}
	return best
}

// WorstResult returns the sample with the highest cost for this agent.
func (b *ContextBuilder) WorstResult() Result {
	worst := b.results[0]
	for _, r := range b.results[1:] {
		if b.agentCost(r) > b.agentCost(worst) {
			worst = r
		}
	}
	return worst
}

// BuildAgentContext aggregates sample costs and formats the best sample's
// trace for the oracle prompt.
func (b *ContextBuilder) BuildAgentContext() AgentContext {
	costs := make([]float64, len(b.results))
	for i, r := range b.results {
		costs[i] = float64(b.agentCost(r))
	}
	mean := stat.Mean(costs, nil)
	std := 0.0
	if len(costs) > 1 {
		std = stat.StdDev(costs, nil)
	}

	best := b.BestResult()
	return AgentContext{
		AgentID:         b.agentID,
		SampleSeed:      best.Seed,
		SampleCost:      b.agentCost(best),
		SimulationTrace: b.FormatEventTrace(best, 50),
		MeanCost:        money.Cents(mean),
		CostStd:         money.Cents(std),
	}
}

// Event informativeness ranking for trace truncation: decision points and
// cost drivers outrank routine context.
var tracePriority = map[string]int{
	journal.EventPolicySubmit:            100,
	journal.EventPolicyHold:              100,
	journal.EventPolicySplit:             100,
	journal.EventPolicyReprioritize:      100,
	journal.EventDeadlinePenalty:         90,
	journal.EventCostAccrual:             80,
	journal.EventRtgsImmediateSettlement: 50,
	journal.EventQueue2LiquidityRelease:  50,
	journal.EventLsmBilateralOffset:      50,
	journal.EventLsmCycleSettlement:      50,
	journal.EventArrival:                 30,
}

// FormatEventTrace renders one result's events for the oracle prompt.
// Events are isolation-filtered first, then the maxEvents most
// informative are kept and presented chronologically.
func (b *ContextBuilder) FormatEventTrace(r Result, maxEvents int) string {
	filtered := journal.FilterForAgent(b.agentID, r.Events)
	if len(filtered) == 0 {
		return fmt.Sprintf("(No events for %s)", b.agentID)
	}

	type indexed struct {
		idx int
		e   journal.Event
	}
	events := make([]indexed, len(filtered))
	for i, e := range filtered {
		events[i] = indexed{idx: i, e: e}
	}
	sort.SliceStable(events, func(i, j int) bool {
		pi := tracePriority[events[i].e.Type]
		pj := tracePriority[events[j].e.Type]
		if pi != pj {
			return pi > pj
		}
		return events[i].idx < events[j].idx
	})
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].e.Tick != events[j].e.Tick {
			return events[i].e.Tick < events[j].e.Tick
		}
		return events[i].idx < events[j].idx
	})

	var sb strings.Builder
	for _, ie := range events {
		fmt.Fprintf(&sb, "[tick %d] %s: %s\n", ie.e.Tick, ie.e.Type, b.formatDetails(ie.e))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatDetails renders one event's detail line. Settlement and netting
// events go through sanitizers that hide counterparty information.
func (b *ContextBuilder) formatDetails(e journal.Event) string {
	switch e.Type {
	case journal.EventRtgsImmediateSettlement, journal.EventQueue2LiquidityRelease:
		return b.formatSettlement(e)
	case journal.EventLsmBilateralOffset:
		return b.formatLsmBilateral(e)
	case journal.EventLsmCycleSettlement:
		return b.formatLsmCycle(e)
	}

	keys := []string{"tx_id", "action", "amount", "cost", "agent_id", "sender_id"}
	var parts []string
	for _, key := range keys {
		v, ok := e.Details[key]
		if !ok {
			continue
		}
		switch key {
		case "amount", "cost":
			parts = append(parts, fmt.Sprintf("%s=%s", key, money.Cents(detailInt64(e.Details, key))))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	if len(parts) == 0 {
		return "(no details)"
	}
	return strings.Join(parts, ", ")
}

// formatSettlement shows balance movement to the sender only; a receiver
// never learns the counterparty's liquidity position.
func (b *ContextBuilder) formatSettlement(e journal.Event) string {
	parts := []string{}
	if txID, ok := e.Details["tx_id"].(string); ok {
		parts = append(parts, fmt.Sprintf("tx_id=%s", txID))
	}
	parts = append(parts, fmt.Sprintf("amount=%s", money.Cents(detailInt64(e.Details, "amount"))))
	line := strings.Join(parts, ", ")

	if sender, _ := e.Details["sender"].(string); sender == b.agentID {
		before := money.Cents(detailInt64(e.Details, "sender_balance_before"))
		after := money.Cents(detailInt64(e.Details, "sender_balance_after"))
		line += fmt.Sprintf("\n  Balance: %s -> %s", before, after)
	}
	return line
}

// formatLsmBilateral shows only the viewing agent's side of the offset.
func (b *ContextBuilder) formatLsmBilateral(e journal.Event) string {
	agentA, _ := e.Details["agent_a"].(string)
	agentB, _ := e.Details["agent_b"].(string)

	var own money.Cents
	var counterparty string
	switch b.agentID {
	case agentA:
		own = money.Cents(detailInt64(e.Details, "amount_a"))
		counterparty = agentB
	case agentB:
		own = money.Cents(detailInt64(e.Details, "amount_b"))
		counterparty = agentA
	default:
		return fmt.Sprintf("Bilateral offset: %s <-> %s", agentA, agentB)
	}
	return fmt.Sprintf("Bilateral offset with %s: your payment %s settled", counterparty, own)
}

// formatLsmCycle shows participation and total value only, never
// per-participant amounts or net positions.
func (b *ContextBuilder) formatLsmCycle(e journal.Event) string {
	participants := len(detailStrings(e.Details, "agents"))
	total := money.Cents(detailInt64(e.Details, "total_value"))
	return fmt.Sprintf("LSM cycle: %d participants, total %s", participants, total)
}
