package engine

import (
	"sort"

	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// runLsm executes the liquidity-saving pass: bilateral offsets first,
// then multilateral cycle settlement on what remains. Every enumeration
// is lexicographic so the pass replays identically.
func (o *Orchestrator) runLsm(tick int64) int {
	released := o.bilateralOffsets(tick)
	released += o.cycleSettlements(tick)
	return released
}

// bilateralOffsets nets opposing Queue-2 flows for every agent pair.
// Offsetting obligations cancel, so no liquidity moves: each side's
// payments are marked settled FIFO up to the common offset amount.
func (o *Orchestrator) bilateralOffsets(tick int64) int {
	released := 0
	ids := o.sortedAgentIDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			sumAB := o.directionTotal(a, b)
			sumBA := o.directionTotal(b, a)
			offset := sumAB
			if sumBA < offset {
				offset = sumBA
			}
			if offset <= 0 {
				continue
			}

			nAB, idsAB := o.markDirectionSettled(a, b, offset)
			nBA, idsBA := o.markDirectionSettled(b, a, offset)
			released += nAB + nBA

			o.record(tick, journal.EventLsmBilateralOffset, map[string]any{
				"agent_a":        a,
				"agent_b":        b,
				"amount_a":       int64(offset),
				"amount_b":       int64(offset),
				"settled_tx_ids": append(idsAB, idsBA...),
			})
		}
	}
	return released
}

// directionTotal sums the remaining amounts of Queue-2 payments from one
// agent to another, in queue order.
func (o *Orchestrator) directionTotal(from, to string) money.Cents {
	var total money.Cents
	for _, txID := range o.q2.ids {
		tx := o.txs[txID]
		if tx.Sender == from && tx.Receiver == to {
			total = total.Add(tx.Remaining())
		}
	}
	return total
}

// markDirectionSettled settles payments from→to FIFO until the netted
// amount is exhausted. The final payment may settle partially; netted
// value consumes no liquidity, so partial marking needs no divisibility.
// Returns the count and ids of fully settled payments.
func (o *Orchestrator) markDirectionSettled(from, to string, amount money.Cents) (int, []string) {
	// FIFO means arrival order within the direction, not queue order.
	var matched []string
	for _, txID := range o.q2.ids {
		tx := o.txs[txID]
		if tx.Sender == from && tx.Receiver == to {
			matched = append(matched, txID)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := o.txs[matched[i]], o.txs[matched[j]]
		if a.ArrivalTick != b.ArrivalTick {
			return a.ArrivalTick < b.ArrivalTick
		}
		return a.ID < b.ID
	})

	fullyReleased := 0
	var settledIDs []string
	for _, txID := range matched {
		if amount <= 0 {
			break
		}
		tx := o.txs[txID]
		remaining := tx.Remaining()
		portion := remaining
		if portion > amount {
			portion = amount
		}
		tx.AmountSettled = tx.AmountSettled.Add(portion)
		amount = amount.Sub(portion)
		if tx.Remaining() == 0 {
			tx.Status = StatusSettled
			o.q2.remove(txID)
			delete(o.lastBoost, txID)
			fullyReleased++
			settledIDs = append(settledIDs, txID)
		} else {
			tx.Status = StatusPartiallySettled
		}
	}
	return fullyReleased, settledIDs
}

// cycleSettlements finds directed cycles in the remaining Queue-2
// obligation graph and settles the minimum flow around each. Traversal
// roots and neighbor expansion are both lexicographic, which makes the
// search order (and therefore the event stream) deterministic.
func (o *Orchestrator) cycleSettlements(tick int64) int {
	released := 0
	for {
		cycle := o.findCycle()
		if cycle == nil {
			break
		}

		// Minimum aggregate flow along the cycle's edges.
		flow := money.Cents(0)
		for k := 0; k < len(cycle); k++ {
			from := cycle[k]
			to := cycle[(k+1)%len(cycle)]
			edge := o.directionTotal(from, to)
			if flow == 0 || edge < flow {
				flow = edge
			}
		}
		if flow <= 0 {
			break
		}

		var total money.Cents
		var settledIDs []string
		for k := 0; k < len(cycle); k++ {
			from := cycle[k]
			to := cycle[(k+1)%len(cycle)]
			n, ids := o.markDirectionSettled(from, to, flow)
			released += n
			settledIDs = append(settledIDs, ids...)
			total = total.Add(flow)
		}

		o.record(tick, journal.EventLsmCycleSettlement, map[string]any{
			"agents":         append([]string{}, cycle...),
			"total_value":    int64(total),
			"cycle_flow":     int64(flow),
			"settled_tx_ids": settledIDs,
		})
	}
	return released
}

// findCycle searches the aggregated obligation graph for a directed cycle
// using DFS with lexicographic roots and neighbor order. Returns the
// cycle's participants in traversal order, or nil.
func (o *Orchestrator) findCycle() []string {
	edges := make(map[string]map[string]bool)
	for _, txID := range o.q2.ids {
		tx := o.txs[txID]
		if tx.Remaining() <= 0 {
			continue
		}
		if edges[tx.Sender] == nil {
			edges[tx.Sender] = make(map[string]bool)
		}
		edges[tx.Sender][tx.Receiver] = true
	}

	neighbors := func(id string) []string {
		var out []string
		for _, other := range o.sortedAgentIDs() {
			if edges[id][other] {
				out = append(out, other)
			}
		}
		return out
	}

	for _, root := range o.sortedAgentIDs() {
		if len(edges[root]) == 0 {
			continue
		}
		path := []string{root}
		onPath := map[string]int{root: 0}
		if cycle := dfsCycle(root, root, path, onPath, neighbors); cycle != nil {
			return cycle
		}
	}
	return nil
}

func dfsCycle(root, current string, path []string, onPath map[string]int, neighbors func(string) []string) []string {
	for _, next := range neighbors(current) {
		if next == root && len(path) >= 2 {
			return append([]string{}, path...)
		}
		if _, seen := onPath[next]; seen {
			continue
		}
		onPath[next] = len(path)
		if cycle := dfsCycle(root, next, append(path, next), onPath, neighbors); cycle != nil {
			return cycle
		}
		delete(onPath, next)
	}
	return nil
}
