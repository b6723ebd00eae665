package bootstrap

import (
	"fmt"
	"sync"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/engine"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// Evaluate runs one sandbox configuration to completion and summarizes
// the outcome. The orchestrator is private to this call, so evaluations
// may run concurrently.
func Evaluate(cfg *config.Config, seed uint64) (Result, error) {
	orch, err := engine.New(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: build sandbox: %w", err)
	}
	orch.Run()

	res := Result{
		Seed:          seed,
		PerAgentCosts: make(map[string]money.Cents),
		Events:        orch.AllEvents(),
	}

	for _, agentID := range orch.AgentIDs() {
		costs, _ := orch.AgentCosts(agentID)
		res.PerAgentCosts[agentID] = costs.Total()
		res.TotalCost = res.TotalCost.Add(costs.Total())
		res.CostBreakdown.Delay = res.CostBreakdown.Delay.Add(costs.Delay)
		res.CostBreakdown.Overdraft = res.CostBreakdown.Overdraft.Add(costs.Liquidity)
		res.CostBreakdown.DeadlinePenalty = res.CostBreakdown.DeadlinePenalty.Add(costs.DeadlinePenalty)
		res.CostBreakdown.EodPenalty = res.CostBreakdown.EodPenalty.Add(costs.EodPenalty)
	}

	total, settled, _ := orch.SettlementStats()
	if total > 0 {
		res.SettlementRate = float64(settled) / float64(total)
	}
	res.AvgDelay = averageSettlementDelay(res.Events)

	return res, nil
}

// averageSettlementDelay measures mean ticks from arrival to final
// settlement across fully settled transactions, from events alone.
func averageSettlementDelay(events []journal.Event) float64 {
	arrivals := make(map[string]int64)
	var totalDelay int64
	var settled int

	for _, e := range events {
		switch e.Type {
		case journal.EventArrival:
			if txID, ok := e.Details["tx_id"].(string); ok {
				arrivals[txID] = e.Tick
			}
		case journal.EventRtgsImmediateSettlement, journal.EventQueue2LiquidityRelease:
			txID, _ := e.Details["tx_id"].(string)
			arrival, ok := arrivals[txID]
			if !ok || detailInt64(e.Details, "remaining") != 0 {
				continue
			}
			totalDelay += e.Tick - arrival
			settled++
			delete(arrivals, txID)
		case journal.EventLsmBilateralOffset, journal.EventLsmCycleSettlement:
			for _, txID := range detailStrings(e.Details, "settled_tx_ids") {
				if arrival, ok := arrivals[txID]; ok {
					totalDelay += e.Tick - arrival
					settled++
					delete(arrivals, txID)
				}
			}
		}
	}

	if settled == 0 {
		return 0
	}
	return float64(totalDelay) / float64(settled)
}

// EvaluateSamples evaluates one sandbox config per sample across a worker
// pool. Results gather into a sample-index-ordered slice, so parallel
// execution cannot change the aggregate.
func EvaluateSamples(samples []Sample, build func(Sample) (*config.Config, error), workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(samples))
	errs := make([]error, len(samples))

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				cfg, err := build(samples[i])
				if err != nil {
					errs[i] = err
					continue
				}
				results[i], errs[i] = Evaluate(cfg, samples[i].Seed)
			}
		}()
	}
	for i := range samples {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("bootstrap: sample %d: %w", i, err)
		}
	}
	return results, nil
}
