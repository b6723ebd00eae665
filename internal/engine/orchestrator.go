package engine

import (
	"fmt"
	"sort"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/policy"
	"github.com/aerugo/simcash/internal/rng"
)

// Orchestrator owns the complete state of one simulation: the agent map,
// both queues, the transaction cache, the event journal, and the clock.
// A single Orchestrator is strictly sequential; run one per goroutine.
type Orchestrator struct {
	cfg        *config.Config
	clock      money.Clock
	totalTicks int64

	agents     map[string]*AgentState
	agentOrder []string // config declaration order; fixes every iteration

	txs     map[string]*Transaction
	txOrder []string // creation order
	q2      queue2

	journal  *journal.Journal
	policies map[string]*policy.Tree

	arrivalStreams map[string]*rng.Stream

	// Global deadline-window override from DeadlineWindowChange events.
	// A change applies to arrivals generated after the tick it fires on,
	// so it parks in pending until the next tick begins.
	deadlineOverride        *config.DeadlineWindow
	pendingDeadlineOverride *config.DeadlineWindow

	// Last boost recorded per transaction, for escalation events.
	lastBoost map[string]int

	txCounter int64
}

// New builds an orchestrator from a validated configuration. Policy trees
// are parsed and validated here; a bad policy is a construction error.
func New(cfg *config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:            cfg,
		clock:          money.Clock{Tick: 0, TicksPerDay: cfg.Simulation.TicksPerDay},
		totalTicks:     cfg.Simulation.TotalTicks(),
		agents:         make(map[string]*AgentState, len(cfg.Agents)),
		txs:            make(map[string]*Transaction),
		journal:        journal.New(),
		policies:       make(map[string]*policy.Tree, len(cfg.Agents)),
		arrivalStreams: make(map[string]*rng.Stream, len(cfg.Agents)),
		lastBoost:      make(map[string]int),
	}

	for _, ac := range cfg.Agents {
		tree, err := buildPolicy(ac.Policy)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", ac.ID, err)
		}
		o.policies[ac.ID] = tree

		agent := &AgentState{
			ID:                 ac.ID,
			Balance:            money.Cents(ac.OpeningBalance),
			CreditLimit:        money.Cents(ac.CreditLimit),
			CollateralCapacity: money.Cents(ac.CollateralCapacity),
			RateMultiplier:     1.0,
		}
		if ac.ArrivalConfig != nil {
			agent.BaseArrivalRate = ac.ArrivalConfig.RatePerTick
			agent.CounterpartyWeights = make(map[string]float64, len(ac.ArrivalConfig.CounterpartyWeights))
			for cp, w := range ac.ArrivalConfig.CounterpartyWeights {
				agent.CounterpartyWeights[cp] = w
			}
			o.arrivalStreams[ac.ID] = rng.New(cfg.Simulation.RngSeed, ac.ID, "arrivals")
		}
		o.agents[ac.ID] = agent
		o.agentOrder = append(o.agentOrder, ac.ID)
	}

	return o, nil
}

func buildPolicy(spec config.PolicySpec) (*policy.Tree, error) {
	var tree *policy.Tree
	switch spec.Type {
	case "Fifo":
		tree = policy.FifoTree()
	case "Deadline":
		tree = policy.DeadlineTree(spec.UrgencyThreshold)
	case "FromJson":
		parsed, err := policy.ParseTree([]byte(spec.JSON))
		if err != nil {
			return nil, err
		}
		tree = parsed
	default:
		return nil, fmt.Errorf("unknown policy type %q", spec.Type)
	}
	if err := policy.Validate(tree, policy.Constraints{}); err != nil {
		return nil, err
	}
	return tree, nil
}

// SetPolicy replaces an agent's policy tree. The optimizer uses this
// between runs; it is the only engine mutation the optimizer performs.
func (o *Orchestrator) SetPolicy(agentID string, tree *policy.Tree) error {
	if _, ok := o.agents[agentID]; !ok {
		return fmt.Errorf("engine: unknown agent %q", agentID)
	}
	if err := policy.Validate(tree, policy.Constraints{}); err != nil {
		return err
	}
	o.policies[agentID] = tree
	return nil
}

// Tick executes one tick of the fixed pipeline and advances the clock.
// The phase ordering is the determinism contract: scenario events,
// arrivals, policy decisions, immediate settlement, escalation, the
// Queue-2 scan, netting, deadline checks, cost accrual, end-of-day.
func (o *Orchestrator) Tick() TickSummary {
	tick := o.clock.Tick
	summary := TickSummary{Tick: tick}
	costBefore := o.systemCostTotal()

	o.promotePendingOverrides()
	o.applyScenarioEvents(tick)
	summary.NewArrivals = o.generateArrivals(tick)
	released := o.evaluatePolicies(tick)
	summary.Settlements += o.settleReleased(tick, released)
	o.escalatePriorities(tick)
	summary.Settlements += o.scanQueue2(tick)
	if o.lsmScheduled(tick) {
		summary.LsmReleases = o.runLsm(tick)
	}
	o.checkDeadlines(tick)
	o.accrueCosts(tick)
	if o.clock.IsEndOfDay() {
		o.endOfDay(tick)
	}

	summary.TickCost = o.systemCostTotal().Sub(costBefore)
	o.clock.Tick++
	return summary
}

// Run executes the full configured horizon.
func (o *Orchestrator) Run() []TickSummary {
	summaries := make([]TickSummary, 0, o.totalTicks)
	for o.clock.Tick < o.totalTicks {
		summaries = append(summaries, o.Tick())
	}
	return summaries
}

func (o *Orchestrator) lsmScheduled(tick int64) bool {
	l := o.cfg.LSM
	return l != nil && l.Enabled && tick > 0 && tick%l.EveryTicks == 0
}

func (o *Orchestrator) systemCostTotal() money.Cents {
	var total money.Cents
	for _, id := range o.agentOrder {
		total = total.Add(o.agents[id].Costs.Total())
	}
	return total
}

// nextTxID mints a simulator-generated stable transaction id.
func (o *Orchestrator) nextTxID() string {
	o.txCounter++
	return fmt.Sprintf("tx-%06d", o.txCounter)
}

// addTransaction registers a transaction in the cache.
func (o *Orchestrator) addTransaction(t *Transaction) {
	o.txs[t.ID] = t
	o.txOrder = append(o.txOrder, t.ID)
}

// queue2Key builds the ordering key for a queued transaction, applying
// the current escalation boost without mutating stored priority.
func (o *Orchestrator) queue2KeyFor(txID string) queue2Key {
	t := o.txs[txID]
	return queue2Key{
		priority:    o.effectivePriority(t),
		arrivalTick: t.ArrivalTick,
		txID:        t.ID,
	}
}

// sortedAgentIDs returns all agent ids in lexicographic order, used by
// the netting engine's pair and cycle enumeration.
func (o *Orchestrator) sortedAgentIDs() []string {
	ids := make([]string, len(o.agentOrder))
	copy(ids, o.agentOrder)
	sort.Strings(ids)
	return ids
}

// record appends an event to the journal.
func (o *Orchestrator) record(tick int64, eventType string, details map[string]any) {
	o.journal.Record(journal.Event{Tick: tick, Type: eventType, Details: details})
}
