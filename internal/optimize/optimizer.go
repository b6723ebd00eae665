package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aerugo/simcash/internal/bootstrap"
	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/engine"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/policy"
)

// Oracle proposes candidate policy trees. An oracle failure is routine:
// the optimizer records it and keeps the prior policy.
type Oracle interface {
	ProposePolicy(systemPrompt, userPrompt string) (string, error)
}

// Constraints narrow what proposed trees may reference. Empty sets allow
// the full registry.
type Constraints struct {
	AllowedFields  map[string]bool
	AllowedActions map[string]bool
}

func (c Constraints) policyConstraints() policy.Constraints {
	pc := policy.Constraints{}
	if len(c.AllowedFields) > 0 {
		pc.AllowedFields = c.AllowedFields
	}
	if len(c.AllowedActions) > 0 {
		pc.AllowedActions = c.AllowedActions
	}
	return pc
}

// ConvergenceSettings parameterize the per-agent bootstrap detectors.
type ConvergenceSettings struct {
	CvThreshold     float64
	WindowSize      int
	RegretThreshold float64
	MaxIterations   int
	TrendAlpha      float64
}

// Settings configure one optimization run.
type Settings struct {
	Config          *config.Config
	OptimizedAgents []string
	Constraints     Constraints
	Oracle          Oracle

	NumSamples int
	Workers    int

	MaxIterations        int
	ImprovementThreshold float64
	// RelaxedAcceptance accepts any mean-cost improvement instead of
	// requiring the threshold; the convergence criteria handle stopping.
	RelaxedAcceptance bool

	Convergence ConvergenceSettings

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Outcome summarizes a finished optimization run.
type Outcome struct {
	BestPolicies      map[string]*policy.Tree
	BaselineCosts     map[string]money.Cents
	FinalMeanCosts    map[string]money.Cents
	Iterations        int
	ConvergenceReason string
	Events            []RunEvent
}

// Optimizer drives the per-agent iterative policy search.
type Optimizer struct {
	settings Settings
	log      *runLog
}

// NewOptimizer validates settings and prepares a run.
func NewOptimizer(settings Settings) (*Optimizer, error) {
	if settings.Config == nil {
		return nil, fmt.Errorf("optimize: config is required")
	}
	if settings.Oracle == nil {
		return nil, fmt.Errorf("optimize: oracle is required")
	}
	if len(settings.OptimizedAgents) == 0 {
		return nil, fmt.Errorf("optimize: at least one optimized agent is required")
	}
	known := make(map[string]bool)
	for _, a := range settings.Config.Agents {
		known[a.ID] = true
	}
	for _, id := range settings.OptimizedAgents {
		if !known[id] {
			return nil, fmt.Errorf("optimize: unknown optimized agent %q", id)
		}
	}
	if settings.NumSamples <= 0 {
		settings.NumSamples = 10
	}
	if settings.Workers <= 0 {
		settings.Workers = 4
	}
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = 25
	}
	return &Optimizer{
		settings: settings,
		log:      newRunLog(settings.Now),
	}, nil
}

// Run executes the optimization loop until convergence, iteration
// exhaustion, or context cancellation between iterations. Recoverable
// failures (oracle errors, invalid proposals) never abort the run.
func (o *Optimizer) Run(ctx context.Context) (*Outcome, error) {
	s := o.settings
	totalTicks := s.Config.Simulation.TotalTicks()

	o.log.add(0, EventExperimentStart, "", map[string]any{
		"optimized_agents": s.OptimizedAgents,
		"num_samples":      s.NumSamples,
		"max_iterations":   s.MaxIterations,
	})

	// Baseline run with the configured policies.
	baseOrch, err := engine.New(s.Config)
	if err != nil {
		return nil, fmt.Errorf("optimize: baseline: %w", err)
	}
	baseOrch.Run()
	baseEvents := baseOrch.AllEvents()

	baseline := make(map[string]money.Cents, len(s.OptimizedAgents))
	for _, agentID := range s.OptimizedAgents {
		costs, _ := baseOrch.AgentCosts(agentID)
		baseline[agentID] = costs.Total()
	}

	// Per-agent sample sets, fixed across iterations so every candidate
	// evaluates against identical scenarios (common random numbers).
	sampler := bootstrap.NewSampler(s.Config.Simulation.RngSeed)
	samplesByAgent := make(map[string][]bootstrap.Sample, len(s.OptimizedAgents))
	for _, agentID := range s.OptimizedAgents {
		outgoing, incoming := bootstrap.CollectHistory(agentID, baseEvents)
		samplesByAgent[agentID] = sampler.GenerateSamples(agentID, s.NumSamples, outgoing, incoming, totalTicks)
	}

	builder := &bootstrap.SandboxBuilder{
		Costs:              s.Config.Costs,
		PriorityEscalation: s.Config.PriorityEscalation,
	}

	policies := make(map[string]*policy.Tree, len(s.OptimizedAgents))
	for _, agentID := range s.OptimizedAgents {
		tree, err := specToTree(agentConfig(s.Config, agentID).Policy)
		if err != nil {
			return nil, fmt.Errorf("optimize: agent %q policy: %w", agentID, err)
		}
		policies[agentID] = tree
	}

	detectors := make(map[string]*BootstrapDetector, len(s.OptimizedAgents))
	for _, agentID := range s.OptimizedAgents {
		detectors[agentID] = NewBootstrapDetector(
			s.Convergence.CvThreshold,
			s.Convergence.WindowSize,
			s.Convergence.RegretThreshold,
			s.Convergence.MaxIterations,
			s.Convergence.TrendAlpha,
		)
	}

	history := make(map[string][]float64, len(s.OptimizedAgents))
	finalMeans := make(map[string]money.Cents, len(s.OptimizedAgents))
	reason := "Max iterations reached"
	iterations := 0

	for iter := 1; iter <= s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			reason = "Cancelled"
			break
		}
		iterations = iter
		o.log.add(iter, EventIterationStart, "", nil)

		for _, agentID := range s.OptimizedAgents {
			mean := o.optimizeAgent(iter, agentID, policies, samplesByAgent[agentID], builder, history[agentID])
			finalMeans[agentID] = money.Cents(mean)
			history[agentID] = append(history[agentID], mean)
			detectors[agentID].RecordMetric(mean)
		}

		allConverged := true
		for _, agentID := range s.OptimizedAgents {
			if !detectors[agentID].IsConverged() {
				allConverged = false
				break
			}
		}
		if allConverged {
			reason = detectors[s.OptimizedAgents[0]].ConvergenceReason()
			break
		}
	}

	o.log.add(iterations, EventExperimentEnd, "", map[string]any{
		"reason":     reason,
		"iterations": iterations,
	})

	return &Outcome{
		BestPolicies:      policies,
		BaselineCosts:     baseline,
		FinalMeanCosts:    finalMeans,
		Iterations:        iterations,
		ConvergenceReason: reason,
		Events:            o.log.events,
	}, nil
}

// optimizeAgent runs one agent's propose-evaluate-accept step and returns
// the mean cost of the agent's policy after the accept decision.
func (o *Optimizer) optimizeAgent(iter int, agentID string, policies map[string]*policy.Tree, samples []bootstrap.Sample, builder *bootstrap.SandboxBuilder, costHistory []float64) float64 {
	s := o.settings
	ac := agentConfig(s.Config, agentID)

	evaluate := func(tree *policy.Tree) ([]bootstrap.Result, float64, error) {
		results, err := bootstrap.EvaluateSamples(samples, func(sample bootstrap.Sample) (*config.Config, error) {
			return builder.BuildConfig(sample, tree, ac.OpeningBalance, ac.CreditLimit)
		}, s.Workers)
		if err != nil {
			return nil, 0, err
		}
		return results, meanAgentCost(results, agentID), nil
	}

	current := policies[agentID]
	curResults, curMean, err := evaluate(current)
	if err != nil {
		slog.Warn("current-policy evaluation failed", "agent", agentID, "error", err)
		o.log.add(iter, EventPolicyRejected, agentID, map[string]any{"reason": "evaluation_error", "error": err.Error()})
		return lastOr(costHistory, 0)
	}

	ctxBuilder, err := bootstrap.NewContextBuilder(curResults, agentID)
	if err != nil {
		return curMean
	}
	agentCtx := ctxBuilder.BuildAgentContext()

	currentJSON, _ := current.Marshal()
	system := BuildSystemPrompt(s.Constraints)
	user := BuildUserPrompt(agentID, string(currentJSON), agentCtx, costHistory)

	o.log.add(iter, EventLlmCall, agentID, map[string]any{
		"prompt_chars": len(system) + len(user),
	})

	proposal, err := s.Oracle.ProposePolicy(system, user)
	if err != nil {
		slog.Warn("oracle call failed, keeping prior policy", "agent", agentID, "error", err)
		o.log.add(iter, EventPolicyRejected, agentID, map[string]any{"reason": "oracle_error", "error": err.Error()})
		return curMean
	}

	candidate, err := policy.ParseTree([]byte(proposal))
	if err != nil {
		o.log.add(iter, EventPolicyRejected, agentID, map[string]any{"reason": "invalid_json", "error": err.Error()})
		return curMean
	}
	if err := policy.Validate(candidate, s.Constraints.policyConstraints()); err != nil {
		o.log.add(iter, EventPolicyRejected, agentID, map[string]any{"reason": "validation_failed", "error": err.Error()})
		return curMean
	}

	candResults, candMean, err := evaluate(candidate)
	if err != nil {
		o.log.add(iter, EventPolicyRejected, agentID, map[string]any{"reason": "evaluation_error", "error": err.Error()})
		return curMean
	}

	o.log.add(iter, EventBootstrapEvaluation, agentID, map[string]any{
		"current_mean":   int64(curMean),
		"candidate_mean": int64(candMean),
		"num_samples":    len(candResults),
	})

	if o.accepts(curMean, candMean) {
		policies[agentID] = candidate
		o.log.add(iter, EventPolicyChange, agentID, map[string]any{
			"old_mean": int64(curMean),
			"new_mean": int64(candMean),
		})
		slog.Info("policy accepted", "agent", agentID, "iteration", iter,
			"old_mean", money.Cents(curMean).String(), "new_mean", money.Cents(candMean).String())
		return candMean
	}

	o.log.add(iter, EventPolicyRejected, agentID, map[string]any{
		"reason":         "insufficient_improvement",
		"current_mean":   int64(curMean),
		"candidate_mean": int64(candMean),
	})
	return curMean
}

// accepts decides whether a candidate's mean cost beats the current
// policy's by enough. Relaxed mode takes any improvement.
func (o *Optimizer) accepts(curMean, candMean float64) bool {
	if candMean >= curMean {
		return false
	}
	if o.settings.RelaxedAcceptance {
		return true
	}
	if curMean == 0 {
		return false
	}
	improvement := (curMean - candMean) / absFloat(curMean)
	return improvement >= o.settings.ImprovementThreshold
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func meanAgentCost(results []bootstrap.Result, agentID string) float64 {
	costs := make([]float64, len(results))
	for i, r := range results {
		if c, ok := r.PerAgentCosts[agentID]; ok {
			costs[i] = float64(c)
		} else {
			costs[i] = float64(r.TotalCost)
		}
	}
	return stat.Mean(costs, nil)
}

func lastOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return values[len(values)-1]
}

func agentConfig(cfg *config.Config, agentID string) config.AgentConfig {
	for _, a := range cfg.Agents {
		if a.ID == agentID {
			return a
		}
	}
	return config.AgentConfig{}
}

func specToTree(spec config.PolicySpec) (*policy.Tree, error) {
	switch spec.Type {
	case "Fifo":
		return policy.FifoTree(), nil
	case "Deadline":
		return policy.DeadlineTree(spec.UrgencyThreshold), nil
	case "FromJson":
		return policy.ParseTree([]byte(spec.JSON))
	}
	return nil, fmt.Errorf("unknown policy type %q", spec.Type)
}
