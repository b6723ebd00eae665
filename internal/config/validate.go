package config

import (
	"fmt"
)

// Validate checks the configuration for structural errors. All problems
// are reported at load time; the engine assumes a validated config.
func (c *Config) Validate() error {
	if c.Simulation.TicksPerDay <= 0 {
		return fmt.Errorf("config: ticks_per_day must be > 0, got %d", c.Simulation.TicksPerDay)
	}
	if c.Simulation.NumDays <= 0 {
		return fmt.Errorf("config: num_days must be > 0, got %d", c.Simulation.NumDays)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("config: agent %d has empty id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		if a.CreditLimit < 0 {
			return fmt.Errorf("config: agent %q credit_limit must be >= 0", a.ID)
		}
		if a.CollateralCapacity < 0 {
			return fmt.Errorf("config: agent %q collateral_capacity must be >= 0", a.ID)
		}
		if err := validatePolicySpec(a.ID, a.Policy); err != nil {
			return err
		}
	}

	for _, a := range c.Agents {
		if a.ArrivalConfig == nil {
			continue
		}
		if err := validateArrivalConfig(a.ID, a.ArrivalConfig, seen); err != nil {
			return err
		}
	}

	if c.LSM != nil && c.LSM.Enabled && c.LSM.EveryTicks <= 0 {
		return fmt.Errorf("config: lsm.every_ticks must be > 0 when enabled")
	}

	if e := c.PriorityEscalation; e != nil && e.Enabled {
		if e.Curve != "linear" && e.Curve != "exponential" {
			return fmt.Errorf("config: priority_escalation.curve must be linear or exponential, got %q", e.Curve)
		}
		if e.StartEscalatingTicks <= 0 {
			return fmt.Errorf("config: priority_escalation.start_escalating_at_ticks must be > 0")
		}
		if e.MaxBoost < 0 || e.MaxBoost > 10 {
			return fmt.Errorf("config: priority_escalation.max_boost must be in [0,10]")
		}
	}

	for i, se := range c.ScenarioEvents {
		if err := validateScenarioEvent(i, se, seen); err != nil {
			return err
		}
	}

	return nil
}

func validatePolicySpec(agentID string, p PolicySpec) error {
	switch p.Type {
	case "Fifo":
		return nil
	case "Deadline":
		if p.UrgencyThreshold < 0 {
			return fmt.Errorf("config: agent %q Deadline policy urgency_threshold must be >= 0", agentID)
		}
		return nil
	case "FromJson":
		if p.JSON == "" {
			return fmt.Errorf("config: agent %q FromJson policy requires json", agentID)
		}
		return nil
	default:
		return fmt.Errorf("config: agent %q has unknown policy type %q", agentID, p.Type)
	}
}

func validateArrivalConfig(agentID string, ac *ArrivalConfig, knownAgents map[string]bool) error {
	if ac.RatePerTick < 0 {
		return fmt.Errorf("config: agent %q rate_per_tick must be >= 0", agentID)
	}
	if len(ac.CounterpartyWeights) == 0 {
		return fmt.Errorf("config: agent %q arrival_config requires counterparty_weights", agentID)
	}
	for cp, w := range ac.CounterpartyWeights {
		if !knownAgents[cp] {
			return fmt.Errorf("config: agent %q references unknown counterparty %q", agentID, cp)
		}
		if cp == agentID {
			return fmt.Errorf("config: agent %q cannot be its own counterparty", agentID)
		}
		if w < 0 {
			return fmt.Errorf("config: agent %q counterparty %q has negative weight", agentID, cp)
		}
	}

	switch ac.Amount.Type {
	case "Fixed":
		if ac.Amount.Value <= 0 {
			return fmt.Errorf("config: agent %q Fixed amount must be > 0", agentID)
		}
	case "Uniform":
		if ac.Amount.Min <= 0 || ac.Amount.Max < ac.Amount.Min {
			return fmt.Errorf("config: agent %q Uniform amount requires 0 < min <= max", agentID)
		}
	case "Normal":
		if ac.Amount.Mean <= 0 || ac.Amount.Std < 0 {
			return fmt.Errorf("config: agent %q Normal amount requires mean > 0 and std >= 0", agentID)
		}
	default:
		return fmt.Errorf("config: agent %q has unknown amount distribution %q", agentID, ac.Amount.Type)
	}

	for p := range ac.PriorityWeights {
		if p < 0 || p > 10 {
			return fmt.Errorf("config: agent %q priority weight key %d outside [0,10]", agentID, p)
		}
	}

	if ac.DeadlineWindow.Min < 0 || ac.DeadlineWindow.Max < ac.DeadlineWindow.Min {
		return fmt.Errorf("config: agent %q deadline_window requires 0 <= min <= max", agentID)
	}
	return nil
}

func validateScenarioEvent(idx int, se ScenarioEventConfig, knownAgents map[string]bool) error {
	switch se.Schedule.Type {
	case "OneTime":
		if se.Schedule.Tick < 0 {
			return fmt.Errorf("config: scenario event %d has negative tick", idx)
		}
	case "Repeating":
		if se.Schedule.Interval <= 0 {
			return fmt.Errorf("config: scenario event %d has non-positive interval", idx)
		}
		if se.Schedule.Start < 0 {
			return fmt.Errorf("config: scenario event %d has negative start", idx)
		}
	default:
		return fmt.Errorf("config: scenario event %d has unknown schedule type %q", idx, se.Schedule.Type)
	}

	requireAgent := func(id, role string) error {
		if id == "" {
			return fmt.Errorf("config: scenario event %d (%s) requires %s agent", idx, se.Type, role)
		}
		if !knownAgents[id] {
			return fmt.Errorf("config: scenario event %d (%s) references unknown agent %q", idx, se.Type, id)
		}
		return nil
	}

	switch se.Type {
	case ScenarioDirectTransfer:
		if err := requireAgent(se.From, "from"); err != nil {
			return err
		}
		if err := requireAgent(se.To, "to"); err != nil {
			return err
		}
		if se.Amount < 0 {
			return fmt.Errorf("config: scenario event %d DirectTransfer amount must be >= 0", idx)
		}
	case ScenarioCustomTransactionArrival:
		if err := requireAgent(se.From, "from"); err != nil {
			return err
		}
		if err := requireAgent(se.To, "to"); err != nil {
			return err
		}
		if se.Amount <= 0 {
			return fmt.Errorf("config: scenario event %d CustomTransactionArrival amount must be > 0", idx)
		}
		if se.Priority < 0 || se.Priority > 10 {
			return fmt.Errorf("config: scenario event %d priority outside [0,10]", idx)
		}
	case ScenarioCollateralAdjustment:
		if err := requireAgent(se.Agent, "target"); err != nil {
			return err
		}
	case ScenarioAgentArrivalRateChange:
		if err := requireAgent(se.Agent, "target"); err != nil {
			return err
		}
		if se.Multiplier < 0 {
			return fmt.Errorf("config: scenario event %d multiplier must be >= 0", idx)
		}
	case ScenarioGlobalArrivalRateChange:
		if se.Multiplier < 0 {
			return fmt.Errorf("config: scenario event %d multiplier must be >= 0", idx)
		}
	case ScenarioCounterpartyWeightChange:
		if err := requireAgent(se.Agent, "target"); err != nil {
			return err
		}
		if err := requireAgent(se.Counterparty, "counterparty"); err != nil {
			return err
		}
		if se.NewWeight < 0 {
			return fmt.Errorf("config: scenario event %d new_weight must be >= 0", idx)
		}
	case ScenarioDeadlineWindowChange:
		if se.NewMin < 0 || se.NewMax < se.NewMin {
			return fmt.Errorf("config: scenario event %d requires 0 <= new_min <= new_max", idx)
		}
	default:
		return fmt.Errorf("config: scenario event %d has unknown type %q", idx, se.Type)
	}
	return nil
}
