// Command simcash runs one RTGS simulation from a YAML configuration and
// reports per-agent outcomes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/aerugo/simcash/internal/api"
	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/engine"
	"github.com/aerugo/simcash/internal/money"
	"github.com/aerugo/simcash/internal/persistence"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to simulation config YAML")
	dbPath := flag.String("db", "", "optional SQLite path for event persistence")
	servePort := flag.Int("serve", 0, "optional port to serve the inspection API after the run")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	orch, err := engine.New(cfg)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}

	simulationID := uuid.NewString()
	slog.Info("simulation starting",
		"id", simulationID,
		"agents", len(cfg.Agents),
		"ticks_per_day", cfg.Simulation.TicksPerDay,
		"num_days", cfg.Simulation.NumDays,
		"seed", cfg.Simulation.RngSeed,
	)

	totalArrivals := 0
	totalSettlements := 0
	for day := int64(0); day < cfg.Simulation.NumDays; day++ {
		var dayCost money.Cents
		for i := int64(0); i < cfg.Simulation.TicksPerDay; i++ {
			summary := orch.Tick()
			totalArrivals += summary.NewArrivals
			totalSettlements += summary.Settlements + summary.LsmReleases
			dayCost = dayCost.Add(summary.TickCost)
		}
		slog.Info("daily report",
			"day", day,
			"arrivals_to_date", totalArrivals,
			"settlements_to_date", totalSettlements,
			"day_cost", dayCost.String(),
			"queue2_size", orch.Queue2Size(),
		)
	}

	total, settled, violations := orch.SettlementStats()
	rate := 0.0
	if total > 0 {
		rate = float64(settled) / float64(total)
	}
	slog.Info("simulation finished",
		"transactions", total,
		"settled", settled,
		"settlement_rate", fmt.Sprintf("%.3f", rate),
		"deadline_violations", violations,
		"total_cost", orch.SystemCostTotal().String(),
	)

	for _, agentID := range orch.AgentIDs() {
		balance, _ := orch.AgentBalance(agentID)
		costs, _ := orch.AgentAccumulatedCosts(agentID)
		slog.Info("agent summary",
			"agent", agentID,
			"balance", balance.String(),
			"cost_total", costs.Total.String(),
			"cost_liquidity", costs.Liquidity.String(),
			"cost_delay", costs.Delay.String(),
			"cost_penalty", costs.Penalty.String(),
		)
	}

	if *dbPath != "" {
		if err := persist(orch, cfg, simulationID, *dbPath); err != nil {
			slog.Error("persistence failed", "error", err)
			os.Exit(1)
		}
		slog.Info("events persisted", "db", *dbPath, "simulation_id", simulationID)
	}

	if *servePort > 0 {
		server := &api.Server{Orch: orch, Port: *servePort}
		server.Start()
		slog.Info("inspection API available", "url", fmt.Sprintf("http://localhost:%d/api/v1/status", *servePort))
		select {}
	}
}

func persist(orch *engine.Orchestrator, cfg *config.Config, simulationID, dbPath string) error {
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := db.SaveSimulation(simulationID, string(configJSON),
		cfg.Simulation.TicksPerDay, cfg.Simulation.NumDays, cfg.Simulation.RngSeed); err != nil {
		return err
	}
	if err := db.SaveEvents(simulationID, cfg.Simulation.TicksPerDay, orch.AllEvents()); err != nil {
		return err
	}
	for day := int64(0); day < cfg.Simulation.NumDays; day++ {
		if err := db.SaveTransactions(simulationID, cfg.Simulation.TicksPerDay, orch.TransactionsForDay(day)); err != nil {
			return err
		}
	}
	return nil
}
