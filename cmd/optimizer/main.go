// Command optimizer runs the oracle-driven policy optimization loop over
// a base simulation configuration.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/llm"
	"github.com/aerugo/simcash/internal/optimize"
	"github.com/aerugo/simcash/internal/persistence"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to simulation config YAML")
	agents := flag.String("agents", "", "comma-separated agent ids to optimize (default: all)")
	samples := flag.Int("samples", 10, "bootstrap samples per evaluation")
	workers := flag.Int("workers", 4, "parallel sample evaluations")
	maxIter := flag.Int("iterations", 25, "max optimization iterations")
	dbPath := flag.String("db", "", "optional SQLite path for the run audit trail")
	oracleTimeout := flag.Duration("oracle-timeout", 60*time.Second, "oracle request timeout")
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

	optimized := splitAgents(*agents)
	if len(optimized) == 0 {
		for _, a := range cfg.Agents {
			optimized = append(optimized, a.ID)
		}
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	client := llm.NewClient(apiKey, *oracleTimeout)
	if client == nil {
		slog.Error("ANTHROPIC_API_KEY not set — the optimizer requires the policy oracle")
		os.Exit(1)
	}

	opt, err := optimize.NewOptimizer(optimize.Settings{
		Config:               cfg,
		OptimizedAgents:      optimized,
		Oracle:               &llm.PolicyOracle{Client: client},
		NumSamples:           *samples,
		Workers:              *workers,
		MaxIterations:        *maxIter,
		ImprovementThreshold: 0.01,
		Convergence: optimize.ConvergenceSettings{
			CvThreshold:     0.03,
			WindowSize:      5,
			RegretThreshold: 0.10,
			MaxIterations:   *maxIter,
			TrendAlpha:      0.05,
		},
	})
	if err != nil {
		slog.Error("failed to build optimizer", "error", err)
		os.Exit(1)
	}

	// Cancellable between iterations; the last completed iteration's
	// state survives.
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping after current iteration", "signal", sig)
		cancel()
	}()

	runID := uuid.NewString()
	slog.Info("optimization starting", "run_id", runID, "agents", optimized, "samples", *samples)

	outcome, err := opt.Run(ctx)
	if err != nil {
		slog.Error("optimization failed", "error", err)
		os.Exit(1)
	}

	slog.Info("optimization finished",
		"iterations", outcome.Iterations,
		"reason", outcome.ConvergenceReason,
	)
	for _, agentID := range optimized {
		slog.Info("agent outcome",
			"agent", agentID,
			"baseline_cost", outcome.BaselineCosts[agentID].String(),
			"final_mean_cost", outcome.FinalMeanCosts[agentID].String(),
		)
		if tree, ok := outcome.BestPolicies[agentID]; ok {
			if data, err := tree.Marshal(); err == nil {
				slog.Info("best policy", "agent", agentID, "policy", string(data))
			}
		}
	}

	if *dbPath != "" {
		db, err := persistence.Open(*dbPath)
		if err != nil {
			slog.Error("failed to open db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.SaveRunEvents(runID, outcome.Events); err != nil {
			slog.Error("failed to save run events", "error", err)
			os.Exit(1)
		}
		slog.Info("run audit trail saved", "db", *dbPath, "run_id", runID)
	}
}

func splitAgents(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
