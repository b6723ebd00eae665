// Package api exposes a read-only HTTP inspection surface over a
// finished or paused simulation: status, agents, queues, costs, and the
// event journal. The API never mutates engine state.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aerugo/simcash/internal/engine"
)

// Server serves simulation state. The orchestrator must not be ticking
// concurrently; serve between ticks or after the run finishes.
type Server struct {
	Orch *engine.Orchestrator
	Port int
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/agents", s.handleAgents)
		r.Get("/agents/{agentID}", s.handleAgent)
		r.Get("/agents/{agentID}/costs", s.handleAgentCosts)
		r.Get("/agents/{agentID}/queue", s.handleAgentQueue)
		r.Get("/queue2", s.handleQueue2)
		r.Get("/events", s.handleEvents)
		r.Get("/transactions/{txID}", s.handleTransaction)
		r.Get("/transactions/near-deadline", s.handleNearDeadline)
	})

	return r
}

// Start runs the HTTP server in a background goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	go func() {
		slog.Info("api server listening", "addr", addr)
		if err := http.ListenAndServe(addr, s.Router()); err != nil {
			slog.Error("api server stopped", "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current_tick": s.Orch.CurrentTick(),
		"current_day":  s.Orch.CurrentDay(),
		"total_ticks":  s.Orch.TotalTicks(),
		"agents":       len(s.Orch.AgentIDs()),
		"queue2_size":  s.Orch.Queue2Size(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		ID          string `json:"id"`
		Balance     int64  `json:"balance"`
		CreditLimit int64  `json:"credit_limit"`
		Queue1Size  int    `json:"queue1_size"`
	}
	var out []agentSummary
	for _, id := range s.Orch.AgentIDs() {
		balance, _ := s.Orch.AgentBalance(id)
		credit, _ := s.Orch.AgentCreditLimit(id)
		out = append(out, agentSummary{
			ID:          id,
			Balance:     int64(balance),
			CreditLimit: int64(credit),
			Queue1Size:  s.Orch.Queue1Size(id),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	balance, ok := s.Orch.AgentBalance(agentID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown agent"})
		return
	}
	credit, _ := s.Orch.AgentCreditLimit(agentID)
	collateral, _ := s.Orch.AgentCollateralPosted(agentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                agentID,
		"balance":           int64(balance),
		"credit_limit":      int64(credit),
		"posted_collateral": int64(collateral),
		"queue1_size":       s.Orch.Queue1Size(agentID),
	})
}

func (s *Server) handleAgentCosts(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	costs, ok := s.Orch.AgentAccumulatedCosts(agentID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown agent"})
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

func (s *Server) handleAgentQueue(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	writeJSON(w, http.StatusOK, s.Orch.Queue1Contents(agentID))
}

func (s *Server) handleQueue2(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Orch.Queue2Contents())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from := queryInt64(r, "from", 0)
	to := queryInt64(r, "to", s.Orch.CurrentTick())

	var out []any
	for tick := from; tick <= to; tick++ {
		for _, e := range s.Orch.TickEvents(tick) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	view := s.Orch.TransactionDetails(txID)
	if view == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transaction"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNearDeadline(w http.ResponseWriter, r *http.Request) {
	within := queryInt64(r, "within", 10)
	writeJSON(w, http.StatusOK, s.Orch.TransactionsNearDeadline(within))
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
