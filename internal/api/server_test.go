package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerugo/simcash/internal/config"
	"github.com/aerugo/simcash/internal/engine"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Simulation: config.SimulationParams{TicksPerDay: 10, NumDays: 1, RngSeed: 1},
		Agents: []config.AgentConfig{
			{ID: "BANK_A", OpeningBalance: 100_000, Policy: config.PolicySpec{Type: "Fifo"}},
			{ID: "BANK_B", OpeningBalance: 50_000, Policy: config.PolicySpec{Type: "Fifo"}},
		},
		Costs: config.CostRates{},
	}
	orch, err := engine.New(cfg)
	require.NoError(t, err)

	_, err = orch.SubmitTransaction("BANK_A", "BANK_B", 20_000, 8, 5, false)
	require.NoError(t, err)
	orch.Tick()

	return &Server{Orch: orch}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["current_tick"])
	assert.Equal(t, float64(2), body["agents"])
}

func TestAgentsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/agents")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "BANK_A", body[0]["id"])
	assert.Equal(t, float64(80_000), body[0]["balance"])
}

func TestAgentEndpointUnknown(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/agents/NOBODY")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentCostsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/agents/BANK_A/costs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "liquidity")
	assert.Contains(t, body, "total")
}

func TestEventsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/events?from=0&to=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body)
}

func TestTransactionEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := get(t, srv, "/api/v1/transactions/tx-000001")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Settled", body["status"])

	rec = get(t, srv, "/api/v1/transactions/tx-999999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
