package journal

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrderPreserved(t *testing.T) {
	j := New()
	for i := 0; i < 5; i++ {
		j.Record(Event{Tick: int64(i % 2), Type: "Arrival", Details: map[string]any{"seq": i}})
	}

	all := j.AllEvents()
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, i, e.Details["seq"])
	}

	tick0 := j.TickEvents(0)
	require.Len(t, tick0, 3)
	assert.Equal(t, 0, tick0[0].Details["seq"])
	assert.Equal(t, 2, tick0[1].Details["seq"])
	assert.Equal(t, 4, tick0[2].Details["seq"])
}

func TestTickEventsEmptyForUnknownTick(t *testing.T) {
	j := New()
	assert.Empty(t, j.TickEvents(99))
}

func TestFilterForAgentParticipants(t *testing.T) {
	events := []Event{
		{Tick: 1, Type: "Arrival", Details: map[string]any{"sender_id": "BANK_A", "receiver_id": "BANK_B"}},
		{Tick: 1, Type: "Arrival", Details: map[string]any{"sender_id": "BANK_B", "receiver_id": "BANK_C"}},
		{Tick: 2, Type: "RtgsImmediateSettlement", Details: map[string]any{"sender": "BANK_C", "receiver": "BANK_A"}},
		{Tick: 2, Type: "CostAccrual", Details: map[string]any{"agent_id": "BANK_A", "cost": int64(5)}},
		{Tick: 3, Type: "LsmCycleSettlement", Details: map[string]any{"agents": []string{"BANK_B", "BANK_C", "BANK_D"}}},
		{Tick: 3, Type: "LsmCycleSettlement", Details: map[string]any{"agents": []string{"BANK_A", "BANK_B", "BANK_C"}}},
	}

	filtered := FilterForAgent("BANK_A", events)
	require.Len(t, filtered, 4)
	assert.Equal(t, "Arrival", filtered[0].Type)
	assert.Equal(t, "RtgsImmediateSettlement", filtered[1].Type)
	assert.Equal(t, "CostAccrual", filtered[2].Type)
	assert.Equal(t, "LsmCycleSettlement", filtered[3].Type)
}

// An event whose only participants are other agents must never leak into
// a filtered view, not even its amount.
func TestFilterHidesThirdPartyAmounts(t *testing.T) {
	events := []Event{
		{Tick: 5, Type: "Arrival", Details: map[string]any{
			"sender_id":   "BANK_C",
			"receiver_id": "BANK_D",
			"amount":      int64(99_999),
		}},
	}

	filtered := FilterForAgent("BANK_A", events)
	assert.Empty(t, filtered)

	rendered := fmt.Sprintf("%v", filtered)
	assert.False(t, strings.Contains(rendered, "99999"))
}

func TestFilterAnySliceParticipants(t *testing.T) {
	// Details loaded from JSON carry []any instead of []string.
	events := []Event{
		{Tick: 1, Type: "LsmCycleSettlement", Details: map[string]any{
			"agents": []any{"BANK_A", "BANK_B"},
		}},
	}
	assert.Len(t, FilterForAgent("BANK_A", events), 1)
	assert.Empty(t, FilterForAgent("BANK_Z", events))
}
