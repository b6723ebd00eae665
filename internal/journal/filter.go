package journal

// FilterForAgent returns the subset of events visible to one agent.
//
// An event is visible when the agent participates in it: as sender or
// receiver of an arrival or settlement, as the subject of a policy, cost,
// collateral or deadline event, as a side of a bilateral offset, or as a
// participant in a cycle settlement. Events whose only participants are
// other agents never pass the filter; this is the isolation boundary the
// optimizer's prompt construction depends on.
func FilterForAgent(agentID string, events []Event) []Event {
	var out []Event
	for _, e := range events {
		if eventInvolvesAgent(agentID, e) {
			out = append(out, e)
		}
	}
	return out
}

func eventInvolvesAgent(agentID string, e Event) bool {
	for _, key := range [...]string{
		"agent_id", "sender_id", "receiver_id", "sender", "receiver",
		"from_agent", "to_agent", "agent_a", "agent_b", "agent",
	} {
		if v, ok := e.Details[key]; ok {
			if s, ok := v.(string); ok && s == agentID {
				return true
			}
		}
	}
	for _, key := range [...]string{"agents", "participants"} {
		if v, ok := e.Details[key]; ok {
			switch list := v.(type) {
			case []string:
				for _, s := range list {
					if s == agentID {
						return true
					}
				}
			case []any:
				for _, item := range list {
					if s, ok := item.(string); ok && s == agentID {
						return true
					}
				}
			}
		}
	}
	return false
}
