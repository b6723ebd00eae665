package bootstrap

import (
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/money"
)

// CollectHistory rebuilds one agent's transaction history from a base
// run's event stream: outgoing records where the agent is sender and
// incoming records where it is receiver. Settlement offsets come from the
// four settlement event types; the journal is the only input, so history
// collection inherits the replay guarantee.
func CollectHistory(agentID string, events []journal.Event) (outgoing, incoming []TransactionRecord) {
	byTxID := make(map[string]*TransactionRecord)
	var order []string

	markSettled := func(txID string, tick int64) {
		rec, ok := byTxID[txID]
		if !ok || rec.Settled {
			return
		}
		rec.Settled = true
		rec.SettlementOffset = tick - rec.OriginalArrival
	}

	for _, e := range events {
		switch e.Type {
		case journal.EventArrival:
			txID, _ := e.Details["tx_id"].(string)
			sender, _ := e.Details["sender_id"].(string)
			receiver, _ := e.Details["receiver_id"].(string)
			if txID == "" || (sender != agentID && receiver != agentID) {
				continue
			}
			deadline := detailInt64(e.Details, "deadline_tick")
			byTxID[txID] = &TransactionRecord{
				TxID:             txID,
				SenderID:         sender,
				ReceiverID:       receiver,
				Amount:           money.Cents(detailInt64(e.Details, "amount")),
				Priority:         int(detailInt64(e.Details, "priority")),
				OriginalArrival:  e.Tick,
				DeadlineOffset:   deadline - e.Tick,
				SettlementOffset: -1,
			}
			order = append(order, txID)

		case journal.EventRtgsImmediateSettlement, journal.EventQueue2LiquidityRelease:
			txID, _ := e.Details["tx_id"].(string)
			// The final settlement event for a transaction leaves
			// nothing remaining; partial settlements are not beats.
			if detailInt64(e.Details, "remaining") == 0 {
				markSettled(txID, e.Tick)
			}

		case journal.EventLsmBilateralOffset, journal.EventLsmCycleSettlement:
			for _, txID := range detailStrings(e.Details, "settled_tx_ids") {
				markSettled(txID, e.Tick)
			}
		}
	}

	for _, txID := range order {
		rec := *byTxID[txID]
		if rec.SenderID == agentID {
			outgoing = append(outgoing, rec)
		} else {
			incoming = append(incoming, rec)
		}
	}
	return outgoing, incoming
}

func detailInt64(details map[string]any, key string) int64 {
	switch v := details[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func detailStrings(details map[string]any, key string) []string {
	switch v := details[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
