package engine

import (
	"sort"
)

// queue2 is the central RTGS queue: transaction IDs ordered by
// (effective priority DESC, arrival_tick ASC, tx_id ASC). Effective
// priority is the stored priority plus any escalation boost; boosts are
// recomputed each tick and never persisted onto the transaction.
type queue2 struct {
	ids []string
}

func (q *queue2) size() int {
	return len(q.ids)
}

func (q *queue2) contains(txID string) bool {
	for _, id := range q.ids {
		if id == txID {
			return true
		}
	}
	return false
}

// insert places a transaction at its ordered position.
func (q *queue2) insert(txID string, key func(string) queue2Key) {
	k := key(txID)
	pos := sort.Search(len(q.ids), func(i int) bool {
		return k.less(key(q.ids[i]))
	})
	q.ids = append(q.ids, "")
	copy(q.ids[pos+1:], q.ids[pos:])
	q.ids[pos] = txID
}

// remove deletes a transaction if present.
func (q *queue2) remove(txID string) {
	for i, id := range q.ids {
		if id == txID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return
		}
	}
}

// resort re-establishes the ordering invariant after effective priorities
// change (escalation). The sort is stable on the full key, so equal keys
// cannot reorder.
func (q *queue2) resort(key func(string) queue2Key) {
	sort.SliceStable(q.ids, func(i, j int) bool {
		return key(q.ids[i]).less(key(q.ids[j]))
	})
}

// snapshot returns a copy of the current ordering.
func (q *queue2) snapshot() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

// queue2Key is the total ordering key for the RTGS queue.
type queue2Key struct {
	priority    int
	arrivalTick int64
	txID        string
}

// less orders by priority descending, then arrival ascending, then id
// ascending.
func (k queue2Key) less(other queue2Key) bool {
	if k.priority != other.priority {
		return k.priority > other.priority
	}
	if k.arrivalTick != other.arrivalTick {
		return k.arrivalTick < other.arrivalTick
	}
	return k.txID < other.txID
}
