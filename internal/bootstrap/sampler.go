package bootstrap

import (
	"fmt"

	"github.com/aerugo/simcash/internal/rng"
)

// Sampler generates bootstrap samples by resampling historical records
// with replacement and remapping their ticks onto a fresh timeline.
// Every sample draws from its own named sub-stream, so sample i is
// byte-identical across runs and independent of sample j.
type Sampler struct {
	masterSeed uint64
}

// NewSampler creates a sampler rooted at the master seed.
func NewSampler(masterSeed uint64) *Sampler {
	return &Sampler{masterSeed: masterSeed}
}

// GenerateSample builds sample sampleIdx for one agent. Outgoing records
// resample with replacement at the source count; incoming records
// resample only the settled ones, since unsettled arrivals never produced
// a liquidity beat.
func (s *Sampler) GenerateSample(agentID string, sampleIdx int, outgoing, incoming []TransactionRecord, totalTicks int64) Sample {
	stream := rng.New(s.masterSeed, "bootstrap", agentID, fmt.Sprintf("%d", sampleIdx))

	sample := Sample{
		AgentID:    agentID,
		SampleIdx:  sampleIdx,
		Seed:       sampleSeed(s.masterSeed, agentID, sampleIdx),
		TotalTicks: totalTicks,
	}

	sample.OutgoingTxns = resample(stream, outgoing, totalTicks, sampleIdx, false)

	var settledIncoming []TransactionRecord
	for _, rec := range incoming {
		if rec.Settled {
			settledIncoming = append(settledIncoming, rec)
		}
	}
	sample.IncomingSettlements = resample(stream, settledIncoming, totalTicks, sampleIdx, true)

	return sample
}

// GenerateSamples builds the first n samples for an agent.
func (s *Sampler) GenerateSamples(agentID string, n int, outgoing, incoming []TransactionRecord, totalTicks int64) []Sample {
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = s.GenerateSample(agentID, i, outgoing, incoming, totalTicks)
	}
	return samples
}

// sampleSeed derives the sandbox simulation seed for one sample.
func sampleSeed(masterSeed uint64, agentID string, sampleIdx int) uint64 {
	stream := rng.New(masterSeed, "bootstrap-seed", agentID, fmt.Sprintf("%d", sampleIdx))
	return uint64(stream.Int64Range(1, 1<<62))
}

func resample(stream *rng.Stream, records []TransactionRecord, totalTicks int64, sampleIdx int, incoming bool) []RemappedTx {
	if len(records) == 0 {
		return nil
	}
	out := make([]RemappedTx, len(records))
	for i := range records {
		src := records[stream.IntN(len(records))]

		arrival := stream.Int64Range(0, totalTicks-1)
		deadline := arrival + src.DeadlineOffset
		if deadline > totalTicks {
			deadline = totalTicks
		}

		tx := RemappedTx{
			TxID:         fmt.Sprintf("%s_s%d_%d", src.TxID, sampleIdx, i),
			SenderID:     src.SenderID,
			ReceiverID:   src.ReceiverID,
			Amount:       src.Amount,
			Priority:     src.Priority,
			ArrivalTick:  arrival,
			DeadlineTick: deadline,
			Settled:      src.Settled,
		}
		if incoming {
			settlement := arrival + src.SettlementOffset
			if settlement >= totalTicks {
				settlement = totalTicks - 1
			}
			tx.SettlementTick = settlement
		}
		out[i] = tx
	}
	return out
}
