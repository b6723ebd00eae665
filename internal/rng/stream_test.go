package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameNameSameSequence(t *testing.T) {
	a := New(42, "BANK_A", "arrivals")
	b := New(42, "BANK_A", "arrivals")
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestDifferentNamesDiverge(t *testing.T) {
	a := New(42, "BANK_A", "arrivals")
	b := New(42, "BANK_B", "arrivals")
	same := true
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			same = false
		}
	}
	assert.False(t, same, "distinct stream names must produce distinct sequences")
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(42, "x")
	b := New(43, "x")
	same := true
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			same = false
		}
	}
	assert.False(t, same)
}

func TestInt64RangeBounds(t *testing.T) {
	s := New(7, "range")
	for i := 0; i < 1000; i++ {
		v := s.Int64Range(3, 9)
		require.GreaterOrEqual(t, v, int64(3))
		require.LessOrEqual(t, v, int64(9))
	}
	assert.Equal(t, int64(5), s.Int64Range(5, 5))
}

func TestPoisson(t *testing.T) {
	s := New(7, "poisson")
	assert.Equal(t, 0, s.Poisson(0))
	assert.Equal(t, 0, s.Poisson(-1))

	total := 0
	n := 10_000
	for i := 0; i < n; i++ {
		total += s.Poisson(3.0)
	}
	mean := float64(total) / float64(n)
	assert.InDelta(t, 3.0, mean, 0.2)
}

func TestWeightedChoice(t *testing.T) {
	s := New(7, "weights")
	assert.Equal(t, -1, s.WeightedChoice(nil))
	assert.Equal(t, -1, s.WeightedChoice([]float64{0, 0}))

	// A single positive weight always wins.
	for i := 0; i < 50; i++ {
		assert.Equal(t, 1, s.WeightedChoice([]float64{0, 2.5, 0}))
	}
}
