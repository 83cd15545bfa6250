package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/seabattle/internal/ai"
)

func TestBenchOrdersDifficulties(t *testing.T) {
	mean := map[ai.Difficulty]float64{}
	for _, d := range []ai.Difficulty{ai.Easy, ai.Medium, ai.Hard} {
		r, err := bench(context.Background(), d, 60, 42, false, zerolog.Nop())
		require.NoError(t, err)
		require.Len(t, r.shots, 60)
		lo, hi, m, _ := r.summary()
		assert.GreaterOrEqual(t, lo, 20)
		assert.LessOrEqual(t, hi, 100)
		mean[d] = m
	}
	assert.Less(t, mean[ai.Medium], mean[ai.Easy])
	assert.Less(t, mean[ai.Hard], mean[ai.Easy])
}

func TestSummary(t *testing.T) {
	lo, hi, mean, median := result{shots: []int{40, 20, 30, 50}}.summary()
	assert.Equal(t, 20, lo)
	assert.Equal(t, 50, hi)
	assert.InDelta(t, 35.0, mean, 1e-9)
	assert.InDelta(t, 35.0, median, 1e-9)
}
