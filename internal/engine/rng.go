package engine

import (
	"math/rand"
	"time"
)

// NewRNG returns a generator seeded from the wall clock.
func NewRNG() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }

// NewSeededRNG is used by tests and the bench CLI for reproducible runs.
func NewSeededRNG(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

// Jitter returns a duration uniformly drawn from [min, max).
func Jitter(r *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.Int63n(int64(max-min)))
}
