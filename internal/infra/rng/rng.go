// Package rng provides deterministic random streams derived from entity IDs.
// Every probabilistic draw in the engine (delays, success rolls, discounts,
// offers, trade-in factors) comes off a stream seeded by the owning entity's
// UUID plus a purpose label, so a replayed request reproduces the exact same
// outcome on any host.
package rng

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Stream returns a random stream derived from id, label, and attempt.
// Same inputs always produce identical draws; bump attempt for re-rolls.
func Stream(id uuid.UUID, label string, attempt int) *rand.Rand {
	return rand.New(rand.NewSource(Seed(id, label, attempt)))
}

// Seed folds id, label, and attempt into a single int64 via FNV-1a.
func Seed(id uuid.UUID, label string, attempt int) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	h.Write([]byte(label))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(attempt))
	h.Write(buf[:])
	return int64(h.Sum64())
}

// Interactive returns a time-seeded stream for immediate-quote contexts
// where reproducibility is not required.
func Interactive() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Uniform draws a float64 from [lo, hi) on r.
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// IntBetween draws an int from [lo, hi] inclusive on r.
func IntBetween(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}

// Chance reports a success roll against probability p on r.
func Chance(r *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float64() < p
}
