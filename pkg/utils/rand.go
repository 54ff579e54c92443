package utils

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RandSource is a seeded random number generator. It is not safe for
// concurrent use; every parallel task owns its own source.
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a deterministic random source for the given seed
func NewRandSource(seed int64) *RandSource {
	s := uint64(seed)
	return &RandSource{
		rng: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
	}
}

// RandomSeed draws a non-negative 31-bit seed from the operating system
func RandomSeed() (int64, error) {
	var b [4]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint32(b[:]) >> 1), nil
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// IntN returns a random int in [0, n)
func (r *RandSource) IntN(n int) int {
	return r.rng.IntN(n)
}

// Sign returns -1 or +1 with equal probability
func (r *RandSource) Sign() float64 {
	if r.rng.IntN(2) == 0 {
		return -1
	}
	return 1
}

// Perm returns a random permutation of [0, n)
func (r *RandSource) Perm(n int) []int {
	return r.rng.Perm(n)
}

// Resample returns n indices drawn with replacement from [0, n)
func (r *RandSource) Resample(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = r.rng.IntN(n)
	}
	return idx
}
