package htm

import "math/rand"

// SplitRNG is the layer's splittable random stream, per the Design Note
// "RNG as a splittable resource". Every stochastic decision splits a fresh
// sub-stream via Split(); the parent stream itself is never consumed
// directly for a decision, only to seed children. This makes determinism
// independent of the order in which sites happen to draw from it.
//
// Grounded on the teacher's plain math/rand usage (segment.go,
// utils/utils.go:RandFloatRange) -- no splittable-stream library appears
// anywhere in the retrieval pack, so this stays on the standard library
// (see DESIGN.md).
type SplitRNG struct {
	parent *rand.Rand
}

// NewSplitRNG seeds the root stream. Reseeding happens only here, at
// construction.
func NewSplitRNG(seed int64) *SplitRNG {
	return &SplitRNG{parent: rand.New(rand.NewSource(seed))}
}

// Split draws one int64 from the parent stream and uses it to seed an
// independent child stream, advancing the parent by exactly one draw.
func (s *SplitRNG) Split() *rand.Rand {
	childSeed := s.parent.Int63()
	return rand.New(rand.NewSource(childSeed))
}
