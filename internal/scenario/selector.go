// Package scenario implements weighted scenario selection and the
// per-iteration chain context (variable extraction and substitution)
// carried between chained requests.
package scenario

import (
	"math/rand"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

// Selector draws a scenario index at random according to each scenario's
// configured weight, using Vose's alias method so a draw is O(1) instead of
// the O(n) cost of a cumulative-weight scan. Scenarios with a zero weight
// are chain-only: they never get drawn on their own and are instead reached
// through another scenario's DependsOn.
type Selector struct {
	scenarios []plan.Scenario
	prob      []float64
	alias     []int
	rng       *rand.Rand
}

// NewSelector builds the alias table for scenarios. seed makes the draw
// sequence reproducible across runs when the caller wants deterministic
// load shape (tests, bisecting a regression).
func NewSelector(scenarios []plan.Scenario, seed int64) *Selector {
	s := &Selector{
		scenarios: scenarios,
		rng:       rand.New(rand.NewSource(seed)),
	}
	s.buildAliasTable()
	return s
}

func (s *Selector) buildAliasTable() {
	n := len(s.scenarios)
	s.prob = make([]float64, n)
	s.alias = make([]int, n)
	if n == 0 {
		return
	}

	var total float64
	for _, sc := range s.scenarios {
		total += sc.Weight
	}
	if total <= 0 {
		// All-zero weights: fall back to a uniform table so Next still
		// returns something rather than always picking index 0.
		for i := range s.prob {
			s.prob[i] = 1.0
		}
		return
	}

	scaled := make([]float64, n)
	for i, sc := range s.scenarios {
		scaled[i] = sc.Weight / total * float64(n)
	}

	var small, large []int
	for i, p := range scaled {
		if p < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		g := large[len(large)-1]
		large = large[:len(large)-1]

		s.prob[l] = scaled[l]
		s.alias[l] = g

		scaled[g] = scaled[g] + scaled[l] - 1.0
		if scaled[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}

	for _, g := range large {
		s.prob[g] = 1.0
	}
	for _, l := range small {
		s.prob[l] = 1.0
	}
}

// Next draws one scenario index. Safe for concurrent callers only if each
// caller owns its own Selector instance (the rand.Rand underneath is not
// safe for concurrent use) — each VU should construct its own Selector from
// the same scenarios slice and a distinct per-VU seed derived from the
// plan's base seed.
func (s *Selector) Next() int {
	n := len(s.scenarios)
	if n == 0 {
		return -1
	}
	i := s.rng.Intn(n)
	if s.rng.Float64() < s.prob[i] {
		return i
	}
	return s.alias[i]
}
