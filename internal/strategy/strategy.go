// Package strategy chooses the content mode for each post from a declarative
// weight table.
package strategy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banabets/else/internal/model"
)

const weightTolerance = 1e-9

// Random is the injectable source behind every random decision of a cycle.
// *rand.Rand satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// NewRandom returns a seeded source. Seed 0 seeds from the clock.
func NewRandom(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Chance reports true with probability p.
func Chance(rng Random, p float64) bool {
	return rng.Float64() < p
}

type Weighted struct {
	Strategy model.Strategy
	Weight   float64
}

var DefaultTable = []Weighted{
	{Strategy: model.StrategyQuestion, Weight: 0.25},
	{Strategy: model.StrategyHotTake, Weight: 0.20},
	{Strategy: model.StrategyThread, Weight: 0.20},
	{Strategy: model.StrategyNumberedObservation, Weight: 0.15},
	{Strategy: model.StrategyRegularThought, Weight: 0.20},
}

type Selector struct {
	table      []Weighted
	cumulative []float64
}

// NewSelector validates the table: known, distinct strategies with
// non-negative weights summing to 1.
func NewSelector(table []Weighted) (*Selector, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("strategy table is empty")
	}

	seen := make(map[model.Strategy]struct{}, len(table))
	cumulative := make([]float64, len(table))
	sum := 0.0
	for i, w := range table {
		if !w.Strategy.IsValid() {
			return nil, fmt.Errorf("unknown strategy %q", w.Strategy)
		}
		if _, dup := seen[w.Strategy]; dup {
			return nil, fmt.Errorf("strategy %q listed twice", w.Strategy)
		}
		seen[w.Strategy] = struct{}{}

		if w.Weight < 0 || math.IsNaN(w.Weight) {
			return nil, fmt.Errorf("strategy %q has invalid weight %v", w.Strategy, w.Weight)
		}
		sum += w.Weight
		cumulative[i] = sum
	}

	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("strategy weights sum to %v, want 1", sum)
	}

	return &Selector{
		table:      append([]Weighted(nil), table...),
		cumulative: cumulative,
	}, nil
}

// Select maps a draw in [0,1) onto the cumulative weight ranges. Draws outside
// the interval are clamped; the floating-point tail maps to the last entry.
func (s *Selector) Select(draw float64) model.Strategy {
	if draw < 0 || math.IsNaN(draw) {
		draw = 0
	}
	for i, upper := range s.cumulative {
		if draw < upper && s.table[i].Weight > 0 {
			return s.table[i].Strategy
		}
	}
	for i := len(s.table) - 1; i >= 0; i-- {
		if s.table[i].Weight > 0 {
			return s.table[i].Strategy
		}
	}
	return s.table[len(s.table)-1].Strategy
}

func (s *Selector) Pick(rng Random) model.Strategy {
	return s.Select(rng.Float64())
}

// Weight returns the configured weight of st, 0 when absent.
func (s *Selector) Weight(st model.Strategy) float64 {
	for _, w := range s.table {
		if w.Strategy == st {
			return w.Weight
		}
	}
	return 0
}

func (s *Selector) Table() []Weighted {
	return append([]Weighted(nil), s.table...)
}
