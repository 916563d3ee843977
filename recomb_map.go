package msprime

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// RecombinationMap is a piecewise-constant map from physical genome
// position to cumulative genetic distance. positions has k+1 entries
// starting at 0 and ending at the sequence length; rates gives the
// per-base per-generation crossover rate within each of the k
// intervals.
type RecombinationMap struct {
	positions  []float64
	rates      []float64
	cumulative []float64 // genetic distance at each position
}

// NewRecombinationMap validates the breakpoints and rates and builds
// the cumulative lookup used by both directions of the map.
func NewRecombinationMap(positions, rates []float64) (*RecombinationMap, error) {
	if len(positions) < 2 {
		return nil, errors.New("recombination map needs at least two positions")
	}
	if len(rates) != len(positions)-1 && len(rates) != len(positions) {
		return nil, errors.Errorf("recombination map has %d positions but %d rates", len(positions), len(rates))
	}
	if positions[0] != 0 {
		return nil, errors.Errorf(InvalidFloatParameterError, "first position", positions[0], "must be zero")
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			return nil, errors.Errorf(InvalidFloatParameterError, "position", positions[i], "positions must be strictly increasing")
		}
	}
	for i := 0; i < len(positions)-1; i++ {
		if rates[i] < 0 || math.IsInf(rates[i], 0) || math.IsNaN(rates[i]) {
			return nil, errors.Errorf(InvalidFloatParameterError, "rate", rates[i], "rates must be finite and non-negative")
		}
	}
	m := new(RecombinationMap)
	m.positions = make([]float64, len(positions))
	copy(m.positions, positions)
	m.rates = make([]float64, len(positions)-1)
	copy(m.rates, rates)
	m.cumulative = make([]float64, len(positions))
	for i := 1; i < len(positions); i++ {
		m.cumulative[i] = m.cumulative[i-1] + m.rates[i-1]*(positions[i]-positions[i-1])
	}
	return m, nil
}

// NewUniformRecombinationMap builds a single-interval map with a flat
// rate over [0, length).
func NewUniformRecombinationMap(rate, length float64) (*RecombinationMap, error) {
	return NewRecombinationMap([]float64{0, length}, []float64{rate})
}

// SequenceLength returns the physical length covered by the map.
func (m *RecombinationMap) SequenceLength() float64 {
	return m.positions[len(m.positions)-1]
}

// TotalGeneticLength returns the genetic distance spanned by the
// whole map.
func (m *RecombinationMap) TotalGeneticLength() float64 {
	return m.cumulative[len(m.cumulative)-1]
}

// PhysicalToGenetic converts a physical coordinate to cumulative
// genetic distance. Monotone non-decreasing; x is clamped to the map.
func (m *RecombinationMap) PhysicalToGenetic(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= m.SequenceLength() {
		return m.TotalGeneticLength()
	}
	// Index of the bin containing x.
	i := sort.SearchFloat64s(m.positions, x)
	if i < len(m.positions) && m.positions[i] == x {
		return m.cumulative[i]
	}
	i--
	return m.cumulative[i] + m.rates[i]*(x-m.positions[i])
}

// GeneticToPhysical converts a cumulative genetic distance back to a
// physical coordinate by binary search over the cumulative bin
// boundaries with linear interpolation inside the bin. Within a
// zero-rate bin the left edge is returned.
func (m *RecombinationMap) GeneticToPhysical(g float64) float64 {
	if g <= 0 {
		return 0
	}
	total := m.TotalGeneticLength()
	if g >= total {
		return m.SequenceLength()
	}
	i := sort.SearchFloat64s(m.cumulative, g)
	if i < len(m.cumulative) && m.cumulative[i] == g {
		return m.positions[i]
	}
	i--
	if m.rates[i] == 0 {
		return m.positions[i]
	}
	return m.positions[i] + (g-m.cumulative[i])/m.rates[i]
}
