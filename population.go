package msprime

import (
	"math"

	"github.com/pkg/errors"
)

// population holds the demographic state of one deme together with
// the index of lineages currently in it. The effective size at time t
// is initialSize * exp(-growthRate * (t - lastChange)); lastChange is
// updated whenever a demographic event touches the parameters.
type population struct {
	initialSize float64
	growthRate  float64
	lastChange  float64
	index       *populationIndex
}

// sizeAt returns the effective population size at time t.
func (p *population) sizeAt(t float64) float64 {
	if p.growthRate == 0 {
		return p.initialSize
	}
	return p.initialSize * math.Exp(-p.growthRate*(t-p.lastChange))
}

// resetParameters rebases the population at time t, optionally
// replacing the initial size and growth rate. When only the growth
// rate changes, the size at t becomes the new initial size so that
// the trajectory stays continuous.
func (p *population) resetParameters(t float64, initialSize, growthRate *float64) {
	current := p.sizeAt(t)
	if initialSize != nil {
		p.initialSize = *initialSize
	} else {
		p.initialSize = current
	}
	if growthRate != nil {
		p.growthRate = *growthRate
	}
	p.lastChange = t
}

// validateMigrationMatrix checks that the matrix is square with the
// given dimension, has a zero diagonal and no negative entries.
func validateMigrationMatrix(m [][]float64, d int) error {
	if len(m) != d {
		return errors.Errorf(InvalidIntParameterError, "migration matrix dimension", len(m), "must match the number of populations")
	}
	for i, row := range m {
		if len(row) != d {
			return errors.Errorf(InvalidIntParameterError, "migration matrix row length", len(row), "must match the number of populations")
		}
		for j, rate := range row {
			if i == j && rate != 0 {
				return errors.Errorf(InvalidFloatParameterError, "migration matrix diagonal entry", rate, "diagonal must be zero")
			}
			if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
				return errors.Errorf(InvalidFloatParameterError, "migration rate", rate, "must be finite and non-negative")
			}
		}
	}
	return nil
}

// copyMatrix returns a deep copy of a migration matrix.
func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		copy(out[i], row)
	}
	return out
}
