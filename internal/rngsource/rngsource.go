// Package rngsource is a stochastic initial-conditions source: it
// implements the same injected row -> (S,I,R) mapping csvsource does,
// but draws each cell's state from a model.PartitionedRNG instead of
// reading it from a file. It exists so a run can be reproduced from a
// single seed rather than shipping a CSV.
package rngsource

import (
	"fmt"

	"github.com/epidemic-sim/epidemic-sim/epidemic/model"
)

// Source answers RowCount/Row from a PartitionedRNG: NumCells bounds the
// valid id range the same way a CSV's row count would, and every Row
// call re-derives its cell's state deterministically rather than
// caching a precomputed table.
type Source struct {
	RNG          model.PartitionedRNG
	NumCells     int
	InfectedProb float64 // P(cell starts infected)
	InfectedFrac float64 // infected fraction when it does
}

// New builds a Source over numCells cells, each seeded independently
// from rng.
func New(rng model.PartitionedRNG, numCells int, infectedProb, infectedFrac float64) *Source {
	return &Source{RNG: rng, NumCells: numCells, InfectedProb: infectedProb, InfectedFrac: infectedFrac}
}

// RowCount implements distribute.InitialConditionSource.
func (s *Source) RowCount() int { return s.NumCells }

// Row implements distribute.InitialConditionSource.
func (s *Source) Row(id int) (sVal, iVal, rVal float64, err error) {
	if id < 0 || id >= s.NumCells {
		return 0, 0, 0, fmt.Errorf("rngsource: row %d out of range [0,%d)", id, s.NumCells)
	}
	sVal, iVal, rVal = s.RNG.StateFor(id, s.InfectedProb, s.InfectedFrac)
	return sVal, iVal, rVal, nil
}
