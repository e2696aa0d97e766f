// Package testutil holds the named end-to-end scenarios and
// shared assertion helpers, so integration tests across the epidemic/...
// packages don't each hand-roll the same fixtures.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
)

// Scenario is one of this package's fixed end-to-end fixtures.
type Scenario struct {
	Name            string
	Rows, Cols      int
	NumRanks        int
	BlockSize       int
	Beta, Gamma, DT float64
	Steps           int
	W               float64
	Initial         func(id int) (s, i, r float64)
}

func constantSeed(s, i, r float64) func(int) (float64, float64, float64) {
	return func(int) (float64, float64, float64) { return s, i, r }
}

// singleInfectedSeed seeds cell infectedID at (1-infectedFrac, infectedFrac,
// 0) and every other cell disease-free.
func singleInfectedSeed(infectedID int, infectedFrac float64) func(int) (float64, float64, float64) {
	return func(id int) (float64, float64, float64) {
		if id == infectedID {
			return 1 - infectedFrac, infectedFrac, 0
		}
		return 1, 0, 0
	}
}

// Scenarios returns the named fixtures, in the order they're
// listed there.
func Scenarios() []Scenario {
	return []Scenario{
		{
			// 4x4 grid, every cell disease-free, P=2: every summary row must
			// stay at (1,0,0) and the assembled result must carry exactly
			// 2*10 = 20 rows.
			Name: "trivial disease-free", Rows: 4, Cols: 4, NumRanks: 2, BlockSize: 8,
			Beta: 0.3, Gamma: 0.1, DT: 0.1, Steps: 10, W: 0.5,
			Initial: constantSeed(1, 0, 0),
		},
		{
			// 4x4 grid, cell 5 seeded at (0.99,0.01,0), P=4, N=50: I_avg must
			// rise for at least the first 5 steps then fall for the last 10,
			// with a strictly positive final R_avg.
			Name: "single infected seed", Rows: 4, Cols: 4, NumRanks: 4, BlockSize: 4,
			Beta: 0.5, Gamma: 0.1, DT: 0.1, Steps: 50, W: 0.5,
			Initial: singleInfectedSeed(5, 0.01),
		},
		{
			// Base parameters for the single-process equivalence property:
			// the same initial condition and rate law run at P=1 and at
			// P=4 must produce identical per-cell trajectories once
			// reordered by cell id.
			Name: "single-process equivalence", Rows: 4, Cols: 4, NumRanks: 1, BlockSize: 16,
			Beta: 0.4, Gamma: 0.15, DT: 0.05, Steps: 20, W: 0.5,
			Initial: singleInfectedSeed(5, 0.1),
		},
		{
			// 8x8 grid, B=4, P=3: 16 blocks owned 6/5/5, so rank 1's
			// blocks border both rank 0's and rank 2's and rank 1 imports
			// ghost cells from two foreign ranks.
			Name: "boundary block", Rows: 8, Cols: 8, NumRanks: 3, BlockSize: 4,
			Beta: 0.3, Gamma: 0.1, DT: 0.1, Steps: 5, W: 0.5,
			Initial: singleInfectedSeed(0, 0.1),
		},
		{
			// 2x2 grid, B=2, P=2: rank 0 owns {0,1}, rank 1 owns {2,3},
			// exactly 2 triples cross each direction every step.
			Name: "symmetric two-peer exchange", Rows: 2, Cols: 2, NumRanks: 2, BlockSize: 2,
			Beta: 0.3, Gamma: 0.1, DT: 0.1, Steps: 5, W: 0.5,
			Initial: singleInfectedSeed(0, 0.1),
		},
		{
			// C=4, P=8: four ranks own a block each, four own nothing.
			Name: "empty rank", Rows: 2, Cols: 2, NumRanks: 8, BlockSize: 1,
			Beta: 0.3, Gamma: 0.1, DT: 0.1, Steps: 3, W: 0.5,
			Initial: singleInfectedSeed(0, 0.1),
		},
	}
}

// EquivalenceRankCounts is the P=1/P=4 pair the single-process
// equivalence scenario must produce identical per-cell trajectories
// under: any initial condition, run with the same rate-law parameters
// at each rank count, must agree once rows are reordered by cell id.
var EquivalenceRankCounts = [2]int{1, 4}

// AssertConserved fails t if any state's mass deviates from 1 beyond
// cell.Tolerance, or has a negative component.
func AssertConserved(t *testing.T, states map[int]cell.State) {
	t.Helper()
	for id, st := range states {
		require.Truef(t, st.Conserved(), "cell %d not conserved: %+v", id, st)
		require.Truef(t, st.NonNegative(), "cell %d has a negative component: %+v", id, st)
	}
}
