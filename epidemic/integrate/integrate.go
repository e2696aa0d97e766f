// Package integrate implements the per-step local update: gather
// neighbor infection pressure, apply the rate law with forward Euler,
// clamp and renormalize, and emit one summary row.
package integrate

import (
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
	"github.com/epidemic-sim/epidemic-sim/epidemic/model"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
)

// Row is one step's local summary, appended to the result log as
// [time, S_avg, I_avg, R_avg] means over local cells.
type Row struct {
	Time, SAvg, IAvg, RAvg float64
}

// Grid is a rank's owned-cell state, double-buffered: reads come from
// "current", writes go to "next", and the two are swapped at the end of
// each step. Ghost state is never buffered here — it is supplied fresh
// by the caller each call to Step.
type Grid struct {
	cells []int
	current map[int]cell.State
	next map[int]cell.State
	local topology.LocalTopology
	params model.Params
	anomalies int
}

// New builds a Grid over the given owned cell ids, seeded with initial,
// using local topology to classify each cell's neighbors.
func New(cells []int, local topology.LocalTopology, initial map[int]cell.State, params model.Params) *Grid {
	current := make(map[int]cell.State, len(cells))
	for _, id := range cells {
		current[id] = initial[id]
	}
	return &Grid{
		cells: cells,
		current: current,
		next: make(map[int]cell.State, len(cells)),
		local: local,
		params: params,
	}
}

// States returns the grid's current (post-swap) cell states, keyed by
// id — the payload the halo exchange sends to peers next step.
func (g *Grid) States() map[int]cell.State {
	return g.current
}

// Anomalies reports how many cell-steps on this rank still failed the
// conservation or non-negativity check after the forward-Euler update
// had been clamped and renormalized (in practice a state whose clamped
// mass was zero, which Step reverts to the previous state). A clamp and
// renormalize that succeeds is not counted.
func (g *Grid) Anomalies() int {
	return g.anomalies
}

// Step advances the grid by one step index using the supplied ghost
// table (steps 1-6), appends nothing itself — it returns the
// Row for the caller's result log — and swaps the double buffer before
// returning.
func (g *Grid) Step(stepIndex int, ghosts map[int]cell.State) Row {
	var sumS, sumI, sumR float64
	for _, id := range g.cells {
		st := g.current[id]
		iMean := meanOrZero(g.neighborIValues(id, ghosts))
		iEff := g.params.EffectiveInfection(st.I, iMean)
		nextS, nextI, nextR := g.params.Step(st.S, st.I, st.R, iEff)
		next := cell.New(id, nextS, nextI, nextR)
		if !next.Conserved() || !next.NonNegative() {
			g.anomalies++
			reverted := !applyClamp(&next)
			if reverted {
				logrus.Warnf("cell %d step %d: renormalization failed (zero mass), reverting to previous state", id, stepIndex)
				next = st
			} else {
				logrus.Warnf("cell %d step %d: clamped and renormalized out-of-range state", id, stepIndex)
			}
		}
		g.next[id] = next
		sumS += next.S
		sumI += next.I
		sumR += next.R
	}

	g.current, g.next = g.next, g.current

	n := float64(len(g.cells))
	if n == 0 {
		return Row{Time: float64(stepIndex) * g.params.DT}
	}
	return Row{
		Time: float64(stepIndex) * g.params.DT,
		SAvg: sumS / n,
		IAvg: sumI / n,
		RAvg: sumR / n,
	}
}

// applyClamp runs ClampAndRenormalize and reports whether it succeeded;
// a false result means the state's mass was zero and the caller must
// revert to the previous step's state instead.
func applyClamp(st *cell.State) bool {
	return st.ClampAndRenormalize()
}

// neighborIValues gathers c's neighbors' I-values: interior neighbors
// come from this rank's own (pre-swap) grid, cross-block neighbors from
// the freshly exchanged ghost table.
func (g *Grid) neighborIValues(id int, ghosts map[int]cell.State) []float64 {
	var vals []float64
	for _, n := range g.local.Interior[id] {
		vals = append(vals, g.current[n].I)
	}
	for _, n := range g.local.Ghost[id] {
		if st, ok := ghosts[n]; ok {
			vals = append(vals, st.I)
		}
	}
	return vals
}

// meanOrZero is gonum/stat.Mean with a "0 if no neighbors" edge case,
// since stat.Mean of an empty slice is not well-defined.
func meanOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}
