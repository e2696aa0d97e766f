package integrate

import (
	"testing"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
	"github.com/epidemic-sim/epidemic-sim/epidemic/model"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
)

func TestStepDiseaseFreeSingleCellStaysDiseaseFree(t *testing.T) {
	params, err := model.NewParams(0.3, 0.1, 0.1, 10, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	local := topology.LocalTopology{Interior: map[int][]int{}, Ghost: map[int][]int{}, GhostOwner: map[int]int{}}
	initial := map[int]cell.State{0: cell.New(0, 1, 0, 0)}
	g := New([]int{0}, local, initial, params)

	for step := 0; step < 10; step++ {
		row := g.Step(step, nil)
		if row.SAvg != 1 || row.IAvg != 0 || row.RAvg != 0 {
			t.Fatalf("step %d: expected disease-free equilibrium, got %+v", step, row)
		}
	}
}

func TestStepBlendsInteriorAndGhostNeighbors(t *testing.T) {
	params, err := model.NewParams(0.4, 0.1, 0.1, 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	local := topology.LocalTopology{
		Interior: map[int][]int{0: {1}},
		Ghost: map[int][]int{0: {2}},
		GhostOwner: map[int]int{2: 1},
	}
	initial := map[int]cell.State{
		0: cell.New(0, 0.9, 0.1, 0),
		1: cell.New(1, 0.5, 0.5, 0),
	}
	g := New([]int{0, 1}, local, initial, params)
	ghosts := map[int]cell.State{2: cell.New(2, 0.0, 1.0, 0.0)}

	row := g.Step(0, ghosts)
	if row.SAvg <= 0 || row.SAvg >= 1 {
		t.Fatalf("expected a plausible S_avg in (0,1), got %v", row.SAvg)
	}

	states := g.States()
	for id, st := range states {
		if !st.Conserved() {
			t.Fatalf("cell %d not conserved after step: %+v", id, st)
		}
	}
}

func TestStepClampsOutOfRangeState(t *testing.T) {
	// beta*dt*I_eff > 1 drives S negative in one Euler step, forcing the
	// clamp-and-renormalize path.
	params, err := model.NewParams(5, 0.1, 1.0, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	local := topology.LocalTopology{Interior: map[int][]int{}, Ghost: map[int][]int{}, GhostOwner: map[int]int{}}
	initial := map[int]cell.State{0: cell.New(0, 1, 1, 0)}
	g := New([]int{0}, local, initial, params)

	row := g.Step(0, nil)
	if row.SAvg < 0 || row.SAvg > 1 {
		t.Fatalf("expected a clamped S_avg within [0,1], got %v", row.SAvg)
	}
	st := g.States()[0]
	if !st.Conserved() {
		t.Fatalf("expected conserved state after clamp, got %+v", st)
	}
}

func TestStepEmptyOwnerProducesZeroRow(t *testing.T) {
	params, err := model.NewParams(0.3, 0.1, 0.1, 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	local := topology.LocalTopology{Interior: map[int][]int{}, Ghost: map[int][]int{}, GhostOwner: map[int]int{}}
	g := New(nil, local, nil, params)
	row := g.Step(0, nil)
	if row != (Row{Time: 0}) {
		t.Fatalf("expected an all-zero row for an empty owner, got %+v", row)
	}
}
