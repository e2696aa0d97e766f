package topology

import (
	"testing"

	"github.com/epidemic-sim/epidemic-sim/epidemic/partition"
)

func TestBuildFourByFourNoIsolatedMissingEntries(t *testing.T) {
	plan, err := partition.Contiguous{BlockSize: 4}.Partition(16, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topo := Build(4, 4, plan)
	if len(topo.BlockNeighbors) != plan.NumBlocks {
		t.Fatalf("expected an entry per block, got %d for %d blocks", len(topo.BlockNeighbors), plan.NumBlocks)
	}
}

func TestSymmetricTwoPeerExchangeScenario(t *testing.T) {
	// scenario 5: 2x2 grid, B=2, P=2. Rank0 owns {0,1}, rank1 owns {2,3}.
	plan, err := partition.Contiguous{BlockSize: 2}.Partition(4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topo := Build(2, 2, plan)

	ghosts0 := topo.GhostOwners(plan, 0)
	ghosts1 := topo.GhostOwners(plan, 1)

	if len(ghosts0) != 2 {
		t.Fatalf("expected rank 0 to import 2 ghost cells, got %d: %v", len(ghosts0), ghosts0)
	}
	if len(ghosts1) != 2 {
		t.Fatalf("expected rank 1 to import 2 ghost cells, got %d: %v", len(ghosts1), ghosts1)
	}
	for id, owner := range ghosts0 {
		if owner != 1 {
			t.Fatalf("expected ghost cell %d owned by rank 1, got %d", id, owner)
		}
	}
}

func TestFourConnectedEdgeCellsHaveFewerNeighbors(t *testing.T) {
	neighbors := fourConnected(0, 0, 4, 4)
	if len(neighbors) != 2 {
		t.Fatalf("expected corner cell to have 2 neighbors, got %d", len(neighbors))
	}
	neighbors = fourConnected(1, 1, 4, 4)
	if len(neighbors) != 4 {
		t.Fatalf("expected interior cell to have 4 neighbors, got %d", len(neighbors))
	}
}

func TestBuildLocalMatchesGhostOwners(t *testing.T) {
	strategy := partition.Contiguous{BlockSize: 2}
	plan, err := strategy.Partition(4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	owners := make([]int, plan.NumBlocks)
	for _, b := range plan.Blocks {
		owners[b.ID] = b.Owner
	}

	for rank := 0; rank < 2; rank++ {
		var owned []int
		for _, b := range plan.OwnedBlocks(rank) {
			owned = append(owned, b.Cells...)
		}
		lt := BuildLocal(2, 2, 4, owned, strategy, owners)
		global := Build(2, 2, plan)
		want := global.GhostOwners(plan, rank)
		if len(lt.GhostOwner) != len(want) {
			t.Fatalf("rank %d: expected %d ghost owners, got %d", rank, len(want), len(lt.GhostOwner))
		}
		for id, owner := range want {
			if lt.GhostOwner[id] != owner {
				t.Fatalf("rank %d: cell %d owner mismatch: got %d want %d", rank, id, lt.GhostOwner[id], owner)
			}
		}
	}
}

func TestGhostCellHasExactlyOneOwner(t *testing.T) {
	plan, err := partition.Contiguous{BlockSize: 4}.Partition(64, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topo := Build(8, 8, plan)
	for rank := 0; rank < 3; rank++ {
		ghosts := topo.GhostOwners(plan, rank)
		for id, owner := range ghosts {
			if owner == rank {
				t.Fatalf("ghost cell %d should not be owned by importing rank %d", id, rank)
			}
		}
	}
}
