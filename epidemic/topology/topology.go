// Package topology builds the cell- and block-level adjacency graphs and
// derives, for each process, the set of foreign ranks it must import
// ghost cells from.
package topology

import "github.com/epidemic-sim/epidemic-sim/epidemic/partition"

// CellNeighbors splits a cell's 4-connected neighbors into those owned by
// the same block (interior) and those owned by a different block
// (cross-block, i.e. ghost candidates).
type CellNeighbors struct {
	Interior   []int
	CrossBlock []int
}

// Topology is the immutable-after-setup result of building the cell and
// block adjacency graphs for one grid + partition plan.
type Topology struct {
	Rows, Cols int

	// CellNeighbors[c] lists c's interior/cross-block neighbors.
	CellNeighbors []CellNeighbors

	// BlockNeighbors[b] lists the distinct blocks adjacent to block b.
	BlockNeighbors [][]int

	// BlockToRanks[b] lists the distinct foreign ranks block b must
	// import ghost cells from (the owners of b's neighbor blocks, minus
	// b's own owner).
	BlockToRanks [][]int
}

// Build constructs the full topology for a rows x cols grid given a
// partition plan. Cell adjacency is 4-connected; cells at the grid edge
// have fewer neighbors. Isolated blocks get an empty (never missing)
// neighbor-set entry.
func Build(rows, cols int, plan partition.Plan) Topology {
	numCells := rows * cols
	cellNeighbors := make([]CellNeighbors, numCells)
	blockNeighborSet := make([]map[int]struct{}, plan.NumBlocks)
	for b := range blockNeighborSet {
		blockNeighborSet[b] = make(map[int]struct{})
	}

	for id := 0; id < numCells; id++ {
		row, col := id/cols, id%cols
		myBlock := plan.CellBlock[id]
		for _, n := range fourConnected(row, col, rows, cols) {
			nBlock := plan.CellBlock[n]
			if nBlock == myBlock {
				cellNeighbors[id].Interior = append(cellNeighbors[id].Interior, n)
			} else {
				cellNeighbors[id].CrossBlock = append(cellNeighbors[id].CrossBlock, n)
				blockNeighborSet[myBlock][nBlock] = struct{}{}
			}
		}
	}

	blockNeighbors := make([][]int, plan.NumBlocks)
	for b, set := range blockNeighborSet {
		for n := range set {
			blockNeighbors[b] = append(blockNeighbors[b], n)
		}
	}

	blockToRanks := make([][]int, plan.NumBlocks)
	for b, neighbors := range blockNeighbors {
		owner := plan.BlockOwner(b)
		rankSet := make(map[int]struct{})
		for _, nb := range neighbors {
			nOwner := plan.BlockOwner(nb)
			if nOwner != owner {
				rankSet[nOwner] = struct{}{}
			}
		}
		for r := range rankSet {
			blockToRanks[b] = append(blockToRanks[b], r)
		}
	}

	return Topology{
		Rows: rows,
		Cols: cols,
		CellNeighbors: cellNeighbors,
		BlockNeighbors: blockNeighbors,
		BlockToRanks: blockToRanks,
	}
}

// fourConnected returns the up-to-4 in-bounds 4-connected neighbor cell
// ids of (row, col) in a rows x cols grid, row-major numbered.
func fourConnected(row, col, rows, cols int) []int {
	var out []int
	if row > 0 {
		out = append(out, (row-1)*cols+col)
	}
	if row < rows-1 {
		out = append(out, (row+1)*cols+col)
	}
	if col > 0 {
		out = append(out, row*cols+col-1)
	}
	if col < cols-1 {
		out = append(out, row*cols+col+1)
	}
	return out
}

// ForeignRanksForRank unions BlockToRanks over every block owned by rank,
// yielding the complete set of peer ranks rank must exchange halos with.
func (t Topology) ForeignRanksForRank(plan partition.Plan, rank int) []int {
	set := make(map[int]struct{})
	for _, b := range plan.OwnedBlocks(rank) {
		for _, r := range t.BlockToRanks[b.ID] {
			set[r] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	return out
}

// LocalTopology is what a single rank builds for itself after
// distribution: its owned cells' neighbor classification and the
// owning rank of every ghost cell it must import. Unlike Topology (built
// globally, coordinator-side, from a full Plan), LocalTopology is built
// from only the rank's own owned cells, the grid dimensions, and the
// broadcast (block adjacency + block owner + Locator) metadata of the
// startup protocol's final stage — no O(numCells) data ever needs to
// reach the rank.
type LocalTopology struct {
	// Interior[c] are c's neighbors owned by this rank (read from the
	// local grid directly, no message passing needed).
	Interior map[int][]int
	// Ghost[c] are c's neighbors owned by a different rank.
	Ghost map[int][]int
	// GhostOwner maps every needed ghost cell id to its owning rank.
	GhostOwner map[int]int
}

// BuildLocal classifies each of ownedCells' 4-connected neighbors as
// interior (also in ownedCells) or ghost (elsewhere), and resolves each
// ghost cell's owner via locator composed with blockOwners (// step 5 "Block-to-rank map composes block adjacency with ownership").
func BuildLocal(rows, cols, numCells int, ownedCells []int, locator partition.Locator, blockOwners []int) LocalTopology {
	owned := make(map[int]struct{}, len(ownedCells))
	for _, c := range ownedCells {
		owned[c] = struct{}{}
	}

	lt := LocalTopology{
		Interior: make(map[int][]int, len(ownedCells)),
		Ghost: make(map[int][]int, len(ownedCells)),
		GhostOwner: make(map[int]int),
	}
	for _, id := range ownedCells {
		row, col := id/cols, id%cols
		for _, n := range fourConnected(row, col, rows, cols) {
			if _, isOwned := owned[n]; isOwned {
				lt.Interior[id] = append(lt.Interior[id], n)
				continue
			}
			lt.Ghost[id] = append(lt.Ghost[id], n)
			if _, known := lt.GhostOwner[n]; !known {
				lt.GhostOwner[n] = blockOwners[locator.BlockOf(n, numCells)]
			}
		}
	}
	return lt
}

// GhostOwners returns, for every cell id, the owning rank, restricted to
// cells not owned by rank but cell-adjacent to a cell rank owns (// "Ghost set for a process").
func (t Topology) GhostOwners(plan partition.Plan, rank int) map[int]int {
	owned := make(map[int]struct{})
	for _, b := range plan.OwnedBlocks(rank) {
		for _, c := range b.Cells {
			owned[c] = struct{}{}
		}
	}
	ghosts := make(map[int]int)
	for id := range owned {
		for _, n := range t.CellNeighbors[id].CrossBlock {
			if _, isOwned := owned[n]; !isOwned {
				ghosts[n] = plan.BlockOwner(plan.CellBlock[n])
			}
		}
	}
	return ghosts
}
