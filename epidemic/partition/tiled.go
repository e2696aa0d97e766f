package partition

import (
	"fmt"
	"math"
)

// Tiled2D partitions a rows x cols grid into roughly square tiles
// instead of contiguous-id runs, trading the simplicity of Contiguous
// for a better surface-to-volume ratio ("Partitioner choice": an
// implementer may substitute a 2D block partition while preserving the
// partition and owner-map contracts). Block ids are still dense and
// assigned row-major over the tile grid; owner assignment reuses the
// same balanced contiguous-run formula as Contiguous.
type Tiled2D struct {
	Rows, Cols int
	// TileRows, TileCols are the tile dimensions. If either is zero, a
	// near-square tile size is derived from NumTilesHint.
	TileRows, TileCols int
	NumTilesHint       int
}

// Partition implements Strategy.
func (t Tiled2D) Partition(numCells, numRanks int) (Plan, error) {
	if numCells <= 0 {
		return Plan{}, ErrEmptyCellSet
	}
	if t.Rows*t.Cols != numCells {
		return Plan{}, fmt.Errorf("partition: rows*cols=%d does not match numCells=%d", t.Rows*t.Cols, numCells)
	}
	if numRanks <= 0 {
		return Plan{}, fmt.Errorf("partition: rank count must be positive, got %d", numRanks)
	}

	tileRows, tileCols := t.TileRows, t.TileCols
	if tileRows <= 0 || tileCols <= 0 {
		tileRows, tileCols = squareTileDims(t.Rows, t.Cols, t.NumTilesHint)
	}

	numTileRows := ceilDiv(t.Rows, tileRows)
	numTileCols := ceilDiv(t.Cols, tileCols)
	numBlocks := numTileRows * numTileCols

	blocks := make([]Block, numBlocks)
	cellBlock := make([]int, numCells)
	for tr := 0; tr < numTileRows; tr++ {
		for tc := 0; tc < numTileCols; tc++ {
			blockID := tr*numTileCols + tc
			rowLo, rowHi := tr*tileRows, min(t.Rows, (tr+1)*tileRows)
			colLo, colHi := tc*tileCols, min(t.Cols, (tc+1)*tileCols)
			var cells []int
			for row := rowLo; row < rowHi; row++ {
				for col := colLo; col < colHi; col++ {
					id := row*t.Cols + col
					cells = append(cells, id)
					cellBlock[id] = blockID
				}
			}
			blocks[blockID] = Block{ID: blockID, Cells: cells}
		}
	}

	assignOwners(blocks, numRanks)

	return Plan{
		NumCells:  numCells,
		NumBlocks: numBlocks,
		NumRanks:  numRanks,
		Blocks:    blocks,
		CellBlock: cellBlock,
	}, nil
}

// BlockOf implements Locator by recomputing the same tile grid the
// coordinator's Partition call used and locating cellID within it.
func (t Tiled2D) BlockOf(cellID, numCells int) int {
	row, col := cellID/t.Cols, cellID%t.Cols
	tileRows, tileCols := t.TileRows, t.TileCols
	if tileRows <= 0 || tileCols <= 0 {
		tileRows, tileCols = squareTileDims(t.Rows, t.Cols, t.NumTilesHint)
	}
	numTileCols := ceilDiv(t.Cols, tileCols)
	return (row/tileRows)*numTileCols + col/tileCols
}

// squareTileDims derives near-square tile dimensions targeting
// numTilesHint tiles (numTilesHint<=0 targets a single tile covering
// the whole grid). It searches integer
// divisor pairs near sqrt(targetArea) to pick the pair minimizing
// aspect-ratio skew, targeting a 2D block partition (e.g. sqrt(P) x
// sqrt(P) tiles).
func squareTileDims(rows, cols, numTilesHint int) (tileRows, tileCols int) {
	targetTiles := numTilesHint
	if targetTiles <= 0 {
		targetTiles = 1
	}
	side := math.Sqrt(float64(rows*cols) / float64(targetTiles))
	candidates := []float64{math.Floor(side), math.Ceil(side)}
	best := candidates[0]
	bestSkew := math.Inf(1)
	for _, c := range candidates {
		if c < 1 {
			c = 1
		}
		tr := int(c)
		tc := ceilDiv(int(side*side), tr)
		if tc < 1 {
			tc = 1
		}
		skew := math.Abs(float64(tr) - float64(tc))
		if skew < bestSkew {
			bestSkew = skew
			best = c
		}
	}
	tileRows = int(best)
	if tileRows < 1 {
		tileRows = 1
	}
	tileCols = tileRows
	tileRows = int(math.Max(1, math.Min(float64(tileRows), float64(rows))))
	tileCols = int(math.Max(1, math.Min(float64(tileCols), float64(cols))))
	return tileRows, tileCols
}
