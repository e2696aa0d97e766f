package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epidemic-sim/epidemic-sim/epidemic/partition"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
)

var (
	validateRows, validateCols int
	validateNumRanks           int
	validateBlockSize          int
)

// validateCmd builds the partition and topology a run would use, without
// running the simulation, so a bad grid/rank/block-size configuration
// surfaces immediately instead of after distribution.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a grid/rank/block configuration partitions cleanly",
	RunE: func(cmd *cobra.Command, args []string) error {
		numCells := validateRows * validateCols
		strategy := partition.Contiguous{BlockSize: validateBlockSize}
		plan, err := strategy.Partition(numCells, validateNumRanks)
		if err != nil {
			return err
		}
		topo := topology.Build(validateRows, validateCols, plan)

		emptyRanks := 0
		for rank := 0; rank < validateNumRanks; rank++ {
			if len(plan.OwnedBlocks(rank)) == 0 {
				emptyRanks++
			}
		}

		fmt.Printf("cells=%d blocks=%d ranks=%d empty_ranks=%d\n", plan.NumCells, plan.NumBlocks, plan.NumRanks, emptyRanks)
		for rank := 0; rank < validateNumRanks; rank++ {
			fmt.Printf(" rank %d: %d ghost cells imported\n", rank, len(topo.GhostOwners(plan, rank)))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().IntVar(&validateRows, "rows", 10, "Grid row count")
	validateCmd.Flags().IntVar(&validateCols, "cols", 10, "Grid column count")
	validateCmd.Flags().IntVar(&validateNumRanks, "ranks", 1, "Number of SPMD ranks")
	validateCmd.Flags().IntVar(&validateBlockSize, "block-size", 0, "Target cells per block (0 = one block for the whole grid)")
}
