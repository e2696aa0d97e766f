// Package engine wires the core's stages into a single-call sequence:
// partitioner -> distribution -> per-step {halo exchange, local update}
// -> result collection. It is the orchestrator the CLI's run command
// drives; each stage package remains independently testable without it.
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/epidemic-sim/epidemic-sim/epidemic/collect"
	"github.com/epidemic-sim/epidemic-sim/epidemic/distribute"
	"github.com/epidemic-sim/epidemic-sim/epidemic/halo"
	"github.com/epidemic-sim/epidemic-sim/epidemic/integrate"
	"github.com/epidemic-sim/epidemic-sim/epidemic/model"
	"github.com/epidemic-sim/epidemic-sim/epidemic/partition"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
	"github.com/epidemic-sim/epidemic-sim/epidemic/transport"
)

// Config is everything one simulation run needs: grid geometry, the
// partitioning strategy, rate-law parameters, and the coordinator-only
// initial-condition source.
type Config struct {
	Rows, Cols int
	NumRanks   int
	Strategy   partition.Strategy
	Locator    distribute.LocatorSpec
	Params     model.Params
	Source     distribute.InitialConditionSource
}

// Run executes one full simulation and returns the coordinator's
// assembled result rows plus the total anomaly count summed across every
// rank (nil/0 on non-coordinator-observable failure paths — Run always
// returns the coordinator's view since this function itself runs the
// whole SPMD world and blocks until every rank finishes).
func Run(cfg Config) ([]collect.Row, int, error) {
	numCells := cfg.Rows * cfg.Cols
	plan, err := cfg.Strategy.Partition(numCells, cfg.NumRanks)
	if err != nil {
		return nil, 0, fmt.Errorf("engine: partition: %w", err)
	}
	topo := topology.Build(cfg.Rows, cfg.Cols, plan)

	var result []collect.Row
	var anomalies int
	err = transport.RunSPMD(cfg.NumRanks, func(ctx context.Context, world *transport.World, rank int) error {
		var source distribute.InitialConditionSource
		if rank == transport.Coordinator {
			source = cfg.Source
		}

		dr, err := distribute.Run(ctx, world, rank, plan, topo.BlockNeighbors, cfg.Locator, source)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}

		haloPlan := halo.BuildPlan(dr.Topology)
		grid := integrate.New(dr.OwnedCells, dr.Topology, dr.States, cfg.Params)

		hasOwnedCells := len(dr.OwnedCells) > 0
		rows := make([]integrate.Row, 0, cfg.Params.Steps)
		for step := 0; step < cfg.Params.Steps; step++ {
			ghosts, err := halo.Exchange(ctx, world, rank, step, haloPlan, grid.States())
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			row := grid.Step(step, ghosts)
			// An owner-less rank's exchange/update are no-ops; it must
			// not contribute any summary rows to the result log.
			if hasOwnedCells {
				rows = append(rows, row)
			}
		}

		logrus.WithField("rank", rank).Debugf("completed %d steps over %d owned cells", cfg.Params.Steps, len(dr.OwnedCells))

		gathered, err := collect.Gather(ctx, world, rank, rows)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		anomalyTotal, err := collect.GatherAnomalyCount(ctx, world, rank, grid.Anomalies())
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		if rank == transport.Coordinator {
			result = gathered
			anomalies = anomalyTotal
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result, anomalies, nil
}
