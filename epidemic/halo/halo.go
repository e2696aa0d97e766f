// Package halo implements the per-step neighbor-state exchange: before
// each step's local update, every rank refreshes its ghost table with
// its peers' post-previous-step (S,I,R) values.
package halo

import (
	"context"
	"fmt"
	"sort"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
	"github.com/epidemic-sim/epidemic-sim/epidemic/transport"
	"github.com/epidemic-sim/epidemic-sim/epidemic/wire"
)

// tagBase offsets every step's exchange into its own tag, so a late
// message from step k-1 is never read as step k's: the tag discipline
// ensures a late message from step k never contaminates step k+1.
const tagBase = 100

// Plan is the static, step-independent classification for each peer
// rank: the local cells this rank must send it, and the ghost cells it
// must expect in return.
type Plan struct {
	SendTo   map[int][]int // peer rank -> sorted local cell ids to send
	RecvFrom map[int][]int // peer rank -> sorted ghost cell ids to expect
}

// BuildPlan derives a Plan from a rank's LocalTopology without any
// further communication. Adjacency is symmetric: if ghost cell g
// (owned by rank B) is a neighbor of owned cell c, then B's own
// BuildLocal call classifies c as one of g's neighbors too, so B
// already knows it must receive c from this rank — nothing needs to be
// negotiated ahead of time, since the block-to-rank map composes block
// adjacency with ownership.
func BuildPlan(local topology.LocalTopology) Plan {
	sendSets := make(map[int]map[int]struct{})
	for c, ghosts := range local.Ghost {
		for _, g := range ghosts {
			owner := local.GhostOwner[g]
			if sendSets[owner] == nil {
				sendSets[owner] = make(map[int]struct{})
			}
			sendSets[owner][c] = struct{}{}
		}
	}

	recvSets := make(map[int]map[int]struct{})
	for g, owner := range local.GhostOwner {
		if recvSets[owner] == nil {
			recvSets[owner] = make(map[int]struct{})
		}
		recvSets[owner][g] = struct{}{}
	}

	plan := Plan{SendTo: make(map[int][]int), RecvFrom: make(map[int][]int)}
	for peer, set := range sendSets {
		plan.SendTo[peer] = sortedKeys(set)
	}
	for peer, set := range recvSets {
		plan.RecvFrom[peer] = sortedKeys(set)
	}
	return plan
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Exchange performs one step's halo refresh: it sends the listed local
// cells' current state to each peer in plan.SendTo and returns a fresh
// ghost table built from each peer's reply — the table is overwritten
// each step, no accumulation. It uses transport.Exchange, which posts
// all receives before any send, avoiding the symmetric blocking-pair
// deadlock a naive send-then-receive pattern would risk.
func Exchange(ctx context.Context, w *transport.World, rank, step int, plan Plan, local map[int]cell.State) (map[int]cell.State, error) {
	tag := tagBase + step

	sendTo := make(map[int][]byte, len(plan.SendTo))
	for peer, ids := range plan.SendTo {
		sendTo[peer] = wire.EncodeCellStates(ids, local)
	}

	recvFrom := make([]int, 0, len(plan.RecvFrom))
	for peer := range plan.RecvFrom {
		recvFrom = append(recvFrom, peer)
	}

	received, err := transport.Exchange(ctx, w, rank, tag, sendTo, recvFrom)
	if err != nil {
		return nil, fmt.Errorf("halo: step %d: %w", step, err)
	}

	ghosts := make(map[int]cell.State)
	for peer, ids := range plan.RecvFrom {
		payload, ok := received[peer]
		if !ok {
			return nil, fmt.Errorf("halo: step %d: missing payload from rank %d", step, peer)
		}
		states, err := wire.DecodeCellStates(ids, payload)
		if err != nil {
			return nil, fmt.Errorf("halo: step %d: decoding payload from rank %d: %w", step, peer, err)
		}
		for id, st := range states {
			ghosts[id] = st
		}
	}
	return ghosts, nil
}
