// Package distribute implements the three-stage startup protocol:
// block-structure scatter, initial-state request/scatter, and
// block-neighbor-map broadcast. It runs once per simulation, on the
// transport.World built for the run, with rank 0 as coordinator.
package distribute

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
	"github.com/epidemic-sim/epidemic-sim/epidemic/partition"
	"github.com/epidemic-sim/epidemic-sim/epidemic/topology"
	"github.com/epidemic-sim/epidemic-sim/epidemic/transport"
	"github.com/epidemic-sim/epidemic-sim/epidemic/wire"
)

// InitialConditionSource is the external collaborator the run requires:
// a stable row-ordered view over C rows, plus the injected row -> (S,I,R)
// mapping. Only the coordinator (rank 0) needs a non-nil source; other
// ranks never call it.
type InitialConditionSource interface {
	RowCount() int
	Row(id int) (s, i, r float64, err error)
}

// LocatorSpec is the wire-friendly description of a partition.Locator:
// enough scalars for every rank to reconstruct the same BlockOf function
// the coordinator's Strategy used, without gob-registering an interface.
type LocatorSpec struct {
	Kind               string // "contiguous" or "tiled2d"
	BlockSize          int
	NumBlocksHint      int
	Rows, Cols         int
	TileRows, TileCols int
	NumTilesHint       int
}

// Resolve builds the concrete partition.Locator this recipe describes.
func (s LocatorSpec) Resolve() partition.Locator {
	if s.Kind == "tiled2d" {
		return partition.Tiled2D{Rows: s.Rows, Cols: s.Cols, TileRows: s.TileRows, TileCols: s.TileCols, NumTilesHint: s.NumTilesHint}
	}
	return partition.Contiguous{BlockSize: s.BlockSize, NumBlocksHint: s.NumBlocksHint}
}

// scalars is the gob-encoded remainder of the stage-3 broadcast buffer:
// grid geometry and the locator recipe. The neighbor map and owner map
// portions of that buffer use a fixed byte-exact layout; this remainder
// has no mandated layout, so it uses encoding/gob, the stdlib-first
// choice for anything not on the wire contract.
type scalars struct {
	Rows, Cols, NumCells int
	Locator LocatorSpec
}

// Rank tag constants keep this protocol's messages distinct from any
// other collective sharing the same World (tag discipline,
// applied here to the startup phase too).
const (
	tagBlockScatter = 10
	tagStateRequest = 11
	tagDoublesPerRow = 12
	tagStateScatter = 13
	tagTopologyBcast = 14
	doublesPerRowValue = 3 // S, I, R
)

// Result is what every rank ends up with after distribution completes:
// its owned blocks and cells, their initial state, and enough topology
// metadata to run the per-step halo exchange and integrator without any
// further coordinator round-trips.
type Result struct {
	Rank        int
	NumRanks    int
	NumCells    int
	Rows, Cols  int
	OwnedBlocks []partition.Block
	OwnedCells  []int // sorted ascending
	States      map[int]cell.State
	Locator     partition.Locator
	BlockOwners []int
	Topology    topology.LocalTopology
}

// Run executes the full startup protocol for one rank. plan and
// blockNeighbors are only read when rank == transport.Coordinator; every
// other rank may pass them as zero values. source is likewise
// coordinator-only.
func Run(ctx context.Context,
	w *transport.World,
	rank int,
	plan partition.Plan,
	blockNeighbors [][]int,
	locatorSpec LocatorSpec,
	source InitialConditionSource) (Result, error) {
	log := logrus.WithField("rank", rank)

	ownedBlocks, err := scatterBlocks(ctx, w, rank, plan)
	if err != nil {
		return Result{}, fmt.Errorf("distribute: block scatter: %w", err)
	}
	log.Debugf("received %d owned blocks", len(ownedBlocks))

	ownedCells := unionSortedCells(ownedBlocks)

	states, err := requestInitialStates(ctx, w, rank, ownedCells, plan, source)
	if err != nil {
		return Result{}, fmt.Errorf("distribute: initial state exchange: %w", err)
	}
	log.Debugf("received initial state for %d owned cells", len(states))

	rows, cols, numCells, spec, owners, _, err := broadcastTopologyMetadata(ctx, w, rank, plan, blockNeighbors, locatorSpec)
	if err != nil {
		return Result{}, fmt.Errorf("distribute: topology broadcast: %w", err)
	}

	locator := spec.Resolve()
	local := topology.BuildLocal(rows, cols, numCells, ownedCells, locator, owners)
	log.Debugf("resolved %d ghost cells", len(local.GhostOwner))

	return Result{
		Rank: rank,
		NumRanks: w.Size(),
		NumCells: numCells,
		Rows: rows,
		Cols: cols,
		OwnedBlocks: ownedBlocks,
		OwnedCells: ownedCells,
		States: states,
		Locator: locator,
		BlockOwners: owners,
		Topology: local,
	}, nil
}

// scatterBlocks is stage 1.
func scatterBlocks(ctx context.Context, w *transport.World, rank int, plan partition.Plan) ([]partition.Block, error) {
	payload, err := transport.Scatter(ctx, w, rank, tagBlockScatter, func(to int) []byte {
		var buf []byte
		for _, b := range plan.OwnedBlocks(to) {
			buf = append(buf, wire.EncodeBlockRecord(b.ID, b.Cells)...)
		}
		buf = append(buf, encodeInt32(wire.Sentinel)...)
		return buf
	})
	if err != nil {
		return nil, err
	}
	return decodeBlockStream(payload)
}

func decodeBlockStream(buf []byte) ([]partition.Block, error) {
	var blocks []partition.Block
	offset := 0
	for offset < len(buf) {
		if offset+4 > len(buf) {
			return nil, fmt.Errorf("distribute: truncated block stream at offset %d", offset)
		}
		marker := int32(binary.BigEndian.Uint32(buf[offset : offset+4]))
		if marker == wire.Sentinel {
			return blocks, nil
		}
		id, cells, consumed, err := wire.DecodeBlockRecord(buf[offset:])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, partition.Block{ID: id, Cells: cells})
		offset += consumed
	}
	return nil, fmt.Errorf("distribute: block stream missing sentinel terminator")
}

func unionSortedCells(blocks []partition.Block) []int {
	var cells []int
	for _, b := range blocks {
		cells = append(cells, b.Cells...)
	}
	sort.Ints(cells)
	return cells
}

// requestInitialStates is stage 2: each rank sends its owned-cell id
// list (already filtered to valid ids by construction, since ownedCells
// always comes from the partition of a validated cell universe), the
// coordinator gathers requests, resolves rows, and scatters answers back
// in request order.
func requestInitialStates(ctx context.Context,
	w *transport.World,
	rank int,
	ownedCells []int,
	plan partition.Plan,
	source InitialConditionSource) (map[int]cell.State, error) {
	reqPayload := encodeIntSlice(ownedCells)
	gathered, err := transport.Gather(ctx, w, rank, tagStateRequest, reqPayload)
	if err != nil {
		return nil, err
	}

	var perRankRequests [][]int
	if rank == transport.Coordinator {
		if source == nil {
			return nil, fmt.Errorf("distribute: coordinator requires a non-nil InitialConditionSource")
		}
		if source.RowCount() < plan.NumCells {
			return nil, fmt.Errorf("distribute: initial-condition source has %d rows, need %d", source.RowCount(), plan.NumCells)
		}
		perRankRequests = make([][]int, w.Size())
		for r, buf := range gathered {
			perRankRequests[r] = decodeIntSlice(buf)
		}
	}

	if _, err := transport.Broadcast(ctx, w, rank, tagDoublesPerRow, encodeInt32(doublesPerRowValue)); err != nil {
		return nil, err
	}

	statePayload, err := transport.Scatter(ctx, w, rank, tagStateScatter, func(to int) []byte {
		rowStates := make(map[int]cell.State, len(perRankRequests[to]))
		for _, id := range perRankRequests[to] {
			s, i, r, err := source.Row(id)
			if err != nil {
				// Unknown/out-of-range id: fatal per "unknown
				// requested ids abort the collective". Returning a short
				// buffer makes the receiver's length check in
				// wire.DecodeCellStates fail, which propagates as this
				// collective's error.
				return nil
			}
			rowStates[id] = cell.New(id, s, i, r)
		}
		return wire.EncodeCellStates(perRankRequests[to], rowStates)
	})
	if err != nil {
		return nil, err
	}

	states, err := wire.DecodeCellStates(ownedCells, statePayload)
	if err != nil {
		return nil, fmt.Errorf("distribute: decoding scattered initial states: %w", err)
	}
	return states, nil
}

// broadcastTopologyMetadata is stage 3.
func broadcastTopologyMetadata(ctx context.Context,
	w *transport.World,
	rank int,
	plan partition.Plan,
	blockNeighbors [][]int,
	locatorSpec LocatorSpec) (rows, cols, numCells int, spec LocatorSpec, owners []int, neighbors [][]int, err error) {
	var payload []byte
	if rank == transport.Coordinator {
		owners := make([]int, plan.NumBlocks)
		for _, b := range plan.Blocks {
			owners[b.ID] = b.Owner
		}
		var buf bytes.Buffer
		buf.Write(wire.EncodeNeighborMap(blockNeighbors))
		buf.Write(wire.EncodeOwnerMap(owners))
		sc := scalars{Rows: locatorSpec.Rows, Cols: locatorSpec.Cols, NumCells: plan.NumCells, Locator: locatorSpec}
		if gobErr := gob.NewEncoder(&buf).Encode(sc); gobErr != nil {
			return 0, 0, 0, LocatorSpec{}, nil, nil, gobErr
		}
		payload = wire.Frame(buf.Bytes())
	}
	raw, err := transport.Broadcast(ctx, w, rank, tagTopologyBcast, payload)
	if err != nil {
		return 0, 0, 0, LocatorSpec{}, nil, nil, err
	}

	body, err := wire.Unframe(raw)
	if err != nil {
		return 0, 0, 0, LocatorSpec{}, nil, nil, err
	}
	nbrs, consumed, err := wire.DecodeNeighborMap(body)
	if err != nil {
		return 0, 0, 0, LocatorSpec{}, nil, nil, err
	}
	body = body[consumed:]
	own, consumed2, err := wire.DecodeOwnerMap(body)
	if err != nil {
		return 0, 0, 0, LocatorSpec{}, nil, nil, err
	}
	body = body[consumed2:]
	var sc scalars
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&sc); err != nil {
		return 0, 0, 0, LocatorSpec{}, nil, nil, err
	}
	return sc.Rows, sc.Cols, sc.NumCells, sc.Locator, own, nbrs, nil
}

func encodeInt32(v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[:]
}

func encodeIntSlice(ids []int) []byte {
	buf := make([]byte, 0, 4+4*len(ids))
	buf = append(buf, encodeInt32(int32(len(ids)))...)
	for _, id := range ids {
		buf = append(buf, encodeInt32(int32(id))...)
	}
	return buf
}

func decodeIntSlice(buf []byte) []int {
	if len(buf) < 4 {
		return nil
	}
	n := int32(binary.BigEndian.Uint32(buf[:4]))
	out := make([]int, 0, n)
	for i := int32(0); i < n; i++ {
		off := 4 + 4*i
		out = append(out, int(int32(binary.BigEndian.Uint32(buf[off:off+4]))))
	}
	return out
}
