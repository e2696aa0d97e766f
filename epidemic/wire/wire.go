// Package wire implements the fixed byte layouts each collective's
// payload is encoded to, so the in-process transport's collective logic
// stays provably compatible with a future network transport.
// encoding/binary is used directly rather than a third-party framing
// library, consistent with this codebase's stdlib-first approach to
// simple fixed-layout records.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/epidemic-sim/epidemic-sim/epidemic/cell"
)

// EncodeBlockRecord encodes one block-scatter record as
// [blockId:int32][numCells:int32][cellId:int32 x numCells].
func EncodeBlockRecord(blockID int, cells []int) []byte {
	buf := make([]byte, 0, 8+4*len(cells))
	buf = appendInt32(buf, int32(blockID))
	buf = appendInt32(buf, int32(len(cells)))
	for _, c := range cells {
		buf = appendInt32(buf, int32(c))
	}
	return buf
}

// Sentinel is the -1 size that terminates a rank's block-scatter stream.
const Sentinel int32 = -1

// DecodeBlockRecord decodes one block record written by EncodeBlockRecord,
// returning the number of bytes consumed.
func DecodeBlockRecord(buf []byte) (blockID int, cells []int, consumed int, err error) {
	r := bytes.NewReader(buf)
	var id, n int32
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return 0, nil, 0, fmt.Errorf("wire: reading blockId: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, nil, 0, fmt.Errorf("wire: reading numCells: %w", err)
	}
	if n < 0 {
		return 0, nil, 0, fmt.Errorf("wire: negative numCells %d", n)
	}
	cells = make([]int, n)
	for i := range cells {
		var c int32
		if err := binary.Read(r, binary.BigEndian, &c); err != nil {
			return 0, nil, 0, fmt.Errorf("wire: reading cellId[%d]: %w", i, err)
		}
		cells[i] = int(c)
	}
	return int(id), cells, 8 + 4*len(cells), nil
}

// EncodeNeighborMap encodes the block-neighbor-map broadcast payload as
// [numEntries][blockId][numNeighbors][neighborId x numNeighbors]...
func EncodeNeighborMap(blockNeighbors [][]int) []byte {
	buf := appendInt32(nil, int32(len(blockNeighbors)))
	for blockID, neighbors := range blockNeighbors {
		buf = appendInt32(buf, int32(blockID))
		buf = appendInt32(buf, int32(len(neighbors)))
		for _, n := range neighbors {
			buf = appendInt32(buf, int32(n))
		}
	}
	return buf
}

// DecodeNeighborMap is the inverse of EncodeNeighborMap, returning the
// number of bytes consumed so callers can decode further fields packed
// after it in the same buffer (stage 3 packs the neighbor map
// and the owner map into one broadcast buffer).
func DecodeNeighborMap(buf []byte) (blockNeighbors [][]int, consumed int, err error) {
	r := bytes.NewReader(buf)
	var numEntries int32
	if err := binary.Read(r, binary.BigEndian, &numEntries); err != nil {
		return nil, 0, fmt.Errorf("wire: reading numEntries: %w", err)
	}
	if numEntries < 0 {
		return nil, 0, fmt.Errorf("wire: negative numEntries %d", numEntries)
	}
	out := make([][]int, numEntries)
	read := 4
	for e := int32(0); e < numEntries; e++ {
		var blockID, numNeighbors int32
		if err := binary.Read(r, binary.BigEndian, &blockID); err != nil {
			return nil, 0, fmt.Errorf("wire: reading blockId for entry %d: %w", e, err)
		}
		if err := binary.Read(r, binary.BigEndian, &numNeighbors); err != nil {
			return nil, 0, fmt.Errorf("wire: reading numNeighbors for entry %d: %w", e, err)
		}
		read += 8
		if int(blockID) >= len(out) || blockID < 0 {
			return nil, 0, fmt.Errorf("wire: blockId %d out of range [0,%d)", blockID, len(out))
		}
		neighbors := make([]int, numNeighbors)
		for i := range neighbors {
			var n int32
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				return nil, 0, fmt.Errorf("wire: reading neighborId[%d] for entry %d: %w", i, e, err)
			}
			neighbors[i] = int(n)
			read += 4
		}
		out[blockID] = neighbors
	}
	return out, read, nil
}

// EncodeOwnerMap encodes (block -> owning rank) as [numBlocks][owner x numBlocks].
func EncodeOwnerMap(owners []int) []byte {
	buf := appendInt32(nil, int32(len(owners)))
	for _, o := range owners {
		buf = appendInt32(buf, int32(o))
	}
	return buf
}

// DecodeOwnerMap is the inverse of EncodeOwnerMap, returning bytes consumed.
func DecodeOwnerMap(buf []byte) (owners []int, consumed int, err error) {
	r := bytes.NewReader(buf)
	var numBlocks int32
	if err := binary.Read(r, binary.BigEndian, &numBlocks); err != nil {
		return nil, 0, fmt.Errorf("wire: reading numBlocks: %w", err)
	}
	if numBlocks < 0 {
		return nil, 0, fmt.Errorf("wire: negative numBlocks %d", numBlocks)
	}
	owners = make([]int, numBlocks)
	for i := range owners {
		var o int32
		if err := binary.Read(r, binary.BigEndian, &o); err != nil {
			return nil, 0, fmt.Errorf("wire: reading owner[%d]: %w", i, err)
		}
		owners[i] = int(o)
	}
	return owners, 4 + 4*len(owners), nil
}

// Frame prefixes payload with its own length, so a broadcast can carry a
// single variable-length byte buffer.
func Frame(payload []byte) []byte {
	return append(appendInt32(nil, int32(len(payload))), payload...)
}

// Unframe strips and validates the length prefix written by Frame.
func Unframe(buf []byte) ([]byte, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("wire: frame too short: %d bytes", len(buf))
	}
	n := int32(binary.BigEndian.Uint32(buf[:4]))
	if n < 0 || int(n) != len(buf)-4 {
		return nil, fmt.Errorf("wire: frame length mismatch: header says %d, have %d", n, len(buf)-4)
	}
	return buf[4:], nil
}

// EncodeCellStates encodes the (S,I,R) of each id in ids, in order, as
// three big-endian float64s per cell. No id prefix is needed: the halo
// exchange's sender and receiver both derive ids in the same order from
// the same static topology, so the order itself is the key.
func EncodeCellStates(ids []int, states map[int]cell.State) []byte {
	buf := make([]byte, 0, 24*len(ids))
	for _, id := range ids {
		st := states[id]
		buf = appendFloat64(buf, st.S)
		buf = appendFloat64(buf, st.I)
		buf = appendFloat64(buf, st.R)
	}
	return buf
}

// DecodeCellStates is the inverse of EncodeCellStates, zipping the
// decoded triples back onto ids in order.
func DecodeCellStates(ids []int, buf []byte) (map[int]cell.State, error) {
	want := 24 * len(ids)
	if len(buf) != want {
		return nil, fmt.Errorf("wire: cell-state payload size mismatch: expected %d bytes for %d cells, got %d", want, len(ids), len(buf))
	}
	out := make(map[int]cell.State, len(ids))
	r := bytes.NewReader(buf)
	for _, id := range ids {
		var s, i, ri float64
		if err := binary.Read(r, binary.BigEndian, &s); err != nil {
			return nil, fmt.Errorf("wire: reading S for cell %d: %w", id, err)
		}
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return nil, fmt.Errorf("wire: reading I for cell %d: %w", id, err)
		}
		if err := binary.Read(r, binary.BigEndian, &ri); err != nil {
			return nil, fmt.Errorf("wire: reading R for cell %d: %w", id, err)
		}
		out[id] = cell.New(id, s, i, ri)
	}
	return out, nil
}

func appendFloat64(buf []byte, v float64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}
