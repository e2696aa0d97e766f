// Package transport is the in-process SPMD substrate the core runs on:
// one goroutine per rank, channels standing in for the message-passing
// primitives of a fixed pool of P independent processes that communicate
// via message passing, with no shared memory between ranks. The
// collective helpers here (Scatter, Gather, Broadcast, Exchange) are the
// channel-backed equivalents of rooted and neighborhood collectives;
// their wire framing is mirrored byte-for-byte in epidemic/wire so a
// future network transport could implement the same call shapes.
package transport

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Message is one point-to-point delivery between two ranks.
type Message struct {
	From    int
	Tag     int
	Payload []byte
}

// World is the fixed pool of P ranks and the channels connecting every
// ordered pair. It is built once per run and is safe for concurrent use
// by every rank's goroutine.
type World struct {
	size int
	links [][]chan Message // links[from][to]
}

// NewWorld allocates a World with size ranks. Every ordered (from, to)
// pair — including self-pairs, used by rank 0 acting as its own
// collective participant — gets a buffered depth-1 channel: the
// collectives below always have at most one message in flight per pair,
// so the buffer exists only to let a rank's send and its own later
// receive (the self-delivery case in Scatter/Broadcast) not require a
// concurrent reader.
func NewWorld(size int) *World {
	if size <= 0 {
		panic("transport: world size must be positive")
	}
	links := make([][]chan Message, size)
	for i := range links {
		links[i] = make([]chan Message, size)
		for j := range links[i] {
			links[i][j] = make(chan Message, 1)
		}
	}
	return &World{size: size, links: links}
}

// Size returns the number of ranks in the world.
func (w *World) Size() int { return w.size }

// SendTo delivers payload from `from` to `to` tagged with tag. It never
// blocks longer than it takes the single-slot buffer to be free, which
// holds for every collective below because each pair exchanges exactly
// one message per phase.
func (w *World) SendTo(ctx context.Context, from, to, tag int, payload []byte) error {
	select {
	case w.links[from][to] <- Message{From: from, Tag: tag, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecvFrom blocks until a message from `from` addressed to `to` arrives,
// or the context is cancelled (e.g. by a global Abort elsewhere in the
// world).
func (w *World) RecvFrom(ctx context.Context, to, from int) (Message, error) {
	select {
	case m := <-w.links[from][to]:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Coordinator is the rank that performs root-side collectives and I/O.
const Coordinator = 0

// RunSPMD launches one goroutine per rank running fn(ctx, rank) and
// waits for all of them. The first non-nil error from any rank cancels
// ctx for every other rank, so any rank invoking the global abort
// terminates the whole computation; this is the only abort path the
// core has, with no retry and no partial recovery.
func RunSPMD(size int, fn func(ctx context.Context, world *World, rank int) error) error {
	world := NewWorld(size)
	g, ctx := errgroup.WithContext(context.Background())
	for r := 0; r < size; r++ {
		rank := r
		g.Go(func() error {
			return fn(ctx, world, rank)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("transport: run aborted: %w", err)
	}
	return nil
}
