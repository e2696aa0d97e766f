package transport

import (
	"context"
	"fmt"
)

// ScatterTag/GatherTag/BroadcastTag are distinct default tags for the
// rooted collectives. Every Message carries its tag: Exchange rejects a
// message whose tag differs from the one it was called with (callers in
// epidemic/halo offset that tag by the step index), while Scatter, Gather
// and Broadcast do not check tags and rely on each rank pair's channel
// delivering messages in the order they were sent.
const (
	ScatterTag = 1
	GatherTag = 2
	BroadcastTag = 3
)

// Scatter is a rooted collective: the Coordinator computes one payload
// per rank via makePayload and sends it; every rank (including the
// Coordinator) receives its own (stage 1/2 "scatter").
func Scatter(ctx context.Context, w *World, rank, tag int, makePayload func(to int) []byte) ([]byte, error) {
	if rank == Coordinator {
		for to := 0; to < w.Size(); to++ {
			if err := w.SendTo(ctx, Coordinator, to, tag, makePayload(to)); err != nil {
				return nil, fmt.Errorf("transport: scatter send to rank %d: %w", to, err)
			}
		}
	}
	m, err := w.RecvFrom(ctx, rank, Coordinator)
	if err != nil {
		return nil, fmt.Errorf("transport: scatter recv on rank %d: %w", rank, err)
	}
	return m.Payload, nil
}

// Gather is a rooted collective: every rank sends payload to the
// Coordinator, which receives one message per rank in rank order.
// Non-coordinator ranks get a nil slice back.
func Gather(ctx context.Context, w *World, rank, tag int, payload []byte) ([][]byte, error) {
	if err := w.SendTo(ctx, rank, Coordinator, tag, payload); err != nil {
		return nil, fmt.Errorf("transport: gather send from rank %d: %w", rank, err)
	}
	if rank != Coordinator {
		return nil, nil
	}
	out := make([][]byte, w.Size())
	for from := 0; from < w.Size(); from++ {
		m, err := w.RecvFrom(ctx, Coordinator, from)
		if err != nil {
			return nil, fmt.Errorf("transport: gather recv from rank %d: %w", from, err)
		}
		out[from] = m.Payload
	}
	return out, nil
}

// Broadcast is a rooted collective: the Coordinator sends the same
// payload to every rank (stage 3 "broadcast").
func Broadcast(ctx context.Context, w *World, rank, tag int, payload []byte) ([]byte, error) {
	if rank == Coordinator {
		for to := 0; to < w.Size(); to++ {
			if err := w.SendTo(ctx, Coordinator, to, tag, payload); err != nil {
				return nil, fmt.Errorf("transport: broadcast send to rank %d: %w", to, err)
			}
		}
	}
	m, err := w.RecvFrom(ctx, rank, Coordinator)
	if err != nil {
		return nil, fmt.Errorf("transport: broadcast recv on rank %d: %w", rank, err)
	}
	return m.Payload, nil
}

// Exchange implements the neighborhood collective: post all receives
// before any send, to avoid the deadlock that symmetric blocking
// send/receive pairs hit once rank count exceeds two. sendTo maps peer
// rank -> payload to send it; recvFrom lists the peers this rank expects
// a payload from. Returns a map of peer rank -> received payload. A
// received message whose tag is not tag is an error.
func Exchange(ctx context.Context, w *World, rank, tag int, sendTo map[int][]byte, recvFrom []int) (map[int][]byte, error) {
	type result struct {
		peer int
		payload []byte
		err error
	}
	resultsCh := make(chan result, len(recvFrom))

	// Post all receives before any send.
	for _, peer := range recvFrom {
		peer := peer
		go func() {
			m, err := w.RecvFrom(ctx, rank, peer)
			if err == nil && m.Tag != tag {
				err = fmt.Errorf("tag mismatch: got %d, want %d", m.Tag, tag)
			}
			resultsCh <- result{peer: peer, payload: m.Payload, err: err}
		}()
	}

	for peer, payload := range sendTo {
		if err := w.SendTo(ctx, rank, peer, tag, payload); err != nil {
			return nil, fmt.Errorf("transport: exchange send rank %d -> %d: %w", rank, peer, err)
		}
	}

	out := make(map[int][]byte, len(recvFrom))
	for range recvFrom {
		r := <-resultsCh
		if r.err != nil {
			return nil, fmt.Errorf("transport: exchange recv rank %d <- %d: %w", rank, r.peer, r.err)
		}
		out[r.peer] = r.payload
	}
	return out, nil
}
