package wire

import (
	"reflect"
	"testing"
)

func TestBlockRecordRoundTrip(t *testing.T) {
	buf := EncodeBlockRecord(3, []int{7, 8, 9})
	id, cells, consumed, err := DecodeBlockRecord(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 3 || !reflect.DeepEqual(cells, []int{7, 8, 9}) {
		t.Fatalf("got id=%d cells=%v", id, cells)
	}
	if consumed != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), consumed)
	}
}

func TestNeighborMapRoundTrip(t *testing.T) {
	in := [][]int{{1, 2}, {}, {0}}
	buf := EncodeNeighborMap(in)
	out, consumed, err := DecodeNeighborMap(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	if !reflect.DeepEqual(out[0], in[0]) || !reflect.DeepEqual(out[2], in[2]) {
		t.Fatalf("got %v want %v", out, in)
	}
	if consumed != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), consumed)
	}
}

func TestOwnerMapRoundTrip(t *testing.T) {
	in := []int{0, 0, 1, 2}
	buf := EncodeOwnerMap(in)
	out, consumed, err := DecodeOwnerMap(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("got %v want %v", out, in)
	}
	if consumed != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), consumed)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("hello")
	framed := Frame(payload)
	got, err := Unframe(framed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestUnframeRejectsLengthMismatch(t *testing.T) {
	framed := Frame([]byte("hello"))
	framed[3] ^= 0xff // corrupt length
	if _, err := Unframe(framed); err == nil {
		t.Fatalf("expected error on length mismatch")
	}
}

func TestDecodeBlockRecordRejectsNegativeCount(t *testing.T) {
	buf := append(EncodeBlockRecord(0, nil)[:4], []byte{0xff, 0xff, 0xff, 0xff}...)
	if _, _, _, err := DecodeBlockRecord(buf); err == nil {
		t.Fatalf("expected error on negative numCells")
	}
}
