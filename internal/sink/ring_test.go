package sink

import "testing"

func TestRingWriteReadRoundTrip(t *testing.T) {
	r := newRing(16)
	in := []int16{1, 2, 3, 4, 5}
	r.Write(in)

	if got := r.Len(); got != len(in) {
		t.Fatalf("expected Len=%d, got %d", len(in), got)
	}

	out := make([]int16, 3)
	n := r.Read(out)
	if n != 3 {
		t.Fatalf("expected to read 3 samples, got %d", n)
	}
	for i, v := range []int16{1, 2, 3} {
		if out[i] != v {
			t.Fatalf("sample %d: expected %d, got %d", i, v, out[i])
		}
	}
	if got := r.Len(); got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
}

func TestRingReadEmptyReturnsZero(t *testing.T) {
	r := newRing(16)
	out := make([]int16, 4)
	if n := r.Read(out); n != 0 {
		t.Fatalf("expected 0 from an empty ring, got %d", n)
	}
}

func TestRingClearDropsUnread(t *testing.T) {
	r := newRing(16)
	r.Write([]int16{1, 2, 3})
	r.Clear()
	if got := r.Len(); got != 0 {
		t.Fatalf("expected Len=0 after Clear, got %d", got)
	}
}

func TestRingCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := newRing(10)
	if r.Cap() != 16 {
		t.Fatalf("expected capacity 16, got %d", r.Cap())
	}
}
