package audio

import "testing"

func TestResamplerSameRateIsNearIdentity(t *testing.T) {
	r := NewResampler(16000, 16000)
	in := make([]int16, 64)
	for i := range in {
		in[i] = int16(i * 100)
	}

	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples out at matched rates, got %d", len(in), len(out))
	}
	delay := (len(r.taps) - 1) / 2
	for i := delay; i < len(out); i++ {
		if d := int(out[i]) - int(in[i-delay]); d < -1 || d > 1 {
			t.Fatalf("sample %d: expected %d (input delayed by %d), got %d", i, in[i-delay], delay, out[i])
		}
	}
}

func TestResamplerProducesExpectedLengthRatio(t *testing.T) {
	// 48 kHz device down to the gateway's 16 kHz target: 3:1.
	r := NewResampler(48000, 16000)
	in := make([]int16, 4800)

	out := r.Process(in)
	want := len(in) / 3
	if diff := want - len(out); diff < -1 || diff > 1 {
		t.Fatalf("expected roughly %d samples out, got %d", want, len(out))
	}
}

func TestResamplerUpsamplesWithoutOverflow(t *testing.T) {
	// 8 kHz up to 16 kHz: 1:2.
	r := NewResampler(8000, 16000)
	in := make([]int16, 256)
	for i := range in {
		in[i] = 32000
	}

	out := r.Process(in)
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
	for _, s := range out {
		if s > 32767 || s < -32768 {
			t.Fatalf("sample %d out of int16 range", s)
		}
	}
}

func TestResamplerCarriesHistoryAcrossChunkedCalls(t *testing.T) {
	r := NewResampler(48000, 16000)
	whole := NewResampler(48000, 16000)

	chunk1 := make([]int16, 300)
	chunk2 := make([]int16, 300)
	for i := range chunk1 {
		chunk1[i] = int16(i)
		chunk2[i] = int16(-i)
	}

	var chunked []int16
	chunked = append(chunked, r.Process(chunk1)...)
	chunked = append(chunked, r.Process(chunk2)...)

	full := append(append([]int16(nil), chunk1...), chunk2...)
	oneShot := whole.Process(full)

	if len(chunked) != len(oneShot) {
		t.Fatalf("expected chunked and one-shot processing to produce the same sample count, got %d vs %d", len(chunked), len(oneShot))
	}
}

func TestGCD(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{48000, 16000, 16000},
		{44100, 16000, 100},
		{16000, 16000, 16000},
	}
	for _, c := range cases {
		if got := gcd(c.a, c.b); got != c.want {
			t.Fatalf("gcd(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
