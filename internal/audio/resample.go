package audio

import "math"

// Resampler converts a continuous stream of int16 samples from one integer
// sample rate to another using a polyphase FIR implementation of rational
// resampling (upsample by L, lowpass filter, downsample by M). It keeps
// fixed latency and carries filter history across Process calls so it can
// be fed arbitrarily sized chunks from a capture callback.
type Resampler struct {
	l, m   int // interpolation / decimation factors, reduced by gcd
	taps   []float64
	hist   []float64 // history of the most recent upsampled-rate samples
	phase  int       // position within the upsampled timeline modulo m
}

const resamplerTapsPerPhase = 16

// NewResampler builds a polyphase resampler converting fromHz to toHz.
func NewResampler(fromHz, toHz int) *Resampler {
	l, m := toHz, fromHz
	if g := gcd(l, m); g > 1 {
		l /= g
		m /= g
	}

	// Windowed-sinc lowpass prototype designed at the upsampled (L*fromHz)
	// rate, cut off at the Nyquist frequency of the slower of the two rates,
	// with gain L to make up for the zero-stuffed samples.
	cutoff := 0.5 / math.Max(float64(l), float64(m))
	numTaps := resamplerTapsPerPhase * maxInt(l, m)
	if numTaps%2 == 0 {
		numTaps++
	}
	taps := make([]float64, numTaps)
	mid := float64(numTaps-1) / 2
	for i := range taps {
		x := float64(i) - mid
		taps[i] = sinc(2*cutoff*x) * 2 * cutoff * float64(l) * hamming(i, numTaps)
	}

	return &Resampler{
		l:    l,
		m:    m,
		taps: taps,
		hist: make([]float64, numTaps),
	}
}

// Process resamples in and returns the converted samples. Internal filter
// history carries across calls, so fixed latency is preserved regardless
// of how the caller chunks input.
func (r *Resampler) Process(in []int16) []int16 {
	out := make([]int16, 0, len(in)*r.l/r.m+2)

	for _, s := range in {
		// Shift in the new sample followed by L-1 zeros (upsample by L
		// via zero-stuffing), advancing the polyphase commutator by one
		// upsampled sample at a time.
		for i := 0; i < r.l; i++ {
			var v float64
			if i == 0 {
				v = float64(s)
			}
			r.hist = append(r.hist[1:], v)

			if r.phase == 0 {
				out = append(out, int16(clamp(r.filterAt())))
			}
			r.phase = (r.phase + 1) % r.m
		}
	}
	return out
}

func (r *Resampler) filterAt() float64 {
	var acc float64
	n := len(r.hist)
	for i, tap := range r.taps {
		idx := n - len(r.taps) + i
		if idx >= 0 && idx < n {
			acc += r.hist[idx] * tap
		}
	}
	return acc
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hamming(i, n int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func clamp(v float64) float64 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
