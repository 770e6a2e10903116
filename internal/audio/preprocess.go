package audio

import "math"

// RemoveDC subtracts the mean from every sample
func RemoveDC(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(samples)))
	for i := range samples {
		samples[i] -= mean
	}
}

// PeakNormalize scales samples so the largest magnitude is 1. Silence is left untouched.
func PeakNormalize(samples []float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

// biquad is one second-order IIR section in direct form I
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

func (q *biquad) process(x float64) float64 {
	y := q.b0*x + q.b1*q.x1 + q.b2*q.x2 - q.a1*q.y1 - q.a2*q.y2
	q.x2, q.x1 = q.x1, x
	q.y2, q.y1 = q.y1, y
	return y
}

// butterworthHighPass3 returns a third-order Butterworth high-pass as a
// first-order section followed by a second-order section with Q = 1.
func butterworthHighPass3(cutoff float64, sampleRate int) []*biquad {
	k := math.Tan(math.Pi * cutoff / float64(sampleRate))

	first := &biquad{
		b0: 1 / (1 + k),
		b1: -1 / (1 + k),
		a1: (k - 1) / (k + 1),
	}

	const q = 1.0
	norm := 1 / (1 + k/q + k*k)
	second := &biquad{
		b0: norm,
		b1: -2 * norm,
		b2: norm,
		a1: 2 * (k*k - 1) * norm,
		a2: (1 - k/q + k*k) * norm,
	}

	return []*biquad{first, second}
}

// HighPass applies a third-order Butterworth high-pass filter in place
func HighPass(samples []float32, cutoff float64, sampleRate int) {
	if len(samples) == 0 || cutoff <= 0 || cutoff >= float64(sampleRate)/2 {
		return
	}
	sections := butterworthHighPass3(cutoff, sampleRate)
	for i, s := range samples {
		y := float64(s)
		for _, sec := range sections {
			y = sec.process(y)
		}
		samples[i] = float32(y)
	}
}

// Normalize removes DC bias, peak-normalizes and high-passes at 80 Hz
func Normalize(samples []float32, sampleRate int) {
	RemoveDC(samples)
	PeakNormalize(samples)
	HighPass(samples, 80, sampleRate)
}
