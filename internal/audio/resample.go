package audio

import "math"

// Resample converts samples between rates by linear interpolation.
// When downsampling the input is first low-passed below the new
// Nyquist frequency so content above it does not fold back.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	if to < from {
		samples = lowPassFIR(samples, 0.45*float64(to)/float64(from), from/to)
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// lowPassFIR applies a Blackman-windowed sinc filter. cutoff is in
// cycles per sample and factor widens the kernel for steep decimation.
func lowPassFIR(samples []float32, cutoff float64, factor int) []float32 {
	if factor < 1 {
		factor = 1
	}
	half := 24 * factor
	taps := 2*half + 1

	kernel := make([]float64, taps)
	var sum float64
	for i := range kernel {
		m := float64(i - half)
		v := 2 * cutoff
		if m != 0 {
			v = math.Sin(2*math.Pi*cutoff*m) / (math.Pi * m)
		}
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(taps-1)) +
			0.08*math.Cos(4*math.Pi*float64(i)/float64(taps-1))
		kernel[i] = v * w
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	out := make([]float32, len(samples))
	for i := range samples {
		var acc float64
		for k, c := range kernel {
			j := i + k - half
			if j < 0 || j >= len(samples) {
				continue
			}
			acc += c * float64(samples[j])
		}
		out[i] = float32(acc)
	}
	return out
}

// Duration returns the length of samples at the given rate in seconds
func Duration(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}
