// Package fade computes and applies the fixed raised-cosine fade-in/out
// envelopes used to window an impulse response before it is partitioned
// for block convolution.
package fade

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Spec describes the fade-in/out window of an impulse response, all
// fields in seconds relative to the start of the IR.
type Spec struct {
	FadeInStart   float64
	FadeInLength  float64
	FadeOutStart  float64
	FadeOutLength float64
}

// Default is the no-op fade: zero-length fades at the start of the IR.
var Default = Spec{}

// CalcPartitions works out which slice of a raw impulse response
// actually needs to be convolved, and how many block-sized partitions
// that slice occupies.
//
// filterStart is the first sample of data (in samples, from the start
// of the raw IR) that survives the fade-in. filterLenUsed is how many
// samples from filterStart onward are kept. partitions is
// ceil(filterLenUsed/blockSize).
func CalcPartitions(f Spec, sampleRate float64, filterLen, blockSize int) (filterStart, filterLenUsed, partitions int) {
	filterStart = int(math.Floor(math.Max(f.FadeInStart, 0) * sampleRate))
	if filterStart > filterLen {
		filterStart = filterLen
	}

	remaining := filterLen - filterStart
	if f.FadeOutStart+f.FadeOutLength == 0 {
		filterLenUsed = remaining
	} else {
		tail := int(math.Ceil(math.Max(f.FadeOutStart+f.FadeOutLength-f.FadeInStart, 0) * sampleRate))
		filterLenUsed = remaining
		if tail < filterLenUsed {
			filterLenUsed = tail
		}
	}
	if filterLenUsed < 0 {
		filterLenUsed = 0
	}

	if blockSize <= 0 || filterLenUsed == 0 {
		partitions = 0
		return
	}
	partitions = (filterLenUsed + blockSize - 1) / blockSize
	return
}

// envelope builds a raised-cosine ramp of length n: 0.5 - 0.5*cos(pi*i/n)
// at each integer i in [0, n).
func envelope(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	last := float64(n)
	for i := 0; i < n; i++ {
		t := float64(i) / last
		out[i] = 0.5 - 0.5*math.Cos(math.Pi*t)
	}
	return out
}

// BuildEnvelopes returns the fade-in envelope (rising 0->1, applied to
// the leading samples of data in order) and the fade-out envelope
// (also rising 0->1, but applied by Apply to the trailing samples of
// data in reverse order, so a fade-out's i-th coefficient multiplies
// data[len(data)-1-i]). The two envelopes hold identical values when
// FadeInLength == FadeOutLength; only the direction they are walked in
// differs.
func BuildEnvelopes(f Spec, sampleRate float64) (fadeIn, fadeOut []float64) {
	inLen := int(math.Ceil(math.Max(f.FadeInLength, 0) * sampleRate))
	outLen := int(math.Ceil(math.Max(f.FadeOutLength, 0) * sampleRate))

	fadeIn = envelope(inLen)
	fadeOut = envelope(outLen)
	return
}

// Apply multiplies the leading len(fadeIn) samples of data by fadeIn
// (in order) and the trailing len(fadeOut) samples by fadeOut, walking
// fadeOut forwards while walking data backwards from its last sample.
func Apply(data []float64, fadeIn, fadeOut []float64) {
	if n := len(fadeIn); n > 0 {
		if n > len(data) {
			n = len(data)
		}
		vecmath.MulBlockInPlace(data[:n], fadeIn[:n])
	}
	if n := len(fadeOut); n > 0 {
		if n > len(data) {
			n = len(data)
		}
		for i := 0; i < n; i++ {
			data[len(data)-1-i] *= fadeOut[i]
		}
	}
}
