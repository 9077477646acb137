// Package interp implements the fractional-sample read used to apply a
// per-channel delay: a 4-point cubic Hermite interpolator over a
// circular buffer, plus a cheap floor-based low-quality fallback.
package interp

import "math"

// hermiteLatency is the number of samples of lookahead the 4-point
// Hermite kernel needs beyond the sample at the requested position
// (one neighbor past the interpolation point).
const hermiteLatency = 1

// AdditionalDelayRequired returns the extra latency, in samples, that
// the high-quality interpolation kernel needs beyond the nominal delay
// requested by a caller. Callers that size their delay buffers from a
// maximum delay value must add this.
func AdditionalDelayRequired() int {
	return hermiteLatency
}

// hermite4 computes 4-point cubic Hermite interpolation at fractional
// position t in [0,1] between x0 and x1, using neighbors xm1 and x2.
func hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)
	return ((c3*t+c2)*t+c1)*t + c0
}

// at reads buffer[channel + stride*index] treating the buffer as a
// circular ring of length samples (length frames per channel), wrapping
// index modulo length so taps near either edge read from the opposite
// end of the ring rather than repeating the edge sample.
func at(buffer []float64, channel, stride, length, index int) float64 {
	index %= length
	if index < 0 {
		index += length
	}
	return buffer[channel+stride*index]
}

// Read performs high-quality fractional-sample interpolation. buffer
// holds length frames of possibly-interleaved audio; channel selects
// which interleaved lane to read, stride is the number of float64s
// between consecutive frames (1 for a mono/deinterleaved buffer).
// fpos is the fractional read position in frames within the ring
// [0, length); a negative fpos is clamped to 0 and an fpos at or beyond
// length is clamped to length-1.
func Read(buffer []float64, channel, stride, length int, fpos float64) float64 {
	if length <= 0 {
		return 0
	}
	if fpos < 0 {
		fpos = 0
	}
	if fpos >= float64(length) {
		fpos = float64(length - 1)
	}

	p := int(math.Floor(fpos))
	t := fpos - float64(p)

	xm1 := at(buffer, channel, stride, length, p-1)
	x0 := at(buffer, channel, stride, length, p)
	x1 := at(buffer, channel, stride, length, p+1)
	x2 := at(buffer, channel, stride, length, p+2)
	return hermite4(t, xm1, x0, x1, x2)
}

// ReadLQ performs the low-quality fallback: nearest-below (floor) read,
// with no interpolation and no additional latency requirement.
func ReadLQ(buffer []float64, channel, stride, length int, fpos float64) float64 {
	if length <= 0 {
		return 0
	}
	if fpos < 0 {
		fpos = 0
	}
	p := int(math.Floor(fpos))
	return at(buffer, channel, stride, length, p)
}
