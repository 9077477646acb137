package testutil

import (
	"github.com/ErwanDouaille/spatialconv/dsp/core"
	"github.com/ErwanDouaille/spatialconv/dsp/signal"
)

// DeterministicSine generates a deterministic sine wave via dsp/signal's
// Generator, which callers exercise directly where they need more
// control (seeding, normalization).
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	gen := signal.NewGenerator(core.WithSampleRate(sampleRate))
	out, err := gen.Sine(freqHz, amplitude, length)
	if err != nil {
		panic(err)
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for
// reproducibility, via dsp/signal's Generator.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	gen := signal.NewGeneratorWithOptions(nil, signal.WithSeed(seed))
	out, err := gen.WhiteNoise(amplitude, length)
	if err != nil {
		panic(err)
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// Ones returns a slice of length n filled with 1.0.
func Ones(n int) []float64 {
	return DC(1.0, n)
}
