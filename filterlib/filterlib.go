// Package filterlib builds a library of partitioned impulse-response
// filters from raw sample data, decoded audio files, or a SOFA data
// set, applying the shared fade window and partition-count accounting
// from package fade before handing each IR to package blockconv.
package filterlib

import (
	"fmt"

	"github.com/ErwanDouaille/spatialconv/audiosource"
	"github.com/ErwanDouaille/spatialconv/blockconv"
	"github.com/ErwanDouaille/spatialconv/fade"
	"github.com/ErwanDouaille/spatialconv/sofa"
)

// Library holds zero or more partitioned impulse-response filters, all
// built against the same blockconv.Context (and therefore the same
// block size).
type Library struct {
	ctx           *blockconv.Context
	filters       []*blockconv.Filter
	maxPartitions int
}

// New returns an empty library bound to ctx. The same *Library value is
// used for all four construction modes named by spec: raw data, an
// audio file, a SOFA data set, and static-convolver mode (built one
// entry at a time via AddStatic).
func New(ctx *blockconv.Context) *Library {
	return &Library{ctx: ctx}
}

// Count returns the number of IRs currently in the library.
func (l *Library) Count() int { return len(l.filters) }

// Filter returns the i-th filter, or false if i is out of range.
func (l *Library) Filter(i int) (*blockconv.Filter, bool) {
	if i < 0 || i >= len(l.filters) {
		return nil, false
	}
	return l.filters[i], true
}

// MaxPartitions returns the largest partition count across every
// filter currently in the library, i.e. the convolver capacity a
// worker must be built with to use any IR from this library.
func (l *Library) MaxPartitions() int { return l.maxPartitions }

// addIR windows data per fadeSpec/sampleRate, partitions it, and
// appends the resulting filter. It returns the new entry's index.
func (l *Library) addIR(data []float64, sampleRate float64, fadeSpec fade.Spec) (int, error) {
	filterStart, filterLenUsed, _ := fade.CalcPartitions(fadeSpec, sampleRate, len(data), l.ctx.BlockSize())
	if filterStart+filterLenUsed > len(data) {
		filterLenUsed = len(data) - filterStart
	}

	slice := make([]float64, filterLenUsed)
	copy(slice, data[filterStart:filterStart+filterLenUsed])

	fadeIn, fadeOut := fade.BuildEnvelopes(fadeSpec, sampleRate)
	fade.Apply(slice, fadeIn, fadeOut)

	f, err := blockconv.NewFilter(l.ctx, slice)
	if err != nil {
		return -1, fmt.Errorf("filterlib: building filter: %w", err)
	}
	if f.NumPartitions() > l.maxPartitions {
		l.maxPartitions = f.NumPartitions()
	}
	l.filters = append(l.filters, f)
	return len(l.filters) - 1, nil
}

// CreateIRs builds a library directly from raw sample arrays, one IR
// per slice in irs, windowed at sampleRate.
func CreateIRs(ctx *blockconv.Context, sampleRate float64, irs [][]float64, fadeSpec fade.Spec) (*Library, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("filterlib: sample rate must be > 0: %g", sampleRate)
	}
	l := New(ctx)
	for i, ir := range irs {
		if _, err := l.addIR(ir, sampleRate, fadeSpec); err != nil {
			return nil, fmt.Errorf("filterlib: IR %d: %w", i, err)
		}
	}
	return l, nil
}

// LoadAudioFile builds a library with one IR per channel of src, read
// in full and de-interleaved.
func LoadAudioFile(ctx *blockconv.Context, src audiosource.AudioFileSource, fadeSpec fade.Spec) (*Library, error) {
	interleaved, err := src.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("filterlib: reading audio file: %w", err)
	}
	channels := src.Channels()
	if channels <= 0 {
		return nil, fmt.Errorf("filterlib: audio source reports %d channels", channels)
	}
	frames := len(interleaved) / channels

	l := New(ctx)
	for c := 0; c < channels; c++ {
		ir := make([]float64, frames)
		for i := 0; i < frames; i++ {
			ir[i] = interleaved[i*channels+c]
		}
		if _, err := l.addIR(ir, src.SampleRate(), fadeSpec); err != nil {
			return nil, fmt.Errorf("filterlib: channel %d: %w", c, err)
		}
	}
	return l, nil
}

// LoadSOFA builds a library with one IR per (measurement, receiver,
// emitter) triplet of src, appended in the canonical SOFA order
// m -> r -> e so that the resulting index equals sofa.Offset(m,r,e,...).
func LoadSOFA(ctx *blockconv.Context, src sofa.Source, fadeSpec fade.Spec) (*Library, error) {
	if src == nil {
		return nil, fmt.Errorf("filterlib: nil SOFA source")
	}
	l := New(ctx)
	nm, nr, ne := src.NumMeasurements(), src.NumReceivers(), src.NumEmitters()
	sr := src.SampleRate()
	for m := 0; m < nm; m++ {
		for r := 0; r < nr; r++ {
			for e := 0; e < ne; e++ {
				idx, err := l.addIR(src.IR(m, r, e), sr, fadeSpec)
				if err != nil {
					return nil, fmt.Errorf("filterlib: SOFA (m=%d,r=%d,e=%d): %w", m, r, e, err)
				}
				if want := sofa.Offset(m, r, e, nr, ne); idx != want {
					return nil, fmt.Errorf("filterlib: SOFA index contract violated: got %d want %d", idx, want)
				}
			}
		}
	}
	return l, nil
}

// PrepareStatic returns an empty library for the static-convolver
// construction mode, populated one entry at a time via AddStatic.
func PrepareStatic(ctx *blockconv.Context) *Library {
	return New(ctx)
}

// AddStatic appends one statically-configured IR to a library built by
// PrepareStatic and returns its index together with its delay converted
// from seconds to samples at sampleRate — the one construction path
// where delay is specified in seconds rather than already in samples.
func (l *Library) AddStatic(data []float64, sampleRate float64, fadeSpec fade.Spec, delaySeconds float64) (irIndex int, delaySamples float64, err error) {
	idx, err := l.addIR(data, sampleRate, fadeSpec)
	if err != nil {
		return -1, 0, err
	}
	return idx, delaySeconds * sampleRate, nil
}
