// Package delaytable holds the per-IR delay decomposition applied by a
// ChannelWorker on top of its extra_delay parameter: a dynamic
// (scalable, e.g. interaural-time-difference-like) component and a
// static component, combined as static[i] + scale*dynamic[i].
package delaytable

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ErwanDouaille/spatialconv/sofa"
)

// Table holds one dynamic and one static delay value (in samples) per
// IR index.
type Table struct {
	dynamic  []float64
	static   []float64
	maxdelay float64
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Len returns the number of IR indices the table currently covers.
func (t *Table) Len() int { return len(t.dynamic) }

// MaxDelay returns the largest static[i]+dynamic[i] seen across the
// most recently loaded table, computed at load time with scale=1.
func (t *Table) MaxDelay() float64 { return t.maxdelay }

// Delay returns the total delay, in samples, for IR index i at the
// given dynamic-component scale factor.
func (t *Table) Delay(i int, scale float64) float64 {
	if i < 0 || i >= len(t.dynamic) {
		return 0
	}
	return t.static[i] + scale*t.dynamic[i]
}

func (t *Table) recomputeMax() {
	max := 0.0
	for i := range t.dynamic {
		v := t.static[i] + t.dynamic[i]
		if v > max {
			max = v
		}
	}
	t.maxdelay = max
}

// LoadFile reads one or two whitespace-separated floats per line: the
// first is the dynamic component, the second (if present) is the
// static component; a missing second value is treated as 0. Both
// values are already in samples; no sample-rate conversion is applied.
func (t *Table) LoadFile(r io.Reader) error {
	var dynamic, static []float64
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 1 || len(fields) > 2 {
			return fmt.Errorf("delaytable: line %d: expected 1 or 2 values, got %d", lineNo, len(fields))
		}
		dyn, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("delaytable: line %d: %w", lineNo, err)
		}
		st := 0.0
		if len(fields) == 2 {
			st, err = strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return fmt.Errorf("delaytable: line %d: %w", lineNo, err)
			}
		}
		dynamic = append(dynamic, dyn)
		static = append(static, st)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("delaytable: reading: %w", err)
	}
	t.dynamic = dynamic
	t.static = static
	t.recomputeMax()
	return nil
}

// SetArrays installs explicit parallel dynamic/static arrays, already
// in samples. A nil static is treated as all zeros.
func (t *Table) SetArrays(dynamic, static []float64) error {
	if static != nil && len(static) != len(dynamic) {
		return fmt.Errorf("delaytable: dynamic/static length mismatch: %d vs %d", len(dynamic), len(static))
	}
	t.dynamic = append([]float64(nil), dynamic...)
	if static == nil {
		t.static = make([]float64, len(dynamic))
	} else {
		t.static = append([]float64(nil), static...)
	}
	t.recomputeMax()
	return nil
}

// LoadSOFA decomposes a SOFA data set's delays into a per-emitter mean
// (the static component) and a per-(measurement,receiver) deviation
// from that mean (the dynamic component), indexed in the canonical SOFA
// offset m*nr*ne + r*ne + e. Raw delay values are in seconds, per the
// SOFA Data.Delay convention, and are converted to samples via
// src.SampleRate() before the mean is taken (matching the original's
// `delay = sofadelays[...] * sr`). Delay measurements that run short of
// NumMeasurements() wrap via m % NumDelayMeasurements(), so a
// measurement index can repeat in the mean. weights, if non-nil, weight
// the per-emitter mean (one weight per (m,r) pair, in the same m-outer,
// r-inner order as the mean accumulation, length nm*nr); nil means
// uniform weighting.
func (t *Table) LoadSOFA(src sofa.Source, delays sofa.DelaySource, weights []float64) error {
	if src == nil || delays == nil {
		return fmt.Errorf("delaytable: nil SOFA source")
	}
	nm := src.NumMeasurements()
	nr := src.NumReceivers()
	ne := src.NumEmitters()
	ndm := delays.NumDelayMeasurements()
	if ndm <= 0 || ndm > nm {
		return fmt.Errorf("delaytable: invalid delay measurement count %d for %d measurements", ndm, nm)
	}
	sampleRate := src.SampleRate()

	n := nm * nr * ne
	dynamic := make([]float64, n)
	static := make([]float64, n)

	raw := make([]float64, nm*nr)
	for e := 0; e < ne; e++ {
		k := 0
		for m := 0; m < nm; m++ {
			dm := m % ndm
			for r := 0; r < nr; r++ {
				raw[k] = delays.Delay(dm, r, e) * sampleRate
				k++
			}
		}
		mean := stat.Mean(raw, weights)

		k = 0
		for m := 0; m < nm; m++ {
			for r := 0; r < nr; r++ {
				idx := sofa.Offset(m, r, e, nr, ne)
				dynamic[idx] = raw[k] - mean
				static[idx] = mean
				k++
			}
		}
	}

	t.dynamic = dynamic
	t.static = static
	t.recomputeMax()
	return nil
}
