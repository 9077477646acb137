// Package blockconv implements uniform-partitioned, frequency-domain
// block convolution with single-block crossfading between impulse
// responses. One Context is shared by every Filter and Convolver built
// at a given block size; one Filter holds the partitioned spectrum of
// an impulse response, shared read-only across workers; one Convolver
// holds the per-worker running state (input history and pending
// crossfade).
package blockconv

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ErrPartitionOverflow is returned when a Filter has more partitions
// than the Convolver it is bound to was built to hold.
var ErrPartitionOverflow = errors.New("blockconv: filter has more partitions than convolver capacity")

// ErrLengthMismatch is returned when an input or output block does not
// match the Context's block size.
var ErrLengthMismatch = errors.New("blockconv: block length mismatch")

// Context owns the FFT plan shared by every Filter and Convolver built
// at a given block size. Changing block size requires a new Context.
type Context struct {
	blockSize int
	fftSize   int
	plan      *algofft.Plan[complex128]
}

// NewContext creates a convolution context for the given block size.
func NewContext(blockSize int) (*Context, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockconv: block size must be > 0: %d", blockSize)
	}
	fftSize := 2 * blockSize
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("blockconv: failed to create FFT plan: %w", err)
	}
	return &Context{blockSize: blockSize, fftSize: fftSize, plan: plan}, nil
}

// BlockSize returns the context's fixed block size.
func (c *Context) BlockSize() int { return c.blockSize }

// Filter holds the partitioned frequency-domain representation of one
// impulse response, split into ctx.BlockSize()-sample partitions.
// Filters are immutable after construction and safe to share across
// many Convolvers.
type Filter struct {
	ctx        *Context
	partitions [][]complex128 // len = numPartitions, each len ctx.fftSize
}

// NewFilter partitions data into blocks of ctx.BlockSize() samples (the
// last partition zero-padded if short) and transforms each into the
// frequency domain for overlap-save multiplication.
func NewFilter(ctx *Context, data []float64) (*Filter, error) {
	if ctx == nil {
		return nil, fmt.Errorf("blockconv: nil context")
	}
	b := ctx.blockSize
	numPartitions := (len(data) + b - 1) / b
	f := &Filter{ctx: ctx, partitions: make([][]complex128, numPartitions)}

	scratch := make([]complex128, ctx.fftSize)
	for p := 0; p < numPartitions; p++ {
		for i := range scratch {
			scratch[i] = 0
		}
		start := p * b
		end := start + b
		if end > len(data) {
			end = len(data)
		}
		for i := start; i < end; i++ {
			scratch[i-start] = complex(data[i], 0)
		}

		dst := make([]complex128, ctx.fftSize)
		if err := ctx.plan.Forward(dst, scratch); err != nil {
			return nil, fmt.Errorf("blockconv: forward FFT of partition %d: %w", p, err)
		}
		f.partitions[p] = dst
	}
	return f, nil
}

// NumPartitions returns how many ctx.BlockSize()-sample partitions this
// filter occupies.
func (f *Filter) NumPartitions() int { return len(f.partitions) }

// Convolver is the per-channel running state of the partitioned
// convolution: a ring of transformed input history blocks plus whatever
// filter (or pair of filters, mid-crossfade) is currently bound.
type Convolver struct {
	ctx           *Context
	maxPartitions int

	history  [][]complex128 // ring of ctx.fftSize-length spectra
	writePos int
	prevRaw  []float64 // last raw input block, for overlap-save framing

	accum   []complex128
	timeBuf []complex128

	current     *Filter
	pendingOld  *Filter
	crossfading bool
}

// NewConvolver creates a per-channel convolver capable of holding
// filters with up to maxPartitions partitions.
func NewConvolver(ctx *Context, maxPartitions int) (*Convolver, error) {
	if ctx == nil {
		return nil, fmt.Errorf("blockconv: nil context")
	}
	if maxPartitions < 1 {
		maxPartitions = 1
	}
	history := make([][]complex128, maxPartitions)
	for i := range history {
		history[i] = make([]complex128, ctx.fftSize)
	}
	return &Convolver{
		ctx:           ctx,
		maxPartitions: maxPartitions,
		history:       history,
		prevRaw:       make([]float64, ctx.blockSize),
		accum:         make([]complex128, ctx.fftSize),
		timeBuf:       make([]complex128, ctx.fftSize),
	}, nil
}

func (c *Convolver) validateFilter(f *Filter) error {
	if f == nil {
		return fmt.Errorf("blockconv: nil filter")
	}
	if f.NumPartitions() > c.maxPartitions {
		return fmt.Errorf("%w: %d partitions > capacity %d", ErrPartitionOverflow, f.NumPartitions(), c.maxPartitions)
	}
	return nil
}

// SetFilter installs f immediately, with no crossfade. Used the first
// time a worker is bound to an IR.
func (c *Convolver) SetFilter(f *Filter) error {
	if err := c.validateFilter(f); err != nil {
		return err
	}
	c.current = f
	c.pendingOld = nil
	c.crossfading = false
	return nil
}

// CrossfadeFilter schedules f to replace the current filter. The very
// next FilterBlock call blends the old and new filters' outputs
// linearly across that one block; every call after that uses f alone.
func (c *Convolver) CrossfadeFilter(f *Filter) error {
	if err := c.validateFilter(f); err != nil {
		return err
	}
	if c.current == nil {
		return c.SetFilter(f)
	}
	c.pendingOld = c.current
	c.current = f
	c.crossfading = true
	return nil
}

// updateHistory transforms [prevRaw, in] (the overlap-save frame) into
// the frequency domain and stores it as the newest ring entry.
func (c *Convolver) updateHistory(in []float64) error {
	b := c.ctx.blockSize
	for i := 0; i < b; i++ {
		c.timeBuf[i] = complex(c.prevRaw[i], 0)
		c.timeBuf[b+i] = complex(in[i], 0)
	}
	if err := c.ctx.plan.Forward(c.history[c.writePos], c.timeBuf); err != nil {
		return fmt.Errorf("blockconv: forward FFT of input frame: %w", err)
	}
	copy(c.prevRaw, in)
	return nil
}

// processWithFilter multiply-accumulates the input history against f's
// partitions and returns the linear (overlap-save) output block.
func (c *Convolver) processWithFilter(f *Filter, out []float64) error {
	for i := range c.accum {
		c.accum[i] = 0
	}
	for p := 0; p < len(f.partitions); p++ {
		idx := (c.writePos - p + c.maxPartitions) % c.maxPartitions
		h := c.history[idx]
		fp := f.partitions[p]
		for k := range c.accum {
			c.accum[k] += h[k] * fp[k]
		}
	}
	if err := c.ctx.plan.Inverse(c.timeBuf, c.accum); err != nil {
		return fmt.Errorf("blockconv: inverse FFT: %w", err)
	}
	b := c.ctx.blockSize
	for i := 0; i < b; i++ {
		out[i] = real(c.timeBuf[b+i])
	}
	return nil
}

// FilterBlock convolves one block of input against the currently bound
// filter (blending with the outgoing filter for exactly one block if a
// crossfade was scheduled) and writes blockSize samples to out.
func (c *Convolver) FilterBlock(in, out []float64) error {
	b := c.ctx.blockSize
	if len(in) != b || len(out) != b {
		return ErrLengthMismatch
	}
	if c.current == nil {
		return fmt.Errorf("blockconv: no filter bound")
	}

	if err := c.updateHistory(in); err != nil {
		return err
	}

	if err := c.processWithFilter(c.current, out); err != nil {
		return err
	}

	if c.crossfading && c.pendingOld != nil {
		oldOut := make([]float64, b)
		if err := c.processWithFilter(c.pendingOld, oldOut); err != nil {
			return err
		}
		last := float64(b - 1)
		if last <= 0 {
			last = 1
		}
		for i := 0; i < b; i++ {
			t := float64(i) / last
			out[i] = (1-t)*oldOut[i] + t*out[i]
		}
		c.crossfading = false
		c.pendingOld = nil
	}

	c.writePos = (c.writePos + 1) % c.maxPartitions
	return nil
}
