// Package worker implements the per-channel real-time convolution
// worker: one goroutine per output channel that runs one partitioned
// convolution per block, writes the result into a rotating delay line,
// and reads that line back at a linearly-ramping (gain, delay) pair.
package worker

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ErwanDouaille/spatialconv/blockconv"
	"github.com/ErwanDouaille/spatialconv/dsp/core"
	"github.com/ErwanDouaille/spatialconv/interp"
)

// DefaultMaxDelay is the module-wide default bound on total delay, in
// samples, used to size a worker's delay buffer when no explicit bound
// is given.
const DefaultMaxDelay = 2400

// Option configures a ChannelWorker at construction.
type Option func(*ChannelWorker)

// WithHQ selects the high-quality (Hermite) or low-quality (floor)
// fractional-delay read path. Defaults to high quality.
func WithHQ(hq bool) Option {
	return func(w *ChannelWorker) { w.hq = hq }
}

// WithInitialLevel sets the gain the worker ramps from on its very
// first block. Defaults to 1.
func WithInitialLevel(level float64) Option {
	return func(w *ChannelWorker) { w.level1 = level }
}

// WithInitialDelay sets the delay, in samples, the worker ramps from on
// its very first block. Defaults to 0.
func WithInitialDelay(delay float64) Option {
	return func(w *ChannelWorker) { w.delay1 = delay }
}

// WithLogger installs a sink for non-fatal diagnostic messages.
// Defaults to a no-op.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(w *ChannelWorker) {
		if logf != nil {
			w.logf = logf
		}
	}
}

// ChannelWorker is a real-time worker bound to one output channel.
type ChannelWorker struct {
	ctx       *blockconv.Context
	convolver *blockconv.Convolver

	blockSize  int
	partitions int
	maxdelay   float64

	delay          []float64
	delaylen       int
	delaypos       int
	effectiveMaxDelay float64

	level1, delay1 float64
	hq             bool

	currentFilter *blockconv.Filter

	zeroblocks    int
	maxzeroblocks int

	input         []float64
	output        []float64
	convScratch   []float64
	pendingFilter *blockconv.Filter
	outputLevel   float64
	outputDelay   float64

	startCh chan struct{}
	doneCh  chan struct{}
	quit    atomic.Bool
	wg      sync.WaitGroup

	logf func(format string, args ...any)
}

// New creates a worker bound to ctx, with enough convolver capacity for
// filters of up to partitions partitions, and a delay buffer sized for
// up to maxdelay samples of total delay (static + scaled dynamic +
// extra_delay).
func New(ctx *blockconv.Context, partitions int, maxdelay float64, opts ...Option) (*ChannelWorker, error) {
	if ctx == nil {
		return nil, fmt.Errorf("worker: nil context")
	}
	if partitions < 1 {
		partitions = 1
	}
	if maxdelay < 0 {
		maxdelay = 0
	}

	blockSize := ctx.BlockSize()
	conv, err := blockconv.NewConvolver(ctx, partitions)
	if err != nil {
		return nil, fmt.Errorf("worker: creating convolver: %w", err)
	}

	delaylen := int(math.Ceil((maxdelay+float64(blockSize))/float64(blockSize)+1)) * blockSize
	effectiveMax := float64(delaylen-blockSize-1-interp.AdditionalDelayRequired())
	if effectiveMax < 0 {
		effectiveMax = 0
	}

	maxzeroblocks := partitions + int(math.Ceil(maxdelay/float64(blockSize))) + 1

	w := &ChannelWorker{
		ctx:               ctx,
		convolver:         conv,
		blockSize:         blockSize,
		partitions:        partitions,
		maxdelay:          maxdelay,
		delay:             make([]float64, delaylen),
		delaylen:          delaylen,
		effectiveMaxDelay: effectiveMax,
		level1:            1,
		delay1:            0,
		hq:                true,
		maxzeroblocks:     maxzeroblocks,
		zeroblocks:        maxzeroblocks,
		input:             make([]float64, blockSize),
		output:            make([]float64, blockSize),
		convScratch:       make([]float64, blockSize),
		outputLevel:       1,
		startCh:           make(chan struct{}, 1),
		doneCh:            make(chan struct{}, 1),
		logf:              func(string, ...any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// BlockSize returns the worker's fixed block size.
func (w *ChannelWorker) BlockSize() int { return w.blockSize }

// MaxDelay returns the maximum total delay, in samples, this worker's
// delay buffer was sized for.
func (w *ChannelWorker) MaxDelay() float64 { return w.effectiveMaxDelay }

// IsProcessing reports whether the worker would still do real work if
// handed another silent block, i.e. whether its convolution tail and
// delay-line history might still hold nonzero energy.
func (w *ChannelWorker) IsProcessing() bool {
	return w.zeroblocks < w.maxzeroblocks
}

// PrepareBlock copies input into the worker's private input buffer,
// updates the silence-run counter, and latches the filter/level/delay
// parameters that processBlock will use once signaled. It returns
// whether the caller should Signal this worker for this block (false
// means the block is silence-elided and must be skipped entirely).
func (w *ChannelWorker) PrepareBlock(input []float64, filter *blockconv.Filter, level, delay float64) (bool, error) {
	if len(input) != w.blockSize {
		return false, fmt.Errorf("worker: input length %d != block size %d", len(input), w.blockSize)
	}
	copy(w.input, input)

	nonzero := false
	for _, v := range input {
		if v != 0 {
			nonzero = true
			break
		}
	}
	if nonzero {
		w.zeroblocks = 0
	} else if w.zeroblocks < w.maxzeroblocks {
		w.zeroblocks++
	}

	w.pendingFilter = filter
	w.outputLevel = level
	w.outputDelay = delay

	return w.zeroblocks < w.maxzeroblocks, nil
}

// Signal wakes the worker's goroutine to process the block latched by
// the most recent PrepareBlock call. Callers must only call Signal
// after PrepareBlock returned true.
func (w *ChannelWorker) Signal() {
	w.startCh <- struct{}{}
}

// Wait blocks until the worker finishes the block it was last Signaled
// for. Output() is valid to read once Wait returns.
func (w *ChannelWorker) Wait() {
	<-w.doneCh
}

// Output returns the worker's most recently produced block. The
// returned slice is owned by the worker and must not be retained past
// the next Signal call.
func (w *ChannelWorker) Output() []float64 { return w.output }

// Close requests the worker's goroutine to exit and blocks until it
// has. Close is idempotent.
func (w *ChannelWorker) Close() {
	if w.quit.CompareAndSwap(false, true) {
		w.startCh <- struct{}{}
		w.wg.Wait()
	}
}

func (w *ChannelWorker) run() {
	defer w.wg.Done()
	for {
		<-w.startCh
		if w.quit.Load() {
			return
		}
		w.processBlock()
		w.doneCh <- struct{}{}
	}
}

// wrapMod returns x modulo m, folded into [0, m).
func wrapMod(x, m float64) float64 {
	if m <= 0 {
		return 0
	}
	v := math.Mod(x, m)
	if v < 0 {
		v += m
	}
	return v
}

func (w *ChannelWorker) processBlock() {
	writeBase := w.delaypos

	if w.zeroblocks < w.partitions {
		filter := w.pendingFilter
		if filter != nil && filter != w.currentFilter {
			var err error
			if w.currentFilter == nil {
				err = w.convolver.SetFilter(filter)
			} else {
				err = w.convolver.CrossfadeFilter(filter)
			}
			if err != nil {
				w.logf("worker: installing filter: %v", err)
			} else {
				w.currentFilter = filter
			}
		}
		if w.currentFilter != nil {
			if err := w.convolver.FilterBlock(w.input, w.convScratch); err != nil {
				w.logf("worker: filter_block: %v", err)
				core.Zero(w.convScratch)
			}
		} else {
			core.Zero(w.convScratch)
		}
		for i := 0; i < w.blockSize; i++ {
			w.delay[(writeBase+i)%w.delaylen] = w.convScratch[i]
		}
	} else {
		for i := 0; i < w.blockSize; i++ {
			w.delay[(writeBase+i)%w.delaylen] = 0
		}
	}

	delay2 := math.Min(w.outputDelay, w.effectiveMaxDelay)
	if delay2 < 0 {
		delay2 = 0
	}
	level2 := w.outputLevel

	fpos1 := float64(w.delaypos+w.delaylen) - w.delay1
	fpos2 := float64(w.delaypos+w.delaylen+w.blockSize) - delay2

	last := float64(w.blockSize)
	for i := 0; i < w.blockSize; i++ {
		b := float64(i) / last
		a := 1 - b
		fpos := a*fpos1 + b*fpos2
		gain := core.LinearRamp(w.level1, level2, b)

		pos := wrapMod(fpos, float64(w.delaylen))
		var sample float64
		if w.hq {
			sample = interp.Read(w.delay, 0, 1, w.delaylen, pos)
		} else {
			sample = interp.ReadLQ(w.delay, 0, 1, w.delaylen, pos)
		}
		w.output[i] = gain * sample
	}

	w.delaypos = (w.delaypos + w.blockSize) % w.delaylen
	w.delay1 = delay2
	w.level1 = level2
}
