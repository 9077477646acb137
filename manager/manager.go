// Package manager implements the top-level coordinator: it owns the
// filter library, the delay table, and a pool of per-channel workers,
// and fans one audio block out across them each call to Process.
package manager

import (
	"fmt"
	"io"
	"sync"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/ErwanDouaille/spatialconv/blockconv"
	"github.com/ErwanDouaille/spatialconv/delaytable"
	"github.com/ErwanDouaille/spatialconv/fade"
	"github.com/ErwanDouaille/spatialconv/filterlib"
	"github.com/ErwanDouaille/spatialconv/sofa"
	"github.com/ErwanDouaille/spatialconv/worker"
)

// channelParams is the (irindex, level, extra_delay) triple a caller
// sets via SelectIR, applied to a worker once per block.
type channelParams struct {
	ir         int
	level      float64
	extraDelay float64
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger installs a sink for non-fatal diagnostic messages.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(m *Manager) {
		if logf != nil {
			m.logf = logf
		}
	}
}

// WithMaxDelay overrides the default per-worker delay-buffer budget
// (worker.DefaultMaxDelay) in samples.
func WithMaxDelay(samples float64) Option {
	return func(m *Manager) {
		if samples >= 0 {
			m.maxAdditionalDelay = samples
		}
	}
}

// Manager coordinates a filter library, a delay table, and a pool of
// ChannelWorkers across one process() call per audio block.
type Manager struct {
	mu sync.Mutex

	blockSize int
	ctx       *blockconv.Context

	library *filterlib.Library
	delays  *delaytable.Table

	delayScale float64
	hq         bool

	maxAdditionalDelay float64

	workers []*worker.ChannelWorker
	params  []channelParams

	inCol  []float64
	mixBuf [][]float64 // one contiguous per-output-column accumulator, reused across Process calls

	logf func(format string, args ...any)
}

// New creates a Manager with a fixed block size and zero workers. The
// block size cannot be changed once workers have been created.
func New(blockSize int, opts ...Option) (*Manager, error) {
	ctx, err := blockconv.NewContext(blockSize)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m := &Manager{
		blockSize:          blockSize,
		ctx:                ctx,
		delays:              delaytable.New(),
		delayScale:          1,
		hq:                  true,
		maxAdditionalDelay:  worker.DefaultMaxDelay,
		logf:                func(string, ...any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// BlockSize returns the manager's fixed block size.
func (m *Manager) BlockSize() int { return m.blockSize }

// SetBlockSize changes the block size. Only legal while no workers
// exist; otherwise it is a no-op usage error, logged and ignored.
func (m *Manager) SetBlockSize(n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.workers) != 0 {
		m.logf("manager: SetBlockSize rejected: %d workers still exist", len(m.workers))
		return false
	}
	ctx, err := blockconv.NewContext(n)
	if err != nil {
		m.logf("manager: SetBlockSize: %v", err)
		return false
	}
	m.blockSize = n
	m.ctx = ctx
	return true
}

// CreateIRs replaces the filter library with one built from raw sample
// data at sampleRate. Legal only while no workers exist or while all
// workers are drained by the caller beforehand (§5's "mutate only while
// the worker set is paused" rule is the caller's responsibility here,
// since Close()/rebuild are explicit steps).
func (m *Manager) CreateIRs(sampleRate float64, irs [][]float64, f fade.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lib, err := filterlib.CreateIRs(m.ctx, sampleRate, irs, f)
	if err != nil {
		m.logf("manager: CreateIRs: %v", err)
		return err
	}
	m.library = lib
	return nil
}

// LoadSOFA replaces the filter library with one built from a SOFA data
// set, in the canonical SOFA index order.
func (m *Manager) LoadSOFA(src sofa.Source, f fade.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lib, err := filterlib.LoadSOFA(m.ctx, src, f)
	if err != nil {
		m.logf("manager: LoadSOFA: %v", err)
		return err
	}
	m.library = lib
	return nil
}

// LoadIRDelays loads the delay table from a text file: one or two
// whitespace-separated floats (already in samples) per line.
func (m *Manager) LoadIRDelays(r io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.delays.LoadFile(r); err != nil {
		m.logf("manager: LoadIRDelays: %v", err)
		return err
	}
	return nil
}

// SetIRDelays installs explicit dynamic/static delay arrays, in
// samples.
func (m *Manager) SetIRDelays(dynamic, static []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.delays.SetArrays(dynamic, static); err != nil {
		m.logf("manager: SetIRDelays: %v", err)
		return err
	}
	return nil
}

// SetDelayScale sets the manager-wide scalar applied to every IR's
// dynamic delay component. Defaults to 1.
func (m *Manager) SetDelayScale(s float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayScale = s
}

// EnableHQProcessing toggles the high-quality fractional-delay
// interpolator. Defaults to enabled. The setting is applied to workers
// created by later SetWorkerCount calls; workers that already exist
// keep the setting they were created with.
func (m *Manager) EnableHQProcessing(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hq = enabled
}

// SetWorkerCount grows or shrinks the worker pool. New workers default
// to IR index 0, level 1, extra_delay 0. Shrinking closes the removed
// workers' goroutines.
func (m *Manager) SetWorkerCount(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		return fmt.Errorf("manager: worker count must be >= 0: %d", n)
	}

	for len(m.workers) > n {
		last := len(m.workers) - 1
		m.workers[last].Close()
		m.workers = m.workers[:last]
		m.params = m.params[:last]
	}

	maxPartitions := 1
	if m.library != nil && m.library.MaxPartitions() > maxPartitions {
		maxPartitions = m.library.MaxPartitions()
	}

	for len(m.workers) < n {
		w, err := worker.New(m.ctx, maxPartitions, m.maxAdditionalDelay, worker.WithHQ(m.hq))
		if err != nil {
			m.logf("manager: SetWorkerCount: creating worker %d: %v", len(m.workers), err)
			return err
		}
		m.workers = append(m.workers, w)
		m.params = append(m.params, channelParams{ir: 0, level: 1, extraDelay: 0})
	}
	return nil
}

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// SelectIR binds worker to IR index ir at the given level and
// extra_delay (in samples), taking effect on the next Process call. It
// returns false (logged, no state change) if worker or ir are out of
// range.
func (m *Manager) SelectIR(worker int, ir int, level, extraDelay float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if worker < 0 || worker >= len(m.workers) {
		m.logf("manager: SelectIR: worker index %d out of range", worker)
		return false
	}
	if m.library == nil || ir < 0 || ir >= m.library.Count() {
		m.logf("manager: SelectIR: IR index %d out of range", ir)
		return false
	}
	m.params[worker] = channelParams{ir: ir, level: level, extraDelay: extraDelay}
	return true
}

// SamplesBuffered returns the engine's worst-case algorithmic latency
// in samples: blockSize*partitions (convolution) plus the additional
// delay budget every worker's delay buffer was sized for.
func (m *Manager) SamplesBuffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	partitions := 1
	if m.library != nil && m.library.MaxPartitions() > partitions {
		partitions = m.library.MaxPartitions()
	}
	return m.blockSize*partitions + int(m.maxAdditionalDelay)
}

// Process runs one block: input is row-major inputChannels columns by
// BlockSize() rows; output is outputChannels columns by BlockSize()
// rows and is assumed already zeroed. Worker i reads input column
// i/outputChannels and additively mixes into output column
// i%outputChannels.
func (m *Manager) Process(input, output []float64, inputChannels, outputChannels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.blockSize
	if len(input) != inputChannels*b {
		return fmt.Errorf("manager: input length %d != %d*%d", len(input), inputChannels, b)
	}
	if len(output) != outputChannels*b {
		return fmt.Errorf("manager: output length %d != %d*%d", len(output), outputChannels, b)
	}

	if len(m.inCol) != b {
		m.inCol = make([]float64, b)
	}
	if len(m.mixBuf) != outputChannels {
		m.mixBuf = make([][]float64, outputChannels)
		for c := range m.mixBuf {
			m.mixBuf[c] = make([]float64, b)
		}
	}
	for _, col := range m.mixBuf {
		for i := range col {
			col[i] = 0
		}
	}

	active := make([]bool, len(m.workers))

	for i, w := range m.workers {
		col := i / outputChannels
		if col >= inputChannels {
			continue
		}
		for r := 0; r < b; r++ {
			m.inCol[r] = input[r*inputChannels+col]
		}

		p := m.params[i]
		var filter *blockconv.Filter
		if m.library != nil {
			filter, _ = m.library.Filter(p.ir)
		}
		totalDelay := p.extraDelay
		if m.delays != nil {
			totalDelay += m.delays.Delay(p.ir, m.delayScale)
		}

		signal, err := w.PrepareBlock(m.inCol, filter, p.level, totalDelay)
		if err != nil {
			m.logf("manager: worker %d: %v", i, err)
			continue
		}
		active[i] = signal
		if signal {
			w.Signal()
		}
	}

	for i, w := range m.workers {
		if !active[i] {
			continue
		}
		w.Wait()
		col := i % outputChannels
		vecmath.AddBlockInPlace(m.mixBuf[col], w.Output())
	}

	for c, col := range m.mixBuf {
		for r := 0; r < b; r++ {
			output[r*outputChannels+c] += col[r]
		}
	}
	return nil
}

// Close shuts down every worker's goroutine.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		w.Close()
	}
	m.workers = nil
	m.params = nil
}
