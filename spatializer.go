package binaural

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/go-binaural/internal/spatial"
)

// Common errors returned by the processor.
var (
	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid processor configuration")

	// ErrNotPrepared is returned by Process before a successful Prepare.
	ErrNotPrepared = errors.New("processor not prepared")

	// ErrInvalidBuffer indicates a block with the wrong channel count or
	// length.
	ErrInvalidBuffer = errors.New("invalid audio buffer")

	// ErrInvalidState indicates persisted state that cannot be decoded.
	ErrInvalidState = errors.New("invalid processor state")

	// ErrInvalidParameter indicates an unknown parameter.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("processor closed")
)

// Config holds processor configuration. Zero fields take defaults.
type Config struct {
	// PartitionSize is the convolution partition length in samples. It must
	// be a power of two and is also the processing latency while an IR
	// library is loaded. Default 256.
	PartitionSize int

	// MaxKernelLength caps IR length in samples at the processing rate.
	// Longer IRs are truncated. Default 8192.
	MaxKernelLength int

	// SmoothingTime is the ramp time of the azimuth, elevation and width
	// controls. Default 100ms.
	SmoothingTime time.Duration

	// Logger receives load and lifecycle messages. The audio path never
	// logs. Default slog.Default().
	Logger *slog.Logger

	// OnLatencyChange is called from Process, on the audio thread, whenever
	// the processing latency changes. It must not block.
	OnLatencyChange func(samples int)
}

func (c *Config) applyDefaults() {
	if c.PartitionSize == 0 {
		c.PartitionSize = DefaultPartitionSize
	}
	if c.MaxKernelLength == 0 {
		c.MaxKernelLength = DefaultMaxKernelLength
	}
	if c.SmoothingTime == 0 {
		c.SmoothingTime = DefaultSmoothingTime
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks if the configuration is valid. Zero fields are accepted
// since New replaces them with defaults.
func (c *Config) Validate() error {
	if c.PartitionSize != 0 {
		if c.PartitionSize < minPartitionSize || c.PartitionSize > maxPartitionSize {
			return fmt.Errorf("%w: partition size must be %d-%d", ErrInvalidConfig, minPartitionSize, maxPartitionSize)
		}
		if c.PartitionSize&(c.PartitionSize-1) != 0 {
			return fmt.Errorf("%w: partition size must be a power of two", ErrInvalidConfig)
		}
	}

	if c.MaxKernelLength < 0 || c.MaxKernelLength > maxKernelLength {
		return fmt.Errorf("%w: max kernel length must be 0-%d", ErrInvalidConfig, maxKernelLength)
	}

	if c.SmoothingTime < 0 || c.SmoothingTime > maxSmoothingTime {
		return fmt.Errorf("%w: smoothing time must be 0-%v", ErrInvalidConfig, maxSmoothingTime)
	}

	return nil
}

// atomicFloat is a float64 that can be shared between the control and
// audio threads.
type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Processor is the binaural spatializer.
type Processor struct {
	cfg    Config
	logger *slog.Logger

	// Parameter targets, written by any goroutine.
	targets [numParams]atomicFloat

	// Control state.
	mu         sync.Mutex
	root       string
	sampleRate float64
	closed     bool

	// Snapshot handoff.
	snapshot   atomic.Pointer[snapshot]
	generation atomic.Uint64
	publishMu  sync.Mutex
	loader     *loader

	// Audio thread state, owned by Prepare and Process.
	prepared        bool
	maxBlock        int
	params          spatial.Params
	renderer        *spatial.Renderer
	fallback        spatial.Fallback
	active          *snapshot
	reportedLatency int
	latency         atomic.Int64

	// prepareHook runs in Prepare between taking the root and loading it.
	prepareHook func()
}

// New creates a processor and starts its background loader.
func New(config *Config) (*Processor, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := *config
	cfg.applyDefaults()

	p := &Processor{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	for id := range numParams {
		_, _, def := id.Range()
		p.targets[id].Store(def)
	}

	p.loader = newLoader(p.runLoad)
	return p, nil
}

// Prepare configures the processor for a sample rate and maximum block size,
// loads the current library root synchronously and resets all signal state.
// It must not be called concurrently with Process.
func (p *Processor) Prepare(sampleRate float64, maxBlockSize int) error {
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return fmt.Errorf("%w: sample rate must be %v-%v", ErrInvalidConfig, minSampleRate, maxSampleRate)
	}
	if maxBlockSize < 1 || maxBlockSize > maxBlockSizeLimit {
		return fmt.Errorf("%w: max block size must be 1-%d", ErrInvalidConfig, maxBlockSizeLimit)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.sampleRate = sampleRate
	root := p.root
	gen := p.generation.Add(1)
	p.mu.Unlock()

	if p.prepareHook != nil {
		p.prepareHook()
	}

	maxPartitions := (p.cfg.MaxKernelLength + p.cfg.PartitionSize - 1) / p.cfg.PartitionSize
	renderer, err := spatial.NewRenderer(p.cfg.PartitionSize, maxPartitions, maxBlockSize)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	snap, err := p.buildSnapshot(context.Background(), root, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to load HRIR library: %w", err)
	}
	if !p.publish(gen, snap) {
		p.logger.Debug("prepared library superseded", "root", root)
	}

	p.renderer = renderer
	p.maxBlock = maxBlockSize
	p.active = nil
	p.params.Reset(sampleRate, p.cfg.SmoothingTime.Seconds())
	p.params.Jump(
		p.targets[ParamAzimuth].Load(),
		p.targets[ParamElevation].Load(),
		p.targets[ParamWidth].Load(),
	)
	p.prepared = true

	p.logger.Debug("latency check",
		"samples", p.cfg.PartitionSize,
		"loaded", snap.kernels().Len() > 0,
		"sample_rate", sampleRate,
		"max_block", maxBlockSize)
	return nil
}

// Process renders one block. src holds one or two input channels and dst
// exactly two output channels; every slice has the same length, at most the
// prepared block size. dst may alias src.
//
// Process does not allocate. Errors are returned unwrapped.
func (p *Processor) Process(dst, src [][]float32) error {
	if !p.prepared {
		return ErrNotPrepared
	}
	if len(src) < 1 || len(src) > maxInputChannels || len(dst) != outputChannels {
		return ErrInvalidBuffer
	}

	n := len(src[0])
	if n > p.maxBlock || len(src[len(src)-1]) != n || len(dst[0]) != n || len(dst[1]) != n {
		return ErrInvalidBuffer
	}

	inL := src[0]
	inR := src[len(src)-1]

	p.params.SetTargets(
		p.targets[ParamAzimuth].Load(),
		p.targets[ParamElevation].Load(),
		p.targets[ParamWidth].Load(),
	)

	snap := p.snapshot.Load()
	if snap != p.active {
		p.active = snap
		p.renderer.Bind(snap.kernels())
	}

	if snap.kernels().Len() > 0 {
		if err := p.renderer.Render(dst[0], dst[1], inL, inR, &p.params); err != nil {
			return err
		}
	} else {
		p.fallback.Render(dst[0], dst[1], inL, inR, &p.params)
	}

	p.updateLatency()
	return nil
}

func (p *Processor) updateLatency() {
	lat := p.renderer.Latency()
	if lat == p.reportedLatency {
		return
	}
	p.reportedLatency = lat
	p.latency.Store(int64(lat))
	if p.cfg.OnLatencyChange != nil {
		p.cfg.OnLatencyChange(lat)
	}
}

// SetParameter sets a control target. Values are clamped to the
// parameter's range; unknown ids are ignored.
func (p *Processor) SetParameter(id ParamID, v float64) {
	if id < 0 || id >= numParams || math.IsNaN(v) {
		return
	}
	p.targets[id].Store(id.Clamp(v))
}

// Parameter returns a control target.
func (p *Processor) Parameter(id ParamID) float64 {
	if id < 0 || id >= numParams {
		return 0
	}
	return p.targets[id].Load()
}

// SetLibraryRoot selects the IR library root. Once prepared, the library is
// loaded in the background and replaces the current one when ready; a
// later call supersedes an earlier one still loading. An empty path clears
// the library.
func (p *Processor) SetLibraryRoot(path string) {
	if path == "" {
		p.ClearLibrary()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.root = path
	if p.sampleRate == 0 {
		// Loaded by Prepare.
		return
	}

	gen := p.generation.Add(1)
	p.loader.submit(loadRequest{generation: gen, root: path, sampleRate: p.sampleRate})
}

// ClearLibrary forgets the library root and returns to panning. The empty
// library is published immediately.
func (p *Processor) ClearLibrary() {
	p.mu.Lock()
	p.root = ""
	rate := p.sampleRate
	gen := p.generation.Add(1)
	p.mu.Unlock()

	if rate == 0 {
		return
	}
	p.publish(gen, newEmptySnapshot("", rate))
	p.logger.Info("HRIR library cleared")
}

// LibraryRoot returns the selected library root.
func (p *Processor) LibraryRoot() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.root
}

// CacheSize returns the number of IRs in the published library.
func (p *Processor) CacheSize() int {
	return p.snapshot.Load().kernels().Len()
}

// Status describes the published library.
func (p *Processor) Status() LibraryStatus {
	if snap := p.snapshot.Load(); snap != nil {
		return snap.status
	}
	return LibraryStatus{State: StateNoFolder, Root: p.LibraryRoot()}
}

// Latency returns the processing latency in samples as last reported by
// Process.
func (p *Processor) Latency() int {
	return int(p.latency.Load())
}

// WaitIdle blocks until every requested library load has finished or ctx is
// done.
func (p *Processor) WaitIdle(ctx context.Context) error {
	return p.loader.waitIdle(ctx)
}

// Close stops the background loader. Loads in flight are abandoned.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.loader.close()
	return nil
}
