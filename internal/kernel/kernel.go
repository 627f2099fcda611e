// Package kernel turns decoded HRIR records into convolution kernels ready
// for the partitioned convolution engine.
//
// Preparation copies the record, trims leading and trailing silence,
// converts the sample rate to the processing rate, truncates to a maximum
// length, normalises, and precomputes the frequency-domain partitions. All
// of this allocates and is meant to run off the audio thread; the engine
// only ever receives finished kernels.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/go-binaural/internal/hrir"
	"github.com/tphakala/go-binaural/internal/simdops"
)

// Preparation constants.
const (
	// Channels is the number of kernel channels. Mono IRs are duplicated.
	Channels = 2

	// trimThreshold is -80 dBFS; samples quieter than this on every channel
	// are trimmed from both ends.
	trimThreshold = 1e-4

	// normalisationTarget is the reference level the loudest channel's
	// energy is scaled to.
	normalisationTarget = 0.125

	// fftSizeMultiplier: partitions are zero-padded to twice their size.
	fftSizeMultiplier = 2

	minPartitionSize = 16
	maxPartitionSize = 8192
)

// Errors returned by preparation.
var (
	ErrInvalidConfig = errors.New("kernel: invalid configuration")
	ErrNoChannels    = errors.New("kernel: record has no channels")
)

// Config controls kernel preparation.
type Config struct {
	// SampleRate is the processing sample rate kernels are converted to.
	SampleRate float64

	// PartitionSize is the engine partition length in samples. Must be a
	// power of two.
	PartitionSize int

	// MaxLength caps the kernel length in samples after resampling. Zero
	// means no cap.
	MaxLength int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if c.PartitionSize < minPartitionSize || c.PartitionSize > maxPartitionSize {
		return fmt.Errorf("%w: partition size must be %d-%d", ErrInvalidConfig, minPartitionSize, maxPartitionSize)
	}
	if c.PartitionSize&(c.PartitionSize-1) != 0 {
		return fmt.Errorf("%w: partition size must be a power of two", ErrInvalidConfig)
	}
	if c.MaxLength < 0 {
		return fmt.Errorf("%w: max length must not be negative", ErrInvalidConfig)
	}
	return nil
}

// MaxPartitions returns how many partitions the longest allowed kernel
// needs, or 0 when the length is uncapped.
func (c *Config) MaxPartitions() int {
	if c.MaxLength == 0 {
		return 0
	}
	return partitionsFor(c.MaxLength, c.PartitionSize)
}

// Kernel is a prepared, immutable convolution kernel.
type Kernel struct {
	// Azimuth and Elevation of the record the kernel was built from.
	Azimuth   float64
	Elevation float64

	// Source is the IR file path, for diagnostics.
	Source string

	// Spectra holds, per channel, one spectrum of PartitionSize+1 bins per
	// partition.
	Spectra [Channels][][]complex128

	partitionSize int
	length        int
	gain          float64
}

// Length returns the kernel length in samples.
func (k *Kernel) Length() int { return k.length }

// Partitions returns the number of partitions per channel.
func (k *Kernel) Partitions() int { return len(k.Spectra[0]) }

// PartitionSize returns the partition length the spectra were built for.
func (k *Kernel) PartitionSize() int { return k.partitionSize }

// NormalisationGain returns the gain applied during normalisation.
func (k *Kernel) NormalisationGain() float64 { return k.gain }

// Impulse reconstructs the time-domain kernel of channel ch from its
// partition spectra. It allocates and is meant for diagnostics.
func (k *Kernel) Impulse(ch int) []float64 {
	fftSize := k.partitionSize * fftSizeMultiplier
	fft := fourier.NewFFT(fftSize)
	scale := 1.0 / float64(fftSize)

	out := make([]float64, 0, len(k.Spectra[ch])*k.partitionSize)
	block := make([]float64, fftSize)
	for _, spec := range k.Spectra[ch] {
		fft.Sequence(block, spec)
		for _, v := range block[:k.partitionSize] {
			out = append(out, v*scale)
		}
	}
	return out[:k.length]
}

// Builder prepares kernels for one configuration. It reuses its FFT plan
// across records and is not safe for concurrent use.
type Builder struct {
	cfg  Config
	fft  *fourier.FFT
	pad  []float64
	bins int
}

// NewBuilder creates a kernel builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fftSize := cfg.PartitionSize * fftSizeMultiplier
	return &Builder{
		cfg:  cfg,
		fft:  fourier.NewFFT(fftSize),
		pad:  make([]float64, fftSize),
		bins: cfg.PartitionSize + 1,
	}, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build prepares a kernel from rec.
func (b *Builder) Build(rec *hrir.Record) (*Kernel, error) {
	if rec == nil || rec.Channels() == 0 {
		return nil, ErrNoChannels
	}

	taps := stereoCopy(rec.Samples)
	taps = trimSilence(taps)

	if rec.SampleRate > 0 && rec.SampleRate != b.cfg.SampleRate {
		resampled, err := resampleChannels(taps, rec.SampleRate, b.cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to resample %s: %w", rec.Path, err)
		}
		taps = resampled
	}

	if b.cfg.MaxLength > 0 && len(taps[0]) > b.cfg.MaxLength {
		for ch := range taps {
			taps[ch] = taps[ch][:b.cfg.MaxLength]
		}
	}

	gain := normalise(taps)

	k := &Kernel{
		Azimuth:       rec.Azimuth,
		Elevation:     rec.Elevation,
		Source:        rec.Path,
		partitionSize: b.cfg.PartitionSize,
		length:        len(taps[0]),
		gain:          gain,
	}
	for ch := range Channels {
		k.Spectra[ch] = b.partition(taps[ch])
	}
	return k, nil
}

// BuildAll prepares one kernel per library record, in library order. The
// returned library holds the records that were built, so its indices match
// the kernel indices.
//
// When skip is nil the first failing record aborts the build. Otherwise
// failing records are passed to skip and left out.
func (b *Builder) BuildAll(ctx context.Context, lib *hrir.Library, skip func(*hrir.Record, error)) (*hrir.Library, []*Kernel, error) {
	records := make([]*hrir.Record, 0, lib.Len())
	kernels := make([]*Kernel, 0, lib.Len())
	for _, rec := range lib.Records() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		k, err := b.Build(rec)
		if err != nil {
			if skip == nil {
				return nil, nil, err
			}
			skip(rec, err)
			continue
		}
		records = append(records, rec)
		kernels = append(kernels, k)
	}
	return hrir.NewLibrary(lib.Root(), lib.SampleRate(), records), kernels, nil
}

// partition splits taps into zero-padded blocks and transforms each one.
func (b *Builder) partition(taps []float64) [][]complex128 {
	p := b.cfg.PartitionSize
	count := partitionsFor(len(taps), p)
	spectra := make([][]complex128, count)

	for i := range count {
		clear(b.pad)
		start := i * p
		end := min(start+p, len(taps))
		copy(b.pad, taps[start:end])
		spectra[i] = b.fft.Coefficients(make([]complex128, b.bins), b.pad)
	}
	return spectra
}

func partitionsFor(length, partitionSize int) int {
	if length <= 0 {
		return 1
	}
	return (length + partitionSize - 1) / partitionSize
}

// stereoCopy copies the first two channels, duplicating a mono IR.
func stereoCopy(src [][]float64) [Channels][]float64 {
	var out [Channels][]float64
	for ch := range Channels {
		from := src[min(ch, len(src)-1)]
		out[ch] = append([]float64(nil), from...)
	}
	return out
}

// trimSilence removes leading and trailing samples that are below the trim
// threshold on every channel. A fully silent IR is reduced to one sample.
func trimSilence(taps [Channels][]float64) [Channels][]float64 {
	n := len(taps[0])
	first, last := -1, -1
	for i := range n {
		if loudAt(taps, i) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		for ch := range taps {
			taps[ch] = []float64{0}
		}
		return taps
	}

	for ch := range taps {
		taps[ch] = taps[ch][first : last+1]
	}
	return taps
}

func loudAt(taps [Channels][]float64, i int) bool {
	for ch := range taps {
		if i < len(taps[ch]) && math.Abs(taps[ch][i]) >= trimThreshold {
			return true
		}
	}
	return false
}

// normalise scales all channels so that the channel with the most energy
// ends at the normalisation target. It returns the applied gain.
func normalise(taps [Channels][]float64) float64 {
	var maxEnergy float64
	for ch := range taps {
		maxEnergy = math.Max(maxEnergy, simdops.Energy(taps[ch]))
	}
	if maxEnergy == 0 {
		return 1
	}

	gain := normalisationTarget / math.Sqrt(maxEnergy)
	ops := simdops.For[float64]()
	for ch := range taps {
		ops.Scale(taps[ch], taps[ch], gain)
	}
	return gain
}

// resampleChannels converts every channel from one rate to another.
func resampleChannels(taps [Channels][]float64, from, to float64) ([Channels][]float64, error) {
	var out [Channels][]float64
	for ch := range taps {
		r, err := resampling.New(&resampling.Config{
			InputRate:  from,
			OutputRate: to,
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return out, err
		}

		body, err := r.Process(taps[ch])
		if err != nil {
			return out, err
		}
		tail, err := r.Flush()
		if err != nil {
			return out, err
		}
		out[ch] = append(body, tail...)
	}

	// Resamplers may emit channels of slightly different length; keep the
	// shortest so every channel has the same number of taps.
	n := min(len(out[0]), len(out[1]))
	if n == 0 {
		for ch := range out {
			out[ch] = []float64{0}
		}
		return out, nil
	}
	for ch := range out {
		out[ch] = out[ch][:n]
	}
	return out, nil
}
