// Package conv implements streaming stereo convolution with prepared HRIR
// kernels.
//
// The engine uses uniformly partitioned overlap-save convolution with a
// frequency-domain delay line (FDL):
//  1. Input is gathered into partitions of P samples
//  2. Each completed partition is transformed together with the previous
//     one as a 2P-point frame and pushed onto the FDL
//  3. The output spectrum is the sum of FDL[k] * H[k] over kernel partitions
//  4. The last P samples of the inverse transform are the valid output
//
// Output is delayed by exactly P samples. All buffers are sized at
// construction, so Process never allocates.
package conv

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/go-binaural/internal/kernel"
	"github.com/tphakala/go-binaural/internal/simdops"
)

// fftSizeMultiplier gives the transform size relative to the partition.
const fftSizeMultiplier = 2

// Errors returned by the engine.
var (
	ErrInvalidPartition   = errors.New("conv: partition size must be a positive power of two")
	ErrInvalidPartitions  = errors.New("conv: partition count must be positive")
	ErrPartitionMismatch  = errors.New("conv: kernel partition size does not match engine")
	ErrChannelLenMismatch = errors.New("conv: channel buffers differ in length")
)

// Engine convolves a stereo stream with a swappable kernel. Input channel 0
// is filtered with kernel channel 0 and input channel 1 with kernel
// channel 1.
//
// Replacing the kernel is crossfaded over one partition: the partition
// following SetKernel is rendered with both kernels from the same delay
// line and mixed with a linear ramp.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	partitionSize int
	maxPartitions int
	scale         float64 // 1/fftSize; gonum does not normalise the inverse

	fft *fourier.FFT
	ops *simdops.Ops[float64]

	current     *kernel.Kernel
	pending     *kernel.Kernel
	swapPending bool

	channels [kernel.Channels]channelState
	pos      int // write position within the current partition

	// Shared working buffers.
	frame   []float64
	acc     []complex128
	product []complex128
	timeBuf []float64
	oldOut  []float64
	newOut  []float64
	fadeIn  []float64
}

type channelState struct {
	fdl   [][]complex128 // ring of input frame spectra, newest at head
	head  int
	prev  []float64 // previous input partition
	block []float64 // input partition being filled
	out   []float64 // output partition being drained
}

// NewEngine creates an engine with the given partition size that accepts
// kernels of up to maxPartitions partitions. Longer kernels are truncated
// to maxPartitions.
func NewEngine(partitionSize, maxPartitions int) (*Engine, error) {
	if partitionSize <= 0 || partitionSize&(partitionSize-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPartition, partitionSize)
	}
	if maxPartitions <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPartitions, maxPartitions)
	}

	fftSize := partitionSize * fftSizeMultiplier
	bins := partitionSize + 1

	e := &Engine{
		partitionSize: partitionSize,
		maxPartitions: maxPartitions,
		scale:         1.0 / float64(fftSize),
		fft:           fourier.NewFFT(fftSize),
		ops:           simdops.For[float64](),
		frame:         make([]float64, fftSize),
		acc:           make([]complex128, bins),
		product:       make([]complex128, bins),
		timeBuf:       make([]float64, fftSize),
		oldOut:        make([]float64, partitionSize),
		newOut:        make([]float64, partitionSize),
		fadeIn:        make([]float64, partitionSize),
	}

	for i := range e.fadeIn {
		e.fadeIn[i] = float64(i+1) / float64(partitionSize)
	}

	for ch := range e.channels {
		s := &e.channels[ch]
		s.fdl = make([][]complex128, maxPartitions)
		for i := range s.fdl {
			s.fdl[i] = make([]complex128, bins)
		}
		s.prev = make([]float64, partitionSize)
		s.block = make([]float64, partitionSize)
		s.out = make([]float64, partitionSize)
	}
	return e, nil
}

// PartitionSize returns the partition length in samples.
func (e *Engine) PartitionSize() int { return e.partitionSize }

// MaxPartitions returns the delay line depth in partitions.
func (e *Engine) MaxPartitions() int { return e.maxPartitions }

// Latency returns the processing delay in samples.
func (e *Engine) Latency() int { return e.partitionSize }

// Kernel returns the kernel that will be active after any pending swap.
func (e *Engine) Kernel() *kernel.Kernel {
	if e.swapPending {
		return e.pending
	}
	return e.current
}

// SetKernel schedules k to replace the current kernel at the next partition
// boundary. A nil kernel fades the output to silence.
func (e *Engine) SetKernel(k *kernel.Kernel) error {
	if k != nil && k.PartitionSize() != e.partitionSize {
		return fmt.Errorf("%w: kernel %d, engine %d", ErrPartitionMismatch, k.PartitionSize(), e.partitionSize)
	}
	if k == e.current {
		e.pending = nil
		e.swapPending = false
		return nil
	}
	e.pending = k
	e.swapPending = true
	return nil
}

// Reset clears all signal history and commits any pending kernel without a
// crossfade.
func (e *Engine) Reset() {
	if e.swapPending {
		e.current = e.pending
	}
	e.pending = nil
	e.swapPending = false
	e.pos = 0

	for ch := range e.channels {
		s := &e.channels[ch]
		for _, spec := range s.fdl {
			clear(spec)
		}
		s.head = 0
		clear(s.prev)
		clear(s.block)
		clear(s.out)
	}
}

// Process convolves ch0 and ch1 in place. Both slices must have the same
// length, which may be anything including zero.
func (e *Engine) Process(ch0, ch1 []float32) error {
	if len(ch0) != len(ch1) {
		return ErrChannelLenMismatch
	}

	n := len(ch0)
	for off := 0; off < n; {
		chunk := min(e.partitionSize-e.pos, n-off)
		e.channels[0].exchange(ch0[off:off+chunk], e.pos)
		e.channels[1].exchange(ch1[off:off+chunk], e.pos)

		e.pos += chunk
		off += chunk
		if e.pos == e.partitionSize {
			e.completePartition()
			e.pos = 0
		}
	}
	return nil
}

// exchange stores input samples and replaces them with delayed output.
func (s *channelState) exchange(data []float32, pos int) {
	block := s.block[pos : pos+len(data)]
	out := s.out[pos : pos+len(data)]
	for i, v := range data {
		block[i] = float64(v)
		data[i] = float32(out[i])
	}
}

// completePartition pushes the filled partition onto the delay line and
// renders the next output partition for both channels.
func (e *Engine) completePartition() {
	next := e.current
	if e.swapPending {
		next = e.pending
	}

	for ch := range e.channels {
		s := &e.channels[ch]
		e.push(s)

		if next == e.current {
			e.render(s, ch, e.current, s.out)
		} else {
			e.render(s, ch, e.current, e.oldOut)
			e.render(s, ch, next, e.newOut)
			for i, w := range e.fadeIn {
				s.out[i] = e.oldOut[i] + w*(e.newOut[i]-e.oldOut[i])
			}
		}

		copy(s.prev, s.block)
	}

	if e.swapPending {
		e.current = next
		e.pending = nil
		e.swapPending = false
	}
}

// push transforms [prev | block] into the next delay line slot.
func (e *Engine) push(s *channelState) {
	p := e.partitionSize
	copy(e.frame[:p], s.prev)
	copy(e.frame[p:], s.block)

	s.head++
	if s.head == e.maxPartitions {
		s.head = 0
	}
	e.fft.Coefficients(s.fdl[s.head], e.frame)
}

// render writes one partition of output for kernel channel ch into dst.
func (e *Engine) render(s *channelState, ch int, k *kernel.Kernel, dst []float64) {
	if k == nil {
		clear(dst)
		return
	}

	clear(e.acc)
	spectra := k.Spectra[ch]
	parts := min(len(spectra), e.maxPartitions)
	slot := s.head
	for i := range parts {
		simdops.MulAddComplex(e.acc, s.fdl[slot], spectra[i], e.product)
		slot--
		if slot < 0 {
			slot = e.maxPartitions - 1
		}
	}

	e.fft.Sequence(e.timeBuf, e.acc)
	e.ops.Scale(dst, e.timeBuf[e.partitionSize:], e.scale)
}
