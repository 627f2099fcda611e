package spatial

import (
	"fmt"

	"github.com/tphakala/go-binaural/internal/geometry"
	"github.com/tphakala/go-binaural/internal/simdops"
)

// Output mix constants.
const (
	// SumGain keeps two independently normalised ear signals from building
	// up when summed.
	SumGain = 0.707

	// MakeUpGain (+12 dB) restores the level lost to kernel normalisation.
	MakeUpGain = 4.0

	mixGain = float32(SumGain * MakeUpGain)
)

// Renderer is the HRTF render path. Each ear convolves the input with the
// kernel nearest to its virtual source position and the two ears are
// summed into the output.
type Renderer struct {
	left  *Channel
	right *Channel

	leftBuf  [2][]float32
	rightBuf [2][]float32
	maxBlock int
}

// NewRenderer creates a renderer for blocks of up to maxBlock samples.
func NewRenderer(partitionSize, maxPartitions, maxBlock int) (*Renderer, error) {
	left, err := NewChannel(partitionSize, maxPartitions)
	if err != nil {
		return nil, fmt.Errorf("left channel: %w", err)
	}
	right, err := NewChannel(partitionSize, maxPartitions)
	if err != nil {
		return nil, fmt.Errorf("right channel: %w", err)
	}

	r := &Renderer{left: left, right: right, maxBlock: maxBlock}
	for i := range r.leftBuf {
		r.leftBuf[i] = make([]float32, maxBlock)
		r.rightBuf[i] = make([]float32, maxBlock)
	}
	return r, nil
}

// Bind points both ears at a kernel source and resets them, so the next
// block reloads both kernels unconditionally.
func (r *Renderer) Bind(src KernelSource) {
	r.left.Bind(src)
	r.right.Bind(src)
	r.Reset()
}

// Reset clears both ears.
func (r *Renderer) Reset() {
	r.left.Reset()
	r.right.Reset()
}

// Left returns the left-ear channel.
func (r *Renderer) Left() *Channel { return r.left }

// Right returns the right-ear channel.
func (r *Renderer) Right() *Channel { return r.right }

// Latency returns the current processing delay in samples.
func (r *Renderer) Latency() int {
	return max(r.left.Latency(), r.right.Latency())
}

// Render processes one block. inR may be the same slice as inL for mono
// input, and the outputs may alias the inputs. All slices must have the
// same length, at most the prepared block size.
func (r *Renderer) Render(outL, outR, inL, inR []float32, p *Params) error {
	n := len(inL)
	if n > r.maxBlock {
		return ErrBufferTooLong
	}
	if n == 0 {
		return nil
	}

	azimuth, elevation, width := p.advanceBlock(n)
	leftAz, rightAz := geometry.EarAzimuths(azimuth, width)

	r.left.MaybeReload(leftAz, elevation)
	r.right.MaybeReload(rightAz, elevation)

	lb0, lb1 := r.leftBuf[0][:n], r.leftBuf[1][:n]
	rb0, rb1 := r.rightBuf[0][:n], r.rightBuf[1][:n]
	copy(lb0, inL)
	copy(lb1, inL)
	copy(rb0, inR)
	copy(rb1, inR)

	if err := r.left.Process(lb0, lb1); err != nil {
		return err
	}
	if err := r.right.Process(rb0, rb1); err != nil {
		return err
	}

	simdops.MixSum(outL, lb0, rb0, mixGain)
	simdops.MixSum(outR, lb1, rb1, mixGain)
	return nil
}
