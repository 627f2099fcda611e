package spatial

import (
	"errors"
	"math"

	"github.com/tphakala/go-binaural/internal/conv"
)

const (
	// Hysteresis is the smallest position change, in degrees, that reloads
	// a kernel.
	Hysteresis = 0.1

	// unmatched is a tracked position far outside every valid angle, so
	// the next reload check always fires.
	unmatched = -1000.0
)

// Errors returned by the spatial renderers.
var (
	ErrBankMismatch  = errors.New("spatial: kernel count does not match library size")
	ErrBufferTooLong = errors.New("spatial: block exceeds prepared size")
)

// Channel is one ear's convolution path. It tracks the position of its last
// reload and swaps kernels only when the requested position moves by more
// than Hysteresis.
type Channel struct {
	engine *conv.Engine
	source KernelSource

	lastAzimuth   float64
	lastElevation float64
	reloads       int
}

// NewChannel creates a channel around a convolution engine.
func NewChannel(partitionSize, maxPartitions int) (*Channel, error) {
	engine, err := conv.NewEngine(partitionSize, maxPartitions)
	if err != nil {
		return nil, err
	}
	c := &Channel{engine: engine}
	c.Reset()
	return c, nil
}

// Bind sets the kernel source used by subsequent reloads.
func (c *Channel) Bind(src KernelSource) { c.source = src }

// MaybeReload swaps in the kernel nearest to (azimuth, elevation) if the
// position moved by more than Hysteresis since the last reload. The tracked
// position becomes the requested one, not the matched record's. It returns
// whether a reload happened.
func (c *Channel) MaybeReload(azimuth, elevation float64) bool {
	if math.Abs(azimuth-c.lastAzimuth) <= Hysteresis && math.Abs(elevation-c.lastElevation) <= Hysteresis {
		return false
	}
	if c.source == nil {
		return false
	}

	k, ok := c.source.Nearest(azimuth, elevation)
	if !ok {
		return false
	}
	if err := c.engine.SetKernel(k); err != nil {
		return false
	}

	c.lastAzimuth = azimuth
	c.lastElevation = elevation
	c.reloads++
	return true
}

// Reset drops the kernel, clears the convolution state and forgets the
// tracked position.
func (c *Channel) Reset() {
	_ = c.engine.SetKernel(nil)
	c.engine.Reset()
	c.lastAzimuth = unmatched
	c.lastElevation = unmatched
}

// Process convolves a stereo working buffer in place.
func (c *Channel) Process(ch0, ch1 []float32) error {
	return c.engine.Process(ch0, ch1)
}

// Loaded reports whether a kernel is active or pending.
func (c *Channel) Loaded() bool { return c.engine.Kernel() != nil }

// Latency returns the channel's processing delay in samples.
func (c *Channel) Latency() int {
	if !c.Loaded() {
		return 0
	}
	return c.engine.Latency()
}

// Reloads returns how many kernel reloads have happened.
func (c *Channel) Reloads() int { return c.reloads }

// Position returns the tracked position of the last reload.
func (c *Channel) Position() (azimuth, elevation float64) {
	return c.lastAzimuth, c.lastElevation
}
