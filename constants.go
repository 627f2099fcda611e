package binaural

import "time"

// Processor defaults.
const (
	DefaultPartitionSize   = 256
	DefaultMaxKernelLength = 8192
	DefaultSmoothingTime   = 100 * time.Millisecond
)

// Configuration limits.
const (
	minPartitionSize   = 16
	maxPartitionSize   = 8192
	maxKernelLength    = 1 << 20
	maxBlockSizeLimit  = 1 << 16
	maxSmoothingTime   = 10 * time.Second
	minSampleRate      = 8000.0
	maxSampleRate      = 768000.0
	outputChannels     = 2
	maxInputChannels   = 2
	loaderRequestQueue = 1
)
