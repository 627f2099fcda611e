package hrir

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// WAV format tags.
const (
	wavFormatFloat = 3

	floatBitDepth = 32
)

// Decode errors.
var (
	ErrInvalidWAV = errors.New("hrir: invalid WAV file")
	ErrEmptyIR    = errors.New("hrir: impulse response has no samples")
)

// DecodeFile reads a whole WAV file into per-channel float64 slices
// normalised to [-1, 1].
func DecodeFile(path string) (samples [][]float64, sampleRate float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open IR file: %w", err)
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read IR data: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 || len(buf.Data) < channels {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptyIR, path)
	}

	frames := len(buf.Data) / channels
	samples = make([][]float64, channels)
	for ch := range channels {
		samples[ch] = make([]float64, frames)
	}

	convert := intConverter(int(decoder.BitDepth))
	if decoder.WavAudioFormat == wavFormatFloat && decoder.BitDepth == floatBitDepth {
		convert = floatBitsConverter
	}

	for i := range frames {
		base := i * channels
		for ch := range channels {
			samples[ch][i] = convert(buf.Data[base+ch])
		}
	}

	return samples, float64(buf.Format.SampleRate), nil
}

// intConverter returns a function scaling signed PCM of the given bit depth
// to [-1, 1).
func intConverter(bitDepth int) func(int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	inv := 1.0 / float64(int64(1)<<(bitDepth-1))
	return func(v int) float64 { return float64(v) * inv }
}

// floatBitsConverter reinterprets 32-bit IEEE float samples that the
// decoder delivered as raw integer bits.
func floatBitsConverter(v int) float64 {
	return float64(math.Float32frombits(uint32(v)))
}
