package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

const (
	pcmFormat     = 1
	defaultBits   = 16
	dirPermission = 0o755
)

// IRFixture describes one impulse response file in a fixture library.
type IRFixture struct {
	// Name is the file name, e.g. "azi_30_ele_0.wav". When empty it is
	// derived from Azimuth and Elevation.
	Name string

	Azimuth   float64
	Elevation float64

	// Channels holds per-channel samples in [-1, 1].
	Channels [][]float64

	// SampleRate defaults to 48000.
	SampleRate int

	// BitDepth defaults to 16.
	BitDepth int
}

// FileName returns the fixture's file name.
func (f IRFixture) FileName() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("azi_%g_ele_%g.wav", f.Azimuth, f.Elevation)
}

// WriteWAV encodes per-channel samples as an integer PCM WAV file.
func WriteWAV(t testing.TB, path string, sampleRate, bitDepth int, channels [][]float64) {
	t.Helper()
	require.NotEmpty(t, channels, "WAV fixture needs at least one channel")
	if bitDepth == 0 {
		bitDepth = defaultBits
	}

	numChannels := len(channels)
	frames := len(channels[0])
	maxVal := float64(int64(1)<<(bitDepth-1)) - 1

	data := make([]int, frames*numChannels)
	for i := range frames {
		for ch := range numChannels {
			s := math.Max(-1, math.Min(1, channels[ch][i]))
			data[i*numChannels+ch] = int(math.Round(s * maxVal))
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

// WriteIRLibrary creates root/bucket and writes every fixture into it.
// It returns root.
func WriteIRLibrary(t testing.TB, root, bucket string, irs []IRFixture) string {
	t.Helper()
	dir := filepath.Join(root, bucket)
	require.NoError(t, os.MkdirAll(dir, dirPermission))

	for _, ir := range irs {
		rate := ir.SampleRate
		if rate == 0 {
			rate = 48000
		}
		WriteWAV(t, filepath.Join(dir, ir.FileName()), rate, ir.BitDepth, ir.Channels)
	}
	return root
}

// DiracStereo returns a two-channel IR with an impulse of the given
// amplitude at delayL on the left and delayR on the right.
func DiracStereo(length, delayL, delayR int, amplitude float64) [][]float64 {
	return [][]float64{
		Impulse(length, delayL, amplitude),
		Impulse(length, delayR, amplitude),
	}
}

// GridFixtures builds a library grid of stereo Dirac IRs at the given
// azimuths and elevations. Each IR's left-channel delay encodes its index
// so tests can tell which kernel was selected.
func GridFixtures(azimuths, elevations []float64, length int) []IRFixture {
	var out []IRFixture
	for _, el := range elevations {
		for _, az := range azimuths {
			idx := len(out)
			out = append(out, IRFixture{
				Azimuth:   az,
				Elevation: el,
				Channels:  DiracStereo(length, idx%length, 0, 0.5),
			})
		}
	}
	return out
}
