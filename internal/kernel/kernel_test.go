package kernel

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-binaural/internal/hrir"
	"github.com/tphakala/go-binaural/internal/testutil"
)

func testConfig() Config {
	return Config{SampleRate: 48000, PartitionSize: 64, MaxLength: 4096}
}

func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg)
	require.NoError(t, err)
	return b
}

func decayingNoise(n int, seed uint32) []float64 {
	out := make([]float64, n)
	state := seed
	for i := range out {
		state = state*1664525 + 1013904223
		v := float64(state)/float64(math.MaxUint32)*2 - 1
		out[i] = 0.8 * v * math.Exp(-float64(i)/float64(n/4+1))
	}
	// Keep the edges above the trim threshold.
	out[0] = 0.5
	out[n-1] = 0.01
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"partition too small", func(c *Config) { c.PartitionSize = 8 }, true},
		{"partition not power of two", func(c *Config) { c.PartitionSize = 96 }, true},
		{"partition too large", func(c *Config) { c.PartitionSize = 16384 }, true},
		{"negative max length", func(c *Config) { c.MaxLength = -1 }, true},
		{"uncapped length", func(c *Config) { c.MaxLength = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_MaxPartitions(t *testing.T) {
	cfg := Config{SampleRate: 48000, PartitionSize: 256, MaxLength: 8192}
	assert.Equal(t, 32, cfg.MaxPartitions())

	cfg.MaxLength = 8193
	assert.Equal(t, 33, cfg.MaxPartitions())

	cfg.MaxLength = 0
	assert.Zero(t, cfg.MaxPartitions())
}

func TestBuild_TrimsAndNormalises(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		Azimuth:    30,
		Elevation:  -10,
		SampleRate: 48000,
		Samples:    testutil.DiracStereo(32, 3, 5, 0.5),
		Path:       "azi_30_ele_-10.wav",
	}

	k, err := b.Build(rec)
	require.NoError(t, err)

	assert.Equal(t, 30.0, k.Azimuth)
	assert.Equal(t, -10.0, k.Elevation)
	assert.Equal(t, "azi_30_ele_-10.wav", k.Source)

	// Both ends are trimmed jointly so the interaural delay survives.
	require.Equal(t, 3, k.Length())
	assert.InDelta(t, 0.25, k.NormalisationGain(), 1e-12)
	testutil.AssertSlicesInDelta(t, []float64{0.125, 0, 0}, k.Impulse(0), 1e-12)
	testutil.AssertSlicesInDelta(t, []float64{0, 0, 0.125}, k.Impulse(1), 1e-12)

	// The source record is left untouched.
	assert.Equal(t, 0.5, rec.Samples[0][3])
}

func TestBuild_NormalisesLoudestChannel(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 48000,
		Samples:    [][]float64{decayingNoise(300, 1), decayingNoise(300, 1)},
	}
	for i := range rec.Samples[1] {
		rec.Samples[1][i] *= 0.5
	}

	k, err := b.Build(rec)
	require.NoError(t, err)

	var energies [Channels]float64
	for ch := range Channels {
		for _, v := range k.Impulse(ch) {
			energies[ch] += v * v
		}
	}
	assert.InDelta(t, normalisationTarget, math.Sqrt(energies[0]), 1e-9)
	assert.Less(t, energies[1], energies[0])
}

func TestBuild_MonoIsDuplicated(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 48000,
		Samples:    [][]float64{decayingNoise(100, 7)},
	}

	k, err := b.Build(rec)
	require.NoError(t, err)
	testutil.AssertSlicesInDelta(t, k.Impulse(0), k.Impulse(1), 0)
}

func TestBuild_ExtraChannelsIgnored(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 48000,
		Samples: [][]float64{
			testutil.Impulse(16, 0, 0.5),
			testutil.Impulse(16, 1, 0.5),
			testutil.Impulse(16, 15, 0.9),
		},
	}

	k, err := b.Build(rec)
	require.NoError(t, err)
	assert.Equal(t, 2, k.Length())
}

func TestBuild_SilentIR(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 48000,
		Samples:    [][]float64{make([]float64, 64), make([]float64, 64)},
	}

	k, err := b.Build(rec)
	require.NoError(t, err)
	assert.Equal(t, 1, k.Length())
	assert.Equal(t, 1, k.Partitions())
	assert.Equal(t, 1.0, k.NormalisationGain())
	testutil.AssertSilent(t, k.Impulse(0), 0)
}

func TestBuild_NoChannels(t *testing.T) {
	b := newTestBuilder(t, testConfig())

	_, err := b.Build(nil)
	require.ErrorIs(t, err, ErrNoChannels)

	_, err = b.Build(&hrir.Record{SampleRate: 48000})
	require.ErrorIs(t, err, ErrNoChannels)
}

func TestBuild_TruncatesToMaxLength(t *testing.T) {
	cfg := testConfig()
	cfg.PartitionSize = 128
	cfg.MaxLength = 300
	b := newTestBuilder(t, cfg)

	rec := &hrir.Record{
		SampleRate: 48000,
		Samples:    [][]float64{decayingNoise(1000, 3), decayingNoise(1000, 4)},
	}

	k, err := b.Build(rec)
	require.NoError(t, err)
	assert.Equal(t, 300, k.Length())
	assert.Equal(t, 3, k.Partitions())
	assert.Equal(t, 128, k.PartitionSize())
	for ch := range Channels {
		require.Len(t, k.Spectra[ch], 3)
		for _, spec := range k.Spectra[ch] {
			assert.Len(t, spec, 129)
		}
	}
}

func TestBuild_PartitionSpectra(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 48000,
		Samples:    testutil.DiracStereo(32, 0, 2, 0.5),
	}

	k, err := b.Build(rec)
	require.NoError(t, err)
	require.Equal(t, 1, k.Partitions())

	// A Dirac at the start of the partition has a flat spectrum; a delayed
	// one keeps the same magnitude.
	for i, c := range k.Spectra[0][0] {
		assert.InDelta(t, 0.125, real(c), 1e-12, "bin %d", i)
		assert.InDelta(t, 0.0, imag(c), 1e-12, "bin %d", i)
	}
	for i, c := range k.Spectra[1][0] {
		assert.InDelta(t, 0.125, cmplx.Abs(c), 1e-12, "bin %d", i)
	}
}

func TestBuild_Resamples(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	rec := &hrir.Record{
		SampleRate: 44100,
		Samples:    [][]float64{decayingNoise(512, 5), decayingNoise(512, 6)},
	}

	k, err := b.Build(rec)
	require.NoError(t, err)

	assert.Greater(t, k.Length(), 512)
	testutil.AssertNoNaNOrInf(t, k.Impulse(0))
	testutil.AssertNoNaNOrInf(t, k.Impulse(1))
	assert.Len(t, k.Impulse(1), k.Length())
}

func TestBuildAll_MatchesLibraryOrder(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	lib := hrir.NewLibrary("mem", 48000, []*hrir.Record{
		{Azimuth: 0, SampleRate: 48000, Samples: testutil.DiracStereo(16, 0, 0, 0.5)},
		{Azimuth: 90, SampleRate: 48000, Samples: testutil.DiracStereo(16, 0, 4, 0.5)},
	})

	built, kernels, err := b.BuildAll(context.Background(), lib, nil)
	require.NoError(t, err)
	require.Len(t, kernels, 2)
	assert.Equal(t, 2, built.Len())
	assert.Equal(t, "mem", built.Root())
	assert.Equal(t, 0.0, kernels[0].Azimuth)
	assert.Equal(t, 90.0, kernels[1].Azimuth)
	assert.Equal(t, 5, kernels[1].Length())
}

func TestBuildAll_EmptyLibrary(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	built, kernels, err := b.BuildAll(context.Background(), hrir.NewLibrary("", 48000, nil), nil)
	require.NoError(t, err)
	assert.Zero(t, built.Len())
	assert.Empty(t, kernels)
}

func TestBuildAll_SkipsFailedRecords(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	broken := &hrir.Record{Azimuth: 45, SampleRate: 48000, Path: "azi_45_ele_0.wav"}
	lib := hrir.NewLibrary("mem", 48000, []*hrir.Record{
		{Azimuth: 0, SampleRate: 48000, Samples: testutil.DiracStereo(16, 0, 0, 0.5)},
		broken,
		{Azimuth: 90, SampleRate: 48000, Samples: testutil.DiracStereo(16, 0, 4, 0.5)},
	})

	_, _, err := b.BuildAll(context.Background(), lib, nil)
	require.ErrorIs(t, err, ErrNoChannels)

	var skipped []*hrir.Record
	built, kernels, err := b.BuildAll(context.Background(), lib, func(rec *hrir.Record, err error) {
		assert.ErrorIs(t, err, ErrNoChannels)
		skipped = append(skipped, rec)
	})
	require.NoError(t, err)
	assert.Equal(t, []*hrir.Record{broken}, skipped)
	require.Len(t, kernels, 2)
	require.Equal(t, 2, built.Len())
	for i, rec := range built.Records() {
		assert.Equal(t, rec.Azimuth, kernels[i].Azimuth)
	}
}

func TestBuildAll_Canceled(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	lib := hrir.NewLibrary("mem", 48000, []*hrir.Record{
		{SampleRate: 48000, Samples: testutil.DiracStereo(16, 0, 0, 0.5)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := b.BuildAll(ctx, lib, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestKernel_ImpulseSpansPartitions(t *testing.T) {
	b := newTestBuilder(t, testConfig())
	left, right := decayingNoise(200, 8), decayingNoise(200, 9)
	left[0], right[0] = 0.5, 0.5
	left[199], right[199] = 0.2, 0.2

	k, err := b.Build(&hrir.Record{SampleRate: 48000, Samples: [][]float64{left, right}})
	require.NoError(t, err)
	require.Equal(t, 4, k.Partitions())

	gain := k.NormalisationGain()
	for ch, src := range [][]float64{left, right} {
		imp := k.Impulse(ch)
		require.Len(t, imp, 200)
		for i, v := range src {
			assert.InDelta(t, v*gain, imp[i], 1e-12, "channel %d sample %d", ch, i)
		}
	}
}
