package binaural

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-binaural/internal/hrir"
	"github.com/tphakala/go-binaural/internal/testutil"
)

const (
	testRate      = 48000.0
	testPartition = 64
	testBlock     = 256
)

var testAzimuths = []float64{0, 90, 180, 270}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T, mutate ...func(*Config)) *Processor {
	t.Helper()
	cfg := &Config{
		PartitionSize:   testPartition,
		MaxKernelLength: 1024,
		Logger:          discardLogger(),
	}
	for _, m := range mutate {
		m(cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// writeGridLibrary writes a 48 kHz library with one IR per test azimuth at
// elevation 0. IR i has its left-channel impulse delayed by i samples.
func writeGridLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteIRLibrary(t, root, hrir.Bucket48k, testutil.GridFixtures(testAzimuths, []float64{0}, 32))
	return root
}

func waitIdle(t *testing.T, p *Processor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.WaitIdle(ctx))
}

func stereoBlock(n int) (dst, src [][]float32) {
	src = [][]float32{
		testutil.Sine(n, 440, testRate, 0.5),
		testutil.Sine(n, 660, testRate, 0.5),
	}
	dst = [][]float32{make([]float32, n), make([]float32, n)}
	return dst, src
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero uses defaults", Config{}, false},
		{"explicit", Config{PartitionSize: 128, MaxKernelLength: 4096, SmoothingTime: 50 * time.Millisecond}, false},
		{"partition too small", Config{PartitionSize: 8}, true},
		{"partition not power of two", Config{PartitionSize: 100}, true},
		{"partition too large", Config{PartitionSize: 16384}, true},
		{"negative kernel length", Config{MaxKernelLength: -1}, true},
		{"kernel length too large", Config{MaxKernelLength: maxKernelLength + 1}, true},
		{"negative smoothing", Config{SmoothingTime: -time.Millisecond}, true},
		{"smoothing too long", Config{SmoothingTime: time.Minute}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{PartitionSize: 3})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(&Config{Logger: discardLogger()})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	assert.Equal(t, DefaultPartitionSize, p.cfg.PartitionSize)
	assert.Equal(t, DefaultMaxKernelLength, p.cfg.MaxKernelLength)
	assert.Equal(t, DefaultSmoothingTime, p.cfg.SmoothingTime)
	for id := range numParams {
		assert.Zero(t, p.Parameter(id))
	}
}

func TestPrepare_Errors(t *testing.T) {
	p := newTestProcessor(t)
	require.ErrorIs(t, p.Prepare(0, 256), ErrInvalidConfig)
	require.ErrorIs(t, p.Prepare(48000, 0), ErrInvalidConfig)
	require.ErrorIs(t, p.Prepare(48000, maxBlockSizeLimit+1), ErrInvalidConfig)
}

func TestProcess_NotPrepared(t *testing.T) {
	p := newTestProcessor(t)
	dst, src := stereoBlock(16)
	require.ErrorIs(t, p.Process(dst, src), ErrNotPrepared)
}

func TestProcess_InvalidBuffers(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	buf := func(n int) []float32 { return make([]float32, n) }
	tests := []struct {
		name     string
		dst, src [][]float32
	}{
		{"no input", [][]float32{buf(8), buf(8)}, nil},
		{"three inputs", [][]float32{buf(8), buf(8)}, [][]float32{buf(8), buf(8), buf(8)}},
		{"one output", [][]float32{buf(8)}, [][]float32{buf(8)}},
		{"input length mismatch", [][]float32{buf(8), buf(8)}, [][]float32{buf(8), buf(7)}},
		{"output length mismatch", [][]float32{buf(8), buf(9)}, [][]float32{buf(8)}},
		{"block too long", [][]float32{buf(testBlock + 1), buf(testBlock + 1)}, [][]float32{buf(testBlock + 1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, p.Process(tc.dst, tc.src), ErrInvalidBuffer)
		})
	}
}

func TestProcess_FallbackWithoutLibrary(t *testing.T) {
	var latencies []int
	p := newTestProcessor(t, func(c *Config) {
		c.OnLatencyChange = func(n int) { latencies = append(latencies, n) }
	})
	require.NoError(t, p.Prepare(testRate, testBlock))

	status := p.Status()
	assert.Equal(t, StateNoFolder, status.State)
	assert.Equal(t, "Please Select A Folder!", status.Message())
	assert.Zero(t, p.CacheSize())

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))

	// Centre position: both ears get the same mix.
	testutil.AssertSlicesInDelta(t, dst[0], dst[1], 1e-7)
	assert.Greater(t, testutil.Peak(dst[0]), 0.1)
	assert.Zero(t, p.Latency())
	assert.Empty(t, latencies)
}

func TestPrepare_LoadsLibrary(t *testing.T) {
	root := writeGridLibrary(t)

	var latencies []int
	p := newTestProcessor(t, func(c *Config) {
		c.OnLatencyChange = func(n int) { latencies = append(latencies, n) }
	})
	p.SetLibraryRoot(root)
	assert.Equal(t, root, p.LibraryRoot())
	assert.Zero(t, p.CacheSize(), "nothing loads before Prepare")

	require.NoError(t, p.Prepare(testRate, testBlock))
	assert.Equal(t, len(testAzimuths), p.CacheSize())

	status := p.Status()
	assert.Equal(t, StateLoaded, status.State)
	assert.Equal(t, hrir.Bucket48k, status.Bucket)
	assert.Equal(t, len(testAzimuths), status.Count)
	assert.Equal(t, "LOADED: "+filepath.Base(root)+" (4 IRs)", status.Message())

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))
	testutil.AssertNoNaNOrInf(t, dst[0])
	testutil.AssertNoNaNOrInf(t, dst[1])

	assert.Equal(t, testPartition, p.Latency())
	assert.Equal(t, []int{testPartition}, latencies)
}

func TestProcess_SelectsNearestIR(t *testing.T) {
	p := newTestProcessor(t)
	p.SetLibraryRoot(writeGridLibrary(t))
	p.SetParameter(ParamAzimuth, 95)
	require.NoError(t, p.Prepare(testRate, testBlock))

	// Let the first kernel fade in before the impulse arrives.
	const impulseAt = 2 * testPartition
	src := [][]float32{make([]float32, testBlock)}
	src[0][impulseAt] = 1
	dst := [][]float32{make([]float32, testBlock), make([]float32, testBlock)}
	require.NoError(t, p.Process(dst, src))

	// The 90 degree IR is index 1 of the grid, so its left channel is one
	// sample later than its right.
	assert.Equal(t, impulseAt+testPartition+1, testutil.PeakIndex(dst[0]))
	assert.Equal(t, impulseAt+testPartition, testutil.PeakIndex(dst[1]))

	// Both ears use the same kernel at zero width, each normalised to a
	// single 0.125 tap.
	want := 2 * 0.125 * 0.707 * 4
	assert.InDelta(t, want, testutil.Peak(dst[0]), 1e-4)
	assert.InDelta(t, want, testutil.Peak(dst[1]), 1e-4)
}

func TestSetLibraryRoot_LoadsInBackground(t *testing.T) {
	var latencies []int
	p := newTestProcessor(t, func(c *Config) {
		c.OnLatencyChange = func(n int) { latencies = append(latencies, n) }
	})
	require.NoError(t, p.Prepare(testRate, testBlock))

	root := writeGridLibrary(t)
	p.SetLibraryRoot(root)
	waitIdle(t, p)

	assert.Equal(t, len(testAzimuths), p.CacheSize())
	assert.Equal(t, StateLoaded, p.Status().State)

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))
	assert.Equal(t, []int{testPartition}, latencies)
}

func TestSetLibraryRoot_LatestWins(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	first := writeGridLibrary(t)
	second := t.TempDir()
	testutil.WriteIRLibrary(t, second, hrir.Bucket48k, []testutil.IRFixture{
		{Azimuth: 45, Channels: testutil.DiracStereo(16, 0, 0, 0.5)},
	})

	for range 5 {
		p.SetLibraryRoot(first)
		p.SetLibraryRoot(second)
	}
	waitIdle(t, p)

	assert.Equal(t, second, p.LibraryRoot())
	status := p.Status()
	assert.Equal(t, second, status.Root)
	assert.Equal(t, 1, status.Count)
	assert.Equal(t, 1, p.CacheSize())
}

func TestSetLibraryRoot_InvalidFolder(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, hrir.Bucket44k), 0o755))
	p.SetLibraryRoot(root)
	waitIdle(t, p)

	status := p.Status()
	assert.Equal(t, StateInvalid, status.State)
	assert.Equal(t, "ERROR: Invalid Folder!", status.Message())
	assert.Zero(t, p.CacheSize())

	p.SetLibraryRoot(filepath.Join(root, "missing"))
	waitIdle(t, p)
	assert.Equal(t, StateNoFolder, p.Status().State)
}

func TestSetLibraryRoot_FileIsInvalidFolder(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	path := filepath.Join(t.TempDir(), "irs.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a folder"), 0o644))
	p.SetLibraryRoot(path)
	waitIdle(t, p)

	status := p.Status()
	assert.Equal(t, StateInvalid, status.State)
	assert.Equal(t, "ERROR: Invalid Folder!", status.Message())
	assert.Zero(t, p.CacheSize())
}

func TestPrepare_SelectionDuringPrepareWins(t *testing.T) {
	first := writeGridLibrary(t)
	second := t.TempDir()
	testutil.WriteIRLibrary(t, second, hrir.Bucket48k, []testutil.IRFixture{
		{Azimuth: 45, Channels: testutil.DiracStereo(16, 0, 0, 0.5)},
	})

	p := newTestProcessor(t)
	p.SetLibraryRoot(first)
	require.NoError(t, p.Prepare(testRate, testBlock))
	require.Equal(t, first, p.Status().Root)

	p.prepareHook = func() { p.SetLibraryRoot(second) }
	require.NoError(t, p.Prepare(testRate, testBlock))
	waitIdle(t, p)

	assert.Equal(t, second, p.LibraryRoot())
	status := p.Status()
	assert.Equal(t, p.LibraryRoot(), status.Root)
	assert.Equal(t, StateLoaded, status.State)
	assert.Equal(t, 1, p.CacheSize())

	p.prepareHook = p.ClearLibrary
	require.NoError(t, p.Prepare(testRate, testBlock))
	waitIdle(t, p)

	assert.Empty(t, p.LibraryRoot())
	assert.Equal(t, StateNoFolder, p.Status().State)
	assert.Zero(t, p.CacheSize())
}

func TestClearLibrary(t *testing.T) {
	var latencies []int
	p := newTestProcessor(t, func(c *Config) {
		c.OnLatencyChange = func(n int) { latencies = append(latencies, n) }
	})
	p.SetLibraryRoot(writeGridLibrary(t))
	require.NoError(t, p.Prepare(testRate, testBlock))

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))
	before := p.Status().SnapshotID

	p.ClearLibrary()
	assert.Empty(t, p.LibraryRoot())
	assert.Zero(t, p.CacheSize())
	assert.Equal(t, StateNoFolder, p.Status().State)
	assert.NotEqual(t, before, p.Status().SnapshotID)

	require.NoError(t, p.Process(dst, src))
	assert.Zero(t, p.Latency())
	assert.Equal(t, []int{testPartition, 0}, latencies)

	// An empty root is the same as clearing.
	p.SetLibraryRoot(writeGridLibrary(t))
	waitIdle(t, p)
	require.Equal(t, len(testAzimuths), p.CacheSize())
	p.SetLibraryRoot("")
	assert.Zero(t, p.CacheSize())
}

func TestProcess_ReloadAfterClearRestartsKernels(t *testing.T) {
	root := writeGridLibrary(t)
	p := newTestProcessor(t)
	p.SetLibraryRoot(root)
	require.NoError(t, p.Prepare(testRate, testBlock))

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))
	require.Equal(t, 1, p.renderer.Left().Reloads())

	p.ClearLibrary()
	require.NoError(t, p.Process(dst, src))

	p.SetLibraryRoot(root)
	waitIdle(t, p)
	require.NoError(t, p.Process(dst, src))

	// Same position as before the clear, yet both ears reload.
	assert.Equal(t, 2, p.renderer.Left().Reloads())
	assert.Equal(t, 2, p.renderer.Right().Reloads())
}

func TestSetParameter(t *testing.T) {
	p := newTestProcessor(t)

	tests := []struct {
		id   ParamID
		in   float64
		want float64
	}{
		{ParamAzimuth, 45, 45},
		{ParamAzimuth, 400, 360},
		{ParamAzimuth, -5, 0},
		{ParamElevation, -30, -30},
		{ParamElevation, 120, 90},
		{ParamElevation, -91, -90},
		{ParamWidth, 55, 55},
		{ParamWidth, 150, 100},
		{ParamWidth, -1, 0},
	}
	for _, tc := range tests {
		p.SetParameter(tc.id, tc.in)
		assert.Equal(t, tc.want, p.Parameter(tc.id), "%s <- %v", tc.id, tc.in)
	}

	p.SetParameter(ParamWidth, math.NaN())
	assert.Equal(t, 0.0, p.Parameter(ParamWidth))

	p.SetParameter(ParamID(42), 1)
	assert.Zero(t, p.Parameter(ParamID(42)))
}

func TestParamID(t *testing.T) {
	assert.Equal(t, "azimuth", ParamAzimuth.String())
	assert.Equal(t, "width", ParamWidth.String())
	assert.Equal(t, "ParamID(9)", ParamID(9).String())

	id, err := ParseParamID("Elevation")
	require.NoError(t, err)
	assert.Equal(t, ParamElevation, id)

	_, err = ParseParamID("roll")
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestProcess_SmoothsParameters(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	dst, src := stereoBlock(testBlock)
	require.NoError(t, p.Process(dst, src))

	p.SetParameter(ParamAzimuth, 90)
	require.NoError(t, p.Process(dst, src))
	assert.True(t, p.params.Azimuth.IsSmoothing())
	assert.Less(t, p.params.Azimuth.Current(), 90.0)

	// 100ms at 48kHz is 4800 samples; run well past it.
	for range 20 {
		require.NoError(t, p.Process(dst, src))
	}
	assert.False(t, p.params.Azimuth.IsSmoothing())
	assert.Equal(t, 90.0, p.params.Azimuth.Current())
}

func TestProcess_MonoInput(t *testing.T) {
	p := newTestProcessor(t)
	p.SetLibraryRoot(writeGridLibrary(t))
	require.NoError(t, p.Prepare(testRate, testBlock))

	src := [][]float32{testutil.Sine(testBlock, 440, testRate, 0.5)}
	dst := [][]float32{make([]float32, testBlock), make([]float32, testBlock)}
	require.NoError(t, p.Process(dst, src))
	assert.Greater(t, testutil.Peak(dst[0]), 0.0)
	assert.Greater(t, testutil.Peak(dst[1]), 0.0)
}

func TestProcess_InPlace(t *testing.T) {
	for _, withLibrary := range []bool{false, true} {
		ref := newTestProcessor(t)
		inPlace := newTestProcessor(t)
		if withLibrary {
			root := writeGridLibrary(t)
			ref.SetLibraryRoot(root)
			inPlace.SetLibraryRoot(root)
		}
		for _, p := range []*Processor{ref, inPlace} {
			p.SetParameter(ParamAzimuth, 30)
			p.SetParameter(ParamWidth, 40)
			require.NoError(t, p.Prepare(testRate, testBlock))
		}

		dst, src := stereoBlock(testBlock)
		require.NoError(t, ref.Process(dst, src))

		_, buf := stereoBlock(testBlock)
		require.NoError(t, inPlace.Process(buf, buf))

		testutil.AssertSlicesInDelta(t, dst[0], buf[0], 0, "library=%v", withLibrary)
		testutil.AssertSlicesInDelta(t, dst[1], buf[1], 0, "library=%v", withLibrary)
	}
}

func TestProcess_DoesNotAllocate(t *testing.T) {
	for _, withLibrary := range []bool{false, true} {
		p := newTestProcessor(t)
		if withLibrary {
			p.SetLibraryRoot(writeGridLibrary(t))
		}
		require.NoError(t, p.Prepare(testRate, testBlock))

		dst, src := stereoBlock(testBlock)
		az := 0.0
		allocs := testing.AllocsPerRun(50, func() {
			az = math.Mod(az+13, 360)
			p.SetParameter(ParamAzimuth, az)
			_ = p.Process(dst, src)
		})
		assert.Zero(t, allocs, "library=%v", withLibrary)
	}
}

func TestPrepare_ReprepareChangesBucket(t *testing.T) {
	root := writeGridLibrary(t)
	testutil.WriteIRLibrary(t, root, hrir.Bucket44k, []testutil.IRFixture{
		{Azimuth: 0, Channels: testutil.DiracStereo(16, 0, 0, 0.5), SampleRate: 44100},
	})

	p := newTestProcessor(t)
	p.SetLibraryRoot(root)
	require.NoError(t, p.Prepare(testRate, testBlock))
	assert.Equal(t, len(testAzimuths), p.CacheSize())

	require.NoError(t, p.Prepare(44100, 128))
	assert.Equal(t, 1, p.CacheSize())
	assert.Equal(t, hrir.Bucket44k, p.Status().Bucket)
}

func TestClose(t *testing.T) {
	p, err := New(&Config{Logger: discardLogger()})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Prepare(testRate, testBlock), ErrClosed)
}

func TestWaitIdle_ContextDone(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Prepare(testRate, testBlock))

	// Nothing pending: returns at once even with a canceled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.WaitIdle(ctx))
}
