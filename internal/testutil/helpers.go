// Package testutil provides reusable test helpers for the spatializer tests:
// float assertions and on-disk HRIR fixture libraries.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance = 1e-10
	Float32Tolerance = 1e-5
	// PCM16Tolerance covers the rounding of a 16-bit WAV round trip.
	PCM16Tolerance = 1.0 / 16384
)

// Float is the sample type constraint shared by the helpers.
type Float interface {
	float32 | float64
}

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf[F Float](t *testing.T, s []F, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		f := float64(v)
		if math.IsNaN(f) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(f, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertSlicesInDelta verifies element-wise closeness of two slices of equal
// length.
func AssertSlicesInDelta[F Float](t *testing.T, expected, actual []F, delta float64, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Len(t, actual, len(expected), msgAndArgs...) {
		return false
	}
	for i := range expected {
		if !assert.InDelta(t, float64(expected[i]), float64(actual[i]), delta,
			"sample %d: expected %v, got %v", i, expected[i], actual[i]) {
			return false
		}
	}
	return true
}

// AssertSilent verifies that every sample is within tolerance of zero.
func AssertSilent[F Float](t *testing.T, s []F, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.Abs(float64(v)) > tolerance {
			return assert.Fail(t, "signal not silent",
				"s[%d]=%v exceeds %v", i, v, tolerance)
		}
	}
	return true
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}

// Peak returns the largest absolute sample value.
func Peak[F Float](s []F) float64 {
	var peak float64
	for _, v := range s {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	return peak
}

// PeakIndex returns the index of the largest absolute sample, or -1 for an
// empty slice.
func PeakIndex[F Float](s []F) int {
	idx := -1
	var peak float64
	for i, v := range s {
		if a := math.Abs(float64(v)); idx < 0 || a > peak {
			idx, peak = i, a
		}
	}
	return idx
}

// Sine returns n samples of a sine wave.
func Sine(n int, freq, sampleRate, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

// Impulse returns n samples with a single value at position pos.
func Impulse(n, pos int, amplitude float64) []float64 {
	out := make([]float64, n)
	if pos >= 0 && pos < n {
		out[pos] = amplitude
	}
	return out
}
